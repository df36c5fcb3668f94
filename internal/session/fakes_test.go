package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"chat-game-bot/internal/config"
	"chat-game-bot/internal/game"
	"chat-game-bot/internal/ledger"
	"chat-game-bot/internal/model"
	"chat-game-bot/internal/repository"
)

// memStore is an in-memory stand-in for the Postgres-backed stores and the
// escrow manager, honoring the same compare-and-set and idempotency
// contracts so engine behavior can be tested without a database.
type memStore struct {
	mu         sync.Mutex
	sessions   map[string]*model.Session
	parts      map[string][]*model.Participant
	turns      map[int64]*model.Turn
	subs       map[int64][]*model.Submission
	balances   map[int64]int64
	penalties  map[string]int64
	nextTurnID int64
	nextSubID  int64
	joinSeq    int64

	// Failure injection: each counter makes that many calls fail before the
	// store recovers.
	settleFailures int
	countFailures  int

	// onCreate runs once at the start of the next Create, before the
	// liveness check, to stage create races deterministically.
	onCreate func()
}

func newMemStore() *memStore {
	return &memStore{
		sessions:  make(map[string]*model.Session),
		parts:     make(map[string][]*model.Participant),
		turns:     make(map[int64]*model.Turn),
		subs:      make(map[int64][]*model.Submission),
		balances:  make(map[int64]int64),
		penalties: make(map[string]int64),
	}
}

func (m *memStore) setBalance(userID, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = balance
}

func (m *memStore) balance(userID int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID]
}

func (m *memStore) totalBalance() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, b := range m.balances {
		total += b
	}
	return total
}

// --- SessionStore ---------------------------------------------------------

func (m *memStore) Create(ctx context.Context, s *model.Session) (*model.Session, error) {
	if hook := m.onCreate; hook != nil {
		m.onCreate = nil
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sessions {
		if existing.ChatID == s.ChatID && !existing.Status.Terminal() {
			return nil, repository.ErrActiveSessionExists
		}
	}
	cp := *s
	cp.CreatedAt = time.Now()
	m.sessions[s.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memStore) GetByID(ctx context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) GetActiveByChat(ctx context.Context, chatID int64) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ChatID == chatID && !s.Status.Terminal() {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (m *memStore) CompareAndSetStatus(ctx context.Context, id string, from, to model.SessionStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	if to.Terminal() {
		s.Deadline = nil
	}
	return true, nil
}

func (m *memStore) SetDeadline(ctx context.Context, id string, deadline *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	s.Deadline = deadline
	return nil
}

func (m *memStore) ClaimFirst(ctx context.Context, id string, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return false, repository.ErrSessionNotFound
	}
	if s.Claimed || s.Status != model.StatusInProgress {
		return false, nil
	}
	s.Claimed = true
	for _, p := range m.parts[id] {
		if p.UserID == userID {
			p.Rank = 1
		}
	}
	return true, nil
}

func (m *memStore) ListUnresolved(ctx context.Context, now time.Time) ([]*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Session
	for _, s := range m.sessions {
		if !s.Status.Terminal() && s.Deadline != nil && !s.Deadline.After(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ListLive(ctx context.Context) ([]*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Session
	for _, s := range m.sessions {
		if !s.Status.Terminal() {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- ParticipantStore -----------------------------------------------------

func (m *memStore) List(ctx context.Context, sessionID string) ([]*model.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	parts := m.parts[sessionID]
	out := make([]*model.Participant, len(parts))
	for i, p := range parts {
		cp := *p
		out[i] = &cp
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (m *memStore) Count(ctx context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.parts[sessionID]), nil
}

func (m *memStore) IsParticipant(ctx context.Context, sessionID string, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.parts[sessionID] {
		if p.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) AddScore(ctx context.Context, sessionID string, userID, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.parts[sessionID] {
		if p.UserID == userID {
			p.Score += delta
			return nil
		}
	}
	return repository.ErrUserNotFound
}

func (m *memStore) SetEliminated(ctx context.Context, sessionID string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.parts[sessionID] {
		if p.UserID == userID {
			p.Eliminated = true
			return nil
		}
	}
	return repository.ErrUserNotFound
}

func (m *memStore) SetRank(ctx context.Context, sessionID string, userID int64, rank int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.parts[sessionID] {
		if p.UserID == userID {
			p.Rank = rank
			return nil
		}
	}
	return repository.ErrUserNotFound
}

// --- TurnStore ------------------------------------------------------------

// memTurns exposes the turn store on its own type; TurnStore.GetByID and
// SessionStore.GetByID would otherwise collide on memStore.
type memTurns struct {
	m *memStore
}

func (t memTurns) Open(ctx context.Context, sessionID string, turnNumber int, prompt string, deadline time.Time) (*model.Turn, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.m.nextTurnID++
	turn := &model.Turn{
		ID:         t.m.nextTurnID,
		SessionID:  sessionID,
		TurnNumber: turnNumber,
		Prompt:     prompt,
		Deadline:   deadline,
		CreatedAt:  time.Now(),
	}
	t.m.turns[turn.ID] = turn
	cp := *turn
	return &cp, nil
}

func (t memTurns) GetByID(ctx context.Context, id int64) (*model.Turn, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	turn, ok := t.m.turns[id]
	if !ok {
		return nil, repository.ErrTurnNotFound
	}
	cp := *turn
	return &cp, nil
}

func (t memTurns) GetOpen(ctx context.Context, sessionID string) (*model.Turn, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for _, turn := range t.m.turns {
		if turn.SessionID == sessionID && !turn.Closed {
			cp := *turn
			return &cp, nil
		}
	}
	return nil, repository.ErrTurnNotFound
}

func (t memTurns) Close(ctx context.Context, id int64) (bool, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	turn, ok := t.m.turns[id]
	if !ok || turn.Closed {
		return false, nil
	}
	turn.Closed = true
	return true, nil
}

func (t memTurns) CountBySession(ctx context.Context, sessionID string) (int, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	count := 0
	for _, turn := range t.m.turns {
		if turn.SessionID == sessionID {
			count++
		}
	}
	return count, nil
}

// --- SubmissionStore ------------------------------------------------------

func (m *memStore) Insert(ctx context.Context, turnID int64, sessionID string, userID int64, value string, latencyMs int64) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs[turnID] {
		if s.UserID == userID {
			return nil, repository.ErrDuplicateSubmission
		}
	}
	m.nextSubID++
	sub := &model.Submission{
		ID:          m.nextSubID,
		TurnID:      turnID,
		SessionID:   sessionID,
		UserID:      userID,
		Value:       value,
		ArrivalSeq:  m.nextSubID,
		LatencyMs:   latencyMs,
		SubmittedAt: time.Now(),
	}
	m.subs[turnID] = append(m.subs[turnID], sub)
	cp := *sub
	return &cp, nil
}

func (m *memStore) ListByTurn(ctx context.Context, turnID int64) ([]*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[turnID]
	out := make([]*model.Submission, len(subs))
	for i, s := range subs {
		cp := *s
		out[i] = &cp
	}
	return out, nil
}

func (m *memStore) CountByTurn(ctx context.Context, turnID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countFailures > 0 {
		m.countFailures--
		return 0, errors.New("submission count unavailable")
	}
	return len(m.subs[turnID]), nil
}

func (m *memStore) MarkCorrect(ctx context.Context, id int64, correct bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, subs := range m.subs {
		for _, s := range subs {
			if s.ID == id {
				c := correct
				s.Correct = &c
				return nil
			}
		}
	}
	return nil
}

// --- Escrow ---------------------------------------------------------------

func (m *memStore) Join(ctx context.Context, sessionID string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return repository.ErrSessionNotFound
	}
	if s.Status != model.StatusWaiting {
		return repository.ErrSessionNotWaiting
	}
	for _, p := range m.parts[sessionID] {
		if p.UserID == userID {
			return repository.ErrAlreadyJoined
		}
	}
	if len(m.parts[sessionID]) >= s.ParticipantCap {
		return repository.ErrSessionFull
	}
	if s.EntryFee > 0 {
		if m.balances[userID] < s.EntryFee {
			return ledger.ErrInsufficientFunds
		}
		m.balances[userID] -= s.EntryFee
	}

	m.joinSeq++
	m.parts[sessionID] = append(m.parts[sessionID], &model.Participant{
		SessionID: sessionID,
		UserID:    userID,
		Escrowed:  true,
		JoinedAt:  time.Unix(0, m.joinSeq),
	})
	return nil
}

func (m *memStore) Refund(ctx context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return 0, repository.ErrSessionNotFound
	}

	credited := 0
	for _, p := range m.parts[sessionID] {
		if p.Escrowed && !p.Refunded && !p.Paid {
			m.balances[p.UserID] += s.EntryFee
			p.Refunded = true
			credited++
		}
	}
	return credited, nil
}

func (m *memStore) Settle(ctx context.Context, sessionID string, payouts map[int64]int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.settleFailures > 0 {
		m.settleFailures--
		return false, errors.New("settlement store unavailable")
	}

	s, ok := m.sessions[sessionID]
	if !ok {
		return false, repository.ErrSessionNotFound
	}
	if s.Settled {
		return false, nil
	}
	s.Settled = true

	for _, p := range m.parts[sessionID] {
		amount, won := payouts[p.UserID]
		if !won || p.Paid {
			continue
		}
		m.balances[p.UserID] += amount
		p.Paid = true
	}
	return true, nil
}

func (m *memStore) Penalize(ctx context.Context, sessionID string, userID, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.parts[sessionID] {
		if p.UserID != userID {
			continue
		}
		if p.Penalized {
			return m.penalties[sessionID], nil
		}
		p.Penalized = true
		collected := amount
		if m.balances[userID] < collected {
			collected = m.balances[userID]
		}
		m.balances[userID] -= collected
		m.penalties[sessionID] = collected
		return collected, nil
	}
	return 0, nil
}

// --- test rules and notifier ----------------------------------------------

// stubRules is a configurable game.Rules for engine tests.
type stubRules struct {
	kind      model.SessionKind
	turnBased bool
	mode      game.SettleMode
	turns     int
	score     func(turn *model.Turn, active []*model.Participant, subs []*model.Submission) []game.ScoreDelta
}

func (r *stubRules) Kind() model.SessionKind { return r.kind }
func (r *stubRules) Name() string            { return string(r.kind) }
func (r *stubRules) Description() string     { return "test rules" }
func (r *stubRules) TurnBased() bool         { return r.turnBased }

func (r *stubRules) NextTurn(turnNumber int) game.TurnSpec {
	return game.TurnSpec{Prompt: "prompt"}
}

func (r *stubRules) Score(turn *model.Turn, active []*model.Participant, subs []*model.Submission) []game.ScoreDelta {
	if r.score == nil {
		return nil
	}
	return r.score(turn, active, subs)
}

func (r *stubRules) Continue(turnNumber int, participants []*model.Participant) bool {
	return turnNumber < r.turns
}

func (r *stubRules) SettleMode() game.SettleMode { return r.mode }

// recordingNotifier captures settlement events for assertions.
type recordingNotifier struct {
	mu      sync.Mutex
	phases  []model.SessionStatus
	payouts []map[int64]int64
}

func (n *recordingNotifier) PhaseChanged(sessionID string, status model.SessionStatus, snapshot *Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.phases = append(n.phases, status)
}

func (n *recordingNotifier) TurnOpened(string, *model.Turn)    {}
func (n *recordingNotifier) TurnClosed(string, *TurnResults)   {}
func (n *recordingNotifier) Settled(sessionID string, payouts map[int64]int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payouts = append(n.payouts, payouts)
}

func (n *recordingNotifier) settledPayouts() []map[int64]int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]map[int64]int64, len(n.payouts))
	copy(out, n.payouts)
	return out
}

var (
	_ SessionStore     = (*memStore)(nil)
	_ ParticipantStore = (*memStore)(nil)
	_ TurnStore        = memTurns{}
	_ SubmissionStore  = (*memStore)(nil)
	_ Escrow           = (*memStore)(nil)
)

func testConfig() config.SessionsConfig {
	return config.SessionsConfig{
		WaitWindow:    time.Minute,
		TurnTimeout:   30 * time.Second,
		SweepInterval: time.Minute,
		MaxEntryFee:   10_000,
		HotPotato:     config.PotatoConfig{Penalty: 50},
	}
}

// newTestEngine builds an Engine over the in-memory store with a manual
// clock so deadline timers fire only when the test says so.
func newTestEngine(store *memStore, rules ...game.Rules) (*Engine, *recordingNotifier, *manualClock) {
	registry := game.NewRegistry()
	for _, r := range rules {
		if err := registry.Register(r); err != nil {
			panic(err)
		}
	}

	notifier := &recordingNotifier{}
	e := NewEngine(Deps{
		Config:       testConfig(),
		Sessions:     store,
		Participants: store,
		Turns:        memTurns{m: store},
		Submissions:  store,
		Escrow:       store,
		Rules:        registry,
		Notifier:     notifier,
	})

	clock := &manualClock{}
	e.sched.afterFunc = clock.afterFunc
	e.now = clock.now
	return e, notifier, clock
}
