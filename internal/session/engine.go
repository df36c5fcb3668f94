// Package session implements the timed multiplayer session engine: the
// lifecycle that turns a chat command into a short-lived, money-backed group
// activity with deadlines, elimination and payout. Command handlers talk
// only to the Engine; escrow, scheduling, arbitration and payout are its
// internals.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"chat-game-bot/internal/config"
	"chat-game-bot/internal/game"
	"chat-game-bot/internal/model"
	"chat-game-bot/internal/pkg/lock"
	"chat-game-bot/internal/repository"
)

// deadlineOpTimeout bounds store work done inside a timer callback.
const deadlineOpTimeout = 30 * time.Second

// Engine composes the escrow manager, phase scheduler, arbitrator and payout
// calculator into the public session lifecycle API. All transitions of one
// session are serialized behind its session lock; unrelated sessions run
// fully concurrently.
type Engine struct {
	cfg          config.SessionsConfig
	sessions     SessionStore
	participants ParticipantStore
	turns        TurnStore
	submissions  SubmissionStore
	escrow       Escrow
	arbiter      *Arbitrator
	sched        *Scheduler
	rules        *game.Registry
	notifier     Notifier
	locks        *lock.SessionLock
	janitor      gocron.Scheduler

	now func() time.Time
}

// Deps holds the collaborators an Engine is built from.
type Deps struct {
	Config       config.SessionsConfig
	Sessions     SessionStore
	Participants ParticipantStore
	Turns        TurnStore
	Submissions  SubmissionStore
	Escrow       Escrow
	Rules        *game.Registry
	Notifier     Notifier
}

// NewEngine creates an Engine. A nil Notifier defaults to NopNotifier.
func NewEngine(deps Deps) *Engine {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Engine{
		cfg:          deps.Config,
		sessions:     deps.Sessions,
		participants: deps.Participants,
		turns:        deps.Turns,
		submissions:  deps.Submissions,
		escrow:       deps.Escrow,
		arbiter:      NewArbitrator(deps.Sessions, deps.Submissions),
		sched:        NewScheduler(),
		rules:        deps.Rules,
		notifier:     notifier,
		locks:        lock.NewSessionLock(),
		now:          time.Now,
	}
}

// SetNotifier replaces the engine's notifier. Breaks the construction cycle
// with the outbound transport; call before Start.
func (e *Engine) SetNotifier(n Notifier) {
	if n != nil {
		e.notifier = n
	}
}

// Start resolves sessions whose deadlines elapsed while the process was
// down, re-arms timers for the rest, and launches the janitor that sweeps
// for stuck sessions. In-memory timers do not survive a restart; the stored
// deadline is the source of truth.
func (e *Engine) Start(ctx context.Context) error {
	live, err := e.sessions.ListLive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list live sessions: %w", err)
	}

	now := e.now()
	for _, s := range live {
		if s.Deadline == nil {
			continue
		}
		id := s.ID
		if s.Deadline.After(now) {
			e.sched.Arm(id, s.Deadline.Sub(now), func() { e.handleDeadline(id) })
		} else {
			go e.handleDeadline(id)
		}
	}
	log.Info().Int("live_sessions", len(live)).Msg("Session engine started")

	janitor, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create janitor scheduler: %w", err)
	}
	_, err = janitor.NewJob(
		gocron.DurationJob(e.cfg.SweepInterval),
		gocron.NewTask(e.sweep),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule janitor job: %w", err)
	}
	janitor.Start()
	e.janitor = janitor

	return nil
}

// Stop cancels all pending timers and the janitor.
func (e *Engine) Stop() {
	e.sched.Stop()
	if e.janitor != nil {
		_ = e.janitor.Shutdown()
	}
}

// sweep resolves any live session whose stored deadline elapsed without a
// timer firing (lost timers, clock skew, missed re-arms).
func (e *Engine) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), deadlineOpTimeout)
	defer cancel()

	stuck, err := e.sessions.ListUnresolved(ctx, e.now())
	if err != nil {
		log.Error().Err(err).Msg("Janitor sweep failed")
		return
	}
	for _, s := range stuck {
		e.handleDeadline(s.ID)
	}
}

// Create opens a new Waiting session, escrows the creator's entry fee and
// arms the wait-window timer.
func (e *Engine) Create(ctx context.Context, chatID int64, kind model.SessionKind, entryFee int64, cap, min int, creatorID int64) (*model.Session, error) {
	if _, ok := e.rules.Get(kind); !ok {
		return nil, ErrUnknownKind
	}
	if entryFee < 0 || entryFee > e.cfg.MaxEntryFee {
		return nil, fmt.Errorf("%w: entry fee must be between 0 and %d", ErrInvalidConfig, e.cfg.MaxEntryFee)
	}
	if cap < 1 || cap > 32 {
		return nil, fmt.Errorf("%w: participant cap must be between 1 and 32", ErrInvalidConfig)
	}
	if min < 1 || min > cap {
		return nil, fmt.Errorf("%w: minimum participants must be between 1 and the cap", ErrInvalidConfig)
	}

	if _, err := e.sessions.GetActiveByChat(ctx, chatID); err == nil {
		return nil, ErrChatBusy
	} else if !errors.Is(err, repository.ErrSessionNotFound) {
		return nil, err
	}

	deadline := e.now().Add(e.cfg.WaitWindow)
	s, err := e.sessions.Create(ctx, &model.Session{
		ID:              uuid.NewString(),
		ChatID:          chatID,
		Kind:            kind,
		Status:          model.StatusWaiting,
		CreatorID:       creatorID,
		EntryFee:        entryFee,
		ParticipantCap:  cap,
		MinParticipants: min,
		Deadline:        &deadline,
	})
	if err != nil {
		if errors.Is(err, repository.ErrActiveSessionExists) {
			// Lost the insert race against another create in this chat.
			return nil, ErrChatBusy
		}
		return nil, err
	}

	// The creator's escrow is part of creation: if their fee cannot be
	// taken the session never opens.
	if err := e.escrow.Join(ctx, s.ID, creatorID); err != nil {
		if _, cerr := e.sessions.CompareAndSetStatus(ctx, s.ID, model.StatusWaiting, model.StatusCancelled); cerr != nil {
			log.Error().Err(cerr).Str("session_id", s.ID).Msg("Failed to void session after escrow failure")
		}
		return nil, err
	}

	id := s.ID
	e.sched.Arm(id, e.cfg.WaitWindow, func() { e.handleDeadline(id) })

	e.notifyPhase(s.ID, model.StatusWaiting)
	log.Info().
		Str("session_id", s.ID).
		Str("kind", string(kind)).
		Int64("entry_fee", entryFee).
		Int("cap", cap).
		Msg("Session created")

	return s, nil
}

// Join escrows the user's entry fee and adds them to a Waiting session.
// Reaching the cap starts the session immediately.
func (e *Engine) Join(ctx context.Context, sessionID string, userID int64) error {
	e.locks.Lock(sessionID)
	defer e.locks.Unlock(sessionID)

	s, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.Status != model.StatusWaiting {
		return ErrInvalidState
	}

	if err := e.escrow.Join(ctx, sessionID, userID); err != nil {
		return err
	}

	count, err := e.participants.Count(ctx, sessionID)
	if err != nil {
		return err
	}
	log.Info().Str("session_id", sessionID).Int64("user_id", userID).Int("participants", count).Msg("User joined session")

	if count >= s.ParticipantCap {
		return e.evaluateStartLocked(ctx, s)
	}
	return nil
}

// Submit records a participant's answer for a turn. When turnID is zero the
// session's open turn is used. Closes the turn early once every active
// participant has answered.
func (e *Engine) Submit(ctx context.Context, sessionID string, turnID int64, userID int64, value string) (*model.Submission, error) {
	e.locks.Lock(sessionID)
	defer e.locks.Unlock(sessionID)

	s, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status != model.StatusInProgress {
		return nil, ErrInvalidState
	}

	rules, ok := e.rules.Get(s.Kind)
	if !ok || !rules.TurnBased() {
		return nil, ErrInvalidState
	}

	p, err := e.findParticipant(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if p.Eliminated {
		return nil, ErrEliminated
	}

	var turn *model.Turn
	if turnID != 0 {
		turn, err = e.turns.GetByID(ctx, turnID)
		if err != nil {
			return nil, err
		}
		if turn.SessionID != sessionID {
			return nil, ErrInvalidState
		}
	} else {
		turn, err = e.turns.GetOpen(ctx, sessionID)
		if err != nil {
			if errors.Is(err, repository.ErrTurnNotFound) {
				return nil, ErrTooLate
			}
			return nil, err
		}
	}

	sub, err := e.arbiter.Submit(ctx, turn, userID, value)
	if err != nil {
		return nil, err
	}

	// Close early once everyone still in the game has answered. Count
	// failures leave the close to the turn's deadline timer.
	subCount, err := e.submissions.CountByTurn(ctx, turn.ID)
	if err != nil {
		log.Debug().Err(err).Str("session_id", sessionID).Int64("turn_id", turn.ID).Msg("Early-close submission count failed")
		return sub, nil
	}
	active, err := e.activeCount(ctx, sessionID)
	if err != nil {
		log.Debug().Err(err).Str("session_id", sessionID).Msg("Early-close active count failed")
		return sub, nil
	}
	if subCount >= active {
		if err := e.closeTurnLocked(ctx, s, rules, turn); err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Int64("turn_id", turn.ID).Msg("Early turn close failed")
		}
	}

	return sub, nil
}

// ClaimFirst resolves a first-claim-wins session. Exactly one concurrent
// caller wins the whole pool; everyone else gets ErrAlreadyClaimed.
func (e *Engine) ClaimFirst(ctx context.Context, sessionID string, userID int64) error {
	e.locks.Lock(sessionID)
	defer e.locks.Unlock(sessionID)

	s, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.Status != model.StatusInProgress {
		return ErrInvalidState
	}

	rules, ok := e.rules.Get(s.Kind)
	if !ok || rules.TurnBased() {
		return ErrInvalidState
	}

	if _, err := e.findParticipant(ctx, sessionID, userID); err != nil {
		return err
	}

	if err := e.arbiter.Claim(ctx, sessionID, userID); err != nil {
		return err
	}

	return e.completeClaimLocked(ctx, s, userID)
}

// ForceCancel cancels a live session from any phase and refunds all escrowed
// entry fees exactly once.
func (e *Engine) ForceCancel(ctx context.Context, sessionID, reason string) error {
	e.locks.Lock(sessionID)
	defer e.locks.Unlock(sessionID)

	s, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.Status.Terminal() {
		return ErrInvalidState
	}

	log.Warn().Str("session_id", sessionID).Str("reason", reason).Msg("Session force-cancelled")
	return e.cancelLocked(ctx, s)
}

// Status returns a read-only snapshot of a session.
func (e *Engine) Status(ctx context.Context, sessionID string) (*Snapshot, error) {
	s, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	parts, err := e.participants.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{Session: s, Participants: parts}
	if s.Status == model.StatusInProgress {
		turn, err := e.turns.GetOpen(ctx, sessionID)
		if err == nil {
			snapshot.OpenTurn = turn
		} else if !errors.Is(err, repository.ErrTurnNotFound) {
			return nil, err
		}
	}
	return snapshot, nil
}

// ActiveInChat returns the chat's live session, if any.
func (e *Engine) ActiveInChat(ctx context.Context, chatID int64) (*model.Session, error) {
	return e.sessions.GetActiveByChat(ctx, chatID)
}

// --- timer handling -------------------------------------------------------

// handleDeadline is the single fire path for every session timer and for the
// janitor. It re-reads stored state under the session lock, so a firing that
// lost the race against a user action is a no-op. A store failure is retried
// once, then the session is force-cancelled so participants are refunded
// rather than left in limbo.
func (e *Engine) handleDeadline(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), deadlineOpTimeout)
	defer cancel()

	e.locks.Lock(sessionID)
	defer e.locks.Unlock(sessionID)

	err := e.resolveLocked(ctx, sessionID)
	if err == nil {
		return
	}
	log.Warn().Err(err).Str("session_id", sessionID).Msg("Deadline resolution failed, retrying")

	if err = e.resolveLocked(ctx, sessionID); err == nil {
		return
	}
	log.Error().Err(err).Str("session_id", sessionID).Msg("Deadline resolution failed twice, cancelling session")

	s, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil || s.Status.Terminal() {
		return
	}
	if err := e.cancelLocked(ctx, s); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("Fail-safe cancellation failed")
	}
}

// resolveLocked advances a session whose deadline elapsed. Caller holds the
// session lock.
func (e *Engine) resolveLocked(ctx context.Context, sessionID string) error {
	s, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil
		}
		return err
	}
	if s.Status.Terminal() {
		return nil
	}

	// The janitor may pick up a session whose deadline moved forward since
	// the query; re-arm instead of resolving early.
	if s.Deadline != nil && s.Deadline.After(e.now()) {
		id := s.ID
		e.sched.Arm(id, s.Deadline.Sub(e.now()), func() { e.handleDeadline(id) })
		return nil
	}

	rules, ok := e.rules.Get(s.Kind)
	if !ok {
		return e.cancelLocked(ctx, s)
	}

	switch s.Status {
	case model.StatusWaiting:
		return e.evaluateStartLocked(ctx, s)
	case model.StatusInProgress:
		if !rules.TurnBased() {
			if s.Claimed {
				// Claim recorded but settlement interrupted; finish it.
				return e.settleRecordedClaimLocked(ctx, s)
			}
			// Claim window elapsed unclaimed: everyone gets their fee back.
			return e.cancelLocked(ctx, s)
		}

		turn, err := e.turns.GetOpen(ctx, sessionID)
		if err != nil {
			if errors.Is(err, repository.ErrTurnNotFound) {
				// Crashed between turns: re-derive whether to continue.
				return e.resumeBetweenTurnsLocked(ctx, s, rules)
			}
			return err
		}
		if turn.Deadline.After(e.now()) {
			id := s.ID
			e.sched.Arm(id, turn.Deadline.Sub(e.now()), func() { e.handleDeadline(id) })
			return nil
		}
		return e.closeTurnLocked(ctx, s, rules, turn)
	}
	return nil
}

// evaluateStartLocked decides a Waiting session's fate: start when enough
// participants joined, cancel-and-refund otherwise. Idempotent through the
// status compare-and-set.
func (e *Engine) evaluateStartLocked(ctx context.Context, s *model.Session) error {
	count, err := e.participants.Count(ctx, s.ID)
	if err != nil {
		return err
	}

	if count < s.MinParticipants {
		log.Info().Str("session_id", s.ID).Int("participants", count).Msg("Session cancelled: not enough participants")
		return e.cancelLocked(ctx, s)
	}

	ok, err := e.sessions.CompareAndSetStatus(ctx, s.ID, model.StatusWaiting, model.StatusInProgress)
	if err != nil {
		return err
	}
	if !ok {
		// A racing timer or join already started (or cancelled) it.
		return nil
	}
	e.sched.Cancel(s.ID)
	s.Status = model.StatusInProgress
	e.notifyPhase(s.ID, model.StatusInProgress)
	log.Info().Str("session_id", s.ID).Int("participants", count).Msg("Session started")

	rules, okRules := e.rules.Get(s.Kind)
	if !okRules {
		return e.cancelLocked(ctx, s)
	}
	if rules.TurnBased() {
		return e.openTurnLocked(ctx, s, rules, 1)
	}

	// Claim-first kinds run a single claim window instead of turns.
	deadline := e.now().Add(e.cfg.TurnTimeout)
	if err := e.sessions.SetDeadline(ctx, s.ID, &deadline); err != nil {
		return err
	}
	id := s.ID
	e.sched.Arm(id, e.cfg.TurnTimeout, func() { e.handleDeadline(id) })
	return nil
}

// openTurnLocked opens turn n and arms its deadline.
func (e *Engine) openTurnLocked(ctx context.Context, s *model.Session, rules game.Rules, n int) error {
	spec := rules.NextTurn(n)
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = e.cfg.TurnTimeout
	}
	deadline := e.now().Add(timeout)

	turn, err := e.turns.Open(ctx, s.ID, n, spec.Prompt, deadline)
	if err != nil {
		return err
	}
	if err := e.sessions.SetDeadline(ctx, s.ID, &deadline); err != nil {
		return err
	}

	id := s.ID
	e.sched.Arm(id, timeout, func() { e.handleDeadline(id) })

	e.notifyTurnOpened(s.ID, turn)
	log.Info().Str("session_id", s.ID).Int("turn", n).Time("deadline", deadline).Msg("Turn opened")
	return nil
}

// closeTurnLocked closes a turn, applies scoring, and either opens the next
// turn or completes the session. The close is a compare-and-set: a replayed
// deadline for an already-closed turn does nothing.
func (e *Engine) closeTurnLocked(ctx context.Context, s *model.Session, rules game.Rules, turn *model.Turn) error {
	closed, err := e.turns.Close(ctx, turn.ID)
	if err != nil {
		return err
	}
	if !closed {
		return nil
	}

	subs, err := e.submissions.ListByTurn(ctx, turn.ID)
	if err != nil {
		return err
	}
	parts, err := e.participants.List(ctx, s.ID)
	if err != nil {
		return err
	}
	active := activeParticipants(parts)

	deltas := rules.Score(turn, active, subs)
	subByUser := make(map[int64]*model.Submission, len(subs))
	for _, sub := range subs {
		subByUser[sub.UserID] = sub
	}
	for _, d := range deltas {
		if d.Delta != 0 {
			if err := e.participants.AddScore(ctx, s.ID, d.UserID, d.Delta); err != nil {
				return err
			}
		}
		if d.Eliminate {
			if err := e.participants.SetEliminated(ctx, s.ID, d.UserID); err != nil {
				return err
			}
		}
		if d.Correct != nil {
			if sub, ok := subByUser[d.UserID]; ok {
				if err := e.submissions.MarkCorrect(ctx, sub.ID, *d.Correct); err != nil {
					return err
				}
			}
		}
	}

	e.notifyTurnClosed(s.ID, &TurnResults{Turn: turn, Submissions: subs, Deltas: deltas})
	log.Info().Str("session_id", s.ID).Int("turn", turn.TurnNumber).Int("submissions", len(subs)).Msg("Turn closed")

	parts, err = e.participants.List(ctx, s.ID)
	if err != nil {
		return err
	}
	if rules.Continue(turn.TurnNumber, parts) {
		return e.openTurnLocked(ctx, s, rules, turn.TurnNumber+1)
	}
	return e.completeLocked(ctx, s, rules)
}

// resumeBetweenTurnsLocked handles the restart case where the process died
// after closing a turn but before opening the next one or settling.
func (e *Engine) resumeBetweenTurnsLocked(ctx context.Context, s *model.Session, rules game.Rules) error {
	n, err := e.turns.CountBySession(ctx, s.ID)
	if err != nil {
		return err
	}
	parts, err := e.participants.List(ctx, s.ID)
	if err != nil {
		return err
	}
	if n > 0 && rules.Continue(n, parts) {
		return e.openTurnLocked(ctx, s, rules, n+1)
	}
	if n == 0 {
		return e.openTurnLocked(ctx, s, rules, 1)
	}
	return e.completeLocked(ctx, s, rules)
}

// --- completion and settlement -------------------------------------------

// completeLocked finishes a turn-based session: ranks participants, computes
// payouts per the kind's settle mode, applies the idempotent settlement, and
// only then leaves InProgress. The session must not reach a terminal status
// before the money has moved: a settlement failure keeps it live so the
// deadline retry and the janitor re-derive and re-apply the same settlement
// (ranking, penalty collection and the settle itself are all idempotent).
func (e *Engine) completeLocked(ctx context.Context, s *model.Session, rules game.Rules) error {
	parts, err := e.participants.List(ctx, s.ID)
	if err != nil {
		return err
	}
	pool := s.PrizePool(len(parts))

	var ranked []int64
	var payouts map[int64]int64

	switch rules.SettleMode() {
	case game.SettleSurvivorTakesAll:
		ranked = rankSurvivorsFirst(parts)
		survivors := activeParticipants(parts)
		if len(survivors) == 1 {
			payouts = map[int64]int64{survivors[0].UserID: pool}
		} else {
			payouts = CalculatePayouts(pool, ranked)
		}

	case game.SettlePenaltyEvenSplit:
		ranked = Rank(parts)
		if len(ranked) > 1 {
			loser := ranked[len(ranked)-1]
			collected, err := e.escrow.Penalize(ctx, s.ID, loser, e.cfg.HotPotato.Penalty)
			if err != nil {
				return err
			}
			payouts = SplitEven(pool+collected, ranked[:len(ranked)-1])
		} else {
			payouts = CalculatePayouts(pool, ranked)
		}

	default:
		ranked = Rank(parts)
		payouts = CalculatePayouts(pool, ranked)
	}

	for i, userID := range ranked {
		if err := e.participants.SetRank(ctx, s.ID, userID, i+1); err != nil {
			return err
		}
	}

	applied, err := e.escrow.Settle(ctx, s.ID, payouts)
	if err != nil {
		return err
	}

	ok, err := e.sessions.CompareAndSetStatus(ctx, s.ID, model.StatusInProgress, model.StatusCompleted)
	if err != nil {
		return err
	}
	e.sched.Cancel(s.ID)
	if !ok {
		return nil
	}
	s.Status = model.StatusCompleted

	e.notifyPhase(s.ID, model.StatusCompleted)
	if applied {
		e.notifySettled(s.ID, payouts)
	}
	log.Info().Str("session_id", s.ID).Int64("pool", pool).Int("payouts", len(payouts)).Msg("Session completed")
	return nil
}

// completeClaimLocked settles a claim-first session for the winner who just
// passed arbitration. Settlement runs before the terminal status change: if
// it fails the session stays InProgress with the claim recorded, and the
// claim-window deadline re-derives the winner and retries.
func (e *Engine) completeClaimLocked(ctx context.Context, s *model.Session, winnerID int64) error {
	count, err := e.participants.Count(ctx, s.ID)
	if err != nil {
		return err
	}
	payouts := map[int64]int64{winnerID: s.PrizePool(count)}

	applied, err := e.escrow.Settle(ctx, s.ID, payouts)
	if err != nil {
		return err
	}

	ok, err := e.sessions.CompareAndSetStatus(ctx, s.ID, model.StatusInProgress, model.StatusCompleted)
	if err != nil {
		return err
	}
	e.sched.Cancel(s.ID)
	if ok {
		s.Status = model.StatusCompleted
	}

	e.notifyPhase(s.ID, model.StatusCompleted)
	if applied {
		e.notifySettled(s.ID, payouts)
	}
	log.Info().Str("session_id", s.ID).Int64("winner_id", winnerID).Msg("Claim session settled")
	return nil
}

// settleRecordedClaimLocked finishes a claim session whose claim CAS landed
// but whose settlement was interrupted (crash between claim and settle).
// The winner is the rank-1 participant recorded in the claim transaction.
func (e *Engine) settleRecordedClaimLocked(ctx context.Context, s *model.Session) error {
	parts, err := e.participants.List(ctx, s.ID)
	if err != nil {
		return err
	}
	for _, p := range parts {
		if p.Rank == 1 {
			return e.completeClaimLocked(ctx, s, p.UserID)
		}
	}
	// No recorded winner should be impossible; refund rather than guess.
	return e.cancelLocked(ctx, s)
}

// cancelLocked refunds everyone then transitions to Cancelled. Refund is
// idempotent, so racing cancellation paths cannot double-credit.
func (e *Engine) cancelLocked(ctx context.Context, s *model.Session) error {
	credited, err := e.escrow.Refund(ctx, s.ID)
	if err != nil {
		return err
	}

	ok, err := e.sessions.CompareAndSetStatus(ctx, s.ID, s.Status, model.StatusCancelled)
	if err != nil {
		return err
	}
	e.sched.Cancel(s.ID)
	if !ok {
		return nil
	}
	s.Status = model.StatusCancelled

	e.notifyPhase(s.ID, model.StatusCancelled)
	log.Info().Str("session_id", s.ID).Int("refunds", credited).Msg("Session cancelled")
	return nil
}

// --- helpers --------------------------------------------------------------

func (e *Engine) findParticipant(ctx context.Context, sessionID string, userID int64) (*model.Participant, error) {
	parts, err := e.participants.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for _, p := range parts {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, ErrNotParticipant
}

func (e *Engine) activeCount(ctx context.Context, sessionID string) (int, error) {
	parts, err := e.participants.List(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return len(activeParticipants(parts)), nil
}

func activeParticipants(parts []*model.Participant) []*model.Participant {
	var active []*model.Participant
	for _, p := range parts {
		if !p.Eliminated {
			active = append(active, p)
		}
	}
	return active
}

// rankSurvivorsFirst orders survivors ahead of eliminated participants,
// each group by score.
func rankSurvivorsFirst(parts []*model.Participant) []int64 {
	survivors := activeParticipants(parts)
	var out []*model.Participant
	for _, p := range parts {
		if p.Eliminated {
			out = append(out, p)
		}
	}
	ranked := Rank(survivors)
	ranked = append(ranked, Rank(out)...)
	return ranked
}

func (e *Engine) notifyPhase(sessionID string, status model.SessionStatus) {
	snapshot, err := e.Status(context.Background(), sessionID)
	if err != nil {
		log.Debug().Err(err).Str("session_id", sessionID).Msg("Snapshot for notification failed")
		snapshot = nil
	}
	dispatch(sessionID, "phase_changed", func() {
		e.notifier.PhaseChanged(sessionID, status, snapshot)
	})
}

func (e *Engine) notifyTurnOpened(sessionID string, turn *model.Turn) {
	dispatch(sessionID, "turn_opened", func() {
		e.notifier.TurnOpened(sessionID, turn)
	})
}

func (e *Engine) notifyTurnClosed(sessionID string, results *TurnResults) {
	dispatch(sessionID, "turn_closed", func() {
		e.notifier.TurnClosed(sessionID, results)
	})
}

func (e *Engine) notifySettled(sessionID string, payouts map[int64]int64) {
	dispatch(sessionID, "settled", func() {
		e.notifier.Settled(sessionID, payouts)
	})
}
