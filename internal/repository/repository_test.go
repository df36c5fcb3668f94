// Package repository tests run against a real PostgreSQL instance via
// testcontainers-go and are skipped when Docker is unavailable.
package repository

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"chat-game-bot/internal/ledger"
	"chat-game-bot/internal/model"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	return cmd.Run() == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool.
// Skips the test if Docker is not available.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, runMigrations(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}
	return pool, cleanup
}

// runMigrations applies the same schema the bot applies at startup.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			telegram_id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			balance BIGINT NOT NULL DEFAULT 1000,
			last_daily_claim BIGINT DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			session_id UUID,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id UUID PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			kind VARCHAR(50) NOT NULL,
			status VARCHAR(20) NOT NULL,
			creator_id BIGINT NOT NULL,
			entry_fee BIGINT NOT NULL DEFAULT 0,
			participant_cap INT NOT NULL,
			min_participants INT NOT NULL,
			deadline TIMESTAMPTZ,
			claimed BOOLEAN NOT NULL DEFAULT FALSE,
			settled BOOLEAN NOT NULL DEFAULT FALSE,
			refunded BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_live_chat ON sessions(chat_id) WHERE status IN ('waiting', 'in_progress')`,
		`CREATE TABLE IF NOT EXISTS participants (
			session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES users(telegram_id),
			escrowed BOOLEAN NOT NULL DEFAULT FALSE,
			refunded BOOLEAN NOT NULL DEFAULT FALSE,
			paid BOOLEAN NOT NULL DEFAULT FALSE,
			penalized BOOLEAN NOT NULL DEFAULT FALSE,
			score BIGINT NOT NULL DEFAULT 0,
			eliminated BOOLEAN NOT NULL DEFAULT FALSE,
			rank INT NOT NULL DEFAULT 0,
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (session_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			id BIGSERIAL PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			turn_number INT NOT NULL,
			prompt TEXT NOT NULL DEFAULT '',
			deadline TIMESTAMPTZ NOT NULL,
			closed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (session_id, turn_number)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_turns_open ON turns(session_id) WHERE NOT closed`,
		`CREATE TABLE IF NOT EXISTS submissions (
			id BIGSERIAL PRIMARY KEY,
			turn_id BIGINT NOT NULL REFERENCES turns(id) ON DELETE CASCADE,
			session_id UUID NOT NULL,
			user_id BIGINT NOT NULL,
			value TEXT NOT NULL,
			correct BOOLEAN,
			latency_ms BIGINT NOT NULL DEFAULT 0,
			submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (turn_id, user_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func createTestUsers(t *testing.T, pool *pgxpool.Pool, ids ...int64) {
	t.Helper()
	repo := NewUserRepository(pool)
	for _, id := range ids {
		_, err := repo.Create(context.Background(), id, "user")
		require.NoError(t, err)
	}
}

func createWaitingSession(t *testing.T, pool *pgxpool.Pool, entryFee int64, cap int) *model.Session {
	t.Helper()
	repo := NewSessionRepository(pool)
	s, err := repo.Create(context.Background(), &model.Session{
		ID:              uuid.NewString(),
		ChatID:          -100,
		Kind:            model.KindQuiz,
		Status:          model.StatusWaiting,
		CreatorID:       1,
		EntryFee:        entryFee,
		ParticipantCap:  cap,
		MinParticipants: 2,
	})
	require.NoError(t, err)
	return s
}

func userBalance(t *testing.T, pool *pgxpool.Pool, id int64) int64 {
	t.Helper()
	u, err := NewUserRepository(pool).GetByID(context.Background(), id)
	require.NoError(t, err)
	return u.Balance
}

// ============================================================================
// UserRepository
// ============================================================================

func TestUserRepository_CreateAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	user, err := repo.Create(ctx, 12345, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), user.TelegramID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, int64(InitialBalance), user.Balance)

	got, err := repo.GetByID(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, user.TelegramID, got.TelegramID)

	_, err = repo.GetByID(ctx, 99999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_GetOrCreate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	user, created, err := repo.GetOrCreate(ctx, 5, "bob")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(InitialBalance), user.Balance)

	again, created, err := repo.GetOrCreate(ctx, 5, "bob")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.TelegramID, again.TelegramID)
}

// ============================================================================
// Ledger adapter
// ============================================================================

func TestLedger_DebitCredit(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	createTestUsers(t, pool, 1)
	adapter := ledger.New(pool)
	ctx := context.Background()

	require.NoError(t, adapter.Debit(ctx, 1, 300, model.TxTypeEntryFee, nil))
	assert.Equal(t, int64(700), userBalance(t, pool, 1))

	require.NoError(t, adapter.Credit(ctx, 1, 100, model.TxTypePrize, nil))
	assert.Equal(t, int64(800), userBalance(t, pool, 1))

	err := adapter.Debit(ctx, 1, 10_000, model.TxTypeEntryFee, nil)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Equal(t, int64(800), userBalance(t, pool, 1), "failed debit must not change the balance")

	err = adapter.Debit(ctx, 404, 10, model.TxTypeEntryFee, nil)
	assert.ErrorIs(t, err, ledger.ErrUnknownUser)
}

func TestLedger_TransferAtomicity(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	createTestUsers(t, pool, 1, 2)
	adapter := ledger.New(pool)
	ctx := context.Background()

	require.NoError(t, adapter.Transfer(ctx, 1, 2, 250, model.TxTypeTransfer, model.TxTypeTransfer))
	assert.Equal(t, int64(750), userBalance(t, pool, 1))
	assert.Equal(t, int64(1250), userBalance(t, pool, 2))

	err := adapter.Transfer(ctx, 1, 2, 5_000, model.TxTypeTransfer, model.TxTypeTransfer)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Equal(t, int64(750), userBalance(t, pool, 1), "failed transfer must roll back fully")
	assert.Equal(t, int64(1250), userBalance(t, pool, 2))
}

// ============================================================================
// EscrowManager
// ============================================================================

func TestEscrow_Join(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	createTestUsers(t, pool, 1, 2, 3)
	s := createWaitingSession(t, pool, 100, 2)
	escrow := NewEscrowManager(pool, ledger.New(pool))
	ctx := context.Background()

	require.NoError(t, escrow.Join(ctx, s.ID, 1))
	assert.Equal(t, int64(900), userBalance(t, pool, 1))

	assert.ErrorIs(t, escrow.Join(ctx, s.ID, 1), ErrAlreadyJoined)
	assert.Equal(t, int64(900), userBalance(t, pool, 1), "rejected join must not debit again")

	require.NoError(t, escrow.Join(ctx, s.ID, 2))
	assert.ErrorIs(t, escrow.Join(ctx, s.ID, 3), ErrSessionFull)
	assert.Equal(t, int64(1000), userBalance(t, pool, 3))
}

func TestEscrow_JoinRejectsNonWaitingSession(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	createTestUsers(t, pool, 1)
	s := createWaitingSession(t, pool, 100, 4)
	sessions := NewSessionRepository(pool)
	ctx := context.Background()

	ok, err := sessions.CompareAndSetStatus(ctx, s.ID, model.StatusWaiting, model.StatusInProgress)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, NewEscrowManager(pool, ledger.New(pool)).Join(ctx, s.ID, 1), ErrSessionNotWaiting)
}

func TestEscrow_JoinInsufficientFunds(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	createTestUsers(t, pool, 1)
	adapter := ledger.New(pool)
	ctx := context.Background()
	require.NoError(t, adapter.Debit(ctx, 1, 950, model.TxTypeEntryFee, nil))

	s := createWaitingSession(t, pool, 100, 4)
	err := NewEscrowManager(pool, adapter).Join(ctx, s.ID, 1)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	joined, err := NewParticipantRepository(pool).IsParticipant(ctx, s.ID, 1)
	require.NoError(t, err)
	assert.False(t, joined, "failed escrow must not leave a participant row")
}

func TestEscrow_RefundIsIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	createTestUsers(t, pool, 1, 2)
	s := createWaitingSession(t, pool, 100, 4)
	escrow := NewEscrowManager(pool, ledger.New(pool))
	ctx := context.Background()

	require.NoError(t, escrow.Join(ctx, s.ID, 1))
	require.NoError(t, escrow.Join(ctx, s.ID, 2))

	credited, err := escrow.Refund(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, credited)
	assert.Equal(t, int64(1000), userBalance(t, pool, 1))
	assert.Equal(t, int64(1000), userBalance(t, pool, 2))

	credited, err = escrow.Refund(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, credited, "second refund must be a no-op")
	assert.Equal(t, int64(1000), userBalance(t, pool, 1))
}

func TestEscrow_SettleIsIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	createTestUsers(t, pool, 1, 2)
	s := createWaitingSession(t, pool, 100, 4)
	escrow := NewEscrowManager(pool, ledger.New(pool))
	ctx := context.Background()

	require.NoError(t, escrow.Join(ctx, s.ID, 1))
	require.NoError(t, escrow.Join(ctx, s.ID, 2))

	applied, err := escrow.Settle(ctx, s.ID, map[int64]int64{1: 200})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(1100), userBalance(t, pool, 1))
	assert.Equal(t, int64(900), userBalance(t, pool, 2))

	applied, err = escrow.Settle(ctx, s.ID, map[int64]int64{1: 200})
	require.NoError(t, err)
	assert.False(t, applied, "second settle must not pay again")
	assert.Equal(t, int64(1100), userBalance(t, pool, 1))

	// A refund after settlement pays nobody.
	credited, err := escrow.Refund(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, credited, "only the unpaid participant is refunded")
	assert.Equal(t, int64(1000), userBalance(t, pool, 2))
}

func TestEscrow_PenalizeCapsAtBalance(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	createTestUsers(t, pool, 1)
	adapter := ledger.New(pool)
	ctx := context.Background()

	s := createWaitingSession(t, pool, 0, 4)
	escrow := NewEscrowManager(pool, adapter)
	require.NoError(t, escrow.Join(ctx, s.ID, 1))
	require.NoError(t, adapter.Debit(ctx, 1, 970, model.TxTypeEntryFee, nil))

	collected, err := escrow.Penalize(ctx, s.ID, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(30), collected)
	assert.Equal(t, int64(0), userBalance(t, pool, 1))
}

func TestEscrow_PenalizeIsIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	createTestUsers(t, pool, 1)
	ctx := context.Background()

	s := createWaitingSession(t, pool, 0, 4)
	escrow := NewEscrowManager(pool, ledger.New(pool))
	require.NoError(t, escrow.Join(ctx, s.ID, 1))

	collected, err := escrow.Penalize(ctx, s.ID, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), collected)
	assert.Equal(t, int64(950), userBalance(t, pool, 1))

	// A replayed settlement reads the collected amount back; no second debit.
	collected, err = escrow.Penalize(ctx, s.ID, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), collected)
	assert.Equal(t, int64(950), userBalance(t, pool, 1))
}

func TestEscrow_ConcurrentJoinsRespectCap(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userIDs := []int64{1, 2, 3, 4, 5, 6}
	createTestUsers(t, pool, userIDs...)
	s := createWaitingSession(t, pool, 100, 3)
	escrow := NewEscrowManager(pool, ledger.New(pool))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, len(userIDs))
	for i, id := range userIDs {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			errs[i] = escrow.Join(ctx, s.ID, id)
		}(i, id)
	}
	wg.Wait()

	joined := 0
	for _, err := range errs {
		if err == nil {
			joined++
		} else {
			assert.ErrorIs(t, err, ErrSessionFull)
		}
	}
	assert.Equal(t, 3, joined, "joins past the cap must lose the row lock race")

	count, err := NewParticipantRepository(pool).Count(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Exactly the three admitted users were debited.
	debited := 0
	for _, id := range userIDs {
		switch userBalance(t, pool, id) {
		case 900:
			debited++
		case 1000:
		default:
			t.Fatalf("user %d has an unexpected balance", id)
		}
	}
	assert.Equal(t, 3, debited)
}

// ============================================================================
// SessionRepository
// ============================================================================

func TestSessionRepository_CompareAndSetStatus(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	createTestUsers(t, pool, 1)
	s := createWaitingSession(t, pool, 0, 4)
	repo := NewSessionRepository(pool)
	ctx := context.Background()

	ok, err := repo.CompareAndSetStatus(ctx, s.ID, model.StatusWaiting, model.StatusInProgress)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CompareAndSetStatus(ctx, s.ID, model.StatusWaiting, model.StatusCancelled)
	require.NoError(t, err)
	assert.False(t, ok, "stale transition must lose the compare-and-set")

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, got.Status)
}

func TestSessionRepository_GetActiveByChat(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	createTestUsers(t, pool, 1)
	s := createWaitingSession(t, pool, 0, 4)
	repo := NewSessionRepository(pool)
	ctx := context.Background()

	active, err := repo.GetActiveByChat(ctx, s.ChatID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, active.ID)

	ok, err := repo.CompareAndSetStatus(ctx, s.ID, model.StatusWaiting, model.StatusCancelled)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = repo.GetActiveByChat(ctx, s.ChatID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionRepository_CreateRejectsSecondLiveInChat(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	createTestUsers(t, pool, 1)
	s := createWaitingSession(t, pool, 0, 4)
	repo := NewSessionRepository(pool)
	ctx := context.Background()

	// A second live session in the same chat loses the unique-index
	// arbitration, closing the check-then-create race.
	_, err := repo.Create(ctx, &model.Session{
		ID:              uuid.NewString(),
		ChatID:          s.ChatID,
		Kind:            model.KindQuiz,
		Status:          model.StatusWaiting,
		CreatorID:       1,
		ParticipantCap:  4,
		MinParticipants: 2,
	})
	assert.ErrorIs(t, err, ErrActiveSessionExists)

	// Once the live session ends the chat is free again.
	ok, err := repo.CompareAndSetStatus(ctx, s.ID, model.StatusWaiting, model.StatusCancelled)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = repo.Create(ctx, &model.Session{
		ID:              uuid.NewString(),
		ChatID:          s.ChatID,
		Kind:            model.KindQuiz,
		Status:          model.StatusWaiting,
		CreatorID:       1,
		ParticipantCap:  4,
		MinParticipants: 2,
	})
	assert.NoError(t, err)
}

func TestSessionRepository_ClaimFirstConcurrent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userIDs := []int64{1, 2, 3, 4}
	createTestUsers(t, pool, userIDs...)
	s := createWaitingSession(t, pool, 0, 4)
	repo := NewSessionRepository(pool)
	escrow := NewEscrowManager(pool, ledger.New(pool))
	ctx := context.Background()

	for _, id := range userIDs {
		require.NoError(t, escrow.Join(ctx, s.ID, id))
	}
	ok, err := repo.CompareAndSetStatus(ctx, s.ID, model.StatusWaiting, model.StatusInProgress)
	require.NoError(t, err)
	require.True(t, ok)

	var wg sync.WaitGroup
	wins := make([]bool, len(userIDs))
	for i, id := range userIDs {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			won, err := repo.ClaimFirst(ctx, s.ID, id)
			assert.NoError(t, err)
			wins[i] = won
		}(i, id)
	}
	wg.Wait()

	winners := 0
	for _, won := range wins {
		if won {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent claim must win")

	// The winner carries rank 1 for post-restart settlement.
	parts, err := NewParticipantRepository(pool).List(ctx, s.ID)
	require.NoError(t, err)
	ranked := 0
	for _, p := range parts {
		if p.Rank == 1 {
			ranked++
		}
	}
	assert.Equal(t, 1, ranked)
}

func TestSessionRepository_ListUnresolved(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	createTestUsers(t, pool, 1)
	repo := NewSessionRepository(pool)
	ctx := context.Background()

	s := createWaitingSession(t, pool, 0, 4)
	past := time.Now().Add(-time.Minute)
	require.NoError(t, repo.SetDeadline(ctx, s.ID, &past))

	fresh := createWaitingSessionInChat(t, pool, -200)
	future := time.Now().Add(time.Hour)
	require.NoError(t, repo.SetDeadline(ctx, fresh.ID, &future))

	due, err := repo.ListUnresolved(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, s.ID, due[0].ID)

	live, err := repo.ListLive(ctx)
	require.NoError(t, err)
	assert.Len(t, live, 2)
}

func createWaitingSessionInChat(t *testing.T, pool *pgxpool.Pool, chatID int64) *model.Session {
	t.Helper()
	s, err := NewSessionRepository(pool).Create(context.Background(), &model.Session{
		ID:              uuid.NewString(),
		ChatID:          chatID,
		Kind:            model.KindQuiz,
		Status:          model.StatusWaiting,
		CreatorID:       1,
		ParticipantCap:  4,
		MinParticipants: 2,
	})
	require.NoError(t, err)
	return s
}

// ============================================================================
// TurnRepository and SubmissionRepository
// ============================================================================

func TestTurnRepository_OpenCloseLifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	createTestUsers(t, pool, 1)
	s := createWaitingSession(t, pool, 0, 4)
	repo := NewTurnRepository(pool)
	ctx := context.Background()
	deadline := time.Now().Add(time.Minute)

	turn, err := repo.Open(ctx, s.ID, 1, "first prompt", deadline)
	require.NoError(t, err)
	assert.Equal(t, 1, turn.TurnNumber)

	open, err := repo.GetOpen(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, turn.ID, open.ID)

	// The partial unique index allows at most one open turn per session.
	_, err = repo.Open(ctx, s.ID, 2, "too early", deadline)
	assert.Error(t, err)

	closed, err := repo.Close(ctx, turn.ID)
	require.NoError(t, err)
	assert.True(t, closed)

	closed, err = repo.Close(ctx, turn.ID)
	require.NoError(t, err)
	assert.False(t, closed, "second close must lose the compare-and-set")

	_, err = repo.GetOpen(ctx, s.ID)
	assert.ErrorIs(t, err, ErrTurnNotFound)

	_, err = repo.Open(ctx, s.ID, 2, "second prompt", deadline)
	require.NoError(t, err)

	count, err := repo.CountBySession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSubmissionRepository_OneAnswerPerUser(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	createTestUsers(t, pool, 1)
	s := createWaitingSession(t, pool, 0, 4)
	turns := NewTurnRepository(pool)
	subs := NewSubmissionRepository(pool)
	ctx := context.Background()

	turn, err := turns.Open(ctx, s.ID, 1, "prompt", time.Now().Add(time.Minute))
	require.NoError(t, err)

	first, err := subs.Insert(ctx, turn.ID, s.ID, 7, "hello", 1200)
	require.NoError(t, err)
	assert.Equal(t, "hello", first.Value)
	assert.Equal(t, int64(1200), first.LatencyMs)
	assert.Equal(t, first.ID, first.ArrivalSeq)

	_, err = subs.Insert(ctx, turn.ID, s.ID, 7, "again", 1300)
	assert.ErrorIs(t, err, ErrDuplicateSubmission)

	_, err = subs.Insert(ctx, turn.ID, s.ID, 8, "other", 1400)
	require.NoError(t, err)

	list, err := subs.ListByTurn(ctx, turn.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(7), list[0].UserID, "list follows acceptance order")

	require.NoError(t, subs.MarkCorrect(ctx, first.ID, true))
	list, err = subs.ListByTurn(ctx, turn.ID)
	require.NoError(t, err)
	require.NotNil(t, list[0].Correct)
	assert.True(t, *list[0].Correct)

	count, err := subs.CountByTurn(ctx, turn.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
