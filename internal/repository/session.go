package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat-game-bot/internal/model"
)

const sessionColumns = `
	id, chat_id, kind, status, creator_id, entry_fee, participant_cap,
	min_participants, deadline, claimed, settled, refunded, created_at, updated_at
`

// ErrActiveSessionExists is returned when a chat already has a live session.
var ErrActiveSessionExists = errors.New("chat already has a live session")

// SessionRepository handles game session persistence. Status changes go
// through compare-and-set so that racing timers and user actions can never
// apply the same transition twice.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func scanSession(row pgx.Row) (*model.Session, error) {
	var s model.Session
	err := row.Scan(
		&s.ID, &s.ChatID, &s.Kind, &s.Status, &s.CreatorID, &s.EntryFee,
		&s.ParticipantCap, &s.MinParticipants, &s.Deadline, &s.Claimed,
		&s.Settled, &s.Refunded, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return &s, nil
}

// Create persists a new Waiting session. The partial unique index on live
// sessions per chat arbitrates racing creates: the loser gets
// ErrActiveSessionExists instead of a second live session.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) (*model.Session, error) {
	const query = `
		INSERT INTO sessions (
			id, chat_id, kind, status, creator_id, entry_fee, participant_cap,
			min_participants, deadline, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (chat_id) WHERE status IN ('waiting', 'in_progress') DO NOTHING
		RETURNING ` + sessionColumns

	created, err := scanSession(r.pool.QueryRow(ctx, query,
		s.ID, s.ChatID, s.Kind, s.Status, s.CreatorID, s.EntryFee,
		s.ParticipantCap, s.MinParticipants, s.Deadline,
	))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrActiveSessionExists
		}
		return nil, err
	}
	return created, nil
}

// GetByID retrieves a session by its ID.
// Returns ErrSessionNotFound if the session does not exist.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanSession(r.pool.QueryRow(ctx, query, id))
}

// GetActiveByChat retrieves the live (Waiting or InProgress) session for a
// chat, if any.
func (r *SessionRepository) GetActiveByChat(ctx context.Context, chatID int64) (*model.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE chat_id = $1 AND status IN ('waiting', 'in_progress')
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanSession(r.pool.QueryRow(ctx, query, chatID))
}

// CompareAndSetStatus transitions a session from one status to another.
// Returns false without error when the session was no longer in the expected
// status, which makes timer firings idempotent.
func (r *SessionRepository) CompareAndSetStatus(ctx context.Context, id string, from, to model.SessionStatus) (bool, error) {
	const query = `
		UPDATE sessions
		SET status = $3, updated_at = NOW(),
		    deadline = CASE WHEN $3 IN ('completed', 'cancelled') THEN NULL ELSE deadline END
		WHERE id = $1 AND status = $2
	`
	tag, err := r.pool.Exec(ctx, query, id, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to transition session %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetDeadline updates the session's next time-driven transition point.
func (r *SessionRepository) SetDeadline(ctx context.Context, id string, deadline *time.Time) error {
	const query = `UPDATE sessions SET deadline = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, deadline)
	if err != nil {
		return fmt.Errorf("failed to set session deadline: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ClaimFirst performs the first-claim-wins compare-and-set. Exactly one of
// any number of concurrent callers observes claimed false->true and gets
// true back; everyone else gets false. The winner's rank is recorded in the
// same transaction so a crash between claim and settlement cannot lose the
// winner's identity.
func (r *SessionRepository) ClaimFirst(ctx context.Context, id string, userID int64) (bool, error) {
	var won bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		won = false
		tag, err := tx.Exec(ctx, `
			UPDATE sessions
			SET claimed = TRUE, updated_at = NOW()
			WHERE id = $1 AND claimed = FALSE AND status = 'in_progress'
		`, id)
		if err != nil {
			return fmt.Errorf("failed to claim session %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx,
			`UPDATE participants SET rank = 1 WHERE session_id = $1 AND user_id = $2`,
			id, userID,
		); err != nil {
			return fmt.Errorf("failed to record claim winner: %w", err)
		}
		won = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

// MarkSettled flips the session's settled flag. Returns false when the
// session was already settled, making settlement idempotent.
func (r *SessionRepository) MarkSettled(ctx context.Context, id string) (bool, error) {
	const query = `
		UPDATE sessions
		SET settled = TRUE, updated_at = NOW()
		WHERE id = $1 AND settled = FALSE
	`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark session settled: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListUnresolved returns live sessions whose deadline elapsed before now.
// After a restart these are sessions whose in-memory timers were lost.
func (r *SessionRepository) ListUnresolved(ctx context.Context, now time.Time) ([]*model.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE status IN ('waiting', 'in_progress') AND deadline IS NOT NULL AND deadline <= $1
		ORDER BY deadline
	`
	return r.list(ctx, query, now)
}

// ListLive returns all Waiting and InProgress sessions, used to re-arm
// timers on startup.
func (r *SessionRepository) ListLive(ctx context.Context) ([]*model.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE status IN ('waiting', 'in_progress')
		ORDER BY created_at
	`
	return r.list(ctx, query)
}

func (r *SessionRepository) list(ctx context.Context, query string, args ...any) ([]*model.Session, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}
