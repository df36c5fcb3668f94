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

const turnColumns = `id, session_id, turn_number, prompt, deadline, closed, created_at`

// TurnRepository handles turn persistence. A partial unique index on
// (session_id) WHERE NOT closed guarantees at most one open turn per session.
type TurnRepository struct {
	pool *pgxpool.Pool
}

// NewTurnRepository creates a new TurnRepository instance.
func NewTurnRepository(pool *pgxpool.Pool) *TurnRepository {
	return &TurnRepository{pool: pool}
}

func scanTurn(row pgx.Row) (*model.Turn, error) {
	var t model.Turn
	err := row.Scan(&t.ID, &t.SessionID, &t.TurnNumber, &t.Prompt, &t.Deadline, &t.Closed, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTurnNotFound
		}
		return nil, fmt.Errorf("failed to scan turn: %w", err)
	}
	return &t, nil
}

// Open inserts a new open turn for the session.
func (r *TurnRepository) Open(ctx context.Context, sessionID string, turnNumber int, prompt string, deadline time.Time) (*model.Turn, error) {
	const query = `
		INSERT INTO turns (session_id, turn_number, prompt, deadline, closed, created_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW())
		RETURNING ` + turnColumns

	turn, err := scanTurn(r.pool.QueryRow(ctx, query, sessionID, turnNumber, prompt, deadline))
	if err != nil {
		return nil, fmt.Errorf("failed to open turn: %w", err)
	}
	return turn, nil
}

// GetByID retrieves a turn by its ID.
func (r *TurnRepository) GetByID(ctx context.Context, id int64) (*model.Turn, error) {
	const query = `SELECT ` + turnColumns + ` FROM turns WHERE id = $1`
	return scanTurn(r.pool.QueryRow(ctx, query, id))
}

// GetOpen retrieves the session's open turn, if any.
func (r *TurnRepository) GetOpen(ctx context.Context, sessionID string) (*model.Turn, error) {
	const query = `SELECT ` + turnColumns + ` FROM turns WHERE session_id = $1 AND NOT closed`
	return scanTurn(r.pool.QueryRow(ctx, query, sessionID))
}

// Close flips the turn's closed flag. Returns false when the turn was
// already closed, which makes deadline firings idempotent.
func (r *TurnRepository) Close(ctx context.Context, id int64) (bool, error) {
	const query = `UPDATE turns SET closed = TRUE WHERE id = $1 AND NOT closed`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to close turn %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// CountBySession returns how many turns the session has run.
func (r *TurnRepository) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM turns WHERE session_id = $1`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count turns: %w", err)
	}
	return count, nil
}
