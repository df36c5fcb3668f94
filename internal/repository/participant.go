package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"chat-game-bot/internal/model"
)

const participantColumns = `
	session_id, user_id, joined_at, escrowed, refunded, paid, penalized, score, eliminated, rank
`

// ParticipantRepository handles session membership records. Inserts happen
// only inside the escrow join transaction; this repository covers reads and
// score/rank updates.
type ParticipantRepository struct {
	pool *pgxpool.Pool
}

// NewParticipantRepository creates a new ParticipantRepository instance.
func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{pool: pool}
}

// List returns a session's participants in join order.
func (r *ParticipantRepository) List(ctx context.Context, sessionID string) ([]*model.Participant, error) {
	const query = `
		SELECT ` + participantColumns + `
		FROM participants
		WHERE session_id = $1
		ORDER BY joined_at, user_id
	`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var participants []*model.Participant
	for rows.Next() {
		var p model.Participant
		err := rows.Scan(
			&p.SessionID, &p.UserID, &p.JoinedAt, &p.Escrowed, &p.Refunded,
			&p.Paid, &p.Penalized, &p.Score, &p.Eliminated, &p.Rank,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}

	return participants, nil
}

// Count returns the number of participants in a session.
func (r *ParticipantRepository) Count(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM participants WHERE session_id = $1`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}
	return count, nil
}

// IsParticipant reports whether the user has joined the session.
func (r *ParticipantRepository) IsParticipant(ctx context.Context, sessionID string, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM participants WHERE session_id = $1 AND user_id = $2)`,
		sessionID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return exists, nil
}

// AddScore adds delta to a participant's score.
func (r *ParticipantRepository) AddScore(ctx context.Context, sessionID string, userID, delta int64) error {
	const query = `
		UPDATE participants
		SET score = score + $3
		WHERE session_id = $1 AND user_id = $2
	`
	tag, err := r.pool.Exec(ctx, query, sessionID, userID, delta)
	if err != nil {
		return fmt.Errorf("failed to add score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetEliminated marks a participant as out of the game.
func (r *ParticipantRepository) SetEliminated(ctx context.Context, sessionID string, userID int64) error {
	const query = `
		UPDATE participants
		SET eliminated = TRUE
		WHERE session_id = $1 AND user_id = $2
	`
	tag, err := r.pool.Exec(ctx, query, sessionID, userID)
	if err != nil {
		return fmt.Errorf("failed to eliminate participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetRank records a participant's final rank at settlement.
func (r *ParticipantRepository) SetRank(ctx context.Context, sessionID string, userID int64, rank int) error {
	const query = `
		UPDATE participants
		SET rank = $3
		WHERE session_id = $1 AND user_id = $2
	`
	tag, err := r.pool.Exec(ctx, query, sessionID, userID, rank)
	if err != nil {
		return fmt.Errorf("failed to set rank: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
