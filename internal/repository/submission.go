package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat-game-bot/internal/model"
)

// ErrDuplicateSubmission is returned when a user already has a submission
// for the turn.
var ErrDuplicateSubmission = errors.New("duplicate submission")

const submissionColumns = `id, turn_id, session_id, user_id, value, submitted_at, correct, latency_ms`

// SubmissionRepository handles per-turn answer persistence. The unique
// constraint on (turn_id, user_id) is the arbitration point for duplicate
// answers: of two racing inserts exactly one lands.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository instance.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// Insert records a submission. Returns ErrDuplicateSubmission when the user
// already submitted for this turn.
func (r *SubmissionRepository) Insert(ctx context.Context, turnID int64, sessionID string, userID int64, value string, latencyMs int64) (*model.Submission, error) {
	const query = `
		INSERT INTO submissions (turn_id, session_id, user_id, value, submitted_at, latency_ms)
		VALUES ($1, $2, $3, $4, NOW(), $5)
		ON CONFLICT (turn_id, user_id) DO NOTHING
		RETURNING ` + submissionColumns

	var s model.Submission
	err := r.pool.QueryRow(ctx, query, turnID, sessionID, userID, value, latencyMs).Scan(
		&s.ID, &s.TurnID, &s.SessionID, &s.UserID, &s.Value, &s.SubmittedAt, &s.Correct, &s.LatencyMs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDuplicateSubmission
		}
		return nil, fmt.Errorf("failed to insert submission: %w", err)
	}

	s.ArrivalSeq = s.ID
	return &s, nil
}

// ListByTurn returns a turn's submissions in arrival order.
func (r *SubmissionRepository) ListByTurn(ctx context.Context, turnID int64) ([]*model.Submission, error) {
	const query = `
		SELECT ` + submissionColumns + `
		FROM submissions
		WHERE turn_id = $1
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, turnID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var submissions []*model.Submission
	for rows.Next() {
		var s model.Submission
		err := rows.Scan(&s.ID, &s.TurnID, &s.SessionID, &s.UserID, &s.Value, &s.SubmittedAt, &s.Correct, &s.LatencyMs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		s.ArrivalSeq = s.ID
		submissions = append(submissions, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating submissions: %w", err)
	}

	return submissions, nil
}

// CountByTurn returns how many submissions a turn has received.
func (r *SubmissionRepository) CountByTurn(ctx context.Context, turnID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM submissions WHERE turn_id = $1`, turnID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count submissions: %w", err)
	}
	return count, nil
}

// MarkCorrect stores the scoring verdict for a submission.
func (r *SubmissionRepository) MarkCorrect(ctx context.Context, id int64, correct bool) error {
	const query = `UPDATE submissions SET correct = $2 WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id, correct); err != nil {
		return fmt.Errorf("failed to mark submission: %w", err)
	}
	return nil
}
