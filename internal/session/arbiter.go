package session

import (
	"context"
	"errors"
	"time"

	"chat-game-bot/internal/model"
	"chat-game-bot/internal/repository"
)

// Arbitrator resolves concurrent submissions against stored session and turn
// state. Both disciplines reduce to a single compare-and-set in the store:
// the claim flag for first-claim-wins, the (turn, user) uniqueness for
// per-turn single answers. Two racing callers can therefore never both be
// accepted as first.
type Arbitrator struct {
	sessions    SessionStore
	submissions SubmissionStore
	now         func() time.Time
}

// NewArbitrator creates an Arbitrator.
func NewArbitrator(sessions SessionStore, submissions SubmissionStore) *Arbitrator {
	return &Arbitrator{
		sessions:    sessions,
		submissions: submissions,
		now:         time.Now,
	}
}

// Claim attempts the first-claim-wins compare-and-set for userID. Exactly
// one concurrent caller wins; the rest get ErrAlreadyClaimed.
func (a *Arbitrator) Claim(ctx context.Context, sessionID string, userID int64) error {
	won, err := a.sessions.ClaimFirst(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if !won {
		return ErrAlreadyClaimed
	}
	return nil
}

// Submit records a single answer for the turn. Rejects submissions after the
// turn closed or its deadline passed (ErrTooLate) and second submissions
// from the same user (ErrDuplicateAnswer). Decisions are made against the
// stored turn state at arrival; the store's uniqueness constraint is the
// serialization point for racing duplicates.
func (a *Arbitrator) Submit(ctx context.Context, turn *model.Turn, userID int64, value string) (*model.Submission, error) {
	now := a.now()
	if turn.Closed || now.After(turn.Deadline) {
		return nil, ErrTooLate
	}

	latency := now.Sub(turn.CreatedAt).Milliseconds()
	sub, err := a.submissions.Insert(ctx, turn.ID, turn.SessionID, userID, value, latency)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateSubmission) {
			return nil, ErrDuplicateAnswer
		}
		return nil, err
	}

	return sub, nil
}
