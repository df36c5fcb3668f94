package session

import (
	"context"
	"time"

	"chat-game-bot/internal/model"
)

// SessionStore is the durable session record boundary the engine drives.
// Compare-and-set semantics on status, claim and settlement flags are what
// make timer firings and settlement idempotent.
type SessionStore interface {
	Create(ctx context.Context, s *model.Session) (*model.Session, error)
	GetByID(ctx context.Context, id string) (*model.Session, error)
	GetActiveByChat(ctx context.Context, chatID int64) (*model.Session, error)
	CompareAndSetStatus(ctx context.Context, id string, from, to model.SessionStatus) (bool, error)
	SetDeadline(ctx context.Context, id string, deadline *time.Time) error
	ClaimFirst(ctx context.Context, id string, userID int64) (bool, error)
	ListUnresolved(ctx context.Context, now time.Time) ([]*model.Session, error)
	ListLive(ctx context.Context) ([]*model.Session, error)
}

// ParticipantStore is the session membership boundary.
type ParticipantStore interface {
	List(ctx context.Context, sessionID string) ([]*model.Participant, error)
	Count(ctx context.Context, sessionID string) (int, error)
	IsParticipant(ctx context.Context, sessionID string, userID int64) (bool, error)
	AddScore(ctx context.Context, sessionID string, userID, delta int64) error
	SetEliminated(ctx context.Context, sessionID string, userID int64) error
	SetRank(ctx context.Context, sessionID string, userID int64, rank int) error
}

// TurnStore is the turn record boundary. Close is compare-and-set.
type TurnStore interface {
	Open(ctx context.Context, sessionID string, turnNumber int, prompt string, deadline time.Time) (*model.Turn, error)
	GetByID(ctx context.Context, id int64) (*model.Turn, error)
	GetOpen(ctx context.Context, sessionID string) (*model.Turn, error)
	Close(ctx context.Context, id int64) (bool, error)
	CountBySession(ctx context.Context, sessionID string) (int, error)
}

// SubmissionStore is the per-turn answer boundary. Insert must reject a
// second submission for the same (turn, user) with
// repository.ErrDuplicateSubmission.
type SubmissionStore interface {
	Insert(ctx context.Context, turnID int64, sessionID string, userID int64, value string, latencyMs int64) (*model.Submission, error)
	ListByTurn(ctx context.Context, turnID int64) ([]*model.Submission, error)
	CountByTurn(ctx context.Context, turnID int64) (int, error)
	MarkCorrect(ctx context.Context, id int64, correct bool) error
}

// Escrow is the money boundary: join-time debit, exit-time credit, with
// exactly-once settlement per participant per session.
type Escrow interface {
	Join(ctx context.Context, sessionID string, userID int64) error
	Refund(ctx context.Context, sessionID string) (int, error)
	Settle(ctx context.Context, sessionID string, payouts map[int64]int64) (bool, error)
	Penalize(ctx context.Context, sessionID string, userID, amount int64) (int64, error)
}
