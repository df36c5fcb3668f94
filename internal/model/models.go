// Package model defines the data models for the chat game bot.
package model

import "time"

// SessionStatus is the lifecycle phase of a game session.
type SessionStatus string

// Session lifecycle states. Transitions only move forward:
// Waiting -> InProgress -> Completed, Waiting -> Cancelled,
// InProgress -> Cancelled.
const (
	StatusWaiting    SessionStatus = "waiting"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusCancelled  SessionStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// SessionKind identifies which game a session runs.
type SessionKind string

// Known session kinds.
const (
	KindQuiz         SessionKind = "quiz"
	KindDuel         SessionKind = "duel"
	KindWordChain    SessionKind = "wordchain"
	KindClaimFirst   SessionKind = "claimfirst"
	KindTreasureHunt SessionKind = "treasurehunt"
	KindHotPotato    SessionKind = "hotpotato"
)

// Session represents one timed group activity backed by escrowed entry fees.
type Session struct {
	ID              string        `db:"id"`
	ChatID          int64         `db:"chat_id"`
	Kind            SessionKind   `db:"kind"`
	Status          SessionStatus `db:"status"`
	CreatorID       int64         `db:"creator_id"`
	EntryFee        int64         `db:"entry_fee"`
	ParticipantCap  int           `db:"participant_cap"`
	MinParticipants int           `db:"min_participants"`
	// Deadline is the next time-driven transition for this session: the end
	// of the wait window while Waiting, the open turn's deadline while
	// InProgress. NULL once terminal.
	Deadline  *time.Time `db:"deadline"`
	Claimed   bool       `db:"claimed"`
	Settled   bool       `db:"settled"`
	Refunded  bool       `db:"refunded"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
}

// PrizePool is the escrowed total for n settled participants.
func (s *Session) PrizePool(participants int) int64 {
	return s.EntryFee * int64(participants)
}

// Participant is one user's membership in a session.
// A participant row exists if and only if the matching entry-fee debit was
// applied; both happen in one store transaction.
type Participant struct {
	SessionID  string    `db:"session_id"`
	UserID     int64     `db:"user_id"`
	JoinedAt   time.Time `db:"joined_at"`
	Escrowed   bool      `db:"escrowed"`
	Refunded   bool      `db:"refunded"`
	Paid       bool      `db:"paid"`
	Penalized  bool      `db:"penalized"`
	Score      int64     `db:"score"`
	Eliminated bool      `db:"eliminated"`
	Rank       int       `db:"rank"`
}

// Turn is one bounded round within a turn-based session.
// At most one open turn exists per session.
type Turn struct {
	ID         int64     `db:"id"`
	SessionID  string    `db:"session_id"`
	TurnNumber int       `db:"turn_number"`
	Prompt     string    `db:"prompt"`
	Deadline   time.Time `db:"deadline"`
	Closed     bool      `db:"closed"`
	CreatedAt  time.Time `db:"created_at"`
}

// Submission is one participant's answer within a turn.
// At most one submission exists per (turn, user).
type Submission struct {
	ID          int64     `db:"id"`
	TurnID      int64     `db:"turn_id"`
	SessionID   string    `db:"session_id"`
	UserID      int64     `db:"user_id"`
	Value       string    `db:"value"`
	SubmittedAt time.Time `db:"submitted_at"`
	// ArrivalSeq orders submissions within a turn by acceptance order. It is
	// the tie-break for fastest-correct scoring; wall-clock timestamps are
	// informational only.
	ArrivalSeq int64 `db:"arrival_seq"`
	Correct    *bool `db:"correct"`
	LatencyMs  int64 `db:"latency_ms"`
}

// User represents a chat user account in the game system.
type User struct {
	TelegramID     int64     `db:"telegram_id"`
	Username       string    `db:"username"`
	Balance        int64     `db:"balance"`
	LastDailyClaim int64     `db:"last_daily_claim"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// LedgerEntry is an append-only balance change record. A user's balance is
// the running sum of their entries.
type LedgerEntry struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	Amount      int64     `db:"amount"`
	Type        string    `db:"type"`
	SessionID   *string   `db:"session_id"`
	Description *string   `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

// Ledger entry types for categorizing balance changes.
const (
	TxTypeInitial  = "initial"   // Initial balance on account creation
	TxTypeDaily    = "daily"     // Daily reward claim
	TxTypeTransfer = "transfer"  // User-to-user transfer
	TxTypeEntryFee = "entry_fee" // Session entry fee escrow
	TxTypeRefund   = "refund"    // Entry fee returned on cancellation
	TxTypePrize    = "prize"     // Session payout
	TxTypePenalty  = "penalty"   // Penalty-kind loss (e.g. hot potato)
	TxTypeAdminAdd = "admin_add" // Admin added balance
	TxTypeAdminSub = "admin_sub" // Admin subtracted balance
	TxTypeAdminSet = "admin_set" // Admin set balance
)

// GameTransactionTypes returns the ledger entry types that count towards
// daily game rankings (transfers and daily rewards excluded).
func GameTransactionTypes() []string {
	return []string{TxTypeEntryFee, TxTypeRefund, TxTypePrize, TxTypePenalty}
}

// DailyRank represents a user's daily game performance for ranking.
type DailyRank struct {
	UserID    int64  `db:"user_id"`
	Username  string `db:"username"`
	NetProfit int64  `db:"net_profit"`
}
