package session

import "errors"

// Business errors surfaced by the engine as denial reasons. Store and ledger
// I/O failures are returned wrapped instead and indicate a system fault.
var (
	// ErrInvalidState is returned when an operation is not valid for the
	// session's current status.
	ErrInvalidState = errors.New("operation not valid in current session state")
	// ErrUnknownKind is returned when no rules are registered for the
	// requested session kind.
	ErrUnknownKind = errors.New("unknown session kind")
	// ErrNotParticipant is returned when the user has not joined the session.
	ErrNotParticipant = errors.New("user is not a participant")
	// ErrEliminated is returned when an eliminated participant submits.
	ErrEliminated = errors.New("participant is eliminated")
	// ErrDuplicateAnswer is returned on a second submission for the same turn.
	ErrDuplicateAnswer = errors.New("already answered this turn")
	// ErrTooLate is returned when a submission arrives after the turn closed.
	ErrTooLate = errors.New("turn is closed")
	// ErrAlreadyClaimed is returned when the session's reward was claimed
	// by an earlier caller.
	ErrAlreadyClaimed = errors.New("already claimed")
	// ErrInvalidConfig is returned when session parameters are out of range.
	ErrInvalidConfig = errors.New("invalid session parameters")
	// ErrChatBusy is returned when the chat already has a live session.
	ErrChatBusy = errors.New("chat already has an active session")
)
