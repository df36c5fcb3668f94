package session

import (
	"github.com/rs/zerolog/log"

	"chat-game-bot/internal/game"
	"chat-game-bot/internal/model"
)

// Snapshot is a read-only view of a session handed to callers and notifiers.
type Snapshot struct {
	Session      *model.Session
	Participants []*model.Participant
	OpenTurn     *model.Turn
}

// TurnResults carries a closed turn's outcome to the notification layer.
type TurnResults struct {
	Turn        *model.Turn
	Submissions []*model.Submission
	Deltas      []game.ScoreDelta
}

// Notifier receives lifecycle events for rendering. Calls are fire-and-forget:
// the engine invokes them on separate goroutines and a failing or panicking
// notifier never affects session state.
type Notifier interface {
	PhaseChanged(sessionID string, status model.SessionStatus, snapshot *Snapshot)
	TurnOpened(sessionID string, turn *model.Turn)
	TurnClosed(sessionID string, results *TurnResults)
	Settled(sessionID string, payouts map[int64]int64)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) PhaseChanged(string, model.SessionStatus, *Snapshot) {}
func (NopNotifier) TurnOpened(string, *model.Turn)                      {}
func (NopNotifier) TurnClosed(string, *TurnResults)                     {}
func (NopNotifier) Settled(string, map[int64]int64)                     {}

// dispatch runs a notifier call on its own goroutine, containing panics.
func dispatch(sessionID, event string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("session_id", sessionID).
					Str("event", event).
					Any("panic", r).
					Msg("Notifier panicked")
			}
		}()
		fn()
	}()
}
