// Package game defines the per-kind rules interface and registry for the
// session engine. A kind plugs into the engine by implementing Rules; the
// engine owns the lifecycle (escrow, timers, arbitration, settlement) and
// delegates only turn content, scoring and continuation to the rules.
package game

import (
	"time"

	"chat-game-bot/internal/model"
)

// SettleMode selects how the engine distributes the prize pool at completion.
type SettleMode int

const (
	// SettleRankedSplit distributes the pool by final rank using the
	// percentage table (70/30, 60/25/15, ...).
	SettleRankedSplit SettleMode = iota
	// SettleSurvivorTakesAll gives the whole pool to the last participant
	// standing (elimination kinds).
	SettleSurvivorTakesAll
	// SettlePenaltyEvenSplit collects a penalty from the loser and splits
	// the pool evenly among everyone else (e.g. hot potato).
	SettlePenaltyEvenSplit
)

// TurnSpec describes one turn the engine should open.
type TurnSpec struct {
	// Prompt is the kind-specific content shown to participants. The engine
	// treats it as opaque.
	Prompt string
	// Timeout overrides the configured per-turn deadline when positive.
	Timeout time.Duration
}

// ScoreDelta is one participant's outcome for a closed turn.
type ScoreDelta struct {
	UserID    int64
	Delta     int64
	Eliminate bool
	// Correct, when set, is stored on the participant's submission for
	// this turn.
	Correct *bool
}

// Rules defines the kind-specific behavior a game contributes to the
// session engine.
type Rules interface {
	// Kind identifies the game this rules set implements.
	Kind() model.SessionKind

	// Name returns the game's display name.
	Name() string

	// Description returns a brief description of the game.
	Description() string

	// TurnBased reports whether sessions of this kind run turns.
	// Claim-first kinds return false and settle through the claim path.
	TurnBased() bool

	// NextTurn returns the spec for turn n (numbered from 1).
	NextTurn(turnNumber int) TurnSpec

	// Score evaluates a closed turn. Submissions arrive in acceptance
	// order; active holds the participants still in the game.
	Score(turn *model.Turn, active []*model.Participant, subs []*model.Submission) []ScoreDelta

	// Continue reports whether another turn should be opened after
	// turnNumber closed. participants reflects scores and eliminations
	// applied for that turn.
	Continue(turnNumber int, participants []*model.Participant) bool

	// SettleMode selects the payout distribution at completion.
	SettleMode() SettleMode
}
