// Package treasurehunt implements the treasure hunt kind: a fixed number of
// turns, each hiding treasure in one of nine spots, cumulative score and a
// rank-split payout.
package treasurehunt

import (
	"strconv"
	"strings"

	"chat-game-bot/internal/game"
	"chat-game-bot/internal/model"
)

const (
	// DefaultTurns is the number of dig rounds per session.
	DefaultTurns = 4

	// Spots is the number of dig spots per round.
	Spots = 9

	// HitPoints is awarded for digging the treasure spot.
	HitPoints = 10

	// NearPoints is awarded for digging a spot adjacent to the treasure.
	NearPoints = 3
)

// Config holds configuration for the treasure hunt kind.
type Config struct {
	Turns int
}

// TreasureHunt implements game.Rules for the treasure hunt kind.
type TreasureHunt struct {
	turns int
}

// New creates a TreasureHunt with the given configuration.
func New(cfg *Config) *TreasureHunt {
	turns := DefaultTurns
	if cfg != nil && cfg.Turns > 0 {
		turns = cfg.Turns
	}
	return &TreasureHunt{turns: turns}
}

func (t *TreasureHunt) Kind() model.SessionKind {
	return model.KindTreasureHunt
}

func (t *TreasureHunt) Name() string {
	return "Treasure Hunt"
}

func (t *TreasureHunt) Description() string {
	return "Each round, pick a dig spot from 1 to 9. Hit the treasure for big points, dig next to it for a few."
}

func (t *TreasureHunt) TurnBased() bool {
	return true
}

func (t *TreasureHunt) NextTurn(turnNumber int) game.TurnSpec {
	return game.TurnSpec{
		Prompt: "Round " + strconv.Itoa(turnNumber) + ": where do you dig? Pick a spot from 1 to 9.",
	}
}

// Score compares each dig against the turn's treasure spot. The spot is
// derived from stored identifiers, so grading survives a process restart.
func (t *TreasureHunt) Score(turn *model.Turn, active []*model.Participant, subs []*model.Submission) []game.ScoreDelta {
	treasure := treasureSpot(turn.SessionID, turn.TurnNumber)

	deltas := make([]game.ScoreDelta, 0, len(subs))
	for _, sub := range subs {
		spot, err := strconv.Atoi(strings.TrimSpace(sub.Value))
		if err != nil || spot < 1 || spot > Spots {
			continue
		}
		hit := spot == treasure
		delta := game.ScoreDelta{UserID: sub.UserID, Correct: &hit}
		switch {
		case hit:
			delta.Delta = HitPoints
		case spot == treasure-1 || spot == treasure+1:
			delta.Delta = NearPoints
		}
		deltas = append(deltas, delta)
	}
	return deltas
}

func (t *TreasureHunt) Continue(turnNumber int, participants []*model.Participant) bool {
	return turnNumber < t.turns
}

func (t *TreasureHunt) SettleMode() game.SettleMode {
	return game.SettleRankedSplit
}

func treasureSpot(sessionID string, turnNumber int) int {
	return int(game.Seed(sessionID, turnNumber)%Spots) + 1
}
