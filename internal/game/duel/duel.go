// Package duel implements the two-player duel kind: best-of-N rounds of
// rock-paper-scissors, winner takes the pool through the two-player rank
// split.
package duel

import (
	"strconv"
	"strings"

	"chat-game-bot/internal/game"
	"chat-game-bot/internal/model"
)

// DefaultBestOf is the number of round wins needed, best-of style.
const DefaultBestOf = 3

// beats maps each throw to the throw it defeats.
var beats = map[string]string{
	"rock":     "scissors",
	"paper":    "rock",
	"scissors": "paper",
}

// Config holds configuration for the duel kind.
type Config struct {
	BestOf int
}

// Duel implements game.Rules for the duel kind.
type Duel struct {
	bestOf int
}

// New creates a Duel with the given configuration. Even BestOf values are
// rounded up so a winner always exists.
func New(cfg *Config) *Duel {
	bestOf := DefaultBestOf
	if cfg != nil && cfg.BestOf > 0 {
		bestOf = cfg.BestOf
	}
	if bestOf%2 == 0 {
		bestOf++
	}
	return &Duel{bestOf: bestOf}
}

func (d *Duel) Kind() model.SessionKind {
	return model.KindDuel
}

func (d *Duel) Name() string {
	return "Duel"
}

func (d *Duel) Description() string {
	return "Two players, rock-paper-scissors, best of " + strconv.Itoa(d.bestOf) + ". Winner takes the pot."
}

func (d *Duel) TurnBased() bool {
	return true
}

func (d *Duel) NextTurn(turnNumber int) game.TurnSpec {
	return game.TurnSpec{Prompt: "Round " + strconv.Itoa(turnNumber) + ": rock, paper or scissors?"}
}

// Score decides one round. A valid throw beats an invalid or missing one;
// identical throws push. The round winner gets a point.
func (d *Duel) Score(turn *model.Turn, active []*model.Participant, subs []*model.Submission) []game.ScoreDelta {
	if len(active) != 2 {
		return nil
	}

	throws := make(map[int64]string, len(subs))
	for _, sub := range subs {
		throws[sub.UserID] = normalize(sub.Value)
	}

	a, b := active[0].UserID, active[1].UserID
	winner, ok := roundWinner(a, throws[a], b, throws[b])
	if !ok {
		return nil
	}
	return []game.ScoreDelta{{UserID: winner, Delta: 1}}
}

// Continue runs rounds until one player has the majority of wins. Pushes
// don't count, so a match can exceed bestOf rounds; MaxRounds caps stalls.
func (d *Duel) Continue(turnNumber int, participants []*model.Participant) bool {
	if turnNumber >= d.MaxRounds() {
		return false
	}
	need := int64(d.bestOf/2 + 1)
	for _, p := range participants {
		if p.Score >= need {
			return false
		}
	}
	return true
}

// MaxRounds is the hard cap on rounds, leaving slack for pushes.
func (d *Duel) MaxRounds() int {
	return d.bestOf * 2
}

func (d *Duel) SettleMode() game.SettleMode {
	return game.SettleRankedSplit
}

func roundWinner(a int64, throwA string, b int64, throwB string) (int64, bool) {
	okA := beats[throwA] != ""
	okB := beats[throwB] != ""
	switch {
	case okA && !okB:
		return a, true
	case okB && !okA:
		return b, true
	case !okA && !okB, throwA == throwB:
		return 0, false
	case beats[throwA] == throwB:
		return a, true
	default:
		return b, true
	}
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
