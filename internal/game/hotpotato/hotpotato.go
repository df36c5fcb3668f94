// Package hotpotato implements the hot potato kind: every round all players
// must pass the potato before the timer, the slowest pass scores nothing and
// a missed pass costs a point. When the fuse runs out the lowest score holds
// the potato, pays the penalty, and the rest split the pool.
package hotpotato

import (
	"strconv"

	"chat-game-bot/internal/game"
	"chat-game-bot/internal/model"
)

const (
	// MinFuse and MaxFuse bound the number of rounds before the potato
	// explodes. The actual fuse is fixed per session but hidden from the
	// players.
	MinFuse = 2
	MaxFuse = 5

	// PassPoints is awarded for a pass made before the deadline.
	PassPoints = 1

	// MissPoints is the score hit for failing to pass in time.
	MissPoints = -1
)

// HotPotato implements game.Rules for the hot potato kind.
type HotPotato struct{}

// New creates a HotPotato rules set.
func New() *HotPotato {
	return &HotPotato{}
}

func (h *HotPotato) Kind() model.SessionKind {
	return model.KindHotPotato
}

func (h *HotPotato) Name() string {
	return "Hot Potato"
}

func (h *HotPotato) Description() string {
	return "Pass the potato every round before the timer runs out. Nobody knows when it explodes; whoever is slowest when it does pays the penalty."
}

func (h *HotPotato) TurnBased() bool {
	return true
}

func (h *HotPotato) NextTurn(turnNumber int) game.TurnSpec {
	return game.TurnSpec{
		Prompt: "Round " + strconv.Itoa(turnNumber) + ": the potato is hot! Send anything to pass it on.",
	}
}

// Score rewards everyone who passed except the slowest, and penalizes
// participants who never passed. Submissions arrive in acceptance order, so
// the last element is the slowest pass.
func (h *HotPotato) Score(turn *model.Turn, active []*model.Participant, subs []*model.Submission) []game.ScoreDelta {
	passed := make(map[int64]bool, len(subs))
	for _, sub := range subs {
		passed[sub.UserID] = true
	}

	var slowest int64
	if len(subs) > 0 {
		slowest = subs[len(subs)-1].UserID
	}

	deltas := make([]game.ScoreDelta, 0, len(active))
	for _, p := range active {
		switch {
		case !passed[p.UserID]:
			deltas = append(deltas, game.ScoreDelta{UserID: p.UserID, Delta: MissPoints})
		case p.UserID != slowest || len(subs) == 1:
			deltas = append(deltas, game.ScoreDelta{UserID: p.UserID, Delta: PassPoints})
		}
	}
	return deltas
}

// Continue keeps the potato in the air until the session's hidden fuse runs
// out. The fuse derives from stored identifiers, so it is stable across
// restarts without keeping state between turns.
func (h *HotPotato) Continue(turnNumber int, participants []*model.Participant) bool {
	if len(participants) == 0 {
		return false
	}
	fuse := MinFuse + int(game.Seed(participants[0].SessionID, 0)%(MaxFuse-MinFuse+1))
	return turnNumber < fuse
}

func (h *HotPotato) SettleMode() game.SettleMode {
	return game.SettlePenaltyEvenSplit
}
