// Package claimfirst implements the claim-first kind: no turns, a single
// claim window, and the whole pool for whoever claims first.
package claimfirst

import (
	"chat-game-bot/internal/game"
	"chat-game-bot/internal/model"
)

// ClaimFirst implements game.Rules for the claim-first kind. All the
// interesting behavior lives in the engine's claim arbitration; the rules
// only declare the kind non-turn-based.
type ClaimFirst struct{}

// New creates a ClaimFirst rules set.
func New() *ClaimFirst {
	return &ClaimFirst{}
}

func (c *ClaimFirst) Kind() model.SessionKind {
	return model.KindClaimFirst
}

func (c *ClaimFirst) Name() string {
	return "Claim First"
}

func (c *ClaimFirst) Description() string {
	return "When the round opens, be the first to hit the claim button. Winner takes the whole pot."
}

func (c *ClaimFirst) TurnBased() bool {
	return false
}

func (c *ClaimFirst) NextTurn(turnNumber int) game.TurnSpec {
	return game.TurnSpec{}
}

func (c *ClaimFirst) Score(turn *model.Turn, active []*model.Participant, subs []*model.Submission) []game.ScoreDelta {
	return nil
}

func (c *ClaimFirst) Continue(turnNumber int, participants []*model.Participant) bool {
	return false
}

func (c *ClaimFirst) SettleMode() game.SettleMode {
	return game.SettleRankedSplit
}
