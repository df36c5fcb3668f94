// Package quiz implements the trivia quiz kind: a fixed number of question
// turns, points for correct answers, a speed bonus for the fastest correct
// one, and a rank-split payout.
package quiz

import (
	"strings"

	"chat-game-bot/internal/game"
	"chat-game-bot/internal/model"
)

const (
	// DefaultTurns is the number of questions per session.
	DefaultTurns = 5

	// DefaultSpeedBonus is awarded to the fastest correct answer each turn.
	DefaultSpeedBonus = 5

	// CorrectPoints is awarded for any correct answer.
	CorrectPoints = 10
)

// Question is one entry of the quiz content bank.
type Question struct {
	Prompt string
	Answer string
}

// Bank supplies quiz content. Pick chooses the question for a turn; Answer
// resolves the expected answer for a previously issued prompt, so grading
// after a restart works from the stored turn alone.
type Bank interface {
	Pick(turnNumber int) Question
	Answer(prompt string) (string, bool)
}

// Config holds configuration for the quiz kind.
type Config struct {
	Turns      int
	SpeedBonus int64
	Bank       Bank
}

// Quiz implements game.Rules for the quiz kind.
type Quiz struct {
	turns      int
	speedBonus int64
	bank       Bank
}

// New creates a Quiz with the given configuration. A nil or zero config
// falls back to the defaults and the built-in question bank.
func New(cfg *Config) *Quiz {
	turns := DefaultTurns
	speedBonus := int64(DefaultSpeedBonus)
	var bank Bank = builtinBank

	if cfg != nil {
		if cfg.Turns > 0 {
			turns = cfg.Turns
		}
		if cfg.SpeedBonus > 0 {
			speedBonus = cfg.SpeedBonus
		}
		if cfg.Bank != nil {
			bank = cfg.Bank
		}
	}

	return &Quiz{
		turns:      turns,
		speedBonus: speedBonus,
		bank:       bank,
	}
}

func (q *Quiz) Kind() model.SessionKind {
	return model.KindQuiz
}

func (q *Quiz) Name() string {
	return "Quiz"
}

func (q *Quiz) Description() string {
	return "Answer trivia questions. Correct answers score points, the fastest correct answer earns a bonus."
}

func (q *Quiz) TurnBased() bool {
	return true
}

func (q *Quiz) NextTurn(turnNumber int) game.TurnSpec {
	return game.TurnSpec{Prompt: q.bank.Pick(turnNumber).Prompt}
}

// Score grades every submission against the turn's expected answer.
// Submissions arrive in acceptance order, so the first correct one in the
// slice is the fastest and takes the bonus.
func (q *Quiz) Score(turn *model.Turn, active []*model.Participant, subs []*model.Submission) []game.ScoreDelta {
	answer, ok := q.bank.Answer(turn.Prompt)
	if !ok {
		return nil
	}

	deltas := make([]game.ScoreDelta, 0, len(subs))
	bonusTaken := false
	for _, sub := range subs {
		correct := answersMatch(sub.Value, answer)
		delta := game.ScoreDelta{UserID: sub.UserID, Correct: &correct}
		if correct {
			delta.Delta = CorrectPoints
			if !bonusTaken {
				delta.Delta += q.speedBonus
				bonusTaken = true
			}
		}
		deltas = append(deltas, delta)
	}
	return deltas
}

func (q *Quiz) Continue(turnNumber int, participants []*model.Participant) bool {
	return turnNumber < q.turns
}

func (q *Quiz) SettleMode() game.SettleMode {
	return game.SettleRankedSplit
}

func answersMatch(got, want string) bool {
	return strings.EqualFold(strings.TrimSpace(got), strings.TrimSpace(want))
}
