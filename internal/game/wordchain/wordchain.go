// Package wordchain implements the word chain kind: each turn asks for a
// word starting with a given letter, participants who miss are eliminated,
// and the last one standing takes the pool.
package wordchain

import (
	"fmt"
	"strings"
	"unicode"

	"chat-game-bot/internal/game"
	"chat-game-bot/internal/model"
)

// MaxTurns bounds a session that never converges to a single survivor.
const MaxTurns = 26

// letters is the starting-letter ring, ordered to avoid the hardest letters
// early.
const letters = "SCPABTMDRFHLGWENOIKUVJQYZX"

// ValidateFunc reports whether a submitted word is acceptable. The default
// accepts any alphabetic word of two or more letters; deployments wanting a
// real dictionary inject their own.
type ValidateFunc func(word string) bool

// Config holds configuration for the word chain kind.
type Config struct {
	Validate ValidateFunc
}

// WordChain implements game.Rules for the word chain kind.
type WordChain struct {
	validate ValidateFunc
}

// New creates a WordChain with the given configuration.
func New(cfg *Config) *WordChain {
	validate := defaultValidate
	if cfg != nil && cfg.Validate != nil {
		validate = cfg.Validate
	}
	return &WordChain{validate: validate}
}

func (w *WordChain) Kind() model.SessionKind {
	return model.KindWordChain
}

func (w *WordChain) Name() string {
	return "Word Chain"
}

func (w *WordChain) Description() string {
	return "Each round, send a word starting with the given letter. Miss a round and you're out; last player standing wins it all."
}

func (w *WordChain) TurnBased() bool {
	return true
}

func (w *WordChain) NextTurn(turnNumber int) game.TurnSpec {
	return game.TurnSpec{
		Prompt: fmt.Sprintf("Send a word starting with '%c'", letterFor(turnNumber)),
	}
}

// Score accepts valid words for a point and eliminates every active
// participant who missed the turn or sent an invalid word. When nobody
// qualifies the turn is a wash and no one is eliminated.
func (w *WordChain) Score(turn *model.Turn, active []*model.Participant, subs []*model.Submission) []game.ScoreDelta {
	letter := letterFor(turn.TurnNumber)

	qualified := make(map[int64]bool, len(subs))
	for _, sub := range subs {
		if w.accepts(sub.Value, letter) {
			qualified[sub.UserID] = true
		}
	}
	if len(qualified) == 0 {
		return nil
	}

	deltas := make([]game.ScoreDelta, 0, len(active))
	for _, p := range active {
		if qualified[p.UserID] {
			deltas = append(deltas, game.ScoreDelta{UserID: p.UserID, Delta: 1})
		} else {
			deltas = append(deltas, game.ScoreDelta{UserID: p.UserID, Eliminate: true})
		}
	}
	return deltas
}

func (w *WordChain) Continue(turnNumber int, participants []*model.Participant) bool {
	if turnNumber >= MaxTurns {
		return false
	}
	active := 0
	for _, p := range participants {
		if !p.Eliminated {
			active++
		}
	}
	return active > 1
}

func (w *WordChain) SettleMode() game.SettleMode {
	return game.SettleSurvivorTakesAll
}

func (w *WordChain) accepts(word string, letter rune) bool {
	word = strings.TrimSpace(word)
	if word == "" {
		return false
	}
	first := unicode.ToUpper([]rune(word)[0])
	return first == letter && w.validate(word)
}

func letterFor(turnNumber int) rune {
	return rune(letters[(turnNumber-1)%len(letters)])
}

func defaultValidate(word string) bool {
	runes := []rune(strings.TrimSpace(word))
	if len(runes) < 2 {
		return false
	}
	for _, r := range runes {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
