package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-game-bot/internal/model"
)

type fakeRules struct {
	kind model.SessionKind
}

func (f *fakeRules) Kind() model.SessionKind { return f.kind }
func (f *fakeRules) Name() string            { return string(f.kind) }
func (f *fakeRules) Description() string     { return "fake" }
func (f *fakeRules) TurnBased() bool         { return false }
func (f *fakeRules) NextTurn(int) TurnSpec   { return TurnSpec{} }
func (f *fakeRules) Score(*model.Turn, []*model.Participant, []*model.Submission) []ScoreDelta {
	return nil
}
func (f *fakeRules) Continue(int, []*model.Participant) bool { return false }
func (f *fakeRules) SettleMode() SettleMode                  { return SettleRankedSplit }

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeRules{kind: "alpha"}))
	require.NoError(t, r.Register(&fakeRules{kind: "beta"}))

	rules, ok := r.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, model.SessionKind("alpha"), rules.Kind())

	_, ok = r.Get("gamma")
	assert.False(t, ok)

	assert.Equal(t, 2, r.Count())
	assert.ElementsMatch(t, []model.SessionKind{"alpha", "beta"}, r.Kinds())
	assert.Len(t, r.List(), 2)
}

func TestRegistryRejectsInvalidRules(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&fakeRules{kind: ""}))
}

func TestRegistryReplaceSameKind(t *testing.T) {
	r := NewRegistry()
	first := &fakeRules{kind: "alpha"}
	second := &fakeRules{kind: "alpha"}
	require.NoError(t, r.Register(first))
	require.NoError(t, r.Register(second))

	got, ok := r.Get("alpha")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, r.Count())
}

func TestSeedStablePerSessionAndTurn(t *testing.T) {
	assert.Equal(t, Seed("s1", 1), Seed("s1", 1))
	assert.NotEqual(t, Seed("s1", 1), Seed("s1", 2))
	assert.NotEqual(t, Seed("s1", 1), Seed("s2", 1))
}
