package game

import (
	"fmt"
	"sync"

	"chat-game-bot/internal/model"
)

// Registry manages rules registration and lookup by session kind.
type Registry struct {
	rules map[model.SessionKind]Rules
	mu    sync.RWMutex
}

// NewRegistry creates a new rules registry.
func NewRegistry() *Registry {
	return &Registry{
		rules: make(map[model.SessionKind]Rules),
	}
}

// Register adds a rules set to the registry.
// A rules set registered for an existing kind replaces the previous one.
func (r *Registry) Register(rules Rules) error {
	if rules == nil {
		return fmt.Errorf("cannot register nil rules")
	}
	if rules.Kind() == "" {
		return fmt.Errorf("rules kind cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[rules.Kind()] = rules
	return nil
}

// Get retrieves the rules for a kind.
func (r *Registry) Get(kind model.SessionKind) (Rules, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rules, ok := r.rules[kind]
	return rules, ok
}

// Kinds returns all registered session kinds.
func (r *Registry) Kinds() []model.SessionKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]model.SessionKind, 0, len(r.rules))
	for kind := range r.rules {
		kinds = append(kinds, kind)
	}
	return kinds
}

// List returns all registered rules sets.
func (r *Registry) List() []Rules {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]Rules, 0, len(r.rules))
	for _, rules := range r.rules {
		all = append(all, rules)
	}
	return all
}

// Count returns the number of registered kinds.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}
