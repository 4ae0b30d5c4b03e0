// Package experiments ships the built-in experiment definitions. Each
// experiment is configuration over the one engine in internal/core.
package experiments

import (
	"fmt"
	"sort"
	"sync"

	"labbench/pkg/domain"
)

// Factory builds a fresh experiment definition. Definitions hold predicate
// closures, so every session gets its own copy.
type Factory func() domain.ExperimentConfig

// Registry maps experiment ids to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Default returns a registry holding every built-in experiment.
func Default() *Registry {
	r := NewRegistry()
	for _, f := range []Factory{SaltAnalysis, AcidStandardization, PHComparison} {
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}
	return r
}

// Register validates the definition produced by f and adds it under its id.
func (r *Registry) Register(f Factory) error {
	cfg := f()
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[cfg.ID]; exists {
		return fmt.Errorf("experiment %s already registered", cfg.ID)
	}
	r.factories[cfg.ID] = f
	return nil
}

// Names returns the registered experiment ids in ascending order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Lookup returns a fresh definition for name.
func (r *Registry) Lookup(name string) (domain.ExperimentConfig, bool) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return domain.ExperimentConfig{}, false
	}
	return f(), true
}

func ptr[T any](v T) *T { return &v }
