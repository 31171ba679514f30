package strategy

import (
	"sort"
	"sync"

	"github.com/quantframe/quantframe/pkg/errors"
)

// Factory constructs a fresh strategy instance trading the given symbol.
// Each invocation must return an independent instance; the registry relies on
// this to isolate per-run state across concurrent backtests.
type Factory func(symbol string) Strategy

// Registry holds named strategy factories for lookup and instantiation.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// NewDefaultRegistry creates a Registry with the built-in strategies
// registered.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	// built-ins never collide, ignore the duplicate error
	_ = r.Register(SMACrossName, NewSMACross)
	_ = r.Register(MomentumName, NewMomentum)

	return r
}

// Register adds a factory under the given name.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.Newf(errors.ErrCodeStrategyAlreadyExists, "strategy %q is already registered", name)
	}

	r.factories[name] = factory

	return nil
}

// List returns the sorted names of all registered strategies.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Load instantiates a fresh strategy and applies parameter overrides. Every
// override key must map to a parameter the strategy declares; unknown keys
// fail the load. Load does not call Initialize — that is the engine's job
// during its Initializing phase.
func (r *Registry) Load(name string, symbol string, overrides map[string]float64) (Strategy, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.Newf(errors.ErrCodeStrategyNotFound, "strategy %q is not registered", name)
	}

	s := factory(symbol)

	declared := make(map[string]struct{}, len(s.Parameters()))
	for _, p := range s.Parameters() {
		declared[p.Name] = struct{}{}
	}

	for key, value := range overrides {
		if _, ok := declared[key]; !ok {
			return nil, errors.Newf(errors.ErrCodeUnknownParameter,
				"parameter %q is not declared by strategy %q", key, name)
		}

		if err := s.SetParameter(key, value); err != nil {
			return nil, err
		}
	}

	return s, nil
}
