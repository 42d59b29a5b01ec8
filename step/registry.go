package step

import (
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/stepchain"
)

// Registry maps step names to definitions.
// It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry creates an empty step registry.
func NewRegistry() *Registry {
	return &Registry{
		defs: make(map[string]*Definition),
	}
}

// Register adds def, replacing any definition with the same name.
// The definition's config must be valid and it must carry a handler.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return stepchain.NewConfigError("", fmt.Errorf("nil definition"))
	}
	if err := def.Config.Validate(); err != nil {
		return err
	}
	if def.Handler == nil {
		return stepchain.NewConfigError(def.Config.Name, fmt.Errorf("handler is nil"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Config.Name] = def
	return nil
}

// Get returns the definition for the given step name.
// Returns false if no step is registered under that name.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	return d, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns all registered step names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check reports configured successors that are not registered.
func (r *Registry) Check() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, d := range r.defs {
		if d.Config.Next == "" {
			continue
		}
		if _, ok := r.defs[d.Config.Next]; !ok {
			return stepchain.NewConfigError(name,
				fmt.Errorf("%w: next step %q is not registered", stepchain.ErrUnknownStep, d.Config.Next))
		}
	}
	return nil
}
