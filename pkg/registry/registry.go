package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/xrlt/pkg/ports"
)

// Registry manages the script evaluators available to script fields and
// slices, keyed by the value of their type attribute.
type Registry struct {
	mu         sync.RWMutex
	evaluators map[string]ports.ScriptEvaluator
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		evaluators: make(map[string]ports.ScriptEvaluator),
	}
}

// Register adds an evaluator to the registry.
// If an evaluator with the same type exists, it is overwritten.
func (r *Registry) Register(typ string, ev ports.ScriptEvaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[typ] = ev
}

// Lookup returns the evaluator registered for typ.
func (r *Registry) Lookup(typ string) (ports.ScriptEvaluator, bool) {
	if r == nil || typ == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.evaluators[typ]
	return ev, ok
}

// MustLookup is like Lookup but returns an error naming the unknown type.
func (r *Registry) MustLookup(typ string) (ports.ScriptEvaluator, error) {
	ev, ok := r.Lookup(typ)
	if !ok {
		return nil, fmt.Errorf("script evaluator not found: %s", typ)
	}
	return ev, nil
}

// Types lists the registered types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.evaluators))
	for t := range r.evaluators {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
