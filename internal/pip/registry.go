// registry.go — an in-memory Registry keyed by attribute name, for
// tests and the demo CLI. Real PIP discovery (annotation-driven
// resolution of arbitrary Java/SAPL-defined PIP methods) is out of
// scope per spec.md §1.
package pip

import (
	"context"
	"sync"

	"github.com/heutelbeck/attribute-stream-broker/internal/errs"
	"github.com/heutelbeck/attribute-stream-broker/internal/invocation"
)

// Factory builds an Upstream for a resolved invocation.
type Factory func(inv *invocation.Invocation) (Upstream, error)

// InMemoryRegistry resolves invocations by attribute name to a
// registered Factory.
type InMemoryRegistry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewInMemoryRegistry constructs an empty registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{factories: make(map[string]Factory)}
}

// Register binds an attribute name to a Factory. Re-registering a name
// replaces the previous binding.
func (r *InMemoryRegistry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Resolve implements Registry.
func (r *InMemoryRegistry) Resolve(_ context.Context, inv *invocation.Invocation) (Upstream, error) {
	r.mu.RLock()
	f, ok := r.factories[inv.Name()]
	r.mu.RUnlock()

	if !ok {
		return nil, errs.PipResolutionError("no PIP registered for "+inv.Name(), nil)
	}

	up, err := f(inv)
	if err != nil {
		return nil, errs.PipResolutionError("constructing upstream for "+inv.Name(), err)
	}
	return up, nil
}
