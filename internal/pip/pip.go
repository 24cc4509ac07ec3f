// pip.go — the PIP registry collaborator surface (spec.md §4.2, §6).
// The broker consumes exactly one operation: resolve an invocation to
// a cold upstream sequence of values. This package defines that
// surface plus two reference adapters used by tests and the demo CLI;
// the real PIP implementation (SAPL's annotation-driven discovery) is
// out of scope per spec.md §1.
package pip

import (
	"context"

	"github.com/heutelbeck/attribute-stream-broker/internal/attrvalue"
	"github.com/heutelbeck/attribute-stream-broker/internal/invocation"
)

// Item is one emission from an upstream. Err is non-nil only for a
// transport-level terminal failure (spec.md §7's UpstreamTerminalError);
// Value-level errors travel as an ordinary attrvalue.Value of
// KindError inside Value, and do not set Err.
type Item struct {
	Value attrvalue.Value
	Err   error
}

// Upstream is a cold sequence of attribute values: Subscribe does no
// work until called, and each call starts production from scratch.
// Spec.md §4.2 & §9: owned exclusively by one active stream at a time;
// that invariant is enforced by internal/activestream, not here.
type Upstream interface {
	// Subscribe starts production and returns a channel of Items. The
	// channel is closed after the upstream completes, errors, or ctx
	// is cancelled — whichever happens first. Cancelling ctx must stop
	// production promptly (spec.md §5).
	Subscribe(ctx context.Context) (<-chan Item, error)
}

// UpstreamFunc adapts a plain function to the Upstream interface.
type UpstreamFunc func(ctx context.Context) (<-chan Item, error)

// Subscribe implements Upstream.
func (f UpstreamFunc) Subscribe(ctx context.Context) (<-chan Item, error) {
	return f(ctx)
}

// Registry resolves an invocation to its upstream sequence. The
// returned sequence may be finite or infinite, may emit Error variants
// as regular elements, and may end with completion or a transport
// failure.
type Registry interface {
	Resolve(ctx context.Context, inv *invocation.Invocation) (Upstream, error)
}

// RegistryFunc adapts a plain function to the Registry interface.
type RegistryFunc func(ctx context.Context, inv *invocation.Invocation) (Upstream, error)

// Resolve implements Registry.
func (f RegistryFunc) Resolve(ctx context.Context, inv *invocation.Invocation) (Upstream, error) {
	return f(ctx, inv)
}
