package broker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/heutelbeck/attribute-stream-broker/internal/attrvalue"
	"github.com/heutelbeck/attribute-stream-broker/internal/auditlog"
	"github.com/heutelbeck/attribute-stream-broker/internal/invocation"
	"github.com/heutelbeck/attribute-stream-broker/internal/pip"
)

func timeoutSentinel() pip.Item { return pip.Item{Value: attrvalue.Error("time out")} }
func emptySentinel() pip.Item   { return pip.Item{Value: attrvalue.Error("empty")} }

func testInvocation(t *testing.T, name string) *invocation.Invocation {
	t.Helper()
	inv, err := invocation.New(invocation.Params{
		Name:      name,
		Arguments: []attrvalue.Value{},
		Variables: map[string]attrvalue.Value{},
	})
	if err != nil {
		t.Fatalf("building test invocation: %v", err)
	}
	return inv
}

// countingTickingRegistry resolves every invocation to an infinite
// ticking sequence of integers, counting how many times an upstream
// was actually resolved (constructed) per attribute name.
type countingTickingRegistry struct {
	interval time.Duration

	mu     sync.Mutex
	counts map[string]int
}

func newCountingTickingRegistry(interval time.Duration) *countingTickingRegistry {
	return &countingTickingRegistry{interval: interval, counts: make(map[string]int)}
}

func (r *countingTickingRegistry) resolveCount(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name]
}

func (r *countingTickingRegistry) Resolve(_ context.Context, inv *invocation.Invocation) (pip.Upstream, error) {
	r.mu.Lock()
	r.counts[inv.Name()]++
	r.mu.Unlock()

	interval := r.interval
	return pip.UpstreamFunc(func(ctx context.Context) (<-chan pip.Item, error) {
		out := make(chan pip.Item)
		go func() {
			defer close(out)
			var n int64
			t := time.NewTicker(interval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					select {
					case out <- pip.Item{Value: attrvalue.NumberFromInt(n)}:
						n++
					case <-ctx.Done():
						return
					}
				}
			}
		}()
		return out, nil
	}), nil
}

// I5 + I1: two concurrent reuse-mode calls for an equal invocation
// share the same stream and cause exactly one upstream resolution.
func TestConcurrentReuseModeSharesOneStream(t *testing.T) {
	t.Parallel()

	registry := newCountingTickingRegistry(5 * time.Millisecond)
	b := New(registry, WithGracePeriod(100*time.Millisecond))
	inv := testInvocation(t, "some.attribute")

	const n = 10
	handles := make([]*Handle, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			h, err := b.AttributeStream(context.Background(), inv, false, time.Hour, timeoutSentinel, emptySentinel)
			if err != nil {
				t.Error(err)
				return
			}
			<-h.Values()
			handles[i] = h
		}(i)
	}
	wg.Wait()

	if got := registry.resolveCount("some.attribute"); got != 1 {
		t.Fatalf("registry.Resolve called %d times, want 1 (I5/I1)", got)
	}
	if b.StreamCount() != 1 {
		t.Fatalf("StreamCount() = %d, want 1", b.StreamCount())
	}

	for _, h := range handles {
		h.Close()
	}
}

// After upstream termination, exactly one eviction fires and the
// registry entry is removed.
func TestEvictionRemovesRegistryEntry(t *testing.T) {
	t.Parallel()

	registry := newCountingTickingRegistry(5 * time.Millisecond)
	audit := auditlog.New(16)
	b := New(registry, WithGracePeriod(30*time.Millisecond), WithAuditLog(audit))
	inv := testInvocation(t, "some.attribute")

	h, err := b.AttributeStream(context.Background(), inv, false, time.Hour, timeoutSentinel, emptySentinel)
	if err != nil {
		t.Fatal(err)
	}
	<-h.Values()
	h.Close()

	deadline := time.After(time.Second)
	for b.StreamCount() != 0 {
		select {
		case <-deadline:
			t.Fatal("registry entry was never removed after eviction")
		case <-time.After(5 * time.Millisecond):
		}
	}

	var evictions int
	for _, e := range audit.Snapshot() {
		if e.Kind == auditlog.EventEvicted {
			evictions++
		}
	}
	if evictions != 1 {
		t.Fatalf("audit log recorded %d eviction events, want exactly 1", evictions)
	}
}

// Fresh-mode calls bypass reuse: two fresh calls for an equal
// invocation each get their own stream and their own upstream
// resolution.
func TestFreshModeBypassesReuse(t *testing.T) {
	t.Parallel()

	registry := newCountingTickingRegistry(5 * time.Millisecond)
	b := New(registry, WithGracePeriod(50*time.Millisecond))
	inv := testInvocation(t, "some.attribute")

	h1, err := b.AttributeStream(context.Background(), inv, true, time.Hour, timeoutSentinel, emptySentinel)
	if err != nil {
		t.Fatal(err)
	}
	<-h1.Values()

	h2, err := b.AttributeStream(context.Background(), inv, true, time.Hour, timeoutSentinel, emptySentinel)
	if err != nil {
		t.Fatal(err)
	}
	<-h2.Values()

	if got := registry.resolveCount("some.attribute"); got != 2 {
		t.Fatalf("registry.Resolve called %d times, want 2 (fresh mode bypasses reuse)", got)
	}

	h1.Close()
	h2.Close()
}

// A reuse-mode caller arriving during another reuse-mode stream's
// grace period observes the replayed value without causing a second
// upstream resolution.
func TestReuseModeCacheHitDuringGrace(t *testing.T) {
	t.Parallel()

	registry := newCountingTickingRegistry(20 * time.Millisecond)
	b := New(registry, WithGracePeriod(150*time.Millisecond))
	inv := testInvocation(t, "some.attribute")

	h1, err := b.AttributeStream(context.Background(), inv, false, time.Hour, timeoutSentinel, emptySentinel)
	if err != nil {
		t.Fatal(err)
	}
	<-h1.Values()
	h1.Close()

	time.Sleep(30 * time.Millisecond)

	h2, err := b.AttributeStream(context.Background(), inv, false, time.Hour, timeoutSentinel, emptySentinel)
	if err != nil {
		t.Fatal(err)
	}
	<-h2.Values()
	h2.Close()

	if got := registry.resolveCount("some.attribute"); got != 1 {
		t.Fatalf("registry.Resolve called %d times, want 1 (grace-period cache hit)", got)
	}
}

// A PipResolutionError surfaces synchronously to the caller.
func TestPipResolutionErrorSurfacesSynchronously(t *testing.T) {
	t.Parallel()

	failing := pip.RegistryFunc(func(_ context.Context, inv *invocation.Invocation) (pip.Upstream, error) {
		return nil, fmt.Errorf("no such attribute: %s", inv.Name())
	})
	b := New(failing)
	inv := testInvocation(t, "missing.attribute")

	if _, err := b.AttributeStream(context.Background(), inv, false, time.Second, timeoutSentinel, emptySentinel); err == nil {
		t.Fatal("expected resolution error, got nil")
	}
}

// Cancelling ctx without ever calling Handle.Close() must still detach
// the subscription: the subscriber count drops, grace starts, and the
// stream is eventually evicted from the registry. Otherwise a caller
// that relies on context cancellation (the idiomatic Go pattern) would
// leak the subscription and its relay goroutine forever.
func TestContextCancellationDetachesSubscription(t *testing.T) {
	t.Parallel()

	registry := newCountingTickingRegistry(5 * time.Millisecond)
	audit := auditlog.New(16)
	b := New(registry, WithGracePeriod(30*time.Millisecond), WithAuditLog(audit))
	inv := testInvocation(t, "some.attribute")

	ctx, cancel := context.WithCancel(context.Background())
	h, err := b.AttributeStream(ctx, inv, false, time.Hour, timeoutSentinel, emptySentinel)
	if err != nil {
		t.Fatal(err)
	}
	<-h.Values()

	cancel()

	deadline := time.After(time.Second)
	for b.StreamCount() != 0 {
		select {
		case <-deadline:
			t.Fatal("stream was never evicted after ctx cancellation; subscription leaked")
		case <-time.After(5 * time.Millisecond):
		}
	}

	var evictions int
	for _, e := range audit.Snapshot() {
		if e.Kind == auditlog.EventEvicted {
			evictions++
		}
	}
	if evictions != 1 {
		t.Fatalf("audit log recorded %d eviction events, want exactly 1", evictions)
	}
}

// Concurrent reuse-mode calls across distinct invocations never share
// a stream or a digest.
func TestDistinctInvocationsNeverShareAStream(t *testing.T) {
	t.Parallel()

	registry := newCountingTickingRegistry(5 * time.Millisecond)

	var created int64
	registryWrap := pip.RegistryFunc(func(ctx context.Context, inv *invocation.Invocation) (pip.Upstream, error) {
		atomic.AddInt64(&created, 1)
		return registry.Resolve(ctx, inv)
	})
	b := New(registryWrap, WithGracePeriod(50*time.Millisecond))

	names := []string{"a.b", "c.d", "e.f"}
	var handles []*Handle
	for _, n := range names {
		h, err := b.AttributeStream(context.Background(), testInvocation(t, n), false, time.Hour, timeoutSentinel, emptySentinel)
		if err != nil {
			t.Fatal(err)
		}
		<-h.Values()
		handles = append(handles, h)
	}

	if b.StreamCount() != len(names) {
		t.Fatalf("StreamCount() = %d, want %d", b.StreamCount(), len(names))
	}
	if atomic.LoadInt64(&created) != int64(len(names)) {
		t.Fatalf("resolved %d upstreams, want %d", created, len(names))
	}

	for _, h := range handles {
		h.Close()
	}
}
