// broker.go — C5: the attribute stream broker. Maps invocations to
// active streams (internal/activestream), collapsing concurrent
// reuse-mode requests for an equal invocation onto a single upstream
// subscription and keeping the registry consistent across eviction
// races (spec.md §4.5, I5, I6).
//
// Grounded on the teacher's per-struct-mutex discipline for the shape
// of a single shared, mutex-guarded registry; the construct-or-join race
// itself (I5) has no direct teacher analog, so it is built on
// golang.org/x/sync/singleflight instead of a hand-rolled
// compare-and-swap retry loop — singleflight is already present in the
// pack's dependency graph (salmanbao-solomon/go.mod) and is the
// idiomatic Go tool for exactly this "many callers, one construction"
// shape.
package broker

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/heutelbeck/attribute-stream-broker/internal/activestream"
	"github.com/heutelbeck/attribute-stream-broker/internal/auditlog"
	"github.com/heutelbeck/attribute-stream-broker/internal/errs"
	"github.com/heutelbeck/attribute-stream-broker/internal/invocation"
	"github.com/heutelbeck/attribute-stream-broker/internal/obslog"
	"github.com/heutelbeck/attribute-stream-broker/internal/pip"
	"github.com/heutelbeck/attribute-stream-broker/internal/timeoutwrap"
	"github.com/heutelbeck/attribute-stream-broker/internal/util"
)

var log = obslog.For("broker")

// defaultGracePeriod is used when the broker is constructed without
// an explicit override (spec.md §4.5: "e.g., 3 seconds").
const defaultGracePeriod = 3 * time.Second

// Broker is an invocation-keyed registry of active streams. The zero
// value is not usable; construct with New. Multiple Brokers may
// coexist without interference (spec.md §9: "no global mutable
// state").
type Broker struct {
	registry    pip.Registry
	gracePeriod time.Duration
	audit       *auditlog.Log

	group singleflight.Group

	mu      sync.Mutex
	streams map[string]*activestream.Stream
}

// Option configures a Broker at construction time.
type Option func(*Broker)

// WithGracePeriod overrides the default grace period applied to every
// stream this broker constructs.
func WithGracePeriod(d time.Duration) Option {
	return func(b *Broker) { b.gracePeriod = d }
}

// WithAuditLog attaches a lifecycle event log. Nil (the default)
// disables recording.
func WithAuditLog(l *auditlog.Log) Option {
	return func(b *Broker) { b.audit = l }
}

// New constructs a Broker backed by registry, which resolves
// invocations to upstream sequences (spec.md §4.2).
func New(registry pip.Registry, opts ...Option) *Broker {
	b := &Broker{
		registry:    registry,
		gracePeriod: defaultGracePeriod,
		streams:     make(map[string]*activestream.Stream),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handle is a subscribable sequence of values returned by
// AttributeStream, already passed through the timeout wrapper.
type Handle struct {
	values <-chan pip.Item
	close  func()
}

// Values returns the channel of items. It closes when the underlying
// stream terminates, ctx (passed to AttributeStream) is cancelled, or
// Close is called.
func (h *Handle) Values() <-chan pip.Item { return h.values }

// Close detaches this subscription, releasing it from the stream it
// was attached to (dropping the subscriber count, starting the grace
// period if it was the last one). Idempotent, and safe to call even if
// ctx was already cancelled.
func (h *Handle) Close() { h.close() }

// AttributeStream implements spec.md §4.5's sole public operation.
//
// fresh == false (reuse mode): an existing non-terminal stream for an
// equal invocation is reused; otherwise one is constructed, with
// concurrent reuse-mode callers for an equal invocation collapsing
// onto the same winner (I5) and observing exactly one upstream
// subscription (I1).
//
// fresh == true: always constructs a new stream, bypassing reuse for
// this caller. It is still inserted into the registry when no entry
// exists for the invocation, so a later reuse-mode caller may join it,
// but an existing entry is never overwritten.
func (b *Broker) AttributeStream(ctx context.Context, inv *invocation.Invocation, fresh bool, initialTimeout time.Duration, timeoutValue, emptyValue func() pip.Item) (*Handle, error) {
	if inv == nil {
		return nil, errs.NullArgument("invocation")
	}

	var sub *activestream.Subscription

	if fresh {
		s, err := b.newFreshStream(ctx, inv)
		if err != nil {
			return nil, err
		}
		sub, err = s.Subscribe()
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		sub, err = b.subscribeReuse(ctx, inv)
		if err != nil {
			return nil, err
		}
	}

	values := timeoutwrap.Wrap(ctx, sub.Values(), initialTimeout, timeoutValue, emptyValue)

	// timeoutwrap only stops forwarding on ctx.Done(); it never reaches
	// back into sub. Without this watcher, a caller that cancels ctx
	// instead of calling Handle.Close() would leave sub attached
	// forever: the subscriber count never drops, grace/eviction never
	// fires, and sub's relay goroutine keeps queuing upstream values
	// with nothing left to drain them.
	stopped := make(chan struct{})
	var stopOnce sync.Once
	closeFn := func() {
		stopOnce.Do(func() { close(stopped) })
		sub.Close()
	}
	util.SafeGo(func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-stopped:
		}
	})

	return &Handle{values: values, close: closeFn}, nil
}

// subscribeReuse resolves inv to a shared stream and subscribes to
// it, retrying construction if the stream it found raced to
// termination between lookup and subscribe.
func (b *Broker) subscribeReuse(ctx context.Context, inv *invocation.Invocation) (*activestream.Subscription, error) {
	digest := inv.Digest()

	for {
		s, err := b.joinOrCreate(ctx, inv, digest)
		if err != nil {
			return nil, err
		}

		sub, err := s.Subscribe()
		if err == activestream.ErrTerminated {
			continue
		}
		if err != nil {
			return nil, err
		}
		return sub, nil
	}
}

// joinOrCreate returns the registry's current stream for digest, or
// builds one, collapsing concurrent callers for the same digest onto
// a single construction (I5).
func (b *Broker) joinOrCreate(ctx context.Context, inv *invocation.Invocation, digest string) (*activestream.Stream, error) {
	b.mu.Lock()
	if s, ok := b.streams[digest]; ok {
		b.mu.Unlock()
		if b.audit != nil {
			b.audit.Record(auditlog.EventReused, inv.Name(), digest, "")
		}
		return s, nil
	}
	b.mu.Unlock()

	v, err, _ := b.group.Do(digest, func() (any, error) {
		b.mu.Lock()
		if s, ok := b.streams[digest]; ok {
			b.mu.Unlock()
			return s, nil
		}
		b.mu.Unlock()

		up, err := b.registry.Resolve(ctx, inv)
		if err != nil {
			if b.audit != nil {
				b.audit.Record(auditlog.EventPipError, inv.Name(), digest, err.Error())
			}
			return nil, err
		}

		s := activestream.New(inv, up, b.gracePeriod, b.evictionCallback(digest, inv))

		b.mu.Lock()
		b.streams[digest] = s
		b.mu.Unlock()

		log.WithField("invocation", inv.Name()).WithField("digest", digest).Info("constructed new active stream")
		if b.audit != nil {
			b.audit.Record(auditlog.EventCreated, inv.Name(), digest, "")
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*activestream.Stream), nil
}

// newFreshStream always constructs a new stream, inserting it into
// the registry only if no entry exists for inv's digest.
func (b *Broker) newFreshStream(ctx context.Context, inv *invocation.Invocation) (*activestream.Stream, error) {
	digest := inv.Digest()

	up, err := b.registry.Resolve(ctx, inv)
	if err != nil {
		if b.audit != nil {
			b.audit.Record(auditlog.EventPipError, inv.Name(), digest, err.Error())
		}
		return nil, err
	}

	s := activestream.New(inv, up, b.gracePeriod, b.evictionCallback(digest, inv))

	b.mu.Lock()
	if _, exists := b.streams[digest]; !exists {
		b.streams[digest] = s
	}
	b.mu.Unlock()

	log.WithField("invocation", inv.Name()).WithField("digest", digest).Info("constructed fresh-mode stream")
	if b.audit != nil {
		b.audit.Record(auditlog.EventFreshStream, inv.Name(), digest, "")
	}
	return s, nil
}

// evictionCallback performs compare-and-delete: the registry entry is
// only removed if it still points at s, so a late eviction of an
// already-replaced stream cannot clobber a newer one (I6, spec.md §5's
// eviction-then-reinsert ordering guarantee).
func (b *Broker) evictionCallback(digest string, inv *invocation.Invocation) activestream.EvictFunc {
	return func(s *activestream.Stream) {
		b.mu.Lock()
		if cur, ok := b.streams[digest]; ok && cur == s {
			delete(b.streams, digest)
		}
		b.mu.Unlock()

		log.WithField("invocation", inv.Name()).WithField("digest", digest).Debug("evicted")
		if b.audit != nil {
			b.audit.Record(auditlog.EventEvicted, inv.Name(), digest, "")
		}
	}
}

// StreamCount reports how many digests are currently registered. It
// is intended for diagnostics and tests; the value can be stale the
// instant it is read.
func (b *Broker) StreamCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.streams)
}
