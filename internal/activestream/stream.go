// stream.go — C4: the active attribute stream, a per-invocation state
// machine that owns exactly one upstream subscription and multicasts
// its values to however many policy evaluations are currently waiting
// on the same invocation (spec.md §4.4, §9).
//
// Grounded on the teacher's per-struct-mutex discipline
// (internal/streaming.StreamState's Configure/ShouldEmit split between
// a locked accessor and the caller doing I/O outside the lock) and
// internal/util.SafeGo for every goroutine this package launches: the
// upstream-owning goroutine and the eviction callback both run outside
// the stream's own critical section, so a panicking PIP or a slow
// eviction callback cannot wedge the mutex.
package activestream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/heutelbeck/attribute-stream-broker/internal/errs"
	"github.com/heutelbeck/attribute-stream-broker/internal/invocation"
	"github.com/heutelbeck/attribute-stream-broker/internal/obslog"
	"github.com/heutelbeck/attribute-stream-broker/internal/pip"
	"github.com/heutelbeck/attribute-stream-broker/internal/util"
)

var log = obslog.For("activestream")

// EvictFunc is called exactly once, after the stream has reached
// StateTerminated, so the owner (C5's broker) can remove it from its
// registry. It runs outside the stream's lock and off the goroutine
// that detected termination.
type EvictFunc func(s *Stream)

// Stream is one attribute's shared, replay-1, multicast upstream
// subscription. The zero value is not usable; construct with New.
type Stream struct {
	inv         *invocation.Invocation
	upstream    pip.Upstream
	gracePeriod time.Duration
	onEvict     EvictFunc
	id          string

	mu          sync.Mutex
	state       State
	subs        map[uint64]*unboundedRelay
	nextSubID   uint64
	replay      *pip.Item
	upstreamCtx context.CancelFunc
	graceTimer  *time.Timer
}

// New constructs a stream in StateIdle. No upstream subscription is
// made until the first Subscribe call (spec.md §4.4).
func New(inv *invocation.Invocation, upstream pip.Upstream, gracePeriod time.Duration, onEvict EvictFunc) *Stream {
	return &Stream{
		inv:         inv,
		upstream:    upstream,
		gracePeriod: gracePeriod,
		onEvict:     onEvict,
		id:          uuid.NewString(),
		state:       StateIdle,
		subs:        make(map[uint64]*unboundedRelay),
	}
}

// Invocation returns the descriptor this stream was built for.
func (s *Stream) Invocation() *invocation.Invocation { return s.inv }

// State reports the current state. Intended for logging and tests;
// callers must not branch production logic on it, since it can be
// stale the instant it is read.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SubscriberCount reports the number of currently attached
// subscribers. Same staleness caveat as State.
func (s *Stream) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Subscribe attaches a new subscriber. If the stream is Idle, this
// starts the upstream subscription. If Cooling, this cancels the grace
// timer and returns to Live — the arrival wins the race against
// eviction. If Terminated, it returns ErrTerminated so the caller
// (the broker) constructs a fresh stream for the same invocation.
//
// A subscriber that joins while a value has already been replayed
// receives that value first, ahead of any value the upstream produces
// afterward (spec.md §4.4's replay-1 rule); ordering is guaranteed by
// queuing the replay into the subscriber's relay before the relay is
// published into s.subs, all under the same lock that fan-out uses.
func (s *Stream) Subscribe() (*Subscription, error) {
	s.mu.Lock()

	if s.state == StateTerminated {
		s.mu.Unlock()
		return nil, ErrTerminated
	}

	id := s.nextSubID
	s.nextSubID++
	relay := newUnboundedRelay()

	if s.replay != nil {
		relay.in <- *s.replay
	}
	s.subs[id] = relay

	startUpstream := false
	switch s.state {
	case StateIdle:
		s.state = StateLive
		startUpstream = true
	case StateCooling:
		if s.graceTimer != nil {
			s.graceTimer.Stop()
			s.graceTimer = nil
		}
		s.state = StateLive
		log.WithField("invocation", s.inv.Name()).WithField("stream", s.id).Debug("grace cancelled: subscriber rejoined during cooling")
	case StateLive:
		// already running; nothing to start
	}

	var upstreamCtx context.Context
	if startUpstream {
		upstreamCtx, s.upstreamCtx = context.WithCancel(context.Background())
	}
	s.mu.Unlock()

	if startUpstream {
		log.WithField("invocation", s.inv.Name()).WithField("stream", s.id).Info("starting upstream subscription")
		util.SafeGo(func() { s.runUpstream(upstreamCtx) })
	}

	return &Subscription{id: id, relay: relay, stream: s}, nil
}

// drop removes a subscriber. If it was the last one and the stream
// was Live, the stream moves to Cooling and a grace timer starts.
func (s *Stream) drop(id uint64) {
	s.mu.Lock()

	relay, ok := s.subs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.subs, id)
	close(relay.in)

	if len(s.subs) > 0 || s.state != StateLive {
		s.mu.Unlock()
		return
	}

	s.state = StateCooling
	gp := s.gracePeriod
	s.graceTimer = time.AfterFunc(gp, s.onGraceExpired)
	s.mu.Unlock()

	log.WithField("invocation", s.inv.Name()).WithField("stream", s.id).WithField("grace_period", gp).Debug("last subscriber dropped: entering grace period")
}

// onGraceExpired fires from the grace timer's own goroutine. It
// re-checks state under the lock because a subscriber may have
// rejoined (or the stream may already be terminated by a racing
// upstream failure) between the timer firing and this function
// running.
func (s *Stream) onGraceExpired() {
	s.mu.Lock()
	if s.state != StateCooling || len(s.subs) != 0 {
		s.mu.Unlock()
		return
	}
	s.state = StateTerminated
	s.graceTimer = nil
	cancel := s.upstreamCtx
	s.mu.Unlock()

	log.WithField("invocation", s.inv.Name()).WithField("stream", s.id).Info("grace period elapsed: evicting")

	if cancel != nil {
		cancel()
	}
	if s.onEvict != nil {
		util.SafeGo(func() { s.onEvict(s) })
	}
}

// runUpstream owns the single upstream subscription for this stream's
// lifetime. It never holds s.mu while calling into upstream or onEvict.
func (s *Stream) runUpstream(ctx context.Context) {
	ch, err := s.upstream.Subscribe(ctx)
	if err != nil {
		s.terminate(errs.UpstreamTerminalError("upstream failed to start", err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case item, ok := <-ch:
			if !ok {
				s.terminate(nil)
				return
			}
			if item.Err != nil {
				s.terminate(item.Err)
				return
			}
			s.fanout(item)
		}
	}
}

// fanout records item as the replay value and delivers it to every
// current subscriber, in the order they would have received any
// earlier value.
func (s *Stream) fanout(item pip.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := item
	s.replay = &cp
	for _, relay := range s.subs {
		relay.in <- item
	}
}

// terminate moves the stream to StateTerminated, propagates cause (if
// any) to current subscribers as a final Item, closes every
// subscriber's channel, and invokes the eviction callback. cause==nil
// means the upstream completed normally; subscribers simply see their
// channel close.
func (s *Stream) terminate(cause error) {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return
	}
	s.state = StateTerminated
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}

	if cause != nil {
		for _, relay := range s.subs {
			relay.in <- pip.Item{Err: cause}
		}
	}
	for id, relay := range s.subs {
		close(relay.in)
		delete(s.subs, id)
	}
	s.mu.Unlock()

	entry := log.WithField("invocation", s.inv.Name()).WithField("stream", s.id)
	if cause != nil {
		entry.WithField("cause", cause).Warn("upstream terminated with error: evicting")
	} else {
		entry.Info("upstream completed: evicting")
	}

	if s.onEvict != nil {
		util.SafeGo(func() { s.onEvict(s) })
	}
}
