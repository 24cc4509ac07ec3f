package activestream

import (
	"sync"

	"github.com/heutelbeck/attribute-stream-broker/internal/pip"
)

// Subscription is one policy evaluation's attachment to a Stream.
// Callers must call Close exactly once when done, whether or not
// Values() was ever drained to completion — this is how the stream
// learns to start its grace period.
type Subscription struct {
	id     uint64
	relay  *unboundedRelay
	stream *Stream

	closeOnce sync.Once
}

// Values returns the channel of items for this subscriber. It is
// closed when the stream terminates or after Close is called,
// whichever happens first. A replayed value, if any was available at
// subscribe time, arrives first.
func (sub *Subscription) Values() <-chan pip.Item {
	return sub.relay.out
}

// Close detaches the subscription from its stream. Idempotent.
func (sub *Subscription) Close() {
	sub.closeOnce.Do(func() {
		sub.stream.drop(sub.id)
	})
}
