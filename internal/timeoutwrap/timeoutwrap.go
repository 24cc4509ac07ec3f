// timeoutwrap.go — C3: injects a synthetic timeout/empty value when an
// upstream is slow or produces nothing. Grounded on the teacher's
// cmd/gasoline-cmd/server/lifecycle.go deadline-polling idiom,
// generalized from a blocking poll loop to a select-based one-shot
// timer race (spec.md §4.3).
package timeoutwrap

import (
	"context"
	"time"

	"github.com/heutelbeck/attribute-stream-broker/internal/attrvalue"
	"github.com/heutelbeck/attribute-stream-broker/internal/pip"
)

// ValueItem builds a timeoutValue/emptyValue constructor from a plain
// sentinel attrvalue.Value, the common case callers reach for.
func ValueItem(v attrvalue.Value) func() pip.Item {
	return func() pip.Item { return pip.Item{Value: v} }
}

// Wrap races in's first emission against deadline. Per spec.md §4.3:
//
//   - in emits before deadline: output mirrors in verbatim.
//   - deadline elapses with no first value: output emits timeoutValue,
//     then continues mirroring in when/if it produces.
//   - in completes (channel closes) without ever emitting a value:
//     output emits emptyValue, then completes. If the deadline already
//     elapsed, this yields timeoutValue then emptyValue then completes.
//   - in's first item is a transport error (Item.Err != nil) arriving
//     before any value: the error propagates without emitting
//     timeoutValue.
//
// Downstream cancellation (ctx) stops the wrapper immediately; it does
// not reach back into in's producer, which is owned elsewhere (the
// active attribute stream's shared upstream, spec.md §5).
func Wrap(ctx context.Context, in <-chan pip.Item, deadline time.Duration, timeoutValue, emptyValue func() pip.Item) <-chan pip.Item {
	out := make(chan pip.Item)
	go run(ctx, in, out, deadline, timeoutValue, emptyValue)
	return out
}

func run(ctx context.Context, in <-chan pip.Item, out chan<- pip.Item, deadline time.Duration, timeoutValue, emptyValue func() pip.Item) {
	defer close(out)

	timer := time.NewTimer(deadline)
	defer timer.Stop()
	timerC := timer.C

	emittedAny := false

	for {
		select {
		case <-ctx.Done():
			return

		case <-timerC:
			timerC = nil // disable: only fires once
			if !trySend(ctx, out, timeoutValue()) {
				return
			}

		case item, ok := <-in:
			if !ok {
				if !emittedAny {
					trySend(ctx, out, emptyValue())
				}
				return
			}
			if item.Err != nil {
				trySend(ctx, out, item)
				return
			}
			emittedAny = true
			timerC = nil // a value arrived: the deadline no longer applies
			if !trySend(ctx, out, item) {
				return
			}
		}
	}
}

func trySend(ctx context.Context, out chan<- pip.Item, item pip.Item) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- item:
		return true
	}
}
