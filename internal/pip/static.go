// static.go — a PIP that replays a fixed slice of values on a timer,
// then completes. Grounded on the teacher's server/lifecycle.go
// deadline-polling idiom, here used to pace emission instead of
// waiting for readiness.
package pip

import (
	"context"
	"time"

	"github.com/heutelbeck/attribute-stream-broker/internal/attrvalue"
)

// StaticPIP emits a fixed, ordered sequence of values spaced Interval
// apart, then closes. Interval of zero emits as fast as the consumer
// can read.
type StaticPIP struct {
	Values   []attrvalue.Value
	Interval time.Duration
}

// Subscribe implements Upstream.
func (p StaticPIP) Subscribe(ctx context.Context) (<-chan Item, error) {
	out := make(chan Item)
	values := make([]attrvalue.Value, len(p.Values))
	copy(values, p.Values)

	go func() {
		defer close(out)

		var ticker *time.Ticker
		var tick <-chan time.Time
		if p.Interval > 0 {
			ticker = time.NewTicker(p.Interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		for _, v := range values {
			if p.Interval > 0 {
				select {
				case <-ctx.Done():
					return
				case <-tick:
				}
			}
			select {
			case <-ctx.Done():
				return
			case out <- Item{Value: v}:
			}
		}
	}()

	return out, nil
}
