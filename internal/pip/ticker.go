// ticker.go — an infinite PIP emitting the current time on an
// interval, grounding spec.md's "time.now" example environment
// attribute.
package pip

import (
	"context"
	"time"

	"github.com/heutelbeck/attribute-stream-broker/internal/attrvalue"
)

// TickerPIP emits attrvalue.Text(time.Now().Format(Layout)) every
// Interval, forever, until ctx is cancelled.
type TickerPIP struct {
	Interval time.Duration
	Layout   string // defaults to time.RFC3339Nano if empty
	Now      func() time.Time // defaults to time.Now if nil; overridable for tests
}

// Subscribe implements Upstream.
func (p TickerPIP) Subscribe(ctx context.Context) (<-chan Item, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Second
	}
	layout := p.Layout
	if layout == "" {
		layout = time.RFC3339Nano
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}

	out := make(chan Item)
	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		emit := func() bool {
			select {
			case <-ctx.Done():
				return false
			case out <- Item{Value: attrvalue.Text(now().Format(layout))}:
				return true
			}
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !emit() {
					return
				}
			}
		}
	}()

	return out, nil
}
