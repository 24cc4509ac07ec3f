package timeoutwrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/heutelbeck/attribute-stream-broker/internal/attrvalue"
	"github.com/heutelbeck/attribute-stream-broker/internal/pip"
)

func timeoutSentinel() attrvalue.Value { return attrvalue.Error("time out") }
func emptySentinel() attrvalue.Value   { return attrvalue.Error("empty") }

func collect(t *testing.T, ch <-chan pip.Item, n int, timeout time.Duration) []pip.Item {
	t.Helper()
	var got []pip.Item
	deadline := time.After(timeout)
	for len(got) < n {
		select {
		case item, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, item)
		case <-deadline:
			t.Fatalf("timed out collecting %d items, got %d", n, len(got))
		}
	}
	return got
}

func drainRemaining(ch <-chan pip.Item, timeout time.Duration) {
	deadline := time.After(timeout)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			return
		}
	}
}

// Scenario 4: slow-but-producing upstream: T, 1, 2, 3, complete.
func TestSlowUpstreamEmitsTimeoutThenValues(t *testing.T) {
	t.Parallel()

	in := make(chan pip.Item)
	go func() {
		defer close(in)
		time.Sleep(20 * time.Millisecond)
		for _, n := range []int64{1, 2, 3} {
			in <- pip.Item{Value: attrvalue.NumberFromInt(n)}
		}
	}()

	out := Wrap(context.Background(), in, time.Millisecond, ValueItem(timeoutSentinel()), ValueItem(emptySentinel()))
	got := collect(t, out, 4, time.Second)

	if msg, ok := got[0].Value.AsError(); !ok || msg != "time out" {
		t.Fatalf("first item = %v, want timeout sentinel", got[0].Value)
	}
	for i, want := range []int64{1, 2, 3} {
		n, ok := got[i+1].Value.AsNumber()
		if !ok || n.IntPart() != want {
			t.Errorf("item %d = %v, want %d", i+1, got[i+1].Value, want)
		}
	}
}

// Scenario 5: upstream completes without emitting: T, E, complete.
func TestEmptyAfterTimeout(t *testing.T) {
	t.Parallel()

	in := make(chan pip.Item)
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(in)
	}()

	out := Wrap(context.Background(), in, time.Millisecond, ValueItem(timeoutSentinel()), ValueItem(emptySentinel()))
	got := collect(t, out, 2, time.Second)

	if msg, ok := got[0].Value.AsError(); !ok || msg != "time out" {
		t.Fatalf("first item = %v, want timeout sentinel", got[0].Value)
	}
	if msg, ok := got[1].Value.AsError(); !ok || msg != "empty" {
		t.Fatalf("second item = %v, want empty sentinel", got[1].Value)
	}

	if _, ok := <-out; ok {
		t.Fatal("expected channel closed after empty sentinel")
	}
}

// Scenario 6: upstream errors immediately: error propagates, no T.
func TestImmediateErrorPropagatesWithoutTimeout(t *testing.T) {
	t.Parallel()

	in := make(chan pip.Item, 1)
	in <- pip.Item{Err: errors.New("boom")}
	close(in)

	out := Wrap(context.Background(), in, time.Hour, ValueItem(timeoutSentinel()), ValueItem(emptySentinel()))

	select {
	case item, ok := <-out:
		if !ok {
			t.Fatal("expected an error item before close")
		}
		if item.Err == nil || item.Err.Error() != "boom" {
			t.Fatalf("got %+v, want propagated error", item)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for propagated error")
	}

	drainRemaining(out, time.Second)
}

// Fast upstream: first value arrives before the deadline, mirrored
// verbatim without a timeout sentinel.
func TestFastUpstreamMirrorsVerbatim(t *testing.T) {
	t.Parallel()

	in := make(chan pip.Item, 1)
	in <- pip.Item{Value: attrvalue.Text("fast")}
	close(in)

	out := Wrap(context.Background(), in, time.Hour, ValueItem(timeoutSentinel()), ValueItem(emptySentinel()))
	got := collect(t, out, 1, time.Second)

	if s, ok := got[0].Value.AsText(); !ok || s != "fast" {
		t.Fatalf("got %v, want 'fast' with no timeout sentinel", got[0].Value)
	}
}

func TestDownstreamCancellationStopsWrapperPromptly(t *testing.T) {
	t.Parallel()

	in := make(chan pip.Item)
	defer close(in)

	ctx, cancel := context.WithCancel(context.Background())
	out := Wrap(ctx, in, time.Hour, ValueItem(timeoutSentinel()), ValueItem(emptySentinel()))

	cancel()

	select {
	case _, ok := <-out:
		if ok {
			t.Fatal("expected no items after cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("wrapper did not close promptly after cancellation")
	}
}
