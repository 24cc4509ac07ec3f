// auditlog.go — supplemented feature: a bounded history of broker
// lifecycle events (stream created/reused/evicted, PIP errors),
// useful for operators diagnosing cache-reuse or eviction behavior
// that the core's in-process interfaces don't otherwise expose.
package auditlog

import "time"

// EventKind classifies one recorded lifecycle transition.
type EventKind string

const (
	EventCreated     EventKind = "created"
	EventReused      EventKind = "reused"
	EventEvicted     EventKind = "evicted"
	EventPipError    EventKind = "pip_error"
	EventFreshStream EventKind = "fresh_stream"
)

// Event is one recorded occurrence.
type Event struct {
	Kind      EventKind
	Attribute string
	Digest    string
	Detail    string
	At        time.Time
}

// Log is a bounded, FIFO-evicting history of Events, safe for
// concurrent use from every broker goroutine that records an event.
type Log struct {
	ring *ring[Event]
}

// New constructs a Log holding at most capacity events. A capacity
// below 1 is treated as 1.
func New(capacity int) *Log {
	if capacity < 1 {
		capacity = 1
	}
	return &Log{ring: newRing[Event](capacity)}
}

// Record appends an event, evicting the oldest if the log is full.
func (l *Log) Record(kind EventKind, attribute, digest, detail string) {
	l.ring.write(Event{
		Kind:      kind,
		Attribute: attribute,
		Digest:    digest,
		Detail:    detail,
		At:        time.Now(),
	})
}

// Snapshot returns every event currently held, oldest first. The
// returned slice is a copy and safe to retain.
func (l *Log) Snapshot() []Event {
	return l.ring.readAll()
}
