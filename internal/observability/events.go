package observability

import (
	"sync"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// DefaultEventLogCapacity bounds the per-session event buffer. Older events
// are dropped once the buffer wraps; monitors only ever inspect a recent
// window so the loss is intentional.
const DefaultEventLogCapacity = 500

// EventLog is a bounded, per-session ring buffer of lifecycle events.
//
// The AI loop and tool runtime append from the session's own goroutine;
// the session monitor reads concurrently. Appends never block and reads
// return copies, so neither side can stall the other.
type EventLog struct {
	mu       sync.RWMutex
	sessions map[string]*ring
	capacity int

	subsMu sync.RWMutex
	subs   []func(*models.SessionEvent)
}

type ring struct {
	buf   []*models.SessionEvent
	next  int
	count int
}

// NewEventLog creates an event log with the given per-session capacity.
// A capacity <= 0 uses DefaultEventLogCapacity.
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = DefaultEventLogCapacity
	}
	return &EventLog{
		sessions: make(map[string]*ring),
		capacity: capacity,
	}
}

// Append records an event for its session and notifies subscribers.
func (l *EventLog) Append(event *models.SessionEvent) {
	if event == nil || event.SessionID == "" {
		return
	}

	l.mu.Lock()
	r := l.sessions[event.SessionID]
	if r == nil {
		r = &ring{buf: make([]*models.SessionEvent, l.capacity)}
		l.sessions[event.SessionID] = r
	}
	r.buf[r.next] = event
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	l.mu.Unlock()

	l.subsMu.RLock()
	subs := l.subs
	l.subsMu.RUnlock()
	for _, fn := range subs {
		fn(event)
	}
}

// Recent returns up to n most recent events for a session, oldest first.
func (l *EventLog) Recent(sessionID string, n int) []*models.SessionEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	r := l.sessions[sessionID]
	if r == nil || n <= 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}

	out := make([]*models.SessionEvent, 0, n)
	start := (r.next - n + len(r.buf)) % len(r.buf)
	for i := 0; i < n; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// Subscribe registers a callback invoked synchronously for every appended
// event. Callbacks must be fast and must not call back into the log.
func (l *EventLog) Subscribe(fn func(*models.SessionEvent)) {
	if fn == nil {
		return
	}
	l.subsMu.Lock()
	l.subs = append(l.subs, fn)
	l.subsMu.Unlock()
}

// Drop discards all buffered events for a session.
func (l *EventLog) Drop(sessionID string) {
	l.mu.Lock()
	delete(l.sessions, sessionID)
	l.mu.Unlock()
}
