package monitor

import (
	"time"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// responseWindow bounds the response-time sample buffer per session.
const responseWindow = 100

// memoryWindow bounds retained memory samples per session.
const memoryWindow = 100

// memorySeedSamples is how many early samples form the spike baseline.
const memorySeedSamples = 5

// SessionMetrics is the recomputed view of one session's recent activity.
// It is owned by the session's monitor task; other tasks receive copies.
type SessionMetrics struct {
	SessionID          string
	StartTime          time.Time
	LastActivity       time.Time
	MessageCount       int
	ToolExecutionCount int
	ErrorCount         int
	InterventionCount  int
	ActiveTools        map[string]int

	responseTimes []float64
	memorySamples []float64

	// The spike seed is pinned to the first samples ever observed, so it
	// does not drift once the retained ring wraps.
	memorySeen    int
	memorySeedSum float64
}

// NewSessionMetrics creates metrics for a session starting now.
func NewSessionMetrics(sessionID string) *SessionMetrics {
	now := time.Now()
	return &SessionMetrics{
		SessionID:    sessionID,
		StartTime:    now,
		LastActivity: now,
		ActiveTools:  make(map[string]int),
	}
}

// Recompute folds a window of events into the metrics. Counters are
// recomputed from scratch for the window; the response-time and memory
// buffers are bounded rings.
func (m *SessionMetrics) Recompute(events []*models.SessionEvent) {
	m.MessageCount = 0
	m.ToolExecutionCount = 0
	m.ErrorCount = 0
	m.ActiveTools = make(map[string]int)
	m.responseTimes = m.responseTimes[:0]

	for _, ev := range events {
		if ev.Timestamp.After(m.LastActivity) {
			m.LastActivity = ev.Timestamp
		}
		if ev.IsError {
			m.ErrorCount++
		}
		switch ev.Type {
		case models.EventResponseReceived:
			m.MessageCount++
			m.pushResponseTime(float64(ev.DurationMS))
		case models.EventToolEnd:
			m.ToolExecutionCount++
			m.ActiveTools[ev.ToolName]++
		case models.EventInterventionExecuted:
			m.InterventionCount++
		}
	}
}

func (m *SessionMetrics) pushResponseTime(ms float64) {
	if len(m.responseTimes) >= responseWindow {
		m.responseTimes = m.responseTimes[1:]
	}
	m.responseTimes = append(m.responseTimes, ms)
}

// PushMemorySample appends a heap sample in bytes.
func (m *SessionMetrics) PushMemorySample(bytes float64) {
	m.memorySeen++
	if m.memorySeen <= memorySeedSamples {
		m.memorySeedSum += bytes
	}
	if len(m.memorySamples) >= memoryWindow {
		m.memorySamples = m.memorySamples[1:]
	}
	m.memorySamples = append(m.memorySamples, bytes)
}

// MemorySeed returns the mean of the session's first five samples, or 0
// until five have been observed.
func (m *SessionMetrics) MemorySeed() float64 {
	if m.memorySeen < memorySeedSamples {
		return 0
	}
	return m.memorySeedSum / memorySeedSamples
}

// AvgResponseMS returns the mean of the response-time window, 0 when empty.
func (m *SessionMetrics) AvgResponseMS() float64 {
	if len(m.responseTimes) == 0 {
		return 0
	}
	var sum float64
	for _, v := range m.responseTimes {
		sum += v
	}
	return sum / float64(len(m.responseTimes))
}

// StallDuration returns how long the session has been without activity.
func (m *SessionMetrics) StallDuration(now time.Time) time.Duration {
	return now.Sub(m.LastActivity)
}

// MemorySamples returns the retained samples, oldest first.
func (m *SessionMetrics) MemorySamples() []float64 {
	return m.memorySamples
}

// ErrorRate returns errors per observed assistant message.
func (m *SessionMetrics) ErrorRate() float64 {
	if m.MessageCount == 0 {
		return 0
	}
	return float64(m.ErrorCount) / float64(m.MessageCount)
}
