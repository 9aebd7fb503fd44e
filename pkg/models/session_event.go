package models

import "time"

// SessionEventType identifies a lifecycle event emitted by an AI loop or the
// tool runtime. The session monitor consumes these in emission order.
type SessionEventType string

const (
	EventLoopStarted      SessionEventType = "ai_loop_started"
	EventRequestPrepared  SessionEventType = "ai_request_prepared"
	EventResponseReceived SessionEventType = "ai_response_received"
	EventToolStart        SessionEventType = "tool_execution_start"
	EventToolEnd          SessionEventType = "tool_execution_end"
	EventLoopError        SessionEventType = "ai_loop_error_occurred"
	EventLoopStopped      SessionEventType = "ai_loop_stopped"

	// EventInterventionExecuted is recorded by the intervention engine so
	// monitors can see recovery activity in the same stream.
	EventInterventionExecuted SessionEventType = "intervention_executed"
)

// SessionEvent is one entry in a session's bounded event log.
type SessionEvent struct {
	Type       SessionEventType `json:"type"`
	SessionID  string           `json:"session_id"`
	TaskID     string           `json:"task_id,omitempty"`
	ToolName   string           `json:"tool_name,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Message    string           `json:"message,omitempty"`
	IsError    bool             `json:"is_error,omitempty"`
	DurationMS int64            `json:"duration_ms,omitempty"`
	Meta       map[string]any   `json:"meta,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// NewSessionEvent creates an event stamped with the current time.
func NewSessionEvent(t SessionEventType, sessionID string) *SessionEvent {
	return &SessionEvent{Type: t, SessionID: sessionID, Timestamp: time.Now()}
}

// WithTool attaches tool identity to the event.
func (e *SessionEvent) WithTool(name, callID string) *SessionEvent {
	e.ToolName = name
	e.ToolCallID = callID
	return e
}

// WithMessage attaches a human-readable description.
func (e *SessionEvent) WithMessage(msg string) *SessionEvent {
	e.Message = msg
	return e
}

// WithError marks the event as an error observation.
func (e *SessionEvent) WithError(msg string) *SessionEvent {
	e.IsError = true
	e.Message = msg
	return e
}

// WithDuration records the wall time of the underlying operation.
func (e *SessionEvent) WithDuration(d time.Duration) *SessionEvent {
	e.DurationMS = d.Milliseconds()
	return e
}

// WithMeta adds event-specific metadata.
func (e *SessionEvent) WithMeta(key string, value any) *SessionEvent {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[key] = value
	return e
}
