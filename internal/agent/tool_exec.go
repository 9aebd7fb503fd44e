package agent

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/aiwhisperer/aiwhisperer/internal/observability"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// ToolExecConfig configures tool execution behavior.
type ToolExecConfig struct {
	// PerToolTimeout is the deadline for individual tool executions.
	// Default: 30 seconds.
	PerToolTimeout time.Duration
}

// DefaultToolExecConfig returns the default execution settings.
func DefaultToolExecConfig() ToolExecConfig {
	return ToolExecConfig{PerToolTimeout: 30 * time.Second}
}

// ToolExecResult contains the outcome of one tool execution with timing.
type ToolExecResult struct {
	Index     int
	ToolCall  models.ToolCall
	Result    models.ToolResult
	Envelope  models.Envelope
	StartTime time.Time
	EndTime   time.Time
	TimedOut  bool
}

// EventCallback receives lifecycle events during execution. Callbacks must
// not block; they feed the session event log, never the other way around.
type EventCallback func(*models.SessionEvent)

// ToolExecutor dispatches tool calls through the registry with per-call
// deadlines.
//
// Calls within one assistant message execute strictly in model-emitted
// order, and results come back in that same order with matching
// tool_call_id. That ordering is part of the loop's contract with the
// model, so there is no concurrency here.
type ToolExecutor struct {
	registry *Registry
	config   ToolExecConfig
	metrics  *observability.Metrics
	tracer   *observability.Tracer
}

// NewToolExecutor creates an executor over the given registry. Metrics and
// tracer may be nil in tests.
func NewToolExecutor(registry *Registry, config ToolExecConfig, metrics *observability.Metrics, tracer *observability.Tracer) *ToolExecutor {
	if config.PerToolTimeout <= 0 {
		config.PerToolTimeout = 30 * time.Second
	}
	return &ToolExecutor{
		registry: registry,
		config:   config,
		metrics:  metrics,
		tracer:   tracer,
	}
}

// ExecuteAll runs the given tool calls in order and returns one result per
// call, in the same order. Tool-level failures (not found, execution error,
// timeout) become error results; they never abort the batch.
func (e *ToolExecutor) ExecuteAll(ctx context.Context, sessionID string, toolCalls []models.ToolCall, emit EventCallback) []ToolExecResult {
	results := make([]ToolExecResult, len(toolCalls))
	for i, tc := range toolCalls {
		results[i] = e.executeOne(ctx, sessionID, i, tc, emit)
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			// Shutdown mid-batch: fill the remainder as canceled.
			for j := i + 1; j < len(toolCalls); j++ {
				results[j] = canceledResult(j, toolCalls[j])
			}
			break
		}
	}
	return results
}

func (e *ToolExecutor) executeOne(ctx context.Context, sessionID string, idx int, tc models.ToolCall, emit EventCallback) ToolExecResult {
	if emit != nil {
		emit(models.NewSessionEvent(models.EventToolStart, sessionID).WithTool(tc.Name, tc.ID))
	}

	start := time.Now()
	toolCtx, cancel := context.WithTimeout(ctx, e.config.PerToolTimeout)
	toolCtx = observability.AddToolCallID(toolCtx, tc.ID)

	var span trace.Span
	if e.tracer != nil {
		toolCtx, span = e.tracer.StartToolCall(toolCtx, tc.Name, tc.ID)
	}
	envelope, err := e.registry.Invoke(toolCtx, tc.Name, tc.Arguments)
	if span != nil {
		observability.RecordError(span, err)
		span.End()
	}
	cancel()
	end := time.Now()

	res := ToolExecResult{
		Index:     idx,
		ToolCall:  tc,
		StartTime: start,
		EndTime:   end,
	}

	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		res.TimedOut = true
		envelope = models.ErrEnvelope(models.NewToolError(models.ErrProcessingTimeout,
			"%s exceeded its %s deadline", tc.Name, e.config.PerToolTimeout).
			WithSuggestions("retry with smaller inputs", "raise tools.timeout in configuration"))
	case err != nil:
		envelope = models.ErrEnvelope(models.NewToolError(models.ErrToolExecution,
			"%s canceled: %v", tc.Name, err))
	}

	res.Envelope = envelope
	res.Result = models.ToolResult{
		ToolCallID: tc.ID,
		Content:    envelopeContent(envelope),
		IsError:    !envelope.OK,
	}

	e.observe(tc.Name, envelope, res.TimedOut, end.Sub(start))

	if emit != nil {
		ev := models.NewSessionEvent(models.EventToolEnd, sessionID).
			WithTool(tc.Name, tc.ID).
			WithDuration(end.Sub(start))
		if !envelope.OK {
			ev.IsError = true
			ev.Message = envelope.Message
		}
		emit(ev)
	}
	return res
}

func (e *ToolExecutor) observe(toolName string, envelope models.Envelope, timedOut bool, d time.Duration) {
	if e.metrics == nil {
		return
	}
	status := "success"
	switch {
	case timedOut:
		status = "timeout"
	case !envelope.OK:
		status = "error"
	}
	e.metrics.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	e.metrics.ToolExecutionDuration.WithLabelValues(toolName).Observe(d.Seconds())
	if !envelope.OK {
		e.metrics.ErrorCounter.WithLabelValues("tool", string(envelope.ErrorType)).Inc()
	}
}

func canceledResult(idx int, tc models.ToolCall) ToolExecResult {
	env := models.ErrEnvelope(models.NewToolError(models.ErrToolExecution, "%s skipped: shutdown in progress", tc.Name))
	return ToolExecResult{
		Index:    idx,
		ToolCall: tc,
		Envelope: env,
		Result: models.ToolResult{
			ToolCallID: tc.ID,
			Content:    envelopeContent(env),
			IsError:    true,
		},
	}
}

// envelopeContent renders the uniform envelope as the tool-message body the
// model sees on its next turn.
func envelopeContent(env models.Envelope) string {
	data, err := json.Marshal(env)
	if err != nil {
		return `{"ok":false,"error_type":"json_serialization_error","message":"result not serializable"}`
	}
	return string(data)
}
