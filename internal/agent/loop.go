package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/aiwhisperer/aiwhisperer/internal/observability"
	"github.com/aiwhisperer/aiwhisperer/internal/taskctx"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// ErrLoopStopped is returned from a turn interrupted by a graceful Stop.
var ErrLoopStopped = errors.New("ai loop stopped")

// Phase is the lifecycle state of an AI interaction loop.
type Phase string

const (
	PhaseStarting       Phase = "starting"
	PhaseAwaitingModel  Phase = "awaiting_model"
	PhaseExecutingTools Phase = "executing_tools"
	PhaseWaitingUser    Phase = "waiting_user"
	PhasePaused         Phase = "paused"
	PhaseStopping       Phase = "stopping"
	PhaseStopped        Phase = "stopped"
	PhaseFailed         Phase = "failed"
)

// LoopOptions configures one AI interaction loop.
type LoopOptions struct {
	// Model is the model id sent with every request.
	Model string

	// Temperature is the sampling temperature.
	Temperature float32

	// MaxTokens caps response length. Zero uses the provider default.
	MaxTokens int

	// SystemPreamble is the fixed part of the system prompt. The registry's
	// tool instruction block is appended to it at Start.
	SystemPreamble string

	// MaxConsecutiveToolCalls caps tool-only responses in a row.
	// Exceeding it fails the turn with tool_loop_limit. Default: 5.
	MaxConsecutiveToolCalls int

	// MaxIterations is a hard backstop on iterations per turn. Default: 50.
	MaxIterations int

	// PausePollInterval is how often a paused loop re-checks its stop and
	// shutdown signals. Default: 100ms.
	PausePollInterval time.Duration
}

func sanitizeLoopOptions(opts LoopOptions) LoopOptions {
	if opts.MaxConsecutiveToolCalls <= 0 {
		opts.MaxConsecutiveToolCalls = 5
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 50
	}
	if opts.PausePollInterval <= 0 {
		opts.PausePollInterval = 100 * time.Millisecond
	}
	return opts
}

// LoopError is the typed failure a loop turn terminates with.
type LoopError struct {
	Type  models.ErrorType
	Phase Phase
	Msg   string
	Cause error
}

// Error implements the error interface.
func (e *LoopError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Type, e.Phase, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Type, e.Phase, e.Msg)
}

// Unwrap exposes the underlying cause.
func (e *LoopError) Unwrap() error { return e.Cause }

// TurnResult is the outcome of one completed prompt / tool / continuation
// cycle.
type TurnResult struct {
	// Content is the assistant's final text.
	Content string

	// Iterations is how many model calls the turn took.
	Iterations int

	// ToolCalls is how many tool executions the turn performed.
	ToolCalls int

	// UsedFallback reports that the legacy inline tool syntax was parsed
	// out of assistant content. Transitional; logged when it happens.
	UsedFallback bool
}

// Loop drives one task's conversation with the model.
//
// The loop is an explicit state machine:
//
//	starting → awaiting_model → executing_tools → awaiting_model → …
//	                          → waiting_user (content / finish=stop)
//	any → paused → awaiting_model | stopping
//	any → stopping → stopped
//
// Tool-only responses increment a consecutive counter that any content or
// stop response resets; crossing MaxConsecutiveToolCalls fails the turn
// with tool_loop_limit. A tool-call arguments string that is not valid JSON
// is fatal to the whole turn (tool_args_invalid); it is never swallowed.
// Tool-level failures, by contrast, go back to the model as tool messages
// and the turn continues.
type Loop struct {
	taskID    string
	sessionID string

	provider LLMProvider
	registry *Registry
	executor *ToolExecutor
	store    *taskctx.Store
	opts     LoopOptions

	events  *observability.EventLog
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	mu          sync.Mutex
	phase       Phase
	iteration   int
	consecutive int
	fingerprint string

	paused   bool
	stopOnce sync.Once
	stopCh   chan struct{}
}

// LoopDeps bundles the shared collaborators a loop needs.
type LoopDeps struct {
	Provider LLMProvider
	Registry *Registry
	Executor *ToolExecutor
	Store    *taskctx.Store
	Events   *observability.EventLog
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer
}

// NewLoop creates a loop for one task.
func NewLoop(sessionID, taskID string, deps LoopDeps, opts LoopOptions) *Loop {
	if taskID == "" {
		taskID = uuid.NewString()
	}
	store := deps.Store
	if store == nil {
		store = taskctx.New(taskID)
	}
	logger := deps.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Loop{
		taskID:    taskID,
		sessionID: sessionID,
		provider:  deps.Provider,
		registry:  deps.Registry,
		executor:  deps.Executor,
		store:     store,
		opts:      sanitizeLoopOptions(opts),
		events:    deps.Events,
		logger:    logger,
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
		phase:     PhaseStarting,
		stopCh:    make(chan struct{}),
	}
}

// TaskID returns the loop's task id.
func (l *Loop) TaskID() string { return l.taskID }

// Context returns the loop's context store.
func (l *Loop) Context() *taskctx.Store { return l.store }

// Phase returns the current lifecycle state.
func (l *Loop) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

// ConsecutiveToolCalls returns the current tool-only response streak.
func (l *Loop) ConsecutiveToolCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.consecutive
}

// Fingerprint identifies the configuration snapshot: model, temperature and
// tool list. Monitors use it to notice configuration drift across restarts.
func (l *Loop) Fingerprint() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fingerprint
}

// Pause requests the loop block before its next model call until Resume.
// A paused loop re-checks stop and shutdown every PausePollInterval.
func (l *Loop) Pause() {
	l.mu.Lock()
	l.paused = true
	l.mu.Unlock()
}

// Resume clears a pause request.
func (l *Loop) Resume() {
	l.mu.Lock()
	l.paused = false
	l.mu.Unlock()
}

// Stop requests a graceful exit. Safe to call more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *Loop) setPhase(p Phase) {
	l.mu.Lock()
	l.phase = p
	l.mu.Unlock()
}

func (l *Loop) emit(ev *models.SessionEvent) {
	if l.events == nil {
		return
	}
	ev.TaskID = l.taskID
	l.events.Append(ev)
}

// Start begins the conversation: clears context, installs the system prompt
// (fixed preamble plus the registry's tool instruction block), submits the
// initial user prompt, and runs the cycle to its first terminal outcome.
func (l *Loop) Start(ctx context.Context, initialPrompt string) (*TurnResult, error) {
	l.store.Clear()

	system := strings.TrimSpace(l.opts.SystemPreamble)
	if block := l.registry.InstructionBlock(); block != "" {
		system = system + "\n\n# Tool usage\n\n" + block
	}
	l.store.Add(models.Message{Role: models.RoleSystem, Content: system, CreatedAt: time.Now()})

	l.mu.Lock()
	l.fingerprint = configFingerprint(l.opts.Model, l.opts.Temperature, l.registry.Names())
	l.iteration = 0
	l.consecutive = 0
	l.mu.Unlock()

	l.emit(models.NewSessionEvent(models.EventLoopStarted, l.sessionID).
		WithMeta("model", l.opts.Model).
		WithMeta("fingerprint", l.Fingerprint()))

	return l.runTurn(ctx, initialPrompt)
}

// Continue submits a follow-up user message on the existing context and runs
// the cycle again. Used for ordinary conversation turns and for intervention
// message injection alike.
func (l *Loop) Continue(ctx context.Context, userMessage string) (*TurnResult, error) {
	if l.store.Len() == 0 {
		return l.Start(ctx, userMessage)
	}
	return l.runTurn(ctx, userMessage)
}

func (l *Loop) runTurn(ctx context.Context, userMessage string) (*TurnResult, error) {
	l.store.Add(models.Message{Role: models.RoleUser, Content: userMessage, CreatedAt: time.Now()})

	result := &TurnResult{}
	for {
		if err := l.checkSignals(ctx); err != nil {
			return nil, err
		}

		l.mu.Lock()
		l.iteration++
		iteration := l.iteration
		l.mu.Unlock()
		if iteration > l.opts.MaxIterations {
			return nil, l.fail(models.ErrProcessingTimeout, nil, "iteration budget of %d exhausted", l.opts.MaxIterations)
		}

		completion, err := l.callModel(ctx)
		if err != nil {
			return nil, err
		}
		result.Iterations++

		assistant := models.Message{
			Role:      models.RoleAssistant,
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
			CreatedAt: time.Now(),
		}
		l.store.Add(assistant)

		switch {
		case len(completion.ToolCalls) > 0:
			if err := l.executeToolTurn(ctx, completion.ToolCalls, result); err != nil {
				return nil, err
			}
			// Back to the model with the tool results appended.

		case completion.Content != "" || completion.FinishReason == models.FinishStop:
			l.mu.Lock()
			l.consecutive = 0
			l.mu.Unlock()

			if handled, err := l.tryInlineFallback(ctx, completion.Content, result); err != nil {
				return nil, err
			} else if handled {
				result.UsedFallback = true
			}

			if l.metrics != nil {
				l.metrics.LoopIterations.WithLabelValues("final").Inc()
			}
			l.setPhase(PhaseWaitingUser)
			result.Content = completion.Content
			return result, nil

		default:
			return nil, l.fail(models.ErrUnexpectedResponse, nil,
				"model returned neither content nor tool calls nor a stop signal")
		}
	}
}

// callModel performs one provider call with signal checks and event
// bookkeeping.
func (l *Loop) callModel(ctx context.Context) (*Completion, error) {
	l.setPhase(PhaseAwaitingModel)

	req := &CompletionRequest{
		Model:       l.opts.Model,
		Messages:    l.store.History(),
		Tools:       l.registry.Schemas(),
		Temperature: l.opts.Temperature,
		MaxTokens:   l.opts.MaxTokens,
	}
	l.emit(models.NewSessionEvent(models.EventRequestPrepared, l.sessionID).
		WithMeta("messages", len(req.Messages)))

	callCtx := ctx
	var span trace.Span
	if l.tracer != nil {
		callCtx, span = l.tracer.StartLLMCall(ctx, l.provider.Name(), l.opts.Model)
	}
	start := time.Now()
	completion, err := l.provider.Complete(callCtx, req)
	elapsed := time.Since(start)
	if span != nil {
		observability.RecordError(span, err)
		span.End()
	}

	if l.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		l.metrics.LLMRequestCounter.WithLabelValues(l.provider.Name(), l.opts.Model, status).Inc()
		l.metrics.LLMRequestDuration.WithLabelValues(l.provider.Name(), l.opts.Model).Observe(elapsed.Seconds())
	}
	if err != nil {
		return nil, l.fail(models.ErrLLMCallFailure, err, "model call failed")
	}

	l.emit(models.NewSessionEvent(models.EventResponseReceived, l.sessionID).
		WithDuration(elapsed).
		WithMeta("tool_calls", len(completion.ToolCalls)).
		WithMeta("finish_reason", string(completion.FinishReason)))
	return completion, nil
}

// executeToolTurn handles one tool-only assistant response.
func (l *Loop) executeToolTurn(ctx context.Context, toolCalls []models.ToolCall, result *TurnResult) error {
	l.mu.Lock()
	l.consecutive++
	consecutive := l.consecutive
	l.mu.Unlock()

	if consecutive > l.opts.MaxConsecutiveToolCalls {
		return l.fail(models.ErrToolLoopLimit, nil,
			"%d consecutive tool-only responses exceed the limit of %d",
			consecutive, l.opts.MaxConsecutiveToolCalls)
	}

	// A malformed arguments string is fatal to the whole turn. Executing a
	// best-guess subset would desynchronize tool_call_id pairing.
	for _, tc := range toolCalls {
		if len(tc.Arguments) > 0 && !json.Valid(tc.Arguments) {
			return l.fail(models.ErrToolArgsInvalid, nil,
				"arguments of tool call %s (%s) are not valid JSON", tc.ID, tc.Name)
		}
	}

	l.setPhase(PhaseExecutingTools)
	if l.metrics != nil {
		l.metrics.LoopIterations.WithLabelValues("continue").Inc()
	}

	execResults := l.executor.ExecuteAll(ctx, l.sessionID, toolCalls, l.emit)
	for _, er := range execResults {
		l.store.Add(models.Message{
			Role:       models.RoleTool,
			Content:    er.Result.Content,
			ToolCallID: er.Result.ToolCallID,
			CreatedAt:  time.Now(),
		})
		result.ToolCalls++
	}
	return nil
}

// tryInlineFallback recognises the legacy `tool_name(key=value, ...)` inline
// syntax in assistant content. When the identifier names a registered tool,
// the call is executed once and a synthesized tool message with id
// fallback_<name> is appended. Transitional behaviour: recognised, logged,
// and never required by new deployments.
func (l *Loop) tryInlineFallback(ctx context.Context, content string, result *TurnResult) (bool, error) {
	name, args, ok := parseInlineToolCall(content)
	if !ok || !l.registry.Has(name) {
		return false, nil
	}

	l.logger.Warn(ctx, "legacy inline tool syntax in assistant content",
		"tool", name, "task_id", l.taskID)

	callID := "fallback_" + name
	calls := []models.ToolCall{{ID: callID, Name: name, Arguments: args}}

	l.setPhase(PhaseExecutingTools)
	execResults := l.executor.ExecuteAll(ctx, l.sessionID, calls, l.emit)
	for _, er := range execResults {
		l.store.Add(models.Message{
			Role:       models.RoleTool,
			Content:    er.Result.Content,
			ToolCallID: er.Result.ToolCallID,
			CreatedAt:  time.Now(),
		})
		result.ToolCalls++
	}
	return true, nil
}

// checkSignals observes stop, pause, and shutdown before each model call.
func (l *Loop) checkSignals(ctx context.Context) error {
	for {
		select {
		case <-l.stopCh:
			l.setPhase(PhaseStopping)
			l.emit(models.NewSessionEvent(models.EventLoopStopped, l.sessionID))
			l.setPhase(PhaseStopped)
			return ErrLoopStopped
		case <-ctx.Done():
			l.setPhase(PhaseStopped)
			l.emit(models.NewSessionEvent(models.EventLoopStopped, l.sessionID).WithMessage("context canceled"))
			return ctx.Err()
		default:
		}

		l.mu.Lock()
		paused := l.paused
		l.mu.Unlock()
		if !paused {
			return nil
		}

		l.setPhase(PhasePaused)
		select {
		case <-time.After(l.opts.PausePollInterval):
		case <-ctx.Done():
			l.setPhase(PhaseStopped)
			return ctx.Err()
		case <-l.stopCh:
			l.setPhase(PhaseStopping)
			l.emit(models.NewSessionEvent(models.EventLoopStopped, l.sessionID))
			l.setPhase(PhaseStopped)
			return ErrLoopStopped
		}
	}
}

func (l *Loop) fail(t models.ErrorType, cause error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	l.setPhase(PhaseFailed)
	l.emit(models.NewSessionEvent(models.EventLoopError, l.sessionID).WithError(msg).
		WithMeta("error_type", string(t)))
	if l.metrics != nil {
		l.metrics.LoopIterations.WithLabelValues("failed").Inc()
		l.metrics.ErrorCounter.WithLabelValues("loop", string(t)).Inc()
	}
	l.logger.Error(context.Background(), "ai loop failed",
		"task_id", l.taskID, "error_type", string(t), "detail", msg, "cause", cause)
	return &LoopError{Type: t, Phase: PhaseFailed, Msg: msg, Cause: cause}
}

func configFingerprint(model string, temperature float32, toolNames []string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%.3f|%s", model, temperature, strings.Join(toolNames, ","))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
