package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aiwhisperer/aiwhisperer/internal/agent"
	"github.com/aiwhisperer/aiwhisperer/internal/config"
	"github.com/aiwhisperer/aiwhisperer/internal/observability"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// Options select the execution mode for one run.
type Options struct {
	// StopOnError aborts at the first failed step; remaining steps are
	// marked skipped.
	StopOnError bool

	// DryRun validates and interpolates every step but performs no tool
	// calls; each step reports a simulated success.
	DryRun bool

	// PassContext threads the `_context` object from step results into the
	// parameters of subsequent steps.
	PassContext bool

	// ValidateFirst pre-flights every step, including command
	// interpretation, before running any.
	ValidateFirst bool
}

// Progress is invoked after each step with its result.
type Progress func(index, total int, result StepResult)

// StepResult records one step's outcome.
type StepResult struct {
	Index      int              `json:"index"`
	Action     string           `json:"action"`
	OK         bool             `json:"ok"`
	Skipped    bool             `json:"skipped,omitempty"`
	Simulated  bool             `json:"simulated,omitempty"`
	ErrorType  models.ErrorType `json:"error_type,omitempty"`
	Message    string           `json:"message,omitempty"`
	Data       json.RawMessage  `json:"data,omitempty"`
	DurationMS int64            `json:"duration_ms"`
}

// Result is the run envelope.
type Result struct {
	Success   bool                 `json:"success"`
	Completed int                  `json:"completed"`
	Failed    int                  `json:"failed"`
	Total     int                  `json:"total"`
	Steps     []StepResult         `json:"per_step"`
	Cascade   models.CascadeReport `json:"cascade"`
	Context   map[string]any       `json:"context,omitempty"`
}

// Executor runs validated scripts against the tool registry.
type Executor struct {
	registry  *agent.Registry
	validator *Validator
	logger    *observability.Logger
	obs       *observability.Metrics
}

// NewExecutor creates an executor.
func NewExecutor(registry *agent.Registry, cfg config.BatchConfig, logger *observability.Logger, obs *observability.Metrics) *Executor {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Executor{
		registry:  registry,
		validator: NewValidator(cfg),
		logger:    logger,
		obs:       obs,
	}
}

// Run executes the script sequentially and returns the run envelope. The
// returned error is reserved for context cancellation and whole-script
// rejection; per-step failures live in the envelope.
func (e *Executor) Run(ctx context.Context, script *Script, opts Options, progress Progress) (*Result, error) {
	if err := e.validator.Validate(script); err != nil {
		return nil, err
	}
	if opts.ValidateFirst {
		if err := e.preflight(script); err != nil {
			return nil, err
		}
	}

	result := &Result{Total: len(script.Steps)}
	if opts.PassContext {
		result.Context = make(map[string]any)
	}

	aborted := false
	for i, step := range script.Steps {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var sr StepResult
		if aborted {
			sr = StepResult{Index: i, Action: step.Action, Skipped: true, Message: "skipped after earlier failure"}
		} else {
			sr = e.runStep(ctx, i, step, result, opts)
		}
		result.Steps = append(result.Steps, sr)

		switch {
		case sr.Skipped:
		case sr.OK:
			result.Completed++
		default:
			result.Failed++
			if opts.StopOnError {
				aborted = true
			}
		}

		if e.obs != nil {
			e.obs.BatchStepCounter.WithLabelValues(sr.Action, stepStatus(sr)).Inc()
		}
		if progress != nil {
			progress(i, result.Total, sr)
		}
	}

	result.Success = result.Failed == 0
	result.Cascade = classifyCascade(result.Steps)
	return result, nil
}

func stepStatus(sr StepResult) string {
	switch {
	case sr.Skipped:
		return "skipped"
	case sr.OK:
		return "success"
	default:
		return "error"
	}
}

// preflight re-validates every step with commands interpreted, so a script
// in validate_first mode cannot fail halfway on a bad command.
func (e *Executor) preflight(script *Script) error {
	for i, step := range script.Steps {
		resolved, err := resolveStep(step)
		if err != nil {
			if te, ok := err.(*models.ToolError); ok {
				te.ProcessingStage = fmt.Sprintf("step %d", i+1)
			}
			return err
		}
		if err := e.validator.ValidateStep(resolved); err != nil {
			if te, ok := err.(*models.ToolError); ok {
				te.ProcessingStage = fmt.Sprintf("step %d", i+1)
			}
			return err
		}
	}
	return nil
}

// resolveStep turns a command-only step into an action step via the
// interpreter.
func resolveStep(step Step) (Step, error) {
	if step.Action != "" {
		return step, nil
	}
	interpreted, ok := interpretCommand(step.Command)
	if !ok {
		return Step{}, models.NewToolError(models.ErrUnrecognizedCommand,
			"cannot interpret command %q", step.Command)
	}
	interpreted.Command = step.Command
	return interpreted, nil
}

func (e *Executor) runStep(ctx context.Context, index int, step Step, run *Result, opts Options) StepResult {
	start := time.Now()
	fail := func(t models.ErrorType, msg string) StepResult {
		return StepResult{Index: index, Action: step.Action, ErrorType: t, Message: msg, DurationMS: time.Since(start).Milliseconds()}
	}

	resolved, err := resolveStep(step)
	if err != nil {
		te := err.(*models.ToolError)
		return fail(te.Type, te.Message)
	}
	if err := e.validator.ValidateStep(resolved); err != nil {
		te := err.(*models.ToolError)
		return fail(te.Type, te.Message)
	}

	params, err := interpolateParams(resolved.Params, run.Steps)
	if err != nil {
		te := err.(*models.ToolError)
		return fail(te.Type, te.Message)
	}
	if opts.PassContext && len(run.Context) > 0 {
		params["_context"] = run.Context
	}

	if opts.DryRun {
		return StepResult{
			Index: index, Action: resolved.Action, OK: true, Simulated: true,
			Message:    "dry run",
			DurationMS: time.Since(start).Milliseconds(),
		}
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return fail(models.ErrJSONSerialization, err.Error())
	}

	env, err := e.registry.Invoke(ctx, resolved.Action, raw)
	if err != nil {
		return fail(models.ErrToolExecution, err.Error())
	}

	sr := StepResult{
		Index:      index,
		Action:     resolved.Action,
		OK:         env.OK,
		ErrorType:  env.ErrorType,
		Message:    env.Message,
		Data:       env.Data,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if opts.PassContext && env.OK {
		mergeContext(run.Context, env.Data)
	}
	return sr
}

// mergeContext folds a result's `_context` object into the run context.
func mergeContext(dst map[string]any, data json.RawMessage) {
	if len(data) == 0 {
		return
	}
	var payload struct {
		Context map[string]any `json:"_context"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	for k, v := range payload.Context {
		dst[k] = v
	}
}

var interpRe = regexp.MustCompile(`\{\{results\[(\d+)\]\.([A-Za-z0-9_.]+)\}\}`)

// interpolateParams substitutes {{results[i].field}} references with values
// from earlier step outputs. A parameter that is exactly one reference
// keeps the referenced value's type; embedded references are stringified.
func interpolateParams(params map[string]any, prior []StepResult) (map[string]any, error) {
	out := make(map[string]any, len(params))
	for k, v := range params {
		s, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		if m := interpRe.FindStringSubmatch(s); m != nil && m[0] == s {
			val, err := lookupResult(prior, m[1], m[2])
			if err != nil {
				return nil, err
			}
			out[k] = val
			continue
		}
		var ierr error
		replaced := interpRe.ReplaceAllStringFunc(s, func(match string) string {
			m := interpRe.FindStringSubmatch(match)
			val, err := lookupResult(prior, m[1], m[2])
			if err != nil {
				ierr = err
				return match
			}
			return fmt.Sprint(val)
		})
		if ierr != nil {
			return nil, ierr
		}
		out[k] = replaced
	}
	return out, nil
}

func lookupResult(prior []StepResult, indexStr, fieldPath string) (any, error) {
	index, err := strconv.Atoi(indexStr)
	if err != nil || index < 0 || index >= len(prior) {
		return nil, models.NewToolError(models.ErrInvalidArguments,
			"reference to results[%s] is out of range", indexStr)
	}
	sr := prior[index]
	if !sr.OK {
		return nil, models.NewToolError(models.ErrInvalidArguments,
			"reference to results[%d] but that step did not succeed", index)
	}

	var data any
	if err := json.Unmarshal(sr.Data, &data); err != nil {
		return nil, models.NewToolError(models.ErrJSONSerialization,
			"results[%d] is not interpolatable: %v", index, err)
	}
	cur := data
	for _, field := range strings.Split(fieldPath, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, models.NewToolError(models.ErrInvalidArguments,
				"results[%d].%s: %q is not an object", index, fieldPath, field)
		}
		cur, ok = obj[field]
		if !ok {
			return nil, models.NewToolError(models.ErrInvalidArguments,
				"results[%d].%s: field %q not present", index, fieldPath, field)
		}
	}
	return cur, nil
}

// classifyCascade reports a cascading failure when at least 80% of the
// failed steps share one error type.
func classifyCascade(steps []StepResult) models.CascadeReport {
	counts := make(map[models.ErrorType]int)
	failures := 0
	for _, sr := range steps {
		if sr.Skipped || sr.OK {
			continue
		}
		failures++
		counts[sr.ErrorType]++
	}
	if failures < 2 {
		return models.CascadeReport{}
	}
	for t, n := range counts {
		if float64(n) >= 0.8*float64(failures) {
			return models.CascadeReport{
				Detected:  true,
				RootCause: t,
				MitigationSteps: []string{
					fmt.Sprintf("inspect the first %s failure; later failures are likely downstream of it", t),
					"re-run with stop_on_error once the root cause is fixed",
				},
			}
		}
	}
	return models.CascadeReport{}
}
