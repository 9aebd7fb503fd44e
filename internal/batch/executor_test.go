package batch

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/aiwhisperer/aiwhisperer/internal/agent"
	"github.com/aiwhisperer/aiwhisperer/internal/config"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// stubTool records its invocations and replies with a fixed payload.
type stubTool struct {
	name   string
	result any
	fail   error
	calls  atomic.Int64
	last   json.RawMessage
}

func (s *stubTool) Name() string            { return s.name }
func (s *stubTool) Description() string     { return "test stub" }
func (s *stubTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }

func (s *stubTool) Execute(_ context.Context, params json.RawMessage) (any, error) {
	s.calls.Add(1)
	s.last = params
	if s.fail != nil {
		return nil, s.fail
	}
	if s.result != nil {
		return s.result, nil
	}
	return map[string]any{"ok": true}, nil
}

func newTestExecutor(t *testing.T, tools ...*stubTool) *Executor {
	t.Helper()
	r := agent.NewRegistry()
	for _, tool := range tools {
		r.MustRegister(tool)
	}
	r.Seal()
	return NewExecutor(r, config.Default().Batch, nil, nil)
}

func TestRunSequential(t *testing.T) {
	lister := &stubTool{name: "list_files", result: map[string]any{"entries": []string{"a.md"}}}
	reader := &stubTool{name: "read_file", result: map[string]any{"content": "hello"}}
	e := newTestExecutor(t, lister, reader)

	script := &Script{Name: "two", Steps: []Step{
		{Action: "list_files", Params: map[string]any{"path": "docs"}},
		{Action: "read_file", Params: map[string]any{"path": "docs/a.md"}},
	}}

	var seen []int
	result, err := e.Run(context.Background(), script, Options{}, func(i, total int, sr StepResult) {
		seen = append(seen, i)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success || result.Completed != 2 || result.Failed != 0 {
		t.Errorf("result = %+v", result)
	}
	if len(seen) != 2 || seen[0] != 0 || seen[1] != 1 {
		t.Errorf("progress order = %v", seen)
	}
	if lister.calls.Load() != 1 || reader.calls.Load() != 1 {
		t.Errorf("calls = %d, %d, want 1 each", lister.calls.Load(), reader.calls.Load())
	}
}

func TestRunStopOnError(t *testing.T) {
	reader := &stubTool{name: "read_file", fail: models.NewToolError(models.ErrFileNotFound, "gone")}
	mail := &stubTool{name: "check_mail"}
	e := newTestExecutor(t, reader, mail)

	script := &Script{Name: "abort", Steps: []Step{
		{Action: "read_file", Params: map[string]any{"path": "nope.md"}},
		{Action: "check_mail"},
		{Action: "check_mail"},
	}}

	result, err := e.Run(context.Background(), script, Options{StopOnError: true}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Success {
		t.Error("script with a failed step reported success")
	}
	if result.Failed != 1 {
		t.Errorf("failed = %d, want 1", result.Failed)
	}
	for _, sr := range result.Steps[1:] {
		if !sr.Skipped {
			t.Errorf("step %d not skipped after failure", sr.Index)
		}
		if sr.Message != "skipped after earlier failure" {
			t.Errorf("step %d message = %q", sr.Index, sr.Message)
		}
	}
	if mail.calls.Load() != 0 {
		t.Errorf("skipped steps still invoked the tool %d times", mail.calls.Load())
	}
}

func TestRunContinuesWithoutStopOnError(t *testing.T) {
	reader := &stubTool{name: "read_file", fail: models.NewToolError(models.ErrFileNotFound, "gone")}
	mail := &stubTool{name: "check_mail"}
	e := newTestExecutor(t, reader, mail)

	script := &Script{Name: "carry on", Steps: []Step{
		{Action: "read_file", Params: map[string]any{"path": "nope.md"}},
		{Action: "check_mail"},
	}}

	result, err := e.Run(context.Background(), script, Options{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Failed != 1 || result.Completed != 1 {
		t.Errorf("failed = %d completed = %d, want 1 and 1", result.Failed, result.Completed)
	}
	if mail.calls.Load() != 1 {
		t.Error("later step was not executed")
	}
}

func TestRunDryRun(t *testing.T) {
	mail := &stubTool{name: "check_mail"}
	e := newTestExecutor(t, mail)

	script := &Script{Name: "dry", Steps: []Step{{Action: "check_mail"}}}
	result, err := e.Run(context.Background(), script, Options{DryRun: true}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Error("dry run did not succeed")
	}
	if !result.Steps[0].Simulated {
		t.Error("dry run step not marked simulated")
	}
	if mail.calls.Load() != 0 {
		t.Errorf("dry run invoked the tool %d times", mail.calls.Load())
	}
}

func TestInterpolationExactReferenceKeepsType(t *testing.T) {
	lister := &stubTool{name: "list_files", result: map[string]any{"count": 3, "dir": "docs"}}
	reader := &stubTool{name: "read_file", result: map[string]any{"content": "x"}}
	e := newTestExecutor(t, lister, reader)

	script := &Script{Name: "interp", Steps: []Step{
		{Action: "list_files", Params: map[string]any{"path": "docs"}},
		{Action: "read_file", Params: map[string]any{
			"path":  "docs/a.md",
			"limit": "{{results[0].count}}",
			"note":  "dir has {{results[0].count}} entries",
		}},
	}}

	result, err := e.Run(context.Background(), script, Options{}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Fatalf("run failed: %+v", result.Steps)
	}

	var params map[string]any
	if err := json.Unmarshal(reader.last, &params); err != nil {
		t.Fatalf("unmarshal params: %v", err)
	}
	if limit, ok := params["limit"].(float64); !ok || limit != 3 {
		t.Errorf("limit = %#v, want numeric 3", params["limit"])
	}
	if note := params["note"]; note != "dir has 3 entries" {
		t.Errorf("note = %#v, want stringified interpolation", note)
	}
}

func TestInterpolationErrors(t *testing.T) {
	tests := []struct {
		name  string
		steps []Step
	}{
		{
			"out of range",
			[]Step{
				{Action: "check_mail"},
				{Action: "read_file", Params: map[string]any{"path": "{{results[5].path}}"}},
			},
		},
		{
			"reference to failed step",
			[]Step{
				{Action: "read_file", Params: map[string]any{"path": "nope.md"}},
				{Action: "read_file", Params: map[string]any{"path": "{{results[0].content}}"}},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mail := &stubTool{name: "check_mail"}
			reader := &stubTool{name: "read_file", fail: models.NewToolError(models.ErrFileNotFound, "gone")}
			e := newTestExecutor(t, mail, reader)

			result, err := e.Run(context.Background(), &Script{Name: "x", Steps: tc.steps}, Options{}, nil)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			last := result.Steps[len(result.Steps)-1]
			if last.OK {
				t.Fatal("step with a bad reference succeeded")
			}
			if last.ErrorType != models.ErrInvalidArguments {
				t.Errorf("error_type = %s, want invalid_arguments", last.ErrorType)
			}
		})
	}
}

func TestRunPassContext(t *testing.T) {
	mail := &stubTool{name: "check_mail", result: map[string]any{
		"messages": []string{},
		"_context": map[string]any{"agent": "alice"},
	}}
	lister := &stubTool{name: "list_files", result: map[string]any{"entries": []string{}}}
	e := newTestExecutor(t, mail, lister)

	script := &Script{Name: "ctx", Steps: []Step{
		{Action: "check_mail"},
		{Action: "list_files", Params: map[string]any{"path": "docs"}},
	}}

	result, err := e.Run(context.Background(), script, Options{PassContext: true}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Context["agent"] != "alice" {
		t.Errorf("run context = %#v", result.Context)
	}

	var params map[string]any
	if err := json.Unmarshal(lister.last, &params); err != nil {
		t.Fatalf("unmarshal params: %v", err)
	}
	inner, ok := params["_context"].(map[string]any)
	if !ok || inner["agent"] != "alice" {
		t.Errorf("_context not threaded to later step: %#v", params["_context"])
	}
}

func TestCascadeClassification(t *testing.T) {
	tests := []struct {
		name     string
		steps    []StepResult
		detected bool
	}{
		{
			"uniform failures",
			[]StepResult{
				{ErrorType: models.ErrFileNotFound},
				{ErrorType: models.ErrFileNotFound},
				{ErrorType: models.ErrFileNotFound},
			},
			true,
		},
		{
			"single failure",
			[]StepResult{
				{OK: true},
				{ErrorType: models.ErrFileNotFound},
			},
			false,
		},
		{
			"mixed failures",
			[]StepResult{
				{ErrorType: models.ErrFileNotFound},
				{ErrorType: models.ErrPermissionDenied},
			},
			false,
		},
		{
			"dominant type over threshold",
			[]StepResult{
				{ErrorType: models.ErrFileNotFound},
				{ErrorType: models.ErrFileNotFound},
				{ErrorType: models.ErrFileNotFound},
				{ErrorType: models.ErrFileNotFound},
				{ErrorType: models.ErrPermissionDenied},
			},
			true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			report := classifyCascade(tc.steps)
			if report.Detected != tc.detected {
				t.Errorf("detected = %v, want %v", report.Detected, tc.detected)
			}
			if tc.detected && report.RootCause != models.ErrFileNotFound {
				t.Errorf("root cause = %s, want file_not_found", report.RootCause)
			}
			if tc.detected && len(report.MitigationSteps) == 0 {
				t.Error("detected cascade has no mitigation steps")
			}
		})
	}
}

func TestValidateFirstRejectsBeforeExecution(t *testing.T) {
	mail := &stubTool{name: "check_mail"}
	e := newTestExecutor(t, mail)

	script := &Script{Name: "bad tail", Steps: []Step{
		{Action: "check_mail"},
		{Command: "frobnicate the widgets"},
	}}

	_, err := e.Run(context.Background(), script, Options{ValidateFirst: true}, nil)
	te, ok := err.(*models.ToolError)
	if !ok {
		t.Fatalf("error = %v, want *models.ToolError", err)
	}
	if te.Type != models.ErrUnrecognizedCommand {
		t.Errorf("type = %s, want unrecognized_command", te.Type)
	}
	if te.ProcessingStage != "step 2" {
		t.Errorf("processing_stage = %q, want step 2", te.ProcessingStage)
	}
	if mail.calls.Load() != 0 {
		t.Error("rejected script still executed a step")
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	mail := &stubTool{name: "check_mail"}
	e := newTestExecutor(t, mail)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	script := &Script{Name: "cancelled", Steps: []Step{{Action: "check_mail"}}}
	if _, err := e.Run(ctx, script, Options{}, nil); err != context.Canceled {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
	if mail.calls.Load() != 0 {
		t.Error("cancelled run executed a step")
	}
}
