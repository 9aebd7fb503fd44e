package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aiwhisperer/aiwhisperer/internal/batch"
	"github.com/aiwhisperer/aiwhisperer/internal/observability"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// ScriptOutcome classifies one health script run.
type ScriptOutcome string

const (
	OutcomePassed  ScriptOutcome = "passed"
	OutcomeFailed  ScriptOutcome = "failed"
	OutcomeTimeout ScriptOutcome = "timeout"
	OutcomeError   ScriptOutcome = "error"
)

// ScriptReport is the result of one health script.
type ScriptReport struct {
	Script  string        `json:"script"`
	Outcome ScriptOutcome `json:"outcome"`
	Detail  string        `json:"detail,omitempty"`
	Steps   int           `json:"steps"`
	Failed  int           `json:"failed"`
}

// HealthReport aggregates a full health run.
type HealthReport struct {
	Passed  int            `json:"passed"`
	Failed  int            `json:"failed"`
	Timeout int            `json:"timeout"`
	Error   int            `json:"error"`
	Score   float64        `json:"score"`
	Scripts []ScriptReport `json:"scripts"`
	Summary string         `json:"summary"`
}

// HealthRunner discovers health scripts and drives them through the batch
// runtime.
type HealthRunner struct {
	scriptDir string
	parser    *batch.Parser
	executor  *batch.Executor
	logger    *observability.Logger
}

// NewHealthRunner creates a runner over a script directory.
func NewHealthRunner(scriptDir string, parser *batch.Parser, executor *batch.Executor, logger *observability.Logger) *HealthRunner {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &HealthRunner{scriptDir: scriptDir, parser: parser, executor: executor, logger: logger}
}

// Run executes every discovered script and assembles the report. Scripts
// run with stop_on_error so one broken step does not bury the root cause
// under follow-on noise.
func (h *HealthRunner) Run(ctx context.Context) (*HealthReport, error) {
	scripts, err := h.discover()
	if err != nil {
		return nil, err
	}

	report := &HealthReport{}
	for _, script := range scripts {
		sr := h.runOne(ctx, script)
		report.Scripts = append(report.Scripts, sr)
		switch sr.Outcome {
		case OutcomePassed:
			report.Passed++
		case OutcomeFailed:
			report.Failed++
		case OutcomeTimeout:
			report.Timeout++
		default:
			report.Error++
		}
	}

	total := len(report.Scripts)
	if total > 0 {
		report.Score = float64(report.Passed) / float64(total) * 100
	}
	report.Summary = summarize(report, total)
	return report, nil
}

func (h *HealthRunner) discover() ([]string, error) {
	entries, err := os.ReadDir(h.scriptDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read health scripts: %w", err)
	}

	var scripts []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".yml", ".yaml", ".txt", ".script":
			scripts = append(scripts, filepath.Join(h.scriptDir, entry.Name()))
		}
	}
	sort.Strings(scripts)
	return scripts, nil
}

func (h *HealthRunner) runOne(ctx context.Context, path string) ScriptReport {
	name := filepath.Base(path)

	script, err := h.parser.Parse(ctx, path)
	if err != nil {
		return ScriptReport{Script: name, Outcome: OutcomeError, Detail: err.Error()}
	}

	result, err := h.executor.Run(ctx, script, batch.Options{StopOnError: true}, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return ScriptReport{Script: name, Outcome: OutcomeTimeout, Detail: err.Error()}
		}
		var te *models.ToolError
		if errors.As(err, &te) && te.Type == models.ErrProcessingTimeout {
			return ScriptReport{Script: name, Outcome: OutcomeTimeout, Detail: te.Message}
		}
		return ScriptReport{Script: name, Outcome: OutcomeError, Detail: err.Error()}
	}

	sr := ScriptReport{Script: name, Steps: result.Total, Failed: result.Failed}
	if result.Success {
		sr.Outcome = OutcomePassed
	} else {
		sr.Outcome = OutcomeFailed
		sr.Detail = firstFailure(result)
	}
	return sr
}

func firstFailure(result *batch.Result) string {
	for _, step := range result.Steps {
		if !step.OK && !step.Skipped {
			return fmt.Sprintf("step %d (%s): %s", step.Index+1, step.Action, step.Message)
		}
	}
	return ""
}

func summarize(report *HealthReport, total int) string {
	if total == 0 {
		return "no health scripts found"
	}
	return fmt.Sprintf("%d/%d health scripts passed (score %.0f%%): %d failed, %d timed out, %d errored",
		report.Passed, total, report.Score, report.Failed, report.Timeout, report.Error)
}
