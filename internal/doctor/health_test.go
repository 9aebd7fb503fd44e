package doctor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aiwhisperer/aiwhisperer/internal/agent"
	"github.com/aiwhisperer/aiwhisperer/internal/batch"
	"github.com/aiwhisperer/aiwhisperer/internal/config"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// healthStubTool answers check_mail style probes; fail makes it error.
type healthStubTool struct {
	name string
	fail bool
}

func (s *healthStubTool) Name() string            { return s.name }
func (s *healthStubTool) Description() string     { return "health probe stub" }
func (s *healthStubTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }

func (s *healthStubTool) Execute(context.Context, json.RawMessage) (any, error) {
	if s.fail {
		return nil, models.NewToolError(models.ErrFileNotFound, "probe target missing")
	}
	return map[string]any{"ok": true}, nil
}

func newHealthRunner(t *testing.T, scriptDir string, failReads bool) *HealthRunner {
	t.Helper()
	registry := agent.NewRegistry()
	registry.MustRegister(&healthStubTool{name: "check_mail"})
	registry.MustRegister(&healthStubTool{name: "read_file", fail: failReads})
	registry.Seal()

	cfg := config.Default().Batch
	return NewHealthRunner(scriptDir,
		batch.NewParser(cfg),
		batch.NewExecutor(registry, cfg, nil, nil),
		nil)
}

func writeScript(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestHealthRunMixedOutcomes(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "a-mail.json", `{"name":"mail","steps":[{"action":"check_mail"}]}`)
	writeScript(t, dir, "b-files.json", `{"name":"files","steps":[{"action":"read_file","params":{"path":"docs/x.md"}},{"action":"check_mail"}]}`)
	writeScript(t, dir, "c-broken.txt", "frobnicate the widgets\n")
	writeScript(t, dir, "notes.md", "not a script\n")

	runner := newHealthRunner(t, dir, true)
	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(report.Scripts) != 3 {
		t.Fatalf("scripts = %d, want 3 (md files ignored)", len(report.Scripts))
	}
	if report.Passed != 1 || report.Failed != 1 || report.Error != 1 || report.Timeout != 0 {
		t.Errorf("report = %+v", report)
	}
	if report.Score < 33 || report.Score > 34 {
		t.Errorf("score = %.2f, want one third", report.Score)
	}

	// Discovery is sorted, so the reports line up with the filenames.
	if report.Scripts[0].Outcome != OutcomePassed {
		t.Errorf("a-mail = %s", report.Scripts[0].Outcome)
	}
	failing := report.Scripts[1]
	if failing.Outcome != OutcomeFailed || failing.Failed != 1 {
		t.Errorf("b-files = %+v", failing)
	}
	if failing.Detail == "" {
		t.Error("failed script has no first-failure detail")
	}
	if report.Scripts[2].Outcome != OutcomeError {
		t.Errorf("c-broken = %s", report.Scripts[2].Outcome)
	}
}

func TestHealthRunAllPassing(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "probe.yaml", "name: probe\nsteps:\n  - action: check_mail\n  - action: read_file\n    params:\n      path: docs/x.md\n")

	runner := newHealthRunner(t, dir, false)
	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Passed != 1 || report.Score != 100 {
		t.Errorf("report = %+v", report)
	}
}

func TestHealthRunNoScripts(t *testing.T) {
	runner := newHealthRunner(t, filepath.Join(t.TempDir(), "absent"), false)
	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Scripts) != 0 || report.Score != 0 {
		t.Errorf("report = %+v", report)
	}
	if report.Summary != "no health scripts found" {
		t.Errorf("summary = %q", report.Summary)
	}
}
