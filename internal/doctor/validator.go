// Package doctor implements workspace validation and the batch-driven
// health check runner.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aiwhisperer/aiwhisperer/internal/config"
	"github.com/aiwhisperer/aiwhisperer/internal/workspace"
)

// CheckStatus grades one validation check.
type CheckStatus string

const (
	StatusPass    CheckStatus = "pass"
	StatusWarning CheckStatus = "warning"
	StatusFail    CheckStatus = "fail"
	StatusInfo    CheckStatus = "info"
)

// CheckResult is the outcome of one workspace check.
type CheckResult struct {
	Name           string      `json:"name"`
	Category       string      `json:"category"`
	Status         CheckStatus `json:"status"`
	Message        string      `json:"message"`
	Recommendation string      `json:"recommendation,omitempty"`
}

// ValidationReport aggregates all checks; Overall is the worst status seen.
type ValidationReport struct {
	Overall CheckStatus   `json:"overall"`
	Checks  []CheckResult `json:"checks"`
}

// Validator inspects a workspace for the directory tree, configuration,
// credentials, and write permissions a server needs.
type Validator struct {
	paths *workspace.Paths
	cfg   *config.Config
}

// NewValidator creates a validator.
func NewValidator(paths *workspace.Paths, cfg *config.Config) *Validator {
	return &Validator{paths: paths, cfg: cfg}
}

// Validate runs every check and assembles the report.
func (v *Validator) Validate(ctx context.Context) *ValidationReport {
	report := &ValidationReport{Overall: StatusPass}

	add := func(r CheckResult) {
		report.Checks = append(report.Checks, r)
		if worse(r.Status, report.Overall) {
			report.Overall = r.Status
		}
	}

	add(v.checkWorkspaceRoot())
	for _, r := range v.checkDirectories() {
		add(r)
	}
	add(v.checkConfig())
	add(v.checkAPIKey())
	add(v.checkWritePermission())
	add(v.checkAgents())
	return report
}

// worse reports whether a is more severe than b.
func worse(a, b CheckStatus) bool {
	rank := map[CheckStatus]int{StatusInfo: 0, StatusPass: 0, StatusWarning: 1, StatusFail: 2}
	return rank[a] > rank[b]
}

func (v *Validator) checkWorkspaceRoot() CheckResult {
	info, err := os.Stat(v.paths.Root())
	if err != nil || !info.IsDir() {
		return CheckResult{
			Name: "workspace_root", Category: "filesystem", Status: StatusFail,
			Message:        fmt.Sprintf("workspace root %s is not a directory", v.paths.Root()),
			Recommendation: "point workspace.root at an existing project directory",
		}
	}
	return CheckResult{
		Name: "workspace_root", Category: "filesystem", Status: StatusPass,
		Message: "workspace root exists",
	}
}

func (v *Validator) checkDirectories() []CheckResult {
	var results []CheckResult
	for _, dir := range v.paths.All() {
		rel, _ := filepath.Rel(v.paths.Root(), dir)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			results = append(results, CheckResult{
				Name: "dir:" + rel, Category: "filesystem", Status: StatusWarning,
				Message:        fmt.Sprintf("%s is missing", rel),
				Recommendation: "run `whisperer validate --init` to create the workspace tree",
			})
			continue
		}
		results = append(results, CheckResult{
			Name: "dir:" + rel, Category: "filesystem", Status: StatusPass,
			Message: rel + " present",
		})
	}
	return results
}

func (v *Validator) checkConfig() CheckResult {
	if err := v.cfg.Validate(); err != nil {
		return CheckResult{
			Name: "config", Category: "configuration", Status: StatusFail,
			Message:        err.Error(),
			Recommendation: "fix the configuration file and re-run validation",
		}
	}
	return CheckResult{
		Name: "config", Category: "configuration", Status: StatusPass,
		Message: "configuration is consistent",
	}
}

// checkAPIKey verifies presence only. The value itself never appears in
// the report or in any log line.
func (v *Validator) checkAPIKey() CheckResult {
	env := v.cfg.LLM.APIKeyEnv
	if env == "" {
		env = "OPENROUTER_API_KEY"
	}
	if os.Getenv(env) == "" {
		return CheckResult{
			Name: "api_key", Category: "credentials", Status: StatusFail,
			Message:        fmt.Sprintf("%s is not set", env),
			Recommendation: fmt.Sprintf("export %s or add it to .env", env),
		}
	}
	return CheckResult{
		Name: "api_key", Category: "credentials", Status: StatusPass,
		Message: env + " is set",
	}
}

func (v *Validator) checkWritePermission() CheckResult {
	probe := filepath.Join(v.paths.Whisper(), ".write-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return CheckResult{
			Name: "write_permission", Category: "filesystem", Status: StatusFail,
			Message:        fmt.Sprintf("cannot write under %s: %v", workspace.WhisperDir, err),
			Recommendation: "check directory ownership and permissions",
		}
	}
	os.Remove(probe)
	return CheckResult{
		Name: "write_permission", Category: "filesystem", Status: StatusPass,
		Message: workspace.WhisperDir + " is writable",
	}
}

func (v *Validator) checkAgents() CheckResult {
	if len(v.cfg.Agents) == 0 {
		return CheckResult{
			Name: "agents", Category: "configuration", Status: StatusWarning,
			Message:        "no agents configured",
			Recommendation: "add at least one agent to the agents list",
		}
	}
	return CheckResult{
		Name: "agents", Category: "configuration", Status: StatusPass,
		Message: fmt.Sprintf("%d agents configured", len(v.cfg.Agents)),
	}
}
