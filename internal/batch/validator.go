package batch

import (
	"fmt"

	"github.com/aiwhisperer/aiwhisperer/internal/config"
	"github.com/aiwhisperer/aiwhisperer/internal/workspace"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// allowedActions is the batch execution allow-list. Anything not listed is
// rejected even if a tool by that name exists in the registry; scripts run
// unattended, so the surface stays small.
var allowedActions = map[string]bool{
	"list_files":           true,
	"read_file":            true,
	"create_file":          true,
	"write_file":           true,
	"switch_agent":         true,
	"send_mail":            true,
	"check_mail":           true,
	"reply_mail":           true,
	"create_rfc":           true,
	"read_rfc":             true,
	"update_rfc":           true,
	"move_rfc":             true,
	"list_rfcs":            true,
	"prepare_plan":         true,
	"save_plan":            true,
	"read_plan":            true,
	"list_plans":           true,
	"update_plan_from_rfc": true,
	"move_plan":            true,
	"workspace_validate":   true,
	"session_health":       true,
	"session_analysis":     true,
}

// deniedActions are rejected with an explicit reason instead of the generic
// not-in-allow-list message.
var deniedActions = map[string]string{
	"delete_file":     "destructive file operations are not allowed in scripts",
	"delete_rfc":      "destructive document operations are not allowed in scripts",
	"delete_plan":     "destructive document operations are not allowed in scripts",
	"execute_shell":   "shell execution is not allowed in scripts",
	"execute_command": "shell execution is not allowed in scripts",
	"eval":            "code evaluation is not allowed in scripts",
}

// pathParamKeys are the step parameters that are subject to path safety
// checks.
var pathParamKeys = []string{"path", "file", "filename", "dir", "directory"}

// Validator checks a parsed script before anything runs.
type Validator struct {
	cfg config.BatchConfig
}

// NewValidator creates a validator with the given limits.
func NewValidator(cfg config.BatchConfig) *Validator {
	return &Validator{cfg: cfg}
}

// Validate checks the whole script and returns the first violation.
func (v *Validator) Validate(script *Script) error {
	if script == nil || len(script.Steps) == 0 {
		return models.NewToolError(models.ErrInvalidArguments, "script has no steps")
	}
	if len(script.Steps) > v.cfg.MaxSteps {
		return models.NewToolError(models.ErrMemoryExhaustion,
			"script has %d steps, limit is %d", len(script.Steps), v.cfg.MaxSteps)
	}
	for i, step := range script.Steps {
		if err := v.ValidateStep(step); err != nil {
			if te, ok := err.(*models.ToolError); ok {
				te.ProcessingStage = fmt.Sprintf("step %d", i+1)
			}
			return err
		}
	}
	return nil
}

// ValidateStep checks one step. Command-only steps are checked again after
// interpretation at execution time, since interpretation can introduce an
// action the static pass never saw.
func (v *Validator) ValidateStep(step Step) error {
	if step.Action == "" && step.Command == "" {
		return models.NewToolError(models.ErrInvalidArguments, "step has neither action nor command")
	}
	if step.Command != "" {
		if err := checkDangerousText(step.Command); err != nil {
			return err
		}
	}
	if step.Action == "" {
		return nil
	}

	if reason, denied := deniedActions[step.Action]; denied {
		return models.NewToolError(models.ErrDangerousCommand, "action %q: %s", step.Action, reason)
	}
	if !allowedActions[step.Action] {
		return models.NewToolError(models.ErrInvalidArguments,
			"action %q is not in the script allow-list", step.Action)
	}

	for _, key := range pathParamKeys {
		raw, ok := step.Params[key]
		if !ok {
			continue
		}
		path, ok := raw.(string)
		if !ok {
			return models.NewToolError(models.ErrInvalidParameterType,
				"parameter %q must be a string", key)
		}
		if err := workspace.CheckPathSafety(path); err != nil {
			return err
		}
	}

	if content, ok := step.Params["content"].(string); ok {
		if int64(len(content)) > v.cfg.MaxFileSize {
			return models.NewToolError(models.ErrMemoryExhaustion,
				"content is %d bytes, limit is %d", len(content), v.cfg.MaxFileSize)
		}
	}
	return nil
}
