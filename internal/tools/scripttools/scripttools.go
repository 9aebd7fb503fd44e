// Package scripttools exposes workspace diagnostics as tools:
// workspace_validate, session_health, session_analysis.
package scripttools

import (
	"context"
	"encoding/json"

	"github.com/aiwhisperer/aiwhisperer/internal/doctor"
	"github.com/aiwhisperer/aiwhisperer/internal/observability"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// ValidateTool implements workspace_validate.
type ValidateTool struct {
	validator *doctor.Validator
}

// NewValidateTool creates the workspace_validate tool.
func NewValidateTool(validator *doctor.Validator) *ValidateTool {
	return &ValidateTool{validator: validator}
}

func (t *ValidateTool) Name() string { return "workspace_validate" }

func (t *ValidateTool) Description() string {
	return "Check workspace structure, configuration, credentials, and write access."
}

func (t *ValidateTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *ValidateTool) Execute(ctx context.Context, _ json.RawMessage) (any, error) {
	return t.validator.Validate(ctx), nil
}

func (t *ValidateTool) Category() string { return "diagnostics" }
func (t *ValidateTool) Tags() []string   { return []string{"workspace", "read-only"} }

// HealthTool implements session_health.
type HealthTool struct {
	runner *doctor.HealthRunner
}

// NewHealthTool creates the session_health tool.
func NewHealthTool(runner *doctor.HealthRunner) *HealthTool {
	return &HealthTool{runner: runner}
}

func (t *HealthTool) Name() string { return "session_health" }

func (t *HealthTool) Description() string {
	return "Run the workspace health scripts and report a pass-rate score."
}

func (t *HealthTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *HealthTool) Execute(ctx context.Context, _ json.RawMessage) (any, error) {
	report, err := t.runner.Run(ctx)
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (t *HealthTool) Category() string { return "diagnostics" }
func (t *HealthTool) Tags() []string   { return []string{"health"} }

// AnalysisTool implements session_analysis.
type AnalysisTool struct {
	analyzer *doctor.SessionAnalyzer
}

// NewAnalysisTool creates the session_analysis tool.
func NewAnalysisTool(analyzer *doctor.SessionAnalyzer) *AnalysisTool {
	return &AnalysisTool{analyzer: analyzer}
}

func (t *AnalysisTool) Name() string { return "session_analysis" }

func (t *AnalysisTool) Description() string {
	return "Summarise a session's recent event stream: errors, response times, tool usage."
}

func (t *AnalysisTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"session_id": {"type": "string", "description": "Defaults to the calling session."}
		}
	}`)
}

func (t *AnalysisTool) Execute(ctx context.Context, params json.RawMessage) (any, error) {
	var input struct {
		SessionID string `json:"session_id"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return nil, models.NewToolError(models.ErrInvalidArguments, "decode params: %v", err)
		}
	}
	if input.SessionID == "" {
		input.SessionID = observability.GetSessionID(ctx)
	}
	if input.SessionID == "" {
		return nil, models.NewToolError(models.ErrInvalidArguments,
			"session_id required outside a session")
	}

	summary, err := t.analyzer.Analyze(ctx, input.SessionID)
	if err != nil {
		return nil, models.NewToolError(models.ErrFileNotFound, "%v", err)
	}
	return map[string]any{"session_id": input.SessionID, "analysis": summary}, nil
}

func (t *AnalysisTool) Category() string { return "diagnostics" }
func (t *AnalysisTool) Tags() []string   { return []string{"sessions", "read-only"} }
