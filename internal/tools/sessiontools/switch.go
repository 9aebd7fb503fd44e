// Package sessiontools exposes session control as tools, currently
// switch_agent.
package sessiontools

import (
	"context"
	"encoding/json"

	"github.com/aiwhisperer/aiwhisperer/internal/observability"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// AgentSwitcher is the session-manager surface the switch_agent tool
// drives. An interface keeps the tool package out of the sessions import
// graph.
type AgentSwitcher interface {
	SwitchAgent(ctx context.Context, sessionID, agentID string) error
}

// SwitchTool implements switch_agent.
type SwitchTool struct {
	switcher AgentSwitcher
}

// NewSwitchTool creates the switch_agent tool.
func NewSwitchTool(switcher AgentSwitcher) *SwitchTool {
	return &SwitchTool{switcher: switcher}
}

func (t *SwitchTool) Name() string { return "switch_agent" }

func (t *SwitchTool) Description() string {
	return "Hand the current session over to a different agent persona."
}

func (t *SwitchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"agent_id": {"type": "string", "description": "Agent to switch to, e.g. patricia."}
		},
		"required": ["agent_id"]
	}`)
}

func (t *SwitchTool) Execute(ctx context.Context, params json.RawMessage) (any, error) {
	var input struct {
		AgentID string `json:"agent_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, models.NewToolError(models.ErrInvalidArguments, "decode params: %v", err)
	}

	sessionID := observability.GetSessionID(ctx)
	if sessionID == "" {
		return nil, models.NewToolError(models.ErrInvalidConfiguration,
			"switch_agent called outside a session")
	}
	if err := t.switcher.SwitchAgent(ctx, sessionID, input.AgentID); err != nil {
		return nil, models.NewToolError(models.ErrInvalidArguments, "%v", err)
	}
	return map[string]any{"session_id": sessionID, "agent_id": input.AgentID}, nil
}

func (t *SwitchTool) Category() string { return "session" }
func (t *SwitchTool) Tags() []string   { return []string{"agents"} }
