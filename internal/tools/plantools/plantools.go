// Package plantools exposes the plan store as tools: prepare_plan,
// save_plan, read_plan, list_plans, update_plan_from_rfc, move_plan,
// delete_plan.
package plantools

import (
	"context"
	"encoding/json"

	"github.com/aiwhisperer/aiwhisperer/internal/plan"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// PrepareTool implements prepare_plan. It hands the agent the RFC content
// and the plan name to use; the agent generates the plan JSON and calls
// save_plan with it.
type PrepareTool struct {
	store *plan.Store
}

// NewPrepareTool creates the prepare_plan tool.
func NewPrepareTool(store *plan.Store) *PrepareTool { return &PrepareTool{store: store} }

func (t *PrepareTool) Name() string { return "prepare_plan" }

func (t *PrepareTool) Description() string {
	return "Fetch an RFC's content and hash to draft a structured plan from. Follow up with save_plan."
}

func (t *PrepareTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"rfc_id": {"type": "string", "description": "Source RFC id."}
		},
		"required": ["rfc_id"]
	}`)
}

func (t *PrepareTool) Execute(_ context.Context, params json.RawMessage) (any, error) {
	var input struct {
		RFCID string `json:"rfc_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, models.NewToolError(models.ErrInvalidArguments, "decode params: %v", err)
	}
	prep, err := t.store.Prepare(input.RFCID)
	if err != nil {
		return nil, err
	}
	return prep, nil
}

func (t *PrepareTool) Category() string { return "plan" }
func (t *PrepareTool) Tags() []string   { return []string{"plan", "read-only"} }

// SaveTool implements save_plan.
type SaveTool struct {
	store *plan.Store
}

// NewSaveTool creates the save_plan tool.
func NewSaveTool(store *plan.Store) *SaveTool { return &SaveTool{store: store} }

func (t *SaveTool) Name() string { return "save_plan" }

func (t *SaveTool) Description() string {
	return "Validate generated plan JSON against the plan schema and persist it."
}

func (t *SaveTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"rfc_id": {"type": "string", "description": "Source RFC id from prepare_plan."},
			"plan_name": {"type": "string", "description": "Plan name from prepare_plan."},
			"plan": {"type": "object", "description": "The generated plan document."}
		},
		"required": ["rfc_id", "plan_name", "plan"]
	}`)
}

func (t *SaveTool) Execute(ctx context.Context, params json.RawMessage) (any, error) {
	var input struct {
		RFCID    string          `json:"rfc_id"`
		PlanName string          `json:"plan_name"`
		Plan     json.RawMessage `json:"plan"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, models.NewToolError(models.ErrInvalidArguments, "decode params: %v", err)
	}
	p, err := t.store.Save(ctx, input.RFCID, input.PlanName, input.Plan)
	if err != nil {
		return nil, err
	}
	return map[string]any{"plan_name": input.PlanName, "tasks": len(p.Tasks)}, nil
}

func (t *SaveTool) Category() string { return "plan" }
func (t *SaveTool) Tags() []string   { return []string{"plan", "write"} }

// ReadTool implements read_plan.
type ReadTool struct {
	store *plan.Store
}

// NewReadTool creates the read_plan tool.
func NewReadTool(store *plan.Store) *ReadTool { return &ReadTool{store: store} }

func (t *ReadTool) Name() string { return "read_plan" }

func (t *ReadTool) Description() string {
	return "Read a plan, its RFC reference, and whether the source RFC has drifted."
}

func (t *ReadTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"plan_name": {"type": "string"}
		},
		"required": ["plan_name"]
	}`)
}

func (t *ReadTool) Execute(_ context.Context, params json.RawMessage) (any, error) {
	var input struct {
		PlanName string `json:"plan_name"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, models.NewToolError(models.ErrInvalidArguments, "decode params: %v", err)
	}
	doc, err := t.store.Read(input.PlanName)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (t *ReadTool) Category() string { return "plan" }
func (t *ReadTool) Tags() []string   { return []string{"plan", "read-only"} }

// ListTool implements list_plans.
type ListTool struct {
	store *plan.Store
}

// NewListTool creates the list_plans tool.
func NewListTool(store *plan.Store) *ListTool { return &ListTool{store: store} }

func (t *ListTool) Name() string { return "list_plans" }

func (t *ListTool) Description() string {
	return "List plan names, optionally filtered by status."
}

func (t *ListTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"status": {"enum": ["in_progress", "archived"]}
		}
	}`)
}

func (t *ListTool) Execute(_ context.Context, params json.RawMessage) (any, error) {
	var input struct {
		Status string `json:"status"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return nil, models.NewToolError(models.ErrInvalidArguments, "decode params: %v", err)
		}
	}

	statuses := []models.PlanStatus{models.RFCInProgress, models.RFCArchived}
	if input.Status != "" {
		statuses = []models.PlanStatus{models.NormalizeRFCStatus(input.Status)}
	}

	plans := make([]map[string]any, 0)
	for _, status := range statuses {
		names, err := t.store.List(status)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			plans = append(plans, map[string]any{"name": name, "status": status})
		}
	}
	return map[string]any{"plans": plans, "count": len(plans)}, nil
}

func (t *ListTool) Category() string { return "plan" }
func (t *ListTool) Tags() []string   { return []string{"plan", "read-only"} }

// UpdateTool implements update_plan_from_rfc.
type UpdateTool struct {
	store    *plan.Store
	generate plan.Generator
}

// NewUpdateTool creates the update_plan_from_rfc tool. The generator is the
// LLM-backed regeneration hook.
func NewUpdateTool(store *plan.Store, generate plan.Generator) *UpdateTool {
	return &UpdateTool{store: store, generate: generate}
}

func (t *UpdateTool) Name() string { return "update_plan_from_rfc" }

func (t *UpdateTool) Description() string {
	return "Regenerate a plan from its source RFC when the RFC changed. No-op when the hash is unchanged unless force is set."
}

func (t *UpdateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"plan_name": {"type": "string"},
			"force": {"type": "boolean", "description": "Regenerate even when the RFC hash is unchanged."},
			"preserve_progress": {"type": "boolean", "description": "Carry task statuses over to same-named regenerated tasks. Defaults to true."}
		},
		"required": ["plan_name"]
	}`)
}

func (t *UpdateTool) Execute(ctx context.Context, params json.RawMessage) (any, error) {
	input := struct {
		PlanName         string `json:"plan_name"`
		Force            bool   `json:"force"`
		PreserveProgress *bool  `json:"preserve_progress"`
	}{}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, models.NewToolError(models.ErrInvalidArguments, "decode params: %v", err)
	}
	preserve := true
	if input.PreserveProgress != nil {
		preserve = *input.PreserveProgress
	}

	p, changed, err := t.store.UpdateFromRFC(ctx, input.PlanName, t.generate, input.Force, preserve)
	if err != nil {
		return nil, err
	}
	out := map[string]any{"plan_name": input.PlanName, "changed": changed}
	if changed {
		out["tasks"] = len(p.Tasks)
	}
	return out, nil
}

func (t *UpdateTool) Category() string { return "plan" }
func (t *UpdateTool) Tags() []string   { return []string{"plan", "write"} }

// MoveTool implements move_plan.
type MoveTool struct {
	store *plan.Store
}

// NewMoveTool creates the move_plan tool.
func NewMoveTool(store *plan.Store) *MoveTool { return &MoveTool{store: store} }

func (t *MoveTool) Name() string { return "move_plan" }

func (t *MoveTool) Description() string {
	return "Move a plan between in_progress and archived."
}

func (t *MoveTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"plan_name": {"type": "string"},
			"status": {"enum": ["in_progress", "archived"]}
		},
		"required": ["plan_name", "status"]
	}`)
}

func (t *MoveTool) Execute(ctx context.Context, params json.RawMessage) (any, error) {
	var input struct {
		PlanName string `json:"plan_name"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, models.NewToolError(models.ErrInvalidArguments, "decode params: %v", err)
	}
	if err := t.store.Move(ctx, input.PlanName, models.NormalizeRFCStatus(input.Status)); err != nil {
		return nil, err
	}
	return map[string]any{"plan_name": input.PlanName, "status": input.Status}, nil
}

func (t *MoveTool) Category() string { return "plan" }
func (t *MoveTool) Tags() []string   { return []string{"plan", "write"} }

// DeleteTool implements delete_plan. Registered for interactive sessions;
// the batch allow-list rejects it.
type DeleteTool struct {
	store *plan.Store
}

// NewDeleteTool creates the delete_plan tool.
func NewDeleteTool(store *plan.Store) *DeleteTool { return &DeleteTool{store: store} }

func (t *DeleteTool) Name() string { return "delete_plan" }

func (t *DeleteTool) Description() string {
	return "Delete a plan directory and unlink it from its source RFC."
}

func (t *DeleteTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"plan_name": {"type": "string"}
		},
		"required": ["plan_name"]
	}`)
}

func (t *DeleteTool) Execute(ctx context.Context, params json.RawMessage) (any, error) {
	var input struct {
		PlanName string `json:"plan_name"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, models.NewToolError(models.ErrInvalidArguments, "decode params: %v", err)
	}
	if err := t.store.Delete(ctx, input.PlanName); err != nil {
		return nil, err
	}
	return map[string]any{"plan_name": input.PlanName, "deleted": true}, nil
}

func (t *DeleteTool) Category() string { return "plan" }
func (t *DeleteTool) Tags() []string   { return []string{"plan", "destructive"} }
