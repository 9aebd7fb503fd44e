// Package rfctools exposes the RFC store as tools: create_rfc, read_rfc,
// update_rfc, move_rfc, list_rfcs, delete_rfc.
package rfctools

import (
	"context"
	"encoding/json"

	"github.com/aiwhisperer/aiwhisperer/internal/observability"
	"github.com/aiwhisperer/aiwhisperer/internal/rfc"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// CreateTool implements create_rfc.
type CreateTool struct {
	store *rfc.Store
}

// NewCreateTool creates the create_rfc tool.
func NewCreateTool(store *rfc.Store) *CreateTool { return &CreateTool{store: store} }

func (t *CreateTool) Name() string { return "create_rfc" }

func (t *CreateTool) Description() string {
	return "Create a new RFC document in in_progress with a generated id."
}

func (t *CreateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"title": {"type": "string", "description": "RFC title."},
			"short_name": {"type": "string", "description": "Short name used for the filename, e.g. dark-mode."}
		},
		"required": ["title"]
	}`)
}

func (t *CreateTool) Execute(ctx context.Context, params json.RawMessage) (any, error) {
	var input struct {
		Title     string `json:"title"`
		ShortName string `json:"short_name"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, models.NewToolError(models.ErrInvalidArguments, "decode params: %v", err)
	}
	if input.ShortName == "" {
		input.ShortName = input.Title
	}

	author := observability.GetAgentID(ctx)
	if author == "" {
		author = "user"
	}
	meta, err := t.store.Create(ctx, input.Title, input.ShortName, author)
	if err != nil {
		return nil, err
	}
	return meta, nil
}

func (t *CreateTool) Category() string { return "rfc" }
func (t *CreateTool) Tags() []string   { return []string{"rfc", "write"} }

// ReadTool implements read_rfc.
type ReadTool struct {
	store *rfc.Store
}

// NewReadTool creates the read_rfc tool.
func NewReadTool(store *rfc.Store) *ReadTool { return &ReadTool{store: store} }

func (t *ReadTool) Name() string { return "read_rfc" }

func (t *ReadTool) Description() string {
	return "Read an RFC's markdown and metadata by id."
}

func (t *ReadTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"rfc_id": {"type": "string", "description": "RFC id, e.g. RFC-2026-08-24-0001."}
		},
		"required": ["rfc_id"]
	}`)
}

func (t *ReadTool) Execute(_ context.Context, params json.RawMessage) (any, error) {
	var input struct {
		RFCID string `json:"rfc_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, models.NewToolError(models.ErrInvalidArguments, "decode params: %v", err)
	}
	doc, err := t.store.Read(input.RFCID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"metadata": doc.Meta, "content": doc.Content}, nil
}

func (t *ReadTool) Category() string { return "rfc" }
func (t *ReadTool) Tags() []string   { return []string{"rfc", "read-only"} }

// UpdateTool implements update_rfc.
type UpdateTool struct {
	store *rfc.Store
}

// NewUpdateTool creates the update_rfc tool.
func NewUpdateTool(store *rfc.Store) *UpdateTool { return &UpdateTool{store: store} }

func (t *UpdateTool) Name() string { return "update_rfc" }

func (t *UpdateTool) Description() string {
	return "Replace an RFC's markdown content."
}

func (t *UpdateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"rfc_id": {"type": "string"},
			"content": {"type": "string", "description": "Full replacement markdown."}
		},
		"required": ["rfc_id", "content"]
	}`)
}

func (t *UpdateTool) Execute(ctx context.Context, params json.RawMessage) (any, error) {
	var input struct {
		RFCID   string `json:"rfc_id"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, models.NewToolError(models.ErrInvalidArguments, "decode params: %v", err)
	}
	meta, err := t.store.UpdateContent(ctx, input.RFCID, input.Content)
	if err != nil {
		return nil, err
	}
	return meta, nil
}

func (t *UpdateTool) Category() string { return "rfc" }
func (t *UpdateTool) Tags() []string   { return []string{"rfc", "write"} }

// MoveTool implements move_rfc.
type MoveTool struct {
	store *rfc.Store
}

// NewMoveTool creates the move_rfc tool.
func NewMoveTool(store *rfc.Store) *MoveTool { return &MoveTool{store: store} }

func (t *MoveTool) Name() string { return "move_rfc" }

func (t *MoveTool) Description() string {
	return "Move an RFC between in_progress and archived."
}

func (t *MoveTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"rfc_id": {"type": "string"},
			"status": {"enum": ["new", "in_progress", "archived"], "description": "Target status; new is an alias of in_progress."},
			"reason": {"type": "string"}
		},
		"required": ["rfc_id", "status"]
	}`)
}

func (t *MoveTool) Execute(ctx context.Context, params json.RawMessage) (any, error) {
	var input struct {
		RFCID  string `json:"rfc_id"`
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, models.NewToolError(models.ErrInvalidArguments, "decode params: %v", err)
	}
	meta, err := t.store.Move(ctx, input.RFCID, models.NormalizeRFCStatus(input.Status), input.Reason)
	if err != nil {
		return nil, err
	}
	return meta, nil
}

func (t *MoveTool) Category() string { return "rfc" }
func (t *MoveTool) Tags() []string   { return []string{"rfc", "write"} }

// ListTool implements list_rfcs.
type ListTool struct {
	store *rfc.Store
}

// NewListTool creates the list_rfcs tool.
func NewListTool(store *rfc.Store) *ListTool { return &ListTool{store: store} }

func (t *ListTool) Name() string { return "list_rfcs" }

func (t *ListTool) Description() string {
	return "List RFCs, optionally filtered by status."
}

func (t *ListTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"status": {"enum": ["new", "in_progress", "archived"]}
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

	statuses := []models.RFCStatus{models.RFCInProgress, models.RFCArchived}
	if input.Status != "" {
		statuses = []models.RFCStatus{models.NormalizeRFCStatus(input.Status)}
	}

	all := make([]models.RFCMetadata, 0)
	for _, status := range statuses {
		metas, err := t.store.List(status)
		if err != nil {
			return nil, err
		}
		all = append(all, metas...)
	}
	return map[string]any{"rfcs": all, "count": len(all)}, nil
}

func (t *ListTool) Category() string { return "rfc" }
func (t *ListTool) Tags() []string   { return []string{"rfc", "read-only"} }

// DeleteTool implements delete_rfc. Registered for interactive sessions;
// the batch allow-list rejects it.
type DeleteTool struct {
	store *rfc.Store
}

// NewDeleteTool creates the delete_rfc tool.
func NewDeleteTool(store *rfc.Store) *DeleteTool { return &DeleteTool{store: store} }

func (t *DeleteTool) Name() string { return "delete_rfc" }

func (t *DeleteTool) Description() string {
	return "Delete an RFC. Refuses when derived plans exist unless force is set."
}

func (t *DeleteTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"rfc_id": {"type": "string"},
			"force": {"type": "boolean"}
		},
		"required": ["rfc_id"]
	}`)
}

func (t *DeleteTool) Execute(ctx context.Context, params json.RawMessage) (any, error) {
	var input struct {
		RFCID string `json:"rfc_id"`
		Force bool   `json:"force"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, models.NewToolError(models.ErrInvalidArguments, "decode params: %v", err)
	}
	if err := t.store.Delete(ctx, input.RFCID, input.Force); err != nil {
		return nil, err
	}
	return map[string]any{"rfc_id": input.RFCID, "deleted": true}, nil
}

func (t *DeleteTool) Category() string { return "rfc" }
func (t *DeleteTool) Tags() []string   { return []string{"rfc", "destructive"} }
