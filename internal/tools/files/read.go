package files

import (
	"context"
	"encoding/json"
	"os"
	"unicode/utf8"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// DefaultMaxReadBytes caps read_file results so one oversized file cannot
// blow up the model context.
const DefaultMaxReadBytes = 200_000

// ReadTool implements read_file.
type ReadTool struct {
	resolver Resolver
	maxBytes int
}

// NewReadTool creates a read tool scoped to the workspace root.
func NewReadTool(root string, maxBytes int) *ReadTool {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxReadBytes
	}
	return &ReadTool{resolver: Resolver{Root: root}, maxBytes: maxBytes}
}

func (t *ReadTool) Name() string { return "read_file" }

func (t *ReadTool) Description() string {
	return "Read a text file from the workspace."
}

func (t *ReadTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "File relative to the workspace root."}
		},
		"required": ["path"]
	}`)
}

func (t *ReadTool) Execute(_ context.Context, params json.RawMessage) (any, error) {
	var input struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, models.NewToolError(models.ErrInvalidArguments, "decode params: %v", err)
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.NewToolError(models.ErrFileNotFound, "file %q not found", input.Path).
				WithFile(input.Path).
				WithSuggestions("use list_files to see what exists")
		}
		return nil, models.NewToolError(models.ErrPermissionDenied, "read %q: %v", input.Path, err).WithFile(input.Path)
	}

	truncated := false
	if len(data) > t.maxBytes {
		data = data[:t.maxBytes]
		truncated = true
	}
	if !utf8.Valid(data) {
		return nil, models.NewToolError(models.ErrEncoding,
			"file %q is not valid UTF-8 text", input.Path).WithFile(input.Path)
	}

	return map[string]any{
		"path":      input.Path,
		"content":   string(data),
		"truncated": truncated,
	}, nil
}

func (t *ReadTool) Category() string { return "filesystem" }
func (t *ReadTool) Tags() []string   { return []string{"files", "read-only"} }
