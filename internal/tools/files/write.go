package files

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/aiwhisperer/aiwhisperer/internal/workspace"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// DefaultMaxWriteBytes bounds file-creation content.
const DefaultMaxWriteBytes = 1 << 20

// WriteTool implements create_file and write_file; the two differ only in
// whether an existing file is acceptable.
type WriteTool struct {
	resolver  Resolver
	maxBytes  int64
	overwrite bool
}

// NewCreateTool creates the create_file tool; it refuses to clobber an
// existing file.
func NewCreateTool(root string, maxBytes int64) *WriteTool {
	return newWriteTool(root, maxBytes, false)
}

// NewWriteTool creates the write_file tool; it overwrites.
func NewWriteTool(root string, maxBytes int64) *WriteTool {
	return newWriteTool(root, maxBytes, true)
}

func newWriteTool(root string, maxBytes int64, overwrite bool) *WriteTool {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxWriteBytes
	}
	return &WriteTool{resolver: Resolver{Root: root}, maxBytes: maxBytes, overwrite: overwrite}
}

func (t *WriteTool) Name() string {
	if t.overwrite {
		return "write_file"
	}
	return "create_file"
}

func (t *WriteTool) Description() string {
	if t.overwrite {
		return "Write content to a workspace file, replacing what is there."
	}
	return "Create a new workspace file. Fails if the file already exists."
}

func (t *WriteTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "File relative to the workspace root."},
			"content": {"type": "string", "description": "File content."}
		},
		"required": ["path", "content"]
	}`)
}

func (t *WriteTool) Execute(_ context.Context, params json.RawMessage) (any, error) {
	var input struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, models.NewToolError(models.ErrInvalidArguments, "decode params: %v", err)
	}
	if int64(len(input.Content)) > t.maxBytes {
		return nil, models.NewToolError(models.ErrMemoryExhaustion,
			"content is %d bytes, limit is %d", len(input.Content), t.maxBytes)
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return nil, err
	}

	if !t.overwrite {
		if _, err := os.Stat(resolved); err == nil {
			return nil, models.NewToolError(models.ErrConflictingOptions,
				"file %q already exists", input.Path).
				WithFile(input.Path).
				WithSuggestions("use write_file to replace its content")
		}
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return nil, models.NewToolError(models.ErrPermissionDenied, "create parent dirs: %v", err).WithFile(input.Path)
	}
	if err := workspace.WriteFileAtomic(resolved, []byte(input.Content), 0o644); err != nil {
		return nil, models.NewToolError(models.ErrPermissionDenied, "write %q: %v", input.Path, err).WithFile(input.Path)
	}

	return map[string]any{"path": input.Path, "bytes": len(input.Content)}, nil
}

func (t *WriteTool) Category() string { return "filesystem" }
func (t *WriteTool) Tags() []string   { return []string{"files", "write"} }
