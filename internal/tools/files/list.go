package files

import (
	"context"
	"encoding/json"
	"os"
	"sort"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// ListTool implements list_files.
type ListTool struct {
	resolver Resolver
}

// NewListTool creates a list tool scoped to the workspace root.
func NewListTool(root string) *ListTool {
	return &ListTool{resolver: Resolver{Root: root}}
}

func (t *ListTool) Name() string { return "list_files" }

func (t *ListTool) Description() string {
	return "List the entries of a workspace directory."
}

func (t *ListTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Directory relative to the workspace root. Defaults to the root."}
		}
	}`)
}

// Entry is one directory listing row.
type Entry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

func (t *ListTool) Execute(_ context.Context, params json.RawMessage) (any, error) {
	var input struct {
		Path string `json:"path"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return nil, models.NewToolError(models.ErrInvalidArguments, "decode params: %v", err)
		}
	}
	if input.Path == "" {
		input.Path = "."
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.NewToolError(models.ErrFileNotFound, "directory %q not found", input.Path).WithFile(input.Path)
		}
		return nil, models.NewToolError(models.ErrPermissionDenied, "list %q: %v", input.Path, err).WithFile(input.Path)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		entry := Entry{Name: de.Name(), IsDir: de.IsDir()}
		if info, err := de.Info(); err == nil {
			entry.Size = info.Size()
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return map[string]any{"path": input.Path, "entries": entries}, nil
}

func (t *ListTool) Category() string { return "filesystem" }
func (t *ListTool) Tags() []string   { return []string{"files", "read-only"} }
