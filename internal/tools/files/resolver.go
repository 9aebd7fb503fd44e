// Package files implements the workspace-scoped filesystem tools:
// list_files, read_file, create_file, write_file.
package files

import (
	"path/filepath"
	"strings"

	"github.com/aiwhisperer/aiwhisperer/internal/workspace"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// Resolver confines tool paths to the workspace root.
type Resolver struct {
	Root string
}

// Resolve validates a user-supplied path and anchors it at the root.
// Absolute paths are rejected outright; the model only ever sees
// workspace-relative paths.
func (r Resolver) Resolve(path string) (string, error) {
	if err := workspace.CheckPathSafety(path); err != nil {
		return "", err
	}
	if filepath.IsAbs(path) {
		return "", models.NewToolError(models.ErrInvalidPath,
			"path %q is absolute; use a workspace-relative path", path).WithFile(path)
	}

	resolved := filepath.Join(r.Root, filepath.FromSlash(path))
	rel, err := filepath.Rel(r.Root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", models.NewToolError(models.ErrInvalidPath,
			"path %q escapes the workspace", path).WithFile(path)
	}
	return resolved, nil
}
