package files

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

func errType(t *testing.T, err error) models.ErrorType {
	t.Helper()
	var te *models.ToolError
	if !errors.As(err, &te) {
		t.Fatalf("error %v is not a *models.ToolError", err)
	}
	return te.Type
}

func TestResolverConfinesToRoot(t *testing.T) {
	root := t.TempDir()
	r := Resolver{Root: root}

	tests := []struct {
		name string
		path string
		ok   bool
	}{
		{"plain file", "notes.md", true},
		{"nested", "docs/spec.md", true},
		{"dot", ".", true},
		{"traversal", "../outside.txt", false},
		{"nested traversal", "docs/../../outside.txt", false},
		{"absolute", "/etc/passwd", false},
		{"metacharacter", "a;b.txt", false},
		{"empty", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resolved, err := r.Resolve(tc.path)
			if tc.ok {
				if err != nil {
					t.Fatalf("Resolve(%q) = %v", tc.path, err)
				}
				if !strings.HasPrefix(resolved, root) {
					t.Errorf("resolved %q outside root", resolved)
				}
				return
			}
			if got := errType(t, err); got != models.ErrInvalidPath {
				t.Errorf("type = %s, want invalid_path", got)
			}
		})
	}
}

func TestListFiles(t *testing.T) {
	root := t.TempDir()
	os.MkdirAll(filepath.Join(root, "docs"), 0o755)
	os.WriteFile(filepath.Join(root, "docs", "b.md"), []byte("bb"), 0o644)
	os.WriteFile(filepath.Join(root, "docs", "a.md"), []byte("a"), 0o644)

	tool := NewListTool(root)
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"path":"docs"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	entries := out.(map[string]any)["entries"].([]Entry)
	if len(entries) != 2 || entries[0].Name != "a.md" || entries[1].Name != "b.md" {
		t.Errorf("entries = %+v, want sorted a.md, b.md", entries)
	}
	if entries[1].Size != 2 {
		t.Errorf("size = %d", entries[1].Size)
	}

	// No params defaults to the root.
	if _, err := tool.Execute(context.Background(), nil); err != nil {
		t.Errorf("Execute without params: %v", err)
	}

	_, err = tool.Execute(context.Background(), json.RawMessage(`{"path":"absent"}`))
	if got := errType(t, err); got != models.ErrFileNotFound {
		t.Errorf("type = %s, want file_not_found", got)
	}
}

func TestReadFile(t *testing.T) {
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello world"), 0o644)

	tool := NewReadTool(root, 0)
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"path":"hello.txt"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	result := out.(map[string]any)
	if result["content"] != "hello world" || result["truncated"] != false {
		t.Errorf("result = %+v", result)
	}
}

func TestReadFileTruncates(t *testing.T) {
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, "big.txt"), []byte(strings.Repeat("x", 100)), 0o644)

	tool := NewReadTool(root, 10)
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"path":"big.txt"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	result := out.(map[string]any)
	if len(result["content"].(string)) != 10 || result["truncated"] != true {
		t.Errorf("result = %+v", result)
	}
}

func TestReadFileRejectsBinary(t *testing.T) {
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, "blob.bin"), []byte{0xff, 0xfe, 0x00, 0x80}, 0o644)

	tool := NewReadTool(root, 0)
	_, err := tool.Execute(context.Background(), json.RawMessage(`{"path":"blob.bin"}`))
	if got := errType(t, err); got != models.ErrEncoding {
		t.Errorf("type = %s, want encoding_error", got)
	}
}

func TestReadFileMissing(t *testing.T) {
	tool := NewReadTool(t.TempDir(), 0)
	_, err := tool.Execute(context.Background(), json.RawMessage(`{"path":"ghost.txt"}`))
	var te *models.ToolError
	if !errors.As(err, &te) || te.Type != models.ErrFileNotFound {
		t.Fatalf("error = %v, want file_not_found", err)
	}
	if len(te.Suggestions) == 0 {
		t.Error("missing file error has no suggestion")
	}
}

func TestCreateFileRefusesExisting(t *testing.T) {
	root := t.TempDir()
	tool := NewCreateTool(root, 0)
	ctx := context.Background()

	out, err := tool.Execute(ctx, json.RawMessage(`{"path":"new/nested.txt","content":"v1"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.(map[string]any)["bytes"] != 2 {
		t.Errorf("result = %+v", out)
	}
	data, _ := os.ReadFile(filepath.Join(root, "new", "nested.txt"))
	if string(data) != "v1" {
		t.Errorf("content = %q", data)
	}

	_, err = tool.Execute(ctx, json.RawMessage(`{"path":"new/nested.txt","content":"v2"}`))
	if got := errType(t, err); got != models.ErrConflictingOptions {
		t.Errorf("type = %s, want conflicting_options", got)
	}
}

func TestWriteFileOverwrites(t *testing.T) {
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, "note.txt"), []byte("old"), 0o644)

	tool := NewWriteTool(root, 0)
	if _, err := tool.Execute(context.Background(), json.RawMessage(`{"path":"note.txt","content":"new"}`)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(root, "note.txt"))
	if string(data) != "new" {
		t.Errorf("content = %q", data)
	}
}

func TestWriteContentLimit(t *testing.T) {
	tool := NewCreateTool(t.TempDir(), 4)
	params := fmt.Sprintf(`{"path":"big.txt","content":%q}`, strings.Repeat("x", 5))
	_, err := tool.Execute(context.Background(), json.RawMessage(params))
	if got := errType(t, err); got != models.ErrMemoryExhaustion {
		t.Errorf("type = %s, want memory_exhaustion", got)
	}
}

func TestToolNames(t *testing.T) {
	root := t.TempDir()
	if name := NewCreateTool(root, 0).Name(); name != "create_file" {
		t.Errorf("create tool name = %q", name)
	}
	if name := NewWriteTool(root, 0).Name(); name != "write_file" {
		t.Errorf("write tool name = %q", name)
	}
}
