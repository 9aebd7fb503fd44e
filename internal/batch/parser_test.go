package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aiwhisperer/aiwhisperer/internal/config"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

func testParser() *Parser {
	return NewParser(config.Default().Batch)
}

func errType(t *testing.T, err error) models.ErrorType {
	t.Helper()
	var te *models.ToolError
	if !errors.As(err, &te) {
		t.Fatalf("error %v is not a *models.ToolError", err)
	}
	return te.Type
}

func TestParseJSONScript(t *testing.T) {
	data := []byte(`{
		"name": "demo",
		"description": "two steps",
		"steps": [
			{"action": "list_files", "params": {"path": "docs"}},
			{"action": "read_file", "params": {"path": "docs/spec.md"}}
		]
	}`)

	script, err := testParser().ParseBytes(context.Background(), data, FormatJSON)
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if script.Name != "demo" || len(script.Steps) != 2 {
		t.Errorf("script = %q with %d steps", script.Name, len(script.Steps))
	}
	if script.Steps[0].Action != "list_files" {
		t.Errorf("first action = %q", script.Steps[0].Action)
	}
}

func TestParseJSONSyntaxErrorHasLocation(t *testing.T) {
	data := []byte("{\n  \"name\": \"x\",\n  \"steps\": [}\n}")

	_, err := testParser().ParseBytes(context.Background(), data, FormatJSON)
	var te *models.ToolError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *models.ToolError", err)
	}
	if te.Type != models.ErrSyntax {
		t.Errorf("type = %s, want syntax_error", te.Type)
	}
	if te.Syntax == nil || te.Syntax.Line != 3 {
		t.Errorf("syntax details = %+v, want line 3", te.Syntax)
	}
}

func TestParseJSONDepthLimit(t *testing.T) {
	cfg := config.Default().Batch
	cfg.MaxDepth = 3
	p := NewParser(cfg)

	deep := `{"name":"x","steps":[{"action":"list_files","params":{"a":{"b":{"c":1}}}}]}`
	_, err := p.ParseBytes(context.Background(), []byte(deep), FormatJSON)
	if got := errType(t, err); got != models.ErrNestingTooDeep {
		t.Errorf("type = %s, want nesting_too_deep", got)
	}
}

func TestParseRejectsBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`{"name":"x","steps":[]}`)...)
	_, err := testParser().ParseBytes(context.Background(), data, FormatJSON)
	if got := errType(t, err); got != models.ErrBOMDetected {
		t.Errorf("type = %s, want bom_detected", got)
	}
}

func TestParseJSONRequiresName(t *testing.T) {
	_, err := testParser().ParseBytes(context.Background(), []byte(`{"steps":[]}`), FormatJSON)
	if got := errType(t, err); got != models.ErrInvalidArguments {
		t.Errorf("type = %s, want invalid_arguments", got)
	}
}

func TestParseYAMLScript(t *testing.T) {
	data := []byte(`name: demo
steps:
  - action: list_files
    params:
      path: docs
  - action: check_mail
`)
	script, err := testParser().ParseBytes(context.Background(), data, FormatYAML)
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if script.Name != "demo" || len(script.Steps) != 2 {
		t.Errorf("script = %q with %d steps", script.Name, len(script.Steps))
	}
}

func TestParseYAMLRejectsCustomTags(t *testing.T) {
	data := []byte(`name: demo
steps:
  - action: !!python/object:os.system list_files
`)
	_, err := testParser().ParseBytes(context.Background(), data, FormatYAML)
	if got := errType(t, err); got != models.ErrDangerousCommand {
		t.Errorf("type = %s, want dangerous_command", got)
	}
}

func TestParseYAMLAliasLimit(t *testing.T) {
	cfg := config.Default().Batch
	cfg.MaxYAMLAliases = 2
	p := NewParser(cfg)

	var b strings.Builder
	b.WriteString("name: demo\nanchors:\n")
	for i := 0; i < 3; i++ {
		b.WriteString("  - &a")
		b.WriteByte(byte('0' + i))
		b.WriteString(" x\n")
	}
	b.WriteString("steps:\n  - action: check_mail\n")

	_, err := p.ParseBytes(context.Background(), []byte(b.String()), FormatYAML)
	if got := errType(t, err); got != models.ErrMemoryExhaustion {
		t.Errorf("type = %s, want memory_exhaustion", got)
	}
}

func TestParseYAMLDepthLimit(t *testing.T) {
	cfg := config.Default().Batch
	cfg.MaxDepth = 3
	p := NewParser(cfg)

	// root mapping (1) -> steps sequence (2) -> step mapping (3) ->
	// params mapping (4).
	deep := "name: x\nsteps:\n  - action: list_files\n    params:\n      a: 1\n"
	_, err := p.ParseBytes(context.Background(), []byte(deep), FormatYAML)
	if got := errType(t, err); got != models.ErrNestingTooDeep {
		t.Errorf("type = %s, want nesting_too_deep", got)
	}
}

func TestParseYAMLDeepParamsRejected(t *testing.T) {
	var b strings.Builder
	b.WriteString("name: deep\nsteps:\n  - action: list_files\n    params:\n")
	indent := "      "
	for i := 0; i < 40; i++ {
		b.WriteString(indent + "a:\n")
		indent += "  "
	}
	b.WriteString(indent + "leaf: 1\n")

	_, err := testParser().ParseBytes(context.Background(), []byte(b.String()), FormatYAML)
	if got := errType(t, err); got != models.ErrNestingTooDeep {
		t.Errorf("type = %s, want nesting_too_deep", got)
	}
}

func TestParseTextScript(t *testing.T) {
	data := []byte(`# setup
list files in docs
read file docs/spec.md
send mail to patricia: please review
check mail
`)
	script, err := testParser().ParseBytes(context.Background(), data, FormatText)
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	wantActions := []string{"list_files", "read_file", "send_mail", "check_mail"}
	if len(script.Steps) != len(wantActions) {
		t.Fatalf("steps = %d, want %d", len(script.Steps), len(wantActions))
	}
	for i, want := range wantActions {
		if script.Steps[i].Action != want {
			t.Errorf("step %d action = %q, want %q", i, script.Steps[i].Action, want)
		}
	}
	if to := script.Steps[2].Params["to"]; to != "patricia" {
		t.Errorf("send_mail to = %v, want patricia", to)
	}
}

func TestParseTextUnrecognizedLine(t *testing.T) {
	data := []byte("list files\nfrobnicate the widgets\n")
	_, err := testParser().ParseBytes(context.Background(), data, FormatText)
	var te *models.ToolError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v", err)
	}
	if te.Type != models.ErrUnrecognizedCommand {
		t.Errorf("type = %s, want unrecognized_command", te.Type)
	}
	if te.Syntax == nil || te.Syntax.Line != 2 {
		t.Errorf("syntax = %+v, want line 2", te.Syntax)
	}
	if len(te.Suggestions) == 0 {
		t.Error("no command hints suggested")
	}
}

func TestParseTextDangerousCommand(t *testing.T) {
	tests := []string{
		"read file a.txt; rm -rf /",
		"write dd if=/dev/zero to file x",
		"create file x with shutdown now",
	}
	for _, line := range tests {
		t.Run(line, func(t *testing.T) {
			_, err := testParser().ParseBytes(context.Background(), []byte(line+"\n"), FormatText)
			if got := errType(t, err); got != models.ErrDangerousCommand {
				t.Errorf("type = %s, want dangerous_command", got)
			}
		})
	}
}

func TestParseFileSizeLimit(t *testing.T) {
	cfg := config.Default().Batch
	cfg.MaxFileSize = 16
	p := NewParser(cfg)

	path := filepath.Join(t.TempDir(), "big.json")
	if err := os.WriteFile(path, []byte(`{"name":"x","steps":[{"action":"check_mail"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := p.Parse(context.Background(), path)
	if got := errType(t, err); got != models.ErrMemoryExhaustion {
		t.Errorf("type = %s, want memory_exhaustion", got)
	}
}

func TestParseMissingFile(t *testing.T) {
	_, err := testParser().Parse(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	if got := errType(t, err); got != models.ErrFileNotFound {
		t.Errorf("type = %s, want file_not_found", got)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		path string
		data string
		want Format
	}{
		{"json ext", "a.json", "", FormatJSON},
		{"yaml ext", "a.yml", "", FormatYAML},
		{"text ext", "a.txt", "", FormatText},
		{"json sniff", "a.dat", `  {"name":"x"}`, FormatJSON},
		{"yaml doc marker", "a.dat", "---\nname: x\n", FormatYAML},
		{"yaml name key", "a.dat", "name: x\nsteps: []\n", FormatYAML},
		{"fallback text", "a.dat", "list files\n", FormatText},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := detectFormat(tc.path, []byte(tc.data)); got != tc.want {
				t.Errorf("detectFormat = %s, want %s", got, tc.want)
			}
		})
	}
}
