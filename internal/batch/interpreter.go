package batch

import (
	"regexp"
	"strings"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// commandPattern maps one natural-language command shape onto a tool action.
type commandPattern struct {
	hint  string
	re    *regexp.Regexp
	build func(m []string) Step
}

// commandPatterns is the curated interpreter table, tried in order. The
// wording follows what session operators actually type; new shapes get a
// new row rather than a looser regex.
var commandPatterns = []commandPattern{
	{
		hint: "list files [in <dir>]",
		re:   regexp.MustCompile(`(?i)^list\s+files(?:\s+in\s+(.+))?$`),
		build: func(m []string) Step {
			params := map[string]any{}
			if m[1] != "" {
				params["path"] = strings.TrimSpace(m[1])
			}
			return Step{Action: "list_files", Params: params}
		},
	},
	{
		hint: "read file <path>",
		re:   regexp.MustCompile(`(?i)^read\s+(?:the\s+)?file\s+(.+)$`),
		build: func(m []string) Step {
			return Step{Action: "read_file", Params: map[string]any{"path": strings.TrimSpace(m[1])}}
		},
	},
	{
		hint: "create file <path> with content <text>",
		re:   regexp.MustCompile(`(?i)^create\s+(?:a\s+)?file\s+(\S+)\s+with\s+(?:content\s+)?(.+)$`),
		build: func(m []string) Step {
			return Step{Action: "create_file", Params: map[string]any{
				"path":    m[1],
				"content": strings.TrimSpace(m[2]),
			}}
		},
	},
	{
		hint: "write <text> to file <path>",
		re:   regexp.MustCompile(`(?i)^write\s+(.+)\s+to\s+(?:the\s+)?file\s+(\S+)$`),
		build: func(m []string) Step {
			return Step{Action: "write_file", Params: map[string]any{
				"path":    m[2],
				"content": strings.TrimSpace(m[1]),
			}}
		},
	},
	{
		hint: "switch to agent <id>",
		re:   regexp.MustCompile(`(?i)^switch\s+(?:to\s+)?agent\s+(\w+)$`),
		build: func(m []string) Step {
			return Step{Action: "switch_agent", Params: map[string]any{"agent_id": strings.ToLower(m[1])}}
		},
	},
	{
		hint: "send mail to <agent>: <body>",
		re:   regexp.MustCompile(`(?i)^send\s+(?:mail|message)\s+to\s+(\w+)\s*:\s*(.+)$`),
		build: func(m []string) Step {
			return Step{Action: "send_mail", Params: map[string]any{
				"to":   strings.ToLower(m[1]),
				"body": strings.TrimSpace(m[2]),
			}}
		},
	},
	{
		hint: "check mail",
		re:   regexp.MustCompile(`(?i)^check\s+mail$`),
		build: func(m []string) Step {
			return Step{Action: "check_mail", Params: map[string]any{}}
		},
	},
	{
		hint: "create rfc <title>",
		re:   regexp.MustCompile(`(?i)^create\s+(?:an\s+)?rfc\s+(.+)$`),
		build: func(m []string) Step {
			return Step{Action: "create_rfc", Params: map[string]any{"title": strings.TrimSpace(m[1])}}
		},
	},
	{
		hint: "list rfcs",
		re:   regexp.MustCompile(`(?i)^list\s+rfcs$`),
		build: func(m []string) Step {
			return Step{Action: "list_rfcs", Params: map[string]any{}}
		},
	},
	{
		hint: "list plans",
		re:   regexp.MustCompile(`(?i)^list\s+plans$`),
		build: func(m []string) Step {
			return Step{Action: "list_plans", Params: map[string]any{}}
		},
	},
}

// interpretCommand maps a natural-language line to a step.
func interpretCommand(line string) (Step, bool) {
	for _, p := range commandPatterns {
		if m := p.re.FindStringSubmatch(line); m != nil {
			return p.build(m), true
		}
	}
	return Step{}, false
}

func commandHints() []string {
	hints := make([]string, len(commandPatterns))
	for i, p := range commandPatterns {
		hints[i] = p.hint
	}
	return hints
}

// dangerousTextPatterns catch shell destruction attempts smuggled into
// text scripts before the interpreter ever sees them.
var dangerousTextPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rm\s+-[a-z]*r[a-z]*f`),
	regexp.MustCompile(`(?i)\bdd\s+if=`),
	regexp.MustCompile(`>\s*/dev/`),
	regexp.MustCompile(`(?i)\bmkfs\b`),
	regexp.MustCompile(`:\(\)\s*\{`),
	regexp.MustCompile(`(?i)\b(shutdown|reboot|halt)\b`),
	regexp.MustCompile(`(?i)\bchmod\s+777\s+/`),
}

func checkDangerousText(line string) error {
	for _, re := range dangerousTextPatterns {
		if re.MatchString(line) {
			return models.NewToolError(models.ErrDangerousCommand,
				"command %q matches a dangerous shell pattern", line)
		}
	}
	return nil
}
