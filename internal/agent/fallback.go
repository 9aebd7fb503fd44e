package agent

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// inlineCallRe matches the legacy `tool_name(key=value, ...)` syntax some
// older prompt templates taught models to emit instead of structured tool
// calls.
var inlineCallRe = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\((.*)\)\s*$`)

// parseInlineToolCall recognises the legacy inline syntax and converts its
// arguments into a JSON object. It reports ok=false for anything that is
// not exactly one `identifier(key=val, ...)` expression; ordinary prose
// never matches.
func parseInlineToolCall(content string) (name string, args json.RawMessage, ok bool) {
	m := inlineCallRe.FindStringSubmatch(strings.TrimSpace(content))
	if m == nil {
		return "", nil, false
	}
	name = m[1]

	params := map[string]any{}
	body := strings.TrimSpace(m[2])
	if body != "" {
		for _, part := range splitArgs(body) {
			key, value, found := strings.Cut(part, "=")
			if !found {
				return "", nil, false
			}
			params[strings.TrimSpace(key)] = coerceValue(strings.TrimSpace(value))
		}
	}

	encoded, err := json.Marshal(params)
	if err != nil {
		return "", nil, false
	}
	return name, encoded, true
}

// splitArgs splits on commas that are not inside quotes.
func splitArgs(s string) []string {
	var parts []string
	var b strings.Builder
	var quote rune
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			b.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			b.WriteRune(r)
		case r == ',':
			parts = append(parts, strings.TrimSpace(b.String()))
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() > 0 {
		parts = append(parts, strings.TrimSpace(b.String()))
	}
	return parts
}

func coerceValue(s string) any {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	case "null", "None":
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
