package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aiwhisperer/aiwhisperer/internal/config"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parser turns script files into Script values, enforcing the format
// limits: JSON nesting depth, YAML tag and alias restrictions with a parse
// timeout, and the line-oriented text interpreter.
type Parser struct {
	cfg config.BatchConfig
}

// NewParser creates a parser with the given limits.
func NewParser(cfg config.BatchConfig) *Parser {
	return &Parser{cfg: cfg}
}

// Parse reads and parses the script at path. The format is chosen from the
// file extension, with a content sniff when the extension is unknown.
func (p *Parser) Parse(ctx context.Context, path string) (*Script, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.NewToolError(models.ErrFileNotFound, "script not found: %s", path).WithFile(path)
		}
		return nil, models.NewToolError(models.ErrPermissionDenied, "cannot stat script: %v", err).WithFile(path)
	}
	if info.Size() > p.cfg.MaxFileSize {
		return nil, models.NewToolError(models.ErrMemoryExhaustion,
			"script is %d bytes, limit is %d", info.Size(), p.cfg.MaxFileSize).WithFile(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, models.NewToolError(models.ErrPermissionDenied, "cannot read script: %v", err).WithFile(path)
	}

	script, err := p.ParseBytes(ctx, data, detectFormat(path, data))
	if err != nil {
		if te, ok := err.(*models.ToolError); ok && te.FilePath == "" {
			te.FilePath = path
		}
		return nil, err
	}
	script.SourcePath = path
	return script, nil
}

// ParseBytes parses script content already in memory.
func (p *Parser) ParseBytes(ctx context.Context, data []byte, format Format) (*Script, error) {
	if bytes.HasPrefix(data, utf8BOM) {
		return nil, models.NewToolError(models.ErrBOMDetected,
			"script starts with a UTF-8 byte order mark; save it without a BOM")
	}

	var script *Script
	var err error
	switch format {
	case FormatJSON:
		script, err = p.parseJSON(data)
	case FormatYAML:
		script, err = p.parseYAML(ctx, data)
	case FormatText:
		script, err = p.parseText(data)
	default:
		err = models.NewToolError(models.ErrInvalidConfiguration, "unknown script format %q", format)
	}
	if err != nil {
		return nil, err
	}
	script.Format = format
	return script, nil
}

func detectFormat(path string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yml", ".yaml":
		return FormatYAML
	case ".txt", ".script":
		return FormatText
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	switch {
	case bytes.HasPrefix(trimmed, []byte("{")):
		return FormatJSON
	case bytes.HasPrefix(trimmed, []byte("---")), bytes.Contains(trimmed, []byte("\nname:")), bytes.HasPrefix(trimmed, []byte("name:")):
		return FormatYAML
	default:
		return FormatText
	}
}

func (p *Parser) parseJSON(data []byte) (*Script, error) {
	if err := p.checkJSONDepth(data); err != nil {
		return nil, err
	}

	var script Script
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&script); err != nil {
		if syn, ok := err.(*json.SyntaxError); ok {
			line, col := offsetToLineCol(data, syn.Offset)
			return nil, models.NewToolError(models.ErrSyntax, "invalid JSON: %v", err).
				WithSyntax(line, col, syn.Error())
		}
		return nil, models.NewToolError(models.ErrSyntax, "invalid JSON: %v", err)
	}
	if script.Name == "" {
		return nil, models.NewToolError(models.ErrInvalidArguments, "script is missing the top-level \"name\" field")
	}
	return &script, nil
}

// checkJSONDepth walks the token stream counting open containers so deeply
// nested payloads are rejected before they are materialised.
func (p *Parser) checkJSONDepth(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if syn, ok := err.(*json.SyntaxError); ok {
				line, col := offsetToLineCol(data, syn.Offset)
				return models.NewToolError(models.ErrSyntax, "invalid JSON: %v", err).
					WithSyntax(line, col, syn.Error())
			}
			return models.NewToolError(models.ErrSyntax, "invalid JSON: %v", err)
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
				if depth > p.cfg.MaxDepth {
					return models.NewToolError(models.ErrNestingTooDeep,
						"JSON nesting exceeds %d levels", p.cfg.MaxDepth)
				}
			case '}', ']':
				depth--
			}
		}
	}
}

func offsetToLineCol(data []byte, offset int64) (int, int) {
	line, col := 1, 1
	for i := int64(0); i < offset && i < int64(len(data)); i++ {
		if data[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}

// parseYAML parses under a hard timeout. The parse runs on its own
// goroutine because yaml.Unmarshal has no context support; on timeout the
// goroutine is abandoned and its result discarded.
func (p *Parser) parseYAML(ctx context.Context, data []byte) (*Script, error) {
	timeout := p.cfg.ParseTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		script *Script
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		script, err := p.parseYAMLNode(data)
		ch <- result{script, err}
	}()

	select {
	case <-ctx.Done():
		return nil, models.NewToolError(models.ErrProcessingTimeout,
			"YAML parse exceeded %s", timeout)
	case r := <-ch:
		return r.script, r.err
	}
}

func (p *Parser) parseYAMLNode(data []byte) (*Script, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, yamlSyntaxError(err)
	}

	aliases := 0
	if err := checkYAMLNode(&root, 0, &aliases, p.cfg.MaxDepth, p.cfg.MaxYAMLAliases); err != nil {
		return nil, err
	}

	var script Script
	if err := root.Decode(&script); err != nil {
		return nil, yamlSyntaxError(err)
	}
	if script.Name == "" {
		return nil, models.NewToolError(models.ErrInvalidArguments, "script is missing the top-level \"name\" field")
	}
	return &script, nil
}

func yamlSyntaxError(err error) error {
	return models.NewToolError(models.ErrSyntax, "invalid YAML: %v", err)
}

// checkYAMLNode rejects non-plain tags, counts anchors/aliases, and tracks
// container nesting so YAML scripts obey the same depth limit as JSON
// ones. Only the YAML core schema tags are allowed; anything else smells
// like a language-specific object constructor.
func checkYAMLNode(n *yaml.Node, depth int, aliases *int, maxDepth, maxAliases int) error {
	if n == nil {
		return nil
	}
	if n.Kind == yaml.AliasNode || n.Anchor != "" {
		*aliases++
		if *aliases > maxAliases {
			return models.NewToolError(models.ErrMemoryExhaustion,
				"YAML uses more than %d anchors/aliases", maxAliases)
		}
	}
	if !plainYAMLTag(n.Tag) {
		return models.NewToolError(models.ErrDangerousCommand,
			"YAML tag %q is not allowed", n.Tag).
			WithSuggestions("remove custom tags; only plain scalars, maps and sequences are supported")
	}
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		depth++
		if depth > maxDepth {
			return models.NewToolError(models.ErrNestingTooDeep,
				"YAML nesting exceeds %d levels", maxDepth)
		}
	}
	for _, child := range n.Content {
		if err := checkYAMLNode(child, depth, aliases, maxDepth, maxAliases); err != nil {
			return err
		}
	}
	return nil
}

func plainYAMLTag(tag string) bool {
	switch tag {
	case "", "!!str", "!!int", "!!float", "!!bool", "!!null", "!!map", "!!seq", "!!timestamp", "!!merge":
		return true
	default:
		return false
	}
}

// parseText interprets one command per line. An unmatched line is a hard
// parse error; silently skipping commands would make a half-run script look
// successful.
func (p *Parser) parseText(data []byte) (*Script, error) {
	var steps []Step
	for i, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := checkDangerousText(line); err != nil {
			if te, ok := err.(*models.ToolError); ok {
				te.Syntax = &models.SyntaxDetails{Line: i + 1, Column: 1, Description: te.Message}
			}
			return nil, err
		}
		step, ok := interpretCommand(line)
		if !ok {
			return nil, models.NewToolError(models.ErrUnrecognizedCommand,
				"line %d: cannot interpret %q", i+1, line).
				WithSyntax(i+1, 1, "no command pattern matched").
				WithSuggestions(fmt.Sprintf("supported commands: %s", strings.Join(commandHints(), "; ")))
		}
		step.Command = line
		steps = append(steps, step)
	}
	return &Script{Name: "text script", Steps: steps}, nil
}
