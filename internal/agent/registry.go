package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// ErrRegistrySealed is returned by Register after Seal has been called.
// The registry is immutable once the process finishes startup registration,
// which is what makes lock-free concurrent reads safe.
var ErrRegistrySealed = errors.New("tool registry is sealed")

// ErrDuplicateTool is returned when two tools share an id.
var ErrDuplicateTool = errors.New("duplicate tool id")

// Tool parameter limits to prevent resource exhaustion.
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolParamsSize is the maximum size of tool parameters JSON (10MB).
	MaxToolParamsSize = 10 << 20
)

type registeredTool struct {
	tool         Tool
	schema       *jsonschema.Schema
	rawSchema    json.RawMessage
	instructions string
}

// Registry holds every tool available to the process.
//
// All tools are registered during startup, then the registry is sealed.
// After sealing the map never changes again, so invocation from any number
// of goroutines is safe.
type Registry struct {
	mu     sync.RWMutex
	sealed bool
	tools  map[string]*registeredTool
}

// NewRegistry creates an empty, unsealed registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*registeredTool)}
}

// Register adds a tool and compiles its parameter schema. It fails on
// duplicate ids, schemas that do not compile, and registries that have
// already been sealed.
func (r *Registry) Register(tool Tool) error {
	name := tool.Name()
	if name == "" || len(name) > MaxToolNameLength {
		return fmt.Errorf("invalid tool name %q", name)
	}

	raw := tool.Schema()
	compiled, err := compileSchema(name, raw)
	if err != nil {
		return fmt.Errorf("tool %s: %w", name, err)
	}

	rt := &registeredTool{tool: tool, schema: compiled, rawSchema: raw}
	if ins, ok := tool.(Instructor); ok {
		rt.instructions = ins.Instructions()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrRegistrySealed
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = rt
	return nil
}

// MustRegister registers a tool and panics on failure. Startup-only sugar.
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Seal freezes the registry. Registration afterwards fails with
// ErrRegistrySealed.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

func (r *Registry) lookup(name string) (*registeredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.tools[name]
	return rt, ok
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	rt, ok := r.lookup(name)
	if !ok {
		return nil, false
	}
	return rt.tool, true
}

// Has reports whether a tool id is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// Names returns all registered tool ids, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas returns the stable LLM-facing projection of every tool, sorted by
// name so the tool-list fingerprint is deterministic.
func (r *Registry) Schemas() []ToolSchema {
	names := r.Names()
	out := make([]ToolSchema, 0, len(names))
	for _, name := range names {
		rt, _ := r.lookup(name)
		out = append(out, ToolSchema{
			Name:        name,
			Description: rt.tool.Description(),
			Parameters:  rt.rawSchema,
		})
	}
	return out
}

// InstructionBlock concatenates the usage instructions of every tool that
// declares them, in name order. The AI loop appends this to its fixed
// system-prompt preamble.
func (r *Registry) InstructionBlock() string {
	var b strings.Builder
	for _, name := range r.Names() {
		rt, _ := r.lookup(name)
		if rt.instructions == "" {
			continue
		}
		fmt.Fprintf(&b, "## %s\n%s\n\n", name, strings.TrimSpace(rt.instructions))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Invoke dispatches one tool call: lookup, schema validation, execution,
// and wrapping of the outcome into the uniform envelope.
//
// The returned envelope always reflects the tool-level outcome; the error
// return is reserved for context cancellation, which the caller maps to
// processing_timeout or shutdown.
func (r *Registry) Invoke(ctx context.Context, name string, params json.RawMessage) (models.Envelope, error) {
	if len(params) > MaxToolParamsSize {
		return models.ErrEnvelope(models.NewToolError(models.ErrInvalidArguments,
			"tool parameters exceed maximum size of %d bytes", MaxToolParamsSize)), nil
	}

	rt, ok := r.lookup(name)
	if !ok {
		return models.ErrEnvelope(models.NewToolError(models.ErrToolNotFound, "tool not found: %s", name).
			WithSuggestions("check the tool name against the registered tool list")), nil
	}

	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	var doc any
	if err := json.Unmarshal(params, &doc); err != nil {
		return models.ErrEnvelope(models.NewToolError(models.ErrToolArgsInvalid,
			"tool arguments are not valid JSON: %v", err)), nil
	}
	if err := rt.schema.Validate(doc); err != nil {
		return models.ErrEnvelope(validationError(name, err)), nil
	}

	value, err := rt.tool.Execute(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return models.Envelope{}, ctx.Err()
		}
		var te *models.ToolError
		if errors.As(err, &te) {
			return models.ErrEnvelope(te), nil
		}
		return models.ErrEnvelope(models.NewToolError(models.ErrToolExecution, "%s failed: %v", name, err)), nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return models.ErrEnvelope(models.NewToolError(models.ErrJSONSerialization,
			"%s produced a result that cannot be serialized: %v", name, err)), nil
	}
	return models.OKEnvelope(data), nil
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		raw = json.RawMessage(`{"type":"object"}`)
	}
	compiler := jsonschema.NewCompiler()
	url := name + ".schema.json"
	if err := compiler.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return sch, nil
}

// validationError converts a jsonschema failure into invalid_arguments with
// a JSON Pointer to the offending field.
func validationError(tool string, err error) *models.ToolError {
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		pointer := leaf.InstanceLocation
		if pointer == "" {
			pointer = "/"
		}
		return models.NewToolError(models.ErrInvalidArguments,
			"%s: argument at %q failed validation: %s", tool, pointer, leaf.Message).
			WithSuggestions("consult the tool's parameter schema", "fix the field at "+pointer)
	}
	return models.NewToolError(models.ErrInvalidArguments, "%s: %v", tool, err)
}
