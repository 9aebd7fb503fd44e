package agent

import (
	"context"
	"encoding/json"
)

// Tool is the uniform contract every tool implements.
//
// A tool exposes a JSON-Schema-typed callable surface to the LLM. Execute
// receives parameters that have already passed schema validation and returns
// either a JSON-encodable value or a human-readable string; the runtime
// wraps both into the uniform result envelope.
//
// Tools must be safe for concurrent use: the registry shares no mutable
// state between invocations, and different sessions may dispatch the same
// tool at the same time.
//
// Example:
//
//	type listDirectory struct{ ws *workspace.Paths }
//
//	func (t *listDirectory) Name() string        { return "list_directory" }
//	func (t *listDirectory) Description() string { return "List entries of a workspace directory" }
//	func (t *listDirectory) Schema() json.RawMessage {
//	    return json.RawMessage(`{
//	        "type": "object",
//	        "properties": {"path": {"type": "string"}},
//	        "required": ["path"]
//	    }`)
//	}
//	func (t *listDirectory) Execute(ctx context.Context, params json.RawMessage) (any, error) {
//	    ...
//	}
type Tool interface {
	// Name returns the unique tool identifier used for LLM function calling.
	Name() string

	// Description returns a natural language description of what the tool
	// does. This helps the LLM decide when to use the tool.
	Description() string

	// Schema returns the JSON Schema defining the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool with schema-validated JSON parameters.
	Execute(ctx context.Context, params json.RawMessage) (any, error)
}

// Instructor is an optional interface for tools that carry extended usage
// instructions. The registry concatenates these into the system prompt sent
// to the model, after the fixed preamble.
type Instructor interface {
	Instructions() string
}

// Categorized is an optional interface for tools that declare a category
// and tag set for discovery.
type Categorized interface {
	Category() string
	Tags() []string
}

// ToolSchema is the stable projection of a tool handed to LLM providers,
// rendered as {type:"function", function:{name, description, parameters}}
// on the wire.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}
