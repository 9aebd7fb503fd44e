package agent

import (
	"context"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// LLMProvider is the chat-completion backend consumed by the AI loop.
//
// Implementations must be safe for concurrent use; different sessions call
// Complete simultaneously. Provider failures are returned as errors and
// translated by the loop into the llm_call_failure taxonomy; no raw
// transport error ever reaches the model or a tool.
type LLMProvider interface {
	// Complete sends the full message history plus tool schemas and returns
	// the assistant's next message.
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)

	// Name returns the provider identifier used for routing and metrics.
	Name() string
}

// CompletionRequest contains all parameters for one LLM call.
type CompletionRequest struct {
	// Model is the model id, e.g. "openai/gpt-4o".
	Model string `json:"model"`

	// Messages is the ordered conversation history, system message first.
	Messages []models.Message `json:"messages"`

	// Tools is the stable tool projection; sent with tool_choice=auto.
	Tools []ToolSchema `json:"tools,omitempty"`

	// Temperature controls sampling. Zero value means provider default.
	Temperature float32 `json:"temperature,omitempty"`

	// MaxTokens limits the response length. Zero means provider default.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// Completion is the assistant's reply to one request.
type Completion struct {
	// Content is the assistant text, possibly empty on tool-only turns.
	Content string `json:"content"`

	// ToolCalls carries requested tool executions in model-emitted order.
	ToolCalls []models.ToolCall `json:"tool_calls,omitempty"`

	// FinishReason is the provider's stop signal.
	FinishReason models.FinishReason `json:"finish_reason,omitempty"`

	// Usage is informational token accounting, when the provider reports it.
	Usage *Usage `json:"usage,omitempty"`
}

// Usage is token accounting for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}
