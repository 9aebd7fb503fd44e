// Package toolconv converts between the internal message and tool shapes
// and the OpenAI wire format used by OpenRouter.
package toolconv

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aiwhisperer/aiwhisperer/internal/agent"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// ToOpenAITools converts the registry's tool projection to OpenAI function
// schemas: {type:"function", function:{name, description, parameters}}.
func ToOpenAITools(tools []agent.ToolSchema) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.Parameters, &schemaMap); err != nil || schemaMap == nil {
			schemaMap = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schemaMap,
			},
		}
	}
	return result
}

// ToOpenAIMessages converts context history to OpenAI chat messages,
// preserving order and tool_call_id linkage.
func ToOpenAIMessages(history []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, msg := range history {
		m := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		if msg.Role == models.RoleTool {
			m.ToolCallID = msg.ToolCallID
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out = append(out, m)
	}
	return out
}

// FromOpenAIToolCalls converts response tool calls back to the internal
// shape, keeping the model-emitted order.
func FromOpenAIToolCalls(calls []openai.ToolCall) []models.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]models.ToolCall, 0, len(calls))
	for _, tc := range calls {
		out = append(out, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out
}
