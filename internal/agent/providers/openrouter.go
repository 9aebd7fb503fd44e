// Package providers contains LLMProvider implementations.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aiwhisperer/aiwhisperer/internal/agent"
	"github.com/aiwhisperer/aiwhisperer/internal/agent/toolconv"
	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterProvider implements agent.LLMProvider against OpenRouter's
// OpenAI-compatible chat completion API.
//
// OpenRouter fronts many upstream model providers behind one endpoint;
// model ids use the provider/model-name form (e.g. "openai/gpt-4o",
// "anthropic/claude-sonnet-4"). Requests are sent with tool_choice=auto and
// the full tool schema list; responses carry OpenAI-style tool_calls with
// stringified JSON arguments, which the AI loop parses and validates.
//
// Safe for concurrent use; each Complete call is independent.
type OpenRouterProvider struct {
	client       *openai.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

// OpenRouterConfig holds provider construction options.
type OpenRouterConfig struct {
	// APIKey is the OpenRouter API key. May be empty for delayed
	// configuration; Complete then fails with a configuration error.
	APIKey string

	// BaseURL overrides the endpoint. Tests point this at a local fake.
	BaseURL string

	// DefaultModel is used when a request carries no model id.
	DefaultModel string

	// MaxRetries is the attempt count for transient failures (default 3).
	MaxRetries int

	// RetryDelay is the base delay between retries (default 1s), growing
	// linearly with the attempt number.
	RetryDelay time.Duration

	// HTTPClient overrides the transport, mainly to install timeouts.
	HTTPClient *http.Client
}

// NewOpenRouterProvider creates a provider instance.
func NewOpenRouterProvider(cfg OpenRouterConfig) *OpenRouterProvider {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	p := &OpenRouterProvider{
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}
	if cfg.APIKey == "" {
		return p
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = openRouterBaseURL
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	p.client = openai.NewClientWithConfig(clientCfg)
	return p
}

// Name returns the provider identifier.
func (p *OpenRouterProvider) Name() string { return "openrouter" }

// Complete sends one chat completion request and maps the first choice back
// to the internal shape. Transient failures (429, 5xx, transport errors)
// are retried with linear backoff; everything else surfaces immediately.
func (p *OpenRouterProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	if p.client == nil {
		return nil, models.NewToolError(models.ErrInvalidConfiguration,
			"openrouter provider has no API key configured").
			WithSuggestions("set OPENROUTER_API_KEY in the environment")
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	apiReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toolconv.ToOpenAIMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if len(req.Tools) > 0 {
		apiReq.Tools = toolconv.ToOpenAITools(req.Tools)
		apiReq.ToolChoice = "auto"
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		resp, err := p.client.CreateChatCompletion(ctx, apiReq)
		if err == nil {
			return fromResponse(&resp)
		}
		lastErr = err

		if !isRetryable(err) || attempt == p.maxRetries {
			break
		}
		select {
		case <-time.After(p.retryDelay * time.Duration(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("openrouter completion failed: %w", lastErr)
}

func fromResponse(resp *openai.ChatCompletionResponse) (*agent.Completion, error) {
	if len(resp.Choices) == 0 {
		return nil, errors.New("openrouter returned no choices")
	}
	choice := resp.Choices[0]

	completion := &agent.Completion{
		Content:   choice.Message.Content,
		ToolCalls: toolconv.FromOpenAIToolCalls(choice.Message.ToolCalls),
		Usage: &agent.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}
	switch choice.FinishReason {
	case openai.FinishReasonStop:
		completion.FinishReason = models.FinishStop
	case openai.FinishReasonToolCalls:
		completion.FinishReason = models.FinishToolCalls
	case openai.FinishReasonLength:
		completion.FinishReason = models.FinishLength
	default:
		completion.FinishReason = models.FinishReason(choice.FinishReason)
	}
	return completion, nil
}

// isRetryable reports whether an API error is worth another attempt.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests ||
			apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	// Transport-level failures are retryable by default.
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 0 || reqErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	return true
}
