package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/sethvargo/go-retry"

	"github.com/rand/memento/internal/config"
)

// OpenAIBackend talks to an OpenAI-compatible chat-completion endpoint.
// Transient failures are retried with capped exponential backoff; once the
// attempt budget is exhausted the last error is returned to the caller.
type OpenAIBackend struct {
	client openai.Client
	model  string
	retry  config.Retry
}

// NewOpenAIBackend builds a backend for one model.
func NewOpenAIBackend(b config.Backend, r config.Retry) *OpenAIBackend {
	opts := []option.RequestOption{option.WithAPIKey(b.APIKey())}
	if b.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(b.BaseURL))
	}
	// Backoff is handled here, not by the SDK.
	opts = append(opts, option.WithMaxRetries(0))

	return &OpenAIBackend{
		client: openai.NewClient(opts...),
		model:  b.Model,
		retry:  r,
	}
}

// Model returns the configured model identifier.
func (b *OpenAIBackend) Model() string { return b.model }

// Chat sends messages with optional tool schemas and normalizes the reply.
// If the provider returns textual content, tool calls are dropped for that
// turn; a response never carries both.
func (b *OpenAIBackend) Chat(ctx context.Context, messages []Message, tools []ToolSchema, maxTokens int) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:    b.model,
		Messages: toOpenAIMessages(messages),
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}
	for _, t := range tools {
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  openai.FunctionParameters(t.Parameters),
		}))
	}

	backoff := retry.NewExponential(b.retry.BaseDelay)
	backoff = retry.WithCappedDuration(b.retry.MaxDelay, backoff)
	backoff = retry.WithMaxRetries(uint64(b.retry.Attempts-1), backoff)

	var resp *openai.ChatCompletion
	attempt := 0
	start := time.Now()
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		var err error
		resp, err = b.client.Chat.Completions.New(ctx, params)
		if err != nil {
			if attempt < b.retry.Attempts {
				slog.Warn("chat call failed, retrying",
					"model", b.model,
					"attempt", attempt,
					"max_attempts", b.retry.Attempts,
					"error", err)
			}
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion (%s, %d attempts, %s): %w",
			b.model, attempt, time.Since(start).Round(time.Millisecond), err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion (%s): empty choices", b.model)
	}
	return normalize(resp.Choices[0].Message), nil
}

func normalize(msg openai.ChatCompletionMessage) *Response {
	if msg.Content != "" {
		return &Response{Content: msg.Content}
	}
	out := &Response{}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			for _, tc := range m.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		}
	}
	return out
}
