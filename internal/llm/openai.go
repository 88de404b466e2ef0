package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	Name          string
	APIKey        string
	BaseURL       string
	Model         string
	SupportsTools bool
	HTTPClient    *http.Client
}

// OpenAIProvider talks to any OpenAI-compatible chat completions
// endpoint (DeepSeek, Perplexity, OpenAI itself). With tool support it
// resolves every tool call of a response before resubmitting.
type OpenAIProvider struct {
	name   string
	model  string
	tools  bool
	hasKey bool
	client openai.Client
	logger *slog.Logger
}

// NewOpenAIProvider creates a provider. The SDK's own retries are
// disabled; the bridge surfaces failures to the user instead.
func NewOpenAIProvider(cfg OpenAIConfig, logger *slog.Logger) *OpenAIProvider {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &OpenAIProvider{
		name:   cfg.Name,
		model:  cfg.Model,
		tools:  cfg.SupportsTools,
		hasKey: cfg.APIKey != "",
		client: openai.NewClient(opts...),
		logger: logger.With("provider", cfg.Name),
	}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return p.name }

// HasAPIKey implements Provider.
func (p *OpenAIProvider) HasAPIKey() bool { return p.hasKey }

// SupportsTools implements Provider.
func (p *OpenAIProvider) SupportsTools() bool { return p.tools }

// ParallelToolCalls implements Provider.
func (p *OpenAIProvider) ParallelToolCalls() bool { return p.tools }

// Complete implements Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if !p.hasKey {
		return nil, errors.New("openai: no API key configured")
	}

	params := openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: toOpenAIMessages(req.System, req.Messages),
	}
	if p.tools && len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
	}

	p.logger.Debug("preparing request",
		"model", p.model,
		"messages", len(params.Messages),
		"tools", len(params.Tools),
		"system_len", len(req.System),
	)

	if p.logger.Enabled(ctx, LevelTrace) {
		if payload, err := json.Marshal(params); err == nil {
			p.logger.Log(ctx, LevelTrace, "request payload", "json", string(payload))
		}
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%s chat completion: %w", p.name, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%s: response has no choices", p.name)
	}

	msg := completion.Choices[0].Message
	resp := &Response{
		Model: completion.Model,
		Message: Message{
			Role:    RoleAssistant,
			Content: msg.Content,
		},
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
	}
	p.logger.Log(ctx, LevelTrace, "response content",
		"content", msg.Content,
		"tool_calls", len(msg.ToolCalls),
	)
	for _, tc := range msg.ToolCalls {
		resp.Message.ToolCalls = append(resp.Message.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return resp, nil
}

func toOpenAITools(defs []ToolDef) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  openai.FunctionParameters(d.Parameters),
			},
		})
	}
	return out
}

func toOpenAIMessages(system string, msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, m := range msgs {
		switch m.Role {
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			asst := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				asst.Content.OfString = openai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
