package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig configures a GeminiProvider.
type GeminiConfig struct {
	Name          string
	APIKey        string
	BaseURL       string // empty = Google's public endpoint
	Model         string
	SupportsTools bool
	HTTPClient    *http.Client
}

// GeminiProvider talks to the Gemini generateContent API. It resolves
// one function call per round.
type GeminiProvider struct {
	name   string
	model  string
	tools  bool
	client *genai.Client // nil without an API key
	logger *slog.Logger
}

// NewGeminiProvider creates a provider. Without an API key no client
// is built and HasAPIKey reports false.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*GeminiProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &GeminiProvider{
		name:   cfg.Name,
		model:  cfg.Model,
		tools:  cfg.SupportsTools,
		logger: logger.With("provider", cfg.Name),
	}
	if cfg.APIKey == "" {
		return p, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	p.client = client
	return p, nil
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return p.name }

// HasAPIKey implements Provider.
func (p *GeminiProvider) HasAPIKey() bool { return p.client != nil }

// SupportsTools implements Provider.
func (p *GeminiProvider) SupportsTools() bool { return p.tools }

// ParallelToolCalls implements Provider.
func (p *GeminiProvider) ParallelToolCalls() bool { return false }

// Complete implements Provider.
func (p *GeminiProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if p.client == nil {
		return nil, errors.New("gemini: no API key configured")
	}

	contents, err := toGeminiContents(req.Messages)
	if err != nil {
		return nil, err
	}
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if p.tools && len(req.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: toGeminiDeclarations(req.Tools)}}
	}

	p.logger.Debug("preparing request",
		"model", p.model,
		"contents", len(contents),
		"tools", len(req.Tools),
		"system_len", len(req.System),
	)

	if p.logger.Enabled(ctx, LevelTrace) {
		if payload, err := json.Marshal(contents); err == nil {
			p.logger.Log(ctx, LevelTrace, "request payload", "json", string(payload))
		}
	}

	result, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	resp, err := fromGeminiResponse(p.model, result)
	if err != nil {
		return nil, err
	}
	p.logger.Log(ctx, LevelTrace, "response content",
		"content", resp.Message.Content,
		"tool_calls", len(resp.Message.ToolCalls),
	)
	return resp, nil
}

func toGeminiDeclarations(defs []ToolDef) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		out = append(out, &genai.FunctionDeclaration{
			Name:                 d.Name,
			Description:          d.Description,
			ParametersJsonSchema: d.Parameters,
		})
	}
	return out
}

// toGeminiContents converts the conversation. Consecutive tool results
// are merged into one user turn, as Gemini expects all responses to a
// model turn together.
func toGeminiContents(msgs []Message) ([]*genai.Content, error) {
	var out []*genai.Content
	for _, m := range msgs {
		switch m.Role {
		case RoleUser:
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleUser))

		case RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				args := map[string]any{}
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
						return nil, fmt.Errorf("tool call %s: decode arguments: %w", tc.Name, err)
					}
				}
				parts = append(parts, &genai.Part{
					FunctionCall:     &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args},
					ThoughtSignature: tc.Signature,
				})
			}
			if len(parts) > 0 {
				out = append(out, genai.NewContentFromParts(parts, genai.RoleModel))
			}

		case RoleTool:
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.ToolName,
				Response: toolResponseMap(m.Content),
			}}
			if n := len(out); n > 0 && out[n-1].Role == genai.RoleUser && isFunctionResponse(out[n-1]) {
				out[n-1].Parts = append(out[n-1].Parts, part)
				continue
			}
			out = append(out, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))

		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	return out, nil
}

func isFunctionResponse(c *genai.Content) bool {
	return len(c.Parts) > 0 && c.Parts[0].FunctionResponse != nil
}

// toolResponseMap decodes a tool's JSON result into the object Gemini
// expects, wrapping non-object output under "output".
func toolResponseMap(content string) map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(content), &m); err == nil && m != nil {
		return m
	}
	return map[string]any{"output": content}
}

func fromGeminiResponse(model string, result *genai.GenerateContentResponse) (*Response, error) {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		reason := "no candidates"
		if result != nil && result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
			reason = "blocked: " + string(result.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("gemini: empty response (%s)", reason)
	}

	resp := &Response{
		Model:   model,
		Message: Message{Role: RoleAssistant},
	}
	if result.ModelVersion != "" {
		resp.Model = result.ModelVersion
	}

	var text strings.Builder
	for i, part := range result.Candidates[0].Content.Parts {
		switch {
		case part.FunctionCall != nil:
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return nil, fmt.Errorf("encode function call args: %w", err)
			}
			id := part.FunctionCall.ID
			if id == "" {
				id = fmt.Sprintf("call_%d", i)
			}
			resp.Message.ToolCalls = append(resp.Message.ToolCalls, ToolCall{
				ID:        id,
				Name:      part.FunctionCall.Name,
				Arguments: string(args),
				Signature: part.ThoughtSignature,
			})
		case part.Text != "" && !part.Thought:
			text.WriteString(part.Text)
		}
	}
	resp.Message.Content = text.String()

	if u := result.UsageMetadata; u != nil {
		resp.InputTokens = int(u.PromptTokenCount)
		resp.OutputTokens = int(u.CandidatesTokenCount)
	}
	return resp, nil
}
