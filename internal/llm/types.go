// Package llm provides the chat-completion providers used by the
// assistant: Gemini (function calling) and any OpenAI-compatible
// chat completions endpoint.
package llm

import (
	"context"
	"log/slog"
)

// LevelTrace is below Debug, used for wire-level payload logging. It
// has the same value as config.LevelTrace, so "log_level: trace"
// enables it and the config handler renders it as TRACE.
const LevelTrace = slog.Level(-8)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of a conversation in provider-neutral form.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // for tool results
	ToolName   string     `json:"tool_name,omitempty"`    // for tool results; Gemini correlates by name
}

// ToolCall is a tool invocation requested by the model. Arguments is
// the raw JSON object the model produced.
type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`

	// Signature is an opaque provider token that must be echoed back
	// with the call on the next turn (Gemini thought signatures).
	Signature []byte `json:"signature,omitempty"`
}

// ToolDef describes a tool offered to the model. Parameters is a JSON
// Schema object.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is one completion request.
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolDef // ignored by providers without tool support
}

// Response is the unified response from any provider.
type Response struct {
	Model        string
	Message      Message
	InputTokens  int
	OutputTokens int
}

// Provider is a chat-completion backend.
type Provider interface {
	// Name is the configured provider name, e.g. "gemini".
	Name() string

	// HasAPIKey reports whether a key is configured. Requests against a
	// provider without one must not be attempted.
	HasAPIKey() bool

	// SupportsTools reports whether Request.Tools are sent upstream.
	SupportsTools() bool

	// ParallelToolCalls reports whether the provider may return several
	// tool calls in one response that should all be resolved before
	// resubmitting.
	ParallelToolCalls() bool

	// Complete sends one request and returns the model's reply.
	Complete(ctx context.Context, req Request) (*Response, error)
}
