package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newOpenAITestProvider(t *testing.T, tools bool, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewOpenAIProvider(OpenAIConfig{
		Name:          "deepseek",
		APIKey:        "test-key",
		BaseURL:       srv.URL + "/v1",
		Model:         "deepseek-chat",
		SupportsTools: tools,
		HTTPClient:    srv.Client(),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type capturedChat struct {
	Model    string           `json:"model"`
	Messages []map[string]any `json:"messages"`
	Tools    []map[string]any `json:"tools"`
}

func TestOpenAIProvider_ToolCalls(t *testing.T) {
	var got capturedChat
	p := newOpenAITestProvider(t, true, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "deepseek-chat",
			"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
				"role": "assistant", "content": null,
				"tool_calls": [
					{"id": "call_1", "type": "function", "function": {"name": "toggle_task_completion", "arguments": "{\"task_id\":\"task-2\"}"}},
					{"id": "call_2", "type": "function", "function": {"name": "toggle_task_completion", "arguments": "{\"task_id\":\"task-3\"}"}}
				]
			}}],
			"usage": {"prompt_tokens": 50, "completion_tokens": 12, "total_tokens": 62}
		}`)
	})

	resp, err := p.Complete(context.Background(), Request{
		System:   "sys",
		Messages: []Message{{Role: RoleUser, Content: "Erledige 2 und 3"}},
		Tools:    []ToolDef{{Name: "toggle_task_completion", Description: "d", Parameters: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if len(resp.Message.ToolCalls) != 2 {
		t.Fatalf("tool calls = %d, want 2", len(resp.Message.ToolCalls))
	}
	if resp.Message.ToolCalls[1].ID != "call_2" || resp.Message.ToolCalls[1].Arguments != `{"task_id":"task-3"}` {
		t.Errorf("second call = %+v", resp.Message.ToolCalls[1])
	}
	if resp.InputTokens != 50 || resp.OutputTokens != 12 {
		t.Errorf("tokens = %d/%d", resp.InputTokens, resp.OutputTokens)
	}

	if got.Model != "deepseek-chat" {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0]["role"] != "system" {
		t.Errorf("messages = %v", got.Messages)
	}
	if len(got.Tools) != 1 {
		t.Errorf("tools = %v", got.Tools)
	}
	if !p.ParallelToolCalls() {
		t.Error("tool-capable provider should resolve parallel calls")
	}
}

func TestOpenAIProvider_PlainVariantSendsNoTools(t *testing.T) {
	var got capturedChat
	p := newOpenAITestProvider(t, false, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id": "x", "object": "chat.completion", "created": 1, "model": "sonar",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Guten Tag!"}}]}`)
	})

	resp, err := p.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "Hallo"}},
		Tools:    []ToolDef{{Name: "search_products", Parameters: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Message.Content != "Guten Tag!" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if len(got.Tools) != 0 {
		t.Errorf("plain provider sent tools: %v", got.Tools)
	}
	if p.SupportsTools() || p.ParallelToolCalls() {
		t.Error("plain provider reports tool support")
	}
}

func TestOpenAIProvider_TraceLogsPayloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id": "x", "object": "chat.completion", "created": 1, "model": "sonar",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Guten Tag!"}}]}`)
	}))
	defer srv.Close()

	tests := []struct {
		name      string
		level     slog.Level
		wantTrace bool
	}{
		{"trace", LevelTrace, true},
		{"debug", slog.LevelDebug, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			p := NewOpenAIProvider(OpenAIConfig{
				Name:       "perplexity",
				APIKey:     "test-key",
				BaseURL:    srv.URL + "/v1",
				Model:      "sonar",
				HTTPClient: srv.Client(),
			}, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: tt.level})))

			if _, err := p.Complete(context.Background(), Request{
				Messages: []Message{{Role: RoleUser, Content: "Wann kommt der Monteur?"}},
			}); err != nil {
				t.Fatalf("Complete: %v", err)
			}

			out := buf.String()
			for _, want := range []string{"request payload", "Wann kommt der Monteur?", "response content", "Guten Tag!"} {
				if got := strings.Contains(out, want); got != tt.wantTrace {
					t.Errorf("log contains %q = %v, want %v\n%s", want, got, tt.wantTrace, out)
				}
			}
			if !strings.Contains(out, "preparing request") {
				t.Errorf("debug line missing:\n%s", out)
			}
		})
	}
}

func TestOpenAIProvider_ToolResultRoundTrip(t *testing.T) {
	var got capturedChat
	p := newOpenAITestProvider(t, true, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id": "x", "object": "chat.completion", "created": 1, "model": "m",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Erledigt."}}]}`)
	})

	_, err := p.Complete(context.Background(), Request{Messages: []Message{
		{Role: RoleUser, Content: "Erledige 2"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_1", Name: "toggle_task_completion", Arguments: `{"task_id":"task-2"}`}}},
		{Role: RoleTool, ToolCallID: "call_1", ToolName: "toggle_task_completion", Content: `{"success":true}`},
	}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(got.Messages))
	}
	asst := got.Messages[1]
	if calls, _ := asst["tool_calls"].([]any); len(calls) != 1 {
		t.Errorf("assistant tool_calls = %v", asst["tool_calls"])
	}
	tool := got.Messages[2]
	if tool["role"] != "tool" || tool["tool_call_id"] != "call_1" {
		t.Errorf("tool message = %v", tool)
	}
}

func TestOpenAIProvider_Errors(t *testing.T) {
	p := newOpenAITestProvider(t, true, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "overloaded"}}`, http.StatusServiceUnavailable)
	})
	if _, err := p.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}}); err == nil {
		t.Error("expected error on HTTP 503")
	}

	empty := newOpenAITestProvider(t, true, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id": "x", "object": "chat.completion", "created": 1, "model": "m", "choices": []}`)
	})
	if _, err := empty.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}}); err == nil {
		t.Error("expected error for a response without choices")
	}

	noKey := NewOpenAIProvider(OpenAIConfig{Name: "perplexity", BaseURL: "http://127.0.0.1:1", Model: "sonar"}, nil)
	if noKey.HasAPIKey() {
		t.Error("HasAPIKey() = true without a key")
	}
	if _, err := noKey.Complete(context.Background(), Request{}); err == nil {
		t.Error("Complete without a key should fail")
	}
}
