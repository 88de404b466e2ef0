// Package chat implements the AI chat bridge: it turns a conversation
// into either a plain model reply or tool-driven changes to the task
// and appointment registries, across interchangeable providers.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/appointments"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/events"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/llm"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/metrics"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/prompts"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/tasks"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/tools"
)

// Errors returned by GetAIResponse. Each is also surfaced to the user
// as a notice on the event bus.
var (
	ErrNoAPIKey        = errors.New("no API key configured")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrUpstream        = errors.New("upstream request failed")
	ErrNoMessages      = errors.New("conversation is empty")
)

// DefaultTimeout bounds one provider round-trip when no per-provider
// timeout is configured.
const DefaultTimeout = 60 * time.Second

// Metric result labels.
const (
	resultOK       = "ok"
	resultNoKey    = "no_key"
	resultError    = "error"
	resultToolCall = "tool_call"
)

// TaskSource supplies the live task list for the system prompt.
type TaskSource interface {
	List() []tasks.Task
}

// AppointmentSource supplies the live appointment list for the system
// prompt.
type AppointmentSource interface {
	List() []appointments.Appointment
}

// Config wires a Bridge.
type Config struct {
	Providers       []llm.Provider
	Timeouts        map[string]time.Duration // by provider name
	DefaultProvider string
	Tools           *tools.Registry
	Tasks           TaskSource
	Appointments    AppointmentSource
	Bus             *events.Bus
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
	Now             func() time.Time
}

// Bridge routes chat requests to providers and resolves tool calls.
// It is safe for concurrent use; overlapping requests are independent.
type Bridge struct {
	providers       map[string]llm.Provider
	timeouts        map[string]time.Duration
	defaultProvider string
	tools           *tools.Registry
	tasks           TaskSource
	appts           AppointmentSource
	bus             *events.Bus
	metrics         *metrics.Metrics
	logger          *slog.Logger
	now             func() time.Time
}

// New creates a Bridge.
func New(cfg Config) *Bridge {
	b := &Bridge{
		providers:       make(map[string]llm.Provider, len(cfg.Providers)),
		timeouts:        cfg.Timeouts,
		defaultProvider: cfg.DefaultProvider,
		tools:           cfg.Tools,
		tasks:           cfg.Tasks,
		appts:           cfg.Appointments,
		bus:             cfg.Bus,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		now:             cfg.Now,
	}
	for _, p := range cfg.Providers {
		b.providers[p.Name()] = p
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// ProviderInfo describes a configured provider for listings.
type ProviderInfo struct {
	Name          string `json:"name"`
	HasAPIKey     bool   `json:"has_api_key"`
	SupportsTools bool   `json:"supports_tools"`
	Default       bool   `json:"default"`
}

// Providers lists the configured providers sorted by name.
func (b *Bridge) Providers() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(b.providers))
	for name, p := range b.providers {
		out = append(out, ProviderInfo{
			Name:          name,
			HasAPIKey:     p.HasAPIKey(),
			SupportsTools: p.SupportsTools(),
			Default:       name == b.defaultProvider,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DefaultProvider returns the provider used when a request names none.
func (b *Bridge) DefaultProvider() string {
	return b.defaultProvider
}

// GetAIResponse sends the conversation to provider (empty = default)
// and returns the model's reply. When the model asks for tools, they
// are executed and their results resubmitted once; the second reply is
// returned. Failures come back as errors wrapping ErrNoAPIKey,
// ErrUnknownProvider or ErrUpstream, with a notice published.
func (b *Bridge) GetAIResponse(ctx context.Context, messages []llm.Message, provider string) (string, error) {
	if provider == "" {
		provider = b.defaultProvider
	}
	p, ok := b.providers[provider]
	if !ok {
		b.bus.Notify(events.SourceChat, events.NoticeError, fmt.Sprintf("Unbekannter KI-Anbieter %q.", provider))
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	if !p.HasAPIKey() {
		b.metrics.ChatRequest(provider, resultNoKey, 0)
		b.bus.Notify(events.SourceChat, events.NoticeError, fmt.Sprintf("Kein API-Schlüssel für %s konfiguriert.", provider))
		return "", fmt.Errorf("%w for provider %q", ErrNoAPIKey, provider)
	}
	if len(messages) == 0 {
		return "", ErrNoMessages
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeoutFor(provider))
	defer cancel()

	start := time.Now()
	b.bus.Publish(events.Event{
		Source: events.SourceChat,
		Kind:   events.KindChatRequest,
		Data:   map[string]any{"provider": provider, "messages": len(messages)},
	})

	conv := append([]llm.Message(nil), messages...)
	resp, err := p.Complete(ctx, b.request(p, conv))
	if err != nil {
		return "", b.upstreamFailure(provider, start, err)
	}

	toolCalls := 0
	result := resultOK
	if p.SupportsTools() && len(resp.Message.ToolCalls) > 0 {
		calls := resp.Message.ToolCalls
		if !p.ParallelToolCalls() {
			calls = calls[:1]
		}
		toolCalls = len(calls)
		result = resultToolCall

		assistant := resp.Message
		assistant.ToolCalls = calls
		conv = append(conv, assistant)
		toolMsgs := b.executeTools(ctx, calls)
		conv = append(conv, toolMsgs...)

		resp, err = p.Complete(ctx, b.request(p, conv))
		if err != nil {
			return "", b.upstreamFailure(provider, start, err)
		}
		if resp.Message.Content == "" {
			resp.Message.Content = summarizeToolResults(toolMsgs)
		}
	}

	elapsed := time.Since(start)
	b.metrics.ChatRequest(provider, result, elapsed)
	b.bus.Publish(events.Event{
		Source: events.SourceChat,
		Kind:   events.KindChatResponse,
		Data: map[string]any{
			"provider":   provider,
			"tool_calls": toolCalls,
			"elapsed_ms": elapsed.Milliseconds(),
		},
	})
	b.logger.Info("chat response",
		"provider", provider,
		"model", resp.Model,
		"tool_calls", toolCalls,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"elapsed", elapsed,
	)
	return resp.Message.Content, nil
}

// request builds a provider request. The system prompt is rebuilt from
// the registries on every call so tool changes are visible in the
// second round.
func (b *Bridge) request(p llm.Provider, conv []llm.Message) llm.Request {
	var taskList []tasks.Task
	if b.tasks != nil {
		taskList = b.tasks.List()
	}
	var apptList []appointments.Appointment
	if b.appts != nil {
		apptList = b.appts.List()
	}

	req := llm.Request{
		System:   prompts.AssistantSystemPrompt(b.now(), taskList, apptList),
		Messages: conv,
	}
	if p.SupportsTools() && b.tools != nil {
		for _, t := range b.tools.List() {
			req.Tools = append(req.Tools, llm.ToolDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
	}
	return req
}

func (b *Bridge) executeTools(ctx context.Context, calls []llm.ToolCall) []llm.Message {
	out := make([]llm.Message, 0, len(calls))
	for _, tc := range calls {
		var result string
		if b.tools == nil {
			result = tools.Failure(fmt.Sprintf("tool %q is not available", tc.Name))
		} else {
			var err error
			result, err = b.tools.Execute(ctx, tc.Name, tc.Arguments)
			if err != nil {
				b.logger.Warn("model requested unavailable tool", "tool", tc.Name, "error", err)
				result = tools.Failure(err.Error())
			}
		}
		out = append(out, llm.Message{
			Role:       llm.RoleTool,
			Content:    result,
			ToolCallID: tc.ID,
			ToolName:   tc.Name,
		})
	}
	return out
}

func (b *Bridge) upstreamFailure(provider string, start time.Time, err error) error {
	b.metrics.ChatRequest(provider, resultError, time.Since(start))
	b.logger.Error("chat request failed", "provider", provider, "error", err)
	b.bus.Notify(events.SourceChat, events.NoticeError, "Die KI-Anfrage ist fehlgeschlagen. Bitte später erneut versuchen.")
	return fmt.Errorf("%w: %s: %v", ErrUpstream, provider, err)
}

func (b *Bridge) timeoutFor(provider string) time.Duration {
	if d, ok := b.timeouts[provider]; ok && d > 0 {
		return d
	}
	return DefaultTimeout
}
