// Package tools defines the assistant tools the chat bridge can invoke.
// Every tool returns a JSON string of the form
// {"success": bool, "message": string, ...}; failures are results, not
// errors, so the model can react to them.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/events"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/metrics"
)

// Tool represents a callable tool. Parameters is a JSON Schema object.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`

	Handler func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Registry holds available tools.
type Registry struct {
	tools   map[string]*Tool
	bus     *events.Bus
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(bus *events.Bus, m *metrics.Metrics, logger *slog.Logger) *Registry {
	return &Registry{
		tools:   make(map[string]*Tool),
		bus:     bus,
		metrics: m,
		logger:  logger,
	}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// List returns all tools sorted by name.
func (r *Registry) List() []*Tool {
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs a tool by name with JSON-encoded arguments. Only an
// unknown tool yields an error; malformed arguments and handler errors
// come back as a failed result.
func (r *Registry) Execute(ctx context.Context, name string, argsJSON string) (string, error) {
	tool := r.tools[name]
	if tool == nil {
		return "", &ErrToolUnavailable{ToolName: name}
	}

	r.bus.Publish(events.Event{
		Source: events.SourceTools,
		Kind:   events.KindToolCall,
		Data:   map[string]any{"tool": name},
	})
	start := time.Now()

	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return r.finish(name, start, Failure(fmt.Sprintf("invalid arguments: %v", err)), false), nil
		}
	}

	out, err := tool.Handler(ctx, args)
	if err != nil {
		r.logger.Warn("tool failed", "tool", name, "error", err)
		return r.finish(name, start, Failure(err.Error()), false), nil
	}
	return r.finish(name, start, out, succeeded(out)), nil
}

func (r *Registry) finish(name string, start time.Time, out string, ok bool) string {
	elapsed := time.Since(start)
	r.metrics.ToolCall(name, ok)
	r.bus.Publish(events.Event{
		Source: events.SourceTools,
		Kind:   events.KindToolDone,
		Data:   map[string]any{"tool": name, "ok": ok, "duration_ms": elapsed.Milliseconds()},
	})
	r.logger.Info("tool executed", "tool", name, "ok", ok, "elapsed", elapsed)
	return out
}

// Result builds a tool result. extra fields are merged next to success
// and message.
func Result(success bool, message string, extra map[string]any) string {
	body := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		body[k] = v
	}
	body["success"] = success
	body["message"] = message
	data, err := json.Marshal(body)
	if err != nil {
		return Failure(fmt.Sprintf("encode result: %v", err))
	}
	return string(data)
}

// Failure builds a failed tool result.
func Failure(message string) string {
	data, _ := json.Marshal(map[string]any{"success": false, "message": message})
	return string(data)
}

func succeeded(out string) bool {
	var probe struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal([]byte(out), &probe); err != nil {
		return false
	}
	return probe.Success
}

// stringArg returns args[key] as a trimmed string, or "".
func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%g", s))
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}
