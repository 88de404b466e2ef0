// Package metrics provides the Prometheus collectors for calls, chat
// and tool execution. A nil *Metrics is valid and records nothing, so
// components do not need guard checks.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voicewizard"

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	callsStarted    *prometheus.CounterVec
	callsAnswered   *prometheus.CounterVec
	callsEnded      *prometheus.CounterVec
	callDuration    prometheus.Histogram
	callActive      prometheus.Gauge
	transcriptLines prometheus.Counter

	chatRequests *prometheus.CounterVec
	chatDuration *prometheus.HistogramVec
	toolCalls    *prometheus.CounterVec
}

// New registers all collectors, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		callsStarted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls_started_total",
				Help:      "Incoming calls by entry branch (incoming, background)",
			},
			[]string{"branch"},
		),
		callsAnswered: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls_answered_total",
				Help:      "Answered calls by mode (manual, agent, auto, background)",
			},
			[]string{"mode"},
		),
		callsEnded: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls_ended_total",
				Help:      "Ended calls by the status they had when ending",
			},
			[]string{"status", "forwarded"},
		),
		callDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "call_duration_seconds",
				Help:      "Talk time of answered calls",
				Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
			},
		),
		callActive: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "call_in_progress",
				Help:      "1 while a call is incoming or active",
			},
		),
		transcriptLines: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transcript_lines_total",
				Help:      "Synthetic transcript lines appended",
			},
		),
		chatRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_requests_total",
				Help:      "AI chat requests by provider and result",
			},
			[]string{"provider", "result"},
		),
		chatDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "chat_request_duration_seconds",
				Help:      "AI chat round-trip latency including tool resolution",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		toolCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Assistant tool executions by tool and outcome",
			},
			[]string{"tool", "success"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CallStarted records a new call entering the store.
func (m *Metrics) CallStarted(branch string) {
	if m == nil {
		return
	}
	m.callsStarted.WithLabelValues(branch).Inc()
	m.callActive.Set(1)
}

// CallAnswered records an incoming call becoming active.
func (m *Metrics) CallAnswered(mode string) {
	if m == nil {
		return
	}
	m.callsAnswered.WithLabelValues(mode).Inc()
}

// CallEnded records the end of a call. talk is zero for calls that were
// never answered and is then not observed.
func (m *Metrics) CallEnded(status string, forwarded bool, talk time.Duration) {
	if m == nil {
		return
	}
	fwd := "false"
	if forwarded {
		fwd = "true"
	}
	m.callsEnded.WithLabelValues(status, fwd).Inc()
	m.callActive.Set(0)
	if talk > 0 {
		m.callDuration.Observe(talk.Seconds())
	}
}

// TranscriptLine counts one synthetic transcript line.
func (m *Metrics) TranscriptLine() {
	if m == nil {
		return
	}
	m.transcriptLines.Inc()
}

// ChatRequest records one GetAIResponse call.
func (m *Metrics) ChatRequest(provider, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.chatRequests.WithLabelValues(provider, result).Inc()
	m.chatDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// ToolCall records one tool execution.
func (m *Metrics) ToolCall(tool string, success bool) {
	if m == nil {
		return
	}
	ok := "false"
	if success {
		ok = "true"
	}
	m.toolCalls.WithLabelValues(tool, ok).Inc()
}
