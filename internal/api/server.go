// Package api implements the Voice Wizard HTTP API: call control and
// its WebSocket stream, the settings, agent, contact, task, appointment
// and product registries, and the AI chat bridge.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/agents"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/appointments"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/buildinfo"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/calls"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/callstate"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/chat"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/contacts"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/events"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/metrics"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/products"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/settings"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/tasks"
)

// maxBodyBytes bounds JSON request bodies. vCard imports get more room.
const (
	maxBodyBytes  = 1 << 20
	maxVCardBytes = 8 << 20
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// ContactSyncFunc pulls contacts from the configured address book.
type ContactSyncFunc func(ctx context.Context) (contacts.ImportResult, error)

// Deps are the components the API exposes. Calls, CallState, Settings,
// Agents, Tasks, Appointments and Catalog are required; the rest are
// optional and their routes answer 503 when missing.
type Deps struct {
	Calls        *calls.Controller
	CallState    *callstate.Store
	Settings     *settings.Store
	Agents       *agents.Registry
	Contacts     *contacts.Store
	Tasks        *tasks.Registry
	Appointments *appointments.Registry
	Catalog      *products.Catalog
	Chat         *chat.Bridge
	Bus          *events.Bus
	Metrics      *metrics.Metrics

	ContactSync     ContactSyncFunc
	ContactCategory string // category for imported contacts
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int
	deps    Deps
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates a new API server.
func NewServer(address string, port int, deps Deps, logger *slog.Logger) *Server {
	return &Server{
		address: address,
		port:    port,
		deps:    deps,
		logger:  logger,
	}
}

// Handler returns the routed handler, including request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.Handle("GET /metrics", s.deps.Metrics.Handler())

	s.registerCallRoutes(mux)
	s.registerSettingsRoutes(mux)
	s.registerAgentRoutes(mux)
	s.registerContactRoutes(mux)
	s.registerTaskRoutes(mux)
	s.registerAppointmentRoutes(mux)
	s.registerChatRoutes(mux)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It blocks until the server stops.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Chat requests wait for up to two provider round-trips.
		WriteTimeout: 150 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Voice Wizard",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, v, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	s.respond(w, code, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	})
}

// decode reads a JSON body into v. It writes the error response itself
// and reports whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// registryError maps a registry error to a response: not-found
// sentinels become 404, everything else 400.
func (s *Server) registryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, agents.ErrNotFound),
		errors.Is(err, contacts.ErrNotFound),
		errors.Is(err, tasks.ErrNotFound),
		errors.Is(err, appointments.ErrNotFound):
		s.errorResponse(w, http.StatusNotFound, err.Error())
	default:
		s.errorResponse(w, http.StatusBadRequest, err.Error())
	}
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
