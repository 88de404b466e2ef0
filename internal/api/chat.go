package api

import (
	"errors"
	"net/http"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/chat"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/llm"
)

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	Messages []llm.Message `json:"messages"`
	Provider string        `json:"provider,omitempty"` // empty = default
}

// ChatResponse is the reply to POST /v1/chat.
type ChatResponse struct {
	Provider string `json:"provider"`
	Response string `json:"response"`
	HTML     string `json:"html,omitempty"`
}

func (s *Server) registerChatRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/chat/providers", s.withChat(s.handleChatProviders))
	mux.HandleFunc("POST /v1/chat", s.withChat(s.handleChat))
}

func (s *Server) withChat(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Chat == nil {
			s.errorResponse(w, http.StatusServiceUnavailable, "chat not configured")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleChatProviders(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]any{"providers": s.deps.Chat.Providers()})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !s.decode(w, r, &req) {
		return
	}
	provider := req.Provider
	if provider == "" {
		provider = s.deps.Chat.DefaultProvider()
	}

	reply, err := s.deps.Chat.GetAIResponse(r.Context(), req.Messages, provider)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrNoMessages):
			s.errorResponse(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, chat.ErrUnknownProvider):
			s.errorResponse(w, http.StatusNotFound, err.Error())
		case errors.Is(err, chat.ErrNoAPIKey):
			s.errorResponse(w, http.StatusPreconditionFailed, err.Error())
		default:
			s.errorResponse(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	resp := ChatResponse{Provider: provider, Response: reply}
	if html, err := chat.RenderHTML(reply); err == nil {
		resp.HTML = html
	} else {
		s.logger.Debug("markdown render failed", "error", err)
	}
	s.respond(w, http.StatusOK, resp)
}
