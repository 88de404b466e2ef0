package api

import (
	"net/http"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/agents"
)

type agentList struct {
	VMEnabled bool           `json:"vm_enabled"`
	Agents    []agents.Agent `json:"agents"`
}

func (s *Server) registerAgentRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/agents", s.handleListAgents)
	mux.HandleFunc("POST /v1/agents", s.handleAddAgent)
	mux.HandleFunc("PUT /v1/agents/vm", s.handleSetVM)
	mux.HandleFunc("GET /v1/agents/{id}", s.handleGetAgent)
	mux.HandleFunc("PUT /v1/agents/{id}", s.handleUpdateAgent)
	mux.HandleFunc("DELETE /v1/agents/{id}", s.handleRemoveAgent)
	mux.HandleFunc("POST /v1/agents/{id}/active", s.handleSetAgentActive)
}

func (s *Server) listAgents() agentList {
	return agentList{VMEnabled: s.deps.Agents.VMEnabled(), Agents: s.deps.Agents.List()}
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.listAgents())
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Agents.Get(r.PathValue("id"))
	if err != nil {
		s.registryError(w, err)
		return
	}
	s.respond(w, http.StatusOK, a)
}

func (s *Server) handleAddAgent(w http.ResponseWriter, r *http.Request) {
	var a agents.Agent
	if !s.decode(w, r, &a) {
		return
	}
	added, err := s.deps.Agents.Add(a)
	if err != nil {
		s.registryError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, added)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var a agents.Agent
	if !s.decode(w, r, &a) {
		return
	}
	a.ID = r.PathValue("id")
	updated, err := s.deps.Agents.Update(a)
	if err != nil {
		s.registryError(w, err)
		return
	}
	s.respond(w, http.StatusOK, updated)
}

func (s *Server) handleRemoveAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Agents.Remove(r.PathValue("id")); err != nil {
		s.registryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetAgentActive answers with the whole list because activating
// one agent can deactivate the others.
func (s *Server) handleSetAgentActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active bool `json:"active"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if _, err := s.deps.Agents.SetActive(r.PathValue("id"), req.Active); err != nil {
		s.registryError(w, err)
		return
	}
	s.respond(w, http.StatusOK, s.listAgents())
}

func (s *Server) handleSetVM(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		s.errorResponse(w, http.StatusBadRequest, "enabled is required")
		return
	}
	if err := s.deps.Agents.SetVMEnabled(*req.Enabled); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respond(w, http.StatusOK, s.listAgents())
}
