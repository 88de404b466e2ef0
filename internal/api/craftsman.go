package api

import (
	"net/http"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/appointments"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/products"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/tasks"
)

func (s *Server) registerTaskRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/tasks", s.handleListTasks)
	mux.HandleFunc("POST /v1/tasks", s.handleAddTask)
	mux.HandleFunc("GET /v1/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("PATCH /v1/tasks/{id}", s.handleUpdateTask)
	mux.HandleFunc("DELETE /v1/tasks/{id}", s.handleDeleteTask)
	mux.HandleFunc("POST /v1/tasks/{id}/toggle", s.handleToggleTask)
	mux.HandleFunc("POST /v1/tasks/{id}/subtasks", s.handleAddSubtask)
	mux.HandleFunc("POST /v1/tasks/{id}/subtasks/{sid}/toggle", s.handleToggleSubtask)
	mux.HandleFunc("DELETE /v1/tasks/{id}/subtasks/{sid}", s.handleDeleteSubtask)
}

func (s *Server) registerAppointmentRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/appointments", s.handleListAppointments)
	mux.HandleFunc("POST /v1/appointments", s.handleAddAppointment)
	mux.HandleFunc("GET /v1/appointments/{id}", s.handleGetAppointment)
	mux.HandleFunc("PUT /v1/appointments/{id}", s.handleUpdateAppointment)
	mux.HandleFunc("POST /v1/appointments/{id}/status", s.handleSetAppointmentStatus)
	mux.HandleFunc("GET /v1/products", s.handleSearchProducts)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]any{"tasks": s.deps.Tasks.List()})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Tasks.Get(r.PathValue("id"))
	if err != nil {
		s.registryError(w, err)
		return
	}
	s.respond(w, http.StatusOK, t)
}

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text          string `json:"text"`
		Priority      string `json:"priority"`
		AppointmentID string `json:"appointment_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	prio, err := tasks.ParsePriority(req.Priority)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.AppointmentID != "" {
		if _, err := s.deps.Appointments.Get(req.AppointmentID); err != nil {
			s.errorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	t, err := s.deps.Tasks.Add(req.Text, prio, req.AppointmentID)
	if err != nil {
		s.registryError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, t)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var patch tasks.Patch
	if !s.decode(w, r, &patch) {
		return
	}
	t, err := s.deps.Tasks.Update(r.PathValue("id"), patch)
	if err != nil {
		s.registryError(w, err)
		return
	}
	s.respond(w, http.StatusOK, t)
}

func (s *Server) handleToggleTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Tasks.Toggle(r.PathValue("id"))
	if err != nil {
		s.registryError(w, err)
		return
	}
	s.respond(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Tasks.Delete(r.PathValue("id")); err != nil {
		s.registryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddSubtask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	t, err := s.deps.Tasks.AddSubtask(r.PathValue("id"), req.Text)
	if err != nil {
		s.registryError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, t)
}

func (s *Server) handleToggleSubtask(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Tasks.ToggleSubtask(r.PathValue("id"), r.PathValue("sid"))
	if err != nil {
		s.registryError(w, err)
		return
	}
	s.respond(w, http.StatusOK, t)
}

func (s *Server) handleDeleteSubtask(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Tasks.DeleteSubtask(r.PathValue("id"), r.PathValue("sid"))
	if err != nil {
		s.registryError(w, err)
		return
	}
	s.respond(w, http.StatusOK, t)
}

func (s *Server) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]any{"appointments": s.deps.Appointments.List()})
}

func (s *Server) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Appointments.Get(r.PathValue("id"))
	if err != nil {
		s.registryError(w, err)
		return
	}
	s.respond(w, http.StatusOK, a)
}

func (s *Server) handleAddAppointment(w http.ResponseWriter, r *http.Request) {
	var a appointments.Appointment
	if !s.decode(w, r, &a) {
		return
	}
	added, err := s.deps.Appointments.Add(a)
	if err != nil {
		s.registryError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, added)
}

func (s *Server) handleUpdateAppointment(w http.ResponseWriter, r *http.Request) {
	var a appointments.Appointment
	if !s.decode(w, r, &a) {
		return
	}
	a.ID = r.PathValue("id")
	updated, err := s.deps.Appointments.Update(a)
	if err != nil {
		s.registryError(w, err)
		return
	}
	s.respond(w, http.StatusOK, updated)
}

func (s *Server) handleSetAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	a, err := s.deps.Appointments.SetStatus(r.PathValue("id"), appointments.Status(req.Status))
	if err != nil {
		s.registryError(w, err)
		return
	}
	s.respond(w, http.StatusOK, a)
}

// handleSearchProducts lists the catalog, filtered by ?q= when given.
func (s *Server) handleSearchProducts(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 0)
	var list []products.Product
	if q := r.URL.Query().Get("q"); q != "" {
		list = s.deps.Catalog.Search(q, limit)
	} else {
		list = s.deps.Catalog.All()
		if limit > 0 && len(list) > limit {
			list = list[:limit]
		}
	}
	if list == nil {
		list = []products.Product{}
	}
	s.respond(w, http.StatusOK, map[string]any{"products": list})
}
