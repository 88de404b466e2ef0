package api

import (
	"net/http"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/settings"
)

// settingsPatch carries the fields of a PATCH /v1/settings body. Absent
// fields keep their current value.
type settingsPatch struct {
	AutoAnswerEnabled  *bool `json:"auto_answer_enabled"`
	WorkingHoursStart  *int  `json:"working_hours_start"`
	WorkingHoursEnd    *int  `json:"working_hours_end"`
	SilentModeEnabled  *bool `json:"silent_mode_enabled"`
	HandleInBackground *bool `json:"handle_in_background"`
}

func (p settingsPatch) apply(s *settings.Settings) {
	if p.AutoAnswerEnabled != nil {
		s.AutoAnswerEnabled = *p.AutoAnswerEnabled
	}
	if p.WorkingHoursStart != nil {
		s.WorkingHoursStart = *p.WorkingHoursStart
	}
	if p.WorkingHoursEnd != nil {
		s.WorkingHoursEnd = *p.WorkingHoursEnd
	}
	if p.SilentModeEnabled != nil {
		s.SilentModeEnabled = *p.SilentModeEnabled
	}
	if p.HandleInBackground != nil {
		s.HandleInBackground = *p.HandleInBackground
	}
}

func (s *Server) registerSettingsRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/settings", s.handleGetSettings)
	mux.HandleFunc("PATCH /v1/settings", s.handlePatchSettings)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.deps.Settings.Snapshot())
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var patch settingsPatch
	if !s.decode(w, r, &patch) {
		return
	}
	updated, err := s.deps.Settings.Update(patch.apply)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respond(w, http.StatusOK, updated)
}
