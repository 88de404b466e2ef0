// Package settings holds the phone behaviour switches read by the call
// controller: auto-answer, the working-hours window, silent mode and
// background handling.
package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/storage"
)

// storageKey is the document key the settings are persisted under.
const storageKey = "phone-settings"

// Settings is a snapshot of the phone behaviour switches.
type Settings struct {
	AutoAnswerEnabled  bool `json:"auto_answer_enabled"`
	WorkingHoursStart  int  `json:"working_hours_start"` // inclusive hour of day
	WorkingHoursEnd    int  `json:"working_hours_end"`   // exclusive hour of day
	SilentModeEnabled  bool `json:"silent_mode_enabled"`
	HandleInBackground bool `json:"handle_in_background"`
}

// InWorkingHours reports whether hour falls inside
// [WorkingHoursStart, WorkingHoursEnd). A window whose start is after its
// end wraps past midnight; equal bounds describe an empty window.
func (s Settings) InWorkingHours(hour int) bool {
	start, end := s.WorkingHoursStart, s.WorkingHoursEnd
	switch {
	case start == end:
		return false
	case start < end:
		return hour >= start && hour < end
	default:
		return hour >= start || hour < end
	}
}

// Validate rejects hours outside 0-24.
func (s Settings) Validate() error {
	if s.WorkingHoursStart < 0 || s.WorkingHoursStart > 24 {
		return fmt.Errorf("working_hours_start %d out of range 0-24", s.WorkingHoursStart)
	}
	if s.WorkingHoursEnd < 0 || s.WorkingHoursEnd > 24 {
		return fmt.Errorf("working_hours_end %d out of range 0-24", s.WorkingHoursEnd)
	}
	return nil
}

// Store is a thread-safe settings container. Reads are synchronous
// snapshots; updates are persisted before they become visible.
type Store struct {
	mu     sync.RWMutex
	cur    Settings
	docs   storage.Documents
	logger *slog.Logger
}

// NewStore loads persisted settings from docs, falling back to defaults
// when nothing was stored yet or the stored document is unreadable.
func NewStore(docs storage.Documents, defaults Settings, logger *slog.Logger) *Store {
	s := &Store{cur: defaults, docs: docs, logger: logger}

	var stored Settings
	err := docs.LoadJSON(storageKey, &stored)
	switch {
	case err == nil:
		if verr := stored.Validate(); verr != nil {
			logger.Warn("ignoring invalid stored settings", "error", verr)
			break
		}
		s.cur = stored
	case errors.Is(err, storage.ErrNotFound):
		logger.Debug("no stored settings, using defaults")
	default:
		logger.Warn("stored settings unreadable, using defaults", "error", err)
	}
	return s
}

// Snapshot returns the current settings.
func (s *Store) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update applies fn to a copy of the current settings, validates and
// persists the result, then publishes it. On error nothing changes.
func (s *Store) Update(fn func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur
	fn(&next)
	if err := next.Validate(); err != nil {
		return s.cur, err
	}
	if err := s.docs.SaveJSON(storageKey, next); err != nil {
		return s.cur, fmt.Errorf("persist settings: %w", err)
	}
	s.cur = next
	s.logger.Info("settings updated",
		"auto_answer", next.AutoAnswerEnabled,
		"working_hours", fmt.Sprintf("%02d-%02d", next.WorkingHoursStart, next.WorkingHoursEnd),
		"silent_mode", next.SilentModeEnabled,
		"background", next.HandleInBackground,
	)
	return next, nil
}
