// Package appointments keeps customer appointments. Appointments are
// never deleted; they move from scheduled to completed or cancelled.
package appointments

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/storage"
)

// StorageKey is the fixed document key of the appointment list.
const StorageKey = "craftsman-appointments"

// Date and time layouts accepted for appointments.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ErrNotFound is returned when no appointment has the requested ID.
var ErrNotFound = errors.New("appointment not found")

// Status is the lifecycle state of an appointment.
type Status string

// Appointment states.
const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ParseStatus validates s.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusScheduled:
		return StatusScheduled, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusCancelled:
		return StatusCancelled, nil
	}
	return "", fmt.Errorf("unknown status %q (valid: scheduled, completed, cancelled)", s)
}

// Appointment is one customer visit.
type Appointment struct {
	ID           string    `json:"id"`
	CustomerName string    `json:"customer_name"`
	Phone        string    `json:"phone,omitempty"`
	Date         string    `json:"date"` // YYYY-MM-DD
	Time         string    `json:"time"` // HH:MM
	Reason       string    `json:"reason"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Seed returns the list used when nothing valid is stored.
func Seed() []Appointment {
	created := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	return []Appointment{
		{
			ID:           "appt-1",
			CustomerName: "Familie Müller",
			Phone:        "0176 12345678",
			Date:         "2024-01-22",
			Time:         "10:00",
			Reason:       "Vor-Ort-Termin PV-Anlage",
			Status:       StatusScheduled,
			CreatedAt:    created,
		},
		{
			ID:           "appt-2",
			CustomerName: "Herr Schneider",
			Phone:        "030 9876543",
			Date:         "2024-01-18",
			Time:         "14:30",
			Reason:       "Wartung Batteriespeicher",
			Status:       StatusCompleted,
			CreatedAt:    created,
		},
	}
}

// Registry is the thread-safe appointment list.
type Registry struct {
	mu     sync.RWMutex
	items  []Appointment
	docs   storage.Documents
	logger *slog.Logger
}

// NewRegistry loads appointments from docs, falling back to Seed when the
// document is missing or corrupt.
func NewRegistry(docs storage.Documents, logger *slog.Logger) *Registry {
	r := &Registry{docs: docs, logger: logger}

	var stored []Appointment
	err := docs.LoadJSON(StorageKey, &stored)
	switch {
	case err == nil && stored != nil:
		r.items = stored
	case err == nil, errors.Is(err, storage.ErrNotFound):
		r.items = Seed()
	default:
		logger.Warn("stored appointments unreadable, using seed list", "error", err)
		r.items = Seed()
	}
	return r
}

// List returns a copy of all appointments in creation order.
func (r *Registry) List() []Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.items)
}

// Get returns one appointment.
func (r *Registry) Get(id string) (Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.index(id)
	if i < 0 {
		return Appointment{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.items[i], nil
}

// Add validates and stores a new scheduled appointment.
func (r *Registry) Add(a Appointment) (Appointment, error) {
	if err := validate(&a); err != nil {
		return Appointment{}, err
	}
	a.ID = uuid.Must(uuid.NewV7()).String()
	a.Status = StatusScheduled
	a.CreatedAt = time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.commit(append(slices.Clone(r.items), a)); err != nil {
		return Appointment{}, err
	}
	r.logger.Info("appointment added", "appointment_id", a.ID, "date", a.Date, "time", a.Time)
	return a, nil
}

// Update replaces the editable fields of an appointment. Status and
// creation time are kept; use SetStatus to move the lifecycle.
func (r *Registry) Update(a Appointment) (Appointment, error) {
	if err := validate(&a); err != nil {
		return Appointment{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(a.ID)
	if i < 0 {
		return Appointment{}, fmt.Errorf("%w: %s", ErrNotFound, a.ID)
	}
	next := slices.Clone(r.items)
	a.Status = next[i].Status
	a.CreatedAt = next[i].CreatedAt
	next[i] = a
	if err := r.commit(next); err != nil {
		return Appointment{}, err
	}
	return a, nil
}

// SetStatus moves an appointment to status.
func (r *Registry) SetStatus(id string, status Status) (Appointment, error) {
	status, err := ParseStatus(string(status))
	if err != nil {
		return Appointment{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(id)
	if i < 0 {
		return Appointment{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := slices.Clone(r.items)
	prev := next[i].Status
	next[i].Status = status
	if err := r.commit(next); err != nil {
		return Appointment{}, err
	}
	r.logger.Info("appointment status changed", "appointment_id", id, "from", prev, "to", status)
	return next[i], nil
}

// commit persists next and publishes it. Callers must hold r.mu.
func (r *Registry) commit(next []Appointment) error {
	if err := r.docs.SaveJSON(StorageKey, next); err != nil {
		return fmt.Errorf("persist appointments: %w", err)
	}
	r.items = next
	return nil
}

func (r *Registry) index(id string) int {
	return slices.IndexFunc(r.items, func(a Appointment) bool { return a.ID == id })
}

func validate(a *Appointment) error {
	a.CustomerName = strings.TrimSpace(a.CustomerName)
	a.Reason = strings.TrimSpace(a.Reason)
	a.Phone = strings.TrimSpace(a.Phone)
	if a.CustomerName == "" {
		return errors.New("customer name is required")
	}
	if _, err := time.Parse(DateLayout, a.Date); err != nil {
		return fmt.Errorf("invalid date %q (want YYYY-MM-DD)", a.Date)
	}
	if _, err := time.Parse(TimeLayout, a.Time); err != nil {
		return fmt.Errorf("invalid time %q (want HH:MM)", a.Time)
	}
	return nil
}
