// Package tasks is the craftsman to-do list: tasks with optional
// subtasks, optionally linked to an appointment. The list is persisted
// as one JSON document and written on every mutation.
package tasks

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

// StorageKey is the fixed document key of the task list.
const StorageKey = "craftsman-tasks"

// ErrNotFound is returned when a task or subtask ID does not exist.
var ErrNotFound = errors.New("task not found")

// Priority ranks a task.
type Priority string

// Task priorities.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority validates p. An empty string yields PriorityMedium.
func ParsePriority(p string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(p))) {
	case "":
		return PriorityMedium, nil
	case PriorityLow:
		return PriorityLow, nil
	case PriorityMedium:
		return PriorityMedium, nil
	case PriorityHigh:
		return PriorityHigh, nil
	}
	return "", fmt.Errorf("unknown priority %q (valid: low, medium, high)", p)
}

// Subtask is one checklist item of a task.
type Subtask struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Task is one to-do entry.
type Task struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	Priority      Priority  `json:"priority"`
	Completed     bool      `json:"completed"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	Subtasks      []Subtask `json:"subtasks,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (t Task) clone() Task {
	t.Subtasks = slices.Clone(t.Subtasks)
	return t
}

// Patch carries the optional fields of an update. Nil fields are left
// unchanged.
type Patch struct {
	Text          *string   `json:"text,omitempty"`
	Priority      *Priority `json:"priority,omitempty"`
	AppointmentID *string   `json:"appointment_id,omitempty"`
}

// Seed returns the list used when nothing valid is stored.
func Seed() []Task {
	created := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	return []Task{
		{
			ID:        "task-1",
			Text:      "Angebot für PV-Anlage Familie Müller erstellen",
			Priority:  PriorityHigh,
			CreatedAt: created,
			Subtasks: []Subtask{
				{ID: "task-1-1", Text: "Dachmaße prüfen"},
				{ID: "task-1-2", Text: "Modulbelegung planen"},
			},
		},
		{
			ID:        "task-2",
			Text:      "Wechselrichter bei Großhändler bestellen",
			Priority:  PriorityMedium,
			CreatedAt: created,
		},
		{
			ID:        "task-3",
			Text:      "Wartungsprotokoll Speicher Schneider ablegen",
			Priority:  PriorityLow,
			Completed: true,
			CreatedAt: created,
		},
	}
}

// Registry is the thread-safe task list.
type Registry struct {
	mu     sync.RWMutex
	tasks  []Task
	docs   storage.Documents
	logger *slog.Logger
}

// NewRegistry loads the task list from docs, falling back to Seed when
// the document is missing or corrupt.
func NewRegistry(docs storage.Documents, logger *slog.Logger) *Registry {
	r := &Registry{docs: docs, logger: logger}

	var stored []Task
	err := docs.LoadJSON(StorageKey, &stored)
	switch {
	case err == nil && stored != nil:
		r.tasks = stored
	case err == nil, errors.Is(err, storage.ErrNotFound):
		r.tasks = Seed()
	default:
		logger.Warn("stored tasks unreadable, using seed list", "error", err)
		r.tasks = Seed()
	}
	return r
}

// List returns a deep copy of all tasks in creation order.
func (r *Registry) List() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cloneAll()
}

// Get returns one task.
func (r *Registry) Get(id string) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.index(id)
	if i < 0 {
		return Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.tasks[i].clone(), nil
}

// Add appends a new, open task.
func (r *Registry) Add(text string, priority Priority, appointmentID string) (Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Task{}, errors.New("task text is required")
	}
	if priority == "" {
		priority = PriorityMedium
	}
	t := Task{
		ID:            uuid.Must(uuid.NewV7()).String(),
		Text:          text,
		Priority:      priority,
		AppointmentID: appointmentID,
		CreatedAt:     time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.commit(append(r.cloneAll(), t)); err != nil {
		return Task{}, err
	}
	r.logger.Info("task added", "task_id", t.ID, "priority", t.Priority)
	return t.clone(), nil
}

// Update applies p to the task.
func (r *Registry) Update(id string, p Patch) (Task, error) {
	return r.modify(id, func(t *Task) error {
		if p.Text != nil {
			text := strings.TrimSpace(*p.Text)
			if text == "" {
				return errors.New("task text cannot be empty")
			}
			t.Text = text
		}
		if p.Priority != nil {
			prio, err := ParsePriority(string(*p.Priority))
			if err != nil {
				return err
			}
			t.Priority = prio
		}
		if p.AppointmentID != nil {
			t.AppointmentID = *p.AppointmentID
		}
		return nil
	})
}

// Toggle flips the completion flag of a task.
func (r *Registry) Toggle(id string) (Task, error) {
	return r.modify(id, func(t *Task) error {
		t.Completed = !t.Completed
		return nil
	})
}

// Delete removes a task and its subtasks.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := r.commit(slices.Delete(r.cloneAll(), i, i+1)); err != nil {
		return err
	}
	r.logger.Info("task deleted", "task_id", id)
	return nil
}

// AddSubtask appends an open subtask to a task.
func (r *Registry) AddSubtask(taskID, text string) (Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Task{}, errors.New("subtask text is required")
	}
	return r.modify(taskID, func(t *Task) error {
		t.Subtasks = append(t.Subtasks, Subtask{ID: uuid.Must(uuid.NewV7()).String(), Text: text})
		return nil
	})
}

// ToggleSubtask flips the completion flag of a subtask.
func (r *Registry) ToggleSubtask(taskID, subtaskID string) (Task, error) {
	return r.modify(taskID, func(t *Task) error {
		j := slices.IndexFunc(t.Subtasks, func(s Subtask) bool { return s.ID == subtaskID })
		if j < 0 {
			return fmt.Errorf("%w: subtask %s", ErrNotFound, subtaskID)
		}
		t.Subtasks[j].Completed = !t.Subtasks[j].Completed
		return nil
	})
}

// DeleteSubtask removes a subtask.
func (r *Registry) DeleteSubtask(taskID, subtaskID string) (Task, error) {
	return r.modify(taskID, func(t *Task) error {
		j := slices.IndexFunc(t.Subtasks, func(s Subtask) bool { return s.ID == subtaskID })
		if j < 0 {
			return fmt.Errorf("%w: subtask %s", ErrNotFound, subtaskID)
		}
		t.Subtasks = slices.Delete(t.Subtasks, j, j+1)
		return nil
	})
}

// modify runs fn on a copy of the task and commits the whole list.
func (r *Registry) modify(id string, fn func(*Task) error) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(id)
	if i < 0 {
		return Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := r.cloneAll()
	if err := fn(&next[i]); err != nil {
		return Task{}, err
	}
	if err := r.commit(next); err != nil {
		return Task{}, err
	}
	return next[i].clone(), nil
}

// commit persists next and publishes it. Callers must hold r.mu.
func (r *Registry) commit(next []Task) error {
	if err := r.docs.SaveJSON(StorageKey, next); err != nil {
		return fmt.Errorf("persist tasks: %w", err)
	}
	r.tasks = next
	return nil
}

func (r *Registry) cloneAll() []Task {
	out := make([]Task, len(r.tasks))
	for i, t := range r.tasks {
		out[i] = t.clone()
	}
	return out
}

func (r *Registry) index(id string) int {
	return slices.IndexFunc(r.tasks, func(t Task) bool { return t.ID == id })
}
