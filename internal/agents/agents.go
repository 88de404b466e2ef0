// Package agents holds the AI agent definitions that answer calls and the
// global VM switch that turns AI call handling on or off.
//
// With the VM switch on and at least one agent registered, exactly one
// agent is active at any time. The registry enforces this on every
// mutation; consumers such as the call controller only read it.
package agents

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/storage"
)

// storageKey is the document key the registry is persisted under.
const storageKey = "agents"

// ErrNotFound is returned when no agent has the requested ID.
var ErrNotFound = errors.New("agent not found")

// Agent is one AI persona that can take a call.
type Agent struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Purpose            string `json:"purpose"`
	SystemInstructions string `json:"system_instructions"`
	Active             bool   `json:"active"`
	VoiceCloned        bool   `json:"voice_cloned,omitempty"`
	VoiceLabel         string `json:"voice_label,omitempty"`
	IsDefault          bool   `json:"is_default,omitempty"`
}

type document struct {
	VMEnabled bool    `json:"vm_enabled"`
	Agents    []Agent `json:"agents"`
}

// Registry is the thread-safe agent list. Every mutation is persisted
// before it becomes visible.
type Registry struct {
	mu        sync.RWMutex
	agents    []Agent
	vmEnabled bool
	docs      storage.Documents
	logger    *slog.Logger
}

// NewRegistry loads the persisted registry from docs. When nothing is
// stored, or the stored document is unreadable, seed and vmEnabled are
// used instead.
func NewRegistry(docs storage.Documents, seed []Agent, vmEnabled bool, logger *slog.Logger) *Registry {
	r := &Registry{
		agents:    slices.Clone(seed),
		vmEnabled: vmEnabled,
		docs:      docs,
		logger:    logger,
	}

	var doc document
	err := docs.LoadJSON(storageKey, &doc)
	switch {
	case err == nil:
		r.agents = doc.Agents
		r.vmEnabled = doc.VMEnabled
	case errors.Is(err, storage.ErrNotFound):
		logger.Debug("no stored agents, using seed", "count", len(seed))
	default:
		logger.Warn("stored agents unreadable, using seed", "error", err)
	}

	for i := range r.agents {
		if r.agents[i].ID == "" {
			r.agents[i].ID = newID()
		}
	}
	normalize(r.agents, r.vmEnabled, "")
	return r
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// List returns a copy of all agents in registration order.
func (r *Registry) List() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.agents)
}

// Get returns the agent with the given ID.
func (r *Registry) Get(id string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.index(id)
	if i < 0 {
		return Agent{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.agents[i], nil
}

// Default returns the agent flagged IsDefault, else the first registered
// agent. ok is false when the registry is empty.
func (r *Registry) Default() (a Agent, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := defaultIndex(r.agents)
	if i < 0 {
		return Agent{}, false
	}
	return r.agents[i], true
}

// VMEnabled reports the global AI call handling switch.
func (r *Registry) VMEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vmEnabled
}

// Add registers a new agent. An empty ID is assigned a fresh one.
func (r *Registry) Add(a Agent) (Agent, error) {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return Agent{}, errors.New("agent name is required")
	}
	if a.ID == "" {
		a.ID = newID()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index(a.ID) >= 0 {
		return Agent{}, fmt.Errorf("agent %q already exists", a.ID)
	}

	err := r.mutate(func(list []Agent) ([]Agent, string) {
		list = append(list, a)
		if a.IsDefault {
			clearDefault(list, a.ID)
		}
		if a.Active {
			return list, a.ID
		}
		return list, ""
	})
	if err != nil {
		return Agent{}, err
	}
	r.logger.Info("agent added", "agent_id", a.ID, "name", a.Name)
	return r.agents[r.index(a.ID)], nil
}

// Update replaces the agent with a.ID.
func (r *Registry) Update(a Agent) (Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(a.ID)
	if i < 0 {
		return Agent{}, fmt.Errorf("%w: %s", ErrNotFound, a.ID)
	}
	if strings.TrimSpace(a.Name) == "" {
		a.Name = r.agents[i].Name
	}

	err := r.mutate(func(list []Agent) ([]Agent, string) {
		list[i] = a
		if a.IsDefault {
			clearDefault(list, a.ID)
		}
		if a.Active {
			return list, a.ID
		}
		return list, ""
	})
	if err != nil {
		return Agent{}, err
	}
	return r.agents[i], nil
}

// Remove deletes the agent. If it was the active one and the VM switch
// is on, the default agent becomes active.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	err := r.mutate(func(list []Agent) ([]Agent, string) {
		return slices.Delete(list, i, i+1), ""
	})
	if err != nil {
		return err
	}
	r.logger.Info("agent removed", "agent_id", id)
	return nil
}

// SetActive toggles the active flag of one agent. With the VM switch on,
// activating an agent deactivates every other one and switching off the
// active agent hands the role back to the default agent.
func (r *Registry) SetActive(id string, active bool) (Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(id)
	if i < 0 {
		return Agent{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	err := r.mutate(func(list []Agent) ([]Agent, string) {
		list[i].Active = active
		if active {
			return list, id
		}
		return list, ""
	})
	if err != nil {
		return Agent{}, err
	}
	return r.agents[i], nil
}

// SetVMEnabled flips the global switch. Turning it on normalizes the
// active flags so that exactly one agent is active.
func (r *Registry) SetVMEnabled(enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.vmEnabled
	r.vmEnabled = enabled
	if err := r.mutate(func(list []Agent) ([]Agent, string) { return list, "" }); err != nil {
		r.vmEnabled = prev
		return err
	}
	r.logger.Info("vm switch changed", "enabled", enabled)
	return nil
}

// mutate applies fn to a copy of the agent list, re-establishes the
// single-active invariant, persists, and only then publishes the copy.
// Callers must hold r.mu.
func (r *Registry) mutate(fn func([]Agent) ([]Agent, string)) error {
	next, preferred := fn(slices.Clone(r.agents))
	normalize(next, r.vmEnabled, preferred)

	if err := r.docs.SaveJSON(storageKey, document{VMEnabled: r.vmEnabled, Agents: next}); err != nil {
		return fmt.Errorf("persist agents: %w", err)
	}
	r.agents = next
	return nil
}

func (r *Registry) index(id string) int {
	return slices.IndexFunc(r.agents, func(a Agent) bool { return a.ID == id })
}

func defaultIndex(list []Agent) int {
	if len(list) == 0 {
		return -1
	}
	if i := slices.IndexFunc(list, func(a Agent) bool { return a.IsDefault }); i >= 0 {
		return i
	}
	return 0
}

func clearDefault(list []Agent, keep string) {
	for i := range list {
		if list[i].ID != keep {
			list[i].IsDefault = false
		}
	}
}

// normalize enforces the single-active rule when vm is on. preferred,
// if active, wins over every other active agent; otherwise the first
// active agent is kept, and with none active the default is activated.
func normalize(list []Agent, vm bool, preferred string) {
	if !vm || len(list) == 0 {
		return
	}

	keep := -1
	if preferred != "" {
		keep = slices.IndexFunc(list, func(a Agent) bool { return a.ID == preferred && a.Active })
	}
	if keep < 0 {
		keep = slices.IndexFunc(list, func(a Agent) bool { return a.Active })
	}
	if keep < 0 {
		keep = defaultIndex(list)
	}
	for i := range list {
		list[i].Active = i == keep
	}
}
