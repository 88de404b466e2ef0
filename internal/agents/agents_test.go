package agents

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/storage"
)

func seed() []Agent {
	return []Agent{
		{ID: "reception", Name: "Empfang", IsDefault: true},
		{ID: "tech", Name: "Technik"},
		{ID: "sales", Name: "Vertrieb"},
	}
}

func activeIDs(list []Agent) []string {
	var ids []string
	for _, a := range list {
		if a.Active {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

func assertSingleActive(t *testing.T, r *Registry, want string) {
	t.Helper()
	ids := activeIDs(r.List())
	if len(ids) != 1 || ids[0] != want {
		t.Fatalf("active agents = %v, want [%s]", ids, want)
	}
}

func TestNewRegistry_NormalizesSeed(t *testing.T) {
	r := NewRegistry(storage.NewMemory(), seed(), true, slog.Default())
	assertSingleActive(t, r, "reception")
}

func TestNewRegistry_VMOffLeavesFlags(t *testing.T) {
	r := NewRegistry(storage.NewMemory(), seed(), false, slog.Default())
	if ids := activeIDs(r.List()); len(ids) != 0 {
		t.Errorf("active agents = %v, want none with VM off", ids)
	}
}

func TestDefault(t *testing.T) {
	tests := []struct {
		name   string
		agents []Agent
		want   string
		ok     bool
	}{
		{"flagged", seed(), "reception", true},
		{"first when none flagged", []Agent{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}, "a", true},
		{"flagged later", []Agent{{ID: "a", Name: "A"}, {ID: "tech", Name: "T", IsDefault: true}}, "tech", true},
		{"empty", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(storage.NewMemory(), tt.agents, false, slog.Default())
			got, ok := r.Default()
			if ok != tt.ok || got.ID != tt.want {
				t.Errorf("Default() = (%q, %v), want (%q, %v)", got.ID, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestSetActive_Exclusive(t *testing.T) {
	r := NewRegistry(storage.NewMemory(), seed(), true, slog.Default())

	if _, err := r.SetActive("tech", true); err != nil {
		t.Fatalf("SetActive() error: %v", err)
	}
	assertSingleActive(t, r, "tech")

	// Switching off the active agent hands over to the default.
	if _, err := r.SetActive("tech", false); err != nil {
		t.Fatalf("SetActive() error: %v", err)
	}
	assertSingleActive(t, r, "reception")
}

func TestSetActive_VMOffIsFree(t *testing.T) {
	r := NewRegistry(storage.NewMemory(), seed(), false, slog.Default())
	r.SetActive("tech", true)
	r.SetActive("sales", true)
	if ids := activeIDs(r.List()); len(ids) != 2 {
		t.Errorf("active agents = %v, want 2 with VM off", ids)
	}

	if err := r.SetVMEnabled(true); err != nil {
		t.Fatalf("SetVMEnabled() error: %v", err)
	}
	assertSingleActive(t, r, "tech")
}

func TestRemoveActive(t *testing.T) {
	r := NewRegistry(storage.NewMemory(), seed(), true, slog.Default())
	r.SetActive("sales", true)

	if err := r.Remove("sales"); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	assertSingleActive(t, r, "reception")

	if err := r.Remove("sales"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove() twice error = %v, want ErrNotFound", err)
	}
}

func TestAdd(t *testing.T) {
	r := NewRegistry(storage.NewMemory(), seed(), true, slog.Default())

	a, err := r.Add(Agent{Name: "Notdienst", Active: true, IsDefault: true})
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if a.ID == "" {
		t.Error("Add() should assign an ID")
	}
	assertSingleActive(t, r, a.ID)

	def, _ := r.Default()
	if def.ID != a.ID {
		t.Errorf("Default() = %q, want new agent %q", def.ID, a.ID)
	}

	if _, err := r.Add(Agent{Name: "  "}); err == nil {
		t.Error("Add() with blank name should error")
	}
	if _, err := r.Add(Agent{ID: "tech", Name: "dup"}); err == nil {
		t.Error("Add() with duplicate ID should error")
	}
}

func TestUpdate(t *testing.T) {
	r := NewRegistry(storage.NewMemory(), seed(), true, slog.Default())

	got, err := r.Update(Agent{ID: "tech", Name: "Technik", Purpose: "Wärmepumpen"})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if got.Purpose != "Wärmepumpen" {
		t.Errorf("Purpose = %q", got.Purpose)
	}
	if _, err := r.Update(Agent{ID: "nope", Name: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() unknown error = %v, want ErrNotFound", err)
	}
}

func TestPersistence(t *testing.T) {
	docs := storage.NewMemory()
	r := NewRegistry(docs, seed(), true, slog.Default())
	r.SetActive("tech", true)
	r.SetVMEnabled(false)

	reloaded := NewRegistry(docs, nil, true, slog.Default())
	if reloaded.VMEnabled() {
		t.Error("VMEnabled() = true, want persisted false")
	}
	if len(reloaded.List()) != 3 {
		t.Fatalf("List() len = %d, want 3", len(reloaded.List()))
	}
	if ids := activeIDs(reloaded.List()); len(ids) != 1 || ids[0] != "tech" {
		t.Errorf("active agents = %v, want [tech]", ids)
	}
}
