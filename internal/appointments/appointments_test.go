package appointments

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/storage"
)

func TestNewRegistry_CorruptFallsBackToSeed(t *testing.T) {
	docs := storage.NewMemory()
	docs.SetRaw(StorageKey, []byte("not json"))

	r := NewRegistry(docs, slog.Default())
	if got, want := len(r.List()), len(Seed()); got != want {
		t.Errorf("List() len = %d, want %d", got, want)
	}
}

func TestAdd(t *testing.T) {
	docs := storage.NewMemory()
	r := NewRegistry(docs, slog.Default())

	a, err := r.Add(Appointment{
		CustomerName: "Frau Weber",
		Date:         "2024-02-01",
		Time:         "09:30",
		Reason:       "Beratung Wallbox",
		Status:       StatusCompleted, // ignored on add
	})
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if a.Status != StatusScheduled || a.ID == "" {
		t.Errorf("Add() = %+v", a)
	}

	reloaded := NewRegistry(docs, slog.Default())
	if _, err := reloaded.Get(a.ID); err != nil {
		t.Errorf("Get() after reload error: %v", err)
	}
}

func TestAdd_Validation(t *testing.T) {
	r := NewRegistry(storage.NewMemory(), slog.Default())
	tests := []struct {
		name string
		a    Appointment
	}{
		{"no customer", Appointment{Date: "2024-02-01", Time: "09:30"}},
		{"bad date", Appointment{CustomerName: "x", Date: "01.02.2024", Time: "09:30"}},
		{"bad time", Appointment{CustomerName: "x", Date: "2024-02-01", Time: "9 Uhr"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Add(tt.a); err == nil {
				t.Error("Add() should error")
			}
		})
	}
}

func TestSetStatus(t *testing.T) {
	r := NewRegistry(storage.NewMemory(), slog.Default())

	got, err := r.SetStatus("appt-1", StatusCancelled)
	if err != nil {
		t.Fatalf("SetStatus() error: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("Status = %q, want cancelled", got.Status)
	}
	// Still listed.
	if _, err := r.Get("appt-1"); err != nil {
		t.Errorf("cancelled appointment should remain: %v", err)
	}

	if _, err := r.SetStatus("appt-1", "postponed"); err == nil {
		t.Error("SetStatus() with unknown status should error")
	}
	if _, err := r.SetStatus("nope", StatusCompleted); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetStatus() unknown error = %v, want ErrNotFound", err)
	}
}

func TestUpdateKeepsStatus(t *testing.T) {
	r := NewRegistry(storage.NewMemory(), slog.Default())

	got, err := r.Update(Appointment{
		ID:           "appt-2",
		CustomerName: "Herr Schneider",
		Date:         "2024-01-19",
		Time:         "15:00",
		Reason:       "Wartung Batteriespeicher",
	})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if got.Status != StatusCompleted || got.Date != "2024-01-19" {
		t.Errorf("Update() = %+v", got)
	}
}
