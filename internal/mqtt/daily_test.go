package mqtt

import (
	"testing"
	"time"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/events"
)

func ended(status, reason string) events.Event {
	return events.Event{
		Source: events.SourceCall,
		Kind:   events.KindCallEnded,
		Data:   map[string]any{"status": status, "reason": reason},
	}
}

func TestDailyCalls_Observe(t *testing.T) {
	d := NewDailyCalls(time.UTC)

	if d.Observe(events.Event{Source: events.SourceCall, Kind: events.KindCallIncoming}) {
		t.Error("Observe(call_incoming) = true, want false")
	}
	d.Observe(ended("active", "ended"))
	d.Observe(ended("active", "forwarded"))
	d.Observe(ended("incoming", "ended"))

	got := d.Snapshot()
	want := DailySnapshot{Total: 3, Answered: 2, Missed: 1, Forwarded: 1}
	if got != want {
		t.Errorf("Snapshot() = %+v, want %+v", got, want)
	}
}

func TestDailyCalls_MidnightReset(t *testing.T) {
	now := time.Date(2024, 3, 12, 23, 59, 0, 0, time.UTC)
	d := NewDailyCalls(time.UTC)
	d.now = func() time.Time { return now }
	d.resetDay = now.YearDay()

	d.Observe(ended("active", "ended"))
	if got := d.Snapshot().Total; got != 1 {
		t.Fatalf("Total before midnight = %d, want 1", got)
	}

	now = now.Add(2 * time.Minute)
	if got := d.Snapshot(); got != (DailySnapshot{}) {
		t.Errorf("Snapshot() after midnight = %+v, want zero", got)
	}
}

func TestNewDailyCalls_NilLocation(t *testing.T) {
	d := NewDailyCalls(nil)
	if d.loc != time.Local {
		t.Errorf("loc = %v, want time.Local", d.loc)
	}
}
