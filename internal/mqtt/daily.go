package mqtt

import (
	"sync"
	"time"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/callstate"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/events"
)

// DailyCalls counts finished calls per local day. It is safe for
// concurrent use.
type DailyCalls struct {
	mu        sync.Mutex
	total     int64
	answered  int64
	missed    int64
	forwarded int64
	resetDay  int // day-of-year of last reset
	loc       *time.Location
	now       func() time.Time
}

// DailySnapshot is the current day's counts.
type DailySnapshot struct {
	Total     int64 `json:"total"`
	Answered  int64 `json:"answered"`
	Missed    int64 `json:"missed"`
	Forwarded int64 `json:"forwarded"`
}

// NewDailyCalls creates a counter using loc for midnight detection. If
// loc is nil, [time.Local] is used.
func NewDailyCalls(loc *time.Location) *DailyCalls {
	if loc == nil {
		loc = time.Local
	}
	d := &DailyCalls{loc: loc, now: time.Now}
	d.resetDay = d.now().In(loc).YearDay()
	return d
}

// Observe counts a KindCallEnded event and ignores everything else. It
// reports whether the counts changed.
func (d *DailyCalls) Observe(e events.Event) bool {
	if e.Source != events.SourceCall || e.Kind != events.KindCallEnded {
		return false
	}
	status, _ := e.Data["status"].(string)
	reason, _ := e.Data["reason"].(string)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.maybeReset()
	d.total++
	switch callstate.Status(status) {
	case callstate.StatusActive:
		d.answered++
	case callstate.StatusIncoming:
		d.missed++
	}
	if reason == "forwarded" {
		d.forwarded++
	}
	return true
}

// Snapshot returns today's counts after checking for midnight rollover.
func (d *DailyCalls) Snapshot() DailySnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maybeReset()
	return DailySnapshot{Total: d.total, Answered: d.answered, Missed: d.missed, Forwarded: d.forwarded}
}

// maybeReset zeroes the counters if the local day has changed. Must be
// called with d.mu held.
func (d *DailyCalls) maybeReset() {
	today := d.now().In(d.loc).YearDay()
	if today != d.resetDay {
		d.total, d.answered, d.missed, d.forwarded = 0, 0, 0, 0
		d.resetDay = today
	}
}
