// Package callstate is the single source of truth for the call in
// flight. It holds at most one ActiveCall plus the forwarding flag and
// notifies subscribers synchronously after every change.
//
// The store is constructed once at startup and injected into every
// consumer (call controller, API stream, MQTT publisher). There is no
// package-level instance.
package callstate

import (
	"slices"
	"sync"
	"time"
)

// Status of the call in flight. "No call" is a nil ActiveCall.
type Status string

// Call statuses.
const (
	StatusIncoming Status = "incoming"
	StatusActive   Status = "active"
)

// Speaker identifies who said a transcript line.
type Speaker string

// Transcript speakers. System lines are supervisor notes.
const (
	SpeakerAgent  Speaker = "agent"
	SpeakerCaller Speaker = "caller"
	SpeakerSystem Speaker = "system"
)

// TranscriptLine is immutable once appended.
type TranscriptLine struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// ActiveCall describes the call in flight.
type ActiveCall struct {
	ID          string `json:"id"`
	Number      string `json:"number"`
	ContactName string `json:"contact_name,omitempty"`
	Status      Status `json:"status"`
	// AgentID set means the call is AI-handled; empty means a human
	// has it.
	AgentID     string `json:"agent_id,omitempty"`
	IsMinimized bool   `json:"is_minimized"`
	StartMuted  bool   `json:"start_muted"`
	// Transcript is most-recent-first.
	Transcript []TranscriptLine `json:"transcript,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	AnsweredAt time.Time        `json:"answered_at,omitzero"`
}

// Clone returns a copy that shares no mutable state with c. A nil
// receiver yields nil.
func (c *ActiveCall) Clone() *ActiveCall {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Transcript = slices.Clone(c.Transcript)
	return &cp
}

// AIHandled reports whether an agent is attached to an active call,
// the condition under which the transcript feed runs.
func (c *ActiveCall) AIHandled() bool {
	return c != nil && c.Status == StatusActive && c.AgentID != ""
}

// State is an immutable snapshot of the store.
type State struct {
	ActiveCall   *ActiveCall `json:"active_call"`
	IsForwarding bool        `json:"is_forwarding"`

	// Seq increases by one with every change. Listeners run outside the
	// store lock, so two concurrent writers may deliver their snapshots
	// out of order; a listener that keeps only the newest state compares
	// Seq (see Latest).
	Seq uint64 `json:"-"`
}

// Listener receives a snapshot after every change. Listeners run on the
// goroutine that made the change and must not block.
type Listener func(State)

// Store holds the call state. Each write is atomic, but notification
// order across concurrent writers is only guaranteed by Seq.
type Store struct {
	mu        sync.Mutex
	state     State
	listeners []*subscription
}

type subscription struct {
	fn Listener
}

// NewStore returns an empty store: no call, not forwarding.
func NewStore() *Store {
	return &Store{}
}

// State returns the current snapshot. The returned ActiveCall is a copy.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// ActiveCall returns a copy of the call in flight, or nil.
func (s *Store) ActiveCall() *ActiveCall {
	return s.State().ActiveCall
}

// SetActiveCall applies update to the previous call under the store lock
// and stores its result. update receives a private copy and may modify
// and return it, return a new value, or return nil to clear the call.
// Every multi-field transition must be expressed as one update so it is
// applied atomically.
func (s *Store) SetActiveCall(update func(prev *ActiveCall) *ActiveCall) {
	s.apply(func(st *State) {
		st.ActiveCall = update(st.ActiveCall.Clone()).Clone()
	})
}

// ReplaceActiveCall stores call, or clears the call when call is nil.
func (s *Store) ReplaceActiveCall(call *ActiveCall) {
	s.SetActiveCall(func(*ActiveCall) *ActiveCall { return call })
}

// SetIsForwarding applies update to the forwarding flag.
func (s *Store) SetIsForwarding(update func(prev bool) bool) {
	s.apply(func(st *State) {
		st.IsForwarding = update(st.IsForwarding)
	})
}

// ReplaceIsForwarding sets the forwarding flag.
func (s *Store) ReplaceIsForwarding(v bool) {
	s.SetIsForwarding(func(bool) bool { return v })
}

// Update applies fn to both fields under one lock. Use it when a
// transition touches the call and the forwarding flag together.
func (s *Store) Update(fn func(call *ActiveCall, forwarding bool) (*ActiveCall, bool)) {
	s.apply(func(st *State) {
		call, fwd := fn(st.ActiveCall.Clone(), st.IsForwarding)
		st.ActiveCall = call.Clone()
		st.IsForwarding = fwd
	})
}

// Subscribe registers fn. The returned function removes it; calling it
// more than once is a no-op and never affects other listeners.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	sub := &subscription{fn: fn}

	s.mu.Lock()
	s.listeners = append(s.listeners, sub)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.listeners = slices.DeleteFunc(s.listeners, func(x *subscription) bool { return x == sub })
		})
	}
}

// apply mutates the state under the lock, then notifies every listener
// registered at that moment, in registration order, outside the lock so
// listeners may read or write the store. Each listener gets its own copy.
func (s *Store) apply(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	s.state.Seq++
	snap := s.snapshot()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l.fn(State{ActiveCall: snap.ActiveCall.Clone(), IsForwarding: snap.IsForwarding, Seq: snap.Seq})
	}
}

func (s *Store) snapshot() State {
	return State{ActiveCall: s.state.ActiveCall.Clone(), IsForwarding: s.state.IsForwarding, Seq: s.state.Seq}
}

// Latest returns a listener that keeps only the newest snapshot in a
// one-slot channel, and that channel. A snapshot older than one already
// delivered is dropped, so a slow reader always ends on the current
// state.
func Latest() (Listener, <-chan State) {
	ch := make(chan State, 1)
	var (
		mu   sync.Mutex
		last uint64
	)
	return func(st State) {
		mu.Lock()
		defer mu.Unlock()
		if st.Seq <= last {
			return
		}
		last = st.Seq
		for {
			select {
			case ch <- st:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	}, ch
}
