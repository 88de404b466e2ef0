// Package calls implements the call lifecycle controller: it drives the
// call state store through incoming, active and forwarding, owns the
// auto-answer, forwarding and transcript timers, and feeds a synthetic
// transcript while an agent handles the call.
//
// Every transition runs under one controller mutex. Timers are stored
// as cancellable handles next to a generation token; a transition that
// invalidates a timer stops it, and a callback that lost the race finds
// its generation superseded and does nothing. Callbacks additionally
// re-check the call they were scheduled for before acting.
package calls

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/agents"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/callstate"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/clock"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/contacts"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/events"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/metrics"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/settings"
)

// Sentinel errors returned by controller operations.
var (
	ErrInvalidNumber  = errors.New("phone number is required")
	ErrCallInProgress = errors.New("a call is already in progress")
	ErrNoCall         = errors.New("no call in progress")
	ErrNoIncomingCall = errors.New("no incoming call")
	ErrNoActiveCall   = errors.New("no active call")
	ErrUnknownAgent   = errors.New("unknown agent")
)

// Timer delays.
const (
	// AutoAnswerMinDelay and AutoAnswerJitter give the uniform
	// auto-answer window [3s, 8s).
	AutoAnswerMinDelay = 3000 * time.Millisecond
	AutoAnswerJitter   = 5000 * time.Millisecond
	ForwardDelay       = 2500 * time.Millisecond
	TranscriptInterval = 3500 * time.Millisecond
)

// How a call became active.
const (
	ModeManual     = "manual"
	ModeAgent      = "agent"
	ModeAuto       = "auto"
	ModeBackground = "background"
)

// SettingsSource provides the phone settings read at call start.
type SettingsSource interface {
	Snapshot() settings.Settings
}

// AgentDirectory resolves agents for answering.
type AgentDirectory interface {
	Get(id string) (agents.Agent, error)
	Default() (agents.Agent, bool)
}

// ContactLookup resolves caller names.
type ContactLookup interface {
	FindByNumber(number string) (contacts.Contact, error)
}

// Deps are the controller's collaborators. Store, Settings and Agents
// are required.
type Deps struct {
	Store    *callstate.Store
	Settings SettingsSource
	Agents   AgentDirectory
	Contacts ContactLookup // optional
	Clock    clock.Clock   // default clock.Real
	// RandIntn returns a uniform int in [0, n). Default math/rand/v2.
	RandIntn func(n int) int
	Events   *events.Bus
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

type timerKind string

const (
	timerAutoAnswer timerKind = "auto_answer"
	timerForward    timerKind = "forward"
	timerTranscript timerKind = "transcript"
)

type pendingTimer struct {
	timer clock.Timer
	gen   uint64
}

// feed tracks the transcript script position of the AI-handled call.
type feed struct {
	callID string
	next   int
}

// Controller drives the call state store.
type Controller struct {
	store    *callstate.Store
	settings SettingsSource
	agents   AgentDirectory
	contacts ContactLookup
	clock    clock.Clock
	randIntn func(int) int
	bus      *events.Bus
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu     sync.Mutex
	timers map[timerKind]pendingTimer
	gen    uint64
	muted  bool
	feed   feed
}

// New creates a controller. Store listeners must not call back into
// the controller; they run while a transition holds its lock.
func New(d Deps) *Controller {
	c := &Controller{
		store:    d.Store,
		settings: d.Settings,
		agents:   d.Agents,
		contacts: d.Contacts,
		clock:    d.Clock,
		randIntn: d.RandIntn,
		bus:      d.Events,
		metrics:  d.Metrics,
		logger:   d.Logger,
		timers:   make(map[timerKind]pendingTimer),
	}
	if c.clock == nil {
		c.clock = clock.Real{}
	}
	if c.randIntn == nil {
		c.randIntn = rand.IntN
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// StartIncomingCall simulates a call arriving from number.
//
// With background handling and auto-answer on inside working hours the
// call goes straight to active with the default agent, minimized.
// Otherwise it rings as incoming, muted when silent mode is on outside
// working hours, and auto-answer inside working hours schedules the
// default agent to pick up after a random delay in [3s, 8s).
func (c *Controller) StartIncomingCall(number string) (*callstate.ActiveCall, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, ErrInvalidNumber
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store.ActiveCall() != nil {
		return nil, ErrCallInProgress
	}

	set := c.settings.Snapshot()
	now := c.clock.Now()
	inHours := set.InWorkingHours(now.Hour())
	def, hasDefault := c.agents.Default()

	call := &callstate.ActiveCall{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Number:      number,
		ContactName: c.lookupContact(number),
		StartedAt:   now,
	}

	if set.HandleInBackground && set.AutoAnswerEnabled && inHours && hasDefault {
		call.Status = callstate.StatusActive
		call.AgentID = def.ID
		call.IsMinimized = true
		call.AnsweredAt = now
		c.muted = false
		c.store.Update(func(*callstate.ActiveCall, bool) (*callstate.ActiveCall, bool) {
			return call, false
		})

		c.logger.Info("call answered in background",
			"call_id", call.ID, "number", number, "from", "absent", "to", call.Status, "agent_id", def.ID)
		c.metrics.CallStarted(ModeBackground)
		c.metrics.CallAnswered(ModeBackground)
		c.publish(events.KindCallAnswered, map[string]any{
			"call_id": call.ID, "number": number, "agent_id": def.ID, "mode": ModeBackground,
		})
		c.startFeedLocked(call.ID, def)
		return c.store.ActiveCall(), nil
	}

	call.Status = callstate.StatusIncoming
	call.StartMuted = set.SilentModeEnabled && !inHours
	c.muted = call.StartMuted
	c.store.Update(func(*callstate.ActiveCall, bool) (*callstate.ActiveCall, bool) {
		return call, false
	})

	c.logger.Info("incoming call",
		"call_id", call.ID, "number", number, "from", "absent", "to", call.Status,
		"contact", call.ContactName, "start_muted", call.StartMuted)
	c.metrics.CallStarted("incoming")
	c.publish(events.KindCallIncoming, map[string]any{
		"call_id": call.ID, "number": number, "contact_name": call.ContactName, "start_muted": call.StartMuted,
	})

	if set.AutoAnswerEnabled && inHours && hasDefault {
		jitter := time.Duration(c.randIntn(int(AutoAnswerJitter/time.Millisecond))) * time.Millisecond
		delay := AutoAnswerMinDelay + jitter
		id := call.ID
		c.schedule(timerAutoAnswer, delay, func() { c.autoAnswerLocked(id, number) })
		c.logger.Debug("auto-answer scheduled", "call_id", id, "delay", delay)
	}

	return call.Clone(), nil
}

// AcceptCall hands the incoming call to agentID.
func (c *Controller) AcceptCall(agentID string) (*callstate.ActiveCall, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur := c.store.ActiveCall(); cur == nil || cur.Status != callstate.StatusIncoming {
		return nil, ErrNoIncomingCall
	}
	agent, err := c.agents.Get(agentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	return c.answerLocked(&agent, ModeAgent)
}

// AcceptCallManually answers the incoming call as a human.
func (c *Controller) AcceptCallManually() (*callstate.ActiveCall, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur := c.store.ActiveCall(); cur == nil || cur.Status != callstate.StatusIncoming {
		return nil, ErrNoIncomingCall
	}
	return c.answerLocked(nil, ModeManual)
}

// EndCall rejects an incoming call or hangs up an active one. It stops
// every timer and clears the forwarding flag. Ending when there is no
// call is a no-op.
func (c *Controller) EndCall() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endLocked("hangup")
}

// InterveneInCall lets a human take over an AI-handled call. The
// transcript feed stops; lines already shown are kept.
func (c *Controller) InterveneInCall() (*callstate.ActiveCall, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.store.ActiveCall()
	if cur == nil || cur.Status != callstate.StatusActive {
		return nil, ErrNoActiveCall
	}
	if cur.AgentID == "" {
		return cur, nil
	}

	c.cancelTimerLocked(timerTranscript)
	c.feed = feed{}
	c.store.SetActiveCall(func(prev *callstate.ActiveCall) *callstate.ActiveCall {
		if prev != nil && prev.ID == cur.ID {
			prev.AgentID = ""
		}
		return prev
	})

	c.logger.Info("human took over call", "call_id", cur.ID, "number", cur.Number, "agent_id", cur.AgentID)
	c.publish(events.KindCallIntervened, map[string]any{"call_id": cur.ID, "agent_id": cur.AgentID})
	return c.store.ActiveCall(), nil
}

// ForwardCall raises the forwarding flag immediately and ends the call
// ForwardDelay later. No agent is attached on the other side; the call
// simply ends. Forwarding twice does not restart the delay.
func (c *Controller) ForwardCall() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.store.State()
	if st.ActiveCall == nil || st.ActiveCall.Status != callstate.StatusActive {
		return ErrNoActiveCall
	}
	if st.IsForwarding {
		return nil
	}

	c.store.ReplaceIsForwarding(true)
	c.schedule(timerForward, ForwardDelay, func() { c.endLocked("forwarded") })

	c.logger.Info("forwarding call", "call_id", st.ActiveCall.ID, "number", st.ActiveCall.Number, "delay", ForwardDelay)
	c.publish(events.KindCallForwarding, map[string]any{"call_id": st.ActiveCall.ID})
	return nil
}

// SendNote prepends a supervisor note to the transcript. Blank notes
// and notes without a call are ignored; the result reports whether the
// note was added.
func (c *Controller) SendNote(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.store.ActiveCall()
	if cur == nil {
		return false
	}
	return c.prependLocked(cur.ID, callstate.TranscriptLine{Speaker: callstate.SpeakerSystem, Text: text})
}

// SetMinimized sets the UI visibility flag of the call.
func (c *Controller) SetMinimized(v bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setMinimizedLocked(func(bool) bool { return v })
}

// ToggleMinimized flips the UI visibility flag of the call.
func (c *Controller) ToggleMinimized() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setMinimizedLocked(func(prev bool) bool { return !prev })
}

func (c *Controller) setMinimizedLocked(fn func(bool) bool) error {
	found := false
	c.store.SetActiveCall(func(prev *callstate.ActiveCall) *callstate.ActiveCall {
		if prev != nil {
			prev.IsMinimized = fn(prev.IsMinimized)
			found = true
		}
		return prev
	})
	if !found {
		return ErrNoCall
	}
	return nil
}

// ToggleMute flips the microphone state and returns the new value. The
// state is seeded from the call's StartMuted flag.
func (c *Controller) ToggleMute() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store.ActiveCall() == nil {
		return false, ErrNoCall
	}
	c.muted = !c.muted
	return c.muted, nil
}

// Muted reports the microphone state of the current call.
func (c *Controller) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// Duration returns the talk time of the active call, or zero when no
// call has been answered.
func (c *Controller) Duration() time.Duration {
	cur := c.store.ActiveCall()
	if cur == nil || cur.Status != callstate.StatusActive || cur.AnsweredAt.IsZero() {
		return 0
	}
	return c.clock.Now().Sub(cur.AnsweredAt)
}

// Close stops every pending timer without touching the store.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelAllLocked()
	c.feed = feed{}
}

// autoAnswerLocked runs when the auto-answer timer fires. It only acts
// if the same call is still ringing.
func (c *Controller) autoAnswerLocked(callID, number string) {
	cur := c.store.ActiveCall()
	if cur == nil || cur.Status != callstate.StatusIncoming || cur.ID != callID || cur.Number != number {
		c.logger.Debug("auto-answer skipped, call no longer ringing", "call_id", callID)
		return
	}
	def, ok := c.agents.Default()
	if !ok {
		c.logger.Warn("auto-answer skipped, no agents registered", "call_id", callID)
		return
	}
	if _, err := c.answerLocked(&def, ModeAuto); err != nil {
		c.logger.Debug("auto-answer failed", "call_id", callID, "error", err)
	}
}

// answerLocked moves the incoming call to active, attaching agent when
// non-nil, and starts the transcript feed for AI-handled calls.
func (c *Controller) answerLocked(agent *agents.Agent, mode string) (*callstate.ActiveCall, error) {
	c.cancelTimerLocked(timerAutoAnswer)

	agentID := ""
	if agent != nil {
		agentID = agent.ID
	}
	now := c.clock.Now()

	var answered *callstate.ActiveCall
	c.store.SetActiveCall(func(prev *callstate.ActiveCall) *callstate.ActiveCall {
		if prev == nil || prev.Status != callstate.StatusIncoming {
			return prev
		}
		prev.Status = callstate.StatusActive
		prev.AgentID = agentID
		prev.AnsweredAt = now
		answered = prev
		return prev
	})
	if answered == nil {
		return nil, ErrNoIncomingCall
	}

	c.logger.Info("call answered",
		"call_id", answered.ID, "number", answered.Number,
		"from", callstate.StatusIncoming, "to", callstate.StatusActive,
		"agent_id", agentID, "mode", mode)
	c.metrics.CallAnswered(mode)
	c.publish(events.KindCallAnswered, map[string]any{
		"call_id": answered.ID, "number": answered.Number, "agent_id": agentID, "mode": mode,
	})

	if agent != nil {
		c.startFeedLocked(answered.ID, *agent)
	}
	return c.store.ActiveCall(), nil
}

// endLocked clears the store and every timer.
func (c *Controller) endLocked(reason string) {
	c.cancelAllLocked()
	c.feed = feed{}
	c.muted = false

	var prev *callstate.ActiveCall
	var wasForwarding bool
	c.store.Update(func(call *callstate.ActiveCall, fwd bool) (*callstate.ActiveCall, bool) {
		prev, wasForwarding = call, fwd
		return nil, false
	})
	if prev == nil {
		return
	}

	var talk time.Duration
	if !prev.AnsweredAt.IsZero() {
		talk = c.clock.Now().Sub(prev.AnsweredAt)
	}
	c.logger.Info("call ended",
		"call_id", prev.ID, "number", prev.Number, "from", prev.Status, "to", "absent",
		"reason", reason, "duration", talk)
	c.metrics.CallEnded(string(prev.Status), wasForwarding, talk)
	c.publish(events.KindCallEnded, map[string]any{
		"call_id": prev.ID, "number": prev.Number, "status": string(prev.Status),
		"reason": reason, "duration_ms": talk.Milliseconds(),
	})
}

// startFeedLocked prepends a random greeting and schedules the script.
func (c *Controller) startFeedLocked(callID string, agent agents.Agent) {
	c.feed = feed{callID: callID}
	if c.prependLocked(callID, greetingFor(c.randIntn(len(greetings)), agent.Name)) {
		c.metrics.TranscriptLine()
	}
	c.schedule(timerTranscript, TranscriptInterval, c.tickLocked)
}

// tickLocked appends the next script line while the same call is still
// AI-handled, and reschedules itself until the script is exhausted.
func (c *Controller) tickLocked() {
	cur := c.store.ActiveCall()
	if !cur.AIHandled() || cur.ID != c.feed.callID {
		c.logger.Debug("transcript feed stopped", "call_id", c.feed.callID)
		c.feed = feed{}
		return
	}
	if c.feed.next >= len(script) {
		return
	}

	line := script[c.feed.next]
	c.feed.next++
	if c.prependLocked(cur.ID, line) {
		c.metrics.TranscriptLine()
	}
	if c.feed.next < len(script) {
		c.schedule(timerTranscript, TranscriptInterval, c.tickLocked)
	}
}

// prependLocked adds line to the front of the transcript of callID.
func (c *Controller) prependLocked(callID string, line callstate.TranscriptLine) bool {
	added := false
	c.store.SetActiveCall(func(prev *callstate.ActiveCall) *callstate.ActiveCall {
		if prev == nil || prev.ID != callID {
			return prev
		}
		prev.Transcript = append([]callstate.TranscriptLine{line}, prev.Transcript...)
		added = true
		return prev
	})
	if added {
		c.publish(events.KindTranscriptLine, map[string]any{
			"call_id": callID, "speaker": string(line.Speaker), "text": line.Text,
		})
	}
	return added
}

// schedule replaces any pending timer of kind with a new one that runs
// fn under the controller lock. Callers must hold c.mu.
func (c *Controller) schedule(kind timerKind, d time.Duration, fn func()) {
	c.cancelTimerLocked(kind)
	c.gen++
	gen := c.gen
	t := c.clock.AfterFunc(d, func() { c.fire(kind, gen, fn) })
	c.timers[kind] = pendingTimer{timer: t, gen: gen}
}

func (c *Controller) fire(kind timerKind, gen uint64, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.timers[kind]
	if !ok || p.gen != gen {
		c.logger.Debug("stale timer ignored", "timer", kind)
		return
	}
	delete(c.timers, kind)
	fn()
}

// cancelTimerLocked stops and removes a pending timer.
func (c *Controller) cancelTimerLocked(kind timerKind) {
	if p, ok := c.timers[kind]; ok {
		p.timer.Stop()
		delete(c.timers, kind)
	}
}

func (c *Controller) cancelAllLocked() {
	for kind := range c.timers {
		c.cancelTimerLocked(kind)
	}
}

func (c *Controller) lookupContact(number string) string {
	if c.contacts == nil {
		return ""
	}
	contact, err := c.contacts.FindByNumber(number)
	if err != nil {
		if !errors.Is(err, contacts.ErrNotFound) {
			c.logger.Warn("contact lookup failed", "number", number, "error", err)
		}
		return ""
	}
	return contact.Name
}

func (c *Controller) publish(kind string, data map[string]any) {
	c.bus.Publish(events.Event{
		Timestamp: c.clock.Now(),
		Source:    events.SourceCall,
		Kind:      kind,
		Data:      data,
	})
}
