// Package events provides a publish/subscribe event bus for operational
// observability. Events flow from components (call controller, chat
// bridge, tool registry, contact sync) to subscribers (the call-state
// WebSocket stream, the MQTT publisher, the CLI simulator). The bus is
// nil-safe: calling Publish on a nil *Bus is a no-op, so components do
// not need guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceCall identifies events from the call lifecycle controller.
	SourceCall = "call"
	// SourceChat identifies events from the AI chat bridge.
	SourceChat = "chat"
	// SourceTools identifies events from assistant tool execution.
	SourceTools = "tools"
	// SourceContacts identifies events from contact import and sync.
	SourceContacts = "contacts"
)

// Kind constants describe the type of event within a source.
const (
	// KindCallIncoming signals a new call waiting to be answered.
	// Data: call_id, number, contact_name, start_muted.
	KindCallIncoming = "call_incoming"
	// KindCallAnswered signals a call became active.
	// Data: call_id, number, agent_id, mode (manual, agent, auto,
	// background).
	KindCallAnswered = "call_answered"
	// KindCallIntervened signals a human took over an AI-handled call.
	// Data: call_id, agent_id.
	KindCallIntervened = "call_intervened"
	// KindCallForwarding signals the forwarding overlay was raised.
	// Data: call_id.
	KindCallForwarding = "call_forwarding"
	// KindCallEnded signals the call left the store.
	// Data: call_id, number, status, reason, duration_ms.
	KindCallEnded = "call_ended"
	// KindTranscriptLine signals a line was prepended to the transcript.
	// Data: call_id, speaker, text.
	KindTranscriptLine = "transcript_line"

	// KindChatRequest signals the start of a provider round-trip.
	// Data: provider, messages.
	KindChatRequest = "chat_request"
	// KindChatResponse signals a completed chat exchange.
	// Data: provider, tool_calls, elapsed_ms.
	KindChatResponse = "chat_response"

	// KindToolCall signals the start of a tool execution.
	// Data: tool.
	KindToolCall = "tool_call"
	// KindToolDone signals completion of a tool execution.
	// Data: tool, ok, duration_ms.
	KindToolDone = "tool_done"

	// KindSyncComplete signals a finished contact import or sync.
	// Data: added, updated, source.
	KindSyncComplete = "sync_complete"

	// KindNotice carries a short user-facing message, the server-side
	// counterpart of a transient toast. Data: level, message.
	KindNotice = "notice"
)

// Notice levels carried in KindNotice events.
const (
	NoticeInfo  = "info"
	NoticeError = "error"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full, drop rather than block.
		}
	}
}

// Notify publishes a KindNotice event from source. Safe to call on a
// nil receiver.
func (b *Bus) Notify(source, level, message string) {
	b.Publish(Event{
		Source: source,
		Kind:   KindNotice,
		Data:   map[string]any{"level": level, "message": message},
	})
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 is a reasonable default for
// WebSocket consumers.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
