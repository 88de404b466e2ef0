package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/calls"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/callstate"
	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/events"
)

// Stream timing.
const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 30 * time.Second
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The UI is served from other origins during development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// CallView is the call state as served to clients.
type CallView struct {
	ActiveCall   *callstate.ActiveCall `json:"active_call"`
	IsForwarding bool                  `json:"is_forwarding"`
	Muted        bool                  `json:"muted"`
	DurationMS   int64                 `json:"duration_ms"`
}

// StreamMessage is one frame on /v1/call/stream.
type StreamMessage struct {
	Type  string        `json:"type"` // "state" or "event"
	State *CallView     `json:"state,omitempty"`
	Event *events.Event `json:"event,omitempty"`
}

func (s *Server) registerCallRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/call", s.handleCallState)
	mux.HandleFunc("GET /v1/call/stream", s.handleCallStream)
	mux.HandleFunc("POST /v1/call/incoming", s.handleCallIncoming)
	mux.HandleFunc("POST /v1/call/accept", s.handleCallAccept)
	mux.HandleFunc("POST /v1/call/accept-manual", s.handleCallAcceptManually)
	mux.HandleFunc("POST /v1/call/end", s.handleCallEnd)
	mux.HandleFunc("POST /v1/call/intervene", s.handleCallIntervene)
	mux.HandleFunc("POST /v1/call/forward", s.handleCallForward)
	mux.HandleFunc("POST /v1/call/note", s.handleCallNote)
	mux.HandleFunc("POST /v1/call/minimize", s.handleCallMinimize)
	mux.HandleFunc("POST /v1/call/mute", s.handleCallMute)
}

func (s *Server) callView(st callstate.State) *CallView {
	return &CallView{
		ActiveCall:   st.ActiveCall,
		IsForwarding: st.IsForwarding,
		Muted:        s.deps.Calls.Muted(),
		DurationMS:   s.deps.Calls.Duration().Milliseconds(),
	}
}

// callError maps controller errors to HTTP status codes.
func (s *Server) callError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, calls.ErrInvalidNumber):
		s.errorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, calls.ErrUnknownAgent):
		s.errorResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, calls.ErrCallInProgress),
		errors.Is(err, calls.ErrNoCall),
		errors.Is(err, calls.ErrNoIncomingCall),
		errors.Is(err, calls.ErrNoActiveCall):
		s.errorResponse(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("call operation failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleCallState(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.callView(s.deps.CallState.State()))
}

func (s *Server) handleCallIncoming(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Number string `json:"number"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	call, err := s.deps.Calls.StartIncomingCall(req.Number)
	if err != nil {
		s.callError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, call)
}

func (s *Server) handleCallAccept(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID string `json:"agent_id"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	call, err := s.deps.Calls.AcceptCall(req.AgentID)
	if err != nil {
		s.callError(w, err)
		return
	}
	s.respond(w, http.StatusOK, call)
}

func (s *Server) handleCallAcceptManually(w http.ResponseWriter, r *http.Request) {
	call, err := s.deps.Calls.AcceptCallManually()
	if err != nil {
		s.callError(w, err)
		return
	}
	s.respond(w, http.StatusOK, call)
}

func (s *Server) handleCallEnd(w http.ResponseWriter, r *http.Request) {
	s.deps.Calls.EndCall()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCallIntervene(w http.ResponseWriter, r *http.Request) {
	call, err := s.deps.Calls.InterveneInCall()
	if err != nil {
		s.callError(w, err)
		return
	}
	s.respond(w, http.StatusOK, call)
}

func (s *Server) handleCallForward(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Calls.ForwardCall(); err != nil {
		s.callError(w, err)
		return
	}
	s.respond(w, http.StatusAccepted, s.callView(s.deps.CallState.State()))
}

func (s *Server) handleCallNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	s.respond(w, http.StatusOK, map[string]bool{"added": s.deps.Calls.SendNote(req.Text)})
}

func (s *Server) handleCallMinimize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Minimized *bool `json:"minimized"` // nil toggles
	}
	if !s.decode(w, r, &req) {
		return
	}
	var err error
	if req.Minimized == nil {
		err = s.deps.Calls.ToggleMinimized()
	} else {
		err = s.deps.Calls.SetMinimized(*req.Minimized)
	}
	if err != nil {
		s.callError(w, err)
		return
	}
	s.respond(w, http.StatusOK, s.callView(s.deps.CallState.State()))
}

func (s *Server) handleCallMute(w http.ResponseWriter, r *http.Request) {
	muted, err := s.deps.Calls.ToggleMute()
	if err != nil {
		s.callError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]bool{"muted": muted})
}

// handleCallStream pushes the call state on every store change and
// forwards bus events (transcript lines, notices) over a WebSocket.
// Clients never send anything but control frames.
func (s *Server) handleCallStream(w http.ResponseWriter, r *http.Request) {
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Latest state only: a slow client skips intermediate snapshots but
	// always receives the newest one.
	listener, states := callstate.Latest()
	unsubscribe := s.deps.CallState.Subscribe(listener)
	defer unsubscribe()

	var evs <-chan events.Event
	if s.deps.Bus != nil {
		evs = s.deps.Bus.Subscribe(64)
		defer s.deps.Bus.Unsubscribe(evs)
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(4096)
		conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug("call stream read failed", "error", err)
				}
				return
			}
		}
	}()

	send := func(msg StreamMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			s.logger.Debug("call stream write failed", "error", err)
			return false
		}
		return true
	}

	if !send(StreamMessage{Type: "state", State: s.callView(s.deps.CallState.State())}) {
		return
	}

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case st := <-states:
			if !send(StreamMessage{Type: "state", State: s.callView(st)}) {
				return
			}
		case e := <-evs:
			if !send(StreamMessage{Type: "event", Event: &e}) {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
