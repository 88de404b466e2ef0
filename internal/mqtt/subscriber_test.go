package mqtt

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/callstate"
)

// recordingTarget records which controller method each command hit.
type recordingTarget struct {
	called []string
	err    error
}

func (r *recordingTarget) AcceptCallManually() (*callstate.ActiveCall, error) {
	r.called = append(r.called, "accept")
	return nil, r.err
}

func (r *recordingTarget) EndCall() { r.called = append(r.called, "end") }

func (r *recordingTarget) ForwardCall() error {
	r.called = append(r.called, "forward")
	return r.err
}

func (r *recordingTarget) InterveneInCall() (*callstate.ActiveCall, error) {
	r.called = append(r.called, "intervene")
	return nil, r.err
}

func (r *recordingTarget) ToggleMute() (bool, error) {
	r.called = append(r.called, "mute")
	return true, r.err
}

func (r *recordingTarget) ToggleMinimized() error {
	r.called = append(r.called, "minimize")
	return r.err
}

func TestCommandHandler_Dispatch(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		payload string
		want    string
	}{
		{"accept", "accept"},
		{"end", "end"},
		{" Forward\n", "forward"},
		{"intervene", "intervene"},
		{"MUTE", "mute"},
		{"minimize", "minimize"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			target := &recordingTarget{}
			commandHandler(target, nil, logger)("voicewizard/test/command", []byte(tt.payload))
			if len(target.called) != 1 || target.called[0] != tt.want {
				t.Errorf("called = %v, want [%s]", target.called, tt.want)
			}
		})
	}
}

func TestCommandHandler_UnknownAndFailing(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	target := &recordingTarget{}
	commandHandler(target, nil, logger)("voicewizard/test/command", []byte("dance"))
	if len(target.called) != 0 {
		t.Errorf("called = %v, want none", target.called)
	}
	if !strings.Contains(buf.String(), `unknown command \"dance\"`) {
		t.Errorf("expected unknown command warning, got: %s", buf.String())
	}

	buf.Reset()
	failing := &recordingTarget{err: errors.New("no active call")}
	commandHandler(failing, nil, logger)("voicewizard/test/command", []byte("forward"))
	if !strings.Contains(buf.String(), "mqtt command failed") {
		t.Errorf("expected failure warning, got: %s", buf.String())
	}
}

func TestCommandHandler_RateLimited(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	target := &recordingTarget{}
	h := commandHandler(target, newMessageRateLimiter(2, time.Second, logger), logger)

	for range 5 {
		h("voicewizard/test/command", []byte("mute"))
	}
	if len(target.called) != 2 {
		t.Errorf("commands executed = %d, want 2", len(target.called))
	}
}

func TestMessageRateLimiter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rl := newMessageRateLimiter(5, time.Second, logger)

	for i := range 5 {
		if !rl.allow() {
			t.Errorf("message %d should have been allowed", i)
		}
	}
	if rl.allow() {
		t.Error("message 6 should have been rate-limited")
	}
	if dropped := rl.dropped.Load(); dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}

	rl.reset()
	if !rl.allow() {
		t.Error("message after reset should have been allowed")
	}
}

func TestMessageRateLimiter_Concurrent(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rl := newMessageRateLimiter(1000, time.Second, logger)

	done := make(chan struct{})
	for range 10 {
		go func() {
			for range 200 {
				rl.allow()
			}
			done <- struct{}{}
		}()
	}
	for range 10 {
		<-done
	}

	if count := rl.count.Load(); count != 2000 {
		t.Errorf("count = %d, want 2000", count)
	}
	if dropped := rl.dropped.Load(); dropped != 1000 {
		t.Errorf("dropped = %d, want 1000", dropped)
	}
}
