package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/DeepthinkAI2025/zoe-solar-voice-wizard-sub000/internal/callstate"
)

// Command payloads accepted on the command topic.
const (
	CommandAccept    = "accept"
	CommandEnd       = "end"
	CommandForward   = "forward"
	CommandIntervene = "intervene"
	CommandMute      = "mute"
	CommandMinimize  = "minimize"
)

// CommandTarget is the part of the call controller reachable from HA.
type CommandTarget interface {
	AcceptCallManually() (*callstate.ActiveCall, error)
	EndCall()
	ForwardCall() error
	InterveneInCall() (*callstate.ActiveCall, error)
	ToggleMute() (bool, error)
	ToggleMinimized() error
}

// MessageHandler is called for each MQTT message received on a
// subscribed topic. Implementations must be safe for concurrent use.
type MessageHandler func(topic string, payload []byte)

// commandHandler returns a [MessageHandler] that runs the command in
// the payload against target. Unknown commands and controller errors
// are logged; nothing is published back.
func commandHandler(target CommandTarget, limiter *messageRateLimiter, logger *slog.Logger) MessageHandler {
	return func(topic string, payload []byte) {
		if limiter != nil && !limiter.allow() {
			return
		}
		cmd := strings.ToLower(strings.TrimSpace(string(payload)))
		if err := runCommand(target, cmd); err != nil {
			logger.Warn("mqtt command failed", "topic", topic, "command", cmd, "error", err)
			return
		}
		logger.Info("mqtt command executed", "topic", topic, "command", cmd)
	}
}

func runCommand(target CommandTarget, cmd string) error {
	var err error
	switch cmd {
	case CommandAccept:
		_, err = target.AcceptCallManually()
	case CommandEnd:
		target.EndCall()
	case CommandForward:
		err = target.ForwardCall()
	case CommandIntervene:
		_, err = target.InterveneInCall()
	case CommandMute:
		_, err = target.ToggleMute()
	case CommandMinimize:
		err = target.ToggleMinimized()
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	return err
}

// messageRateLimiter tracks inbound message rates and drops messages
// when the rate exceeds the configured threshold. It uses atomic
// counters for lock-free operation on the hot path.
type messageRateLimiter struct {
	count    atomic.Int64
	dropped  atomic.Int64
	limit    int64
	interval time.Duration
	logger   *slog.Logger
}

// newMessageRateLimiter creates a rate limiter that allows limit
// messages per interval.
func newMessageRateLimiter(limit int64, interval time.Duration, logger *slog.Logger) *messageRateLimiter {
	return &messageRateLimiter{
		limit:    limit,
		interval: interval,
		logger:   logger,
	}
}

// start runs the periodic counter reset loop. It blocks until ctx is
// cancelled.
func (r *messageRateLimiter) start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reset()
		}
	}
}

func (r *messageRateLimiter) reset() {
	count := r.count.Swap(0)
	dropped := r.dropped.Swap(0)
	if dropped > 0 {
		r.logger.Warn("mqtt commands dropped due to rate limit",
			"received", count,
			"dropped", dropped,
			"interval", r.interval.String(),
			"limit", r.limit,
		)
	}
}

// allow increments the message counter and returns true if the
// current count is within the limit.
func (r *messageRateLimiter) allow() bool {
	n := r.count.Add(1)
	if n > r.limit {
		r.dropped.Add(1)
		return false
	}
	return true
}
