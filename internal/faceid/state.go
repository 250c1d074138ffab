package faceid

import (
	"context"
	"log/slog"
	"time"
)

// AttemptState is a step in the lifecycle of one register or login attempt.
type AttemptState int

const (
	StateIdle AttemptState = iota
	StateDescriptorReceived
	StateMatching
	StateEnrolling
	StateSuccess
	StateRejected
)

func (s AttemptState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDescriptorReceived:
		return "descriptor_received"
	case StateMatching:
		return "matching"
	case StateEnrolling:
		return "enrolling"
	case StateSuccess:
		return "success"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// attempt traces state transitions of a single request at debug level.
type attempt struct {
	kind    string
	state   AttemptState
	started time.Time
	log     *slog.Logger
}

func newAttempt(log *slog.Logger, kind string, now time.Time) *attempt {
	return &attempt{
		kind:    kind,
		state:   StateIdle,
		started: now,
		log:     log.With("attempt", kind),
	}
}

func (a *attempt) to(ctx context.Context, next AttemptState, args ...any) {
	a.log.DebugContext(ctx, "attempt state", append([]any{"from", a.state.String(), "to", next.String()}, args...)...)
	a.state = next
}

// finish logs the outcome. Rejections carry only the reason, never a similarity.
func (a *attempt) finish(ctx context.Context, now time.Time, err error, args ...any) {
	if err != nil {
		a.to(ctx, StateRejected)
		a.log.InfoContext(ctx, a.kind+" rejected", "reason", err.Error(), "duration", now.Sub(a.started))
		return
	}
	a.to(ctx, StateSuccess)
	a.log.InfoContext(ctx, a.kind+" succeeded", append(args, "duration", now.Sub(a.started))...)
}
