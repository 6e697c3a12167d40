package alert

import (
	"context"
	"time"

	"github.com/oshokin/cf-guard/internal/logger"
	repo "github.com/oshokin/cf-guard/internal/repository/state"
)

// Channel delivers a single event.
type Channel interface {
	Name() string
	Send(ctx context.Context, event Event) error
}

// Dispatcher sends events through one channel, at most once per cooldown.
type Dispatcher struct {
	// channel is the configured delivery channel; nil disables alerting.
	channel Channel
	// repo stores the time of the last alert.
	repo repo.AlertRepository
	// cooldown is the minimum spacing between alerts.
	cooldown time.Duration
	// clock returns the current time.
	clock func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// NewDispatcher creates a dispatcher. A nil channel disables alerting and
// leaves the cooldown timestamp untouched.
func NewDispatcher(
	channel Channel,
	repository repo.AlertRepository,
	cooldown time.Duration,
	opts ...DispatcherOption,
) *Dispatcher {
	d := &Dispatcher{
		channel:  channel,
		repo:     repository,
		cooldown: cooldown,
		clock:    time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Notify sends the event unless alerting is disabled or still cooling down.
// The cooldown is reset after every attempt, whether or not delivery worked,
// so an unreachable channel is not hammered on every run.
func (d *Dispatcher) Notify(ctx context.Context, event Event) {
	if d == nil || d.channel == nil {
		return
	}

	now := d.clock()

	if d.coolingDown(ctx, now) {
		logger.DebugKV(ctx, "Alert suppressed by cooldown", "kind", event.Kind, "cooldown", d.cooldown.String())
		return
	}

	if err := d.channel.Send(ctx, event); err != nil {
		logger.WarnKV(ctx, "Alert delivery failed", "channel", d.channel.Name(), "kind", event.Kind, "error", err)
	} else {
		logger.InfoKV(ctx, "Alert sent", "channel", d.channel.Name(), "kind", event.Kind)
	}

	if d.repo == nil {
		return
	}

	if err := d.repo.Save(ctx, now); err != nil {
		logger.WarnKV(ctx, "Failed to record alert time", "error", err)
	}
}

// coolingDown reports whether the last alert is more recent than the cooldown.
func (d *Dispatcher) coolingDown(ctx context.Context, now time.Time) bool {
	if d.repo == nil {
		return false
	}

	state, err := d.repo.Load(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Failed to read alert time", "error", err)
		return false
	}

	if state == nil || state.LastAlertAt.IsZero() {
		return false
	}

	return now.Sub(state.LastAlertAt) < d.cooldown
}
