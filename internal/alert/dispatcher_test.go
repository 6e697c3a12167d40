package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/cf-guard/internal/domain/guard"
)

var errTestDelivery = errors.New("test delivery error")

// memoryAlertRepository is a minimal in-memory AlertRepository for tests.
type memoryAlertRepository struct {
	// last is the stored alert time.
	last time.Time
	// saves counts Save calls.
	saves int
}

// Load returns the stored alert time.
func (m *memoryAlertRepository) Load(context.Context) (*domain.AlertState, error) {
	return &domain.AlertState{LastAlertAt: m.last}, nil
}

// Save stores the alert time.
func (m *memoryAlertRepository) Save(_ context.Context, at time.Time) error {
	m.last = at
	m.saves++

	return nil
}

// recordingChannel captures sent events and optionally fails.
type recordingChannel struct {
	// sent holds delivered events in order.
	sent []Event
	// err is returned from Send.
	err error
}

func (r *recordingChannel) Name() string { return "recording" }

func (r *recordingChannel) Send(_ context.Context, event Event) error {
	r.sent = append(r.sent, event)

	return r.err
}

// fakeClock is a settable clock.
type fakeClock struct {
	// now is the current time.
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// TestDispatcher_Suppression delivers one notification per cooldown window.
func TestDispatcher_Suppression(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	repo := new(memoryAlertRepository)
	ch := new(recordingChannel)
	d := NewDispatcher(ch, repo, 30*time.Minute, WithClock(clock.Now))

	d.Notify(ctx, Event{Kind: KindEntered})

	clock.now = clock.now.Add(29 * time.Minute)
	d.Notify(ctx, Event{Kind: KindExited})

	require.Len(t, ch.sent, 1)
	require.Equal(t, KindEntered, ch.sent[0].Kind)
	require.Equal(t, 1, repo.saves)

	clock.now = clock.now.Add(time.Minute)
	d.Notify(ctx, Event{Kind: KindExited})

	require.Len(t, ch.sent, 2)
	require.Equal(t, clock.now, repo.last)
}

// TestDispatcher_FailureStillResetsCooldown records the attempt even when delivery fails.
func TestDispatcher_FailureStillResetsCooldown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	repo := new(memoryAlertRepository)
	ch := &recordingChannel{err: errTestDelivery}
	d := NewDispatcher(ch, repo, time.Minute, WithClock(clock.Now))

	d.Notify(ctx, Event{Kind: KindEntered})
	require.Equal(t, clock.now, repo.last)

	d.Notify(ctx, Event{Kind: KindEntered})
	require.Len(t, ch.sent, 1)
}

// TestDispatcher_Disabled never touches the repository.
func TestDispatcher_Disabled(t *testing.T) {
	t.Parallel()

	repo := new(memoryAlertRepository)
	d := NewDispatcher(nil, repo, time.Minute)

	d.Notify(context.Background(), Event{Kind: KindEntered})
	require.Zero(t, repo.saves)

	// A nil dispatcher is also safe.
	(*Dispatcher)(nil).Notify(context.Background(), Event{})
}

// TestDispatcher_NoRepository sends every event.
func TestDispatcher_NoRepository(t *testing.T) {
	t.Parallel()

	ch := new(recordingChannel)
	d := NewDispatcher(ch, nil, time.Hour)

	d.Notify(context.Background(), Event{Kind: KindEntered})
	d.Notify(context.Background(), Event{Kind: KindExited})
	require.Len(t, ch.sent, 2)
}
