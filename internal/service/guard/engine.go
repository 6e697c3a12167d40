package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/cf-guard/internal/alert"
	domain "github.com/oshokin/cf-guard/internal/domain/guard"
	"github.com/oshokin/cf-guard/internal/logger"
	repo "github.com/oshokin/cf-guard/internal/repository/state"
)

// Gateway reads and changes the remote security level.
type Gateway interface {
	GetMode(ctx context.Context) (domain.Mode, error)
	SetMode(ctx context.Context, mode domain.Mode) error
}

// Sampler returns the current system load.
type Sampler interface {
	CurrentLoad(ctx context.Context) (float64, error)
}

// Notifier delivers alerts. It must not fail the caller.
type Notifier interface {
	Notify(ctx context.Context, event alert.Event)
}

// Settings are the policy knobs of the engine.
type Settings struct {
	// LoadThreshold is the load above which under_attack is enabled.
	LoadThreshold float64
	// NormalMode is the level used when load is below the threshold.
	NormalMode domain.Mode
	// Cooldown is how long under_attack is held after entry.
	Cooldown time.Duration
	// Host labels alerts.
	Host string
}

// Dependencies are the collaborators of the engine.
type Dependencies struct {
	// Gateway is the remote state API.
	Gateway Gateway
	// Sampler provides the load average.
	Sampler Sampler
	// Repository persists the guard state.
	Repository repo.GuardRepository
	// Notifier sends alerts; nil disables alerting.
	Notifier Notifier
	// Clock returns the current time; nil means time.Now.
	Clock func() time.Time
}

// Outcome summarises one reconciliation.
type Outcome struct {
	// ActualMode is the remote mode read at the start of the run.
	ActualMode domain.Mode
	// CachedMode is the cached mode after the run.
	CachedMode domain.Mode
	// TargetMode is the mode the policy asked for.
	TargetMode domain.Mode
	// ActivatedAt is the persisted under_attack window start after the run.
	ActivatedAt time.Time
	// Load is the sampled load.
	Load float64
	// Threshold is the configured threshold.
	Threshold float64
	// Drifted is true when the remote mode differed from the cache.
	Drifted bool
	// Changed is true when the remote mode was changed by this run.
	Changed bool
	// RemoteWriteFailed is true when the API rejected the change.
	RemoteWriteFailed bool
}

var (
	// ErrRemoteUnavailable means the current remote mode could not be read.
	ErrRemoteUnavailable = errors.New("failed to retrieve current Cloudflare mode")
	// errGatewayRequired is returned when no gateway is configured.
	errGatewayRequired = errors.New("gateway must be provided")
	// errRepositoryRequired is returned when no repository is configured.
	errRepositoryRequired = errors.New("repository must be provided")
)

// Engine reconciles load, cached state and remote state.
type Engine struct {
	// settings are the policy knobs.
	settings Settings
	// gateway is the remote state API.
	gateway Gateway
	// sampler provides the load average.
	sampler Sampler
	// repo persists the guard state.
	repo repo.GuardRepository
	// notifier sends alerts.
	notifier Notifier
	// clock returns the current time.
	clock func() time.Time
}

// NewEngine creates an engine. Gateway and Repository are required.
func NewEngine(settings Settings, deps Dependencies) (*Engine, error) {
	if deps.Gateway == nil {
		return nil, errGatewayRequired
	}

	if deps.Repository == nil {
		return nil, errRepositoryRequired
	}

	if settings.NormalMode.IsZero() {
		settings.NormalMode = domain.Medium
	}

	e := &Engine{
		settings: settings,
		gateway:  deps.Gateway,
		sampler:  deps.Sampler,
		repo:     deps.Repository,
		notifier: deps.Notifier,
		clock:    deps.Clock,
	}

	if e.clock == nil {
		e.clock = time.Now
	}

	return e, nil
}

// decision is the result of the hysteresis policy.
type decision struct {
	// target is the desired mode.
	target domain.Mode
	// activatedAt is the window start that goes with target, zero if none.
	activatedAt time.Time
}

// Reconcile runs one step. The only error it returns wraps ErrRemoteUnavailable,
// together with an outcome that carries just the load and threshold; every
// other failure is logged and leaves the run successful.
func (e *Engine) Reconcile(ctx context.Context) (*Outcome, error) {
	actual, err := e.gateway.GetMode(ctx)
	if err != nil {
		return &Outcome{
			Load:      e.currentLoad(ctx),
			Threshold: e.settings.LoadThreshold,
		}, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	now := e.clock()
	load := e.currentLoad(ctx)

	state, err := e.repo.Load(ctx)
	if err != nil || state == nil {
		logger.WarnKV(ctx, "Cached state unreadable, starting fresh", "error", err)

		state = new(domain.State)
	}

	outcome := &Outcome{
		ActualMode: actual,
		Load:       load,
		Threshold:  e.settings.LoadThreshold,
	}

	if actual != state.CachedMode {
		outcome.Drifted = true
		e.syncDrift(ctx, state, actual, now, load)
	}

	d := e.decide(state, load, now)
	outcome.TargetMode = d.target

	if d.target != state.CachedMode {
		if e.apply(ctx, state, d, load, now) {
			outcome.Changed = true
		} else {
			outcome.RemoteWriteFailed = true
		}
	}

	outcome.CachedMode = state.CachedMode
	outcome.ActivatedAt = state.ActivatedAt

	logger.InfoKV(ctx, "Reconciled",
		"actual_mode", actual.String(),
		"cached_mode", state.CachedMode.String(),
		"target_mode", d.target.String(),
		"load", load,
		"threshold", e.settings.LoadThreshold,
		"changed", outcome.Changed,
	)

	return outcome, nil
}

// currentLoad samples the load; failures count as zero load.
func (e *Engine) currentLoad(ctx context.Context) float64 {
	if e.sampler == nil {
		return 0
	}

	load, err := e.sampler.CurrentLoad(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Failed to read load average, assuming 0", "error", err)
		return 0
	}

	return load
}

// syncDrift adopts a mode that was changed outside the guard.
// Entering under_attack by hand starts a fresh cooldown window.
func (e *Engine) syncDrift(ctx context.Context, state *domain.State, actual domain.Mode, now time.Time, load float64) {
	logger.InfoKV(ctx, "Syncing cache, Cloudflare mode changed manually",
		"from", state.CachedMode.String(),
		"to", actual.String(),
	)

	previous := state.CachedMode
	state.CachedMode = actual

	if err := e.repo.SaveMode(ctx, actual); err != nil {
		logger.WarnKV(ctx, "Failed to persist cached mode", "error", err)
	}

	kind := alert.KindManualChange

	if actual.IsUnderAttack() {
		kind = alert.KindManualUnderAttack
		state.ActivatedAt = now

		if err := e.repo.SaveActivation(ctx, now); err != nil {
			logger.WarnKV(ctx, "Failed to persist activation time", "error", err)
		}
	} else {
		state.ActivatedAt = time.Time{}

		if err := e.repo.ClearActivation(ctx); err != nil {
			logger.WarnKV(ctx, "Failed to clear activation time", "error", err)
		}
	}

	e.notify(ctx, kind, actual, previous, load, now)
}

// decide applies the hysteresis policy to the synced state.
func (e *Engine) decide(state *domain.State, load float64, now time.Time) decision {
	switch {
	case load > e.settings.LoadThreshold:
		// High load always wins. The window starts on entry only.
		d := decision{
			target:      domain.UnderAttack,
			activatedAt: state.ActivatedAt,
		}

		if !state.CachedMode.IsUnderAttack() {
			d.activatedAt = now
		}

		return d
	case state.CachedMode.IsUnderAttack() && state.HasActivation():
		if now.Sub(state.ActivatedAt) < e.settings.Cooldown {
			return decision{
				target:      domain.UnderAttack,
				activatedAt: state.ActivatedAt,
			}
		}

		return decision{target: e.settings.NormalMode}
	default:
		return decision{target: e.settings.NormalMode}
	}
}

// apply pushes the target mode and, on success, persists it and alerts.
// It reports whether the remote change succeeded.
func (e *Engine) apply(ctx context.Context, state *domain.State, d decision, load float64, now time.Time) bool {
	logger.InfoKV(ctx, "Setting Cloudflare security level", "target_mode", d.target.String())

	if err := e.gateway.SetMode(ctx, d.target); err != nil {
		logger.ErrorKV(ctx, "Cloudflare API rejected mode change", "target_mode", d.target.String(), "error", err)
		return false
	}

	previous := state.CachedMode
	state.CachedMode = d.target

	if err := e.repo.SaveMode(ctx, d.target); err != nil {
		logger.WarnKV(ctx, "Failed to persist cached mode", "error", err)
	}

	if !d.activatedAt.Equal(state.ActivatedAt) {
		e.persistActivation(ctx, d.activatedAt)
	}

	state.ActivatedAt = d.activatedAt

	kind := alert.KindExited
	if d.target.IsUnderAttack() {
		kind = alert.KindEntered
	}

	e.notify(ctx, kind, d.target, previous, load, now)

	return true
}

func (e *Engine) persistActivation(ctx context.Context, at time.Time) {
	if at.IsZero() {
		if err := e.repo.ClearActivation(ctx); err != nil {
			logger.WarnKV(ctx, "Failed to clear activation time", "error", err)
		}

		return
	}

	if err := e.repo.SaveActivation(ctx, at); err != nil {
		logger.WarnKV(ctx, "Failed to persist activation time", "error", err)
	}
}

func (e *Engine) notify(
	ctx context.Context,
	kind alert.Kind,
	mode, previous domain.Mode,
	load float64,
	now time.Time,
) {
	if e.notifier == nil {
		return
	}

	e.notifier.Notify(ctx, alert.Event{
		Kind:         kind,
		Host:         e.settings.Host,
		Time:         now,
		Mode:         mode,
		PreviousMode: previous,
		Load:         load,
		Threshold:    e.settings.LoadThreshold,
	})
}
