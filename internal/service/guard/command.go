package guard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/cf-guard/internal/alert"
	"github.com/oshokin/cf-guard/internal/config"
	domain "github.com/oshokin/cf-guard/internal/domain/guard"
	"github.com/oshokin/cf-guard/internal/gateway/cloudflare"
	"github.com/oshokin/cf-guard/internal/load"
	"github.com/oshokin/cf-guard/internal/logger"
	"github.com/oshokin/cf-guard/internal/metrics"
	"github.com/oshokin/cf-guard/internal/repository/lock"
	repo "github.com/oshokin/cf-guard/internal/repository/state"
	"github.com/oshokin/cf-guard/internal/service/common"
	"github.com/oshokin/cf-guard/internal/version"
)

// Process exit codes.
const (
	ExitOK                = 0
	ExitConfigError       = 1
	ExitRemoteUnavailable = 2
)

// ErrConfig wraps failures to read the configuration file.
var ErrConfig = errors.New("configuration error")

// Options controls a single guard invocation.
type Options struct {
	// ConfigPath specifies the configuration file; empty means CF_GUARD_CONFIG or the default.
	ConfigPath string
	// LoadAvgPath overrides /proc/loadavg.
	LoadAvgPath string
	// HTTPClient overrides the client used for the Cloudflare API.
	HTTPClient *http.Client
	// Clock overrides time.Now.
	Clock func() time.Time
}

// Run performs one reconciliation and returns an error only for the fatal
// classes: configuration problems and an unreadable remote mode.
func Run(ctx context.Context, opts *Options) error {
	if opts == nil {
		opts = new(Options)
	}

	// Set context with logger name and a run id for tracking.
	ctx = logger.WithName(ctx, version.Name)
	ctx = logger.WithKV(ctx, "run_id", uuid.NewString())

	defer logger.Sync()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	if level, ok := logger.ParseLogLevel(cfg.LogLevel); ok {
		logger.SetLevel(level)
	} else {
		logger.WarnKV(ctx, "Unknown log level, using info", "log_level", cfg.LogLevel)
	}

	// Required settings are checked before any network call.
	if err = config.Validate(cfg); err != nil {
		return err
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	actor := common.DetectActor()
	ctx = logger.WithKV(ctx, "zone_id", cfg.ZoneID)

	logger.DebugKV(ctx, "Starting run", "host", actor.Hostname, "user", actor.Username)

	held, err := lock.Acquire(cfg.ResolveLockFile())

	switch {
	case errors.Is(err, lock.ErrLocked):
		logger.WarnKV(ctx, "Another run is in progress, skipping", "lock_file", cfg.ResolveLockFile(), "error", err)
		return nil
	case err != nil:
		// Locking is best effort; the control loop keeps running without it.
		logger.WarnKV(ctx, "Failed to acquire lock, continuing unlocked", "error", err)
	}

	defer func() {
		if releaseErr := held.Release(); releaseErr != nil {
			logger.WarnKV(ctx, "Failed to release lock", "error", releaseErr)
		}
	}()

	engine, err := newEngine(ctx, cfg, opts, actor.Hostname, clock)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	outcome, runErr := engine.Reconcile(ctx)
	if runErr != nil {
		logger.ErrorKV(ctx, "Run aborted", "error", runErr)
	}

	writeMetrics(ctx, cfg, outcome, runErr == nil, clock())

	return runErr
}

// newEngine wires the engine collaborators from cfg.
func newEngine(
	ctx context.Context,
	cfg *config.Config,
	opts *Options,
	host string,
	clock func() time.Time,
) (*Engine, error) {
	gateway, err := cloudflare.NewClient(
		cfg.ZoneID,
		cfg.APIToken,
		cloudflare.WithBaseURL(cfg.APIBaseURL),
		cloudflare.WithHTTPClient(opts.HTTPClient),
	)
	if err != nil {
		return nil, fmt.Errorf("create cloudflare client: %w", err)
	}

	channel, err := alert.NewChannel(cfg.Alert, host)
	if err != nil {
		logger.WarnKV(ctx, "Alerting disabled", "error", err)

		channel = nil
	}

	dispatcher := alert.NewDispatcher(
		channel,
		repo.NewAlertFileRepository(cfg.Alert.TimestampFile),
		cfg.Alert.Cooldown,
		alert.WithClock(clock),
	)

	settings := Settings{
		LoadThreshold: cfg.LoadThreshold,
		NormalMode:    domain.ParseMode(cfg.LowLoadMode),
		Cooldown:      cfg.Cooldown,
		Host:          host,
	}

	return NewEngine(settings, Dependencies{
		Gateway:    gateway,
		Sampler:    load.NewSampler(opts.LoadAvgPath),
		Repository: repo.NewFileRepository(cfg.CacheFile, cfg.TimestampFile),
		Notifier:   dispatcher,
		Clock:      clock,
	})
}

// writeMetrics exports the outcome when a textfile path is configured.
func writeMetrics(ctx context.Context, cfg *config.Config, outcome *Outcome, success bool, now time.Time) {
	if cfg.MetricsTextfile == "" {
		return
	}

	snapshot := metrics.Snapshot{
		Threshold: cfg.LoadThreshold,
		RunAt:     now,
		Success:   success,
	}

	if outcome != nil {
		snapshot.Mode = outcome.CachedMode
		snapshot.Load = outcome.Load
		snapshot.ActivatedAt = outcome.ActivatedAt
		snapshot.RemoteWriteFailed = outcome.RemoteWriteFailed
		snapshot.Drifted = outcome.Drifted
	}

	recorder := metrics.NewRecorder()
	recorder.Record(snapshot)

	if err := recorder.WriteTextfile(cfg.MetricsTextfile); err != nil {
		logger.WarnKV(ctx, "Failed to write metrics", "error", err)
	}
}

// ExitCode maps a Run error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrRemoteUnavailable):
		return ExitRemoteUnavailable
	default:
		return ExitConfigError
	}
}
