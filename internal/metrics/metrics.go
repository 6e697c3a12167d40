// Package metrics exports the outcome of a guard run as Prometheus gauges in
// the node_exporter textfile collector format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	domain "github.com/oshokin/cf-guard/internal/domain/guard"
)

const namespace = "cf_guard"

// Snapshot is what a single run reports.
type Snapshot struct {
	// Mode is the mode cached after the run.
	Mode domain.Mode
	// Load is the sampled 5-minute load.
	Load float64
	// Threshold is the configured load threshold.
	Threshold float64
	// ActivatedAt is the start of the under_attack window, zero if none.
	ActivatedAt time.Time
	// RunAt is when the run finished.
	RunAt time.Time
	// Success is false when the run aborted.
	Success bool
	// RemoteWriteFailed is true when a mode change was rejected.
	RemoteWriteFailed bool
	// Drifted is true when a manual change was detected.
	Drifted bool
}

// Recorder holds the gauges on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	load              prometheus.Gauge
	threshold         prometheus.Gauge
	underAttack       prometheus.Gauge
	modeInfo          *prometheus.GaugeVec
	activation        prometheus.Gauge
	lastRun           prometheus.Gauge
	lastRunSuccess    prometheus.Gauge
	remoteWriteFailed prometheus.Gauge
	driftDetected     prometheus.Gauge
}

// NewRecorder registers the gauges on a fresh registry.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
	}

	return &Recorder{
		registry:          registry,
		load:              gauge("load5", "5-minute load average sampled by the last run"),
		threshold:         gauge("load_threshold", "Configured load threshold"),
		underAttack:       gauge("under_attack", "1 when the cached mode is under_attack"),
		activation:        gauge("activation_timestamp_seconds", "Start of the current under_attack window, 0 if none"),
		lastRun:           gauge("last_run_timestamp_seconds", "Unix time of the last run"),
		lastRunSuccess:    gauge("last_run_success", "1 when the last run completed"),
		remoteWriteFailed: gauge("remote_write_failed", "1 when the last mode change was rejected"),
		driftDetected:     gauge("drift_detected", "1 when the last run detected a manual change"),
		modeInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mode_info",
			Help:      "Cached security level, always 1",
		}, []string{"mode"}),
	}
}

// Record sets every gauge from s.
func (r *Recorder) Record(s Snapshot) {
	r.load.Set(s.Load)
	r.threshold.Set(s.Threshold)
	r.underAttack.Set(boolToFloat(s.Mode.IsUnderAttack()))
	r.lastRun.Set(float64(s.RunAt.Unix()))
	r.lastRunSuccess.Set(boolToFloat(s.Success))
	r.remoteWriteFailed.Set(boolToFloat(s.RemoteWriteFailed))
	r.driftDetected.Set(boolToFloat(s.Drifted))

	r.activation.Set(0)
	if !s.ActivatedAt.IsZero() {
		r.activation.Set(float64(s.ActivatedAt.Unix()))
	}

	r.modeInfo.Reset()
	if !s.Mode.IsZero() {
		r.modeInfo.WithLabelValues(s.Mode.String()).Set(1)
	}
}

// WriteTextfile writes the registry to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}

	return nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}

	return 0
}
