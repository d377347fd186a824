package prometheus

import (
	"time"

	"github.com/marmos91/volumed/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterBootstrapMetricsConstructor(func() metrics.BootstrapMetrics {
		m := NewBootstrapMetrics(metrics.GetRegistry())
		if m == nil {
			return nil
		}
		return m
	})
}

// BootstrapMetrics is the Prometheus implementation of metrics.BootstrapMetrics.
type BootstrapMetrics struct {
	stageDuration *prometheus.GaugeVec
	stageFailures *prometheus.CounterVec
	patches       *prometheus.CounterVec
	buildInfo     *prometheus.GaugeVec
}

// NewBootstrapMetrics registers the startup metrics on reg.
//
// Returns nil if reg is nil.
func NewBootstrapMetrics(reg prometheus.Registerer) *BootstrapMetrics {
	if reg == nil {
		return nil
	}

	return &BootstrapMetrics{
		stageDuration: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "volumed_bootstrap_stage_duration_seconds",
				Help: "Time spent in each bootstrap stage during the last start",
			},
			[]string{"stage"},
		),
		stageFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "volumed_bootstrap_stage_failures_total",
				Help: "Bootstrap stages that returned an error",
			},
			[]string{"stage"},
		),
		patches: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "volumed_compat_patches_total",
				Help: "Compatibility patch outcomes by patch name",
			},
			[]string{"patch", "outcome"}, // "applied", "skipped", "unsupported", "failed"
		),
		buildInfo: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "volumed_build_info",
				Help: "Always 1; labels carry the running build",
			},
			[]string{"version", "commit"},
		),
	}
}

// ObserveStage records the duration of stage and counts failures.
func (m *BootstrapMetrics) ObserveStage(stage string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Set(duration.Seconds())
	if err != nil {
		m.stageFailures.WithLabelValues(stage).Inc()
	}
}

// RecordPatch counts a compatibility patch outcome.
func (m *BootstrapMetrics) RecordPatch(name, outcome string) {
	if m == nil {
		return
	}
	m.patches.WithLabelValues(name, outcome).Inc()
}

// SetBuildInfo publishes the running version.
func (m *BootstrapMetrics) SetBuildInfo(version, commit string) {
	if m == nil {
		return
	}
	m.buildInfo.WithLabelValues(version, commit).Set(1)
}
