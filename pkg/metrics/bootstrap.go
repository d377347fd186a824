package metrics

import "time"

// BootstrapMetrics records startup progress.
//
// Implementations must be safe to call on a nil receiver so callers can pass
// the result of NewBootstrapMetrics without checking it.
type BootstrapMetrics interface {
	// ObserveStage records how long a bootstrap stage took and whether it failed.
	ObserveStage(stage string, duration time.Duration, err error)

	// RecordPatch records the outcome of one compatibility patch.
	RecordPatch(name, outcome string)

	// SetBuildInfo publishes the running version.
	SetBuildInfo(version, commit string)
}

// NewBootstrapMetrics creates a Prometheus-backed BootstrapMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewBootstrapMetrics() BootstrapMetrics {
	if !IsEnabled() || newPrometheusBootstrapMetrics == nil {
		return nil
	}
	return newPrometheusBootstrapMetrics()
}

// newPrometheusBootstrapMetrics is implemented in pkg/metrics/prometheus/bootstrap.go
var newPrometheusBootstrapMetrics func() BootstrapMetrics

// RegisterBootstrapMetricsConstructor registers the Prometheus bootstrap metrics constructor.
// Called by pkg/metrics/prometheus/bootstrap.go during package initialization.
func RegisterBootstrapMetricsConstructor(constructor func() BootstrapMetrics) {
	newPrometheusBootstrapMetrics = constructor
}

// ObserveStage records a stage duration.
func ObserveStage(m BootstrapMetrics, stage string, duration time.Duration, err error) {
	if m != nil {
		m.ObserveStage(stage, duration, err)
	}
}

// RecordPatch records a patch outcome.
func RecordPatch(m BootstrapMetrics, name, outcome string) {
	if m != nil {
		m.RecordPatch(name, outcome)
	}
}
