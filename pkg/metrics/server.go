package metrics

import "github.com/marmos91/volumed/pkg/server"

// NewServerMetrics returns the per-profile connection recorder factory.
//
// Returns nil if metrics are not enabled (InitRegistry not called). A nil
// factory disables connection metrics in server.Manager.
//
// Example usage:
//
//	metrics.InitRegistry()
//	mgr, err := server.NewManager(ctx, server.ManagerOptions{
//		Registry: profiles,
//		Metrics:  metrics.NewServerMetrics(),
//	})
func NewServerMetrics() server.MetricsFactory {
	if !IsEnabled() || newPrometheusServerMetrics == nil {
		return nil
	}
	return newPrometheusServerMetrics()
}

// newPrometheusServerMetrics is implemented in pkg/metrics/prometheus/server.go
// This indirection avoids import cycles while keeping the API clean
var newPrometheusServerMetrics func() server.MetricsFactory

// RegisterServerMetricsConstructor registers the Prometheus server metrics constructor.
// Called by pkg/metrics/prometheus/server.go during package initialization.
func RegisterServerMetricsConstructor(constructor func() server.MetricsFactory) {
	newPrometheusServerMetrics = constructor
}
