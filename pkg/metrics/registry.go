// Package metrics exposes volumed's Prometheus instrumentation.
//
// Metrics are opt-in: until InitRegistry is called every constructor in
// this package returns nil, and nil recorders are no-ops, so disabled
// metrics cost nothing on the connection path.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry creates the process registry with the Go runtime and process
// collectors. Calling it again returns the existing registry.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	if registry != nil {
		return registry
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the process registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// ResetForTesting drops the registry. It must not be used outside tests.
func ResetForTesting() {
	mu.Lock()
	defer mu.Unlock()
	registry = nil
}
