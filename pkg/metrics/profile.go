package metrics

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/marmos91/volumed/pkg/config"
	"github.com/marmos91/volumed/pkg/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ProfileName is the service profile serving /metrics.
const ProfileName = "metrics"

// Profile returns the profile that serves the Prometheus registry on the
// metrics.host and metrics.port options.
func Profile() server.Profile {
	return server.Profile{
		Name:        ProfileName,
		Description: "Prometheus metrics endpoint",
		Bind: func(cfg config.Config) server.Descriptor {
			return server.Descriptor{
				Host:        cfg.Metrics.Host,
				Port:        cfg.Metrics.Port,
				GracePeriod: cfg.Server.GracePeriod,
			}
		},
		Build: func(cfg *config.Resolved) (server.Application, error) {
			if !IsEnabled() {
				return nil, fmt.Errorf("metrics registry is not initialized")
			}
			c := cfg.Config()
			return server.NewHTTPApplication(Handler(), server.HTTPConfig{
				ReadTimeout:  c.Server.ReadTimeout,
				WriteTimeout: c.Server.WriteTimeout,
				IdleTimeout:  c.Server.IdleTimeout,
			}), nil
		},
	}
}

// Handler serves the registry at /metrics.
func Handler() http.Handler {
	reg := GetRegistry()

	r := chi.NewRouter()
	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	return r
}
