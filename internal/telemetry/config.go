package telemetry

import (
	"github.com/google/uuid"
	"github.com/marmos91/volumed/pkg/config"
)

// processInstanceID identifies this process in traces and profiles, so the
// two can be joined for one run.
var processInstanceID = uuid.NewString()

// Config holds OpenTelemetry configuration
type Config struct {
	// Enabled indicates whether tracing is enabled
	Enabled bool

	// ServiceName is the name of the service reported to the trace backend
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// InstanceID identifies the process (service.instance.id)
	InstanceID string

	// Profile is the server profile the process runs
	Profile string

	// Endpoint is the OTLP endpoint (e.g., "localhost:4317")
	Endpoint string

	// Insecure indicates whether to use insecure connection (no TLS)
	Insecure bool

	// SampleRate is the trace sampling rate (0.0 to 1.0)
	// 1.0 means sample all traces, 0.5 means sample 50%
	SampleRate float64
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    config.ProjectName,
		ServiceVersion: "dev",
		InstanceID:     processInstanceID,
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}

// FromConfig builds the tracing and profiling configuration from the
// resolved options. Both carry the same instance ID and server profile.
func FromConfig(cfg config.Config, serviceName, serviceVersion string) (Config, ProfilingConfig) {
	if serviceName == "" {
		serviceName = config.ProjectName
	}
	if serviceVersion == "" {
		serviceVersion = "dev"
	}
	t := cfg.Telemetry

	tracing := Config{
		Enabled:        t.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		InstanceID:     processInstanceID,
		Profile:        cfg.Server.Profile,
		Endpoint:       t.Endpoint,
		Insecure:       t.Insecure,
		SampleRate:     t.SampleRate,
	}
	profiling := ProfilingConfig{
		Enabled:        t.Profiling.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Endpoint:       t.Profiling.Endpoint,
		ProfileTypes:   append([]string(nil), t.Profiling.ProfileTypes...),
		Tags: map[string]string{
			"profile":     cfg.Server.Profile,
			"instance_id": processInstanceID,
		},
	}
	return tracing, profiling
}
