package config

import "strings"

// ApplyDefaults normalizes values and fills the fields that option defaults
// cannot express.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults where zero is not meaningful
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyVolumeDefaults(&cfg.Volume)
}

// applyLoggingDefaults normalizes level names to uppercase.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Level == "WARNING" {
		cfg.Level = "WARN"
	}

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	cfg.Format = strings.ToLower(cfg.Format)

	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
	cfg.Output = strings.ToLower(cfg.Output)

	cfg.File.Level = strings.ToUpper(cfg.File.Level)
	cfg.Syslog.Level = strings.ToUpper(cfg.Syslog.Level)
	cfg.Syslog.Facility = strings.ToLower(cfg.Syslog.Facility)
	if cfg.Syslog.Tag == "" {
		cfg.Syslog.Tag = ProjectName
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = append([]string(nil), defaultProfileTypes...)
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyVolumeDefaults(cfg *VolumeConfig) {
	if cfg.BackendName == "" {
		cfg.BackendName = ProjectName
	}
	if cfg.DataPath == "" {
		cfg.DataPath = "/"
	}
}
