package logger

import "log/slog"

// Standard field keys for structured logging. Use these consistently so log
// aggregation can query across components.
const (
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	KeyService  = "service"
	KeyVersion  = "version"
	KeyStage    = "stage"
	KeyPatch    = "patch"
	KeyConfig   = "config"
	KeyProfile  = "profile"
	KeyInstance = "instance"

	KeyInstanceID   = "instance_id"
	KeyConnectionID = "connection_id"
	KeyRemoteAddr   = "remote_addr"
	KeyAddress      = "address"
	KeyConnections  = "connections"
	KeyGracePeriod  = "grace_period"
	KeySignal       = "signal"

	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// ConnectionID returns a slog.Attr for connection identifier
func ConnectionID(id string) slog.Attr {
	return slog.String(KeyConnectionID, id)
}

// Profile returns a slog.Attr for a service profile name
func Profile(name string) slog.Attr {
	return slog.String(KeyProfile, name)
}

// Stage returns a slog.Attr for a bootstrap stage name
func Stage(name string) slog.Attr {
	return slog.String(KeyStage, name)
}
