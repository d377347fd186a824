package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds connection-scoped logging context
type LogContext struct {
	TraceID      string    // OpenTelemetry trace ID
	SpanID       string    // OpenTelemetry span ID
	Profile      string    // Service profile serving the connection
	InstanceID   string    // Server instance identifier
	ConnectionID string    // Per-connection identifier
	RemoteAddr   string    // Peer address (host:port)
	StartTime    time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a LogContext for a freshly accepted connection
func NewLogContext(profile, instanceID, connectionID, remoteAddr string) *LogContext {
	return &LogContext{
		Profile:      profile,
		InstanceID:   instanceID,
		ConnectionID: connectionID,
		RemoteAddr:   remoteAddr,
		StartTime:    time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
