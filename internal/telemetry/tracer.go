package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys. These follow OpenTelemetry semantic conventions
// where applicable.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// ========================================================================
	// Server attributes
	// ========================================================================
	AttrProfile      = "server.profile"
	AttrInstanceID   = "server.instance_id"
	AttrConnectionID = "server.connection_id"

	// ========================================================================
	// Bootstrap attributes
	// ========================================================================
	AttrStage = "bootstrap.stage"
	AttrPatch = "bootstrap.patch"

	// ========================================================================
	// HTTP attributes
	// ========================================================================
	AttrHTTPMethod = "http.request.method"
	AttrHTTPRoute  = "http.route"
	AttrHTTPStatus = "http.response.status_code"
	AttrRequestID  = "http.request_id"
)

// Span names.
// Format: <component>.<operation>
const (
	SpanConnection  = "server.connection"
	SpanBootstrap   = "bootstrap.run"
	SpanStage       = "bootstrap.stage"
	SpanHTTPRequest = "http.request"
	SpanVolumeStats = "volume.stats"
	SpanStatfs      = "volume.statfs"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// RemoteAddr returns an attribute for the client address (ip:port)
func RemoteAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// Profile returns an attribute for the service profile name
func Profile(name string) attribute.KeyValue {
	return attribute.String(AttrProfile, name)
}

// InstanceID returns an attribute for the server instance identifier
func InstanceID(id string) attribute.KeyValue {
	return attribute.String(AttrInstanceID, id)
}

// ConnectionID returns an attribute for the connection identifier
func ConnectionID(id string) attribute.KeyValue {
	return attribute.String(AttrConnectionID, id)
}

// Stage returns an attribute for a bootstrap stage name
func Stage(name string) attribute.KeyValue {
	return attribute.String(AttrStage, name)
}

// Patch returns an attribute for a compatibility patch name
func Patch(name string) attribute.KeyValue {
	return attribute.String(AttrPatch, name)
}

// HTTPMethod returns an attribute for the request method
func HTTPMethod(method string) attribute.KeyValue {
	return attribute.String(AttrHTTPMethod, method)
}

// HTTPRoute returns an attribute for the matched route pattern
func HTTPRoute(route string) attribute.KeyValue {
	return attribute.String(AttrHTTPRoute, route)
}

// HTTPStatus returns an attribute for the response status code
func HTTPStatus(code int) attribute.KeyValue {
	return attribute.Int(AttrHTTPStatus, code)
}

// RequestID returns an attribute for the request identifier
func RequestID(id string) attribute.KeyValue {
	return attribute.String(AttrRequestID, id)
}

// StartStageSpan starts a span for one bootstrap stage.
func StartStageSpan(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Stage(stage)}, attrs...)
	return StartSpan(ctx, SpanStage, trace.WithAttributes(allAttrs...))
}

// StartHTTPSpan starts a span for an HTTP request.
func StartHTTPSpan(ctx context.Context, method, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{HTTPMethod(method)}, attrs...)
	return StartSpan(ctx, method+" "+path, trace.WithAttributes(allAttrs...), trace.WithSpanKind(trace.SpanKindServer))
}
