package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// exporterShutdownTimeout bounds the final span flush.
const exporterShutdownTimeout = 5 * time.Second

// tracing is the process-wide tracer. Spans started before Init, or while
// tracing is disabled, go to a no-op tracer.
var tracing = struct {
	mu      sync.RWMutex
	tracer  trace.Tracer
	enabled bool
}{
	tracer: noop.NewTracerProvider().Tracer(""),
}

// Init installs the tracer described by cfg and returns the function that
// flushes and stops it. Disabled tracing installs a no-op tracer named after
// the service.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if !cfg.Enabled {
		SetTracerProvider(noop.NewTracerProvider(), cfg.ServiceName)
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.ServiceInstanceID(cfg.InstanceID),
			Profile(cfg.Profile),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	SetTracerProvider(provider, cfg.ServiceName)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, exporterShutdownTimeout)
		defer cancel()

		err := provider.Shutdown(ctx)
		SetTracerProvider(noop.NewTracerProvider(), cfg.ServiceName)
		return err
	}, nil
}

// sampler maps a sample rate to a sampler. Below 1.0, child spans follow
// their parent's decision.
func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// SetTracerProvider routes StartSpan to tp. Init installs the exporting
// provider through it; any provider other than the no-op one counts as
// enabled.
func SetTracerProvider(tp trace.TracerProvider, serviceName string) {
	_, isNoop := tp.(noop.TracerProvider)

	tracing.mu.Lock()
	defer tracing.mu.Unlock()
	tracing.tracer = tp.Tracer(serviceName)
	tracing.enabled = !isNoop
}

// IsEnabled reports whether spans are exported.
func IsEnabled() bool {
	tracing.mu.RLock()
	defer tracing.mu.RUnlock()
	return tracing.enabled
}

// StartSpan starts a span named name. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	tracing.mu.RLock()
	t := tracing.tracer
	tracing.mu.RUnlock()
	return t.Start(ctx, name, opts...)
}

// RecordError records err on the span in ctx and marks it failed.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetStatus sets the status of the span in ctx.
func SetStatus(ctx context.Context, code codes.Code, description string) {
	trace.SpanFromContext(ctx).SetStatus(code, description)
}

// TraceID returns the trace ID of the span in ctx, or "" without one.
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// SpanID returns the span ID of the span in ctx, or "" without one.
func SpanID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasSpanID() {
		return sc.SpanID().String()
	}
	return ""
}
