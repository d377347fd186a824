package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/marmos91/volumed/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "volumed", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Enabled = false

	shutdown, err := Init(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	// Should be able to call shutdown without error
	err = shutdown(ctx)
	assert.NoError(t, err)

	// Should not be enabled
	assert.False(t, IsEnabled())
}

func TestStartSpanBeforeInit(t *testing.T) {
	newCtx, span := StartSpan(context.Background(), "test.operation")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	assert.False(t, span.SpanContext().IsValid(), "spans are no-ops until tracing is enabled")
	span.End()
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()

	// Should not panic with nil error
	require.NotPanics(t, func() {
		RecordError(ctx, nil)
	})

	// Should not panic with error
	require.NotPanics(t, func() {
		RecordError(ctx, errors.New("test error"))
	})
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Ok, "success")
	})

	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Error, "failed")
	})
}

func TestSetTracerProvider(t *testing.T) {
	t.Cleanup(func() { SetTracerProvider(noop.NewTracerProvider(), "test") })

	SetTracerProvider(sdktrace.NewTracerProvider(), "test")
	assert.True(t, IsEnabled())

	ctx, span := StartSpan(context.Background(), "volume.statfs")
	assert.True(t, span.SpanContext().IsValid())
	assert.NotEmpty(t, TraceID(ctx))
	assert.NotEmpty(t, SpanID(ctx))
	span.End()

	SetTracerProvider(noop.NewTracerProvider(), "test")
	assert.False(t, IsEnabled())
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	traceID := TraceID(ctx)
	assert.Equal(t, "", traceID)
}

func TestSpanID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	spanID := SpanID(ctx)
	assert.Equal(t, "", spanID)
}

func TestAttributeHelpers(t *testing.T) {
	t.Run("ClientIP", func(t *testing.T) {
		attr := ClientIP("192.168.1.100")
		assert.Equal(t, AttrClientIP, string(attr.Key))
		assert.Equal(t, "192.168.1.100", attr.Value.AsString())
	})

	t.Run("RemoteAddr", func(t *testing.T) {
		attr := RemoteAddr("192.168.1.100:12345")
		assert.Equal(t, AttrClientAddr, string(attr.Key))
		assert.Equal(t, "192.168.1.100:12345", attr.Value.AsString())
	})

	t.Run("Profile", func(t *testing.T) {
		attr := Profile("volume-api")
		assert.Equal(t, AttrProfile, string(attr.Key))
		assert.Equal(t, "volume-api", attr.Value.AsString())
	})

	t.Run("ConnectionID", func(t *testing.T) {
		attr := ConnectionID("c-1")
		assert.Equal(t, AttrConnectionID, string(attr.Key))
		assert.Equal(t, "c-1", attr.Value.AsString())
	})

	t.Run("Stage", func(t *testing.T) {
		attr := Stage("config")
		assert.Equal(t, AttrStage, string(attr.Key))
		assert.Equal(t, "config", attr.Value.AsString())
	})

	t.Run("HTTPStatus", func(t *testing.T) {
		attr := HTTPStatus(204)
		assert.Equal(t, AttrHTTPStatus, string(attr.Key))
		assert.Equal(t, int64(204), attr.Value.AsInt64())
	})
}

func TestStartStageSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartStageSpan(ctx, "logging")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	newCtx2, span2 := StartStageSpan(ctx, "compat", Patch("nofile-limit"))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartHTTPSpan(t *testing.T) {
	newCtx, span := StartHTTPSpan(context.Background(), "GET", "/v1/stats", HTTPRoute("/v1/stats"))
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}

func TestFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.SampleRate = 0.25

	tracing, profiling := FromConfig(cfg, "", "")

	assert.True(t, tracing.Enabled)
	assert.Equal(t, "volumed", tracing.ServiceName)
	assert.Equal(t, "dev", tracing.ServiceVersion)
	assert.Equal(t, 0.25, tracing.SampleRate)
	assert.Equal(t, "localhost:4317", tracing.Endpoint)
	assert.Equal(t, "volume-api", tracing.Profile)
	assert.NotEmpty(t, tracing.InstanceID)

	assert.False(t, profiling.Enabled)
	assert.Equal(t, cfg.Telemetry.Profiling.ProfileTypes, profiling.ProfileTypes)
	assert.Equal(t, "volume-api", profiling.Tags["profile"])
	assert.Equal(t, tracing.InstanceID, profiling.Tags["instance_id"])

	profiling.ProfileTypes[0] = "mutated"
	assert.Equal(t, "cpu", cfg.Telemetry.Profiling.ProfileTypes[0])
}

func TestFromConfig_ServiceName(t *testing.T) {
	tracing, profiling := FromConfig(config.DefaultConfig(), "volumed-canary", "1.4.0")

	assert.Equal(t, "volumed-canary", tracing.ServiceName)
	assert.Equal(t, "volumed-canary", profiling.ServiceName)
	assert.Equal(t, "1.4.0", profiling.ServiceVersion)
}

func TestProfileTags(t *testing.T) {
	tags := profileTags(ProfilingConfig{
		ServiceVersion: "1.4.0",
		Tags:           map[string]string{"profile": "volume-api", "instance_id": ""},
	})

	assert.Equal(t, map[string]string{"profile": "volume-api", "version": "1.4.0"}, tags)
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), sampler(0).Description())
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}

func TestParseProfileType(t *testing.T) {
	for _, name := range config.DefaultConfig().Telemetry.Profiling.ProfileTypes {
		_, err := parseProfileType(name)
		assert.NoError(t, err, name)
	}

	_, err := parseProfileType("heap")
	assert.Error(t, err)
}

func TestInitProfilingUnknownType(t *testing.T) {
	_, err := InitProfiling(ProfilingConfig{Enabled: true, ProfileTypes: []string{"cpu", "heap"}})
	assert.ErrorContains(t, err, "heap")
	assert.False(t, IsProfilingEnabled())
}

func TestInitProfilingDisabled(t *testing.T) {
	shutdown, err := InitProfiling(ProfilingConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown())
	assert.False(t, IsProfilingEnabled())
}
