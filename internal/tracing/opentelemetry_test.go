package tracing

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

// installSpanRecorder swaps the global tracer provider for one that records spans in memory
func installSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})
	return recorder
}

func TestDefaultTracingConfig(t *testing.T) {
	config := DefaultTracingConfig()

	assert.Equal(t, "cookiecrypt-oauthproxy", config.ServiceName)
	assert.Equal(t, "dev", config.ServiceVersion)
	assert.Equal(t, 0.1, config.SampleRate)
	assert.False(t, config.Enabled)
	assert.True(t, config.UseStdout)
	assert.Equal(t, 5, config.ShutdownTimeoutSec)
	assert.NoError(t, config.Validate())
}

func TestTracingConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		config   TracingConfig
		errorMsg string
	}{
		{
			name:   "valid stdout",
			config: TracingConfig{ServiceName: "svc", SampleRate: 0.5, Enabled: true, UseStdout: true},
		},
		{
			name:   "valid otlp",
			config: TracingConfig{ServiceName: "svc", SampleRate: 1, Enabled: true, OTLPEndpoint: "collector:4318"},
		},
		{
			name:   "disabled skips validation",
			config: TracingConfig{SampleRate: 7},
		},
		{
			name:     "missing service name",
			config:   TracingConfig{SampleRate: 1, Enabled: true, UseStdout: true},
			errorMsg: "service_name",
		},
		{
			name:     "sample rate above one",
			config:   TracingConfig{ServiceName: "svc", SampleRate: 1.5, Enabled: true, UseStdout: true},
			errorMsg: "sample_rate",
		},
		{
			name:     "negative sample rate",
			config:   TracingConfig{ServiceName: "svc", SampleRate: -0.1, Enabled: true, UseStdout: true},
			errorMsg: "sample_rate",
		},
		{
			name:     "otlp without endpoint",
			config:   TracingConfig{ServiceName: "svc", SampleRate: 1, Enabled: true},
			errorMsg: "otlp_endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestTracingConfig_ShutdownTimeout(t *testing.T) {
	assert.Equal(t, 10*time.Second, TracingConfig{ShutdownTimeoutSec: 10}.shutdownTimeout())
	assert.Equal(t, defaultShutdownTimeout, TracingConfig{}.shutdownTimeout())
	assert.Equal(t, defaultShutdownTimeout, TracingConfig{ShutdownTimeoutSec: -1}.shutdownTimeout())
}

func TestNewTracingManager_NilLogger(t *testing.T) {
	tm := NewTracingManager(TracingConfig{ServiceName: "svc"}, nil)
	require.NotNil(t, tm.logger)
	assert.NoError(t, tm.Initialize(context.Background()))
}

func TestTracingManager_DisabledTracing(t *testing.T) {
	tm := NewTracingManager(TracingConfig{}, quietLogger())

	require.NoError(t, tm.Initialize(context.Background()))
	assert.Nil(t, tm.tracerProvider)
	require.NoError(t, tm.Shutdown(context.Background()))
}

func TestTracingManager_EnabledWithStdout(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	var out bytes.Buffer
	tm := NewTracingManager(TracingConfig{
		ServiceName: "svc",
		SampleRate:  1.0,
		Enabled:     true,
		UseStdout:   true,
	}, quietLogger())
	tm.SetStdoutWriter(&out)

	ctx := context.Background()
	require.NoError(t, tm.Initialize(ctx))

	_, span := StartSpan(ctx, "envelope.encrypt")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, tm.Shutdown(ctx))
	assert.Contains(t, out.String(), "envelope.encrypt")

	// Shutdown is idempotent
	require.NoError(t, tm.Shutdown(ctx))
}

func TestTracingManager_InvalidConfig(t *testing.T) {
	tm := NewTracingManager(TracingConfig{Enabled: true, UseStdout: true, SampleRate: 1}, quietLogger())
	err := tm.Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service_name")
}

func TestTracingManager_InitializeWithCancelledContext(t *testing.T) {
	tm := NewTracingManager(TracingConfig{
		ServiceName: "svc",
		SampleRate:  1.0,
		Enabled:     true,
		UseStdout:   true,
	}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tm.Initialize(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
	assert.Nil(t, tm.tracerProvider)
}

func TestTracingManager_ShutdownWithoutInit(t *testing.T) {
	tm := NewTracingManager(TracingConfig{}, quietLogger())
	require.NoError(t, tm.Shutdown(context.Background()))
}

func TestStartSpan_RecordsAttributes(t *testing.T) {
	recorder := installSpanRecorder(t)

	ctx, span := StartSpan(context.Background(), "proxy.request",
		attribute.String("http.method", "GET"),
	)
	AddSpanAttributes(ctx, attribute.Bool("cookie.present", true))
	SetSpanStatus(ctx, codes.Ok, "")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "proxy.request", ended[0].Name())
	assert.Equal(t, InstrumentationName, ended[0].InstrumentationScope().Name)
	assert.Contains(t, ended[0].Attributes(), attribute.String("http.method", "GET"))
	assert.Contains(t, ended[0].Attributes(), attribute.Bool("cookie.present", true))
	assert.Equal(t, codes.Ok, ended[0].Status().Code)
}

func TestRecordError(t *testing.T) {
	recorder := installSpanRecorder(t)

	ctx, span := StartSpan(context.Background(), "envelope.decrypt")
	RecordError(ctx, assert.AnError, attribute.String("error.code", "AUTHENTICATION"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, assert.AnError.Error(), ended[0].Status().Description)
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "exception", ended[0].Events()[0].Name)
}

func TestSpanHelpers_NoSpanInContext(t *testing.T) {
	ctx := context.Background()

	AddSpanAttributes(ctx, attribute.String("k", "v"))
	SetSpanStatus(ctx, codes.Error, "ignored")
	RecordError(ctx, assert.AnError)

	assert.Empty(t, GetOtelTraceID(ctx))
	assert.Empty(t, GetOtelSpanID(ctx))
}

func TestWithOtelTracing(t *testing.T) {
	installSpanRecorder(t)

	ctx := WithRequestID(context.Background(), "req_test")
	ctx = WithStartTime(ctx, time.Now())

	spanCtx, span := WithOtelTracing(ctx, "proxy.request")
	defer span.End()

	info := GetRequestInfo(spanCtx)
	assert.Equal(t, "req_test", info.RequestID)
	assert.Len(t, info.TraceID, 32)
	assert.Len(t, info.SpanID, 16)
	assert.Equal(t, GetOtelTraceID(spanCtx), info.TraceID)
	assert.Equal(t, GetOtelSpanID(spanCtx), info.SpanID)
}

func TestStartSpanWithTracer(t *testing.T) {
	recorder := installSpanRecorder(t)
	tm := NewTracingManager(TracingConfig{}, quietLogger())

	_, span := StartSpanWithTracer(context.Background(), tm.GetTracer("custom-tracer"), "custom-span",
		attribute.String("custom.attr", "value"),
	)
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "custom-tracer", ended[0].InstrumentationScope().Name)
}
