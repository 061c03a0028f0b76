package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestNewTracer_NoEndpointIsNoop(t *testing.T) {
	tracer, err := NewTracer(Config{ServiceName: "factorsearch"})
	require.NoError(t, err)

	ctx, span := tracer.Tracer().Start(context.Background(), "anything")
	span.End()

	assert.False(t, span.SpanContext().IsValid())
	assert.Empty(t, GetTraceID(ctx))
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestStartRequestSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := NewTracerFromProvider("test", tp)
	defer func() { _ = tracer.Shutdown(context.Background()) }()

	ctx, span := tracer.StartRequestSpan(context.Background(), "worker", "vllm:qwen", "vllm")
	assert.NotEmpty(t, GetTraceID(ctx))
	RecordSpanUsage(span, 10, 5, 0.25, "USD")
	RecordSpanError(span, errors.New("boom"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	got := ended[0]
	assert.Equal(t, "llm.request", got.Name())
	assert.Equal(t, codes.Error, got.Status().Code)
	assert.Contains(t, got.Attributes(), attribute.String("llm.role", "worker"))
	assert.Equal(t, trace.SpanKindClient, got.SpanKind())
	assert.Contains(t, got.Attributes(), attribute.Int("llm.tokens.output", 5))
	assert.Contains(t, got.Attributes(), attribute.String("llm.cost.currency", "USD"))
	assert.Len(t, got.Events(), 1)
}

func TestRecordSpanSuccess(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := NewTracerFromProvider("test", tp)

	_, span := tracer.Tracer().Start(context.Background(), "ok")
	RecordSpanSuccess(span)
	span.End()

	require.Len(t, recorder.Ended(), 1)
	assert.Equal(t, codes.Ok, recorder.Ended()[0].Status().Code)
}
