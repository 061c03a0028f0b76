package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer owns the run's tracer and, when exporting, its provider.
type Tracer struct {
	tracer   trace.Tracer
	shutdown func(context.Context) error
}

// Config holds tracing configuration
type Config struct {
	ServiceName    string `yaml:"service_name" env:"SERVICE_NAME"`
	ServiceVersion string `yaml:"service_version" env:"SERVICE_VERSION"`
	JaegerEndpoint string `yaml:"jaeger_endpoint" env:"JAEGER_ENDPOINT"`
	Environment    string `yaml:"environment" env:"ENVIRONMENT"`
}

// NewTracer creates a new OpenTelemetry tracer. Without a Jaeger endpoint the
// tracer is a no-op and the global provider is left untouched.
func NewTracer(config Config) (*Tracer, error) {
	if config.JaegerEndpoint == "" {
		return NewTracerFromProvider(config.ServiceName, noop.NewTracerProvider()), nil
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(config.JaegerEndpoint)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	// Tracers taken from the global provider before this point (decompose,
	// optimizer) delegate to tp from now on.
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{
		tracer:   tp.Tracer(config.ServiceName),
		shutdown: tp.Shutdown,
	}, nil
}

// NewTracerFromProvider builds a Tracer on an existing provider.
func NewTracerFromProvider(name string, tp trace.TracerProvider) *Tracer {
	t := &Tracer{tracer: tp.Tracer(name)}
	if s, ok := tp.(interface{ Shutdown(context.Context) error }); ok {
		t.shutdown = s.Shutdown
	}
	return t
}

// Tracer returns the underlying otel tracer.
func (t *Tracer) Tracer() trace.Tracer {
	return t.tracer
}

// StartRequestSpan opens the "llm.request" span around one architect or
// worker completion.
func (t *Tracer) StartRequestSpan(ctx context.Context, role, model, provider string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "llm.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.role", role),
			attribute.String("llm.model", model),
			attribute.String("llm.provider", provider),
		),
	)
}

// RecordSpanError records an error in a span
func RecordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordSpanSuccess records success in a span
func RecordSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// RecordSpanUsage attaches token counts and cost to a request span.
func RecordSpanUsage(span trace.Span, inputTokens, outputTokens int, cost float64, currency string) {
	span.SetAttributes(
		attribute.Int("llm.tokens.input", inputTokens),
		attribute.Int("llm.tokens.output", outputTokens),
		attribute.Float64("llm.cost", cost),
		attribute.String("llm.cost.currency", currency),
	)
}

// Shutdown flushes and stops the provider, if it owns one.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.shutdown == nil {
		return nil
	}
	return t.shutdown(ctx)
}

// GetTraceID extracts trace ID from context
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
