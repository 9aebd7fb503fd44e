package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer provides distributed tracing via OpenTelemetry.
//
// Spans cover the interesting units of work in the runtime: one span per LLM
// call, one per tool execution, one per intervention attempt. When no OTLP
// endpoint is configured the tracer is a no-op and costs nothing.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	config   TraceConfig
}

// TraceConfig configures tracing behavior.
type TraceConfig struct {
	// ServiceName identifies this service in traces.
	ServiceName string

	// ServiceVersion identifies the service version.
	ServiceVersion string

	// Environment specifies the deployment environment.
	Environment string

	// Endpoint is the OTLP collector endpoint (e.g., "localhost:4317").
	// If empty, tracing is disabled.
	Endpoint string

	// SamplingRate controls what fraction of traces are recorded (0.0-1.0).
	// Defaults to 1.0.
	SamplingRate float64

	// EnableInsecure disables TLS for the OTLP connection (dev only).
	EnableInsecure bool
}

// NewTracer creates a tracer with the given configuration. It returns the
// tracer and a shutdown function that must be called on exit to flush spans.
//
// With an empty Endpoint the returned tracer records nothing and the
// shutdown function is a no-op.
func NewTracer(config TraceConfig) (*Tracer, func(context.Context) error, error) {
	if config.ServiceName == "" {
		config.ServiceName = "aiwhisperer"
	}
	if config.SamplingRate <= 0 || config.SamplingRate > 1 {
		config.SamplingRate = 1.0
	}

	if config.Endpoint == "" {
		return &Tracer{
			tracer: noop.NewTracerProvider().Tracer(config.ServiceName),
			config: config,
		}, func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.Endpoint)}
	if config.EnableInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(context.Background(), opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
		attribute.String("environment", config.Environment),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("build trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(config.SamplingRate)),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t := &Tracer{
		provider: provider,
		tracer:   provider.Tracer(config.ServiceName),
		config:   config,
	}

	shutdown := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return provider.Shutdown(ctx)
	}
	return t, shutdown, nil
}

// Start begins a new span. The caller must End() the returned span.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartLLMCall begins a span covering one model request.
func (t *Tracer) StartLLMCall(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return t.Start(ctx, "llm.complete",
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
	)
}

// StartToolCall begins a span covering one tool execution.
func (t *Tracer) StartToolCall(ctx context.Context, toolName, toolCallID string) (context.Context, trace.Span) {
	return t.Start(ctx, "tool.execute",
		attribute.String("tool.name", toolName),
		attribute.String("tool.call_id", toolCallID),
	)
}

// RecordError marks a span failed with the given error.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
