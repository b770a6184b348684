// Package observability provides logging, tracing, metrics and the audit
// trail for the catering assistant.
//
// Tracing and metrics use OpenTelemetry. Metrics are exported through a
// Prometheus registry that the HTTP server serves on /metrics.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
)

const instrumentationName = "github.com/scttfrdmn/catering-agent-go"

// MetadataTraceContext carries W3C trace headers in message metadata.
const MetadataTraceContext = "trace_context"

// TracingConfig configures InitTracing.
type TracingConfig struct {
	ServiceName string
	// OTLPEndpoint enables the OTLP gRPC exporter, e.g. "localhost:4317".
	OTLPEndpoint string
	// Console pretty-prints spans to stdout.
	Console bool
}

// InitTracing installs a global tracer provider. With neither exporter
// configured spans are still created, so log lines carry trace IDs.
func InitTracing(ctx context.Context, cfg TracingConfig) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	if cfg.OTLPEndpoint != "" {
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	if cfg.Console {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create console exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, nil
}

// Tracer returns the package tracer from the current global provider, so
// tests can install their own.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// ExtractTraceContext extracts W3C trace context from message metadata.
func ExtractTraceContext(ctx context.Context, metadata map[string]interface{}) context.Context {
	traceMap, ok := metadata[MetadataTraceContext].(map[string]interface{})
	if !ok {
		return ctx
	}
	carrier := make(propagation.MapCarrier)
	for k, v := range traceMap {
		if s, ok := v.(string); ok {
			carrier[k] = s
		}
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// InjectTraceContext injects the current trace context into metadata.
func InjectTraceContext(ctx context.Context, metadata map[string]interface{}) map[string]interface{} {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	carrier := make(propagation.MapCarrier)
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) > 0 {
		traceCtx := make(map[string]interface{}, len(carrier))
		for k, v := range carrier {
			traceCtx[k] = v
		}
		metadata[MetadataTraceContext] = traceCtx
	}
	return metadata
}

// TracingMiddleware wraps an agent with a span per Process call.
type TracingMiddleware struct {
	agent    agenkit.Agent
	spanName string
}

// NewTracingMiddleware creates a new tracing middleware. An empty spanName
// becomes "agent.<name>.process".
func NewTracingMiddleware(agent agenkit.Agent, spanName string) *TracingMiddleware {
	if spanName == "" {
		spanName = fmt.Sprintf("agent.%s.process", agent.Name())
	}
	return &TracingMiddleware{agent: agent, spanName: spanName}
}

// Name returns the agent name.
func (t *TracingMiddleware) Name() string { return t.agent.Name() }

// Description returns the wrapped agent's description.
func (t *TracingMiddleware) Description() string {
	if d, ok := t.agent.(agenkit.Describer); ok {
		return d.Description()
	}
	return ""
}

// Capabilities returns the agent capabilities.
func (t *TracingMiddleware) Capabilities() []string { return t.agent.Capabilities() }

// Introspect returns the wrapped agent's introspection.
func (t *TracingMiddleware) Introspect() *agenkit.IntrospectionResult { return t.agent.Introspect() }

// Process processes a message inside a span.
func (t *TracingMiddleware) Process(ctx context.Context, message *agenkit.Message) (*agenkit.Message, error) {
	ctx = ExtractTraceContext(ctx, message.Metadata)
	ctx, span := Tracer().Start(ctx, t.spanName, trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	span.SetAttributes(
		attribute.String("agent.name", t.agent.Name()),
		attribute.String("message.role", message.Role),
		attribute.Int("message.content_length", len(message.Content)),
	)
	for key, value := range message.Metadata {
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String("message.metadata."+key, v))
		case int:
			span.SetAttributes(attribute.Int("message.metadata."+key, v))
		case bool:
			span.SetAttributes(attribute.Bool("message.metadata."+key, v))
		}
	}

	response, err := t.agent.Process(ctx, message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")

	response.Metadata = InjectTraceContext(ctx, response.Metadata)
	return response, nil
}
