package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
)

// Metrics bundles the meter provider and the Prometheus registry it
// exports into.
type Metrics struct {
	Provider *sdkmetric.MeterProvider
	Registry *prometheus.Registry
}

// InitMetrics installs a global meter provider exporting to a fresh
// Prometheus registry.
func InitMetrics(ctx context.Context, serviceName string) (*Metrics, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	return &Metrics{Provider: provider, Registry: registry}, nil
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.Provider.Shutdown(ctx)
}

// Meter returns the package meter from the current global provider.
func Meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// MetricsMiddleware records request counts, errors and latency per agent.
type MetricsMiddleware struct {
	agent    agenkit.Agent
	requests metric.Int64Counter
	errors   metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewMetricsMiddleware creates a new metrics middleware.
func NewMetricsMiddleware(agent agenkit.Agent) (*MetricsMiddleware, error) {
	meter := Meter()

	requests, err := meter.Int64Counter("catering.agent.requests",
		metric.WithDescription("Total number of agent requests"), metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}
	errs, err := meter.Int64Counter("catering.agent.errors",
		metric.WithDescription("Total number of agent errors"), metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}
	latency, err := meter.Float64Histogram("catering.agent.latency",
		metric.WithDescription("Agent processing latency"), metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("failed to create latency histogram: %w", err)
	}

	return &MetricsMiddleware{agent: agent, requests: requests, errors: errs, latency: latency}, nil
}

// Name returns the agent name.
func (m *MetricsMiddleware) Name() string { return m.agent.Name() }

// Description returns the wrapped agent's description.
func (m *MetricsMiddleware) Description() string {
	if d, ok := m.agent.(agenkit.Describer); ok {
		return d.Description()
	}
	return ""
}

// Capabilities returns the agent capabilities.
func (m *MetricsMiddleware) Capabilities() []string { return m.agent.Capabilities() }

// Introspect returns the wrapped agent's introspection.
func (m *MetricsMiddleware) Introspect() *agenkit.IntrospectionResult { return m.agent.Introspect() }

// Process processes a message and records the outcome.
func (m *MetricsMiddleware) Process(ctx context.Context, message *agenkit.Message) (*agenkit.Message, error) {
	start := time.Now()
	response, err := m.agent.Process(ctx, message)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	status := "success"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("agent.name", m.agent.Name()),
		attribute.String("status", status),
	)
	m.requests.Add(ctx, 1, attrs)
	m.latency.Record(ctx, latencyMs, attrs)
	if err != nil {
		m.errors.Add(ctx, 1, attrs)
		return nil, err
	}
	return response, nil
}

// Recorder holds the catering counters: approval decisions, exports and
// lines flagged for review.
type Recorder struct {
	approvals metric.Int64Counter
	exports   metric.Int64Counter
	flagged   metric.Int64Counter
}

// NewRecorder creates the domain instruments on the global meter.
func NewRecorder() (*Recorder, error) {
	meter := Meter()

	approvals, err := meter.Int64Counter("catering.approvals",
		metric.WithDescription("Stock count approval decisions"), metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("failed to create approvals counter: %w", err)
	}
	exports, err := meter.Int64Counter("catering.exports",
		metric.WithDescription("Text exports written"), metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("failed to create exports counter: %w", err)
	}
	flagged, err := meter.Int64Counter("catering.review_lines",
		metric.WithDescription("Stock count lines flagged for review"), metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("failed to create review counter: %w", err)
	}

	return &Recorder{approvals: approvals, exports: exports, flagged: flagged}, nil
}

// Approval counts one decision ("APPROVED" or "REJECTED").
func (r *Recorder) Approval(ctx context.Context, decision string, flaggedLines int) {
	if r == nil {
		return
	}
	r.approvals.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
	if flaggedLines > 0 {
		r.flagged.Add(ctx, int64(flaggedLines))
	}
}

// Export counts one export attempt of the given kind. Its signature matches
// export.Hook.
func (r *Recorder) Export(ctx context.Context, kind string, err error) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.exports.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}
