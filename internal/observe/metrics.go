// Package observe provides application-wide observability primitives for
// Reverie: OpenTelemetry metrics, distributed tracing, and structured
// logging setup.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Reverie metrics.
const meterName = "github.com/mvanwyck/reverie"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TurnDuration tracks end-to-end turn processing latency.
	TurnDuration metric.Float64Histogram

	// EnrichDuration tracks the fan-out enrichment phase latency.
	EnrichDuration metric.Float64Histogram

	// DispatchDuration tracks LLM dispatch latency.
	DispatchDuration metric.Float64Histogram

	// SemanticSearchDuration tracks vector search latency per collection.
	SemanticSearchDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts processed turns. Use with attribute:
	//   attribute.String("status", "accepted"|"rejected")
	Turns metric.Int64Counter

	// EnricherFailures counts isolated enricher errors. Use with attribute:
	//   attribute.String("enricher", ...)
	EnricherFailures metric.Int64Counter

	// DispatchRequests counts provider dispatches. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	DispatchRequests metric.Int64Counter

	// StrippedTurns counts turns compressed by the background stripper.
	StrippedTurns metric.Int64Counter

	// IndexedItems counts context items (re-)indexed into the chunk store.
	IndexedItems metric.Int64Counter

	// --- Gauges ---

	// ContextItems tracks the number of context items loaded into the most
	// recent turn's state.
	ContextItems metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time on the admin
	// endpoints. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// request-assembly and LLM latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("reverie.turn.duration",
		metric.WithDescription("End-to-end turn processing latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EnrichDuration, err = m.Float64Histogram("reverie.enrich.duration",
		metric.WithDescription("Latency of the concurrent enrichment phase."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DispatchDuration, err = m.Float64Histogram("reverie.dispatch.duration",
		metric.WithDescription("Latency of LLM dispatch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SemanticSearchDuration, err = m.Float64Histogram("reverie.semantic.search.duration",
		metric.WithDescription("Latency of vector search per collection."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("reverie.turns",
		metric.WithDescription("Total processed turns by status."),
	); err != nil {
		return nil, err
	}
	if met.EnricherFailures, err = m.Int64Counter("reverie.enricher.failures",
		metric.WithDescription("Total isolated enricher errors by enricher name."),
	); err != nil {
		return nil, err
	}
	if met.DispatchRequests, err = m.Int64Counter("reverie.dispatch.requests",
		metric.WithDescription("Total LLM dispatches by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.StrippedTurns, err = m.Int64Counter("reverie.stripper.turns",
		metric.WithDescription("Total turns compressed by the background stripper."),
	); err != nil {
		return nil, err
	}
	if met.IndexedItems, err = m.Int64Counter("reverie.index.items",
		metric.WithDescription("Total context items indexed into the chunk store."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ContextItems, err = m.Int64UpDownCounter("reverie.context.items",
		metric.WithDescription("Context items loaded into the current turn's state."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("reverie.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTurn records a processed turn with its outcome status.
func (m *Metrics) RecordTurn(ctx context.Context, status string) {
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordEnricherFailure records an isolated enricher error.
func (m *Metrics) RecordEnricherFailure(ctx context.Context, enricher string) {
	m.EnricherFailures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("enricher", enricher)),
	)
}

// RecordDispatch records an LLM dispatch with the standard attribute set.
func (m *Metrics) RecordDispatch(ctx context.Context, provider, status string) {
	m.DispatchRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}
