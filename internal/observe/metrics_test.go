package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// ── Harness ──────────────────────────────────────────────────────────────────

// newTestMetrics builds a Metrics instance on a private provider so parallel
// tests never see each other's data points.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumValue returns the value of the int64 sum data point carrying want, or
// fails the test when the metric or data point is missing.
func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name string, want attribute.KeyValue) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, present := dp.Attributes.Value(want.Key); present && v == want.Value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, want.Key, want.Value.Emit())
	return 0
}

// ── Counters ─────────────────────────────────────────────────────────────────

func TestCounters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		record func(ctx context.Context, m *Metrics)
		metric string
		attr   attribute.KeyValue
		want   int64
	}{
		{
			name: "turns by status",
			record: func(ctx context.Context, m *Metrics) {
				m.RecordTurn(ctx, "accepted")
				m.RecordTurn(ctx, "accepted")
				m.RecordTurn(ctx, "rejected")
			},
			metric: "reverie.turns",
			attr:   attribute.String("status", "accepted"),
			want:   2,
		},
		{
			name: "enricher failures by enricher",
			record: func(ctx context.Context, m *Metrics) {
				m.RecordEnricherFailure(ctx, "semantic")
				m.RecordEnricherFailure(ctx, "semantic")
				m.RecordEnricherFailure(ctx, "trigger")
			},
			metric: "reverie.enricher.failures",
			attr:   attribute.String("enricher", "semantic"),
			want:   2,
		},
		{
			name: "dispatches by provider",
			record: func(ctx context.Context, m *Metrics) {
				m.RecordDispatch(ctx, "Claude", "ok")
				m.RecordDispatch(ctx, "Gemini", "error")
			},
			metric: "reverie.dispatch.requests",
			attr:   attribute.String("provider", "Claude"),
			want:   1,
		},
		{
			name: "stripped turns",
			record: func(ctx context.Context, m *Metrics) {
				m.StrippedTurns.Add(ctx, 3, metric.WithAttributes(Attr("status", "ok")))
			},
			metric: "reverie.stripper.turns",
			attr:   attribute.String("status", "ok"),
			want:   3,
		},
		{
			name: "indexed items",
			record: func(ctx context.Context, m *Metrics) {
				m.IndexedItems.Add(ctx, 7, metric.WithAttributes(Attr("collection", "context_data")))
			},
			metric: "reverie.index.items",
			attr:   attribute.String("collection", "context_data"),
			want:   7,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m, reader := newTestMetrics(t)
			tc.record(context.Background(), m)

			rm := collect(t, reader)
			if got := sumValue(t, rm, tc.metric, tc.attr); got != tc.want {
				t.Errorf("%s{%s=%s} = %d, want %d",
					tc.metric, tc.attr.Key, tc.attr.Value.Emit(), got, tc.want)
			}
		})
	}
}

// ── Histograms ───────────────────────────────────────────────────────────────

func TestStageHistograms(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	stages := map[string]metric.Float64Histogram{
		"reverie.turn.duration":            m.TurnDuration,
		"reverie.enrich.duration":          m.EnrichDuration,
		"reverie.dispatch.duration":        m.DispatchDuration,
		"reverie.semantic.search.duration": m.SemanticSearchDuration,
	}
	for _, h := range stages {
		h.Record(ctx, 0.12)
		h.Record(ctx, 1.3)
	}

	rm := collect(t, reader)
	for name := range stages {
		met := findMetric(rm, name)
		if met == nil {
			t.Errorf("metric %q not found", name)
			continue
		}
		hist, ok := met.Data.(metricdata.Histogram[float64])
		if !ok {
			t.Errorf("metric %q is not a histogram", name)
			continue
		}
		if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 2 {
			t.Errorf("metric %q: unexpected data points %+v", name, hist.DataPoints)
		}
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)

	m.HTTPRequestDuration.Record(context.Background(), 0.05,
		metric.WithAttributes(Attr("method", "GET"), Attr("path", "/healthz")),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "reverie.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 1 {
		t.Errorf("unexpected data points %+v", hist.DataPoints)
	}
}

// ── Gauges and the package default ───────────────────────────────────────────

func TestContextItemsGauge(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ContextItems.Add(ctx, 5)
	m.ContextItems.Add(ctx, -2)

	rm := collect(t, reader)
	met := findMetric(rm, "reverie.context.items")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 3 {
		t.Errorf("unexpected data points %+v", sum.DataPoints)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// Backed by the global provider, so only identity is checked.
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different pointers")
	}
}
