package enrich

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/mvanwyck/reverie/internal/observe"
	"github.com/mvanwyck/reverie/pkg/convo"
)

type scriptedEnricher struct {
	name string
	fn   func(ctx context.Context, st *State) error
}

func (s *scriptedEnricher) Name() string { return s.name }

func (s *scriptedEnricher) Enrich(ctx context.Context, st *State) error {
	return s.fn(ctx, st)
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func TestOrchestratorIsolatesFailures(t *testing.T) {
	t.Parallel()

	st := NewState(&convo.Session{ID: 1}, &convo.Turn{ID: 10, Input: "hi"}, nil)

	ok := &scriptedEnricher{name: "ok", fn: func(_ context.Context, st *State) error {
		st.Insert(convo.ContextData{ID: 1, Type: convo.TypeMemory})
		return nil
	}}
	boom := &scriptedEnricher{name: "boom", fn: func(context.Context, *State) error {
		return errors.New("store down")
	}}
	after := &scriptedEnricher{name: "after", fn: func(_ context.Context, st *State) error {
		st.Insert(convo.ContextData{ID: 2, Type: convo.TypeInsight})
		return nil
	}}

	o := NewOrchestrator([]Enricher{ok, boom, after}, testMetrics(t), slog.Default())
	if err := o.Run(context.Background(), st); err != nil {
		t.Fatalf("Run() error = %v, want nil despite failing enricher", err)
	}

	if len(st.Items(convo.TypeMemory)) != 1 || len(st.Items(convo.TypeInsight)) != 1 {
		t.Error("successful enrichers should have populated the state")
	}
}

func TestOrchestratorZeroEnrichers(t *testing.T) {
	t.Parallel()

	st := NewState(&convo.Session{ID: 1}, &convo.Turn{ID: 10}, nil)
	o := NewOrchestrator(nil, testMetrics(t), slog.Default())
	if err := o.Run(context.Background(), st); err != nil {
		t.Fatalf("Run() with zero enrichers: %v", err)
	}
}

func TestOrchestratorCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	blocked := &scriptedEnricher{name: "blocked", fn: func(ctx context.Context, _ *State) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	st := NewState(&convo.Session{ID: 1}, &convo.Turn{ID: 10}, nil)
	o := NewOrchestrator([]Enricher{blocked}, testMetrics(t), slog.Default())
	if err := o.Run(ctx, st); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}
