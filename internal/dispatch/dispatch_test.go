package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/mvanwyck/reverie/internal/observe"
	"github.com/mvanwyck/reverie/internal/reqbuild"
	"github.com/mvanwyck/reverie/internal/store"
	"github.com/mvanwyck/reverie/internal/store/storemock"
)

type fakeStrategy struct {
	name     string
	response string
	err      error
	calls    int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Execute(ctx context.Context, req *reqbuild.Request) (string, error) {
	f.calls++
	return f.response, f.err
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

func TestDispatcherSelectsBySetting(t *testing.T) {
	t.Parallel()

	st := storemock.New()
	st.Settings[store.KeyLLMProvider] = store.ProviderClaude

	claude := &fakeStrategy{name: store.ProviderClaude, response: "from claude"}
	gemini := &fakeStrategy{name: store.ProviderGemini, response: "from gemini"}
	d := New(store.NewSettings(st), []Strategy{claude, gemini}, testMetrics(t), slog.Default())

	text, err := d.Dispatch(context.Background(), &reqbuild.Request{Model: "m"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if text != "from claude" {
		t.Errorf("Dispatch() = %q, want from claude", text)
	}
	if gemini.calls != 0 {
		t.Error("unselected strategy must not be called")
	}

	// Switching the setting reroutes the next dispatch without a restart.
	st.Settings[store.KeyLLMProvider] = store.ProviderGemini
	text, err = d.Dispatch(context.Background(), &reqbuild.Request{Model: "m"})
	if err != nil {
		t.Fatalf("Dispatch() after switch error = %v", err)
	}
	if text != "from gemini" {
		t.Errorf("Dispatch() after switch = %q, want from gemini", text)
	}
}

func TestDispatcherUnknownProvider(t *testing.T) {
	t.Parallel()

	st := storemock.New()
	st.Settings[store.KeyLLMProvider] = "Mistral"
	d := New(store.NewSettings(st), nil, testMetrics(t), slog.Default())
	if _, err := d.Dispatch(context.Background(), &reqbuild.Request{}); err == nil {
		t.Fatal("Dispatch() with unknown provider: expected error")
	}
}

func TestDispatcherPropagatesStrategyError(t *testing.T) {
	t.Parallel()

	st := storemock.New()
	st.Settings[store.KeyLLMProvider] = store.ProviderClaude
	boom := errors.New("model overloaded")
	d := New(store.NewSettings(st),
		[]Strategy{&fakeStrategy{name: store.ProviderClaude, err: boom}},
		testMetrics(t), slog.Default())

	if _, err := d.Dispatch(context.Background(), &reqbuild.Request{}); !errors.Is(err, boom) {
		t.Errorf("Dispatch() error = %v, want wrapped strategy error", err)
	}
}
