// Package dispatch executes built requests against the configured LLM
// backend. A Strategy exists per provider; the Dispatcher selects one per turn
// from the LLMProvider setting so the backend can be switched without a
// restart.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mvanwyck/reverie/internal/observe"
	"github.com/mvanwyck/reverie/internal/reqbuild"
	"github.com/mvanwyck/reverie/internal/store"
)

// Strategy serializes and executes a request against one backend, returning
// the response text.
type Strategy interface {
	// Name is the provider name matched against the LLMProvider setting.
	Name() string

	// Execute sends the request and returns the concatenated response text.
	Execute(ctx context.Context, req *reqbuild.Request) (string, error)
}

// Dispatcher routes requests to the strategy named by the LLMProvider
// setting.
type Dispatcher struct {
	settings   *store.Settings
	strategies map[string]Strategy
	metrics    *observe.Metrics
	logger     *slog.Logger
}

// New creates a dispatcher over the given strategies.
func New(settings *store.Settings, strategies []Strategy, metrics *observe.Metrics, logger *slog.Logger) *Dispatcher {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[string]Strategy, len(strategies))
	for _, s := range strategies {
		byName[s.Name()] = s
	}
	return &Dispatcher{
		settings: settings, strategies: byName,
		metrics: metrics, logger: logger,
	}
}

// Provider returns the currently configured provider name, or "" when the
// setting is absent.
func (d *Dispatcher) Provider(ctx context.Context) (string, error) {
	return d.settings.String(ctx, store.KeyLLMProvider, "")
}

// Dispatch executes req against the configured provider.
func (d *Dispatcher) Dispatch(ctx context.Context, req *reqbuild.Request) (string, error) {
	provider, err := d.Provider(ctx)
	if err != nil {
		return "", fmt.Errorf("dispatch: read provider setting: %w", err)
	}
	strategy, ok := d.strategies[provider]
	if !ok {
		return "", fmt.Errorf("dispatch: no strategy for provider %q", provider)
	}

	start := time.Now()
	text, err := strategy.Execute(ctx, req)
	d.metrics.DispatchDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		d.metrics.RecordDispatch(ctx, provider, "error")
		return "", err
	}
	d.metrics.RecordDispatch(ctx, provider, "ok")
	d.logger.Debug("dispatched request",
		"provider", provider, "model", req.Model,
		"messages", len(req.Messages))
	return text, nil
}
