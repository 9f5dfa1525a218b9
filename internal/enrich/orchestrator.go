package enrich

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mvanwyck/reverie/internal/observe"
)

// Enricher contributes one concern to the turn state. Enrichers of a turn run
// concurrently against the same State and must only communicate through it.
type Enricher interface {
	// Name identifies the enricher in logs and metrics.
	Name() string

	// Enrich populates its slice of the state. A returned error marks this
	// enricher's contribution as missing; it never aborts the turn.
	Enrich(ctx context.Context, st *State) error
}

// Orchestrator fans the registered enrichers out over a shared state and
// waits for all of them. Enricher failures are isolated: they are logged,
// counted, and the turn proceeds with whatever the others produced.
type Orchestrator struct {
	enrichers []Enricher
	metrics   *observe.Metrics
	logger    *slog.Logger
}

// NewOrchestrator creates an orchestrator over the given enrichers.
func NewOrchestrator(enrichers []Enricher, metrics *observe.Metrics, logger *slog.Logger) *Orchestrator {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{enrichers: enrichers, metrics: metrics, logger: logger}
}

// Run executes every enricher concurrently and blocks until all have
// finished. The returned error is non-nil only when ctx is cancelled;
// individual enricher errors are swallowed after logging.
func (o *Orchestrator) Run(ctx context.Context, st *State) error {
	start := time.Now()
	defer func() {
		o.metrics.EnrichDuration.Record(ctx, time.Since(start).Seconds())
	}()

	// Wait cancels the derived context on return, so only the caller's ctx
	// can decide whether the run counts as interrupted.
	eg, gctx := errgroup.WithContext(ctx)
	for _, e := range o.enrichers {
		eg.Go(func() error {
			if err := e.Enrich(gctx, st); err != nil {
				o.logger.Warn("enricher failed",
					"enricher", e.Name(),
					"turn_id", st.Turn.ID,
					"error", err)
				o.metrics.RecordEnricherFailure(ctx, e.Name())
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
