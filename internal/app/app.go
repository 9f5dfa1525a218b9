// Package app wires all reverie subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the turn loop, and Shutdown tears everything down
// in order.
//
// For testing, inject fakes via functional options (WithDataStores,
// WithInput, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mvanwyck/reverie/internal/config"
	"github.com/mvanwyck/reverie/internal/contextsvc"
	"github.com/mvanwyck/reverie/internal/dispatch"
	"github.com/mvanwyck/reverie/internal/enrich"
	"github.com/mvanwyck/reverie/internal/health"
	"github.com/mvanwyck/reverie/internal/observe"
	"github.com/mvanwyck/reverie/internal/pipeline"
	"github.com/mvanwyck/reverie/internal/semantic"
	"github.com/mvanwyck/reverie/internal/store"
	"github.com/mvanwyck/reverie/internal/stripper"
	"github.com/mvanwyck/reverie/internal/vecstore"
	"github.com/mvanwyck/reverie/pkg/convo"
	"github.com/mvanwyck/reverie/pkg/provider/embeddings"
	"github.com/mvanwyck/reverie/pkg/provider/llm"
)

// Defaults applied when the corresponding Workers field is zero.
const (
	defaultIndexInterval = 30 * time.Second
	defaultIndexBatch    = 50
)

// Providers holds the model providers built by main.go. Technical and
// Embeddings may be nil; the subsystems that need them are then disabled.
type Providers struct {
	// Technical answers auxiliary generation calls: query transformation,
	// perception analysis, turn stripping.
	Technical llm.Provider

	// Embeddings embeds context item chunks and search queries.
	Embeddings embeddings.Provider

	// Strategies are the available dispatch targets (Claude, Gemini).
	Strategies []dispatch.Strategy
}

// ChunkStore is the vector store surface the app needs: nearest-neighbour
// search for the enrichers and writes for the indexer.
type ChunkStore interface {
	semantic.ChunkIndex
	semantic.ChunkWriter
}

// DataStores bundles the relational store interfaces plus the chunk store.
// Injected whole via [WithDataStores] in tests; filled from one pgx store
// otherwise.
type DataStores struct {
	Sessions store.SessionStore
	Turns    store.TurnStore
	Items    store.ContextDataStore
	Flags    store.FlagStore
	Settings store.SettingStore
	SysMsgs  store.SystemMessageStore
	Chunks   ChunkStore
}

// App owns all subsystem lifetimes and drives the turn loop.
type App struct {
	cfg       *config.Config
	providers *Providers

	// db is the owned pgx store; nil when stores were injected.
	db   *store.Store
	data DataStores

	settings *store.Settings
	svc      *contextsvc.Service
	pipeline *pipeline.Pipeline
	stripper *stripper.Stripper
	indexer  *semantic.Indexer
	admin    *http.Server

	metrics *observe.Metrics
	logger  *slog.Logger

	in  io.Reader
	out io.Writer

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithDataStores injects pre-built data stores instead of opening a Postgres
// connection from config.
func WithDataStores(d DataStores) Option {
	return func(a *App) { a.data = d }
}

// WithMetrics injects a metrics set instead of the process-global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithInput sets the reader the turn loop consumes. Defaults to stdin.
func WithInput(r io.Reader) Option {
	return func(a *App) { a.in = r }
}

// WithOutput sets the writer responses are printed to. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: cfg must not be nil")
	}
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		logger:    slog.Default(),
		in:        os.Stdin,
		out:       os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStores(ctx); err != nil {
		return nil, err
	}
	a.initPipeline()
	a.initWorkers()
	a.initAdmin()
	return a, nil
}

// initStores opens the pgx store unless data stores were injected.
func (a *App) initStores(ctx context.Context) error {
	if a.data.Sessions != nil {
		a.settings = store.NewSettings(a.data.Settings)
		a.svc = contextsvc.New(a.data.Items)
		return nil
	}

	db, err := store.New(ctx, a.cfg.Store.PostgresDSN, a.cfg.Store.EmbeddingDimensions)
	if err != nil {
		return fmt.Errorf("app: open store: %w", err)
	}
	a.db = db
	a.data = DataStores{
		Sessions: db,
		Turns:    db,
		Items:    db,
		Flags:    db,
		Settings: db,
		SysMsgs:  db,
		Chunks:   vecstore.New(db.Pool()),
	}
	a.settings = store.NewSettings(db)
	a.svc = contextsvc.New(db)
	return nil
}

// initPipeline assembles the enricher set, the orchestrator, the dispatcher,
// and the per-turn pipeline.
func (a *App) initPipeline() {
	enrichers := []enrich.Enricher{
		enrich.NewCharacterProfileEnricher(a.svc),
		enrich.NewDataEnricher(a.svc, convo.TypeGeneric),
		enrich.NewDataEnricher(a.svc, convo.TypeMemory),
		enrich.NewDataEnricher(a.svc, convo.TypeInsight),
		enrich.NewDataEnricher(a.svc, convo.TypeQuote),
		enrich.NewDataEnricher(a.svc, convo.TypePersonaVoiceSample),
		enrich.NewTriggerEnricher(a.svc, a.data.Turns, a.settings),
		enrich.NewTurnHistoryEnricher(a.data.Turns, a.settings),
		enrich.NewDialogueLogEnricher(a.data.Turns, a.settings),
		enrich.NewFlagEnricher(a.data.Flags),
	}
	if a.providers.Embeddings != nil {
		searcher := semantic.NewSearcher(a.data.Chunks, a.providers.Embeddings, a.providers.Technical, a.logger)
		enrichers = append(enrichers, enrich.NewSemanticEnricher(searcher, a.svc, a.settings))
	} else {
		a.logger.Warn("embeddings provider not configured; semantic retrieval disabled")
	}
	if a.providers.Technical != nil {
		enrichers = append(enrichers, enrich.NewPerceptionEnricher(
			a.data.SysMsgs, a.svc, a.data.Turns, a.providers.Technical, a.settings, a.logger))
	} else {
		a.logger.Warn("technical provider not configured; perceptions disabled")
	}

	orch := enrich.NewOrchestrator(enrichers, a.metrics, a.logger)
	dispatcher := dispatch.New(a.settings, a.providers.Strategies, a.metrics, a.logger)

	a.pipeline = pipeline.New(pipeline.Deps{
		Sessions:   a.data.Sessions,
		Turns:      a.data.Turns,
		Flags:      a.data.Flags,
		SysMsgs:    a.data.SysMsgs,
		Settings:   a.settings,
		ContextSvc: a.svc,
		Orch:       orch,
		Dispatcher: dispatcher,
		Metrics:    a.metrics,
		Logger:     a.logger,
	})
}

// initWorkers builds the background workers that have a provider to run on.
func (a *App) initWorkers() {
	if a.providers.Technical != nil {
		a.stripper = stripper.New(stripper.Config{
			Turns:       a.data.Turns,
			LLM:         a.providers.Technical,
			Interval:    a.cfg.Workers.StripInterval,
			BatchSize:   a.cfg.Workers.StripBatchSize,
			Concurrency: a.cfg.Workers.StripConcurrency,
			Metrics:     a.metrics,
			Logger:      a.logger,
		})
	}
	if a.providers.Embeddings != nil {
		a.indexer = semantic.NewIndexer(a.data.Items, a.data.Chunks, a.providers.Embeddings, a.logger)
	}
}

// initAdmin builds the admin HTTP server (metrics and health probes) when a
// listen address is configured.
func (a *App) initAdmin() {
	if a.cfg.Server.ListenAddr == "" {
		return
	}

	checkers := []health.Checker{}
	if a.db != nil {
		checkers = append(checkers, health.Checker{
			Name:  "database",
			Check: func(ctx context.Context) error { return a.db.Pool().Ping(ctx) },
		})
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(checkers...).Register(mux)

	a.admin = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the background workers and processes input lines as turns until
// ctx is cancelled or the input reaches EOF. Each non-blank line becomes one
// call to the pipeline; the accepted or diagnostic response is printed to the
// output writer.
func (a *App) Run(ctx context.Context) error {
	if a.stripper != nil {
		a.stripper.Start(ctx)
	}
	if a.indexer != nil {
		go a.indexLoop(ctx)
	}
	if a.admin != nil {
		go a.serveAdmin()
	}

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(a.in)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("app: read input: %w", err)
					}
				default:
				}
				return nil
			}
			a.handleLine(ctx, line)
		}
	}
}

// handleLine runs one turn and prints the outcome.
func (a *App) handleLine(ctx context.Context, line string) {
	input := strings.TrimSpace(line)
	if input == "" {
		return
	}
	turn, err := a.pipeline.ProcessTurn(ctx, input)
	if err != nil {
		a.logger.Error("turn failed", "error", err)
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(a.out, turn.Response)
}

// indexLoop re-embeds edited context items on a fixed cadence. The first pass
// runs immediately so items edited while the server was down are picked up.
func (a *App) indexLoop(ctx context.Context) {
	interval := a.cfg.Workers.IndexInterval
	if interval <= 0 {
		interval = defaultIndexInterval
	}
	batch := a.cfg.Workers.IndexBatchSize
	if batch <= 0 {
		batch = defaultIndexBatch
	}

	run := func() {
		n, err := a.indexer.IndexPending(ctx, batch)
		if err != nil {
			a.logger.Warn("index pass failed", "error", err)
			return
		}
		if n > 0 {
			a.metrics.IndexedItems.Add(ctx, int64(n))
			a.logger.Info("indexed context items", "count", n)
		}

		removed, err := a.indexer.DeindexPending(ctx, batch)
		if err != nil {
			a.logger.Warn("deindex pass failed", "error", err)
			return
		}
		if removed > 0 {
			a.logger.Info("removed chunks of retired context items", "count", removed)
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// serveAdmin blocks on the admin listener until it is shut down.
func (a *App) serveAdmin() {
	var err error
	if tls := a.cfg.Server.TLS; tls != nil {
		err = a.admin.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
	} else {
		err = a.admin.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error("admin server error", "error", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the workers, closes the admin listener, and releases the
// database pool. Safe to call multiple times.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		if a.stripper != nil {
			a.stripper.Stop()
		}
		if a.admin != nil {
			if e := a.admin.Shutdown(ctx); e != nil {
				err = fmt.Errorf("app: admin shutdown: %w", e)
			}
		}
		if a.db != nil {
			a.db.Close()
		}
	})
	return err
}
