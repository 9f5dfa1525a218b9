// Package stripper runs the background turn compression worker. Accepted
// turns that have a response but no stripped form yet are summarised via LLM
// technical calls and written back, out of the per-turn critical path. The
// dialogue-log enricher prefers the stripped form when rendering older
// history.
package stripper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mvanwyck/reverie/internal/observe"
	"github.com/mvanwyck/reverie/internal/store"
	"github.com/mvanwyck/reverie/pkg/convo"
	"github.com/mvanwyck/reverie/pkg/provider/llm"
)

// Defaults applied when the corresponding Config field is zero.
const (
	defaultInterval    = 2 * time.Minute
	defaultBatchSize   = 100
	defaultConcurrency = 20
)

// stripPrompt instructs the technical LLM to compress one exchange.
const stripPrompt = `Compress the following exchange into one or two short lines that preserve who did what and any facts worth remembering. Write in the third person, past tense. Respond with the compressed text and nothing else.`

// Stripper periodically compresses accepted turns. All methods are safe for
// concurrent use.
type Stripper struct {
	turns       store.TurnStore
	llm         llm.Provider
	interval    time.Duration
	batchSize   int
	concurrency int
	metrics     *observe.Metrics
	logger      *slog.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// Config configures a [Stripper].
type Config struct {
	// Turns is the turn store scanned for unstripped accepted turns.
	Turns store.TurnStore

	// LLM is the technical-call provider used for compression.
	LLM llm.Provider

	// Interval is how often to scan. Defaults to 2 minutes if zero.
	Interval time.Duration

	// BatchSize caps the turns processed per tick. Defaults to 100.
	BatchSize int

	// Concurrency bounds the in-flight LLM calls. Defaults to 20.
	Concurrency int

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// New creates a [Stripper] with the given configuration.
func New(cfg Config) *Stripper {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Stripper{
		turns:       cfg.Turns,
		llm:         cfg.LLM,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		done:        make(chan struct{}),
	}
}

// Start begins periodic stripping in a background goroutine. The goroutine
// runs until [Stripper.Stop] is called or ctx is cancelled.
func (s *Stripper) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop halts the strip loop. Safe to call multiple times.
func (s *Stripper) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

func (s *Stripper) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if _, err := s.StripNow(ctx); err != nil {
				s.logger.Warn("strip tick failed", "error", err)
			}
		}
	}
}

// StripNow processes one batch immediately and returns the number of turns
// stripped. A turn whose compression fails is logged and left for the next
// tick.
func (s *Stripper) StripNow(ctx context.Context) (int, error) {
	turns, err := s.turns.UnstrippedAccepted(ctx, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("stripper: list turns: %w", err)
	}
	if len(turns) == 0 {
		return 0, nil
	}

	var (
		mu      sync.Mutex
		written int
	)
	// Wait cancels the derived context on return; a fully successful batch
	// must not look like a cancelled one, so the caller's ctx decides.
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.concurrency)
	for _, turn := range turns {
		eg.Go(func() error {
			if err := s.strip(gctx, turn); err != nil {
				s.logger.Warn("turn strip failed", "turn_id", turn.ID, "error", err)
				return nil
			}
			mu.Lock()
			written++
			mu.Unlock()
			s.metrics.StrippedTurns.Add(ctx, 1)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return written, err
	}
	return written, ctx.Err()
}

// strip compresses one turn and writes the result back.
func (s *Stripper) strip(ctx context.Context, turn convo.Turn) error {
	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: stripPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: turn.Input + "\n" + turn.Response},
		},
	})
	if err != nil {
		return fmt.Errorf("stripper: compress turn %d: %w", turn.ID, err)
	}
	if resp == nil || resp.Content == "" {
		return fmt.Errorf("stripper: empty compression for turn %d", turn.ID)
	}
	if err := s.turns.SetStrippedTurn(ctx, turn.ID, resp.Content); err != nil {
		return fmt.Errorf("stripper: store stripped turn %d: %w", turn.ID, err)
	}
	return nil
}
