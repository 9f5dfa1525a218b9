package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mvanwyck/reverie/internal/contextsvc"
	"github.com/mvanwyck/reverie/internal/store"
	"github.com/mvanwyck/reverie/pkg/convo"
)

// TriggerEnricher activates trigger-availability items whose keywords match
// the turn's scan corpus. Each candidate carries its own lookback depth, so a
// corpus is built lazily per distinct depth and shared by all candidates that
// use it.
type TriggerEnricher struct {
	svc      *contextsvc.Service
	turns    store.TurnStore
	settings *store.Settings
}

var _ Enricher = (*TriggerEnricher)(nil)

// NewTriggerEnricher creates the trigger enricher.
func NewTriggerEnricher(svc *contextsvc.Service, turns store.TurnStore, settings *store.Settings) *TriggerEnricher {
	return &TriggerEnricher{svc: svc, turns: turns, settings: settings}
}

func (e *TriggerEnricher) Name() string { return "triggers" }

func (e *TriggerEnricher) Enrich(ctx context.Context, st *State) error {
	candidates, err := e.svc.TriggerCandidates(ctx, st.Session.ProfileID)
	if err != nil {
		return fmt.Errorf("enrich: trigger candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}

	extra, err := e.extraScanText(ctx, st)
	if err != nil {
		return err
	}

	// Candidates sharing a lookback depth share one corpus.
	byDepth := map[int][]convo.ContextData{}
	for _, item := range candidates {
		depth := item.TriggerLookbackTurns
		if depth < 0 {
			depth = 0
		}
		byDepth[depth] = append(byDepth[depth], item)
	}

	var (
		activated []convo.ContextData
		newIDs    []int64
	)
	for depth, group := range byDepth {
		corpus, err := e.buildCorpus(ctx, st, depth, extra)
		if err != nil {
			return err
		}
		activated = append(activated, contextsvc.EvaluateTriggers(corpus, group)...)
	}

	// Only items this enricher actually introduced count as activations;
	// items already present via always-on or manual keep their counters.
	for _, item := range activated {
		if st.Insert(item) {
			newIDs = append(newIDs, item.ID)
		}
	}
	if len(newIDs) == 0 {
		return nil
	}
	if err := e.svc.RecordActivations(ctx, newIDs, time.Now()); err != nil {
		return fmt.Errorf("enrich: record trigger activations: %w", err)
	}
	return nil
}

// buildCorpus assembles the scan corpus for one lookback depth: the current
// input, the input and response of the last depth accepted turns, and any
// extra scan text.
func (e *TriggerEnricher) buildCorpus(ctx context.Context, st *State, depth int, extra string) (*contextsvc.ScanCorpus, error) {
	texts := []string{st.Input()}
	if depth > 0 {
		turns, err := e.turns.RecentAccepted(ctx, st.Session.ID, depth)
		if err != nil {
			return nil, fmt.Errorf("enrich: trigger lookback %d: %w", depth, err)
		}
		for _, t := range turns {
			texts = append(texts, t.Input, t.Response)
		}
	}
	if extra != "" {
		texts = append(texts, extra)
	}
	return contextsvc.NewScanCorpus(texts...), nil
}

// extraScanText returns the tail of the previous response that is appended to
// every corpus when TriggerScanTextAdditionalWords is set. Zero disables it.
func (e *TriggerEnricher) extraScanText(ctx context.Context, st *State) (string, error) {
	words, err := e.settings.Int(ctx, store.KeyTriggerScanTextAdditionalWords, 0)
	if err != nil {
		return "", fmt.Errorf("enrich: trigger scan setting: %w", err)
	}
	if words <= 0 {
		return "", nil
	}
	recent, err := e.turns.RecentAccepted(ctx, st.Session.ID, 1)
	if err != nil {
		return "", fmt.Errorf("enrich: trigger scan tail: %w", err)
	}
	if len(recent) == 0 {
		return "", nil
	}
	return lastWords(recent[len(recent)-1].Response, words), nil
}

// lastWords returns the final n whitespace-separated words of text.
func lastWords(text string, n int) string {
	fields := strings.Fields(text)
	if len(fields) > n {
		fields = fields[len(fields)-n:]
	}
	return strings.Join(fields, " ")
}
