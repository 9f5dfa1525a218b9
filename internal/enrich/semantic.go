package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/mvanwyck/reverie/internal/contextsvc"
	"github.com/mvanwyck/reverie/internal/semantic"
	"github.com/mvanwyck/reverie/internal/store"
	"github.com/mvanwyck/reverie/pkg/convo"
)

// semanticTypes are the collections queried per turn, in their fixed order.
var semanticTypes = []convo.DataType{
	convo.TypeQuote,
	convo.TypeMemory,
	convo.TypeInsight,
	convo.TypePersonaVoiceSample,
}

// SemanticEnricher retrieves context items by nearest-neighbour search over
// the chunk store. The query set is prepared once per turn and reused across
// all four collections.
type SemanticEnricher struct {
	searcher *semantic.Searcher
	svc      *contextsvc.Service
	settings *store.Settings
}

var _ Enricher = (*SemanticEnricher)(nil)

// NewSemanticEnricher creates the semantic retrieval enricher.
func NewSemanticEnricher(searcher *semantic.Searcher, svc *contextsvc.Service, settings *store.Settings) *SemanticEnricher {
	return &SemanticEnricher{searcher: searcher, svc: svc, settings: settings}
}

func (e *SemanticEnricher) Name() string { return "semantic" }

func (e *SemanticEnricher) Enrich(ctx context.Context, st *State) error {
	input := st.Input()
	if strings.TrimSpace(input) == "" {
		return nil
	}

	multi, err := e.settings.Bool(ctx, store.KeySemanticUseLLMQueryTransformation, false)
	if err != nil {
		return fmt.Errorf("enrich: semantic settings: %w", err)
	}
	queries, err := e.searcher.PrepareQueries(ctx, input, multi)
	if err != nil {
		return fmt.Errorf("enrich: prepare queries: %w", err)
	}

	for _, t := range semanticTypes {
		limit, err := e.settings.SemanticQuota(ctx, t)
		if err != nil {
			return fmt.Errorf("enrich: semantic quota %s: %w", t, err)
		}
		hits, err := e.searcher.SearchType(ctx, t, queries, limit, st.Session.ProfileID)
		if err != nil {
			return fmt.Errorf("enrich: semantic %s: %w", t, err)
		}
		if err := e.insertHits(ctx, st, hits); err != nil {
			return err
		}
	}
	return nil
}

// insertHits lifts hits to canonical store records, stamps each with its
// retrieval score, and inserts them preserving score order.
func (e *SemanticEnricher) insertHits(ctx context.Context, st *State, hits []semantic.Hit) error {
	if len(hits) == 0 {
		return nil
	}
	ids := make([]int64, len(hits))
	scores := make(map[int64]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ItemID
		scores[h.ItemID] = h.Score
	}

	items, err := e.svc.ByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("enrich: lift semantic hits: %w", err)
	}
	for _, item := range items {
		item.ProcessWeight = scores[item.ID]
		st.Insert(item)
	}
	return nil
}
