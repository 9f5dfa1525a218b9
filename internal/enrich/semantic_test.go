package enrich

import (
	"context"
	"testing"

	"github.com/mvanwyck/reverie/internal/contextsvc"
	"github.com/mvanwyck/reverie/internal/semantic"
	"github.com/mvanwyck/reverie/internal/store"
	"github.com/mvanwyck/reverie/internal/store/storemock"
	"github.com/mvanwyck/reverie/internal/vecstore"
	"github.com/mvanwyck/reverie/pkg/convo"
	embmock "github.com/mvanwyck/reverie/pkg/provider/embeddings/mock"
	"github.com/mvanwyck/reverie/pkg/provider/llm"
)

func completion(text string) *llm.CompletionResponse {
	return &llm.CompletionResponse{Content: text}
}

// fakeIndex serves canned results per collection.
type fakeIndex struct {
	results map[string][]vecstore.Result
}

func (f *fakeIndex) Search(ctx context.Context, collection string, embedding []float32, k int, profileID int64, opts vecstore.SearchOptions) ([]vecstore.Result, error) {
	out := f.results[collection]
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func TestSemanticEnricher(t *testing.T) {
	t.Parallel()

	st := storemock.New()
	st.Items = []convo.ContextData{
		{ID: 1, ProfileID: 5, Type: convo.TypeMemory,
			Availability: convo.AvailabilitySemantic, Content: "the harbor", IsEnabled: true},
		{ID: 2, ProfileID: 5, Type: convo.TypeMemory,
			Availability: convo.AvailabilitySemantic, Content: "the storm", IsEnabled: true},
	}

	index := &fakeIndex{results: map[string][]vecstore.Result{
		vecstore.CollectionMemories: {
			{Chunk: vecstore.Chunk{ItemID: 2}, Score: 0.9},
			{Chunk: vecstore.Chunk{ItemID: 1}, Score: 0.5},
		},
	}}
	embedder := &embmock.Provider{EmbedResult: []float32{0.1, 0.2}}
	searcher := semantic.NewSearcher(index, embedder, nil, nil)

	e := NewSemanticEnricher(searcher, contextsvc.New(st), store.NewSettings(st))
	state := newTestState("Tell me about the storm.")
	if err := e.Enrich(context.Background(), state); err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}

	memories := state.Items(convo.TypeMemory)
	if len(memories) != 2 {
		t.Fatalf("memories = %+v, want 2", memories)
	}
	for _, m := range memories {
		want := map[int64]float64{1: 0.5, 2: 0.9}[m.ID]
		if m.ProcessWeight != want {
			t.Errorf("item %d ProcessWeight = %v, want %v", m.ID, m.ProcessWeight, want)
		}
	}
}

func TestSemanticEnricherSkipsArchivedHits(t *testing.T) {
	t.Parallel()

	// Chunks outlive item edits, so the index can still return hits for items
	// that were archived or disabled after indexing. Those must not resurface.
	st := storemock.New()
	st.Items = []convo.ContextData{
		{ID: 1, ProfileID: 5, Type: convo.TypeMemory,
			Availability: convo.AvailabilityArchive, Content: "buried",
			IsEnabled: false, IsArchived: true},
		{ID: 2, ProfileID: 5, Type: convo.TypeMemory,
			Availability: convo.AvailabilitySemantic, Content: "live",
			IsEnabled: true},
	}

	index := &fakeIndex{results: map[string][]vecstore.Result{
		vecstore.CollectionMemories: {
			{Chunk: vecstore.Chunk{ItemID: 1}, Score: 0.95},
			{Chunk: vecstore.Chunk{ItemID: 2}, Score: 0.4},
		},
	}}
	searcher := semantic.NewSearcher(index, &embmock.Provider{EmbedResult: []float32{1}}, nil, nil)

	e := NewSemanticEnricher(searcher, contextsvc.New(st), store.NewSettings(st))
	state := newTestState("what lies buried?")
	if err := e.Enrich(context.Background(), state); err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}

	memories := state.Items(convo.TypeMemory)
	if len(memories) != 1 || memories[0].ID != 2 {
		t.Fatalf("memories = %+v, want the live item only", memories)
	}
}

func TestSemanticEnricherBlankInput(t *testing.T) {
	t.Parallel()

	embedder := &embmock.Provider{}
	searcher := semantic.NewSearcher(&fakeIndex{}, embedder, nil, nil)
	e := NewSemanticEnricher(searcher, contextsvc.New(storemock.New()), store.NewSettings(storemock.New()))

	state := newTestState("   ")
	if err := e.Enrich(context.Background(), state); err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}
	if len(embedder.EmbedCalls) != 0 {
		t.Error("blank input must not be embedded")
	}
}

func TestSemanticEnricherQuota(t *testing.T) {
	t.Parallel()

	st := storemock.New()
	st.Settings[store.SemanticQuotaKey(convo.TypeMemory)] = "1"
	st.Items = []convo.ContextData{
		{ID: 1, ProfileID: 5, Type: convo.TypeMemory,
			Availability: convo.AvailabilitySemantic, IsEnabled: true},
		{ID: 2, ProfileID: 5, Type: convo.TypeMemory,
			Availability: convo.AvailabilitySemantic, IsEnabled: true},
	}

	index := &fakeIndex{results: map[string][]vecstore.Result{
		vecstore.CollectionMemories: {
			{Chunk: vecstore.Chunk{ItemID: 2}, Score: 0.9},
			{Chunk: vecstore.Chunk{ItemID: 1}, Score: 0.5},
		},
	}}
	searcher := semantic.NewSearcher(index, &embmock.Provider{EmbedResult: []float32{1}}, nil, nil)

	e := NewSemanticEnricher(searcher, contextsvc.New(st), store.NewSettings(st))
	state := newTestState("storm")
	if err := e.Enrich(context.Background(), state); err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}

	memories := state.Items(convo.TypeMemory)
	if len(memories) != 1 || memories[0].ID != 2 {
		t.Errorf("memories = %+v, want best-scoring item 2 only", memories)
	}
}
