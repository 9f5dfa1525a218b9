package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/mvanwyck/reverie/internal/observe"
	"github.com/mvanwyck/reverie/internal/vecstore"
	"github.com/mvanwyck/reverie/pkg/convo"
	"github.com/mvanwyck/reverie/pkg/provider/embeddings"
	"github.com/mvanwyck/reverie/pkg/provider/llm"
)

// reformulatePrompt instructs the technical LLM to rewrite the user's message
// into six retrieval queries along fixed axes. The response must be a JSON
// array of six strings.
const reformulatePrompt = `You rewrite a message into six alternative search queries for retrieving related memories. Produce exactly six rewrites, one per axis:
1. A first-person self-reflective rephrasing of the message.
2. A second self-reflective rephrasing focused on the feelings involved.
3. A third-person observational description of what is happening.
4. A short narrative retelling of the moment.
5. A fragment of dialogue someone might say in this situation.
6. A metaphorical restatement of the message.
Respond with a JSON array of six strings and nothing else.`

// ChunkIndex is the nearest-neighbour search surface of the chunk store.
type ChunkIndex interface {
	Search(ctx context.Context, collection string, embedding []float32, k int, profileID int64, opts vecstore.SearchOptions) ([]vecstore.Result, error)
}

// Query is an embedded retrieval query ready to run against collections.
type Query struct {
	Text      string
	Embedding []float32
}

// Hit is a deduplicated per-item search result.
type Hit struct {
	ItemID int64
	Score  float64
}

// Searcher answers semantic retrieval queries. The LLM provider is only used
// for the multi-query path and may be nil when query transformation is
// disabled.
type Searcher struct {
	index    ChunkIndex
	embedder embeddings.Provider
	llm      llm.Provider
	logger   *slog.Logger
}

// NewSearcher creates a searcher over the given chunk index and embedder.
func NewSearcher(index ChunkIndex, embedder embeddings.Provider, technical llm.Provider, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{index: index, embedder: embedder, llm: technical, logger: logger}
}

// PrepareQueries turns the raw input into embedded queries, once per turn.
//
// When multi is false (or no technical LLM is configured) the result is a
// single query embedding the input verbatim. When multi is true the input is
// reformulated into six query variants via the LLM and all six are embedded
// in one batch. Any LLM or parse failure falls back to the single-query path.
func (s *Searcher) PrepareQueries(ctx context.Context, input string, multi bool) ([]Query, error) {
	if multi && s.llm != nil {
		queries, err := s.reformulate(ctx, input)
		if err != nil {
			s.logger.Warn("query reformulation failed, falling back to single query", "error", err)
		} else {
			embedded, err := s.embedAll(ctx, queries)
			if err != nil {
				return nil, err
			}
			return embedded, nil
		}
	}

	vec, err := s.embedder.Embed(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("semantic: embed query: %w", err)
	}
	return []Query{{Text: input, Embedding: vec}}, nil
}

// SearchType runs every query against the collection of type t and returns at
// most limit hits, deduplicated by item id keeping the best score. Hits are
// ordered by descending score, then ascending item id for determinism.
func (s *Searcher) SearchType(ctx context.Context, t convo.DataType, queries []Query, limit int, profileID int64) ([]Hit, error) {
	collection := vecstore.CollectionFor(t)
	if collection == "" {
		return nil, fmt.Errorf("semantic: type %q is not searchable", t)
	}
	if limit <= 0 || len(queries) == 0 {
		return []Hit{}, nil
	}

	start := time.Now()
	defer func() {
		observe.DefaultMetrics().SemanticSearchDuration.Record(ctx,
			time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("collection", collection)))
	}()

	best := map[int64]float64{}
	for _, q := range queries {
		results, err := s.index.Search(ctx, collection, q.Embedding, limit, profileID,
			vecstore.SearchOptions{MMR: true})
		if err != nil {
			return nil, fmt.Errorf("semantic: search %s: %w", collection, err)
		}
		for _, r := range results {
			if r.Score > best[r.Chunk.ItemID] {
				best[r.Chunk.ItemID] = r.Score
			}
		}
	}

	hits := make([]Hit, 0, len(best))
	for id, score := range best {
		hits = append(hits, Hit{ItemID: id, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ItemID < hits[j].ItemID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// reformulate asks the technical LLM for the six query variants.
func (s *Searcher) reformulate(ctx context.Context, input string) ([]string, error) {
	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: reformulatePrompt,
		Messages:     []llm.Message{{Role: "user", Content: input}},
		Temperature:  0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: reformulate: %w", err)
	}

	var queries []string
	if err := ExtractJSONArray(resp.Content, &queries); err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("semantic: reformulation returned no queries")
	}
	return queries, nil
}

// embedAll embeds the query texts in a single batch.
func (s *Searcher) embedAll(ctx context.Context, texts []string) ([]Query, error) {
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("semantic: embed queries: %w", err)
	}
	queries := make([]Query, len(texts))
	for i, text := range texts {
		queries[i] = Query{Text: text, Embedding: vectors[i]}
	}
	return queries, nil
}
