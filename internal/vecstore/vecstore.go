// Package vecstore is the semantic retrieval layer backed by a PostgreSQL
// chunks table with a pgvector HNSW index for fast approximate
// nearest-neighbour search.
//
// Context items are decomposed into one or more chunks by internal/semantic
// before indexing. Each chunk lives in a per-type collection so that searches
// for, say, memories never surface quotes.
package vecstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/mvanwyck/reverie/pkg/convo"
)

// Collections, one per semantically searchable data type.
const (
	CollectionQuotes       = "quotes"
	CollectionVoiceSamples = "voice_samples"
	CollectionMemories     = "memories"
	CollectionInsights     = "insights"
)

// CollectionFor returns the chunk collection for items of type t, or "" when
// the type is not semantically searchable.
func CollectionFor(t convo.DataType) string {
	switch t {
	case convo.TypeQuote:
		return CollectionQuotes
	case convo.TypePersonaVoiceSample:
		return CollectionVoiceSamples
	case convo.TypeMemory:
		return CollectionMemories
	case convo.TypeInsight:
		return CollectionInsights
	}
	return ""
}

// Chunk is one embeddable unit of a context item. A single item may produce
// several chunks (full content, semantic framing, relevance note) that all
// point back at the same ItemID.
type Chunk struct {
	// ID is a deterministic hash of the payload id, used as the primary key
	// so re-indexing an item replaces its previous chunks in place.
	ID        int64
	Collection string

	// PayloadID encodes "{type}#{itemID}#{kind}" for debuggability and
	// targeted deletes.
	PayloadID string

	ItemID          int64
	ProfileID       int64
	SourceSessionID int64
	Speaker         string
	TruthType       string
	Content         string
	Embedding       []float32
}

// Result is one search hit. Score is cosine similarity in [0, 1], higher is
// closer.
type Result struct {
	Chunk    Chunk
	Score    float64
}

// Store provides chunk indexing and nearest-neighbour search over the shared
// connection pool. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a chunk store over pool. The pool must have pgvector type
// support registered (internal/store does this on connect).
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Index upserts chunks. A chunk whose ID already exists is replaced
// completely, so re-indexing an edited item needs no separate delete.
func (s *Store) Index(ctx context.Context, chunks []Chunk) error {
	const q = `
		INSERT INTO context_chunks
		    (id, collection, payload_id, item_id, profile_id, source_session_id,
		     speaker, truth_type, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
		    collection        = EXCLUDED.collection,
		    payload_id        = EXCLUDED.payload_id,
		    item_id           = EXCLUDED.item_id,
		    profile_id        = EXCLUDED.profile_id,
		    source_session_id = EXCLUDED.source_session_id,
		    speaker           = EXCLUDED.speaker,
		    truth_type        = EXCLUDED.truth_type,
		    content           = EXCLUDED.content,
		    embedding         = EXCLUDED.embedding`

	for _, c := range chunks {
		_, err := s.pool.Exec(ctx, q,
			c.ID, c.Collection, c.PayloadID, c.ItemID, c.ProfileID,
			c.SourceSessionID, c.Speaker, c.TruthType, c.Content,
			pgvector.NewVector(c.Embedding),
		)
		if err != nil {
			return fmt.Errorf("vecstore: index chunk %q: %w", c.PayloadID, err)
		}
	}
	return nil
}

// DeleteByItem removes every chunk of the given item from its collection.
func (s *Store) DeleteByItem(ctx context.Context, collection string, itemID int64) error {
	const q = `DELETE FROM context_chunks WHERE collection = $1 AND item_id = $2`

	if _, err := s.pool.Exec(ctx, q, collection, itemID); err != nil {
		return fmt.Errorf("vecstore: delete item %d from %s: %w", itemID, collection, err)
	}
	return nil
}

// SearchOptions tune a nearest-neighbour query.
type SearchOptions struct {
	// MMR enables maximal-marginal-relevance re-ranking: a candidate pool of
	// PoolFactor*k hits is fetched and re-ranked to balance query relevance
	// against mutual diversity.
	MMR bool

	// Lambda is the MMR relevance weight; 1 is pure relevance, 0 is pure
	// diversity. Zero means the default of 0.7.
	Lambda float64

	// PoolFactor is the candidate-pool multiplier. Zero means the default
	// of 10.
	PoolFactor int
}

const (
	defaultMMRLambda     = 0.7
	defaultMMRPoolFactor = 10
)

// Search returns the k chunks in collection closest to embedding by cosine
// distance, restricted to the profile's scope (the profile itself plus
// global items). Results are ordered by descending score.
func (s *Store) Search(ctx context.Context, collection string, embedding []float32, k int, profileID int64, opts SearchOptions) ([]Result, error) {
	if k <= 0 {
		return []Result{}, nil
	}

	limit := k
	if opts.MMR {
		factor := opts.PoolFactor
		if factor <= 0 {
			factor = defaultMMRPoolFactor
		}
		limit = k * factor
	}

	const q = `
		SELECT id, collection, payload_id, item_id, profile_id, source_session_id,
		       speaker, truth_type, content, embedding,
		       embedding <=> $1 AS distance
		FROM   context_chunks
		WHERE  collection = $2
		  AND  (profile_id = $3 OR profile_id = 0)
		ORDER  BY distance
		LIMIT  $4`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), collection, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("vecstore: search %s: %w", collection, err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Result, error) {
		var (
			r        Result
			vec      pgvector.Vector
			distance float64
		)
		if err := row.Scan(
			&r.Chunk.ID, &r.Chunk.Collection, &r.Chunk.PayloadID,
			&r.Chunk.ItemID, &r.Chunk.ProfileID, &r.Chunk.SourceSessionID,
			&r.Chunk.Speaker, &r.Chunk.TruthType, &r.Chunk.Content,
			&vec, &distance,
		); err != nil {
			return Result{}, err
		}
		r.Chunk.Embedding = vec.Slice()
		r.Score = 1 - distance
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("vecstore: search %s: scan rows: %w", collection, err)
	}
	if results == nil {
		results = []Result{}
	}

	if opts.MMR && len(results) > 0 {
		lambda := opts.Lambda
		if lambda == 0 {
			lambda = defaultMMRLambda
		}
		results = rerankMMR(results, k, lambda)
	} else if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
