// Package embeddings abstracts the text-embedding backends used for semantic
// retrieval.
//
// Context items are chunked, embedded through a Provider, and stored in the
// vector index; per-turn queries go through the same provider so query and
// chunk vectors live in one space. Implementations wrap a remote API or a
// local model server and must be safe for concurrent use.
package embeddings

import "context"

// Provider turns text into dense float32 vectors.
//
// Every vector a single Provider returns has the same length (Dimensions).
// Vectors from different providers, or from the same provider configured with
// a different model, are not comparable; swapping the embedding model
// requires re-indexing the chunk store.
type Provider interface {
	// Embed returns the vector for one text. Text is passed to the backend
	// verbatim; any model-specific prefixing is the caller's job.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in one backend call, result[i] matching
	// texts[i]. It fails as a whole: on error no partial vectors are
	// returned. Batch is the path the indexer and the multi-query searcher
	// use, so implementations should map it to the backend's native batch
	// endpoint rather than looping over Embed.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the fixed vector length this provider produces.
	Dimensions() int

	// ModelID names the underlying embedding model, mainly for logs.
	ModelID() string
}
