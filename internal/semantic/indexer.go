package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mvanwyck/reverie/internal/store"
	"github.com/mvanwyck/reverie/internal/vecstore"
	"github.com/mvanwyck/reverie/pkg/convo"
	"github.com/mvanwyck/reverie/pkg/provider/embeddings"
)

// ChunkWriter is the write surface of the chunk store used by the indexer.
type ChunkWriter interface {
	Index(ctx context.Context, chunks []vecstore.Chunk) error
	DeleteByItem(ctx context.Context, collection string, itemID int64) error
}

// Indexer keeps the chunk store in sync with edited, archived, and re-enabled
// context items. It is run opportunistically (on start and between turns);
// failed items are retried on the next pass because their embedding state is
// only advanced on success.
type Indexer struct {
	items    store.ContextDataStore
	chunks   ChunkWriter
	embedder embeddings.Provider
	logger   *slog.Logger
}

// NewIndexer creates an indexer over the given stores and embedder.
func NewIndexer(items store.ContextDataStore, chunks ChunkWriter, embedder embeddings.Provider, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{items: items, chunks: chunks, embedder: embedder, logger: logger}
}

// IndexPending indexes up to limit stale items and returns how many were
// processed. Per-item failures are logged and skipped so one bad item cannot
// wedge the queue.
func (ix *Indexer) IndexPending(ctx context.Context, limit int) (int, error) {
	items, err := ix.items.NeedsEmbedding(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("semantic: pending items: %w", err)
	}

	indexed := 0
	for i := range items {
		if err := ix.IndexItem(ctx, &items[i]); err != nil {
			ix.logger.Warn("indexing item failed",
				"item_id", items[i].ID,
				"type", items[i].Type,
				"error", err)
			continue
		}
		indexed++
	}
	return indexed, nil
}

// DeindexPending removes the chunks of up to limit items that are no longer
// retrievable — disabled, archived, or moved to archive availability — and
// returns how many were cleaned up. Without this sweep, stale chunks would
// keep resolving to items the retrieval path must never surface.
func (ix *Indexer) DeindexPending(ctx context.Context, limit int) (int, error) {
	items, err := ix.items.NeedsDeindex(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("semantic: deindex candidates: %w", err)
	}

	removed := 0
	for i := range items {
		if err := ix.Deindex(ctx, &items[i]); err != nil {
			ix.logger.Warn("deindexing item failed",
				"item_id", items[i].ID,
				"type", items[i].Type,
				"error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Deindex deletes every chunk of the item from its collection, keyed by the
// item id carried in the chunk payload, and clears the item's embedding state.
func (ix *Indexer) Deindex(ctx context.Context, item *convo.ContextData) error {
	collection := vecstore.CollectionFor(item.Type)
	if collection == "" {
		return fmt.Errorf("semantic: type %q is not indexable", item.Type)
	}
	if err := ix.chunks.DeleteByItem(ctx, collection, item.ID); err != nil {
		return err
	}
	if err := ix.items.ClearEmbeddingState(ctx, item.ID); err != nil {
		return fmt.Errorf("semantic: clear embedding state %d: %w", item.ID, err)
	}
	return nil
}

// IndexItem re-indexes a single item: its previous chunks are removed, the
// new chunk set is embedded in one batch and upserted, and the item's
// embedding state is advanced.
func (ix *Indexer) IndexItem(ctx context.Context, item *convo.ContextData) error {
	chunks := ChunkItem(item)
	if len(chunks) == 0 {
		return fmt.Errorf("semantic: type %q is not indexable", item.Type)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("semantic: embed item %d: %w", item.ID, err)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	// Edits can shrink the chunk set (tags or relevance removed), so stale
	// chunks have to go before the upsert.
	if err := ix.chunks.DeleteByItem(ctx, chunks[0].Collection, item.ID); err != nil {
		return err
	}
	if err := ix.chunks.Index(ctx, chunks); err != nil {
		return err
	}

	if err := ix.items.SetEmbeddingState(ctx, item.ID, chunks[0].ID, time.Now()); err != nil {
		return fmt.Errorf("semantic: record embedding state %d: %w", item.ID, err)
	}
	return nil
}
