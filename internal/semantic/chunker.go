// Package semantic glues the embedding provider, the chunk store, and the
// technical LLM together: it decomposes context items into embeddable chunks,
// indexes them, and answers retrieval queries with optional LLM query
// reformulation.
package semantic

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/mvanwyck/reverie/internal/vecstore"
	"github.com/mvanwyck/reverie/pkg/convo"
)

// Chunk kinds. An item always produces a "full" chunk; "semantic" and
// "relevance" chunks are added when the item carries tags or a relevance note.
const (
	ChunkKindFull      = "full"
	ChunkKindSemantic  = "semantic"
	ChunkKindRelevance = "relevance"
)

// ChunkID derives the deterministic chunk primary key from its text using
// 32-bit FNV-1a. The hash must stay fixed: re-indexing identical text has to
// land on the same row.
func ChunkID(text string) int64 {
	h := fnv.New32a()
	h.Write([]byte(text))
	return int64(h.Sum32())
}

// PayloadID encodes the "{type}#{itemID}#{kind}" payload key carried by every
// chunk so that hits map back to their canonical item.
func PayloadID(t convo.DataType, itemID int64, kind string) string {
	return fmt.Sprintf("%s#%d#%s", t, itemID, kind)
}

// ChunkItem decomposes a context item into one to three chunks, without
// embeddings. The caller embeds the chunk contents in a batch and fills in
// Embedding before indexing.
func ChunkItem(item *convo.ContextData) []vecstore.Chunk {
	collection := vecstore.CollectionFor(item.Type)
	if collection == "" {
		return nil
	}

	base := vecstore.Chunk{
		Collection:      collection,
		ItemID:          item.ID,
		ProfileID:       item.ProfileID,
		SourceSessionID: item.SourceSessionID,
		Speaker:         item.Speaker,
		TruthType:       string(item.Type),
	}

	full := formatContent(item)
	chunks := []vecstore.Chunk{chunkOf(base, item, ChunkKindFull, full)}

	if len(item.Tags) > 0 {
		tagged := strings.Join(item.Tags, ", ") + ": " + full
		chunks = append(chunks, chunkOf(base, item, ChunkKindSemantic, tagged))
	}
	if item.Relevance != "" {
		noted := item.Relevance + ": " + full
		chunks = append(chunks, chunkOf(base, item, ChunkKindRelevance, noted))
	}
	return chunks
}

func chunkOf(base vecstore.Chunk, item *convo.ContextData, kind, content string) vecstore.Chunk {
	c := base
	c.ID = ChunkID(content)
	c.PayloadID = PayloadID(item.Type, item.ID, kind)
	c.Content = content
	return c
}

// formatContent renders an item the way it would appear in a prompt: named
// and attributed where those fields are set.
func formatContent(item *convo.ContextData) string {
	var b strings.Builder
	if item.Name != "" {
		b.WriteString(item.Name)
		b.WriteString(": ")
	}
	b.WriteString(item.Content)
	if item.Speaker != "" {
		b.WriteString(" (")
		b.WriteString(item.Speaker)
		b.WriteString(")")
	}
	return b.String()
}
