package semantic

import (
	"testing"

	"github.com/mvanwyck/reverie/internal/vecstore"
	"github.com/mvanwyck/reverie/pkg/convo"
)

func TestChunkItemFullOnly(t *testing.T) {
	t.Parallel()

	item := &convo.ContextData{
		ID:      7,
		Type:    convo.TypeMemory,
		Content: "The bridge collapsed in winter.",
	}
	chunks := ChunkItem(item)
	if len(chunks) != 1 {
		t.Fatalf("ChunkItem() = %d chunks, want 1", len(chunks))
	}
	c := chunks[0]
	if c.Collection != vecstore.CollectionMemories {
		t.Errorf("collection = %q, want %q", c.Collection, vecstore.CollectionMemories)
	}
	if c.PayloadID != "memory#7#full" {
		t.Errorf("payload id = %q, want memory#7#full", c.PayloadID)
	}
	if c.ItemID != 7 {
		t.Errorf("item id = %d, want 7", c.ItemID)
	}
	if c.Content != "The bridge collapsed in winter." {
		t.Errorf("content = %q", c.Content)
	}
}

func TestChunkItemWithTagsAndRelevance(t *testing.T) {
	t.Parallel()

	item := &convo.ContextData{
		ID:        3,
		Type:      convo.TypeInsight,
		Name:      "Bridges",
		Content:   "Avoids crossing rivers.",
		Tags:      []string{"fear", "travel"},
		Relevance: "Explains route choices",
	}
	chunks := ChunkItem(item)
	if len(chunks) != 3 {
		t.Fatalf("ChunkItem() = %d chunks, want 3", len(chunks))
	}
	if chunks[0].PayloadID != "insight#3#full" {
		t.Errorf("chunk 0 payload = %q", chunks[0].PayloadID)
	}
	if chunks[1].PayloadID != "insight#3#semantic" {
		t.Errorf("chunk 1 payload = %q", chunks[1].PayloadID)
	}
	if chunks[2].PayloadID != "insight#3#relevance" {
		t.Errorf("chunk 2 payload = %q", chunks[2].PayloadID)
	}

	if got, want := chunks[1].Content, "fear, travel: Bridges: Avoids crossing rivers."; got != want {
		t.Errorf("semantic chunk content = %q, want %q", got, want)
	}
	if got, want := chunks[2].Content, "Explains route choices: Bridges: Avoids crossing rivers."; got != want {
		t.Errorf("relevance chunk content = %q, want %q", got, want)
	}
}

func TestChunkItemSpeakerAttribution(t *testing.T) {
	t.Parallel()

	item := &convo.ContextData{
		ID:      4,
		Type:    convo.TypeQuote,
		Content: "Never again.",
		Speaker: "Mara",
	}
	chunks := ChunkItem(item)
	if got, want := chunks[0].Content, "Never again. (Mara)"; got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

func TestChunkItemUnsearchableType(t *testing.T) {
	t.Parallel()

	item := &convo.ContextData{ID: 1, Type: convo.TypeGeneric, Content: "x"}
	if chunks := ChunkItem(item); chunks != nil {
		t.Errorf("ChunkItem() for generic type = %d chunks, want none", len(chunks))
	}
}

func TestChunkIDDeterministic(t *testing.T) {
	t.Parallel()

	a := ChunkID("same text")
	b := ChunkID("same text")
	if a != b {
		t.Errorf("ChunkID() not deterministic: %d vs %d", a, b)
	}
	if a == ChunkID("different text") {
		t.Error("ChunkID() collided on different inputs")
	}
	if a < 0 {
		t.Errorf("ChunkID() = %d, want non-negative 32-bit value", a)
	}
}
