package vecstore

import (
	"math"
	"testing"
)

func result(payloadID string, score float64, embedding []float32) Result {
	return Result{
		Chunk: Chunk{PayloadID: payloadID, Embedding: embedding},
		Score: score,
	}
}

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"empty", nil, nil, 0},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := cosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("cosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRerankMMRPrefersDiversity(t *testing.T) {
	t.Parallel()

	// Two near-duplicate top hits plus one distinct hit. Pure relevance would
	// pick the two duplicates; MMR should swap the second duplicate for the
	// distinct candidate.
	candidates := []Result{
		result("memory#1#full", 0.95, []float32{1, 0, 0}),
		result("memory#2#full", 0.94, []float32{0.999, 0.01, 0}),
		result("memory#3#full", 0.80, []float32{0, 1, 0}),
	}

	got := rerankMMR(candidates, 2, 0.5)
	if len(got) != 2 {
		t.Fatalf("rerankMMR() returned %d results, want 2", len(got))
	}
	if got[0].Chunk.PayloadID != "memory#1#full" {
		t.Errorf("first pick = %q, want top-scored candidate", got[0].Chunk.PayloadID)
	}
	if got[1].Chunk.PayloadID != "memory#3#full" {
		t.Errorf("second pick = %q, want the diverse candidate", got[1].Chunk.PayloadID)
	}
}

func TestRerankMMRHighLambdaKeepsRelevanceOrder(t *testing.T) {
	t.Parallel()

	candidates := []Result{
		result("memory#1#full", 0.95, []float32{1, 0, 0}),
		result("memory#2#full", 0.94, []float32{0.999, 0.01, 0}),
		result("memory#3#full", 0.50, []float32{0, 1, 0}),
	}

	got := rerankMMR(candidates, 2, 0.99)
	if got[1].Chunk.PayloadID != "memory#2#full" {
		t.Errorf("second pick = %q, want relevance order at lambda near 1", got[1].Chunk.PayloadID)
	}
}

func TestRerankMMRTruncatesToK(t *testing.T) {
	t.Parallel()

	candidates := []Result{
		result("a", 0.9, []float32{1, 0}),
		result("b", 0.8, []float32{0, 1}),
	}
	if got := rerankMMR(candidates, 5, 0.7); len(got) != 2 {
		t.Errorf("rerankMMR() with k > len = %d results, want 2", len(got))
	}
	if got := rerankMMR(candidates, 1, 0.7); len(got) != 1 {
		t.Errorf("rerankMMR() with k=1 = %d results, want 1", len(got))
	}
	if got := rerankMMR(nil, 3, 0.7); len(got) != 0 {
		t.Errorf("rerankMMR() with no candidates = %d results, want 0", len(got))
	}
}
