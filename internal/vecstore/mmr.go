package vecstore

import "math"

// rerankMMR selects up to k results by maximal marginal relevance. Each step
// picks the candidate maximising
//
//	lambda*score - (1-lambda)*max(similarity to already selected)
//
// which trades raw query relevance against redundancy with what was already
// chosen. Candidates must arrive sorted by descending score.
func rerankMMR(candidates []Result, k int, lambda float64) []Result {
	if len(candidates) <= 1 || k <= 0 {
		if len(candidates) > k {
			return candidates[:k]
		}
		return candidates
	}

	selected := make([]Result, 0, k)
	remaining := append([]Result{}, candidates...)

	// Highest-scoring candidate always goes first.
	selected = append(selected, remaining[0])
	remaining = remaining[1:]

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := 0
		bestVal := math.Inf(-1)
		for i, cand := range remaining {
			redundancy := 0.0
			for _, sel := range selected {
				if sim := cosineSimilarity(cand.Chunk.Embedding, sel.Chunk.Embedding); sim > redundancy {
					redundancy = sim
				}
			}
			val := lambda*cand.Score - (1-lambda)*redundancy
			if val > bestVal {
				bestVal = val
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either vector is empty, zero, or the lengths differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
