// Package mock provides an in-memory test double for [embeddings.Provider].
// Responses are configured through exported fields and every call is
// recorded, so tests can both stub vectors and assert what was embedded.
package mock

import (
	"context"
	"sync"

	"github.com/mvanwyck/reverie/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// EmbedCall records one Embed invocation.
type EmbedCall struct {
	Ctx  context.Context
	Text string
}

// EmbedBatchCall records one EmbedBatch invocation; Texts is a copy.
type EmbedBatchCall struct {
	Ctx   context.Context
	Texts []string
}

// Provider is a configurable fake embeddings backend. The zero value is
// usable; all methods are safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// Canned responses. When EmbedBatchResult is nil, EmbedBatch answers
	// with one nil vector per input so callers see the right length.
	EmbedResult      []float32
	EmbedErr         error
	EmbedBatchResult [][]float32
	EmbedBatchErr    error
	DimensionsValue  int
	ModelIDValue     string

	// Recorded calls, in order.
	EmbedCalls      []EmbedCall
	EmbedBatchCalls []EmbedBatchCall
}

// Embed implements [embeddings.Provider].
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Ctx: ctx, Text: text})
	return p.EmbedResult, p.EmbedErr
}

// EmbedBatch implements [embeddings.Provider].
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, EmbedBatchCall{
		Ctx:   ctx,
		Texts: append([]string(nil), texts...),
	})
	if p.EmbedBatchErr != nil {
		return nil, p.EmbedBatchErr
	}
	if p.EmbedBatchResult != nil {
		return p.EmbedBatchResult, nil
	}
	return make([][]float32, len(texts)), nil
}

// Dimensions implements [embeddings.Provider].
func (p *Provider) Dimensions() int {
	return p.DimensionsValue
}

// ModelID implements [embeddings.Provider].
func (p *Provider) ModelID() string {
	return p.ModelIDValue
}
