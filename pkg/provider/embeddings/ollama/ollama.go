// Package ollama implements the embeddings provider over a local Ollama
// server, using the official client's /api/embed endpoint. Typical models are
// nomic-embed-text, mxbai-embed-large and all-minilm.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/mvanwyck/reverie/pkg/provider/embeddings"
)

// DefaultBaseURL is the address of a locally running Ollama server.
const DefaultBaseURL = "http://localhost:11434"

var _ embeddings.Provider = (*Provider)(nil)

// Provider embeds text through an Ollama server.
//
// The vector width is taken from WithDimensions when given, otherwise from a
// table of well-known models, otherwise detected once with a probe request on
// the first Dimensions call.
type Provider struct {
	client *api.Client
	model  string

	dims      int
	probeOnce sync.Once
}

// Option configures a [Provider].
type Option func(*Provider, *http.Client)

// WithTimeout bounds each embedding request.
func WithTimeout(d time.Duration) Option {
	return func(_ *Provider, hc *http.Client) { hc.Timeout = d }
}

// WithDimensions pre-sets the vector width, skipping both the model table and
// the probe request.
func WithDimensions(n int) Option {
	return func(p *Provider, _ *http.Client) { p.dims = n }
}

// New creates an Ollama embeddings provider. An empty baseURL selects
// [DefaultBaseURL]; model is required.
func New(baseURL string, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama embeddings: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: parse base url: %w", err)
	}

	p := &Provider{model: model}
	hc := &http.Client{}
	for _, o := range opts {
		o(p, hc)
	}
	if p.dims == 0 {
		p.dims = wellKnownWidth(model)
	}
	p.client = api.NewClient(u, hc)
	return p, nil
}

// Embed implements [embeddings.Provider]. Text goes to the server verbatim;
// model-specific prefixes like "query: " are the caller's job.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embed(ctx, &api.EmbedRequest{Model: p.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama embeddings: embed: empty response")
	}
	return resp.Embeddings[0], nil
}

// EmbedBatch implements [embeddings.Provider] with one /api/embed call for
// the whole batch. An empty input returns (nil, nil) without a request.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := p.client.Embed(ctx, &api.EmbedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed batch: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embeddings: embed batch: expected %d embeddings, got %d",
			len(texts), len(resp.Embeddings))
	}
	return resp.Embeddings, nil
}

// Dimensions implements [embeddings.Provider]. For a model that is neither
// configured nor in the table, a single probe embed resolves the width; the
// result is cached and 0 is returned while the server is unreachable.
func (p *Provider) Dimensions() int {
	if p.dims != 0 {
		return p.dims
	}
	p.probeOnce.Do(func() {
		resp, err := p.client.Embed(context.Background(), &api.EmbedRequest{
			Model: p.model,
			Input: "probe",
		})
		if err != nil || len(resp.Embeddings) == 0 {
			return
		}
		p.dims = len(resp.Embeddings[0])
	})
	return p.dims
}

// ModelID implements [embeddings.Provider].
func (p *Provider) ModelID() string {
	return p.model
}

// wellKnownWidth returns the output width of recognized embedding models, or
// 0 to trigger probing.
func wellKnownWidth(model string) int {
	name := strings.ToLower(model)
	switch {
	case strings.Contains(name, "nomic-embed-text"):
		return 768
	case strings.Contains(name, "mxbai-embed-large"):
		return 1024
	case strings.Contains(name, "all-minilm"):
		return 384
	}
	return 0
}
