package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mvanwyck/reverie/pkg/provider/embeddings/ollama"
)

// fakeServer serves /api/embed, answering each input with the next vector
// from vecs, and counts requests.
func fakeServer(t *testing.T, model string, vecs [][]float32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/api/embed" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}

		var req struct {
			Model string `json:"model"`
			Input any    `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if req.Model != model {
			t.Errorf("model = %q, want %q", req.Model, model)
		}

		n := 1
		if arr, ok := req.Input.([]any); ok {
			n = len(arr)
		}
		out := vecs
		if len(out) > n {
			out = out[:n]
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":      model,
			"embeddings": out,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := ollama.New("", ""); err == nil {
		t.Error("want error for empty model")
	}

	p, err := ollama.New("", "nomic-embed-text")
	if err != nil {
		t.Fatalf("New with default base URL: %v", err)
	}
	if p.ModelID() != "nomic-embed-text" {
		t.Errorf("ModelID() = %q", p.ModelID())
	}
}

func TestEmbed(t *testing.T) {
	t.Parallel()

	want := []float32{0.1, 0.2, 0.3, 0.4}
	srv, _ := fakeServer(t, "nomic-embed-text", [][]float32{want})

	p, err := ollama.New(srv.URL, "nomic-embed-text")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("vec[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEmbedBatch(t *testing.T) {
	t.Parallel()

	vecs := [][]float32{{0.1, 0.2}, {0.3, 0.4}, {0.5, 0.6}}
	srv, calls := fakeServer(t, "nomic-embed-text", vecs)

	p, err := ollama.New(srv.URL, "nomic-embed-text")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i := range vecs {
		for j := range vecs[i] {
			if got[i][j] != vecs[i][j] {
				t.Errorf("vec[%d][%d] = %v, want %v", i, j, got[i][j], vecs[i][j])
			}
		}
	}
	if calls.Load() != 1 {
		t.Errorf("requests = %d, want 1 batch call", calls.Load())
	}

	// Empty input short-circuits without touching the server.
	before := calls.Load()
	if out, err := p.EmbedBatch(context.Background(), nil); err != nil || out != nil {
		t.Errorf("EmbedBatch(nil) = (%v, %v), want (nil, nil)", out, err)
	}
	if calls.Load() != before {
		t.Error("empty batch issued a request")
	}
}

func TestDimensions(t *testing.T) {
	t.Parallel()

	// Known models resolve without any request.
	known := []struct {
		model string
		want  int
	}{
		{"nomic-embed-text", 768},
		{"nomic-embed-text:latest", 768},
		{"mxbai-embed-large", 1024},
		{"all-minilm", 384},
	}
	for _, tc := range known {
		p, err := ollama.New("http://127.0.0.1:1", tc.model)
		if err != nil {
			t.Fatalf("New(%s): %v", tc.model, err)
		}
		if got := p.Dimensions(); got != tc.want {
			t.Errorf("Dimensions(%s) = %d, want %d", tc.model, got, tc.want)
		}
	}

	// WithDimensions overrides everything.
	p, err := ollama.New("http://127.0.0.1:1", "custom-model", ollama.WithDimensions(256))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := p.Dimensions(); got != 256 {
		t.Errorf("Dimensions() = %d, want 256", got)
	}
}

func TestDimensions_ProbesUnknownModelOnce(t *testing.T) {
	t.Parallel()

	vec := make([]float32, 512)
	srv, calls := fakeServer(t, "custom-embed", [][]float32{vec})

	p, err := ollama.New(srv.URL, "custom-embed")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 3; i++ {
		if got := p.Dimensions(); got != 512 {
			t.Errorf("call %d: Dimensions() = %d, want 512", i, got)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("probe requests = %d, want 1", calls.Load())
	}
}

func TestEmbed_Errors(t *testing.T) {
	t.Parallel()

	t.Run("server down", func(t *testing.T) {
		t.Parallel()
		p, err := ollama.New("http://127.0.0.1:1", "nomic-embed-text",
			ollama.WithTimeout(500*time.Millisecond))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if _, err := p.Embed(context.Background(), "hello"); err == nil {
			t.Fatal("want error for unreachable server")
		}
	})

	t.Run("server error status", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
		}))
		t.Cleanup(srv.Close)

		p, err := ollama.New(srv.URL, "missing-model")
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if _, err := p.Embed(context.Background(), "hello"); err == nil {
			t.Fatal("want error for 404 response")
		}
	})

	t.Run("context cancelled", func(t *testing.T) {
		t.Parallel()
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-release:
			}
		}))
		t.Cleanup(srv.Close)
		t.Cleanup(func() { close(release) })

		p, err := ollama.New(srv.URL, "nomic-embed-text")
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		if _, err := p.Embed(ctx, "hello"); err == nil {
			t.Fatal("want error after context deadline")
		}
	})
}
