package openai

import (
	"testing"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
)

func inputOf(s string) oai.EmbeddingNewParamsInputUnion {
	return oai.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(s)}
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("empty api key rejected", func(t *testing.T) {
		t.Parallel()
		if _, err := New("", "text-embedding-3-small"); err == nil {
			t.Fatal("want error for empty API key")
		}
	})

	t.Run("empty model defaults", func(t *testing.T) {
		t.Parallel()
		p, err := New("sk-test", "")
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if p.ModelID() != DefaultModel {
			t.Errorf("ModelID = %q, want %q", p.ModelID(), DefaultModel)
		}
	})

	t.Run("options accepted", func(t *testing.T) {
		t.Parallel()
		_, err := New("sk-test", "text-embedding-3-small",
			WithBaseURL("https://proxy.internal/v1"),
			WithOrganization("org-123"),
			WithDimensions(768),
		)
		if err != nil {
			t.Fatalf("New with options: %v", err)
		}
	})
}

func TestDimensions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		model string
		dims  int
		want  int
	}{
		{name: "3-small", model: "text-embedding-3-small", want: 1536},
		{name: "3-large", model: "text-embedding-3-large", want: 3072},
		{name: "ada-002", model: "text-embedding-ada-002", want: 1536},
		{name: "unknown model gets default width", model: "future-model", want: 1536},
		{name: "configured width wins", model: "text-embedding-3-large", dims: 768, want: 768},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := &Provider{model: tc.model, dims: tc.dims}
			if got := p.Dimensions(); got != tc.want {
				t.Errorf("Dimensions() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestModelID(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "my-custom-embeddings-model"}
	if got := p.ModelID(); got != "my-custom-embeddings-model" {
		t.Errorf("ModelID() = %q", got)
	}
}

func TestNarrow(t *testing.T) {
	t.Parallel()
	in := []float64{1.0, 2.5, -0.5}
	out := narrow(in)
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range out {
		if out[i] != float32(in[i]) {
			t.Errorf("out[%d] = %v, want %v", i, out[i], float32(in[i]))
		}
	}
}

func TestParams_DimensionsOnlyWhenConfigured(t *testing.T) {
	t.Parallel()

	plain := (&Provider{model: "text-embedding-3-small"}).params(inputOf("hi"))
	if plain.Dimensions.Valid() {
		t.Error("dimensions set without WithDimensions")
	}

	sized := (&Provider{model: "text-embedding-3-small", dims: 768}).params(inputOf("hi"))
	if !sized.Dimensions.Valid() || sized.Dimensions.Value != 768 {
		t.Errorf("dimensions = %+v, want 768", sized.Dimensions)
	}
}
