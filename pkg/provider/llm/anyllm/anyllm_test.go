package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/mvanwyck/reverie/pkg/provider/llm"
)

// ── New ──────────────────────────────────────────────────────────────────────

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider string
		model    string
		opts     []anyllmlib.Option
		wantErr  bool
	}{
		{name: "empty provider name", provider: "", model: "gpt-4o", wantErr: true},
		{name: "empty model", provider: "openai", model: "", wantErr: true},
		{name: "unsupported backend", provider: "fakecloud", model: "x",
			opts: []anyllmlib.Option{anyllmlib.WithAPIKey("dummy")}, wantErr: true},
		{name: "openai", provider: "openai", model: "gpt-4o-mini",
			opts: []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")}},
		{name: "anthropic", provider: "anthropic", model: "claude-3-5-haiku-latest",
			opts: []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}},
		{name: "case insensitive backend name", provider: "OLLAMA", model: "llama3"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, err := New(tc.provider, tc.model, tc.opts...)
			if tc.wantErr {
				if err == nil {
					t.Fatal("want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if p.model != tc.model {
				t.Errorf("model = %q, want %q", p.model, tc.model)
			}
		})
	}
}

// ── buildParams ──────────────────────────────────────────────────────────────

func TestBuildParams(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gpt-4o-mini"}

	t.Run("system prompt becomes leading system message", func(t *testing.T) {
		t.Parallel()
		params := p.buildParams(llm.CompletionRequest{
			SystemPrompt: "You are helpful.",
			Messages:     []llm.Message{{Role: "user", Content: "Hello!"}},
		})
		if len(params.Messages) != 2 {
			t.Fatalf("messages = %d, want 2", len(params.Messages))
		}
		if params.Messages[0].Role != anyllmlib.RoleSystem {
			t.Errorf("first role = %q, want system", params.Messages[0].Role)
		}
		if got := params.Messages[0].ContentString(); got != "You are helpful." {
			t.Errorf("system content = %q", got)
		}
		if params.Messages[1].Role != "user" {
			t.Errorf("second role = %q, want user", params.Messages[1].Role)
		}
	})

	t.Run("no system message without a prompt", func(t *testing.T) {
		t.Parallel()
		params := p.buildParams(llm.CompletionRequest{
			Messages: []llm.Message{{Role: "user", Content: "Hi", Name: "alice"}},
		})
		if len(params.Messages) != 1 {
			t.Fatalf("messages = %d, want 1", len(params.Messages))
		}
		if params.Messages[0].Name != "alice" {
			t.Errorf("name = %q, want alice", params.Messages[0].Name)
		}
	})

	t.Run("sampling knobs forwarded when set", func(t *testing.T) {
		t.Parallel()
		params := p.buildParams(llm.CompletionRequest{
			Messages:    []llm.Message{{Role: "user", Content: "Hi"}},
			Temperature: 0.3,
			MaxTokens:   256,
		})
		if params.Temperature == nil || *params.Temperature != 0.3 {
			t.Errorf("temperature = %v, want 0.3", params.Temperature)
		}
		if params.MaxTokens == nil || *params.MaxTokens != 256 {
			t.Errorf("max tokens = %v, want 256", params.MaxTokens)
		}
	})

	t.Run("zero knobs left unset for backend defaults", func(t *testing.T) {
		t.Parallel()
		params := p.buildParams(llm.CompletionRequest{
			Messages: []llm.Message{{Role: "user", Content: "Hi"}},
		})
		if params.Temperature != nil {
			t.Errorf("temperature = %v, want nil", *params.Temperature)
		}
		if params.MaxTokens != nil {
			t.Errorf("max tokens = %v, want nil", *params.MaxTokens)
		}
	})
}
