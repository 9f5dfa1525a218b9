package dispatch

import (
	"testing"

	"google.golang.org/genai"

	"github.com/mvanwyck/reverie/internal/reqbuild"
)

func TestGeminiParams(t *testing.T) {
	t.Parallel()

	req := &reqbuild.Request{
		Model:       "gemini-2.5-pro",
		System:      "You are Test.",
		MaxTokens:   2048,
		Temperature: 0.6,
		Messages: []reqbuild.Message{
			{Role: reqbuild.RoleUser, Content: "`[meta] memories`\n\nm", CacheHint: true},
			{Role: reqbuild.RoleAssistant, Content: "Received 1 relevant memories entries."},
			{Role: reqbuild.RoleUser, Content: "U: Hello"},
		},
	}

	contents, config, err := geminiParams(req, DefaultSafetySettings())
	if err != nil {
		t.Fatalf("geminiParams() error = %v", err)
	}

	if len(contents) != 3 {
		t.Fatalf("contents = %d, want 3", len(contents))
	}
	if contents[0].Role != genai.RoleUser || contents[1].Role != genai.RoleModel {
		t.Errorf("roles = %q, %q; want user then model", contents[0].Role, contents[1].Role)
	}
	// Cache hints have no Gemini equivalent; the message text passes through
	// unchanged.
	if contents[0].Parts[0].Text != "`[meta] memories`\n\nm" {
		t.Errorf("content text = %q", contents[0].Parts[0].Text)
	}

	if config.SystemInstruction == nil || config.SystemInstruction.Parts[0].Text != "You are Test." {
		t.Errorf("SystemInstruction = %+v", config.SystemInstruction)
	}
	if config.MaxOutputTokens != 2048 {
		t.Errorf("MaxOutputTokens = %d, want 2048", config.MaxOutputTokens)
	}
	if config.Temperature == nil || *config.Temperature != 0.6 {
		t.Errorf("Temperature = %v, want 0.6", config.Temperature)
	}
	if len(config.SafetySettings) != 4 {
		t.Errorf("SafetySettings = %d categories, want 4", len(config.SafetySettings))
	}
	for _, s := range config.SafetySettings {
		if s.Threshold != genai.HarmBlockThresholdBlockNone {
			t.Errorf("category %s threshold = %s, want BLOCK_NONE", s.Category, s.Threshold)
		}
	}
}

func TestGeminiParamsOmitsUnsetOptions(t *testing.T) {
	t.Parallel()

	req := &reqbuild.Request{
		Model:    "gemini-2.5-flash",
		Messages: []reqbuild.Message{{Role: reqbuild.RoleUser, Content: "hi"}},
	}
	_, config, err := geminiParams(req, nil)
	if err != nil {
		t.Fatalf("geminiParams() error = %v", err)
	}
	if config.SystemInstruction != nil {
		t.Error("empty system prompt should not set SystemInstruction")
	}
	if config.Temperature != nil || config.MaxOutputTokens != 0 {
		t.Error("unset options should be omitted")
	}
	if config.SafetySettings != nil {
		t.Error("nil safety slice should pass through")
	}
}

func TestGeminiParamsValidation(t *testing.T) {
	t.Parallel()

	if _, _, err := geminiParams(&reqbuild.Request{Model: "m"}, nil); err == nil {
		t.Error("empty message list should fail")
	}
	if _, _, err := geminiParams(&reqbuild.Request{
		Model:    "m",
		Messages: []reqbuild.Message{{Role: "tool", Content: "x"}},
	}, nil); err == nil {
		t.Error("unsupported role should fail")
	}
}
