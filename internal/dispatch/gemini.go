package dispatch

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/mvanwyck/reverie/internal/reqbuild"
	"github.com/mvanwyck/reverie/internal/store"
)

// GenerateClient is the subset of the genai SDK used by the strategy.
type GenerateClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiStrategy executes requests against the Gemini API. Cache hints are
// dropped because the backend manages its own context caching; the configured
// safety settings are attached to every call.
type GeminiStrategy struct {
	models GenerateClient
	safety []*genai.SafetySetting
}

var _ Strategy = (*GeminiStrategy)(nil)

// DefaultSafetySettings disables blocking across the harm categories so that
// in-character fiction is not rejected mid-session.
func DefaultSafetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	out := make([]*genai.SafetySetting, len(categories))
	for i, c := range categories {
		out[i] = &genai.SafetySetting{
			Category:  c,
			Threshold: genai.HarmBlockThresholdBlockNone,
		}
	}
	return out
}

// NewGeminiStrategy creates the Gemini strategy. A nil safety slice attaches
// no safety configuration.
func NewGeminiStrategy(models GenerateClient, safety []*genai.SafetySetting) *GeminiStrategy {
	return &GeminiStrategy{models: models, safety: safety}
}

// NewGeminiStrategyFromAPIKey constructs the strategy with a default genai
// client and the default safety settings.
func NewGeminiStrategyFromAPIKey(ctx context.Context, apiKey string) (*GeminiStrategy, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("dispatch: gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("dispatch: create gemini client: %w", err)
	}
	return NewGeminiStrategy(client.Models, DefaultSafetySettings()), nil
}

func (s *GeminiStrategy) Name() string { return store.ProviderGemini }

func (s *GeminiStrategy) Execute(ctx context.Context, req *reqbuild.Request) (string, error) {
	if req.Model == "" {
		return "", fmt.Errorf("dispatch: gemini model is required")
	}
	contents, config, err := geminiParams(req, s.safety)
	if err != nil {
		return "", err
	}
	resp, err := s.models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return "", fmt.Errorf("dispatch: gemini generate content: %w", err)
	}
	return resp.Text(), nil
}

// geminiParams translates the provider-neutral request into genai contents
// and config. Assistant messages map to the "model" role.
func geminiParams(req *reqbuild.Request, safety []*genai.SafetySetting) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	if len(req.Messages) == 0 {
		return nil, nil, fmt.Errorf("dispatch: request has no messages")
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		var role genai.Role
		switch m.Role {
		case reqbuild.RoleUser:
			role = genai.RoleUser
		case reqbuild.RoleAssistant:
			role = genai.RoleModel
		default:
			return nil, nil, fmt.Errorf("dispatch: unsupported role %q", m.Role)
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	config := &genai.GenerateContentConfig{SafetySettings: safety}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	return contents, config, nil
}
