package dispatch

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mvanwyck/reverie/internal/reqbuild"
	"github.com/mvanwyck/reverie/internal/store"
)

// Claude parameter defaults applied when the built request leaves them unset.
const (
	claudeDefaultMaxTokens = 8192

	// claudeThinkingBudget is the extended-thinking token budget. The API
	// requires at least 1024 and strictly less than max_tokens.
	claudeThinkingBudget = 2048
)

// MessagesClient is the subset of the Anthropic SDK used by the strategy. It
// is satisfied by *anthropic.MessageService and by mocks in tests.
type MessagesClient interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// ClaudeStrategy executes requests against the Anthropic Messages API. Cache
// hints on messages become ephemeral cache-control annotations.
type ClaudeStrategy struct {
	messages MessagesClient
}

var _ Strategy = (*ClaudeStrategy)(nil)

// NewClaudeStrategy creates the Claude strategy over an SDK message service.
func NewClaudeStrategy(messages MessagesClient) *ClaudeStrategy {
	return &ClaudeStrategy{messages: messages}
}

// NewClaudeStrategyFromAPIKey constructs the strategy with a default SDK
// client.
func NewClaudeStrategyFromAPIKey(apiKey string) (*ClaudeStrategy, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("dispatch: claude api key is required")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return NewClaudeStrategy(&client.Messages), nil
}

func (s *ClaudeStrategy) Name() string { return store.ProviderClaude }

func (s *ClaudeStrategy) Execute(ctx context.Context, req *reqbuild.Request) (string, error) {
	params, err := claudeParams(req)
	if err != nil {
		return "", err
	}
	msg, err := s.messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("dispatch: claude messages.new: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// claudeParams translates the provider-neutral request into SDK params.
func claudeParams(req *reqbuild.Request) (anthropic.MessageNewParams, error) {
	if req.Model == "" {
		return anthropic.MessageNewParams{}, fmt.Errorf("dispatch: claude model is required")
	}
	if len(req.Messages) == 0 {
		return anthropic.MessageNewParams{}, fmt.Errorf("dispatch: request has no messages")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = claudeDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.Thinking {
		budget := claudeThinkingBudget
		if budget >= maxTokens {
			return anthropic.MessageNewParams{}, fmt.Errorf(
				"dispatch: thinking budget %d must be less than max_tokens %d", budget, maxTokens)
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(budget))
	}

	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.CacheHint && block.OfText != nil {
			block.OfText.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		switch m.Role {
		case reqbuild.RoleUser:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		case reqbuild.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		default:
			return anthropic.MessageNewParams{}, fmt.Errorf("dispatch: unsupported role %q", m.Role)
		}
	}
	return params, nil
}
