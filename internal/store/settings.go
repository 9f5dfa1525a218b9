package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mvanwyck/reverie/pkg/convo"
)

// Well-known setting keys. Settings live in the settings table and are
// re-read from the store on every turn so that edits take effect without a
// restart.
const (
	KeyPreviousTurnsCount  = "PreviousTurnsCount"
	KeyMaxDialogueLogTurns = "MaxDialogueLogTurns"
	KeyPerceptionEnabled   = "PerceptionEnabled"

	KeyLLMProvider            = "LLMProvider"
	KeyGeminiModel            = "GeminiModel"
	KeyClaudeModel            = "ClaudeModel"
	KeyEnablePromptCaching    = "EnablePromptCaching"
	KeyClaudeExtendedThinking = "ClaudeExtendedThinking"

	KeySemanticUseLLMQueryTransformation = "SemanticUseLLMQueryTransformation"
	KeyQuotesMaxLength                   = "QuotesMaxLength"
	KeyTriggerScanTextAdditionalWords    = "TriggerScanTextAdditionalWords"
	KeyActivePersonaID                   = "ActivePersonaId"
	KeyActiveProfileID                   = "ActiveProfileId"
)

// Recognised values for KeyLLMProvider.
const (
	ProviderGemini = "Gemini"
	ProviderClaude = "Claude"
)

// Defaults applied when a setting key is absent.
const (
	DefaultPreviousTurnsCount  = 6
	DefaultMaxDialogueLogTurns = 50
	DefaultSemanticTokenQuota  = 1000
)

// SemanticQuotaKey returns the per-type semantic result quota key, e.g.
// "SemanticTokenQuota_Memory".
func SemanticQuotaKey(t convo.DataType) string {
	suffix := map[convo.DataType]string{
		convo.TypeQuote:              "Quote",
		convo.TypeMemory:             "Memory",
		convo.TypeInsight:            "Insight",
		convo.TypePersonaVoiceSample: "PersonaVoiceSample",
	}[t]
	return "SemanticTokenQuota_" + suffix
}

// Setting implements [SettingStore].
func (s *Store) Setting(ctx context.Context, key string) (string, bool, error) {
	const q = `SELECT value FROM settings WHERE key = $1`

	var value string
	err := s.pool.QueryRow(ctx, q, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: setting %q: %w", key, err)
	}
	return value, true, nil
}

// Settings wraps a [SettingStore] with typed accessors and defaults. The
// zero value is not usable; construct with [NewSettings].
type Settings struct {
	store SettingStore
}

// NewSettings creates a typed settings accessor over st.
func NewSettings(st SettingStore) *Settings {
	return &Settings{store: st}
}

// String returns the value for key, or def when absent.
func (s *Settings) String(ctx context.Context, key, def string) (string, error) {
	v, ok, err := s.store.Setting(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok || v == "" {
		return def, nil
	}
	return v, nil
}

// Int returns the integer value for key, or def when absent or malformed.
func (s *Settings) Int(ctx context.Context, key string, def int) (int, error) {
	v, ok, err := s.store.Setting(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(v))
	if convErr != nil {
		return def, nil
	}
	return n, nil
}

// Int64 returns the int64 value for key, or def when absent or malformed.
func (s *Settings) Int64(ctx context.Context, key string, def int64) (int64, error) {
	v, ok, err := s.store.Setting(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	n, convErr := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if convErr != nil {
		return def, nil
	}
	return n, nil
}

// Bool returns the boolean value for key, or def when absent or malformed.
// Accepts the strconv.ParseBool forms ("true", "1", "t", …).
func (s *Settings) Bool(ctx context.Context, key string, def bool) (bool, error) {
	v, ok, err := s.store.Setting(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return def, nil
	}
	b, convErr := strconv.ParseBool(strings.TrimSpace(v))
	if convErr != nil {
		return def, nil
	}
	return b, nil
}

// SemanticQuota returns the per-type semantic result quota for t.
func (s *Settings) SemanticQuota(ctx context.Context, t convo.DataType) (int, error) {
	return s.Int(ctx, SemanticQuotaKey(t), DefaultSemanticTokenQuota)
}
