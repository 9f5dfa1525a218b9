package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/mvanwyck/reverie/internal/contextsvc"
	"github.com/mvanwyck/reverie/internal/semantic"
	"github.com/mvanwyck/reverie/internal/store"
	"github.com/mvanwyck/reverie/pkg/convo"
	"github.com/mvanwyck/reverie/pkg/provider/llm"
)

// PerceptionEnricher runs every active perception prompt against the latest
// exchange and collects the parsed (property, explanation) annotations. It
// fetches its own copies of the previous response and user profile so that it
// never races the history and character-profile enrichers.
type PerceptionEnricher struct {
	sysmsgs  store.SystemMessageStore
	svc      *contextsvc.Service
	turns    store.TurnStore
	llm      llm.Provider
	settings *store.Settings
	logger   *slog.Logger
}

var _ Enricher = (*PerceptionEnricher)(nil)

// NewPerceptionEnricher creates the perception enricher.
func NewPerceptionEnricher(sysmsgs store.SystemMessageStore, svc *contextsvc.Service, turns store.TurnStore, technical llm.Provider, settings *store.Settings, logger *slog.Logger) *PerceptionEnricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PerceptionEnricher{
		sysmsgs: sysmsgs, svc: svc, turns: turns,
		llm: technical, settings: settings, logger: logger,
	}
}

func (e *PerceptionEnricher) Name() string { return "perceptions" }

func (e *PerceptionEnricher) Enrich(ctx context.Context, st *State) error {
	enabled, err := e.settings.Bool(ctx, store.KeyPerceptionEnabled, true)
	if err != nil {
		return fmt.Errorf("enrich: perception settings: %w", err)
	}
	if !enabled || strings.TrimSpace(st.Input()) == "" {
		return nil
	}

	prompts, err := e.sysmsgs.ActivePerceptions(ctx, st.Session.ProfileID)
	if err != nil {
		return fmt.Errorf("enrich: perception prompts: %w", err)
	}
	if len(prompts) == 0 {
		return nil
	}

	payload, err := e.buildPayload(ctx, st)
	if err != nil {
		return err
	}

	for _, prompt := range prompts {
		records, err := e.run(ctx, prompt, payload)
		if err != nil {
			// A failed or unparsable perception yields nothing; the
			// remaining prompts still run.
			e.logger.Warn("perception yielded no results",
				"perception", prompt.Name, "error", err)
			continue
		}
		st.AddPerceptions(records)
	}
	return nil
}

// buildPayload renders the latest exchange as initial-prefixed lines. The
// previous-response line is omitted when the session has no accepted turn yet.
func (e *PerceptionEnricher) buildPayload(ctx context.Context, st *State) (string, error) {
	profile, err := e.svc.UserProfile(ctx, st.Session.ProfileID)
	if err != nil {
		return "", fmt.Errorf("enrich: perception user profile: %w", err)
	}
	userName := "User"
	if profile != nil && profile.Name != "" {
		userName = profile.Name
	}

	recent, err := e.turns.RecentAccepted(ctx, st.Session.ID, 1)
	if err != nil {
		return "", fmt.Errorf("enrich: perception previous turn: %w", err)
	}

	var lines []string
	if len(recent) > 0 && recent[len(recent)-1].Response != "" {
		lines = append(lines, initial(st.PersonaName)+": "+recent[len(recent)-1].Response)
	}
	lines = append(lines, initial(userName)+": "+st.Input())
	return strings.Join(lines, "\n"), nil
}

// run issues one perception call and parses its annotations.
func (e *PerceptionEnricher) run(ctx context.Context, prompt convo.SystemMessage, payload string) ([]convo.Perception, error) {
	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: prompt.Content,
		Messages:     []llm.Message{{Role: "user", Content: payload}},
	})
	if err != nil {
		return nil, fmt.Errorf("enrich: perception %q: %w", prompt.Name, err)
	}

	var records []convo.Perception
	if err := semantic.ExtractJSONArray(resp.Content, &records); err != nil {
		return nil, fmt.Errorf("enrich: perception %q: %w", prompt.Name, err)
	}
	return records, nil
}

// initial returns the upper-cased first rune of name, or "?" for an empty
// name.
func initial(name string) string {
	for _, r := range name {
		return string(unicode.ToUpper(r))
	}
	return "?"
}
