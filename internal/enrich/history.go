package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/mvanwyck/reverie/internal/store"
	"github.com/mvanwyck/reverie/pkg/convo"
)

// DialogueLogHeader is the first line of the compressed older-history block.
const DialogueLogHeader = "[meta] Log: Older events this session - For Information Only, DO NOT USE THIS FORMAT"

// dialogueLogTruncationNotice is prepended to the log entries when accepted
// turns exist beyond the log cap.
const dialogueLogTruncationNotice = "(Still older events have been omitted.)"

// TurnHistoryEnricher loads the recent accepted turns of the session and
// derives the previous turn and response from the newest.
type TurnHistoryEnricher struct {
	turns    store.TurnStore
	settings *store.Settings
}

var _ Enricher = (*TurnHistoryEnricher)(nil)

// NewTurnHistoryEnricher creates the recent-history enricher.
func NewTurnHistoryEnricher(turns store.TurnStore, settings *store.Settings) *TurnHistoryEnricher {
	return &TurnHistoryEnricher{turns: turns, settings: settings}
}

func (e *TurnHistoryEnricher) Name() string { return "turn_history" }

func (e *TurnHistoryEnricher) Enrich(ctx context.Context, st *State) error {
	limit, err := e.settings.Int(ctx, store.KeyPreviousTurnsCount, store.DefaultPreviousTurnsCount)
	if err != nil {
		return fmt.Errorf("enrich: history settings: %w", err)
	}
	turns, err := e.turns.RecentAccepted(ctx, st.Session.ID, limit)
	if err != nil {
		return fmt.Errorf("enrich: recent turns: %w", err)
	}
	st.SetRecentTurns(turns)
	return nil
}

// DialogueLogEnricher renders accepted turns older than the recent window
// into a single compressed text block, preferring each turn's stripped form
// over its raw exchange.
type DialogueLogEnricher struct {
	turns    store.TurnStore
	settings *store.Settings
}

var _ Enricher = (*DialogueLogEnricher)(nil)

// NewDialogueLogEnricher creates the older-history enricher.
func NewDialogueLogEnricher(turns store.TurnStore, settings *store.Settings) *DialogueLogEnricher {
	return &DialogueLogEnricher{turns: turns, settings: settings}
}

func (e *DialogueLogEnricher) Name() string { return "dialogue_log" }

func (e *DialogueLogEnricher) Enrich(ctx context.Context, st *State) error {
	recent, err := e.settings.Int(ctx, store.KeyPreviousTurnsCount, store.DefaultPreviousTurnsCount)
	if err != nil {
		return fmt.Errorf("enrich: dialogue log settings: %w", err)
	}
	maxTurns, err := e.settings.Int(ctx, store.KeyMaxDialogueLogTurns, store.DefaultMaxDialogueLogTurns)
	if err != nil {
		return fmt.Errorf("enrich: dialogue log settings: %w", err)
	}

	total, err := e.turns.CountAccepted(ctx, st.Session.ID)
	if err != nil {
		return fmt.Errorf("enrich: count accepted: %w", err)
	}
	// The recent window alone does not warrant a log.
	if total <= recent {
		return nil
	}

	older, err := e.turns.OlderAccepted(ctx, st.Session.ID, recent, maxTurns)
	if err != nil {
		return fmt.Errorf("enrich: older turns: %w", err)
	}
	if len(older) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString(DialogueLogHeader)
	b.WriteString("\n")
	if total > recent+maxTurns {
		b.WriteString("\n")
		b.WriteString(dialogueLogTruncationNotice)
	}
	for _, t := range older {
		b.WriteString("\n")
		b.WriteString(formatLogTurn(t))
	}
	st.SetDialogueLog(b.String())
	return nil
}

// formatLogTurn renders one accepted turn for the dialogue log.
func formatLogTurn(t convo.Turn) string {
	if t.StrippedTurn != "" {
		return t.StrippedTurn
	}
	return t.Input + "\n" + t.Response
}
