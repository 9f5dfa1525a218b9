// Package pipeline drives one conversation turn end to end: fail-fast
// configuration checks, turn creation, concurrent enrichment, request
// building, flag consumption, dispatch, and commit with usage bookkeeping.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mvanwyck/reverie/internal/contextsvc"
	"github.com/mvanwyck/reverie/internal/dispatch"
	"github.com/mvanwyck/reverie/internal/enrich"
	"github.com/mvanwyck/reverie/internal/observe"
	"github.com/mvanwyck/reverie/internal/reqbuild"
	"github.com/mvanwyck/reverie/internal/store"
	"github.com/mvanwyck/reverie/pkg/convo"
)

// oocMarker opens an out-of-character input (case-insensitive).
const oocMarker = "[ooc]"

// Pipeline processes turns. Construct with [New]; all dependencies are
// required except metrics and logger.
type Pipeline struct {
	sessions   store.SessionStore
	turns      store.TurnStore
	flags      store.FlagStore
	sysmsgs    store.SystemMessageStore
	settings   *store.Settings
	svc        *contextsvc.Service
	orch       *enrich.Orchestrator
	dispatcher *dispatch.Dispatcher
	metrics    *observe.Metrics
	logger     *slog.Logger
}

// Deps bundles the pipeline's collaborators.
type Deps struct {
	Sessions   store.SessionStore
	Turns      store.TurnStore
	Flags      store.FlagStore
	SysMsgs    store.SystemMessageStore
	Settings   *store.Settings
	ContextSvc *contextsvc.Service
	Orch       *enrich.Orchestrator
	Dispatcher *dispatch.Dispatcher
	Metrics    *observe.Metrics
	Logger     *slog.Logger
}

// New creates a pipeline from its dependencies.
func New(d Deps) *Pipeline {
	if d.Metrics == nil {
		d.Metrics = observe.DefaultMetrics()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Pipeline{
		sessions: d.Sessions, turns: d.Turns, flags: d.Flags,
		sysmsgs: d.SysMsgs, settings: d.Settings, svc: d.ContextSvc,
		orch: d.Orch, dispatcher: d.Dispatcher,
		metrics: d.Metrics, logger: d.Logger,
	}
}

// ProcessTurn runs one full turn for input. It returns the persisted turn in
// all non-fatal cases: a failed dispatch still yields a committed turn with
// accepted=false and a diagnostic response. Cancellation during dispatch or
// commit is surfaced; cancellation during enrichment is swallowed like any
// other enricher failure.
func (p *Pipeline) ProcessTurn(ctx context.Context, input string) (*convo.Turn, error) {
	start := time.Now()
	defer func() {
		p.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	}()

	// Fail fast before creating a turn row.
	session, err := p.sessions.ActiveSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: active session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("pipeline: no active session")
	}
	provider, err := p.dispatcher.Provider(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: provider setting: %w", err)
	}
	if provider == "" {
		return nil, fmt.Errorf("pipeline: no LLM provider configured")
	}

	turn, err := p.turns.CreateTurn(ctx, session.ID, input)
	if err != nil {
		return nil, fmt.Errorf("pipeline: create turn: %w", err)
	}

	st := enrich.NewState(session, turn, p.activePersona(ctx, session.ProfileID))
	st.IsOOC = strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), oocMarker)

	if err := p.orch.Run(ctx, st); err != nil {
		p.logger.Warn("enrichment interrupted", "turn_id", turn.ID, "error", err)
	}
	p.metrics.ContextItems.Add(ctx, int64(len(st.ItemIDs())))

	opts, err := p.buildOptions(ctx, provider)
	if err != nil {
		return nil, err
	}
	result := reqbuild.Build(st, opts)

	// Flags are consumed the moment they are read into the prompt, not at
	// commit.
	if len(result.UsedFlagIDs) > 0 {
		if err := p.flags.ConsumeFlags(ctx, result.UsedFlagIDs, time.Now()); err != nil {
			return nil, fmt.Errorf("pipeline: consume flags: %w", err)
		}
	}

	serialized, err := result.Request.Serialize()
	if err != nil {
		p.logger.Warn("request serialization failed", "turn_id", turn.ID, "error", err)
		serialized = ""
	}

	text, dispatchErr := p.dispatcher.Dispatch(ctx, &result.Request)
	if dispatchErr != nil && ctx.Err() != nil {
		return turn, fmt.Errorf("pipeline: dispatch cancelled: %w", ctx.Err())
	}

	return p.commit(ctx, turn, st, serialized, text, dispatchErr)
}

// commit writes the dispatch outcome, marks item usage, and runs the
// post-turn lifecycle.
func (p *Pipeline) commit(ctx context.Context, turn *convo.Turn, st *enrich.State, serialized, text string, dispatchErr error) (*convo.Turn, error) {
	response := text
	accepted := dispatchErr == nil && strings.TrimSpace(text) != ""
	if dispatchErr != nil {
		response = "Error: " + dispatchErr.Error()
		p.logger.Error("dispatch failed", "turn_id", turn.ID, "error", dispatchErr)
	}

	if err := p.turns.CommitTurn(ctx, turn.ID, response, serialized, accepted); err != nil {
		return turn, fmt.Errorf("pipeline: commit turn %d: %w", turn.ID, err)
	}
	turn.Response = response
	turn.SerializedRequest = serialized
	turn.Accepted = accepted

	status := "rejected"
	if accepted {
		status = "accepted"
	}
	// A blank response still consumed the items; only a dispatch error leaves
	// them unmarked so a retry sees identical activation state.
	if dispatchErr == nil {
		if ids := st.ItemIDs(); len(ids) > 0 {
			if err := p.svc.MarkUsed(ctx, ids, turn.ID); err != nil {
				return turn, fmt.Errorf("pipeline: mark used: %w", err)
			}
		}
	}
	p.metrics.RecordTurn(ctx, status)

	// Items with a residual one-shot toggle are retried next turn.
	if err := p.svc.ProcessPostTurn(ctx, turn.ID); err != nil {
		p.logger.Warn("post-turn processing failed", "turn_id", turn.ID, "error", err)
	}
	return turn, nil
}

// activePersona resolves the persona named by the ActivePersonaId setting.
// A missing or inactive persona leaves the turn without a system prompt.
func (p *Pipeline) activePersona(ctx context.Context, profileID int64) *convo.SystemMessage {
	id, err := p.settings.Int64(ctx, store.KeyActivePersonaID, 0)
	if err != nil || id == 0 {
		return nil
	}
	persona, err := p.sysmsgs.PersonaByID(ctx, id)
	if err != nil {
		p.logger.Warn("persona lookup failed", "persona_id", id, "error", err)
		return nil
	}
	return persona
}

// buildOptions assembles the model parameters for the configured provider.
func (p *Pipeline) buildOptions(ctx context.Context, provider string) (reqbuild.Options, error) {
	var opts reqbuild.Options
	var err error

	opts.QuotesMaxLength, err = p.settings.Int(ctx, store.KeyQuotesMaxLength, 0)
	if err != nil {
		return opts, fmt.Errorf("pipeline: quotes max length setting: %w", err)
	}

	switch provider {
	case store.ProviderClaude:
		opts.Model, err = p.settings.String(ctx, store.KeyClaudeModel, "")
		if err != nil {
			return opts, fmt.Errorf("pipeline: claude model setting: %w", err)
		}
		opts.Cache, err = p.settings.Bool(ctx, store.KeyEnablePromptCaching, false)
		if err != nil {
			return opts, fmt.Errorf("pipeline: caching setting: %w", err)
		}
		opts.Thinking, err = p.settings.Bool(ctx, store.KeyClaudeExtendedThinking, false)
		if err != nil {
			return opts, fmt.Errorf("pipeline: thinking setting: %w", err)
		}
	case store.ProviderGemini:
		opts.Model, err = p.settings.String(ctx, store.KeyGeminiModel, "")
		if err != nil {
			return opts, fmt.Errorf("pipeline: gemini model setting: %w", err)
		}
	default:
		return opts, fmt.Errorf("pipeline: unknown provider %q", provider)
	}
	return opts, nil
}
