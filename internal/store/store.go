// Package store provides the PostgreSQL-backed relational store for Reverie:
// sessions, turns, context items, flags, settings, and system messages.
//
// All operations share a single [pgxpool.Pool]. The pgvector extension must be
// available in the target database; [Migrate] installs it automatically so the
// same pool can be handed to internal/vecstore for chunk storage.
//
// Usage:
//
//	st, err := store.New(ctx, dsn, 768)
//	if err != nil { … }
//	defer st.Close()
//
//	session, err := st.ActiveSession(ctx)
//	turn, err := st.CreateTurn(ctx, session.ID, input)
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/mvanwyck/reverie/pkg/convo"
)

// SessionStore resolves the active session for the running profile.
type SessionStore interface {
	// ActiveSession returns the single active session, or (nil, nil) when no
	// session is marked active.
	ActiveSession(ctx context.Context) (*convo.Session, error)
}

// TurnStore persists and queries conversation turns.
//
// "Accepted" turns are those whose dispatch succeeded with a non-blank
// response; only accepted turns contribute to history and the dialogue log.
type TurnStore interface {
	// CreateTurn inserts a new turn row for sessionID with the given input,
	// an empty response, and accepted=false, returning the stored row.
	CreateTurn(ctx context.Context, sessionID int64, input string) (*convo.Turn, error)

	// CommitTurn writes the dispatch outcome onto an existing turn.
	CommitTurn(ctx context.Context, turnID int64, response, serializedRequest string, accepted bool) error

	// RecentAccepted returns up to limit most recent accepted turns of the
	// session in chronological (oldest-first) order.
	RecentAccepted(ctx context.Context, sessionID int64, limit int) ([]convo.Turn, error)

	// OlderAccepted returns up to limit accepted turns older than the newest
	// skip accepted turns, in chronological order.
	OlderAccepted(ctx context.Context, sessionID int64, skip, limit int) ([]convo.Turn, error)

	// CountAccepted returns the number of accepted turns in the session.
	CountAccepted(ctx context.Context, sessionID int64) (int, error)

	// UnstrippedAccepted returns up to limit accepted turns across all
	// sessions that have a response but no stripped form yet, oldest first.
	UnstrippedAccepted(ctx context.Context, limit int) ([]convo.Turn, error)

	// SetStrippedTurn stores the compressed form of a turn.
	SetStrippedTurn(ctx context.Context, turnID int64, stripped string) error
}

// ContextDataStore persists and queries context items.
//
// Read queries used by the pipeline are scoped to "active profile OR global"
// (profile_id = 0); write operations address rows by primary key only.
type ContextDataStore interface {
	// AlwaysOn returns enabled, non-archived items of type t with always-on
	// availability, ordered by sort order then id.
	AlwaysOn(ctx context.Context, profileID int64, t convo.DataType) ([]convo.ContextData, error)

	// ActiveManual returns enabled, non-archived manual items of type t whose
	// UseEveryTurn or UseNextTurnOnly toggle is set.
	ActiveManual(ctx context.Context, profileID int64, t convo.DataType) ([]convo.ContextData, error)

	// TriggerCandidates returns all enabled, non-archived items of any type
	// with trigger availability.
	TriggerCandidates(ctx context.Context, profileID int64) ([]convo.ContextData, error)

	// UserProfile returns the character profile with IsUser set for the
	// profile, or (nil, nil) when none exists.
	UserProfile(ctx context.Context, profileID int64) (*convo.ContextData, error)

	// ByIDs returns the enabled, non-archived items with the given ids,
	// preserving the order of ids. Missing ids and items with archive
	// availability are silently skipped.
	ByIDs(ctx context.Context, ids []int64) ([]convo.ContextData, error)

	// SaveContextData upserts an item, rejecting (type, availability) pairs
	// outside the validity matrix. A zero ID inserts; the assigned id is
	// written back.
	SaveContextData(ctx context.Context, item *convo.ContextData) error

	// MarkUsed stamps UsedLastOnTurnID = turnID on every item in ids in a
	// single bulk update.
	MarkUsed(ctx context.Context, ids []int64, turnID int64) error

	// RecordTriggerActivation increments the trigger use counter and stamps
	// the last-matched time for every item in ids.
	RecordTriggerActivation(ctx context.Context, ids []int64, at time.Time) error

	// RevertNextTurnOnly reverts every UseNextTurnOnly item consumed by
	// turnID back to its previous availability and clears both the toggle
	// and the stored previous availability. Idempotent.
	RevertNextTurnOnly(ctx context.Context, turnID int64) error

	// SetEmbeddingState records that an item has been (re-)indexed in the
	// vector store.
	SetEmbeddingState(ctx context.Context, id, vectorID int64, at time.Time) error

	// NeedsEmbedding returns up to limit enabled, non-archived items of
	// semantically searchable types that were never indexed or were edited
	// after their last indexing, oldest first.
	NeedsEmbedding(ctx context.Context, limit int) ([]convo.ContextData, error)

	// NeedsDeindex returns up to limit items still flagged as present in the
	// chunk store although they have since been disabled, archived, or moved
	// to archive availability, oldest first.
	NeedsDeindex(ctx context.Context, limit int) ([]convo.ContextData, error)

	// ClearEmbeddingState records that an item's chunks were removed from the
	// chunk store. A later re-activation re-indexes from scratch.
	ClearEmbeddingState(ctx context.Context, id int64) error
}

// FlagStore persists and queries steering flags.
type FlagStore interface {
	// ActiveFlags returns flags with active or constant set, ordered
	// active-first and then by last-used (or created) time descending.
	ActiveFlags(ctx context.Context, profileID int64) ([]convo.Flag, error)

	// ConsumeFlags deactivates every non-constant flag in ids and stamps
	// LastUsedAt = at on all of them, in one statement.
	ConsumeFlags(ctx context.Context, ids []int64, at time.Time) error
}

// SettingStore reads runtime settings.
type SettingStore interface {
	// Setting returns the raw value for key and whether it is present.
	Setting(ctx context.Context, key string) (string, bool, error)
}

// SystemMessageStore reads stored prompt records.
type SystemMessageStore interface {
	// PersonaByID returns the persona record with the given id, or (nil, nil)
	// when it does not exist or is inactive.
	PersonaByID(ctx context.Context, id int64) (*convo.SystemMessage, error)

	// ActivePerceptions returns all active perception prompts visible to the
	// profile, ordered by id.
	ActivePerceptions(ctx context.Context, profileID int64) ([]convo.SystemMessage, error)
}

// Store is the concrete pgx-backed implementation of all store interfaces.
var (
	_ SessionStore       = (*Store)(nil)
	_ TurnStore          = (*Store)(nil)
	_ ContextDataStore   = (*Store)(nil)
	_ FlagStore          = (*Store)(nil)
	_ SettingStore       = (*Store)(nil)
	_ SystemMessageStore = (*Store)(nil)
)

// Store holds the shared connection pool. All methods are safe for concurrent
// use.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, registers pgvector types on every connection, and runs
// [Migrate] to ensure all required tables and extensions exist.
//
// embeddingDimensions must match the output dimension of the configured
// embedding model (e.g., 768 for nomic-embed-text, 1536 for OpenAI
// text-embedding-3-small). Changing it after the first migration requires a
// manual schema change.
func New(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that the chunk
	// embedding column can be scanned into and inserted from pgvector.Vector.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Pool exposes the underlying connection pool so that internal/vecstore can
// share it for chunk storage.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases all connections held by the pool.
func (s *Store) Close() {
	s.pool.Close()
}
