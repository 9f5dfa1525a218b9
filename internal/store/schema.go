package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS profiles (
    id          BIGSERIAL    PRIMARY KEY,
    name        TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sessions (
    id          BIGSERIAL    PRIMARY KEY,
    profile_id  BIGINT       NOT NULL DEFAULT 0,
    name        TEXT         NOT NULL DEFAULT '',
    is_active   BOOLEAN      NOT NULL DEFAULT false,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_active
    ON sessions (is_active);

CREATE TABLE IF NOT EXISTS turns (
    id                 BIGSERIAL    PRIMARY KEY,
    session_id         BIGINT       NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
    input              TEXT         NOT NULL,
    response           TEXT         NOT NULL DEFAULT '',
    serialized_request TEXT         NOT NULL DEFAULT '',
    stripped_turn      TEXT         NOT NULL DEFAULT '',
    accepted           BOOLEAN      NOT NULL DEFAULT false,
    created_at         TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_turns_session_created
    ON turns (session_id, created_at);

CREATE INDEX IF NOT EXISTS idx_turns_accepted
    ON turns (accepted);
`

const ddlContextData = `
CREATE TABLE IF NOT EXISTS context_data (
    id                      BIGSERIAL    PRIMARY KEY,
    profile_id              BIGINT       NOT NULL DEFAULT 0,
    type                    TEXT         NOT NULL,
    availability            TEXT         NOT NULL,
    name                    TEXT         NOT NULL DEFAULT '',
    content                 TEXT         NOT NULL,
    speaker                 TEXT         NOT NULL DEFAULT '',
    source_session_id       BIGINT       NOT NULL DEFAULT 0,
    tags                    TEXT[]       NOT NULL DEFAULT '{}',
    sort_order              INTEGER      NOT NULL DEFAULT 0,
    token_count             INTEGER      NOT NULL DEFAULT 0,
    relevance               TEXT         NOT NULL DEFAULT '',
    vector_id               BIGINT       NOT NULL DEFAULT 0,
    in_vector_db            BOOLEAN      NOT NULL DEFAULT false,
    embedding_updated_at    TIMESTAMPTZ,
    use_every_turn          BOOLEAN      NOT NULL DEFAULT false,
    use_next_turn_only      BOOLEAN      NOT NULL DEFAULT false,
    previous_availability   TEXT,
    trigger_keywords        TEXT         NOT NULL DEFAULT '',
    trigger_min_match_count INTEGER      NOT NULL DEFAULT 1,
    trigger_lookback_turns  INTEGER      NOT NULL DEFAULT 0,
    trigger_use_count       INTEGER      NOT NULL DEFAULT 0,
    trigger_last_matched_at TIMESTAMPTZ,
    is_enabled              BOOLEAN      NOT NULL DEFAULT true,
    is_archived             BOOLEAN      NOT NULL DEFAULT false,
    is_user                 BOOLEAN      NOT NULL DEFAULT false,
    used_last_on_turn_id    BIGINT       NOT NULL DEFAULT 0,
    created_at              TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at              TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_context_data_profile_type
    ON context_data (profile_id, type);

CREATE INDEX IF NOT EXISTS idx_context_data_availability
    ON context_data (availability);

CREATE INDEX IF NOT EXISTS idx_context_data_turn
    ON context_data (used_last_on_turn_id);
`

const ddlFlagsSettings = `
CREATE TABLE IF NOT EXISTS flags (
    id           BIGSERIAL    PRIMARY KEY,
    profile_id   BIGINT       NOT NULL DEFAULT 0,
    value        TEXT         NOT NULL,
    active       BOOLEAN      NOT NULL DEFAULT true,
    constant     BOOLEAN      NOT NULL DEFAULT false,
    last_used_at TIMESTAMPTZ,
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_flags_profile_active
    ON flags (profile_id, active);

CREATE TABLE IF NOT EXISTS settings (
    key        TEXT         PRIMARY KEY,
    value      TEXT         NOT NULL,
    updated_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS system_messages (
    id          BIGSERIAL    PRIMARY KEY,
    profile_id  BIGINT       NOT NULL DEFAULT 0,
    kind        TEXT         NOT NULL,
    name        TEXT         NOT NULL DEFAULT '',
    content     TEXT         NOT NULL,
    is_active   BOOLEAN      NOT NULL DEFAULT true,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_system_messages_kind
    ON system_messages (kind, is_active);
`

// ddlChunks returns the context-chunk DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlChunks(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS context_chunks (
    id                 BIGINT       PRIMARY KEY,
    collection         TEXT         NOT NULL,
    payload_id         TEXT         NOT NULL,
    item_id            BIGINT       NOT NULL,
    profile_id         BIGINT       NOT NULL DEFAULT 0,
    source_session_id  BIGINT       NOT NULL DEFAULT 0,
    speaker            TEXT         NOT NULL DEFAULT '',
    truth_type         TEXT         NOT NULL DEFAULT '',
    content            TEXT         NOT NULL,
    embedding          vector(%d),
    created_at         TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_context_chunks_collection
    ON context_chunks (collection);

CREATE INDEX IF NOT EXISTS idx_context_chunks_payload
    ON context_chunks (payload_id);

CREATE INDEX IF NOT EXISTS idx_context_chunks_embedding
    ON context_chunks USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required database tables and extensions
// exist. It is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT
// EXISTS) and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlSessions,
		ddlContextData,
		ddlFlagsSettings,
		ddlChunks(embeddingDimensions),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store migrate: %w", err)
		}
	}
	return nil
}
