package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mvanwyck/reverie/pkg/convo"
)

const contextDataColumns = `
	id, profile_id, type, availability, name, content, speaker,
	source_session_id, tags, sort_order, token_count, relevance,
	vector_id, in_vector_db, embedding_updated_at,
	use_every_turn, use_next_turn_only, previous_availability,
	trigger_keywords, trigger_min_match_count, trigger_lookback_turns,
	trigger_use_count, trigger_last_matched_at,
	is_enabled, is_archived, is_user, used_last_on_turn_id,
	created_at, updated_at`

// AlwaysOn implements [ContextDataStore].
func (s *Store) AlwaysOn(ctx context.Context, profileID int64, t convo.DataType) ([]convo.ContextData, error) {
	const q = `
		SELECT ` + contextDataColumns + `
		FROM   context_data
		WHERE  (profile_id = $1 OR profile_id = 0)
		  AND  type = $2
		  AND  availability = $3
		  AND  is_enabled AND NOT is_archived
		ORDER  BY sort_order, id`

	rows, err := s.pool.Query(ctx, q, profileID, string(t), string(convo.AvailabilityAlwaysOn))
	if err != nil {
		return nil, fmt.Errorf("store: always-on %s: %w", t, err)
	}
	return collectContextData(rows, fmt.Sprintf("always-on %s", t))
}

// ActiveManual implements [ContextDataStore].
func (s *Store) ActiveManual(ctx context.Context, profileID int64, t convo.DataType) ([]convo.ContextData, error) {
	const q = `
		SELECT ` + contextDataColumns + `
		FROM   context_data
		WHERE  (profile_id = $1 OR profile_id = 0)
		  AND  type = $2
		  AND  availability = $3
		  AND  (use_every_turn OR use_next_turn_only)
		  AND  is_enabled AND NOT is_archived
		ORDER  BY sort_order, id`

	rows, err := s.pool.Query(ctx, q, profileID, string(t), string(convo.AvailabilityManual))
	if err != nil {
		return nil, fmt.Errorf("store: active manual %s: %w", t, err)
	}
	return collectContextData(rows, fmt.Sprintf("active manual %s", t))
}

// TriggerCandidates implements [ContextDataStore].
func (s *Store) TriggerCandidates(ctx context.Context, profileID int64) ([]convo.ContextData, error) {
	const q = `
		SELECT ` + contextDataColumns + `
		FROM   context_data
		WHERE  (profile_id = $1 OR profile_id = 0)
		  AND  availability = $2
		  AND  is_enabled AND NOT is_archived
		ORDER  BY id`

	rows, err := s.pool.Query(ctx, q, profileID, string(convo.AvailabilityTrigger))
	if err != nil {
		return nil, fmt.Errorf("store: trigger candidates: %w", err)
	}
	return collectContextData(rows, "trigger candidates")
}

// UserProfile implements [ContextDataStore].
func (s *Store) UserProfile(ctx context.Context, profileID int64) (*convo.ContextData, error) {
	const q = `
		SELECT ` + contextDataColumns + `
		FROM   context_data
		WHERE  (profile_id = $1 OR profile_id = 0)
		  AND  type = $2
		  AND  is_user
		  AND  is_enabled AND NOT is_archived
		ORDER  BY profile_id DESC, id
		LIMIT  1`

	row := s.pool.QueryRow(ctx, q, profileID, string(convo.TypeCharacterProfile))
	item, err := scanContextData(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: user profile: %w", err)
	}
	return item, nil
}

// ByIDs implements [ContextDataStore]. The result preserves the order of ids;
// ids that do not resolve, or whose item is disabled or archived, are skipped.
// The filter guards the semantic lift: stale chunks may still reference items
// that were archived after indexing, and those must never re-enter a turn.
func (s *Store) ByIDs(ctx context.Context, ids []int64) ([]convo.ContextData, error) {
	if len(ids) == 0 {
		return []convo.ContextData{}, nil
	}

	const q = `
		SELECT ` + contextDataColumns + `
		FROM   context_data
		WHERE  id = ANY($1)
		  AND  is_enabled AND NOT is_archived
		  AND  availability <> $2`

	rows, err := s.pool.Query(ctx, q, ids, string(convo.AvailabilityArchive))
	if err != nil {
		return nil, fmt.Errorf("store: by ids: %w", err)
	}
	items, err := collectContextData(rows, "by ids")
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]convo.ContextData, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	ordered := make([]convo.ContextData, 0, len(ids))
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			ordered = append(ordered, it)
		}
	}
	return ordered, nil
}

// SaveContextData implements [ContextDataStore]. It enforces the
// type × availability validity matrix before writing.
func (s *Store) SaveContextData(ctx context.Context, item *convo.ContextData) error {
	if !item.Type.IsValid() {
		return fmt.Errorf("store: save context data: unknown type %q", item.Type)
	}
	if !convo.ValidCombination(item.Type, item.Availability) {
		return fmt.Errorf("store: save context data: availability %q not valid for type %q",
			item.Availability, item.Type)
	}

	var prevAvail *string
	if item.PreviousAvailability != nil {
		v := string(*item.PreviousAvailability)
		prevAvail = &v
	}

	if item.ID == 0 {
		const q = `
			INSERT INTO context_data (
				profile_id, type, availability, name, content, speaker,
				source_session_id, tags, sort_order, token_count, relevance,
				use_every_turn, use_next_turn_only, previous_availability,
				trigger_keywords, trigger_min_match_count, trigger_lookback_turns,
				is_enabled, is_archived, is_user
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
			RETURNING id, created_at, updated_at`

		err := s.pool.QueryRow(ctx, q,
			item.ProfileID, string(item.Type), string(item.Availability),
			item.Name, item.Content, item.Speaker,
			item.SourceSessionID, item.Tags, item.SortOrder, item.TokenCount, item.Relevance,
			item.UseEveryTurn, item.UseNextTurnOnly, prevAvail,
			item.TriggerKeywords, item.TriggerMinMatchCount, item.TriggerLookbackTurns,
			item.IsEnabled, item.IsArchived, item.IsUser,
		).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
		if err != nil {
			return fmt.Errorf("store: insert context data: %w", err)
		}
		return nil
	}

	const q = `
		UPDATE context_data SET
			profile_id = $2, type = $3, availability = $4, name = $5,
			content = $6, speaker = $7, source_session_id = $8, tags = $9,
			sort_order = $10, token_count = $11, relevance = $12,
			use_every_turn = $13, use_next_turn_only = $14, previous_availability = $15,
			trigger_keywords = $16, trigger_min_match_count = $17, trigger_lookback_turns = $18,
			is_enabled = $19, is_archived = $20, is_user = $21,
			updated_at = now()
		WHERE id = $1`

	if _, err := s.pool.Exec(ctx, q,
		item.ID, item.ProfileID, string(item.Type), string(item.Availability),
		item.Name, item.Content, item.Speaker, item.SourceSessionID, item.Tags,
		item.SortOrder, item.TokenCount, item.Relevance,
		item.UseEveryTurn, item.UseNextTurnOnly, prevAvail,
		item.TriggerKeywords, item.TriggerMinMatchCount, item.TriggerLookbackTurns,
		item.IsEnabled, item.IsArchived, item.IsUser,
	); err != nil {
		return fmt.Errorf("store: update context data %d: %w", item.ID, err)
	}
	return nil
}

// MarkUsed implements [ContextDataStore].
func (s *Store) MarkUsed(ctx context.Context, ids []int64, turnID int64) error {
	if len(ids) == 0 {
		return nil
	}

	const q = `UPDATE context_data SET used_last_on_turn_id = $2 WHERE id = ANY($1)`

	if _, err := s.pool.Exec(ctx, q, ids, turnID); err != nil {
		return fmt.Errorf("store: mark used: %w", err)
	}
	return nil
}

// RecordTriggerActivation implements [ContextDataStore].
func (s *Store) RecordTriggerActivation(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	const q = `
		UPDATE context_data
		SET    trigger_use_count = trigger_use_count + 1,
		       trigger_last_matched_at = $2
		WHERE  id = ANY($1)`

	if _, err := s.pool.Exec(ctx, q, ids, at); err != nil {
		return fmt.Errorf("store: record trigger activation: %w", err)
	}
	return nil
}

// RevertNextTurnOnly implements [ContextDataStore]. Items whose previous
// availability was never recorded keep their current one.
func (s *Store) RevertNextTurnOnly(ctx context.Context, turnID int64) error {
	const q = `
		UPDATE context_data
		SET    availability = COALESCE(previous_availability, availability),
		       use_next_turn_only = false,
		       previous_availability = NULL,
		       updated_at = now()
		WHERE  use_next_turn_only
		  AND  used_last_on_turn_id = $1`

	if _, err := s.pool.Exec(ctx, q, turnID); err != nil {
		return fmt.Errorf("store: revert next-turn-only for turn %d: %w", turnID, err)
	}
	return nil
}

// SetEmbeddingState implements [ContextDataStore].
func (s *Store) SetEmbeddingState(ctx context.Context, id, vectorID int64, at time.Time) error {
	const q = `
		UPDATE context_data
		SET    vector_id = $2, in_vector_db = true, embedding_updated_at = $3
		WHERE  id = $1`

	if _, err := s.pool.Exec(ctx, q, id, vectorID, at); err != nil {
		return fmt.Errorf("store: set embedding state %d: %w", id, err)
	}
	return nil
}

// NeedsEmbedding implements [ContextDataStore].
func (s *Store) NeedsEmbedding(ctx context.Context, limit int) ([]convo.ContextData, error) {
	const q = `
		SELECT ` + contextDataColumns + `
		FROM   context_data
		WHERE  type = ANY($1)
		  AND  is_enabled AND NOT is_archived
		  AND  (NOT in_vector_db OR embedding_updated_at < updated_at)
		ORDER  BY updated_at, id
		LIMIT  $2`

	searchable := make([]string, 0, len(convo.DataTypes))
	for _, t := range convo.DataTypes {
		if convo.SemanticEligible(t) {
			searchable = append(searchable, string(t))
		}
	}

	rows, err := s.pool.Query(ctx, q, searchable, limit)
	if err != nil {
		return nil, fmt.Errorf("store: needs embedding: %w", err)
	}
	return collectContextData(rows, "needs embedding")
}

// NeedsDeindex implements [ContextDataStore].
func (s *Store) NeedsDeindex(ctx context.Context, limit int) ([]convo.ContextData, error) {
	const q = `
		SELECT ` + contextDataColumns + `
		FROM   context_data
		WHERE  in_vector_db
		  AND  (NOT is_enabled OR is_archived OR availability = $1)
		ORDER  BY updated_at, id
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, string(convo.AvailabilityArchive), limit)
	if err != nil {
		return nil, fmt.Errorf("store: needs deindex: %w", err)
	}
	return collectContextData(rows, "needs deindex")
}

// ClearEmbeddingState implements [ContextDataStore].
func (s *Store) ClearEmbeddingState(ctx context.Context, id int64) error {
	const q = `
		UPDATE context_data
		SET    vector_id = 0, in_vector_db = false
		WHERE  id = $1`

	if _, err := s.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("store: clear embedding state %d: %w", id, err)
	}
	return nil
}

// scanContextData scans a single context_data row.
func scanContextData(row pgx.Row) (*convo.ContextData, error) {
	var (
		item      convo.ContextData
		typ       string
		avail     string
		prevAvail *string
	)
	err := row.Scan(
		&item.ID, &item.ProfileID, &typ, &avail, &item.Name, &item.Content,
		&item.Speaker, &item.SourceSessionID, &item.Tags, &item.SortOrder,
		&item.TokenCount, &item.Relevance,
		&item.VectorID, &item.InVectorDB, &item.EmbeddingUpdatedAt,
		&item.UseEveryTurn, &item.UseNextTurnOnly, &prevAvail,
		&item.TriggerKeywords, &item.TriggerMinMatchCount, &item.TriggerLookbackTurns,
		&item.TriggerUseCount, &item.TriggerLastMatchedAt,
		&item.IsEnabled, &item.IsArchived, &item.IsUser, &item.UsedLastOnTurnID,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.Type = convo.DataType(typ)
	item.Availability = convo.Availability(avail)
	if prevAvail != nil {
		a := convo.Availability(*prevAvail)
		item.PreviousAvailability = &a
	}
	return &item, nil
}

// collectContextData scans pgx rows into a slice of context items.
func collectContextData(rows pgx.Rows, op string) ([]convo.ContextData, error) {
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (convo.ContextData, error) {
		item, err := scanContextData(row)
		if err != nil {
			return convo.ContextData{}, err
		}
		return *item, nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: %s: scan rows: %w", op, err)
	}
	if items == nil {
		items = []convo.ContextData{}
	}
	return items, nil
}
