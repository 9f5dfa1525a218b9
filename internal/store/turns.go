package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mvanwyck/reverie/pkg/convo"
)

const turnColumns = `id, session_id, input, response, serialized_request, stripped_turn, accepted, created_at`

// ActiveSession implements [SessionStore]. When more than one session is
// marked active the most recently created one wins.
func (s *Store) ActiveSession(ctx context.Context) (*convo.Session, error) {
	const q = `
		SELECT id, profile_id, name, is_active, created_at
		FROM   sessions
		WHERE  is_active
		ORDER  BY created_at DESC
		LIMIT  1`

	var sess convo.Session
	err := s.pool.QueryRow(ctx, q).Scan(
		&sess.ID, &sess.ProfileID, &sess.Name, &sess.IsActive, &sess.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: active session: %w", err)
	}
	return &sess, nil
}

// CreateTurn implements [TurnStore].
func (s *Store) CreateTurn(ctx context.Context, sessionID int64, input string) (*convo.Turn, error) {
	const q = `
		INSERT INTO turns (session_id, input)
		VALUES ($1, $2)
		RETURNING ` + turnColumns

	row := s.pool.QueryRow(ctx, q, sessionID, input)
	turn, err := scanTurn(row)
	if err != nil {
		return nil, fmt.Errorf("store: create turn: %w", err)
	}
	return turn, nil
}

// CommitTurn implements [TurnStore].
func (s *Store) CommitTurn(ctx context.Context, turnID int64, response, serializedRequest string, accepted bool) error {
	const q = `
		UPDATE turns
		SET    response = $2, serialized_request = $3, accepted = $4
		WHERE  id = $1`

	if _, err := s.pool.Exec(ctx, q, turnID, response, serializedRequest, accepted); err != nil {
		return fmt.Errorf("store: commit turn %d: %w", turnID, err)
	}
	return nil
}

// RecentAccepted implements [TurnStore]. The newest limit accepted turns are
// selected and returned oldest first.
func (s *Store) RecentAccepted(ctx context.Context, sessionID int64, limit int) ([]convo.Turn, error) {
	const q = `
		SELECT ` + turnColumns + `
		FROM   turns
		WHERE  session_id = $1 AND accepted
		ORDER  BY created_at DESC, id DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent accepted: %w", err)
	}
	turns, err := collectTurns(rows)
	if err != nil {
		return nil, fmt.Errorf("store: recent accepted: %w", err)
	}
	reverseTurns(turns)
	return turns, nil
}

// OlderAccepted implements [TurnStore]. It skips the newest skip accepted
// turns and returns the next limit older ones, oldest first.
func (s *Store) OlderAccepted(ctx context.Context, sessionID int64, skip, limit int) ([]convo.Turn, error) {
	const q = `
		SELECT ` + turnColumns + `
		FROM   turns
		WHERE  session_id = $1 AND accepted
		ORDER  BY created_at DESC, id DESC
		OFFSET $2
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q, sessionID, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("store: older accepted: %w", err)
	}
	turns, err := collectTurns(rows)
	if err != nil {
		return nil, fmt.Errorf("store: older accepted: %w", err)
	}
	reverseTurns(turns)
	return turns, nil
}

// CountAccepted implements [TurnStore].
func (s *Store) CountAccepted(ctx context.Context, sessionID int64) (int, error) {
	const q = `SELECT count(*) FROM turns WHERE session_id = $1 AND accepted`

	var n int
	if err := s.pool.QueryRow(ctx, q, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count accepted: %w", err)
	}
	return n, nil
}

// UnstrippedAccepted implements [TurnStore].
func (s *Store) UnstrippedAccepted(ctx context.Context, limit int) ([]convo.Turn, error) {
	const q = `
		SELECT ` + turnColumns + `
		FROM   turns
		WHERE  accepted AND response <> '' AND stripped_turn = ''
		ORDER  BY created_at, id
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("store: unstripped accepted: %w", err)
	}
	turns, err := collectTurns(rows)
	if err != nil {
		return nil, fmt.Errorf("store: unstripped accepted: %w", err)
	}
	return turns, nil
}

// SetStrippedTurn implements [TurnStore].
func (s *Store) SetStrippedTurn(ctx context.Context, turnID int64, stripped string) error {
	const q = `UPDATE turns SET stripped_turn = $2 WHERE id = $1`

	if _, err := s.pool.Exec(ctx, q, turnID, stripped); err != nil {
		return fmt.Errorf("store: set stripped turn %d: %w", turnID, err)
	}
	return nil
}

// scanTurn scans a single turn row.
func scanTurn(row pgx.Row) (*convo.Turn, error) {
	var t convo.Turn
	err := row.Scan(
		&t.ID, &t.SessionID, &t.Input, &t.Response,
		&t.SerializedRequest, &t.StrippedTurn, &t.Accepted, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// collectTurns scans pgx rows into a slice of turns.
func collectTurns(rows pgx.Rows) ([]convo.Turn, error) {
	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (convo.Turn, error) {
		t, err := scanTurn(row)
		if err != nil {
			return convo.Turn{}, err
		}
		return *t, nil
	})
	if err != nil {
		return nil, err
	}
	if turns == nil {
		turns = []convo.Turn{}
	}
	return turns, nil
}

// reverseTurns flips a descending query result into chronological order.
func reverseTurns(turns []convo.Turn) {
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
}
