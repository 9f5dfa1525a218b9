package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mvanwyck/reverie/pkg/convo"
)

// PersonaByID implements [SystemMessageStore].
func (s *Store) PersonaByID(ctx context.Context, id int64) (*convo.SystemMessage, error) {
	const q = `
		SELECT id, profile_id, kind, name, content, is_active, created_at
		FROM   system_messages
		WHERE  id = $1 AND kind = $2 AND is_active`

	row := s.pool.QueryRow(ctx, q, id, string(convo.KindPersona))
	msg, err := scanSystemMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: persona %d: %w", id, err)
	}
	return msg, nil
}

// ActivePerceptions implements [SystemMessageStore].
func (s *Store) ActivePerceptions(ctx context.Context, profileID int64) ([]convo.SystemMessage, error) {
	const q = `
		SELECT id, profile_id, kind, name, content, is_active, created_at
		FROM   system_messages
		WHERE  (profile_id = $1 OR profile_id = 0)
		  AND  kind = $2 AND is_active
		ORDER  BY id`

	rows, err := s.pool.Query(ctx, q, profileID, string(convo.KindPerception))
	if err != nil {
		return nil, fmt.Errorf("store: active perceptions: %w", err)
	}

	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (convo.SystemMessage, error) {
		m, err := scanSystemMessage(row)
		if err != nil {
			return convo.SystemMessage{}, err
		}
		return *m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: active perceptions: scan rows: %w", err)
	}
	if msgs == nil {
		msgs = []convo.SystemMessage{}
	}
	return msgs, nil
}

func scanSystemMessage(row pgx.Row) (*convo.SystemMessage, error) {
	var (
		m    convo.SystemMessage
		kind string
	)
	err := row.Scan(&m.ID, &m.ProfileID, &kind, &m.Name, &m.Content, &m.IsActive, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.Kind = convo.SystemMessageKind(kind)
	return &m, nil
}
