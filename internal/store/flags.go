package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mvanwyck/reverie/pkg/convo"
)

// ActiveFlags implements [FlagStore]. Flags are returned active-first, then
// by last-used (falling back to created) time descending.
func (s *Store) ActiveFlags(ctx context.Context, profileID int64) ([]convo.Flag, error) {
	const q = `
		SELECT id, profile_id, value, active, constant, last_used_at, created_at
		FROM   flags
		WHERE  (profile_id = $1 OR profile_id = 0)
		  AND  (active OR constant)
		ORDER  BY active DESC, COALESCE(last_used_at, created_at) DESC, id`

	rows, err := s.pool.Query(ctx, q, profileID)
	if err != nil {
		return nil, fmt.Errorf("store: active flags: %w", err)
	}

	flags, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (convo.Flag, error) {
		var f convo.Flag
		err := row.Scan(&f.ID, &f.ProfileID, &f.Value, &f.Active, &f.Constant,
			&f.LastUsedAt, &f.CreatedAt)
		return f, err
	})
	if err != nil {
		return nil, fmt.Errorf("store: active flags: scan rows: %w", err)
	}
	if flags == nil {
		flags = []convo.Flag{}
	}
	return flags, nil
}

// ConsumeFlags implements [FlagStore]. Non-constant flags lose their active
// bit; constant flags only record the use.
func (s *Store) ConsumeFlags(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	const q = `
		UPDATE flags
		SET    active = constant AND active,
		       last_used_at = $2
		WHERE  id = ANY($1)`

	if _, err := s.pool.Exec(ctx, q, ids, at); err != nil {
		return fmt.Errorf("store: consume flags: %w", err)
	}
	return nil
}
