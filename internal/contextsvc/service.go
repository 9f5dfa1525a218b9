// Package contextsvc centralizes activation mechanics over context items:
// availability-scoped reads, trigger keyword evaluation, and the post-turn
// lifecycle that reverts one-shot manual toggles.
package contextsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/mvanwyck/reverie/internal/store"
	"github.com/mvanwyck/reverie/pkg/convo"
)

// Service applies availability-specific filters over the context-data store.
// It holds no per-turn state and is safe for concurrent use.
type Service struct {
	items store.ContextDataStore
}

// New creates a context-item service over items.
func New(items store.ContextDataStore) *Service {
	return &Service{items: items}
}

// AlwaysOn returns the enabled, unarchived items of type t with always-on
// availability, scoped to the profile plus globals.
func (s *Service) AlwaysOn(ctx context.Context, profileID int64, t convo.DataType) ([]convo.ContextData, error) {
	return s.items.AlwaysOn(ctx, profileID, t)
}

// ActiveManual returns the manual items of type t whose use-every-turn or
// use-next-turn-only toggle is currently set.
func (s *Service) ActiveManual(ctx context.Context, profileID int64, t convo.DataType) ([]convo.ContextData, error) {
	return s.items.ActiveManual(ctx, profileID, t)
}

// TriggerCandidates returns every trigger-availability item in scope,
// regardless of whether its keywords currently match anything.
func (s *Service) TriggerCandidates(ctx context.Context, profileID int64) ([]convo.ContextData, error) {
	return s.items.TriggerCandidates(ctx, profileID)
}

// UserProfile returns the character profile marked as describing the human
// user, or nil when none exists.
func (s *Service) UserProfile(ctx context.Context, profileID int64) (*convo.ContextData, error) {
	return s.items.UserProfile(ctx, profileID)
}

// ByIDs resolves canonical items for the given ids, preserving order. Items
// that are disabled or archived do not resolve, so retrieval paths working
// from stale references (chunk hits in particular) cannot resurrect them.
func (s *Service) ByIDs(ctx context.Context, ids []int64) ([]convo.ContextData, error) {
	return s.items.ByIDs(ctx, ids)
}

// RecordActivations bumps the trigger usage counter and last-matched
// timestamp for the given items.
func (s *Service) RecordActivations(ctx context.Context, ids []int64, at time.Time) error {
	return s.items.RecordTriggerActivation(ctx, ids, at)
}

// MarkUsed stamps the given items as last used on turnID.
func (s *Service) MarkUsed(ctx context.Context, ids []int64, turnID int64) error {
	return s.items.MarkUsed(ctx, ids, turnID)
}

// ProcessPostTurn runs once after a committed turn. Every item whose
// use-next-turn-only toggle was consumed by this turn reverts to its recorded
// previous availability. Use-every-turn items are untouched. The operation is
// idempotent; running it twice for the same turn is a no-op the second time.
func (s *Service) ProcessPostTurn(ctx context.Context, turnID int64) error {
	if err := s.items.RevertNextTurnOnly(ctx, turnID); err != nil {
		return fmt.Errorf("contextsvc: post turn %d: %w", turnID, err)
	}
	return nil
}
