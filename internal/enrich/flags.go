package enrich

import (
	"context"
	"fmt"

	"github.com/mvanwyck/reverie/internal/store"
)

// FlagEnricher loads the active steering flags in their prompt order.
type FlagEnricher struct {
	flags store.FlagStore
}

var _ Enricher = (*FlagEnricher)(nil)

// NewFlagEnricher creates the flag enricher.
func NewFlagEnricher(flags store.FlagStore) *FlagEnricher {
	return &FlagEnricher{flags: flags}
}

func (e *FlagEnricher) Name() string { return "flags" }

func (e *FlagEnricher) Enrich(ctx context.Context, st *State) error {
	flags, err := e.flags.ActiveFlags(ctx, st.Session.ProfileID)
	if err != nil {
		return fmt.Errorf("enrich: active flags: %w", err)
	}
	st.SetFlags(flags)
	return nil
}
