package enrich

import (
	"context"
	"fmt"

	"github.com/mvanwyck/reverie/internal/contextsvc"
	"github.com/mvanwyck/reverie/pkg/convo"
)

// DataEnricher loads the always-on and active-manual items of one data type.
// Voice samples have no manual availability, so their instance is constructed
// with manual disabled.
type DataEnricher struct {
	svc    *contextsvc.Service
	typ    convo.DataType
	manual bool
}

var _ Enricher = (*DataEnricher)(nil)

// NewDataEnricher creates the always-on-and-manual enricher for t.
func NewDataEnricher(svc *contextsvc.Service, t convo.DataType) *DataEnricher {
	return &DataEnricher{svc: svc, typ: t, manual: t != convo.TypePersonaVoiceSample}
}

func (e *DataEnricher) Name() string { return string(e.typ) + "_items" }

func (e *DataEnricher) Enrich(ctx context.Context, st *State) error {
	profileID := st.Session.ProfileID

	items, err := e.svc.AlwaysOn(ctx, profileID, e.typ)
	if err != nil {
		return fmt.Errorf("enrich: always-on %s: %w", e.typ, err)
	}
	for _, item := range items {
		st.Insert(item)
	}

	if !e.manual {
		return nil
	}
	items, err = e.svc.ActiveManual(ctx, profileID, e.typ)
	if err != nil {
		return fmt.Errorf("enrich: manual %s: %w", e.typ, err)
	}
	for _, item := range items {
		st.Insert(item)
	}
	return nil
}

// CharacterProfileEnricher loads character sheets like any other data type and
// additionally resolves the user's own profile, from which the user name is
// derived.
type CharacterProfileEnricher struct {
	inner *DataEnricher
	svc   *contextsvc.Service
}

var _ Enricher = (*CharacterProfileEnricher)(nil)

// NewCharacterProfileEnricher creates the character-profile enricher.
func NewCharacterProfileEnricher(svc *contextsvc.Service) *CharacterProfileEnricher {
	return &CharacterProfileEnricher{
		inner: NewDataEnricher(svc, convo.TypeCharacterProfile),
		svc:   svc,
	}
}

func (e *CharacterProfileEnricher) Name() string { return "character_profiles" }

func (e *CharacterProfileEnricher) Enrich(ctx context.Context, st *State) error {
	if err := e.inner.Enrich(ctx, st); err != nil {
		return err
	}

	profile, err := e.svc.UserProfile(ctx, st.Session.ProfileID)
	if err != nil {
		return fmt.Errorf("enrich: user profile: %w", err)
	}
	st.SetUserProfile(profile)
	return nil
}
