// Package storemock provides an in-memory test double for the store
// interfaces in internal/store.
//
// Unlike a pure stub, the mock keeps real state (items, turns, flags,
// settings) and applies the same filtering rules as the SQL implementation so
// that enricher and pipeline tests exercise realistic query behaviour. Error
// injection fields force failures for isolation tests.
//
// All methods are safe for concurrent use via an internal [sync.Mutex].
package storemock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mvanwyck/reverie/internal/store"
	"github.com/mvanwyck/reverie/pkg/convo"
)

// Compile-time interface checks.
var (
	_ store.SessionStore       = (*Store)(nil)
	_ store.TurnStore          = (*Store)(nil)
	_ store.ContextDataStore   = (*Store)(nil)
	_ store.FlagStore          = (*Store)(nil)
	_ store.SettingStore       = (*Store)(nil)
	_ store.SystemMessageStore = (*Store)(nil)
)

// Store is an in-memory implementation of every internal/store interface.
// Populate the exported slices and maps directly before use.
type Store struct {
	mu sync.Mutex

	Session  *convo.Session
	Turns    []convo.Turn
	Items    []convo.ContextData
	Flags    []convo.Flag
	Settings map[string]string
	Personas []convo.SystemMessage

	nextTurnID int64

	// Err, when non-nil, is returned by every read method. Write methods are
	// unaffected so that commit-path tests can still observe state.
	Err error
}

// New returns an empty mock store.
func New() *Store {
	return &Store{Settings: map[string]string{}}
}

// ActiveSession implements [store.SessionStore].
func (s *Store) ActiveSession(ctx context.Context) (*convo.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Session == nil {
		return nil, nil
	}
	sess := *s.Session
	return &sess, nil
}

// CreateTurn implements [store.TurnStore].
func (s *Store) CreateTurn(ctx context.Context, sessionID int64, input string) (*convo.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTurnID++
	t := convo.Turn{
		ID:        s.nextTurnID + 1000,
		SessionID: sessionID,
		Input:     input,
		CreatedAt: time.Now(),
	}
	s.Turns = append(s.Turns, t)
	return &t, nil
}

// CommitTurn implements [store.TurnStore].
func (s *Store) CommitTurn(ctx context.Context, turnID int64, response, serializedRequest string, accepted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Turns {
		if s.Turns[i].ID == turnID {
			s.Turns[i].Response = response
			s.Turns[i].SerializedRequest = serializedRequest
			s.Turns[i].Accepted = accepted
			return nil
		}
	}
	return nil
}

// acceptedAsc returns accepted turns of the session in chronological order.
// Must be called with s.mu held.
func (s *Store) acceptedAsc(sessionID int64) []convo.Turn {
	var out []convo.Turn
	for _, t := range s.Turns {
		if t.SessionID == sessionID && t.Accepted {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// RecentAccepted implements [store.TurnStore].
func (s *Store) RecentAccepted(ctx context.Context, sessionID int64, limit int) ([]convo.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	all := s.acceptedAsc(sessionID)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]convo.Turn{}, all...), nil
}

// OlderAccepted implements [store.TurnStore].
func (s *Store) OlderAccepted(ctx context.Context, sessionID int64, skip, limit int) ([]convo.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	all := s.acceptedAsc(sessionID)
	if skip >= len(all) {
		return []convo.Turn{}, nil
	}
	all = all[:len(all)-skip]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]convo.Turn{}, all...), nil
}

// CountAccepted implements [store.TurnStore].
func (s *Store) CountAccepted(ctx context.Context, sessionID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	return len(s.acceptedAsc(sessionID)), nil
}

// UnstrippedAccepted implements [store.TurnStore].
func (s *Store) UnstrippedAccepted(ctx context.Context, limit int) ([]convo.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []convo.Turn
	for _, t := range s.Turns {
		if t.Accepted && t.Response != "" && t.StrippedTurn == "" {
			out = append(out, t)
			if len(out) == limit {
				break
			}
		}
	}
	if out == nil {
		out = []convo.Turn{}
	}
	return out, nil
}

// SetStrippedTurn implements [store.TurnStore].
func (s *Store) SetStrippedTurn(ctx context.Context, turnID int64, stripped string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Turns {
		if s.Turns[i].ID == turnID {
			s.Turns[i].StrippedTurn = stripped
		}
	}
	return nil
}

// inScope reports whether an item belongs to the profile or is global.
func inScope(profileID, itemProfileID int64) bool {
	return itemProfileID == profileID || itemProfileID == convo.GlobalProfileID
}

// AlwaysOn implements [store.ContextDataStore].
func (s *Store) AlwaysOn(ctx context.Context, profileID int64, t convo.DataType) ([]convo.ContextData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []convo.ContextData
	for _, it := range s.Items {
		if inScope(profileID, it.ProfileID) && it.Type == t &&
			it.Availability == convo.AvailabilityAlwaysOn &&
			it.IsEnabled && !it.IsArchived {
			out = append(out, it)
		}
	}
	sortItems(out)
	if out == nil {
		out = []convo.ContextData{}
	}
	return out, nil
}

// ActiveManual implements [store.ContextDataStore].
func (s *Store) ActiveManual(ctx context.Context, profileID int64, t convo.DataType) ([]convo.ContextData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []convo.ContextData
	for _, it := range s.Items {
		if inScope(profileID, it.ProfileID) && it.Type == t &&
			it.Availability == convo.AvailabilityManual &&
			(it.UseEveryTurn || it.UseNextTurnOnly) &&
			it.IsEnabled && !it.IsArchived {
			out = append(out, it)
		}
	}
	sortItems(out)
	if out == nil {
		out = []convo.ContextData{}
	}
	return out, nil
}

// TriggerCandidates implements [store.ContextDataStore].
func (s *Store) TriggerCandidates(ctx context.Context, profileID int64) ([]convo.ContextData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []convo.ContextData
	for _, it := range s.Items {
		if inScope(profileID, it.ProfileID) &&
			it.Availability == convo.AvailabilityTrigger &&
			it.IsEnabled && !it.IsArchived {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if out == nil {
		out = []convo.ContextData{}
	}
	return out, nil
}

// UserProfile implements [store.ContextDataStore].
func (s *Store) UserProfile(ctx context.Context, profileID int64) (*convo.ContextData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, it := range s.Items {
		if inScope(profileID, it.ProfileID) && it.Type == convo.TypeCharacterProfile &&
			it.IsUser && it.IsEnabled && !it.IsArchived {
			found := it
			return &found, nil
		}
	}
	return nil, nil
}

// ByIDs implements [store.ContextDataStore].
func (s *Store) ByIDs(ctx context.Context, ids []int64) ([]convo.ContextData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	byID := make(map[int64]convo.ContextData, len(s.Items))
	for _, it := range s.Items {
		if !it.IsEnabled || it.IsArchived || it.Availability == convo.AvailabilityArchive {
			continue
		}
		byID[it.ID] = it
	}
	out := make([]convo.ContextData, 0, len(ids))
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

// SaveContextData implements [store.ContextDataStore].
func (s *Store) SaveContextData(ctx context.Context, item *convo.ContextData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == 0 {
		var max int64
		for _, it := range s.Items {
			if it.ID > max {
				max = it.ID
			}
		}
		item.ID = max + 1
		s.Items = append(s.Items, *item)
		return nil
	}
	for i := range s.Items {
		if s.Items[i].ID == item.ID {
			s.Items[i] = *item
			return nil
		}
	}
	s.Items = append(s.Items, *item)
	return nil
}

// MarkUsed implements [store.ContextDataStore].
func (s *Store) MarkUsed(ctx context.Context, ids []int64, turnID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := idSet(ids)
	for i := range s.Items {
		if set[s.Items[i].ID] {
			s.Items[i].UsedLastOnTurnID = turnID
		}
	}
	return nil
}

// RecordTriggerActivation implements [store.ContextDataStore].
func (s *Store) RecordTriggerActivation(ctx context.Context, ids []int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := idSet(ids)
	for i := range s.Items {
		if set[s.Items[i].ID] {
			s.Items[i].TriggerUseCount++
			t := at
			s.Items[i].TriggerLastMatchedAt = &t
		}
	}
	return nil
}

// RevertNextTurnOnly implements [store.ContextDataStore].
func (s *Store) RevertNextTurnOnly(ctx context.Context, turnID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Items {
		it := &s.Items[i]
		if it.UseNextTurnOnly && it.UsedLastOnTurnID == turnID {
			if it.PreviousAvailability != nil {
				it.Availability = *it.PreviousAvailability
			}
			it.UseNextTurnOnly = false
			it.PreviousAvailability = nil
		}
	}
	return nil
}

// SetEmbeddingState implements [store.ContextDataStore].
func (s *Store) SetEmbeddingState(ctx context.Context, id, vectorID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Items {
		if s.Items[i].ID == id {
			s.Items[i].VectorID = vectorID
			s.Items[i].InVectorDB = true
			t := at
			s.Items[i].EmbeddingUpdatedAt = &t
		}
	}
	return nil
}

// NeedsEmbedding implements [store.ContextDataStore].
func (s *Store) NeedsEmbedding(ctx context.Context, limit int) ([]convo.ContextData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []convo.ContextData
	for _, it := range s.Items {
		if !convo.SemanticEligible(it.Type) || !it.IsEnabled || it.IsArchived {
			continue
		}
		stale := !it.InVectorDB ||
			(it.EmbeddingUpdatedAt != nil && it.EmbeddingUpdatedAt.Before(it.UpdatedAt))
		if stale {
			out = append(out, it)
			if len(out) == limit {
				break
			}
		}
	}
	if out == nil {
		out = []convo.ContextData{}
	}
	return out, nil
}

// NeedsDeindex implements [store.ContextDataStore].
func (s *Store) NeedsDeindex(ctx context.Context, limit int) ([]convo.ContextData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []convo.ContextData
	for _, it := range s.Items {
		if !it.InVectorDB {
			continue
		}
		if !it.IsEnabled || it.IsArchived || it.Availability == convo.AvailabilityArchive {
			out = append(out, it)
			if len(out) == limit {
				break
			}
		}
	}
	if out == nil {
		out = []convo.ContextData{}
	}
	return out, nil
}

// ClearEmbeddingState implements [store.ContextDataStore].
func (s *Store) ClearEmbeddingState(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Items {
		if s.Items[i].ID == id {
			s.Items[i].VectorID = 0
			s.Items[i].InVectorDB = false
		}
	}
	return nil
}

// ActiveFlags implements [store.FlagStore].
func (s *Store) ActiveFlags(ctx context.Context, profileID int64) ([]convo.Flag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []convo.Flag
	for _, f := range s.Flags {
		if inScope(profileID, f.ProfileID) && (f.Active || f.Constant) {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Active != out[j].Active {
			return out[i].Active
		}
		ti, tj := out[i].CreatedAt, out[j].CreatedAt
		if out[i].LastUsedAt != nil {
			ti = *out[i].LastUsedAt
		}
		if out[j].LastUsedAt != nil {
			tj = *out[j].LastUsedAt
		}
		return ti.After(tj)
	})
	if out == nil {
		out = []convo.Flag{}
	}
	return out, nil
}

// ConsumeFlags implements [store.FlagStore].
func (s *Store) ConsumeFlags(ctx context.Context, ids []int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := idSet(ids)
	for i := range s.Flags {
		if set[s.Flags[i].ID] {
			if !s.Flags[i].Constant {
				s.Flags[i].Active = false
			}
			t := at
			s.Flags[i].LastUsedAt = &t
		}
	}
	return nil
}

// Setting implements [store.SettingStore].
func (s *Store) Setting(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", false, s.Err
	}
	v, ok := s.Settings[key]
	return v, ok, nil
}

// PersonaByID implements [store.SystemMessageStore].
func (s *Store) PersonaByID(ctx context.Context, id int64) (*convo.SystemMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, m := range s.Personas {
		if m.ID == id && m.Kind == convo.KindPersona && m.IsActive {
			found := m
			return &found, nil
		}
	}
	return nil, nil
}

// ActivePerceptions implements [store.SystemMessageStore].
func (s *Store) ActivePerceptions(ctx context.Context, profileID int64) ([]convo.SystemMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []convo.SystemMessage
	for _, m := range s.Personas {
		if inScope(profileID, m.ProfileID) && m.Kind == convo.KindPerception && m.IsActive {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if out == nil {
		out = []convo.SystemMessage{}
	}
	return out, nil
}

// ItemByID returns a copy of the stored item, for test assertions.
func (s *Store) ItemByID(id int64) (convo.ContextData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.Items {
		if it.ID == id {
			return it, true
		}
	}
	return convo.ContextData{}, false
}

// FlagByID returns a copy of the stored flag, for test assertions.
func (s *Store) FlagByID(id int64) (convo.Flag, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.Flags {
		if f.ID == id {
			return f, true
		}
	}
	return convo.Flag{}, false
}

// TurnByID returns a copy of the stored turn, for test assertions.
func (s *Store) TurnByID(id int64) (convo.Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.Turns {
		if t.ID == id {
			return t, true
		}
	}
	return convo.Turn{}, false
}

func sortItems(items []convo.ContextData) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].SortOrder != items[j].SortOrder {
			return items[i].SortOrder < items[j].SortOrder
		}
		return items[i].ID < items[j].ID
	})
}

func idSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
