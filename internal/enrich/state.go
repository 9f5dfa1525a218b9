// Package enrich populates the per-turn conversation state: a set of
// concurrent enrichers each contribute context items, history, flags, and
// perceptions to a shared State, which the request builder then consumes.
package enrich

import (
	"sort"
	"sync"

	"github.com/mvanwyck/reverie/pkg/convo"
)

// State is the shared mutable bag populated by enrichers during a turn and
// read by the request builder afterwards.
//
// Insert is the sole write path for context items and enforces uniqueness by
// item id across all collections; two enrichers inserting the same item leave
// exactly one occurrence. All methods are safe for concurrent use.
type State struct {
	Session *convo.Session
	Turn    *convo.Turn
	Persona *convo.SystemMessage

	// PersonaName is resolved from the persona record before enrichment.
	PersonaName string

	// IsOOC is set when the input opens with the out-of-character marker.
	IsOOC bool

	mu sync.Mutex

	userProfile *convo.ContextData
	userName    string

	items map[convo.DataType]map[int64]convo.ContextData

	recentTurns      []convo.Turn
	previousTurn     *convo.Turn
	previousResponse string
	dialogueLog      string

	flags       []convo.Flag
	perceptions []convo.Perception
}

// NewState creates a state seeded with the session, the turn being processed,
// and the active persona.
func NewState(session *convo.Session, turn *convo.Turn, persona *convo.SystemMessage) *State {
	st := &State{
		Session: session,
		Turn:    turn,
		Persona: persona,
		items:   map[convo.DataType]map[int64]convo.ContextData{},
	}
	if persona != nil {
		st.PersonaName = persona.Name
	}
	return st
}

// Insert adds a context item to its type's collection. It reports whether the
// item was newly inserted; an item whose id is already present anywhere in
// the state is left untouched.
func (s *State) Insert(item convo.ContextData) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, coll := range s.items {
		if _, ok := coll[item.ID]; ok {
			return false
		}
	}
	coll, ok := s.items[item.Type]
	if !ok {
		coll = map[int64]convo.ContextData{}
		s.items[item.Type] = coll
	}
	coll[item.ID] = item
	return true
}

// Contains reports whether an item with the given id is present in any
// collection.
func (s *State) Contains(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, coll := range s.items {
		if _, ok := coll[id]; ok {
			return true
		}
	}
	return false
}

// Items returns a snapshot of the collection for type t, sorted by item id.
// Callers needing a different order sort the copy themselves.
func (s *State) Items(t convo.DataType) []convo.ContextData {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.items[t]
	out := make([]convo.ContextData, 0, len(coll))
	for _, item := range coll {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ItemIDs returns the ids of every context item in the state, including the
// user profile, sorted ascending. The commit path uses this for usage
// bookkeeping.
func (s *State) ItemIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for _, coll := range s.items {
		for id := range coll {
			ids = append(ids, id)
		}
	}
	if s.userProfile != nil {
		ids = append(ids, s.userProfile.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SetUserProfile records the user's character profile and derives the user
// name from it.
func (s *State) SetUserProfile(profile *convo.ContextData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userProfile = profile
	if profile != nil && profile.Name != "" {
		s.userName = profile.Name
	}
}

// UserProfile returns the user's character profile, or nil.
func (s *State) UserProfile() *convo.ContextData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userProfile
}

// UserName returns the display name of the human user, defaulting to "User"
// when no profile provided one.
func (s *State) UserName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userName == "" {
		return "User"
	}
	return s.userName
}

// SetRecentTurns stores the recent accepted history (chronological ascending)
// and derives the previous turn and response from the newest entry.
func (s *State) SetRecentTurns(turns []convo.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recentTurns = turns
	if len(turns) > 0 {
		last := turns[len(turns)-1]
		s.previousTurn = &last
		s.previousResponse = last.Response
	}
}

// RecentTurns returns the recent accepted history, oldest first.
func (s *State) RecentTurns() []convo.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]convo.Turn{}, s.recentTurns...)
}

// PreviousTurn returns the newest accepted turn before the current one, or nil.
func (s *State) PreviousTurn() *convo.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previousTurn
}

// PreviousResponse returns the response of the previous accepted turn, or "".
func (s *State) PreviousResponse() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previousResponse
}

// SetDialogueLog stores the formatted older-history block.
func (s *State) SetDialogueLog(log string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialogueLog = log
}

// DialogueLog returns the formatted older-history block, or "".
func (s *State) DialogueLog() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialogueLog
}

// SetFlags stores the active steering flags in their store order.
func (s *State) SetFlags(flags []convo.Flag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags = flags
}

// Flags returns the active steering flags.
func (s *State) Flags() []convo.Flag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]convo.Flag{}, s.flags...)
}

// AddPerceptions appends perception records.
func (s *State) AddPerceptions(records []convo.Perception) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perceptions = append(s.perceptions, records...)
}

// Perceptions returns all perception records added so far.
func (s *State) Perceptions() []convo.Perception {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]convo.Perception{}, s.perceptions...)
}

// Input returns the current turn's input text, or "".
func (s *State) Input() string {
	if s.Turn == nil {
		return ""
	}
	return s.Turn.Input
}
