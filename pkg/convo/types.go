// Package convo defines the core entity types shared by every layer of the
// Reverie conversation-enrichment engine: sessions, turns, context items,
// flags, system messages, and perception records.
//
// These types mirror the relational schema in internal/store. They carry no
// behaviour beyond classification helpers so that storage adapters, enrichers,
// and the request builder can exchange values without import cycles.
package convo

import "time"

// DataType classifies a context item by the kind of auxiliary knowledge it
// carries.
type DataType string

const (
	TypeQuote              DataType = "quote"
	TypePersonaVoiceSample DataType = "voice_sample"
	TypeMemory             DataType = "memory"
	TypeInsight            DataType = "insight"
	TypeCharacterProfile   DataType = "character_profile"
	TypeGeneric            DataType = "generic"
)

// DataTypes lists all context-item types in their canonical order.
var DataTypes = []DataType{
	TypeQuote,
	TypePersonaVoiceSample,
	TypeMemory,
	TypeInsight,
	TypeCharacterProfile,
	TypeGeneric,
}

// IsValid reports whether t is a recognised data type.
func (t DataType) IsValid() bool {
	switch t {
	case TypeQuote, TypePersonaVoiceSample, TypeMemory, TypeInsight,
		TypeCharacterProfile, TypeGeneric:
		return true
	}
	return false
}

// Availability is the activation rule controlling whether a context item is
// loaded on a given turn.
type Availability string

const (
	// AvailabilityAlwaysOn loads the item on every turn unconditionally.
	AvailabilityAlwaysOn Availability = "always_on"

	// AvailabilityManual loads the item only while one of the user-controlled
	// toggles (UseEveryTurn, UseNextTurnOnly) is set.
	AvailabilityManual Availability = "manual"

	// AvailabilitySemantic loads the item via nearest-neighbour search against
	// its pre-indexed embedding.
	AvailabilitySemantic Availability = "semantic"

	// AvailabilityTrigger loads the item when its keywords match the turn's
	// scan corpus.
	AvailabilityTrigger Availability = "trigger"

	// AvailabilityArchive disables the item entirely. Archived items never
	// appear in any turn's state.
	AvailabilityArchive Availability = "archive"
)

// IsValid reports whether a is a recognised availability.
func (a Availability) IsValid() bool {
	switch a {
	case AvailabilityAlwaysOn, AvailabilityManual, AvailabilitySemantic,
		AvailabilityTrigger, AvailabilityArchive:
		return true
	}
	return false
}

// validAvailabilities is the type × availability validity matrix. Writes that
// violate it are rejected by the store.
var validAvailabilities = map[DataType]map[Availability]bool{
	TypeQuote: {
		AvailabilityAlwaysOn: true, AvailabilityManual: true,
		AvailabilitySemantic: true, AvailabilityArchive: true,
	},
	TypePersonaVoiceSample: {
		AvailabilityAlwaysOn: true, AvailabilitySemantic: true,
		AvailabilityArchive: true,
	},
	TypeMemory: {
		AvailabilityAlwaysOn: true, AvailabilityManual: true,
		AvailabilitySemantic: true, AvailabilityTrigger: true,
		AvailabilityArchive: true,
	},
	TypeInsight: {
		AvailabilityAlwaysOn: true, AvailabilityManual: true,
		AvailabilitySemantic: true, AvailabilityTrigger: true,
		AvailabilityArchive: true,
	},
	TypeCharacterProfile: {
		AvailabilityAlwaysOn: true, AvailabilityManual: true,
		AvailabilityTrigger: true, AvailabilityArchive: true,
	},
	TypeGeneric: {
		AvailabilityAlwaysOn: true, AvailabilityManual: true,
		AvailabilityTrigger: true, AvailabilityArchive: true,
	},
}

// ValidCombination reports whether availability a is permitted for items of
// type t.
func ValidCombination(t DataType, a Availability) bool {
	return validAvailabilities[t][a]
}

// SemanticEligible reports whether items of type t may be indexed for
// semantic retrieval.
func SemanticEligible(t DataType) bool {
	return validAvailabilities[t][AvailabilitySemantic]
}

// GlobalProfileID is the profile id that marks a context item, flag, or
// system message as visible to every profile.
const GlobalProfileID = 0

// ContextData is the unified persistent entity representing every piece of
// auxiliary context (quotes, memories, insights, character sheets, voice
// samples, and free-form generic data).
type ContextData struct {
	ID        int64
	ProfileID int64

	Type         DataType
	Availability Availability

	Name            string
	Content         string
	Speaker         string
	SourceSessionID int64
	Tags            []string
	SortOrder       int
	TokenCount      int

	// Relevance is an optional free-text reason why this item matters,
	// indexed as its own chunk when present.
	Relevance string

	// Semantic indexing state.
	VectorID           int64
	InVectorDB         bool
	EmbeddingUpdatedAt *time.Time

	// Manual toggles. PreviousAvailability records the availability to revert
	// to once a UseNextTurnOnly item has been consumed by a committed turn.
	UseEveryTurn         bool
	UseNextTurnOnly      bool
	PreviousAvailability *Availability

	// Trigger activation. TriggerKeywords is a comma-separated keyword list;
	// an item activates when at least TriggerMinMatchCount distinct keywords
	// appear in the scan corpus built from the current input plus the last
	// TriggerLookbackTurns accepted turns.
	TriggerKeywords      string
	TriggerMinMatchCount int
	TriggerLookbackTurns int
	TriggerUseCount      int
	TriggerLastMatchedAt *time.Time

	IsEnabled  bool
	IsArchived bool

	// IsUser marks the single CharacterProfile per profile that describes the
	// human user rather than a fictional character.
	IsUser bool

	UsedLastOnTurnID int64

	// ProcessWeight is the retrieval score stamped on semantically retrieved
	// items for this turn. Not persisted.
	ProcessWeight float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session is one persistent conversation between the user and a persona.
type Session struct {
	ID        int64
	ProfileID int64
	Name      string
	IsActive  bool
	CreatedAt time.Time
}

// Turn is a single user exchange within a session: the input, the model's
// response, and the serialized request that produced it.
type Turn struct {
	ID        int64
	SessionID int64

	Input             string
	Response          string
	SerializedRequest string

	// StrippedTurn is the compressed form produced out-of-band by the
	// background stripper, used by the dialogue-log enricher for history
	// older than the recent window.
	StrippedTurn string

	Accepted  bool
	CreatedAt time.Time
}

// Flag is a short-lived steering directive injected into the next request.
// Non-constant flags deactivate the moment they are consumed into a prompt;
// constant flags stay active and only update LastUsedAt.
type Flag struct {
	ID        int64
	ProfileID int64
	Value     string
	Active    bool
	Constant  bool
	LastUsedAt *time.Time
	CreatedAt time.Time
}

// SystemMessageKind distinguishes the roles a system-message record can play.
type SystemMessageKind string

const (
	// KindPersona is the active character's system prompt.
	KindPersona SystemMessageKind = "persona"

	// KindPerception is an analysis prompt run against the latest exchange to
	// produce (property, explanation) annotations.
	KindPerception SystemMessageKind = "perception"
)

// SystemMessage is a stored prompt record (persona sheet or perception
// instruction).
type SystemMessage struct {
	ID        int64
	ProfileID int64
	Kind      SystemMessageKind
	Name      string
	Content   string
	IsActive  bool
	CreatedAt time.Time
}

// Perception is a single (property, explanation) annotation produced by an
// LLM analysis of the latest exchange.
type Perception struct {
	Property    string `json:"property"`
	Explanation string `json:"explanation"`
}
