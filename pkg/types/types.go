// Package types defines the core data structures for the Engram memory system:
// entities, observations, relations, evidence trails, and the closed
// vocabularies they draw from. Everything the stores persist lives here.
package types

import (
	"strings"
	"time"
)

// MemoryStage is the promotion level of an observation or relation.
// Stages are ordered: an item starts at StageObservation and is promoted
// by the consolidator as evidence accumulates.
type MemoryStage string

const (
	// StageObservation is the entry stage for newly recorded facts.
	StageObservation MemoryStage = "observation"

	// StageReinforced indicates a fact has been independently restated.
	StageReinforced MemoryStage = "reinforced"

	// StageEstablished indicates a fact with substantial accumulated evidence.
	StageEstablished MemoryStage = "established"
)

// StageRank returns the ordinal position of a stage (0 = lowest).
// Unknown stages rank as StageObservation.
func StageRank(s MemoryStage) int {
	switch s {
	case StageReinforced:
		return 1
	case StageEstablished:
		return 2
	default:
		return 0
	}
}

// NextStage returns the stage one level above s, or s itself when s is
// already StageEstablished.
func NextStage(s MemoryStage) MemoryStage {
	switch s {
	case StageObservation:
		return StageReinforced
	case StageReinforced:
		return StageEstablished
	default:
		return s
	}
}

// EvidenceSource classifies where a piece of evidence came from.
type EvidenceSource string

const (
	// SourceExplicit marks evidence stated directly by a trusted party.
	SourceExplicit EvidenceSource = "explicit"

	// SourceInferred marks evidence derived by the engine itself.
	SourceInferred EvidenceSource = "inferred"

	// SourceSelfObservation marks the agent's own reflections.
	SourceSelfObservation EvidenceSource = "self-observation"
)

// Evidence is one timestamped record that a fact or relation was stated,
// inferred, or self-observed.
type Evidence struct {
	Timestamp time.Time      `json:"timestamp"`
	Source    EvidenceSource `json:"source"`
}

// EntityType classifies an entity. The set is closed; unknown input is
// normalized to EntityOther rather than rejected.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityProject      EntityType = "project"
	EntityTechnology   EntityType = "technology"
	EntityPreference   EntityType = "preference"
	EntityConcept      EntityType = "concept"
	EntityFile         EntityType = "file"
	EntityService      EntityType = "service"
	EntityOrganization EntityType = "organization"
	EntityAgentSelf    EntityType = "agent-self"
	EntityOther        EntityType = "other"
)

// ValidEntityTypes lists every member of the closed entity-type vocabulary.
var ValidEntityTypes = []EntityType{
	EntityPerson,
	EntityProject,
	EntityTechnology,
	EntityPreference,
	EntityConcept,
	EntityFile,
	EntityService,
	EntityOrganization,
	EntityAgentSelf,
	EntityOther,
}

// entityTypeSynonyms folds common aliases into canonical entity types.
var entityTypeSynonyms = map[string]EntityType{
	"human":      EntityPerson,
	"user":       EntityPerson,
	"contact":    EntityPerson,
	"tool":       EntityTechnology,
	"framework":  EntityTechnology,
	"language":   EntityTechnology,
	"library":    EntityTechnology,
	"tech":       EntityTechnology,
	"repo":       EntityProject,
	"repository": EntityProject,
	"idea":       EntityConcept,
	"topic":      EntityConcept,
	"document":   EntityFile,
	"org":        EntityOrganization,
	"company":    EntityOrganization,
	"team":       EntityOrganization,
	"api":        EntityService,
	"server":     EntityService,
	"app":        EntityService,
	"self":       EntityAgentSelf,
	"agent":      EntityAgentSelf,
	"assistant":  EntityAgentSelf,
	"habit":      EntityPreference,
	"like":       EntityPreference,
	"dislike":    EntityPreference,
}

// NormalizeEntityType folds a raw type string into the closed vocabulary.
// Matching is case-insensitive; unmappable input becomes EntityOther so that
// entity creation is never blocked by a bad tool-call argument.
func NormalizeEntityType(raw string) EntityType {
	folded := strings.ToLower(strings.TrimSpace(raw))
	for _, t := range ValidEntityTypes {
		if folded == string(t) {
			return t
		}
	}
	if t, ok := entityTypeSynonyms[folded]; ok {
		return t
	}
	return EntityOther
}

// SelfEntityName is the reserved name of the entity representing the agent's
// own identity. Only self-reflection operations may append observations to
// it, and bulk clears preserve it unless explicitly confirmed.
const SelfEntityName = "self"

// Observation is one self-contained factual statement about an entity,
// with its own evidence trail and promotion stage.
//
// Confidence is derived from the evidence trail on every access and is
// deliberately not persisted; see the evidence package.
type Observation struct {
	Text             string      `json:"text"`
	Stage            MemoryStage `json:"stage"`
	Evidence         []Evidence  `json:"evidence"`
	Stale            bool        `json:"stale,omitempty"`
	FirstSeenAt      time.Time   `json:"first_seen_at"`
	LastReinforcedAt time.Time   `json:"last_reinforced_at"`
}

// Entity is a named thing the engine remembers. Names are unique under
// case-insensitive comparison; adding an existing name merges instead of
// duplicating.
type Entity struct {
	Name         string        `json:"name"`
	Type         EntityType    `json:"type"`
	Observations []Observation `json:"observations"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Meta tracks consolidation bookkeeping for the knowledge graph.
type Meta struct {
	LastConsolidatedAt          time.Time `json:"last_consolidated_at"`
	MutationsSinceConsolidation int       `json:"mutations_since_consolidation"`
	ConsolidationCount          int       `json:"consolidation_count"`
}
