package types

import (
	"strings"
	"time"
)

// RelationType is a canonical, closed vocabulary of edge types. Raw input
// strings are folded into this vocabulary by NormalizeRelationType; anything
// unmappable becomes RelRelatedTo rather than failing, so relation creation
// is never blocked by vocabulary drift.
type RelationType string

const (
	// People and organizations
	RelKnows     RelationType = "knows"
	RelWorksWith RelationType = "works-with"
	RelWorksOn   RelationType = "works-on"
	RelWorksAt   RelationType = "works-at"
	RelMemberOf  RelationType = "member-of"
	RelLeads     RelationType = "leads"
	RelMarriedTo RelationType = "married-to"
	RelFriendOf  RelationType = "friend-of"

	// Projects and technology
	RelUses      RelationType = "uses"
	RelDependsOn RelationType = "depends-on"
	RelPartOf    RelationType = "part-of"
	RelCreatedBy RelationType = "created-by"
	RelOwns      RelationType = "owns"

	// Preferences and interests
	RelPrefers      RelationType = "prefers"
	RelDislikes     RelationType = "dislikes"
	RelInterestedIn RelationType = "interested-in"

	// Location
	RelLocatedIn RelationType = "located-in"

	// Generic fallback
	RelRelatedTo RelationType = "related-to"
)

// RelationTypes lists every member of the canonical relation vocabulary.
var RelationTypes = []RelationType{
	RelKnows,
	RelWorksWith,
	RelWorksOn,
	RelWorksAt,
	RelMemberOf,
	RelLeads,
	RelMarriedTo,
	RelFriendOf,
	RelUses,
	RelDependsOn,
	RelPartOf,
	RelCreatedBy,
	RelOwns,
	RelPrefers,
	RelDislikes,
	RelInterestedIn,
	RelLocatedIn,
	RelRelatedTo,
}

// relationSynonyms folds common phrasings into canonical relation types.
// Keys are lowercase with word separators already collapsed to hyphens.
var relationSynonyms = map[string]RelationType{
	"working-with":  RelWorksWith,
	"collaborates":  RelWorksWith,
	"colleague-of":  RelWorksWith,
	"working-on":    RelWorksOn,
	"contributes":   RelWorksOn,
	"employed-by":   RelWorksAt,
	"works-for":     RelWorksAt,
	"belongs-to":    RelMemberOf,
	"manages":       RelLeads,
	"spouse-of":     RelMarriedTo,
	"husband-of":    RelMarriedTo,
	"wife-of":       RelMarriedTo,
	"using":         RelUses,
	"built-with":    RelUses,
	"requires":      RelDependsOn,
	"needs":         RelDependsOn,
	"contains":      RelPartOf,
	"component-of":  RelPartOf,
	"made-by":       RelCreatedBy,
	"authored-by":   RelCreatedBy,
	"written-by":    RelCreatedBy,
	"likes":         RelPrefers,
	"favors":        RelPrefers,
	"hates":         RelDislikes,
	"avoids":        RelDislikes,
	"curious-about": RelInterestedIn,
	"lives-in":      RelLocatedIn,
	"based-in":      RelLocatedIn,
	"located-at":    RelLocatedIn,
	"relates-to":    RelRelatedTo,
	"linked-to":     RelRelatedTo,
	"associated":    RelRelatedTo,
}

// NormalizeRelationType folds a raw relation-type string into the canonical
// vocabulary. Case is ignored and spaces/underscores are treated as hyphens.
// Unmappable input falls back to RelRelatedTo.
func NormalizeRelationType(raw string) RelationType {
	folded := strings.ToLower(strings.TrimSpace(raw))
	folded = strings.ReplaceAll(folded, "_", "-")
	folded = strings.ReplaceAll(folded, " ", "-")

	for _, t := range RelationTypes {
		if folded == string(t) {
			return t
		}
	}
	if t, ok := relationSynonyms[folded]; ok {
		return t
	}
	// Singular/plural drift: "use" vs "uses", "prefer" vs "prefers".
	for _, t := range RelationTypes {
		if folded+"s" == string(t) || strings.TrimSuffix(folded, "s") == string(t) {
			return t
		}
	}
	return RelRelatedTo
}

// Relation is a typed, directed, evidence-backed edge between two entities.
// The (From, To, Type) triple is unique; re-adding an existing edge
// reinforces it instead of duplicating.
//
// Weight follows the same derive-on-access rule as observation confidence
// and is not persisted.
type Relation struct {
	From      string       `json:"from"`
	To        string       `json:"to"`
	Type      RelationType `json:"type"`
	Label     string       `json:"label,omitempty"`
	Stage     MemoryStage  `json:"stage"`
	Evidence  []Evidence   `json:"evidence"`
	Stale     bool         `json:"stale,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Key returns the identity of the relation's (from, to, type) triple,
// case-insensitive on endpoints.
func (r *Relation) Key() string {
	return strings.ToLower(r.From) + "\x00" + strings.ToLower(r.To) + "\x00" + string(r.Type)
}
