package types

import "time"

// ChunkSource tags where a vector chunk originated, for UI/context labeling.
type ChunkSource string

const (
	// ChunkConversation marks chunks produced by conversation summarization.
	ChunkConversation ChunkSource = "conversation"

	// ChunkExplicitSave marks chunks saved by an explicit tool call.
	ChunkExplicitSave ChunkSource = "explicit-save"
)

// Chunk is one embedding-keyed piece of free text in the vector store.
// Chunks are immutable once written; the corpus only grows until an
// explicit clear.
type Chunk struct {
	ID        string      `json:"id"`
	Text      string      `json:"text"`
	Embedding []float64   `json:"embedding"`
	Source    ChunkSource `json:"source"`
	CreatedAt time.Time   `json:"created_at"`
}

// Skill is a named learned procedure. Skills are procedural memory: they are
// retrieved through the same domain-boost mechanism as entities but stored
// separately from the declarative graph.
type Skill struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Steps       []string  `json:"steps,omitempty"`
	Domains     []string  `json:"domains,omitempty"`
	UsageCount  int       `json:"usage_count"`
	LastUsedAt  time.Time `json:"last_used_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Turn is one recorded conversation turn, kept in the history store and
// replayed verbatim into the recent-history section of built context.
type Turn struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Situation is the classified topical context of a query: the life/topic
// domains it touches and a short goal description. Search ranking multiplies
// in a boost when an item's domain affinity matches the situation.
type Situation struct {
	Primary []string `json:"primary"`
	Goal    string   `json:"goal"`
}

// Touches reports whether the situation includes the given domain.
func (s Situation) Touches(domain string) bool {
	for _, d := range s.Primary {
		if d == domain {
			return true
		}
	}
	return false
}
