// Package situation classifies a query into life/topic domains and supplies
// the boost multipliers that bias graph and skill retrieval toward the
// user's current topic.
package situation

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/halcyon-agents/engram/pkg/types"
)

// Domain describes one life/topic domain: the keywords that signal it and
// the entity types it has affinity with.
type Domain struct {
	Name        string             `yaml:"name"`
	Keywords    []string           `yaml:"keywords"`
	EntityTypes []types.EntityType `yaml:"entity_types"`

	// Boost is the multiplier applied to matching items during search.
	// Must be >= 1.0; values below are lifted to the default.
	Boost float64 `yaml:"boost"`

	// BuiltIn domains are seeded at startup and can never be removed.
	BuiltIn bool `yaml:"-"`
}

const defaultBoost = 1.5

// builtinDomains seed the registry at startup.
var builtinDomains = []Domain{
	{
		Name:        "work",
		Keywords:    []string{"work", "job", "project", "deadline", "meeting", "standup", "deploy", "release", "bug", "code", "review", "sprint", "client", "boss", "colleague"},
		EntityTypes: []types.EntityType{types.EntityProject, types.EntityTechnology, types.EntityOrganization, types.EntityService, types.EntityFile},
		Boost:       defaultBoost,
		BuiltIn:     true,
	},
	{
		Name:        "health",
		Keywords:    []string{"health", "doctor", "sleep", "exercise", "gym", "run", "diet", "medication", "sick", "tired", "stress", "therapy"},
		EntityTypes: []types.EntityType{types.EntityPreference, types.EntityPerson},
		Boost:       defaultBoost,
		BuiltIn:     true,
	},
	{
		Name:        "finance",
		Keywords:    []string{"money", "budget", "invoice", "tax", "invest", "salary", "rent", "bank", "pay", "bill", "subscription"},
		EntityTypes: []types.EntityType{types.EntityOrganization, types.EntityService},
		Boost:       defaultBoost,
		BuiltIn:     true,
	},
	{
		Name:        "relationships",
		Keywords:    []string{"friend", "family", "partner", "wife", "husband", "mom", "dad", "birthday", "dinner", "visit", "call"},
		EntityTypes: []types.EntityType{types.EntityPerson},
		Boost:       defaultBoost,
		BuiltIn:     true,
	},
	{
		Name:        "learning",
		Keywords:    []string{"learn", "study", "course", "book", "read", "tutorial", "practice", "understand", "research"},
		EntityTypes: []types.EntityType{types.EntityConcept, types.EntityTechnology},
		Boost:       defaultBoost,
		BuiltIn:     true,
	},
	{
		Name:        "home",
		Keywords:    []string{"home", "house", "apartment", "clean", "cook", "grocery", "repair", "garden", "move"},
		EntityTypes: []types.EntityType{types.EntityPreference},
		Boost:       defaultBoost,
		BuiltIn:     true,
	},
	{
		Name:        "travel",
		Keywords:    []string{"travel", "trip", "flight", "hotel", "visit", "vacation", "airport", "train", "itinerary"},
		EntityTypes: []types.EntityType{types.EntityPreference, types.EntityPerson},
		Boost:       defaultBoost,
		BuiltIn:     true,
	},
	{
		Name:        "creative",
		Keywords:    []string{"write", "draw", "music", "design", "paint", "song", "story", "idea", "create", "art"},
		EntityTypes: []types.EntityType{types.EntityConcept, types.EntityPreference},
		Boost:       defaultBoost,
		BuiltIn:     true,
	},
}

// Classifier maps queries to situations and answers boost lookups against an
// open-ended domain registry.
type Classifier struct {
	mu      sync.RWMutex
	domains map[string]Domain
	order   []string // registration order, builtins first
}

// NewClassifier returns a classifier seeded with the built-in domains.
func NewClassifier() *Classifier {
	c := &Classifier{domains: make(map[string]Domain)}
	for _, d := range builtinDomains {
		c.domains[d.Name] = d
		c.order = append(c.order, d.Name)
	}
	return c
}

// RegisterDomain adds or replaces a custom domain. Built-in domains cannot
// be replaced or removed. A boost below 1.0 is lifted to the default.
func (c *Classifier) RegisterDomain(d Domain) error {
	d.Name = strings.ToLower(strings.TrimSpace(d.Name))
	if d.Name == "" {
		return fmt.Errorf("domain name is required")
	}
	if d.Boost < 1.0 {
		d.Boost = defaultBoost
	}
	d.BuiltIn = false

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.domains[d.Name]; ok && existing.BuiltIn {
		return fmt.Errorf("domain %q is built-in and cannot be replaced", d.Name)
	}
	if _, ok := c.domains[d.Name]; !ok {
		c.order = append(c.order, d.Name)
	}
	c.domains[d.Name] = d
	return nil
}

// GetDomain looks up a domain by name.
func (c *Classifier) GetDomain(name string) (Domain, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.domains[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// ListDomains returns all registered domains, builtins first, then customs
// in registration order.
func (c *Classifier) ListDomains() []Domain {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Domain, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.domains[name])
	}
	return out
}

// Classify maps free text to zero or more domains plus a short goal string.
// Domains are matched by keyword hits and returned strongest-match first.
func (c *Classifier) Classify(query string) types.Situation {
	words := tokenize(query)

	type hit struct {
		name  string
		count int
	}
	var hits []hit

	c.mu.RLock()
	for _, name := range c.order {
		d := c.domains[name]
		count := 0
		for _, kw := range d.Keywords {
			if words[kw] {
				count++
			}
		}
		if count > 0 {
			hits = append(hits, hit{name: d.Name, count: count})
		}
	}
	c.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].count > hits[j].count })

	situation := types.Situation{Goal: extractGoal(query)}
	for _, h := range hits {
		situation.Primary = append(situation.Primary, h.name)
	}
	return situation
}

// DomainBoost returns the multiplier for an entity of the given type under
// the classified situation. Always >= 1.0; boosts from multiple matching
// domains compound.
func (c *Classifier) DomainBoost(entityType types.EntityType, situation types.Situation) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	boost := 1.0
	for _, name := range situation.Primary {
		d, ok := c.domains[name]
		if !ok {
			continue
		}
		for _, t := range d.EntityTypes {
			if t == entityType {
				boost *= d.Boost
				break
			}
		}
	}
	return boost
}

// ObservationDomainBoost returns the multiplier for a piece of observation
// or skill text under the classified situation, based on keyword overlap.
// Always >= 1.0.
func (c *Classifier) ObservationDomainBoost(text string, situation types.Situation) float64 {
	words := tokenize(text)

	c.mu.RLock()
	defer c.mu.RUnlock()

	boost := 1.0
	for _, name := range situation.Primary {
		d, ok := c.domains[name]
		if !ok {
			continue
		}
		for _, kw := range d.Keywords {
			if words[kw] {
				boost *= d.Boost
				break
			}
		}
	}
	return boost
}

// tokenize lowercases text and splits it into a word-presence set.
func tokenize(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		// Light stemming: fold trailing plural/gerund forms onto keywords.
		words[w] = true
		words[strings.TrimSuffix(w, "s")] = true
		words[strings.TrimSuffix(w, "ing")] = true
	}
	return words
}

// goalMarkers introduce an explicit goal statement inside a query.
var goalMarkers = []string{
	"i want to ", "i need to ", "i'm trying to ", "i am trying to ",
	"help me ", "how do i ", "how can i ", "let's ", "i should ",
}

// extractGoal pulls a short goal description out of the query: the clause
// after an explicit goal marker when present, otherwise the first clause.
func extractGoal(query string) string {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return ""
	}
	lower := strings.ToLower(trimmed)

	goal := trimmed
	for _, marker := range goalMarkers {
		if idx := strings.Index(lower, marker); idx >= 0 {
			goal = trimmed[idx+len(marker):]
			break
		}
	}

	// First clause only.
	if idx := strings.IndexAny(goal, ".?!;\n"); idx > 0 {
		goal = goal[:idx]
	}
	goal = strings.TrimSpace(goal)
	if len(goal) > 80 {
		goal = goal[:80]
	}
	return goal
}
