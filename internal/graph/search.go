package graph

import (
	"sort"
	"strings"
	"time"

	"github.com/halcyon-agents/engram/pkg/types"
)

// Booster supplies situation-driven score multipliers during search. The
// situation classifier implements it; a nil Booster means no topical bias.
type Booster interface {
	DomainBoost(entityType types.EntityType, situation types.Situation) float64
	ObservationDomainBoost(text string, situation types.Situation) float64
}

// SearchOptions configures graph search.
type SearchOptions struct {
	// Limit is the maximum number of results (default 10, max 100).
	Limit int

	// Situation, with Booster, biases ranking toward the current topic.
	Situation types.Situation
	Booster   Booster
}

// SearchResult pairs a matched entity with its relevance score.
type SearchResult struct {
	Entity *types.Entity
	Score  float64
}

// Search performs case-insensitive substring/fuzzy matching over entity
// names, types, and observation text. Ranking combines the text-match score
// with the entity's aggregate confidence, multiplied by any situation boost.
// Ties break toward the most recently reinforced entity.
func (g *Graph) Search(query string, opts SearchOptions) []SearchResult {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	queryLower := strings.ToLower(strings.TrimSpace(query))
	now := time.Now()

	g.mu.RLock()
	var results []SearchResult
	for _, e := range g.entities {
		text := g.textScore(e, queryLower)
		if text <= 0 {
			continue
		}

		// Confidence shifts rank without ever zeroing out a text match.
		score := text * (0.5 + g.EntityConfidence(e, now))

		if opts.Booster != nil {
			score *= opts.Booster.DomainBoost(e.Type, opts.Situation)
			best := 1.0
			for i := range e.Observations {
				if b := opts.Booster.ObservationDomainBoost(e.Observations[i].Text, opts.Situation); b > best {
					best = b
				}
			}
			score *= best
		}

		results = append(results, SearchResult{Entity: copyEntity(e), Score: score})
	}
	g.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return lastReinforced(results[i].Entity).After(lastReinforced(results[j].Entity))
	})

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results
}

// textScore rates how well an entity matches the query text, in [0,1].
// Name matches count most, type matches least; observation hits accumulate.
func (g *Graph) textScore(e *types.Entity, queryLower string) float64 {
	if queryLower == "" {
		return 0
	}

	nameLower := strings.ToLower(e.Name)
	switch {
	case nameLower == queryLower:
		return 1.0
	case strings.Contains(nameLower, queryLower) || strings.Contains(queryLower, nameLower):
		return 0.85
	}

	var score float64
	if strings.Contains(strings.ToLower(string(e.Type)), queryLower) {
		score = 0.3
	}

	// Per-word observation hits, capped so a verbose entity cannot outrank
	// a direct name match.
	words := strings.Fields(queryLower)
	hits := 0
	for i := range e.Observations {
		obsLower := strings.ToLower(e.Observations[i].Text)
		for _, w := range words {
			if strings.Contains(obsLower, w) {
				hits++
			}
		}
	}
	if hits > 0 {
		obsScore := 0.3 + 0.1*float64(hits)
		if obsScore > 0.7 {
			obsScore = 0.7
		}
		if obsScore > score {
			score = obsScore
		}
	}
	return score
}

// lastReinforced returns the newest LastReinforcedAt across an entity's
// observations, falling back to UpdatedAt.
func lastReinforced(e *types.Entity) time.Time {
	latest := e.UpdatedAt
	for i := range e.Observations {
		if e.Observations[i].LastReinforcedAt.After(latest) {
			latest = e.Observations[i].LastReinforcedAt
		}
	}
	return latest
}
