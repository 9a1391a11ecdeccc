// Package skills stores named learned procedures. Skills are procedural
// memory: retrieved through the same domain-boost mechanism as graph
// entities, but kept in their own document because they describe how to do
// things rather than facts about things.
package skills

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/halcyon-agents/engram/internal/graph"
	"github.com/halcyon-agents/engram/internal/storage"
	"github.com/halcyon-agents/engram/pkg/types"
)

// Store is the skill store. Skill names are unique under case-insensitive
// comparison; re-adding a name updates the existing skill.
type Store struct {
	mu     sync.RWMutex
	skills map[string]*types.Skill // keyed by lowercase name
	doc    *storage.Document
}

// Result pairs a matched skill with its relevance score.
type Result struct {
	Skill *types.Skill
	Score float64
}

// Open loads the skill store from doc, or starts empty when missing.
// A corrupt document is logged and quarantined; the store starts empty.
func Open(doc *storage.Document) (*Store, error) {
	s := &Store{skills: make(map[string]*types.Skill), doc: doc}

	var persisted struct {
		Skills []*types.Skill `json:"skills"`
	}
	err := doc.Load(&persisted)
	switch {
	case err == nil:
		for _, sk := range persisted.Skills {
			s.skills[strings.ToLower(sk.Name)] = sk
		}
	case storage.IsNotFound(err):
		// First run.
	case storage.IsCorrupted(err):
		log.Printf("skills: %v; starting empty", err)
	default:
		return nil, fmt.Errorf("skills: failed to load document: %w", err)
	}
	return s, nil
}

// Reload replaces the in-memory skills with the document's current contents.
// Called after an external restore rewrites the document underneath a running
// process. A missing document reloads as empty; an unreadable one leaves the
// in-memory state untouched and returns the error.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var persisted struct {
		Skills []*types.Skill `json:"skills"`
	}
	err := s.doc.Load(&persisted)
	if err != nil && !storage.IsNotFound(err) {
		return fmt.Errorf("skills: failed to reload document: %w", err)
	}
	loaded := make(map[string]*types.Skill, len(persisted.Skills))
	for _, sk := range persisted.Skills {
		loaded[strings.ToLower(sk.Name)] = sk
	}
	s.skills = loaded
	return nil
}

// Add records or updates a skill and persists before returning.
func (s *Store) Add(name, description string, steps, domains []string) (*types.Skill, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: skill name is required", storage.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(name)
	now := time.Now()
	skill, ok := s.skills[key]
	if !ok {
		skill = &types.Skill{Name: name, CreatedAt: now}
		s.skills[key] = skill
	}
	skill.Description = description
	if len(steps) > 0 {
		skill.Steps = steps
	}
	if len(domains) > 0 {
		skill.Domains = normalizeDomains(domains)
	}

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	out := *skill
	return &out, nil
}

// Get looks up a skill by name, case-insensitive.
func (s *Store) Get(name string) (*types.Skill, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	skill, ok := s.skills[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, false
	}
	out := *skill
	return &out, true
}

// All returns every skill, sorted by name.
func (s *Store) All() []*types.Skill {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Skill, 0, len(s.skills))
	for _, sk := range s.skills {
		c := *sk
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Count returns the number of stored skills.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.skills)
}

// Search matches skills against the query by name, description, and step
// text. Ranking mixes the text match with usage count and any situation
// boost: a skill whose declared domains intersect the classified situation
// ranks higher.
func (s *Store) Search(query string, limit int, situation types.Situation, booster graph.Booster) []Result {
	if limit <= 0 {
		limit = 5
	}
	queryLower := strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	var results []Result
	for _, sk := range s.skills {
		score := skillTextScore(sk, queryLower)

		// Declared domain affinity counts even without a text match, so a
		// "work" skill surfaces for a work situation.
		domainHit := false
		for _, d := range sk.Domains {
			if situation.Touches(d) {
				domainHit = true
				break
			}
		}
		if score <= 0 && !domainHit {
			continue
		}
		if score <= 0 {
			score = 0.2
		}
		if domainHit {
			score *= 1.5
		}
		if booster != nil {
			score *= booster.ObservationDomainBoost(sk.Description, situation)
		}

		// Frequently used skills rank slightly higher.
		score *= 1 + 0.05*float64(min(sk.UsageCount, 10))

		c := *sk
		results = append(results, Result{Skill: &c, Score: score})
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Skill.LastUsedAt.After(results[j].Skill.LastUsedAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// RecordUse bumps a skill's usage count and last-used timestamp.
func (s *Store) RecordUse(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	skill, ok := s.skills[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return storage.ErrNotFound
	}
	skill.UsageCount++
	skill.LastUsedAt = time.Now()
	return s.persistLocked()
}

// Clear empties the skill store.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skills = make(map[string]*types.Skill)
	return s.persistLocked()
}

// Flush forces a persistence pass.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	payload := struct {
		Skills []*types.Skill `json:"skills"`
	}{Skills: make([]*types.Skill, 0, len(s.skills))}

	keys := make([]string, 0, len(s.skills))
	for k := range s.skills {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		payload.Skills = append(payload.Skills, s.skills[k])
	}

	if err := s.doc.Save(payload); err != nil {
		return fmt.Errorf("skills: failed to persist: %w", err)
	}
	return nil
}

func skillTextScore(sk *types.Skill, queryLower string) float64 {
	if queryLower == "" {
		return 0
	}
	nameLower := strings.ToLower(sk.Name)
	if nameLower == queryLower {
		return 1.0
	}
	if strings.Contains(nameLower, queryLower) || strings.Contains(queryLower, nameLower) {
		return 0.8
	}

	hits := 0
	descLower := strings.ToLower(sk.Description)
	stepsLower := strings.ToLower(strings.Join(sk.Steps, " "))
	for _, w := range strings.Fields(queryLower) {
		if strings.Contains(descLower, w) || strings.Contains(stepsLower, w) {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	score := 0.3 + 0.1*float64(hits)
	if score > 0.7 {
		score = 0.7
	}
	return score
}

func normalizeDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	seen := make(map[string]bool)
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}
