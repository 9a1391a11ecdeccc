// Package graph implements Engram's knowledge graph: named entities with
// evidence-backed observations, typed directed relations between them, and
// the merge semantics that keep both free of duplicates.
//
// The graph is an in-memory store persisted as one JSON document with atomic
// write-then-rename semantics. Every mutating operation persists before
// reporting success. A single writer lock serialises mutations; reads may
// proceed concurrently with other reads.
package graph

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/halcyon-agents/engram/internal/evidence"
	"github.com/halcyon-agents/engram/internal/storage"
	"github.com/halcyon-agents/engram/pkg/types"
)

// Graph is the knowledge graph store. Entity names are unique under
// case-insensitive comparison; no relation references a nonexistent entity;
// no duplicate (from, to, type) triple exists.
type Graph struct {
	mu         sync.RWMutex
	entities   map[string]*types.Entity   // keyed by lowercase name
	relations  map[string]*types.Relation // keyed by Relation.Key()
	meta       types.Meta
	doc        *storage.Document
	scorer     evidence.Scorer
	similarity SimilarityFunc
}

// graphDocument is the persisted shape of the graph.
type graphDocument struct {
	Entities  []*types.Entity   `json:"entities"`
	Relations []*types.Relation `json:"relations"`
	Meta      types.Meta        `json:"meta"`
}

// Option customises graph construction.
type Option func(*Graph)

// WithScorer overrides the default evidence scorer.
func WithScorer(s evidence.Scorer) Option {
	return func(g *Graph) { g.scorer = s }
}

// WithSimilarity overrides the near-duplicate text matcher used when merging
// observations.
func WithSimilarity(fn SimilarityFunc) Option {
	return func(g *Graph) { g.similarity = fn }
}

// Open loads the knowledge graph from doc, or starts empty when the document
// is missing. A corrupt document is logged and quarantined; the graph starts
// empty rather than refusing to boot.
func Open(doc *storage.Document, opts ...Option) (*Graph, error) {
	g := &Graph{
		entities:   make(map[string]*types.Entity),
		relations:  make(map[string]*types.Relation),
		doc:        doc,
		scorer:     evidence.NewScorer(0, 0, 0),
		similarity: TokenOverlap,
	}
	for _, opt := range opts {
		opt(g)
	}

	var persisted graphDocument
	err := doc.Load(&persisted)
	switch {
	case err == nil:
		for _, e := range persisted.Entities {
			g.entities[strings.ToLower(e.Name)] = e
		}
		for _, r := range persisted.Relations {
			r.Type = types.NormalizeRelationType(string(r.Type))
			g.relations[r.Key()] = r
		}
		g.meta = persisted.Meta
	case storage.IsNotFound(err):
		// First run.
	case storage.IsCorrupted(err):
		log.Printf("graph: %v; starting empty", err)
	default:
		return nil, fmt.Errorf("graph: failed to load document: %w", err)
	}

	return g, nil
}

// Reload replaces the in-memory graph with the document's current contents.
// Called after an external restore rewrites the document underneath a running
// process. A missing document reloads as empty; an unreadable one leaves the
// in-memory state untouched and returns the error.
func (g *Graph) Reload() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var persisted graphDocument
	err := g.doc.Load(&persisted)
	if err != nil && !storage.IsNotFound(err) {
		return fmt.Errorf("graph: failed to reload document: %w", err)
	}

	entities := make(map[string]*types.Entity, len(persisted.Entities))
	for _, e := range persisted.Entities {
		entities[strings.ToLower(e.Name)] = e
	}
	relations := make(map[string]*types.Relation, len(persisted.Relations))
	for _, r := range persisted.Relations {
		r.Type = types.NormalizeRelationType(string(r.Type))
		relations[r.Key()] = r
	}
	g.entities = entities
	g.relations = relations
	g.meta = persisted.Meta
	return nil
}

// AddEntity creates the named entity or merges into the existing one.
// Observation texts that near-duplicate an existing observation reinforce its
// evidence; genuinely new texts append a new observation at the lowest stage.
// The resulting entity state is returned. The only error surface is
// persistence failure.
func (g *Graph) AddEntity(name string, entityType types.EntityType, observations []string, source types.EvidenceSource) (*types.Entity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		// Validation errors are defaulted rather than rejected so a bad
		// tool call can still land somewhere findable.
		name = "unnamed"
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	e := g.upsertEntityLocked(name, entityType)
	for _, text := range observations {
		g.addObservationLocked(e, text, source)
	}
	g.meta.MutationsSinceConsolidation++

	if err := g.persistLocked(); err != nil {
		return nil, err
	}
	return copyEntity(e), nil
}

// AddRelation records a directed edge, auto-creating missing endpoints as
// type other. The raw type string is normalized into the canonical
// vocabulary. An identical (from, to, type) edge is reinforced instead of
// duplicated.
func (g *Graph) AddRelation(from, to, rawType, label string, source types.EvidenceSource) (*types.Relation, error) {
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" || to == "" {
		return nil, fmt.Errorf("%w: relation endpoints are required", storage.ErrInvalidInput)
	}
	relType := types.NormalizeRelationType(rawType)

	g.mu.Lock()
	defer g.mu.Unlock()

	// Relations must never reference a nonexistent entity.
	fromEntity := g.upsertEntityLocked(from, types.EntityOther)
	toEntity := g.upsertEntityLocked(to, types.EntityOther)

	now := time.Now()
	rel := &types.Relation{From: fromEntity.Name, To: toEntity.Name, Type: relType}
	if existing, ok := g.relations[rel.Key()]; ok {
		existing.Evidence = append(existing.Evidence, evidence.Fresh(source))
		existing.UpdatedAt = now
		existing.Stale = false
		if label != "" {
			existing.Label = label
		}
		rel = existing
	} else {
		rel.Label = label
		rel.Stage = types.StageObservation
		rel.Evidence = []types.Evidence{evidence.Fresh(source)}
		rel.CreatedAt = now
		rel.UpdatedAt = now
		g.relations[rel.Key()] = rel
	}
	g.meta.MutationsSinceConsolidation++

	if err := g.persistLocked(); err != nil {
		return nil, err
	}
	return copyRelation(rel), nil
}

// AddSelfObservation appends a reflection to the reserved self entity.
// This is the only path that writes to it.
func (g *Graph) AddSelfObservation(text string) (*types.Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e := g.upsertEntityLocked(types.SelfEntityName, types.EntityAgentSelf)
	g.addObservationLocked(e, text, types.SourceSelfObservation)
	g.meta.MutationsSinceConsolidation++

	if err := g.persistLocked(); err != nil {
		return nil, err
	}
	return copyEntity(e), nil
}

// GetEntity returns a copy of the named entity, or false when absent.
// Lookup is case-insensitive.
func (g *Graph) GetEntity(name string) (*types.Entity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entities[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, false
	}
	return copyEntity(e), true
}

// AllEntities returns copies of every entity, sorted by name.
func (g *Graph) AllEntities() []*types.Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*types.Entity, 0, len(g.entities))
	for _, e := range g.entities {
		out = append(out, copyEntity(e))
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// AllRelations returns copies of every relation, sorted by (from, to, type).
func (g *Graph) AllRelations() []*types.Relation {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*types.Relation, 0, len(g.relations))
	for _, r := range g.relations {
		out = append(out, copyRelation(r))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key() < out[j].Key()
	})
	return out
}

// RelationsFor returns copies of every relation touching the named entity.
func (g *Graph) RelationsFor(name string) []*types.Relation {
	folded := strings.ToLower(strings.TrimSpace(name))
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*types.Relation
	for _, r := range g.relations {
		if strings.ToLower(r.From) == folded || strings.ToLower(r.To) == folded {
			out = append(out, copyRelation(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Meta returns the consolidation bookkeeping counters.
func (g *Graph) Meta() types.Meta {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.meta
}

// EntityConfidence is the entity's aggregate confidence: the mean of its
// observations' derived confidences as of now.
func (g *Graph) EntityConfidence(e *types.Entity, now time.Time) float64 {
	if len(e.Observations) == 0 {
		return 0
	}
	var sum float64
	for i := range e.Observations {
		sum += g.scorer.Confidence(e.Observations[i].Evidence, now)
	}
	return sum / float64(len(e.Observations))
}

// ObservationConfidence recomputes one observation's confidence as of now.
func (g *Graph) ObservationConfidence(o *types.Observation, now time.Time) float64 {
	return g.scorer.Confidence(o.Evidence, now)
}

// RelationWeight recomputes one relation's weight as of now.
func (g *Graph) RelationWeight(r *types.Relation, now time.Time) float64 {
	return g.scorer.Weight(r.Evidence, now)
}

// Clear empties the graph. The self entity survives unless confirmSelf is
// set; clearing is the only way entities are ever removed.
func (g *Graph) Clear(confirmSelf bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	self, hadSelf := g.entities[types.SelfEntityName]
	g.entities = make(map[string]*types.Entity)
	g.relations = make(map[string]*types.Relation)
	g.meta = types.Meta{}
	if hadSelf && !confirmSelf {
		g.entities[types.SelfEntityName] = self
	}
	return g.persistLocked()
}

// Flush forces a persistence pass. Used at shutdown after writers quiesce.
func (g *Graph) Flush() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.persistLocked()
}

// upsertEntityLocked returns the existing entity for name or creates one.
// Caller holds the write lock.
func (g *Graph) upsertEntityLocked(name string, entityType types.EntityType) *types.Entity {
	key := strings.ToLower(name)
	if e, ok := g.entities[key]; ok {
		// A concrete type wins over the auto-create placeholder.
		if e.Type == types.EntityOther && entityType != types.EntityOther {
			e.Type = entityType
			e.UpdatedAt = time.Now()
		}
		return e
	}
	now := time.Now()
	e := &types.Entity{Name: name, Type: entityType, CreatedAt: now, UpdatedAt: now}
	g.entities[key] = e
	return e
}

// addObservationLocked merges one observation text into the entity:
// near-duplicates reinforce, new text appends at the lowest stage.
// Caller holds the write lock.
func (g *Graph) addObservationLocked(e *types.Entity, text string, source types.EvidenceSource) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	now := time.Now()
	e.UpdatedAt = now

	for i := range e.Observations {
		if g.similarity(e.Observations[i].Text, text) >= nearDuplicateThreshold {
			e.Observations[i].Evidence = append(e.Observations[i].Evidence, evidence.Fresh(source))
			e.Observations[i].LastReinforcedAt = now
			e.Observations[i].Stale = false
			return
		}
	}

	e.Observations = append(e.Observations, types.Observation{
		Text:             text,
		Stage:            types.StageObservation,
		Evidence:         []types.Evidence{evidence.Fresh(source)},
		FirstSeenAt:      now,
		LastReinforcedAt: now,
	})
}

// persistLocked writes the graph document. Caller holds the write lock.
func (g *Graph) persistLocked() error {
	doc := graphDocument{
		Entities:  make([]*types.Entity, 0, len(g.entities)),
		Relations: make([]*types.Relation, 0, len(g.relations)),
		Meta:      g.meta,
	}
	keys := make([]string, 0, len(g.entities))
	for k := range g.entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		doc.Entities = append(doc.Entities, g.entities[k])
	}
	relKeys := make([]string, 0, len(g.relations))
	for k := range g.relations {
		relKeys = append(relKeys, k)
	}
	sort.Strings(relKeys)
	for _, k := range relKeys {
		doc.Relations = append(doc.Relations, g.relations[k])
	}

	if err := g.doc.Save(doc); err != nil {
		return fmt.Errorf("graph: failed to persist: %w", err)
	}
	return nil
}

func copyEntity(e *types.Entity) *types.Entity {
	out := *e
	out.Observations = make([]types.Observation, len(e.Observations))
	copy(out.Observations, e.Observations)
	for i := range out.Observations {
		ev := make([]types.Evidence, len(e.Observations[i].Evidence))
		copy(ev, e.Observations[i].Evidence)
		out.Observations[i].Evidence = ev
	}
	return &out
}

func copyRelation(r *types.Relation) *types.Relation {
	out := *r
	out.Evidence = make([]types.Evidence, len(r.Evidence))
	copy(out.Evidence, r.Evidence)
	return &out
}
