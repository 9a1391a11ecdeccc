// Package engine is Engram's orchestration layer. It owns the knowledge
// graph, vector corpus, skill store, conversation history, and situation
// classifier, and exposes the operation surface the hosting agent's tool
// layer calls: save facts, search memory, reflect, build per-turn context.
//
// Memory unavailability must never crash the hosting agent's turn: store
// failures degrade to empty results here rather than propagating.
package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/halcyon-agents/engram/internal/graph"
	"github.com/halcyon-agents/engram/internal/llm"
	"github.com/halcyon-agents/engram/internal/situation"
	"github.com/halcyon-agents/engram/internal/skills"
	"github.com/halcyon-agents/engram/internal/storage"
	"github.com/halcyon-agents/engram/internal/vector"
	"github.com/halcyon-agents/engram/pkg/types"
)

// Options are the construction parameters supplied by the hosting agent.
type Options struct {
	// OwnerName is the display name of the agent's owner, used in the
	// self-identity context header.
	OwnerName string

	// RecentWindowSize is how many conversation turns BuildContext replays
	// verbatim (default 10).
	RecentWindowSize int

	// RelevantMemoryLimit is the top-K kept from each retrieval source
	// (default 5).
	RelevantMemoryLimit int

	// ContextBudget is the maximum size in characters of assembled context
	// (default 8000).
	ContextBudget int
}

func (o *Options) applyDefaults() {
	if o.OwnerName == "" {
		o.OwnerName = "user"
	}
	if o.RecentWindowSize <= 0 {
		o.RecentWindowSize = 10
	}
	if o.RelevantMemoryLimit <= 0 {
		o.RelevantMemoryLimit = 5
	}
	if o.ContextBudget <= 0 {
		o.ContextBudget = 8000
	}
}

// Engine orchestrates all memory stores for one agent instance. Stores are
// injected at construction; there is no ambient/global access.
type Engine struct {
	opts       Options
	graph      *graph.Graph
	vectors    vector.Store
	skills     *skills.Store
	history    *storage.HistoryStore
	classifier *situation.Classifier
	completer  llm.TextGenerator
	embedder   llm.EmbeddingGenerator
}

// New wires an engine from its collaborators. graph, vectors, skills, and
// history are required; completer and embedder may be nil, in which case the
// operations needing them degrade (no auto-extraction, no vector recall).
func New(opts Options, g *graph.Graph, v vector.Store, s *skills.Store, h *storage.HistoryStore, c *situation.Classifier, completer llm.TextGenerator, embedder llm.EmbeddingGenerator) (*Engine, error) {
	if g == nil || v == nil || s == nil || h == nil {
		return nil, fmt.Errorf("engine: graph, vector, skill, and history stores are required")
	}
	if c == nil {
		c = situation.NewClassifier()
	}
	opts.applyDefaults()
	return &Engine{
		opts:       opts,
		graph:      g,
		vectors:    v,
		skills:     s,
		history:    h,
		classifier: c,
		completer:  completer,
		embedder:   embedder,
	}, nil
}

// Graph exposes the knowledge graph for direct tool-layer operations.
func (e *Engine) Graph() *graph.Graph { return e.graph }

// Skills exposes the skill store.
func (e *Engine) Skills() *skills.Store { return e.skills }

// Classifier exposes the situation classifier and its domain registry.
func (e *Engine) Classifier() *situation.Classifier { return e.classifier }

// RecordTurn appends one conversation turn to the history log.
func (e *Engine) RecordTurn(ctx context.Context, role, text string) error {
	_, err := e.history.Append(ctx, role, text)
	return err
}

// SaveFact stores a free-text fact in both the vector corpus and the
// knowledge graph. When a completion client is available the graph side goes
// through entity extraction; otherwise the fact lands as an observation on
// the category entity (or "notes" when no category is given).
func (e *Engine) SaveFact(ctx context.Context, text, category string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: fact text is required", storage.ErrInvalidInput)
	}

	chunkID, err := e.vectors.AddChunk(ctx, text, types.ChunkExplicitSave)
	if err != nil {
		// The graph half can still succeed; report the degraded save.
		log.Printf("engine: vector half of save failed: %v", err)
	}

	if e.completer != nil {
		if extractErr := e.ExtractAndStore(ctx, text); extractErr == nil {
			return chunkID, err
		}
		// Extraction failure falls through to the category path.
	}

	entityName := strings.TrimSpace(category)
	if entityName == "" {
		entityName = "notes"
	}
	if _, gerr := e.graph.AddEntity(entityName, types.NormalizeEntityType(category), []string{text}, types.SourceExplicit); gerr != nil {
		log.Printf("engine: graph half of save failed: %v", gerr)
		if err == nil {
			err = gerr
		}
	}
	return chunkID, err
}

// ExtractAndStore asks the completion client for entities/relations in the
// text and merges them into the graph as inferred evidence.
func (e *Engine) ExtractAndStore(ctx context.Context, text string) error {
	if e.completer == nil {
		return fmt.Errorf("engine: no completion client configured")
	}

	response, err := e.completer.Complete(ctx, llm.ExtractionPrompt(text))
	if err != nil {
		return fmt.Errorf("engine: extraction call failed: %w", err)
	}
	extraction, err := llm.ParseExtraction(response)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	for _, ent := range extraction.Entities {
		if _, err := e.graph.AddEntity(ent.Name, types.NormalizeEntityType(ent.Type), ent.Observations, types.SourceInferred); err != nil {
			return err
		}
	}
	for _, rel := range extraction.Relations {
		if rel.From == "" || rel.To == "" {
			continue
		}
		if _, err := e.graph.AddRelation(rel.From, rel.To, rel.Type, "", types.SourceInferred); err != nil {
			return err
		}
	}
	return nil
}

// SearchMemory searches the vector corpus by free text. Embedding or search
// failure degrades to no matches rather than an error reaching the agent.
func (e *Engine) SearchMemory(ctx context.Context, query string, limit int) []vector.Match {
	if e.embedder == nil {
		return nil
	}
	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("engine: query embedding failed: %v", err)
		return nil
	}
	matches, err := e.vectors.Search(ctx, embedding, limit)
	if err != nil {
		log.Printf("engine: vector search failed: %v", err)
		return nil
	}
	return matches
}

// SearchGraph searches the knowledge graph with situation-boosted ranking.
func (e *Engine) SearchGraph(query string, limit int) []graph.SearchResult {
	sit := e.classifier.Classify(query)
	return e.graph.Search(query, graph.SearchOptions{
		Limit:     limit,
		Situation: sit,
		Booster:   e.classifier,
	})
}

// SelfReflect appends a reflection to the agent's self entity.
func (e *Engine) SelfReflect(text string) error {
	_, err := e.graph.AddSelfObservation(text)
	return err
}

// SelfContext returns the formatted self-identity block, or an empty string
// when the agent has not recorded any reflections yet.
func (e *Engine) SelfContext() string {
	self, ok := e.graph.GetEntity(types.SelfEntityName)
	if !ok || len(self.Observations) == 0 {
		return ""
	}
	block := e.graph.FormatForContext([]graph.SearchResult{{Entity: self, Score: 1}}, 1<<20)
	return fmt.Sprintf("Assisting %s.\n%s", e.opts.OwnerName, block)
}

// SummarizeHistory drains turns older than cutoff into a single vector
// chunk via the completion client. Used by the hosting agent's scheduler for
// periodic conversation summarization.
func (e *Engine) SummarizeHistory(ctx context.Context, cutoff time.Time, maxTurns int) error {
	if e.completer == nil {
		return fmt.Errorf("engine: no completion client configured")
	}
	turns, err := e.history.Before(ctx, cutoff, maxTurns)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		return nil
	}

	var transcript strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&transcript, "%s: %s\n", t.Role, t.Text)
	}
	summary, err := e.completer.Complete(ctx, llm.SummarizePrompt(transcript.String()))
	if err != nil {
		return fmt.Errorf("engine: summarization failed: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil
	}
	if _, err := e.vectors.AddChunk(ctx, summary, types.ChunkConversation); err != nil {
		return err
	}

	// Drain the summarized turns. Leaving them in the log would re-summarize
	// the same window into a duplicate chunk on every pass.
	ids := make([]string, len(turns))
	for i, t := range turns {
		ids[i] = t.ID
	}
	return e.history.DeleteTurns(ctx, ids)
}

// Clear irreversibly empties all stores. The reason is required and logged;
// the self entity's observations survive unless confirmSelf is set.
func (e *Engine) Clear(ctx context.Context, reason string, confirmSelf bool) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("%w: clearing memory requires a justification", storage.ErrInvalidInput)
	}
	log.Printf("engine: clearing all memory (confirmSelf=%v): %s", confirmSelf, reason)

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(e.graph.Clear(confirmSelf))
	record(e.vectors.Clear(ctx))
	record(e.skills.Clear())
	record(e.history.Clear(ctx))
	return firstErr
}

// Flush persists every store. Called at shutdown after writers quiesce.
func (e *Engine) Flush() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(e.graph.Flush())
	if ds, ok := e.vectors.(*vector.DocumentStore); ok {
		record(ds.Flush())
	}
	record(e.skills.Flush())
	return firstErr
}

// Stats reports aggregate counts and consolidation status for observability.
func (e *Engine) Stats(ctx context.Context) StatsResult {
	stats := StatsResult{
		Entities:          len(e.graph.AllEntities()),
		Relations:         len(e.graph.AllRelations()),
		Skills:            e.skills.Count(),
		StageDistribution: e.graph.StageDistribution(),
		Meta:              e.graph.Meta(),
	}
	if n, err := e.vectors.Count(ctx); err == nil {
		stats.Chunks = n
	}
	if n, err := e.history.Count(ctx); err == nil {
		stats.Turns = n
	}
	return stats
}

// StatsResult is the aggregate statistics surface.
type StatsResult struct {
	Entities          int                       `json:"entities"`
	Relations         int                       `json:"relations"`
	Skills            int                       `json:"skills"`
	Chunks            int                       `json:"chunks"`
	Turns             int                       `json:"turns"`
	StageDistribution map[types.MemoryStage]int `json:"stage_distribution"`
	Meta              types.Meta                `json:"meta"`
}
