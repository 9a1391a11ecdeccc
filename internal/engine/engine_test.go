package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-agents/engram/internal/graph"
	"github.com/halcyon-agents/engram/internal/llm"
	"github.com/halcyon-agents/engram/internal/situation"
	"github.com/halcyon-agents/engram/internal/skills"
	"github.com/halcyon-agents/engram/internal/storage"
	"github.com/halcyon-agents/engram/internal/vector"
	"github.com/halcyon-agents/engram/pkg/types"
)

// wordEmbedder maps a few known words onto fixed axes, enough to make cosine
// ranking deterministic without a model.
type wordEmbedder struct{}

func (wordEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	v := make([]float64, 3)
	lower := strings.ToLower(text)
	if strings.Contains(lower, "coffee") {
		v[0] = 1
	}
	if strings.Contains(lower, "tea") {
		v[1] = 1
	}
	if strings.Contains(lower, "deploy") {
		v[2] = 1
	}
	return v, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float64, error) {
	return nil, errors.New("model offline")
}

// canned completer returns a fixed response for every prompt.
type cannedCompleter struct {
	response string
	err      error
}

func (c cannedCompleter) Complete(context.Context, string) (string, error) {
	return c.response, c.err
}

func newTestEngine(t *testing.T, opts Options, completer llm.TextGenerator) *Engine {
	t.Helper()
	dir := t.TempDir()

	graphDoc, err := storage.NewDocument(filepath.Join(dir, "graph.json"))
	require.NoError(t, err)
	g, err := graph.Open(graphDoc)
	require.NoError(t, err)

	vecDoc, err := storage.NewDocument(filepath.Join(dir, "vectors.json"))
	require.NoError(t, err)
	v, err := vector.Open(vecDoc, wordEmbedder{})
	require.NoError(t, err)

	skillDoc, err := storage.NewDocument(filepath.Join(dir, "skills.json"))
	require.NoError(t, err)
	s, err := skills.Open(skillDoc)
	require.NoError(t, err)

	h, err := storage.NewHistoryStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	e, err := New(opts, g, v, s, h, situation.NewClassifier(), completer, wordEmbedder{})
	require.NoError(t, err)
	return e
}

func TestNew_RequiresStores(t *testing.T) {
	_, err := New(Options{}, nil, nil, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestSaveFact_CategoryFallback(t *testing.T) {
	e := newTestEngine(t, Options{}, nil)
	ctx := context.Background()

	chunkID, err := e.SaveFact(ctx, "prefers coffee over tea", "preference")
	require.NoError(t, err)
	assert.NotEmpty(t, chunkID)

	ent, ok := e.Graph().GetEntity("preference")
	require.True(t, ok)
	require.Len(t, ent.Observations, 1)
	assert.Equal(t, "prefers coffee over tea", ent.Observations[0].Text)
	assert.Equal(t, types.EntityPreference, ent.Type)

	// No category lands on the notes entity.
	_, err = e.SaveFact(ctx, "random aside", "")
	require.NoError(t, err)
	_, ok = e.Graph().GetEntity("notes")
	assert.True(t, ok)
}

func TestSaveFact_Validation(t *testing.T) {
	e := newTestEngine(t, Options{}, nil)
	_, err := e.SaveFact(context.Background(), "   ", "")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSaveFact_ExtractionPath(t *testing.T) {
	response := `{
		"entities": [
			{"name": "React", "type": "technology", "observations": ["used for the dashboard"]}
		],
		"relations": [
			{"from": "Dana", "to": "React", "type": "uses"}
		]
	}`
	e := newTestEngine(t, Options{}, cannedCompleter{response: response})

	_, err := e.SaveFact(context.Background(), "Dana uses React for the dashboard", "")
	require.NoError(t, err)

	ent, ok := e.Graph().GetEntity("React")
	require.True(t, ok)
	assert.Equal(t, types.EntityTechnology, ent.Type)
	require.Len(t, ent.Observations, 1)
	assert.Equal(t, types.SourceInferred, ent.Observations[0].Evidence[0].Source)

	rels := e.Graph().RelationsFor("Dana")
	require.Len(t, rels, 1)
	assert.Equal(t, types.RelUses, rels[0].Type)

	// Extraction succeeded, so nothing lands on the notes entity.
	_, ok = e.Graph().GetEntity("notes")
	assert.False(t, ok)
}

func TestSaveFact_ExtractionFailureFallsBack(t *testing.T) {
	e := newTestEngine(t, Options{}, cannedCompleter{response: "no json here"})

	_, err := e.SaveFact(context.Background(), "something worth keeping", "")
	require.NoError(t, err)

	_, ok := e.Graph().GetEntity("notes")
	assert.True(t, ok, "parse failure falls back to the category path")
}

func TestRepeatedMentionsMergeNotDuplicate(t *testing.T) {
	e := newTestEngine(t, Options{}, nil)
	g := e.Graph()

	_, err := g.AddEntity("React", types.EntityTechnology, []string{"used for the dashboard"}, types.SourceExplicit)
	require.NoError(t, err)
	_, err = g.AddEntity("react", types.EntityTechnology, []string{"chosen for the mobile app"}, types.SourceExplicit)
	require.NoError(t, err)

	require.Len(t, g.AllEntities(), 1)
	ent, _ := g.GetEntity("React")
	assert.Len(t, ent.Observations, 2)

	_, err = g.AddRelation("Dana", "React", "uses", "", types.SourceExplicit)
	require.NoError(t, err)
	_, err = g.AddRelation("dana", "react", "uses", "", types.SourceExplicit)
	require.NoError(t, err)

	rels := g.AllRelations()
	require.Len(t, rels, 1)
	assert.Len(t, rels[0].Evidence, 2)
}

func TestSearchMemory(t *testing.T) {
	e := newTestEngine(t, Options{}, nil)
	ctx := context.Background()

	_, err := e.SaveFact(ctx, "prefers coffee in the morning", "")
	require.NoError(t, err)
	_, err = e.SaveFact(ctx, "the deploy script lives in ops", "")
	require.NoError(t, err)

	matches := e.SearchMemory(ctx, "coffee", 5)
	require.Len(t, matches, 1)
	assert.Contains(t, matches[0].Chunk.Text, "coffee")
}

func TestSearchMemory_DegradesWithoutEmbedder(t *testing.T) {
	e := newTestEngine(t, Options{}, nil)
	e.embedder = nil
	assert.Nil(t, e.SearchMemory(context.Background(), "anything", 5))

	e.embedder = failingEmbedder{}
	assert.Nil(t, e.SearchMemory(context.Background(), "anything", 5))
}

func TestSearchGraph_SituationBoost(t *testing.T) {
	e := newTestEngine(t, Options{}, nil)
	g := e.Graph()

	_, err := g.AddEntity("Dashboard", types.EntityProject, []string{"the quarterly reporting project"}, types.SourceExplicit)
	require.NoError(t, err)

	results := e.SearchGraph("dashboard project deadline", 5)
	require.NotEmpty(t, results)
	assert.Equal(t, "Dashboard", results[0].Entity.Name)
}

func TestSelfReflectAndContext(t *testing.T) {
	e := newTestEngine(t, Options{}, nil)

	assert.Empty(t, e.SelfContext(), "no reflections yet")

	require.NoError(t, e.SelfReflect("I tend to over-explain; keep answers shorter"))
	selfCtx := e.SelfContext()
	assert.Contains(t, selfCtx, "over-explain")

	ent, ok := e.Graph().GetEntity(types.SelfEntityName)
	require.True(t, ok)
	assert.Equal(t, types.EntityAgentSelf, ent.Type)
	assert.Equal(t, types.SourceSelfObservation, ent.Observations[0].Evidence[0].Source)
}

func TestSelfContext_NamesOwner(t *testing.T) {
	e := newTestEngine(t, Options{OwnerName: "Priya"}, nil)

	require.NoError(t, e.SelfReflect("prefers concise status updates"))
	assert.Contains(t, e.SelfContext(), "Assisting Priya")
}

func TestSummarizeHistory(t *testing.T) {
	e := newTestEngine(t, Options{}, cannedCompleter{response: "talked about the coffee machine"})
	ctx := context.Background()

	require.NoError(t, e.RecordTurn(ctx, "user", "the coffee machine broke"))
	require.NoError(t, e.RecordTurn(ctx, "assistant", "noted, I will find a repair guide"))

	require.NoError(t, e.SummarizeHistory(ctx, time.Now().Add(time.Minute), 100))

	n, err := e.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The summarized turns are drained from the log.
	remaining, err := e.history.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	// Nothing old enough: no chunk added.
	require.NoError(t, e.SummarizeHistory(ctx, time.Now().Add(-time.Hour), 100))
	n, _ = e.vectors.Count(ctx)
	assert.Equal(t, 1, n)
}

func TestSummarizeHistory_RepeatedCutoff(t *testing.T) {
	e := newTestEngine(t, Options{}, cannedCompleter{response: "recap of the week"})
	ctx := context.Background()

	require.NoError(t, e.RecordTurn(ctx, "user", "the deploy failed twice"))
	require.NoError(t, e.RecordTurn(ctx, "assistant", "rolled back to the last good build"))

	// A scheduler retries with the same cutoff; drained turns must not be
	// summarized into fresh chunks each time.
	cutoff := time.Now().Add(time.Minute)
	for i := 0; i < 3; i++ {
		require.NoError(t, e.SummarizeHistory(ctx, cutoff, 100))
	}

	n, err := e.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClear(t *testing.T) {
	e := newTestEngine(t, Options{}, nil)
	ctx := context.Background()

	require.NoError(t, e.SelfReflect("keep answers short"))
	_, err := e.SaveFact(ctx, "prefers coffee", "preference")
	require.NoError(t, err)
	_, err = e.Skills().Add("brew coffee", "grind then pour", nil, nil)
	require.NoError(t, err)
	require.NoError(t, e.RecordTurn(ctx, "user", "hello"))

	assert.ErrorIs(t, e.Clear(ctx, "", false), storage.ErrInvalidInput)

	require.NoError(t, e.Clear(ctx, "test reset", false))
	stats := e.Stats(ctx)
	assert.Equal(t, 1, stats.Entities, "self survives a regular clear")
	assert.Zero(t, stats.Skills)
	assert.Zero(t, stats.Chunks)
	assert.Zero(t, stats.Turns)
	_, ok := e.Graph().GetEntity(types.SelfEntityName)
	assert.True(t, ok)

	require.NoError(t, e.Clear(ctx, "full wipe", true))
	_, ok = e.Graph().GetEntity(types.SelfEntityName)
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	e := newTestEngine(t, Options{}, nil)
	ctx := context.Background()

	_, err := e.SaveFact(ctx, "prefers coffee", "preference")
	require.NoError(t, err)
	_, err = e.Skills().Add("brew coffee", "grind then pour", nil, nil)
	require.NoError(t, err)
	require.NoError(t, e.RecordTurn(ctx, "user", "hello"))

	stats := e.Stats(ctx)
	assert.Equal(t, 1, stats.Entities)
	assert.Equal(t, 1, stats.Skills)
	assert.Equal(t, 1, stats.Chunks)
	assert.Equal(t, 1, stats.Turns)
	assert.Equal(t, 1, stats.StageDistribution[types.StageObservation])
}
