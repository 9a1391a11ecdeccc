package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-agents/engram/pkg/types"
)

func TestSearch_NameBeatsObservationMatch(t *testing.T) {
	g, _ := newTestGraph(t)

	_, err := g.AddEntity("React", types.EntityTechnology, []string{"used for frontend"}, types.SourceExplicit)
	require.NoError(t, err)
	_, err = g.AddEntity("Frontend guild", types.EntityOrganization, []string{"discusses React patterns weekly"}, types.SourceExplicit)
	require.NoError(t, err)

	results := g.Search("react", SearchOptions{Limit: 10})
	require.Len(t, results, 2)
	assert.Equal(t, "React", results[0].Entity.Name)
}

func TestSearch_CaseInsensitive(t *testing.T) {
	g, _ := newTestGraph(t)

	_, err := g.AddEntity("TypeScript", types.EntityTechnology, nil, types.SourceExplicit)
	require.NoError(t, err)

	assert.Len(t, g.Search("TYPESCRIPT", SearchOptions{}), 1)
	assert.Len(t, g.Search("typescript", SearchOptions{}), 1)
}

func TestSearch_ConfidenceShiftsRank(t *testing.T) {
	g, _ := newTestGraph(t)

	// Same text match; the reinforced entity must rank first.
	_, err := g.AddEntity("deploy pipeline", types.EntityService, []string{"runs on push to main"}, types.SourceExplicit)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err = g.AddEntity("deploy tooling", types.EntityService, []string{"wraps the release scripts"}, types.SourceExplicit)
		require.NoError(t, err)
	}

	results := g.Search("deploy", SearchOptions{Limit: 10})
	require.Len(t, results, 2)
	assert.Equal(t, "deploy tooling", results[0].Entity.Name)
}

type boostEverything struct{}

func (boostEverything) DomainBoost(entityType types.EntityType, _ types.Situation) float64 {
	if entityType == types.EntityProject {
		return 3.0
	}
	return 1.0
}

func (boostEverything) ObservationDomainBoost(string, types.Situation) float64 { return 1.0 }

func TestSearch_SituationBoostReorders(t *testing.T) {
	g, _ := newTestGraph(t)

	_, err := g.AddEntity("atlas notes", types.EntityFile, []string{"architecture decisions"}, types.SourceExplicit)
	require.NoError(t, err)
	_, err = g.AddEntity("cartography", types.EntityProject, []string{"the atlas mapping service"}, types.SourceExplicit)
	require.NoError(t, err)

	unboosted := g.Search("atlas", SearchOptions{Limit: 10})
	require.Len(t, unboosted, 2)
	assert.Equal(t, "atlas notes", unboosted[0].Entity.Name)

	boosted := g.Search("atlas", SearchOptions{Limit: 10, Booster: boostEverything{}})
	require.Len(t, boosted, 2)
	assert.Equal(t, "cartography", boosted[0].Entity.Name, "project boost must outrank the stronger text match")
}

func TestSearch_NoMatches(t *testing.T) {
	g, _ := newTestGraph(t)
	_, err := g.AddEntity("React", types.EntityTechnology, nil, types.SourceExplicit)
	require.NoError(t, err)

	assert.Empty(t, g.Search("kubernetes", SearchOptions{}))
	assert.Empty(t, g.Search("", SearchOptions{}))
}

func TestFormatForContext_BudgetAndBoundaries(t *testing.T) {
	g, _ := newTestGraph(t)

	_, err := g.AddEntity("React", types.EntityTechnology, []string{"used for frontend", "version 19 is current"}, types.SourceExplicit)
	require.NoError(t, err)
	_, err = g.AddRelation("React", "TypeScript", "uses", "", types.SourceExplicit)
	require.NoError(t, err)

	results := g.Search("react", SearchOptions{Limit: 10})
	require.NotEmpty(t, results)

	full := g.FormatForContext(results, 1<<20)
	assert.Contains(t, full, "## React (technology)")
	assert.Contains(t, full, "used for frontend")
	assert.Contains(t, full, "version 19 is current")
	assert.Contains(t, full, "React uses TypeScript")

	for _, maxChars := range []int{0, 10, 50, len(full) - 1, len(full), len(full) + 100} {
		out := g.FormatForContext(results, maxChars)
		assert.LessOrEqual(t, len(out), max(maxChars, 0), "maxChars=%d", maxChars)
		// Never a partial entity block: output is empty or contains the
		// full first entity header.
		if out != "" {
			assert.Contains(t, out, "## React (technology)")
			assert.Contains(t, out, "version 19 is current")
		}
	}
}

func TestTokenOverlap(t *testing.T) {
	assert.Equal(t, 1.0, TokenOverlap("Works at the hospital", "works at the hospital"))
	assert.GreaterOrEqual(t, TokenOverlap("prefers dark roast coffee in the morning", "prefers dark roast coffee every morning"), nearDuplicateThreshold-0.25)
	assert.Less(t, TokenOverlap("prefers dark roast coffee", "allergic to shellfish and peanuts"), nearDuplicateThreshold)

	// Short texts fall back to edit distance.
	assert.Greater(t, TokenOverlap("Go", "Go"), nearDuplicateThreshold)
	assert.Less(t, TokenOverlap("Go", "Rust"), nearDuplicateThreshold)
}

func TestEditDistance(t *testing.T) {
	assert.Equal(t, 1.0, EditDistance("same", "Same"))
	assert.Greater(t, EditDistance("kitten", "sitten"), 0.8)
	assert.Less(t, EditDistance("completely", "different!!"), 0.5)
}
