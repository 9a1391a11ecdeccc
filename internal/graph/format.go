package graph

import (
	"fmt"
	"strings"
	"time"
)

// FormatForContext serializes the given entities plus their direct relations
// into a budgeted text block. Entities are emitted in the order given and
// serialization stops cleanly at an entity boundary once maxChars would be
// exceeded; the output never splits an entity's block.
func (g *Graph) FormatForContext(results []SearchResult, maxChars int) string {
	if maxChars <= 0 || len(results) == 0 {
		return ""
	}
	now := time.Now()

	var b strings.Builder
	for _, res := range results {
		block := g.formatEntity(res, now)
		if b.Len()+len(block) > maxChars {
			break
		}
		b.WriteString(block)
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatEntity renders one entity and its direct relations.
func (g *Graph) formatEntity(res SearchResult, now time.Time) string {
	e := res.Entity

	var b strings.Builder
	fmt.Fprintf(&b, "## %s (%s)\n", e.Name, e.Type)
	for i := range e.Observations {
		o := &e.Observations[i]
		conf := g.ObservationConfidence(o, now)
		marker := ""
		if o.Stale {
			marker = ", stale"
		}
		fmt.Fprintf(&b, "- %s [%s, %d%%%s]\n", o.Text, o.Stage, int(conf*100+0.5), marker)
	}
	for _, r := range g.RelationsFor(e.Name) {
		weight := g.RelationWeight(r, now)
		line := fmt.Sprintf("- %s %s %s", r.From, strings.ReplaceAll(string(r.Type), "-", " "), r.To)
		if r.Label != "" {
			line += fmt.Sprintf(" (%s)", r.Label)
		}
		fmt.Fprintf(&b, "%s [%d%%]\n", line, int(weight*100+0.5))
	}
	b.WriteString("\n")
	return b.String()
}
