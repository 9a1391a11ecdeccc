package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/halcyon-agents/engram/internal/graph"
	"github.com/halcyon-agents/engram/internal/skills"
	"github.com/halcyon-agents/engram/pkg/types"
)

// embedTimeout bounds the embedding call during context assembly. A timeout
// drops the vector-recall section for this turn; it is not retried
// synchronously.
const embedTimeout = 5 * time.Second

// ContextResult is the assembled memory context for one model call.
type ContextResult struct {
	// RecentHistory is the last N conversation turns, verbatim.
	RecentHistory string

	// RelevantMemories is the vector-recall section.
	RelevantMemories string

	// GraphContext is the situation-boosted knowledge-graph section.
	GraphContext string

	// SkillContext is the matched-skills section.
	SkillContext string

	// Assembled is the final budgeted context string, sections in priority
	// order: self-identity, recent conversation, graph, skills, recall.
	Assembled string

	// Stats describes what each source contributed.
	Stats ContextStats
}

// ContextStats is the per-call observability record.
type ContextStats struct {
	RecentTurns     int             `json:"recent_turns"`
	VectorMatches   int             `json:"vector_matches"`
	GraphEntities   int             `json:"graph_entities"`
	SkillMatches    int             `json:"skill_matches"`
	Situation       types.Situation `json:"situation"`
	AssembledChars  int             `json:"assembled_chars"`
	BudgetTruncated bool            `json:"budget_truncated"`
}

// BuildContext assembles the memory context for a user query. It never
// returns an error: any sub-query failure or timeout degrades that section
// to empty so the hosting agent's turn always proceeds.
func (e *Engine) BuildContext(ctx context.Context, userQuery string) ContextResult {
	var result ContextResult

	// (1) Recent conversation, verbatim.
	turns, err := e.history.Recent(ctx, e.opts.RecentWindowSize)
	if err != nil {
		log.Printf("engine: recent history unavailable: %v", err)
	}
	result.RecentHistory = formatTurns(turns)
	result.Stats.RecentTurns = len(turns)

	// (2) Situation classification biases the graph and skill queries.
	sit := e.classifier.Classify(userQuery)
	result.Stats.Situation = sit

	// (3) Vector recall, tolerating one slow embedding call.
	matches := e.vectorRecall(ctx, userQuery)
	result.RelevantMemories = formatMatches(matches)
	result.Stats.VectorMatches = len(matches)

	// (4) Graph, situation-boosted.
	graphResults := e.graph.Search(userQuery, graph.SearchOptions{
		Limit:     e.opts.RelevantMemoryLimit,
		Situation: sit,
		Booster:   e.classifier,
	})
	result.GraphContext = e.graph.FormatForContext(graphResults, e.opts.ContextBudget)
	result.Stats.GraphEntities = len(graphResults)

	// (5) Skills.
	skillResults := e.skills.Search(userQuery, e.opts.RelevantMemoryLimit, sit, e.classifier)
	result.SkillContext = formatSkills(skillResults)
	result.Stats.SkillMatches = len(skillResults)

	// (6) Assemble under budget, truncating lowest priority first.
	sections := []section{
		{title: "Identity", body: e.SelfContext()},
		{title: "Recent conversation", body: result.RecentHistory},
		{title: "Known facts", body: result.GraphContext},
		{title: "Skills", body: result.SkillContext},
		{title: "Related memories", body: result.RelevantMemories},
	}
	result.Assembled, result.Stats.BudgetTruncated = assemble(sections, e.opts.ContextBudget)
	result.Stats.AssembledChars = len(result.Assembled)
	return result
}

func (e *Engine) vectorRecall(ctx context.Context, query string) []vectorMatchView {
	if e.embedder == nil {
		return nil
	}
	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	embedding, err := e.embedder.Embed(embedCtx, query)
	if err != nil {
		log.Printf("engine: recall embedding skipped: %v", err)
		return nil
	}
	matches, err := e.vectors.Search(ctx, embedding, e.opts.RelevantMemoryLimit)
	if err != nil {
		log.Printf("engine: recall search skipped: %v", err)
		return nil
	}
	views := make([]vectorMatchView, 0, len(matches))
	for _, m := range matches {
		views = append(views, vectorMatchView{
			Text:      m.Chunk.Text,
			Source:    string(m.Chunk.Source),
			Relevance: m.Relevance,
		})
	}
	return views
}

type vectorMatchView struct {
	Text      string
	Source    string
	Relevance int
}

// section is one priority-ordered piece of assembled context. Index order is
// priority order: earlier sections are sacrificed last.
type section struct {
	title string
	body  string
}

// assemble joins non-empty sections under headers and enforces the character
// budget by truncating the lowest-priority sections first. A truncated
// section is cut at a line boundary; a section whose header no longer fits
// is dropped entirely. Returns the assembled string and whether truncation
// happened.
func assemble(sections []section, budget int) (string, bool) {
	rendered := make([]string, len(sections))
	total := 0
	for i, s := range sections {
		if strings.TrimSpace(s.body) == "" {
			continue
		}
		rendered[i] = fmt.Sprintf("# %s\n%s\n\n", s.title, strings.TrimRight(s.body, "\n"))
		total += len(rendered[i])
	}

	truncated := false
	for i := len(rendered) - 1; i >= 0 && total > budget; i-- {
		if rendered[i] == "" {
			continue
		}
		truncated = true
		overshoot := total - budget
		if len(rendered[i]) <= overshoot || len(rendered[i])-overshoot < len(sections[i].title)+10 {
			total -= len(rendered[i])
			rendered[i] = ""
			continue
		}
		cut := cutAtLine(rendered[i], len(rendered[i])-overshoot)
		total -= len(rendered[i]) - len(cut)
		rendered[i] = cut
	}

	return strings.TrimRight(strings.Join(rendered, ""), "\n"), truncated
}

// cutAtLine shortens s to at most limit bytes, cutting at the last newline
// before the limit so no line is split mid-way.
func cutAtLine(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	idx := strings.LastIndexByte(s[:limit], '\n')
	if idx <= 0 {
		return ""
	}
	return s[:idx+1]
}

func formatTurns(turns []types.Turn) string {
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Text)
	}
	return b.String()
}

func formatMatches(matches []vectorMatchView) string {
	if len(matches) == 0 {
		return ""
	}
	var b strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&b, "- %s [%s, %d%%]\n", m.Text, m.Source, m.Relevance)
	}
	return b.String()
}

func formatSkills(results []skills.Result) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "## %s\n%s\n", r.Skill.Name, r.Skill.Description)
		for i, step := range r.Skill.Steps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
	}
	return b.String()
}
