// Package consolidate drives staged memory consolidation in the background.
// It watches the knowledge graph's mutation counter and a wall-clock
// interval, and asks the graph for a consolidation pass when either trigger
// fires. Passes are batched for efficiency rather than run on every write.
package consolidate

import (
	"context"
	"log"
	"time"

	"github.com/halcyon-agents/engram/internal/graph"
)

// Config tunes the consolidation triggers and thresholds.
type Config struct {
	// MutationThreshold triggers a pass after this many graph mutations.
	MutationThreshold int

	// Interval triggers a pass after this much time regardless of
	// mutation count, so evidence decay and staleness still get
	// re-evaluated on a quiet graph.
	Interval time.Duration

	// CheckEvery is how often the background loop inspects the triggers.
	CheckEvery time.Duration

	// Policy holds the promotion thresholds and stale window.
	Policy graph.ConsolidationPolicy
}

// DefaultConfig returns the standard consolidation tuning.
func DefaultConfig() Config {
	return Config{
		MutationThreshold: 25,
		Interval:          time.Hour,
		CheckEvery:        30 * time.Second,
		Policy:            graph.DefaultConsolidationPolicy(),
	}
}

// Consolidator owns the background consolidation loop for one graph.
type Consolidator struct {
	graph  *graph.Graph
	config Config
	done   chan struct{}
}

// New creates a consolidator for the given graph. Zero config fields fall
// back to defaults.
func New(g *graph.Graph, cfg Config) *Consolidator {
	def := DefaultConfig()
	if cfg.MutationThreshold <= 0 {
		cfg.MutationThreshold = def.MutationThreshold
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = def.CheckEvery
	}
	return &Consolidator{graph: g, config: cfg, done: make(chan struct{})}
}

// Start runs the consolidation loop until ctx is cancelled.
func (c *Consolidator) Start(ctx context.Context) {
	go c.loop(ctx)
}

// Done is closed once the loop has exited.
func (c *Consolidator) Done() <-chan struct{} {
	return c.done
}

func (c *Consolidator) loop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.config.CheckEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.due() {
				c.RunOnce()
			}
		}
	}
}

// due reports whether either trigger has fired.
func (c *Consolidator) due() bool {
	meta := c.graph.Meta()
	if meta.MutationsSinceConsolidation >= c.config.MutationThreshold {
		return true
	}
	if meta.MutationsSinceConsolidation > 0 && time.Since(meta.LastConsolidatedAt) >= c.config.Interval {
		return true
	}
	return false
}

// RunOnce attempts a single consolidation pass. If the graph is busy the
// pass is skipped; the next trigger picks it up. Returns the report, or nil
// when the pass was skipped or failed.
func (c *Consolidator) RunOnce() *graph.ConsolidationReport {
	report, ran, err := c.graph.TryConsolidate(c.config.Policy)
	if err != nil {
		log.Printf("consolidate: pass %d failed to persist: %v", c.graph.Meta().ConsolidationCount, err)
		return nil
	}
	if !ran {
		log.Printf("consolidate: graph busy, deferring to next trigger")
		return nil
	}
	if report.ObservationsPromoted+report.RelationsPromoted+report.FlaggedStale > 0 {
		log.Printf("consolidate: pass %d promoted %d observations, %d relations, flagged %d stale",
			report.Pass, report.ObservationsPromoted, report.RelationsPromoted, report.FlaggedStale)
	}
	return report
}
