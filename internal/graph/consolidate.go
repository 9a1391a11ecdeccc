package graph

import (
	"time"

	"github.com/halcyon-agents/engram/pkg/types"
)

// ConsolidationPolicy holds the tunable thresholds for stage promotion and
// staleness. Zero fields fall back to DefaultConsolidationPolicy values.
type ConsolidationPolicy struct {
	// ReinforceAt is the evidence count that promotes an item from
	// observation to reinforced.
	ReinforceAt int

	// EstablishAt is the evidence count that promotes an item from
	// reinforced to established.
	EstablishAt int

	// StaleAfter flags a lowest-stage item as stale when it has gone this
	// long without reinforcing evidence. Stale items are surfaced, never
	// deleted.
	StaleAfter time.Duration
}

// DefaultConsolidationPolicy is the tuning used when no configuration
// overrides it: three corroborations to reinforce, six to establish, thirty
// days of silence to go stale.
func DefaultConsolidationPolicy() ConsolidationPolicy {
	return ConsolidationPolicy{
		ReinforceAt: 3,
		EstablishAt: 6,
		StaleAfter:  30 * 24 * time.Hour,
	}
}

func (p ConsolidationPolicy) withDefaults() ConsolidationPolicy {
	def := DefaultConsolidationPolicy()
	if p.ReinforceAt <= 0 {
		p.ReinforceAt = def.ReinforceAt
	}
	if p.EstablishAt <= p.ReinforceAt {
		p.EstablishAt = def.EstablishAt
		if p.EstablishAt <= p.ReinforceAt {
			p.EstablishAt = p.ReinforceAt * 2
		}
	}
	if p.StaleAfter <= 0 {
		p.StaleAfter = def.StaleAfter
	}
	return p
}

// ConsolidationReport summarises one consolidation pass.
type ConsolidationReport struct {
	ObservationsPromoted int
	RelationsPromoted    int
	FlaggedStale         int
	Pass                 int
	RanAt                time.Time
}

// TryConsolidate runs one consolidation pass if the writer lock can be
// acquired immediately. When the graph is busy it returns false without
// blocking, so the background consolidator defers to the next trigger
// instead of starving foreground traffic.
//
// The pass is idempotent: promotion depends only on accumulated evidence
// counts and staleness only on reinforcement age, so a second pass with no
// intervening mutations changes no stages and flags nothing new.
func (g *Graph) TryConsolidate(policy ConsolidationPolicy) (*ConsolidationReport, bool, error) {
	if !g.mu.TryLock() {
		return nil, false, nil
	}
	defer g.mu.Unlock()

	p := policy.withDefaults()
	now := time.Now()
	report := &ConsolidationReport{RanAt: now}

	for _, e := range g.entities {
		for i := range e.Observations {
			o := &e.Observations[i]
			if promoteStage(&o.Stage, len(o.Evidence), p) {
				report.ObservationsPromoted++
			}
			if o.Stage == types.StageObservation && !o.Stale && now.Sub(o.LastReinforcedAt) > p.StaleAfter {
				o.Stale = true
				report.FlaggedStale++
			}
		}
	}
	for _, r := range g.relations {
		if promoteStage(&r.Stage, len(r.Evidence), p) {
			report.RelationsPromoted++
		}
		if r.Stage == types.StageObservation && !r.Stale && now.Sub(r.UpdatedAt) > p.StaleAfter {
			r.Stale = true
			report.FlaggedStale++
		}
	}

	g.meta.MutationsSinceConsolidation = 0
	g.meta.ConsolidationCount++
	g.meta.LastConsolidatedAt = now
	report.Pass = g.meta.ConsolidationCount

	if err := g.persistLocked(); err != nil {
		return nil, true, err
	}
	return report, true, nil
}

// promoteStage raises stage to the highest level the evidence count has
// earned. Returns true if the stage changed.
func promoteStage(stage *types.MemoryStage, evidenceCount int, p ConsolidationPolicy) bool {
	target := types.StageObservation
	switch {
	case evidenceCount >= p.EstablishAt:
		target = types.StageEstablished
	case evidenceCount >= p.ReinforceAt:
		target = types.StageReinforced
	}
	if types.StageRank(target) > types.StageRank(*stage) {
		*stage = target
		return true
	}
	return false
}

// StageDistribution counts observations and relations per stage, for the
// aggregate statistics surface.
func (g *Graph) StageDistribution() map[types.MemoryStage]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	dist := map[types.MemoryStage]int{
		types.StageObservation: 0,
		types.StageReinforced:  0,
		types.StageEstablished: 0,
	}
	for _, e := range g.entities {
		for i := range e.Observations {
			dist[e.Observations[i].Stage]++
		}
	}
	for _, r := range g.relations {
		dist[r.Stage]++
	}
	return dist
}
