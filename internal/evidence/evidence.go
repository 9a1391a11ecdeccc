// Package evidence implements the pure scoring functions behind Engram's
// memory model: recency-weighted confidence for observations and weight for
// relations, both derived from an item's evidence trail on every access.
//
// All functions are deterministic for a fixed evaluation time. Confidence is
// monotonic in evidence count when evaluated at the same instant, and bounded
// within [0,1]. Recomputing later without new evidence may yield a lower
// value (decay), which is intentional.
package evidence

import (
	"math"
	"time"

	"github.com/halcyon-agents/engram/pkg/types"
)

// Fresh returns a new piece of evidence stamped with the current time.
func Fresh(source types.EvidenceSource) types.Evidence {
	return types.Evidence{Timestamp: time.Now(), Source: source}
}

// Scorer computes confidence and weight from evidence trails. The zero value
// is not usable; construct with NewScorer or use the package-level Confidence
// and Weight helpers, which apply the default tuning.
type Scorer struct {
	// HalfLife controls recency decay: a piece of evidence this old
	// contributes half of its source weight.
	HalfLife time.Duration

	// Saturation controls how quickly accumulated evidence approaches 1.0.
	// Higher values make confidence climb more slowly.
	Saturation float64

	// WeightSaturation is the Saturation analogue for relation weight.
	WeightSaturation float64
}

// NewScorer returns a scorer with the given tuning. Non-positive fields fall
// back to the defaults.
func NewScorer(halfLife time.Duration, saturation, weightSaturation float64) Scorer {
	s := defaultScorer
	if halfLife > 0 {
		s.HalfLife = halfLife
	}
	if saturation > 0 {
		s.Saturation = saturation
	}
	if weightSaturation > 0 {
		s.WeightSaturation = weightSaturation
	}
	return s
}

var defaultScorer = Scorer{
	HalfLife:         30 * 24 * time.Hour,
	Saturation:       1.5,
	WeightSaturation: 1.2,
}

// sourceWeight maps an evidence source to its base contribution. Explicit
// statements from a trusted party count full; the agent's own reflections
// slightly less; engine inferences least.
func sourceWeight(source types.EvidenceSource) float64 {
	switch source {
	case types.SourceExplicit:
		return 1.0
	case types.SourceSelfObservation:
		return 0.9
	case types.SourceInferred:
		return 0.6
	default:
		return 0.5
	}
}

// mass sums the decayed contributions of every piece of evidence as of now.
func (s Scorer) mass(ev []types.Evidence, now time.Time) float64 {
	var total float64
	for _, e := range ev {
		age := now.Sub(e.Timestamp)
		if age < 0 {
			age = 0
		}
		decay := math.Exp2(-age.Hours() / s.HalfLife.Hours())
		total += sourceWeight(e.Source) * decay
	}
	return total
}

// Confidence computes the confidence of an observation from its evidence
// trail as of now. More and newer evidence increases the result; the result
// saturates toward 1.0 and is always within [0,1].
func (s Scorer) Confidence(ev []types.Evidence, now time.Time) float64 {
	m := s.mass(ev, now)
	if m <= 0 {
		return 0
	}
	return m / (m + s.Saturation)
}

// Weight computes the strength of a relation from its evidence trail as of
// now. Same contract as Confidence, tuned slightly more generous so a single
// explicit statement already yields a usable edge weight.
func (s Scorer) Weight(ev []types.Evidence, now time.Time) float64 {
	m := s.mass(ev, now)
	if m <= 0 {
		return 0
	}
	return m / (m + s.WeightSaturation)
}

// Confidence computes observation confidence with the default tuning.
func Confidence(ev []types.Evidence, now time.Time) float64 {
	return defaultScorer.Confidence(ev, now)
}

// Weight computes relation weight with the default tuning.
func Weight(ev []types.Evidence, now time.Time) float64 {
	return defaultScorer.Weight(ev, now)
}
