// Package memory implements the core engine: storing conversation turns as
// memory units and retrieving them with multi-factor relevance scoring.
package memory

import (
	"log"
	"math"
	"time"

	"github.com/scrypster/mnemo/pkg/types"
)

const (
	// maxAccesses is the normalization ceiling for the access frequency
	// component. Counts beyond it contribute nothing extra.
	maxAccesses = 100

	// temporalDecayDays controls how fast the temporal component decays:
	// a unit one decay period old scores 1/e.
	temporalDecayDays = 30.0
)

// Weights holds the four relevance component weights. They are expected to
// sum to 1; SetWeights renormalizes arbitrary inputs.
type Weights struct {
	Vector      float64
	Temporal    float64
	Access      float64
	Association float64
}

// DefaultWeights is the standard blend: semantic similarity dominates, with
// recency, usage frequency, and graph connectivity as secondary signals.
func DefaultWeights() Weights {
	return Weights{Vector: 0.40, Temporal: 0.25, Access: 0.20, Association: 0.15}
}

// ScoreBreakdown carries the individual component scores alongside the
// weighted composite, for logging and debugging.
type ScoreBreakdown struct {
	Vector      float64
	Temporal    float64
	Access      float64
	Association float64
	Composite   float64
}

// RelevanceScorer computes composite relevance scores for retrieval.
type RelevanceScorer struct {
	weights Weights
}

// NewRelevanceScorer creates a scorer with the given weights, renormalized
// to sum to 1.
func NewRelevanceScorer(w Weights) *RelevanceScorer {
	s := &RelevanceScorer{}
	s.SetWeights(w)
	return s
}

// SetWeights replaces the component weights, renormalizing so they sum to 1.
// Non-positive sums fall back to the defaults.
func (s *RelevanceScorer) SetWeights(w Weights) {
	sum := w.Vector + w.Temporal + w.Access + w.Association
	if sum <= 0 {
		log.Printf("scorer: non-positive weight sum %v, using defaults", sum)
		s.weights = DefaultWeights()
		return
	}
	if math.Abs(sum-1.0) > 1e-9 {
		log.Printf("scorer: weights sum to %v, renormalizing", sum)
	}
	s.weights = Weights{
		Vector:      w.Vector / sum,
		Temporal:    w.Temporal / sum,
		Access:      w.Access / sum,
		Association: w.Association / sum,
	}
}

// Weights returns the current normalized weights.
func (s *RelevanceScorer) Weights() Weights {
	return s.weights
}

// Score computes the composite relevance for a unit. vectorSim is the raw
// cosine similarity from the searcher; associationAvg is the mean strength
// of the unit's incident edges (0 when unlinked).
func (s *RelevanceScorer) Score(unit *types.MemoryUnit, vectorSim, associationAvg float64, now time.Time) ScoreBreakdown {
	b := ScoreBreakdown{
		Vector:      clamp01(vectorSim),
		Temporal:    temporalScore(unit.CreatedAt, now),
		Access:      accessScore(unit.AccessCount),
		Association: clamp01(associationAvg),
	}
	b.Composite = s.weights.Vector*b.Vector +
		s.weights.Temporal*b.Temporal +
		s.weights.Access*b.Access +
		s.weights.Association*b.Association
	return b
}

// temporalScore decays exponentially with age: exp(-days/30), so fresh
// units score near 1 and month-old units near 0.37.
func temporalScore(createdAt time.Time, now time.Time) float64 {
	if createdAt.IsZero() {
		return 0
	}
	days := now.Sub(createdAt).Hours() / 24.0
	if days < 0 {
		days = 0
	}
	return clamp01(math.Exp(-days / temporalDecayDays))
}

// accessScore normalizes the access count logarithmically so heavily
// accessed units cannot dominate: log(1+n)/log(1+100), capped at 1.
func accessScore(count int) float64 {
	if count <= 0 {
		return 0
	}
	return clamp01(math.Log(1+float64(count)) / math.Log(1+maxAccesses))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
