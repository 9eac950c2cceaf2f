package memory

import (
	"math"
	"testing"
	"time"

	"github.com/scrypster/mnemo/pkg/types"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	w := DefaultWeights()
	if !almostEqual(w.Vector+w.Temporal+w.Access+w.Association, 1.0) {
		t.Errorf("default weights sum to %v, want 1.0", w.Vector+w.Temporal+w.Access+w.Association)
	}
}

func TestSetWeightsRenormalizes(t *testing.T) {
	s := NewRelevanceScorer(Weights{Vector: 4, Temporal: 2.5, Access: 2, Association: 1.5})

	w := s.Weights()
	if !almostEqual(w.Vector, 0.4) {
		t.Errorf("Vector: got %v, want 0.4", w.Vector)
	}
	if !almostEqual(w.Vector+w.Temporal+w.Access+w.Association, 1.0) {
		t.Errorf("renormalized weights do not sum to 1")
	}
}

func TestSetWeightsRejectsZeroSum(t *testing.T) {
	s := NewRelevanceScorer(Weights{})

	if s.Weights() != DefaultWeights() {
		t.Errorf("zero-sum weights: got %+v, want defaults", s.Weights())
	}
}

func TestTemporalScoreDecay(t *testing.T) {
	now := time.Now().UTC()

	fresh := temporalScore(now, now)
	if !almostEqual(fresh, 1.0) {
		t.Errorf("fresh unit: got %v, want 1.0", fresh)
	}

	monthOld := temporalScore(now.Add(-30*24*time.Hour), now)
	if !almostEqual(monthOld, math.Exp(-1)) {
		t.Errorf("30-day-old unit: got %v, want 1/e", monthOld)
	}

	if temporalScore(time.Time{}, now) != 0 {
		t.Error("zero timestamp should score 0")
	}

	// A timestamp in the future clamps to now rather than scoring above 1.
	future := temporalScore(now.Add(time.Hour), now)
	if !almostEqual(future, 1.0) {
		t.Errorf("future timestamp: got %v, want 1.0", future)
	}
}

func TestAccessScoreLogNormalization(t *testing.T) {
	if accessScore(0) != 0 {
		t.Error("zero accesses should score 0")
	}
	if !almostEqual(accessScore(100), 1.0) {
		t.Errorf("at cap: got %v, want 1.0", accessScore(100))
	}
	if accessScore(10_000) != 1.0 {
		t.Errorf("beyond cap: got %v, want 1.0", accessScore(10_000))
	}

	// Monotonic in between.
	if !(accessScore(1) < accessScore(5) && accessScore(5) < accessScore(50)) {
		t.Error("access score is not monotonic")
	}
}

func TestCompositeScoreBounds(t *testing.T) {
	s := NewRelevanceScorer(DefaultWeights())
	now := time.Now().UTC()

	unit := &types.MemoryUnit{CreatedAt: now, AccessCount: 100}
	b := s.Score(unit, 1.0, 1.0, now)
	if !almostEqual(b.Composite, 1.0) {
		t.Errorf("perfect unit: got %v, want 1.0", b.Composite)
	}

	// Negative cosine similarity clamps to 0 rather than dragging the
	// composite negative.
	old := &types.MemoryUnit{CreatedAt: now.Add(-365 * 24 * time.Hour)}
	b = s.Score(old, -0.5, 0, now)
	if b.Vector != 0 {
		t.Errorf("negative similarity: got %v, want clamp to 0", b.Vector)
	}
	if b.Composite < 0 || b.Composite > 1 {
		t.Errorf("composite out of bounds: %v", b.Composite)
	}
}

func TestVectorComponentDominatesByDefault(t *testing.T) {
	s := NewRelevanceScorer(DefaultWeights())
	now := time.Now().UTC()

	// Same age and usage; only similarity differs.
	similar := &types.MemoryUnit{CreatedAt: now.Add(-24 * time.Hour), AccessCount: 3}
	dissimilar := &types.MemoryUnit{CreatedAt: now.Add(-24 * time.Hour), AccessCount: 3}

	bs := s.Score(similar, 0.95, 0, now)
	bd := s.Score(dissimilar, 0.10, 0, now)
	if bs.Composite <= bd.Composite {
		t.Errorf("similarity should dominate: %v <= %v", bs.Composite, bd.Composite)
	}
}
