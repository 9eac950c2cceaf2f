package types

import (
	"testing"
	"time"
)

func TestCanonicalPair(t *testing.T) {
	a, b := CanonicalPair("zebra", "apple")
	if a != "apple" || b != "zebra" {
		t.Errorf("CanonicalPair: got (%s, %s), want (apple, zebra)", a, b)
	}
	a, b = CanonicalPair("apple", "zebra")
	if a != "apple" || b != "zebra" {
		t.Errorf("CanonicalPair is not order-insensitive: got (%s, %s)", a, b)
	}
}

func TestEdgeOther(t *testing.T) {
	edge := &AssociationEdge{UnitA: "a", UnitB: "b"}
	if got := edge.Other("a"); got != "b" {
		t.Errorf("Other(a): got %q, want b", got)
	}
	if got := edge.Other("b"); got != "a" {
		t.Errorf("Other(b): got %q, want a", got)
	}
	if got := edge.Other("c"); got != "" {
		t.Errorf("Other(c): got %q, want empty", got)
	}
}

func TestQualityState(t *testing.T) {
	score := 8.0

	var nilQuality *QualityScore
	if got := nilQuality.State(); got != QualityUnscored {
		t.Errorf("nil quality: got %s, want unscored", got)
	}
	if got := (&QualityScore{}).State(); got != QualityUnscored {
		t.Errorf("empty quality: got %s, want unscored", got)
	}
	if got := (&QualityScore{RTScore: &score}).State(); got != QualityRScored {
		t.Errorf("rt only: got %s, want r_scored", got)
	}
	if got := (&QualityScore{RTScore: &score, FinalScore: &score}).State(); got != QualityFinalScored {
		t.Errorf("final present: got %s, want final_scored", got)
	}
}

func TestTouch(t *testing.T) {
	unit := &MemoryUnit{}
	now := time.Now().UTC()

	unit.Touch(now)
	if unit.AccessCount != 1 {
		t.Errorf("AccessCount: got %d, want 1", unit.AccessCount)
	}
	if unit.LastAccessedAt == nil || !unit.LastAccessedAt.Equal(now) {
		t.Errorf("LastAccessedAt: got %v, want %v", unit.LastAccessedAt, now)
	}
}

func TestIsValidAssociationType(t *testing.T) {
	for _, valid := range ValidAssociationTypes {
		if !IsValidAssociationType(valid) {
			t.Errorf("IsValidAssociationType(%s) = false", valid)
		}
	}
	if IsValidAssociationType("friendship") {
		t.Error("IsValidAssociationType accepted an unknown type")
	}
}
