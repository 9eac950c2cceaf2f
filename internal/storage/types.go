package storage

import (
	"errors"
	"time"

	"github.com/scrypster/mnemo/pkg/types"
)

// Common storage errors.
var (
	// ErrNotFound is returned when a requested record does not exist, or
	// exists under a different owner.
	ErrNotFound = errors.New("storage: not found")

	// ErrInvalidInput is returned when a write is rejected before reaching
	// the backend (empty IDs, out-of-range scores, self-loop edges).
	ErrInvalidInput = errors.New("storage: invalid input")
)

// PruneCriteria selects low-value units for deletion during consolidation.
// A unit is pruned only when ALL of the conditions hold and its importance
// is not high.
type PruneCriteria struct {
	// NotAccessedSince matches units whose last access is before this
	// instant. Units never retrieved fall back to their creation time.
	NotAccessedSince time.Time

	// MaxAccessCount matches units accessed strictly fewer times than this.
	MaxAccessCount int

	// MaxConfidence matches units with confidence strictly below this.
	MaxConfidence float64
}

// CoAccessPair is a pair of units accessed within the co-access window,
// produced by ListAccessedSince consumers.
type CoAccessPair struct {
	UnitA string
	UnitB string
}

// Neighbor is one hop in the association graph: the unit on the far side of
// an edge plus that edge's weight.
type Neighbor struct {
	UnitID   string
	Strength float64
	Type     types.AssociationType
}

// CachedScore is a persisted evaluator result keyed by content hash, so
// identical response text is never re-evaluated.
type CachedScore struct {
	ContentHash string
	Score       float64
	CreatedAt   time.Time
}
