// Package storage defines the persistence contracts for memory units, the
// association graph, and quality scores. Backends (sqlite, postgres)
// implement these interfaces; everything above them is backend-agnostic.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/mnemo/pkg/types"
)

// MemoryStore persists memory units. Every method that touches unit data is
// parameterized by owner ID; a backend must never return another owner's
// units.
type MemoryStore interface {
	// Store persists a new unit. The unit ID must be set by the caller.
	Store(ctx context.Context, unit *types.MemoryUnit) error

	// Get returns a unit by ID, or ErrNotFound if it does not exist or
	// belongs to a different owner.
	Get(ctx context.Context, ownerID, id string) (*types.MemoryUnit, error)

	// ListByOwner returns all units for an owner, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*types.MemoryUnit, error)

	// ListOwners returns every owner ID with at least one stored unit.
	ListOwners(ctx context.Context) ([]string, error)

	// IncrementAccess bumps the access count and last-accessed timestamp.
	IncrementAccess(ctx context.Context, ownerID, id string, now time.Time) error

	// UpdateConfidence sets a unit's confidence score.
	UpdateConfidence(ctx context.Context, ownerID, id string, confidence float64) error

	// UpdateImportance sets a unit's importance tag.
	UpdateImportance(ctx context.Context, ownerID, id string, importance types.Importance) error

	// ListAccessedSince returns units last accessed at or after the given
	// instant, ordered by last access time ascending.
	ListAccessedSince(ctx context.Context, ownerID string, since time.Time) ([]*types.MemoryUnit, error)

	// Prune deletes units matching the criteria, skipping high-importance
	// units, and returns the deleted IDs so callers can clean up edges.
	Prune(ctx context.Context, ownerID string, criteria PruneCriteria) ([]string, error)

	// PurgeInvalidEmbeddings deletes units carrying the all-zero embedding
	// sentinel and returns the count removed.
	PurgeInvalidEmbeddings(ctx context.Context, ownerID string) (int, error)

	// ListUnscoredResponses returns assistant units with no automated
	// quality score yet, oldest first, up to limit.
	ListUnscoredResponses(ctx context.Context, ownerID string, limit int) ([]*types.MemoryUnit, error)

	// Delete removes a unit. Deleting a missing unit returns ErrNotFound.
	Delete(ctx context.Context, ownerID, id string) error

	// OwnerStats computes the per-owner aggregate counters.
	OwnerStats(ctx context.Context, ownerID string) (*types.OwnerStats, error)

	// Close releases backend resources.
	Close() error
}

// VectorSearcher finds the nearest stored units to a query embedding.
// Implementations rank by cosine similarity and exclude units carrying the
// zero-vector sentinel.
type VectorSearcher interface {
	// NearestNeighbors returns up to limit units for the owner ordered by
	// descending similarity to the query, each paired with its score.
	NearestNeighbors(ctx context.Context, ownerID string, query []float64, limit int) ([]ScoredUnit, error)
}

// ScoredUnit is a unit paired with its raw vector similarity in [0,1].
type ScoredUnit struct {
	Unit       *types.MemoryUnit
	Similarity float64
}

// AssociationStore persists the undirected association graph. Edges are
// keyed by the canonical (owner, unitA, unitB) triple.
type AssociationStore interface {
	// Upsert creates an edge or, if the pair already exists, keeps the
	// stronger of the existing and new strengths. Self-loops are rejected
	// with ErrInvalidInput.
	Upsert(ctx context.Context, edge *types.AssociationEdge) error

	// Strengthen adds delta to an existing edge's strength, capping at 1.0,
	// and stamps the strengthened time. Missing edges return ErrNotFound.
	Strengthen(ctx context.Context, ownerID, unitA, unitB string, delta float64, now time.Time) error

	// EdgesForUnit returns all edges incident to the unit.
	EdgesForUnit(ctx context.Context, ownerID, unitID string) ([]*types.AssociationEdge, error)

	// EdgesForOwner returns every edge for the owner.
	EdgesForOwner(ctx context.Context, ownerID string) ([]*types.AssociationEdge, error)

	// Decay multiplies every edge strength for the owner by (1 - rate).
	Decay(ctx context.Context, ownerID string, rate float64) error

	// DeleteBelow removes edges with strength under the floor and returns
	// the count removed.
	DeleteBelow(ctx context.Context, ownerID string, floor float64) (int, error)

	// DeleteEdge removes one edge.
	DeleteEdge(ctx context.Context, ownerID, unitA, unitB string) error

	// DeleteOrphans removes edges whose endpoints no longer exist as units
	// and returns the count removed.
	DeleteOrphans(ctx context.Context, ownerID string) (int, error)
}

// QualityStore persists response quality scores and the evaluator cache.
type QualityStore interface {
	// CachedScore looks up a persisted evaluator score by content hash.
	// Returns ErrNotFound on a miss.
	CachedScore(ctx context.Context, contentHash string) (float64, error)

	// PutCachedScore persists an evaluator score under a content hash.
	PutCachedScore(ctx context.Context, contentHash string, score float64, now time.Time) error

	// SetRTScore records the automated score for a unit and stamps the
	// evaluation time.
	SetRTScore(ctx context.Context, ownerID, id string, score float64, now time.Time) error

	// SetFeedback records human feedback for a unit. Scores outside [1,10]
	// are rejected with ErrInvalidInput.
	SetFeedback(ctx context.Context, ownerID, id string, score float64, now time.Time) error

	// SetFinalScore records the fused final score for a unit.
	SetFinalScore(ctx context.Context, ownerID, id string, score float64, now time.Time) error

	// GetQuality returns the quality record for a unit. A unit that exists
	// but was never scored returns an empty QualityScore, not an error.
	GetQuality(ctx context.Context, ownerID, id string) (*types.QualityScore, error)
}

// Store bundles the four persistence contracts a backend provides.
type Store interface {
	MemoryStore
	VectorSearcher
	AssociationStore
	QualityStore
}
