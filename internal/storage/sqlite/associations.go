package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/types"
)

const edgeColumns = `
	owner_id, unit_a, unit_b, strength, type, shared_topics,
	created_at, last_strengthened_at
`

// Upsert creates an edge or, when the canonical pair already exists, keeps
// the stronger strength and refreshes the type and topic count.
func (s *Store) Upsert(ctx context.Context, edge *types.AssociationEdge) error {
	if edge == nil {
		return storage.ErrInvalidInput
	}
	if edge.OwnerID == "" || edge.UnitA == "" || edge.UnitB == "" {
		return fmt.Errorf("%w: owner ID and both unit IDs are required", storage.ErrInvalidInput)
	}
	if edge.UnitA == edge.UnitB {
		return fmt.Errorf("%w: self-loop edges are not allowed", storage.ErrInvalidInput)
	}
	if edge.Strength < 0 || edge.Strength > 1 {
		return fmt.Errorf("%w: strength must be in [0,1], got %v", storage.ErrInvalidInput, edge.Strength)
	}
	if !types.IsValidAssociationType(edge.Type) {
		return fmt.Errorf("%w: invalid association type %q", storage.ErrInvalidInput, edge.Type)
	}

	a, b := types.CanonicalPair(edge.UnitA, edge.UnitB)
	createdAt := edge.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO association_edges (
			owner_id, unit_a, unit_b, strength, type, shared_topics, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, unit_a, unit_b) DO UPDATE SET
			strength = MAX(strength, excluded.strength),
			type = excluded.type,
			shared_topics = excluded.shared_topics
	`

	_, err := s.db.ExecContext(ctx, query,
		edge.OwnerID, a, b, edge.Strength, string(edge.Type), edge.SharedTopics, createdAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to upsert edge: %w", err)
	}

	return nil
}

// Strengthen adds delta to an edge's strength, capped at 1.0.
func (s *Store) Strengthen(ctx context.Context, ownerID, unitA, unitB string, delta float64, now time.Time) error {
	a, b := types.CanonicalPair(unitA, unitB)

	result, err := s.db.ExecContext(ctx, `
		UPDATE association_edges
		SET strength = MIN(strength + ?, 1.0), last_strengthened_at = ?
		WHERE owner_id = ? AND unit_a = ? AND unit_b = ?
	`, delta, now.UTC(), ownerID, a, b)
	if err != nil {
		return fmt.Errorf("sqlite: failed to strengthen edge: %w", err)
	}

	return checkAffected(result)
}

// EdgesForUnit returns all edges incident to the unit.
func (s *Store) EdgesForUnit(ctx context.Context, ownerID, unitID string) ([]*types.AssociationEdge, error) {
	query := "SELECT " + edgeColumns + `
		FROM association_edges
		WHERE owner_id = ? AND (unit_a = ? OR unit_b = ?)
		ORDER BY strength DESC`

	return s.queryEdges(ctx, query, ownerID, unitID, unitID)
}

// EdgesForOwner returns every edge for the owner.
func (s *Store) EdgesForOwner(ctx context.Context, ownerID string) ([]*types.AssociationEdge, error) {
	query := "SELECT " + edgeColumns + `
		FROM association_edges
		WHERE owner_id = ?
		ORDER BY unit_a, unit_b`

	return s.queryEdges(ctx, query, ownerID)
}

// Decay multiplies every edge strength for the owner by (1 - rate).
func (s *Store) Decay(ctx context.Context, ownerID string, rate float64) error {
	if rate < 0 || rate > 1 {
		return fmt.Errorf("%w: decay rate must be in [0,1], got %v", storage.ErrInvalidInput, rate)
	}

	_, err := s.db.ExecContext(ctx,
		"UPDATE association_edges SET strength = strength * ? WHERE owner_id = ?",
		1.0-rate, ownerID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to decay edges: %w", err)
	}

	return nil
}

// DeleteBelow removes edges with strength under the floor.
func (s *Store) DeleteBelow(ctx context.Context, ownerID string, floor float64) (int, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM association_edges WHERE owner_id = ? AND strength < ?",
		ownerID, floor)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to delete weak edges: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}

	return int(n), nil
}

// DeleteEdge removes one edge.
func (s *Store) DeleteEdge(ctx context.Context, ownerID, unitA, unitB string) error {
	a, b := types.CanonicalPair(unitA, unitB)

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM association_edges WHERE owner_id = ? AND unit_a = ? AND unit_b = ?",
		ownerID, a, b)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete edge: %w", err)
	}

	return checkAffected(result)
}

// DeleteOrphans removes edges whose endpoints no longer exist as units.
func (s *Store) DeleteOrphans(ctx context.Context, ownerID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM association_edges
		WHERE owner_id = ?
		  AND (unit_a NOT IN (SELECT id FROM memory_units WHERE owner_id = ?)
		    OR unit_b NOT IN (SELECT id FROM memory_units WHERE owner_id = ?))
	`, ownerID, ownerID, ownerID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to delete orphan edges: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}

	return int(n), nil
}

func (s *Store) queryEdges(ctx context.Context, query string, args ...interface{}) ([]*types.AssociationEdge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query edges: %w", err)
	}
	defer rows.Close()

	var edges []*types.AssociationEdge
	for rows.Next() {
		var (
			edge             types.AssociationEdge
			edgeType         string
			lastStrengthened sql.NullTime
		)
		err := rows.Scan(
			&edge.OwnerID, &edge.UnitA, &edge.UnitB,
			&edge.Strength, &edgeType, &edge.SharedTopics,
			&edge.CreatedAt, &lastStrengthened,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan edge: %w", err)
		}
		edge.Type = types.AssociationType(edgeType)
		if lastStrengthened.Valid {
			t := lastStrengthened.Time
			edge.LastStrengthenedAt = &t
		}
		edges = append(edges, &edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating edges: %w", err)
	}

	return edges, nil
}
