package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/types"
)

// CachedScore looks up a persisted evaluator score by content hash.
func (s *Store) CachedScore(ctx context.Context, contentHash string) (float64, error) {
	if contentHash == "" {
		return 0, fmt.Errorf("%w: content hash is required", storage.ErrInvalidInput)
	}

	var score float64
	err := s.db.QueryRowContext(ctx,
		"SELECT score FROM response_score_cache WHERE content_hash = ?",
		contentHash).Scan(&score)
	if err == sql.ErrNoRows {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to get cached score: %w", err)
	}

	return score, nil
}

// PutCachedScore persists an evaluator score under a content hash.
func (s *Store) PutCachedScore(ctx context.Context, contentHash string, score float64, now time.Time) error {
	if contentHash == "" {
		return fmt.Errorf("%w: content hash is required", storage.ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO response_score_cache (content_hash, score, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(content_hash) DO UPDATE SET score = excluded.score
	`, contentHash, score, now.UTC())
	if err != nil {
		return fmt.Errorf("sqlite: failed to cache score: %w", err)
	}

	return nil
}

// SetRTScore records the automated evaluator score for a unit.
func (s *Store) SetRTScore(ctx context.Context, ownerID, id string, score float64, now time.Time) error {
	if err := validateScore(score); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE memory_units SET rt_score = ?, evaluated_at = ?
		WHERE id = ? AND owner_id = ?
	`, score, now.UTC(), id, ownerID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to set automated score: %w", err)
	}

	return checkAffected(result)
}

// SetFeedback records human feedback for a unit.
func (s *Store) SetFeedback(ctx context.Context, ownerID, id string, score float64, now time.Time) error {
	if err := validateScore(score); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE memory_units SET ht_score = ?, feedback_at = ?
		WHERE id = ? AND owner_id = ?
	`, score, now.UTC(), id, ownerID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to set feedback score: %w", err)
	}

	return checkAffected(result)
}

// SetFinalScore records the fused final quality score for a unit.
func (s *Store) SetFinalScore(ctx context.Context, ownerID, id string, score float64, now time.Time) error {
	if err := validateScore(score); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE memory_units SET final_score = ?, finalized_at = ?
		WHERE id = ? AND owner_id = ?
	`, score, now.UTC(), id, ownerID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to set final score: %w", err)
	}

	return checkAffected(result)
}

// GetQuality returns the quality record for a unit. An unscored unit yields
// an empty record rather than an error.
func (s *Store) GetQuality(ctx context.Context, ownerID, id string) (*types.QualityScore, error) {
	unit, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if unit.Quality == nil {
		return &types.QualityScore{}, nil
	}
	return unit.Quality, nil
}

func validateScore(score float64) error {
	if score < 1 || score > 10 {
		return fmt.Errorf("%w: score must be in [1,10], got %v", storage.ErrInvalidInput, score)
	}
	return nil
}
