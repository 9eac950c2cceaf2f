package sqlite

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/scrypster/mnemo/internal/storage"
)

// nearestNeighborsMaxCandidates caps how many units are loaded for in-Go
// similarity ranking. Owners are bounded by consolidation pruning, so the
// newest N by creation time is a safe candidate window.
const nearestNeighborsMaxCandidates = 10_000

// NearestNeighbors ranks the owner's units by cosine similarity to the
// query embedding. Units carrying the zero-vector sentinel are excluded.
// A zero query vector matches nothing.
func (s *Store) NearestNeighbors(ctx context.Context, ownerID string, query []float64, limit int) ([]storage.ScoredUnit, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidInput)
	}
	if isZeroVector(query) {
		return nil, nil
	}

	sqlQuery := "SELECT " + unitColumns + `
		FROM memory_units
		WHERE owner_id = ? AND embedding_valid = 1
		ORDER BY created_at DESC
		LIMIT ?`

	units, err := s.queryUnits(ctx, sqlQuery, ownerID, nearestNeighborsMaxCandidates)
	if err != nil {
		return nil, err
	}

	scored := make([]storage.ScoredUnit, 0, len(units))
	for _, unit := range units {
		if len(unit.Embedding) != len(query) {
			continue
		}
		scored = append(scored, storage.ScoredUnit{
			Unit:       unit,
			Similarity: cosineSimilarity(query, unit.Embedding),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}

	return scored, nil
}

// cosineSimilarity computes the cosine similarity between two equal-length
// vectors. Returns 0 when either vector has zero magnitude.
func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// isZeroVector reports whether the embedding is empty or all zeros, the
// sentinel written when the embedding call failed at store time.
func isZeroVector(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// serializeEmbedding converts a float64 slice to little-endian bytes.
func serializeEmbedding(embedding []float64) []byte {
	if len(embedding) == 0 {
		return nil
	}

	buf := make([]byte, len(embedding)*8)
	for i, v := range embedding {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// deserializeEmbedding converts little-endian bytes back to a float64
// slice. A short or mismatched buffer yields nil rather than garbage.
func deserializeEmbedding(buf []byte, dimension int) []float64 {
	if dimension <= 0 || len(buf) != dimension*8 {
		return nil
	}

	embedding := make([]float64, dimension)
	for i := range embedding {
		embedding[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return embedding
}
