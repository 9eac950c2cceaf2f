package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/mnemo/internal/llm"
	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/types"
)

// ErrLowImportance is returned by Store when user content falls below the
// importance threshold and is deliberately not persisted.
var ErrLowImportance = errors.New("memory: content below importance threshold")

const (
	// initialConfidence is assigned to every new unit; consolidation moves
	// it from there based on usage.
	initialConfidence = 0.5

	// maxTopics caps topic extraction per unit.
	maxTopics = 5

	// qualityBoostBase and qualityBoostWeight blend the final quality score
	// into retrieval ranking for scored responses:
	// boosted = base*composite + weight*(final/10).
	qualityBoostBase   = 0.8
	qualityBoostWeight = 0.2
)

// Options tunes retrieval behavior.
type Options struct {
	// CandidatePool is how many vector-search candidates are re-ranked by
	// the composite scorer.
	CandidatePool int

	// TopK is the result count used when the caller passes limit <= 0.
	TopK int
}

// DefaultOptions returns the standard pool and result sizes.
func DefaultOptions() Options {
	return Options{CandidatePool: 100, TopK: 10}
}

// RetrievedUnit is one retrieval result with its scoring breakdown.
type RetrievedUnit struct {
	Unit      *types.MemoryUnit
	Score     float64
	Breakdown ScoreBreakdown
}

// Engine is the front door of the memory layer: it embeds and stores
// content, and retrieves units ranked by composite relevance.
type Engine struct {
	store      storage.Store
	embedder   llm.EmbeddingGenerator
	scorer     *RelevanceScorer
	classifier Classifier
	opts       Options
}

// NewEngine wires the engine from its collaborators. A nil classifier gets
// the rule-based default; zero options get DefaultOptions.
func NewEngine(store storage.Store, embedder llm.EmbeddingGenerator, scorer *RelevanceScorer, classifier Classifier, opts Options) *Engine {
	if classifier == nil {
		classifier = NewRuleBasedClassifier()
	}
	if opts.CandidatePool <= 0 {
		opts.CandidatePool = DefaultOptions().CandidatePool
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}

	return &Engine{
		store:      store,
		embedder:   embedder,
		scorer:     scorer,
		classifier: classifier,
		opts:       opts,
	}
}

// Scorer exposes the relevance scorer for runtime weight tuning.
func (e *Engine) Scorer() *RelevanceScorer {
	return e.scorer
}

// Classifier exposes the content classifier.
func (e *Engine) Classifier() Classifier {
	return e.classifier
}

// Store persists content for an owner and returns the new unit's ID.
//
// User content below the importance threshold is rejected with
// ErrLowImportance; assistant responses and document chunks are always
// stored (responses must exist for the quality pipeline to score them).
// When the embedding call fails the unit is stored anyway with the invalid
// embedding sentinel so the content is not lost.
func (e *Engine) Store(ctx context.Context, ownerID, content string, role types.Role) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}
	if content == "" {
		return "", fmt.Errorf("%w: content is required", storage.ErrInvalidInput)
	}

	if role == types.RoleUser {
		if importance := e.classifier.ScoreImportance(content); importance < importanceThreshold {
			return "", ErrLowImportance
		}
	}

	var embedding []float64
	if vec, err := e.embedder.Embed(ctx, content); err != nil {
		log.Printf("engine: embedding failed, storing unit without vector: %v", err)
	} else {
		embedding = toFloat64(vec)
	}

	unit := &types.MemoryUnit{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		Content:    content,
		Role:       role,
		Embedding:  embedding,
		Category:   e.classifier.Categorize(content),
		Topics:     e.classifier.ExtractTopics(content, maxTopics),
		Importance: types.ImportanceNormal,
		Confidence: initialConfidence,
		CreatedAt:  time.Now().UTC(),
	}

	if err := e.store.Store(ctx, unit); err != nil {
		return "", fmt.Errorf("engine: failed to store unit: %w", err)
	}

	return unit.ID, nil
}

// Retrieve returns the owner's most relevant units for the query, ranked by
// the composite score. Every returned unit's access counter is incremented
// as a side effect.
//
// A failed or degenerate query embedding yields an empty result, never an
// error: retrieval is best-effort by design.
func (e *Engine) Retrieve(ctx context.Context, ownerID, query string, limit int) ([]RetrievedUnit, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = e.opts.TopK
	}

	// Questions about the world carry nothing personal to recall; skip the
	// embedding call and the search entirely.
	if e.classifier.ClassifyIntent(query) == IntentGeneralKnowledge {
		return nil, nil
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("engine: query embedding failed, returning no results: %v", err)
		return nil, nil
	}
	queryEmbedding := toFloat64(vec)

	candidates, err := e.store.NearestNeighbors(ctx, ownerID, queryEmbedding, e.opts.CandidatePool)
	if err != nil {
		log.Printf("engine: vector search failed, returning no results: %v", err)
		return nil, nil
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// One pass over the owner's edges to get per-unit average strength,
	// rather than a graph query per candidate.
	avgStrength, err := e.associationAverages(ctx, ownerID)
	if err != nil {
		log.Printf("engine: association lookup failed, scoring without graph component: %v", err)
		avgStrength = nil
	}

	now := time.Now().UTC()
	results := make([]RetrievedUnit, 0, len(candidates))
	for _, cand := range candidates {
		breakdown := e.scorer.Score(cand.Unit, cand.Similarity, avgStrength[cand.Unit.ID], now)
		score := breakdown.Composite

		// Responses with a final quality score get ranked by a blend of
		// relevance and proven quality.
		if q := cand.Unit.Quality; q != nil && q.FinalScore != nil {
			score = qualityBoostBase*breakdown.Composite + qualityBoostWeight*(*q.FinalScore/10.0)
		}

		results = append(results, RetrievedUnit{
			Unit:      cand.Unit,
			Score:     score,
			Breakdown: breakdown,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}

	for _, r := range results {
		if err := e.store.IncrementAccess(ctx, ownerID, r.Unit.ID, now); err != nil {
			log.Printf("engine: failed to record access for %s: %v", r.Unit.ID, err)
		} else {
			r.Unit.Touch(now)
		}
	}

	return results, nil
}

// Forget removes a unit and cleans up its incident edges.
func (e *Engine) Forget(ctx context.Context, ownerID, id string) error {
	if err := e.store.Delete(ctx, ownerID, id); err != nil {
		return fmt.Errorf("engine: failed to delete unit: %w", err)
	}

	if _, err := e.store.DeleteOrphans(ctx, ownerID); err != nil {
		return fmt.Errorf("engine: failed to clean up edges: %w", err)
	}

	return nil
}

// RecordFeedback attaches human feedback to a stored response. The final
// score is left to the quality pipeline's next fusion pass.
func (e *Engine) RecordFeedback(ctx context.Context, ownerID, id string, score float64) error {
	if err := e.store.SetFeedback(ctx, ownerID, id, score, time.Now().UTC()); err != nil {
		return fmt.Errorf("engine: failed to record feedback: %w", err)
	}
	return nil
}

// associationAverages returns the mean incident edge strength per unit.
func (e *Engine) associationAverages(ctx context.Context, ownerID string) (map[string]float64, error) {
	edges, err := e.store.EdgesForOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, edge := range edges {
		sums[edge.UnitA] += edge.Strength
		counts[edge.UnitA]++
		sums[edge.UnitB] += edge.Strength
		counts[edge.UnitB]++
	}

	avgs := make(map[string]float64, len(sums))
	for id, sum := range sums {
		avgs[id] = sum / float64(counts[id])
	}
	return avgs, nil
}

func toFloat64(v []float32) []float64 {
	if len(v) == 0 {
		return nil
	}
	f64 := make([]float64, len(v))
	for i, x := range v {
		f64[i] = float64(x)
	}
	return f64
}
