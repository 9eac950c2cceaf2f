package quality

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/scrypster/mnemo/internal/llm"
	"github.com/scrypster/mnemo/internal/storage"
)

// DefaultHumanWeight is how much more a human rating counts than the
// automated one when fusing the final score.
const DefaultHumanWeight = 1.5

const evaluationPrompt = `Rate the quality of this assistant response on a scale of 1 to 10.
Consider accuracy, helpfulness, and clarity. Reply with only the number.

Response:
%s`

// Config tunes the scoring pipeline.
type Config struct {
	// BatchSize bounds how many unscored responses one pass evaluates.
	BatchSize int

	// EvaluatorRate is the max evaluator calls per second.
	EvaluatorRate float64

	// CacheSize is the in-process LRU in front of the persistent score
	// cache.
	CacheSize int

	// HumanWeight is the human feedback multiplier in score fusion.
	HumanWeight float64
}

// DefaultConfig returns the production pipeline tuning.
func DefaultConfig() Config {
	return Config{
		BatchSize:     20,
		EvaluatorRate: 2,
		CacheSize:     1024,
		HumanWeight:   DefaultHumanWeight,
	}
}

// Stats counts what one scoring pass did.
type Stats struct {
	// Processed is how many unscored responses the pass looked at.
	Processed int

	// Cached is how many scores came from the LRU or persistent cache.
	Cached int

	// Evaluated is how many responses needed a live evaluator call.
	Evaluated int

	// Failed is how many responses could not be scored this pass.
	Failed int
}

// Pipeline scores assistant responses and fuses automated and human scores.
type Pipeline struct {
	store     storage.Store
	evaluator llm.TextGenerator
	cache     *lru.Cache[string, float64]
	limiter   *rate.Limiter
	cfg       Config
}

func NewPipeline(store storage.Store, evaluator llm.TextGenerator, cfg Config) (*Pipeline, error) {
	if cfg.BatchSize <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.HumanWeight < 0 {
		return nil, fmt.Errorf("quality: human weight must be non-negative, got %f", cfg.HumanWeight)
	}
	cache, err := lru.New[string, float64](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("quality: create cache: %w", err)
	}
	return &Pipeline{
		store:     store,
		evaluator: evaluator,
		cache:     cache,
		limiter:   rate.NewLimiter(rate.Limit(cfg.EvaluatorRate), 1),
		cfg:       cfg,
	}, nil
}

// ScorePending evaluates up to one batch of the owner's unscored assistant
// responses, oldest first. Identical content is scored once: the content
// hash is checked against the in-process LRU, then the persistent cache,
// before any evaluator call. A response that cannot be scored is skipped
// and retried on a later pass.
func (p *Pipeline) ScorePending(ctx context.Context, ownerID string) (*Stats, error) {
	units, err := p.store.ListUnscoredResponses(ctx, ownerID, p.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("quality: list unscored: %w", err)
	}

	stats := &Stats{}
	now := time.Now().UTC()
	for _, unit := range units {
		stats.Processed++

		score, cached, err := p.scoreContent(ctx, unit.Content)
		if err != nil {
			stats.Failed++
			log.Printf("quality: score %s: %v", unit.ID, err)
			continue
		}
		if cached {
			stats.Cached++
		} else {
			stats.Evaluated++
		}

		if err := p.store.SetRTScore(ctx, ownerID, unit.ID, score, now); err != nil {
			stats.Failed++
			log.Printf("quality: record score %s: %v", unit.ID, err)
			continue
		}
		if err := p.finalize(ctx, ownerID, unit.ID, now); err != nil {
			log.Printf("quality: finalize %s: %v", unit.ID, err)
		}
	}
	return stats, nil
}

// RecordFeedback stores a human rating for a response and refreshes its
// final score immediately.
func (p *Pipeline) RecordFeedback(ctx context.Context, ownerID, unitID string, score float64) error {
	now := time.Now().UTC()
	if err := p.store.SetFeedback(ctx, ownerID, unitID, score, now); err != nil {
		return fmt.Errorf("quality: record feedback: %w", err)
	}
	if err := p.finalize(ctx, ownerID, unitID, now); err != nil {
		return fmt.Errorf("quality: refresh final score: %w", err)
	}
	return nil
}

// FuseScores combines the automated and human scores. With both present the
// human score is weighted heavier; with only the automated score it passes
// through; with neither there is no final score.
func (p *Pipeline) FuseScores(rt, ht *float64) *float64 {
	switch {
	case rt != nil && ht != nil:
		fused := (*rt + p.cfg.HumanWeight**ht) / (1 + p.cfg.HumanWeight)
		return &fused
	case rt != nil:
		v := *rt
		return &v
	default:
		return nil
	}
}

func (p *Pipeline) finalize(ctx context.Context, ownerID, unitID string, now time.Time) error {
	q, err := p.store.GetQuality(ctx, ownerID, unitID)
	if err != nil {
		return err
	}
	final := p.FuseScores(q.RTScore, q.HTScore)
	if final == nil {
		return nil
	}
	return p.store.SetFinalScore(ctx, ownerID, unitID, *final, now)
}

// scoreContent resolves a score for the content, cheapest source first.
func (p *Pipeline) scoreContent(ctx context.Context, content string) (score float64, cached bool, err error) {
	hash := contentHash(content)

	if score, ok := p.cache.Get(hash); ok {
		return score, true, nil
	}

	score, err = p.store.CachedScore(ctx, hash)
	if err == nil {
		p.cache.Add(hash, score)
		return score, true, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, false, err
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return 0, false, err
	}
	response, err := p.evaluator.Complete(ctx, fmt.Sprintf(evaluationPrompt, content))
	if err != nil {
		return 0, false, err
	}
	score, err = ParseScore(response)
	if err != nil {
		return 0, false, err
	}

	p.cache.Add(hash, score)
	if err := p.store.PutCachedScore(ctx, hash, score, time.Now().UTC()); err != nil {
		log.Printf("quality: persist cached score: %v", err)
	}
	return score, false, nil
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
