package quality

import (
	"context"
	"testing"
	"time"

	"github.com/scrypster/mnemo/internal/storage/sqlite"
	"github.com/scrypster/mnemo/pkg/types"
)

// countingEvaluator returns a fixed rating and records how many live calls
// it served, so tests can prove the caches short-circuit evaluation.
type countingEvaluator struct {
	response string
	calls    int
}

func (e *countingEvaluator) Complete(_ context.Context, _ string) (string, error) {
	e.calls++
	return e.response, nil
}

func (e *countingEvaluator) GetModel() string { return "counting-stub" }

func newTestPipeline(t *testing.T, evaluator *countingEvaluator) (*Pipeline, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := DefaultConfig()
	cfg.EvaluatorRate = 1000 // keep tests fast
	p, err := NewPipeline(store, evaluator, cfg)
	if err != nil {
		t.Fatalf("NewPipeline() failed: %v", err)
	}
	return p, store
}

func putResponse(t *testing.T, store *sqlite.Store, owner, id, content string) {
	t.Helper()
	err := store.Store(context.Background(), &types.MemoryUnit{
		ID: id, OwnerID: owner, Content: content,
		Role: types.RoleAssistant, Category: types.CategoryGeneral,
		Importance: types.ImportanceNormal, Confidence: 0.5,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Store(%s) failed: %v", id, err)
	}
}

func TestScorePendingEvaluatesAndFinalizes(t *testing.T) {
	evaluator := &countingEvaluator{response: "**Score: 8**"}
	p, store := newTestPipeline(t, evaluator)
	ctx := context.Background()

	putResponse(t, store, "alice", "r1", "The capital of France is Paris.")

	stats, err := p.ScorePending(ctx, "alice")
	if err != nil {
		t.Fatalf("ScorePending() failed: %v", err)
	}
	if stats.Processed != 1 || stats.Evaluated != 1 || stats.Failed != 0 {
		t.Errorf("stats: got %+v, want 1 processed, 1 evaluated", stats)
	}

	q, err := store.GetQuality(ctx, "alice", "r1")
	if err != nil {
		t.Fatalf("GetQuality() failed: %v", err)
	}
	if q.RTScore == nil || *q.RTScore != 8 {
		t.Fatalf("RTScore: got %v, want 8", q.RTScore)
	}
	// No human feedback yet: the automated score passes through.
	if q.FinalScore == nil || *q.FinalScore != 8 {
		t.Errorf("FinalScore: got %v, want 8", q.FinalScore)
	}

	// The unit left the unscored queue.
	pending, err := store.ListUnscoredResponses(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("ListUnscoredResponses() failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("still pending: %d units", len(pending))
	}
}

func TestScorePendingCachesIdenticalContent(t *testing.T) {
	evaluator := &countingEvaluator{response: "7"}
	p, store := newTestPipeline(t, evaluator)
	ctx := context.Background()

	const content = "Water boils at 100 degrees Celsius at sea level."
	putResponse(t, store, "alice", "r1", content)
	putResponse(t, store, "alice", "r2", content)

	stats, err := p.ScorePending(ctx, "alice")
	if err != nil {
		t.Fatalf("ScorePending() failed: %v", err)
	}
	if evaluator.calls != 1 {
		t.Errorf("evaluator calls: got %d, want 1 (second unit served from cache)", evaluator.calls)
	}
	if stats.Cached != 1 || stats.Evaluated != 1 {
		t.Errorf("stats: got %+v, want 1 cached and 1 evaluated", stats)
	}
}

func TestScorePendingPersistentCacheSurvivesLRU(t *testing.T) {
	evaluator := &countingEvaluator{response: "6"}
	p, store := newTestPipeline(t, evaluator)
	ctx := context.Background()

	const content = "Same answer twice."
	putResponse(t, store, "alice", "r1", content)

	if _, err := p.ScorePending(ctx, "alice"); err != nil {
		t.Fatalf("ScorePending() failed: %v", err)
	}

	// A fresh pipeline has a cold LRU but shares the persistent cache.
	cfg := DefaultConfig()
	cfg.EvaluatorRate = 1000
	fresh, err := NewPipeline(store, evaluator, cfg)
	if err != nil {
		t.Fatalf("NewPipeline() failed: %v", err)
	}
	putResponse(t, store, "alice", "r2", content)

	stats, err := fresh.ScorePending(ctx, "alice")
	if err != nil {
		t.Fatalf("ScorePending() failed: %v", err)
	}
	if evaluator.calls != 1 {
		t.Errorf("evaluator calls: got %d, want 1 (persistent cache hit)", evaluator.calls)
	}
	if stats.Cached != 1 {
		t.Errorf("stats: got %+v, want 1 cached", stats)
	}
}

func TestScorePendingSkipsUnparseable(t *testing.T) {
	evaluator := &countingEvaluator{response: "notasnumber"}
	p, store := newTestPipeline(t, evaluator)
	ctx := context.Background()

	putResponse(t, store, "alice", "r1", "Some response.")

	stats, err := p.ScorePending(ctx, "alice")
	if err != nil {
		t.Fatalf("ScorePending() failed: %v", err)
	}
	if stats.Failed != 1 {
		t.Errorf("Failed: got %d, want 1", stats.Failed)
	}

	// Nothing was stored, so the unit is retried next pass.
	pending, err := store.ListUnscoredResponses(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("ListUnscoredResponses() failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("pending: got %d, want 1", len(pending))
	}
}

func TestRecordFeedbackRefreshesFinalScore(t *testing.T) {
	evaluator := &countingEvaluator{response: "8"}
	p, store := newTestPipeline(t, evaluator)
	ctx := context.Background()

	putResponse(t, store, "alice", "r1", "A decent answer.")
	if _, err := p.ScorePending(ctx, "alice"); err != nil {
		t.Fatalf("ScorePending() failed: %v", err)
	}

	if err := p.RecordFeedback(ctx, "alice", "r1", 4); err != nil {
		t.Fatalf("RecordFeedback() failed: %v", err)
	}

	q, err := store.GetQuality(ctx, "alice", "r1")
	if err != nil {
		t.Fatalf("GetQuality() failed: %v", err)
	}
	// (8 + 1.5*4) / 2.5 = 5.6: the human rating drags the final down.
	want := (8 + 1.5*4) / 2.5
	if q.FinalScore == nil || *q.FinalScore != want {
		t.Errorf("FinalScore: got %v, want %f", q.FinalScore, want)
	}
}

func TestFuseScores(t *testing.T) {
	p, _ := newTestPipeline(t, &countingEvaluator{response: "5"})
	rt, ht := 8.0, 4.0

	tests := []struct {
		name string
		rt   *float64
		ht   *float64
		want *float64
	}{
		{"both present", &rt, &ht, ptr((8 + 1.5*4) / 2.5)},
		{"automated only", &rt, nil, &rt},
		{"neither", nil, nil, nil},
		{"human only", nil, &ht, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.FuseScores(tt.rt, tt.ht)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("got %f, want nil", *got)
			case tt.want != nil && got == nil:
				t.Errorf("got nil, want %f", *tt.want)
			case tt.want != nil && *got != *tt.want:
				t.Errorf("got %f, want %f", *got, *tt.want)
			}
		})
	}
}

func TestServiceStop(t *testing.T) {
	evaluator := &countingEvaluator{response: "7"}
	p, store := newTestPipeline(t, evaluator)

	cfg := ServiceConfig{
		Interval:     20 * time.Millisecond,
		StartupDelay: time.Millisecond,
		ErrorBackoff: time.Millisecond,
	}
	svc := NewService(p, store, cfg)
	svc.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	svc.Stop()
}

func ptr(v float64) *float64 { return &v }
