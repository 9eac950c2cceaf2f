package consolidation

import (
	"context"
	"testing"
	"time"

	"github.com/scrypster/mnemo/internal/association"
	"github.com/scrypster/mnemo/internal/storage/sqlite"
	"github.com/scrypster/mnemo/pkg/types"
)

func newTestConsolidator(t *testing.T) (*Consolidator, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	graph := association.NewEngine(store, association.DefaultConfig())
	return New(store, graph, DefaultConfig()), store
}

func putUnit(t *testing.T, store *sqlite.Store, unit *types.MemoryUnit) {
	t.Helper()
	if unit.CreatedAt.IsZero() {
		unit.CreatedAt = time.Now().UTC()
	}
	if err := store.Store(context.Background(), unit); err != nil {
		t.Fatalf("Store(%s) failed: %v", unit.ID, err)
	}
}

func TestRunEmptyOwnerReportsZeros(t *testing.T) {
	c, _ := newTestConsolidator(t)

	report := c.Run(context.Background(), "nobody")
	if len(report.Errors) != 0 {
		t.Fatalf("errors on empty owner: %v", report.Errors)
	}
	if report.UnitsPruned != 0 || report.UnitsStrengthened != 0 || report.AutoLinked != 0 {
		t.Errorf("non-zero counters on empty owner: %+v", report)
	}
	if report.Stats == nil || report.Stats.TotalUnits != 0 {
		t.Errorf("stats: got %+v, want zeroed stats", report.Stats)
	}
}

func TestStrengthenFrequentlyAccessed(t *testing.T) {
	c, store := newTestConsolidator(t)
	ctx := context.Background()

	putUnit(t, store, &types.MemoryUnit{
		ID: "hot", OwnerID: "alice", Content: "frequently used",
		Role: types.RoleUser, Category: types.CategoryGeneral,
		Importance: types.ImportanceNormal, Confidence: 0.5,
		AccessCount: 12,
	})
	putUnit(t, store, &types.MemoryUnit{
		ID: "cold", OwnerID: "alice", Content: "rarely used",
		Role: types.RoleUser, Category: types.CategoryGeneral,
		Importance: types.ImportanceNormal, Confidence: 0.5,
		AccessCount: 1,
	})

	report := c.Run(ctx, "alice")
	if len(report.Errors) != 0 {
		t.Fatalf("errors: %v", report.Errors)
	}
	if report.UnitsStrengthened != 1 {
		t.Errorf("UnitsStrengthened: got %d, want 1", report.UnitsStrengthened)
	}
	if report.ImportancePromoted != 1 {
		t.Errorf("ImportancePromoted: got %d, want 1", report.ImportancePromoted)
	}

	hot, err := store.Get(ctx, "alice", "hot")
	if err != nil {
		t.Fatalf("Get(hot) failed: %v", err)
	}
	if hot.Importance != types.ImportanceHigh {
		t.Errorf("hot importance: got %s, want high (12 accesses)", hot.Importance)
	}
	if hot.Confidence <= 0.5 {
		t.Errorf("hot confidence: got %f, want above 0.5", hot.Confidence)
	}

	cold, err := store.Get(ctx, "alice", "cold")
	if err != nil {
		t.Fatalf("Get(cold) failed: %v", err)
	}
	if cold.Importance != types.ImportanceNormal {
		t.Errorf("cold importance: got %s, want normal", cold.Importance)
	}
}

func TestPruneSkipsHighImportance(t *testing.T) {
	c, store := newTestConsolidator(t)
	ctx := context.Background()
	old := time.Now().UTC().Add(-120 * 24 * time.Hour)

	putUnit(t, store, &types.MemoryUnit{
		ID: "stale", OwnerID: "alice", Content: "old and unloved",
		Role: types.RoleUser, Category: types.CategoryGeneral,
		Importance: types.ImportanceNormal, Confidence: 0.1,
		AccessCount: 0, CreatedAt: old,
	})
	putUnit(t, store, &types.MemoryUnit{
		ID: "vital", OwnerID: "alice", Content: "old but important",
		Role: types.RoleUser, Category: types.CategoryPersonal,
		Importance: types.ImportanceHigh, Confidence: 0.1,
		AccessCount: 0, CreatedAt: old,
	})

	report := c.Run(ctx, "alice")
	if report.UnitsPruned != 1 {
		t.Errorf("UnitsPruned: got %d, want 1", report.UnitsPruned)
	}
	if _, err := store.Get(ctx, "alice", "vital"); err != nil {
		t.Errorf("high-importance unit pruned: %v", err)
	}
}

func TestPruneKeepsRecentlyAccessedUnits(t *testing.T) {
	c, store := newTestConsolidator(t)
	ctx := context.Background()
	old := time.Now().UTC().Add(-120 * 24 * time.Hour)

	putUnit(t, store, &types.MemoryUnit{
		ID: "touched", OwnerID: "alice", Content: "old but still in use",
		Role: types.RoleUser, Category: types.CategoryGeneral,
		Importance: types.ImportanceNormal, Confidence: 0.2,
		AccessCount: 0, CreatedAt: old,
	})
	if err := store.IncrementAccess(ctx, "alice", "touched", time.Now().UTC()); err != nil {
		t.Fatalf("IncrementAccess() failed: %v", err)
	}

	report := c.Run(ctx, "alice")
	if len(report.Errors) != 0 {
		t.Fatalf("errors: %v", report.Errors)
	}
	if report.UnitsPruned != 0 {
		t.Errorf("UnitsPruned: got %d, want 0", report.UnitsPruned)
	}
	if _, err := store.Get(ctx, "alice", "touched"); err != nil {
		t.Errorf("recently accessed unit pruned: %v", err)
	}
}

func TestConfidenceDecaysForUntouchedUnits(t *testing.T) {
	c, store := newTestConsolidator(t)
	ctx := context.Background()

	putUnit(t, store, &types.MemoryUnit{
		ID: "idle", OwnerID: "alice", Content: "never looked at",
		Role: types.RoleUser, Category: types.CategoryGeneral,
		Importance: types.ImportanceNormal, Confidence: 0.5,
		AccessCount: 0,
	})

	report := c.Run(ctx, "alice")
	if len(report.Errors) != 0 {
		t.Fatalf("errors: %v", report.Errors)
	}

	// Zero accesses means a zero target, so each pass shaves the
	// confidence toward the prune ceiling: 0.7*0.5 + 0.3*0.
	unit, err := store.Get(ctx, "alice", "idle")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	want := 0.35
	if diff := unit.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("confidence: got %f, want %f", unit.Confidence, want)
	}
}

func TestConfidenceBlendMovesTowardAccessTarget(t *testing.T) {
	c, store := newTestConsolidator(t)
	ctx := context.Background()

	putUnit(t, store, &types.MemoryUnit{
		ID: "u", OwnerID: "alice", Content: "content",
		Role: types.RoleUser, Category: types.CategoryGeneral,
		Importance: types.ImportanceNormal, Confidence: 0.9,
		AccessCount: 2,
	})

	report := c.Run(ctx, "alice")
	if report.ConfidenceUpdated != 1 {
		t.Fatalf("ConfidenceUpdated: got %d, want 1", report.ConfidenceUpdated)
	}

	// 2 accesses stays under the strengthen threshold, so only the blend
	// applies: 0.7*0.9 + 0.3*(1 - 1/1.2).
	unit, err := store.Get(ctx, "alice", "u")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	want := 0.7*0.9 + 0.3*(1-1/1.2)
	if diff := unit.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("confidence: got %f, want %f", unit.Confidence, want)
	}
}

func TestRunLinksTopicsAndCoAccess(t *testing.T) {
	c, store := newTestConsolidator(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Orthogonal embeddings keep auto-link out of the picture; the units
	// still share topics and a recent access window.
	putUnit(t, store, &types.MemoryUnit{
		ID: "a", OwnerID: "alice", Content: "green tea every morning",
		Role: types.RoleUser, Category: types.CategoryPreference,
		Importance: types.ImportanceNormal, Confidence: 0.5,
		Topics: []string{"tea", "morning"}, Embedding: []float64{1, 0},
	})
	putUnit(t, store, &types.MemoryUnit{
		ID: "b", OwnerID: "alice", Content: "tea before a morning run",
		Role: types.RoleUser, Category: types.CategoryPreference,
		Importance: types.ImportanceNormal, Confidence: 0.5,
		Topics: []string{"tea", "morning", "running"}, Embedding: []float64{0, 1},
	})
	for _, id := range []string{"a", "b"} {
		if err := store.IncrementAccess(ctx, "alice", id, now); err != nil {
			t.Fatalf("IncrementAccess(%s) failed: %v", id, err)
		}
	}

	report := c.Run(ctx, "alice")
	if len(report.Errors) != 0 {
		t.Fatalf("errors: %v", report.Errors)
	}
	if report.TopicLinked != 1 {
		t.Errorf("TopicLinked: got %d, want 1", report.TopicLinked)
	}
	if report.CoAccessLinked != 1 {
		t.Errorf("CoAccessLinked: got %d, want 1", report.CoAccessLinked)
	}

	edges, err := store.EdgesForUnit(ctx, "alice", "a")
	if err != nil {
		t.Fatalf("EdgesForUnit() failed: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("edges: got %d, want 1", len(edges))
	}
	// Topic link at two shared topics, then the co-access bump on top.
	want := (0.5 + 0.1*2) + 0.1
	if diff := edges[0].Strength - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("edge strength: got %f, want %f", edges[0].Strength, want)
	}
}

func TestRunOptimizesRedundantEdges(t *testing.T) {
	c, store := newTestConsolidator(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"a", "b", "c"} {
		putUnit(t, store, &types.MemoryUnit{
			ID: id, OwnerID: "alice", Content: "unit " + id,
			Role: types.RoleUser, Category: types.CategoryGeneral,
			Importance: types.ImportanceNormal, Confidence: 0.5,
		})
	}
	edges := []*types.AssociationEdge{
		{OwnerID: "alice", UnitA: "a", UnitB: "b", Strength: 0.9, Type: types.AssociationContextual, CreatedAt: now},
		{OwnerID: "alice", UnitA: "b", UnitB: "c", Strength: 0.9, Type: types.AssociationContextual, CreatedAt: now},
		{OwnerID: "alice", UnitA: "a", UnitB: "c", Strength: 0.4, Type: types.AssociationContextual, CreatedAt: now},
	}
	for _, e := range edges {
		if err := store.Upsert(ctx, e); err != nil {
			t.Fatalf("Upsert() failed: %v", err)
		}
	}

	report := c.Run(ctx, "alice")
	if report.EdgesOptimized != 1 {
		t.Errorf("EdgesOptimized: got %d, want 1 (a-c has a stronger indirect route)", report.EdgesOptimized)
	}
}

func TestRunAllIsolatesOwners(t *testing.T) {
	c, store := newTestConsolidator(t)
	ctx := context.Background()

	putUnit(t, store, &types.MemoryUnit{
		ID: "a1", OwnerID: "alice", Content: "alice unit",
		Role: types.RoleUser, Category: types.CategoryGeneral,
		Importance: types.ImportanceNormal, Confidence: 0.5,
	})
	putUnit(t, store, &types.MemoryUnit{
		ID: "b1", OwnerID: "bob", Content: "bob unit",
		Role: types.RoleUser, Category: types.CategoryGeneral,
		Importance: types.ImportanceNormal, Confidence: 0.5,
	})

	reports, err := c.RunAll(ctx)
	if err != nil {
		t.Fatalf("RunAll() failed: %v", err)
	}
	if len(reports) != 2 {
		t.Errorf("reports: got %d, want 2", len(reports))
	}
	for _, r := range reports {
		if len(r.Errors) != 0 {
			t.Errorf("owner %s: unexpected errors %v", r.OwnerID, r.Errors)
		}
	}
}

func TestEmergencyCleanup(t *testing.T) {
	c, store := newTestConsolidator(t)
	ctx := context.Background()

	putUnit(t, store, &types.MemoryUnit{
		ID: "ok", OwnerID: "alice", Content: "embedded",
		Role: types.RoleUser, Category: types.CategoryGeneral,
		Importance: types.ImportanceNormal, Confidence: 0.5,
		Embedding: []float64{1, 0},
	})
	putUnit(t, store, &types.MemoryUnit{
		ID: "broken", OwnerID: "alice", Content: "embedding failed",
		Role: types.RoleUser, Category: types.CategoryGeneral,
		Importance: types.ImportanceNormal, Confidence: 0.5,
	})
	if err := store.Upsert(ctx, &types.AssociationEdge{
		OwnerID: "alice", UnitA: "broken", UnitB: "ok",
		Strength: 0.8, Type: types.AssociationAuto, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	units, edges, err := c.EmergencyCleanup(ctx)
	if err != nil {
		t.Fatalf("EmergencyCleanup() failed: %v", err)
	}
	if units != 1 {
		t.Errorf("purged units: got %d, want 1", units)
	}
	if edges != 1 {
		t.Errorf("orphan edges: got %d, want 1", edges)
	}
	if _, err := store.Get(ctx, "alice", "ok"); err != nil {
		t.Errorf("valid unit removed: %v", err)
	}
}

func TestSchedulerStop(t *testing.T) {
	c, _ := newTestConsolidator(t)

	s := NewScheduler(c, 50*time.Millisecond)
	s.Start(context.Background())
	time.Sleep(120 * time.Millisecond)
	s.Stop() // must return once the in-flight pass finishes
}
