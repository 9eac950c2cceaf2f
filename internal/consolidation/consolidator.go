// Package consolidation runs the periodic memory maintenance pass: edge
// decay, strengthening of frequently accessed units, automatic and topic
// linking, co-access strengthening, graph optimization, confidence
// recalculation, and pruning of stale low-value units.
package consolidation

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/scrypster/mnemo/internal/association"
	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/types"
)

// Config tunes the consolidation pass.
type Config struct {
	// Interval is how often the scheduler runs a full pass.
	Interval time.Duration

	// BatchSize bounds how many owners one batch processes.
	BatchSize int

	// StrengthenThreshold is the access count at which a unit is considered
	// frequently used.
	StrengthenThreshold int

	// PruneAge is how old an untouched unit must be before pruning.
	PruneAge time.Duration

	// PruneMaxAccess and PruneMaxConfidence bound what pruning may remove:
	// only units accessed fewer than PruneMaxAccess times with confidence
	// under PruneMaxConfidence.
	PruneMaxAccess     int
	PruneMaxConfidence float64
}

// DefaultConfig returns the production consolidation tuning.
func DefaultConfig() Config {
	return Config{
		Interval:            time.Hour,
		BatchSize:           100,
		StrengthenThreshold: 5,
		PruneAge:            90 * 24 * time.Hour,
		PruneMaxAccess:      2,
		PruneMaxConfidence:  0.3,
	}
}

// Report summarizes one consolidation pass for one owner. Step failures are
// collected in Errors; a failed step never aborts the pass.
type Report struct {
	OwnerID   string
	StartedAt time.Time
	Duration  time.Duration

	WeakEdgesRemoved   int
	UnitsStrengthened  int
	ImportancePromoted int
	AutoLinked         int
	TopicLinked        int
	CoAccessLinked     int
	EdgesOptimized     int
	ConfidenceUpdated  int
	UnitsPruned        int
	OrphanEdgesRemoved int

	Stats *types.OwnerStats

	Errors []string
}

// Consolidator runs maintenance passes over the store.
type Consolidator struct {
	store storage.Store
	graph *association.Engine
	cfg   Config
}

func New(store storage.Store, graph *association.Engine, cfg Config) *Consolidator {
	if cfg.BatchSize <= 0 {
		cfg = DefaultConfig()
	}
	return &Consolidator{store: store, graph: graph, cfg: cfg}
}

// Run executes a full consolidation pass for one owner. Each step is
// independent: a failure is recorded in the report and the pass continues.
func (c *Consolidator) Run(ctx context.Context, ownerID string) *Report {
	started := time.Now().UTC()
	report := &Report{OwnerID: ownerID, StartedAt: started}

	if removed, err := c.graph.DecayAll(ctx, ownerID); err != nil {
		report.addError("decay", err)
	} else {
		report.WeakEdgesRemoved = removed
	}

	if err := c.strengthenFrequent(ctx, ownerID, report); err != nil {
		report.addError("strengthen", err)
	}

	if err := c.prune(ctx, ownerID, started, report); err != nil {
		report.addError("prune", err)
	}

	if linked, err := c.graph.AutoLink(ctx, ownerID); err != nil {
		report.addError("auto-link", err)
	} else {
		report.AutoLinked = linked
	}

	if linked, err := c.graph.LinkByTopics(ctx, ownerID); err != nil {
		report.addError("topic-link", err)
	} else {
		report.TopicLinked = linked
	}

	if touched, err := c.graph.StrengthenCoAccessed(ctx, ownerID, started); err != nil {
		report.addError("co-access", err)
	} else {
		report.CoAccessLinked = touched
	}

	if removed, err := c.graph.Optimize(ctx, ownerID); err != nil {
		report.addError("optimize", err)
	} else {
		report.EdgesOptimized = removed
	}

	if err := c.recalcConfidence(ctx, ownerID, report); err != nil {
		report.addError("confidence", err)
	}

	if stats, err := c.store.OwnerStats(ctx, ownerID); err != nil {
		report.addError("stats", err)
	} else {
		report.Stats = stats
	}

	report.Duration = time.Since(started)
	return report
}

// RunAll consolidates every owner, processing them in batches. A failing
// owner is logged and skipped; the remaining owners still run.
func (c *Consolidator) RunAll(ctx context.Context) ([]*Report, error) {
	owners, err := c.store.ListOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("consolidation: list owners: %w", err)
	}

	reports := make([]*Report, 0, len(owners))
	for start := 0; start < len(owners); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(owners) {
			end = len(owners)
		}
		for _, owner := range owners[start:end] {
			if err := ctx.Err(); err != nil {
				return reports, err
			}
			report := c.Run(ctx, owner)
			if len(report.Errors) > 0 {
				log.Printf("consolidation: owner %s finished with %d step errors", owner, len(report.Errors))
			}
			reports = append(reports, report)
		}
	}
	return reports, nil
}

// EmergencyCleanup removes units carrying the invalid-embedding sentinel and
// any edges left dangling, across all owners.
func (c *Consolidator) EmergencyCleanup(ctx context.Context) (units, edges int, err error) {
	owners, err := c.store.ListOwners(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("consolidation: list owners: %w", err)
	}
	for _, owner := range owners {
		purged, err := c.store.PurgeInvalidEmbeddings(ctx, owner)
		if err != nil {
			return units, edges, fmt.Errorf("consolidation: purge %s: %w", owner, err)
		}
		units += purged
		orphans, err := c.store.DeleteOrphans(ctx, owner)
		if err != nil {
			return units, edges, fmt.Errorf("consolidation: orphans %s: %w", owner, err)
		}
		edges += orphans
	}
	return units, edges, nil
}

// strengthenFrequent boosts confidence and promotes importance for units
// accessed at least StrengthenThreshold times. The boost factor saturates
// with access count so heavy use cannot push confidence unboundedly.
func (c *Consolidator) strengthenFrequent(ctx context.Context, ownerID string, report *Report) error {
	units, err := c.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	for _, unit := range units {
		if unit.AccessCount < c.cfg.StrengthenThreshold {
			continue
		}
		n := float64(unit.AccessCount)
		boost := 1 + 0.1*(1-math.Exp(-0.1*n))
		confidence := unit.Confidence * boost
		if confidence > 1.0 {
			confidence = 1.0
		}
		if err := c.store.UpdateConfidence(ctx, ownerID, unit.ID, confidence); err != nil {
			log.Printf("consolidation: update confidence %s: %v", unit.ID, err)
			continue
		}
		report.UnitsStrengthened++

		if promoted := promotedImportance(unit.Importance, unit.AccessCount); promoted != unit.Importance {
			if err := c.store.UpdateImportance(ctx, ownerID, unit.ID, promoted); err != nil {
				log.Printf("consolidation: update importance %s: %v", unit.ID, err)
				continue
			}
			report.ImportancePromoted++
		}
	}
	return nil
}

// recalcConfidence blends every unit's confidence toward an access-derived
// target: 70% current value, 30% target. At zero accesses the target is 0,
// so untouched units decay each pass until pruning can claim them.
func (c *Consolidator) recalcConfidence(ctx context.Context, ownerID string, report *Report) error {
	units, err := c.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	for _, unit := range units {
		target := 1 - 1/(1+0.1*float64(unit.AccessCount))
		blended := 0.7*unit.Confidence + 0.3*target
		if err := c.store.UpdateConfidence(ctx, ownerID, unit.ID, blended); err != nil {
			log.Printf("consolidation: blend confidence %s: %v", unit.ID, err)
			continue
		}
		report.ConfidenceUpdated++
	}
	return nil
}

func (c *Consolidator) prune(ctx context.Context, ownerID string, now time.Time, report *Report) error {
	pruned, err := c.store.Prune(ctx, ownerID, storage.PruneCriteria{
		NotAccessedSince: now.Add(-c.cfg.PruneAge),
		MaxAccessCount:   c.cfg.PruneMaxAccess,
		MaxConfidence:    c.cfg.PruneMaxConfidence,
	})
	if err != nil {
		return err
	}
	report.UnitsPruned = len(pruned)

	orphans, err := c.store.DeleteOrphans(ctx, ownerID)
	if err != nil {
		return err
	}
	report.OrphanEdgesRemoved = orphans
	return nil
}

// promotedImportance returns the importance tier implied by access count,
// never demoting the current tier.
func promotedImportance(current types.Importance, accesses int) types.Importance {
	switch {
	case accesses > 10:
		return types.ImportanceHigh
	case accesses > 5 && current == types.ImportanceNormal:
		return types.ImportanceMedium
	default:
		return current
	}
}

func (r *Report) addError(step string, err error) {
	log.Printf("consolidation: owner %s: %s step failed: %v", r.OwnerID, step, err)
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", step, err))
}
