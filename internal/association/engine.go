// Package association builds and maintains the undirected association graph
// between memory units: automatic linking by embedding similarity, topic and
// co-access links, decay, multi-hop traversal, clustering, and redundant-edge
// optimization.
package association

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/types"
)

// Config tunes the graph maintenance operations.
type Config struct {
	// DecayRate is the per-cycle multiplicative decay applied to every edge.
	DecayRate float64

	// WeakFloor is the strength below which decayed edges are removed.
	WeakFloor float64

	// AutoLinkThreshold is the minimum cosine similarity for automatic links.
	AutoLinkThreshold float64

	// CoAccessWindow is how close together two accesses must be to count as
	// co-access.
	CoAccessWindow time.Duration

	CoAccessInitial   float64
	CoAccessIncrement float64

	// MaxHops bounds path traversal depth.
	MaxHops int

	// MinPathStrength is the minimum average hop strength for a valid path.
	MinPathStrength float64

	// MinHopStrength is the minimum strength any single hop may have.
	MinHopStrength float64

	ClusterThreshold float64
	ClusterMinSize   int

	// OptimizeThreshold is the direct-edge strength below which an edge is a
	// removal candidate when an indirect path outperforms it.
	OptimizeThreshold float64
}

// DefaultConfig returns the tuning used in production.
func DefaultConfig() Config {
	return Config{
		DecayRate:         0.005,
		WeakFloor:         0.3,
		AutoLinkThreshold: 0.7,
		CoAccessWindow:    5 * time.Minute,
		CoAccessInitial:   0.6,
		CoAccessIncrement: 0.1,
		MaxHops:           3,
		MinPathStrength:   0.4,
		MinHopStrength:    0.3,
		ClusterThreshold:  0.5,
		ClusterMinSize:    3,
		OptimizeThreshold: 0.6,
	}
}

// Path is a multi-hop route between two units. Strength is the average of
// the hop strengths along the route.
type Path struct {
	// Units lists the unit IDs along the path, start first.
	Units []string

	Strength float64
	Hops     int
}

// Cluster is a connected group of strongly associated units.
type Cluster struct {
	Units       []string
	AvgStrength float64
}

// NetworkStats summarizes an owner's association graph.
type NetworkStats struct {
	TotalEdges  int
	StrongEdges int
	EdgesByType map[types.AssociationType]int
	AvgStrength float64
	TotalUnits  int

	// Connectivity is edges divided by the maximum possible pair count.
	Connectivity float64
}

const maxPathResults = 10

const maxClusterResults = 10

// Engine runs graph maintenance against a storage backend.
type Engine struct {
	store storage.Store
	cfg   Config
}

func NewEngine(store storage.Store, cfg Config) *Engine {
	if cfg.MaxHops <= 0 {
		cfg = DefaultConfig()
	}
	return &Engine{store: store, cfg: cfg}
}

// DecayAll applies one decay cycle to the owner's edges and removes those
// that fell below the weak floor. It returns the number removed.
func (e *Engine) DecayAll(ctx context.Context, ownerID string) (int, error) {
	if err := e.store.Decay(ctx, ownerID, e.cfg.DecayRate); err != nil {
		return 0, fmt.Errorf("association: decay: %w", err)
	}
	removed, err := e.store.DeleteBelow(ctx, ownerID, e.cfg.WeakFloor)
	if err != nil {
		return 0, fmt.Errorf("association: delete weak edges: %w", err)
	}
	return removed, nil
}

// AutoLink creates edges between every pair of the owner's units whose
// embeddings are at least AutoLinkThreshold similar. The edge strength is
// the similarity itself. Existing edges keep the stronger value. Returns
// the number of pairs linked.
func (e *Engine) AutoLink(ctx context.Context, ownerID string) (int, error) {
	units, err := e.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("association: list units: %w", err)
	}

	// Units with the zero-vector sentinel cannot be compared.
	var embeddable []*types.MemoryUnit
	for _, u := range units {
		if !isZeroVector(u.Embedding) {
			embeddable = append(embeddable, u)
		}
	}

	linked := 0
	now := time.Now().UTC()
	for i := 0; i < len(embeddable); i++ {
		for j := i + 1; j < len(embeddable); j++ {
			sim := cosineSimilarity(embeddable[i].Embedding, embeddable[j].Embedding)
			if sim < e.cfg.AutoLinkThreshold {
				continue
			}
			a, b := types.CanonicalPair(embeddable[i].ID, embeddable[j].ID)
			edge := &types.AssociationEdge{
				OwnerID:   ownerID,
				UnitA:     a,
				UnitB:     b,
				Strength:  sim,
				Type:      types.AssociationAuto,
				CreatedAt: now,
			}
			if err := e.store.Upsert(ctx, edge); err != nil {
				log.Printf("association: auto-link %s-%s: %v", a, b, err)
				continue
			}
			linked++
		}
	}
	return linked, nil
}

// StrengthenCoAccessed links units accessed within the co-access window of
// each other, as of now. Existing edges are strengthened by the increment;
// new pairs get a co_access edge at the initial strength. Returns the number
// of pairs touched.
func (e *Engine) StrengthenCoAccessed(ctx context.Context, ownerID string, now time.Time) (int, error) {
	units, err := e.store.ListAccessedSince(ctx, ownerID, now.Add(-e.cfg.CoAccessWindow))
	if err != nil {
		return 0, fmt.Errorf("association: list recent accesses: %w", err)
	}
	if len(units) < 2 {
		return 0, nil
	}

	existing, err := e.edgeSet(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	touched := 0
	for i := 0; i < len(units); i++ {
		for j := i + 1; j < len(units); j++ {
			a, b := types.CanonicalPair(units[i].ID, units[j].ID)
			if _, ok := existing[a+"\x00"+b]; ok {
				if err := e.store.Strengthen(ctx, ownerID, a, b, e.cfg.CoAccessIncrement, now); err != nil {
					log.Printf("association: strengthen %s-%s: %v", a, b, err)
					continue
				}
			} else {
				edge := &types.AssociationEdge{
					OwnerID:   ownerID,
					UnitA:     a,
					UnitB:     b,
					Strength:  e.cfg.CoAccessInitial,
					Type:      types.AssociationCoAccess,
					CreatedAt: now,
				}
				if err := e.store.Upsert(ctx, edge); err != nil {
					log.Printf("association: co-access link %s-%s: %v", a, b, err)
					continue
				}
				existing[a+"\x00"+b] = struct{}{}
			}
			touched++
		}
	}
	return touched, nil
}

// LinkByTopics creates topic_based edges between units sharing at least one
// topic. Strength is 0.5 plus 0.1 per shared topic, capped at 1.0.
func (e *Engine) LinkByTopics(ctx context.Context, ownerID string) (int, error) {
	units, err := e.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("association: list units: %w", err)
	}

	linked := 0
	now := time.Now().UTC()
	for i := 0; i < len(units); i++ {
		if len(units[i].Topics) == 0 {
			continue
		}
		topicsA := topicSet(units[i].Topics)
		for j := i + 1; j < len(units); j++ {
			shared := 0
			for _, topic := range units[j].Topics {
				if _, ok := topicsA[topic]; ok {
					shared++
				}
			}
			if shared == 0 {
				continue
			}
			strength := 0.5 + 0.1*float64(shared)
			if strength > 1.0 {
				strength = 1.0
			}
			a, b := types.CanonicalPair(units[i].ID, units[j].ID)
			edge := &types.AssociationEdge{
				OwnerID:      ownerID,
				UnitA:        a,
				UnitB:        b,
				Strength:     strength,
				Type:         types.AssociationTopicBased,
				SharedTopics: shared,
				CreatedAt:    now,
			}
			if err := e.store.Upsert(ctx, edge); err != nil {
				log.Printf("association: topic link %s-%s: %v", a, b, err)
				continue
			}
			linked++
		}
	}
	return linked, nil
}

// FindPaths returns multi-hop paths radiating from the start unit, up to
// MaxHops deep. A path is kept only when its weakest hop is at least
// MinHopStrength and its average strength at least MinPathStrength. Results
// are ranked by strength descending, then by length ascending, capped at
// ten paths.
func (e *Engine) FindPaths(ctx context.Context, ownerID, startID string) ([]Path, error) {
	adj, err := e.adjacency(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(adj[startID]) == 0 {
		return nil, nil
	}

	var paths []Path
	visited := map[string]bool{startID: true}
	e.walk(adj, visited, []string{startID}, nil, &paths)

	sort.SliceStable(paths, func(i, j int) bool {
		if paths[i].Strength != paths[j].Strength {
			return paths[i].Strength > paths[j].Strength
		}
		return paths[i].Hops < paths[j].Hops
	})
	if len(paths) > maxPathResults {
		paths = paths[:maxPathResults]
	}
	return paths, nil
}

func (e *Engine) walk(adj map[string][]neighbor, visited map[string]bool, route []string, strengths []float64, out *[]Path) {
	if len(strengths) >= e.cfg.MaxHops {
		return
	}
	for _, next := range adj[route[len(route)-1]] {
		if visited[next.id] || next.strength < e.cfg.MinHopStrength {
			continue
		}
		hops := append(strengths, next.strength)
		avg := average(hops)
		if avg >= e.cfg.MinPathStrength {
			units := make([]string, len(route), len(route)+1)
			copy(units, route)
			units = append(units, next.id)
			*out = append(*out, Path{Units: units, Strength: avg, Hops: len(hops)})
		}
		visited[next.id] = true
		e.walk(adj, visited, append(route, next.id), hops, out)
		visited[next.id] = false
	}
}

// Clusters groups the owner's units into connected components over edges at
// or above the cluster threshold. Components smaller than the minimum size
// are dropped; the largest ten are returned, biggest first.
func (e *Engine) Clusters(ctx context.Context, ownerID string) ([]Cluster, error) {
	edges, err := e.store.EdgesForOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("association: list edges: %w", err)
	}

	parent := make(map[string]string)
	var find func(string) string
	find = func(x string) string {
		if parent[x] == x {
			return x
		}
		parent[x] = find(parent[x])
		return parent[x]
	}
	union := func(a, b string) {
		for _, x := range []string{a, b} {
			if _, ok := parent[x]; !ok {
				parent[x] = x
			}
		}
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	strong := make([]*types.AssociationEdge, 0, len(edges))
	for _, edge := range edges {
		if edge.Strength >= e.cfg.ClusterThreshold {
			union(edge.UnitA, edge.UnitB)
			strong = append(strong, edge)
		}
	}

	members := make(map[string][]string)
	for unit := range parent {
		root := find(unit)
		members[root] = append(members[root], unit)
	}

	var clusters []Cluster
	for root, units := range members {
		if len(units) < e.cfg.ClusterMinSize {
			continue
		}
		var sum float64
		var count int
		for _, edge := range strong {
			if find(edge.UnitA) == root {
				sum += edge.Strength
				count++
			}
		}
		sort.Strings(units)
		avg := 0.0
		if count > 0 {
			avg = sum / float64(count)
		}
		clusters = append(clusters, Cluster{Units: units, AvgStrength: avg})
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		if len(clusters[i].Units) != len(clusters[j].Units) {
			return len(clusters[i].Units) > len(clusters[j].Units)
		}
		return clusters[i].AvgStrength > clusters[j].AvgStrength
	})
	if len(clusters) > maxClusterResults {
		clusters = clusters[:maxClusterResults]
	}
	return clusters, nil
}

// Optimize removes weak direct edges that an indirect route outperforms. A
// direct edge below the optimize threshold is dropped when some 2 to 4 hop
// path between its endpoints has a strength product exceeding the direct
// strength. Returns the number of edges removed.
func (e *Engine) Optimize(ctx context.Context, ownerID string) (int, error) {
	edges, err := e.store.EdgesForOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("association: list edges: %w", err)
	}

	adj := buildAdjacency(edges)
	removed := 0
	for _, edge := range edges {
		if edge.Strength >= e.cfg.OptimizeThreshold {
			continue
		}
		best := bestIndirectProduct(adj, edge.UnitA, edge.UnitB, 4)
		if best <= edge.Strength {
			continue
		}
		if err := e.store.DeleteEdge(ctx, ownerID, edge.UnitA, edge.UnitB); err != nil {
			log.Printf("association: optimize delete %s-%s: %v", edge.UnitA, edge.UnitB, err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Stats computes the owner's graph summary.
func (e *Engine) Stats(ctx context.Context, ownerID string) (*NetworkStats, error) {
	edges, err := e.store.EdgesForOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("association: list edges: %w", err)
	}
	units, err := e.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("association: list units: %w", err)
	}

	stats := &NetworkStats{
		TotalEdges:  len(edges),
		EdgesByType: make(map[types.AssociationType]int),
		TotalUnits:  len(units),
	}
	var sum float64
	for _, edge := range edges {
		stats.EdgesByType[edge.Type]++
		sum += edge.Strength
		if edge.Strength > 0.7 {
			stats.StrongEdges++
		}
	}
	if len(edges) > 0 {
		stats.AvgStrength = sum / float64(len(edges))
	}
	if n := len(units); n > 1 {
		stats.Connectivity = float64(len(edges)) / (float64(n) * float64(n-1) / 2)
	}
	return stats, nil
}

type neighbor struct {
	id       string
	strength float64
}

func (e *Engine) adjacency(ctx context.Context, ownerID string) (map[string][]neighbor, error) {
	edges, err := e.store.EdgesForOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("association: list edges: %w", err)
	}
	return buildAdjacency(edges), nil
}

func buildAdjacency(edges []*types.AssociationEdge) map[string][]neighbor {
	adj := make(map[string][]neighbor)
	for _, edge := range edges {
		adj[edge.UnitA] = append(adj[edge.UnitA], neighbor{edge.UnitB, edge.Strength})
		adj[edge.UnitB] = append(adj[edge.UnitB], neighbor{edge.UnitA, edge.Strength})
	}
	return adj
}

// bestIndirectProduct finds the strongest 2..maxHops hop path between a and
// b by strength product, ignoring the direct edge.
func bestIndirectProduct(adj map[string][]neighbor, a, b string, maxHops int) float64 {
	best := 0.0
	visited := map[string]bool{a: true}
	var dfs func(current string, product float64, hops int)
	dfs = func(current string, product float64, hops int) {
		if hops > maxHops {
			return
		}
		for _, next := range adj[current] {
			if next.id == b {
				if hops >= 2 && product*next.strength > best {
					best = product * next.strength
				}
				continue
			}
			if visited[next.id] {
				continue
			}
			visited[next.id] = true
			dfs(next.id, product*next.strength, hops+1)
			visited[next.id] = false
		}
	}
	dfs(a, 1.0, 1)
	return best
}

func (e *Engine) edgeSet(ctx context.Context, ownerID string) (map[string]struct{}, error) {
	edges, err := e.store.EdgesForOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("association: list edges: %w", err)
	}
	set := make(map[string]struct{}, len(edges))
	for _, edge := range edges {
		set[edge.UnitA+"\x00"+edge.UnitB] = struct{}{}
	}
	return set, nil
}

func topicSet(topics []string) map[string]struct{} {
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}
	return set
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
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

func isZeroVector(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
