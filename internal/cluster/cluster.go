// Package cluster partitions the topic graph into communities, picks a
// medoid centroid per community, and derives a directed spanning
// structure used by the visualization for layout and animation.
package cluster

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/skeinlabs/skein/internal/store"
	"github.com/skeinlabs/skein/internal/vecmath"
)

// Config tunes community detection.
type Config struct {
	// Resolution scales community granularity; higher values produce
	// smaller communities.
	Resolution float64
	// MinClusterSize drops communities with fewer members.
	MinClusterSize int
}

// DefaultConfig returns standard clustering parameters.
func DefaultConfig() Config {
	return Config{Resolution: 1.0, MinClusterSize: 2}
}

// Info describes one detected community.
type Info struct {
	ID               int        `json:"id"`
	CentroidID       string     `json:"centroid_id"`
	MemberIDs        []string   `json:"member_ids"`
	CentroidPosition [3]float64 `json:"centroid_position"`
}

// TreeEdge is one edge of a cluster's spanning structure, directed
// outward from the centroid.
type TreeEdge struct {
	EdgeID     string  `json:"edge_id"`
	From       string  `json:"from"`
	To         string  `json:"to"`
	Similarity float64 `json:"similarity"`
	Depth      int     `json:"depth"`
}

// WithEdges is a community plus its color and spanning structure.
type WithEdges struct {
	Info
	Color string     `json:"color"`
	Edges []TreeEdge `json:"edges"`
}

// graphReader is the slice of the store the engine needs.
type graphReader interface {
	ListTopics(ctx context.Context, graphID string) ([]*store.Topic, error)
	ListEdges(ctx context.Context, graphID string) ([]*store.TopicEdge, error)
	ListVectors(ctx context.Context, graphID string, owner store.OwnerType) (map[string][]float32, error)
}

// Engine detects communities over a graph's topics and edges. Results
// are derived on demand and never persisted; re-running on an unchanged
// graph reproduces the same partition.
type Engine struct {
	cfg    Config
	logger *zap.Logger
}

// New creates an Engine. Zero-valued config fields fall back to
// defaults.
func New(cfg Config, logger *zap.Logger) *Engine {
	if cfg.Resolution <= 0 {
		cfg.Resolution = 1.0
	}
	if cfg.MinClusterSize <= 0 {
		cfg.MinClusterSize = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Clusters partitions the graph and returns each surviving community
// with its centroid, color, and spanning structure.
func (e *Engine) Clusters(ctx context.Context, r graphReader, graphID string) ([]*WithEdges, error) {
	topics, err := r.ListTopics(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("listing topics: %w", err)
	}
	if len(topics) == 0 {
		return nil, nil
	}
	edges, err := r.ListEdges(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("listing edges: %w", err)
	}
	vectors, err := r.ListVectors(ctx, graphID, store.OwnerTopic)
	if err != nil {
		return nil, fmt.Errorf("listing vectors: %w", err)
	}

	// Dense indices in sorted-id order keep the partition reproducible.
	sort.Slice(topics, func(i, j int) bool { return topics[i].ID < topics[j].ID })
	index := make(map[string]int, len(topics))
	byID := make(map[string]*store.Topic, len(topics))
	for i, t := range topics {
		index[t.ID] = i
		byID[t.ID] = t
	}

	sorted := make([]*store.TopicEdge, len(edges))
	copy(sorted, edges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	g := newWeightedGraph(len(topics))
	for _, edge := range sorted {
		a, okA := index[edge.Src]
		b, okB := index[edge.Dst]
		if !okA || !okB {
			continue
		}
		w := edge.Similarity
		if w <= 0 {
			w = 0.01 // keep zero-scored edges visible to the partition
		}
		g.addEdge(a, b, w)
	}

	assignment := louvain(g, e.cfg.Resolution)

	members := make(map[int][]string)
	for i, t := range topics {
		members[assignment[i]] = append(members[assignment[i]], t.ID)
	}

	// Keep only communities at or above the size floor, ordered by
	// their smallest member id.
	kept := make([][]string, 0, len(members))
	for _, ids := range members {
		if len(ids) < e.cfg.MinClusterSize {
			continue
		}
		sort.Strings(ids)
		kept = append(kept, ids)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i][0] < kept[j][0] })

	out := make([]*WithEdges, 0, len(kept))
	for i, ids := range kept {
		centroidID, err := medoid(ids, vectors)
		if err != nil {
			e.logger.Warn("medoid selection failed, using first member",
				zap.Int("cluster", i), zap.Error(err))
			centroidID = ids[0]
		}

		info := Info{ID: i, CentroidID: centroidID, MemberIDs: ids}
		if t := byID[centroidID]; t != nil && t.HasPosition {
			info.CentroidPosition = [3]float64{t.X, t.Y, t.Z}
		}

		out = append(out, &WithEdges{
			Info:  info,
			Color: colorForIndex(i),
			Edges: spanningTree(centroidID, ids, sorted),
		})
	}
	return out, nil
}

// medoid picks the member whose normalized embedding is closest to the
// mean of all normalized member embeddings.
func medoid(memberIDs []string, vectors map[string][]float32) (string, error) {
	normalized := make(map[string][]float32, len(memberIDs))
	vecs := make([][]float32, 0, len(memberIDs))
	for _, id := range memberIDs {
		v, ok := vectors[id]
		if !ok {
			continue
		}
		n := vecmath.Normalize(v)
		normalized[id] = n
		vecs = append(vecs, n)
	}
	center, err := vecmath.Mean(vecs)
	if err != nil {
		return "", fmt.Errorf("computing cluster center: %w", err)
	}

	best := ""
	bestSim := -2.0
	for _, id := range memberIDs {
		n, ok := normalized[id]
		if !ok {
			continue
		}
		if sim := vecmath.CosineSimilarity(n, center); sim > bestSim {
			bestSim = sim
			best = id
		}
	}
	if best == "" {
		return "", vecmath.ErrEmptyDataset
	}
	return best, nil
}

// spanningTree grows a greedy breadth-first tree from the centroid,
// preferring the highest-similarity edge at each step. Only edges with
// both endpoints in the cluster participate.
func spanningTree(centroidID string, memberIDs []string, edges []*store.TopicEdge) []TreeEdge {
	inCluster := make(map[string]bool, len(memberIDs))
	for _, id := range memberIDs {
		inCluster[id] = true
	}

	adj := make(map[string][]*store.TopicEdge)
	for _, e := range edges {
		if !inCluster[e.Src] || !inCluster[e.Dst] {
			continue
		}
		adj[e.Src] = append(adj[e.Src], e)
		adj[e.Dst] = append(adj[e.Dst], e)
	}

	inTree := map[string]bool{centroidID: true}
	var tree []TreeEdge
	queue := []struct {
		id    string
		depth int
	}{{centroidID, 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		incident := adj[cur.id]
		sort.SliceStable(incident, func(i, j int) bool {
			if incident[i].Similarity != incident[j].Similarity {
				return incident[i].Similarity > incident[j].Similarity
			}
			return incident[i].ID < incident[j].ID
		})

		for _, e := range incident {
			next := e.Other(cur.id)
			if inTree[next] {
				continue
			}
			inTree[next] = true
			tree = append(tree, TreeEdge{
				EdgeID:     e.ID,
				From:       cur.id,
				To:         next,
				Similarity: e.Similarity,
				Depth:      cur.depth + 1,
			})
			queue = append(queue, struct {
				id    string
				depth int
			}{next, cur.depth + 1})
		}
	}
	return tree
}
