package link

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/skeinlabs/skein/internal/store"
)

// Config tunes candidate selection and edge acceptance.
type Config struct {
	// CandidateCount is how many nearest topics are ranked at all.
	CandidateCount int
	// ClassifyCount is how many of those are sent to the classifier.
	ClassifyCount int
	// SimilarityFloor is the minimum similarity for any edge.
	SimilarityFloor float64
	// HierarchyFloor is the stricter minimum for parent/child edges.
	HierarchyFloor float64
	// MaxParents, MaxChildren, MaxSiblings cap accepted edges per new
	// topic in one linking round.
	MaxParents  int
	MaxChildren int
	MaxSiblings int
	// Caps are the per-node degree limits enforced after insertion.
	Caps store.DegreeCaps
}

// DefaultConfig returns the standard linking parameters.
func DefaultConfig() Config {
	return Config{
		CandidateCount:  20,
		ClassifyCount:   6,
		SimilarityFloor: 0.6,
		HierarchyFloor:  0.75,
		MaxParents:      2,
		MaxChildren:     2,
		MaxSiblings:     3,
		Caps:            store.DefaultDegreeCaps(),
	}
}

// Neighbor is a candidate topic with its cosine similarity to the
// subject.
type Neighbor struct {
	Topic      *store.Topic
	Similarity float64
}

// Builder connects newly minted topics into the graph.
type Builder struct {
	cfg        Config
	classifier Classifier
	logger     *zap.Logger
}

// New creates a Builder. Zero-valued config fields fall back to
// defaults.
func New(cfg Config, classifier Classifier, logger *zap.Logger) *Builder {
	def := DefaultConfig()
	if cfg.CandidateCount <= 0 {
		cfg.CandidateCount = def.CandidateCount
	}
	if cfg.ClassifyCount <= 0 {
		cfg.ClassifyCount = def.ClassifyCount
	}
	if cfg.SimilarityFloor <= 0 {
		cfg.SimilarityFloor = def.SimilarityFloor
	}
	if cfg.HierarchyFloor <= 0 {
		cfg.HierarchyFloor = def.HierarchyFloor
	}
	if cfg.MaxParents <= 0 {
		cfg.MaxParents = def.MaxParents
	}
	if cfg.MaxChildren <= 0 {
		cfg.MaxChildren = def.MaxChildren
	}
	if cfg.MaxSiblings <= 0 {
		cfg.MaxSiblings = def.MaxSiblings
	}
	if cfg.Caps == (store.DegreeCaps{}) {
		cfg.Caps = def.Caps
	}
	if classifier == nil {
		classifier = ThresholdClassifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{cfg: cfg, classifier: classifier, logger: logger}
}

// LinkTopic classifies the subject against its nearest neighbors and
// inserts the accepted edges through mut. A classifier failure degrades
// to zero edges, never an error; storage failures propagate.
func (b *Builder) LinkTopic(ctx context.Context, mut store.Mutator, graphID string, subject *store.Topic, neighbors []Neighbor) ([]*store.TopicEdge, error) {
	candidates := b.selectCandidates(subject, neighbors)
	if len(candidates) == 0 {
		return nil, nil
	}

	labels := make([]string, len(candidates))
	for i, c := range candidates {
		labels[i] = c.Topic.Label
	}
	relations, err := b.classifier.Classify(ctx, subject.Label, labels)
	if err != nil {
		b.logger.Warn("relationship classification failed, skipping edges",
			zap.String("topic", subject.Label),
			zap.Error(err))
		return nil, nil
	}
	if len(relations) != len(candidates) {
		b.logger.Warn("classifier returned wrong arity, skipping edges",
			zap.String("topic", subject.Label),
			zap.Int("got", len(relations)),
			zap.Int("want", len(candidates)))
		return nil, nil
	}

	edges, err := mut.ListEdges(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("listing edges: %w", err)
	}
	down := broaderAdjacency(edges)
	connected := connectedPairs(edges)

	var added []*store.TopicEdge
	var parents, children, siblings int

	for i, rel := range relations {
		cand := candidates[i]
		var edge *store.TopicEdge
		switch rel {
		case RelParent:
			if parents >= b.cfg.MaxParents || cand.Similarity < b.cfg.HierarchyFloor {
				continue
			}
			// Candidate already below the subject in the hierarchy:
			// making it a parent would close a cycle.
			if reachable(down, subject.ID, cand.Topic.ID) {
				continue
			}
			edge = &store.TopicEdge{
				GraphID: graphID, Src: cand.Topic.ID, Dst: subject.ID,
				Type: store.EdgeBroaderThan, Similarity: cand.Similarity,
			}
		case RelChild:
			if children >= b.cfg.MaxChildren || cand.Similarity < b.cfg.HierarchyFloor {
				continue
			}
			if reachable(down, cand.Topic.ID, subject.ID) {
				continue
			}
			edge = &store.TopicEdge{
				GraphID: graphID, Src: subject.ID, Dst: cand.Topic.ID,
				Type: store.EdgeBroaderThan, Similarity: cand.Similarity,
			}
		case RelSibling:
			if siblings >= b.cfg.MaxSiblings {
				continue
			}
			if connected[pairKey(subject.ID, cand.Topic.ID)] {
				continue
			}
			edge = &store.TopicEdge{
				GraphID: graphID, Src: subject.ID, Dst: cand.Topic.ID,
				Type: store.EdgeRelatedTo, Similarity: cand.Similarity,
			}
		default:
			continue
		}

		if err := mut.AddEdge(ctx, edge); err != nil {
			if errors.Is(err, store.ErrEdgeExists) {
				continue
			}
			return nil, fmt.Errorf("adding %s edge for %q: %w", edge.Type, subject.Label, err)
		}

		switch rel {
		case RelParent:
			parents++
		case RelChild:
			children++
		case RelSibling:
			siblings++
		}
		if edge.Type == store.EdgeBroaderThan {
			down[edge.Src] = append(down[edge.Src], edge.Dst)
		}
		connected[pairKey(edge.Src, edge.Dst)] = true
		added = append(added, edge)
	}

	if err := b.prune(ctx, mut, graphID, subject.ID, added); err != nil {
		return nil, err
	}
	return added, nil
}

// selectCandidates ranks neighbors by similarity and keeps the top few
// that clear the floor. Ties keep id order so runs are reproducible.
func (b *Builder) selectCandidates(subject *store.Topic, neighbors []Neighbor) []Neighbor {
	ranked := make([]Neighbor, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Topic.ID == subject.ID || n.Similarity < b.cfg.SimilarityFloor {
			continue
		}
		ranked = append(ranked, n)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Similarity != ranked[j].Similarity {
			return ranked[i].Similarity > ranked[j].Similarity
		}
		return ranked[i].Topic.ID < ranked[j].Topic.ID
	})
	if len(ranked) > b.cfg.CandidateCount {
		ranked = ranked[:b.cfg.CandidateCount]
	}
	if len(ranked) > b.cfg.ClassifyCount {
		ranked = ranked[:b.cfg.ClassifyCount]
	}
	return ranked
}

// prune enforces per-node degree caps on the subject and every neighbor
// the new edges touched.
func (b *Builder) prune(ctx context.Context, mut store.Mutator, graphID, subjectID string, added []*store.TopicEdge) error {
	touched := map[string]bool{subjectID: true}
	for _, e := range added {
		touched[e.Src] = true
		touched[e.Dst] = true
	}
	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		removed, err := mut.PruneEdges(ctx, graphID, id, b.cfg.Caps)
		if err != nil {
			return fmt.Errorf("pruning edges for topic %s: %w", id, err)
		}
		if removed > 0 {
			b.logger.Debug("pruned excess edges",
				zap.String("topic_id", id),
				zap.Int("removed", removed))
		}
	}
	return nil
}

// broaderAdjacency maps parent id to child ids over broader_than edges.
func broaderAdjacency(edges []*store.TopicEdge) map[string][]string {
	down := make(map[string][]string)
	for _, e := range edges {
		if e.Type == store.EdgeBroaderThan {
			down[e.Src] = append(down[e.Src], e.Dst)
		}
	}
	return down
}

// connectedPairs records every pair joined by any edge type.
func connectedPairs(edges []*store.TopicEdge) map[string]bool {
	pairs := make(map[string]bool, len(edges))
	for _, e := range edges {
		pairs[pairKey(e.Src, e.Dst)] = true
	}
	return pairs
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "\x00" + b
}

// reachable reports whether to can be reached from from by following
// adjacency edges. Plain BFS; the broader_than subgraph is small and
// acyclic.
func reachable(adj map[string][]string, from, to string) bool {
	if from == to {
		return true
	}
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}
