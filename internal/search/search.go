// Package search answers nearest-neighbor queries over a graph's
// stored vectors. Scans are exhaustive; graphs hold thousands of
// vectors at most and exactness matters more than speed here.
package search

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/skeinlabs/skein/internal/store"
	"github.com/skeinlabs/skein/internal/vecmath"
)

// Config holds default search parameters.
type Config struct {
	TopicResultCount    int
	ItemResultCount     int
	SimilarityThreshold float64
	MaxEdgesInResults   int
}

// DefaultConfig returns the standard search parameters.
func DefaultConfig() Config {
	return Config{
		TopicResultCount:    5,
		ItemResultCount:     10,
		SimilarityThreshold: 0.4,
		MaxEdgesInResults:   20,
	}
}

// TopicResult is a ranked topic match. Neighbor-expanded entries carry
// similarity 0: they are context for the display, not ranked matches.
type TopicResult struct {
	Topic      *store.Topic `json:"topic"`
	Similarity float64      `json:"similarity"`
}

// ItemResult is a ranked item match.
type ItemResult struct {
	Item       *store.Item `json:"item"`
	Similarity float64     `json:"similarity"`
}

// reader is the slice of the store the engine needs.
type reader interface {
	ListTopics(ctx context.Context, graphID string) ([]*store.Topic, error)
	ListItems(ctx context.Context, graphID string, limit int) ([]*store.Item, error)
	ListVectors(ctx context.Context, graphID string, owner store.OwnerType) (map[string][]float32, error)
	EdgesForTopic(ctx context.Context, graphID, topicID string) ([]*store.TopicEdge, error)
}

// Engine runs similarity queries against one store.
type Engine struct {
	cfg    Config
	logger *zap.Logger
}

// New creates an Engine. Zero-valued config fields fall back to
// defaults.
func New(cfg Config, logger *zap.Logger) *Engine {
	def := DefaultConfig()
	if cfg.TopicResultCount <= 0 {
		cfg.TopicResultCount = def.TopicResultCount
	}
	if cfg.ItemResultCount <= 0 {
		cfg.ItemResultCount = def.ItemResultCount
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.MaxEdgesInResults <= 0 {
		cfg.MaxEdgesInResults = def.MaxEdgesInResults
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// FindSimilarTopics ranks topics by cosine similarity to the query.
// Topics that have not been projected yet are skipped so the UI never
// highlights a node it cannot place. topK and threshold fall back to
// the engine defaults when non-positive.
func (e *Engine) FindSimilarTopics(ctx context.Context, r reader, graphID string, query []float32, topK int, threshold float64) ([]TopicResult, error) {
	if topK <= 0 {
		topK = e.cfg.TopicResultCount
	}
	if threshold <= 0 {
		threshold = e.cfg.SimilarityThreshold
	}

	topics, err := r.ListTopics(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("listing topics: %w", err)
	}
	vectors, err := r.ListVectors(ctx, graphID, store.OwnerTopic)
	if err != nil {
		return nil, fmt.Errorf("listing topic vectors: %w", err)
	}

	results := make([]TopicResult, 0, topK)
	for _, t := range topics {
		if !t.HasPosition {
			continue
		}
		vec, ok := vectors[t.ID]
		if !ok {
			continue
		}
		sim := vecmath.CosineSimilarity(query, vec)
		if sim < threshold {
			continue
		}
		results = append(results, TopicResult{Topic: t, Similarity: sim})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Topic.ID < results[j].Topic.ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// FindSimilarItems ranks items by cosine similarity to the query.
func (e *Engine) FindSimilarItems(ctx context.Context, r reader, graphID string, query []float32, topK int, threshold float64) ([]ItemResult, error) {
	if topK <= 0 {
		topK = e.cfg.ItemResultCount
	}
	if threshold <= 0 {
		threshold = e.cfg.SimilarityThreshold
	}

	items, err := r.ListItems(ctx, graphID, -1)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	vectors, err := r.ListVectors(ctx, graphID, store.OwnerItem)
	if err != nil {
		return nil, fmt.Errorf("listing item vectors: %w", err)
	}

	results := make([]ItemResult, 0, topK)
	for _, it := range items {
		vec, ok := vectors[it.ID]
		if !ok {
			continue
		}
		sim := vecmath.CosineSimilarity(query, vec)
		if sim < threshold {
			continue
		}
		results = append(results, ItemResult{Item: it, Similarity: sim})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Item.ID < results[j].Item.ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// ExpandWithNeighbors appends the direct graph-neighbors of the single
// highest-ranked topic that are not already in the result set. Added
// entries carry similarity 0.
func (e *Engine) ExpandWithNeighbors(ctx context.Context, r reader, graphID string, results []TopicResult) ([]TopicResult, error) {
	if len(results) == 0 {
		return results, nil
	}

	top := results[0].Topic
	edges, err := r.EdgesForTopic(ctx, graphID, top.ID)
	if err != nil {
		return nil, fmt.Errorf("listing edges for topic %s: %w", top.ID, err)
	}

	present := make(map[string]bool, len(results))
	for _, res := range results {
		present[res.Topic.ID] = true
	}

	topics, err := r.ListTopics(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("listing topics: %w", err)
	}
	byID := make(map[string]*store.Topic, len(topics))
	for _, t := range topics {
		byID[t.ID] = t
	}

	for _, edge := range edges {
		neighborID := edge.Other(top.ID)
		if present[neighborID] {
			continue
		}
		neighbor, ok := byID[neighborID]
		if !ok {
			continue
		}
		present[neighborID] = true
		results = append(results, TopicResult{Topic: neighbor, Similarity: 0})
	}
	return results, nil
}

// FilterRelevantEdges keeps edges whose endpoints are both highlighted,
// sorted by similarity descending and capped. A non-positive maxEdges
// falls back to the engine default.
func (e *Engine) FilterRelevantEdges(edges []*store.TopicEdge, highlighted map[string]bool, maxEdges int) []*store.TopicEdge {
	if maxEdges <= 0 {
		maxEdges = e.cfg.MaxEdgesInResults
	}

	kept := make([]*store.TopicEdge, 0, len(edges))
	for _, edge := range edges {
		if highlighted[edge.Src] && highlighted[edge.Dst] {
			kept = append(kept, edge)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Similarity != kept[j].Similarity {
			return kept[i].Similarity > kept[j].Similarity
		}
		return kept[i].ID < kept[j].ID
	})
	if len(kept) > maxEdges {
		kept = kept[:maxEdges]
	}
	return kept
}
