// Package ingest runs the write path of a graph: one item in, topics
// resolved, edges classified, all committed in a single transaction,
// with the 3D layout refreshed in the background afterwards.
package ingest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skeinlabs/skein/internal/link"
	"github.com/skeinlabs/skein/internal/metrics"
	"github.com/skeinlabs/skein/internal/project"
	"github.com/skeinlabs/skein/internal/resolve"
	"github.com/skeinlabs/skein/internal/store"
	"github.com/skeinlabs/skein/internal/vecmath"
)

// ErrDimensionMismatch is returned when input embeddings disagree on
// dimensionality.
var ErrDimensionMismatch = fmt.Errorf("embedding dimensions do not match")

// Input is one content unit with its embeddings already computed.
// TopicEmbeddings must be parallel to Topics.
type Input struct {
	Title            string
	Summary          string
	Link             string
	Topics           []string
	TopicEmbeddings  [][]float32
	ContentEmbedding []float32
}

// Result reports what one ingest call did.
type Result struct {
	Item             *store.Item
	SkippedDuplicate bool
	Topics           []*store.Topic
	NewTopics        int
	MergedTopics     int
	Edges            []*store.TopicEdge
}

// Pipeline wires the resolver and edge builder into the store and
// schedules projection after each successful write.
type Pipeline struct {
	store     store.Store
	resolver  *resolve.Resolver
	builder   *link.Builder
	projector *project.Projector
	logger    *zap.Logger

	// background tracks fire-and-forget projection runs so callers
	// (and tests) can wait for them.
	background sync.WaitGroup
}

// Config assembles a Pipeline from already-constructed engines. Nil
// engines disable the corresponding stage: a nil builder skips edge
// creation, a nil projector skips layout refresh.
type Config struct {
	Store     store.Store
	Resolver  *resolve.Resolver
	Builder   *link.Builder
	Projector *project.Projector
	Logger    *zap.Logger
}

// New creates a Pipeline. The store and resolver are required.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("creating pipeline: store is required")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("creating pipeline: resolver is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Pipeline{
		store:     cfg.Store,
		resolver:  cfg.Resolver,
		builder:   cfg.Builder,
		projector: cfg.Projector,
		logger:    cfg.Logger,
	}, nil
}

// Ingest writes one item and its topic associations atomically. A link
// already present in the graph makes the call a no-op reporting the
// existing item. The positions refresh runs in the background; its
// failure never fails the ingest.
func (p *Pipeline) Ingest(ctx context.Context, graphID string, in Input) (*Result, error) {
	dims, err := validate(in)
	if err != nil {
		metrics.ItemsIngested.WithLabelValues("failed").Inc()
		return nil, err
	}
	if dims > 0 {
		stored, err := p.store.VectorDimensions(ctx, graphID)
		if err != nil {
			return nil, fmt.Errorf("checking graph dimensions: %w", err)
		}
		if stored > 0 && stored != dims {
			metrics.ItemsIngested.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("input embeddings have %d dimensions but graph stores %d: %w",
				dims, stored, ErrDimensionMismatch)
		}
	}

	if in.Link != "" {
		existing, err := p.store.FindItemByLink(ctx, graphID, in.Link)
		if err != nil {
			return nil, fmt.Errorf("checking for duplicate link: %w", err)
		}
		if existing != nil {
			p.logger.Debug("skipping duplicate item",
				zap.String("graph", graphID),
				zap.String("link", in.Link))
			metrics.ItemsIngested.WithLabelValues("duplicate").Inc()
			return &Result{Item: existing, SkippedDuplicate: true}, nil
		}
	}

	start := time.Now()
	var result *Result
	err = p.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		result, err = p.ingestTx(ctx, tx, graphID, in)
		return err
	})
	metrics.IngestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ItemsIngested.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.ItemsIngested.WithLabelValues("ingested").Inc()

	p.logger.Info("ingested item",
		zap.String("graph", graphID),
		zap.String("item", result.Item.ID),
		zap.Int("topics", len(result.Topics)),
		zap.Int("new_topics", result.NewTopics),
		zap.Int("edges", len(result.Edges)))

	p.scheduleProjection(graphID)
	return result, nil
}

func (p *Pipeline) ingestTx(ctx context.Context, tx *store.Tx, graphID string, in Input) (*Result, error) {
	item := &store.Item{
		GraphID: graphID,
		Title:   strings.TrimSpace(in.Title),
		Summary: in.Summary,
		Link:    strings.TrimSpace(in.Link),
	}
	if err := tx.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	if len(in.ContentEmbedding) > 0 {
		err := tx.PutVector(ctx, &store.VectorRow{
			GraphID:   graphID,
			Owner:     store.OwnerItem,
			OwnerID:   item.ID,
			Embedding: in.ContentEmbedding,
		})
		if err != nil {
			return nil, fmt.Errorf("storing item vector: %w", err)
		}
	}

	resolutions, err := p.resolver.ResolveBatch(ctx, tx, graphID, in.Topics, in.TopicEmbeddings)
	if err != nil {
		return nil, fmt.Errorf("resolving topics: %w", err)
	}

	result := &Result{Item: item}
	seen := map[string]bool{}
	for _, res := range resolutions {
		if seen[res.Topic.ID] {
			continue
		}
		seen[res.Topic.ID] = true

		if err := tx.AddItemTopic(ctx, graphID, item.ID, res.Topic.ID); err != nil {
			return nil, fmt.Errorf("associating topic %q: %w", res.Topic.Label, err)
		}
		result.Topics = append(result.Topics, res.Topic)
		switch {
		case res.IsNew:
			result.NewTopics++
			metrics.TopicsResolved.WithLabelValues("minted").Inc()
		case res.MergedInto > 0:
			result.MergedTopics++
			metrics.TopicsResolved.WithLabelValues("merged").Inc()
		default:
			metrics.TopicsResolved.WithLabelValues("exact").Inc()
		}
	}

	if p.builder != nil && result.NewTopics > 0 {
		edges, err := p.linkNewTopics(ctx, tx, graphID, resolutions)
		if err != nil {
			return nil, err
		}
		result.Edges = edges
	}

	return result, nil
}

// linkNewTopics builds edges for topics minted in this batch, each
// classified against its nearest neighbors by stored vector.
func (p *Pipeline) linkNewTopics(ctx context.Context, tx *store.Tx, graphID string, resolutions []*resolve.Resolution) ([]*store.TopicEdge, error) {
	topics, err := tx.ListTopics(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("listing topics for linking: %w", err)
	}
	vectors, err := tx.ListVectors(ctx, graphID, store.OwnerTopic)
	if err != nil {
		return nil, fmt.Errorf("listing vectors for linking: %w", err)
	}
	metrics.GraphTopics.WithLabelValues(graphID).Set(float64(len(topics)))

	var all []*store.TopicEdge
	for _, res := range resolutions {
		if !res.IsNew {
			continue
		}
		neighbors := rankNeighbors(res.Topic, res.Embedding, topics, vectors)
		edges, err := p.builder.LinkTopic(ctx, tx, graphID, res.Topic, neighbors)
		if err != nil {
			return nil, fmt.Errorf("linking topic %q: %w", res.Topic.Label, err)
		}
		for _, e := range edges {
			metrics.EdgesCreated.WithLabelValues(string(e.Type)).Inc()
		}
		all = append(all, edges...)
	}
	return all, nil
}

// rankNeighbors scores every other embedded topic against the subject,
// highest similarity first with id as the tie-break.
func rankNeighbors(subject *store.Topic, embedding []float32, topics []*store.Topic, vectors map[string][]float32) []link.Neighbor {
	neighbors := make([]link.Neighbor, 0, len(topics))
	for _, t := range topics {
		if t.ID == subject.ID {
			continue
		}
		vec, ok := vectors[t.ID]
		if !ok {
			continue
		}
		neighbors = append(neighbors, link.Neighbor{
			Topic:      t,
			Similarity: vecmath.CosineSimilarity(embedding, vec),
		})
	}
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Similarity != neighbors[j].Similarity {
			return neighbors[i].Similarity > neighbors[j].Similarity
		}
		return neighbors[i].Topic.ID < neighbors[j].Topic.ID
	})
	return neighbors
}

// scheduleProjection refreshes topic positions without blocking the
// caller. Errors are logged and counted, never surfaced.
func (p *Pipeline) scheduleProjection(graphID string) {
	if p.projector == nil {
		return
	}
	p.background.Add(1)
	go func() {
		defer p.background.Done()
		defer func() {
			if r := recover(); r != nil {
				metrics.ProjectionRuns.WithLabelValues("error").Inc()
				p.logger.Error("background projection panicked",
					zap.String("graph", graphID),
					zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		start := time.Now()
		if err := p.projector.ProjectGraph(ctx, p.store, graphID); err != nil {
			metrics.ProjectionRuns.WithLabelValues("error").Inc()
			p.logger.Warn("background projection failed",
				zap.String("graph", graphID),
				zap.Error(err))
			return
		}
		metrics.ProjectionRuns.WithLabelValues("ok").Inc()
		metrics.ProjectionDuration.Observe(time.Since(start).Seconds())
	}()
}

// Wait blocks until all scheduled background work has finished.
func (p *Pipeline) Wait() {
	p.background.Wait()
}

// validate checks the input's internal consistency and returns the
// shared embedding dimensionality, 0 when the input carries no vectors.
func validate(in Input) (int, error) {
	if len(in.Topics) != len(in.TopicEmbeddings) {
		return 0, fmt.Errorf("ingest input: %d topics but %d embeddings", len(in.Topics), len(in.TopicEmbeddings))
	}
	dims := len(in.ContentEmbedding)
	for i, emb := range in.TopicEmbeddings {
		if len(emb) == 0 {
			return 0, fmt.Errorf("ingest input: empty embedding for topic %q", in.Topics[i])
		}
		if dims == 0 {
			dims = len(emb)
		}
		if len(emb) != dims {
			return 0, fmt.Errorf("topic %q has %d dimensions, expected %d: %w", in.Topics[i], len(emb), dims, ErrDimensionMismatch)
		}
	}
	return dims, nil
}
