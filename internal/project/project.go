// Package project computes 3D positions for a graph's topics. Topic
// embeddings are reduced with PCA to an intermediate dimension, laid
// out in three dimensions by a UMAP-style manifold projection, then
// normalized into a fixed symmetric range for the visualization.
//
// Every run is a full recompute over all embedded topics in the graph.
package project

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/skeinlabs/skein/internal/store"
)

// The normalized coordinate range is [-Range, Range] on each axis.
const Range = 10.0

// minTopicsForProjection is the smallest dataset the PCA/UMAP pipeline
// accepts; below it, positions are spread trivially along one axis.
const minTopicsForProjection = 4

// Config tunes the projection pipeline.
type Config struct {
	// IntermediateDim is the PCA output dimensionality, clamped to the
	// embedding dimensionality and sample count.
	IntermediateDim int
	// NNeighbors bounds the UMAP neighborhood size; the effective value
	// is min(NNeighbors, n/2).
	NNeighbors int
	MinDist    float64
	Spread     float64
	Epochs     int
	Seed       int64
}

// DefaultConfig returns the standard projection parameters.
func DefaultConfig() Config {
	return Config{
		IntermediateDim: 100,
		NNeighbors:      15,
		MinDist:         0.4,
		Spread:          2.0,
		Epochs:          200,
		Seed:            42,
	}
}

// positionStore is the slice of the store the projector needs.
type positionStore interface {
	ListTopics(ctx context.Context, graphID string) ([]*store.Topic, error)
	ListVectors(ctx context.Context, graphID string, owner store.OwnerType) (map[string][]float32, error)
	UpdatePositions(ctx context.Context, graphID string, positions map[string][3]float64) error
}

// Projector recomputes topic positions for a graph.
type Projector struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a Projector. Zero-valued config fields fall back to
// defaults.
func New(cfg Config, logger *zap.Logger) *Projector {
	def := DefaultConfig()
	if cfg.IntermediateDim <= 0 {
		cfg.IntermediateDim = def.IntermediateDim
	}
	if cfg.NNeighbors <= 0 {
		cfg.NNeighbors = def.NNeighbors
	}
	if cfg.MinDist <= 0 {
		cfg.MinDist = def.MinDist
	}
	if cfg.Spread <= 0 {
		cfg.Spread = def.Spread
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = def.Epochs
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{cfg: cfg, logger: logger}
}

// ProjectGraph recomputes and stores positions for every topic in the
// graph that has an embedding. Topics without embeddings are left
// untouched.
func (p *Projector) ProjectGraph(ctx context.Context, st positionStore, graphID string) error {
	topics, err := st.ListTopics(ctx, graphID)
	if err != nil {
		return fmt.Errorf("listing topics: %w", err)
	}
	vectors, err := st.ListVectors(ctx, graphID, store.OwnerTopic)
	if err != nil {
		return fmt.Errorf("listing topic vectors: %w", err)
	}

	// Fixed id ordering keeps the whole pipeline reproducible.
	ids := make([]string, 0, len(topics))
	for _, t := range topics {
		if _, ok := vectors[t.ID]; ok {
			ids = append(ids, t.ID)
		}
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return nil
	}

	// The PCA matrix build trusts a single row width; a graph written by
	// more than one embedding model cannot be laid out.
	dims := len(vectors[ids[0]])
	for _, id := range ids[1:] {
		if len(vectors[id]) != dims {
			return fmt.Errorf("topic vectors disagree on dimensionality (%d vs %d)", dims, len(vectors[id]))
		}
	}

	coords := p.computePositions(ids, vectors)

	positions := make(map[string][3]float64, len(ids))
	for i, id := range ids {
		positions[id] = coords[i]
	}
	if err := st.UpdatePositions(ctx, graphID, positions); err != nil {
		return fmt.Errorf("storing positions: %w", err)
	}

	p.logger.Info("projected topic positions",
		zap.String("graph_id", graphID),
		zap.Int("topics", len(ids)))
	return nil
}

func (p *Projector) computePositions(ids []string, vectors map[string][]float32) [][3]float64 {
	n := len(ids)
	if n < minTopicsForProjection {
		return trivialSpread(n)
	}

	data := make([][]float64, n)
	for i, id := range ids {
		v := vectors[id]
		data[i] = make([]float64, len(v))
		for j, f := range v {
			data[i][j] = float64(f)
		}
	}

	reduced := reducePCA(data, p.cfg.IntermediateDim, p.cfg.Seed)

	k := p.cfg.NNeighbors
	if half := n / 2; half < k {
		k = half
	}
	projected := projectUMAP(reduced, 3, umapConfig{
		nNeighbors:   k,
		minDist:      p.cfg.MinDist,
		spread:       p.cfg.Spread,
		nEpochs:      p.cfg.Epochs,
		learningRate: 1.0,
		negativeRate: 5,
		seed:         p.cfg.Seed,
	})
	if projected == nil {
		p.logger.Warn("manifold projection degenerate, using axis spread",
			zap.Int("topics", n))
		return trivialSpread(n)
	}

	return normalizeShared(projected)
}

// trivialSpread places n points evenly along the X axis. The full
// pipeline is numerically ill-posed on tiny datasets.
func trivialSpread(n int) [][3]float64 {
	out := make([][3]float64, n)
	if n == 1 {
		return out
	}
	for i := range out {
		out[i][0] = -Range + 2*Range*float64(i)/float64(n-1)
	}
	return out
}

// normalizeShared maps coordinates into [-Range, Range] using one scale
// factor computed over all three axes jointly, so relative distances
// between points are preserved.
func normalizeShared(coords [][]float64) [][3]float64 {
	min, max := coords[0][0], coords[0][0]
	for _, c := range coords {
		for _, v := range c {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
	}

	out := make([][3]float64, len(coords))
	span := max - min
	if span == 0 {
		return out
	}
	scale := 2 * Range / span
	for i, c := range coords {
		for d := 0; d < 3; d++ {
			out[i][d] = (c[d]-min)*scale - Range
		}
	}
	return out
}
