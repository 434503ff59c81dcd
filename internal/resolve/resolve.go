// Package resolve deduplicates topic labels against the existing topic
// set of a graph. Each incoming (label, embedding) pair is either matched
// to an existing topic exactly by label, merged into a semantically close
// topic by cosine similarity, or minted as a new topic.
package resolve

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/skeinlabs/skein/internal/store"
	"github.com/skeinlabs/skein/internal/vecmath"
)

// DefaultMergeThreshold is the cosine similarity above which a new label
// is folded into an existing topic instead of minting a new one.
const DefaultMergeThreshold = 0.85

// Resolution is the outcome for one input label.
type Resolution struct {
	Topic *store.Topic
	// Embedding is the input embedding for this label. Only stored for
	// newly minted topics; merged labels keep the winner's vector.
	Embedding []float32
	// IsNew is true when the topic was minted by this batch.
	IsNew bool
	// MergedInto is the similarity that justified a merge, 0 otherwise.
	MergedInto float64
}

// Resolver merges or creates topics for batches of labeled embeddings.
type Resolver struct {
	threshold float64
	logger    *zap.Logger
}

// New creates a Resolver. A non-positive threshold falls back to the
// default.
func New(threshold float64, logger *zap.Logger) *Resolver {
	if threshold <= 0 {
		threshold = DefaultMergeThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{threshold: threshold, logger: logger}
}

// candidate is a topic eligible for similarity matching.
type candidate struct {
	topic *store.Topic
	vec   []float32
}

// ResolveBatch resolves the labels of one ingested item, in order,
// writing new topics and vectors through mut. Labels resolving to the
// same topic twice within a batch share one Resolution, so uses stays
// equal to the number of item-topic associations.
//
// The batch is deterministic for a fixed input ordering: similarity ties
// keep the first-seen candidate.
func (r *Resolver) ResolveBatch(ctx context.Context, mut store.Mutator, graphID string, labels []string, embeddings [][]float32) ([]*Resolution, error) {
	if len(labels) != len(embeddings) {
		return nil, fmt.Errorf("resolving batch: %d labels but %d embeddings", len(labels), len(embeddings))
	}

	existing, err := mut.ListTopics(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("listing topics: %w", err)
	}
	vectors, err := mut.ListVectors(ctx, graphID, store.OwnerTopic)
	if err != nil {
		return nil, fmt.Errorf("listing topic vectors: %w", err)
	}

	byLabel := make(map[string]*store.Topic, len(existing))
	candidates := make([]candidate, 0, len(existing)+len(labels))
	for _, t := range existing {
		byLabel[normalizeLabel(t.Label)] = t
		if vec, ok := vectors[t.ID]; ok {
			candidates = append(candidates, candidate{topic: t, vec: vec})
		}
	}

	resolved := make(map[string]*Resolution, len(labels)) // topic id -> resolution
	out := make([]*Resolution, 0, len(labels))

	for i, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		embedding := embeddings[i]

		// Exact label match, including labels resolved earlier in
		// this batch.
		if t, ok := byLabel[normalizeLabel(label)]; ok {
			res, err := r.reuse(ctx, mut, graphID, t, resolved, 0)
			if err != nil {
				return nil, err
			}
			out = append(out, res)
			continue
		}

		// Best cosine match over existing topics and batch-earlier ones.
		best, bestSim := bestMatch(embedding, candidates)
		if best != nil && bestSim >= r.threshold {
			r.logger.Debug("merged topic label",
				zap.String("label", label),
				zap.String("into", best.Label),
				zap.Float64("similarity", bestSim))
			res, err := r.reuse(ctx, mut, graphID, best, resolved, bestSim)
			if err != nil {
				return nil, err
			}
			byLabel[normalizeLabel(label)] = best
			out = append(out, res)
			continue
		}

		// Mint.
		t := &store.Topic{GraphID: graphID, Label: label}
		if err := mut.CreateTopic(ctx, t); err != nil {
			return nil, fmt.Errorf("creating topic %q: %w", label, err)
		}
		if err := mut.PutVector(ctx, &store.VectorRow{
			GraphID:   graphID,
			Owner:     store.OwnerTopic,
			OwnerID:   t.ID,
			Embedding: embedding,
		}); err != nil {
			return nil, fmt.Errorf("storing vector for topic %q: %w", label, err)
		}

		res := &Resolution{Topic: t, Embedding: embedding, IsNew: true}
		resolved[t.ID] = res
		byLabel[normalizeLabel(label)] = t
		candidates = append(candidates, candidate{topic: t, vec: embedding})
		out = append(out, res)
	}

	return out, nil
}

// reuse increments uses once per batch for a given topic.
func (r *Resolver) reuse(ctx context.Context, mut store.Mutator, graphID string, t *store.Topic, resolved map[string]*Resolution, sim float64) (*Resolution, error) {
	if prior, ok := resolved[t.ID]; ok {
		return prior, nil
	}
	if err := mut.IncrementUses(ctx, graphID, t.ID); err != nil {
		return nil, fmt.Errorf("incrementing uses for topic %q: %w", t.Label, err)
	}
	t.Uses++
	res := &Resolution{Topic: t, MergedInto: sim}
	resolved[t.ID] = res
	return res, nil
}

// bestMatch returns the candidate with the highest cosine similarity to
// the embedding. Strictly-greater comparison keeps the first-seen winner
// on ties.
func bestMatch(embedding []float32, candidates []candidate) (*store.Topic, float64) {
	var best *store.Topic
	bestSim := -1.0
	for _, c := range candidates {
		sim := vecmath.CosineSimilarity(embedding, c.vec)
		if sim > bestSim {
			bestSim = sim
			best = c.topic
		}
	}
	if best == nil {
		return nil, 0
	}
	return best, bestSim
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
