// Package graph serves the knowledge graph over HTTP for visualization
// clients: the full node/edge payload, clusters with spanning structure,
// semantic search, stats, and Prometheus metrics.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/skeinlabs/skein/internal/store"
)

// TopicView is the wire format for one topic node.
type TopicView struct {
	ID          string     `json:"id"`
	Label       string     `json:"label"`
	Uses        int        `json:"uses"`
	Position    [3]float64 `json:"position"`
	HasPosition bool       `json:"has_position"`
}

// EdgeView is the wire format for one typed edge.
type EdgeView struct {
	ID         string  `json:"id"`
	Src        string  `json:"src"`
	Dst        string  `json:"dst"`
	Type       string  `json:"type"`
	Similarity float64 `json:"similarity"`
}

// Payload is the full graph export for a visualization client.
type Payload struct {
	GraphID     string      `json:"graph_id"`
	Topics      []TopicView `json:"topics"`
	Edges       []EdgeView  `json:"edges"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// viewReader is the slice of the store the payload builder needs.
type viewReader interface {
	ListTopics(ctx context.Context, graphID string) ([]*store.Topic, error)
	ListEdges(ctx context.Context, graphID string) ([]*store.TopicEdge, error)
}

// BuildPayload assembles the export for one graph.
func BuildPayload(ctx context.Context, r viewReader, graphID string) (*Payload, error) {
	topics, err := r.ListTopics(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("listing topics: %w", err)
	}
	edges, err := r.ListEdges(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("listing edges: %w", err)
	}

	payload := &Payload{
		GraphID:     graphID,
		Topics:      make([]TopicView, 0, len(topics)),
		Edges:       make([]EdgeView, 0, len(edges)),
		GeneratedAt: time.Now().UTC(),
	}
	for _, t := range topics {
		payload.Topics = append(payload.Topics, topicView(t))
	}
	for _, e := range edges {
		payload.Edges = append(payload.Edges, edgeView(e))
	}
	return payload, nil
}

func topicView(t *store.Topic) TopicView {
	return TopicView{
		ID:          t.ID,
		Label:       t.Label,
		Uses:        t.Uses,
		Position:    [3]float64{t.X, t.Y, t.Z},
		HasPosition: t.HasPosition,
	}
}

func edgeView(e *store.TopicEdge) EdgeView {
	return EdgeView{
		ID:         e.ID,
		Src:        e.Src,
		Dst:        e.Dst,
		Type:       string(e.Type),
		Similarity: e.Similarity,
	}
}
