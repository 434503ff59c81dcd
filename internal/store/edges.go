package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// ErrEdgeExists is returned when an edge already exists between the pair.
var ErrEdgeExists = fmt.Errorf("edge already exists")

// AddEdge creates a typed relationship between two topics.
// related_to edges are canonicalized to src < dst before insertion so a
// pair can never be stored twice in opposite orders. Returns
// ErrEdgeExists when the (src, dst, type) triple is already present.
func (o ops) AddEdge(ctx context.Context, e *TopicEdge) error {
	if e.Src == e.Dst {
		return fmt.Errorf("cannot create edge from a topic to itself")
	}
	switch e.Type {
	case EdgeBroaderThan, EdgeRelatedTo:
	default:
		return fmt.Errorf("invalid edge type %q", e.Type)
	}
	if e.Type == EdgeRelatedTo && e.Dst < e.Src {
		e.Src, e.Dst = e.Dst, e.Src
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	result, err := o.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO topic_edges (id, graph_id, src, dst, edge_type, similarity)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.GraphID, e.Src, e.Dst, string(e.Type), e.Similarity,
	)
	if err != nil {
		return fmt.Errorf("adding edge: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrEdgeExists
	}
	return nil
}

// ListEdges returns all edges in a graph ordered by id for deterministic
// traversal.
func (o ops) ListEdges(ctx context.Context, graphID string) ([]*TopicEdge, error) {
	rows, err := o.q.QueryContext(ctx,
		`SELECT id, graph_id, src, dst, edge_type, similarity, created_at
		 FROM topic_edges WHERE graph_id = ? ORDER BY id ASC`,
		graphID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing edges: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// EdgesForTopic returns all edges where the topic is src or dst.
func (o ops) EdgesForTopic(ctx context.Context, graphID, topicID string) ([]*TopicEdge, error) {
	rows, err := o.q.QueryContext(ctx,
		`SELECT id, graph_id, src, dst, edge_type, similarity, created_at
		 FROM topic_edges
		 WHERE graph_id = ? AND (src = ? OR dst = ?)
		 ORDER BY id ASC`,
		graphID, topicID, topicID,
	)
	if err != nil {
		return nil, fmt.Errorf("getting edges for topic %s: %w", topicID, err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// DeleteEdge removes an edge by id.
func (o ops) DeleteEdge(ctx context.Context, graphID, edgeID string) error {
	result, err := o.q.ExecContext(ctx,
		`DELETE FROM topic_edges WHERE graph_id = ? AND id = ?`, graphID, edgeID,
	)
	if err != nil {
		return fmt.Errorf("removing edge: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("edge %s not found", edgeID)
	}
	return nil
}

// PruneEdges enforces the per-node degree caps on one topic, deleting
// the lowest-similarity excess in each class. Returns the number of
// edges removed.
func (o ops) PruneEdges(ctx context.Context, graphID, topicID string, caps DegreeCaps) (int, error) {
	edges, err := o.EdgesForTopic(ctx, graphID, topicID)
	if err != nil {
		return 0, err
	}

	var parents, children, related []*TopicEdge
	for _, e := range edges {
		switch {
		case e.Type == EdgeBroaderThan && e.Dst == topicID:
			parents = append(parents, e)
		case e.Type == EdgeBroaderThan && e.Src == topicID:
			children = append(children, e)
		case e.Type == EdgeRelatedTo:
			related = append(related, e)
		}
	}

	removed := 0
	for _, class := range []struct {
		edges []*TopicEdge
		cap   int
	}{
		{parents, caps.MaxParents},
		{children, caps.MaxChildren},
		{related, caps.MaxRelated},
	} {
		if class.cap <= 0 || len(class.edges) <= class.cap {
			continue
		}
		// Keep the strongest; delete from the weak end.
		sort.Slice(class.edges, func(i, j int) bool {
			if class.edges[i].Similarity != class.edges[j].Similarity {
				return class.edges[i].Similarity > class.edges[j].Similarity
			}
			return class.edges[i].ID < class.edges[j].ID
		})
		for _, e := range class.edges[class.cap:] {
			if err := o.DeleteEdge(ctx, graphID, e.ID); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

func scanEdges(rows *sql.Rows) ([]*TopicEdge, error) {
	var edges []*TopicEdge
	for rows.Next() {
		e := &TopicEdge{}
		var created string
		if err := rows.Scan(&e.ID, &e.GraphID, &e.Src, &e.Dst, &e.Type, &e.Similarity, &created); err != nil {
			return nil, fmt.Errorf("scanning edge row: %w", err)
		}
		e.CreatedAt = scanTime(created)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
