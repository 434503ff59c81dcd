package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// CreateTopic inserts a new topic. The id is assigned when empty and
// uses defaults to 1. Duplicate labels within a graph are rejected by
// the UNIQUE constraint.
func (o ops) CreateTopic(ctx context.Context, t *Topic) error {
	if t.GraphID == "" {
		return fmt.Errorf("topic graph id is required")
	}
	if t.Label == "" {
		return fmt.Errorf("topic label is required")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Uses <= 0 {
		t.Uses = 1
	}
	_, err := o.q.ExecContext(ctx,
		`INSERT INTO topics (id, graph_id, label, uses, has_position) VALUES (?, ?, ?, ?, 0)`,
		t.ID, t.GraphID, t.Label, t.Uses,
	)
	if err != nil {
		return fmt.Errorf("creating topic %q: %w", t.Label, err)
	}
	return nil
}

// GetTopic returns a topic by id, or nil when not found.
func (o ops) GetTopic(ctx context.Context, graphID, id string) (*Topic, error) {
	row := o.q.QueryRowContext(ctx,
		`SELECT id, graph_id, label, uses, x, y, z, has_position, created_at
		 FROM topics WHERE graph_id = ? AND id = ?`,
		graphID, id,
	)
	return scanTopic(row)
}

// GetTopicByLabel resolves a topic by its exact label, or nil when absent.
func (o ops) GetTopicByLabel(ctx context.Context, graphID, label string) (*Topic, error) {
	row := o.q.QueryRowContext(ctx,
		`SELECT id, graph_id, label, uses, x, y, z, has_position, created_at
		 FROM topics WHERE graph_id = ? AND label = ?`,
		graphID, label,
	)
	return scanTopic(row)
}

// ListTopics returns all topics in a graph ordered by id so callers get
// a deterministic traversal order.
func (o ops) ListTopics(ctx context.Context, graphID string) ([]*Topic, error) {
	rows, err := o.q.QueryContext(ctx,
		`SELECT id, graph_id, label, uses, x, y, z, has_position, created_at
		 FROM topics WHERE graph_id = ? ORDER BY id ASC`,
		graphID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing topics: %w", err)
	}
	defer rows.Close()

	var topics []*Topic
	for rows.Next() {
		t, err := scanTopicRows(rows)
		if err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// IncrementUses bumps the item reference count for a topic.
func (o ops) IncrementUses(ctx context.Context, graphID, topicID string) error {
	res, err := o.q.ExecContext(ctx,
		`UPDATE topics SET uses = uses + 1 WHERE graph_id = ? AND id = ?`,
		graphID, topicID,
	)
	if err != nil {
		return fmt.Errorf("incrementing uses for topic %s: %w", topicID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("topic %s not found", topicID)
	}
	return nil
}

// DecrementUses lowers the reference count, never below zero.
func (o ops) DecrementUses(ctx context.Context, graphID, topicID string) error {
	_, err := o.q.ExecContext(ctx,
		`UPDATE topics SET uses = MAX(uses - 1, 0) WHERE graph_id = ? AND id = ?`,
		graphID, topicID,
	)
	if err != nil {
		return fmt.Errorf("decrementing uses for topic %s: %w", topicID, err)
	}
	return nil
}

// UpdatePositions overwrites the 3D coordinates for the given topics.
// Only the projector writes positions.
func (o ops) UpdatePositions(ctx context.Context, graphID string, positions map[string][3]float64) error {
	for topicID, p := range positions {
		_, err := o.q.ExecContext(ctx,
			`UPDATE topics SET x = ?, y = ?, z = ?, has_position = 1
			 WHERE graph_id = ? AND id = ?`,
			p[0], p[1], p[2], graphID, topicID,
		)
		if err != nil {
			return fmt.Errorf("updating position for topic %s: %w", topicID, err)
		}
	}
	return nil
}

// DeleteTopic removes a topic, its incident edges, its item
// associations, and its stored vector.
func (o ops) DeleteTopic(ctx context.Context, graphID, topicID string) error {
	if err := o.DeleteVector(ctx, graphID, OwnerTopic, topicID); err != nil {
		return err
	}
	// item_topics and topic_edges rows cascade via foreign keys.
	res, err := o.q.ExecContext(ctx,
		`DELETE FROM topics WHERE graph_id = ? AND id = ?`, graphID, topicID,
	)
	if err != nil {
		return fmt.Errorf("deleting topic %s: %w", topicID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("topic %s not found", topicID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTopic(row *sql.Row) (*Topic, error) {
	t, err := scanTopicFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func scanTopicRows(rows *sql.Rows) (*Topic, error) {
	return scanTopicFrom(rows)
}

func scanTopicFrom(sc rowScanner) (*Topic, error) {
	t := &Topic{}
	var x, y, z sql.NullFloat64
	var hasPos int
	var created string
	err := sc.Scan(&t.ID, &t.GraphID, &t.Label, &t.Uses, &x, &y, &z, &hasPos, &created)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning topic row: %w", err)
	}
	t.X, t.Y, t.Z = x.Float64, y.Float64, z.Float64
	t.HasPosition = hasPos != 0
	t.CreatedAt = scanTime(created)
	return t, nil
}
