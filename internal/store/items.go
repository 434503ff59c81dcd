package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// CreateItem inserts a new item. The id is assigned when empty.
// Duplicate links within a graph are rejected by the UNIQUE constraint;
// callers that want skip-on-duplicate semantics check FindItemByLink first.
func (o ops) CreateItem(ctx context.Context, it *Item) error {
	if it.GraphID == "" {
		return fmt.Errorf("item graph id is required")
	}
	if it.Link == "" {
		return fmt.Errorf("item link is required")
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	_, err := o.q.ExecContext(ctx,
		`INSERT INTO items (id, graph_id, title, summary, link) VALUES (?, ?, ?, ?, ?)`,
		it.ID, it.GraphID, it.Title, it.Summary, it.Link,
	)
	if err != nil {
		return fmt.Errorf("creating item %q: %w", it.Link, err)
	}
	return nil
}

// GetItem returns an item by id, or nil when not found.
func (o ops) GetItem(ctx context.Context, graphID, id string) (*Item, error) {
	row := o.q.QueryRowContext(ctx,
		`SELECT id, graph_id, title, summary, link, created_at
		 FROM items WHERE graph_id = ? AND id = ?`,
		graphID, id,
	)
	return scanItem(row)
}

// FindItemByLink returns the item with the given link, or nil. The link
// is the ingestion dedup key.
func (o ops) FindItemByLink(ctx context.Context, graphID, link string) (*Item, error) {
	row := o.q.QueryRowContext(ctx,
		`SELECT id, graph_id, title, summary, link, created_at
		 FROM items WHERE graph_id = ? AND link = ?`,
		graphID, link,
	)
	return scanItem(row)
}

// ListItems returns items in a graph, newest first. A non-positive
// limit returns all items.
func (o ops) ListItems(ctx context.Context, graphID string, limit int) ([]*Item, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded
	}
	rows, err := o.q.QueryContext(ctx,
		`SELECT id, graph_id, title, summary, link, created_at
		 FROM items WHERE graph_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		graphID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		it := &Item{}
		var created string
		if err := rows.Scan(&it.ID, &it.GraphID, &it.Title, &it.Summary, &it.Link, &created); err != nil {
			return nil, fmt.Errorf("scanning item row: %w", err)
		}
		it.CreatedAt = scanTime(created)
		items = append(items, it)
	}
	return items, rows.Err()
}

// DeleteItem removes an item, decrements uses on its topics, and drops
// its associations and vector.
func (o ops) DeleteItem(ctx context.Context, graphID, itemID string) error {
	topicIDs, err := o.TopicIDsForItem(ctx, graphID, itemID)
	if err != nil {
		return err
	}
	for _, topicID := range topicIDs {
		if err := o.DecrementUses(ctx, graphID, topicID); err != nil {
			return err
		}
	}
	if err := o.DeleteVector(ctx, graphID, OwnerItem, itemID); err != nil {
		return err
	}
	// item_topics rows cascade via foreign key.
	res, err := o.q.ExecContext(ctx,
		`DELETE FROM items WHERE graph_id = ? AND id = ?`, graphID, itemID,
	)
	if err != nil {
		return fmt.Errorf("deleting item %s: %w", itemID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("item %s not found", itemID)
	}
	return nil
}

// AddItemTopic associates an item with a topic. Duplicate pairs are a
// no-op.
func (o ops) AddItemTopic(ctx context.Context, graphID, itemID, topicID string) error {
	_, err := o.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO item_topics (graph_id, item_id, topic_id) VALUES (?, ?, ?)`,
		graphID, itemID, topicID,
	)
	if err != nil {
		return fmt.Errorf("associating item %s with topic %s: %w", itemID, topicID, err)
	}
	return nil
}

// TopicIDsForItem returns the topic ids associated with an item.
func (o ops) TopicIDsForItem(ctx context.Context, graphID, itemID string) ([]string, error) {
	rows, err := o.q.QueryContext(ctx,
		`SELECT topic_id FROM item_topics WHERE graph_id = ? AND item_id = ? ORDER BY topic_id`,
		graphID, itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing topics for item %s: %w", itemID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning item topic row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanItem(row *sql.Row) (*Item, error) {
	it := &Item{}
	var created string
	err := row.Scan(&it.ID, &it.GraphID, &it.Title, &it.Summary, &it.Link, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning item row: %w", err)
	}
	it.CreatedAt = scanTime(created)
	return it, nil
}
