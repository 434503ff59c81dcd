package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// DefaultGraphName is the name given to the auto-created default graph.
const DefaultGraphName = "My Graph"

// CreateGraph creates a new graph partition.
func (o ops) CreateGraph(ctx context.Context, name string, isDefault bool) (*Graph, error) {
	if name == "" {
		return nil, fmt.Errorf("graph name is required")
	}
	g := &Graph{
		ID:        uuid.NewString(),
		Name:      name,
		IsDefault: isDefault,
	}
	_, err := o.q.ExecContext(ctx,
		`INSERT INTO graphs (id, name, is_default) VALUES (?, ?, ?)`,
		g.ID, g.Name, boolToInt(g.IsDefault),
	)
	if err != nil {
		return nil, fmt.Errorf("creating graph %q: %w", name, err)
	}
	return g, nil
}

// GetGraph returns a graph by id, or nil when not found.
func (o ops) GetGraph(ctx context.Context, id string) (*Graph, error) {
	g := &Graph{}
	var isDefault int
	var created string
	err := o.q.QueryRowContext(ctx,
		`SELECT id, name, is_default, created_at FROM graphs WHERE id = ?`, id,
	).Scan(&g.ID, &g.Name, &isDefault, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting graph %s: %w", id, err)
	}
	g.IsDefault = isDefault != 0
	g.CreatedAt = scanTime(created)
	return g, nil
}

// DefaultGraph returns the default graph, creating it on first use.
func (o ops) DefaultGraph(ctx context.Context) (*Graph, error) {
	g := &Graph{}
	var isDefault int
	var created string
	err := o.q.QueryRowContext(ctx,
		`SELECT id, name, is_default, created_at FROM graphs WHERE is_default = 1 LIMIT 1`,
	).Scan(&g.ID, &g.Name, &isDefault, &created)
	if err == nil {
		g.IsDefault = true
		g.CreatedAt = scanTime(created)
		return g, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("looking up default graph: %w", err)
	}
	return o.CreateGraph(ctx, DefaultGraphName, true)
}

// ListGraphs returns all graphs, default first.
func (o ops) ListGraphs(ctx context.Context) ([]*Graph, error) {
	rows, err := o.q.QueryContext(ctx,
		`SELECT id, name, is_default, created_at FROM graphs
		 ORDER BY is_default DESC, created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing graphs: %w", err)
	}
	defer rows.Close()

	var graphs []*Graph
	for rows.Next() {
		g := &Graph{}
		var isDefault int
		var created string
		if err := rows.Scan(&g.ID, &g.Name, &isDefault, &created); err != nil {
			return nil, fmt.Errorf("scanning graph row: %w", err)
		}
		g.IsDefault = isDefault != 0
		g.CreatedAt = scanTime(created)
		graphs = append(graphs, g)
	}
	return graphs, rows.Err()
}

// DeleteGraph removes a graph and everything scoped to it.
func (o ops) DeleteGraph(ctx context.Context, id string) error {
	// vectors carry no FK (owner_id is polymorphic), so clear them first.
	if _, err := o.q.ExecContext(ctx, `DELETE FROM vectors WHERE graph_id = ?`, id); err != nil {
		return fmt.Errorf("deleting vectors for graph %s: %w", id, err)
	}
	res, err := o.q.ExecContext(ctx, `DELETE FROM graphs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting graph %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("graph %s not found", id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
