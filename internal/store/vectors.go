package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
)

// PutVector stores an embedding for an owner, replacing any previous one.
func (o ops) PutVector(ctx context.Context, v *VectorRow) error {
	if len(v.Embedding) == 0 {
		return fmt.Errorf("empty embedding for %s %s", v.Owner, v.OwnerID)
	}
	blob := float32ToBytes(v.Embedding)
	_, err := o.q.ExecContext(ctx,
		`INSERT INTO vectors (graph_id, owner_type, owner_id, embedding, dims)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(graph_id, owner_type, owner_id)
		 DO UPDATE SET embedding = excluded.embedding, dims = excluded.dims`,
		v.GraphID, string(v.Owner), v.OwnerID, blob, len(v.Embedding),
	)
	if err != nil {
		return fmt.Errorf("storing vector for %s %s: %w", v.Owner, v.OwnerID, err)
	}
	return nil
}

// GetVector retrieves the embedding for an owner, or nil when absent.
func (o ops) GetVector(ctx context.Context, graphID string, owner OwnerType, ownerID string) ([]float32, error) {
	var blob []byte
	err := o.q.QueryRowContext(ctx,
		`SELECT embedding FROM vectors WHERE graph_id = ? AND owner_type = ? AND owner_id = ?`,
		graphID, string(owner), ownerID,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting vector for %s %s: %w", owner, ownerID, err)
	}
	return bytesToFloat32(blob), nil
}

// ListVectors returns all embeddings of one owner type in a graph,
// keyed by owner id.
func (o ops) ListVectors(ctx context.Context, graphID string, owner OwnerType) (map[string][]float32, error) {
	rows, err := o.q.QueryContext(ctx,
		`SELECT owner_id, embedding FROM vectors WHERE graph_id = ? AND owner_type = ?`,
		graphID, string(owner),
	)
	if err != nil {
		return nil, fmt.Errorf("listing %s vectors: %w", owner, err)
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning vector row: %w", err)
		}
		out[id] = bytesToFloat32(blob)
	}
	return out, rows.Err()
}

// VectorDimensions returns the dimensionality of the vectors already
// stored in a graph, or 0 when the graph has none. All vectors in one
// graph share a dimensionality; ingestion enforces it on write.
func (o ops) VectorDimensions(ctx context.Context, graphID string) (int, error) {
	var dims int
	err := o.q.QueryRowContext(ctx,
		`SELECT dims FROM vectors WHERE graph_id = ? LIMIT 1`, graphID,
	).Scan(&dims)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading vector dimensions: %w", err)
	}
	return dims, nil
}

// DeleteVector removes the embedding for an owner. Missing rows are a
// no-op.
func (o ops) DeleteVector(ctx context.Context, graphID string, owner OwnerType, ownerID string) error {
	_, err := o.q.ExecContext(ctx,
		`DELETE FROM vectors WHERE graph_id = ? AND owner_type = ? AND owner_id = ?`,
		graphID, string(owner), ownerID,
	)
	if err != nil {
		return fmt.Errorf("deleting vector for %s %s: %w", owner, ownerID, err)
	}
	return nil
}

// float32ToBytes converts a float32 slice to a byte slice (little-endian).
func float32ToBytes(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// bytesToFloat32 converts a byte slice back to float32 slice (little-endian).
func bytesToFloat32(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
