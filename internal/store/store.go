// Package store provides the SQLite storage layer for skein.
//
// All graph data lives in a single SQLite database file, including:
// - Graphs (partition boundaries; every other row is scoped by graph_id)
// - Topics and their typed edges
// - Items (ingested page summaries) and item-topic associations
// - Embedding vectors for topics and items
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.skein/skein.db"

// DefaultEmbeddingDimensions is the default embedding vector size (MiniLM).
const DefaultEmbeddingDimensions = 384

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath              string
	EmbeddingDimensions int
}

// StoreStats holds observability statistics about the store.
type StoreStats struct {
	GraphCount  int64
	TopicCount  int64
	ItemCount   int64
	EdgeCount   int64
	VectorCount int64
	DBSizeBytes int64
}

// Store defines the core storage interface.
type Store interface {
	Mutator

	// WithTx runs fn inside a single transaction. All mutations issued
	// through the provided Tx commit atomically or not at all.
	WithTx(ctx context.Context, fn func(tx *Tx) error) error

	Stats(ctx context.Context) (*StoreStats, error)
	Close() error
}

// Mutator is the set of operations available both on the store directly
// (autocommit) and inside a transaction.
type Mutator interface {
	// Graphs
	CreateGraph(ctx context.Context, name string, isDefault bool) (*Graph, error)
	GetGraph(ctx context.Context, id string) (*Graph, error)
	DefaultGraph(ctx context.Context) (*Graph, error)
	ListGraphs(ctx context.Context) ([]*Graph, error)
	DeleteGraph(ctx context.Context, id string) error

	// Topics
	CreateTopic(ctx context.Context, t *Topic) error
	GetTopic(ctx context.Context, graphID, id string) (*Topic, error)
	GetTopicByLabel(ctx context.Context, graphID, label string) (*Topic, error)
	ListTopics(ctx context.Context, graphID string) ([]*Topic, error)
	IncrementUses(ctx context.Context, graphID, topicID string) error
	DecrementUses(ctx context.Context, graphID, topicID string) error
	UpdatePositions(ctx context.Context, graphID string, positions map[string][3]float64) error
	DeleteTopic(ctx context.Context, graphID, topicID string) error

	// Items
	CreateItem(ctx context.Context, it *Item) error
	GetItem(ctx context.Context, graphID, id string) (*Item, error)
	FindItemByLink(ctx context.Context, graphID, link string) (*Item, error)
	ListItems(ctx context.Context, graphID string, limit int) ([]*Item, error)
	DeleteItem(ctx context.Context, graphID, itemID string) error
	AddItemTopic(ctx context.Context, graphID, itemID, topicID string) error
	TopicIDsForItem(ctx context.Context, graphID, itemID string) ([]string, error)

	// Edges
	AddEdge(ctx context.Context, e *TopicEdge) error
	ListEdges(ctx context.Context, graphID string) ([]*TopicEdge, error)
	EdgesForTopic(ctx context.Context, graphID, topicID string) ([]*TopicEdge, error)
	DeleteEdge(ctx context.Context, graphID, edgeID string) error
	PruneEdges(ctx context.Context, graphID, topicID string, caps DegreeCaps) (int, error)

	// Vectors
	PutVector(ctx context.Context, v *VectorRow) error
	GetVector(ctx context.Context, graphID string, owner OwnerType, ownerID string) ([]float32, error)
	ListVectors(ctx context.Context, graphID string, owner OwnerType) (map[string][]float32, error)
	VectorDimensions(ctx context.Context, graphID string) (int, error)
	DeleteVector(ctx context.Context, graphID string, owner OwnerType, ownerID string) error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	ops
	db      *sql.DB
	dbPath  string
	embDims int
}

// Tx exposes the store's operations bound to one open transaction.
type Tx struct {
	ops
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}
	if cfg.EmbeddingDimensions <= 0 {
		cfg.EmbeddingDimensions = DefaultEmbeddingDimensions
	}

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// WAL keeps readers unblocked during ingestion; foreign keys drive
	// the item_topics/vectors cascades.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		ops:     ops{q: db},
		db:      db,
		dbPath:  cfg.DBPath,
		embDims: cfg.EmbeddingDimensions,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// WithTx runs fn inside a transaction, committing on nil error and
// rolling back otherwise. The Tx must not be used after fn returns.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{ops{q: sqlTx}}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Stats returns row counts and database size.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	st := &StoreStats{}
	counts := []struct {
		query string
		dst   *int64
	}{
		{"SELECT COUNT(*) FROM graphs", &st.GraphCount},
		{"SELECT COUNT(*) FROM topics", &st.TopicCount},
		{"SELECT COUNT(*) FROM items", &st.ItemCount},
		{"SELECT COUNT(*) FROM topic_edges", &st.EdgeCount},
		{"SELECT COUNT(*) FROM vectors", &st.VectorCount},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("collecting stats: %w", err)
		}
	}
	if s.dbPath != ":memory:" {
		if fi, err := os.Stat(s.dbPath); err == nil {
			st.DBSizeBytes = fi.Size()
		}
	}
	return st, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

// dbtx abstracts *sql.DB and *sql.Tx so the same operation code serves
// autocommit calls and transactional calls.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ops carries every graph/topic/item/edge/vector operation; it is
// embedded by both SQLiteStore and Tx.
type ops struct {
	q dbtx
}

// scanTime parses the SQLite datetime formats we write.
func scanTime(raw string) time.Time {
	if t, err := time.Parse("2006-01-02 15:04:05", raw); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return time.Time{}
}
