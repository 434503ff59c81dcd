package store

import (
	"fmt"
	"time"
)

// migrate creates all tables if they don't exist and seeds metadata.
func (s *SQLiteStore) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS graphs (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			is_default INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS topics (
			id           TEXT PRIMARY KEY,
			graph_id     TEXT NOT NULL REFERENCES graphs(id) ON DELETE CASCADE,
			label        TEXT NOT NULL,
			uses         INTEGER NOT NULL DEFAULT 1,
			x            REAL,
			y            REAL,
			z            REAL,
			has_position INTEGER NOT NULL DEFAULT 0,
			created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(graph_id, label)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_topics_graph ON topics(graph_id)`,

		`CREATE TABLE IF NOT EXISTS items (
			id         TEXT PRIMARY KEY,
			graph_id   TEXT NOT NULL REFERENCES graphs(id) ON DELETE CASCADE,
			title      TEXT NOT NULL,
			summary    TEXT NOT NULL DEFAULT '',
			link       TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(graph_id, link)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_graph ON items(graph_id)`,

		`CREATE TABLE IF NOT EXISTS item_topics (
			graph_id TEXT NOT NULL,
			item_id  TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
			topic_id TEXT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
			PRIMARY KEY (item_id, topic_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_item_topics_topic ON item_topics(topic_id)`,

		`CREATE TABLE IF NOT EXISTS topic_edges (
			id         TEXT PRIMARY KEY,
			graph_id   TEXT NOT NULL REFERENCES graphs(id) ON DELETE CASCADE,
			src        TEXT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
			dst        TEXT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
			edge_type  TEXT NOT NULL CHECK(edge_type IN ('broader_than','related_to')),
			similarity REAL NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(graph_id, src, dst, edge_type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_graph ON topic_edges(graph_id)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_src ON topic_edges(src)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_dst ON topic_edges(dst)`,

		`CREATE TABLE IF NOT EXISTS vectors (
			graph_id   TEXT NOT NULL,
			owner_type TEXT NOT NULL CHECK(owner_type IN ('item','topic')),
			owner_id   TEXT NOT NULL,
			embedding  BLOB NOT NULL,
			dims       INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (graph_id, owner_type, owner_id)
		)`,

		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT
		)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration %q: %w", truncate(stmt, 80), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}

	return s.seedMeta()
}

// seedMeta initializes the meta table with defaults if not already set.
func (s *SQLiteStore) seedMeta() error {
	defaults := map[string]string{
		"schema_version":       "1",
		"embedding_dimensions": fmt.Sprintf("%d", s.embDims),
		"created_at":           time.Now().UTC().Format(time.RFC3339),
	}

	for k, v := range defaults {
		_, err := s.db.Exec(
			"INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", k, v,
		)
		if err != nil {
			return fmt.Errorf("seeding meta key %q: %w", k, err)
		}
	}
	return nil
}

// truncate shortens a string for error messages.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
