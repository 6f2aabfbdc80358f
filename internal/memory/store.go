// Package memory persists agent memories in an embedded sqlite database,
// one per memory directory (global $AISH_HOME/memory plus an optional
// project-local .aish/memory).
package memory

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const dbFilename = "memories.db"

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	topic TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_topic ON memories(topic);
`

// Store wraps one memory database.
type Store struct {
	db *sql.DB
}

// Open creates the directory and database as needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir %s: %w", dir, err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, dbFilename))
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init memory schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Entry is one stored memory.
type Entry struct {
	ID        int64  `json:"id"`
	Topic     string `json:"topic,omitempty"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// Save stores a memory and returns its id.
func (s *Store) Save(topic, content string) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO memories (topic, content, created_at) VALUES (?, ?, ?)`,
		topic, content, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("save memory: %w", err)
	}
	return res.LastInsertId()
}

// Search returns up to limit memories whose topic or content contains query
// (case-insensitive), newest first. An empty query returns the newest
// memories unconditionally.
func (s *Store) Search(query string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows *sql.Rows
	var err error
	if strings.TrimSpace(query) == "" {
		rows, err = s.db.Query(
			`SELECT id, topic, content, created_at FROM memories ORDER BY id DESC LIMIT ?`, limit)
	} else {
		like := "%" + strings.ToLower(query) + "%"
		rows, err = s.db.Query(
			`SELECT id, topic, content, created_at FROM memories
			 WHERE lower(topic) LIKE ? OR lower(content) LIKE ?
			 ORDER BY id DESC LIMIT ?`, like, like, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Topic, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
