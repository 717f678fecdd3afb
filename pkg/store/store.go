package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id           TEXT NOT NULL,
	agent        TEXT NOT NULL,
	sender       TEXT NOT NULL,
	content      TEXT NOT NULL,
	arrived_at   INTEGER NOT NULL,
	state        TEXT NOT NULL,
	started_at   INTEGER,
	completed_at INTEGER,
	failed       INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (id, agent)
);

CREATE INDEX IF NOT EXISTS idx_messages_agent_state_arrived
	ON messages(agent, state, arrived_at);
`

// Store is the embedded MessageStore: a single SQLite file, write-ahead
// logged, holding one table scoped per-agent by (id, agent).
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the message backlog database at path,
// applies the schema, and configures the connection pool. The pool holds a
// single connection, so reads and writes from every agent are serialized
// through it; SQLite's own locking plus busy_timeout covers any other
// process opening the same file, without the store needing its own lock
// manager.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable foreign_keys: %w", err)
	}

	// A single connection avoids SQLITE_BUSY storms under WAL. The cap
	// applies to every query, readers included: a SELECT waits for the
	// connection like any write does.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	slog.Info("store opened", "path", path)
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database file is still reachable, classifying failures
// per the kernel's error taxonomy.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}

func nullableUnixMilli(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtrFromNull(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.UnixMilli(n.Int64)
	return &t
}
