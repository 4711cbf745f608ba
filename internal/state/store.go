package state

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// DefaultRecentLimit is used when Recent is called with a non-positive limit.
const DefaultRecentLimit = 300

// maxOpenConns bounds the pool. SQLite serializes the writers among them;
// the rest serve concurrent readers.
const maxOpenConns = 8

// EventStore is a SQLite-backed append-only event store.
type EventStore struct {
	db   *sql.DB
	path string

	closeOnce sync.Once
	closeErr  error
}

// dsn builds the connection string. Pragmas are passed as DSN parameters so
// every pooled connection gets them, not just the first one.
func dsn(path string) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_synchronous", "FULL")
	params.Set("_busy_timeout", "5000")
	params.Set("_txlock", "immediate")
	return "file:" + path + "?" + params.Encode()
}

// Open creates or opens the event database at path, creating the parent
// directory if needed. Safe to call on an existing database.
func Open(path string) (*EventStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &EventStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *EventStore) Path() string {
	return s.path
}

// Checkpoint folds the write-ahead log back into the main database file and
// truncates it.
func (s *EventStore) Checkpoint(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

// Close checkpoints the WAL and releases the database handle. Later calls
// return the first result and other methods return errors.
func (s *EventStore) Close() error {
	s.closeOnce.Do(func() {
		checkpointErr := s.Checkpoint(context.Background())
		if err := s.db.Close(); err != nil {
			s.closeErr = fmt.Errorf("close database: %w", err)
			return
		}
		s.closeErr = checkpointErr
	})
	return s.closeErr
}

// pragma reads a single pragma value. Used by tests.
func (s *EventStore) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("query %s: %w", name, err)
	}
	return value, nil
}
