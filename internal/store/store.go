package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/recsync/internal/ids"
)

//go:embed schema.sql
var schemaSQL string

// connPragmas are applied to every new database handle.
var connPragmas = []struct{ name, value string }{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"foreign_keys", "ON"},
}

// migrations upgrade databases created by older releases. Entry i moves
// user_version from i to i+1; schema.sql always describes the newest
// layout, so fresh databases only get their version stamped.
var migrations = []string{
	`CREATE INDEX IF NOT EXISTS idx_record_data_lookup ON record_data(project_id, field, value)`,
}

// Store is the SQLite-backed data store: project schemas, record data,
// attachments, the audit log, the notification outbox and settings history.
type Store struct {
	db  *sql.DB
	ids ids.Generator
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator sets the generator for file document ids.
// Defaults to UUIDv7.
func WithIDGenerator(g ids.Generator) Option {
	return func(s *Store) { s.ids = g }
}

// Open creates or opens the database at path and brings its schema up to
// date. ":memory:" opens a private in-memory database.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// One connection: SQLite has a single writer, and an in-memory
	// database exists per connection.
	db.SetMaxOpenConns(1)

	if err := prepare(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	s := &Store{db: db, ids: ids.UUIDv7{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func prepare(db *sql.DB) error {
	for _, p := range connPragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("pragma %s: %w", p.name, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for v := version; v < len(migrations); v++ {
		if _, err := db.Exec(migrations[v]); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", len(migrations))); err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// withTx runs fn inside a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
