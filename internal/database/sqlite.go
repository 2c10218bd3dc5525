package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"toaster/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Schema is the full schema as a single SQL script. Tests apply it
// directly instead of running migrations.
//
//go:embed migrations/files/000001_init.up.sql
var Schema string

// DBTX is the subset of database/sql used by the query methods. Both
// *sql.DB and *sql.Tx satisfy it, so every query runs equally inside
// or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds all metadata queries against a DBTX.
type Queries struct {
	db DBTX
}

// New creates a Queries instance bound to the given DBTX.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Store is the metadata store. It owns the connection and exposes the
// query methods plus transaction control.
type Store struct {
	*Queries
	db   *sql.DB
	path string
}

// NewStore opens the SQLite database at path and wraps it in a Store.
// path can be a file path or ":memory:" for an in-memory database.
func NewStore(path string) (*Store, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &Store{Queries: New(db), db: db, path: path}, nil
}

// NewStoreFromDB wraps an existing database connection. The caller is
// responsible for ensuring the connection is properly configured.
func NewStoreFromDB(db *sql.DB) *Store {
	return &Store{Queries: New(db), db: db, path: ""}
}

// OpenConnection opens and configures a SQLite database connection with
// appropriate PRAGMAs.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection only: a :memory: DSN gives every pooled connection
	// its own empty database, and SQLite takes a single writer anyway.
	db.SetMaxOpenConns(1)

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(New(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *Store) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *Store) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// MigrateUp brings the database schema to the latest version.
func (s *Store) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *Store) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
