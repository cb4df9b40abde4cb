package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DBPath returns the default path of the state database
func DBPath() string {
	return filepath.Join("data", "vessel-forecast.db")
}

// Store persists the controller state and a log of forecast runs
type Store struct {
	db *sql.DB
}

// Open opens (creating when needed) the database at path and ensures its schema
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database, e.g. an in-memory one in tests
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	// one connection: sqlite serialises writers anyway and :memory: is per connection
	db.SetMaxOpenConns(1)

	if err := EnsureSchema(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the state and run tables when missing
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS vessel_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			latitude REAL,
			longitude REAL,
			position_time TEXT,
			heading REAL,
			speed REAL,
			engaged INTEGER NOT NULL DEFAULT 0,
			last_update TEXT,
			status TEXT NOT NULL DEFAULT '',
			saved_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS forecast_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			finished_at TEXT NOT NULL,
			status TEXT NOT NULL,
			latitude REAL,
			longitude REAL,
			engaged INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_forecast_runs_finished ON forecast_runs(finished_at);
	`)
	if err != nil {
		return fmt.Errorf("creating state tables: %w", err)
	}

	return nil
}
