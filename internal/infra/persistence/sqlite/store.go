// Package sqlite persists store snapshots into four SQLite tables.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"teammatch/internal/infra/persistence/memory"
	"teammatch/internal/infra/persistence/tables"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const defaultPath = "teammatch.db"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		name TEXT NOT NULL,
		organizer_id TEXT NOT NULL,
		organizer_alias TEXT NOT NULL,
		max_members INTEGER NOT NULL,
		event_key TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS themes (
		theme TEXT NOT NULL,
		company TEXT NOT NULL,
		max_teams INTEGER NOT NULL,
		responsible TEXT NOT NULL,
		email TEXT NOT NULL,
		description TEXT NOT NULL,
		background TEXT NOT NULL,
		problem TEXT NOT NULL,
		expected_result TEXT NOT NULL,
		event_key TEXT NOT NULL,
		theme_key TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS teams (
		event_key TEXT NOT NULL,
		theme_key TEXT NOT NULL,
		team_name TEXT NOT NULL,
		leader_id TEXT NOT NULL,
		leader_alias TEXT NOT NULL,
		open INTEGER NOT NULL,
		needs_text TEXT NOT NULL,
		team_key TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS members (
		member_id TEXT NOT NULL,
		alias TEXT NOT NULL,
		event_key TEXT NOT NULL,
		team_key TEXT NOT NULL,
		accepted INTEGER NOT NULL,
		PRIMARY KEY (event_key, team_key, member_id)
	)`,
}

// Store saves and loads full snapshots. Every save replaces the table contents
// inside one transaction.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// Open creates the database file and schema when missing.
func Open(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection serialises writers on the file
	db.SetMaxOpenConns(1)
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &Store{db: db, path: path}, nil
}

// Load reads the stored snapshot. An empty database yields an empty snapshot.
func (s *Store) Load(ctx context.Context) (memory.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tables.LoadSQL(ctx, s.db)
}

// Save replaces the stored snapshot.
func (s *Store) Save(ctx context.Context, snapshot memory.Snapshot) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for i := len(tables.All) - 1; i >= 0; i-- {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+tables.All[i].Name); err != nil {
			return fmt.Errorf("clear %s: %w", tables.All[i].Name, err)
		}
	}
	if err := tables.InsertSQL(ctx, tx, snapshot, tables.QuestionMark); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
