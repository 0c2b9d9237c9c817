// Package postgres persists store snapshots into four PostgreSQL tables.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"teammatch/internal/infra/persistence/memory"
	"teammatch/internal/infra/persistence/tables"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const defaultDriver = "pgx"

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

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
		open BOOLEAN NOT NULL,
		needs_text TEXT NOT NULL,
		team_key TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS members (
		member_id TEXT NOT NULL,
		alias TEXT NOT NULL,
		event_key TEXT NOT NULL,
		team_key TEXT NOT NULL,
		accepted BOOLEAN NOT NULL,
		PRIMARY KEY (event_key, team_key, member_id)
	)`,
}

// Store saves and loads full snapshots against a PostgreSQL database.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open connects to dsn and ensures the four tables exist.
func Open(dsn string) (*Store, error) {
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureSchema(ctx context.Context, db tables.Execer) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Load reads the stored snapshot.
func (s *Store) Load(ctx context.Context) (memory.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tables.LoadSQL(ctx, s.db)
}

// Save truncates the tables and writes the snapshot inside one transaction.
func (s *Store) Save(ctx context.Context, snapshot memory.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, truncateStatement()); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	if err := tables.InsertSQL(ctx, tx, snapshot, tables.Dollar); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func truncateStatement() string {
	names := make([]string, 0, len(tables.All))
	for i := len(tables.All) - 1; i >= 0; i-- {
		names = append(names, tables.All[i].Name)
	}
	return "TRUNCATE TABLE " + strings.Join(names, ", ")
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
