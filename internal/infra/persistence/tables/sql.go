package tables

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"teammatch/internal/infra/persistence/memory"
)

// Queryer is the read side of *sql.DB and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execer is the write side of *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Placeholder renders the bind marker of the i-th (1-based) argument.
type Placeholder func(i int) string

// QuestionMark renders sqlite style markers.
func QuestionMark(int) string { return "?" }

// Dollar renders postgres style markers.
func Dollar(i int) string { return fmt.Sprintf("$%d", i) }

// SelectStatement reads every row of t in column order.
func (t Table) SelectStatement() string {
	return fmt.Sprintf("SELECT %s FROM %s", t.ColumnList(), t.Name)
}

// InsertStatement writes one row of t.
func (t Table) InsertStatement(ph Placeholder) string {
	marks := make([]string, len(t.Columns))
	for i := range t.Columns {
		marks[i] = ph(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Name, t.ColumnList(), strings.Join(marks, ", "))
}

// LoadSQL reads the four tables into a snapshot.
func LoadSQL(ctx context.Context, q Queryer) (memory.Snapshot, error) {
	var snapshot memory.Snapshot
	for _, t := range All {
		if err := loadTable(ctx, q, t, &snapshot); err != nil {
			return memory.Snapshot{}, err
		}
	}
	return snapshot, nil
}

func loadTable(ctx context.Context, q Queryer, t Table, snapshot *memory.Snapshot) error {
	rows, err := q.QueryContext(ctx, t.SelectStatement())
	if err != nil {
		return fmt.Errorf("select %s: %w", t.Name, err)
	}
	defer func() { _ = rows.Close() }()
	cells := make([]string, len(t.Columns))
	dest := make([]any, len(t.Columns))
	for i := range cells {
		dest[i] = &cells[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scan %s: %w", t.Name, err)
		}
		if err := t.Append(snapshot, cells); err != nil {
			return fmt.Errorf("decode %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", t.Name, err)
	}
	return nil
}

// InsertSQL writes every row of the snapshot. Callers clear the tables first.
func InsertSQL(ctx context.Context, e Execer, snapshot memory.Snapshot, ph Placeholder) error {
	for _, t := range All {
		stmt := t.InsertStatement(ph)
		for _, row := range t.Rows(snapshot) {
			if _, err := e.ExecContext(ctx, stmt, row...); err != nil {
				return fmt.Errorf("insert %s: %w", t.Name, err)
			}
		}
	}
	return nil
}
