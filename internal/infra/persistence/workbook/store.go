// Package workbook persists store snapshots as an xlsx file with one sheet per
// table: Events, Themes, Teams and Members.
package workbook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"teammatch/internal/infra/persistence/memory"
	"teammatch/internal/infra/persistence/tables"
)

// ContentType is the media type of encoded workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const defaultPath = "teammatch.xlsx"

// ErrCellTooLong is returned by Encode for text the xlsx format cannot hold.
// excelize would otherwise truncate the cell without reporting it.
var ErrCellTooLong = errors.New("cell text exceeds workbook limit")

// Store reads and writes a single workbook file.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a store for path. The file is created on the first save.
func New(path string) *Store {
	if path == "" {
		path = defaultPath
	}
	return &Store{path: path}
}

// Path returns the workbook location.
func (s *Store) Path() string { return s.path }

// Load reads the workbook. A missing file yields an empty snapshot.
func (s *Store) Load(ctx context.Context) (memory.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return memory.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return memory.Snapshot{}, nil
	}
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

// Save writes the snapshot to a temporary file in the same directory, syncs
// it and renames it over the previous workbook.
func (s *Store) Save(ctx context.Context, snapshot memory.Snapshot) (retErr error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create dirs: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".teammatch-*.xlsx")
	if err != nil {
		return fmt.Errorf("create temp workbook: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if err := Encode(tmp, snapshot); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close workbook: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace workbook: %w", err)
	}
	return nil
}

// Close implements the snapshotter contract; the store holds no handles.
func (s *Store) Close() error { return nil }

// Encode writes the snapshot as a workbook to w.
func Encode(w io.Writer, snapshot memory.Snapshot) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, t := range tables.All {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), t.Sheet); err != nil {
				return fmt.Errorf("name sheet %s: %w", t.Sheet, err)
			}
		} else if _, err := f.NewSheet(t.Sheet); err != nil {
			return fmt.Errorf("create sheet %s: %w", t.Sheet, err)
		}
		header := make([]any, len(t.Header))
		for j, h := range t.Header {
			header[j] = h
		}
		if err := writeRow(f, t.Sheet, 1, header); err != nil {
			return err
		}
		for j, row := range t.Rows(snapshot) {
			if err := writeRow(f, t.Sheet, j+2, row); err != nil {
				return err
			}
		}
	}
	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, n int, row []any) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	for i, v := range row {
		if text, ok := v.(string); ok && utf8.RuneCountInString(text) > excelize.TotalCellChars {
			return fmt.Errorf("%w: %s row %d column %d", ErrCellTooLong, sheet, n, i+1)
		}
	}
	if err := f.SetSheetRow(sheet, cell, &row); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, n, err)
	}
	return nil
}

// Decode reads a workbook produced by Encode. Columns are located by header
// name; missing sheets read as empty tables.
func Decode(r io.Reader) (memory.Snapshot, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("read workbook: %w", err)
	}
	defer func() { _ = f.Close() }()
	present := make(map[string]struct{})
	for _, name := range f.GetSheetList() {
		present[name] = struct{}{}
	}
	var snapshot memory.Snapshot
	for _, t := range tables.All {
		if _, ok := present[t.Sheet]; !ok {
			continue
		}
		rows, err := f.GetRows(t.Sheet)
		if err != nil {
			return memory.Snapshot{}, fmt.Errorf("read sheet %s: %w", t.Sheet, err)
		}
		if err := decodeSheet(t, rows, &snapshot); err != nil {
			return memory.Snapshot{}, err
		}
	}
	return snapshot, nil
}

func decodeSheet(t tables.Table, rows [][]string, snapshot *memory.Snapshot) error {
	if len(rows) == 0 {
		return nil
	}
	index := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		index[strings.TrimSpace(h)] = i
	}
	positions := make([]int, len(t.Header))
	for i, h := range t.Header {
		pos, ok := index[h]
		if !ok {
			return fmt.Errorf("sheet %s: missing column %s", t.Sheet, h)
		}
		positions[i] = pos
	}
	for n, row := range rows[1:] {
		if blank(row) {
			continue
		}
		cells := make([]string, len(positions))
		for i, pos := range positions {
			if pos < len(row) {
				cells[i] = row[pos]
			}
		}
		if err := t.Append(snapshot, cells); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", t.Sheet, n+2, err)
		}
	}
	return nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
