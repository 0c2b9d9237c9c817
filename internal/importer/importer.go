// Package importer reads uploaded theme tables and validates them before an
// event and its themes are admitted into the store.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"teammatch/pkg/domain"
)

// Required column names, in template order.
const (
	ColTheme          = "theme"
	ColCompany        = "company"
	ColMaxTeams       = "max_teams"
	ColResponsible    = "responsible"
	ColEmail          = "email"
	ColDescription    = "description"
	ColBackground     = "background"
	ColProblem        = "problem"
	ColExpectedResult = "expected_result"
)

// RequiredColumns lists the columns every theme table must carry.
var RequiredColumns = []string{
	ColTheme, ColCompany, ColMaxTeams, ColResponsible, ColEmail,
	ColDescription, ColBackground, ColProblem, ColExpectedResult,
}

// ErrUnsupportedFormat is returned by Read for extensions other than csv and xlsx.
var ErrUnsupportedFormat = errors.New("unsupported theme table format")

// Table is a header row plus data rows. Rows shorter than the header are
// treated as having empty trailing cells. Lines holds the 1-based source row
// of each data row; when it is absent rows are assumed to follow the header
// without gaps.
type Table struct {
	Columns []string
	Rows    [][]string
	Lines   []int
}

func (t Table) line(i int) int {
	if i < len(t.Lines) {
		return t.Lines[i]
	}
	return i + 2
}

func (t Table) index(col string) int {
	for i, c := range t.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

func (t Table) cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// Validate checks the table and returns human-readable problems. An empty
// result means the whole table can be committed.
func Validate(t Table) []string {
	if len(t.Rows) == 0 {
		return []string{"В файле отсутствуют данные."}
	}
	var problems []string
	for _, col := range RequiredColumns {
		if t.index(col) < 0 {
			problems = append(problems, fmt.Sprintf("Отстуствует заголовок %s.", col))
		}
	}
	if len(problems) > 0 {
		return problems
	}

	themeIdx, maxIdx := t.index(ColTheme), t.index(ColMaxTeams)
	counts := make(map[string]int, len(t.Rows))
	for _, row := range t.Rows {
		counts[domain.NormalizeName(t.cell(row, themeIdx))]++
	}
	for i, row := range t.Rows {
		line := t.line(i)
		if col := t.oversizedColumn(row); col != "" {
			problems = append(problems, fmt.Sprintf("Ошибка в строке %d: значение в столбце %s длиннее %d символов.", line, col, domain.MaxTextLength))
			continue
		}
		raw := t.cell(row, maxIdx)
		if _, ok := parseMaxTeams(raw); !ok {
			problems = append(problems, fmt.Sprintf("Ошибка в строке %d: значение не является числом.\n    %s", line, raw))
			continue
		}
		name := domain.NormalizeName(t.cell(row, themeIdx))
		if name == "" {
			problems = append(problems, fmt.Sprintf("Ошибка в строке %d: отсутствует название темы.", line))
			continue
		}
		if counts[name] != 1 {
			problems = append(problems, fmt.Sprintf("Ошибка в строке %d: найден дубликат.\n    %s", line, t.cell(row, themeIdx)))
		}
	}
	return problems
}

func (t Table) oversizedColumn(row []string) string {
	for _, col := range RequiredColumns {
		if domain.TextTooLong(t.cell(row, t.index(col))) {
			return col
		}
	}
	return ""
}

// parseMaxTeams accepts a non-negative decimal integer made of ASCII digits only.
func parseMaxTeams(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Themes converts a validated table into theme drafts without event keys.
// Rows that would fail validation are skipped.
func Themes(t Table) []domain.Theme {
	idx := make(map[string]int, len(RequiredColumns))
	for _, col := range RequiredColumns {
		idx[col] = t.index(col)
	}
	out := make([]domain.Theme, 0, len(t.Rows))
	for _, row := range t.Rows {
		maxTeams, ok := parseMaxTeams(t.cell(row, idx[ColMaxTeams]))
		if !ok {
			continue
		}
		out = append(out, domain.Theme{
			Name:           domain.NormalizeName(t.cell(row, idx[ColTheme])),
			Company:        t.cell(row, idx[ColCompany]),
			MaxTeams:       maxTeams,
			Responsible:    t.cell(row, idx[ColResponsible]),
			Email:          t.cell(row, idx[ColEmail]),
			Description:    t.cell(row, idx[ColDescription]),
			Background:     t.cell(row, idx[ColBackground]),
			Problem:        t.cell(row, idx[ColProblem]),
			ExpectedResult: t.cell(row, idx[ColExpectedResult]),
		})
	}
	return out
}

// Read picks a reader by file extension.
func Read(name string, r io.Reader) (Table, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return ReadCSV(r)
	case ".xlsx", ".xlsm":
		return ReadXLSX(r)
	default:
		return Table{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// ReadCSV parses a comma separated table with a header row.
func ReadCSV(r io.Reader) (Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	var (
		records [][]string
		lines   []int
	)
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	return fromRecords(records, lines), nil
}

// ReadXLSX parses the first sheet of a workbook.
func ReadXLSX(r io.Reader) (Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Table{}, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	lines := make([]int, len(rows))
	for i := range rows {
		lines[i] = i + 1
	}
	return fromRecords(rows, lines), nil
}

// fromRecords splits off the header and drops blank rows, keeping the source
// line of every remaining row so problems point at the right spreadsheet row.
func fromRecords(records [][]string, lines []int) Table {
	if len(records) == 0 {
		return Table{}
	}
	t := Table{Columns: make([]string, len(records[0]))}
	for i, c := range records[0] {
		t.Columns[i] = strings.TrimSpace(strings.TrimPrefix(c, "\ufeff"))
	}
	for i, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		t.Rows = append(t.Rows, rec)
		t.Lines = append(t.Lines, lines[i+1])
	}
	return t
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
