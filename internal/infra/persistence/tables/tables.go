// Package tables defines the four persisted tables, their fixed column order,
// and the row codecs shared by the workbook and SQL snapshot backends.
package tables

import (
	"fmt"
	"strconv"
	"strings"

	"teammatch/internal/infra/persistence/memory"
	"teammatch/pkg/domain"
)

// Table describes one persisted table. Header holds the workbook column
// titles and Columns the SQL column names, both in the same order.
type Table struct {
	Name    string
	Sheet   string
	Header  []string
	Columns []string
}

var (
	Events = Table{
		Name:    "events",
		Sheet:   "Events",
		Header:  []string{"name", "organizerId", "organizerAlias", "maxMembers", "eventKey"},
		Columns: []string{"name", "organizer_id", "organizer_alias", "max_members", "event_key"},
	}
	Themes = Table{
		Name:  "themes",
		Sheet: "Themes",
		Header: []string{"theme", "company", "maxTeams", "responsible", "email", "description",
			"background", "problem", "expectedResult", "eventKey", "themeKey"},
		Columns: []string{"theme", "company", "max_teams", "responsible", "email", "description",
			"background", "problem", "expected_result", "event_key", "theme_key"},
	}
	Teams = Table{
		Name:    "teams",
		Sheet:   "Teams",
		Header:  []string{"eventKey", "themeKey", "teamName", "leaderId", "leaderAlias", "open", "needsText", "teamKey"},
		Columns: []string{"event_key", "theme_key", "team_name", "leader_id", "leader_alias", "open", "needs_text", "team_key"},
	}
	Members = Table{
		Name:    "members",
		Sheet:   "Members",
		Header:  []string{"memberId", "alias", "eventKey", "teamKey", "accepted"},
		Columns: []string{"member_id", "alias", "event_key", "team_key", "accepted"},
	}
)

// All lists the tables in load order: parents before children.
var All = []Table{Events, Themes, Teams, Members}

// ColumnList returns the SQL columns joined by commas.
func (t Table) ColumnList() string {
	return strings.Join(t.Columns, ", ")
}

// Rows returns the typed cell values of every row of t in snapshot order.
func (t Table) Rows(s memory.Snapshot) [][]any {
	switch t.Name {
	case Events.Name:
		out := make([][]any, 0, len(s.Events))
		for _, e := range s.Events {
			out = append(out, []any{e.Name, e.OrganizerID, e.OrganizerAlias, e.MaxMembers, e.Key})
		}
		return out
	case Themes.Name:
		out := make([][]any, 0, len(s.Themes))
		for _, th := range s.Themes {
			out = append(out, []any{th.Name, th.Company, th.MaxTeams, th.Responsible, th.Email, th.Description,
				th.Background, th.Problem, th.ExpectedResult, th.EventKey, th.Key})
		}
		return out
	case Teams.Name:
		out := make([][]any, 0, len(s.Teams))
		for _, tm := range s.Teams {
			out = append(out, []any{tm.EventKey, tm.ThemeKey, tm.Name, tm.LeaderID, tm.LeaderAlias, tm.Open, tm.Needs, tm.Key})
		}
		return out
	case Members.Name:
		out := make([][]any, 0, len(s.Members))
		for _, m := range s.Members {
			out = append(out, []any{m.MemberID, m.Alias, m.EventKey, m.TeamKey, m.Accepted})
		}
		return out
	}
	return nil
}

// Append decodes one row of string cells, in column order, into the snapshot.
func (t Table) Append(s *memory.Snapshot, row []string) error {
	if len(row) < len(t.Columns) {
		padded := make([]string, len(t.Columns))
		copy(padded, row)
		row = padded
	}
	switch t.Name {
	case Events.Name:
		maxMembers, err := parseInt(row[3])
		if err != nil {
			return fmt.Errorf("%s.%s: %w", t.Name, t.Columns[3], err)
		}
		s.Events = append(s.Events, domain.Event{
			Name: row[0], OrganizerID: row[1], OrganizerAlias: row[2], MaxMembers: maxMembers, Key: row[4],
		})
	case Themes.Name:
		maxTeams, err := parseInt(row[2])
		if err != nil {
			return fmt.Errorf("%s.%s: %w", t.Name, t.Columns[2], err)
		}
		s.Themes = append(s.Themes, domain.Theme{
			Name: row[0], Company: row[1], MaxTeams: maxTeams, Responsible: row[3], Email: row[4],
			Description: row[5], Background: row[6], Problem: row[7], ExpectedResult: row[8],
			EventKey: row[9], Key: row[10],
		})
	case Teams.Name:
		open, err := parseBool(row[5])
		if err != nil {
			return fmt.Errorf("%s.%s: %w", t.Name, t.Columns[5], err)
		}
		s.Teams = append(s.Teams, domain.Team{
			EventKey: row[0], ThemeKey: row[1], Name: row[2], LeaderID: row[3], LeaderAlias: row[4],
			Open: open, Needs: row[6], Key: row[7],
		})
	case Members.Name:
		accepted, err := parseBool(row[4])
		if err != nil {
			return fmt.Errorf("%s.%s: %w", t.Name, t.Columns[4], err)
		}
		s.Members = append(s.Members, domain.Member{
			MemberID: row[0], Alias: row[1], EventKey: row[2], TeamKey: row[3], Accepted: accepted,
		})
	default:
		return fmt.Errorf("unknown table %s", t.Name)
	}
	return nil
}

func parseInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		// spreadsheet tools may round-trip integers as floats
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, fmt.Errorf("not an integer: %q", raw)
		}
		return int(f), nil
	}
	return n, nil
}

func parseBool(raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("not a boolean: %q", raw)
	}
	return b, nil
}
