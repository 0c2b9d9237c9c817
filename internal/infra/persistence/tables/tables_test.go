package tables

import (
	"fmt"
	"reflect"
	"testing"

	"teammatch/internal/infra/persistence/memory"
	"teammatch/pkg/domain"
)

func sampleSnapshot() memory.Snapshot {
	event := domain.Event{Key: domain.EventKey("Hackathon"), Name: "Hackathon", OrganizerID: "42", OrganizerAlias: "@org", MaxMembers: 4}
	theme := domain.Theme{Key: domain.ThemeKey(event.Key, "AI"), EventKey: event.Key, Name: "AI", Company: "Acme", MaxTeams: 2,
		Responsible: "Jane", Email: "jane@example.com", Description: "d", Background: "b", Problem: "p", ExpectedResult: "r"}
	team := domain.Team{Key: domain.TeamKey(event.Key, "Alpha"), EventKey: event.Key, ThemeKey: theme.Key, Name: "Alpha",
		LeaderID: "7", LeaderAlias: "@lead", Open: true, Needs: "designer"}
	return memory.Snapshot{
		Events:  []domain.Event{event},
		Themes:  []domain.Theme{theme},
		Teams:   []domain.Team{team},
		Members: []domain.Member{{MemberID: "7", Alias: "@lead", EventKey: event.Key, TeamKey: team.Key, Accepted: true}},
	}
}

func TestColumnOrderMatchesHeaders(t *testing.T) {
	for _, tbl := range All {
		if len(tbl.Header) != len(tbl.Columns) {
			t.Fatalf("%s: header/column length mismatch", tbl.Name)
		}
	}
	if got := Events.ColumnList(); got != "name, organizer_id, organizer_alias, max_members, event_key" {
		t.Fatalf("unexpected events columns %q", got)
	}
}

func TestRowsRoundTripThroughStrings(t *testing.T) {
	in := sampleSnapshot()
	var out memory.Snapshot
	for _, tbl := range All {
		for _, row := range tbl.Rows(in) {
			if len(row) != len(tbl.Columns) {
				t.Fatalf("%s: row width %d, want %d", tbl.Name, len(row), len(tbl.Columns))
			}
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = fmt.Sprint(v)
			}
			if err := tbl.Append(&out, cells); err != nil {
				t.Fatalf("%s: append: %v", tbl.Name, err)
			}
		}
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestAppendParsesSpreadsheetValues(t *testing.T) {
	var s memory.Snapshot
	if err := Events.Append(&s, []string{"E", "1", "@o", "4.0", "k"}); err != nil {
		t.Fatalf("float integer: %v", err)
	}
	if err := Members.Append(&s, []string{"m", "a", "e", "t", "TRUE"}); err != nil {
		t.Fatalf("bool: %v", err)
	}
	if err := Teams.Append(&s, []string{"e", "th", "T", "l"}); err != nil {
		t.Fatalf("short row: %v", err)
	}
	if s.Events[0].MaxMembers != 4 || !s.Members[0].Accepted || s.Teams[0].Open {
		t.Fatalf("unexpected decode %+v", s)
	}
	if err := Themes.Append(&s, []string{"x", "c", "many"}); err == nil {
		t.Fatalf("expected integer error")
	}
	if err := Members.Append(&s, []string{"m", "a", "e", "t", "maybe"}); err == nil {
		t.Fatalf("expected boolean error")
	}
}
