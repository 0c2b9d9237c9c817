package core

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"teammatch/internal/importer"
	"teammatch/pkg/domain"
)

func themeTable(rows ...[]string) importer.Table {
	return importer.Table{Columns: append([]string(nil), importer.RequiredColumns...), Rows: rows}
}

func themeRow(name, maxTeams string) []string {
	return []string{name, "Acme", maxTeams, "Jane", "jane@example.com", "desc", "bg", "problem", "result"}
}

type fixture struct {
	svc    *Service
	event  Event
	themeX Theme
	themeY Theme
}

func newFixture(t *testing.T, maxMembers int) fixture {
	t.Helper()
	ctx := context.Background()
	svc := NewInMemoryService(nil)
	event, problems, err := svc.CreateEvent(ctx, NewEvent{Name: "Hackathon", OrganizerID: "org", OrganizerAlias: "@org", MaxMembers: maxMembers},
		themeTable(themeRow("X", "2"), themeRow("Y", "1")))
	if err != nil || len(problems) != 0 {
		t.Fatalf("create event: %v %v", err, problems)
	}
	themes, err := svc.ListThemes(ctx, event.Key)
	if err != nil || len(themes) != 2 {
		t.Fatalf("list themes: %v %v", themes, err)
	}
	return fixture{svc: svc, event: event, themeX: themes[0], themeY: themes[1]}
}

func (f fixture) team(t *testing.T, theme Theme, name, leader string) Team {
	t.Helper()
	team, err := f.svc.CreateTeam(context.Background(), NewTeam{
		EventKey: f.event.Key, ThemeKey: theme.Key, Name: name, LeaderID: leader, LeaderAlias: "@" + leader,
	})
	if err != nil {
		t.Fatalf("create team %s: %v", name, err)
	}
	return team
}

func (f fixture) join(t *testing.T, team Team, member string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.svc.RequestToJoin(ctx, member, "@"+member, f.event.Key, team.Key); err != nil {
		t.Fatalf("request %s -> %s: %v", member, team.Name, err)
	}
	if _, err := f.svc.AcceptMember(ctx, f.event.Key, team.Key, member); err != nil {
		t.Fatalf("accept %s -> %s: %v", member, team.Name, err)
	}
}

func TestCreateEventMakesNameTaken(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)
	unique, err := svc.IsEventNameUnique(ctx, "Hackathon")
	if err != nil || !unique {
		t.Fatalf("expected unique name before creation: %v %v", unique, err)
	}
	event, problems, err := svc.CreateEvent(ctx, NewEvent{Name: " Hackathon ", OrganizerID: "org", MaxMembers: 4},
		themeTable(themeRow("X", "2"), themeRow("Y", "3")))
	if err != nil || len(problems) != 0 {
		t.Fatalf("CreateEvent: %v %v", err, problems)
	}
	if event.Name != "Hackathon" || event.Key != domain.EventKey("Hackathon") {
		t.Fatalf("unexpected event %+v", event)
	}
	if unique, _ := svc.IsEventNameUnique(ctx, "Hackathon"); unique {
		t.Fatalf("expected name to be taken")
	}
	if unique, _ := svc.IsEventNameUnique(ctx, "Other"); !unique {
		t.Fatalf("expected unrelated name to be unique")
	}
	themes, _ := svc.ListThemes(ctx, event.Key)
	if len(themes) != 2 || themes[0].Key != domain.ThemeKey(event.Key, "X") || themes[1].MaxTeams != 3 {
		t.Fatalf("unexpected themes %+v", themes)
	}

	_, _, err = svc.CreateEvent(ctx, NewEvent{Name: "Hackathon", OrganizerID: "org2", MaxMembers: 2}, themeTable(themeRow("Z", "1")))
	if reason, ok := domain.IsConflict(err); !ok || reason != domain.ConflictEventNameTaken {
		t.Fatalf("expected event name conflict, got %v", err)
	}
}

func TestCreateEventRejectsInvalidTable(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(nil)
	cols := make([]string, 0, len(importer.RequiredColumns))
	for _, c := range importer.RequiredColumns {
		if c != importer.ColEmail {
			cols = append(cols, c)
		}
	}
	table := importer.Table{Columns: cols, Rows: [][]string{{"X", "Acme", "2", "Jane", "d", "b", "p", "r"}}}
	event, problems, err := svc.CreateEvent(ctx, NewEvent{Name: "Hackathon", OrganizerID: "org", MaxMembers: 4}, table)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if !reflect.DeepEqual(problems, []string{"Отстуствует заголовок email."}) {
		t.Fatalf("unexpected problems %q", problems)
	}
	if event.Key != "" {
		t.Fatalf("expected no event, got %+v", event)
	}
	events, _ := svc.ListEvents(ctx)
	if len(events) != 0 {
		t.Fatalf("expected nothing committed, got %+v", events)
	}
	if v := svc.Store().(interface{ Version() uint64 }).Version(); v != 0 {
		t.Fatalf("expected version 0 after rejected import, got %d", v)
	}

	_, _, err = svc.CreateEvent(ctx, NewEvent{Name: "  ", OrganizerID: "org", MaxMembers: 4}, themeTable(themeRow("X", "1")))
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	_, _, err = svc.CreateEvent(ctx, NewEvent{Name: "E", OrganizerID: "org", MaxMembers: 0}, themeTable(themeRow("X", "1")))
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid cap, got %v", err)
	}
}

func TestRequestToJoinReportsFullTeam(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	alpha := f.team(t, f.themeX, "Alpha", "m")
	f.join(t, alpha, "a")
	f.join(t, alpha, "b")

	occ, err := f.svc.TeamOccupancy(ctx, f.event.Key, alpha.Key)
	if err != nil || occ != (Occupancy{Accepted: 3, Capacity: 3}) || !occ.Full() {
		t.Fatalf("unexpected occupancy %+v %v", occ, err)
	}
	_, err = f.svc.RequestToJoin(ctx, "c", "@c", f.event.Key, alpha.Key)
	if !errors.Is(err, domain.ErrTeamUnavailable) {
		t.Fatalf("expected team unavailable, got %v", err)
	}
	_, err = f.svc.RequestToJoin(ctx, "a", "@a", f.event.Key, alpha.Key)
	if !errors.Is(err, domain.ErrAlreadyJoined) {
		t.Fatalf("expected already joined, got %v", err)
	}
}

func TestRequestToJoinClosedTeamAndIdempotence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	alpha := f.team(t, f.themeX, "Alpha", "m")

	info, err := f.svc.RequestToJoin(ctx, "a", "@a", f.event.Key, alpha.Key)
	if err != nil {
		t.Fatalf("RequestToJoin: %v", err)
	}
	if info != (LeaderInfo{LeaderID: "m", LeaderAlias: "@m", TeamName: "Alpha"}) {
		t.Fatalf("unexpected leader info %+v", info)
	}
	again, err := f.svc.RequestToJoin(ctx, "a", "@a", f.event.Key, alpha.Key)
	if err != nil || again != info {
		t.Fatalf("repeat request: %+v %v", again, err)
	}
	pending, _ := f.svc.PendingRequests(ctx, f.event.Key, alpha.Key)
	if len(pending) != 1 {
		t.Fatalf("expected one pending row, got %+v", pending)
	}

	open, err := f.svc.ToggleTeamOpen(ctx, f.event.Key, alpha.Key)
	if err != nil || open {
		t.Fatalf("toggle closed: %v %v", open, err)
	}
	if _, err := f.svc.RequestToJoin(ctx, "b", "@b", f.event.Key, alpha.Key); !errors.Is(err, domain.ErrTeamUnavailable) {
		t.Fatalf("expected closed team to be unavailable, got %v", err)
	}
	if open, _ := f.svc.ToggleTeamOpen(ctx, f.event.Key, alpha.Key); !open {
		t.Fatalf("expected team reopened")
	}
	if _, err := f.svc.RequestToJoin(ctx, "b", "@b", f.event.Key, "missing"); !domain.IsNotFound(err) {
		t.Fatalf("expected team not found, got %v", err)
	}
}

func TestAcceptMemberDropsOtherPendingRequests(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	alpha := f.team(t, f.themeX, "Alpha", "m")
	beta := f.team(t, f.themeY, "Beta", "n")

	for _, team := range []Team{alpha, beta} {
		if _, err := f.svc.RequestToJoin(ctx, "m2", "@m2", f.event.Key, team.Key); err != nil {
			t.Fatalf("request to %s: %v", team.Name, err)
		}
	}
	occ, err := f.svc.AcceptMember(ctx, f.event.Key, alpha.Key, "m2")
	if err != nil {
		t.Fatalf("AcceptMember: %v", err)
	}
	if occ != (Occupancy{Accepted: 2, Capacity: 4}) {
		t.Fatalf("unexpected occupancy %+v", occ)
	}
	pending, _ := f.svc.PendingRequests(ctx, f.event.Key, beta.Key)
	if len(pending) != 0 {
		t.Fatalf("expected beta request dropped, got %+v", pending)
	}
	team, err := f.svc.TeamOfMember(ctx, "m2", f.event.Key)
	if err != nil || team.Key != alpha.Key {
		t.Fatalf("TeamOfMember: %+v %v", team, err)
	}

	if again, err := f.svc.AcceptMember(ctx, f.event.Key, alpha.Key, "m2"); err != nil || again != occ {
		t.Fatalf("repeat accept: %+v %v", again, err)
	}
	if _, err := f.svc.AcceptMember(ctx, f.event.Key, beta.Key, "m2"); !errors.Is(err, domain.ErrRequestGone) {
		t.Fatalf("expected request gone, got %v", err)
	}
}

func TestAcceptMemberChecksCapacityFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	alpha := f.team(t, f.themeX, "Alpha", "m")
	for _, member := range []string{"a", "b"} {
		if _, err := f.svc.RequestToJoin(ctx, member, "@"+member, f.event.Key, alpha.Key); err != nil {
			t.Fatalf("request %s: %v", member, err)
		}
	}
	if _, err := f.svc.AcceptMember(ctx, f.event.Key, alpha.Key, "a"); err != nil {
		t.Fatalf("accept a: %v", err)
	}
	if _, err := f.svc.AcceptMember(ctx, f.event.Key, alpha.Key, "b"); !errors.Is(err, domain.ErrTeamFull) {
		t.Fatalf("expected team full, got %v", err)
	}
	if _, err := f.svc.AcceptMember(ctx, f.event.Key, alpha.Key, "ghost"); !errors.Is(err, domain.ErrTeamFull) {
		t.Fatalf("expected capacity check before row lookup, got %v", err)
	}
}

func TestDeleteTeamReturnsNonLeaderMembers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	alpha := f.team(t, f.themeX, "Alpha", "m")
	f.join(t, alpha, "a")
	f.join(t, alpha, "b")
	if _, err := f.svc.RequestToJoin(ctx, "p", "@p", f.event.Key, alpha.Key); err != nil {
		t.Fatalf("pending request: %v", err)
	}

	notify, err := f.svc.DeleteTeam(ctx, f.event.Key, alpha.Key, "m")
	if err != nil {
		t.Fatalf("DeleteTeam: %v", err)
	}
	if !reflect.DeepEqual(notify, []string{"a", "b"}) {
		t.Fatalf("unexpected notify list %v", notify)
	}
	if _, err := f.svc.GetTeam(ctx, f.event.Key, alpha.Key); !errors.Is(err, domain.ErrTeamNotFound) {
		t.Fatalf("expected team gone, got %v", err)
	}
	for _, member := range []string{"m", "a", "b", "p"} {
		if _, err := f.svc.TeamOfMember(ctx, member, f.event.Key); !errors.Is(err, domain.ErrMemberNotFound) {
			t.Fatalf("expected %s to have no team, got %v", member, err)
		}
	}
	mem := f.svc.Store().(interface{ ListMembers() []Member })
	if rows := mem.ListMembers(); len(rows) != 0 {
		t.Fatalf("expected no member rows, got %+v", rows)
	}
}

func TestCreateTeamGuards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	f.team(t, f.themeY, "Beta", "n")

	cases := []struct {
		name string
		in   NewTeam
		want error
	}{
		{"theme full", NewTeam{EventKey: f.event.Key, ThemeKey: f.themeY.Key, Name: "Gamma", LeaderID: "g"}, domain.ErrThemeFull},
		{"leader already joined", NewTeam{EventKey: f.event.Key, ThemeKey: f.themeX.Key, Name: "Delta", LeaderID: "n"}, domain.ErrAlreadyJoined},
		{"name taken", NewTeam{EventKey: f.event.Key, ThemeKey: f.themeX.Key, Name: " Beta ", LeaderID: "x"}, domain.ErrTeamNameTaken},
		{"unknown theme", NewTeam{EventKey: f.event.Key, ThemeKey: "nope", Name: "Eps", LeaderID: "x"}, domain.ErrThemeNotFound},
		{"unknown event", NewTeam{EventKey: "nope", ThemeKey: f.themeX.Key, Name: "Eps", LeaderID: "x"}, domain.ErrEventNotFound},
		{"blank name", NewTeam{EventKey: f.event.Key, ThemeKey: f.themeX.Key, Name: " ", LeaderID: "x"}, ErrInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.CreateTeam(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if unique, _ := f.svc.IsTeamNameUnique(ctx, f.event.Key, "Beta"); unique {
		t.Fatalf("expected Beta to be taken")
	}
}

func TestCreateTeamDropsLeaderPendingRequests(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	alpha := f.team(t, f.themeX, "Alpha", "m")
	if _, err := f.svc.RequestToJoin(ctx, "l", "@l", f.event.Key, alpha.Key); err != nil {
		t.Fatalf("request: %v", err)
	}
	beta := f.team(t, f.themeY, "Beta", "l")
	if pending, _ := f.svc.PendingRequests(ctx, f.event.Key, alpha.Key); len(pending) != 0 {
		t.Fatalf("expected leader request dropped, got %+v", pending)
	}
	if !beta.Open {
		t.Fatalf("new teams start open")
	}
	leader, err := f.svc.LeaderOf(ctx, f.event.Key, beta.Key)
	if err != nil || leader != "l" {
		t.Fatalf("LeaderOf: %s %v", leader, err)
	}
}

func TestRemoveMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	alpha := f.team(t, f.themeX, "Alpha", "m")
	f.join(t, alpha, "a")

	if _, err := f.svc.RemoveMember(ctx, f.event.Key, alpha.Key, "m"); !errors.Is(err, domain.ErrLeaderRemoval) {
		t.Fatalf("expected leader removal conflict, got %v", err)
	}
	removed, err := f.svc.RemoveMember(ctx, f.event.Key, alpha.Key, "a")
	if err != nil || removed.MemberID != "a" || !removed.Accepted {
		t.Fatalf("RemoveMember: %+v %v", removed, err)
	}
	if _, err := f.svc.RemoveMember(ctx, f.event.Key, alpha.Key, "a"); !errors.Is(err, domain.ErrMemberNotFound) {
		t.Fatalf("expected member not found, got %v", err)
	}
	members, _ := f.svc.TeamMembers(ctx, f.event.Key, alpha.Key)
	if len(members) != 0 {
		t.Fatalf("expected no non-leader members, got %+v", members)
	}
}

func TestUpdateTeamNeeds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	alpha := f.team(t, f.themeX, "Alpha", "m")
	updated, err := f.svc.UpdateTeamNeeds(ctx, f.event.Key, alpha.Key, "designer")
	if err != nil || updated.Needs != "designer" || updated.Name != "Alpha" {
		t.Fatalf("UpdateTeamNeeds: %+v %v", updated, err)
	}
	if _, err := f.svc.UpdateTeamNeeds(ctx, "other", alpha.Key, "x"); !errors.Is(err, domain.ErrTeamNotFound) {
		t.Fatalf("expected team not found for wrong event, got %v", err)
	}
}

func TestOversizedTextIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	alpha := f.team(t, f.themeX, "Alpha", "m")
	long := strings.Repeat("x", domain.MaxTextLength+1)

	if _, err := f.svc.UpdateTeamNeeds(ctx, f.event.Key, alpha.Key, long); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("UpdateTeamNeeds: expected ErrInvalidArgument, got %v", err)
	}
	team, err := f.svc.GetTeam(ctx, f.event.Key, alpha.Key)
	if err != nil || team.Needs != "" {
		t.Fatalf("needs must stay unchanged: %+v %v", team, err)
	}
	if _, err := f.svc.CreateTeam(ctx, NewTeam{EventKey: f.event.Key, ThemeKey: f.themeY.Key, Name: "Beta", LeaderID: "n", Needs: long}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("CreateTeam: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := f.svc.RequestToJoin(ctx, "p", long, f.event.Key, alpha.Key); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("RequestToJoin: expected ErrInvalidArgument, got %v", err)
	}
	if _, _, err := f.svc.CreateEvent(ctx, NewEvent{Name: long, OrganizerID: "org", MaxMembers: 2}, themeTable(themeRow("Z", "1"))); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("CreateEvent: expected ErrInvalidArgument, got %v", err)
	}
	pending, err := f.svc.PendingRequests(ctx, f.event.Key, alpha.Key)
	if err != nil || len(pending) != 0 {
		t.Fatalf("rejected request must not be stored: %+v %v", pending, err)
	}
}

func TestDeleteEventCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	alpha := f.team(t, f.themeX, "Alpha", "m")
	f.join(t, alpha, "a")
	if _, err := f.svc.RequestToJoin(ctx, "p", "@p", f.event.Key, alpha.Key); err != nil {
		t.Fatalf("request: %v", err)
	}

	summary, err := f.svc.DeleteEvent(ctx, f.event.Key)
	if err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	if summary != (CascadeSummary{Themes: 2, Teams: 1, Members: 3}) {
		t.Fatalf("unexpected summary %+v", summary)
	}
	snap := f.svc.Store().(interface {
		ListTeams() []Team
		ListMembers() []Member
	})
	if len(snap.ListTeams()) != 0 || len(snap.ListMembers()) != 0 {
		t.Fatalf("expected cascade to remove rows")
	}
	if _, err := f.svc.ListThemes(ctx, f.event.Key); !errors.Is(err, domain.ErrEventNotFound) {
		t.Fatalf("expected event not found, got %v", err)
	}
	if _, err := f.svc.DeleteEvent(ctx, f.event.Key); !errors.Is(err, domain.ErrEventNotFound) {
		t.Fatalf("expected second delete to miss, got %v", err)
	}
	if unique, _ := f.svc.IsEventNameUnique(ctx, "Hackathon"); !unique {
		t.Fatalf("expected name free after delete")
	}
}
