package core

import (
	"context"
	"sort"

	"teammatch/pkg/domain"
)

// ListEvents returns every event ordered by name.
func (s *Service) ListEvents(ctx context.Context) ([]Event, error) {
	var out []Event
	err := s.view(ctx, "list_events", func(v TransactionView) error {
		out = v.ListEvents()
		return nil
	})
	return out, err
}

// GetEvent returns one event.
func (s *Service) GetEvent(ctx context.Context, eventKey string) (Event, error) {
	var out Event
	err := s.view(ctx, "get_event", func(v TransactionView) error {
		var err error
		out, err = requireEvent(v, eventKey)
		return err
	})
	return out, err
}

// EventsOrganizedBy returns the events created by the organizer.
func (s *Service) EventsOrganizedBy(ctx context.Context, organizerID string) ([]Event, error) {
	var out []Event
	err := s.view(ctx, "events_organized_by", func(v TransactionView) error {
		for _, e := range v.ListEvents() {
			if e.OrganizerID == organizerID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

// EventsJoinedBy returns the events in which the member holds an accepted membership.
func (s *Service) EventsJoinedBy(ctx context.Context, memberID string) ([]Event, error) {
	var out []Event
	err := s.view(ctx, "events_joined_by", func(v TransactionView) error {
		for _, m := range v.MembershipsOf(memberID) {
			if !m.Accepted {
				continue
			}
			if e, ok := v.FindEvent(m.EventKey); ok {
				out = append(out, e)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return nil
	})
	return out, err
}

// ListThemes returns all themes of an event.
func (s *Service) ListThemes(ctx context.Context, eventKey string) ([]Theme, error) {
	var out []Theme
	err := s.view(ctx, "list_themes", func(v TransactionView) error {
		if _, err := requireEvent(v, eventKey); err != nil {
			return err
		}
		out = v.ThemesOf(eventKey)
		return nil
	})
	return out, err
}

// ThemeDetails returns a theme card with the event name and team count.
func (s *Service) ThemeDetails(ctx context.Context, eventKey, themeKey string) (ThemeCard, error) {
	var out ThemeCard
	err := s.view(ctx, "theme_details", func(v TransactionView) error {
		event, err := requireEvent(v, eventKey)
		if err != nil {
			return err
		}
		theme, err := requireTheme(v, eventKey, themeKey)
		if err != nil {
			return err
		}
		out = ThemeCard{Theme: theme, EventName: event.Name, Teams: teamsOnTheme(v, eventKey, themeKey)}
		return nil
	})
	return out, err
}

// ThemesAvailableToLead returns the themes of the event that can still take a
// team. A member already accepted in the event gets ErrAlreadyJoined.
func (s *Service) ThemesAvailableToLead(ctx context.Context, memberID, eventKey string) ([]Theme, error) {
	out := []Theme{}
	err := s.view(ctx, "themes_available_to_lead", func(v TransactionView) error {
		if _, err := requireEvent(v, eventKey); err != nil {
			return err
		}
		if _, joined := acceptedMembership(v, memberID, eventKey); joined {
			return domain.ErrAlreadyJoined
		}
		for _, th := range v.ThemesOf(eventKey) {
			if teamsOnTheme(v, eventKey, th.Key) < th.MaxTeams {
				out = append(out, th)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ThemesAvailableToJoin returns themes having at least one team the member
// could request: open, below the member cap, and without a row for the member.
func (s *Service) ThemesAvailableToJoin(ctx context.Context, memberID, eventKey string) ([]Theme, error) {
	out := []Theme{}
	err := s.view(ctx, "themes_available_to_join", func(v TransactionView) error {
		event, err := requireEvent(v, eventKey)
		if err != nil {
			return err
		}
		if _, joined := acceptedMembership(v, memberID, eventKey); joined {
			return domain.ErrAlreadyJoined
		}
		requested := make(map[string]struct{})
		for _, m := range v.MembershipsOf(memberID) {
			if m.EventKey == eventKey {
				requested[m.TeamKey] = struct{}{}
			}
		}
		joinable := make(map[string]struct{})
		for _, t := range v.TeamsOf(eventKey) {
			if _, ok := requested[t.Key]; ok {
				continue
			}
			if t.Open && acceptedCount(v, eventKey, t.Key) < event.MaxMembers {
				joinable[t.ThemeKey] = struct{}{}
			}
		}
		for _, th := range v.ThemesOf(eventKey) {
			if _, ok := joinable[th.Key]; ok {
				out = append(out, th)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CanLeadTheme reports whether the member may create a team under the theme.
func (s *Service) CanLeadTheme(ctx context.Context, memberID, eventKey, themeKey string) (bool, error) {
	var ok bool
	err := s.view(ctx, "can_lead_theme", func(v TransactionView) error {
		theme, err := requireTheme(v, eventKey, themeKey)
		if err != nil {
			return err
		}
		if _, joined := acceptedMembership(v, memberID, eventKey); joined {
			return nil
		}
		ok = teamsOnTheme(v, eventKey, themeKey) < theme.MaxTeams
		return nil
	})
	return ok, err
}

// TeamsAvailableToJoin returns the open teams of a theme that are below the
// member cap.
func (s *Service) TeamsAvailableToJoin(ctx context.Context, memberID, eventKey, themeKey string) ([]Team, error) {
	out := []Team{}
	err := s.view(ctx, "teams_available_to_join", func(v TransactionView) error {
		event, err := requireEvent(v, eventKey)
		if err != nil {
			return err
		}
		if _, joined := acceptedMembership(v, memberID, eventKey); joined {
			return domain.ErrAlreadyJoined
		}
		for _, t := range v.TeamsOf(eventKey) {
			if t.ThemeKey == themeKey && t.Open && acceptedCount(v, eventKey, t.Key) < event.MaxMembers {
				out = append(out, t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// IsTeamNameUnique reports whether no team of the event carries the name.
func (s *Service) IsTeamNameUnique(ctx context.Context, eventKey, name string) (bool, error) {
	unique := true
	err := s.view(ctx, "is_team_name_unique", func(v TransactionView) error {
		unique = !teamNameTaken(v, eventKey, name)
		return nil
	})
	return unique, err
}

// GetTeam returns one team.
func (s *Service) GetTeam(ctx context.Context, eventKey, teamKey string) (Team, error) {
	var out Team
	err := s.view(ctx, "get_team", func(v TransactionView) error {
		var err error
		out, err = requireTeam(v, eventKey, teamKey)
		return err
	})
	return out, err
}

// TeamOfMember returns the team in which the member is accepted within the event.
func (s *Service) TeamOfMember(ctx context.Context, memberID, eventKey string) (Team, error) {
	var out Team
	err := s.view(ctx, "team_of_member", func(v TransactionView) error {
		m, ok := acceptedMembership(v, memberID, eventKey)
		if !ok {
			return domain.NotFoundError{Entity: EntityMember, Key: memberID}
		}
		var err error
		out, err = requireTeam(v, eventKey, m.TeamKey)
		return err
	})
	return out, err
}

// TeamOccupancy returns accepted members against the event cap.
func (s *Service) TeamOccupancy(ctx context.Context, eventKey, teamKey string) (Occupancy, error) {
	var out Occupancy
	err := s.view(ctx, "team_occupancy", func(v TransactionView) error {
		if _, err := requireTeam(v, eventKey, teamKey); err != nil {
			return err
		}
		event, err := requireEvent(v, eventKey)
		if err != nil {
			return err
		}
		out = Occupancy{Accepted: acceptedCount(v, eventKey, teamKey), Capacity: event.MaxMembers}
		return nil
	})
	return out, err
}

// PendingRequests returns the unaccepted rows of a team.
func (s *Service) PendingRequests(ctx context.Context, eventKey, teamKey string) ([]Member, error) {
	return s.teamMembers(ctx, "pending_requests", eventKey, teamKey, func(_ Team, m Member) bool {
		return !m.Accepted
	})
}

// TeamMembers returns the accepted members of a team other than its leader.
func (s *Service) TeamMembers(ctx context.Context, eventKey, teamKey string) ([]Member, error) {
	return s.teamMembers(ctx, "team_members", eventKey, teamKey, func(t Team, m Member) bool {
		return m.Accepted && m.MemberID != t.LeaderID
	})
}

func (s *Service) teamMembers(ctx context.Context, op, eventKey, teamKey string, keep func(Team, Member) bool) ([]Member, error) {
	out := []Member{}
	err := s.view(ctx, op, func(v TransactionView) error {
		team, err := requireTeam(v, eventKey, teamKey)
		if err != nil {
			return err
		}
		for _, m := range v.MembersOf(eventKey, teamKey) {
			if keep(team, m) {
				out = append(out, m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MemberAlias returns the display alias recorded for a member.
func (s *Service) MemberAlias(ctx context.Context, memberID string) (string, error) {
	var alias string
	err := s.view(ctx, "member_alias", func(v TransactionView) error {
		rows := v.MembershipsOf(memberID)
		if len(rows) == 0 {
			return domain.NotFoundError{Entity: EntityMember, Key: memberID}
		}
		alias = rows[0].Alias
		return nil
	})
	return alias, err
}

// LeaderOf returns the leader id of a team.
func (s *Service) LeaderOf(ctx context.Context, eventKey, teamKey string) (string, error) {
	team, err := s.GetTeam(ctx, eventKey, teamKey)
	if err != nil {
		return "", err
	}
	return team.LeaderID, nil
}

func requireTheme(v TransactionView, eventKey, themeKey string) (Theme, error) {
	th, ok := v.FindTheme(themeKey)
	if !ok || th.EventKey != eventKey {
		return Theme{}, domain.NotFoundError{Entity: EntityTheme, Key: themeKey}
	}
	return th, nil
}
