package core

import (
	"context"
	"fmt"

	"teammatch/pkg/domain"
)

// NewTeamMemberCapacityRule keeps accepted members per team within the event cap.
func NewTeamMemberCapacityRule() domain.Rule {
	return teamMemberCapacityRule{}
}

type teamMemberCapacityRule struct{}

func (teamMemberCapacityRule) Name() string { return RuleTeamMemberCapacity }

func (teamMemberCapacityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	events := touchedEvents(changes)
	accepted := make(map[string]int)
	for _, m := range view.ListMembers() {
		if m.Accepted && touched(events, m.EventKey) {
			accepted[m.TeamKey]++
		}
	}

	res := domain.Result{}
	for _, team := range view.ListTeams() {
		if !touched(events, team.EventKey) {
			continue
		}
		event, ok := view.FindEvent(team.EventKey)
		if !ok {
			continue
		}
		if count := accepted[team.Key]; count > event.MaxMembers {
			res.Violations = append(res.Violations, block(RuleTeamMemberCapacity, EntityTeam, team.Key,
				fmt.Sprintf("team %s (%s) over capacity: %d/%d members", team.Name, team.Key, count, event.MaxMembers)))
		}
	}
	return res, nil
}

// NewThemeTeamCapacityRule keeps the team count per theme within its cap.
func NewThemeTeamCapacityRule() domain.Rule {
	return themeTeamCapacityRule{}
}

type themeTeamCapacityRule struct{}

func (themeTeamCapacityRule) Name() string { return RuleThemeTeamCapacity }

func (themeTeamCapacityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	events := touchedEvents(changes)
	teams := make(map[string]int)
	for _, t := range view.ListTeams() {
		if touched(events, t.EventKey) {
			teams[t.ThemeKey]++
		}
	}

	res := domain.Result{}
	for _, theme := range view.ListThemes() {
		if !touched(events, theme.EventKey) {
			continue
		}
		if count := teams[theme.Key]; count > theme.MaxTeams {
			res.Violations = append(res.Violations, block(RuleThemeTeamCapacity, EntityTheme, theme.Key,
				fmt.Sprintf("theme %s (%s) over capacity: %d/%d teams", theme.Name, theme.Key, count, theme.MaxTeams)))
		}
	}
	return res, nil
}
