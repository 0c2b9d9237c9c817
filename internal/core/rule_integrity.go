package core

import (
	"context"
	"fmt"

	"teammatch/pkg/domain"
)

// NewReferentialIntegrityRule rejects themes, teams and members whose parent
// rows are missing or belong to another event.
func NewReferentialIntegrityRule() domain.Rule {
	return referentialIntegrityRule{}
}

type referentialIntegrityRule struct{}

func (referentialIntegrityRule) Name() string { return RuleReferentialIntegrity }

func (referentialIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	events := touchedEvents(changes)
	res := domain.Result{}
	orphan := func(entity EntityType, id, format string, args ...any) {
		res.Violations = append(res.Violations, block(RuleReferentialIntegrity, entity, id, fmt.Sprintf(format, args...)))
	}

	for _, th := range view.ListThemes() {
		if !touched(events, th.EventKey) {
			continue
		}
		if _, ok := view.FindEvent(th.EventKey); !ok {
			orphan(EntityTheme, th.Key, "theme %s references missing event %s", th.Name, th.EventKey)
		}
	}
	for _, t := range view.ListTeams() {
		if !touched(events, t.EventKey) {
			continue
		}
		if _, ok := view.FindEvent(t.EventKey); !ok {
			orphan(EntityTeam, t.Key, "team %s references missing event %s", t.Name, t.EventKey)
			continue
		}
		if th, ok := view.FindTheme(t.ThemeKey); !ok || th.EventKey != t.EventKey {
			orphan(EntityTeam, t.Key, "team %s references theme %s outside event %s", t.Name, t.ThemeKey, t.EventKey)
		}
	}
	for _, m := range view.ListMembers() {
		if !touched(events, m.EventKey) {
			continue
		}
		if t, ok := view.FindTeam(m.TeamKey); !ok || t.EventKey != m.EventKey {
			orphan(EntityMember, m.MemberID, "member %s references team %s outside event %s", m.MemberID, m.TeamKey, m.EventKey)
		}
	}
	return res, nil
}
