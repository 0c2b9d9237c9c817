package core

import (
	"context"
	"fmt"

	"teammatch/pkg/domain"
)

// NewEventNameUniqueRule rejects two events sharing a normalized name.
func NewEventNameUniqueRule() domain.Rule {
	return eventNameUniqueRule{}
}

type eventNameUniqueRule struct{}

func (eventNameUniqueRule) Name() string { return RuleEventNameUnique }

func (eventNameUniqueRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	events := touchedEvents(changes)
	seen := make(map[string]string)
	res := domain.Result{}
	for _, e := range view.ListEvents() {
		name := domain.NormalizeName(e.Name)
		if other, ok := seen[name]; ok && (touched(events, e.Key) || touched(events, other)) {
			res.Violations = append(res.Violations, block(RuleEventNameUnique, EntityEvent, e.Key,
				fmt.Sprintf("event name %q already used by %s", name, other)))
			continue
		}
		seen[name] = e.Key
	}
	return res, nil
}

// NewTeamNameUniqueRule rejects two teams of one event sharing a normalized name.
func NewTeamNameUniqueRule() domain.Rule {
	return teamNameUniqueRule{}
}

type teamNameUniqueRule struct{}

func (teamNameUniqueRule) Name() string { return RuleTeamNameUnique }

func (teamNameUniqueRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	events := touchedEvents(changes)
	type scopedName struct{ event, name string }
	seen := make(map[scopedName]string)
	res := domain.Result{}
	for _, t := range view.ListTeams() {
		if !touched(events, t.EventKey) {
			continue
		}
		key := scopedName{t.EventKey, domain.NormalizeName(t.Name)}
		if other, ok := seen[key]; ok {
			res.Violations = append(res.Violations, block(RuleTeamNameUnique, EntityTeam, t.Key,
				fmt.Sprintf("team name %q already used by %s in event %s", key.name, other, t.EventKey)))
			continue
		}
		seen[key] = t.Key
	}
	return res, nil
}
