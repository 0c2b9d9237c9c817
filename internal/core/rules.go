package core

import "teammatch/pkg/domain"

// Built-in rule names.
const (
	RuleEventNameUnique          = "event_name_unique"
	RuleSingleAcceptedMembership = "single_accepted_membership"
	RuleTeamMemberCapacity       = "team_member_capacity"
	RuleThemeTeamCapacity        = "theme_team_capacity"
	RuleTeamNameUnique           = "team_name_unique"
	RuleExclusiveAcceptance      = "exclusive_acceptance"
	RuleReferentialIntegrity     = "referential_integrity"
	RuleLeaderMembership         = "leader_membership"
)

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewEventNameUniqueRule())
	engine.Register(NewSingleAcceptedMembershipRule())
	engine.Register(NewTeamMemberCapacityRule())
	engine.Register(NewThemeTeamCapacityRule())
	engine.Register(NewTeamNameUniqueRule())
	engine.Register(NewExclusiveAcceptanceRule())
	engine.Register(NewReferentialIntegrityRule())
	engine.Register(NewLeaderMembershipRule())
	return engine
}

// touchedEvents collects the event keys referenced by a change set. Rules only
// re-check those events, so rows loaded from an older snapshot cannot block
// unrelated mutations.
func touchedEvents(changes []Change) map[string]struct{} {
	out := make(map[string]struct{})
	add := func(v any) {
		switch e := v.(type) {
		case Event:
			out[e.Key] = struct{}{}
		case Theme:
			out[e.EventKey] = struct{}{}
		case Team:
			out[e.EventKey] = struct{}{}
		case Member:
			out[e.EventKey] = struct{}{}
		}
	}
	for _, c := range changes {
		add(c.Before)
		add(c.After)
	}
	return out
}

func touched(events map[string]struct{}, key string) bool {
	_, ok := events[key]
	return ok
}

func block(rule string, entity EntityType, id, msg string) Violation {
	return Violation{Rule: rule, Severity: domain.SeverityBlock, Message: msg, Entity: entity, EntityID: id}
}
