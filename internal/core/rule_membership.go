package core

import (
	"context"
	"fmt"

	"teammatch/pkg/domain"
)

// NewSingleAcceptedMembershipRule allows at most one accepted membership per
// member and event.
func NewSingleAcceptedMembershipRule() domain.Rule {
	return singleAcceptedMembershipRule{}
}

type singleAcceptedMembershipRule struct{}

func (singleAcceptedMembershipRule) Name() string { return RuleSingleAcceptedMembership }

func (singleAcceptedMembershipRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	events := touchedEvents(changes)
	type person struct{ event, member string }
	first := make(map[person]string)
	res := domain.Result{}
	for _, m := range view.ListMembers() {
		if !m.Accepted || !touched(events, m.EventKey) {
			continue
		}
		key := person{m.EventKey, m.MemberID}
		if team, ok := first[key]; ok {
			res.Violations = append(res.Violations, block(RuleSingleAcceptedMembership, EntityMember, m.MemberID,
				fmt.Sprintf("member %s accepted in both %s and %s of event %s", m.MemberID, team, m.TeamKey, m.EventKey)))
			continue
		}
		first[key] = m.TeamKey
	}
	return res, nil
}

// NewExclusiveAcceptanceRule rejects pending requests left behind by a member
// already accepted elsewhere in the same event.
func NewExclusiveAcceptanceRule() domain.Rule {
	return exclusiveAcceptanceRule{}
}

type exclusiveAcceptanceRule struct{}

func (exclusiveAcceptanceRule) Name() string { return RuleExclusiveAcceptance }

func (exclusiveAcceptanceRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	events := touchedEvents(changes)
	type person struct{ event, member string }
	accepted := make(map[person]struct{})
	members := view.ListMembers()
	for _, m := range members {
		if m.Accepted && touched(events, m.EventKey) {
			accepted[person{m.EventKey, m.MemberID}] = struct{}{}
		}
	}
	res := domain.Result{}
	for _, m := range members {
		if m.Accepted {
			continue
		}
		if _, ok := accepted[person{m.EventKey, m.MemberID}]; ok {
			res.Violations = append(res.Violations, block(RuleExclusiveAcceptance, EntityMember, m.MemberID,
				fmt.Sprintf("member %s has a pending request to %s while accepted in event %s", m.MemberID, m.TeamKey, m.EventKey)))
		}
	}
	return res, nil
}

// NewLeaderMembershipRule requires every team leader to be an accepted member
// of their own team.
func NewLeaderMembershipRule() domain.Rule {
	return leaderMembershipRule{}
}

type leaderMembershipRule struct{}

func (leaderMembershipRule) Name() string { return RuleLeaderMembership }

func (leaderMembershipRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	events := touchedEvents(changes)
	accepted := make(map[MemberRef]struct{})
	for _, m := range view.ListMembers() {
		if m.Accepted && touched(events, m.EventKey) {
			accepted[m.Ref()] = struct{}{}
		}
	}
	res := domain.Result{}
	for _, t := range view.ListTeams() {
		if !touched(events, t.EventKey) {
			continue
		}
		if _, ok := accepted[MemberRef{EventKey: t.EventKey, TeamKey: t.Key, MemberID: t.LeaderID}]; !ok {
			res.Violations = append(res.Violations, block(RuleLeaderMembership, EntityTeam, t.Key,
				fmt.Sprintf("leader %s of team %s is not an accepted member", t.LeaderID, t.Name)))
		}
	}
	return res, nil
}
