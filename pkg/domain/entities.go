// Package domain defines the persistent entities, value types, and rule
// evaluation primitives used by teammatch.
package domain

// EntityType identifies the type of record stored in the relational store.
type EntityType string

// Supported entity type identifiers used in Change records, errors and persistence tables.
const (
	// EntityEvent identifies a top-level event record.
	EntityEvent EntityType = "event"
	// EntityTheme identifies a theme owned by an event.
	EntityTheme EntityType = "theme"
	// EntityTeam identifies a team working on a theme.
	EntityTeam   EntityType = "team"
	EntityMember EntityType = "member"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Event is a top-level activity with a per-team member cap. Event names are
// globally unique and the key is derived from the name.
type Event struct {
	Key            string `json:"key"`
	Name           string `json:"name"`
	OrganizerID    string `json:"organizer_id"`
	OrganizerAlias string `json:"organizer_alias"`
	MaxMembers     int    `json:"max_members"`
}

// Theme is a project topic within an event, capped at MaxTeams teams.
type Theme struct {
	Key            string `json:"key"`
	EventKey       string `json:"event_key"`
	Name           string `json:"name"`
	Company        string `json:"company"`
	MaxTeams       int    `json:"max_teams"`
	Responsible    string `json:"responsible"`
	Email          string `json:"email"`
	Description    string `json:"description"`
	Background     string `json:"background"`
	Problem        string `json:"problem"`
	ExpectedResult string `json:"expected_result"`
}

// Team is a group working on one theme within one event.
type Team struct {
	Key         string `json:"key"`
	EventKey    string `json:"event_key"`
	ThemeKey    string `json:"theme_key"`
	Name        string `json:"name"`
	LeaderID    string `json:"leader_id"`
	LeaderAlias string `json:"leader_alias"`
	Open        bool   `json:"open"`
	Needs       string `json:"needs"`
}

// Member is a person's association with a team, pending until accepted.
type Member struct {
	MemberID string `json:"member_id"`
	Alias    string `json:"alias"`
	EventKey string `json:"event_key"`
	TeamKey  string `json:"team_key"`
	Accepted bool   `json:"accepted"`
}

// MemberRef is the composite identity of a Member row.
type MemberRef struct {
	EventKey string
	TeamKey  string
	MemberID string
}

// Ref returns the composite identity of the membership row.
func (m Member) Ref() MemberRef {
	return MemberRef{EventKey: m.EventKey, TeamKey: m.TeamKey, MemberID: m.MemberID}
}

// LeaderInfo carries what a caller needs to notify a team leader about a join request.
type LeaderInfo struct {
	LeaderID    string `json:"leader_id"`
	LeaderAlias string `json:"leader_alias"`
	TeamName    string `json:"team_name"`
}

// Occupancy reports accepted members against the event's per-team cap.
type Occupancy struct {
	Accepted int `json:"accepted"`
	Capacity int `json:"capacity"`
}

// Full reports whether no accepted slot remains.
func (o Occupancy) Full() bool { return o.Accepted >= o.Capacity }

// CascadeSummary counts the rows removed by an event deletion.
type CascadeSummary struct {
	Themes  int `json:"themes"`
	Teams   int `json:"teams"`
	Members int `json:"members"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured during a transaction.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Rule + ": " + v.Message
		}
	}
	return "transaction blocked by rules"
}
