package core

import "teammatch/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Event              = domain.Event
	Theme              = domain.Theme
	Team               = domain.Team
	Member             = domain.Member
	MemberRef          = domain.MemberRef
	LeaderInfo         = domain.LeaderInfo
	Occupancy          = domain.Occupancy
	CascadeSummary     = domain.CascadeSummary
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	RulesEngine        = domain.RulesEngine
	Rule               = domain.Rule
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityEvent  = domain.EntityEvent
	EntityTheme  = domain.EntityTheme
	EntityTeam   = domain.EntityTeam
	EntityMember = domain.EntityMember
)

// NewEvent carries the organizer-supplied attributes of an event to create.
type NewEvent struct {
	Name           string `json:"name" binding:"required"`
	OrganizerID    string `json:"organizer_id" binding:"required"`
	OrganizerAlias string `json:"organizer_alias"`
	MaxMembers     int    `json:"max_members" binding:"required,min=1"`
}

// NewTeam carries the attributes of a team to create together with its leader.
type NewTeam struct {
	EventKey    string `json:"event_key" binding:"required"`
	ThemeKey    string `json:"theme_key" binding:"required"`
	Name        string `json:"name" binding:"required"`
	LeaderID    string `json:"leader_id" binding:"required"`
	LeaderAlias string `json:"leader_alias"`
	Needs       string `json:"needs"`
}

// ThemeCard is a theme together with its event name and current team count.
type ThemeCard struct {
	Theme
	EventName string `json:"event_name"`
	Teams     int    `json:"teams"`
}
