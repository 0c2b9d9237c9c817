package domain

import "context"

// Transaction exposes the mutations a persistence implementation must support
// within an atomic scope. Deletes cascade to dependent rows.
type Transaction interface {
	Snapshot() TransactionView
	CreateEvent(Event) (Event, error)
	DeleteEvent(key string) (CascadeSummary, error)
	CreateTheme(Theme) (Theme, error)
	CreateTeam(Team) (Team, error)
	UpdateTeam(key string, mutator func(*Team) error) (Team, error)
	DeleteTeam(key string) ([]Member, error)
	CreateMember(Member) (Member, error)
	UpdateMember(ref MemberRef, mutator func(*Member) error) (Member, error)
	DeleteMember(ref MemberRef) (Member, error)
}

// TransactionView provides read-only access to snapshot data for queries and rules.
type TransactionView interface {
	RuleView
	ThemesOf(eventKey string) []Theme
	TeamsOf(eventKey string) []Team
	MembersOf(eventKey, teamKey string) []Member
	MembershipsOf(memberID string) []Member
	FindMember(ref MemberRef) (Member, bool)
}

// PersistentStore is the minimal abstraction the service layer depends on.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
}
