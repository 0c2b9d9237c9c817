// Package memory provides the in-memory relational store holding events,
// themes, teams and members. Durable backends snapshot it; every mutation
// runs inside a single writer-exclusive transaction.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"teammatch/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Event aliases domain.Event for in-memory persistence operations.
	Event = domain.Event
	// Theme aliases domain.Theme.
	Theme = domain.Theme
	// Team aliases domain.Team.
	Team = domain.Team
	// Member aliases domain.Member.
	Member = domain.Member
	// MemberRef aliases domain.MemberRef, the composite key of a member row.
	MemberRef = domain.MemberRef
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	events  map[string]Event
	themes  map[string]Theme
	teams   map[string]Team
	members map[MemberRef]Member
}

// Snapshot captures a point-in-time copy of the store state. Rows are sorted
// by key so that two snapshots of equal state serialize identically.
type Snapshot struct {
	Events  []Event  `json:"events"`
	Themes  []Theme  `json:"themes"`
	Teams   []Team   `json:"teams"`
	Members []Member `json:"members"`
}

func newMemoryState() memoryState {
	return memoryState{
		events:  make(map[string]Event),
		themes:  make(map[string]Theme),
		teams:   make(map[string]Team),
		members: make(map[MemberRef]Member),
	}
}

func (s memoryState) clone() memoryState {
	cloned := memoryState{
		events:  make(map[string]Event, len(s.events)),
		themes:  make(map[string]Theme, len(s.themes)),
		teams:   make(map[string]Team, len(s.teams)),
		members: make(map[MemberRef]Member, len(s.members)),
	}
	for k, v := range s.events {
		cloned.events[k] = v
	}
	for k, v := range s.themes {
		cloned.themes[k] = v
	}
	for k, v := range s.teams {
		cloned.teams[k] = v
	}
	for k, v := range s.members {
		cloned.members[k] = v
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Events:  make([]Event, 0, len(state.events)),
		Themes:  make([]Theme, 0, len(state.themes)),
		Teams:   make([]Team, 0, len(state.teams)),
		Members: make([]Member, 0, len(state.members)),
	}
	for _, v := range state.events {
		s.Events = append(s.Events, v)
	}
	for _, v := range state.themes {
		s.Themes = append(s.Themes, v)
	}
	for _, v := range state.teams {
		s.Teams = append(s.Teams, v)
	}
	for _, v := range state.members {
		s.Members = append(s.Members, v)
	}
	sort.Slice(s.Events, func(i, j int) bool { return s.Events[i].Key < s.Events[j].Key })
	sort.Slice(s.Themes, func(i, j int) bool { return s.Themes[i].Key < s.Themes[j].Key })
	sort.Slice(s.Teams, func(i, j int) bool { return s.Teams[i].Key < s.Teams[j].Key })
	sortMembers(s.Members)
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for _, v := range s.Events {
		state.events[v.Key] = v
	}
	for _, v := range s.Themes {
		state.themes[v.Key] = v
	}
	for _, v := range s.Teams {
		state.teams[v.Key] = v
	}
	for _, v := range s.Members {
		state.members[v.Ref()] = v
	}
	return state
}

// migrateSnapshot drops rows whose parents are missing so that a hand-edited
// or partially written snapshot cannot load orphans into the store.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	events := make(map[string]struct{}, len(snapshot.Events))
	for _, e := range snapshot.Events {
		events[e.Key] = struct{}{}
	}
	themes := make(map[string]string, len(snapshot.Themes))
	keptThemes := snapshot.Themes[:0:0]
	for _, th := range snapshot.Themes {
		if _, ok := events[th.EventKey]; !ok {
			continue
		}
		themes[th.Key] = th.EventKey
		keptThemes = append(keptThemes, th)
	}
	teams := make(map[string]string, len(snapshot.Teams))
	keptTeams := snapshot.Teams[:0:0]
	for _, tm := range snapshot.Teams {
		if eventKey, ok := themes[tm.ThemeKey]; !ok || eventKey != tm.EventKey {
			continue
		}
		teams[tm.Key] = tm.EventKey
		keptTeams = append(keptTeams, tm)
	}
	keptMembers := snapshot.Members[:0:0]
	for _, m := range snapshot.Members {
		if eventKey, ok := teams[m.TeamKey]; !ok || eventKey != m.EventKey {
			continue
		}
		keptMembers = append(keptMembers, m)
	}
	snapshot.Themes = keptThemes
	snapshot.Teams = keptTeams
	snapshot.Members = keptMembers
	return snapshot
}

func sortMembers(members []Member) {
	sort.Slice(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if a.EventKey != b.EventKey {
			return a.EventKey < b.EventKey
		}
		if a.TeamKey != b.TeamKey {
			return a.TeamKey < b.TeamKey
		}
		return a.MemberID < b.MemberID
	})
}

// Store provides an in-memory transactional store for the team matching domain.
type Store struct {
	mu      sync.RWMutex
	state   memoryState
	engine  *RulesEngine
	version uint64
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ExportVersioned returns the snapshot together with the version it reflects.
func (s *Store) ExportVersioned() (Snapshot, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state), s.version
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
	s.version++
}

// Version returns a counter that increases with every committed transaction.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

type transaction struct {
	state   memoryState
	changes []Change
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The exclusive lock is held for the whole call, so check-then-act sequences
// inside fn are atomic with respect to every other transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	tx := &transaction{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil && len(tx.changes) > 0 {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if len(tx.changes) > 0 {
		s.state = tx.state
		s.version++
	}
	return result, nil
}

// View executes fn against the committed state under the shared lock. The
// view must not be retained after fn returns.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(newTransactionView(&s.state))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// CreateEvent stores a new event; the key is derived from the name when empty.
func (tx *transaction) CreateEvent(e Event) (Event, error) {
	e.Name = domain.NormalizeName(e.Name)
	if e.Name == "" {
		return Event{}, fmt.Errorf("event name required")
	}
	if e.Key == "" {
		e.Key = domain.EventKey(e.Name)
	}
	if _, exists := tx.state.events[e.Key]; exists {
		return Event{}, domain.ConflictError{Reason: domain.ConflictEventNameTaken, Detail: e.Name}
	}
	tx.state.events[e.Key] = e
	tx.recordChange(Change{Entity: domain.EntityEvent, Action: domain.ActionCreate, After: e})
	return e, nil
}

// DeleteEvent removes an event with its members, teams and themes, in that order.
func (tx *transaction) DeleteEvent(key string) (domain.CascadeSummary, error) {
	current, ok := tx.state.events[key]
	if !ok {
		return domain.CascadeSummary{}, domain.NotFoundError{Entity: domain.EntityEvent, Key: key}
	}
	var summary domain.CascadeSummary
	for ref, m := range tx.state.members {
		if ref.EventKey != key {
			continue
		}
		delete(tx.state.members, ref)
		tx.recordChange(Change{Entity: domain.EntityMember, Action: domain.ActionDelete, Before: m})
		summary.Members++
	}
	for k, team := range tx.state.teams {
		if team.EventKey != key {
			continue
		}
		delete(tx.state.teams, k)
		tx.recordChange(Change{Entity: domain.EntityTeam, Action: domain.ActionDelete, Before: team})
		summary.Teams++
	}
	for k, theme := range tx.state.themes {
		if theme.EventKey != key {
			continue
		}
		delete(tx.state.themes, k)
		tx.recordChange(Change{Entity: domain.EntityTheme, Action: domain.ActionDelete, Before: theme})
		summary.Themes++
	}
	delete(tx.state.events, key)
	tx.recordChange(Change{Entity: domain.EntityEvent, Action: domain.ActionDelete, Before: current})
	return summary, nil
}

// CreateTheme stores a theme under an existing event.
func (tx *transaction) CreateTheme(th Theme) (Theme, error) {
	if _, ok := tx.state.events[th.EventKey]; !ok {
		return Theme{}, domain.NotFoundError{Entity: domain.EntityEvent, Key: th.EventKey}
	}
	th.Name = domain.NormalizeName(th.Name)
	if th.Name == "" {
		return Theme{}, fmt.Errorf("theme name required")
	}
	if th.MaxTeams < 0 {
		return Theme{}, fmt.Errorf("theme %q max teams must not be negative", th.Name)
	}
	if th.Key == "" {
		th.Key = domain.ThemeKey(th.EventKey, th.Name)
	}
	if _, exists := tx.state.themes[th.Key]; exists {
		return Theme{}, fmt.Errorf("theme %q already exists", th.Name)
	}
	tx.state.themes[th.Key] = th
	tx.recordChange(Change{Entity: domain.EntityTheme, Action: domain.ActionCreate, After: th})
	return th, nil
}

// CreateTeam stores a team under an existing theme of the same event.
func (tx *transaction) CreateTeam(t Team) (Team, error) {
	theme, ok := tx.state.themes[t.ThemeKey]
	if !ok || theme.EventKey != t.EventKey {
		return Team{}, domain.NotFoundError{Entity: domain.EntityTheme, Key: t.ThemeKey}
	}
	t.Name = domain.NormalizeName(t.Name)
	if t.Name == "" {
		return Team{}, fmt.Errorf("team name required")
	}
	if t.Key == "" {
		t.Key = domain.TeamKey(t.EventKey, t.Name)
	}
	if _, exists := tx.state.teams[t.Key]; exists {
		return Team{}, domain.ConflictError{Reason: domain.ConflictTeamNameTaken, Detail: t.Name}
	}
	tx.state.teams[t.Key] = t
	tx.recordChange(Change{Entity: domain.EntityTeam, Action: domain.ActionCreate, After: t})
	return t, nil
}

// UpdateTeam mutates a team using the provided mutator. Identity and
// ownership fields are restored after the mutator runs.
func (tx *transaction) UpdateTeam(key string, mutator func(*Team) error) (Team, error) {
	current, ok := tx.state.teams[key]
	if !ok {
		return Team{}, domain.NotFoundError{Entity: domain.EntityTeam, Key: key}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Team{}, err
	}
	current.Key = before.Key
	current.EventKey = before.EventKey
	current.ThemeKey = before.ThemeKey
	current.Name = before.Name
	current.LeaderID = before.LeaderID
	tx.state.teams[key] = current
	tx.recordChange(Change{Entity: domain.EntityTeam, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteTeam removes a team and every member row of it, returning the removed rows.
func (tx *transaction) DeleteTeam(key string) ([]Member, error) {
	current, ok := tx.state.teams[key]
	if !ok {
		return nil, domain.NotFoundError{Entity: domain.EntityTeam, Key: key}
	}
	var removed []Member
	for ref, m := range tx.state.members {
		if ref.EventKey != current.EventKey || ref.TeamKey != key {
			continue
		}
		delete(tx.state.members, ref)
		tx.recordChange(Change{Entity: domain.EntityMember, Action: domain.ActionDelete, Before: m})
		removed = append(removed, m)
	}
	delete(tx.state.teams, key)
	tx.recordChange(Change{Entity: domain.EntityTeam, Action: domain.ActionDelete, Before: current})
	sortMembers(removed)
	return removed, nil
}

// CreateMember stores a membership row for an existing team.
func (tx *transaction) CreateMember(m Member) (Member, error) {
	team, ok := tx.state.teams[m.TeamKey]
	if !ok || team.EventKey != m.EventKey {
		return Member{}, domain.NotFoundError{Entity: domain.EntityTeam, Key: m.TeamKey}
	}
	if m.MemberID == "" {
		return Member{}, fmt.Errorf("member id required")
	}
	ref := m.Ref()
	if _, exists := tx.state.members[ref]; exists {
		return Member{}, fmt.Errorf("member %s already in team %s", m.MemberID, m.TeamKey)
	}
	tx.state.members[ref] = m
	tx.recordChange(Change{Entity: domain.EntityMember, Action: domain.ActionCreate, After: m})
	return m, nil
}

// UpdateMember mutates a membership row; its composite identity cannot change.
func (tx *transaction) UpdateMember(ref MemberRef, mutator func(*Member) error) (Member, error) {
	current, ok := tx.state.members[ref]
	if !ok {
		return Member{}, domain.NotFoundError{Entity: domain.EntityMember, Key: ref.MemberID}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Member{}, err
	}
	current.EventKey, current.TeamKey, current.MemberID = ref.EventKey, ref.TeamKey, ref.MemberID
	tx.state.members[ref] = current
	tx.recordChange(Change{Entity: domain.EntityMember, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteMember removes a membership row regardless of its accepted state.
func (tx *transaction) DeleteMember(ref MemberRef) (Member, error) {
	current, ok := tx.state.members[ref]
	if !ok {
		return Member{}, domain.NotFoundError{Entity: domain.EntityMember, Key: ref.MemberID}
	}
	delete(tx.state.members, ref)
	tx.recordChange(Change{Entity: domain.EntityMember, Action: domain.ActionDelete, Before: current})
	return current, nil
}

// ListEvents returns all events ordered by name.
func (v transactionView) ListEvents() []Event {
	out := make([]Event, 0, len(v.state.events))
	for _, e := range v.state.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListThemes returns all themes ordered by event then name.
func (v transactionView) ListThemes() []Theme {
	out := make([]Theme, 0, len(v.state.themes))
	for _, th := range v.state.themes {
		out = append(out, th)
	}
	sortThemes(out)
	return out
}

// ListTeams returns all teams ordered by event then name.
func (v transactionView) ListTeams() []Team {
	out := make([]Team, 0, len(v.state.teams))
	for _, t := range v.state.teams {
		out = append(out, t)
	}
	sortTeams(out)
	return out
}

// ListMembers returns all membership rows.
func (v transactionView) ListMembers() []Member {
	out := make([]Member, 0, len(v.state.members))
	for _, m := range v.state.members {
		out = append(out, m)
	}
	sortMembers(out)
	return out
}

// FindEvent retrieves an event by key.
func (v transactionView) FindEvent(key string) (Event, bool) {
	e, ok := v.state.events[key]
	return e, ok
}

// FindTheme retrieves a theme by key.
func (v transactionView) FindTheme(key string) (Theme, bool) {
	th, ok := v.state.themes[key]
	return th, ok
}

// FindTeam retrieves a team by key.
func (v transactionView) FindTeam(key string) (Team, bool) {
	t, ok := v.state.teams[key]
	return t, ok
}

// FindMember retrieves a membership row by its composite key.
func (v transactionView) FindMember(ref MemberRef) (Member, bool) {
	m, ok := v.state.members[ref]
	return m, ok
}

// ThemesOf returns the themes of one event ordered by name.
func (v transactionView) ThemesOf(eventKey string) []Theme {
	var out []Theme
	for _, th := range v.state.themes {
		if th.EventKey == eventKey {
			out = append(out, th)
		}
	}
	sortThemes(out)
	return out
}

// TeamsOf returns the teams of one event ordered by name.
func (v transactionView) TeamsOf(eventKey string) []Team {
	var out []Team
	for _, t := range v.state.teams {
		if t.EventKey == eventKey {
			out = append(out, t)
		}
	}
	sortTeams(out)
	return out
}

// MembersOf returns every membership row of one team, pending and accepted.
func (v transactionView) MembersOf(eventKey, teamKey string) []Member {
	var out []Member
	for ref, m := range v.state.members {
		if ref.EventKey == eventKey && ref.TeamKey == teamKey {
			out = append(out, m)
		}
	}
	sortMembers(out)
	return out
}

// MembershipsOf returns every membership row of one person across events.
func (v transactionView) MembershipsOf(memberID string) []Member {
	var out []Member
	for ref, m := range v.state.members {
		if ref.MemberID == memberID {
			out = append(out, m)
		}
	}
	sortMembers(out)
	return out
}

func sortThemes(themes []Theme) {
	sort.Slice(themes, func(i, j int) bool {
		if themes[i].EventKey != themes[j].EventKey {
			return themes[i].EventKey < themes[j].EventKey
		}
		return themes[i].Name < themes[j].Name
	})
}

func sortTeams(teams []Team) {
	sort.Slice(teams, func(i, j int) bool {
		if teams[i].EventKey != teams[j].EventKey {
			return teams[i].EventKey < teams[j].EventKey
		}
		return teams[i].Name < teams[j].Name
	})
}

// Read helpers ---------------------------------------------------------------

// ListEvents returns all events from committed state.
func (s *Store) ListEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListEvents()
}

// ListTeams returns all teams from committed state.
func (s *Store) ListTeams() []Team {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListTeams()
}

// ListMembers returns all membership rows from committed state.
func (s *Store) ListMembers() []Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListMembers()
}
