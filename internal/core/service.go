package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"teammatch/internal/blob"
	"teammatch/internal/importer"
	"teammatch/internal/infra/persistence/memory"
	"teammatch/pkg/domain"
)

// ErrInvalidArgument marks caller input rejected before any state is read.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrNoBlobStore is returned by upload-backed operations when the service
// was built without a blob store.
var ErrNoBlobStore = errors.New("blob store not configured")

// Service exposes the team matching operations over a transactional store.
// Mutations run in RunInTransaction, queries in View.
type Service struct {
	store   PersistentStore
	engine  *RulesEngine
	blobs   blob.Store
	logger  Logger
	clock   Clock
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for durations and audit stamps.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMetricsRecorder installs an operation metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithAuditRecorder installs an audit sink for mutations.
func WithAuditRecorder(a AuditRecorder) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithBlobStore sets the store holding staged theme uploads.
func WithBlobStore(b blob.Store) Option {
	return func(s *Service) { s.blobs = b }
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		engine:  extractRulesEngine(store),
		logger:  noopLogger{},
		clock:   ClockFunc(nil),
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		audit:   noopAudit{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store using the
// given rules engine, or the default rules when engine is nil.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

type rulesEngineProvider interface {
	RulesEngine() *RulesEngine
}

func extractRulesEngine(store PersistentStore) *RulesEngine {
	if p, ok := store.(rulesEngineProvider); ok {
		return p.RulesEngine()
	}
	return nil
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// RulesEngine returns the engine of the underlying store, if it exposes one.
func (s *Service) RulesEngine() *RulesEngine {
	return s.engine
}

// run wraps one operation with tracing, metrics, logging and, for audited
// mutations, an audit entry. fn returns the key of the affected row.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) (string, error)) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := s.clock.Now()
	id, err := fn(ctx)
	duration := s.clock.Now().Sub(start)
	span.End(err)
	if rec, ok := s.metrics.(OutcomeRecorder); ok {
		rec.ObserveOutcome(ctx, op, string(Classify(err)), duration)
	} else {
		s.metrics.Observe(ctx, op, err == nil, duration)
	}

	if err != nil {
		if reason, ok := domain.IsConflict(err); ok {
			s.logger.Debug("operation conflict", "operation", op, "reason", string(reason))
		} else if domain.IsNotFound(err) || errors.Is(err, ErrInvalidArgument) {
			s.logger.Debug("operation rejected", "operation", op, "error", err.Error())
		} else {
			s.logger.Error("operation failed", "operation", op, "error", err.Error(), "duration", duration)
		}
		s.recordAuditError(ctx, op, id, duration, err)
		return err
	}
	s.logger.Debug("operation succeeded", "operation", op, "duration", duration)
	s.recordAuditSuccess(ctx, op, id, duration)
	return nil
}

type auditTarget struct {
	entity EntityType
	action Action
}

var auditOperations = map[string]auditTarget{
	"create_event":      {EntityEvent, domain.ActionCreate},
	"delete_event":      {EntityEvent, domain.ActionDelete},
	"create_team":       {EntityTeam, domain.ActionCreate},
	"toggle_team_open":  {EntityTeam, domain.ActionUpdate},
	"update_team_needs": {EntityTeam, domain.ActionUpdate},
	"delete_team":       {EntityTeam, domain.ActionDelete},
	"request_to_join":   {EntityMember, domain.ActionCreate},
	"accept_member":     {EntityMember, domain.ActionUpdate},
	"remove_member":     {EntityMember, domain.ActionDelete},
}

func (s *Service) recordAuditSuccess(ctx context.Context, op, entityID string, duration time.Duration) {
	s.recordAudit(ctx, op, entityID, duration, nil)
}

func (s *Service) recordAuditError(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	s.recordAudit(ctx, op, entityID, duration, err)
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	target, ok := auditOperations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    target.entity,
		Action:    target.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

func (s *Service) view(ctx context.Context, op string, fn func(TransactionView) error) error {
	return s.run(ctx, op, func(ctx context.Context) (string, error) {
		return "", s.store.View(ctx, fn)
	})
}

// mutate runs fn in a transaction under the service wrapper. key is filled by
// fn for audit purposes.
func (s *Service) mutate(ctx context.Context, op string, fn func(tx Transaction, key *string) error) error {
	return s.run(ctx, op, func(ctx context.Context) (string, error) {
		var key string
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return fn(tx, &key)
		})
		return key, err
	})
}

// IsEventNameUnique reports whether no event carries the given name.
func (s *Service) IsEventNameUnique(ctx context.Context, name string) (bool, error) {
	unique := true
	err := s.view(ctx, "is_event_name_unique", func(v TransactionView) error {
		unique = !eventNameTaken(v, name)
		return nil
	})
	return unique, err
}

func eventNameTaken(v TransactionView, name string) bool {
	name = domain.NormalizeName(name)
	if _, ok := v.FindEvent(domain.EventKey(name)); ok {
		return true
	}
	for _, e := range v.ListEvents() {
		if e.Name == name {
			return true
		}
	}
	return false
}

// CreateEvent validates the theme table and, when it has no problems, inserts
// the event and all of its themes in one transaction. Validation problems are
// returned with a nil error and nothing is committed.
func (s *Service) CreateEvent(ctx context.Context, in NewEvent, table importer.Table) (Event, []string, error) {
	var (
		created  Event
		problems []string
	)
	err := s.mutate(ctx, "create_event", func(tx Transaction, key *string) error {
		if err := validateNewEvent(in); err != nil {
			return err
		}
		if problems = importer.Validate(table); len(problems) > 0 {
			return nil
		}
		if eventNameTaken(tx.Snapshot(), in.Name) {
			return domain.ConflictError{Reason: domain.ConflictEventNameTaken, Detail: domain.NormalizeName(in.Name)}
		}
		var err error
		created, err = tx.CreateEvent(Event{
			Name:           in.Name,
			OrganizerID:    in.OrganizerID,
			OrganizerAlias: in.OrganizerAlias,
			MaxMembers:     in.MaxMembers,
		})
		if err != nil {
			return err
		}
		*key = created.Key
		for _, th := range importer.Themes(table) {
			th.EventKey = created.Key
			if _, err := tx.CreateTheme(th); err != nil {
				return fmt.Errorf("theme %q: %w", th.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return Event{}, nil, err
	}
	return created, problems, nil
}

// checkTextLength rejects text the snapshot backends cannot store intact.
func checkTextLength(values ...string) error {
	if domain.TextTooLong(values...) {
		return fmt.Errorf("%w: text longer than %d characters", ErrInvalidArgument, domain.MaxTextLength)
	}
	return nil
}

func validateNewEvent(in NewEvent) error {
	if domain.NormalizeName(in.Name) == "" {
		return fmt.Errorf("%w: event name required", ErrInvalidArgument)
	}
	if in.OrganizerID == "" {
		return fmt.Errorf("%w: organizer id required", ErrInvalidArgument)
	}
	if in.MaxMembers < 1 {
		return fmt.Errorf("%w: max members must be at least 1", ErrInvalidArgument)
	}
	if err := checkTextLength(in.Name, in.OrganizerID, in.OrganizerAlias); err != nil {
		return err
	}
	return nil
}

// CreateEventFromUpload reads a staged theme table from the blob store and
// creates the event from it. The upload is deleted whatever the outcome.
func (s *Service) CreateEventFromUpload(ctx context.Context, in NewEvent, uploadKey string) (Event, []string, error) {
	if s.blobs == nil {
		return Event{}, nil, ErrNoBlobStore
	}
	defer func() {
		if _, err := s.blobs.Delete(context.WithoutCancel(ctx), uploadKey); err != nil {
			s.logger.Warn("delete upload failed", "key", uploadKey, "error", err.Error())
		}
	}()

	_, rc, err := s.blobs.Get(ctx, uploadKey)
	if err != nil {
		return Event{}, nil, fmt.Errorf("open upload %s: %w", uploadKey, err)
	}
	defer func() { _ = rc.Close() }()
	table, err := importer.Read(uploadKey, rc)
	if err != nil {
		return Event{}, nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return s.CreateEvent(ctx, in, table)
}

// DeleteEvent removes an event and cascades to its members, teams and themes.
func (s *Service) DeleteEvent(ctx context.Context, eventKey string) (CascadeSummary, error) {
	var summary CascadeSummary
	err := s.mutate(ctx, "delete_event", func(tx Transaction, key *string) error {
		*key = eventKey
		var err error
		summary, err = tx.DeleteEvent(eventKey)
		return err
	})
	return summary, err
}

// CreateTeam inserts the team and its leader as an accepted member. All
// preconditions are re-checked inside the transaction.
func (s *Service) CreateTeam(ctx context.Context, in NewTeam) (Team, error) {
	var created Team
	err := s.mutate(ctx, "create_team", func(tx Transaction, key *string) error {
		if domain.NormalizeName(in.Name) == "" || in.LeaderID == "" {
			return fmt.Errorf("%w: team name and leader id required", ErrInvalidArgument)
		}
		if err := checkTextLength(in.Name, in.LeaderID, in.LeaderAlias, in.Needs); err != nil {
			return err
		}
		v := tx.Snapshot()
		if _, err := requireEvent(v, in.EventKey); err != nil {
			return err
		}
		theme, ok := v.FindTheme(in.ThemeKey)
		if !ok || theme.EventKey != in.EventKey {
			return domain.NotFoundError{Entity: EntityTheme, Key: in.ThemeKey}
		}
		if _, joined := acceptedMembership(v, in.LeaderID, in.EventKey); joined {
			return domain.ErrAlreadyJoined
		}
		if teamNameTaken(v, in.EventKey, in.Name) {
			return domain.ConflictError{Reason: domain.ConflictTeamNameTaken, Detail: domain.NormalizeName(in.Name)}
		}
		if teamsOnTheme(v, in.EventKey, theme.Key) >= theme.MaxTeams {
			return domain.ErrThemeFull
		}
		team, err := tx.CreateTeam(Team{
			EventKey:    in.EventKey,
			ThemeKey:    in.ThemeKey,
			Name:        in.Name,
			LeaderID:    in.LeaderID,
			LeaderAlias: in.LeaderAlias,
			Open:        true,
			Needs:       in.Needs,
		})
		if err != nil {
			return err
		}
		*key = team.Key
		if err := dropPendingRequests(tx, in.EventKey, in.LeaderID); err != nil {
			return err
		}
		if _, err := tx.CreateMember(Member{
			MemberID: in.LeaderID,
			Alias:    in.LeaderAlias,
			EventKey: in.EventKey,
			TeamKey:  team.Key,
			Accepted: true,
		}); err != nil {
			return err
		}
		created = team
		return nil
	})
	return created, err
}

// RequestToJoin inserts a pending membership and returns what the caller
// needs to notify the leader. Repeating a pending request returns the same
// leader information without a second row.
func (s *Service) RequestToJoin(ctx context.Context, memberID, alias, eventKey, teamKey string) (LeaderInfo, error) {
	var info LeaderInfo
	err := s.mutate(ctx, "request_to_join", func(tx Transaction, key *string) error {
		*key = teamKey
		if memberID == "" {
			return fmt.Errorf("%w: member id required", ErrInvalidArgument)
		}
		if err := checkTextLength(memberID, alias); err != nil {
			return err
		}
		v := tx.Snapshot()
		team, err := requireTeam(v, eventKey, teamKey)
		if err != nil {
			return err
		}
		event, err := requireEvent(v, eventKey)
		if err != nil {
			return err
		}
		if _, joined := acceptedMembership(v, memberID, eventKey); joined {
			return domain.ErrAlreadyJoined
		}
		if !team.Open || acceptedCount(v, eventKey, teamKey) >= event.MaxMembers {
			return domain.ErrTeamUnavailable
		}
		info = LeaderInfo{LeaderID: team.LeaderID, LeaderAlias: team.LeaderAlias, TeamName: team.Name}
		ref := MemberRef{EventKey: eventKey, TeamKey: teamKey, MemberID: memberID}
		if _, exists := v.FindMember(ref); exists {
			return nil
		}
		_, err = tx.CreateMember(Member{MemberID: memberID, Alias: alias, EventKey: eventKey, TeamKey: teamKey})
		return err
	})
	if err != nil {
		return LeaderInfo{}, err
	}
	return info, nil
}

// AcceptMember promotes a pending request and removes every other pending
// request of the member within the event.
func (s *Service) AcceptMember(ctx context.Context, eventKey, teamKey, memberID string) (Occupancy, error) {
	var occ Occupancy
	err := s.mutate(ctx, "accept_member", func(tx Transaction, key *string) error {
		*key = teamKey
		v := tx.Snapshot()
		if _, err := requireTeam(v, eventKey, teamKey); err != nil {
			return err
		}
		event, err := requireEvent(v, eventKey)
		if err != nil {
			return err
		}
		current := acceptedCount(v, eventKey, teamKey)
		ref := MemberRef{EventKey: eventKey, TeamKey: teamKey, MemberID: memberID}
		row, ok := v.FindMember(ref)
		if ok && row.Accepted {
			occ = Occupancy{Accepted: current, Capacity: event.MaxMembers}
			return nil
		}
		if current >= event.MaxMembers {
			return domain.ErrTeamFull
		}
		if !ok {
			return domain.ErrRequestGone
		}
		if _, joined := acceptedMembership(v, memberID, eventKey); joined {
			return domain.ErrAlreadyJoined
		}
		if _, err := tx.UpdateMember(ref, func(m *Member) error {
			m.Accepted = true
			return nil
		}); err != nil {
			return err
		}
		if err := dropPendingRequests(tx, eventKey, memberID); err != nil {
			return err
		}
		occ = Occupancy{Accepted: current + 1, Capacity: event.MaxMembers}
		return nil
	})
	return occ, err
}

// RemoveMember deletes a membership row, pending or accepted. It serves
// reject, kick and quit. The team leader cannot be removed this way.
func (s *Service) RemoveMember(ctx context.Context, eventKey, teamKey, memberID string) (Member, error) {
	var removed Member
	err := s.mutate(ctx, "remove_member", func(tx Transaction, key *string) error {
		*key = teamKey
		team, err := requireTeam(tx.Snapshot(), eventKey, teamKey)
		if err != nil {
			return err
		}
		if team.LeaderID == memberID {
			return domain.ErrLeaderRemoval
		}
		removed, err = tx.DeleteMember(MemberRef{EventKey: eventKey, TeamKey: teamKey, MemberID: memberID})
		return err
	})
	return removed, err
}

// ToggleTeamOpen flips the recruiting flag and returns the new value.
func (s *Service) ToggleTeamOpen(ctx context.Context, eventKey, teamKey string) (bool, error) {
	var open bool
	err := s.mutate(ctx, "toggle_team_open", func(tx Transaction, key *string) error {
		*key = teamKey
		if _, err := requireTeam(tx.Snapshot(), eventKey, teamKey); err != nil {
			return err
		}
		updated, err := tx.UpdateTeam(teamKey, func(t *Team) error {
			t.Open = !t.Open
			return nil
		})
		open = updated.Open
		return err
	})
	return open, err
}

// UpdateTeamNeeds replaces the free-text description of what the team needs.
func (s *Service) UpdateTeamNeeds(ctx context.Context, eventKey, teamKey, needs string) (Team, error) {
	var updated Team
	err := s.mutate(ctx, "update_team_needs", func(tx Transaction, key *string) error {
		*key = teamKey
		if err := checkTextLength(needs); err != nil {
			return err
		}
		if _, err := requireTeam(tx.Snapshot(), eventKey, teamKey); err != nil {
			return err
		}
		var err error
		updated, err = tx.UpdateTeam(teamKey, func(t *Team) error {
			t.Needs = needs
			return nil
		})
		return err
	})
	return updated, err
}

// DeleteTeam removes the team with all of its membership rows and returns the
// ids of accepted members other than the leader, for notification. The caller
// is responsible for checking that requestingLeaderID leads the team.
func (s *Service) DeleteTeam(ctx context.Context, eventKey, teamKey, requestingLeaderID string) ([]string, error) {
	var notify []string
	err := s.mutate(ctx, "delete_team", func(tx Transaction, key *string) error {
		*key = teamKey
		team, err := requireTeam(tx.Snapshot(), eventKey, teamKey)
		if err != nil {
			return err
		}
		if requestingLeaderID != team.LeaderID {
			s.logger.Warn("team deleted by non-leader", "team", teamKey, "requested_by", requestingLeaderID)
		}
		removed, err := tx.DeleteTeam(teamKey)
		if err != nil {
			return err
		}
		notify = make([]string, 0, len(removed))
		for _, m := range removed {
			if m.Accepted && m.MemberID != team.LeaderID {
				notify = append(notify, m.MemberID)
			}
		}
		return nil
	})
	return notify, err
}

func requireEvent(v TransactionView, key string) (Event, error) {
	e, ok := v.FindEvent(key)
	if !ok {
		return Event{}, domain.NotFoundError{Entity: EntityEvent, Key: key}
	}
	return e, nil
}

func requireTeam(v TransactionView, eventKey, teamKey string) (Team, error) {
	t, ok := v.FindTeam(teamKey)
	if !ok || t.EventKey != eventKey {
		return Team{}, domain.NotFoundError{Entity: EntityTeam, Key: teamKey}
	}
	return t, nil
}

// acceptedMembership returns the accepted row of memberID in the event, if any.
func acceptedMembership(v TransactionView, memberID, eventKey string) (Member, bool) {
	for _, m := range v.MembershipsOf(memberID) {
		if m.EventKey == eventKey && m.Accepted {
			return m, true
		}
	}
	return Member{}, false
}

func acceptedCount(v TransactionView, eventKey, teamKey string) int {
	n := 0
	for _, m := range v.MembersOf(eventKey, teamKey) {
		if m.Accepted {
			n++
		}
	}
	return n
}

func teamsOnTheme(v TransactionView, eventKey, themeKey string) int {
	n := 0
	for _, t := range v.TeamsOf(eventKey) {
		if t.ThemeKey == themeKey {
			n++
		}
	}
	return n
}

func teamNameTaken(v TransactionView, eventKey, name string) bool {
	name = domain.NormalizeName(name)
	if _, ok := v.FindTeam(domain.TeamKey(eventKey, name)); ok {
		return true
	}
	for _, t := range v.TeamsOf(eventKey) {
		if t.Name == name {
			return true
		}
	}
	return false
}

// dropPendingRequests deletes every unaccepted row of memberID in the event.
func dropPendingRequests(tx Transaction, eventKey, memberID string) error {
	for _, m := range tx.Snapshot().MembershipsOf(memberID) {
		if m.EventKey != eventKey || m.Accepted {
			continue
		}
		if _, err := tx.DeleteMember(m.Ref()); err != nil {
			return err
		}
	}
	return nil
}
