package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"teammatch/internal/importer"
	"teammatch/pkg/domain"
)

type recordedLog struct {
	level string
	msg   string
	args  []any
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []recordedLog
}

func (l *recordingLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, recordedLog{level: level, msg: msg, args: args})
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (r *recordingAudit) Record(_ context.Context, e AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

type recordingMetrics struct {
	mu  sync.Mutex
	ops map[string][]bool
}

func (r *recordingMetrics) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ops == nil {
		r.ops = make(map[string][]bool)
	}
	r.ops[op] = append(r.ops[op], success)
}

type outcomeMetrics struct {
	recordingMetrics
	outcomes map[string][]string
}

func (r *outcomeMetrics) ObserveOutcome(_ context.Context, op, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string][]string)
	}
	r.outcomes[op] = append(r.outcomes[op], outcome)
}

func fixedClock() Clock {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return ClockFunc(func() time.Time { return at })
}

func TestServiceAuditsMutationsOnly(t *testing.T) {
	ctx := context.Background()
	audit := &recordingAudit{}
	svc := NewInMemoryService(nil, WithAuditRecorder(audit), WithClock(fixedClock()))

	event, _, err := svc.CreateEvent(ctx, NewEvent{Name: "E", OrganizerID: "org", MaxMembers: 2}, themeTable(themeRow("X", "1")))
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if _, err := svc.ListEvents(ctx); err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if _, err := svc.DeleteEvent(ctx, "missing"); err == nil {
		t.Fatalf("expected missing event error")
	}

	if len(audit.entries) != 2 {
		t.Fatalf("expected two audit entries, got %+v", audit.entries)
	}
	created := audit.entries[0]
	if created.Operation != "create_event" || created.Entity != EntityEvent || created.Action != domain.ActionCreate ||
		created.EntityID != event.Key || created.Status != AuditStatusSuccess || !created.Timestamp.Equal(fixedClock().Now()) {
		t.Fatalf("unexpected create entry %+v", created)
	}
	failed := audit.entries[1]
	if failed.Operation != "delete_event" || failed.Status != AuditStatusError || failed.EntityID != "missing" || failed.Error == "" {
		t.Fatalf("unexpected delete entry %+v", failed)
	}
}

func TestServiceLogsExpectedOutcomesAtDebug(t *testing.T) {
	ctx := context.Background()
	logger := &recordingLogger{}
	metrics := &recordingMetrics{}
	svc := NewInMemoryService(nil, WithLogger(logger), WithMetricsRecorder(metrics))

	if _, err := svc.GetEvent(ctx, "missing"); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if logger.count("error") != 0 {
		t.Fatalf("not found must not log at error level: %+v", logger.entries)
	}
	if got := metrics.ops["get_event"]; len(got) != 1 || got[0] {
		t.Fatalf("expected one failed get_event observation, got %v", got)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, _, err := svc.CreateEvent(cancelled, NewEvent{Name: "E", OrganizerID: "o", MaxMembers: 1}, themeTable(themeRow("X", "1"))); err == nil {
		t.Fatalf("expected cancelled context error")
	}
	if logger.count("error") != 1 {
		t.Fatalf("expected the unexpected failure at error level: %+v", logger.entries)
	}
}

func TestJSONTracerClassifiesOutcomes(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	f := newFixture(t, 2)
	svc := NewService(f.svc.Store(), WithTracer(tracer))

	alpha, err := svc.CreateTeam(ctx, NewTeam{EventKey: f.event.Key, ThemeKey: f.themeX.Key, Name: "Alpha", LeaderID: "m"})
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if _, err := svc.RequestToJoin(ctx, "m", "@m", f.event.Key, alpha.Key); err == nil {
		t.Fatalf("expected conflict")
	}
	if _, err := svc.GetTeam(ctx, f.event.Key, "missing"); err == nil {
		t.Fatalf("expected not found")
	}
	if _, err := svc.RequestToJoin(ctx, "", "", f.event.Key, alpha.Key); err == nil {
		t.Fatalf("expected invalid argument")
	}

	entries := tracer.Entries()
	if len(entries) != 4 {
		t.Fatalf("expected 4 spans, got %+v", entries)
	}
	want := []struct{ op, status, reason string }{
		{"create_team", spanStatusSuccess, ""},
		{"request_to_join", spanStatusConflict, string(domain.ConflictAlreadyJoined)},
		{"get_team", spanStatusNotFound, ""},
		{"request_to_join", spanStatusError, ""},
	}
	for i, w := range want {
		if entries[i].Operation != w.op || entries[i].Status != w.status || entries[i].Reason != w.reason {
			t.Fatalf("span %d: want %+v, got %+v", i, w, entries[i])
		}
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 json lines, got %d", len(lines))
	}
	var decoded JSONTraceEntry
	if err := json.Unmarshal([]byte(lines[1]), &decoded); err != nil {
		t.Fatalf("decode span: %v", err)
	}
	if decoded.Reason != string(domain.ConflictAlreadyJoined) {
		t.Fatalf("unexpected decoded span %+v", decoded)
	}
}

func TestJSONAuditRecorderWritesLines(t *testing.T) {
	var buf bytes.Buffer
	rec := NewJSONAuditRecorder(&buf)
	rec.Record(context.Background(), AuditEntry{Operation: "create_team", Entity: EntityTeam, Status: AuditStatusSuccess})
	var got AuditEntry
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Operation != "create_team" || got.Status != AuditStatusSuccess {
		t.Fatalf("unexpected entry %+v", got)
	}
}

func TestClockFuncReturnsUTC(t *testing.T) {
	local := time.Date(2026, 5, 1, 10, 0, 0, 0, time.FixedZone("X", 7200))
	if got := ClockFunc(func() time.Time { return local }).Now(); got.Location() != time.UTC || !got.Equal(local) {
		t.Fatalf("unexpected time %v", got)
	}
	if ClockFunc(nil).Now().Location() != time.UTC {
		t.Fatalf("nil clock must report UTC")
	}
}

func TestServiceReportsOutcomeLabels(t *testing.T) {
	ctx := context.Background()
	metrics := &outcomeMetrics{}
	svc := NewInMemoryService(nil, WithMetricsRecorder(metrics))
	in := NewEvent{Name: "Hackathon", OrganizerID: "org", MaxMembers: 2}
	table := importer.Table{Columns: append([]string(nil), importer.RequiredColumns...),
		Rows: [][]string{{"X", "Acme", "1", "Jane", "jane@example.com", "d", "b", "p", "r"}}}

	if _, _, err := svc.CreateEvent(ctx, in, table); err != nil {
		t.Fatalf("create event: %v", err)
	}
	if _, _, err := svc.CreateEvent(ctx, in, table); !errors.Is(err, domain.ErrEventNameTaken) {
		t.Fatalf("expected name taken, got %v", err)
	}
	if _, err := svc.GetEvent(ctx, "missing"); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := svc.CreateEvent(ctx, NewEvent{OrganizerID: "org", MaxMembers: 1}, table); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}

	want := map[string][]string{
		"create_event": {"success", "conflict", "invalid"},
		"get_event":    {"not_found"},
	}
	if !reflect.DeepEqual(metrics.outcomes, want) {
		t.Fatalf("outcomes = %v, want %v", metrics.outcomes, want)
	}
	if len(metrics.ops) != 0 {
		t.Fatalf("Observe must not be called when ObserveOutcome is available: %v", metrics.ops)
	}
	if got := Classify(errors.New("disk full")); got != OutcomeError {
		t.Fatalf("Classify(plain error) = %q", got)
	}
}
