package core

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"teammatch/pkg/domain"
)

// Span statuses written by JSONTraceTracer. Conflicts and lookup misses are
// expected outcomes and are kept apart from failures.
const (
	spanStatusSuccess  = "success"
	spanStatusConflict = "conflict"
	spanStatusNotFound = "not_found"
	spanStatusError    = "error"
)

// JSONTraceEntry represents a serialized trace span emitted by JSONTraceTracer.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer serializes spans to a writer as JSON lines and retains them
// for inspection.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
	clock   Clock
}

// NewJSONTracer constructs a tracer writing to w. A nil writer only retains spans.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{clock: ClockFunc(nil)}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Entries returns a copy of all recorded spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, operation: operation, started: t.clock.Now()}
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	ended := s.tracer.clock.Now()
	entry := JSONTraceEntry{
		Operation:  s.operation,
		Status:     spanStatusSuccess,
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
		EndedAt:    ended,
	}
	if err != nil {
		entry.Error = err.Error()
		switch reason, ok := domain.IsConflict(err); {
		case ok:
			entry.Status, entry.Reason = spanStatusConflict, string(reason)
		case domain.IsNotFound(err):
			entry.Status = spanStatusNotFound
		default:
			entry.Status = spanStatusError
		}
	}

	s.tracer.mu.Lock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
	s.tracer.mu.Unlock()
}

// JSONAuditRecorder writes audit entries as JSON lines.
type JSONAuditRecorder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONAuditRecorder constructs a recorder writing to w.
func NewJSONAuditRecorder(w io.Writer) *JSONAuditRecorder {
	return &JSONAuditRecorder{enc: json.NewEncoder(w)}
}

// Record implements AuditRecorder.
func (r *JSONAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.enc.Encode(entry)
}
