package core

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"teammatch/internal/blob"
	"teammatch/internal/infra/persistence/memory"
	"teammatch/internal/infra/persistence/workbook"
)

// DefaultSnapshotInterval is the flush cadence used when none is configured.
const DefaultSnapshotInterval = time.Hour

// Snapshotter loads and saves full store snapshots.
type Snapshotter interface {
	Load(ctx context.Context) (memory.Snapshot, error)
	Save(ctx context.Context, snapshot memory.Snapshot) error
	Close() error
}

// PersistenceError wraps a snapshot load or save failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// FlushObserver is notified after every attempted flush.
type FlushObserver interface {
	ObserveFlush(success bool, at time.Time)
}

// PersistenceManager owns the snapshot lifecycle of a memory store: one load
// at start, periodic flushes, and a last flush at shutdown. It also satisfies
// PersistentStore so that write-through mode can flush after each commit.
type PersistenceManager struct {
	store        *memory.Store
	snap         Snapshotter
	archive      blob.Store
	interval     time.Duration
	writeThrough bool
	logger       Logger
	clock        Clock
	observer     FlushObserver

	flushMu sync.Mutex
	saved   uint64
	loaded  bool

	running  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

var _ PersistentStore = (*PersistenceManager)(nil)

// ManagerOption configures a PersistenceManager.
type ManagerOption func(*PersistenceManager)

// WithSnapshotInterval sets the periodic flush interval.
func WithSnapshotInterval(d time.Duration) ManagerOption {
	return func(m *PersistenceManager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithWriteThrough flushes after every committed transaction.
func WithWriteThrough(enabled bool) ManagerOption {
	return func(m *PersistenceManager) { m.writeThrough = enabled }
}

// WithSnapshotArchive copies every flushed snapshot into the blob store.
func WithSnapshotArchive(b blob.Store) ManagerOption {
	return func(m *PersistenceManager) { m.archive = b }
}

// WithManagerLogger sets the manager logger.
func WithManagerLogger(l Logger) ManagerOption {
	return func(m *PersistenceManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithManagerClock overrides the clock used for archive names and flush stamps.
func WithManagerClock(c Clock) ManagerOption {
	return func(m *PersistenceManager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithFlushObserver installs a flush metrics sink.
func WithFlushObserver(o FlushObserver) ManagerOption {
	return func(m *PersistenceManager) { m.observer = o }
}

// NewPersistenceManager constructs a manager for store backed by snap.
func NewPersistenceManager(store *memory.Store, snap Snapshotter, opts ...ManagerOption) *PersistenceManager {
	m := &PersistenceManager{
		store:    store,
		snap:     snap,
		interval: DefaultSnapshotInterval,
		logger:   noopLogger{},
		clock:    ClockFunc(nil),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the managed memory store.
func (m *PersistenceManager) Store() *memory.Store {
	return m.store
}

// RulesEngine exposes the managed store's engine.
func (m *PersistenceManager) RulesEngine() *RulesEngine {
	return m.store.RulesEngine()
}

// Open loads the durable snapshot into the store.
func (m *PersistenceManager) Open(ctx context.Context) error {
	snapshot, err := m.snap.Load(ctx)
	if err != nil {
		return &PersistenceError{Op: "load", Err: err}
	}
	m.store.ImportState(snapshot)
	m.flushMu.Lock()
	m.saved = m.store.Version()
	m.loaded = true
	m.flushMu.Unlock()
	m.logger.Info("snapshot loaded",
		"events", len(snapshot.Events), "themes", len(snapshot.Themes),
		"teams", len(snapshot.Teams), "members", len(snapshot.Members))
	return nil
}

// Start launches the periodic flush loop. It returns immediately.
func (m *PersistenceManager) Start(ctx context.Context) {
	if !m.running.CompareAndSwap(false, true) {
		return
	}
	go m.loop(ctx)
}

func (m *PersistenceManager) loop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := m.Flush(ctx); err != nil {
				m.logger.Error("periodic snapshot failed", "error", err.Error())
			}
		case <-m.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Flush saves the store when it changed since the last successful save. The
// snapshot is copied under the store's shared lock; I/O runs without it.
func (m *PersistenceManager) Flush(ctx context.Context) error {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	snapshot, version := m.store.ExportVersioned()
	if m.loaded && version == m.saved {
		return nil
	}
	now := m.clock.Now()
	if err := m.snap.Save(ctx, snapshot); err != nil {
		m.observe(false, now)
		return &PersistenceError{Op: "save", Err: err}
	}
	m.saved = version
	m.loaded = true
	m.observe(true, now)
	m.logger.Debug("snapshot saved", "version", version)

	if m.archive != nil {
		if err := m.archiveSnapshot(ctx, snapshot, now); err != nil {
			m.logger.Warn("snapshot archive failed", "error", err.Error())
		}
	}
	return nil
}

func (m *PersistenceManager) observe(success bool, at time.Time) {
	if m.observer != nil {
		m.observer.ObserveFlush(success, at)
	}
}

func (m *PersistenceManager) archiveSnapshot(ctx context.Context, snapshot memory.Snapshot, at time.Time) error {
	var buf bytes.Buffer
	if err := workbook.Encode(&buf, snapshot); err != nil {
		return err
	}
	_, err := m.archive.Put(ctx, blob.SnapshotKey(at), &buf, blob.PutOptions{ContentType: workbook.ContentType})
	return err
}

// Close stops the flush loop, writes a final snapshot and closes the backend.
func (m *PersistenceManager) Close(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stop) })
	if m.running.Load() {
		<-m.done
	}
	flushErr := m.Flush(ctx)
	closeErr := m.snap.Close()
	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return &PersistenceError{Op: "close", Err: closeErr}
	}
	return nil
}

// RunInTransaction delegates to the store and, in write-through mode, flushes
// after a committed change.
func (m *PersistenceManager) RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error) {
	before := m.store.Version()
	res, err := m.store.RunInTransaction(ctx, fn)
	if err != nil || !m.writeThrough || m.store.Version() == before {
		return res, err
	}
	if ferr := m.Flush(context.WithoutCancel(ctx)); ferr != nil {
		m.logger.Error("write-through snapshot failed", "error", ferr.Error())
	}
	return res, nil
}

// View delegates to the store.
func (m *PersistenceManager) View(ctx context.Context, fn func(TransactionView) error) error {
	return m.store.View(ctx, fn)
}

// MemorySnapshotter keeps the last saved snapshot in process.
type MemorySnapshotter struct {
	mu       sync.Mutex
	snapshot memory.Snapshot
	saves    int
}

// NewMemorySnapshotter returns an empty in-process snapshotter.
func NewMemorySnapshotter() *MemorySnapshotter {
	return &MemorySnapshotter{}
}

// Load returns the last saved snapshot.
func (s *MemorySnapshotter) Load(context.Context) (memory.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot, nil
}

// Save replaces the retained snapshot.
func (s *MemorySnapshotter) Save(_ context.Context, snapshot memory.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot
	s.saves++
	return nil
}

// Saves reports how many snapshots were saved.
func (s *MemorySnapshotter) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Close implements Snapshotter.
func (s *MemorySnapshotter) Close() error { return nil }
