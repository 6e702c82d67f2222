// Package registry implements the job lifecycle manager: thread-safe job
// registration and lookup, targeted and bulk termination, deadline-driven
// reaping, and eviction of aged-out terminal jobs.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"loadharness/internal/apperrors"
	"loadharness/internal/cancel"
	"loadharness/internal/proc"
	"loadharness/internal/workload"
)

// MetricsRecorder is an optional sink for job lifecycle metrics.
type MetricsRecorder interface {
	RecordJobFinished(ctx context.Context, jobType, status string, durationSeconds float64)
	RecordOrphanAbandoned(ctx context.Context, jobType string)
}

// Options configures a Manager.
type Options struct {
	// TerminateTimeout bounds how long a stop or reap waits for each
	// process to exit after SIGTERM (default 1s).
	TerminateTimeout time.Duration
	// CleanupBuffer is added to a job's duration before the reaper fires
	// (default 5s).
	CleanupBuffer time.Duration
	// Metrics is optional.
	Metrics MetricsRecorder
	// Clock is injectable for tests (default time.Now).
	Clock func() time.Time
}

// Manager is the mutex-guarded registry of all known jobs. All mutations and
// multi-step reads are serialized by a single coarse lock; operations are
// O(number of jobs) and short, so whole-registry granularity is acceptable.
type Manager struct {
	mu   sync.Mutex
	jobs map[string]*record

	terminateTimeout time.Duration
	cleanupBuffer    time.Duration
	metrics          MetricsRecorder
	now              func() time.Time
	logger           *slog.Logger
}

// NewManager creates an empty registry.
func NewManager(opts Options) *Manager {
	if opts.TerminateTimeout <= 0 {
		opts.TerminateTimeout = time.Second
	}
	if opts.CleanupBuffer < 0 {
		opts.CleanupBuffer = 5 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Manager{
		jobs:             make(map[string]*record),
		terminateTimeout: opts.TerminateTimeout,
		cleanupBuffer:    opts.CleanupBuffer,
		metrics:          opts.Metrics,
		now:              opts.Clock,
		logger:           slog.With("component", "registry"),
	}
}

// Register inserts a new running job. The id must be generator-issued and
// unique; a duplicate is a conflict. Registration is immediately visible to
// subsequent reads from any goroutine.
func (m *Manager) Register(id string, typ workload.Type, config any, procs []proc.Handle, sig *cancel.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[id]; exists {
		return apperrors.Conflict("job", "job "+id+" already registered")
	}

	m.jobs[id] = &record{
		id:        id,
		typ:       typ,
		config:    config,
		procs:     procs,
		signal:    sig,
		status:    StatusRunning,
		startedAt: m.now().UTC(),
	}

	m.logger.Info("Registered job", "jobId", id, "type", typ)
	return nil
}

// Get returns the projected view of a job.
func (m *Manager) Get(id string) (JobView, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.jobs[id]
	if !ok {
		return JobView{}, false
	}
	return rec.view(), true
}

// List returns views of all jobs, optionally filtered by type (empty filter
// means all). Reported statuses are liveness-reconciled.
func (m *Manager) List(filter workload.Type) []JobView {
	m.mu.Lock()
	defer m.mu.Unlock()

	views := make([]JobView, 0, len(m.jobs))
	for _, rec := range m.jobs {
		if filter != "" && rec.typ != filter {
			continue
		}
		views = append(views, rec.view())
	}
	return views
}

// ActiveCount returns the number of jobs currently reported running.
func (m *Manager) ActiveCount(filter workload.Type) int {
	n := 0
	for _, v := range m.List(filter) {
		if v.Status == StatusRunning {
			n++
		}
	}
	return n
}

// Stop terminates a specific job: sets its cancellation signal, force-
// terminates every still-alive process, and marks it stopped. Returns false
// only for unknown ids. Stopping an already-terminal job re-runs the
// termination steps (harmless) and re-marks stopped_at; callers depending on
// pristine terminal timestamps must not stop finished jobs.
func (m *Manager) Stop(id string) bool {
	m.mu.Lock()
	rec, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return false
	}

	m.terminateLocked(rec)
	wasRunning := rec.status == StatusRunning
	rec.status = StatusStopped
	rec.stoppedAt = m.now().UTC()
	m.mu.Unlock()

	if wasRunning && m.metrics != nil {
		m.metrics.RecordJobFinished(context.Background(), string(rec.typ), string(StatusStopped), m.now().Sub(rec.startedAt).Seconds())
	}
	m.logger.Info("Stopped job", "jobId", id)
	return true
}

// StopAll applies Stop semantics to every stored-running job, optionally
// filtered by type, and returns the ids actually stopped.
func (m *Manager) StopAll(filter workload.Type) []string {
	stopped := make([]string, 0)

	m.mu.Lock()
	for id, rec := range m.jobs {
		if filter != "" && rec.typ != filter {
			continue
		}
		if rec.status != StatusRunning {
			continue
		}
		m.terminateLocked(rec)
		rec.status = StatusStopped
		rec.stoppedAt = m.now().UTC()
		stopped = append(stopped, id)

		if m.metrics != nil {
			m.metrics.RecordJobFinished(context.Background(), string(rec.typ), string(StatusStopped), m.now().Sub(rec.startedAt).Seconds())
		}
	}
	m.mu.Unlock()

	for _, id := range stopped {
		m.logger.Info("Stopped job", "jobId", id)
	}
	return stopped
}

// terminateLocked signals and force-terminates a job's processes. Must be
// called with the registry lock held. A process that ignores SIGTERM past
// the join timeout is abandoned as an orphan, never retried.
func (m *Manager) terminateLocked(rec *record) {
	if rec.signal != nil {
		if err := rec.signal.Set(); err != nil {
			m.logger.Warn("Failed to set cancellation signal", "jobId", rec.id, "error", err)
		}
	}

	for _, h := range rec.procs {
		if h == nil || !h.Alive() {
			continue
		}
		if err := h.Terminate(); err != nil {
			m.logger.Warn("Failed to terminate worker", "jobId", rec.id, "error", err)
		}
		if err := h.Join(m.terminateTimeout); err != nil {
			if errors.Is(err, proc.ErrJoinTimeout) {
				m.logger.Warn("Worker did not exit in time, abandoning orphan", "jobId", rec.id)
				if m.metrics != nil {
					m.metrics.RecordOrphanAbandoned(context.Background(), string(rec.typ))
				}
			} else {
				m.logger.Warn("Failed to join worker", "jobId", rec.id, "error", err)
			}
		}
	}
}

// ScheduleCleanup arms the reaper for a job: a delayed task fires at
// duration + cleanup buffer, force-terminates any straggling processes,
// finalizes a still-running job to completed, and strips the process handles
// and cancellation signal from the record so they can never leak outward.
// The optional callback runs after the reap, outside the lock, and only if
// the record still existed.
func (m *Manager) ScheduleCleanup(id string, duration time.Duration, callback func()) {
	timer := time.AfterFunc(duration+m.cleanupBuffer, func() {
		m.reap(id, callback)
	})

	m.mu.Lock()
	if rec, ok := m.jobs[id]; ok {
		rec.reapTimer = timer
	}
	m.mu.Unlock()
}

func (m *Manager) reap(id string, callback func()) {
	m.mu.Lock()
	rec, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}

	m.terminateLocked(rec)

	finalized := false
	if rec.status == StatusRunning {
		rec.status = StatusCompleted
		rec.completedAt = m.now().UTC()
		finalized = true
	}

	// Strip handles and the signal unconditionally: even a process that
	// survived the termination timeout must not be reachable past this
	// point.
	rec.procs = nil
	rec.signal = nil
	m.mu.Unlock()

	if finalized && m.metrics != nil {
		m.metrics.RecordJobFinished(context.Background(), string(rec.typ), string(StatusCompleted), m.now().Sub(rec.startedAt).Seconds())
	}
	m.logger.Debug("Reaped job", "jobId", id)

	if callback != nil {
		callback()
	}
}

// ClearCompleted evicts terminal jobs whose finalize timestamp is older than
// maxAge and returns the number removed. Records missing a finalize
// timestamp are skipped rather than failing the sweep.
func (m *Manager) ClearCompleted(maxAge time.Duration) int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, rec := range m.jobs {
		if !rec.status.Terminal() {
			continue
		}
		finalized := rec.finalizedAt()
		if finalized.IsZero() {
			continue
		}
		if now.Sub(finalized) <= maxAge {
			continue
		}
		if rec.reapTimer != nil {
			rec.reapTimer.Stop()
		}
		delete(m.jobs, id)
		removed++
	}
	return removed
}
