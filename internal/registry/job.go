package registry

import (
	"time"

	"loadharness/internal/cancel"
	"loadharness/internal/proc"
	"loadharness/internal/workload"
)

// Status is a job's lifecycle state. Transitions are monotonic and one-way:
// running → completed | stopped | failed. No transition leaves a terminal
// state through the normal lifecycle (Stop's terminal-job re-mark is a
// documented quirk, see Manager.Stop).
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusStopped || s == StatusFailed
}

// record is the internal, runtime representation of a job. It holds live
// process handles and the cancellation signal; those never leave this
// package; external views are derived by projection (see JobView).
type record struct {
	id     string
	typ    workload.Type
	config any

	procs  []proc.Handle
	signal *cancel.Signal

	status      Status
	startedAt   time.Time
	completedAt time.Time // zero until set
	stoppedAt   time.Time // zero until set

	reapTimer *time.Timer
}

// aliveCount returns how many of the job's processes are still running.
func (r *record) aliveCount() int {
	n := 0
	for _, h := range r.procs {
		if h != nil && h.Alive() {
			n++
		}
	}
	return n
}

// finalizedAt returns the timestamp a terminal job was finalized with, or
// the zero time if neither terminal timestamp was recorded.
func (r *record) finalizedAt() time.Time {
	if !r.completedAt.IsZero() {
		return r.completedAt
	}
	return r.stoppedAt
}

// JobView is the serialization-safe projection of a job consumed by status
// endpoints. Field names are part of the external API contract.
type JobView struct {
	JobID       string        `json:"job_id"`
	Type        workload.Type `json:"type"`
	Status      Status        `json:"status"`
	Config      any           `json:"config"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	StoppedAt   *time.Time    `json:"stopped_at,omitempty"`

	// CPU jobs only.
	CoresActive    *int `json:"cores_active,omitempty"`
	CoresRequested *int `json:"cores_requested,omitempty"`
}

// view projects the record into its external shape, reconciling reported
// status against process liveness: a stored-running job with zero live
// processes is reported completed without waiting for the reaper. This is a
// read-time reconciliation, never a stored transition.
func (r *record) view() JobView {
	alive := r.aliveCount()

	status := r.status
	if status == StatusRunning && alive == 0 {
		status = StatusCompleted
	}

	v := JobView{
		JobID:     r.id,
		Type:      r.typ,
		Status:    status,
		Config:    r.config,
		StartedAt: r.startedAt,
	}
	if !r.completedAt.IsZero() {
		t := r.completedAt
		v.CompletedAt = &t
	}
	if !r.stoppedAt.IsZero() {
		t := r.stoppedAt
		v.StoppedAt = &t
	}

	if r.typ == workload.TypeCPU {
		active := alive
		v.CoresActive = &active
		if cfg, ok := r.config.(workload.CPUConfig); ok {
			requested := cfg.Cores
			v.CoresRequested = &requested
		}
	}

	return v
}
