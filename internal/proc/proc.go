// Package proc abstracts spawning and supervising worker processes.
//
// Workers run as isolated OS processes (exec backend) or containers (docker
// backend) so a crash or forced kill cannot affect the manager or sibling
// workers. The only state shared with a worker is its cancellation marker
// file.
package proc

import (
	"context"
	"errors"
	"time"

	"loadharness/internal/workload"
)

// ErrJoinTimeout is returned by Handle.Join when the process outlives the
// wait window. Callers treat it as best-effort and move on.
var ErrJoinTimeout = errors.New("process did not exit within timeout")

// Spec describes one worker process to start.
type Spec struct {
	JobID           string
	WorkerID        string
	Workload        workload.Type
	DurationSeconds float64
	Intensity       int // cpu only
	SizeMB          int // memory only
	CancelPath      string
	RuntimeDir      string // job runtime directory, bind-mounted by the docker backend
}

// Handle supervises one running worker process.
type Handle interface {
	// Alive reports whether the process is still running.
	Alive() bool
	// Terminate asks the process to exit (SIGTERM). Safe to call on an
	// already-exited process.
	Terminate() error
	// Join waits up to timeout for the process to exit. Returns
	// ErrJoinTimeout if it is still running afterwards.
	Join(timeout time.Duration) error
}

// Runner spawns worker processes.
type Runner interface {
	Start(ctx context.Context, spec Spec) (Handle, error)
	// Ready reports whether the backend can spawn workers.
	Ready(ctx context.Context) error
	Close() error
}
