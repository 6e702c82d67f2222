package proc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// Environment variables consumed by the load-worker binary.
const (
	EnvWorkerID   = "WORKER_ID"
	EnvWorkload   = "WORKLOAD"
	EnvDuration   = "DURATION_SECONDS"
	EnvIntensity  = "INTENSITY"
	EnvSizeMB     = "SIZE_MB"
	EnvCancelFile = "CANCEL_FILE"
)

// ExecRunner spawns each worker as a child process of the service, running
// the load-worker binary with an env-driven config.
type ExecRunner struct {
	binary string
}

// NewExecRunner resolves the worker binary and returns an exec-backed runner.
// The binary is looked up on PATH, then next to the service executable.
func NewExecRunner(binary string) (*ExecRunner, error) {
	if path, err := exec.LookPath(binary); err == nil {
		return &ExecRunner{binary: path}, nil
	}

	self, err := os.Executable()
	if err == nil {
		sibling := filepath.Join(filepath.Dir(self), binary)
		if _, err := os.Stat(sibling); err == nil {
			return &ExecRunner{binary: sibling}, nil
		}
	}
	return nil, fmt.Errorf("worker binary %q not found on PATH or beside the service", binary)
}

// Start launches one worker process. The context only guards setup; the
// worker deliberately outlives the request that started it.
func (r *ExecRunner) Start(ctx context.Context, spec Spec) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(r.binary)
	cmd.Env = append(os.Environ(),
		EnvWorkerID+"="+spec.WorkerID,
		EnvWorkload+"="+string(spec.Workload),
		EnvDuration+"="+strconv.FormatFloat(spec.DurationSeconds, 'f', -1, 64),
		EnvIntensity+"="+strconv.Itoa(spec.Intensity),
		EnvSizeMB+"="+strconv.Itoa(spec.SizeMB),
		EnvCancelFile+"="+spec.CancelPath,
	)
	// Worker logs interleave with the service's own structured output.
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return startProcess(cmd)
}

// Ready reports whether the worker binary is still present.
func (r *ExecRunner) Ready(ctx context.Context) error {
	if _, err := os.Stat(r.binary); err != nil {
		return fmt.Errorf("worker binary missing: %w", err)
	}
	return nil
}

// Close is a no-op; child processes are not tied to the runner.
func (r *ExecRunner) Close() error { return nil }

// execHandle supervises one child process. A wait goroutine reaps the child
// as soon as it exits, so Alive never reports a zombie as running.
type execHandle struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	waitErr error
}

func startProcess(cmd *exec.Cmd) (Handle, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	h := &execHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.waitErr = err
		h.mu.Unlock()
		close(h.done)
	}()
	return h, nil
}

func (h *execHandle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *execHandle) Terminate() error {
	if !h.Alive() {
		return nil
	}
	err := h.cmd.Process.Signal(syscall.SIGTERM)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (h *execHandle) Join(timeout time.Duration) error {
	select {
	case <-h.done:
		return nil
	case <-time.After(timeout):
		return ErrJoinTimeout
	}
}
