package proc

import (
	"errors"
	"os/exec"
	"testing"
	"time"

	"loadharness/internal/testutil"
)

func TestExecHandleLifecycle(t *testing.T) {
	t.Parallel()
	h, err := startProcess(exec.Command("sleep", "30"))
	if err != nil {
		t.Fatalf("startProcess: %v", err)
	}

	if !h.Alive() {
		t.Fatal("process should be alive right after start")
	}

	if err := h.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if err := h.Join(5 * time.Second); err != nil {
		t.Fatalf("Join after terminate: %v", err)
	}
	if h.Alive() {
		t.Error("process should be dead after terminate+join")
	}

	// Idempotent on a dead process.
	if err := h.Terminate(); err != nil {
		t.Errorf("Terminate on dead process: %v", err)
	}
	if err := h.Join(time.Millisecond); err != nil {
		t.Errorf("Join on dead process: %v", err)
	}
}

func TestExecHandleNaturalExit(t *testing.T) {
	t.Parallel()
	h, err := startProcess(exec.Command("true"))
	if err != nil {
		t.Fatalf("startProcess: %v", err)
	}

	if !testutil.WaitFor(t, func() bool { return !h.Alive() }, 5*time.Second, 10*time.Millisecond) {
		t.Fatal("short-lived process never reported dead")
	}
	if err := h.Join(time.Second); err != nil {
		t.Errorf("Join after natural exit: %v", err)
	}
}

func TestTerminateAfterProcessReaped(t *testing.T) {
	t.Parallel()
	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := cmd.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	// The done channel is still open, so Alive() reports true and Terminate
	// reaches Signal, which returns os.ErrProcessDone for the reaped child.
	// That is the lost-the-race case and must not surface as an error.
	h := &execHandle{cmd: cmd, done: make(chan struct{})}
	if err := h.Terminate(); err != nil {
		t.Errorf("Terminate on reaped process = %v, want nil", err)
	}
}

func TestExecHandleJoinTimeout(t *testing.T) {
	t.Parallel()
	h, err := startProcess(exec.Command("sleep", "30"))
	if err != nil {
		t.Fatalf("startProcess: %v", err)
	}
	defer func() {
		_ = h.Terminate()
		_ = h.Join(5 * time.Second)
	}()

	if err := h.Join(50 * time.Millisecond); !errors.Is(err, ErrJoinTimeout) {
		t.Errorf("Join on running process = %v, want ErrJoinTimeout", err)
	}
	if !h.Alive() {
		t.Error("process should survive a join timeout")
	}
}

func TestNewExecRunnerResolvesPath(t *testing.T) {
	t.Parallel()
	r, err := NewExecRunner("sleep")
	if err != nil {
		t.Fatalf("NewExecRunner(sleep): %v", err)
	}
	if err := r.Ready(t.Context()); err != nil {
		t.Errorf("Ready: %v", err)
	}

	if _, err := NewExecRunner("definitely-not-a-binary-9f2c"); err == nil {
		t.Error("expected error for unknown binary")
	}
}
