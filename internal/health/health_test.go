package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type stubRunner struct {
	err error
}

func (s *stubRunner) Ready(context.Context) error { return s.err }

func TestChecker_Liveness(t *testing.T) {
	t.Parallel()
	checker := NewChecker()

	response := checker.Liveness(context.Background())

	if response.Status != StatusHealthy {
		t.Errorf("Expected healthy status, got %s", response.Status)
	}
}

func TestChecker_Readiness_NoRunner(t *testing.T) {
	t.Parallel()
	checker := NewChecker(RunnerCheck(nil))

	response := checker.Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status, got %s", response.Status)
	}

	backendCheck, ok := response.Checks["worker_backend"]
	if !ok {
		t.Fatal("Expected worker_backend check to be present")
	}
	if backendCheck.Status != StatusUnhealthy {
		t.Errorf("Expected worker_backend check to be unhealthy, got %s", backendCheck.Status)
	}
}

func TestChecker_Readiness_RunnerStates(t *testing.T) {
	t.Parallel()

	healthy := NewChecker(RunnerCheck(&stubRunner{}))
	if resp := healthy.Readiness(context.Background()); !resp.IsHealthy() {
		t.Errorf("Expected healthy readiness, got %s", resp.Status)
	}

	broken := NewChecker(RunnerCheck(&stubRunner{err: errors.New("backend down")}))
	resp := broken.Readiness(context.Background())
	if resp.IsHealthy() {
		t.Error("Expected unhealthy readiness for failing runner")
	}
	if resp.Checks["worker_backend"].Message != "backend down" {
		t.Errorf("Expected failure message, got %q", resp.Checks["worker_backend"].Message)
	}
}

func TestChecker_Readiness_RuntimeDir(t *testing.T) {
	t.Parallel()

	writable := NewChecker(RuntimeDirCheck(filepath.Join(t.TempDir(), "jobs")))
	resp := writable.Readiness(context.Background())
	if !resp.IsHealthy() {
		t.Errorf("Expected healthy readiness for fresh dir, got %+v", resp.Checks["runtime_dir"])
	}

	// A runtime dir the process cannot create under should fail readiness.
	blocked := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(blocked, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	unwritable := NewChecker(RuntimeDirCheck(filepath.Join(blocked, "jobs")))
	resp = unwritable.Readiness(context.Background())
	if resp.IsHealthy() {
		t.Error("Expected unhealthy readiness for unwritable runtime dir")
	}
	if resp.Checks["runtime_dir"].Status != StatusUnhealthy {
		t.Errorf("runtime_dir check = %+v, want unhealthy", resp.Checks["runtime_dir"])
	}
}

func TestChecker_Readiness_AggregatesChecks(t *testing.T) {
	t.Parallel()
	checker := NewChecker(
		RunnerCheck(&stubRunner{}),
		RuntimeDirCheck(t.TempDir()),
	)

	resp := checker.Readiness(context.Background())
	if !resp.IsHealthy() {
		t.Fatalf("Expected healthy readiness, got %+v", resp.Checks)
	}
	if len(resp.Checks) != 2 {
		t.Errorf("Expected 2 check results, got %d", len(resp.Checks))
	}
}

func TestChecker_SetShuttingDown(t *testing.T) {
	t.Parallel()
	checker := NewChecker(RunnerCheck(&stubRunner{}))

	if resp := checker.Readiness(context.Background()); !resp.IsHealthy() {
		t.Fatalf("Expected healthy before shutdown, got %s", resp.Status)
	}

	checker.SetShuttingDown()

	resp := checker.Readiness(context.Background())
	if resp.IsHealthy() {
		t.Error("Expected unhealthy readiness during shutdown")
	}
	if _, ok := resp.Checks["shutdown"]; !ok {
		t.Error("Expected shutdown check to be present")
	}
}
