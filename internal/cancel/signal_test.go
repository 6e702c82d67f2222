package cancel

import (
	"path/filepath"
	"testing"
)

func TestSetIsIdempotent(t *testing.T) {
	t.Parallel()
	sig := New(filepath.Join(t.TempDir(), "cancel"))

	if sig.IsSet() {
		t.Fatal("new signal should not be set")
	}
	if err := sig.Set(); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := sig.Set(); err != nil {
		t.Fatalf("second Set() error: %v", err)
	}
	if !sig.IsSet() {
		t.Error("signal should be set")
	}
}

func TestCrossInstanceObservation(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cancel")

	// Two Signal values on the same path stand in for the manager and a
	// worker in separate processes.
	manager := New(path)
	worker := New(path)

	if worker.IsSet() {
		t.Fatal("worker observed cancellation before Set")
	}
	if err := manager.Set(); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if !worker.IsSet() {
		t.Error("worker did not observe cancellation through the marker file")
	}
	// Cached after first observation.
	if !worker.IsSet() {
		t.Error("cached observation lost")
	}
}

func TestSignalsAreIsolated(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a := New(filepath.Join(dir, "job-a"))
	b := New(filepath.Join(dir, "job-b"))

	if err := a.Set(); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if b.IsSet() {
		t.Error("setting signal A must not cancel signal B")
	}
}

func TestSetSurvivesMissingDirectory(t *testing.T) {
	t.Parallel()
	sig := New(filepath.Join(t.TempDir(), "gone", "cancel"))

	// The write fails but the local flag still rises.
	if err := sig.Set(); err == nil {
		t.Error("expected error writing marker into missing directory")
	}
	if !sig.IsSet() {
		t.Error("local process must observe its own cancellation")
	}
}
