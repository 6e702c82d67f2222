// Package cancel implements a settable-once cancellation latch shared across
// process boundaries.
//
// Worker processes run in separate address spaces, so an in-memory flag
// cannot reach them. The latch is a marker file inside the job's runtime
// directory: Set creates the file, IsSet checks for it. Both the manager
// process and every worker open the same path, which also crosses into
// containers via a bind mount.
package cancel

import (
	"os"
	"sync/atomic"
)

// Signal is a single-writer, multi-reader boolean latch. Once set it never
// resets. The zero value is not usable; construct with New.
type Signal struct {
	path  string
	fired atomic.Bool
}

// New returns a Signal backed by the marker file at path. The file must not
// exist yet unless the signal was already set by another process.
func New(path string) *Signal {
	return &Signal{path: path}
}

// Path returns the marker file path, for handing to worker processes.
func (s *Signal) Path() string {
	return s.path
}

// Set marks the signal. It is idempotent and may be called from any process
// holding the path. The local flag is raised even if the file write fails,
// so the calling process always observes its own cancellation.
func (s *Signal) Set() error {
	if s.fired.Swap(true) {
		return nil
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// IsSet reports whether the signal has been set by any process. It is
// non-blocking and safe to poll at high frequency: once a set is observed
// the result is cached and subsequent calls are a single atomic load.
func (s *Signal) IsSet() bool {
	if s.fired.Load() {
		return true
	}
	if _, err := os.Stat(s.path); err == nil {
		s.fired.Store(true)
		return true
	}
	return false
}
