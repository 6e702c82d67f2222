// Package testutil provides polling helpers for tests.
package testutil

import (
	"testing"
	"time"
)

// WaitFor polls condition every interval until it returns true or timeout
// elapses. Returns true if the condition was met.
func WaitFor(tb testing.TB, condition func() bool, timeout, interval time.Duration) bool {
	tb.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(interval)
	}
	return condition()
}

// MustWaitFor is WaitFor that fails the test on timeout.
func MustWaitFor(tb testing.TB, condition func() bool, timeout, interval time.Duration) {
	tb.Helper()
	if !WaitFor(tb, condition, timeout, interval) {
		tb.Fatalf("condition not met within %v", timeout)
	}
}
