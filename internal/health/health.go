// Package health implements the liveness and readiness probes. Liveness is
// unconditional; readiness verifies the service can actually start load jobs:
// the worker backend answers and the runtime directory (where per-job cancel
// files live) is writable.
package health

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// ReadinessChecker is implemented by the process runner to verify it can
// spawn workers (worker binary resolvable, or Docker daemon reachable).
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Check is a named readiness probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// RunnerCheck probes the worker backend.
func RunnerCheck(runner ReadinessChecker) Check {
	return Check{
		Name: "worker_backend",
		Probe: func(ctx context.Context) error {
			if runner == nil {
				return fmt.Errorf("runner not configured")
			}
			return runner.Ready(ctx)
		},
	}
}

// RuntimeDirCheck verifies the job runtime directory exists and is writable.
// Every job start creates a cancel file under it, so an unwritable directory
// means every start would fail.
func RuntimeDirCheck(dir string) Check {
	return Check{
		Name: "runtime_dir",
		Probe: func(ctx context.Context) error {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("runtime dir %s: %w", dir, err)
			}
			f, err := os.CreateTemp(dir, ".ready-*")
			if err != nil {
				return fmt.Errorf("runtime dir %s not writable: %w", dir, err)
			}
			name := f.Name()
			f.Close()
			return os.Remove(name)
		},
	}
}

// CheckResult contains the result of one probe.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the probe response body.
type Response struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// IsHealthy returns true if the overall status is healthy.
func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// Checker runs the configured readiness probes.
type Checker struct {
	checks  []Check
	timeout time.Duration

	mu           sync.RWMutex
	lastCheck    time.Time
	cachedReady  *Response
	shuttingDown bool
}

// NewChecker creates a checker over the given probes.
func NewChecker(checks ...Check) *Checker {
	return &Checker{
		checks:  checks,
		timeout: 5 * time.Second,
	}
}

// Liveness reports whether the process is alive. It never touches
// dependencies; failing it should restart the container.
func (c *Checker) Liveness(ctx context.Context) *Response {
	return &Response{Status: StatusHealthy}
}

// Readiness runs every probe and reports whether the service can accept
// traffic. Results are cached for a second so probe traffic cannot hammer
// the worker backend. Failing it removes the instance from rotation.
func (c *Checker) Readiness(ctx context.Context) *Response {
	c.mu.RLock()
	if c.shuttingDown {
		c.mu.RUnlock()
		return &Response{
			Status: StatusUnhealthy,
			Checks: map[string]CheckResult{
				"shutdown": {Status: StatusUnhealthy, Message: "service is shutting down"},
			},
		}
	}
	if c.cachedReady != nil && time.Since(c.lastCheck) < time.Second {
		cached := c.cachedReady
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	response := &Response{
		Status: StatusHealthy,
		Checks: make(map[string]CheckResult, len(c.checks)),
	}
	for _, check := range c.checks {
		result := c.run(ctx, check)
		response.Checks[check.Name] = result
		if result.Status != StatusHealthy {
			response.Status = StatusUnhealthy
		}
	}

	c.mu.Lock()
	c.cachedReady = response
	c.lastCheck = time.Now()
	c.mu.Unlock()

	return response
}

func (c *Checker) run(ctx context.Context, check Check) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := check.Probe(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// SetShuttingDown makes all subsequent readiness checks fail so load
// balancers stop routing new traffic during shutdown.
func (c *Checker) SetShuttingDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
	c.cachedReady = nil
}
