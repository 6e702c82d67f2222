package registry

import (
	"strconv"
	"sync"
	"time"

	"loadharness/internal/workload"
)

// IDGenerator issues job ids in the "{prefix}{epoch_ms}" format. The format
// is an external contract and preserved bit-exact. Uniqueness under burst
// registration is guaranteed by a monotonic floor: if the wall clock has
// not advanced past the previously issued millisecond, the next value is
// last+1.
type IDGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewIDGenerator returns a generator backed by the wall clock.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

// Next issues a fresh job id for the workload type.
func (g *IDGenerator) Next(t workload.Type) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms

	return t.Prefix() + strconv.FormatInt(ms, 10)
}
