package registry

import (
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"loadharness/internal/workload"
)

func TestIDGeneratorFormat(t *testing.T) {
	t.Parallel()

	gen := NewIDGenerator()

	cpuID := gen.Next(workload.TypeCPU)
	if !regexp.MustCompile(`^job_\d{13,}$`).MatchString(cpuID) {
		t.Errorf("cpu id %q does not match expected format", cpuID)
	}

	memID := gen.Next(workload.TypeMemory)
	if !regexp.MustCompile(`^mem_\d{13,}$`).MatchString(memID) {
		t.Errorf("memory id %q does not match expected format", memID)
	}
}

func TestIDGeneratorBurstUniqueness(t *testing.T) {
	t.Parallel()

	gen := NewIDGenerator()
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := gen.Next(workload.TypeCPU)
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q on iteration %d", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestIDGeneratorMonotonicFloor(t *testing.T) {
	t.Parallel()

	// Freeze the clock so consecutive calls see the same millisecond.
	fixed := time.UnixMilli(1700000000000)
	gen := NewIDGenerator()
	gen.now = func() time.Time { return fixed }

	first := gen.Next(workload.TypeCPU)
	second := gen.Next(workload.TypeCPU)

	firstMs, _ := strconv.ParseInt(strings.TrimPrefix(first, "job_"), 10, 64)
	secondMs, _ := strconv.ParseInt(strings.TrimPrefix(second, "job_"), 10, 64)

	if firstMs != 1700000000000 {
		t.Errorf("first id ms = %d, want 1700000000000", firstMs)
	}
	if secondMs != firstMs+1 {
		t.Errorf("second id ms = %d, want %d", secondMs, firstMs+1)
	}
}
