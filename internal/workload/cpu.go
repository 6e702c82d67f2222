package workload

import (
	"math"
	"time"
)

// opsPerIntensityUnit is the number of accumulator operations performed per
// intensity point between cancellation checks. Batching bounds polling
// overhead; worst-case cancellation latency scales with intensity.
const opsPerIntensityUnit = 1000

// CPUResult reports one CPU worker's execution.
type CPUResult struct {
	WorkerID        string  `json:"worker_id"`
	Iterations      uint64  `json:"iterations"`
	DurationSeconds float64 `json:"duration_seconds"`
	Intensity       int     `json:"intensity"`
	Result          float64 `json:"result"`
}

// RunCPU burns one core until the duration elapses or sig is set. Between
// deadline/cancellation checks it performs exactly intensity*1000
// transcendental operations on a running accumulator, reduced modulo 1e6 to
// avoid unbounded growth. The accumulator value is meaningless but
// deterministic for a given iteration count, which makes it usable as a
// sanity check.
func RunCPU(workerID string, duration time.Duration, intensity int, sig Canceler) CPUResult {
	start := time.Now()
	deadline := start.Add(duration)

	var iterations uint64
	acc := 0.0

	for time.Now().Before(deadline) {
		if sig != nil && sig.IsSet() {
			break
		}
		for range intensity * opsPerIntensityUnit {
			acc += math.Sqrt(float64(iterations+1)) * math.Sin(float64(iterations))
			acc = reduce(acc)
			iterations++
		}
	}

	return CPUResult{
		WorkerID:        workerID,
		Iterations:      iterations,
		DurationSeconds: time.Since(start).Seconds(),
		Intensity:       intensity,
		Result:          acc,
	}
}

// Burn performs a fixed number of accumulator operations synchronously and
// returns the accumulator. Used by the blocking /load/cpu/work endpoint.
func Burn(iterations int) float64 {
	acc := 0.0
	for i := range iterations {
		acc += math.Sqrt(float64(i+1)) * math.Sin(float64(i))
		acc = reduce(acc)
	}
	return acc
}

// reduce wraps the accumulator into [0, 1e6). math.Mod preserves the sign of
// its first operand, so negative accumulators need the extra shift to match
// Python's floored modulo.
func reduce(acc float64) float64 {
	acc = math.Mod(acc, 1_000_000)
	if acc < 0 {
		acc += 1_000_000
	}
	return acc
}
