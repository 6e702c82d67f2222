package workload

import (
	"runtime"
	"time"
)

// memoryPollInterval bounds how quickly a memory worker observes
// cancellation while holding its allocation.
const memoryPollInterval = 100 * time.Millisecond

// MemoryResult reports one memory worker's execution.
type MemoryResult struct {
	JobID                 string  `json:"job_id"`
	SizeMB                int     `json:"size_mb"`
	BytesAllocated        int     `json:"bytes_allocated"`
	PagesTouched          int     `json:"pages_touched"`
	AllocationTimeSeconds float64 `json:"allocation_time_seconds"`
	ActualDurationSeconds float64 `json:"actual_duration_seconds"`
}

// RunMemory allocates sizeMB of contiguous memory, touches every page so the
// allocation is physically committed (virtual-only allocation would not
// pressure resident-memory accounting), then holds it until the duration
// elapses or sig is set. The buffer is released when the function returns;
// that release is the point of the workload ending.
func RunMemory(jobID string, sizeMB int, duration time.Duration, sig Canceler) MemoryResult {
	start := time.Now()
	deadline := start.Add(duration)

	block := make([]byte, sizeMB*1024*1024)
	touched := touchPages(block)
	allocationTime := time.Since(start)

	for time.Now().Before(deadline) {
		if sig != nil && sig.IsSet() {
			break
		}
		time.Sleep(memoryPollInterval)
	}

	held := time.Since(start)
	runtime.KeepAlive(block)

	return MemoryResult{
		JobID:                 jobID,
		SizeMB:                sizeMB,
		BytesAllocated:        len(block),
		PagesTouched:          touched,
		AllocationTimeSeconds: allocationTime.Seconds(),
		ActualDurationSeconds: held.Seconds(),
	}
}

// MemorySyncResult reports a synchronous allocate-and-hold run.
type MemorySyncResult struct {
	BytesAllocated int
	AllocationTime time.Duration
	ActualDuration time.Duration
}

// RunMemorySync is the blocking variant used by the legacy sync endpoint:
// allocate, commit every page, hold for exactly the given duration, release.
// Not cancellable; callers bound the duration instead.
func RunMemorySync(sizeMB int, hold time.Duration) MemorySyncResult {
	start := time.Now()

	block := make([]byte, sizeMB*1024*1024)
	touchPages(block)
	allocationTime := time.Since(start)

	time.Sleep(hold)

	actual := time.Since(start)
	runtime.KeepAlive(block)

	return MemorySyncResult{
		BytesAllocated: len(block),
		AllocationTime: allocationTime,
		ActualDuration: actual,
	}
}

// touchPages writes one byte per page-size stride and returns the number of
// distinct offsets written.
func touchPages(block []byte) int {
	touched := 0
	for i := 0; i < len(block); i += PageSize {
		block[i] = byte(i)
		touched++
	}
	return touched
}
