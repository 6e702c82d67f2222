// Package workload implements the CPU and memory load-generation algorithms
// executed by worker processes, plus the parameter limits shared with the
// validation layer.
package workload

// Type identifies a workload kind. The set is closed: no third workload is
// anticipated.
type Type string

const (
	TypeCPU    Type = "cpu"
	TypeMemory Type = "memory"
)

// Prefix returns the job-id prefix for the type. The resulting
// "{prefix}{epoch_ms}" id format is an external contract and must not change.
func (t Type) Prefix() string {
	if t == TypeMemory {
		return "mem_"
	}
	return "job_"
}

// Valid reports whether t is a known workload type.
func (t Type) Valid() bool {
	return t == TypeCPU || t == TypeMemory
}

// CPU load limits.
const (
	CPUMinCores     = 1
	CPUMaxCores     = 16
	CPUDefaultCores = 1

	CPUMinDurationSeconds     = 10
	CPUMaxDurationSeconds     = 900 // 15 minutes
	CPUDefaultDurationSeconds = 60

	CPUMinIntensity     = 1
	CPUMaxIntensity     = 10
	CPUDefaultIntensity = 5
)

// Synchronous CPU work endpoint limits.
const (
	WorkMinIterations     = 1_000
	WorkMaxIterations     = 10_000_000
	WorkDefaultIterations = 100_000
)

// Memory load limits.
const (
	MemoryMinSizeMB     = 1
	MemoryMaxSizeMB     = 2048
	MemoryDefaultSizeMB = 50

	MemoryMinDurationSeconds     = 5
	MemoryMaxDurationSeconds     = 300 // 5 minutes
	MemoryDefaultDurationSeconds = 30
)

// Legacy synchronous memory endpoint limits.
const (
	SyncMinDurationMS     = 1
	SyncMaxDurationMS     = 120_000 // 2 minutes
	SyncDefaultDurationMS = 1000
)

// PageSize is the stride used when touching allocated memory. One byte is
// written per stride so every page is physically committed.
const PageSize = 4096

// CPUConfig is the immutable parameter set of a CPU job. It is stored on the
// job record and serialized into status responses.
type CPUConfig struct {
	Cores           int     `json:"cores"`
	DurationSeconds float64 `json:"duration_seconds"`
	Intensity       int     `json:"intensity"`
}

// MemoryConfig is the immutable parameter set of a memory job.
type MemoryConfig struct {
	SizeMB          int     `json:"size_mb"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Canceler is the cancellation view a workload polls. Implemented by
// *cancel.Signal.
type Canceler interface {
	IsSet() bool
}
