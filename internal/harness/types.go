package harness

import (
	"time"

	"loadharness/internal/registry"
)

// CPURequest starts a background CPU job. Pointer fields distinguish an
// omitted parameter (defaulted) from an explicit zero (rejected by bounds).
type CPURequest struct {
	Cores           *int     `json:"cores"`
	DurationSeconds *float64 `json:"duration_seconds"`
	Intensity       *int     `json:"intensity"`
}

// MemoryRequest starts a background memory job.
type MemoryRequest struct {
	SizeMB          *int     `json:"size_mb"`
	DurationSeconds *float64 `json:"duration_seconds"`
}

// StopRequest targets one job by id, or all jobs of the endpoint's type when
// JobID is empty.
type StopRequest struct {
	JobID string `json:"job_id"`
}

// MemorySyncRequest is the legacy blocking allocation request.
type MemorySyncRequest struct {
	SizeMB     *int     `json:"size_mb"`
	DurationMS *float64 `json:"duration_ms"`
}

// WorkRequest is the synchronous CPU work request.
type WorkRequest struct {
	Iterations *int `json:"iterations"`
}

// StartResponse acknowledges a started background job.
type StartResponse struct {
	Status          string    `json:"status"`
	JobID           string    `json:"job_id"`
	Cores           int       `json:"cores,omitempty"`
	SizeMB          int       `json:"size_mb,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
	Intensity       int       `json:"intensity,omitempty"`
	Message         string    `json:"message"`
	CheckStatus     string    `json:"check_status"`
	StopEndpoint    string    `json:"stop_endpoint"`
	Timestamp       time.Time `json:"timestamp"`
}

// StatusResponse lists jobs of one type.
type StatusResponse struct {
	ActiveJobs int                `json:"active_jobs"`
	TotalJobs  int                `json:"total_jobs"`
	Jobs       []registry.JobView `json:"jobs"`
	Timestamp  time.Time          `json:"timestamp"`
}

// StopResponse reports which jobs were stopped.
type StopResponse struct {
	Status      string    `json:"status"`
	StoppedJobs []string  `json:"stopped_jobs"`
	Count       int       `json:"count"`
	Timestamp   time.Time `json:"timestamp"`
}

// SyncResponse reports a completed blocking memory allocation.
type SyncResponse struct {
	Status               string    `json:"status"`
	RequestedSizeMB      int       `json:"requested_size_mb"`
	ActualBytesAllocated int       `json:"actual_bytes_allocated"`
	RequestedDurationMS  float64   `json:"requested_duration_ms"`
	ActualDurationMS     float64   `json:"actual_duration_ms"`
	AllocationTimeMS     float64   `json:"allocation_time_ms"`
	Timestamp            time.Time `json:"timestamp"`
}

// WorkResponse reports a completed synchronous CPU burn.
type WorkResponse struct {
	Status     string    `json:"status"`
	Iterations int       `json:"iterations"`
	DurationMS float64   `json:"duration_ms"`
	Result     float64   `json:"result"`
	PodName    string    `json:"pod_name"`
	Timestamp  time.Time `json:"timestamp"`
}
