// Package harness is the load service: it validates requests, spawns worker
// processes, registers jobs, and serves the synchronous load endpoints.
package harness

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"loadharness/internal/apperrors"
	"loadharness/internal/cancel"
	"loadharness/internal/notify"
	"loadharness/internal/proc"
	"loadharness/internal/registry"
	"loadharness/internal/sysinfo"
	"loadharness/internal/workload"
)

const cancelFileName = "cancel"

// MetricsRecorder is an optional sink for job start metrics.
type MetricsRecorder interface {
	RecordJobStarted(ctx context.Context, jobType string)
}

// Service coordinates job start/stop across the registry, the process
// runner, and the event notifier.
type Service struct {
	registry       *registry.Manager
	runner         proc.Runner
	notifier       *notify.Notifier
	metrics        MetricsRecorder
	idgen          *registry.IDGenerator
	runtimeDir     string
	availableCores int
	logger         *slog.Logger
}

// New creates the service. runtimeDir is where per-job runtime directories
// (holding cancellation marker files) are created. notifier and metrics may
// be nil.
func New(reg *registry.Manager, runner proc.Runner, notifier *notify.Notifier, metrics MetricsRecorder, runtimeDir string) *Service {
	return &Service{
		registry:       reg,
		runner:         runner,
		notifier:       notifier,
		metrics:        metrics,
		idgen:          registry.NewIDGenerator(),
		runtimeDir:     runtimeDir,
		availableCores: sysinfo.AvailableCores(),
		logger:         slog.With("component", "harness"),
	}
}

// StartCPU validates the request, spawns one worker process per core, and
// registers the job. Partial spawn failures are rolled back: already started
// workers are cancelled and terminated, and the job is never registered.
func (s *Service) StartCPU(ctx context.Context, req CPURequest) (*StartResponse, error) {
	cores := workload.CPUDefaultCores
	if req.Cores != nil {
		cores = *req.Cores
	}
	durationSeconds := float64(workload.CPUDefaultDurationSeconds)
	if req.DurationSeconds != nil {
		durationSeconds = *req.DurationSeconds
	}
	intensity := workload.CPUDefaultIntensity
	if req.Intensity != nil {
		intensity = *req.Intensity
	}

	if cores < workload.CPUMinCores || cores > workload.CPUMaxCores {
		return nil, apperrors.Validation("cores",
			fmt.Sprintf("cores must be between %d and %d", workload.CPUMinCores, workload.CPUMaxCores))
	}
	if cores > s.availableCores {
		return nil, apperrors.Validation("cores",
			fmt.Sprintf("cores (%d) exceeds available cores (%d)", cores, s.availableCores))
	}
	if durationSeconds < workload.CPUMinDurationSeconds || durationSeconds > workload.CPUMaxDurationSeconds {
		return nil, apperrors.Validation("duration_seconds",
			fmt.Sprintf("duration_seconds must be between %d and %d", workload.CPUMinDurationSeconds, workload.CPUMaxDurationSeconds))
	}
	if intensity < workload.CPUMinIntensity || intensity > workload.CPUMaxIntensity {
		return nil, apperrors.Validation("intensity",
			fmt.Sprintf("intensity must be between %d and %d", workload.CPUMinIntensity, workload.CPUMaxIntensity))
	}

	jobID := s.idgen.Next(workload.TypeCPU)
	duration := secondsToDuration(durationSeconds)

	s.logger.Info("Starting CPU load",
		"jobId", jobID, "cores", cores, "duration", duration, "intensity", intensity)

	runtimeDir, sig, err := s.newJobRuntime(jobID)
	if err != nil {
		return nil, err
	}

	handles := make([]proc.Handle, 0, cores)
	for i := 0; i < cores; i++ {
		spec := proc.Spec{
			JobID:           jobID,
			WorkerID:        fmt.Sprintf("%s_worker_%d", jobID, i),
			Workload:        workload.TypeCPU,
			DurationSeconds: durationSeconds,
			Intensity:       intensity,
			CancelPath:      sig.Path(),
			RuntimeDir:      runtimeDir,
		}
		h, err := s.runner.Start(ctx, spec)
		if err != nil {
			s.rollbackSpawn(jobID, runtimeDir, sig, handles)
			return nil, apperrors.Internal("start cpu worker", err)
		}
		handles = append(handles, h)
	}

	cfg := workload.CPUConfig{Cores: cores, DurationSeconds: durationSeconds, Intensity: intensity}
	if err := s.registry.Register(jobID, workload.TypeCPU, cfg, handles, sig); err != nil {
		s.rollbackSpawn(jobID, runtimeDir, sig, handles)
		return nil, err
	}
	s.scheduleCleanup(jobID, workload.TypeCPU, cfg, duration, runtimeDir)
	s.publish(notify.EventJobStarted, jobID, workload.TypeCPU, cfg)
	if s.metrics != nil {
		s.metrics.RecordJobStarted(ctx, string(workload.TypeCPU))
	}

	return &StartResponse{
		Status:          "started",
		JobID:           jobID,
		Cores:           cores,
		DurationSeconds: durationSeconds,
		Intensity:       intensity,
		Message:         fmt.Sprintf("CPU load started on %d core(s). Health probes remain responsive.", cores),
		CheckStatus:     "/load/cpu/status",
		StopEndpoint:    "/load/cpu/stop",
		Timestamp:       time.Now().UTC(),
	}, nil
}

// StartMemory validates the request, spawns a single memory worker, and
// registers the job.
func (s *Service) StartMemory(ctx context.Context, req MemoryRequest) (*StartResponse, error) {
	sizeMB := workload.MemoryDefaultSizeMB
	if req.SizeMB != nil {
		sizeMB = *req.SizeMB
	}
	durationSeconds := float64(workload.MemoryDefaultDurationSeconds)
	if req.DurationSeconds != nil {
		durationSeconds = *req.DurationSeconds
	}

	if sizeMB < workload.MemoryMinSizeMB || sizeMB > workload.MemoryMaxSizeMB {
		return nil, apperrors.Validation("size_mb",
			fmt.Sprintf("size_mb must be between %d and %d", workload.MemoryMinSizeMB, workload.MemoryMaxSizeMB))
	}
	if durationSeconds < workload.MemoryMinDurationSeconds || durationSeconds > workload.MemoryMaxDurationSeconds {
		return nil, apperrors.Validation("duration_seconds",
			fmt.Sprintf("duration_seconds must be between %d and %d", workload.MemoryMinDurationSeconds, workload.MemoryMaxDurationSeconds))
	}

	jobID := s.idgen.Next(workload.TypeMemory)
	duration := secondsToDuration(durationSeconds)

	s.logger.Info("Starting memory load", "jobId", jobID, "sizeMb", sizeMB, "duration", duration)

	runtimeDir, sig, err := s.newJobRuntime(jobID)
	if err != nil {
		return nil, err
	}

	spec := proc.Spec{
		JobID:           jobID,
		WorkerID:        jobID,
		Workload:        workload.TypeMemory,
		DurationSeconds: durationSeconds,
		SizeMB:          sizeMB,
		CancelPath:      sig.Path(),
		RuntimeDir:      runtimeDir,
	}
	h, err := s.runner.Start(ctx, spec)
	if err != nil {
		s.rollbackSpawn(jobID, runtimeDir, sig, nil)
		return nil, apperrors.Internal("start memory worker", err)
	}

	cfg := workload.MemoryConfig{SizeMB: sizeMB, DurationSeconds: durationSeconds}
	if err := s.registry.Register(jobID, workload.TypeMemory, cfg, []proc.Handle{h}, sig); err != nil {
		s.rollbackSpawn(jobID, runtimeDir, sig, []proc.Handle{h})
		return nil, err
	}
	s.scheduleCleanup(jobID, workload.TypeMemory, cfg, duration, runtimeDir)
	s.publish(notify.EventJobStarted, jobID, workload.TypeMemory, cfg)
	if s.metrics != nil {
		s.metrics.RecordJobStarted(ctx, string(workload.TypeMemory))
	}

	return &StartResponse{
		Status:          "started",
		JobID:           jobID,
		SizeMB:          sizeMB,
		DurationSeconds: durationSeconds,
		Message:         fmt.Sprintf("Memory load started: %dMB for %gs. Health probes remain responsive.", sizeMB, durationSeconds),
		CheckStatus:     "/load/memory/status",
		StopEndpoint:    "/load/memory/stop",
		Timestamp:       time.Now().UTC(),
	}, nil
}

// Status reports all jobs of one type with liveness-reconciled statuses.
func (s *Service) Status(typ workload.Type) *StatusResponse {
	jobs := s.registry.List(typ)

	return &StatusResponse{
		ActiveJobs: s.registry.ActiveCount(typ),
		TotalJobs:  len(jobs),
		Jobs:       jobs,
		Timestamp:  time.Now().UTC(),
	}
}

// Stop terminates one job by id, or every running job of the given type when
// req.JobID is empty. A targeted stop of an unknown id is not found;
// targeting does not filter by type.
func (s *Service) Stop(typ workload.Type, req StopRequest) (*StopResponse, error) {
	var stopped []string
	if req.JobID != "" {
		view, ok := s.registry.Get(req.JobID)
		if !s.registry.Stop(req.JobID) {
			return nil, apperrors.NotFound("job", req.JobID)
		}
		stopped = []string{req.JobID}
		if ok {
			s.publish(notify.EventJobStopped, req.JobID, view.Type, view.Config)
		}
	} else {
		stopped = s.registry.StopAll(typ)
		for _, id := range stopped {
			if view, ok := s.registry.Get(id); ok {
				s.publish(notify.EventJobStopped, id, view.Type, view.Config)
			}
		}
	}

	return &StopResponse{
		Status:      "stopped",
		StoppedJobs: stopped,
		Count:       len(stopped),
		Timestamp:   time.Now().UTC(),
	}, nil
}

// MemorySync is the legacy blocking endpoint: allocate, hold in-request,
// release, respond.
func (s *Service) MemorySync(req MemorySyncRequest) (*SyncResponse, error) {
	sizeMB := workload.MemoryDefaultSizeMB
	if req.SizeMB != nil {
		sizeMB = *req.SizeMB
	}
	durationMS := float64(workload.SyncDefaultDurationMS)
	if req.DurationMS != nil {
		durationMS = *req.DurationMS
	}

	if sizeMB < workload.MemoryMinSizeMB || sizeMB > workload.MemoryMaxSizeMB {
		return nil, apperrors.Validation("size_mb",
			fmt.Sprintf("size_mb must be between %d and %d", workload.MemoryMinSizeMB, workload.MemoryMaxSizeMB))
	}
	if durationMS < workload.SyncMinDurationMS || durationMS > workload.SyncMaxDurationMS {
		return nil, apperrors.Validation("duration_ms",
			fmt.Sprintf("duration_ms must be between %d and %d", workload.SyncMinDurationMS, workload.SyncMaxDurationMS))
	}

	s.logger.Info("Starting sync memory load", "sizeMb", sizeMB, "durationMs", durationMS)

	result := workload.RunMemorySync(sizeMB, time.Duration(durationMS*float64(time.Millisecond)))

	return &SyncResponse{
		Status:               "completed",
		RequestedSizeMB:      sizeMB,
		ActualBytesAllocated: result.BytesAllocated,
		RequestedDurationMS:  durationMS,
		ActualDurationMS:     roundMS(result.ActualDuration),
		AllocationTimeMS:     roundMS(result.AllocationTime),
		Timestamp:            time.Now().UTC(),
	}, nil
}

// CPUWork burns a fixed number of iterations in-request, letting external
// load generators distribute blocking requests across replicas.
func (s *Service) CPUWork(req WorkRequest) (*WorkResponse, error) {
	iterations := workload.WorkDefaultIterations
	if req.Iterations != nil {
		iterations = *req.Iterations
	}
	if iterations < workload.WorkMinIterations || iterations > workload.WorkMaxIterations {
		return nil, apperrors.Validation("iterations",
			fmt.Sprintf("iterations must be between %d and %d", workload.WorkMinIterations, workload.WorkMaxIterations))
	}

	start := time.Now()
	result := workload.Burn(iterations)
	elapsed := time.Since(start)

	podName := os.Getenv("HOSTNAME")
	if podName == "" {
		podName = "unknown"
	}

	return &WorkResponse{
		Status:     "completed",
		Iterations: iterations,
		DurationMS: roundMS(elapsed),
		Result:     math.Round(result*10000) / 10000,
		PodName:    podName,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// RunMaintenance evicts aged-out terminal jobs on a fixed interval until the
// context is cancelled.
func (s *Service) RunMaintenance(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.registry.ClearCompleted(retention); removed > 0 {
				s.logger.Info("Evicted terminal jobs", "count", removed)
			}
		}
	}
}

// newJobRuntime creates the job's runtime directory and cancellation signal.
func (s *Service) newJobRuntime(jobID string) (string, *cancel.Signal, error) {
	dir := filepath.Join(s.runtimeDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, apperrors.Internal("create job runtime dir", err)
	}
	return dir, cancel.New(filepath.Join(dir, cancelFileName)), nil
}

// rollbackSpawn cancels and tears down partially started workers after a
// spawn failure, before the job is ever registered.
func (s *Service) rollbackSpawn(jobID, runtimeDir string, sig *cancel.Signal, handles []proc.Handle) {
	s.logger.Warn("Rolling back partially started job", "jobId", jobID, "started", len(handles))

	if err := sig.Set(); err != nil {
		s.logger.Warn("Failed to set cancellation signal during rollback", "jobId", jobID, "error", err)
	}
	for _, h := range handles {
		if err := h.Terminate(); err != nil {
			s.logger.Warn("Failed to terminate worker during rollback", "jobId", jobID, "error", err)
		}
	}
	if err := os.RemoveAll(runtimeDir); err != nil {
		s.logger.Warn("Failed to remove job runtime dir", "jobId", jobID, "error", err)
	}
}

// scheduleCleanup arms the reaper and hooks the completion event plus
// runtime dir removal onto the reap callback.
func (s *Service) scheduleCleanup(jobID string, typ workload.Type, cfg any, duration time.Duration, runtimeDir string) {
	s.registry.ScheduleCleanup(jobID, duration, func() {
		if view, ok := s.registry.Get(jobID); ok && view.Status == registry.StatusCompleted {
			s.publish(notify.EventJobCompleted, jobID, typ, cfg)
		}
		if err := os.RemoveAll(runtimeDir); err != nil {
			s.logger.Warn("Failed to remove job runtime dir", "jobId", jobID, "error", err)
		}
	})
}

func (s *Service) publish(eventType, jobID string, typ workload.Type, cfg any) {
	if s.notifier == nil {
		return
	}
	// Queue-full drops are already counted and logged by the notifier.
	_ = s.notifier.Publish(notify.NewEvent(eventType, jobID, typ, cfg))
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func roundMS(d time.Duration) float64 {
	ms := float64(d) / float64(time.Millisecond)
	return math.Round(ms*100) / 100
}
