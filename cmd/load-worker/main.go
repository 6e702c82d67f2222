// load-worker is the worker process spawned per core (cpu) or per job
// (memory). It reads its configuration from the environment, runs a single
// workload, and exits. SIGTERM/SIGINT set the job's cancellation signal so a
// forced stop and a cooperative one take the same path.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"loadharness/internal/cancel"
	"loadharness/internal/proc"
	"loadharness/internal/workload"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	workerID := os.Getenv(proc.EnvWorkerID)
	if workerID == "" {
		return fmt.Errorf("%s environment variable is required", proc.EnvWorkerID)
	}

	typ := workload.Type(os.Getenv(proc.EnvWorkload))
	if !typ.Valid() {
		return fmt.Errorf("%s must be cpu or memory, got %q", proc.EnvWorkload, os.Getenv(proc.EnvWorkload))
	}

	durationSeconds, err := strconv.ParseFloat(os.Getenv(proc.EnvDuration), 64)
	if err != nil || durationSeconds <= 0 {
		return fmt.Errorf("%s must be a positive number", proc.EnvDuration)
	}
	duration := time.Duration(durationSeconds * float64(time.Second))

	cancelPath := os.Getenv(proc.EnvCancelFile)
	if cancelPath == "" {
		return fmt.Errorf("%s environment variable is required", proc.EnvCancelFile)
	}
	sig := cancel.New(cancelPath)

	// A terminated worker degrades to a cancelled one.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		s := <-sigCh
		slog.Info("Received signal, cancelling", "worker", workerID, "signal", s)
		if err := sig.Set(); err != nil {
			slog.Warn("Failed to set cancellation signal", "worker", workerID, "error", err)
		}
	}()

	switch typ {
	case workload.TypeCPU:
		intensity, err := strconv.Atoi(os.Getenv(proc.EnvIntensity))
		if err != nil || intensity < workload.CPUMinIntensity || intensity > workload.CPUMaxIntensity {
			return fmt.Errorf("%s must be between %d and %d", proc.EnvIntensity, workload.CPUMinIntensity, workload.CPUMaxIntensity)
		}

		slog.Info("CPU worker starting", "worker", workerID, "duration", duration, "intensity", intensity)
		result := workload.RunCPU(workerID, duration, intensity, sig)
		slog.Info("CPU worker finished",
			"worker", result.WorkerID,
			"iterations", result.Iterations,
			"durationSeconds", result.DurationSeconds,
			"result", result.Result,
		)

	case workload.TypeMemory:
		sizeMB, err := strconv.Atoi(os.Getenv(proc.EnvSizeMB))
		if err != nil || sizeMB < workload.MemoryMinSizeMB || sizeMB > workload.MemoryMaxSizeMB {
			return fmt.Errorf("%s must be between %d and %d", proc.EnvSizeMB, workload.MemoryMinSizeMB, workload.MemoryMaxSizeMB)
		}

		slog.Info("Memory worker starting", "worker", workerID, "sizeMb", sizeMB, "duration", duration)
		result := workload.RunMemory(workerID, sizeMB, duration, sig)
		slog.Info("Memory worker finished",
			"worker", result.JobID,
			"bytesAllocated", result.BytesAllocated,
			"pagesTouched", result.PagesTouched,
			"allocationSeconds", result.AllocationTimeSeconds,
			"heldSeconds", result.ActualDurationSeconds,
		)
	}

	return nil
}
