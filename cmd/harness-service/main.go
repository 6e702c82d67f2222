// harness-service is the HTTP API server for synthetic CPU and memory load.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loadharness/internal/api"
	"loadharness/internal/config"
	"loadharness/internal/harness"
	"loadharness/internal/health"
	"loadharness/internal/notify"
	"loadharness/internal/observability"
	"loadharness/internal/proc"
	"loadharness/internal/registry"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Worker process backend
	runner, err := newRunner(ctx, cfg)
	if err != nil {
		return err
	}
	defer runner.Close()
	slog.Info("Worker runner ready", "backend", cfg.Worker.Runner)

	// Webhook notifier for job lifecycle events
	notifier := notify.New(notify.Config{
		URL:         cfg.Webhook.URL,
		SigningKey:  cfg.Webhook.SigningKey,
		BufferSize:  cfg.Webhook.BufferSize,
		Workers:     cfg.Webhook.Workers,
		HTTPTimeout: cfg.Webhook.Timeout,
	}, metrics)

	// Job registry
	reg := registry.NewManager(registry.Options{
		TerminateTimeout: cfg.Jobs.TerminateTimeout,
		CleanupBuffer:    cfg.Jobs.CleanupBuffer,
		Metrics:          metrics,
	})

	// Load service
	svc := harness.New(reg, runner, notifier, metrics, cfg.Worker.RuntimeDir)

	healthChecker := health.NewChecker(
		health.RunnerCheck(runner),
		health.RuntimeDirCheck(cfg.Worker.RuntimeDir),
	)
	auth := api.NewAuthenticator(cfg.Auth.APIKey, cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)

	router := api.NewRouter(api.RouterConfig{
		Service:       svc,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		Auth:          auth,
		Config:        cfg,
	})

	if auth.Enabled() {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY configured")
	}

	// Background eviction of aged-out terminal jobs
	maintenanceCtx, stopMaintenance := context.WithCancel(ctx)
	defer stopMaintenance()
	go svc.RunMaintenance(maintenanceCtx, cfg.Jobs.SweepInterval, cfg.Jobs.CompletedRetention)

	// Create API server
	apiServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + cfg.Server.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 1)

	go func() {
		slog.Info("Starting API server", "port", cfg.Server.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go func() {
		slog.Info("Starting metrics server", "port", cfg.Server.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	if cfg.Server.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", cfg.Server.ShutdownDrainWait)
		time.Sleep(cfg.Server.ShutdownDrainWait)
	}

	// Phase 2: Graceful shutdown - stop accepting new connections, finish in-flight requests
	slog.Info("Starting graceful shutdown")
	stopMaintenance()
	shutdown(25 * time.Second)

	// Phase 3: Drain webhook notifier
	slog.Info("Draining event notifier")
	notifierCtx, notifierCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer notifierCancel()
	if err := notifier.Close(notifierCtx); err != nil {
		slog.Warn("Notifier shutdown error", "error", err)
	}

	stats := notifier.Stats()
	slog.Info("Notifier stats",
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
	)

	// Running workers are self-contained processes with their own deadlines
	// and cancel files; they finish without the service.
	slog.Info("Running workers will continue independently")
	slog.Info("Shutdown complete")
	return nil
}

func newRunner(ctx context.Context, cfg *config.Config) (proc.Runner, error) {
	switch cfg.Worker.Runner {
	case "docker":
		return proc.NewDockerRunner(ctx, cfg.Worker.Image)
	default:
		return proc.NewExecRunner(cfg.Worker.Binary)
	}
}
