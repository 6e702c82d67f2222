package api

import (
	"net/http"

	"loadharness/internal/config"
	"loadharness/internal/harness"
	"loadharness/internal/health"
	"loadharness/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Service       *harness.Service
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	Auth          *Authenticator
	Config        *config.Config
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Service, cfg.HealthChecker, cfg.Auth, cfg.Config.Environment, cfg.Config.Version)

	mux := http.NewServeMux()

	// Probes and token exchange - no auth required
	mux.HandleFunc("GET /health", handler.Health)
	mux.HandleFunc("GET /ready", handler.Ready)
	mux.HandleFunc("POST /auth/token", handler.AuthToken)

	// Everything else - auth required
	authMiddleware := cfg.Auth.Middleware()
	protected := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(h)
	}

	mux.Handle("GET /{$}", protected(handler.AppInfo))
	mux.Handle("GET /version", protected(handler.Version))
	mux.Handle("GET /system/info", protected(handler.SystemInfo))

	mux.Handle("POST /load/cpu", protected(handler.CPULoad))
	mux.Handle("GET /load/cpu/status", protected(handler.CPUStatus))
	mux.Handle("POST /load/cpu/stop", protected(handler.CPUStop))
	mux.Handle("POST /load/cpu/work", protected(handler.CPUWork))

	mux.Handle("POST /load/memory", protected(handler.MemoryLoad))
	mux.Handle("GET /load/memory/status", protected(handler.MemoryStatus))
	mux.Handle("POST /load/memory/stop", protected(handler.MemoryStop))
	mux.Handle("POST /load/memory/sync", protected(handler.MemorySync))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ChaosMiddleware(cfg.Config.Chaos.FailRate, cfg.Metrics)(h)
	h = ContentTypeMiddleware()(h)
	h = SecurityHeadersMiddleware(cfg.Config.Environment)(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
