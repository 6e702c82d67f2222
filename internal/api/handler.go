// Package api provides the HTTP API handlers, routing, and middleware for
// the harness service.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"time"

	"loadharness/internal/apperrors"
	"loadharness/internal/harness"
	"loadharness/internal/health"
	"loadharness/internal/sysinfo"
	"loadharness/internal/workload"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// Handler contains HTTP handlers for the load API
type Handler struct {
	svc         *harness.Service
	health      *health.Checker
	auth        *Authenticator
	environment string
	version     string
}

// NewHandler creates a new API handler
func NewHandler(svc *harness.Service, healthChecker *health.Checker, auth *Authenticator, environment, version string) *Handler {
	return &Handler{
		svc:         svc,
		health:      healthChecker,
		auth:        auth,
		environment: environment,
		version:     version,
	}
}

// AppInfo handles GET /
func (h *Handler) AppInfo(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Load Harness - Synthetic Workload Generator",
		"version":     h.version,
		"environment": h.environment,
		"timestamp":   time.Now().UTC(),
	})
}

// Health handles GET /health - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Ready handles GET /ready - readiness probe.
// Returns 200 if the service is ready to accept traffic.
// Returns 503 if the worker backend is unavailable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// Version handles GET /version
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()

	h.writeJSON(w, http.StatusOK, map[string]any{
		"version":     h.version,
		"environment": h.environment,
		"build": map[string]any{
			"go_version": runtime.Version(),
		},
		"deployment": map[string]any{
			"pod_name":  hostname,
			"namespace": getEnvDefault("NAMESPACE", "applications"),
		},
		"timestamp": time.Now().UTC(),
	})
}

// SystemInfo handles GET /system/info
func (h *Handler) SystemInfo(w http.ResponseWriter, r *http.Request) {
	mem := sysinfo.MemoryInfo()

	h.writeJSON(w, http.StatusOK, map[string]any{
		"cpu_cores":           sysinfo.AvailableCores(),
		"cpu_cores_physical":  runtime.NumCPU(),
		"memory_total_mb":     mem.TotalMB,
		"memory_available_mb": mem.AvailableMB,
		"timestamp":           time.Now().UTC(),
	})
}

// CPULoad handles POST /load/cpu
func (h *Handler) CPULoad(w http.ResponseWriter, r *http.Request) {
	var req harness.CPURequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	resp, err := h.svc.StartCPU(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// CPUStatus handles GET /load/cpu/status
func (h *Handler) CPUStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Status(workload.TypeCPU))
}

// CPUStop handles POST /load/cpu/stop
func (h *Handler) CPUStop(w http.ResponseWriter, r *http.Request) {
	h.stop(w, r, workload.TypeCPU)
}

// CPUWork handles POST /load/cpu/work - synchronous CPU work for
// distributed load testing through a service load balancer.
func (h *Handler) CPUWork(w http.ResponseWriter, r *http.Request) {
	var req harness.WorkRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	resp, err := h.svc.CPUWork(req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// MemoryLoad handles POST /load/memory
func (h *Handler) MemoryLoad(w http.ResponseWriter, r *http.Request) {
	var req harness.MemoryRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	resp, err := h.svc.StartMemory(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// MemoryStatus handles GET /load/memory/status
func (h *Handler) MemoryStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Status(workload.TypeMemory))
}

// MemoryStop handles POST /load/memory/stop
func (h *Handler) MemoryStop(w http.ResponseWriter, r *http.Request) {
	h.stop(w, r, workload.TypeMemory)
}

// MemorySync handles POST /load/memory/sync - legacy blocking allocation.
func (h *Handler) MemorySync(w http.ResponseWriter, r *http.Request) {
	var req harness.MemorySyncRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	resp, err := h.svc.MemorySync(req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// AuthToken handles POST /auth/token - exchanges the API key for a bearer token.
func (h *Handler) AuthToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey string `json:"api_key"`
	}
	if !h.decodeBody(w, r, &req) {
		return
	}

	token, expiresAt, err := h.auth.IssueToken(req.APIKey)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": expiresAt.UTC(),
	})
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request, typ workload.Type) {
	var req harness.StopRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	resp, err := h.svc.Stop(typ, req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// decodeBody decodes an optional JSON body. An empty body decodes to the
// zero request so every parameter falls back to its default.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError handles errors from the service layer with appropriate HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error())
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
