package api

import (
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"loadharness/internal/observability"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			slog.InfoContext(r.Context(), "HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration", time.Since(start),
			)
		})
	}
}

// MetricsMiddleware records HTTP request metrics (latency, traffic, errors).
func MetricsMiddleware(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, wrapped.statusCode, duration)
		})
	}
}

// RecoveryMiddleware recovers from panics
func RecoveryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					slog.ErrorContext(r.Context(), "Panic recovered", "error", err)
					http.Error(w, "Internal server error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// ContentTypeMiddleware ensures JSON content type for API requests
func ContentTypeMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Check content type for POST/PUT requests
			if r.Method == http.MethodPost || r.Method == http.MethodPut {
				contentType := r.Header.Get("Content-Type")
				if contentType != "" && contentType != "application/json" {
					http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware adds CORS headers
func CORSMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// securityCSP whitelists self-only resource loading; the service serves JSON,
// so anything stricter than 'self' would break nothing.
const securityCSP = "default-src 'self'; frame-ancestors 'none'; base-uri 'self'; form-action 'self';"

// SecurityHeadersMiddleware adds standard security headers to all responses.
// HSTS is suppressed outside production-like environments to not poison
// local plain-HTTP development.
func SecurityHeadersMiddleware(environment string) func(http.Handler) http.Handler {
	hsts := environment != "local" && environment != "dev"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hdr := w.Header()
			hdr.Set("X-Content-Type-Options", "nosniff")
			hdr.Set("X-Frame-Options", "DENY")
			hdr.Set("X-XSS-Protection", "1; mode=block")
			if hsts {
				hdr.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			hdr.Set("Content-Security-Policy", securityCSP)
			hdr.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(), usb=()")
			hdr.Set("Cross-Origin-Opener-Policy", "same-origin")
			hdr.Set("Cross-Origin-Resource-Policy", "same-origin")
			hdr.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if hdr.Get("Cache-Control") == "" {
				hdr.Set("Cache-Control", "no-store, max-age=0")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// chaosExempt lists paths that must never fail (probes must keep working
// while canary analysis runs).
var chaosExempt = map[string]bool{
	"/health": true,
	"/ready":  true,
}

// ChaosMiddleware randomly fails requests with a 500 when failRate > 0.
// Used to exercise canary rollback and resilience checks.
func ChaosMiddleware(failRate float64, metrics *observability.Metrics) func(http.Handler) http.Handler {
	if failRate > 0 {
		slog.Warn("Chaos injection enabled", "failRate", failRate)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if failRate <= 0 || chaosExempt[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			if rand.Float64() < failRate {
				slog.Warn("Chaos injection triggered", "path", r.URL.Path, "failRate", failRate)
				if metrics != nil {
					metrics.RecordChaosInjected(r.Context(), r.URL.Path)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":"Chaos injection triggered","message":"Intentional failure for testing","chaos":true}` + "\n"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
