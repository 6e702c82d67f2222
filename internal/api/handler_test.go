package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"loadharness/internal/config"
	"loadharness/internal/harness"
	"loadharness/internal/health"
	"loadharness/internal/proc"
	"loadharness/internal/registry"
)

type fakeHandle struct {
	mu    sync.Mutex
	alive bool
}

func (f *fakeHandle) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeHandle) Terminate() error { return nil }

func (f *fakeHandle) Join(time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive = false
	return nil
}

type fakeRunner struct{}

func (fakeRunner) Start(context.Context, proc.Spec) (proc.Handle, error) {
	return &fakeHandle{alive: true}, nil
}
func (fakeRunner) Ready(context.Context) error { return nil }
func (fakeRunner) Close() error                { return nil }

func newTestRouter(t *testing.T, apiKey string) http.Handler {
	t.Helper()

	cfg := &config.Config{Environment: "local", Version: "test"}
	reg := registry.NewManager(registry.Options{TerminateTimeout: 10 * time.Millisecond})
	svc := harness.New(reg, fakeRunner{}, nil, nil, t.TempDir())

	return NewRouter(RouterConfig{
		Service:       svc,
		HealthChecker: health.NewChecker(health.RunnerCheck(fakeRunner{})),
		Auth:          NewAuthenticator(apiKey, "test-secret", time.Hour),
		Config:        cfg,
	})
}

func doJSON(t *testing.T, router http.Handler, method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthAndReady(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, "")

	if w := doJSON(t, router, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", w.Code)
	}
	if w := doJSON(t, router, http.MethodGet, "/ready", "", nil); w.Code != http.StatusOK {
		t.Errorf("GET /ready = %d, want 200", w.Code)
	}
}

func TestAppInfo(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, "")

	w := doJSON(t, router, http.MethodGet, "/", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET / = %d, want 200", w.Code)
	}

	var body map[string]any
	json.NewDecoder(w.Body).Decode(&body)
	if !strings.Contains(body["message"].(string), "Load Harness") {
		t.Errorf("message = %v", body["message"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
}

func TestSystemInfo(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, "")

	w := doJSON(t, router, http.MethodGet, "/system/info", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /system/info = %d, want 200", w.Code)
	}

	var body map[string]any
	json.NewDecoder(w.Body).Decode(&body)
	if body["cpu_cores"].(float64) < 1 {
		t.Errorf("cpu_cores = %v, want >= 1", body["cpu_cores"])
	}
}

func TestMemoryJobLifecycle(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, "")

	// Start a memory job.
	w := doJSON(t, router, http.MethodPost, "/load/memory", `{"size_mb":100,"duration_seconds":30}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /load/memory = %d, body %s", w.Code, w.Body.String())
	}
	var started struct {
		Status string `json:"status"`
		JobID  string `json:"job_id"`
		SizeMB int    `json:"size_mb"`
	}
	json.NewDecoder(w.Body).Decode(&started)
	if started.Status != "started" || started.SizeMB != 100 {
		t.Fatalf("start response = %+v", started)
	}
	if !strings.HasPrefix(started.JobID, "mem_") {
		t.Fatalf("job id %q missing mem_ prefix", started.JobID)
	}

	// Status shows it running.
	w = doJSON(t, router, http.MethodGet, "/load/memory/status", "", nil)
	var status struct {
		ActiveJobs int `json:"active_jobs"`
		TotalJobs  int `json:"total_jobs"`
		Jobs       []struct {
			JobID  string `json:"job_id"`
			Status string `json:"status"`
		} `json:"jobs"`
	}
	json.NewDecoder(w.Body).Decode(&status)
	if status.ActiveJobs != 1 || status.TotalJobs != 1 {
		t.Fatalf("status = %+v", status)
	}
	if status.Jobs[0].JobID != started.JobID || status.Jobs[0].Status != "running" {
		t.Fatalf("job view = %+v", status.Jobs[0])
	}

	// Targeted stop.
	w = doJSON(t, router, http.MethodPost, "/load/memory/stop", fmt.Sprintf(`{"job_id":%q}`, started.JobID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /load/memory/stop = %d", w.Code)
	}
	var stopped struct {
		Status      string   `json:"status"`
		StoppedJobs []string `json:"stopped_jobs"`
		Count       int      `json:"count"`
	}
	json.NewDecoder(w.Body).Decode(&stopped)
	if stopped.Status != "stopped" || stopped.Count != 1 || stopped.StoppedJobs[0] != started.JobID {
		t.Fatalf("stop response = %+v", stopped)
	}

	// Stopping an unknown job is a 404.
	w = doJSON(t, router, http.MethodPost, "/load/memory/stop", `{"job_id":"mem_0"}`, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("stop unknown job = %d, want 404", w.Code)
	}
}

func TestCPULoadValidation(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, "")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"default request", `{}`, http.StatusOK},
		{"empty body", ``, http.StatusOK},
		{"cores out of range", `{"cores":99}`, http.StatusBadRequest},
		{"duration too short", `{"duration_seconds":1}`, http.StatusBadRequest},
		{"intensity out of range", `{"intensity":0}`, http.StatusBadRequest},
		{"malformed json", `{"cores":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := doJSON(t, router, http.MethodPost, "/load/cpu", tt.body, nil)
			if w.Code != tt.want {
				t.Errorf("POST /load/cpu %s = %d, want %d (body %s)", tt.body, w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestCPUWork(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, "")

	w := doJSON(t, router, http.MethodPost, "/load/cpu/work", `{"iterations":10000}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /load/cpu/work = %d", w.Code)
	}

	var resp struct {
		Status     string  `json:"status"`
		Iterations int     `json:"iterations"`
		DurationMS float64 `json:"duration_ms"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Status != "completed" || resp.Iterations != 10000 {
		t.Errorf("response = %+v", resp)
	}
}

func TestMemorySync(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, "")

	w := doJSON(t, router, http.MethodPost, "/load/memory/sync", `{"size_mb":1,"duration_ms":10}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /load/memory/sync = %d", w.Code)
	}

	var resp struct {
		Status               string `json:"status"`
		ActualBytesAllocated int    `json:"actual_bytes_allocated"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Status != "completed" || resp.ActualBytesAllocated != 1<<20 {
		t.Errorf("response = %+v", resp)
	}
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, "secret-key")

	// Probes stay public.
	if w := doJSON(t, router, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Errorf("GET /health with auth enabled = %d, want 200", w.Code)
	}

	// Protected route without credentials.
	if w := doJSON(t, router, http.MethodGet, "/load/cpu/status", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated request = %d, want 401", w.Code)
	}

	// Wrong key.
	if w := doJSON(t, router, http.MethodGet, "/load/cpu/status", "", map[string]string{"X-API-Key": "wrong"}); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key = %d, want 401", w.Code)
	}

	// Correct key.
	if w := doJSON(t, router, http.MethodGet, "/load/cpu/status", "", map[string]string{"X-API-Key": "secret-key"}); w.Code != http.StatusOK {
		t.Errorf("valid key = %d, want 200", w.Code)
	}
}

func TestAuthTokenFlow(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, "secret-key")

	// Bad key is rejected.
	if w := doJSON(t, router, http.MethodPost, "/auth/token", `{"api_key":"wrong"}`, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("token with bad key = %d, want 401", w.Code)
	}

	// Exchange key for a token.
	w := doJSON(t, router, http.MethodPost, "/auth/token", `{"api_key":"secret-key"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /auth/token = %d", w.Code)
	}
	var tokenResp struct {
		Token     string `json:"token"`
		TokenType string `json:"token_type"`
	}
	json.NewDecoder(w.Body).Decode(&tokenResp)
	if tokenResp.Token == "" || tokenResp.TokenType != "Bearer" {
		t.Fatalf("token response = %+v", tokenResp)
	}

	// Bearer token grants access.
	headers := map[string]string{"Authorization": "Bearer " + tokenResp.Token}
	if w := doJSON(t, router, http.MethodGet, "/load/cpu/status", "", headers); w.Code != http.StatusOK {
		t.Errorf("bearer request = %d, want 200", w.Code)
	}

	// Garbage token does not.
	headers["Authorization"] = "Bearer not-a-token"
	if w := doJSON(t, router, http.MethodGet, "/load/cpu/status", "", headers); w.Code != http.StatusUnauthorized {
		t.Errorf("garbage bearer = %d, want 401", w.Code)
	}
}
