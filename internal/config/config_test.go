package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("default port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Worker.Runner != "exec" {
		t.Errorf("default runner = %q, want exec", cfg.Worker.Runner)
	}
	if cfg.Jobs.CleanupBuffer != 5*time.Second {
		t.Errorf("default cleanup buffer = %v, want 5s", cfg.Jobs.CleanupBuffer)
	}
	if cfg.Auth.APIKey != "" {
		t.Errorf("auth should be disabled by default, got key %q", cfg.Auth.APIKey)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.MetricsPort != "9090" {
		t.Errorf("metrics port = %q, want 9090", cfg.Server.MetricsPort)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harness.yaml")
	data := `
server:
  port: "7000"
worker:
  runner: docker
  image: load-worker:v2
jobs:
  completed_retention: 10m
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != "7000" {
		t.Errorf("port = %q, want 7000", cfg.Server.Port)
	}
	if cfg.Worker.Runner != "docker" || cfg.Worker.Image != "load-worker:v2" {
		t.Errorf("worker = %+v", cfg.Worker)
	}
	if cfg.Jobs.CompletedRetention != 10*time.Minute {
		t.Errorf("retention = %v, want 10m", cfg.Jobs.CompletedRetention)
	}
	// Unset fields keep defaults.
	if cfg.Server.MetricsPort != "9090" {
		t.Errorf("metrics port = %q, want default 9090", cfg.Server.MetricsPort)
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "6060")
	t.Setenv("FAIL_RATE", "0.25")
	t.Setenv("WORKER_RUNNER", "docker")
	t.Setenv("WEBHOOK_URL", "http://collector:9000/events")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("port = %q, want 6060", cfg.Server.Port)
	}
	if cfg.Chaos.FailRate != 0.25 {
		t.Errorf("fail rate = %v, want 0.25", cfg.Chaos.FailRate)
	}
	if cfg.Worker.Runner != "docker" {
		t.Errorf("runner = %q, want docker", cfg.Worker.Runner)
	}
	if cfg.Webhook.URL != "http://collector:9000/events" {
		t.Errorf("webhook url = %q", cfg.Webhook.URL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"bad runner", func(c *Config) { c.Worker.Runner = "podman" }, true},
		{"fail rate too high", func(c *Config) { c.Chaos.FailRate = 1.5 }, true},
		{"negative fail rate", func(c *Config) { c.Chaos.FailRate = -0.1 }, true},
		{"zero terminate timeout", func(c *Config) { c.Jobs.TerminateTimeout = 0 }, true},
		{"webhook without workers", func(c *Config) {
			c.Webhook.URL = "http://x"
			c.Webhook.Workers = 0
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
