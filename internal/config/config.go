// Package config provides configuration loading from an optional YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full harness-service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Chaos   ChaosConfig   `yaml:"chaos"`
	Worker  WorkerConfig  `yaml:"worker"`
	Jobs    JobsConfig    `yaml:"jobs"`
	Webhook WebhookConfig `yaml:"webhook"`

	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port              string        `yaml:"port"`
	MetricsPort       string        `yaml:"metrics_port"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownDrainWait time.Duration `yaml:"shutdown_drain_wait"` // time for load balancers to drain (0 to skip)
}

// AuthConfig holds API authentication settings.
// If APIKey is empty, authentication is disabled.
type AuthConfig struct {
	APIKey      string        `yaml:"api_key"`
	APIKeyFile  string        `yaml:"api_key_file"`
	TokenSecret string        `yaml:"token_secret"` // HS256 signing secret; random per boot if unset
	TokenTTL    time.Duration `yaml:"token_ttl"`
}

// ChaosConfig holds fault-injection settings.
type ChaosConfig struct {
	FailRate float64 `yaml:"fail_rate"` // probability 0.0-1.0 of failing a request
}

// WorkerConfig controls how worker processes are spawned.
type WorkerConfig struct {
	Runner     string `yaml:"runner"`      // "exec" or "docker"
	Binary     string `yaml:"binary"`      // exec backend: worker binary name or path
	Image      string `yaml:"image"`       // docker backend: worker image
	RuntimeDir string `yaml:"runtime_dir"` // per-job runtime dirs (cancel files)
}

// JobsConfig holds registry lifecycle tunables.
type JobsConfig struct {
	CleanupBuffer      time.Duration `yaml:"cleanup_buffer"`      // reaper fires at duration + buffer
	TerminateTimeout   time.Duration `yaml:"terminate_timeout"`   // join timeout per process
	CompletedRetention time.Duration `yaml:"completed_retention"` // terminal job retention before eviction
	SweepInterval      time.Duration `yaml:"sweep_interval"`      // how often to evict aged-out jobs
}

// WebhookConfig holds job event delivery settings. Disabled when URL is empty.
type WebhookConfig struct {
	URL        string        `yaml:"url"`
	SigningKey string        `yaml:"signing_key"`
	Timeout    time.Duration `yaml:"timeout"`
	BufferSize int           `yaml:"buffer_size"`
	Workers    int           `yaml:"workers"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownDrainWait: 5 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL: 8 * time.Hour,
		},
		Worker: WorkerConfig{
			Runner:     "exec",
			Binary:     "load-worker",
			Image:      "load-worker:latest",
			RuntimeDir: os.TempDir(),
		},
		Jobs: JobsConfig{
			CleanupBuffer:      5 * time.Second,
			TerminateTimeout:   time.Second,
			CompletedRetention: 5 * time.Minute,
			SweepInterval:      time.Minute,
		},
		Webhook: WebhookConfig{
			Timeout:    30 * time.Second,
			BufferSize: 256,
			Workers:    2,
		},
		Environment: "local",
		Version:     "dev",
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if it
// exists), then environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = GetEnv("PORT", c.Server.Port)
	c.Server.MetricsPort = GetEnv("METRICS_PORT", c.Server.MetricsPort)
	c.Server.ShutdownDrainWait = GetDurationEnv("SHUTDOWN_DRAIN_WAIT", c.Server.ShutdownDrainWait)

	if key := GetSecretFile(GetEnv("API_KEY_FILE", c.Auth.APIKeyFile)); key != "" {
		c.Auth.APIKey = key
	}
	c.Auth.APIKey = GetEnv("API_KEY", c.Auth.APIKey)
	c.Auth.TokenSecret = GetEnv("TOKEN_SECRET", c.Auth.TokenSecret)

	c.Chaos.FailRate = GetFloatEnv("FAIL_RATE", c.Chaos.FailRate)

	c.Worker.Runner = GetEnv("WORKER_RUNNER", c.Worker.Runner)
	c.Worker.Binary = GetEnv("WORKER_BINARY", c.Worker.Binary)
	c.Worker.Image = GetEnv("WORKER_IMAGE", c.Worker.Image)
	c.Worker.RuntimeDir = GetEnv("WORKER_RUNTIME_DIR", c.Worker.RuntimeDir)

	c.Jobs.CompletedRetention = GetDurationEnv("COMPLETED_RETENTION", c.Jobs.CompletedRetention)
	c.Jobs.SweepInterval = GetDurationEnv("SWEEP_INTERVAL", c.Jobs.SweepInterval)

	c.Webhook.URL = GetEnv("WEBHOOK_URL", c.Webhook.URL)
	c.Webhook.SigningKey = GetEnv("WEBHOOK_SIGNING_KEY", c.Webhook.SigningKey)

	c.Environment = GetEnv("ENVIRONMENT", c.Environment)
	c.Version = GetEnv("APP_VERSION", c.Version)
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	switch c.Worker.Runner {
	case "exec", "docker":
	default:
		return fmt.Errorf("worker runner must be exec or docker, got %q", c.Worker.Runner)
	}

	if c.Chaos.FailRate < 0 || c.Chaos.FailRate > 1 {
		return fmt.Errorf("chaos fail rate must be between 0.0 and 1.0, got %v", c.Chaos.FailRate)
	}

	if c.Jobs.CleanupBuffer < 0 {
		return fmt.Errorf("cleanup buffer must be non-negative")
	}
	if c.Jobs.TerminateTimeout <= 0 {
		return fmt.Errorf("terminate timeout must be positive")
	}
	if c.Jobs.CompletedRetention < 0 {
		return fmt.Errorf("completed retention must be non-negative")
	}

	if c.Webhook.URL != "" {
		if c.Webhook.BufferSize < 1 {
			return fmt.Errorf("webhook buffer size must be at least 1")
		}
		if c.Webhook.Workers < 1 {
			return fmt.Errorf("webhook workers must be at least 1")
		}
	}

	return nil
}
