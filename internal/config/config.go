package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/mailflow/internal/domain"
)

// Config holds all configuration for the delivery platform.
type Config struct {
	Server    ServerConfig            `yaml:"server"`
	Database  DatabaseConfig          `yaml:"database"`
	Redis     RedisConfig             `yaml:"redis"`
	Worker    WorkerConfig            `yaml:"worker"`
	Providers []domain.ProviderConfig `yaml:"providers"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ShutdownSeconds int    `yaml:"shutdown_seconds"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the shared rate-limiter backend settings. When URL is
// empty the dispatcher falls back to an in-process token bucket.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// WorkerConfig tunes the bulk delivery worker.
type WorkerConfig struct {
	MaxConcurrentJobs   int `yaml:"max_concurrent_jobs"`
	SubBatchSize        int `yaml:"sub_batch_size"`
	DefaultBatchSize    int `yaml:"default_batch_size"`
	DelayBetweenBatchMs int `yaml:"delay_between_batches_ms"`
	MaxQueueDepth       int `yaml:"max_queue_depth"`
	RetentionMinutes    int `yaml:"retention_minutes"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file first (if present) so secrets can live in .env
// locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}

	// Provider credentials come from the environment, never from yaml, so
	// the config file can be committed.
	for i := range cfg.Providers {
		applyCredentialEnv(&cfg.Providers[i])
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.ShutdownSeconds == 0 {
		c.Server.ShutdownSeconds = 30
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Worker.MaxConcurrentJobs == 0 {
		c.Worker.MaxConcurrentJobs = 3
	}
	if c.Worker.SubBatchSize == 0 {
		c.Worker.SubBatchSize = 10
	}
	if c.Worker.DefaultBatchSize == 0 {
		c.Worker.DefaultBatchSize = 100
	}
	if c.Worker.MaxQueueDepth == 0 {
		c.Worker.MaxQueueDepth = 1000
	}
	if c.Worker.RetentionMinutes == 0 {
		c.Worker.RetentionMinutes = 60
	}

	for i := range c.Providers {
		applyProviderDefaults(&c.Providers[i])
	}
}

// applyProviderDefaults fills retry/rate-limit fields left zero in yaml.
// Validation still runs at registry load; these defaults only keep a
// minimal provider block usable.
func applyProviderDefaults(p *domain.ProviderConfig) {
	if p.RateLimit.BurstSize == 0 {
		p.RateLimit.BurstSize = 10
	}
	rp := &p.RetryPolicy
	if rp.MaxRetries == 0 {
		rp.MaxRetries = 3
	}
	if rp.InitialDelay == 0 {
		rp.InitialDelay = 500 * time.Millisecond
	}
	if rp.MaxDelay == 0 {
		rp.MaxDelay = 10 * time.Second
	}
	if rp.BackoffMultiplier == 0 {
		rp.BackoffMultiplier = 2
	}
	if rp.Backoff == "" {
		rp.Backoff = domain.BackoffExponential
	}
	if rp.RetryAfterExhaustion == 0 {
		rp.RetryAfterExhaustion = time.Minute
	}
}

// applyCredentialEnv merges MAILFLOW_<ID>_<KEY> environment variables into
// the provider's credentials, e.g. MAILFLOW_SES_ACCESS_KEY for provider
// id "ses" credential "access_key".
func applyCredentialEnv(p *domain.ProviderConfig) {
	if p.Credentials == nil {
		p.Credentials = make(map[string]string)
	}
	for _, key := range []string{
		"access_key", "secret_key", "region",
		"host", "port", "username", "password",
		"from_name", "from_email",
	} {
		env := "MAILFLOW_" + envToken(p.ID) + "_" + envToken(key)
		if v := os.Getenv(env); v != "" {
			p.Credentials[key] = v
		}
	}
}

func envToken(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
			out = append(out, c-'a'+'A')
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
