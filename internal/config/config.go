package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the SPI processes.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Reconcile ReconcileConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	LogLevel           string
	RateLimitPerMinute int
	UploadMaxBytes     int64
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
}

type QueueConfig struct {
	Name       string
	JobTimeout time.Duration
	FailureTTL time.Duration
}

type WorkerConfig struct {
	Concurrency int
	PollTimeout time.Duration
}

type ReconcileConfig struct {
	Period time.Duration
}

type MetricsConfig struct {
	Port int
}

var validLogLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("SPI_PORT", 8080),
			Env:                envString("SPI_ENV", "development"),
			LogLevel:           strings.ToLower(envString("SPI_LOG_LEVEL", "info")),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 120),
			UploadMaxBytes:     int64(envInt("UPLOAD_MAX_BYTES", 64<<20)),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("AUTH_JWT_SECRET"),
			Issuer:    os.Getenv("AUTH_ISSUER"),
			Audience:  os.Getenv("AUTH_AUDIENCE"),
		},
		Queue: QueueConfig{
			Name:       envString("QUEUE_NAME", "jobs"),
			JobTimeout: envDurationSecs("QUEUE_JOB_TIMEOUT_SECS", 10*time.Minute),
			FailureTTL: envDuration("QUEUE_FAILURE_TTL", 14*24*time.Hour),
		},
		Worker: WorkerConfig{
			Concurrency: envInt("WORKER_CONCURRENCY", 2),
			PollTimeout: envDuration("WORKER_POLL_TIMEOUT", 5*time.Second),
		},
		Reconcile: ReconcileConfig{
			Period: envDuration("RECONCILE_PERIOD", 15*time.Second),
		},
		Metrics: MetricsConfig{
			Port: envInt("METRICS_PORT", 9090),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if _, ok := validLogLevels[c.Server.LogLevel]; !ok {
		return fmt.Errorf("SPI_LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Server.LogLevel)
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.Worker.Concurrency)
	}
	if c.Reconcile.Period <= 0 {
		return fmt.Errorf("RECONCILE_PERIOD must be positive, got %s", c.Reconcile.Period)
	}
	if c.Queue.JobTimeout <= 0 {
		return fmt.Errorf("QUEUE_JOB_TIMEOUT_SECS must be positive, got %s", c.Queue.JobTimeout)
	}

	return nil
}

// ValidateServe checks the settings only the HTTP server needs.
func (c *Config) ValidateServe() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if c.Server.RateLimitPerMinute < 1 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be at least 1, got %d", c.Server.RateLimitPerMinute)
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	return validLogLevels[c.Server.LogLevel]
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
