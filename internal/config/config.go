// Package config provides environment-aware configuration management.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	platformruntime "github.com/jirsi-platform/core/internal/runtime"
	"github.com/joho/godotenv"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// Config holds all application configuration, loaded once at startup.
type Config struct {
	Env Environment

	// Database / queue connection strings (spec §6 Environment).
	DatabaseURL  string
	QueueRedisURL string

	// Security
	EncryptionKey   string // ENCRYPTION_KEY, 32 bytes hex, used for credential storage
	WebhookBaseURL  string
	SessionDuration time.Duration
	JWTSigningKey   string
	JWTExpiry       time.Duration

	// HTTP
	ListenAddr string
	CORSOrigins []string

	// Logging
	LogLevel  string
	LogFormat string

	// Tenant Context / Rate Limiter (component A/B)
	ReservedSubdomains []string
	RateLimitRequests  int           // requests_per_window default
	RateLimitWindow    time.Duration // window_secs default
	RateLimitBurst     int           // burst_size default

	// Event Store (component C)
	SnapshotThreshold   int           // events-since-last-snapshot before a snapshot is taken
	SnapshotRetainCount int           // most recent snapshots kept per aggregate
	SnapshotMaxAge      time.Duration // snapshots older than this are pruned

	// Job Queue (component G)
	JobLeaseDuration time.Duration
	JobDefaultTimeout time.Duration

	// Plugin Sandbox (component I) - profile overrides, zero means "use built-in default"
	SandboxUntrustedFuel     int64
	SandboxUntrustedMemory   int64
	SandboxUntrustedTimeout  time.Duration
	SandboxAllowedHTTPPrefixes []string

	// Features
	EnableDebugEndpoints bool
	MetricsEnabled       bool
	MetricsPort          int
	TestMode             bool
}

// Load reads JIRSI_ENV (development/testing/production), loads the matching
// config/{env}.env file via godotenv if present, then populates Config from
// the process environment with typed defaults.
func Load() (*Config, error) {
	envStr := os.Getenv("JIRSI_ENV")
	if envStr == "" {
		envStr = string(platformruntime.Development)
	}

	parsedEnv, ok := platformruntime.ParseEnvironment(envStr)
	if !ok {
		return nil, fmt.Errorf("invalid JIRSI_ENV: %s (must be development, testing, or production)", envStr)
	}
	env := Environment(parsedEnv)

	configFile := filepath.Join("config", fmt.Sprintf("%s.env", env))
	if err := godotenv.Load(configFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", configFile, err)
		}
	}

	cfg := &Config{Env: env}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	var err error

	c.DatabaseURL = getEnv("DATABASE_URL", "postgres://localhost:5432/jirsi?sslmode=disable")
	c.QueueRedisURL = getEnv("QUEUE_REDIS_URL", "redis://localhost:6379/0")

	c.EncryptionKey = getEnv("ENCRYPTION_KEY", "")
	c.WebhookBaseURL = getEnv("WEBHOOK_BASE_URL", "")
	sessionDuration := getEnv("SESSION_DURATION", "24h")
	if c.SessionDuration, err = time.ParseDuration(sessionDuration); err != nil {
		return fmt.Errorf("invalid SESSION_DURATION: %w", err)
	}
	c.JWTSigningKey = getEnv("JWT_SIGNING_KEY", "")
	jwtExpiry := getEnv("JWT_EXPIRY", "15m")
	if c.JWTExpiry, err = time.ParseDuration(jwtExpiry); err != nil {
		return fmt.Errorf("invalid JWT_EXPIRY: %w", err)
	}

	c.ListenAddr = getEnv("LISTEN_ADDR", ":8080")
	c.CORSOrigins = strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "*"), ",")

	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "json")

	c.ReservedSubdomains = strings.Split(getEnv("TENANT_RESERVED_SUBDOMAINS", "www,api,app"), ",")
	c.RateLimitRequests = getIntEnv("RATE_LIMIT_REQUESTS_PER_WINDOW", 1000)
	rateLimitWindow := getEnv("RATE_LIMIT_WINDOW", "60s")
	if c.RateLimitWindow, err = time.ParseDuration(rateLimitWindow); err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_WINDOW: %w", err)
	}
	c.RateLimitBurst = getIntEnv("RATE_LIMIT_BURST", 100)

	c.SnapshotThreshold = getIntEnv("SNAPSHOT_THRESHOLD", 100)
	c.SnapshotRetainCount = getIntEnv("SNAPSHOT_RETAIN_COUNT", 3)
	snapshotMaxAge := getEnv("SNAPSHOT_MAX_AGE", "720h") // 30 days
	if c.SnapshotMaxAge, err = time.ParseDuration(snapshotMaxAge); err != nil {
		return fmt.Errorf("invalid SNAPSHOT_MAX_AGE: %w", err)
	}

	jobLease := getEnv("JOB_LEASE_DURATION", "5m")
	if c.JobLeaseDuration, err = time.ParseDuration(jobLease); err != nil {
		return fmt.Errorf("invalid JOB_LEASE_DURATION: %w", err)
	}
	jobTimeout := getEnv("JOB_DEFAULT_TIMEOUT", "5m")
	if c.JobDefaultTimeout, err = time.ParseDuration(jobTimeout); err != nil {
		return fmt.Errorf("invalid JOB_DEFAULT_TIMEOUT: %w", err)
	}

	c.SandboxUntrustedFuel = int64(getIntEnv("SANDBOX_UNTRUSTED_FUEL", 100_000_000))
	c.SandboxUntrustedMemory = int64(getIntEnv("SANDBOX_UNTRUSTED_MEMORY_BYTES", 16*1024*1024))
	sandboxTimeout := getEnv("SANDBOX_UNTRUSTED_TIMEOUT", "5s")
	if c.SandboxUntrustedTimeout, err = time.ParseDuration(sandboxTimeout); err != nil {
		return fmt.Errorf("invalid SANDBOX_UNTRUSTED_TIMEOUT: %w", err)
	}
	if prefixes := getEnv("SANDBOX_ALLOWED_HTTP_PREFIXES", ""); prefixes != "" {
		c.SandboxAllowedHTTPPrefixes = strings.Split(prefixes, ",")
	}

	c.EnableDebugEndpoints = getBoolEnv("ENABLE_DEBUG_ENDPOINTS", false)
	c.MetricsEnabled = getBoolEnv("METRICS_ENABLED", c.Env == Production)
	c.MetricsPort = getIntEnv("METRICS_PORT", 9090)
	c.TestMode = getBoolEnv("TEST_MODE", false)

	return nil
}

func (c *Config) IsDevelopment() bool { return c.Env == Development }
func (c *Config) IsTesting() bool     { return c.Env == Testing }
func (c *Config) IsProduction() bool  { return c.Env == Production }

// Validate enforces production-only constraints.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.EnableDebugEndpoints {
			return fmt.Errorf("ENABLE_DEBUG_ENDPOINTS must be false in production")
		}
		if c.TestMode {
			return fmt.Errorf("TEST_MODE must be false in production")
		}
		if c.RateLimitRequests <= 0 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS_PER_WINDOW must be set in production")
		}
		key := strings.TrimSpace(c.EncryptionKey)
		if key == "" {
			return fmt.Errorf("ENCRYPTION_KEY is required in production")
		}
		if len(key) != 64 { // 32 bytes hex-encoded
			return fmt.Errorf("ENCRYPTION_KEY must be 32 bytes hex-encoded (64 chars), got %d", len(key))
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
