// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/campusiq/gatehouse/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig holds optional Redis configuration. When Addr is empty, the
// distributed rate limiter and cache-invalidation fanout are disabled.
type RedisConfig struct {
	Addr     string
	Password string
}

// AuthConfig holds credential settings.
type AuthConfig struct {
	// ImpersonationSecret signs delegated impersonation credentials.
	ImpersonationSecret string
	// ImpersonationTTL bounds how long a delegated credential lives.
	ImpersonationTTL time.Duration
	// PermissionCacheTTL bounds staleness of the flattened permission cache.
	PermissionCacheTTL time.Duration
	// PermissionCacheSize caps the number of cached identities.
	PermissionCacheSize int
}

// AuditConfig holds audit writer settings.
type AuditConfig struct {
	// FilePath enables the NDJSON file logger when non-empty.
	FilePath      string
	RetentionDays int
}

// ObservabilityConfig holds logging/metrics settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("GATEHOUSE_HOST", "0.0.0.0"),
			Port:            getEnv("GATEHOUSE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("GATEHOUSE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("GATEHOUSE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("GATEHOUSE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("GATEHOUSE_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:          getEnv("GATEHOUSE_POSTGRES_URL", ""),
			MaxOpenConns: getEnvInt("GATEHOUSE_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns: getEnvInt("GATEHOUSE_POSTGRES_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("GATEHOUSE_REDIS_ADDR", ""),
			Password: getEnv("GATEHOUSE_REDIS_PASSWORD", ""),
		},
		Auth: AuthConfig{
			ImpersonationSecret: getEnv("GATEHOUSE_IMPERSONATION_SECRET", ""),
			ImpersonationTTL:    getEnvDuration("GATEHOUSE_IMPERSONATION_TTL", 15*time.Minute),
			PermissionCacheTTL:  getEnvDuration("GATEHOUSE_PERMISSION_CACHE_TTL", 5*time.Minute),
			PermissionCacheSize: getEnvInt("GATEHOUSE_PERMISSION_CACHE_SIZE", 10000),
		},
		Audit: AuditConfig{
			FilePath:      getEnv("GATEHOUSE_AUDIT_FILE_PATH", ""),
			RetentionDays: getEnvInt("GATEHOUSE_AUDIT_RETENTION_DAYS", 90),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLogLevel(getEnv("GATEHOUSE_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("GATEHOUSE_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("GATEHOUSE_POSTGRES_URL is required")
	}
	if c.Auth.ImpersonationSecret == "" {
		return fmt.Errorf("GATEHOUSE_IMPERSONATION_SECRET is required")
	}
	if c.Auth.PermissionCacheTTL <= 0 {
		return fmt.Errorf("GATEHOUSE_PERMISSION_CACHE_TTL must be positive")
	}
	if c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("GATEHOUSE_AUDIT_RETENTION_DAYS must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
