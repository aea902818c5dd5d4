package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/floworks/flowgate/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Cache         CacheConfig
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

	// Ops server (separate port for k8s probes and /metrics)
	OpsPort string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL         string
	ReplicaURLs string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
}

// RedisConfig holds Redis configuration. Redis is optional; when URL is empty
// the decision cache falls back to the in-process LRU.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// CacheConfig holds decision-cache settings
type CacheConfig struct {
	Enabled bool
	Backend string // "lru" or "redis"
	Size    int
	TTL     time.Duration
}

// AuditConfig holds audit sink settings
type AuditConfig struct {
	Enabled       bool
	Retention     time.Duration
	SweepSchedule string
}

// ObservabilityConfig holds logging, metrics and tracing settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("FLOWGATE_HOST", "0.0.0.0"),
			Port:            getEnv("FLOWGATE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("FLOWGATE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("FLOWGATE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("FLOWGATE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("FLOWGATE_SHUTDOWN_TIMEOUT", 30*time.Second),
			OpsPort:         getEnv("FLOWGATE_OPS_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:         getEnv("FLOWGATE_POSTGRES_URL", ""),
			ReplicaURLs: getEnv("FLOWGATE_POSTGRES_REPLICA_URLS", ""),
			MaxConns:    getEnvInt("FLOWGATE_POSTGRES_MAX_CONNS", 25),
			MinConns:    getEnvInt("FLOWGATE_POSTGRES_MIN_CONNS", 5),
			Timeout:     getEnvDuration("FLOWGATE_POSTGRES_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			URL:      getEnv("FLOWGATE_REDIS_URL", ""),
			Password: getEnv("FLOWGATE_REDIS_PASSWORD", ""),
			DB:       getEnvInt("FLOWGATE_REDIS_DB", 0),
			PoolSize: getEnvInt("FLOWGATE_REDIS_POOL_SIZE", 10),
		},
		Cache: CacheConfig{
			Enabled: getEnvBool("FLOWGATE_CACHE_ENABLED", true),
			Backend: getEnv("FLOWGATE_CACHE_BACKEND", "lru"),
			Size:    getEnvInt("FLOWGATE_CACHE_SIZE", 10000),
			TTL:     getEnvDuration("FLOWGATE_CACHE_TTL", 30*time.Second),
		},
		Audit: AuditConfig{
			Enabled:       getEnvBool("FLOWGATE_AUDIT_ENABLED", true),
			Retention:     getEnvDuration("FLOWGATE_AUDIT_RETENTION", 90*24*time.Hour),
			SweepSchedule: getEnv("FLOWGATE_AUDIT_SWEEP_SCHEDULE", "0 3 * * *"),
		},
		Observability: ObservabilityConfig{
			LogLevel:           observability.ParseLogLevel(getEnv("FLOWGATE_LOG_LEVEL", "info")),
			MetricsEnabled:     getEnvBool("FLOWGATE_METRICS_ENABLED", true),
			OTelEnabled:        getEnvBool("FLOWGATE_OTEL_ENABLED", false),
			OTelEndpoint:       getEnv("FLOWGATE_OTEL_ENDPOINT", "localhost:4317"),
			OTelServiceName:    getEnv("FLOWGATE_OTEL_SERVICE_NAME", "flowgate"),
			OTelServiceVersion: getEnv("FLOWGATE_OTEL_SERVICE_VERSION", "1.0.0"),
			OTelInsecure:       getEnvBool("FLOWGATE_OTEL_INSECURE", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.OpsPort == "" {
		return fmt.Errorf("ops port is required")
	}
	if c.Server.Port == c.Server.OpsPort {
		return fmt.Errorf("server port and ops port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("postgres min connections (%d) exceed max connections (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}

	if c.Cache.Enabled {
		switch c.Cache.Backend {
		case "lru":
		case "redis":
			if c.Redis.URL == "" {
				return fmt.Errorf("redis URL is required for the redis cache backend")
			}
		default:
			return fmt.Errorf("invalid cache backend: %s (must be lru or redis)", c.Cache.Backend)
		}
		if c.Cache.Size <= 0 {
			return fmt.Errorf("cache size must be positive")
		}
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("cache TTL must be positive")
		}
	}

	if c.Audit.Enabled && c.Audit.Retention <= 0 {
		return fmt.Errorf("audit retention must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
