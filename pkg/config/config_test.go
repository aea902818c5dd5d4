package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floworks/flowgate/pkg/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("FLOWGATE_POSTGRES_URL", "postgres://localhost/flowgate")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.OpsPort)
	assert.Equal(t, 25, cfg.Database.MaxConns)
	assert.Equal(t, 5, cfg.Database.MinConns)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "lru", cfg.Cache.Backend)
	assert.Equal(t, 10000, cfg.Cache.Size)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, 90*24*time.Hour, cfg.Audit.Retention)
	assert.Equal(t, "0 3 * * *", cfg.Audit.SweepSchedule)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.False(t, cfg.Observability.OTelEnabled)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("FLOWGATE_POSTGRES_URL", "postgres://db/flowgate")
	t.Setenv("FLOWGATE_PORT", "3000")
	t.Setenv("FLOWGATE_CACHE_BACKEND", "redis")
	t.Setenv("FLOWGATE_REDIS_URL", "redis://cache:6379/0")
	t.Setenv("FLOWGATE_CACHE_TTL", "2m")
	t.Setenv("FLOWGATE_AUDIT_ENABLED", "false")
	t.Setenv("FLOWGATE_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
	assert.False(t, cfg.Audit.Enabled)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("FLOWGATE_POSTGRES_URL", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres URL is required")
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", OpsPort: "9090"},
		Database: DatabaseConfig{
			URL: "postgres://localhost/flowgate", MaxConns: 25, MinConns: 5,
		},
		Cache: CacheConfig{Enabled: true, Backend: "lru", Size: 100, TTL: time.Minute},
		Audit: AuditConfig{Enabled: true, Retention: time.Hour},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port clash", func(c *Config) { c.Server.OpsPort = c.Server.Port }, "must be different"},
		{"min conns above max", func(c *Config) { c.Database.MinConns = 50 }, "exceed max"},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "memcached" }, "invalid cache backend"},
		{"redis backend without url", func(c *Config) { c.Cache.Backend = "redis" }, "redis URL is required"},
		{"non-positive cache size", func(c *Config) { c.Cache.Size = 0 }, "cache size"},
		{"non-positive cache ttl", func(c *Config) { c.Cache.TTL = 0 }, "cache TTL"},
		{"non-positive retention", func(c *Config) { c.Audit.Retention = 0 }, "audit retention"},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelServiceName = "flowgate"
		}, "endpoint is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestCacheValidationSkippedWhenDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.Cache = CacheConfig{Enabled: false, Backend: "memcached"}
	assert.NoError(t, cfg.Validate())
}
