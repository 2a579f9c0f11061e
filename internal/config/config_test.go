package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Server defaults
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 8091, cfg.Server.GRPCPort)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)

	// Database defaults
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.NotEmpty(t, cfg.Database.SQLitePath)

	// Cache defaults
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 300, cfg.Cache.TTLSeconds)

	// Analytics defaults
	assert.Equal(t, 7, cfg.Analytics.DefaultHorizon)
	assert.Equal(t, 90, cfg.Analytics.MaxHorizon)
	assert.Equal(t, 4, cfg.Analytics.LookbackMultiplier)
	assert.False(t, cfg.Analytics.NoiseEnabled)
	assert.Equal(t, "measured", cfg.Analytics.QualityAssessor)
	assert.Equal(t, 0.9, cfg.Analytics.Thresholds.DeliveryTarget)
	assert.Equal(t, 2, cfg.Analytics.Thresholds.BottleneckCount)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Tracing and scheduler are off by default
	assert.Empty(t, cfg.Tracing.Endpoint)
	assert.False(t, cfg.Scheduler.Enabled)

	assert.Empty(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		modifyFn  func(*Config)
		wantError bool
		errorMsg  string
	}{
		{
			name:      "valid default config",
			modifyFn:  func(cfg *Config) {},
			wantError: false,
		},
		{
			name:      "invalid port - too low",
			modifyFn:  func(cfg *Config) { cfg.Server.Port = 0 },
			wantError: true,
			errorMsg:  "port must be between 1 and 65535",
		},
		{
			name:      "grpc port clashes with http port",
			modifyFn:  func(cfg *Config) { cfg.Server.GRPCPort = cfg.Server.Port },
			wantError: true,
			errorMsg:  "grpc_port must differ",
		},
		{
			name:      "grpc disabled",
			modifyFn:  func(cfg *Config) { cfg.Server.GRPCPort = 0 },
			wantError: false,
		},
		{
			name:      "invalid database type",
			modifyFn:  func(cfg *Config) { cfg.Database.Type = "mongodb" },
			wantError: true,
			errorMsg:  "invalid database type",
		},
		{
			name:      "postgres without url",
			modifyFn:  func(cfg *Config) { cfg.Database.Type = "postgres" },
			wantError: true,
			errorMsg:  "postgres_url is required",
		},
		{
			name: "redis with bad address",
			modifyFn: func(cfg *Config) {
				cfg.Cache.Backend = "redis"
				cfg.Cache.RedisAddr = "localhost"
			},
			wantError: true,
			errorMsg:  "invalid address format",
		},
		{
			name:      "unknown cache backend",
			modifyFn:  func(cfg *Config) { cfg.Cache.Backend = "memcached" },
			wantError: true,
			errorMsg:  "invalid cache backend",
		},
		{
			name:      "cache disabled ignores ttl",
			modifyFn:  func(cfg *Config) { cfg.Cache.Backend = "none"; cfg.Cache.TTLSeconds = 0 },
			wantError: false,
		},
		{
			name:      "default horizon above max",
			modifyFn:  func(cfg *Config) { cfg.Analytics.DefaultHorizon = 120 },
			wantError: true,
			errorMsg:  "default_horizon must be between 1 and max_horizon",
		},
		{
			name:      "unknown quality assessor",
			modifyFn:  func(cfg *Config) { cfg.Analytics.QualityAssessor = "magic" },
			wantError: true,
			errorMsg:  "must be one of: static, measured",
		},
		{
			name:      "delivery target above one",
			modifyFn:  func(cfg *Config) { cfg.Analytics.Thresholds.DeliveryTarget = 1.2 },
			wantError: true,
			errorMsg:  "delivery_target must be in (0, 1]",
		},
		{
			name:      "negative growth threshold",
			modifyFn:  func(cfg *Config) { cfg.Analytics.Thresholds.CostGrowth = -0.1 },
			wantError: true,
			errorMsg:  "must not be negative",
		},
		{
			name:      "invalid log level",
			modifyFn:  func(cfg *Config) { cfg.Logging.Level = "invalid" },
			wantError: true,
			errorMsg:  "invalid log level",
		},
		{
			name:      "invalid log format",
			modifyFn:  func(cfg *Config) { cfg.Logging.Format = "text" },
			wantError: true,
			errorMsg:  "invalid log format",
		},
		{
			name: "tracing with bad protocol",
			modifyFn: func(cfg *Config) {
				cfg.Tracing.Endpoint = "localhost:4317"
				cfg.Tracing.Protocol = "udp"
			},
			wantError: true,
			errorMsg:  "invalid protocol",
		},
		{
			name: "scheduler with bad cron",
			modifyFn: func(cfg *Config) {
				cfg.Scheduler.Enabled = true
				cfg.Scheduler.Tenants = []string{"acme"}
				cfg.Scheduler.Spec = "every minute"
			},
			wantError: true,
			errorMsg:  "invalid cron expression",
		},
		{
			name: "scheduler without tenants",
			modifyFn: func(cfg *Config) {
				cfg.Scheduler.Enabled = true
			},
			wantError: true,
			errorMsg:  "at least one tenant",
		},
		{
			name: "valid scheduler",
			modifyFn: func(cfg *Config) {
				cfg.Scheduler.Enabled = true
				cfg.Scheduler.Tenants = []string{"acme"}
			},
			wantError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modifyFn(cfg)

			errs := cfg.Validate()

			if !tt.wantError {
				assert.Empty(t, errs, "expected no validation errors but got: %v", errs)
				return
			}
			require.NotEmpty(t, errs, "expected validation errors but got none")
			found := false
			for _, err := range errs {
				var ve *ValidationError
				assert.ErrorAs(t, err, &ve)
				if strings.Contains(err.Error(), tt.errorMsg) {
					found = true
				}
			}
			assert.True(t, found, "expected error message containing '%s', got: %v", tt.errorMsg, errs)
		})
	}
}

func TestConfigManagerLoad(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "forecast.yaml")
	configContent := `
server:
  port: 9090
  allowed_origins:
    - "https://app.example.com"

database:
  type: "postgres"
  postgres_url: "postgres://forecast@db/forecast?sslmode=disable"

cache:
  backend: "redis"
  redis_addr: "redis:6379"

analytics:
  max_horizon: 30
  noise_enabled: true
  noise_seed: 42
  thresholds:
    delivery_target: 0.97

logging:
  level: "debug"
  format: "console"

scheduler:
  enabled: true
  spec: "0 * * * *"
  tenants: ["acme", "globex"]
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	require.NotNil(t, cfg)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "postgres://forecast@db/forecast?sslmode=disable", cfg.Database.PostgresURL)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, 30, cfg.Analytics.MaxHorizon)
	assert.True(t, cfg.Analytics.NoiseEnabled)
	assert.Equal(t, int64(42), cfg.Analytics.NoiseSeed)
	assert.Equal(t, 0.97, cfg.Analytics.Thresholds.DeliveryTarget)
	// Unset thresholds keep their defaults.
	assert.Equal(t, 0.05, cfg.Analytics.Thresholds.DemandGrowth)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, []string{"acme", "globex"}, cfg.Scheduler.Tenants)
	assert.Equal(t, []string{"all"}, cfg.Scheduler.Domains)

	assert.NoError(t, mgr.Validate(ctx))
}

func TestConfigManagerEnvironmentOverrides(t *testing.T) {
	t.Setenv("FORECAST_SERVER_PORT", "7070")
	t.Setenv("FORECAST_ANALYTICS_THRESHOLDS_BOTTLENECK_COUNT", "5")
	t.Setenv("FORECAST_CACHE_BACKEND", "none")
	t.Setenv("DATABASE_URL", "postgres://env@db/forecast")

	configPath := filepath.Join(t.TempDir(), "forecast.yaml")
	configContent := `
server:
  port: 8090
cache:
  backend: "memory"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))
	cfg := mgr.Get(ctx)

	assert.Equal(t, 7070, cfg.Server.Port, "port should be overridden by environment variable")
	assert.Equal(t, 5, cfg.Analytics.Thresholds.BottleneckCount)
	assert.Equal(t, "none", cfg.Cache.Backend)
	assert.Equal(t, "postgres://env@db/forecast", cfg.Database.PostgresURL)
}

func TestConfigManagerEnvFile(t *testing.T) {
	// Register cleanup, then clear so godotenv may set the variable.
	t.Setenv("FORECAST_LOGGING_LEVEL", "")
	require.NoError(t, os.Unsetenv("FORECAST_LOGGING_LEVEL"))

	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("FORECAST_LOGGING_LEVEL=warn\n"), 0600))

	mgr, err := NewConfigManager(filepath.Join(dir, "missing.yaml"), envPath, filepath.Join(dir, ".env.local"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))
	assert.Equal(t, "warn", mgr.Get(ctx).Logging.Level)
}

func TestConfigManagerMissingFile(t *testing.T) {
	mgr, err := NewConfigManager(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	require.NotNil(t, cfg)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Type)
}

func TestConfigManagerValidation(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "forecast.yaml")
	configContent := `
server:
  port: 99999
database:
  type: "oracle"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	err = mgr.Validate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "database.type")
}

func TestConfigManagerValidateBeforeLoad(t *testing.T) {
	mgr, err := NewConfigManager("")
	require.NoError(t, err)
	assert.Error(t, mgr.Validate(context.Background()))
}

func TestConfigManagerReload(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "forecast.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 9000\n"), 0644))

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))
	assert.Equal(t, 9000, mgr.Get(ctx).Server.Port)

	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 9100\n"), 0644))
	require.NoError(t, mgr.Reload(ctx))
	assert.Equal(t, 9100, mgr.Get(ctx).Server.Port)
}

func TestConfigManagerWatch(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "forecast.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("analytics:\n  max_horizon: 60\n"), 0644))

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	updates := mgr.Watch(ctx)
	require.NoError(t, os.WriteFile(configPath, []byte("analytics:\n  max_horizon: 45\n"), 0644))

	select {
	case cfg := <-updates:
		assert.Equal(t, 45, cfg.Analytics.MaxHorizon)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config change")
	}
}
