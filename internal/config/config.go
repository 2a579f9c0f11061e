package config

import (
	"context"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics/recommendation"
)

// Package config provides configuration management for the forecast service.
//
// Responsibilities:
//   - Load configuration from YAML files, .env files and environment variables
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Reload configuration when the file changes
//   - Establish reasonable defaults
//
// Configuration Sources (priority order, high to low):
//   1. Environment variables (FORECAST_* prefix, dots become underscores)
//   2. .env files, loaded into the environment without overriding it
//   3. YAML config file (default: /etc/kubilitics/forecast.yaml)
//   4. Built-in defaults (lowest priority)
//
// Main Configuration Sections:
//
//   1. Server
//      - port: HTTP listen port (default 8090)
//      - grpc_port: gRPC health port (default 8091, 0 disables)
//      - allowed_origins: CORS origins
//      - rate_limit_per_minute / rate_limit_burst: per-client request limits
//
//   2. Database
//      - type: "sqlite" | "postgres"
//      - sqlite_path: Path to SQLite file
//      - postgres_url: PostgreSQL connection string
//
//   3. Cache
//      - backend: "none" | "memory" | "redis"
//      - ttl_seconds: Record cache lifetime
//      - redis_addr / redis_password / redis_db
//
//   4. Analytics
//      - default_horizon / max_horizon / lookback_multiplier
//      - noise_enabled / noise_scale / noise_seed
//      - quality_assessor / accuracy_estimator: "static" | "measured"
//      - priority_sort: order recommendations by priority
//      - thresholds: recommendation rule thresholds
//
//   5. Logging
//      - level: "debug" | "info" | "warn" | "error"
//      - format: "json" | "console"
//      - file_path: optional rotated log file
//
//   6. Tracing
//      - endpoint: OTLP collector; empty disables tracing
//      - protocol: "grpc" | "http"
//
//   7. Scheduler
//      - enabled: periodically warm reports for configured tenants
//      - spec: cron expression
//      - tenants / horizon / domains
//      - retention_days: prune records older than N days

// ConfigManager loads and serves configuration.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration file changes.
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// Config is the complete service configuration.
type Config struct {
	Server struct {
		Port               int      `yaml:"port" json:"port"`
		GRPCPort           int      `yaml:"grpc_port" json:"grpc_port"`
		AllowedOrigins     []string `yaml:"allowed_origins" json:"allowed_origins"`
		ReadTimeoutSec     int      `yaml:"read_timeout_seconds" json:"read_timeout_seconds"`
		WriteTimeoutSec    int      `yaml:"write_timeout_seconds" json:"write_timeout_seconds"`
		RateLimitPerMinute int      `yaml:"rate_limit_per_minute" json:"rate_limit_per_minute"`
		RateLimitBurst     int      `yaml:"rate_limit_burst" json:"rate_limit_burst"`
	} `yaml:"server" json:"server"`

	Database struct {
		Type        string `yaml:"type" json:"type"`
		SQLitePath  string `yaml:"sqlite_path" json:"sqlite_path"`
		PostgresURL string `yaml:"postgres_url" json:"-"`
		MaxOpenConn int    `yaml:"max_open_conns" json:"max_open_conns"`
	} `yaml:"database" json:"database"`

	Cache struct {
		Backend       string `yaml:"backend" json:"backend"`
		TTLSeconds    int    `yaml:"ttl_seconds" json:"ttl_seconds"`
		MaxEntries    int    `yaml:"max_entries" json:"max_entries"`
		RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
		RedisPassword string `yaml:"redis_password" json:"-"`
		RedisDB       int    `yaml:"redis_db" json:"redis_db"`
	} `yaml:"cache" json:"cache"`

	Analytics struct {
		DefaultHorizon     int                       `yaml:"default_horizon" json:"default_horizon"`
		MaxHorizon         int                       `yaml:"max_horizon" json:"max_horizon"`
		LookbackMultiplier int                       `yaml:"lookback_multiplier" json:"lookback_multiplier"`
		NoiseEnabled       bool                      `yaml:"noise_enabled" json:"noise_enabled"`
		NoiseScale         float64                   `yaml:"noise_scale" json:"noise_scale"`
		NoiseSeed          int64                     `yaml:"noise_seed" json:"noise_seed"`
		QualityAssessor    string                    `yaml:"quality_assessor" json:"quality_assessor"`
		AccuracyEstimator  string                    `yaml:"accuracy_estimator" json:"accuracy_estimator"`
		PrioritySort       bool                      `yaml:"priority_sort" json:"priority_sort"`
		Thresholds         recommendation.Thresholds `yaml:"thresholds" json:"thresholds"`
	} `yaml:"analytics" json:"analytics"`

	Logging struct {
		Level      string `yaml:"level" json:"level"`
		Format     string `yaml:"format" json:"format"`
		FilePath   string `yaml:"file_path" json:"file_path"`
		MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups" json:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
		Compress   bool   `yaml:"compress" json:"compress"`
	} `yaml:"logging" json:"logging"`

	Tracing struct {
		Endpoint     string  `yaml:"endpoint" json:"endpoint"`
		Protocol     string  `yaml:"protocol" json:"protocol"`
		ServiceName  string  `yaml:"service_name" json:"service_name"`
		SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate"`
		Insecure     bool    `yaml:"insecure" json:"insecure"`
	} `yaml:"tracing" json:"tracing"`

	Scheduler struct {
		Enabled bool     `yaml:"enabled" json:"enabled"`
		Spec    string   `yaml:"spec" json:"spec"`
		Tenants []string `yaml:"tenants" json:"tenants"`
		Domains []string `yaml:"domains" json:"domains"`
		Horizon int      `yaml:"horizon" json:"horizon"`

		// RetentionDays prunes older records daily; 0 keeps everything.
		RetentionDays int `yaml:"retention_days" json:"retention_days"`
	} `yaml:"scheduler" json:"scheduler"`
}

// NewConfigManager creates a new configuration manager. envFiles are .env
// files loaded before the YAML file; missing ones are skipped.
func NewConfigManager(configPath string, envFiles ...string) (ConfigManager, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	return &viperConfigManager{
		configPath: configPath,
		envFiles:   envFiles,
		watchChan:  make(chan Config, 10),
	}, nil
}
