package config

import (
	"github.com/kubilitics/kubilitics-forecast/internal/analytics/recommendation"
)

// DefaultConfigPath is read when no config path is given.
const DefaultConfigPath = "/etc/kubilitics/forecast.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FORECAST"

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Port = 8090
	cfg.Server.GRPCPort = 8091
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Server.ReadTimeoutSec = 15
	cfg.Server.WriteTimeoutSec = 60
	cfg.Server.RateLimitPerMinute = 120
	cfg.Server.RateLimitBurst = 20

	// Database defaults
	cfg.Database.Type = "sqlite"
	cfg.Database.SQLitePath = "/var/lib/kubilitics/forecast.db"
	cfg.Database.PostgresURL = ""
	cfg.Database.MaxOpenConn = 10

	// Cache defaults
	cfg.Cache.Backend = "memory"
	cfg.Cache.TTLSeconds = 300
	cfg.Cache.MaxEntries = 1024
	cfg.Cache.RedisAddr = "localhost:6379"
	cfg.Cache.RedisDB = 0

	// Analytics defaults
	cfg.Analytics.DefaultHorizon = 7
	cfg.Analytics.MaxHorizon = 90
	cfg.Analytics.LookbackMultiplier = 4
	cfg.Analytics.NoiseEnabled = false
	cfg.Analytics.NoiseScale = 0.05
	cfg.Analytics.NoiseSeed = 0
	cfg.Analytics.QualityAssessor = "measured"
	cfg.Analytics.AccuracyEstimator = "measured"
	cfg.Analytics.PrioritySort = false
	cfg.Analytics.Thresholds = recommendation.DefaultThresholds()

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 10
	cfg.Logging.MaxAgeDays = 30
	cfg.Logging.Compress = true

	// Tracing defaults (disabled until an endpoint is set)
	cfg.Tracing.Protocol = "grpc"
	cfg.Tracing.ServiceName = "kubilitics-forecast"
	cfg.Tracing.SamplingRate = 1.0
	cfg.Tracing.Insecure = true

	// Scheduler defaults
	cfg.Scheduler.Enabled = false
	cfg.Scheduler.Spec = "*/15 * * * *"
	cfg.Scheduler.Domains = []string{"all"}
	cfg.Scheduler.Horizon = 7
	cfg.Scheduler.RetentionDays = 0

	return cfg
}
