package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	envFiles   []string

	mu        sync.RWMutex
	config    *Config
	viper     *viper.Viper
	watchChan chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	if err := m.loadEnvFiles(); err != nil {
		return err
	}

	m.viper = viper.New()
	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix(EnvPrefix)
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	// The config file is optional; defaults and env vars still apply.
	if err := m.readConfigFile(); err != nil {
		return err
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	m.applyEnvOverrides()
	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	cfg := m.Get(ctx)
	if cfg == nil {
		return errors.New("configuration not loaded")
	}
	errs := cfg.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads. Updates are dropped
// when the channel is full.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		m.applyEnvOverrides()
		cfg := m.Get(ctx)
		if len(cfg.Validate()) > 0 {
			return
		}
		select {
		case m.watchChan <- *cfg:
		default:
		}
	})
	m.viper.WatchConfig()
	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if err := m.readConfigFile(); err != nil {
		return err
	}
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	m.applyEnvOverrides()
	return nil
}

func (m *viperConfigManager) loadEnvFiles() error {
	for _, f := range m.envFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("error loading env file %s: %w", f, err)
		}
	}
	return nil
}

func (m *viperConfigManager) readConfigFile() error {
	err := m.viper.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("error reading config file: %w", err)
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	// Server defaults
	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.grpc_port", defaults.Server.GRPCPort)
	m.viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)
	m.viper.SetDefault("server.read_timeout_seconds", defaults.Server.ReadTimeoutSec)
	m.viper.SetDefault("server.write_timeout_seconds", defaults.Server.WriteTimeoutSec)
	m.viper.SetDefault("server.rate_limit_per_minute", defaults.Server.RateLimitPerMinute)
	m.viper.SetDefault("server.rate_limit_burst", defaults.Server.RateLimitBurst)

	// Database defaults
	m.viper.SetDefault("database.type", defaults.Database.Type)
	m.viper.SetDefault("database.sqlite_path", defaults.Database.SQLitePath)
	m.viper.SetDefault("database.postgres_url", defaults.Database.PostgresURL)
	m.viper.SetDefault("database.max_open_conns", defaults.Database.MaxOpenConn)

	// Cache defaults
	m.viper.SetDefault("cache.backend", defaults.Cache.Backend)
	m.viper.SetDefault("cache.ttl_seconds", defaults.Cache.TTLSeconds)
	m.viper.SetDefault("cache.max_entries", defaults.Cache.MaxEntries)
	m.viper.SetDefault("cache.redis_addr", defaults.Cache.RedisAddr)
	m.viper.SetDefault("cache.redis_password", defaults.Cache.RedisPassword)
	m.viper.SetDefault("cache.redis_db", defaults.Cache.RedisDB)

	// Analytics defaults
	a := defaults.Analytics
	m.viper.SetDefault("analytics.default_horizon", a.DefaultHorizon)
	m.viper.SetDefault("analytics.max_horizon", a.MaxHorizon)
	m.viper.SetDefault("analytics.lookback_multiplier", a.LookbackMultiplier)
	m.viper.SetDefault("analytics.noise_enabled", a.NoiseEnabled)
	m.viper.SetDefault("analytics.noise_scale", a.NoiseScale)
	m.viper.SetDefault("analytics.noise_seed", a.NoiseSeed)
	m.viper.SetDefault("analytics.quality_assessor", a.QualityAssessor)
	m.viper.SetDefault("analytics.accuracy_estimator", a.AccuracyEstimator)
	m.viper.SetDefault("analytics.priority_sort", a.PrioritySort)
	m.viper.SetDefault("analytics.thresholds.demand_growth", a.Thresholds.DemandGrowth)
	m.viper.SetDefault("analytics.thresholds.demand_decline", a.Thresholds.DemandDecline)
	m.viper.SetDefault("analytics.thresholds.bottleneck_count", a.Thresholds.BottleneckCount)
	m.viper.SetDefault("analytics.thresholds.cost_growth", a.Thresholds.CostGrowth)
	m.viper.SetDefault("analytics.thresholds.delivery_target", a.Thresholds.DeliveryTarget)
	m.viper.SetDefault("analytics.thresholds.emissions_growth", a.Thresholds.EmissionsGrowth)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.file_path", defaults.Logging.FilePath)
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)
	m.viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Tracing defaults
	m.viper.SetDefault("tracing.endpoint", defaults.Tracing.Endpoint)
	m.viper.SetDefault("tracing.protocol", defaults.Tracing.Protocol)
	m.viper.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)
	m.viper.SetDefault("tracing.sampling_rate", defaults.Tracing.SamplingRate)
	m.viper.SetDefault("tracing.insecure", defaults.Tracing.Insecure)

	// Scheduler defaults
	m.viper.SetDefault("scheduler.enabled", defaults.Scheduler.Enabled)
	m.viper.SetDefault("scheduler.spec", defaults.Scheduler.Spec)
	m.viper.SetDefault("scheduler.tenants", defaults.Scheduler.Tenants)
	m.viper.SetDefault("scheduler.domains", defaults.Scheduler.Domains)
	m.viper.SetDefault("scheduler.horizon", defaults.Scheduler.Horizon)
	m.viper.SetDefault("scheduler.retention_days", defaults.Scheduler.RetentionDays)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}
	v := m.viper

	// Server
	cfg.Server.Port = v.GetInt("server.port")
	cfg.Server.GRPCPort = v.GetInt("server.grpc_port")
	cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	cfg.Server.ReadTimeoutSec = v.GetInt("server.read_timeout_seconds")
	cfg.Server.WriteTimeoutSec = v.GetInt("server.write_timeout_seconds")
	cfg.Server.RateLimitPerMinute = v.GetInt("server.rate_limit_per_minute")
	cfg.Server.RateLimitBurst = v.GetInt("server.rate_limit_burst")

	// Database
	cfg.Database.Type = v.GetString("database.type")
	cfg.Database.SQLitePath = v.GetString("database.sqlite_path")
	cfg.Database.PostgresURL = v.GetString("database.postgres_url")
	cfg.Database.MaxOpenConn = v.GetInt("database.max_open_conns")

	// Cache
	cfg.Cache.Backend = v.GetString("cache.backend")
	cfg.Cache.TTLSeconds = v.GetInt("cache.ttl_seconds")
	cfg.Cache.MaxEntries = v.GetInt("cache.max_entries")
	cfg.Cache.RedisAddr = v.GetString("cache.redis_addr")
	cfg.Cache.RedisPassword = v.GetString("cache.redis_password")
	cfg.Cache.RedisDB = v.GetInt("cache.redis_db")

	// Analytics
	cfg.Analytics.DefaultHorizon = v.GetInt("analytics.default_horizon")
	cfg.Analytics.MaxHorizon = v.GetInt("analytics.max_horizon")
	cfg.Analytics.LookbackMultiplier = v.GetInt("analytics.lookback_multiplier")
	cfg.Analytics.NoiseEnabled = v.GetBool("analytics.noise_enabled")
	cfg.Analytics.NoiseScale = v.GetFloat64("analytics.noise_scale")
	cfg.Analytics.NoiseSeed = v.GetInt64("analytics.noise_seed")
	cfg.Analytics.QualityAssessor = v.GetString("analytics.quality_assessor")
	cfg.Analytics.AccuracyEstimator = v.GetString("analytics.accuracy_estimator")
	cfg.Analytics.PrioritySort = v.GetBool("analytics.priority_sort")
	cfg.Analytics.Thresholds.DemandGrowth = v.GetFloat64("analytics.thresholds.demand_growth")
	cfg.Analytics.Thresholds.DemandDecline = v.GetFloat64("analytics.thresholds.demand_decline")
	cfg.Analytics.Thresholds.BottleneckCount = v.GetInt("analytics.thresholds.bottleneck_count")
	cfg.Analytics.Thresholds.CostGrowth = v.GetFloat64("analytics.thresholds.cost_growth")
	cfg.Analytics.Thresholds.DeliveryTarget = v.GetFloat64("analytics.thresholds.delivery_target")
	cfg.Analytics.Thresholds.EmissionsGrowth = v.GetFloat64("analytics.thresholds.emissions_growth")

	// Logging
	cfg.Logging.Level = v.GetString("logging.level")
	cfg.Logging.Format = v.GetString("logging.format")
	cfg.Logging.FilePath = v.GetString("logging.file_path")
	cfg.Logging.MaxSizeMB = v.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = v.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = v.GetInt("logging.max_age_days")
	cfg.Logging.Compress = v.GetBool("logging.compress")

	// Tracing
	cfg.Tracing.Endpoint = v.GetString("tracing.endpoint")
	cfg.Tracing.Protocol = v.GetString("tracing.protocol")
	cfg.Tracing.ServiceName = v.GetString("tracing.service_name")
	cfg.Tracing.SamplingRate = v.GetFloat64("tracing.sampling_rate")
	cfg.Tracing.Insecure = v.GetBool("tracing.insecure")

	// Scheduler
	cfg.Scheduler.Enabled = v.GetBool("scheduler.enabled")
	cfg.Scheduler.Spec = v.GetString("scheduler.spec")
	cfg.Scheduler.Tenants = v.GetStringSlice("scheduler.tenants")
	cfg.Scheduler.Domains = v.GetStringSlice("scheduler.domains")
	cfg.Scheduler.Horizon = v.GetInt("scheduler.horizon")
	cfg.Scheduler.RetentionDays = v.GetInt("scheduler.retention_days")

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// applyEnvOverrides applies conventional, unprefixed environment variables
// for connection secrets.
func (m *viperConfigManager) applyEnvOverrides() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if url := os.Getenv("DATABASE_URL"); url != "" && os.Getenv(EnvPrefix+"_DATABASE_POSTGRES_URL") == "" {
		m.config.Database.PostgresURL = url
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" && os.Getenv(EnvPrefix+"_CACHE_REDIS_PASSWORD") == "" {
		m.config.Cache.RedisPassword = pw
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" && m.config.Tracing.Endpoint == "" {
		m.config.Tracing.Endpoint = endpoint
	}
}
