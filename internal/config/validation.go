package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateDatabase()...)
	errs = append(errs, c.validateCache()...)
	errs = append(errs, c.validateAnalytics()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateTracing()...)
	errs = append(errs, c.validateScheduler()...)
	return errs
}

func (c *Config) validateServer() []error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, invalid("server.port", "port must be between 1 and 65535, got %d", c.Server.Port))
	}
	// 0 disables the gRPC health listener.
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		errs = append(errs, invalid("server.grpc_port", "port must be between 0 and 65535, got %d", c.Server.GRPCPort))
	} else if c.Server.GRPCPort != 0 && c.Server.GRPCPort == c.Server.Port {
		errs = append(errs, invalid("server.grpc_port", "grpc_port must differ from port %d", c.Server.Port))
	}
	if c.Server.ReadTimeoutSec < 1 {
		errs = append(errs, invalid("server.read_timeout_seconds", "must be at least 1 second, got %d", c.Server.ReadTimeoutSec))
	}
	if c.Server.WriteTimeoutSec < 1 {
		errs = append(errs, invalid("server.write_timeout_seconds", "must be at least 1 second, got %d", c.Server.WriteTimeoutSec))
	}
	if c.Server.RateLimitPerMinute < 0 {
		errs = append(errs, invalid("server.rate_limit_per_minute", "must not be negative, got %d", c.Server.RateLimitPerMinute))
	}
	if c.Server.RateLimitPerMinute > 0 && c.Server.RateLimitBurst < 1 {
		errs = append(errs, invalid("server.rate_limit_burst", "burst must be at least 1 when rate limiting is enabled"))
	}
	return errs
}

func (c *Config) validateDatabase() []error {
	switch c.Database.Type {
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return []error{invalid("database.sqlite_path", "sqlite_path is required for sqlite database")}
		}
	case "postgres":
		if c.Database.PostgresURL == "" {
			return []error{invalid("database.postgres_url", "postgres_url is required for postgres database")}
		}
	default:
		return []error{invalid("database.type", "invalid database type '%s', must be one of: sqlite, postgres", c.Database.Type)}
	}
	return nil
}

func (c *Config) validateCache() []error {
	var errs []error
	switch c.Cache.Backend {
	case "none":
		return nil
	case "memory":
		if c.Cache.MaxEntries < 1 {
			errs = append(errs, invalid("cache.max_entries", "max_entries must be at least 1, got %d", c.Cache.MaxEntries))
		}
	case "redis":
		if _, _, err := net.SplitHostPort(c.Cache.RedisAddr); err != nil {
			errs = append(errs, invalid("cache.redis_addr", "invalid address format (expected host:port): %v", err))
		}
		if c.Cache.RedisDB < 0 {
			errs = append(errs, invalid("cache.redis_db", "redis_db must not be negative, got %d", c.Cache.RedisDB))
		}
	default:
		return []error{invalid("cache.backend", "invalid cache backend '%s', must be one of: none, memory, redis", c.Cache.Backend)}
	}
	if c.Cache.TTLSeconds < 1 {
		errs = append(errs, invalid("cache.ttl_seconds", "ttl must be at least 1 second, got %d", c.Cache.TTLSeconds))
	}
	return errs
}

func (c *Config) validateAnalytics() []error {
	var errs []error
	a := c.Analytics
	if a.MaxHorizon < 1 {
		errs = append(errs, invalid("analytics.max_horizon", "max_horizon must be at least 1, got %d", a.MaxHorizon))
	}
	if a.DefaultHorizon < 1 || a.DefaultHorizon > a.MaxHorizon {
		errs = append(errs, invalid("analytics.default_horizon", "default_horizon must be between 1 and max_horizon (%d), got %d", a.MaxHorizon, a.DefaultHorizon))
	}
	if a.LookbackMultiplier < 1 {
		errs = append(errs, invalid("analytics.lookback_multiplier", "lookback_multiplier must be at least 1, got %d", a.LookbackMultiplier))
	}
	if a.NoiseScale < 0 || a.NoiseScale > 1 {
		errs = append(errs, invalid("analytics.noise_scale", "noise_scale must be between 0 and 1, got %g", a.NoiseScale))
	}
	for field, kind := range map[string]string{
		"analytics.quality_assessor":   a.QualityAssessor,
		"analytics.accuracy_estimator": a.AccuracyEstimator,
	} {
		if kind != "static" && kind != "measured" {
			errs = append(errs, invalid(field, "invalid kind '%s', must be one of: static, measured", kind))
		}
	}
	t := a.Thresholds
	if t.BottleneckCount < 0 {
		errs = append(errs, invalid("analytics.thresholds.bottleneck_count", "must not be negative, got %d", t.BottleneckCount))
	}
	if t.DeliveryTarget <= 0 || t.DeliveryTarget > 1 {
		errs = append(errs, invalid("analytics.thresholds.delivery_target", "delivery_target must be in (0, 1], got %g", t.DeliveryTarget))
	}
	for field, v := range map[string]float64{
		"analytics.thresholds.demand_growth":    t.DemandGrowth,
		"analytics.thresholds.demand_decline":   t.DemandDecline,
		"analytics.thresholds.cost_growth":      t.CostGrowth,
		"analytics.thresholds.emissions_growth": t.EmissionsGrowth,
	} {
		if v < 0 {
			errs = append(errs, invalid(field, "must not be negative, got %g", v))
		}
	}
	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, invalid("logging.level", "invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, invalid("logging.format", "invalid log format '%s', must be one of: json, console", c.Logging.Format))
	}
	return errs
}

func (c *Config) validateTracing() []error {
	if c.Tracing.Endpoint == "" {
		return nil
	}
	var errs []error
	switch strings.ToLower(c.Tracing.Protocol) {
	case "grpc", "http", "http/protobuf":
	default:
		errs = append(errs, invalid("tracing.protocol", "invalid protocol '%s', must be one of: grpc, http", c.Tracing.Protocol))
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		errs = append(errs, invalid("tracing.sampling_rate", "sampling_rate must be between 0 and 1, got %g", c.Tracing.SamplingRate))
	}
	return errs
}

func (c *Config) validateScheduler() []error {
	if !c.Scheduler.Enabled {
		return nil
	}
	var errs []error
	if _, err := cron.ParseStandard(c.Scheduler.Spec); err != nil {
		errs = append(errs, invalid("scheduler.spec", "invalid cron expression %q: %v", c.Scheduler.Spec, err))
	}
	if len(c.Scheduler.Tenants) == 0 {
		errs = append(errs, invalid("scheduler.tenants", "at least one tenant is required when the scheduler is enabled"))
	}
	if c.Scheduler.RetentionDays < 0 {
		errs = append(errs, invalid("scheduler.retention_days", "must not be negative, got %d", c.Scheduler.RetentionDays))
	}
	if c.Scheduler.Horizon < 1 || c.Scheduler.Horizon > c.Analytics.MaxHorizon {
		errs = append(errs, invalid("scheduler.horizon", "horizon must be between 1 and max_horizon (%d), got %d", c.Analytics.MaxHorizon, c.Scheduler.Horizon))
	}
	return errs
}
