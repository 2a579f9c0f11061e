// Package cache provides record caching in front of the record store.
//
// Responsibilities:
//   - Key/value caches with TTL: in-process memory or Redis
//   - JSON encoding of cached values so both backends behave alike
//   - A RecordProvider decorator that serves repeat fetches from cache
//   - Per-tenant invalidation after ingestion
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed cache.
var ErrClosed = errors.New("cache closed")

// Cache is a TTL key/value cache. Values are JSON encoded.
type Cache interface {
	// Get decodes the value under key into dest. It reports false on a miss.
	Get(ctx context.Context, key string, dest any) (bool, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Name is the backend label used in metrics.
	Name() string

	Close() error
}

// Config selects a backend.
type Config struct {
	Backend       string // none | memory | redis
	TTL           time.Duration
	MaxEntries    int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// New builds the cache named by cfg.Backend. It returns nil for "none".
func New(ctx context.Context, cfg Config) (Cache, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryCache(cfg.MaxEntries), nil
	case "redis":
		c, err := NewRedisCache(ctx, RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, errors.New("unsupported cache backend " + cfg.Backend)
	}
}
