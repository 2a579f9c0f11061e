package cache

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics"
	"github.com/kubilitics/kubilitics-forecast/internal/metrics"
	"github.com/kubilitics/kubilitics-forecast/internal/models"
)

// DefaultTTL is used when a CachingProvider is built without a TTL.
const DefaultTTL = 5 * time.Minute

// CachingProvider serves FetchRecords from a Cache and falls back to the
// wrapped provider on a miss. Cache failures are logged and never fail a fetch.
type CachingProvider struct {
	next   analytics.RecordProvider
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachingProvider wraps next with c.
func NewCachingProvider(next analytics.RecordProvider, c Cache, ttl time.Duration, logger *zap.Logger) *CachingProvider {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingProvider{next: next, cache: c, ttl: ttl, logger: logger}
}

// FetchRecords implements analytics.RecordProvider.
func (p *CachingProvider) FetchRecords(ctx context.Context, tenantID string, since time.Time, kind models.RecordKind) ([]models.HistoricalRecord, error) {
	key := recordsKey(tenantID, kind, since)
	backend := p.cache.Name()

	var cached []models.HistoricalRecord
	hit, err := p.cache.Get(ctx, key, &cached)
	switch {
	case err != nil:
		metrics.CacheRequests.WithLabelValues(backend, "error").Inc()
		p.logger.Warn("record cache read failed", zap.String("key", key), zap.Error(err))
	case hit:
		metrics.CacheRequests.WithLabelValues(backend, "hit").Inc()
		return cached, nil
	default:
		metrics.CacheRequests.WithLabelValues(backend, "miss").Inc()
	}

	recs, err := p.next.FetchRecords(ctx, tenantID, since, kind)
	if err != nil {
		return nil, err
	}
	if err := p.cache.Set(ctx, key, recs, p.ttl); err != nil {
		p.logger.Warn("record cache write failed", zap.String("key", key), zap.Error(err))
	}
	return recs, nil
}

// Invalidate drops every cached fetch of tenantID.
func (p *CachingProvider) Invalidate(ctx context.Context, tenantID string) error {
	if err := p.cache.DeletePrefix(ctx, tenantPrefix(tenantID)); err != nil {
		return fmt.Errorf("invalidate tenant %s: %w", tenantID, err)
	}
	return nil
}

func tenantPrefix(tenantID string) string {
	return "records:" + url.PathEscape(tenantID) + ":"
}

func recordsKey(tenantID string, kind models.RecordKind, since time.Time) string {
	return fmt.Sprintf("%s%s:%d", tenantPrefix(tenantID), kind, since.UTC().UnixNano())
}
