package analytics

import (
	"context"
	"time"

	"github.com/kubilitics/kubilitics-forecast/internal/models"
)

// RecordProvider is the historical data source. Implementations return the
// tenant's records of one kind with Timestamp at or after since.
type RecordProvider interface {
	FetchRecords(ctx context.Context, tenantID string, since time.Time, kind models.RecordKind) ([]models.HistoricalRecord, error)
}

// RecordProviderFunc adapts a function to RecordProvider.
type RecordProviderFunc func(ctx context.Context, tenantID string, since time.Time, kind models.RecordKind) ([]models.HistoricalRecord, error)

// FetchRecords calls f.
func (f RecordProviderFunc) FetchRecords(ctx context.Context, tenantID string, since time.Time, kind models.RecordKind) ([]models.HistoricalRecord, error) {
	return f(ctx, tenantID, since, kind)
}
