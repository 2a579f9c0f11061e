package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-forecast/internal/models"
)

// TestPostgresStore runs against a live database when
// FORECAST_TEST_POSTGRES_URL is set.
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("FORECAST_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("FORECAST_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()

	s, err := NewPostgresStore(ctx, url, 4)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(ctx))

	// Unique tenant keeps runs independent.
	tenant := "test-" + uuid.New().String()
	n, err := s.InsertRecords(ctx, []models.HistoricalRecord{
		shipment("", tenant, base),
		shipment("", tenant, base.Add(24*time.Hour)),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.FetchRecords(ctx, tenant, base.Add(time.Hour), models.RecordKindShipment)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Timestamp.Equal(base.Add(24*time.Hour)))
	assert.True(t, got[0].OnTime)

	rec := &ReportRecord{TenantID: tenant, Horizon: 7, Domains: "demand", Payload: `{"ok":true}`, CreatedAt: base}
	require.NoError(t, s.SaveReport(ctx, rec))
	stored, err := s.GetReport(ctx, rec.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, stored.Payload)

	list, err := s.ListReports(ctx, tenant, 5)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.GetReport(ctx, uuid.New().String())
	assert.ErrorIs(t, err, ErrNotFound)
}
