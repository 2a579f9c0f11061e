package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics/forecasting"
	"github.com/kubilitics/kubilitics-forecast/internal/analytics/recommendation"
	"github.com/kubilitics/kubilitics-forecast/internal/analytics/scoring"
	"github.com/kubilitics/kubilitics-forecast/internal/models"
)

// now is Monday 2026-03-09 12:00 UTC.
var now = time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

type fakeProvider struct {
	mu      sync.Mutex
	records map[models.RecordKind][]models.HistoricalRecord
	calls   map[models.RecordKind]int
	since   map[models.RecordKind]time.Time
	err     error
	panics  bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		records: make(map[models.RecordKind][]models.HistoricalRecord),
		calls:   make(map[models.RecordKind]int),
		since:   make(map[models.RecordKind]time.Time),
	}
}

func (f *fakeProvider) add(recs ...models.HistoricalRecord) {
	for _, r := range recs {
		f.records[r.Kind] = append(f.records[r.Kind], r)
	}
}

func (f *fakeProvider) FetchRecords(_ context.Context, _ string, since time.Time, kind models.RecordKind) ([]models.HistoricalRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("store exploded")
	}
	f.calls[kind]++
	f.since[kind] = since
	if f.err != nil {
		return nil, f.err
	}
	var out []models.HistoricalRecord
	for _, r := range f.records[kind] {
		if !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func newTestOrchestrator(p RecordProvider, opts Options) *Orchestrator {
	opts.Clock = func() time.Time { return now }
	return NewOrchestrator(p, opts)
}

// demandRamp adds i+1 transport requests on each of the n days before now's day.
func demandRamp(f *fakeProvider, tenant string, n int) {
	today := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		day := today.AddDate(0, 0, i-n)
		for j := 0; j <= i; j++ {
			f.add(models.HistoricalRecord{
				TenantID:  tenant,
				Kind:      models.RecordKindTransportRequest,
				Timestamp: day.Add(time.Duration(j) * time.Minute),
				Status:    models.StatusPending,
			})
		}
	}
}

func TestRun_UnknownDomain(t *testing.T) {
	p := newFakeProvider()
	o := newTestOrchestrator(p, Options{})

	report, err := o.Run(context.Background(), Request{TenantID: "acme", Domains: []string{"unknown"}, Horizon: 3})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, errors.Is(err, ErrInvalidRequest))
	assert.ErrorIs(t, err, forecasting.ErrUnknownDomain)
	assert.Empty(t, p.calls)
	assert.Equal(t, "invalid_request", StatusOf(err))
}

func TestRun_MissingTenant(t *testing.T) {
	p := newFakeProvider()
	o := newTestOrchestrator(p, Options{})

	for _, tenant := range []string{"", "   "} {
		report, err := o.Run(context.Background(), Request{TenantID: tenant, Domains: []string{"demand"}})
		assert.Nil(t, report)
		assert.ErrorIs(t, err, ErrMissingParameter)
	}
	assert.Empty(t, p.calls)
}

func TestRun_InvalidRequests(t *testing.T) {
	o := newTestOrchestrator(newFakeProvider(), Options{MaxHorizon: 30})

	tests := []struct {
		name string
		req  Request
	}{
		{"negative horizon", Request{TenantID: "acme", Horizon: -1}},
		{"horizon above max", Request{TenantID: "acme", Horizon: 31}},
		{"bad capacity threshold", Request{TenantID: "acme", Parameters: map[string]any{ParamCapacityThreshold: "abc"}}},
		{"capacity threshold out of range", Request{TenantID: "acme", Parameters: map[string]any{ParamCapacityThreshold: 2.0}}},
		{"bad noise flag", Request{TenantID: "acme", Parameters: map[string]any{ParamNoise: 3}}},
		{"fractional seed", Request{TenantID: "acme", Parameters: map[string]any{ParamSeed: 1.5}}},
		{"seed above int64", Request{TenantID: "acme", Parameters: map[string]any{ParamSeed: 1e19}}},
		{"seed number above int64", Request{TenantID: "acme", Parameters: map[string]any{ParamSeed: json.Number("9223372036854775808")}}},
		{"seed in exponent form", Request{TenantID: "acme", Parameters: map[string]any{ParamSeed: json.Number("1e3")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := o.Run(context.Background(), tt.req)
			assert.Nil(t, report)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestRun_ProviderFailure(t *testing.T) {
	p := newFakeProvider()
	p.err = errors.New("connection refused")
	o := newTestOrchestrator(p, Options{})

	report, err := o.Run(context.Background(), Request{TenantID: "acme", Domains: []string{"demand", "cost"}})
	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrInternalFailure)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, "internal_failure", StatusOf(err))
}

func TestRun_PanicBecomesInternalFailure(t *testing.T) {
	p := newFakeProvider()
	p.panics = true
	o := newTestOrchestrator(p, Options{})

	report, err := o.Run(context.Background(), Request{TenantID: "acme", Domains: []string{"demand"}})
	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrInternalFailure)
	assert.Contains(t, err.Error(), "store exploded")
}

func TestRun_DemandForecast(t *testing.T) {
	p := newFakeProvider()
	demandRamp(p, "acme", 12)
	o := newTestOrchestrator(p, Options{})

	report, err := o.Run(context.Background(), Request{TenantID: "acme", Domains: []string{"demand"}, Horizon: 3})
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.NotEmpty(t, report.ID)
	assert.Equal(t, "acme", report.TenantID)
	assert.Equal(t, 3, report.Horizon)
	assert.Equal(t, []forecasting.Domain{forecasting.Demand}, report.Domains)
	assert.Equal(t, now, report.LastUpdated)
	assert.Equal(t, 78, report.RecordsAnalyzed) // 1+2+...+12

	// Lookback is 4×3 days ending at the start of today.
	assert.Equal(t, time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC), p.since[models.RecordKindTransportRequest])
	assert.Equal(t, 1, p.calls[models.RecordKindTransportRequest])

	series := report.Predictions[forecasting.Demand]
	require.Len(t, series.Historical, 12)
	require.Len(t, series.Points, 3)
	assert.Equal(t, 12.0, series.Baseline)
	assert.Equal(t, 1.0, series.Trend)
	// A pure ramp has no cyclical component once detrended.
	assert.InDelta(t, 0, series.Seasonality.Amplitude, 1e-9)
	for i, pt := range series.Points {
		idx := i + 1
		assert.InDelta(t, 12+float64(idx), pt.Predicted, 1e-9)
	}
	assert.Equal(t, "2026-03-09", series.Points[0].Period)
	assert.Equal(t, "2026-03-11", series.Points[2].Period)

	assert.Contains(t, report.ModelAccuracy, "demand")
	assert.Contains(t, report.ModelAccuracy, scoring.OverallKey)
	assert.Equal(t, 1.0, report.DataQuality.Completeness)
	assert.Greater(t, report.Confidence, 0.5)

	require.NotEmpty(t, report.Recommendations)
	assert.Equal(t, recommendation.TypeCapacity, report.Recommendations[0].Type)
	assert.Equal(t, recommendation.PriorityHigh, report.Recommendations[0].Priority)
}

func TestRun_WeekdayDemandGrowthOnMonday(t *testing.T) {
	p := newFakeProvider()
	// Four weeks ending on Sunday; 2·i requests on weekday i, none on weekends.
	first := time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 28; i++ {
		day := first.AddDate(0, 0, i)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		for j := 0; j < 2*i; j++ {
			p.add(models.HistoricalRecord{
				TenantID:  "acme",
				Kind:      models.RecordKindTransportRequest,
				Timestamp: day.Add(8*time.Hour + time.Duration(j)*time.Minute),
				Status:    models.StatusPending,
			})
		}
	}
	o := newTestOrchestrator(p, Options{})

	report, err := o.Run(context.Background(), Request{TenantID: "acme", Domains: []string{"demand"}, Horizon: 7})
	require.NoError(t, err)

	series := report.Predictions[forecasting.Demand]
	require.Len(t, series.Historical, 28)
	assert.Equal(t, 0.0, series.Baseline)
	assert.Greater(t, series.TrendRelative, recommendation.DefaultThresholds().DemandGrowth)

	require.NotEmpty(t, report.Recommendations)
	assert.Equal(t, recommendation.TypeCapacity, report.Recommendations[0].Type)
	assert.Equal(t, recommendation.PriorityHigh, report.Recommendations[0].Priority)

	// Monday 2026-03-09 through Sunday 2026-03-15: the weekend stays the trough.
	require.Len(t, series.Points, 7)
	assert.Equal(t, "2026-03-09", series.Points[0].Period)
	for _, pt := range series.Points[:5] {
		assert.Greater(t, pt.Predicted, series.Points[5].Predicted, pt.Period)
		assert.Greater(t, pt.Predicted, series.Points[6].Predicted, pt.Period)
	}
}

func TestRun_AllDomainsFetchEachKindOnce(t *testing.T) {
	p := newFakeProvider()
	o := newTestOrchestrator(p, Options{})

	report, err := o.Run(context.Background(), Request{TenantID: "acme", Domains: []string{"all", "performance"}, Horizon: 2})
	require.NoError(t, err)

	assert.Len(t, report.Domains, 6)
	assert.Equal(t, map[models.RecordKind]int{
		models.RecordKindTransportRequest: 1,
		models.RecordKindOrder:            1,
		models.RecordKindShipment:         1,
	}, p.calls)
	// Shipments feed a monthly domain, so the earliest window is 8 months back.
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), p.since[models.RecordKindShipment])

	for _, d := range report.Domains {
		series := report.Predictions[d]
		assert.Len(t, series.Points, 2, "domain %s", d)
	}
	assert.Equal(t, 0.95, report.Predictions[forecasting.Delivery].Points[0].Predicted)
}

func TestRun_Idempotent(t *testing.T) {
	p := newFakeProvider()
	demandRamp(p, "acme", 20)
	o := newTestOrchestrator(p, Options{})
	req := Request{TenantID: "acme", Domains: []string{"demand", "risk"}, Horizon: 5}

	a, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	b, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.Predictions, b.Predictions)
	assert.Equal(t, a.Recommendations, b.Recommendations)
	assert.Equal(t, a.DataQuality, b.DataQuality)
	assert.Equal(t, a.Confidence, b.Confidence)
}

func TestRun_SeededNoiseIsReproducible(t *testing.T) {
	p := newFakeProvider()
	demandRamp(p, "acme", 12)
	o := newTestOrchestrator(p, Options{Noise: NoiseOptions{Scale: 0.2}})
	req := Request{
		TenantID:   "acme",
		Domains:    []string{"demand"},
		Horizon:    4,
		Parameters: map[string]any{ParamNoise: true, ParamSeed: float64(99)},
	}

	a, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	b, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a.Predictions, b.Predictions)

	quiet, err := o.Run(context.Background(), Request{TenantID: "acme", Domains: []string{"demand"}, Horizon: 4})
	require.NoError(t, err)
	assert.NotEqual(t, quiet.Predictions[forecasting.Demand].Points, a.Predictions[forecasting.Demand].Points)
}

func TestRun_InvalidRecordsAreDropped(t *testing.T) {
	p := newFakeProvider()
	demandRamp(p, "acme", 12)
	p.add(
		models.HistoricalRecord{TenantID: "other", Kind: models.RecordKindTransportRequest, Timestamp: now.AddDate(0, 0, -1)},
		models.HistoricalRecord{TenantID: "acme", Kind: models.RecordKindTransportRequest, Timestamp: now.AddDate(0, 0, -1), Value: -5},
	)
	o := newTestOrchestrator(p, Options{})

	report, err := o.Run(context.Background(), Request{TenantID: "acme", Domains: []string{"demand"}, Horizon: 3})
	require.NoError(t, err)
	assert.Equal(t, 78, report.RecordsAnalyzed)
	assert.Equal(t, 12.0, report.Predictions[forecasting.Demand].Baseline)
	assert.InDelta(t, 78.0/80.0, report.DataQuality.Accuracy, 0.001)
}

func TestRun_CapacityThresholdParameter(t *testing.T) {
	p := newFakeProvider()
	today := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 12; i++ {
		p.add(models.HistoricalRecord{
			TenantID:    "acme",
			Kind:        models.RecordKindShipment,
			Timestamp:   today.AddDate(0, 0, -i).Add(9 * time.Hour),
			Status:      models.StatusDelivered,
			OnTime:      true,
			Utilization: 0.8,
		})
	}
	o := newTestOrchestrator(p, Options{})

	normal, err := o.Run(context.Background(), Request{TenantID: "acme", Domains: []string{"capacity"}, Horizon: 3})
	require.NoError(t, err)
	assert.Empty(t, normal.Recommendations)
	for _, pt := range normal.Predictions[forecasting.Capacity].Points {
		assert.Equal(t, forecasting.LevelNormal, pt.Level)
	}

	strict, err := o.Run(context.Background(), Request{
		TenantID:   "acme",
		Domains:    []string{"capacity"},
		Horizon:    3,
		Parameters: map[string]any{ParamCapacityThreshold: 0.75},
	})
	require.NoError(t, err)
	require.Len(t, strict.Recommendations, 1)
	assert.Equal(t, recommendation.TypeImmediate, strict.Recommendations[0].Type)
	assert.Equal(t, recommendation.PriorityHigh, strict.Recommendations[0].Priority)
}

func TestRun_Concurrent(t *testing.T) {
	p := newFakeProvider()
	demandRamp(p, "acme", 12)
	o := newTestOrchestrator(p, Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Run(context.Background(), Request{TenantID: "acme", Domains: []string{"all"}, Horizon: 4})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestRecordProviderFunc(t *testing.T) {
	called := false
	var p RecordProvider = RecordProviderFunc(func(_ context.Context, tenantID string, _ time.Time, kind models.RecordKind) ([]models.HistoricalRecord, error) {
		called = true
		assert.Equal(t, "acme", tenantID)
		assert.Equal(t, models.RecordKindOrder, kind)
		return nil, nil
	})
	_, err := p.FetchRecords(context.Background(), "acme", now, models.RecordKindOrder)
	require.NoError(t, err)
	assert.True(t, called)
}
