package forecasting

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics/timeseries"
	"github.com/kubilitics/kubilitics-forecast/internal/models"
)

func domainsOf(ds []Descriptor) []Domain {
	out := make([]Domain, len(ds))
	for i, d := range ds {
		out[i] = d.Domain
	}
	return out
}

func TestRegistry_Resolve(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name  string
		input []string
		want  []Domain
	}{
		{"empty selects all", nil, []Domain{Demand, Capacity, Cost, Delivery, Risk, Sustainability}},
		{"all keyword", []string{"ALL"}, []Domain{Demand, Capacity, Cost, Delivery, Risk, Sustainability}},
		{"alias collapses", []string{"performance", "delivery"}, []Domain{Delivery}},
		{"registration order", []string{"risk", " Demand "}, []Domain{Demand, Risk}},
		{"emissions alias", []string{"emissions"}, []Domain{Sustainability}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, domainsOf(got))
		})
	}
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	_, err := DefaultRegistry().Resolve([]string{"demand", "unknown"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownDomain))
	assert.Contains(t, err.Error(), "unknown")

	_, err = DefaultRegistry().Resolve([]string{""})
	assert.ErrorIs(t, err, ErrUnknownDomain)
}

func TestRegistry_Lookup(t *testing.T) {
	r := DefaultRegistry()
	d, ok := r.Lookup("Performance")
	require.True(t, ok)
	assert.Equal(t, Delivery, d.Domain)
	assert.Equal(t, 0.6, d.ConfidenceFloor)

	_, ok = r.Lookup("weather")
	assert.False(t, ok)

	assert.Equal(t, Delivery, r.Aliases()["performance"])
}

func TestDefaultRegistry_Descriptors(t *testing.T) {
	r := DefaultRegistry()
	for _, domain := range r.Domains() {
		d, _ := r.Lookup(string(domain))
		t.Run(string(domain), func(t *testing.T) {
			_, err := timeseries.Aggregate(nil, d.Options(day0, day0.AddDate(0, 0, 28)))
			assert.NoError(t, err)
			assert.GreaterOrEqual(t, d.ConfidenceStart, d.ConfidenceFloor)
			assert.LessOrEqual(t, d.ConfidenceStart, 1.0)
			assert.GreaterOrEqual(t, d.Lower, 0.0)
			assert.Greater(t, d.Upper, d.Lower)
		})
	}

	delivery, _ := r.Lookup("delivery")
	assert.Equal(t, 1.0, delivery.Upper)
	demand, _ := r.Lookup("demand")
	assert.True(t, math.IsInf(demand.Upper, 1))
}

func TestRecordKinds(t *testing.T) {
	ds, err := DefaultRegistry().Resolve([]string{"all"})
	require.NoError(t, err)
	assert.Equal(t, []models.RecordKind{
		models.RecordKindOrder,
		models.RecordKindShipment,
		models.RecordKindTransportRequest,
	}, RecordKinds(ds))
}

func TestDescriptor_ClampAndConfidence(t *testing.T) {
	d := Descriptor{Lower: 0, Upper: 1, Default: 0.5, ConfidenceStart: 0.9, ConfidenceDecay: 0.6, ConfidenceFloor: 0.5}
	assert.Equal(t, 0.0, d.Clamp(-3))
	assert.Equal(t, 1.0, d.Clamp(7))
	assert.Equal(t, 0.5, d.Clamp(math.NaN()))

	assert.InDelta(t, 0.7, d.Confidence(1, 3), 1e-9)
	assert.InDelta(t, 0.5, d.Confidence(2, 3), 1e-9)
	assert.InDelta(t, 0.5, d.Confidence(3, 3), 1e-9)

	over := Descriptor{ConfidenceStart: 1.4}
	assert.Equal(t, 1.0, over.Confidence(0, 0))
}

func TestClassifiers(t *testing.T) {
	assert.Equal(t, LevelLow, RiskLevel(0.39))
	assert.Equal(t, LevelMedium, RiskLevel(0.4))
	assert.Equal(t, LevelHigh, RiskLevel(0.7))

	status := CapacityStatus(0.85)
	assert.Equal(t, LevelNormal, status(0.84))
	assert.Equal(t, LevelBottleneck, status(0.85))
}

func TestBaselines(t *testing.T) {
	history := []timeseries.Bucket{
		{Count: 2, Value: 0.4},
		{Count: 0, Value: 0},
	}
	v, ok := LastBucket(history)
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)

	v, ok = LastNonEmpty(history)
	assert.True(t, ok)
	assert.Equal(t, 0.4, v)

	_, ok = LastNonEmpty(nil)
	assert.False(t, ok)
}
