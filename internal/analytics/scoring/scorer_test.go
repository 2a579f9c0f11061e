package scoring

import (
	"go/parser"
	"go/token"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics/timeseries"
)

func buckets(values ...float64) []timeseries.Bucket {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	out := make([]timeseries.Bucket, len(values))
	for i, v := range values {
		count := 0
		if v != 0 {
			count = 1
		}
		s := start.AddDate(0, 0, i)
		out[i] = timeseries.Bucket{Start: s, End: s.AddDate(0, 0, 1), Count: count, Value: v}
	}
	return out
}

func inUnit(t *testing.T, q DataQuality) {
	t.Helper()
	for _, v := range []float64{q.Completeness, q.Accuracy, q.Consistency, q.Timeliness, q.Overall} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestStaticQuality(t *testing.T) {
	q := NewQualityAssessor(KindStatic).Assess(QualityInput{})
	assert.Equal(t, 0.95, q.Completeness)
	assert.Equal(t, 0.915, q.Overall)
	inUnit(t, q)
}

func TestMeasuredQuality(t *testing.T) {
	in := QualityInput{
		Samples: []Sample{
			{Domain: "demand", Granularity: timeseries.Day, History: buckets(10, 0, 10, 10)},
			{Domain: "cost", Granularity: timeseries.Week, History: buckets(5, 5, 0, 0)},
		},
		Records: 40,
		Invalid: 4,
	}
	q := NewQualityAssessor(KindMeasured).Assess(in)
	inUnit(t, q)

	assert.Equal(t, 0.625, q.Completeness) // 5 of 8 periods
	assert.Equal(t, 0.9, q.Accuracy)
	assert.Equal(t, 1.0, q.Consistency) // constant non-empty values
	assert.Equal(t, round3((1+1.0/3)/2), q.Timeliness)
}

func TestMeasuredQuality_NoData(t *testing.T) {
	q := MeasuredQuality{}.Assess(QualityInput{})
	assert.Equal(t, DataQuality{}, q)

	q = MeasuredQuality{}.Assess(QualityInput{Samples: []Sample{{Domain: "risk", History: buckets(0, 0)}}})
	assert.Equal(t, 0.0, q.Completeness)
	assert.Equal(t, 0.0, q.Timeliness)
}

func TestStaticAccuracy(t *testing.T) {
	acc := StaticAccuracy{}.Estimate([]Sample{{Domain: "demand"}, {Domain: "risk"}})
	assert.Equal(t, 0.87, acc["demand"])
	assert.Equal(t, 0.80, acc["risk"])
	assert.Equal(t, 0.835, acc[OverallKey])

	empty := StaticAccuracy{}.Estimate(nil)
	assert.Equal(t, ModelAccuracy{OverallKey: 0}, empty)
}

func TestMeasuredAccuracy(t *testing.T) {
	acc := NewAccuracyEstimator(KindMeasured).Estimate([]Sample{
		{Domain: "demand", Fitted: []float64{2, 4, 6, 8, 10}},
		{Domain: "risk", Fitted: []float64{0.2}},
		{Domain: "cost", Fitted: []float64{0, 0, 0}},
		{Domain: "capacity", Fitted: []float64{1, 9, 1, 9}},
	})
	assert.Equal(t, 1.0, acc["demand"])
	assert.Equal(t, FallbackAccuracy, acc["risk"])
	assert.Equal(t, 1.0, acc["cost"])
	assert.Less(t, acc["capacity"], 0.5)
	assert.GreaterOrEqual(t, acc["capacity"], 0.0)
	assert.Contains(t, acc, OverallKey)
}

func TestPackageDoc(t *testing.T) {
	f, err := parser.ParseFile(token.NewFileSet(), "scorer.go", nil, parser.ParseComments|parser.PackageClauseOnly)
	require.NoError(t, err)
	require.NotNil(t, f.Doc)
	assert.True(t, strings.HasPrefix(f.Doc.Text(), "Package scoring "))
}
