// Package scoring rates the history behind a report and the fit of its models.
//
// Responsibilities:
//   - Score data quality (completeness, accuracy, consistency, timeliness)
//   - Estimate per-domain model accuracy and an overall figure
//   - Offer fixed placeholder scorers alongside measured ones so callers can
//     switch without changing the report contract
//
// Score Dimensions (all in [0, 1], higher is better):
//
//   1. Completeness
//      - Fraction of periods in the lookback window that received records
//
//   2. Accuracy
//      - Fraction of fetched records that passed validation
//
//   3. Consistency
//      - 1 / (1 + coefficient of variation) of non-empty period values
//
//   4. Timeliness
//      - 1 / (1 + periods between the most recent non-empty period and the window end)
//
// Model accuracy is 1 − normalized RMSE of the linear fit per domain.
package scoring

import "github.com/kubilitics/kubilitics-forecast/internal/analytics/timeseries"

// Sample is the history of one forecast domain.
type Sample struct {
	Domain      string
	Granularity timeseries.Granularity
	History     []timeseries.Bucket
	// Fitted holds the values the trend was fit on.
	Fitted []float64
}

// QualityInput describes everything fetched for one report.
type QualityInput struct {
	Samples []Sample
	Records int
	Invalid int
}

// DataQuality is the data-quality block of a report.
type DataQuality struct {
	Completeness float64 `json:"completeness"`
	Accuracy     float64 `json:"accuracy"`
	Consistency  float64 `json:"consistency"`
	Timeliness   float64 `json:"timeliness"`
	Overall      float64 `json:"overall"`
}

// OverallKey is the aggregate entry of a ModelAccuracy map.
const OverallKey = "overall"

// ModelAccuracy maps domain names, plus OverallKey, to accuracy in [0, 1].
type ModelAccuracy map[string]float64

// QualityAssessor scores the history behind a report.
type QualityAssessor interface {
	Assess(in QualityInput) DataQuality
}

// AccuracyEstimator scores how well each domain's model fits its history.
type AccuracyEstimator interface {
	Estimate(samples []Sample) ModelAccuracy
}

// Quality assessor and accuracy estimator kinds accepted by New*.
const (
	KindStatic   = "static"
	KindMeasured = "measured"
)

// NewQualityAssessor returns the assessor for kind, defaulting to measured.
func NewQualityAssessor(kind string) QualityAssessor {
	if kind == KindStatic {
		return StaticQuality{}
	}
	return MeasuredQuality{}
}

// NewAccuracyEstimator returns the estimator for kind, defaulting to measured.
func NewAccuracyEstimator(kind string) AccuracyEstimator {
	if kind == KindStatic {
		return StaticAccuracy{}
	}
	return MeasuredAccuracy{}
}
