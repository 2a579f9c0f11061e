package scoring

import (
	"math"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics/timeseries"
	"github.com/kubilitics/kubilitics-forecast/internal/analytics/trend"
)

// MinimumFitPoints is the number of fitted values below which accuracy falls
// back to FallbackAccuracy.
const (
	MinimumFitPoints = 3
	FallbackAccuracy = 0.5
)

// StaticQuality reports fixed placeholder scores.
type StaticQuality struct{}

// Assess ignores its input.
func (StaticQuality) Assess(QualityInput) DataQuality {
	q := DataQuality{
		Completeness: 0.95,
		Accuracy:     0.92,
		Consistency:  0.88,
		Timeliness:   0.91,
	}
	q.Overall = round3((q.Completeness + q.Accuracy + q.Consistency + q.Timeliness) / 4)
	return q
}

// StaticAccuracy reports fixed placeholder accuracy per domain.
type StaticAccuracy struct{}

var staticDomainAccuracy = map[string]float64{
	"demand":         0.87,
	"capacity":       0.85,
	"cost":           0.83,
	"delivery":       0.89,
	"risk":           0.80,
	"sustainability": 0.84,
}

// Estimate returns the placeholder value of every sampled domain.
func (StaticAccuracy) Estimate(samples []Sample) ModelAccuracy {
	out := make(ModelAccuracy, len(samples)+1)
	var sum float64
	for _, s := range samples {
		v, ok := staticDomainAccuracy[s.Domain]
		if !ok {
			v = 0.8
		}
		out[s.Domain] = v
		sum += v
	}
	out[OverallKey] = 0
	if len(samples) > 0 {
		out[OverallKey] = round3(sum / float64(len(samples)))
	}
	return out
}

// MeasuredQuality computes scores from the sampled history.
type MeasuredQuality struct{}

// Assess scores in. An input without buckets scores 0 everywhere except
// Accuracy, which only depends on record validation.
func (MeasuredQuality) Assess(in QualityInput) DataQuality {
	q := DataQuality{
		Completeness: completeness(in.Samples),
		Accuracy:     recordAccuracy(in.Records, in.Invalid),
		Consistency:  consistency(in.Samples),
		Timeliness:   timeliness(in.Samples),
	}
	q.Overall = round3((q.Completeness + q.Accuracy + q.Consistency + q.Timeliness) / 4)
	return q
}

func completeness(samples []Sample) float64 {
	var total, filled int
	for _, s := range samples {
		total += len(s.History)
		filled += len(timeseries.NonEmpty(s.History))
	}
	if total == 0 {
		return 0
	}
	return round3(float64(filled) / float64(total))
}

func recordAccuracy(records, invalid int) float64 {
	if records <= 0 {
		return 0
	}
	if invalid > records {
		invalid = records
	}
	return round3(float64(records-invalid) / float64(records))
}

func consistency(samples []Sample) float64 {
	var sum float64
	var scored int
	for _, s := range samples {
		values := timeseries.Values(timeseries.NonEmpty(s.History))
		if len(values) < 2 {
			continue
		}
		mean, std := meanStd(values)
		if mean == 0 {
			continue
		}
		sum += 1 / (1 + std/math.Abs(mean))
		scored++
	}
	if scored == 0 {
		return 0
	}
	return round3(sum / float64(scored))
}

func timeliness(samples []Sample) float64 {
	var sum float64
	for _, s := range samples {
		for i := len(s.History) - 1; i >= 0; i-- {
			if !s.History[i].Empty() {
				lag := len(s.History) - 1 - i
				sum += 1 / (1 + float64(lag))
				break
			}
		}
	}
	if len(samples) == 0 {
		return 0
	}
	return round3(sum / float64(len(samples)))
}

// MeasuredAccuracy scores each domain by 1 − RMSE/mean(|y|) of its linear fit.
type MeasuredAccuracy struct{}

// Estimate scores every sample; the overall value is their mean.
func (MeasuredAccuracy) Estimate(samples []Sample) ModelAccuracy {
	out := make(ModelAccuracy, len(samples)+1)
	var sum float64
	for _, s := range samples {
		v := fitAccuracy(s.Fitted)
		out[s.Domain] = v
		sum += v
	}
	out[OverallKey] = 0
	if len(samples) > 0 {
		out[OverallKey] = round3(sum / float64(len(samples)))
	}
	return out
}

func fitAccuracy(values []float64) float64 {
	if len(values) < MinimumFitPoints {
		return FallbackAccuracy
	}
	fit := trend.LinearFit(values)
	var sse, absSum float64
	for i, y := range values {
		r := y - (fit.Intercept + fit.Slope*float64(i))
		sse += r * r
		absSum += math.Abs(y)
	}
	n := float64(len(values))
	rmse := math.Sqrt(sse / n)
	meanAbs := absSum / n
	if meanAbs == 0 {
		if rmse == 0 {
			return 1
		}
		return 0
	}
	return round3(math.Min(math.Max(1-rmse/meanAbs, 0), 1))
}

func meanStd(values []float64) (mean, std float64) {
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		std += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(std / float64(len(values)))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
