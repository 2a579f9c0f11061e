package forecasting

import (
	"fmt"
	"math"
	"time"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics/timeseries"
	"github.com/kubilitics/kubilitics-forecast/internal/analytics/trend"
)

// Point is one projected future period.
type Point struct {
	Index       int             `json:"index"`
	Period      string          `json:"period"`
	PeriodStart time.Time       `json:"periodStart"`
	Predicted   float64         `json:"predicted"`
	Confidence  float64         `json:"confidence"`
	LowerBound  float64         `json:"lowerBound"`
	UpperBound  float64         `json:"upperBound"`
	Direction   trend.Direction `json:"direction"`
	Level       string          `json:"level,omitempty"`
}

// Series is the forecast of one domain.
type Series struct {
	Domain        Domain              `json:"domain"`
	Unit          string              `json:"unit"`
	Granularity   string              `json:"granularity"`
	Baseline      float64             `json:"baseline"`
	Trend         float64             `json:"trend"`
	TrendRelative float64             `json:"trendRelative"`
	Direction     trend.Direction     `json:"direction"`
	Seasonality   trend.Seasonality   `json:"seasonalPattern"`
	Historical    []timeseries.Bucket `json:"historical"`
	Points        []Point             `json:"forecast"`
}

// Levels counts how many points carry each level label.
func (s Series) Levels() map[string]int {
	out := make(map[string]int)
	for _, p := range s.Points {
		if p.Level != "" {
			out[p.Level]++
		}
	}
	return out
}

// MeanPredicted is the average predicted value across the series.
func (s Series) MeanPredicted() float64 {
	if len(s.Points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range s.Points {
		sum += p.Predicted
	}
	return sum / float64(len(s.Points))
}

// Input is everything Generate needs for one domain.
type Input struct {
	Descriptor  Descriptor
	History     []timeseries.Bucket
	Trend       float64
	Seasonality trend.Seasonality
	Horizon     int

	// Start is the first forecast period. When zero it follows the last
	// history bucket.
	Start time.Time

	// Noise is optional; nil contributes no perturbation.
	Noise      Noise
	NoiseScale float64
}

// Generate projects Horizon future periods. It never fails: missing history
// produces a flat series at the domain default.
func Generate(in Input) Series {
	d := in.Descriptor
	baseline := d.Default
	slope := in.Trend
	season := in.Seasonality
	if b, ok := baselineOf(d, in.History); ok {
		baseline = d.Clamp(b)
	} else {
		slope = 0
		season = trend.Seasonality{Period: season.Period}
	}

	// Project from the baseline with its own seasonal deviation removed.
	level := baseline
	if fitted := fitBuckets(d, in.History); len(fitted) > 0 && len(season.Factors) > 0 {
		key, _ := trend.CycleKey(fitted[len(fitted)-1], d.Granularity)
		if f, ok := season.Factor(key); ok {
			level = baseline - f
		}
	}

	reference := baseline
	if values := FitValues(d, in.History); len(values) > 0 && slope != 0 {
		reference = trend.LinearFit(values).Level()
	}

	start := in.Start
	if start.IsZero() && len(in.History) > 0 {
		start = in.History[len(in.History)-1].End
	}

	horizon := in.Horizon
	if horizon < 0 {
		horizon = 0
	}

	series := Series{
		Domain:        d.Domain,
		Unit:          d.Unit,
		Granularity:   string(d.Granularity),
		Baseline:      baseline,
		Trend:         slope,
		TrendRelative: trend.Relative(slope, reference),
		Direction:     trend.Classify(slope),
		Seasonality:   season,
		Historical:    in.History,
		Points:        make([]Point, 0, horizon),
	}

	bound := noiseBound(in.NoiseScale, baseline)
	previous := baseline
	for i := 1; i <= horizon; i++ {
		var periodStart time.Time
		if !start.IsZero() {
			periodStart = timeseries.Advance(start, d.Granularity, i-1)
		}
		raw := level + slope*float64(i) + season.At(periodStart, d.Granularity, i)
		if in.Noise != nil && bound > 0 {
			raw += in.Noise.Perturb(bound)
		}
		predicted := d.Clamp(raw)
		confidence := d.Confidence(i, horizon)

		spread := (1 - confidence) * math.Max(math.Abs(predicted), season.Amplitude)
		p := Point{
			Index:      i,
			Predicted:  predicted,
			Confidence: confidence,
			LowerBound: d.Clamp(predicted - spread),
			UpperBound: d.Clamp(predicted + spread),
			Direction:  trend.Classify(predicted - previous),
		}
		if !periodStart.IsZero() {
			p.PeriodStart = periodStart
			p.Period = timeseries.Label(periodStart, d.Granularity)
		} else {
			p.Period = fmt.Sprintf("T+%d", i)
		}
		if d.Classify != nil {
			p.Level = d.Classify(predicted)
		}
		series.Points = append(series.Points, p)
		previous = predicted
	}
	return series
}

func baselineOf(d Descriptor, history []timeseries.Bucket) (float64, bool) {
	if len(history) == 0 {
		return 0, false
	}
	fn := d.Baseline
	if fn == nil {
		fn = LastBucket
	}
	return fn(history)
}

// FitValues returns the values trend and seasonality are fit on: every bucket,
// or only non-empty ones for SkipEmpty domains.
func FitValues(d Descriptor, history []timeseries.Bucket) []float64 {
	return timeseries.Values(fitBuckets(d, history))
}

func fitBuckets(d Descriptor, history []timeseries.Bucket) []timeseries.Bucket {
	if d.SkipEmpty {
		return timeseries.NonEmpty(history)
	}
	return history
}

// Estimate fits trend and seasonality for d over its dense history.
// Seasonality is measured on the detrended values.
func Estimate(d Descriptor, history []timeseries.Bucket) (trend.Fit, trend.Seasonality) {
	on := fitBuckets(d, history)
	fit := trend.LinearFit(timeseries.Values(on))
	return fit, trend.Seasonal(trend.Detrend(on, fit), d.Granularity)
}
