package trend

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics/timeseries"
)

// Seasonality captures cyclical variation of a bucketed series.
type Seasonality struct {
	Amplitude float64 `json:"amplitude"`
	// Period is the cycle length in buckets (7 for weekdays, 12 for months).
	Period int `json:"period"`
	// Factors holds each cyclical key's mean deviation from the overall mean.
	Factors map[string]float64 `json:"factors,omitempty"`
}

// Term is the phase-free sinusoidal contribution at future index i. It is
// the fallback when no per-key factors are known.
func (s Seasonality) Term(i int) float64 {
	if s.Amplitude == 0 || s.Period < 2 {
		return 0
	}
	return s.Amplitude * math.Sin(2*math.Pi*float64(i)/float64(s.Period))
}

// Factor returns the deviation observed for a cyclical key.
func (s Seasonality) Factor(key int) (float64, bool) {
	f, ok := s.Factors[strconv.Itoa(key)]
	return f, ok
}

// At is the seasonal contribution of the period starting at start, which is
// future index i. Periods are matched to history by their cyclical key so
// peaks land on the same weekday or month they were observed on. Keys never
// observed contribute nothing. Without factors or a start it falls back to Term.
func (s Seasonality) At(start time.Time, g timeseries.Granularity, i int) float64 {
	if len(s.Factors) == 0 || start.IsZero() {
		return s.Term(i)
	}
	key, _ := CycleKey(timeseries.Bucket{Start: start}, g)
	f, _ := s.Factor(key)
	return f
}

// Detrend returns copies of buckets with the fitted line subtracted from each
// value, so per-key means measure cyclical variation rather than position in
// the window. Bucket i is assumed to sit at index i of the fit.
func Detrend(buckets []timeseries.Bucket, fit Fit) []timeseries.Bucket {
	out := make([]timeseries.Bucket, len(buckets))
	for i, b := range buckets {
		b.Value -= fit.Slope*float64(i) + fit.Intercept
		out[i] = b
	}
	return out
}

// CycleKey returns the cyclical key for a bucket start and the cycle length.
//
//	day     → weekday (Monday=0), period 7
//	week    → ISO week mod 4, period 4
//	month   → month of year (January=0), period 12
//	quarter → quarter of year (Q1=0), period 4
func CycleKey(b timeseries.Bucket, g timeseries.Granularity) (key, period int) {
	switch g {
	case timeseries.Week:
		_, w := b.Start.ISOWeek()
		return w % 4, 4
	case timeseries.Month:
		return int(b.Start.Month()) - 1, 12
	case timeseries.Quarter:
		return (int(b.Start.Month()) - 1) / 3, 4
	default:
		return (int(b.Start.Weekday()) + 6) % 7, 7
	}
}

// Seasonal computes the seasonal amplitude of buckets at granularity g.
// With fewer than two distinct cyclical keys the amplitude is 0.
func Seasonal(buckets []timeseries.Bucket, g timeseries.Granularity) Seasonality {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	period := 0
	for _, b := range buckets {
		key, p := CycleKey(b, g)
		period = p
		sums[key] += b.Value
		counts[key]++
	}
	if period == 0 {
		_, period = CycleKey(timeseries.Bucket{}, g)
	}
	if len(sums) < 2 {
		return Seasonality{Period: period}
	}

	keys := make([]int, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	means := make([]float64, len(keys))
	var overall float64
	for i, k := range keys {
		means[i] = sums[k] / float64(counts[k])
		overall += means[i]
	}
	overall /= float64(len(means))

	var variance float64
	factors := make(map[string]float64, len(keys))
	for i, k := range keys {
		d := means[i] - overall
		variance += d * d
		factors[strconv.Itoa(k)] = d
	}
	variance /= float64(len(means))

	return Seasonality{
		Amplitude: math.Sqrt(variance),
		Period:    period,
		Factors:   factors,
	}
}
