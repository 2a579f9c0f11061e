// Package trend estimates first-order trend and cyclical amplitude of bucketed series.
//
// Statistical methods used:
//  1. Ordinary least squares of value against period index (slope, intercept, R²)
//  2. Population standard deviation of per-cycle-key means (seasonal amplitude)
package trend

import "math"

// Direction classifies the sign of a trend coefficient.
type Direction string

const (
	Increasing Direction = "increasing"
	Decreasing Direction = "decreasing"
	Stable     Direction = "stable"
)

// Fit is the result of a least-squares line through (index, value) pairs.
type Fit struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"rSquared"`
	Points    int     `json:"points"`
}

// Slope returns the OLS slope of values against their index 0..n-1.
// Fewer than two values have no trend and return 0.
func Slope(values []float64) float64 {
	return LinearFit(values).Slope
}

// LinearFit fits y = Slope*x + Intercept with x = 0..n-1.
func LinearFit(values []float64) Fit {
	n := len(values)
	if n == 0 {
		return Fit{}
	}
	if n < 2 {
		return Fit{Intercept: values[0], Points: 1}
	}

	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	fn := float64(n)
	// Index-based x makes the denominator strictly positive for n >= 2.
	slope := (fn*sumXY - sumX*sumY) / (fn*sumX2 - sumX*sumX)
	intercept := (sumY - slope*sumX) / fn

	meanY := sumY / fn
	var ssTot, ssRes float64
	for i, y := range values {
		pred := slope*float64(i) + intercept
		ssTot += (y - meanY) * (y - meanY)
		ssRes += (y - pred) * (y - pred)
	}
	r2 := 1.0
	if ssTot > 0 {
		r2 = math.Max(0, 1-ssRes/ssTot)
	}

	return Fit{Slope: slope, Intercept: intercept, RSquared: r2, Points: n}
}

// Classify maps a slope onto exactly one direction.
func Classify(slope float64) Direction {
	switch {
	case slope > 0:
		return Increasing
	case slope < 0:
		return Decreasing
	default:
		return Stable
	}
}

// Relative expresses slope as a fraction of a reference level, so thresholds
// work across domains with different units. With a zero reference only the
// sign of the slope is known, reported as ±1.
func Relative(slope, reference float64) float64 {
	if reference == 0 {
		if slope == 0 {
			return 0
		}
		return math.Copysign(1, slope)
	}
	return slope / math.Abs(reference)
}

// Level is the mean of the fitted line over the observed points, which equals
// the mean of the values. It is a reference that no single period can skew.
func (f Fit) Level() float64 {
	if f.Points == 0 {
		return 0
	}
	return f.Intercept + f.Slope*float64(f.Points-1)/2
}
