// Package forecasting projects bucketed history into short-horizon forecast series.
//
// Responsibilities:
//   - Hold the registry of forecast domains and their per-domain rules
//   - Extract each domain's baseline from its historical buckets
//   - Project H future periods from baseline, trend and seasonal amplitude
//   - Clamp predictions to domain bounds and decay confidence with distance
//   - Attach domain classifications (risk level, capacity status) to points
//
// Forecast Model:
//
//	predicted(i)  = clamp(baseline + trend·i + seasonal(i) + noise)
//	confidence(i) = max(floor, start − (i/H)·decay), within [0, 1]
//
// Domains differ only in their Descriptor: which records they read, how those
// records are aggregated, what the baseline is and which bounds apply.
package forecasting

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics/timeseries"
	"github.com/kubilitics/kubilitics-forecast/internal/models"
)

// Domain names one forecast subject area.
type Domain string

const (
	Demand         Domain = "demand"
	Capacity       Domain = "capacity"
	Cost           Domain = "cost"
	Delivery       Domain = "delivery"
	Risk           Domain = "risk"
	Sustainability Domain = "sustainability"
)

// All is the request keyword that expands to every registered domain.
const All = "all"

// Classification levels attached to forecast points.
const (
	LevelLow        = "low"
	LevelMedium     = "medium"
	LevelHigh       = "high"
	LevelNormal     = "normal"
	LevelBottleneck = "bottleneck"
)

// Default classification thresholds.
const (
	DefaultBottleneckUtilization = 0.85
	RiskMediumThreshold          = 0.4
	RiskHighThreshold            = 0.7
)

// ErrUnknownDomain is returned when a domain name matches no descriptor or alias.
var ErrUnknownDomain = errors.New("unknown domain")

// BaselineFunc extracts the starting level of a forecast from history.
// ok is false when the history carries no usable observation.
type BaselineFunc func(history []timeseries.Bucket) (value float64, ok bool)

// ClassifyFunc maps a predicted value onto a domain level label.
type ClassifyFunc func(predicted float64) string

// Descriptor is everything the pipeline needs to know about one domain.
type Descriptor struct {
	Domain      Domain
	RecordKind  models.RecordKind
	Granularity timeseries.Granularity
	Aggregate   timeseries.AggregationFunc
	Value       func(models.HistoricalRecord) float64
	Predicate   func(models.HistoricalRecord) bool
	Baseline    BaselineFunc

	Lower   float64
	Upper   float64
	Default float64
	Unit    string

	ConfidenceStart float64
	ConfidenceDecay float64
	ConfidenceFloor float64

	// SkipEmpty fits trend and seasonality over non-empty buckets only.
	// Mean and rate domains set it: an empty period has no mean, not a zero one.
	SkipEmpty bool

	Classify ClassifyFunc
}

// Options returns aggregation options covering the window [from, to).
func (d Descriptor) Options(from, to time.Time) timeseries.Options {
	return timeseries.Options{
		Granularity: d.Granularity,
		Func:        d.Aggregate,
		Value:       d.Value,
		Predicate:   d.Predicate,
		Dense:       true,
		From:        from,
		To:          to,
	}
}

// Clamp bounds v to [Lower, Upper].
func (d Descriptor) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return d.Default
	}
	return math.Min(math.Max(v, d.Lower), d.Upper)
}

// Confidence returns the confidence of point i (1-based) in a series of length h.
func (d Descriptor) Confidence(i, h int) float64 {
	if h <= 0 {
		return clamp01(math.Max(d.ConfidenceFloor, d.ConfidenceStart))
	}
	c := d.ConfidenceStart - (float64(i)/float64(h))*d.ConfidenceDecay
	return clamp01(math.Max(d.ConfidenceFloor, c))
}

// WithClassifier returns a copy of d using fn for point levels.
func (d Descriptor) WithClassifier(fn ClassifyFunc) Descriptor {
	d.Classify = fn
	return d
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

// ─── Baselines ──────────────────────────────────────────────────────────────

// LastBucket uses the value of the most recent bucket, empty or not.
func LastBucket(history []timeseries.Bucket) (float64, bool) {
	if len(history) == 0 {
		return 0, false
	}
	return history[len(history)-1].Value, true
}

// LastNonEmpty uses the value of the most recent bucket that received records.
func LastNonEmpty(history []timeseries.Bucket) (float64, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if !history[i].Empty() {
			return history[i].Value, true
		}
	}
	return 0, false
}

// ─── Classifiers ────────────────────────────────────────────────────────────

// RiskLevel classifies an exception-rate forecast.
func RiskLevel(predicted float64) string {
	switch {
	case predicted >= RiskHighThreshold:
		return LevelHigh
	case predicted >= RiskMediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// CapacityStatus returns a classifier flagging utilization at or above threshold.
func CapacityStatus(threshold float64) ClassifyFunc {
	return func(predicted float64) string {
		if predicted >= threshold {
			return LevelBottleneck
		}
		return LevelNormal
	}
}

// ─── Registry ───────────────────────────────────────────────────────────────

// Registry maps domain names and aliases to descriptors.
// It is read-only once built and safe for concurrent lookups.
type Registry struct {
	descriptors map[Domain]Descriptor
	aliases     map[string]Domain
	order       []Domain
}

// NewRegistry creates a registry holding ds in registration order.
func NewRegistry(ds ...Descriptor) *Registry {
	r := &Registry{
		descriptors: make(map[Domain]Descriptor, len(ds)),
		aliases:     make(map[string]Domain),
	}
	for _, d := range ds {
		r.register(d)
	}
	return r
}

func (r *Registry) register(d Descriptor) {
	if _, exists := r.descriptors[d.Domain]; !exists {
		r.order = append(r.order, d.Domain)
	}
	r.descriptors[d.Domain] = d
}

// WithAlias returns r after mapping name onto domain.
func (r *Registry) WithAlias(name string, domain Domain) *Registry {
	r.aliases[normalize(name)] = domain
	return r
}

// Domains lists registered domains in registration order.
func (r *Registry) Domains() []Domain {
	out := make([]Domain, len(r.order))
	copy(out, r.order)
	return out
}

// Aliases returns a copy of the alias table.
func (r *Registry) Aliases() map[string]Domain {
	out := make(map[string]Domain, len(r.aliases))
	for k, v := range r.aliases {
		out[k] = v
	}
	return out
}

// Lookup finds the descriptor for a domain name or alias, case-insensitively.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	key := normalize(name)
	if alias, ok := r.aliases[key]; ok {
		key = string(alias)
	}
	d, ok := r.descriptors[Domain(key)]
	return d, ok
}

// Resolve turns requested names into descriptors in registration order.
// "all" or an empty list selects every domain; duplicates and aliases collapse.
func (r *Registry) Resolve(names []string) ([]Descriptor, error) {
	selected := make(map[Domain]bool)
	for _, name := range names {
		if normalize(name) == All {
			for _, d := range r.order {
				selected[d] = true
			}
			continue
		}
		d, ok := r.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, name)
		}
		selected[d.Domain] = true
	}
	if len(selected) == 0 {
		for _, d := range r.order {
			selected[d] = true
		}
	}

	out := make([]Descriptor, 0, len(selected))
	for _, d := range r.order {
		if selected[d] {
			out = append(out, r.descriptors[d])
		}
	}
	return out, nil
}

// RecordKinds returns the distinct record kinds read by ds, sorted.
func RecordKinds(ds []Descriptor) []models.RecordKind {
	seen := make(map[models.RecordKind]bool)
	var kinds []models.RecordKind
	for _, d := range ds {
		if !seen[d.RecordKind] {
			seen[d.RecordKind] = true
			kinds = append(kinds, d.RecordKind)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DefaultRegistry builds the six logistics domains.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Descriptor{
			Domain:          Demand,
			RecordKind:      models.RecordKindTransportRequest,
			Granularity:     timeseries.Day,
			Aggregate:       timeseries.Count,
			Baseline:        LastBucket,
			Lower:           0,
			Upper:           math.Inf(1),
			Unit:            "requests",
			ConfidenceStart: 0.85,
			ConfidenceDecay: 0.3,
			ConfidenceFloor: 0.5,
		},
		Descriptor{
			Domain:          Capacity,
			RecordKind:      models.RecordKindShipment,
			Granularity:     timeseries.Day,
			Aggregate:       timeseries.Mean,
			Value:           func(r models.HistoricalRecord) float64 { return r.Utilization },
			Baseline:        LastNonEmpty,
			Lower:           0,
			Upper:           1.5,
			Unit:            "utilization",
			ConfidenceStart: 0.85,
			ConfidenceDecay: 0.25,
			ConfidenceFloor: 0.5,
			SkipEmpty:       true,
			Classify:        CapacityStatus(DefaultBottleneckUtilization),
		},
		Descriptor{
			Domain:          Cost,
			RecordKind:      models.RecordKindOrder,
			Granularity:     timeseries.Week,
			Aggregate:       timeseries.Mean,
			Value:           func(r models.HistoricalRecord) float64 { return r.Value },
			Baseline:        LastNonEmpty,
			Lower:           0,
			Upper:           math.Inf(1),
			Unit:            "currency",
			ConfidenceStart: 0.85,
			ConfidenceDecay: 0.25,
			ConfidenceFloor: 0.5,
			SkipEmpty:       true,
		},
		Descriptor{
			Domain:          Delivery,
			RecordKind:      models.RecordKindShipment,
			Granularity:     timeseries.Week,
			Aggregate:       timeseries.Rate,
			Predicate:       func(r models.HistoricalRecord) bool { return r.OnTime },
			Baseline:        LastNonEmpty,
			Lower:           0,
			Upper:           1,
			Default:         0.95,
			Unit:            "on_time_rate",
			ConfidenceStart: 0.9,
			ConfidenceDecay: 0.2,
			ConfidenceFloor: 0.6,
			SkipEmpty:       true,
		},
		Descriptor{
			Domain:          Risk,
			RecordKind:      models.RecordKindShipment,
			Granularity:     timeseries.Week,
			Aggregate:       timeseries.Rate,
			Predicate:       models.HistoricalRecord.IsException,
			Baseline:        LastNonEmpty,
			Lower:           0,
			Upper:           1,
			Unit:            "exception_rate",
			ConfidenceStart: 0.85,
			ConfidenceDecay: 0.3,
			ConfidenceFloor: 0.5,
			SkipEmpty:       true,
			Classify:        RiskLevel,
		},
		Descriptor{
			Domain:          Sustainability,
			RecordKind:      models.RecordKindShipment,
			Granularity:     timeseries.Month,
			Aggregate:       timeseries.Sum,
			Value:           func(r models.HistoricalRecord) float64 { return r.CO2Kg },
			Baseline:        LastBucket,
			Lower:           0,
			Upper:           math.Inf(1),
			Unit:            "kg_co2",
			ConfidenceStart: 0.88,
			ConfidenceDecay: 0.25,
			ConfidenceFloor: 0.5,
		},
	).WithAlias("performance", Delivery).
		WithAlias("emissions", Sustainability)
}
