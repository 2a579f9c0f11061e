// Package timeseries groups raw historical records into per-period buckets.
//
// Responsibilities:
//   - Truncate record timestamps to day, week, month or quarter boundaries
//   - Compute count, sum, mean and rate aggregates per period
//   - Optionally fill empty periods so downstream trend fitting sees gaps as zeros
//
// A record contributes to exactly one bucket: the one whose [Start, End) range
// contains its timestamp.
package timeseries

import (
	"fmt"
	"sort"
	"time"

	"github.com/kubilitics/kubilitics-forecast/internal/models"
)

// AggregationFunc selects which statistic becomes Bucket.Value.
type AggregationFunc string

const (
	Count AggregationFunc = "count"
	Sum   AggregationFunc = "sum"
	Mean  AggregationFunc = "mean"
	Rate  AggregationFunc = "rate"
)

// Bucket is the aggregate of all records falling in one period.
type Bucket struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Label   string    `json:"period"`
	Count   int       `json:"count"`
	Sum     float64   `json:"sum"`
	Matched int       `json:"matched"`
	Value   float64   `json:"value"`
}

// Empty reports whether no record fell in the bucket.
func (b Bucket) Empty() bool { return b.Count == 0 }

// Mean is Sum/Count, or 0 for an empty bucket.
func (b Bucket) Mean() float64 {
	if b.Count == 0 {
		return 0
	}
	return b.Sum / float64(b.Count)
}

// Rate is the fraction of records matching the predicate, or 0 for an empty bucket.
func (b Bucket) Rate() float64 {
	if b.Count == 0 {
		return 0
	}
	return float64(b.Matched) / float64(b.Count)
}

// Options controls one aggregation pass.
type Options struct {
	Granularity Granularity
	Func        AggregationFunc

	// Value extracts the summed quantity; required for Sum and Mean.
	Value func(models.HistoricalRecord) float64
	// Predicate marks matching records; required for Rate.
	Predicate func(models.HistoricalRecord) bool

	// Dense synthesizes zero-valued buckets for periods without records.
	Dense bool
	// From and To bound the window (To exclusive). Records outside are ignored.
	// When Dense is set and both are non-zero, every period in the window is emitted.
	From time.Time
	To   time.Time

	// Location used for period boundaries. Defaults to UTC.
	Location *time.Location
}

func (o Options) validate() error {
	if _, err := ParseGranularity(string(o.Granularity)); err != nil {
		return err
	}
	switch o.Func {
	case Count:
	case Sum, Mean:
		if o.Value == nil {
			return fmt.Errorf("aggregation %q requires a value extractor", o.Func)
		}
	case Rate:
		if o.Predicate == nil {
			return fmt.Errorf("aggregation %q requires a predicate", o.Func)
		}
	default:
		return fmt.Errorf("unknown aggregation %q", o.Func)
	}
	if !o.From.IsZero() && !o.To.IsZero() && !o.From.Before(o.To) {
		return fmt.Errorf("window start %s is not before end %s", o.From, o.To)
	}
	return nil
}

// Aggregate groups records into buckets ordered by period start.
// An empty input yields an empty result unless a dense window is requested.
func Aggregate(records []models.HistoricalRecord, opts Options) ([]Bucket, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	byStart := make(map[time.Time]*Bucket)
	for _, rec := range records {
		ts := rec.Timestamp.In(loc)
		if !opts.From.IsZero() && ts.Before(opts.From.In(loc)) {
			continue
		}
		if !opts.To.IsZero() && !ts.Before(opts.To.In(loc)) {
			continue
		}
		start := Truncate(ts, opts.Granularity)
		b, ok := byStart[start]
		if !ok {
			b = newBucket(start, opts.Granularity)
			byStart[start] = b
		}
		b.Count++
		if opts.Value != nil {
			b.Sum += opts.Value(rec)
		}
		if opts.Predicate != nil && opts.Predicate(rec) {
			b.Matched++
		}
	}

	if opts.Dense {
		fillGaps(byStart, opts, loc)
	}

	out := make([]Bucket, 0, len(byStart))
	for _, b := range byStart {
		b.Value = valueOf(*b, opts.Func)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// fillGaps inserts empty buckets for every missing period, either across the
// explicit window or between the first and last observed period.
func fillGaps(byStart map[time.Time]*Bucket, opts Options, loc *time.Location) {
	var first, last time.Time
	if !opts.From.IsZero() && !opts.To.IsZero() {
		first = Truncate(opts.From.In(loc), opts.Granularity)
		last = Truncate(opts.To.In(loc).Add(-time.Nanosecond), opts.Granularity)
	} else {
		if len(byStart) == 0 {
			return
		}
		for start := range byStart {
			if first.IsZero() || start.Before(first) {
				first = start
			}
			if last.IsZero() || start.After(last) {
				last = start
			}
		}
	}
	for start := first; !start.After(last); start = Next(start, opts.Granularity) {
		if _, ok := byStart[start]; !ok {
			byStart[start] = newBucket(start, opts.Granularity)
		}
	}
}

func newBucket(start time.Time, g Granularity) *Bucket {
	return &Bucket{
		Start: start,
		End:   Next(start, g),
		Label: Label(start, g),
	}
}

func valueOf(b Bucket, fn AggregationFunc) float64 {
	switch fn {
	case Sum:
		return b.Sum
	case Mean:
		return b.Mean()
	case Rate:
		return b.Rate()
	default:
		return float64(b.Count)
	}
}

// Values returns the Value of every bucket in order.
func Values(buckets []Bucket) []float64 {
	out := make([]float64, len(buckets))
	for i, b := range buckets {
		out[i] = b.Value
	}
	return out
}

// NonEmpty returns only the buckets that received at least one record.
func NonEmpty(buckets []Bucket) []Bucket {
	out := make([]Bucket, 0, len(buckets))
	for _, b := range buckets {
		if !b.Empty() {
			out = append(out, b)
		}
	}
	return out
}

// Total returns the number of records across all buckets.
func Total(buckets []Bucket) int {
	n := 0
	for _, b := range buckets {
		n += b.Count
	}
	return n
}
