// Package analytics runs the predictive analytics pipeline for one tenant.
//
// Pipeline stages, per request:
//  1. Validate the request and resolve domain descriptors
//  2. Fetch history once per record kind over the lookback window
//  3. Aggregate each domain's records into dense period buckets
//  4. Fit trend and seasonality, then project the forecast series
//  5. Evaluate recommendation rules across all series
//  6. Score data quality and model accuracy, and assemble the report
//
// The Orchestrator keeps no state between calls and is safe for concurrent use.
// A run returns either a complete Report or an error, never a partial report.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics/forecasting"
	"github.com/kubilitics/kubilitics-forecast/internal/analytics/recommendation"
	"github.com/kubilitics/kubilitics-forecast/internal/analytics/scoring"
	"github.com/kubilitics/kubilitics-forecast/internal/analytics/timeseries"
	"github.com/kubilitics/kubilitics-forecast/internal/metrics"
	"github.com/kubilitics/kubilitics-forecast/internal/models"
	"github.com/kubilitics/kubilitics-forecast/internal/tracing"
)

// NoiseOptions configures forecast perturbation.
type NoiseOptions struct {
	Enabled bool
	Scale   float64
	// Seed fixes the noise sequence; 0 seeds from the clock.
	Seed int64
}

// Options configures an Orchestrator. Zero values fall back to defaults.
type Options struct {
	Registry *forecasting.Registry
	Engine   *recommendation.Engine
	Quality  scoring.QualityAssessor
	Accuracy scoring.AccuracyEstimator

	DefaultHorizon     int
	MaxHorizon         int
	LookbackMultiplier int

	Noise NoiseOptions
	Clock func() time.Time

	Logger *zap.Logger
}

// Default orchestrator settings.
const (
	DefaultHorizon            = 7
	DefaultMaxHorizon         = 90
	DefaultLookbackMultiplier = 4
	DefaultNoiseScale         = 0.05
)

// Orchestrator runs analytics requests against a RecordProvider.
type Orchestrator struct {
	provider RecordProvider
	opts     Options
	logger   *zap.Logger
}

// NewOrchestrator creates an orchestrator over provider.
func NewOrchestrator(provider RecordProvider, opts Options) *Orchestrator {
	if opts.Registry == nil {
		opts.Registry = forecasting.DefaultRegistry()
	}
	if opts.Engine == nil {
		opts.Engine = recommendation.NewEngine(recommendation.DefaultThresholds())
	}
	if opts.Quality == nil {
		opts.Quality = scoring.MeasuredQuality{}
	}
	if opts.Accuracy == nil {
		opts.Accuracy = scoring.MeasuredAccuracy{}
	}
	if opts.DefaultHorizon <= 0 {
		opts.DefaultHorizon = DefaultHorizon
	}
	if opts.MaxHorizon <= 0 {
		opts.MaxHorizon = DefaultMaxHorizon
	}
	if opts.LookbackMultiplier <= 0 {
		opts.LookbackMultiplier = DefaultLookbackMultiplier
	}
	if opts.Noise.Scale <= 0 {
		opts.Noise.Scale = DefaultNoiseScale
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{provider: provider, opts: opts, logger: logger}
}

// Registry returns the domain registry in use.
func (o *Orchestrator) Registry() *forecasting.Registry { return o.opts.Registry }

// plan is a validated request.
type plan struct {
	tenantID    string
	horizon     int
	descriptors []forecasting.Descriptor
	noise       forecasting.Noise
}

// window is the lookback range of one descriptor: [from, to), with the
// forecast starting at to.
type window struct {
	from, to time.Time
}

// Run executes one analytics request.
func (o *Orchestrator) Run(ctx context.Context, req Request) (report *Report, err error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "analytics.Run",
		attribute.String("tenant.id", req.TenantID),
		attribute.Int("forecast.horizon", req.Horizon),
		attribute.StringSlice("forecast.domains", req.Domains),
	)
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("analytics run panicked",
				zap.Any("panic", r),
				zap.String("tenant_id", req.TenantID),
				zap.ByteString("stack", debug.Stack()),
			)
			report, err = nil, fmt.Errorf("%w: panic: %v", ErrInternalFailure, r)
		}

		status := StatusOf(err)
		metrics.ReportsTotal.WithLabelValues(status).Inc()
		metrics.ReportDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		}
		span.End()
	}()

	p, err := o.validate(req)
	if err != nil {
		o.logger.Info("analytics request rejected", zap.String("tenant_id", req.TenantID), zap.Error(err))
		return nil, err
	}

	report, err = o.execute(ctx, p)
	if err != nil {
		o.logger.Error("analytics run failed",
			zap.String("tenant_id", p.tenantID),
			zap.Int("horizon", p.horizon),
			zap.Error(err),
		)
		return nil, err
	}

	o.logger.Info("analytics report generated",
		zap.String("report_id", report.ID),
		zap.String("tenant_id", report.TenantID),
		zap.Int("horizon", report.Horizon),
		zap.Int("domains", len(report.Domains)),
		zap.Int("records", report.RecordsAnalyzed),
		zap.Int("recommendations", len(report.Recommendations)),
		zap.Duration("duration", time.Since(start)),
	)
	return report, nil
}

func (o *Orchestrator) validate(req Request) (plan, error) {
	tenantID := strings.TrimSpace(req.TenantID)
	if tenantID == "" {
		return plan{}, fmt.Errorf("%w: tenantId", ErrMissingParameter)
	}

	horizon := req.Horizon
	if horizon == 0 {
		horizon = o.opts.DefaultHorizon
	}
	if horizon < 1 || horizon > o.opts.MaxHorizon {
		return plan{}, fmt.Errorf("%w: horizon %d outside [1, %d]", ErrInvalidRequest, req.Horizon, o.opts.MaxHorizon)
	}

	descriptors, err := o.opts.Registry.Resolve(req.Domains)
	if err != nil {
		return plan{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	prm, err := parseParams(req.Parameters)
	if err != nil {
		return plan{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if prm.hasCapacity {
		for i, d := range descriptors {
			if d.Domain == forecasting.Capacity {
				descriptors[i] = d.WithClassifier(forecasting.CapacityStatus(prm.capacityThreshold))
			}
		}
	}

	return plan{
		tenantID:    tenantID,
		horizon:     horizon,
		descriptors: descriptors,
		noise:       o.noiseFor(prm),
	}, nil
}

func (o *Orchestrator) noiseFor(prm params) forecasting.Noise {
	enabled := o.opts.Noise.Enabled
	if prm.noise != nil {
		enabled = *prm.noise
	}
	if !enabled {
		return nil
	}
	seed := o.opts.Noise.Seed
	if prm.seed != nil {
		seed = *prm.seed
	}
	if seed == 0 {
		return forecasting.NewTimeSeededNoise()
	}
	return forecasting.NewSeededNoise(seed)
}

// lookback returns the window of d for horizon h: LookbackMultiplier·h complete
// periods ending at the start of the current period.
func (o *Orchestrator) lookback(d forecasting.Descriptor, now time.Time, h int) window {
	to := timeseries.Truncate(now, d.Granularity)
	return window{
		from: timeseries.Advance(to, d.Granularity, -o.opts.LookbackMultiplier*h),
		to:   to,
	}
}

func (o *Orchestrator) execute(ctx context.Context, p plan) (*Report, error) {
	now := o.opts.Clock().UTC()

	windows := make([]window, len(p.descriptors))
	since := make(map[models.RecordKind]time.Time)
	for i, d := range p.descriptors {
		windows[i] = o.lookback(d, now, p.horizon)
		if s, ok := since[d.RecordKind]; !ok || windows[i].from.Before(s) {
			since[d.RecordKind] = windows[i].from
		}
	}

	records, fetched, invalid, err := o.fetch(ctx, p.tenantID, since)
	if err != nil {
		return nil, err
	}

	forecasts := make(recommendation.Forecasts, len(p.descriptors))
	domains := make([]forecasting.Domain, 0, len(p.descriptors))
	samples := make([]scoring.Sample, 0, len(p.descriptors))
	for i, d := range p.descriptors {
		series, sample, err := o.forecast(ctx, d, records[d.RecordKind], windows[i], p)
		if err != nil {
			return nil, err
		}
		forecasts[d.Domain] = series
		domains = append(domains, d.Domain)
		samples = append(samples, sample)
		metrics.ForecastPoints.WithLabelValues(string(d.Domain)).Add(float64(len(series.Points)))
	}

	_, recSpan := tracing.StartSpan(ctx, "analytics.recommend")
	recs := o.opts.Engine.Evaluate(forecasts)
	recSpan.SetAttributes(attribute.Int("recommendations", len(recs)))
	recSpan.End()
	for _, r := range recs {
		metrics.RecommendationsTotal.WithLabelValues(string(r.Type), string(r.Priority)).Inc()
	}

	quality := o.opts.Quality.Assess(scoring.QualityInput{Samples: samples, Records: fetched, Invalid: invalid})
	accuracy := o.opts.Accuracy.Estimate(samples)

	return &Report{
		ID:              uuid.New().String(),
		TenantID:        p.tenantID,
		Horizon:         p.horizon,
		Domains:         domains,
		Predictions:     map[forecasting.Domain]forecasting.Series(forecasts),
		ModelAccuracy:   accuracy,
		Recommendations: recs,
		DataQuality:     quality,
		Confidence:      meanConfidence(forecasts, domains),
		RecordsAnalyzed: fetched - invalid,
		LastUpdated:     now,
	}, nil
}

// fetch loads every needed record kind once. Records failing validation or
// belonging to another tenant or kind are dropped and counted as invalid.
func (o *Orchestrator) fetch(ctx context.Context, tenantID string, since map[models.RecordKind]time.Time) (map[models.RecordKind][]models.HistoricalRecord, int, int, error) {
	out := make(map[models.RecordKind][]models.HistoricalRecord, len(since))
	var fetched, invalid int
	for _, kind := range sortedKinds(since) {
		ctx, span := tracing.StartSpan(ctx, "analytics.fetch",
			attribute.String("record.kind", string(kind)),
			attribute.String("since", since[kind].Format(time.RFC3339)),
		)
		recs, err := o.provider.FetchRecords(ctx, tenantID, since[kind], kind)
		if err != nil {
			span.RecordError(err)
			span.End()
			if errors.Is(err, ErrInternalFailure) {
				return nil, 0, 0, err
			}
			return nil, 0, 0, fmt.Errorf("%w: fetch %s records: %w", ErrInternalFailure, kind, err)
		}
		span.SetAttributes(attribute.Int("records", len(recs)))
		span.End()

		valid := make([]models.HistoricalRecord, 0, len(recs))
		for _, r := range recs {
			if r.Kind != kind || r.TenantID != tenantID || r.Validate() != nil {
				invalid++
				continue
			}
			valid = append(valid, r)
		}
		fetched += len(recs)
		out[kind] = valid
		metrics.RecordsFetched.WithLabelValues(string(kind)).Add(float64(len(recs)))
	}
	return out, fetched, invalid, nil
}

func (o *Orchestrator) forecast(ctx context.Context, d forecasting.Descriptor, records []models.HistoricalRecord, w window, p plan) (forecasting.Series, scoring.Sample, error) {
	_, span := tracing.StartSpan(ctx, "analytics.forecast", attribute.String("forecast.domain", string(d.Domain)))
	defer span.End()

	buckets, err := timeseries.Aggregate(records, d.Options(w.from, w.to))
	if err != nil {
		span.RecordError(err)
		return forecasting.Series{}, scoring.Sample{}, fmt.Errorf("%w: aggregate %s: %w", ErrInternalFailure, d.Domain, err)
	}

	fit, season := forecasting.Estimate(d, buckets)
	series := forecasting.Generate(forecasting.Input{
		Descriptor:  d,
		History:     buckets,
		Trend:       fit.Slope,
		Seasonality: season,
		Horizon:     p.horizon,
		Start:       w.to,
		Noise:       p.noise,
		NoiseScale:  o.opts.Noise.Scale,
	})
	span.SetAttributes(
		attribute.Float64("forecast.trend", series.Trend),
		attribute.Float64("forecast.baseline", series.Baseline),
	)

	return series, scoring.Sample{
		Domain:      string(d.Domain),
		Granularity: d.Granularity,
		History:     buckets,
		Fitted:      forecasting.FitValues(d, buckets),
	}, nil
}

func meanConfidence(f recommendation.Forecasts, order []forecasting.Domain) float64 {
	var sum float64
	var n int
	for _, d := range order {
		for _, p := range f[d].Points {
			sum += p.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func sortedKinds(m map[models.RecordKind]time.Time) []models.RecordKind {
	kinds := make([]models.RecordKind, 0, len(m))
	for _, k := range models.RecordKinds() {
		if _, ok := m[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
