// Package scheduler runs periodic background jobs on cron schedules.
//
// Jobs:
//   - warm_reports: generate and store a report for each configured tenant,
//     which also refills the record cache before users ask for it
//   - prune_records: delete records older than the retention window (daily)
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics"
	"github.com/kubilitics/kubilitics-forecast/internal/db"
	"github.com/kubilitics/kubilitics-forecast/internal/metrics"
)

// Job names, also used as metric labels.
const (
	JobWarmReports  = "warm_reports"
	JobPruneRecords = "prune_records"
)

// PruneSpec is the schedule of the retention job.
const PruneSpec = "@daily"

// ReportRunner produces analytics reports.
type ReportRunner interface {
	Run(ctx context.Context, req analytics.Request) (*analytics.Report, error)
}

// Store is the persistence the jobs need.
type Store interface {
	SaveReport(ctx context.Context, rec *db.ReportRecord) error
	PruneRecords(ctx context.Context, before time.Time) (int64, error)
}

// Options configures the scheduled jobs.
type Options struct {
	Spec          string
	Tenants       []string
	Domains       []string
	Horizon       int
	RetentionDays int
	// Timeout bounds one job run; defaults to five minutes.
	Timeout time.Duration
	Clock   func() time.Time
}

// Scheduler owns the cron runner and its jobs.
type Scheduler struct {
	cron     *cron.Cron
	runner   ReportRunner
	store    Store
	opts     Options
	logger   *zap.Logger
	onReport func(*analytics.Report)
}

// New registers the jobs described by opts. It does not start them.
func New(runner ReportRunner, store Store, opts Options, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	cl := cronLogger{logger.Sugar()}
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		), cron.WithLogger(cl)),
		runner: runner,
		store:  store,
		opts:   opts,
		logger: logger,
	}

	if _, err := s.cron.AddFunc(opts.Spec, s.job(JobWarmReports, s.WarmReports)); err != nil {
		return nil, fmt.Errorf("schedule %s %q: %w", JobWarmReports, opts.Spec, err)
	}
	if opts.RetentionDays > 0 {
		prune := func(ctx context.Context) error {
			_, err := s.Prune(ctx)
			return err
		}
		if _, err := s.cron.AddFunc(PruneSpec, s.job(JobPruneRecords, prune)); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", JobPruneRecords, err)
		}
	}
	return s, nil
}

// OnReport registers a callback invoked with every warmed report.
func (s *Scheduler) OnReport(fn func(*analytics.Report)) { s.onReport = fn }

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("spec", s.opts.Spec),
		zap.Strings("tenants", s.opts.Tenants),
		zap.Int("retention_days", s.opts.RetentionDays),
	)
}

// Stop stops scheduling and waits for running jobs or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

func (s *Scheduler) job(name string, fn func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
		defer cancel()

		start := time.Now()
		err := fn(ctx)
		status := "ok"
		if err != nil {
			status = "error"
			s.logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
		} else {
			s.logger.Debug("scheduled job finished", zap.String("job", name), zap.Duration("duration", time.Since(start)))
		}
		metrics.SchedulerRuns.WithLabelValues(name, status).Inc()
	}
}

// WarmReports generates and stores one report per configured tenant. A failing
// tenant does not stop the others; their errors are joined.
func (s *Scheduler) WarmReports(ctx context.Context) error {
	var errs []error
	for _, tenant := range s.opts.Tenants {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report, err := s.runner.Run(ctx, analytics.Request{
			TenantID: tenant,
			Domains:  s.opts.Domains,
			Horizon:  s.opts.Horizon,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenant, err))
			continue
		}
		rec, err := db.NewReportRecord(report)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.store.SaveReport(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: save report: %w", tenant, err))
			continue
		}
		if s.onReport != nil {
			s.onReport(report)
		}
	}
	return errors.Join(errs...)
}

// Prune deletes records older than the retention window.
func (s *Scheduler) Prune(ctx context.Context) (int64, error) {
	if s.opts.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.opts.Clock().UTC().AddDate(0, 0, -s.opts.RetentionDays)
	n, err := s.store.PruneRecords(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune records before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	s.logger.Info("pruned records", zap.Int64("deleted", n), zap.Time("before", cutoff))
	return n, nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
