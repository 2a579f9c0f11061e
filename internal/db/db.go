// Package db persists historical records and generated reports.
//
// Two backends implement Store: an embedded SQLite file (the default, pure Go,
// no CGO) and PostgreSQL through sqlx. Both are schema-versioned and create
// their tables on open.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kubilitics/kubilitics-forecast/internal/metrics"
	"github.com/kubilitics/kubilitics-forecast/internal/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRecord is returned when a batch fails validation; nothing is written.
	ErrInvalidRecord = errors.New("invalid record")
)

// Store is the persistence interface of the forecast service.
type Store interface {
	RecordStore
	ReportStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// ─── Record store ─────────────────────────────────────────────────────────────

// RecordStore holds the historical business events forecasts are built from.
type RecordStore interface {
	// FetchRecords returns the tenant's records of one kind with
	// occurred_at >= since, oldest first.
	FetchRecords(ctx context.Context, tenantID string, since time.Time, kind models.RecordKind) ([]models.HistoricalRecord, error)

	// InsertRecords validates and writes records in one transaction. Records
	// without an ID get a generated one; existing IDs are skipped. It returns
	// the number of rows written.
	InsertRecords(ctx context.Context, recs []models.HistoricalRecord) (int, error)

	// PruneRecords deletes records that occurred before the cutoff.
	PruneRecords(ctx context.Context, before time.Time) (int64, error)
}

// ─── Report store ─────────────────────────────────────────────────────────────

// ReportRecord is a stored analytics report. Payload is the report JSON.
type ReportRecord struct {
	ID         string    `json:"id" db:"id"`
	TenantID   string    `json:"tenantId" db:"tenant_id"`
	Horizon    int       `json:"horizon" db:"horizon"`
	Domains    string    `json:"domains" db:"domains"`
	Confidence float64   `json:"confidence" db:"confidence"`
	Payload    string    `json:"payload" db:"payload"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// ReportStore keeps report snapshots for later retrieval.
type ReportStore interface {
	SaveReport(ctx context.Context, rec *ReportRecord) error

	// GetReport returns ErrNotFound when id is unknown.
	GetReport(ctx context.Context, id string) (*ReportRecord, error)

	// ListReports returns the tenant's most recent reports first.
	ListReports(ctx context.Context, tenantID string, limit int) ([]*ReportRecord, error)
}

// Config selects and configures a backend.
type Config struct {
	Type         string // sqlite | postgres
	SQLitePath   string
	PostgresURL  string
	MaxOpenConns int
}

// Open opens the backend named by cfg.Type.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "", "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	case "postgres":
		s, err := NewPostgresStore(ctx, cfg.PostgresURL, cfg.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}

func validateBatch(recs []models.HistoricalRecord) error {
	for i, r := range recs {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%w: record %d: %w", ErrInvalidRecord, i, err)
		}
	}
	return nil
}

// instrument wraps a query with timing metrics.
func instrument(driver, operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.DBQueryDuration.WithLabelValues(driver, operation).Observe(time.Since(start).Seconds())
	return err
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
