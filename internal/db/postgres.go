package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/kubilitics/kubilitics-forecast/internal/models"
)

var postgresMigrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS records (
    id           TEXT PRIMARY KEY,
    tenant_id    TEXT NOT NULL,
    kind         TEXT NOT NULL,
    occurred_at  TIMESTAMPTZ NOT NULL,
    status       TEXT NOT NULL DEFAULT '',
    category     TEXT NOT NULL DEFAULT '',
    value        DOUBLE PRECISION NOT NULL DEFAULT 0,
    co2_kg       DOUBLE PRECISION NOT NULL DEFAULT 0,
    on_time      BOOLEAN NOT NULL DEFAULT FALSE,
    utilization  DOUBLE PRECISION NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_records_tenant_kind_time ON records(tenant_id, kind, occurred_at);
CREATE INDEX IF NOT EXISTS idx_records_occurred_at ON records(occurred_at);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS reports (
    id          TEXT PRIMARY KEY,
    tenant_id   TEXT NOT NULL,
    horizon     INTEGER NOT NULL,
    domains     TEXT NOT NULL DEFAULT '',
    confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
    payload     JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_tenant_created ON reports(tenant_id, created_at DESC);
`,
	},
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to PostgreSQL and applies pending migrations.
func NewPostgresStore(ctx context.Context, connectionString string, maxOpenConns int) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = 25
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range postgresMigrations {
		var count int
		if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM schema_versions WHERE version = $1`, m.version); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_versions(version) VALUES($1)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping verifies the connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// FetchRecords implements RecordStore.
func (s *PostgresStore) FetchRecords(ctx context.Context, tenantID string, since time.Time, kind models.RecordKind) ([]models.HistoricalRecord, error) {
	var out []models.HistoricalRecord
	err := instrument("postgres", "fetch_records", func() error {
		return s.db.SelectContext(ctx, &out, `
SELECT id, tenant_id, kind, occurred_at, status, category, value, co2_kg, on_time, utilization
FROM records
WHERE tenant_id = $1 AND kind = $2 AND occurred_at >= $3
ORDER BY occurred_at ASC, id ASC`,
			tenantID, string(kind), since.UTC())
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s records: %w", kind, err)
	}
	for i := range out {
		out[i].Timestamp = out[i].Timestamp.UTC()
	}
	return out, nil
}

// InsertRecords implements RecordStore.
func (s *PostgresStore) InsertRecords(ctx context.Context, recs []models.HistoricalRecord) (int, error) {
	if err := validateBatch(recs); err != nil {
		return 0, err
	}
	var written int
	err := instrument("postgres", "insert_records", func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareNamedContext(ctx, `
INSERT INTO records (id, tenant_id, kind, occurred_at, status, category, value, co2_kg, on_time, utilization)
VALUES (:id, :tenant_id, :kind, :occurred_at, :status, :category, :value, :co2_kg, :on_time, :utilization)
ON CONFLICT (id) DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range recs {
			if r.ID == "" {
				r.ID = uuid.New().String()
			}
			r.Timestamp = r.Timestamp.UTC()
			res, err := stmt.ExecContext(ctx, r)
			if err != nil {
				return fmt.Errorf("insert record %s: %w", r.ID, err)
			}
			n, _ := res.RowsAffected()
			written += int(n)
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// PruneRecords implements RecordStore.
func (s *PostgresStore) PruneRecords(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := instrument("postgres", "prune_records", func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE occurred_at < $1`, before.UTC())
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// SaveReport implements ReportStore.
func (s *PostgresStore) SaveReport(ctx context.Context, rec *ReportRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	return instrument("postgres", "save_report", func() error {
		_, err := s.db.NamedExecContext(ctx, `
INSERT INTO reports (id, tenant_id, horizon, domains, confidence, payload, created_at)
VALUES (:id, :tenant_id, :horizon, :domains, :confidence, :payload, :created_at)
ON CONFLICT (id) DO UPDATE SET
    horizon = EXCLUDED.horizon,
    domains = EXCLUDED.domains,
    confidence = EXCLUDED.confidence,
    payload = EXCLUDED.payload`, rec)
		return err
	})
}

// GetReport implements ReportStore.
func (s *PostgresStore) GetReport(ctx context.Context, id string) (*ReportRecord, error) {
	var rec ReportRecord
	err := s.db.GetContext(ctx, &rec, `
SELECT id, tenant_id, horizon, domains, confidence, payload::text AS payload, created_at
FROM reports WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListReports implements ReportStore.
func (s *PostgresStore) ListReports(ctx context.Context, tenantID string, limit int) ([]*ReportRecord, error) {
	var out []*ReportRecord
	err := s.db.SelectContext(ctx, &out, `
SELECT id, tenant_id, horizon, domains, confidence, payload::text AS payload, created_at
FROM reports WHERE tenant_id = $1
ORDER BY created_at DESC
LIMIT $2`, tenantID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return out, nil
}
