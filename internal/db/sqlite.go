package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)

	"github.com/kubilitics/kubilitics-forecast/internal/models"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// sqliteMigrations is applied in order; versions are tracked in schema_versions.
var sqliteMigrations = []struct {
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
    occurred_at  TEXT NOT NULL,
    status       TEXT NOT NULL DEFAULT '',
    category     TEXT NOT NULL DEFAULT '',
    value        REAL NOT NULL DEFAULT 0.0,
    co2_kg       REAL NOT NULL DEFAULT 0.0,
    on_time      INTEGER NOT NULL DEFAULT 0,
    utilization  REAL NOT NULL DEFAULT 0.0
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
    confidence  REAL NOT NULL DEFAULT 0.0,
    payload     TEXT NOT NULL DEFAULT '{}',
    created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_tenant_created ON reports(tenant_id, created_at DESC);
`,
	},
}

type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database at path and applies
// pending migrations. ":memory:" gives a private in-memory database.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range sqliteMigrations {
		var count int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Records ──────────────────────────────────────────────────────────────────

func (s *sqliteStore) FetchRecords(ctx context.Context, tenantID string, since time.Time, kind models.RecordKind) ([]models.HistoricalRecord, error) {
	var out []models.HistoricalRecord
	err := instrument("sqlite", "fetch_records", func() error {
		rows, err := s.db.QueryContext(ctx, `
SELECT id, tenant_id, kind, occurred_at, status, category, value, co2_kg, on_time, utilization
FROM records
WHERE tenant_id = ? AND kind = ? AND occurred_at >= ?
ORDER BY occurred_at ASC, id ASC`,
			tenantID, string(kind), formatTime(since))
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				r          models.HistoricalRecord
				kindStr    string
				occurredAt string
			)
			if err := rows.Scan(&r.ID, &r.TenantID, &kindStr, &occurredAt, &r.Status, &r.Category,
				&r.Value, &r.CO2Kg, &r.OnTime, &r.Utilization); err != nil {
				return err
			}
			r.Kind = models.RecordKind(kindStr)
			if r.Timestamp, err = parseTime(occurredAt); err != nil {
				return fmt.Errorf("record %s: %w", r.ID, err)
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s records: %w", kind, err)
	}
	return out, nil
}

func (s *sqliteStore) InsertRecords(ctx context.Context, recs []models.HistoricalRecord) (int, error) {
	if err := validateBatch(recs); err != nil {
		return 0, err
	}
	var written int
	err := instrument("sqlite", "insert_records", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO records (id, tenant_id, kind, occurred_at, status, category, value, co2_kg, on_time, utilization)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range recs {
			if r.ID == "" {
				r.ID = uuid.New().String()
			}
			res, err := stmt.ExecContext(ctx, r.ID, r.TenantID, string(r.Kind), formatTime(r.Timestamp),
				r.Status, r.Category, r.Value, r.CO2Kg, r.OnTime, r.Utilization)
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

func (s *sqliteStore) PruneRecords(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := instrument("sqlite", "prune_records", func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE occurred_at < ?`, formatTime(before))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// ─── Reports ──────────────────────────────────────────────────────────────────

func (s *sqliteStore) SaveReport(ctx context.Context, rec *ReportRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	return instrument("sqlite", "save_report", func() error {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO reports (id, tenant_id, horizon, domains, confidence, payload, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    horizon = excluded.horizon,
    domains = excluded.domains,
    confidence = excluded.confidence,
    payload = excluded.payload`,
			rec.ID, rec.TenantID, rec.Horizon, rec.Domains, rec.Confidence, rec.Payload, formatTime(rec.CreatedAt))
		return err
	})
}

func (s *sqliteStore) GetReport(ctx context.Context, id string) (*ReportRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, tenant_id, horizon, domains, confidence, payload, created_at
FROM reports WHERE id = ?`, id)
	rec, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	return rec, err
}

func (s *sqliteStore) ListReports(ctx context.Context, tenantID string, limit int) ([]*ReportRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, tenant_id, horizon, domains, confidence, payload, created_at
FROM reports WHERE tenant_id = ?
ORDER BY created_at DESC
LIMIT ?`, tenantID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []*ReportRecord
	for rows.Next() {
		rec, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*ReportRecord, error) {
	var (
		rec       ReportRecord
		createdAt string
	)
	if err := row.Scan(&rec.ID, &rec.TenantID, &rec.Horizon, &rec.Domains, &rec.Confidence, &rec.Payload, &createdAt); err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = t
	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
