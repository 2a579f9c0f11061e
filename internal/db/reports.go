package db

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics"
)

// NewReportRecord snapshots an analytics report for storage.
func NewReportRecord(r *analytics.Report) (*ReportRecord, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode report %s: %w", r.ID, err)
	}
	domains := make([]string, len(r.Domains))
	for i, d := range r.Domains {
		domains[i] = string(d)
	}
	return &ReportRecord{
		ID:         r.ID,
		TenantID:   r.TenantID,
		Horizon:    r.Horizon,
		Domains:    strings.Join(domains, ","),
		Confidence: r.Confidence,
		Payload:    string(payload),
		CreatedAt:  r.LastUpdated,
	}, nil
}

// DecodeReport restores the report stored in rec.
func DecodeReport(rec *ReportRecord) (*analytics.Report, error) {
	var r analytics.Report
	if err := json.Unmarshal([]byte(rec.Payload), &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", rec.ID, err)
	}
	return &r, nil
}
