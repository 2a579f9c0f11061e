package models

import (
	"fmt"
	"time"
)

// RecordKind identifies which business event a HistoricalRecord describes.
type RecordKind string

const (
	RecordKindTransportRequest RecordKind = "transport_request"
	RecordKindOrder            RecordKind = "order"
	RecordKindShipment         RecordKind = "shipment"
)

// Shipment statuses that count as an exception for risk scoring.
const (
	StatusDelivered = "delivered"
	StatusDelayed   = "delayed"
	StatusCancelled = "cancelled"
	StatusDamaged   = "damaged"
	StatusLost      = "lost"
	StatusPending   = "pending"
	StatusInTransit = "in_transit"
)

// RecordKinds lists every known record kind.
func RecordKinds() []RecordKind {
	return []RecordKind{RecordKindTransportRequest, RecordKindOrder, RecordKindShipment}
}

// ParseRecordKind validates a record kind string.
func ParseRecordKind(s string) (RecordKind, error) {
	for _, k := range RecordKinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown record kind %q", s)
}

// HistoricalRecord is one observed business event owned by the record store.
type HistoricalRecord struct {
	ID          string     `json:"id" yaml:"id" db:"id"`
	TenantID    string     `json:"tenantId" yaml:"tenantId" db:"tenant_id"`
	Kind        RecordKind `json:"kind" yaml:"kind" db:"kind"`
	Timestamp   time.Time  `json:"timestamp" yaml:"timestamp" db:"occurred_at"`
	Status      string     `json:"status" yaml:"status" db:"status"`
	Category    string     `json:"category,omitempty" yaml:"category,omitempty" db:"category"`
	Value       float64    `json:"value" yaml:"value" db:"value"`
	CO2Kg       float64    `json:"co2Kg" yaml:"co2Kg" db:"co2_kg"`
	OnTime      bool       `json:"onTime" yaml:"onTime" db:"on_time"`
	Utilization float64    `json:"utilization" yaml:"utilization" db:"utilization"`
}

// IsException reports whether the record ended in a state that counts against
// delivery risk.
func (r HistoricalRecord) IsException() bool {
	switch r.Status {
	case StatusDelayed, StatusCancelled, StatusDamaged, StatusLost:
		return true
	}
	return false
}

// Validate checks the fields every store requires.
func (r HistoricalRecord) Validate() error {
	if r.TenantID == "" {
		return fmt.Errorf("record %q: tenant id is required", r.ID)
	}
	if _, err := ParseRecordKind(string(r.Kind)); err != nil {
		return fmt.Errorf("record %q: %w", r.ID, err)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("record %q: timestamp is required", r.ID)
	}
	if r.Value < 0 || r.CO2Kg < 0 || r.Utilization < 0 {
		return fmt.Errorf("record %q: numeric fields must be non-negative", r.ID)
	}
	return nil
}
