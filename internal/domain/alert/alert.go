// Package alert models the correlated, user-facing record derived from one
// or more anomaly findings, and the wire message broadcast to dashboards.
package alert

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shiftsentry/attendance-backend/internal/domain/anomaly"
	"github.com/shiftsentry/attendance-backend/internal/domain/errors"
)

// CorrelationKey identifies the at-most-one-open-alert scope.
type CorrelationKey struct {
	TenantID uuid.UUID `json:"tenant_id"`
	EntityID uuid.UUID `json:"entity_id"`
	Category string    `json:"category"`
}

func (k CorrelationKey) String() string {
	return k.TenantID.String() + ":" + k.EntityID.String() + ":" + k.Category
}

type Status int

const (
	StatusOpen Status = iota
	StatusAcknowledged
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusAcknowledged:
		return "acknowledged"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Record is the correlated alert. While a record is open or acknowledged,
// further findings for the same key fold into it instead of creating a new
// one. Version is the optimistic-concurrency token stores compare on update.
type Record struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenant_id"`
	EntityID uuid.UUID `json:"entity_id"`
	SiteID   uuid.UUID `json:"site_id"`

	Category string           `json:"category"`
	Severity anomaly.Severity `json:"severity"`
	Status   Status           `json:"status"`

	// Count is how many findings folded into this record.
	Count int `json:"count"`

	// LastScore is the z-score of the most recent folded finding.
	LastScore float64 `json:"last_score"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Version int64 `json:"version"`
}

// NewRecord opens an alert from its first finding.
func NewRecord(f *anomaly.Finding) (*Record, error) {
	if f == nil {
		return nil, fmt.Errorf("finding cannot be nil")
	}
	if f.Category == "" {
		return nil, fmt.Errorf("finding category cannot be empty")
	}
	return &Record{
		ID:        uuid.New(),
		TenantID:  f.TenantID,
		EntityID:  f.EntityID,
		SiteID:    f.SiteID,
		Category:  f.Category,
		Severity:  f.Severity,
		Status:    StatusOpen,
		Count:     1,
		LastScore: f.ZScore,
		CreatedAt: f.DetectedAt,
		UpdatedAt: f.DetectedAt,
		Version:   1,
	}, nil
}

func (r *Record) Key() CorrelationKey {
	return CorrelationKey{TenantID: r.TenantID, EntityID: r.EntityID, Category: r.Category}
}

// IsOpen reports whether new findings should fold into this record.
// Acknowledged alerts still absorb findings; only closed ones do not.
func (r *Record) IsOpen() bool {
	return r.Status != StatusClosed
}

// ApplyFinding folds a subsequent finding into the open record. Severity is
// monotone non-decreasing within the open window and the update time never
// moves backwards, so concurrent folds converge on max severity and the
// latest timestamp regardless of apply order.
func (r *Record) ApplyFinding(f *anomaly.Finding) error {
	if !r.IsOpen() {
		return errors.ErrAlertClosed
	}
	if f.Severity > r.Severity {
		r.Severity = f.Severity
	}
	if f.DetectedAt.After(r.UpdatedAt) {
		r.UpdatedAt = f.DetectedAt
	}
	r.Count++
	r.LastScore = f.ZScore
	return nil
}

// Acknowledge marks the alert seen by an operator.
func (r *Record) Acknowledge(at time.Time) error {
	if r.Status == StatusClosed {
		return errors.ErrAlertClosed
	}
	r.Status = StatusAcknowledged
	r.UpdatedAt = at
	return nil
}

// Close ends the open window. The next finding for the same key opens a
// fresh record.
func (r *Record) Close(at time.Time) error {
	if r.Status == StatusClosed {
		return errors.ErrAlertClosed
	}
	r.Status = StatusClosed
	r.UpdatedAt = at
	return nil
}

// IdleSince reports whether the record has seen no update since the cutoff,
// making it a candidate for automatic cool-down closure.
func (r *Record) IdleSince(cutoff time.Time) bool {
	return r.UpdatedAt.Before(cutoff)
}
