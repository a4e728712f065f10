package correlation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shiftsentry/attendance-backend/internal/domain/alert"
)

// AlertStore persists alert records. Update is compare-and-swap on the
// record's Version: a concurrent writer surfaces as ErrVersionConflict, and
// Create of a second open record for an already-open key surfaces as
// ErrOpenAlertExists, so the correlator can reload and retry.
type AlertStore interface {
	// OpenByKey returns the open (or acknowledged) record for the key,
	// nil when the key has no open alert.
	OpenByKey(ctx context.Context, key alert.CorrelationKey) (*alert.Record, error)

	// Get loads a record by ID, nil when absent.
	Get(ctx context.Context, id uuid.UUID) (*alert.Record, error)

	// Create inserts a new open record.
	Create(ctx context.Context, r *alert.Record) error

	// Update persists the record iff the stored version still matches
	// r.Version, then bumps r.Version.
	Update(ctx context.Context, r *alert.Record) error

	// OpenRecords lists every record still absorbing findings, for the
	// cool-down sweeper.
	OpenRecords(ctx context.Context) ([]*alert.Record, error)
}

// MetricsCollector receives correlator outcomes for instrumentation.
type MetricsCollector interface {
	RecordCorrelation(created bool, duration time.Duration)
	RecordConflictRetry()
}

// NoopMetrics satisfies MetricsCollector when no instrumentation is wired.
type NoopMetrics struct{}

func (NoopMetrics) RecordCorrelation(bool, time.Duration) {}
func (NoopMetrics) RecordConflictRetry()                  {}
