package validation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
	"github.com/shiftsentry/attendance-backend/internal/domain/schedule"
)

// ScheduleStore is the read-only rostering surface the chain consults.
// Implementations return (nil, nil) when no record exists; a non-nil error
// always means the store itself could not answer.
type ScheduleStore interface {
	// ActiveAssignment returns the entity's assignment to the site, nil
	// when the entity is not assigned there.
	ActiveAssignment(ctx context.Context, entityID, siteID uuid.UUID) (*schedule.Assignment, error)

	// ShiftByID loads a specific shift.
	ShiftByID(ctx context.Context, shiftID uuid.UUID) (*schedule.Shift, error)

	// ShiftFor finds the shift scheduled for the entity at the site whose
	// graced window covers the given instant.
	ShiftFor(ctx context.Context, entityID, siteID uuid.UUID, at time.Time) (*schedule.Shift, error)

	// Post loads a post definition.
	Post(ctx context.Context, postID uuid.UUID) (*schedule.Post, error)

	// IsRostered reports whether the entity is rostered to the post at the
	// given instant.
	IsRostered(ctx context.Context, entityID, postID uuid.UUID, at time.Time) (bool, error)

	// Certifications returns the credentials the entity holds.
	Certifications(ctx context.Context, entityID uuid.UUID) (schedule.CertificationSet, error)

	// OrdersAcknowledgement returns the entity's latest briefing
	// confirmation for the post, nil when never acknowledged.
	OrdersAcknowledgement(ctx context.Context, entityID, postID uuid.UUID) (*schedule.OrdersAcknowledgement, error)
}

// EventHistory answers "what happened before this event" for the duplicate
// and rest-period layers. Writes happen after admission, on the same
// per-entity sequence the reads run on, so reads always observe every prior
// admit for the entity.
type EventHistory interface {
	// LastAdmitted returns the most recent admitted event of the given
	// kind for the entity, nil when there is none.
	LastAdmitted(ctx context.Context, entityID uuid.UUID, kind attendance.EventKind) (*attendance.Event, error)

	// LastShiftEnd returns when the entity's previous shift ended; the
	// zero time when unknown.
	LastShiftEnd(ctx context.Context, entityID uuid.UUID) (time.Time, error)

	// MarkAdmitted records an admitted event for subsequent checks.
	MarkAdmitted(ctx context.Context, event *attendance.Event) error
}

// MetricsCollector receives chain outcomes for instrumentation.
type MetricsCollector interface {
	RecordLayerOutcome(layer attendance.LayerCode, outcome attendance.LayerOutcome)
	RecordEvaluation(admitted bool, duration time.Duration)
}

// NoopMetrics satisfies MetricsCollector for tests and wiring without
// instrumentation.
type NoopMetrics struct{}

func (NoopMetrics) RecordLayerOutcome(attendance.LayerCode, attendance.LayerOutcome) {}
func (NoopMetrics) RecordEvaluation(bool, time.Duration)                             {}
