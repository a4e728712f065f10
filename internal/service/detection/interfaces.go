package detection

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shiftsentry/attendance-backend/internal/domain/alert"
	"github.com/shiftsentry/attendance-backend/internal/domain/anomaly"
	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
	"github.com/shiftsentry/attendance-backend/internal/domain/schedule"
)

// Validator is the admission chain contract.
type Validator interface {
	Evaluate(ctx context.Context, event *attendance.Event) attendance.ValidationResult
}

// Scorer answers whether an observation is anomalous for an entity.
type Scorer interface {
	Score(ctx context.Context, entityID uuid.UUID, metric anomaly.Metric, observed float64) (anomaly.Score, error)
}

// Correlator folds findings into alert records.
type Correlator interface {
	Correlate(ctx context.Context, f *anomaly.Finding) (*alert.Record, error)
}

// Publisher fans alert records out to live subscribers. Best effort: the
// orchestrator never fails an event because nobody saw the alert.
type Publisher interface {
	Publish(ctx context.Context, record *alert.Record)
}

// EventHistory is the prior-event surface the heuristics read and the
// admission path appends to. A superset of the validation chain's history
// so one store serves both.
type EventHistory interface {
	LastAdmitted(ctx context.Context, entityID uuid.UUID, kind attendance.EventKind) (*attendance.Event, error)
	LastShiftEnd(ctx context.Context, entityID uuid.UUID) (time.Time, error)

	// DistinctSites counts sites the entity was seen at within the
	// rolling window ending now.
	DistinctSites(ctx context.Context, entityID uuid.UUID, window time.Duration) (int, error)

	MarkAdmitted(ctx context.Context, event *attendance.Event) error
}

// ShiftResolver finds the shift an event runs against, for the schedule
// deviation heuristics.
type ShiftResolver interface {
	ShiftByID(ctx context.Context, shiftID uuid.UUID) (*schedule.Shift, error)
	ShiftFor(ctx context.Context, entityID, siteID uuid.UUID, at time.Time) (*schedule.Shift, error)
}

// Prediction is the external model's verdict.
type Prediction struct {
	Probability  float64            `json:"probability"`
	RiskLevel    string             `json:"risk_level"`
	ModelVersion string             `json:"model_version"`
	Features     map[string]float64 `json:"features,omitempty"`
}

// FraudPredictor is the pluggable external model. Strictly additive: the
// orchestrator absorbs every error and timeout.
type FraudPredictor interface {
	Predict(ctx context.Context, entityID, siteID uuid.UUID, scheduledTime time.Time) (*Prediction, error)
}

// BaselineObserver receives observed metric values for asynchronous folding
// into the baselines. Must never block.
type BaselineObserver interface {
	SubmitObservation(entityID uuid.UUID, metric anomaly.Metric, value float64, at time.Time)
}

// AuditSink receives the structured records an external system turns into
// tickets. Failures are the sink's problem, never the pipeline's.
type AuditSink interface {
	RecordRejection(ctx context.Context, event *attendance.Event, result attendance.ValidationResult)
	RecordFinding(ctx context.Context, finding *anomaly.Finding)
	RecordTimeout(ctx context.Context, event *attendance.Event)
}

// EventArchive persists admitted events for downstream batch analytics.
type EventArchive interface {
	SaveEvent(ctx context.Context, event *attendance.Event) error
}

// MetricsCollector receives pipeline outcomes for instrumentation.
type MetricsCollector interface {
	RecordProcess(outcome Outcome, duration time.Duration)
	RecordPredictor(ok bool, duration time.Duration)
	RecordQueueDepth(shard int, depth int)
}

// NoopMetrics satisfies MetricsCollector when no instrumentation is wired.
type NoopMetrics struct{}

func (NoopMetrics) RecordProcess(Outcome, time.Duration)  {}
func (NoopMetrics) RecordPredictor(bool, time.Duration)   {}
func (NoopMetrics) RecordQueueDepth(int, int)             {}
