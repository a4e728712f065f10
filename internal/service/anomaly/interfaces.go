package anomaly

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shiftsentry/attendance-backend/internal/domain/anomaly"
)

// BaselineStore hands out profile snapshots to the scoring path. The hot
// path only reads; implementations must return copies so concurrent feedback
// updates can never tear a read.
type BaselineStore interface {
	// Profile returns a snapshot of the baseline for (entity, metric),
	// nil when no baseline exists yet.
	Profile(ctx context.Context, entityID uuid.UUID, metric anomaly.Metric) (*anomaly.BaselineProfile, error)
}

// MetricsCollector receives scorer outcomes for instrumentation.
type MetricsCollector interface {
	RecordScore(metric anomaly.Metric, anomalous bool, duration time.Duration)
}

// NoopMetrics satisfies MetricsCollector when no instrumentation is wired.
type NoopMetrics struct{}

func (NoopMetrics) RecordScore(anomaly.Metric, bool, time.Duration) {}
