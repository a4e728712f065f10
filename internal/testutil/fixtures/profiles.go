package fixtures

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shiftsentry/attendance-backend/internal/domain/anomaly"
)

// ProfileBuilder builds test baseline profiles
type ProfileBuilder struct {
	t                 *testing.T
	entityID          uuid.UUID
	metric            anomaly.Metric
	mean              float64
	stdDev            float64
	sampleCount       int64
	falsePositiveRate float64
	stable            bool
	dynamicThreshold  float64
}

// NewProfileBuilder creates a ProfileBuilder for a stable, quiet baseline
func NewProfileBuilder(t *testing.T) *ProfileBuilder {
	t.Helper()
	return &ProfileBuilder{
		t:                t,
		entityID:         uuid.New(),
		metric:           anomaly.MetricCheckInOffset,
		mean:             10,
		stdDev:           5,
		sampleCount:      50,
		stable:           true,
		dynamicThreshold: 3.0,
	}
}

func (b *ProfileBuilder) WithEntityID(id uuid.UUID) *ProfileBuilder {
	b.entityID = id
	return b
}

func (b *ProfileBuilder) WithMetric(metric anomaly.Metric) *ProfileBuilder {
	b.metric = metric
	return b
}

func (b *ProfileBuilder) WithStats(mean, stdDev float64, samples int64) *ProfileBuilder {
	b.mean = mean
	b.stdDev = stdDev
	b.sampleCount = samples
	return b
}

func (b *ProfileBuilder) WithFalsePositiveRate(rate float64) *ProfileBuilder {
	b.falsePositiveRate = rate
	return b
}

func (b *ProfileBuilder) WithStable(stable bool) *ProfileBuilder {
	b.stable = stable
	return b
}

func (b *ProfileBuilder) WithDynamicThreshold(threshold float64) *ProfileBuilder {
	b.dynamicThreshold = threshold
	return b
}

func (b *ProfileBuilder) Build() *anomaly.BaselineProfile {
	b.t.Helper()
	return &anomaly.BaselineProfile{
		EntityID:          b.entityID,
		Metric:            b.metric,
		Mean:              b.mean,
		StdDev:            b.stdDev,
		SampleCount:       b.sampleCount,
		FalsePositiveRate: b.falsePositiveRate,
		Stable:            b.stable,
		DynamicThreshold:  b.dynamicThreshold,
		UpdatedAt:         time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}
