package fixtures

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shiftsentry/attendance-backend/internal/domain/anomaly"
)

// FindingBuilder builds test anomaly findings
type FindingBuilder struct {
	t          *testing.T
	tenantID   uuid.UUID
	entityID   uuid.UUID
	siteID     uuid.UUID
	metric     anomaly.Metric
	observed   float64
	zScore     float64
	threshold  float64
	severity   anomaly.Severity
	detectedAt time.Time
}

// NewFindingBuilder creates a FindingBuilder with a medium-severity default
func NewFindingBuilder(t *testing.T) *FindingBuilder {
	t.Helper()
	return &FindingBuilder{
		t:          t,
		tenantID:   uuid.New(),
		entityID:   uuid.New(),
		siteID:     uuid.New(),
		metric:     anomaly.MetricCheckInOffset,
		observed:   45,
		zScore:     3.2,
		threshold:  2.5,
		severity:   anomaly.SeverityMedium,
		detectedAt: time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC),
	}
}

func (b *FindingBuilder) WithTenantID(id uuid.UUID) *FindingBuilder {
	b.tenantID = id
	return b
}

func (b *FindingBuilder) WithEntityID(id uuid.UUID) *FindingBuilder {
	b.entityID = id
	return b
}

func (b *FindingBuilder) WithSiteID(id uuid.UUID) *FindingBuilder {
	b.siteID = id
	return b
}

func (b *FindingBuilder) WithMetric(metric anomaly.Metric) *FindingBuilder {
	b.metric = metric
	return b
}

func (b *FindingBuilder) WithScore(zScore, threshold float64) *FindingBuilder {
	b.zScore = zScore
	b.threshold = threshold
	return b
}

func (b *FindingBuilder) WithSeverity(severity anomaly.Severity) *FindingBuilder {
	b.severity = severity
	return b
}

func (b *FindingBuilder) WithDetectedAt(at time.Time) *FindingBuilder {
	b.detectedAt = at
	return b
}

func (b *FindingBuilder) Build() *anomaly.Finding {
	b.t.Helper()
	return &anomaly.Finding{
		ID:         uuid.New(),
		TenantID:   b.tenantID,
		EntityID:   b.entityID,
		SiteID:     b.siteID,
		Metric:     b.metric,
		Observed:   b.observed,
		ZScore:     b.zScore,
		Threshold:  b.threshold,
		Severity:   b.severity,
		Category:   string(b.metric),
		DetectedAt: b.detectedAt,
	}
}
