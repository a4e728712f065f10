package anomaly

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Score is the synchronous answer of the scorer for one observation.
type Score struct {
	Anomalous bool    `json:"anomalous"`
	ZScore    float64 `json:"z_score"`
	Threshold float64 `json:"threshold"`
}

// Severity tiers a finding by how far past its threshold the z-score landed.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// SeverityForScore bands severity by the ratio of |z| to the threshold that
// flagged it. A finding barely past threshold is low; twice past is critical.
func SeverityForScore(zScore, threshold float64) Severity {
	if threshold <= 0 {
		return SeverityLow
	}
	ratio := math.Abs(zScore) / threshold
	switch {
	case ratio >= 2.0:
		return SeverityCritical
	case ratio >= 1.5:
		return SeverityHigh
	case ratio >= 1.2:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Finding is one anomaly observation. Immutable after creation; forwarded to
// the correlator and kept for audit.
type Finding struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenant_id"`
	EntityID uuid.UUID `json:"entity_id"`
	SiteID   uuid.UUID `json:"site_id"`

	Metric    Metric  `json:"metric"`
	Observed  float64 `json:"observed"`
	ZScore    float64 `json:"z_score"`
	Threshold float64 `json:"threshold"`

	Severity Severity `json:"severity"`

	// Category keys alert correlation; one open alert per distinct
	// category per entity.
	Category string `json:"category"`

	// PredictorScore carries the external model's probability when the
	// plug-in answered in time; nil otherwise.
	PredictorScore *float64 `json:"predictor_score,omitempty"`
	ModelVersion   string   `json:"model_version,omitempty"`

	DetectedAt time.Time `json:"detected_at"`
}

func NewFinding(tenantID, entityID, siteID uuid.UUID, metric Metric, observed float64, score Score, detectedAt time.Time) (*Finding, error) {
	if tenantID == uuid.Nil || entityID == uuid.Nil {
		return nil, fmt.Errorf("tenant and entity IDs cannot be nil")
	}
	if metric == "" {
		return nil, fmt.Errorf("metric cannot be empty")
	}
	return &Finding{
		ID:         uuid.New(),
		TenantID:   tenantID,
		EntityID:   entityID,
		SiteID:     siteID,
		Metric:     metric,
		Observed:   observed,
		ZScore:     score.ZScore,
		Threshold:  score.Threshold,
		Severity:   SeverityForScore(score.ZScore, score.Threshold),
		Category:   string(metric),
		DetectedAt: detectedAt,
	}, nil
}

// AttachPrediction blends the external model's answer into the finding.
func (f *Finding) AttachPrediction(probability float64, modelVersion string) {
	f.PredictorScore = &probability
	f.ModelVersion = modelVersion
}
