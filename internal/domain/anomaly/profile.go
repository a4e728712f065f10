// Package anomaly holds the statistical baseline model and the findings the
// detection pipeline derives from it.
package anomaly

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Metric keys the per-entity baselines the pipeline maintains.
type Metric string

const (
	// MetricSiteHopRate is distinct sites visited per rolling hour.
	MetricSiteHopRate Metric = "site_hop_rate"
	// MetricCheckInOffset is minutes between scheduled and actual start.
	MetricCheckInOffset Metric = "check_in_offset_minutes"
	// MetricShiftDuration is worked minutes between check-in and check-out.
	MetricShiftDuration Metric = "shift_duration_minutes"
	// MetricRestGap is hours since the previous shift ended.
	MetricRestGap Metric = "rest_gap_hours"
)

// feedbackAlpha weights the newest confirmation/dismissal in the running
// false-positive rate.
const feedbackAlpha = 0.1

// BaselineProfile is the running statistical state for one (entity, metric)
// pair. The hot scoring path only reads profiles; all mutation happens on the
// asynchronous feedback path, one writer at a time.
type BaselineProfile struct {
	EntityID uuid.UUID `json:"entity_id"`
	Metric   Metric    `json:"metric"`

	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"`
	SampleCount int64   `json:"sample_count"`

	// M2 is the running sum of squared deviations (Welford); kept so the
	// profile can resume accumulation after a round-trip through storage.
	M2 float64 `json:"m2"`

	// FalsePositiveRate in [0,1], moved by operator feedback on findings.
	FalsePositiveRate float64 `json:"false_positive_rate"`

	// Stable is set once the profile has seen enough samples to score.
	Stable bool `json:"stable"`

	// DynamicThreshold is the configured base threshold used while the
	// profile is neither noisy nor mature.
	DynamicThreshold float64 `json:"dynamic_threshold"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewBaselineProfile(entityID uuid.UUID, metric Metric, dynamicThreshold float64) (*BaselineProfile, error) {
	if entityID == uuid.Nil {
		return nil, fmt.Errorf("entity ID cannot be nil")
	}
	if metric == "" {
		return nil, fmt.Errorf("metric cannot be empty")
	}
	if dynamicThreshold <= 0 {
		return nil, fmt.Errorf("dynamic threshold must be positive")
	}
	return &BaselineProfile{
		EntityID:         entityID,
		Metric:           metric,
		DynamicThreshold: dynamicThreshold,
	}, nil
}

// CanScore reports whether the profile carries enough signal to declare an
// anomaly. An empty, flat or unstable baseline never flags.
func (p *BaselineProfile) CanScore() bool {
	return p.SampleCount > 0 && p.StdDev > 0 && p.Stable
}

// Observe folds one observation into the running mean and deviation using
// Welford's update, then refreshes the derived standard deviation.
func (p *BaselineProfile) Observe(value float64, at time.Time) {
	p.SampleCount++
	delta := value - p.Mean
	p.Mean += delta / float64(p.SampleCount)
	delta2 := value - p.Mean
	p.M2 += delta * delta2

	if p.SampleCount >= 2 {
		p.StdDev = math.Sqrt(p.M2 / float64(p.SampleCount-1))
	}
	p.UpdatedAt = at
}

// RecordFeedback moves the false-positive rate toward 1 on a dismissal and
// toward 0 on a confirmation, as an exponential moving average.
func (p *BaselineProfile) RecordFeedback(confirmed bool, at time.Time) {
	outcome := 0.0
	if !confirmed {
		outcome = 1.0
	}
	p.FalsePositiveRate = (1-feedbackAlpha)*p.FalsePositiveRate + feedbackAlpha*outcome
	p.UpdatedAt = at
}

// MarkStable flips the stability flag once the owning updater decides the
// sample base suffices.
func (p *BaselineProfile) MarkStable() {
	p.Stable = true
}

// Clone returns an independent copy, letting stores hand out snapshots
// without exposing their internals to concurrent mutation.
func (p *BaselineProfile) Clone() *BaselineProfile {
	cp := *p
	return &cp
}
