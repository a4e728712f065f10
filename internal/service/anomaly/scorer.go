// Package anomaly implements the statistical scoring service: a z-score
// against the per-entity baseline with an adaptively selected threshold.
package anomaly

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/domain/anomaly"
	"github.com/shiftsentry/attendance-backend/internal/domain/errors"
)

// Config carries the scorer's threshold tunables. Zero values are replaced
// by defaults so a partially filled config stays safe.
type Config struct {
	// NoisyFPRate is the false-positive feedback rate above which a
	// baseline is treated as noisy regardless of its maturity.
	NoisyFPRate float64 `json:"noisy_fp_rate" koanf:"noisy_fp_rate"`

	// ConservativeThreshold applies to noisy baselines.
	ConservativeThreshold float64 `json:"conservative_threshold" koanf:"conservative_threshold"`

	// MatureSampleCount is the sample count past which a quiet baseline
	// earns the sensitive threshold.
	MatureSampleCount int64 `json:"mature_sample_count" koanf:"mature_sample_count"`

	// SensitiveThreshold applies to mature, quiet baselines.
	SensitiveThreshold float64 `json:"sensitive_threshold" koanf:"sensitive_threshold"`

	// StoreTimeout bounds the baseline read.
	StoreTimeout time.Duration `json:"store_timeout" koanf:"store_timeout"`
}

const (
	defaultNoisyFPRate           = 0.3
	defaultConservativeThreshold = 4.0
	defaultMatureSampleCount     = 100
	defaultSensitiveThreshold    = 2.5
	defaultStoreTimeout          = 50 * time.Millisecond
)

func (c *Config) applyDefaults() {
	if c.NoisyFPRate <= 0 {
		c.NoisyFPRate = defaultNoisyFPRate
	}
	if c.ConservativeThreshold <= 0 {
		c.ConservativeThreshold = defaultConservativeThreshold
	}
	if c.MatureSampleCount <= 0 {
		c.MatureSampleCount = defaultMatureSampleCount
	}
	if c.SensitiveThreshold <= 0 {
		c.SensitiveThreshold = defaultSensitiveThreshold
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = defaultStoreTimeout
	}
}

// Scorer answers "is this observation anomalous for this entity".
type Scorer struct {
	store   BaselineStore
	cfg     Config
	logger  *zap.Logger
	metrics MetricsCollector
}

func NewScorer(store BaselineStore, cfg Config, logger *zap.Logger) *Scorer {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		metrics: NoopMetrics{},
	}
}

// SetMetrics replaces the no-op collector. Call before first use.
func (s *Scorer) SetMetrics(m MetricsCollector) {
	if m != nil {
		s.metrics = m
	}
}

// Score computes the z-score of observed against the entity's baseline for
// the metric and flags it when |z| exceeds the selected threshold.
//
// Threshold precedence: a noisy baseline (false-positive rate past the
// cutoff) always gets the conservative threshold, even when it is also
// mature; a mature quiet baseline gets the sensitive threshold; everything
// else uses the profile's own configured dynamic threshold. An absent,
// empty, flat or unstable baseline never flags.
func (s *Scorer) Score(ctx context.Context, entityID uuid.UUID, metric anomaly.Metric, observed float64) (anomaly.Score, error) {
	start := time.Now()

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	profile, err := s.store.Profile(storeCtx, entityID, metric)
	cancel()
	if err != nil {
		return anomaly.Score{}, errors.NewUnavailableError("baseline store").WithCause(err)
	}

	if profile == nil || !profile.CanScore() {
		s.metrics.RecordScore(metric, false, time.Since(start))
		return anomaly.Score{}, nil
	}

	z := (observed - profile.Mean) / profile.StdDev
	threshold := s.selectThreshold(profile)

	score := anomaly.Score{
		Anomalous: math.Abs(z) > threshold,
		ZScore:    z,
		Threshold: threshold,
	}

	if score.Anomalous {
		s.logger.Debug("observation flagged",
			zap.String("entity_id", entityID.String()),
			zap.String("metric", string(metric)),
			zap.Float64("observed", observed),
			zap.Float64("z_score", z),
			zap.Float64("threshold", threshold),
		)
	}

	s.metrics.RecordScore(metric, score.Anomalous, time.Since(start))
	return score, nil
}

// selectThreshold applies the three-tier precedence. Noise suppression wins
// over maturity: a well-sampled baseline that operators keep dismissing must
// not become oversensitive just because it has many samples.
func (s *Scorer) selectThreshold(p *anomaly.BaselineProfile) float64 {
	if p.FalsePositiveRate > s.cfg.NoisyFPRate {
		return s.cfg.ConservativeThreshold
	}
	if p.SampleCount > s.cfg.MatureSampleCount {
		return s.cfg.SensitiveThreshold
	}
	return p.DynamicThreshold
}
