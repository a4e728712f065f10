package baseline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/domain/anomaly"
)

// Store is the read/write surface the updater drives. MemoryStore and the
// redis Store both satisfy it.
type Store interface {
	Profile(ctx context.Context, entityID uuid.UUID, metric anomaly.Metric) (*anomaly.BaselineProfile, error)
	Save(ctx context.Context, p *anomaly.BaselineProfile) error
}

// observation is one value the pipeline saw for (entity, metric).
type observation struct {
	entityID uuid.UUID
	metric   anomaly.Metric
	value    float64
	at       time.Time
}

// feedback is one operator verdict on a finding's profile.
type feedback struct {
	entityID  uuid.UUID
	metric    anomaly.Metric
	confirmed bool
	at        time.Time
}

// UpdaterConfig carries the updater's tunables.
type UpdaterConfig struct {
	// QueueSize bounds the pending-update channel. When full, the oldest
	// pending update is dropped so the hot path never blocks.
	QueueSize int `json:"queue_size" koanf:"queue_size"`

	// StableAfter is the sample count at which a profile is marked
	// stable and starts scoring.
	StableAfter int64 `json:"stable_after" koanf:"stable_after"`

	// DefaultThreshold seeds new profiles' dynamic threshold.
	DefaultThreshold float64 `json:"default_threshold" koanf:"default_threshold"`

	// StoreTimeout bounds each read-modify-write round trip.
	StoreTimeout time.Duration `json:"store_timeout" koanf:"store_timeout"`
}

func (c *UpdaterConfig) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.StableAfter <= 0 {
		c.StableAfter = 20
	}
	if c.DefaultThreshold <= 0 {
		c.DefaultThreshold = 3.0
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 250 * time.Millisecond
	}
}

// Updater is the asynchronous feedback path and the only writer of baseline
// profiles. Observations fold into the running statistics with Welford's
// update; operator feedback moves the false-positive rate. Submission never
// blocks the caller: a full queue drops the oldest pending update instead.
type Updater struct {
	store        Store
	cfg          UpdaterConfig
	logger       *zap.Logger
	observations chan observation
	feedbacks    chan feedback
	done         chan struct{}
	stopped      chan struct{}
}

func NewUpdater(store Store, cfg UpdaterConfig, logger *zap.Logger) *Updater {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Updater{
		store:        store,
		cfg:          cfg,
		logger:       logger,
		observations: make(chan observation, cfg.QueueSize),
		feedbacks:    make(chan feedback, cfg.QueueSize),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
}

// Run consumes the queues until the context is cancelled or Stop is called,
// then drains what is already queued.
func (u *Updater) Run(ctx context.Context) {
	defer close(u.stopped)

	for {
		select {
		case <-ctx.Done():
			u.drain()
			return
		case <-u.done:
			u.drain()
			return
		case obs := <-u.observations:
			u.applyObservation(obs)
		case fb := <-u.feedbacks:
			u.applyFeedback(fb)
		}
	}
}

// Stop ends the run loop and waits for the drain to finish.
func (u *Updater) Stop() {
	close(u.done)
	<-u.stopped
}

// SubmitObservation queues one observed value. Never blocks: under
// backpressure the oldest queued observation is dropped to make room.
func (u *Updater) SubmitObservation(entityID uuid.UUID, metric anomaly.Metric, value float64, at time.Time) {
	obs := observation{entityID: entityID, metric: metric, value: value, at: at}
	select {
	case u.observations <- obs:
	default:
		select {
		case dropped := <-u.observations:
			u.logger.Warn("baseline observation dropped under backpressure",
				zap.String("entity_id", dropped.entityID.String()),
				zap.String("metric", string(dropped.metric)),
			)
		default:
		}
		select {
		case u.observations <- obs:
		default:
		}
	}
}

// SubmitFeedback queues one operator verdict: confirmed findings push the
// false-positive rate down, dismissals push it up.
func (u *Updater) SubmitFeedback(entityID uuid.UUID, metric anomaly.Metric, confirmed bool, at time.Time) {
	fb := feedback{entityID: entityID, metric: metric, confirmed: confirmed, at: at}
	select {
	case u.feedbacks <- fb:
	default:
		u.logger.Warn("baseline feedback dropped under backpressure",
			zap.String("entity_id", entityID.String()),
			zap.String("metric", string(metric)),
		)
	}
}

func (u *Updater) drain() {
	for {
		select {
		case obs := <-u.observations:
			u.applyObservation(obs)
		case fb := <-u.feedbacks:
			u.applyFeedback(fb)
		default:
			return
		}
	}
}

func (u *Updater) applyObservation(obs observation) {
	ctx, cancel := context.WithTimeout(context.Background(), u.cfg.StoreTimeout)
	defer cancel()

	profile, err := u.store.Profile(ctx, obs.entityID, obs.metric)
	if err != nil {
		u.logger.Error("baseline read failed, observation lost",
			zap.String("entity_id", obs.entityID.String()),
			zap.String("metric", string(obs.metric)),
			zap.Error(err),
		)
		return
	}
	if profile == nil {
		profile, err = anomaly.NewBaselineProfile(obs.entityID, obs.metric, u.cfg.DefaultThreshold)
		if err != nil {
			u.logger.Error("baseline create failed", zap.Error(err))
			return
		}
	}

	profile.Observe(obs.value, obs.at)
	if !profile.Stable && profile.SampleCount >= u.cfg.StableAfter {
		profile.MarkStable()
	}

	if err := u.store.Save(ctx, profile); err != nil {
		u.logger.Error("baseline save failed",
			zap.String("entity_id", obs.entityID.String()),
			zap.String("metric", string(obs.metric)),
			zap.Error(err),
		)
	}
}

func (u *Updater) applyFeedback(fb feedback) {
	ctx, cancel := context.WithTimeout(context.Background(), u.cfg.StoreTimeout)
	defer cancel()

	profile, err := u.store.Profile(ctx, fb.entityID, fb.metric)
	if err != nil || profile == nil {
		u.logger.Warn("feedback for unknown baseline discarded",
			zap.String("entity_id", fb.entityID.String()),
			zap.String("metric", string(fb.metric)),
			zap.Error(err),
		)
		return
	}

	profile.RecordFeedback(fb.confirmed, fb.at)

	if err := u.store.Save(ctx, profile); err != nil {
		u.logger.Error("baseline save failed after feedback",
			zap.String("entity_id", fb.entityID.String()),
			zap.Error(err),
		)
	}
}
