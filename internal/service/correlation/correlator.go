// Package correlation folds anomaly findings into alert records, enforcing
// at most one open alert per (tenant, entity, category) key under concurrent
// findings.
package correlation

import (
	"context"
	"errors"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/domain/alert"
	"github.com/shiftsentry/attendance-backend/internal/domain/anomaly"
	apperrors "github.com/shiftsentry/attendance-backend/internal/domain/errors"
)

const lockStripes = 64

// Config carries the correlator's tunables.
type Config struct {
	// MaxRetries bounds CAS retry attempts on a version conflict.
	MaxRetries int `json:"max_retries" koanf:"max_retries"`

	// RetryBackoff is the base backoff between attempts; each attempt
	// adds up to the same amount of jitter.
	RetryBackoff time.Duration `json:"retry_backoff" koanf:"retry_backoff"`

	// Cooldown is how long an open alert may sit idle before the sweeper
	// closes it.
	Cooldown time.Duration `json:"cooldown" koanf:"cooldown"`

	// SweepInterval is how often the sweeper scans for idle alerts.
	SweepInterval time.Duration `json:"sweep_interval" koanf:"sweep_interval"`
}

func (c *Config) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 10 * time.Millisecond
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
}

// Correlator is the enforcement point for the one-open-alert invariant.
// Same-key findings serialize on a striped mutex; the store's CAS catches
// writers that raced past the stripe (multi-node deployments share no
// process locks).
type Correlator struct {
	store   AlertStore
	cfg     Config
	logger  *zap.Logger
	metrics MetricsCollector
	now     func() time.Time

	stripes [lockStripes]sync.Mutex
}

func NewCorrelator(store AlertStore, cfg Config, logger *zap.Logger) *Correlator {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Correlator{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		metrics: NoopMetrics{},
		now:     time.Now,
	}
}

// SetMetrics replaces the no-op collector. Call before first use.
func (c *Correlator) SetMetrics(m MetricsCollector) {
	if m != nil {
		c.metrics = m
	}
}

// SetClock injects a deterministic clock for tests.
func (c *Correlator) SetClock(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

func (c *Correlator) stripe(key alert.CorrelationKey) *sync.Mutex {
	h := fnv.New32a()
	h.Write(key.TenantID[:])
	h.Write(key.EntityID[:])
	h.Write([]byte(key.Category))
	return &c.stripes[h.Sum32()%lockStripes]
}

// Correlate folds the finding into the key's open alert, creating one when
// none is open. Severity is monotone non-decreasing within the open window
// and the update time converges on the latest finding regardless of arrival
// interleaving. Conflicts retry with jittered backoff, never drop silently.
func (c *Correlator) Correlate(ctx context.Context, f *anomaly.Finding) (*alert.Record, error) {
	start := time.Now()
	key := alert.CorrelationKey{TenantID: f.TenantID, EntityID: f.EntityID, Category: f.Category}

	mu := c.stripe(key)
	mu.Lock()
	defer mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			c.metrics.RecordConflictRetry()
			backoff := c.cfg.RetryBackoff + time.Duration(rand.Int63n(int64(c.cfg.RetryBackoff)))
			select {
			case <-ctx.Done():
				return nil, apperrors.NewTimeoutError("alert correlation").WithCause(ctx.Err())
			case <-time.After(backoff):
			}
		}

		record, created, err := c.attempt(ctx, key, f)
		if err == nil {
			c.metrics.RecordCorrelation(created, time.Since(start))
			return record, nil
		}
		if !apperrors.IsType(err, apperrors.ErrorTypeConflict) {
			return nil, err
		}
		lastErr = err
		c.logger.Debug("correlation conflict, retrying",
			zap.String("key", key.String()),
			zap.Int("attempt", attempt+1),
		)
	}

	return nil, apperrors.NewConflictError("alert update kept conflicting").WithCause(lastErr)
}

func (c *Correlator) attempt(ctx context.Context, key alert.CorrelationKey, f *anomaly.Finding) (*alert.Record, bool, error) {
	open, err := c.store.OpenByKey(ctx, key)
	if err != nil {
		return nil, false, apperrors.NewUnavailableError("alert store").WithCause(err)
	}

	if open == nil {
		record, err := alert.NewRecord(f)
		if err != nil {
			return nil, false, err
		}
		if err := c.store.Create(ctx, record); err != nil {
			if errors.Is(err, apperrors.ErrOpenAlertExists) {
				// Another writer opened the key first; fold into theirs.
				return nil, false, apperrors.ErrVersionConflict
			}
			return nil, false, apperrors.NewUnavailableError("alert store").WithCause(err)
		}
		return record, true, nil
	}

	if err := open.ApplyFinding(f); err != nil {
		return nil, false, err
	}
	if err := c.store.Update(ctx, open); err != nil {
		if errors.Is(err, apperrors.ErrVersionConflict) {
			return nil, false, apperrors.ErrVersionConflict
		}
		return nil, false, apperrors.NewUnavailableError("alert store").WithCause(err)
	}
	return open, false, nil
}

// Acknowledge marks an alert seen by an operator.
func (c *Correlator) Acknowledge(ctx context.Context, id uuid.UUID) (*alert.Record, error) {
	return c.transition(ctx, id, func(r *alert.Record) error {
		return r.Acknowledge(c.now())
	})
}

// Close ends an alert's open window; the next finding for the key opens a
// fresh record.
func (c *Correlator) Close(ctx context.Context, id uuid.UUID) (*alert.Record, error) {
	return c.transition(ctx, id, func(r *alert.Record) error {
		return r.Close(c.now())
	})
}

func (c *Correlator) transition(ctx context.Context, id uuid.UUID, apply func(*alert.Record) error) (*alert.Record, error) {
	record, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, apperrors.NewUnavailableError("alert store").WithCause(err)
	}
	if record == nil {
		return nil, apperrors.ErrAlertNotFound
	}

	mu := c.stripe(record.Key())
	mu.Lock()
	defer mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			record, err = c.store.Get(ctx, id)
			if err != nil {
				return nil, apperrors.NewUnavailableError("alert store").WithCause(err)
			}
			if record == nil {
				return nil, apperrors.ErrAlertNotFound
			}
		}
		if err := apply(record); err != nil {
			return nil, err
		}
		err = c.store.Update(ctx, record)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, apperrors.ErrVersionConflict) {
			return nil, apperrors.NewUnavailableError("alert store").WithCause(err)
		}
		lastErr = err
	}
	return nil, apperrors.NewConflictError("alert transition kept conflicting").WithCause(lastErr)
}

// RunSweeper closes open alerts idle past the cool-down, until the context
// is cancelled.
func (c *Correlator) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *Correlator) sweep(ctx context.Context) {
	open, err := c.store.OpenRecords(ctx)
	if err != nil {
		c.logger.Warn("cooldown sweep skipped", zap.Error(err))
		return
	}

	cutoff := c.now().Add(-c.cfg.Cooldown)
	for _, record := range open {
		if !record.IdleSince(cutoff) {
			continue
		}
		if _, err := c.Close(ctx, record.ID); err != nil {
			c.logger.Warn("cooldown close failed",
				zap.String("alert_id", record.ID.String()),
				zap.Error(err),
			)
			continue
		}
		c.logger.Info("alert closed by cooldown",
			zap.String("alert_id", record.ID.String()),
			zap.String("category", record.Category),
		)
	}
}
