// Package history implements the prior-event stores behind the duplicate,
// rest-period and velocity checks: the most recent admitted event per
// (entity, kind), the last shift end per entity, and a rolling window of
// sites visited.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
)

// siteWindowRetention bounds how long visited-site entries survive; reads
// narrow further to the caller's window.
const siteWindowRetention = 24 * time.Hour

// RedisStore is the hot-path EventHistory. Keys are per entity, so the
// per-entity pipeline serialization makes read-after-write ordering hold
// without transactions.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, logger: logger}
}

func lastEventKey(entityID uuid.UUID, kind attendance.EventKind) string {
	return fmt.Sprintf("history:last:%s:%s", entityID, kind)
}

func shiftEndKey(entityID uuid.UUID) string {
	return fmt.Sprintf("history:shiftend:%s", entityID)
}

func sitesKey(entityID uuid.UUID) string {
	return fmt.Sprintf("history:sites:%s", entityID)
}

// LastAdmitted returns the most recent admitted event of the kind, nil when
// the entity has none.
func (s *RedisStore) LastAdmitted(ctx context.Context, entityID uuid.UUID, kind attendance.EventKind) (*attendance.Event, error) {
	raw, err := s.client.Get(ctx, lastEventKey(entityID, kind)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history get: %w", err)
	}

	var event attendance.Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return nil, fmt.Errorf("history decode: %w", err)
	}
	return &event, nil
}

// LastShiftEnd returns when the entity's previous shift ended, the zero
// time when unknown.
func (s *RedisStore) LastShiftEnd(ctx context.Context, entityID uuid.UUID) (time.Time, error) {
	raw, err := s.client.Get(ctx, shiftEndKey(entityID)).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("history get: %w", err)
	}

	end, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("history decode: %w", err)
	}
	return end, nil
}

// DistinctSites counts sites the entity was seen at within the window.
func (s *RedisStore) DistinctSites(ctx context.Context, entityID uuid.UUID, window time.Duration) (int, error) {
	cutoff := time.Now().Add(-window).UnixMilli()
	count, err := s.client.ZCount(ctx, sitesKey(entityID),
		strconv.FormatInt(cutoff, 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("history zcount: %w", err)
	}
	return int(count), nil
}

// MarkAdmitted records the event for subsequent checks: the last-event slot
// for its kind, the shift end on check-out, and the visited-sites window.
func (s *RedisStore) MarkAdmitted(ctx context.Context, event *attendance.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("history encode: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, lastEventKey(event.EntityID, event.Kind), raw, 0)

	if event.Kind == attendance.KindCheckOut {
		pipe.Set(ctx, shiftEndKey(event.EntityID),
			event.OccurredAt.Format(time.RFC3339Nano), 0)
	}

	sites := sitesKey(event.EntityID)
	pipe.ZAdd(ctx, sites, redis.Z{
		Score:  float64(event.OccurredAt.UnixMilli()),
		Member: event.SiteID.String(),
	})
	pipe.ZRemRangeByScore(ctx, sites, "-inf",
		strconv.FormatInt(time.Now().Add(-siteWindowRetention).UnixMilli(), 10))
	pipe.Expire(ctx, sites, siteWindowRetention)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("history write: %w", err)
	}
	return nil
}
