package baseline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/domain/anomaly"
)

// RedisStore keeps baseline profiles in redis, fronted by a short-lived
// local cache so hot-path reads tolerate bounded staleness instead of a
// round trip per score.
type RedisStore struct {
	client   *redis.Client
	logger   *zap.Logger
	cacheTTL time.Duration

	mu    sync.RWMutex
	cache map[profileKey]cachedProfile
}

type cachedProfile struct {
	profile *anomaly.BaselineProfile
	expires time.Time
}

func NewRedisStore(client *redis.Client, cacheTTL time.Duration, logger *zap.Logger) *RedisStore {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client:   client,
		logger:   logger,
		cacheTTL: cacheTTL,
		cache:    make(map[profileKey]cachedProfile),
	}
}

func redisKey(entityID uuid.UUID, metric anomaly.Metric) string {
	return fmt.Sprintf("baseline:%s:%s", entityID, metric)
}

// Profile returns a snapshot, from the local cache while fresh, otherwise
// from redis. Missing profiles are (nil, nil).
func (s *RedisStore) Profile(ctx context.Context, entityID uuid.UUID, metric anomaly.Metric) (*anomaly.BaselineProfile, error) {
	key := profileKey{entityID, metric}

	s.mu.RLock()
	entry, ok := s.cache[key]
	s.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		if entry.profile == nil {
			return nil, nil
		}
		return entry.profile.Clone(), nil
	}

	raw, err := s.client.Get(ctx, redisKey(entityID, metric)).Result()
	if err == redis.Nil {
		s.remember(key, nil)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("baseline get: %w", err)
	}

	var profile anomaly.BaselineProfile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return nil, fmt.Errorf("baseline decode: %w", err)
	}

	s.remember(key, &profile)
	return profile.Clone(), nil
}

// Save writes the profile through to redis and refreshes the local cache.
func (s *RedisStore) Save(ctx context.Context, p *anomaly.BaselineProfile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("baseline encode: %w", err)
	}

	if err := s.client.Set(ctx, redisKey(p.EntityID, p.Metric), raw, 0).Err(); err != nil {
		return fmt.Errorf("baseline set: %w", err)
	}

	s.remember(profileKey{p.EntityID, p.Metric}, p.Clone())
	return nil
}

func (s *RedisStore) remember(key profileKey, p *anomaly.BaselineProfile) {
	s.mu.Lock()
	s.cache[key] = cachedProfile{profile: p, expires: time.Now().Add(s.cacheTTL)}
	s.mu.Unlock()
}
