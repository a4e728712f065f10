package baseline_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/domain/anomaly"
	"github.com/shiftsentry/attendance-backend/internal/infrastructure/baseline"
	"github.com/shiftsentry/attendance-backend/internal/testutil/fixtures"
)

func TestMemoryStore_ReadsAreSnapshots(t *testing.T) {
	store := baseline.NewMemoryStore()
	profile := fixtures.NewProfileBuilder(t).WithStats(10, 2, 30).Build()

	require.NoError(t, store.Save(context.Background(), profile))

	first, err := store.Profile(context.Background(), profile.EntityID, profile.Metric)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Mutating the snapshot must not leak into the store.
	first.Mean = 999

	second, err := store.Profile(context.Background(), profile.EntityID, profile.Metric)
	require.NoError(t, err)
	assert.Equal(t, 10.0, second.Mean)
}

func TestMemoryStore_MissingProfileIsNilNil(t *testing.T) {
	store := baseline.NewMemoryStore()

	p, err := store.Profile(context.Background(), uuid.New(), anomaly.MetricRestGap)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestUpdater_ObservationsBuildBaseline(t *testing.T) {
	store := baseline.NewMemoryStore()
	updater := baseline.NewUpdater(store, baseline.UpdaterConfig{StableAfter: 5}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go updater.Run(ctx)
	defer cancel()

	entityID := uuid.New()
	at := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	for _, v := range []float64{10, 12, 8, 11, 9, 10} {
		updater.SubmitObservation(entityID, anomaly.MetricCheckInOffset, v, at)
		at = at.Add(time.Minute)
	}

	require.Eventually(t, func() bool {
		p, err := store.Profile(context.Background(), entityID, anomaly.MetricCheckInOffset)
		return err == nil && p != nil && p.SampleCount == 6
	}, 2*time.Second, 10*time.Millisecond)

	p, err := store.Profile(context.Background(), entityID, anomaly.MetricCheckInOffset)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, p.Mean, 1e-9)
	assert.True(t, p.Stable, "profile must turn stable after StableAfter samples")
	assert.Greater(t, p.StdDev, 0.0)
}

func TestUpdater_FeedbackMovesFalsePositiveRate(t *testing.T) {
	store := baseline.NewMemoryStore()
	profile := fixtures.NewProfileBuilder(t).WithFalsePositiveRate(0).Build()
	require.NoError(t, store.Save(context.Background(), profile))

	updater := baseline.NewUpdater(store, baseline.UpdaterConfig{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go updater.Run(ctx)
	defer cancel()

	// Repeated dismissals drive the rate up.
	at := time.Now()
	for i := 0; i < 10; i++ {
		updater.SubmitFeedback(profile.EntityID, profile.Metric, false, at)
	}

	require.Eventually(t, func() bool {
		p, err := store.Profile(context.Background(), profile.EntityID, profile.Metric)
		return err == nil && p.FalsePositiveRate > 0.3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUpdater_SubmitNeverBlocksWhenStopped(t *testing.T) {
	store := baseline.NewMemoryStore()
	updater := baseline.NewUpdater(store, baseline.UpdaterConfig{QueueSize: 2}, zap.NewNop())

	// No Run loop: the queue fills, further submissions must still return.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			updater.SubmitObservation(uuid.New(), anomaly.MetricRestGap, float64(i), time.Now())
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SubmitObservation blocked on a full queue")
	}
}

func TestRedisStore_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := baseline.NewRedisStore(client, time.Millisecond, zap.NewNop())

	profile := fixtures.NewProfileBuilder(t).WithStats(42, 3, 120).Build()
	require.NoError(t, store.Save(context.Background(), profile))

	got, err := store.Profile(context.Background(), profile.EntityID, profile.Metric)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, profile.Mean, got.Mean)
	assert.Equal(t, profile.SampleCount, got.SampleCount)
	assert.Equal(t, profile.Stable, got.Stable)
}

func TestRedisStore_MissingProfileIsNilNil(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := baseline.NewRedisStore(client, time.Second, zap.NewNop())

	p, err := store.Profile(context.Background(), uuid.New(), anomaly.MetricShiftDuration)
	require.NoError(t, err)
	assert.Nil(t, p)
}
