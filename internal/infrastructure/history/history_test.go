package history_test

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

	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
	"github.com/shiftsentry/attendance-backend/internal/infrastructure/history"
	"github.com/shiftsentry/attendance-backend/internal/testutil/fixtures"
)

// Store is satisfied by both implementations; the suite runs against each.
type store interface {
	LastAdmitted(ctx context.Context, entityID uuid.UUID, kind attendance.EventKind) (*attendance.Event, error)
	LastShiftEnd(ctx context.Context, entityID uuid.UUID) (time.Time, error)
	DistinctSites(ctx context.Context, entityID uuid.UUID, window time.Duration) (int, error)
	MarkAdmitted(ctx context.Context, event *attendance.Event) error
}

func stores(t *testing.T) map[string]store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return map[string]store{
		"redis":  history.NewRedisStore(client, zap.NewNop()),
		"memory": history.NewMemoryStore(),
	}
}

func TestHistory_LastAdmittedPerKind(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			entityID := uuid.New()

			checkIn := fixtures.NewEventBuilder(t).WithEntityID(entityID).
				WithKind(attendance.KindCheckIn).Build()
			require.NoError(t, s.MarkAdmitted(ctx, checkIn))

			got, err := s.LastAdmitted(ctx, entityID, attendance.KindCheckIn)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, checkIn.ID, got.ID)

			// The other kind stays empty.
			other, err := s.LastAdmitted(ctx, entityID, attendance.KindCheckOut)
			require.NoError(t, err)
			assert.Nil(t, other)

			// A later check-in replaces the slot.
			later := fixtures.NewEventBuilder(t).WithEntityID(entityID).
				WithKind(attendance.KindCheckIn).
				WithOccurredAt(checkIn.OccurredAt.Add(time.Hour)).Build()
			require.NoError(t, s.MarkAdmitted(ctx, later))

			got, err = s.LastAdmitted(ctx, entityID, attendance.KindCheckIn)
			require.NoError(t, err)
			assert.Equal(t, later.ID, got.ID)
		})
	}
}

func TestHistory_ShiftEndRecordedOnCheckOut(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			entityID := uuid.New()

			end, err := s.LastShiftEnd(ctx, entityID)
			require.NoError(t, err)
			assert.True(t, end.IsZero(), "unknown entity has zero shift end")

			checkIn := fixtures.NewEventBuilder(t).WithEntityID(entityID).
				WithKind(attendance.KindCheckIn).Build()
			require.NoError(t, s.MarkAdmitted(ctx, checkIn))

			end, err = s.LastShiftEnd(ctx, entityID)
			require.NoError(t, err)
			assert.True(t, end.IsZero(), "check-in does not end a shift")

			checkOut := fixtures.NewEventBuilder(t).WithEntityID(entityID).
				WithKind(attendance.KindCheckOut).
				WithOccurredAt(checkIn.OccurredAt.Add(8 * time.Hour)).Build()
			require.NoError(t, s.MarkAdmitted(ctx, checkOut))

			end, err = s.LastShiftEnd(ctx, entityID)
			require.NoError(t, err)
			assert.True(t, end.Equal(checkOut.OccurredAt))
		})
	}
}

func TestHistory_DistinctSitesWindow(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			entityID := uuid.New()
			now := time.Now()

			siteA, siteB := uuid.New(), uuid.New()
			for _, e := range []*attendance.Event{
				fixtures.NewEventBuilder(t).WithEntityID(entityID).WithSiteID(siteA).
					WithOccurredAt(now.Add(-10 * time.Minute)).Build(),
				fixtures.NewEventBuilder(t).WithEntityID(entityID).WithSiteID(siteB).
					WithOccurredAt(now.Add(-5 * time.Minute)).Build(),
				// Same site again: still one distinct entry.
				fixtures.NewEventBuilder(t).WithEntityID(entityID).WithSiteID(siteA).
					WithOccurredAt(now.Add(-2 * time.Minute)).Build(),
			} {
				require.NoError(t, s.MarkAdmitted(ctx, e))
			}

			count, err := s.DistinctSites(ctx, entityID, time.Hour)
			require.NoError(t, err)
			assert.Equal(t, 2, count)

			// Narrow window excludes the older visit.
			count, err = s.DistinctSites(ctx, entityID, 3*time.Minute)
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})
	}
}
