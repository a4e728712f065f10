//go:build integration

package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shiftsentry/attendance-backend/internal/domain/alert"
	apperrors "github.com/shiftsentry/attendance-backend/internal/domain/errors"
	"github.com/shiftsentry/attendance-backend/internal/infrastructure/config"
	"github.com/shiftsentry/attendance-backend/internal/infrastructure/database"
	"github.com/shiftsentry/attendance-backend/internal/testutil/containers"
	"github.com/shiftsentry/attendance-backend/internal/testutil/fixtures"
)

func setupPool(t *testing.T) *database.Pool {
	t.Helper()
	ctx := context.Background()

	pg, err := containers.NewPostgresContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { pg.Terminate(ctx) })

	require.NoError(t, pg.ApplyMigrations(ctx, filepath.Join("..", "..", "..", "migrations")))

	pool, err := database.Connect(ctx, config.DatabaseConfig{
		URL:          pg.ConnectionString,
		MaxConns:     5,
		MinConns:     1,
		QueryTimeout: 2 * time.Second,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestAlertRepository_OneOpenPerKey(t *testing.T) {
	pool := setupPool(t)
	repo := NewAlertRepository(pool)
	ctx := context.Background()

	finding := fixtures.NewFindingBuilder(t).Build()
	rec, err := alert.NewRecord(finding)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, rec))

	// A second open record for the same key violates the partial index.
	dup, err := alert.NewRecord(finding)
	require.NoError(t, err)
	err = repo.Create(ctx, dup)
	assert.ErrorIs(t, err, apperrors.ErrOpenAlertExists)

	// Closing frees the key for a fresh record.
	require.NoError(t, rec.Close(time.Now()))
	require.NoError(t, repo.Update(ctx, rec))
	require.NoError(t, repo.Create(ctx, dup))

	open, err := repo.OpenByKey(ctx, dup.Key())
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, dup.ID, open.ID)
}

func TestAlertRepository_UpdateIsCompareAndSwap(t *testing.T) {
	pool := setupPool(t)
	repo := NewAlertRepository(pool)
	ctx := context.Background()

	rec, err := alert.NewRecord(fixtures.NewFindingBuilder(t).Build())
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, rec))

	stale := *rec

	rec.Count++
	require.NoError(t, repo.Update(ctx, rec))
	assert.Equal(t, int64(2), rec.Version)

	stale.Count = 99
	assert.ErrorIs(t, repo.Update(ctx, &stale), apperrors.ErrVersionConflict)
}

func TestAlertRepository_ConcurrentUpdatesSingleWinner(t *testing.T) {
	pool := setupPool(t)
	repo := NewAlertRepository(pool)
	ctx := context.Background()

	rec, err := alert.NewRecord(fixtures.NewFindingBuilder(t).Build())
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, rec))

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			local := *rec
			local.Count++
			errs[i] = repo.Update(ctx, &local)
		}(i)
	}
	wg.Wait()

	var won int
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, apperrors.ErrVersionConflict)
		}
	}
	assert.Equal(t, 1, won)
}

func TestEventRepository_SaveIsIdempotent(t *testing.T) {
	pool := setupPool(t)
	repo := NewEventRepository(pool)
	ctx := context.Background()

	event := fixtures.NewEventBuilder(t).Build()
	require.NoError(t, repo.SaveEvent(ctx, event))
	require.NoError(t, repo.SaveEvent(ctx, event))

	var count int
	err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attendance_events WHERE id = $1`, event.ID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestScheduleRepository_ShiftForMatchesGracedWindow(t *testing.T) {
	pool := setupPool(t)
	repo := NewScheduleRepository(pool, 15*time.Minute)
	ctx := context.Background()

	entityID, siteID := uuid.New(), uuid.New()
	tenantID := uuid.New()
	_, err := pool.Exec(ctx,
		`INSERT INTO entities (id, tenant_id, name) VALUES ($1, $2, 'Dana Osei')`,
		entityID, tenantID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx,
		`INSERT INTO sites (id, tenant_id, name) VALUES ($1, $2, 'Harbor Terminal')`,
		siteID, tenantID)
	require.NoError(t, err)

	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	shiftID := uuid.New()
	_, err = pool.Exec(ctx, `
		INSERT INTO shifts (id, entity_id, site_id, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5)
	`, shiftID, entityID, siteID, start, start.Add(8*time.Hour))
	require.NoError(t, err)

	// Ten minutes early falls inside the 15-minute grace.
	s, err := repo.ShiftFor(ctx, entityID, siteID, start.Add(-10*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, shiftID, s.ID)

	// An hour early does not.
	s, err = repo.ShiftFor(ctx, entityID, siteID, start.Add(-time.Hour))
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestScheduleRepository_DirectoryNames(t *testing.T) {
	pool := setupPool(t)
	repo := NewScheduleRepository(pool, 15*time.Minute)
	ctx := context.Background()

	siteID := uuid.New()
	_, err := pool.Exec(ctx,
		`INSERT INTO sites (id, tenant_id, name) VALUES ($1, $2, 'North Gate')`,
		siteID, uuid.New())
	require.NoError(t, err)

	name, err := repo.SiteName(ctx, siteID)
	require.NoError(t, err)
	assert.Equal(t, "North Gate", name)

	_, err = repo.EntityName(ctx, uuid.New())
	assert.Error(t, err)
}
