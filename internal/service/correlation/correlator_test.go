package correlation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/domain/alert"
	"github.com/shiftsentry/attendance-backend/internal/domain/anomaly"
	"github.com/shiftsentry/attendance-backend/internal/infrastructure/repository"
	"github.com/shiftsentry/attendance-backend/internal/service/correlation"
	"github.com/shiftsentry/attendance-backend/internal/testutil/fixtures"
)

func newCorrelator(store correlation.AlertStore) *correlation.Correlator {
	return correlation.NewCorrelator(store, correlation.Config{}, zap.NewNop())
}

func TestCorrelator_FirstFindingOpensAlert(t *testing.T) {
	store := repository.NewMemoryAlertStore()
	correlator := newCorrelator(store)

	finding := fixtures.NewFindingBuilder(t).WithSeverity(anomaly.SeverityHigh).Build()

	record, err := correlator.Correlate(context.Background(), finding)
	require.NoError(t, err)

	assert.Equal(t, alert.StatusOpen, record.Status)
	assert.Equal(t, anomaly.SeverityHigh, record.Severity)
	assert.Equal(t, 1, record.Count)
	assert.Equal(t, finding.Category, record.Category)
}

func TestCorrelator_SubsequentFindingFoldsIn(t *testing.T) {
	store := repository.NewMemoryAlertStore()
	correlator := newCorrelator(store)

	tenantID, entityID := uuid.New(), uuid.New()
	build := func(sev anomaly.Severity, at time.Time) *anomaly.Finding {
		return fixtures.NewFindingBuilder(t).
			WithTenantID(tenantID).
			WithEntityID(entityID).
			WithSeverity(sev).
			WithDetectedAt(at).
			Build()
	}

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	first, err := correlator.Correlate(context.Background(), build(anomaly.SeverityHigh, base))
	require.NoError(t, err)

	second, err := correlator.Correlate(context.Background(), build(anomaly.SeverityLow, base.Add(time.Minute)))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "same key must fold, not duplicate")
	assert.Equal(t, anomaly.SeverityHigh, second.Severity, "severity never decreases while open")
	assert.Equal(t, 2, second.Count)
	assert.Equal(t, base.Add(time.Minute), second.UpdatedAt)
}

func TestCorrelator_ConcurrentFindingsSameKey(t *testing.T) {
	store := repository.NewMemoryAlertStore()
	correlator := newCorrelator(store)

	tenantID, entityID := uuid.New(), uuid.New()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	low := fixtures.NewFindingBuilder(t).
		WithTenantID(tenantID).WithEntityID(entityID).
		WithSeverity(anomaly.SeverityMedium).WithDetectedAt(base).Build()
	high := fixtures.NewFindingBuilder(t).
		WithTenantID(tenantID).WithEntityID(entityID).
		WithSeverity(anomaly.SeverityCritical).WithDetectedAt(base.Add(time.Second)).Build()

	var wg sync.WaitGroup
	for _, f := range []*anomaly.Finding{low, high} {
		wg.Add(1)
		go func(f *anomaly.Finding) {
			defer wg.Done()
			_, err := correlator.Correlate(context.Background(), f)
			assert.NoError(t, err)
		}(f)
	}
	wg.Wait()

	open, err := store.OpenRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1, "exactly one open alert per key")

	assert.Equal(t, anomaly.SeverityCritical, open[0].Severity, "max of the two severities")
	assert.Equal(t, base.Add(time.Second), open[0].UpdatedAt, "later of the two timestamps")
	assert.Equal(t, 2, open[0].Count)
}

func TestCorrelator_ClosedAlertDoesNotAbsorb(t *testing.T) {
	store := repository.NewMemoryAlertStore()
	correlator := newCorrelator(store)

	finding := fixtures.NewFindingBuilder(t).Build()
	record, err := correlator.Correlate(context.Background(), finding)
	require.NoError(t, err)

	_, err = correlator.Close(context.Background(), record.ID)
	require.NoError(t, err)

	again := fixtures.NewFindingBuilder(t).
		WithTenantID(finding.TenantID).
		WithEntityID(finding.EntityID).
		WithDetectedAt(finding.DetectedAt.Add(time.Hour)).
		Build()
	fresh, err := correlator.Correlate(context.Background(), again)
	require.NoError(t, err)

	assert.NotEqual(t, record.ID, fresh.ID, "a closed key opens a new record")
	assert.Equal(t, 1, fresh.Count)
}

func TestCorrelator_AcknowledgedAlertStillAbsorbs(t *testing.T) {
	store := repository.NewMemoryAlertStore()
	correlator := newCorrelator(store)

	finding := fixtures.NewFindingBuilder(t).Build()
	record, err := correlator.Correlate(context.Background(), finding)
	require.NoError(t, err)

	acked, err := correlator.Acknowledge(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, alert.StatusAcknowledged, acked.Status)

	again := fixtures.NewFindingBuilder(t).
		WithTenantID(finding.TenantID).
		WithEntityID(finding.EntityID).
		WithDetectedAt(finding.DetectedAt.Add(time.Minute)).
		Build()
	folded, err := correlator.Correlate(context.Background(), again)
	require.NoError(t, err)

	assert.Equal(t, record.ID, folded.ID)
	assert.Equal(t, 2, folded.Count)
}

func TestCorrelator_AcknowledgeUnknownAlert(t *testing.T) {
	correlator := newCorrelator(repository.NewMemoryAlertStore())

	_, err := correlator.Acknowledge(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestCorrelator_CooldownSweep(t *testing.T) {
	store := repository.NewMemoryAlertStore()
	correlator := correlation.NewCorrelator(store, correlation.Config{
		Cooldown:      30 * time.Minute,
		SweepInterval: 5 * time.Millisecond,
	}, zap.NewNop())

	detected := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	finding := fixtures.NewFindingBuilder(t).WithDetectedAt(detected).Build()
	record, err := correlator.Correlate(context.Background(), finding)
	require.NoError(t, err)

	// Clock far past the cooldown: the sweeper must close the idle alert.
	correlator.SetClock(func() time.Time { return detected.Add(2 * time.Hour) })

	ctx, cancel := context.WithCancel(context.Background())
	go correlator.RunSweeper(ctx)
	defer cancel()

	require.Eventually(t, func() bool {
		got, err := store.Get(context.Background(), record.ID)
		return err == nil && got != nil && got.Status == alert.StatusClosed
	}, 2*time.Second, 10*time.Millisecond)
}
