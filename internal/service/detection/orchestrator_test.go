package detection_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/domain/anomaly"
	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
	"github.com/shiftsentry/attendance-backend/internal/domain/schedule"
	"github.com/shiftsentry/attendance-backend/internal/infrastructure/baseline"
	"github.com/shiftsentry/attendance-backend/internal/infrastructure/repository"
	anomalysvc "github.com/shiftsentry/attendance-backend/internal/service/anomaly"
	"github.com/shiftsentry/attendance-backend/internal/service/correlation"
	"github.com/shiftsentry/attendance-backend/internal/service/detection"
	"github.com/shiftsentry/attendance-backend/internal/testutil/fixtures"
)

// harness wires an orchestrator over real scorer/correlator instances and
// stub collaborators, approximating single-node wiring without I/O.
type harness struct {
	orchestrator *detection.Orchestrator
	history      *stubHistory
	publisher    *spyPublisher
	audit        *spyAudit
	observer     *spyObserver
	alerts       *repository.MemoryAlertStore
	baselines    *baseline.MemoryStore
}

type harnessOpt func(*detection.Deps, *detection.Config)

func withValidator(v detection.Validator) harnessOpt {
	return func(d *detection.Deps, _ *detection.Config) { d.Chain = v }
}

func withPredictor(p detection.FraudPredictor) harnessOpt {
	return func(d *detection.Deps, _ *detection.Config) { d.Predictor = p }
}

func withConfig(cfg detection.Config) harnessOpt {
	return func(_ *detection.Deps, c *detection.Config) { *c = cfg }
}

func newHarness(t *testing.T, shift *schedule.Shift, opts ...harnessOpt) *harness {
	t.Helper()

	h := &harness{
		history:   newStubHistory(),
		publisher: &spyPublisher{},
		audit:     &spyAudit{},
		observer:  &spyObserver{},
		alerts:    repository.NewMemoryAlertStore(),
		baselines: baseline.NewMemoryStore(),
	}
	h.history.distinctSites = 1

	deps := detection.Deps{
		Chain:      &stubValidator{result: attendance.Admit(10)},
		Scorer:     anomalysvc.NewScorer(h.baselines, anomalysvc.Config{}, zap.NewNop()),
		Correlator: correlation.NewCorrelator(h.alerts, correlation.Config{}, zap.NewNop()),
		Publisher:  h.publisher,
		History:    h.history,
		Shifts:     &stubShifts{shift: shift},
		Observer:   h.observer,
		Audit:      h.audit,
	}
	cfg := detection.Config{PredictorTimeout: 50 * time.Millisecond}
	for _, opt := range opts {
		opt(&deps, &cfg)
	}

	h.orchestrator = detection.NewOrchestrator(deps, cfg, zap.NewNop())
	return h
}

func stableProfile(t *testing.T, entityID uuid.UUID, metric anomaly.Metric, mean, stdDev float64) *anomaly.BaselineProfile {
	t.Helper()
	return fixtures.NewProfileBuilder(t).
		WithEntityID(entityID).
		WithMetric(metric).
		WithStats(mean, stdDev, 150).
		WithFalsePositiveRate(0.1).
		Build()
}

func dayShift(entityID, siteID uuid.UUID) *schedule.Shift {
	return &schedule.Shift{
		ID:       uuid.New(),
		EntityID: entityID,
		SiteID:   siteID,
		StartsAt: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC),
	}
}

func TestProcess_RejectionReturnsNoFindings(t *testing.T) {
	rejection := attendance.Reject(attendance.LayerSiteAssignment, "site_assignment", "no assignment", 2)
	h := newHarness(t, nil, withValidator(&stubValidator{result: rejection}))

	result, err := h.orchestrator.Process(context.Background(), fixtures.NewEventBuilder(t).Build())
	require.NoError(t, err)

	assert.Equal(t, detection.OutcomeRejected, result.Outcome)
	assert.Empty(t, result.Findings)
	require.NotNil(t, result.Validation)
	assert.Equal(t, "site_assignment", result.Validation.ReasonCode)

	assert.Len(t, h.audit.rejections, 1, "rejection goes to the audit sink")
	assert.Empty(t, h.publisher.published())
	assert.Empty(t, h.history.admittedIDs(), "rejected events never enter history")
}

func TestProcess_AdmittedQuietEventProducesNothing(t *testing.T) {
	entityID, siteID := uuid.New(), uuid.New()
	shift := dayShift(entityID, siteID)
	h := newHarness(t, shift)

	// Baseline says a 10 minute offset is perfectly normal.
	require.NoError(t, h.baselines.Save(context.Background(),
		stableProfile(t, entityID, anomaly.MetricCheckInOffset, 10, 5)))

	event := fixtures.NewEventBuilder(t).
		WithEntityID(entityID).
		WithSiteID(siteID).
		WithOccurredAt(shift.StartsAt.Add(10 * time.Minute)).
		Build()

	result, err := h.orchestrator.Process(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, detection.OutcomeAdmitted, result.Outcome)
	assert.Empty(t, result.Findings)

	open, err := h.alerts.OpenRecords(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open, "no alert for a non-anomalous event")
	assert.Empty(t, h.publisher.published(), "no broadcast for a non-anomalous event")

	assert.Equal(t, []uuid.UUID{event.ID}, h.history.admittedIDs())
	assert.NotEmpty(t, h.observer.observations, "observations feed the baseline even when quiet")
}

func TestProcess_AnomalousOffsetOpensAndPublishesAlert(t *testing.T) {
	entityID, siteID := uuid.New(), uuid.New()
	shift := dayShift(entityID, siteID)
	h := newHarness(t, shift, withPredictor(&stubPredictor{
		prediction: &detection.Prediction{Probability: 0.87, RiskLevel: "high", ModelVersion: "v3"},
	}))

	require.NoError(t, h.baselines.Save(context.Background(),
		stableProfile(t, entityID, anomaly.MetricCheckInOffset, 10, 5)))

	// Three hours late: z = (180-10)/5 = 34.
	event := fixtures.NewEventBuilder(t).
		WithEntityID(entityID).
		WithSiteID(siteID).
		WithOccurredAt(shift.StartsAt.Add(3 * time.Hour)).
		Build()

	result, err := h.orchestrator.Process(context.Background(), event)
	require.NoError(t, err)

	require.Equal(t, detection.OutcomeAdmitted, result.Outcome)
	require.Len(t, result.Findings, 1)

	finding := result.Findings[0]
	assert.Equal(t, anomaly.MetricCheckInOffset, finding.Metric)
	assert.Equal(t, anomaly.SeverityCritical, finding.Severity)
	require.NotNil(t, finding.PredictorScore, "in-budget prediction must blend in")
	assert.Equal(t, 0.87, *finding.PredictorScore)
	assert.Equal(t, "v3", finding.ModelVersion)

	published := h.publisher.published()
	require.Len(t, published, 1)
	assert.Equal(t, finding.Category, published[0].Category)

	assert.Len(t, h.audit.findings, 1, "high severity findings reach the audit sink")
}

func TestProcess_SlowPredictorDoesNotBlockFindings(t *testing.T) {
	entityID, siteID := uuid.New(), uuid.New()
	shift := dayShift(entityID, siteID)
	slow := &stubPredictor{
		prediction: &detection.Prediction{Probability: 0.9},
		delay:      500 * time.Millisecond,
	}
	h := newHarness(t, shift, withPredictor(slow), withConfig(detection.Config{
		PipelineBudget:   time.Second,
		PredictorTimeout: 30 * time.Millisecond,
	}))

	require.NoError(t, h.baselines.Save(context.Background(),
		stableProfile(t, entityID, anomaly.MetricCheckInOffset, 10, 5)))

	event := fixtures.NewEventBuilder(t).
		WithEntityID(entityID).
		WithSiteID(siteID).
		WithOccurredAt(shift.StartsAt.Add(3 * time.Hour)).
		Build()

	start := time.Now()
	result, err := h.orchestrator.Process(context.Background(), event)
	require.NoError(t, err)

	require.Len(t, result.Findings, 1)
	assert.Nil(t, result.Findings[0].PredictorScore, "late prediction contributes nothing")
	assert.Len(t, h.publisher.published(), 1, "heuristic finding still published")
	assert.Less(t, time.Since(start), 500*time.Millisecond, "pipeline must not wait out a slow model")
}

func TestProcess_PredictorErrorIsAbsorbed(t *testing.T) {
	entityID, siteID := uuid.New(), uuid.New()
	shift := dayShift(entityID, siteID)
	h := newHarness(t, shift, withPredictor(&stubPredictor{err: errors.New("model serving 503")}))

	require.NoError(t, h.baselines.Save(context.Background(),
		stableProfile(t, entityID, anomaly.MetricCheckInOffset, 10, 5)))

	event := fixtures.NewEventBuilder(t).
		WithEntityID(entityID).
		WithSiteID(siteID).
		WithOccurredAt(shift.StartsAt.Add(3 * time.Hour)).
		Build()

	result, err := h.orchestrator.Process(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, result.Findings, 1)
	assert.Nil(t, result.Findings[0].PredictorScore)
}

func TestProcess_DeadlineExceededIsTimedOut(t *testing.T) {
	h := newHarness(t, nil,
		withValidator(&slowValidator{delay: 300 * time.Millisecond}),
		withConfig(detection.Config{PipelineBudget: 30 * time.Millisecond}),
	)

	event := fixtures.NewEventBuilder(t).Build()
	result, err := h.orchestrator.Process(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, detection.OutcomeTimedOut, result.Outcome)
	assert.Empty(t, result.Findings)
	assert.Len(t, h.audit.timeouts, 1, "timed out events surface for reconciliation")
}
