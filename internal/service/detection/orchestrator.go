// Package detection sequences validation, anomaly scoring and alert
// correlation for each attendance event, and owns the per-entity ordering
// the duplicate and rest-period checks rely on.
package detection

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/domain/anomaly"
	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
	"github.com/shiftsentry/attendance-backend/internal/infrastructure/telemetry"
)

// Config carries the orchestrator's budgets and thresholds.
type Config struct {
	// PipelineBudget is the overall deadline for one event. Past it, the
	// event is reported timed out and surfaced for reconciliation.
	PipelineBudget time.Duration `json:"pipeline_budget" koanf:"pipeline_budget"`

	// PredictorTimeout bounds the external model call independently of
	// the rest of the pipeline.
	PredictorTimeout time.Duration `json:"predictor_timeout" koanf:"predictor_timeout"`

	// Shards and QueueSize tune the per-entity pipeline.
	Shards    int `json:"shards" koanf:"shards"`
	QueueSize int `json:"queue_size" koanf:"queue_size"`
}

func (c *Config) applyDefaults() {
	if c.PipelineBudget <= 0 {
		c.PipelineBudget = 2 * time.Second
	}
	if c.PredictorTimeout <= 0 {
		c.PredictorTimeout = 300 * time.Millisecond
	}
	if c.Shards <= 0 {
		c.Shards = 16
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
}

// Orchestrator runs the detection sequence for one event at a time per
// entity. The predictor and the audit sink are optional; the baseline
// observer and publisher may be nil in stripped-down wiring.
type Orchestrator struct {
	chain      Validator
	scorer     Scorer
	correlator Correlator
	publisher  Publisher
	history    EventHistory
	shifts     ShiftResolver
	predictor  FraudPredictor
	observer   BaselineObserver
	audit      AuditSink
	archive    EventArchive

	cfg     Config
	logger  *zap.Logger
	metrics MetricsCollector
}

// Deps bundles the orchestrator's collaborators. Chain, Scorer, Correlator,
// History and Shifts are required; the rest degrade gracefully when nil.
type Deps struct {
	Chain      Validator
	Scorer     Scorer
	Correlator Correlator
	Publisher  Publisher
	History    EventHistory
	Shifts     ShiftResolver
	Predictor  FraudPredictor
	Observer   BaselineObserver
	Audit      AuditSink
	Archive    EventArchive
}

func NewOrchestrator(deps Deps, cfg Config, logger *zap.Logger) *Orchestrator {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		chain:      deps.Chain,
		scorer:     deps.Scorer,
		correlator: deps.Correlator,
		publisher:  deps.Publisher,
		history:    deps.History,
		shifts:     deps.Shifts,
		predictor:  deps.Predictor,
		observer:   deps.Observer,
		audit:      deps.Audit,
		archive:    deps.Archive,
		cfg:        cfg,
		logger:     logger,
		metrics:    NoopMetrics{},
	}
}

// SetMetrics replaces the no-op collector. Call before first use.
func (o *Orchestrator) SetMetrics(m MetricsCollector) {
	if m != nil {
		o.metrics = m
	}
}

// Process runs the full detection sequence for one event: validation chain,
// heuristic anomaly scoring against the baselines, the external predictor
// off the critical path, then correlation and broadcast of any findings.
//
// Rejection is a normal outcome, not an error. The only errors Process
// returns are malformed inputs; infrastructure trouble resolves through the
// chain's policy table or degrades to fewer findings.
func (o *Orchestrator) Process(ctx context.Context, event *attendance.Event) (*Result, error) {
	start := time.Now()

	ctx, span := telemetry.StartSpan(ctx, "detection.process")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.PipelineBudget)
	defer cancel()

	// The predictor gets a head start concurrent with the chain; its
	// verdict is only consulted after the heuristics, and only if it
	// arrived in time.
	prediction := o.startPrediction(ctx, event)

	validation := o.chain.Evaluate(ctx, event)

	if deadlineExceeded(ctx) {
		return o.timedOut(ctx, event, start), nil
	}

	if !validation.Admitted {
		o.logger.Info("event rejected",
			zap.String("event_id", event.ID.String()),
			zap.String("entity_id", event.EntityID.String()),
			zap.String("reason_code", validation.ReasonCode),
			zap.Bool("unavailable", validation.Unavailable),
		)
		if o.audit != nil {
			o.audit.RecordRejection(ctx, event, validation)
		}
		result := &Result{
			Outcome:    OutcomeRejected,
			Validation: &validation,
			Elapsed:    time.Since(start),
		}
		o.metrics.RecordProcess(OutcomeRejected, result.Elapsed)
		return result, nil
	}

	// Record the admit before scoring so the next event for this entity
	// sees it; per-entity serialization makes this ordering visible.
	if err := o.history.MarkAdmitted(ctx, event); err != nil {
		o.logger.Warn("admitted event not recorded in history",
			zap.String("event_id", event.ID.String()),
			zap.Error(err),
		)
	}
	if o.archive != nil {
		if err := o.archive.SaveEvent(ctx, event); err != nil {
			o.logger.Warn("event archive write failed",
				zap.String("event_id", event.ID.String()),
				zap.Error(err),
			)
		}
	}

	findings := o.scoreHeuristics(ctx, event)

	if deadlineExceeded(ctx) {
		return o.timedOut(ctx, event, start), nil
	}

	o.attachPrediction(prediction, findings)

	for _, finding := range findings {
		record, err := o.correlator.Correlate(ctx, finding)
		if err != nil {
			o.logger.Error("finding could not be correlated",
				zap.String("finding_id", finding.ID.String()),
				zap.String("metric", string(finding.Metric)),
				zap.Error(err),
			)
			continue
		}
		if o.audit != nil && finding.Severity >= anomaly.SeverityHigh {
			o.audit.RecordFinding(ctx, finding)
		}
		if o.publisher != nil {
			o.publisher.Publish(ctx, record)
		}
	}

	result := &Result{
		Outcome:    OutcomeAdmitted,
		Validation: &validation,
		Findings:   findings,
		Elapsed:    time.Since(start),
	}
	o.metrics.RecordProcess(OutcomeAdmitted, result.Elapsed)
	return result, nil
}

// scoreHeuristics measures the event's heuristic metrics, scores each
// against its baseline, and submits every observation to the asynchronous
// baseline path regardless of verdict.
func (o *Orchestrator) scoreHeuristics(ctx context.Context, event *attendance.Event) []*anomaly.Finding {
	var findings []*anomaly.Finding

	for _, obs := range o.observe(ctx, event) {
		if o.observer != nil {
			o.observer.SubmitObservation(event.EntityID, obs.metric, obs.value, event.OccurredAt)
		}

		score, err := o.scorer.Score(ctx, event.EntityID, obs.metric, obs.value)
		if err != nil {
			o.logger.Warn("metric could not be scored",
				zap.String("entity_id", event.EntityID.String()),
				zap.String("metric", string(obs.metric)),
				zap.Error(err),
			)
			continue
		}
		if !score.Anomalous {
			continue
		}

		finding, err := anomaly.NewFinding(event.TenantID, event.EntityID, event.SiteID,
			obs.metric, obs.value, score, event.OccurredAt)
		if err != nil {
			o.logger.Error("finding construction failed", zap.Error(err))
			continue
		}
		findings = append(findings, finding)
	}

	return findings
}

// startPrediction launches the external model call on its own timeout,
// detached from the scoring path. The returned channel yields nil when the
// model errored, timed out, or is not wired.
func (o *Orchestrator) startPrediction(ctx context.Context, event *attendance.Event) <-chan *Prediction {
	out := make(chan *Prediction, 1)
	if o.predictor == nil {
		out <- nil
		return out
	}

	go func() {
		start := time.Now()
		predictCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.PredictorTimeout)
		defer cancel()

		prediction, err := o.predictor.Predict(predictCtx, event.EntityID, event.SiteID, event.OccurredAt)
		if err != nil {
			o.logger.Warn("fraud predictor unavailable, continuing heuristic-only",
				zap.String("event_id", event.ID.String()),
				zap.Error(err),
			)
			o.metrics.RecordPredictor(false, time.Since(start))
			out <- nil
			return
		}
		o.metrics.RecordPredictor(true, time.Since(start))
		out <- prediction
	}()
	return out
}

// attachPrediction blends the model's verdict into the findings if it
// arrived within its own budget. A slow model simply contributes nothing.
func (o *Orchestrator) attachPrediction(prediction <-chan *Prediction, findings []*anomaly.Finding) {
	if len(findings) == 0 {
		return
	}
	select {
	case p := <-prediction:
		if p == nil {
			return
		}
		for _, f := range findings {
			f.AttachPrediction(p.Probability, p.ModelVersion)
		}
	case <-time.After(o.cfg.PredictorTimeout):
	}
}

func (o *Orchestrator) timedOut(ctx context.Context, event *attendance.Event, start time.Time) *Result {
	o.logger.Error("event processing timed out",
		zap.String("event_id", event.ID.String()),
		zap.String("entity_id", event.EntityID.String()),
		zap.Duration("budget", o.cfg.PipelineBudget),
	)
	if o.audit != nil {
		o.audit.RecordTimeout(context.WithoutCancel(ctx), event)
	}
	result := &Result{Outcome: OutcomeTimedOut, Elapsed: time.Since(start)}
	o.metrics.RecordProcess(OutcomeTimedOut, result.Elapsed)
	return result
}

func deadlineExceeded(ctx context.Context) bool {
	return ctx.Err() != nil
}
