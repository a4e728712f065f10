// Package validation implements the layered admission chain for attendance
// events: an ordered list of independent checks that short-circuits on the
// first violation and resolves infrastructure failures through a per-layer
// fail-open/fail-closed policy table.
package validation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
	"github.com/shiftsentry/attendance-backend/internal/domain/schedule"
)

// CheckResult is one layer's typed verdict. Err is only meaningful with
// OutcomeUnavailable and exists for logging; it never propagates.
type CheckResult struct {
	Outcome          attendance.LayerOutcome
	Reason           string
	RequiresOverride bool
	Err              error
}

func admit() CheckResult {
	return CheckResult{Outcome: attendance.OutcomeAdmit}
}

func reject(reason string) CheckResult {
	return CheckResult{Outcome: attendance.OutcomeReject, Reason: reason}
}

func rejectOverridable(reason string) CheckResult {
	return CheckResult{Outcome: attendance.OutcomeReject, Reason: reason, RequiresOverride: true}
}

func unavailable(err error) CheckResult {
	return CheckResult{Outcome: attendance.OutcomeUnavailable, Err: err}
}

// EvalState caches lookups shared by several layers within one evaluation so
// independent layers do not repeat I/O. It never crosses evaluations.
type EvalState struct {
	Shift *schedule.Shift
	Post  *schedule.Post
}

// Layer is one check in the chain. Check must not mutate external state and
// should return within the store timeout the chain grants it.
type Layer interface {
	Code() attendance.LayerCode
	Check(ctx context.Context, event *attendance.Event, state *EvalState) CheckResult
}

// Chain evaluates the ordered layers against one event.
type Chain struct {
	layers       []Layer
	policies     map[attendance.LayerCode]attendance.FailurePolicy
	storeTimeout time.Duration
	logger       *zap.Logger
	metrics      MetricsCollector
}

// NewChain assembles the standard chain: the six mandatory layers plus the
// post-level layers enabled in cfg.PostChecks.
func NewChain(cfg Config, store ScheduleStore, history EventHistory, logger *zap.Logger) *Chain {
	cfg.applyDefaults()

	layers := []Layer{
		&locationAccuracyLayer{maxAccuracyMeters: cfg.MaxAccuracyMeters},
		&siteAssignmentLayer{store: store},
		&shiftAssignmentLayer{store: store},
		&shiftWindowLayer{store: store, grace: cfg.GraceWindow},
		&restPeriodLayer{history: history, minimumRest: cfg.MinimumRest},
		&duplicateLayer{history: history, window: cfg.DedupWindow},
	}
	if cfg.PostChecks.AssignmentEnabled {
		layers = append(layers, &postAssignmentLayer{store: store})
	}
	if cfg.PostChecks.GeofenceEnabled {
		layers = append(layers, &postGeofenceLayer{store: store})
	}
	if cfg.PostChecks.OrdersEnabled {
		layers = append(layers, &postOrdersLayer{store: store})
	}
	if cfg.PostChecks.CertificationEnabled {
		layers = append(layers, &certificationLayer{store: store})
	}

	return NewChainWithLayers(layers, cfg, logger)
}

// NewChainWithLayers builds a chain over an explicit layer list. Used by
// NewChain and by tests that need instrumented layers.
func NewChainWithLayers(layers []Layer, cfg Config, logger *zap.Logger) *Chain {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{
		layers:       layers,
		policies:     resolvePolicies(cfg.Policies),
		storeTimeout: cfg.StoreTimeout,
		logger:       logger,
		metrics:      NoopMetrics{},
	}
}

// SetMetrics replaces the no-op collector. Call before first use.
func (c *Chain) SetMetrics(m MetricsCollector) {
	if m != nil {
		c.metrics = m
	}
}

// Layers returns the codes in evaluation order, primarily for logging and
// introspection endpoints.
func (c *Chain) Layers() []attendance.LayerCode {
	codes := make([]attendance.LayerCode, len(c.layers))
	for i, l := range c.layers {
		codes[i] = l.Code()
	}
	return codes
}

// Evaluate runs the chain over one event. Rejection is a normal outcome,
// never an error: the only way a caller learns about infrastructure trouble
// is a result with Unavailable set, produced under fail-closed policy.
func (c *Chain) Evaluate(ctx context.Context, event *attendance.Event) attendance.ValidationResult {
	start := time.Now()
	state := &EvalState{}

	for i, layer := range c.layers {
		code := layer.Code()

		layerCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
		res := layer.Check(layerCtx, event, state)
		cancel()

		c.metrics.RecordLayerOutcome(code, res.Outcome)

		switch res.Outcome {
		case attendance.OutcomeAdmit:
			continue

		case attendance.OutcomeReject:
			c.logger.Debug("event rejected",
				zap.String("event_id", event.ID.String()),
				zap.String("entity_id", event.EntityID.String()),
				zap.String("layer", string(code)),
				zap.String("reason", res.Reason),
			)
			result := attendance.Reject(code, string(code), res.Reason, i+1)
			result.RequiresOverride = res.RequiresOverride
			c.metrics.RecordEvaluation(false, time.Since(start))
			return result

		case attendance.OutcomeUnavailable:
			policy := c.policies[code]
			c.logger.Warn("layer could not evaluate",
				zap.String("event_id", event.ID.String()),
				zap.String("layer", string(code)),
				zap.String("policy", policy.String()),
				zap.Error(res.Err),
			)
			if policy == attendance.FailOpen {
				continue
			}
			c.metrics.RecordEvaluation(false, time.Since(start))
			return attendance.RejectUnavailable(code, i+1)
		}
	}

	c.metrics.RecordEvaluation(true, time.Since(start))
	return attendance.Admit(len(c.layers))
}
