package validation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
	"github.com/shiftsentry/attendance-backend/internal/service/validation"
	"github.com/shiftsentry/attendance-backend/internal/testutil/fixtures"
)

// spyLayer counts invocations, letting tests verify short-circuit behavior.
type spyLayer struct {
	code   attendance.LayerCode
	result validation.CheckResult
	calls  int
}

func (s *spyLayer) Code() attendance.LayerCode { return s.code }

func (s *spyLayer) Check(context.Context, *attendance.Event, *validation.EvalState) validation.CheckResult {
	s.calls++
	return s.result
}

func admitResult() validation.CheckResult {
	return validation.CheckResult{Outcome: attendance.OutcomeAdmit}
}

func TestChain_ShortCircuitsOnFirstRejection(t *testing.T) {
	first := &spyLayer{code: attendance.LayerLocationAccuracy, result: admitResult()}
	second := &spyLayer{code: attendance.LayerSiteAssignment, result: validation.CheckResult{
		Outcome: attendance.OutcomeReject,
		Reason:  "no assignment",
	}}
	third := &spyLayer{code: attendance.LayerShiftAssignment, result: admitResult()}

	chain := validation.NewChainWithLayers([]validation.Layer{first, second, third},
		validation.Config{}, zap.NewNop())

	res := chain.Evaluate(context.Background(), fixtures.NewEventBuilder(t).Build())

	assert.False(t, res.Admitted)
	require.NotNil(t, res.FailedLayer)
	assert.Equal(t, attendance.LayerSiteAssignment, *res.FailedLayer)
	assert.Equal(t, "site_assignment", res.ReasonCode)
	assert.Equal(t, 2, res.EvaluatedLayers)

	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 0, third.calls, "layers after the failure must not run")
}

func TestChain_AllLayersAdmit(t *testing.T) {
	layers := []validation.Layer{
		&spyLayer{code: attendance.LayerLocationAccuracy, result: admitResult()},
		&spyLayer{code: attendance.LayerSiteAssignment, result: admitResult()},
		&spyLayer{code: attendance.LayerShiftAssignment, result: admitResult()},
	}

	chain := validation.NewChainWithLayers(layers, validation.Config{}, zap.NewNop())
	res := chain.Evaluate(context.Background(), fixtures.NewEventBuilder(t).Build())

	assert.True(t, res.Admitted)
	assert.Nil(t, res.FailedLayer)
	assert.Equal(t, 3, res.EvaluatedLayers)
}

func TestChain_UnavailablePolicyResolution(t *testing.T) {
	storeDown := errors.New("schedule store: connection refused")

	tests := []struct {
		name         string
		layer        attendance.LayerCode
		policy       attendance.FailurePolicy
		wantAdmitted bool
		wantReason   string
	}{
		{
			name:         "fail-closed rejects with unavailable code",
			layer:        attendance.LayerSiteAssignment,
			policy:       attendance.FailClosed,
			wantAdmitted: false,
			wantReason:   "site_assignment_unavailable",
		},
		{
			name:         "fail-open skips the layer",
			layer:        attendance.LayerPostGeofence,
			policy:       attendance.FailOpen,
			wantAdmitted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broken := &spyLayer{code: tt.layer, result: validation.CheckResult{
				Outcome: attendance.OutcomeUnavailable,
				Err:     storeDown,
			}}
			tail := &spyLayer{code: attendance.LayerCertification, result: admitResult()}

			cfg := validation.Config{
				Policies: map[attendance.LayerCode]attendance.FailurePolicy{
					tt.layer: tt.policy,
				},
			}
			chain := validation.NewChainWithLayers([]validation.Layer{broken, tail}, cfg, zap.NewNop())

			res := chain.Evaluate(context.Background(), fixtures.NewEventBuilder(t).Build())

			assert.Equal(t, tt.wantAdmitted, res.Admitted)
			if tt.wantAdmitted {
				assert.Equal(t, 1, tail.calls, "fail-open continues to later layers")
			} else {
				require.NotNil(t, res.FailedLayer)
				assert.Equal(t, tt.layer, *res.FailedLayer)
				assert.Equal(t, tt.wantReason, res.ReasonCode)
				assert.True(t, res.Unavailable)
				assert.Equal(t, 0, tail.calls)
			}
		})
	}
}

func TestDefaultPolicies(t *testing.T) {
	policies := validation.DefaultPolicies()

	failClosed := []attendance.LayerCode{
		attendance.LayerLocationAccuracy,
		attendance.LayerSiteAssignment,
		attendance.LayerShiftAssignment,
		attendance.LayerShiftWindow,
		attendance.LayerRestPeriod,
		attendance.LayerDuplicate,
	}
	for _, layer := range failClosed {
		assert.Equal(t, attendance.FailClosed, policies[layer], "layer %s", layer)
	}

	failOpen := []attendance.LayerCode{
		attendance.LayerPostAssignment,
		attendance.LayerPostGeofence,
		attendance.LayerPostOrders,
		attendance.LayerCertification,
	}
	for _, layer := range failOpen {
		assert.Equal(t, attendance.FailOpen, policies[layer], "layer %s", layer)
	}
}

func TestNewChain_PostChecksToggleLayerList(t *testing.T) {
	store := &mockScheduleStore{}
	history := &mockEventHistory{}

	t.Run("mandatory only", func(t *testing.T) {
		chain := validation.NewChain(validation.Config{}, store, history, zap.NewNop())
		codes := chain.Layers()
		require.Len(t, codes, 6)
		assert.Equal(t, attendance.LayerLocationAccuracy, codes[0])
		assert.Equal(t, attendance.LayerDuplicate, codes[5])
	})

	t.Run("all post checks enabled", func(t *testing.T) {
		cfg := validation.Config{
			PostChecks: validation.PostChecks{
				AssignmentEnabled:    true,
				GeofenceEnabled:      true,
				OrdersEnabled:        true,
				CertificationEnabled: true,
			},
		}
		chain := validation.NewChain(cfg, store, history, zap.NewNop())
		codes := chain.Layers()
		require.Len(t, codes, 10)
		assert.Equal(t, attendance.LayerCertification, codes[9])
	})

	t.Run("partial toggles", func(t *testing.T) {
		cfg := validation.Config{
			PostChecks: validation.PostChecks{GeofenceEnabled: true},
		}
		chain := validation.NewChain(cfg, store, history, zap.NewNop())
		codes := chain.Layers()
		require.Len(t, codes, 7)
		assert.Equal(t, attendance.LayerPostGeofence, codes[6])
	})
}
