package predictor_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/infrastructure/predictor"
)

func TestHTTPPredictor_Predict(t *testing.T) {
	entityID := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, entityID.String(), req["entity_id"])

		json.NewEncoder(w).Encode(map[string]any{
			"probability":   0.73,
			"risk_level":    "medium",
			"model_version": "v4.2",
			"features":      map[string]float64{"late_ratio": 0.4},
		})
	}))
	defer server.Close()

	p := predictor.NewHTTPPredictor(predictor.Config{URL: server.URL}, zap.NewNop())

	prediction, err := p.Predict(context.Background(), entityID, uuid.New(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0.73, prediction.Probability)
	assert.Equal(t, "medium", prediction.RiskLevel)
	assert.Equal(t, "v4.2", prediction.ModelVersion)
}

func TestHTTPPredictor_ServerErrorIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	p := predictor.NewHTTPPredictor(predictor.Config{URL: server.URL}, zap.NewNop())
	_, err := p.Predict(context.Background(), uuid.New(), uuid.New(), time.Now())
	assert.Error(t, err)
}

func TestHTTPPredictor_TimeoutIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	p := predictor.NewHTTPPredictor(predictor.Config{URL: server.URL, Timeout: 20 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	_, err := p.Predict(context.Background(), uuid.New(), uuid.New(), time.Now())
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestHTTPPredictor_OutOfRangeProbabilityRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"probability": 7.5})
	}))
	defer server.Close()

	p := predictor.NewHTTPPredictor(predictor.Config{URL: server.URL}, zap.NewNop())
	_, err := p.Predict(context.Background(), uuid.New(), uuid.New(), time.Now())
	assert.Error(t, err)
}
