// Package predictor adapts the external fraud-probability model to the
// detection pipeline's narrow interface.
package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/shiftsentry/attendance-backend/internal/domain/errors"
	"github.com/shiftsentry/attendance-backend/internal/service/detection"
)

// Config carries the adapter's endpoint and budget.
type Config struct {
	URL     string        `json:"url" koanf:"url"`
	Timeout time.Duration `json:"timeout" koanf:"timeout"`
}

// HTTPPredictor calls the model-serving endpoint over JSON. Every call is
// bounded by its own timeout; the caller treats any error as "no score".
type HTTPPredictor struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

func NewHTTPPredictor(cfg Config, logger *zap.Logger) *HTTPPredictor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPPredictor{
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type predictRequest struct {
	EntityID      uuid.UUID `json:"entity_id"`
	SiteID        uuid.UUID `json:"site_id"`
	ScheduledTime time.Time `json:"scheduled_time"`
}

func (p *HTTPPredictor) Predict(ctx context.Context, entityID, siteID uuid.UUID, scheduledTime time.Time) (*detection.Prediction, error) {
	body, err := json.Marshal(predictRequest{
		EntityID:      entityID,
		SiteID:        siteID,
		ScheduledTime: scheduledTime,
	})
	if err != nil {
		return nil, fmt.Errorf("predict request encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("predict request build: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperrors.NewExternalError("fraud predictor", err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewExternalError("fraud predictor",
			fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	var prediction detection.Prediction
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		return nil, fmt.Errorf("predict response decode: %w", err)
	}

	if prediction.Probability < 0 || prediction.Probability > 1 {
		return nil, fmt.Errorf("predict probability %f out of range", prediction.Probability)
	}
	return &prediction, nil
}
