// Package rest exposes the ingestion and alert-management HTTP API.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/domain/alert"
	"github.com/shiftsentry/attendance-backend/internal/domain/anomaly"
	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
	apperrors "github.com/shiftsentry/attendance-backend/internal/domain/errors"
	"github.com/shiftsentry/attendance-backend/internal/service/detection"
)

// EventProcessor accepts an event for detection and blocks until its result
// is available or the context expires.
type EventProcessor interface {
	Submit(ctx context.Context, event *attendance.Event) (*detection.Result, error)
}

// AlertManager transitions alert records on operator action.
type AlertManager interface {
	Acknowledge(ctx context.Context, id uuid.UUID) (*alert.Record, error)
	Close(ctx context.Context, id uuid.UUID) (*alert.Record, error)
}

// AlertReader lists and loads alert records.
type AlertReader interface {
	Get(ctx context.Context, id uuid.UUID) (*alert.Record, error)
	OpenRecords(ctx context.Context) ([]*alert.Record, error)
}

// FeedbackSink receives operator verdicts on alerts, feeding the adaptive
// thresholds.
type FeedbackSink interface {
	SubmitFeedback(entityID uuid.UUID, metric anomaly.Metric, confirmed bool, at time.Time)
}

// ReadyChecker answers whether a backing dependency can serve traffic.
type ReadyChecker func(ctx context.Context) bool

// Handler carries the HTTP endpoints' collaborators.
type Handler struct {
	processor EventProcessor
	alerts    AlertManager
	reader    AlertReader
	feedback  FeedbackSink
	ready     []ReadyChecker

	validate *validator.Validate
	logger   *zap.Logger
}

func NewHandler(processor EventProcessor, alerts AlertManager, reader AlertReader, feedback FeedbackSink, logger *zap.Logger) *Handler {
	return &Handler{
		processor: processor,
		alerts:    alerts,
		reader:    reader,
		feedback:  feedback,
		validate:  validator.New(),
		logger:    logger.Named("rest"),
	}
}

// AddReadyCheck registers a dependency probe for /readyz.
func (h *Handler) AddReadyCheck(check ReadyChecker) {
	h.ready = append(h.ready, check)
}

func (h *Handler) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.NewValidationError("INVALID_JSON", "Request body is not valid JSON"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.writeError(w, r, apperrors.NewValidationError("INVALID_REQUEST", err.Error()))
		return
	}

	event, err := req.toDomain(remoteIP(r))
	if err != nil {
		h.writeError(w, r, apperrors.NewValidationError("INVALID_EVENT", err.Error()))
		return
	}

	result, err := h.processor.Submit(r.Context(), event)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Outcome == detection.OutcomeRejected {
		// The request itself succeeded; the event was turned away.
		status = http.StatusUnprocessableEntity
	}
	h.writeJSON(w, status, newEventResponse(event, result))
}

func (h *Handler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	records, err := h.reader.OpenRecords(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]alertResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, newAlertResponse(rec))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	rec, err := h.reader.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if rec == nil {
		h.writeError(w, r, apperrors.NewNotFoundError("alert"))
		return
	}
	h.writeJSON(w, http.StatusOK, newAlertResponse(rec))
}

func (h *Handler) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	h.transitionAlert(w, r, h.alerts.Acknowledge)
}

func (h *Handler) handleCloseAlert(w http.ResponseWriter, r *http.Request) {
	h.transitionAlert(w, r, h.alerts.Close)
}

func (h *Handler) transitionAlert(w http.ResponseWriter, r *http.Request, transition func(context.Context, uuid.UUID) (*alert.Record, error)) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	rec, err := transition(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newAlertResponse(rec))
}

func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.NewValidationError("INVALID_JSON", "Request body is not valid JSON"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.writeError(w, r, apperrors.NewValidationError("INVALID_REQUEST", err.Error()))
		return
	}

	h.feedback.SubmitFeedback(req.EntityID, req.metric(), req.Confirmed, time.Now())
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	for _, check := range h.ready {
		if !check(r.Context()) {
			h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, apperrors.NewValidationError("INVALID_ID", "Path ID is not a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("writing response failed", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		h.logger.Error("unhandled error",
			zap.String("path", r.URL.Path), zap.Error(err))
		appErr = apperrors.NewInternalError("An internal error occurred")
	}

	status := statusFor(appErr)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("code", appErr.Code),
			zap.Error(err))
	}
	h.writeJSON(w, status, errorResponse{Error: errorBody{
		Code:    appErr.Code,
		Message: appErr.Message,
	}})
}

func statusFor(err *apperrors.AppError) int {
	if err.StatusCode != 0 {
		return err.StatusCode
	}
	switch err.Type {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict
	case apperrors.ErrorTypeBusiness:
		return http.StatusUnprocessableEntity
	case apperrors.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func remoteIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
