package rest

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shiftsentry/attendance-backend/internal/domain/alert"
	"github.com/shiftsentry/attendance-backend/internal/domain/anomaly"
	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
	"github.com/shiftsentry/attendance-backend/internal/service/detection"
)

type locationRequest struct {
	Latitude       float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude      float64 `json:"longitude" validate:"gte=-180,lte=180"`
	AccuracyMeters float64 `json:"accuracy_meters" validate:"gte=0"`
}

type deviceRequest struct {
	DeviceID   string `json:"device_id" validate:"required,max=128"`
	Platform   string `json:"platform" validate:"max=64"`
	AppVersion string `json:"app_version" validate:"max=64"`
}

type eventRequest struct {
	TenantID uuid.UUID  `json:"tenant_id" validate:"required"`
	EntityID uuid.UUID  `json:"entity_id" validate:"required"`
	SiteID   uuid.UUID  `json:"site_id" validate:"required"`
	ShiftID  *uuid.UUID `json:"shift_id,omitempty"`
	PostID   *uuid.UUID `json:"post_id,omitempty"`

	Kind       string          `json:"kind" validate:"required,oneof=check_in check_out"`
	Location   locationRequest `json:"location" validate:"required"`
	OccurredAt time.Time       `json:"occurred_at" validate:"required"`

	Device deviceRequest `json:"device" validate:"required"`
}

func (r *eventRequest) toDomain(remoteIP string) (*attendance.Event, error) {
	kind := attendance.KindCheckIn
	if r.Kind == "check_out" {
		kind = attendance.KindCheckOut
	}

	event, err := attendance.NewEvent(r.TenantID, r.EntityID, r.SiteID, kind,
		attendance.Geolocation{
			Latitude:       r.Location.Latitude,
			Longitude:      r.Location.Longitude,
			AccuracyMeters: r.Location.AccuracyMeters,
		}, r.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("building event: %w", err)
	}

	event.ShiftID = r.ShiftID
	event.PostID = r.PostID
	event.Device = attendance.DeviceMetadata{
		DeviceID:   r.Device.DeviceID,
		Platform:   r.Device.Platform,
		AppVersion: r.Device.AppVersion,
		IPAddress:  remoteIP,
	}
	return event, nil
}

type findingResponse struct {
	ID             uuid.UUID `json:"id"`
	Metric         string    `json:"metric"`
	Observed       float64   `json:"observed"`
	ZScore         float64   `json:"z_score"`
	Threshold      float64   `json:"threshold"`
	Severity       string    `json:"severity"`
	Category       string    `json:"category"`
	PredictorScore *float64  `json:"predictor_score,omitempty"`
	DetectedAt     time.Time `json:"detected_at"`
}

type eventResponse struct {
	EventID    uuid.UUID                    `json:"event_id"`
	Outcome    string                       `json:"outcome"`
	Validation *attendance.ValidationResult `json:"validation,omitempty"`
	Findings   []findingResponse            `json:"findings"`
	ElapsedMS  int64                        `json:"elapsed_ms"`
}

func newEventResponse(event *attendance.Event, result *detection.Result) eventResponse {
	resp := eventResponse{
		EventID:    event.ID,
		Outcome:    result.Outcome.String(),
		Validation: result.Validation,
		Findings:   make([]findingResponse, 0, len(result.Findings)),
		ElapsedMS:  result.Elapsed.Milliseconds(),
	}
	for _, f := range result.Findings {
		resp.Findings = append(resp.Findings, findingResponse{
			ID:             f.ID,
			Metric:         string(f.Metric),
			Observed:       f.Observed,
			ZScore:         f.ZScore,
			Threshold:      f.Threshold,
			Severity:       f.Severity.String(),
			Category:       f.Category,
			PredictorScore: f.PredictorScore,
			DetectedAt:     f.DetectedAt,
		})
	}
	return resp
}

type alertResponse struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	EntityID  uuid.UUID `json:"entity_id"`
	SiteID    uuid.UUID `json:"site_id"`
	Category  string    `json:"category"`
	Severity  string    `json:"severity"`
	Status    string    `json:"status"`
	Count     int       `json:"count"`
	LastScore float64   `json:"last_score"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newAlertResponse(rec *alert.Record) alertResponse {
	return alertResponse{
		ID:        rec.ID,
		TenantID:  rec.TenantID,
		EntityID:  rec.EntityID,
		SiteID:    rec.SiteID,
		Category:  rec.Category,
		Severity:  rec.Severity.String(),
		Status:    rec.Status.String(),
		Count:     rec.Count,
		LastScore: rec.LastScore,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

type feedbackRequest struct {
	EntityID  uuid.UUID `json:"entity_id" validate:"required"`
	Metric    string    `json:"metric" validate:"required,oneof=site_hop_rate check_in_offset_minutes shift_duration_minutes rest_gap_hours"`
	Confirmed bool      `json:"confirmed"`
}

func (r *feedbackRequest) metric() anomaly.Metric {
	return anomaly.Metric(r.Metric)
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
