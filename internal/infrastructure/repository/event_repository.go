package repository

import (
	"context"

	apperrors "github.com/shiftsentry/attendance-backend/internal/domain/errors"
	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
	"github.com/shiftsentry/attendance-backend/internal/infrastructure/database"
)

// EventRepository archives admitted events. The detection pipeline writes
// here after the chain admits; rejected events are never archived.
type EventRepository struct {
	db *database.Pool
}

func NewEventRepository(db *database.Pool) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) SaveEvent(ctx context.Context, event *attendance.Event) error {
	ctx, cancel := r.db.QueryContext(ctx)
	defer cancel()

	_, err := r.db.Exec(ctx, `
		INSERT INTO attendance_events (
			id, tenant_id, entity_id, site_id, shift_id, post_id,
			kind, latitude, longitude, accuracy_meters,
			occurred_at, received_at, device_id, platform, app_version, ip_address
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO NOTHING
	`, event.ID, event.TenantID, event.EntityID, event.SiteID,
		event.ShiftID, event.PostID, event.Kind,
		event.Location.Latitude, event.Location.Longitude, event.Location.AccuracyMeters,
		event.OccurredAt, event.ReceivedAt,
		event.Device.DeviceID, event.Device.Platform, event.Device.AppVersion, event.Device.IPAddress)
	if err != nil {
		return apperrors.NewInternalError("archiving event").WithCause(err)
	}
	return nil
}
