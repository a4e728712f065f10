package fixtures

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
)

// EventBuilder builds test attendance events
type EventBuilder struct {
	t          *testing.T
	id         uuid.UUID
	tenantID   uuid.UUID
	entityID   uuid.UUID
	siteID     uuid.UUID
	shiftID    *uuid.UUID
	postID     *uuid.UUID
	kind       attendance.EventKind
	location   attendance.Geolocation
	occurredAt time.Time
	device     attendance.DeviceMetadata
}

// NewEventBuilder creates a new EventBuilder with defaults
func NewEventBuilder(t *testing.T) *EventBuilder {
	t.Helper()
	return &EventBuilder{
		t:        t,
		id:       uuid.New(),
		tenantID: uuid.New(),
		entityID: uuid.New(),
		siteID:   uuid.New(),
		kind:     attendance.KindCheckIn,
		location: attendance.Geolocation{
			Latitude:       40.7128,
			Longitude:      -74.0060,
			AccuracyMeters: 10,
		},
		occurredAt: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		device: attendance.DeviceMetadata{
			DeviceID: "device-" + uuid.New().String()[:8],
			Platform: "android",
		},
	}
}

func (b *EventBuilder) WithID(id uuid.UUID) *EventBuilder {
	b.id = id
	return b
}

func (b *EventBuilder) WithTenantID(id uuid.UUID) *EventBuilder {
	b.tenantID = id
	return b
}

func (b *EventBuilder) WithEntityID(id uuid.UUID) *EventBuilder {
	b.entityID = id
	return b
}

func (b *EventBuilder) WithSiteID(id uuid.UUID) *EventBuilder {
	b.siteID = id
	return b
}

func (b *EventBuilder) WithShiftID(id uuid.UUID) *EventBuilder {
	b.shiftID = &id
	return b
}

func (b *EventBuilder) WithPostID(id uuid.UUID) *EventBuilder {
	b.postID = &id
	return b
}

func (b *EventBuilder) WithKind(kind attendance.EventKind) *EventBuilder {
	b.kind = kind
	return b
}

func (b *EventBuilder) WithLocation(lat, lon, accuracy float64) *EventBuilder {
	b.location = attendance.Geolocation{Latitude: lat, Longitude: lon, AccuracyMeters: accuracy}
	return b
}

func (b *EventBuilder) WithAccuracy(accuracy float64) *EventBuilder {
	b.location.AccuracyMeters = accuracy
	return b
}

func (b *EventBuilder) WithOccurredAt(at time.Time) *EventBuilder {
	b.occurredAt = at
	return b
}

func (b *EventBuilder) WithDevice(device attendance.DeviceMetadata) *EventBuilder {
	b.device = device
	return b
}

// Build assembles the event without going through the constructor so tests
// can produce deliberately odd states.
func (b *EventBuilder) Build() *attendance.Event {
	b.t.Helper()
	return &attendance.Event{
		ID:         b.id,
		TenantID:   b.tenantID,
		EntityID:   b.entityID,
		SiteID:     b.siteID,
		ShiftID:    b.shiftID,
		PostID:     b.postID,
		Kind:       b.kind,
		Location:   b.location,
		OccurredAt: b.occurredAt,
		ReceivedAt: b.occurredAt,
		Device:     b.device,
	}
}
