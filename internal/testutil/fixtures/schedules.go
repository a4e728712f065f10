package fixtures

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shiftsentry/attendance-backend/internal/domain/schedule"
)

// ShiftBuilder builds test shifts
type ShiftBuilder struct {
	t        *testing.T
	entityID uuid.UUID
	siteID   uuid.UUID
	postID   *uuid.UUID
	startsAt time.Time
	endsAt   time.Time
}

// NewShiftBuilder creates a ShiftBuilder for a day shift 08:00-16:00 UTC
func NewShiftBuilder(t *testing.T) *ShiftBuilder {
	t.Helper()
	return &ShiftBuilder{
		t:        t,
		entityID: uuid.New(),
		siteID:   uuid.New(),
		startsAt: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		endsAt:   time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC),
	}
}

func (b *ShiftBuilder) WithEntityID(id uuid.UUID) *ShiftBuilder {
	b.entityID = id
	return b
}

func (b *ShiftBuilder) WithSiteID(id uuid.UUID) *ShiftBuilder {
	b.siteID = id
	return b
}

func (b *ShiftBuilder) WithPostID(id uuid.UUID) *ShiftBuilder {
	b.postID = &id
	return b
}

func (b *ShiftBuilder) WithWindow(startsAt, endsAt time.Time) *ShiftBuilder {
	b.startsAt = startsAt
	b.endsAt = endsAt
	return b
}

// Overnight shifts the window to 22:00-06:00 with the end stored on the
// same calendar day, the shape the scheduler emits for midnight crossers.
func (b *ShiftBuilder) Overnight() *ShiftBuilder {
	day := b.startsAt.Truncate(24 * time.Hour)
	b.startsAt = day.Add(22 * time.Hour)
	b.endsAt = day.Add(6 * time.Hour)
	return b
}

func (b *ShiftBuilder) Build() *schedule.Shift {
	b.t.Helper()
	return &schedule.Shift{
		ID:       uuid.New(),
		EntityID: b.entityID,
		SiteID:   b.siteID,
		PostID:   b.postID,
		StartsAt: b.startsAt,
		EndsAt:   b.endsAt,
	}
}

// AssignmentBuilder builds test assignments
type AssignmentBuilder struct {
	t              *testing.T
	entityID       uuid.UUID
	siteID         uuid.UUID
	active         bool
	effectiveFrom  time.Time
	effectiveUntil *time.Time
}

func NewAssignmentBuilder(t *testing.T) *AssignmentBuilder {
	t.Helper()
	return &AssignmentBuilder{
		t:             t,
		entityID:      uuid.New(),
		siteID:        uuid.New(),
		active:        true,
		effectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (b *AssignmentBuilder) WithEntityID(id uuid.UUID) *AssignmentBuilder {
	b.entityID = id
	return b
}

func (b *AssignmentBuilder) WithSiteID(id uuid.UUID) *AssignmentBuilder {
	b.siteID = id
	return b
}

func (b *AssignmentBuilder) Inactive() *AssignmentBuilder {
	b.active = false
	return b
}

func (b *AssignmentBuilder) WithEffectiveUntil(until time.Time) *AssignmentBuilder {
	b.effectiveUntil = &until
	return b
}

func (b *AssignmentBuilder) Build() *schedule.Assignment {
	b.t.Helper()
	return &schedule.Assignment{
		ID:             uuid.New(),
		EntityID:       b.entityID,
		SiteID:         b.siteID,
		Active:         b.active,
		EffectiveFrom:  b.effectiveFrom,
		EffectiveUntil: b.effectiveUntil,
	}
}

// PostBuilder builds test posts
type PostBuilder struct {
	t             *testing.T
	siteID        uuid.UUID
	lat, lon      float64
	radiusMeters  float64
	ordersVersion int
	requiredCerts []string
}

func NewPostBuilder(t *testing.T) *PostBuilder {
	t.Helper()
	return &PostBuilder{
		t:            t,
		siteID:       uuid.New(),
		lat:          40.7128,
		lon:          -74.0060,
		radiusMeters: 150,
	}
}

func (b *PostBuilder) WithSiteID(id uuid.UUID) *PostBuilder {
	b.siteID = id
	return b
}

func (b *PostBuilder) WithGeofence(lat, lon, radiusMeters float64) *PostBuilder {
	b.lat = lat
	b.lon = lon
	b.radiusMeters = radiusMeters
	return b
}

func (b *PostBuilder) WithOrdersVersion(v int) *PostBuilder {
	b.ordersVersion = v
	return b
}

func (b *PostBuilder) WithRequiredCertifications(codes ...string) *PostBuilder {
	b.requiredCerts = codes
	return b
}

func (b *PostBuilder) Build() *schedule.Post {
	b.t.Helper()
	return &schedule.Post{
		ID:                     uuid.New(),
		SiteID:                 b.siteID,
		Name:                   "Main Gate",
		Latitude:               b.lat,
		Longitude:              b.lon,
		RadiusMeters:           b.radiusMeters,
		OrdersVersion:          b.ordersVersion,
		RequiredCertifications: b.requiredCerts,
	}
}
