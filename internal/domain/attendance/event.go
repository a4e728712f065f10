package attendance

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Event is a single check-in or check-out observation as reported by a
// device in the field. Immutable once constructed.
type Event struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenant_id"`
	EntityID uuid.UUID `json:"entity_id"`
	SiteID   uuid.UUID `json:"site_id"`

	// Scheduling references; ShiftID is nil for unscheduled walk-ups,
	// PostID is nil when the site does not track posts.
	ShiftID *uuid.UUID `json:"shift_id,omitempty"`
	PostID  *uuid.UUID `json:"post_id,omitempty"`

	Kind     EventKind   `json:"kind"`
	Location Geolocation `json:"location"`

	// OccurredAt is the device-reported timestamp, ReceivedAt the server
	// ingestion time. Validation windows evaluate OccurredAt.
	OccurredAt time.Time `json:"occurred_at"`
	ReceivedAt time.Time `json:"received_at"`

	Device DeviceMetadata `json:"device"`
}

type EventKind int

const (
	KindCheckIn EventKind = iota
	KindCheckOut
)

func (k EventKind) String() string {
	switch k {
	case KindCheckIn:
		return "check_in"
	case KindCheckOut:
		return "check_out"
	default:
		return "unknown"
	}
}

// ParseEventKind maps a wire string to an EventKind.
func ParseEventKind(s string) (EventKind, error) {
	switch s {
	case "check_in":
		return KindCheckIn, nil
	case "check_out":
		return KindCheckOut, nil
	default:
		return 0, fmt.Errorf("invalid event kind %q", s)
	}
}

// Geolocation is a device fix with its reported accuracy radius in meters.
type Geolocation struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AccuracyMeters float64 `json:"accuracy_meters"`
}

func (g Geolocation) Validate() error {
	if g.Latitude < -90 || g.Latitude > 90 {
		return fmt.Errorf("latitude %f out of range", g.Latitude)
	}
	if g.Longitude < -180 || g.Longitude > 180 {
		return fmt.Errorf("longitude %f out of range", g.Longitude)
	}
	if g.AccuracyMeters < 0 {
		return fmt.Errorf("accuracy radius cannot be negative")
	}
	return nil
}

const earthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle distance from the fix to the
// given coordinates, using the haversine formula.
func (g Geolocation) DistanceMeters(lat, lon float64) float64 {
	lat1 := g.Latitude * math.Pi / 180
	lat2 := lat * math.Pi / 180
	dLat := (lat - g.Latitude) * math.Pi / 180
	dLon := (lon - g.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// DeviceMetadata identifies the reporting device for audit purposes.
type DeviceMetadata struct {
	DeviceID   string `json:"device_id"`
	Platform   string `json:"platform,omitempty"`
	AppVersion string `json:"app_version,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
}

func NewEvent(tenantID, entityID, siteID uuid.UUID, kind EventKind, location Geolocation, occurredAt time.Time) (*Event, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("tenant ID cannot be nil")
	}
	if entityID == uuid.Nil {
		return nil, fmt.Errorf("entity ID cannot be nil")
	}
	if siteID == uuid.Nil {
		return nil, fmt.Errorf("site ID cannot be nil")
	}

	switch kind {
	case KindCheckIn, KindCheckOut:
	default:
		return nil, fmt.Errorf("invalid event kind")
	}

	if err := location.Validate(); err != nil {
		return nil, fmt.Errorf("invalid location: %w", err)
	}

	if occurredAt.IsZero() {
		return nil, fmt.Errorf("occurred_at cannot be zero")
	}

	return &Event{
		ID:         uuid.New(),
		TenantID:   tenantID,
		EntityID:   entityID,
		SiteID:     siteID,
		Kind:       kind,
		Location:   location,
		OccurredAt: occurredAt,
		ReceivedAt: clock.Now(),
	}, nil
}
