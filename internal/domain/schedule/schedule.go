// Package schedule models the read-only rostering state the admission chain
// consults: who is assigned where, when their shifts run, and what a post
// demands of the people standing it.
package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
)

// Assignment binds an entity to a site for a validity window. An entity with
// no active assignment at event time is not admitted to that site.
type Assignment struct {
	ID             uuid.UUID  `json:"id"`
	EntityID       uuid.UUID  `json:"entity_id"`
	SiteID         uuid.UUID  `json:"site_id"`
	Active         bool       `json:"active"`
	EffectiveFrom  time.Time  `json:"effective_from"`
	EffectiveUntil *time.Time `json:"effective_until,omitempty"`
}

// ActiveAt reports whether the assignment covers the given instant.
func (a *Assignment) ActiveAt(t time.Time) bool {
	if !a.Active {
		return false
	}
	if t.Before(a.EffectiveFrom) {
		return false
	}
	if a.EffectiveUntil != nil && t.After(*a.EffectiveUntil) {
		return false
	}
	return true
}

// Shift is one scheduled tour of duty. StartsAt and EndsAt come from the
// scheduling system as same-date clock times in the site's zone; an overnight
// shift is stored with an end that is not after its start and is normalized
// by Window before any comparison.
type Shift struct {
	ID              uuid.UUID  `json:"id"`
	EntityID        uuid.UUID  `json:"entity_id"`
	SiteID          uuid.UUID  `json:"site_id"`
	PostID          *uuid.UUID `json:"post_id,omitempty"`
	StartsAt        time.Time  `json:"starts_at"`
	EndsAt          time.Time  `json:"ends_at"`
	TZOffsetMinutes int        `json:"tz_offset_minutes"`
}

// Window returns the concrete [start, end] interval of the shift,
// pushing the end to the following day when the shift crosses midnight.
func (s *Shift) Window() (time.Time, time.Time) {
	end := s.EndsAt
	if !end.After(s.StartsAt) {
		end = end.Add(24 * time.Hour)
	}
	return s.StartsAt, end
}

// InWindow reports whether t falls within the shift window widened by the
// grace duration on both sides.
func (s *Shift) InWindow(t time.Time, grace time.Duration) bool {
	start, end := s.Window()
	return !t.Before(start.Add(-grace)) && !t.After(end.Add(grace))
}

// Duration returns the scheduled length of the shift after normalization.
func (s *Shift) Duration() time.Duration {
	start, end := s.Window()
	return end.Sub(start)
}

// Post is a sub-location within a site carrying its own geofence, briefing
// and credential requirements.
type Post struct {
	ID           uuid.UUID `json:"id"`
	SiteID       uuid.UUID `json:"site_id"`
	Name         string    `json:"name"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	RadiusMeters float64   `json:"radius_meters"`

	// OrdersVersion is the current post-orders briefing revision; zero
	// means the post publishes no orders.
	OrdersVersion int `json:"orders_version"`

	RequiredCertifications []string `json:"required_certifications,omitempty"`
}

// Contains reports whether the fix falls inside the post's geofence. A post
// with no configured radius accepts any location.
func (p *Post) Contains(loc attendance.Geolocation) bool {
	if p.RadiusMeters <= 0 {
		return true
	}
	return loc.DistanceMeters(p.Latitude, p.Longitude) <= p.RadiusMeters
}

// CertificationSet maps credential codes held by an entity to their expiry.
// A zero expiry means the credential does not expire.
type CertificationSet map[string]time.Time

// Missing returns the first required credential the set does not satisfy at
// the given instant, or "" when all requirements hold.
func (cs CertificationSet) Missing(required []string, at time.Time) string {
	for _, code := range required {
		expiry, ok := cs[code]
		if !ok {
			return code
		}
		if !expiry.IsZero() && expiry.Before(at) {
			return code
		}
	}
	return ""
}

// OrdersAcknowledgement records that an entity confirmed a post-orders
// briefing at some revision.
type OrdersAcknowledgement struct {
	EntityID       uuid.UUID `json:"entity_id"`
	PostID         uuid.UUID `json:"post_id"`
	Version        int       `json:"version"`
	AcknowledgedAt time.Time `json:"acknowledged_at"`
}

// Covers reports whether the acknowledgement satisfies the given orders
// revision. Acknowledging a newer revision covers older ones.
func (o *OrdersAcknowledgement) Covers(version int) bool {
	return o.Version >= version
}

// Directory entries resolve display names for broadcast enrichment.
type DirectoryEntry struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

func (d DirectoryEntry) Validate() error {
	if d.ID == uuid.Nil {
		return fmt.Errorf("directory entry ID cannot be nil")
	}
	return nil
}
