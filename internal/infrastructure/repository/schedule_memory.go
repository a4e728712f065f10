package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/shiftsentry/attendance-backend/internal/domain/errors"
	"github.com/shiftsentry/attendance-backend/internal/domain/schedule"
)

// MemoryScheduleStore is the in-process rostering surface for deployments
// without a database. It answers the same contracts as the postgres
// repository: the admission chain's schedule reads, shift resolution for
// the heuristics, and directory names for broadcast enrichment. State is
// seeded through the Put methods, typically from a bootstrap fixture.
type MemoryScheduleStore struct {
	mu sync.RWMutex

	grace time.Duration

	assignments map[uuid.UUID]*schedule.Assignment
	shifts      map[uuid.UUID]*schedule.Shift
	posts       map[uuid.UUID]*schedule.Post
	certs       map[uuid.UUID]schedule.CertificationSet
	acks        map[ackKey]*schedule.OrdersAcknowledgement
	entities    map[uuid.UUID]string
	sites       map[uuid.UUID]string
}

type ackKey struct {
	entityID uuid.UUID
	postID   uuid.UUID
}

func NewMemoryScheduleStore(grace time.Duration) *MemoryScheduleStore {
	return &MemoryScheduleStore{
		grace:       grace,
		assignments: make(map[uuid.UUID]*schedule.Assignment),
		shifts:      make(map[uuid.UUID]*schedule.Shift),
		posts:       make(map[uuid.UUID]*schedule.Post),
		certs:       make(map[uuid.UUID]schedule.CertificationSet),
		acks:        make(map[ackKey]*schedule.OrdersAcknowledgement),
		entities:    make(map[uuid.UUID]string),
		sites:       make(map[uuid.UUID]string),
	}
}

func (s *MemoryScheduleStore) PutAssignment(a *schedule.Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[a.ID] = a
}

func (s *MemoryScheduleStore) PutShift(sh *schedule.Shift) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shifts[sh.ID] = sh
}

func (s *MemoryScheduleStore) PutPost(p *schedule.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[p.ID] = p
}

func (s *MemoryScheduleStore) PutCertifications(entityID uuid.UUID, set schedule.CertificationSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.certs[entityID] = set
}

func (s *MemoryScheduleStore) PutAcknowledgement(ack *schedule.OrdersAcknowledgement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ackKey{entityID: ack.EntityID, postID: ack.PostID}
	if prev, ok := s.acks[key]; ok && prev.Version >= ack.Version {
		return
	}
	s.acks[key] = ack
}

func (s *MemoryScheduleStore) PutEntityName(id uuid.UUID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[id] = name
}

func (s *MemoryScheduleStore) PutSiteName(id uuid.UUID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites[id] = name
}

func (s *MemoryScheduleStore) ActiveAssignment(_ context.Context, entityID, siteID uuid.UUID) (*schedule.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *schedule.Assignment
	for _, a := range s.assignments {
		if a.EntityID != entityID || a.SiteID != siteID || !a.Active {
			continue
		}
		if latest == nil || a.EffectiveFrom.After(latest.EffectiveFrom) {
			latest = a
		}
	}
	return latest, nil
}

func (s *MemoryScheduleStore) ShiftByID(_ context.Context, shiftID uuid.UUID) (*schedule.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shifts[shiftID], nil
}

func (s *MemoryScheduleStore) ShiftFor(_ context.Context, entityID, siteID uuid.UUID, at time.Time) (*schedule.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var match *schedule.Shift
	for _, sh := range s.shifts {
		if sh.EntityID != entityID || sh.SiteID != siteID {
			continue
		}
		if !sh.InWindow(at, s.grace) {
			continue
		}
		if match == nil || sh.StartsAt.Before(match.StartsAt) {
			match = sh
		}
	}
	return match, nil
}

func (s *MemoryScheduleStore) Post(_ context.Context, postID uuid.UUID) (*schedule.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.posts[postID], nil
}

func (s *MemoryScheduleStore) IsRostered(_ context.Context, entityID, postID uuid.UUID, at time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sh := range s.shifts {
		if sh.EntityID != entityID || sh.PostID == nil || *sh.PostID != postID {
			continue
		}
		if sh.InWindow(at, s.grace) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryScheduleStore) Certifications(_ context.Context, entityID uuid.UUID) (schedule.CertificationSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(schedule.CertificationSet, len(s.certs[entityID]))
	for code, expiry := range s.certs[entityID] {
		set[code] = expiry
	}
	return set, nil
}

func (s *MemoryScheduleStore) OrdersAcknowledgement(_ context.Context, entityID, postID uuid.UUID) (*schedule.OrdersAcknowledgement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.acks[ackKey{entityID: entityID, postID: postID}], nil
}

// EntityName resolves a display name for broadcast enrichment.
func (s *MemoryScheduleStore) EntityName(_ context.Context, entityID uuid.UUID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name, ok := s.entities[entityID]
	if !ok {
		return "", apperrors.NewNotFoundError("entities")
	}
	return name, nil
}

// SiteName resolves a site display name for broadcast enrichment.
func (s *MemoryScheduleStore) SiteName(_ context.Context, siteID uuid.UUID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name, ok := s.sites[siteID]
	if !ok {
		return "", apperrors.NewNotFoundError("sites")
	}
	return name, nil
}
