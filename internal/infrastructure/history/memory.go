package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
)

type lastEventKeyMem struct {
	entityID uuid.UUID
	kind     attendance.EventKind
}

type siteVisit struct {
	siteID uuid.UUID
	at     time.Time
}

// MemoryStore is the in-process EventHistory for single-node deployments
// without redis, and for tests.
type MemoryStore struct {
	mu        sync.RWMutex
	last      map[lastEventKeyMem]*attendance.Event
	shiftEnds map[uuid.UUID]time.Time
	visits    map[uuid.UUID][]siteVisit
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		last:      make(map[lastEventKeyMem]*attendance.Event),
		shiftEnds: make(map[uuid.UUID]time.Time),
		visits:    make(map[uuid.UUID][]siteVisit),
	}
}

func (s *MemoryStore) LastAdmitted(_ context.Context, entityID uuid.UUID, kind attendance.EventKind) (*attendance.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.last[lastEventKeyMem{entityID, kind}]
	if !ok {
		return nil, nil
	}
	cp := *event
	return &cp, nil
}

func (s *MemoryStore) LastShiftEnd(_ context.Context, entityID uuid.UUID) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shiftEnds[entityID], nil
}

func (s *MemoryStore) DistinctSites(_ context.Context, entityID uuid.UUID, window time.Duration) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	seen := make(map[uuid.UUID]struct{})
	for _, visit := range s.visits[entityID] {
		if visit.at.After(cutoff) {
			seen[visit.siteID] = struct{}{}
		}
	}
	return len(seen), nil
}

func (s *MemoryStore) MarkAdmitted(_ context.Context, event *attendance.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *event
	s.last[lastEventKeyMem{event.EntityID, event.Kind}] = &cp

	if event.Kind == attendance.KindCheckOut {
		s.shiftEnds[event.EntityID] = event.OccurredAt
	}

	visits := append(s.visits[event.EntityID], siteVisit{siteID: event.SiteID, at: event.OccurredAt})
	if len(visits) > 256 {
		visits = visits[len(visits)-256:]
	}
	s.visits[event.EntityID] = visits
	return nil
}
