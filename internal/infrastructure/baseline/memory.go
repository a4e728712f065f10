// Package baseline provides the stores and the asynchronous updater behind
// the per-entity statistical profiles. The scoring path only ever reads
// snapshots; the updater goroutine is the single writer.
package baseline

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/shiftsentry/attendance-backend/internal/domain/anomaly"
)

type profileKey struct {
	entityID uuid.UUID
	metric   anomaly.Metric
}

// MemoryStore keeps profiles in process memory. Reads hand out clones so a
// caller can never observe a half-applied update.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[profileKey]*anomaly.BaselineProfile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[profileKey]*anomaly.BaselineProfile),
	}
}

// Profile returns a snapshot of the baseline, nil when none exists.
func (s *MemoryStore) Profile(_ context.Context, entityID uuid.UUID, metric anomaly.Metric) (*anomaly.BaselineProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[profileKey{entityID, metric}]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

// Save replaces the stored profile with a clone of the given one.
func (s *MemoryStore) Save(_ context.Context, p *anomaly.BaselineProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[profileKey{p.EntityID, p.Metric}] = p.Clone()
	return nil
}

// Len reports how many profiles the store holds.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}
