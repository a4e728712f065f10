package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/shiftsentry/attendance-backend/internal/domain/alert"
	apperrors "github.com/shiftsentry/attendance-backend/internal/domain/errors"
)

// MemoryAlertStore is the in-process AlertStore. It enforces the same
// contract as the postgres store: at most one open record per correlation
// key, compare-and-swap on Version. The default for single-node deployments
// without a database, and the store the correlator tests exercise.
type MemoryAlertStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*alert.Record
	open    map[alert.CorrelationKey]uuid.UUID
}

func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{
		records: make(map[uuid.UUID]*alert.Record),
		open:    make(map[alert.CorrelationKey]uuid.UUID),
	}
}

func (s *MemoryAlertStore) OpenByKey(_ context.Context, key alert.CorrelationKey) (*alert.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.open[key]
	if !ok {
		return nil, nil
	}
	return clone(s.records[id]), nil
}

func (s *MemoryAlertStore) Get(_ context.Context, id uuid.UUID) (*alert.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return clone(r), nil
}

func (s *MemoryAlertStore) Create(_ context.Context, r *alert.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.open[r.Key()]; exists {
		return apperrors.ErrOpenAlertExists
	}
	s.records[r.ID] = clone(r)
	s.open[r.Key()] = r.ID
	return nil
}

func (s *MemoryAlertStore) Update(_ context.Context, r *alert.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.records[r.ID]
	if !ok {
		return apperrors.ErrAlertNotFound
	}
	if stored.Version != r.Version {
		return apperrors.ErrVersionConflict
	}

	r.Version++
	s.records[r.ID] = clone(r)

	if r.Status == alert.StatusClosed {
		if openID, ok := s.open[r.Key()]; ok && openID == r.ID {
			delete(s.open, r.Key())
		}
	}
	return nil
}

func (s *MemoryAlertStore) OpenRecords(_ context.Context) ([]*alert.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]*alert.Record, 0, len(s.open))
	for _, id := range s.open {
		records = append(records, clone(s.records[id]))
	}
	return records, nil
}

func clone(r *alert.Record) *alert.Record {
	cp := *r
	return &cp
}
