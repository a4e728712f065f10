package detection_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shiftsentry/attendance-backend/internal/domain/alert"
	"github.com/shiftsentry/attendance-backend/internal/domain/anomaly"
	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
	"github.com/shiftsentry/attendance-backend/internal/domain/schedule"
	"github.com/shiftsentry/attendance-backend/internal/service/detection"
)

// stubValidator admits or rejects everything.
type stubValidator struct {
	result attendance.ValidationResult
}

func (s *stubValidator) Evaluate(context.Context, *attendance.Event) attendance.ValidationResult {
	return s.result
}

// slowValidator holds the chain open past any deadline.
type slowValidator struct {
	delay time.Duration
}

func (s *slowValidator) Evaluate(ctx context.Context, _ *attendance.Event) attendance.ValidationResult {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
	}
	return attendance.Admit(10)
}

// stubHistory returns canned answers and records admits.
type stubHistory struct {
	mu            sync.Mutex
	lastByKind    map[attendance.EventKind]*attendance.Event
	lastShiftEnd  time.Time
	distinctSites int
	admitted      []*attendance.Event
}

func newStubHistory() *stubHistory {
	return &stubHistory{lastByKind: make(map[attendance.EventKind]*attendance.Event)}
}

func (s *stubHistory) LastAdmitted(_ context.Context, _ uuid.UUID, kind attendance.EventKind) (*attendance.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastByKind[kind], nil
}

func (s *stubHistory) LastShiftEnd(context.Context, uuid.UUID) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastShiftEnd, nil
}

func (s *stubHistory) DistinctSites(context.Context, uuid.UUID, time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.distinctSites, nil
}

func (s *stubHistory) MarkAdmitted(_ context.Context, event *attendance.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admitted = append(s.admitted, event)
	s.lastByKind[event.Kind] = event
	return nil
}

func (s *stubHistory) admittedIDs() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uuid.UUID, len(s.admitted))
	for i, e := range s.admitted {
		ids[i] = e.ID
	}
	return ids
}

// stubShifts resolves every lookup to one shift.
type stubShifts struct {
	shift *schedule.Shift
}

func (s *stubShifts) ShiftByID(context.Context, uuid.UUID) (*schedule.Shift, error) {
	return s.shift, nil
}

func (s *stubShifts) ShiftFor(context.Context, uuid.UUID, uuid.UUID, time.Time) (*schedule.Shift, error) {
	return s.shift, nil
}

// stubPredictor answers after an optional delay or fails.
type stubPredictor struct {
	prediction *detection.Prediction
	err        error
	delay      time.Duration

	mu    sync.Mutex
	calls int
}

func (s *stubPredictor) Predict(ctx context.Context, _, _ uuid.UUID, _ time.Time) (*detection.Prediction, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.prediction, nil
}

// spyPublisher records published alerts.
type spyPublisher struct {
	mu      sync.Mutex
	records []*alert.Record
}

func (s *spyPublisher) Publish(_ context.Context, record *alert.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
}

func (s *spyPublisher) published() []*alert.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*alert.Record(nil), s.records...)
}

// spyAudit records sink invocations.
type spyAudit struct {
	mu         sync.Mutex
	rejections []attendance.ValidationResult
	findings   []*anomaly.Finding
	timeouts   []*attendance.Event
}

func (s *spyAudit) RecordRejection(_ context.Context, _ *attendance.Event, result attendance.ValidationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejections = append(s.rejections, result)
}

func (s *spyAudit) RecordFinding(_ context.Context, finding *anomaly.Finding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findings = append(s.findings, finding)
}

func (s *spyAudit) RecordTimeout(_ context.Context, event *attendance.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeouts = append(s.timeouts, event)
}

// spyObserver records submitted observations.
type spyObserver struct {
	mu           sync.Mutex
	observations []anomaly.Metric
}

func (s *spyObserver) SubmitObservation(_ uuid.UUID, metric anomaly.Metric, _ float64, _ time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observations = append(s.observations, metric)
}
