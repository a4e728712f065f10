package validation_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
	"github.com/shiftsentry/attendance-backend/internal/domain/schedule"
)

type mockScheduleStore struct {
	mock.Mock
}

func (m *mockScheduleStore) ActiveAssignment(ctx context.Context, entityID, siteID uuid.UUID) (*schedule.Assignment, error) {
	args := m.Called(ctx, entityID, siteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.Assignment), args.Error(1)
}

func (m *mockScheduleStore) ShiftByID(ctx context.Context, shiftID uuid.UUID) (*schedule.Shift, error) {
	args := m.Called(ctx, shiftID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.Shift), args.Error(1)
}

func (m *mockScheduleStore) ShiftFor(ctx context.Context, entityID, siteID uuid.UUID, at time.Time) (*schedule.Shift, error) {
	args := m.Called(ctx, entityID, siteID, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.Shift), args.Error(1)
}

func (m *mockScheduleStore) Post(ctx context.Context, postID uuid.UUID) (*schedule.Post, error) {
	args := m.Called(ctx, postID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.Post), args.Error(1)
}

func (m *mockScheduleStore) IsRostered(ctx context.Context, entityID, postID uuid.UUID, at time.Time) (bool, error) {
	args := m.Called(ctx, entityID, postID, at)
	return args.Bool(0), args.Error(1)
}

func (m *mockScheduleStore) Certifications(ctx context.Context, entityID uuid.UUID) (schedule.CertificationSet, error) {
	args := m.Called(ctx, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(schedule.CertificationSet), args.Error(1)
}

func (m *mockScheduleStore) OrdersAcknowledgement(ctx context.Context, entityID, postID uuid.UUID) (*schedule.OrdersAcknowledgement, error) {
	args := m.Called(ctx, entityID, postID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.OrdersAcknowledgement), args.Error(1)
}

type mockEventHistory struct {
	mock.Mock
}

func (m *mockEventHistory) LastAdmitted(ctx context.Context, entityID uuid.UUID, kind attendance.EventKind) (*attendance.Event, error) {
	args := m.Called(ctx, entityID, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*attendance.Event), args.Error(1)
}

func (m *mockEventHistory) LastShiftEnd(ctx context.Context, entityID uuid.UUID) (time.Time, error) {
	args := m.Called(ctx, entityID)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *mockEventHistory) MarkAdmitted(ctx context.Context, event *attendance.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
