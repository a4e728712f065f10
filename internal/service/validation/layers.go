package validation

import (
	"context"
	"fmt"

	"time"

	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
	"github.com/shiftsentry/attendance-backend/internal/domain/schedule"
)

// Layer 1: reject fixes too coarse to trust.
type locationAccuracyLayer struct {
	maxAccuracyMeters float64
}

func (l *locationAccuracyLayer) Code() attendance.LayerCode {
	return attendance.LayerLocationAccuracy
}

func (l *locationAccuracyLayer) Check(_ context.Context, event *attendance.Event, _ *EvalState) CheckResult {
	if event.Location.AccuracyMeters > l.maxAccuracyMeters {
		return reject(fmt.Sprintf("GPS accuracy %.0fm exceeds maximum %.0fm",
			event.Location.AccuracyMeters, l.maxAccuracyMeters))
	}
	return admit()
}

// Layer 2: the entity must hold an active assignment to the event's site.
type siteAssignmentLayer struct {
	store ScheduleStore
}

func (l *siteAssignmentLayer) Code() attendance.LayerCode {
	return attendance.LayerSiteAssignment
}

func (l *siteAssignmentLayer) Check(ctx context.Context, event *attendance.Event, _ *EvalState) CheckResult {
	assignment, err := l.store.ActiveAssignment(ctx, event.EntityID, event.SiteID)
	if err != nil {
		return unavailable(err)
	}
	if assignment == nil {
		return reject("no assignment to this site")
	}
	if !assignment.ActiveAt(event.OccurredAt) {
		return reject("assignment not active at event time")
	}
	return admit()
}

// Layer 3: a shift must exist for the entity at this site and time. The
// resolved shift is cached for the window layer.
type shiftAssignmentLayer struct {
	store ScheduleStore
}

func (l *shiftAssignmentLayer) Code() attendance.LayerCode {
	return attendance.LayerShiftAssignment
}

func (l *shiftAssignmentLayer) Check(ctx context.Context, event *attendance.Event, state *EvalState) CheckResult {
	shift, res := resolveShift(ctx, l.store, event)
	if res != nil {
		return *res
	}
	if shift.EntityID != event.EntityID {
		return reject("shift belongs to a different entity")
	}
	if shift.SiteID != event.SiteID {
		return reject("shift is scheduled at a different site")
	}
	state.Shift = shift
	return admit()
}

// resolveShift loads the event's shift, by explicit reference when the event
// carries one, otherwise by schedule lookup. Returns a CheckResult when the
// caller should stop (not found or store failure).
func resolveShift(ctx context.Context, store ScheduleStore, event *attendance.Event) (*schedule.Shift, *CheckResult) {
	var (
		shift *schedule.Shift
		err   error
	)
	if event.ShiftID != nil {
		shift, err = store.ShiftByID(ctx, *event.ShiftID)
	} else {
		shift, err = store.ShiftFor(ctx, event.EntityID, event.SiteID, event.OccurredAt)
	}
	if err != nil {
		res := unavailable(err)
		return nil, &res
	}
	if shift == nil {
		res := reject("no shift scheduled for this entity at this site and time")
		return nil, &res
	}
	return shift, nil
}

// Layer 4: the event must fall inside the graced shift window. Overnight
// shifts are normalized by the domain before comparison.
type shiftWindowLayer struct {
	store ScheduleStore
	grace time.Duration
}

func (l *shiftWindowLayer) Code() attendance.LayerCode {
	return attendance.LayerShiftWindow
}

func (l *shiftWindowLayer) Check(ctx context.Context, event *attendance.Event, state *EvalState) CheckResult {
	shift := state.Shift
	if shift == nil {
		// Layer 3 was skipped under fail-open; resolve here.
		var res *CheckResult
		shift, res = resolveShift(ctx, l.store, event)
		if res != nil {
			return *res
		}
		state.Shift = shift
	}

	if !shift.InWindow(event.OccurredAt, l.grace) {
		start, end := shift.Window()
		return rejectOverridable(fmt.Sprintf("event at %s outside shift window %s-%s (grace %s)",
			event.OccurredAt.Format(time.RFC3339),
			start.Format(time.RFC3339),
			end.Format(time.RFC3339),
			l.grace))
	}
	return admit()
}

// Layer 5: a check-in must respect the regulatory rest floor since the
// previous shift ended. Check-outs pass trivially.
type restPeriodLayer struct {
	history     EventHistory
	minimumRest time.Duration
}

func (l *restPeriodLayer) Code() attendance.LayerCode {
	return attendance.LayerRestPeriod
}

func (l *restPeriodLayer) Check(ctx context.Context, event *attendance.Event, _ *EvalState) CheckResult {
	if event.Kind != attendance.KindCheckIn {
		return admit()
	}

	lastEnd, err := l.history.LastShiftEnd(ctx, event.EntityID)
	if err != nil {
		return unavailable(err)
	}
	if lastEnd.IsZero() {
		return admit()
	}

	gap := event.OccurredAt.Sub(lastEnd)
	if gap < l.minimumRest {
		return reject(fmt.Sprintf("only %s rest since last shift end, %s required",
			gap.Round(time.Minute), l.minimumRest))
	}
	return admit()
}

// Layer 6: suppress an event equivalent to one already admitted within the
// dedup window. Relies on per-entity arrival ordering: every prior admit for
// this entity is visible by the time this check runs.
type duplicateLayer struct {
	history EventHistory
	window  time.Duration
}

func (l *duplicateLayer) Code() attendance.LayerCode {
	return attendance.LayerDuplicate
}

func (l *duplicateLayer) Check(ctx context.Context, event *attendance.Event, _ *EvalState) CheckResult {
	last, err := l.history.LastAdmitted(ctx, event.EntityID, event.Kind)
	if err != nil {
		return unavailable(err)
	}
	if last == nil {
		return admit()
	}

	gap := event.OccurredAt.Sub(last.OccurredAt)
	if gap < 0 {
		gap = -gap
	}
	if gap < l.window {
		return reject(fmt.Sprintf("duplicate %s within %s of event %s",
			event.Kind, l.window, last.ID))
	}
	return admit()
}
