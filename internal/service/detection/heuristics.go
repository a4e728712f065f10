package detection

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/domain/anomaly"
	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
	"github.com/shiftsentry/attendance-backend/internal/domain/schedule"
)

// observedMetric is one heuristic measurement taken from an admitted event.
type observedMetric struct {
	metric anomaly.Metric
	value  float64
}

// observe computes the heuristic metrics appropriate to the event kind.
// Each heuristic that cannot be measured (no shift, no prior event) is
// skipped rather than scored against a fabricated value.
func (o *Orchestrator) observe(ctx context.Context, event *attendance.Event) []observedMetric {
	var observed []observedMetric

	if hops, ok := o.siteHopRate(ctx, event); ok {
		observed = append(observed, observedMetric{anomaly.MetricSiteHopRate, hops})
	}

	switch event.Kind {
	case attendance.KindCheckIn:
		if offset, ok := o.checkInOffset(ctx, event); ok {
			observed = append(observed, observedMetric{anomaly.MetricCheckInOffset, offset})
		}
		if gap, ok := o.restGap(ctx, event); ok {
			observed = append(observed, observedMetric{anomaly.MetricRestGap, gap})
		}
	case attendance.KindCheckOut:
		if worked, ok := o.shiftDuration(ctx, event); ok {
			observed = append(observed, observedMetric{anomaly.MetricShiftDuration, worked})
		}
	}

	return observed
}

// siteHopRate counts distinct sites visited in the trailing hour. Catches
// an entity apparently bouncing between guarded sites faster than travel
// allows.
func (o *Orchestrator) siteHopRate(ctx context.Context, event *attendance.Event) (float64, bool) {
	count, err := o.history.DistinctSites(ctx, event.EntityID, time.Hour)
	if err != nil {
		o.logger.Debug("site hop heuristic skipped", zap.Error(err))
		return 0, false
	}
	return float64(count), true
}

// checkInOffset measures minutes between scheduled and actual start.
func (o *Orchestrator) checkInOffset(ctx context.Context, event *attendance.Event) (float64, bool) {
	shift, err := o.resolveShift(ctx, event)
	if err != nil || shift == nil {
		return 0, false
	}
	start, _ := shift.Window()
	return event.OccurredAt.Sub(start).Minutes(), true
}

// restGap measures hours since the previous shift ended.
func (o *Orchestrator) restGap(ctx context.Context, event *attendance.Event) (float64, bool) {
	lastEnd, err := o.history.LastShiftEnd(ctx, event.EntityID)
	if err != nil || lastEnd.IsZero() {
		return 0, false
	}
	return event.OccurredAt.Sub(lastEnd).Hours(), true
}

// shiftDuration measures minutes worked between the matching check-in and
// this check-out.
func (o *Orchestrator) shiftDuration(ctx context.Context, event *attendance.Event) (float64, bool) {
	checkIn, err := o.history.LastAdmitted(ctx, event.EntityID, attendance.KindCheckIn)
	if err != nil || checkIn == nil {
		return 0, false
	}
	worked := event.OccurredAt.Sub(checkIn.OccurredAt)
	if worked <= 0 {
		return 0, false
	}
	return worked.Minutes(), true
}

func (o *Orchestrator) resolveShift(ctx context.Context, event *attendance.Event) (*schedule.Shift, error) {
	if event.ShiftID != nil {
		return o.shifts.ShiftByID(ctx, *event.ShiftID)
	}
	return o.shifts.ShiftFor(ctx, event.EntityID, event.SiteID, event.OccurredAt)
}
