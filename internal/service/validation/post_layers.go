package validation

import (
	"context"
	"fmt"

	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
	"github.com/shiftsentry/attendance-backend/internal/domain/schedule"
)

// resolvePost loads and caches the event's post. An event without a post
// reference makes every post-level layer pass trivially, signalled by a nil
// post with a nil CheckResult.
func resolvePost(ctx context.Context, store ScheduleStore, event *attendance.Event, state *EvalState) (*schedule.Post, *CheckResult) {
	if event.PostID == nil {
		return nil, nil
	}
	if state.Post != nil {
		return state.Post, nil
	}
	post, err := store.Post(ctx, *event.PostID)
	if err != nil {
		res := unavailable(err)
		return nil, &res
	}
	if post == nil {
		res := reject("referenced post does not exist")
		return nil, &res
	}
	state.Post = post
	return post, nil
}

// Layer 7: the entity must be rostered to the post the event names.
type postAssignmentLayer struct {
	store ScheduleStore
}

func (l *postAssignmentLayer) Code() attendance.LayerCode {
	return attendance.LayerPostAssignment
}

func (l *postAssignmentLayer) Check(ctx context.Context, event *attendance.Event, state *EvalState) CheckResult {
	post, res := resolvePost(ctx, l.store, event, state)
	if res != nil {
		return *res
	}
	if post == nil {
		return admit()
	}

	rostered, err := l.store.IsRostered(ctx, event.EntityID, post.ID, event.OccurredAt)
	if err != nil {
		return unavailable(err)
	}
	if !rostered {
		return reject(fmt.Sprintf("entity is not rostered to post %q", post.Name))
	}
	return admit()
}

// Layer 8: the fix must land inside the post's geofence.
type postGeofenceLayer struct {
	store ScheduleStore
}

func (l *postGeofenceLayer) Code() attendance.LayerCode {
	return attendance.LayerPostGeofence
}

func (l *postGeofenceLayer) Check(ctx context.Context, event *attendance.Event, state *EvalState) CheckResult {
	post, res := resolvePost(ctx, l.store, event, state)
	if res != nil {
		return *res
	}
	if post == nil {
		return admit()
	}

	if !post.Contains(event.Location) {
		dist := event.Location.DistanceMeters(post.Latitude, post.Longitude)
		return reject(fmt.Sprintf("fix %.0fm from post %q, geofence radius %.0fm",
			dist, post.Name, post.RadiusMeters))
	}
	return admit()
}

// Layer 9: the post's current orders revision must be acknowledged.
type postOrdersLayer struct {
	store ScheduleStore
}

func (l *postOrdersLayer) Code() attendance.LayerCode {
	return attendance.LayerPostOrders
}

func (l *postOrdersLayer) Check(ctx context.Context, event *attendance.Event, state *EvalState) CheckResult {
	post, res := resolvePost(ctx, l.store, event, state)
	if res != nil {
		return *res
	}
	if post == nil || post.OrdersVersion == 0 {
		return admit()
	}

	ack, err := l.store.OrdersAcknowledgement(ctx, event.EntityID, post.ID)
	if err != nil {
		return unavailable(err)
	}
	if ack == nil {
		return reject(fmt.Sprintf("post orders v%d never acknowledged", post.OrdersVersion))
	}
	if !ack.Covers(post.OrdersVersion) {
		return reject(fmt.Sprintf("post orders v%d not acknowledged, last confirmed v%d",
			post.OrdersVersion, ack.Version))
	}
	return admit()
}

// Layer 10: the entity must hold every credential the post requires.
type certificationLayer struct {
	store ScheduleStore
}

func (l *certificationLayer) Code() attendance.LayerCode {
	return attendance.LayerCertification
}

func (l *certificationLayer) Check(ctx context.Context, event *attendance.Event, state *EvalState) CheckResult {
	post, res := resolvePost(ctx, l.store, event, state)
	if res != nil {
		return *res
	}
	if post == nil || len(post.RequiredCertifications) == 0 {
		return admit()
	}

	certs, err := l.store.Certifications(ctx, event.EntityID)
	if err != nil {
		return unavailable(err)
	}
	if missing := certs.Missing(post.RequiredCertifications, event.OccurredAt); missing != "" {
		return reject(fmt.Sprintf("missing or expired credential %q required by post %q",
			missing, post.Name))
	}
	return admit()
}
