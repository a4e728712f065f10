package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shiftsentry/attendance-backend/internal/domain/schedule"
	apperrors "github.com/shiftsentry/attendance-backend/internal/domain/errors"
	"github.com/shiftsentry/attendance-backend/internal/infrastructure/database"
)

// ScheduleRepository reads rostering state from postgres. It backs the
// admission chain, shift resolution for the detection heuristics, and
// display-name lookups for broadcast enrichment.
type ScheduleRepository struct {
	db *database.Pool

	// grace widens shift windows when matching an event instant to a
	// shift, mirroring the admission chain's grace policy.
	grace time.Duration
}

func NewScheduleRepository(db *database.Pool, grace time.Duration) *ScheduleRepository {
	return &ScheduleRepository{db: db, grace: grace}
}

func (r *ScheduleRepository) ActiveAssignment(ctx context.Context, entityID, siteID uuid.UUID) (*schedule.Assignment, error) {
	ctx, cancel := r.db.QueryContext(ctx)
	defer cancel()

	var a schedule.Assignment
	err := r.db.QueryRow(ctx, `
		SELECT id, entity_id, site_id, active, effective_from, effective_until
		FROM assignments
		WHERE entity_id = $1 AND site_id = $2 AND active
		ORDER BY effective_from DESC
		LIMIT 1
	`, entityID, siteID).Scan(
		&a.ID, &a.EntityID, &a.SiteID, &a.Active, &a.EffectiveFrom, &a.EffectiveUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("querying assignment").WithCause(err)
	}
	return &a, nil
}

func (r *ScheduleRepository) ShiftByID(ctx context.Context, shiftID uuid.UUID) (*schedule.Shift, error) {
	ctx, cancel := r.db.QueryContext(ctx)
	defer cancel()

	s, err := scanShift(r.db.QueryRow(ctx, `
		SELECT id, entity_id, site_id, post_id, starts_at, ends_at, tz_offset_minutes
		FROM shifts WHERE id = $1
	`, shiftID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("querying shift").WithCause(err)
	}
	return s, nil
}

// ShiftFor fetches the entity's shifts starting near the instant and matches
// the graced window in process, because overnight shifts normalize their end
// across midnight and that normalization lives on the domain type.
func (r *ScheduleRepository) ShiftFor(ctx context.Context, entityID, siteID uuid.UUID, at time.Time) (*schedule.Shift, error) {
	ctx, cancel := r.db.QueryContext(ctx)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT id, entity_id, site_id, post_id, starts_at, ends_at, tz_offset_minutes
		FROM shifts
		WHERE entity_id = $1 AND site_id = $2
		  AND starts_at BETWEEN $3 AND $4
		ORDER BY starts_at
	`, entityID, siteID, at.Add(-36*time.Hour), at.Add(36*time.Hour))
	if err != nil {
		return nil, apperrors.NewInternalError("querying shifts").WithCause(err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanShift(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("scanning shift").WithCause(err)
		}
		if s.InWindow(at, r.grace) {
			return s, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("iterating shifts").WithCause(err)
	}
	return nil, nil
}

func (r *ScheduleRepository) Post(ctx context.Context, postID uuid.UUID) (*schedule.Post, error) {
	ctx, cancel := r.db.QueryContext(ctx)
	defer cancel()

	var p schedule.Post
	err := r.db.QueryRow(ctx, `
		SELECT id, site_id, name, latitude, longitude, radius_meters,
		       orders_version, required_certifications
		FROM posts WHERE id = $1
	`, postID).Scan(
		&p.ID, &p.SiteID, &p.Name, &p.Latitude, &p.Longitude, &p.RadiusMeters,
		&p.OrdersVersion, &p.RequiredCertifications)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("querying post").WithCause(err)
	}
	return &p, nil
}

func (r *ScheduleRepository) IsRostered(ctx context.Context, entityID, postID uuid.UUID, at time.Time) (bool, error) {
	ctx, cancel := r.db.QueryContext(ctx)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT id, entity_id, site_id, post_id, starts_at, ends_at, tz_offset_minutes
		FROM shifts
		WHERE entity_id = $1 AND post_id = $2
		  AND starts_at BETWEEN $3 AND $4
	`, entityID, postID, at.Add(-36*time.Hour), at.Add(36*time.Hour))
	if err != nil {
		return false, apperrors.NewInternalError("querying roster").WithCause(err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanShift(rows)
		if err != nil {
			return false, apperrors.NewInternalError("scanning shift").WithCause(err)
		}
		if s.InWindow(at, r.grace) {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (r *ScheduleRepository) Certifications(ctx context.Context, entityID uuid.UUID) (schedule.CertificationSet, error) {
	ctx, cancel := r.db.QueryContext(ctx)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT code, COALESCE(expires_at, 'epoch'::timestamptz)
		FROM certifications WHERE entity_id = $1
	`, entityID)
	if err != nil {
		return nil, apperrors.NewInternalError("querying certifications").WithCause(err)
	}
	defer rows.Close()

	set := make(schedule.CertificationSet)
	for rows.Next() {
		var code string
		var expiry time.Time
		if err := rows.Scan(&code, &expiry); err != nil {
			return nil, apperrors.NewInternalError("scanning certification").WithCause(err)
		}
		// Epoch stands in for NULL: a credential that does not expire.
		if expiry.Unix() == 0 {
			expiry = time.Time{}
		}
		set[code] = expiry
	}
	return set, rows.Err()
}

func (r *ScheduleRepository) OrdersAcknowledgement(ctx context.Context, entityID, postID uuid.UUID) (*schedule.OrdersAcknowledgement, error) {
	ctx, cancel := r.db.QueryContext(ctx)
	defer cancel()

	var ack schedule.OrdersAcknowledgement
	err := r.db.QueryRow(ctx, `
		SELECT entity_id, post_id, version, acknowledged_at
		FROM orders_acknowledgements
		WHERE entity_id = $1 AND post_id = $2
		ORDER BY version DESC
		LIMIT 1
	`, entityID, postID).Scan(&ack.EntityID, &ack.PostID, &ack.Version, &ack.AcknowledgedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("querying acknowledgement").WithCause(err)
	}
	return &ack, nil
}

// EntityName resolves a display name for broadcast enrichment.
func (r *ScheduleRepository) EntityName(ctx context.Context, entityID uuid.UUID) (string, error) {
	return r.directoryName(ctx, "entities", entityID)
}

// SiteName resolves a site display name for broadcast enrichment.
func (r *ScheduleRepository) SiteName(ctx context.Context, siteID uuid.UUID) (string, error) {
	return r.directoryName(ctx, "sites", siteID)
}

func (r *ScheduleRepository) directoryName(ctx context.Context, table string, id uuid.UUID) (string, error) {
	ctx, cancel := r.db.QueryContext(ctx)
	defer cancel()

	var name string
	var err error
	switch table {
	case "entities":
		err = r.db.QueryRow(ctx, `SELECT name FROM entities WHERE id = $1`, id).Scan(&name)
	case "sites":
		err = r.db.QueryRow(ctx, `SELECT name FROM sites WHERE id = $1`, id).Scan(&name)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperrors.NewNotFoundError(table)
	}
	if err != nil {
		return "", apperrors.NewInternalError("querying directory").WithCause(err)
	}
	return name, nil
}

func scanShift(row pgx.Row) (*schedule.Shift, error) {
	var s schedule.Shift
	err := row.Scan(&s.ID, &s.EntityID, &s.SiteID, &s.PostID,
		&s.StartsAt, &s.EndsAt, &s.TZOffsetMinutes)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
