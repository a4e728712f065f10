package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shiftsentry/attendance-backend/internal/domain/alert"
	apperrors "github.com/shiftsentry/attendance-backend/internal/domain/errors"
	"github.com/shiftsentry/attendance-backend/internal/infrastructure/database"
)

// AlertRepository persists alert records in postgres. A partial unique index
// over (tenant_id, entity_id, category) WHERE status <> closed enforces the
// one-open-alert-per-key invariant at the storage layer; Update is
// compare-and-swap on version.
type AlertRepository struct {
	db *database.Pool
}

func NewAlertRepository(db *database.Pool) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, tenant_id, entity_id, site_id, category, severity,
	status, finding_count, last_score, created_at, updated_at, version`

func (r *AlertRepository) OpenByKey(ctx context.Context, key alert.CorrelationKey) (*alert.Record, error) {
	ctx, cancel := r.db.QueryContext(ctx)
	defer cancel()

	rec, err := scanAlert(r.db.QueryRow(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		WHERE tenant_id = $1 AND entity_id = $2 AND category = $3
		  AND status <> $4
	`, key.TenantID, key.EntityID, key.Category, alert.StatusClosed))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("querying open alert").WithCause(err)
	}
	return rec, nil
}

func (r *AlertRepository) Get(ctx context.Context, id uuid.UUID) (*alert.Record, error) {
	ctx, cancel := r.db.QueryContext(ctx)
	defer cancel()

	rec, err := scanAlert(r.db.QueryRow(ctx, `
		SELECT `+alertColumns+` FROM alerts WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("querying alert").WithCause(err)
	}
	return rec, nil
}

func (r *AlertRepository) Create(ctx context.Context, rec *alert.Record) error {
	ctx, cancel := r.db.QueryContext(ctx)
	defer cancel()

	_, err := r.db.Exec(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, rec.ID, rec.TenantID, rec.EntityID, rec.SiteID, rec.Category,
		rec.Severity, rec.Status, rec.Count, rec.LastScore,
		rec.CreatedAt, rec.UpdatedAt, rec.Version)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperrors.ErrOpenAlertExists
	}
	if err != nil {
		return apperrors.NewInternalError("inserting alert").WithCause(err)
	}
	return nil
}

func (r *AlertRepository) Update(ctx context.Context, rec *alert.Record) error {
	ctx, cancel := r.db.QueryContext(ctx)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE alerts
		SET severity = $1, status = $2, finding_count = $3, last_score = $4,
		    updated_at = $5, version = version + 1
		WHERE id = $6 AND version = $7
	`, rec.Severity, rec.Status, rec.Count, rec.LastScore,
		rec.UpdatedAt, rec.ID, rec.Version)
	if err != nil {
		return apperrors.NewInternalError("updating alert").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrVersionConflict
	}
	rec.Version++
	return nil
}

func (r *AlertRepository) OpenRecords(ctx context.Context) ([]*alert.Record, error) {
	ctx, cancel := r.db.QueryContext(ctx)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT `+alertColumns+` FROM alerts WHERE status <> $1
	`, alert.StatusClosed)
	if err != nil {
		return nil, apperrors.NewInternalError("querying open alerts").WithCause(err)
	}
	defer rows.Close()

	var records []*alert.Record
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("scanning alert").WithCause(err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanAlert(row pgx.Row) (*alert.Record, error) {
	var rec alert.Record
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.EntityID, &rec.SiteID,
		&rec.Category, &rec.Severity, &rec.Status, &rec.Count,
		&rec.LastScore, &rec.CreatedAt, &rec.UpdatedAt, &rec.Version)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
