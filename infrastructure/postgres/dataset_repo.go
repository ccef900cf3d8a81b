package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datopian/flowmanager/domain"
)

// DatasetRepository is the Dataset half of FlowRegistry (spec.md §4.B).
// spec/stats/pipelines jsonb columns are handed Go maps directly — pgx's
// default json/jsonb codec marshals and unmarshals them without any
// explicit json.Marshal call on our part.
type DatasetRepository struct {
	pool *pgxpool.Pool
}

func NewDatasetRepository(pool *pgxpool.Pool) *DatasetRepository {
	return &DatasetRepository{pool: pool}
}

// FormatIdentifier slash-joins its arguments with no escaping, mirroring
// flowmanager's format_identifier (spec.md §4.B).
func (r *DatasetRepository) FormatIdentifier(parts ...any) string {
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = fmt.Sprint(p)
	}
	return strings.Join(strs, "/")
}

func (r *DatasetRepository) CreateOrUpdateDataset(ctx context.Context, identifier, owner string, spec domain.Spec, updatedAt time.Time) (*domain.Dataset, error) {
	query := `
		INSERT INTO datasets (identifier, owner, spec, created_at, updated_at, certified)
		VALUES ($1, $2, $3, $4, $4, COALESCE((SELECT certified FROM datasets WHERE identifier = $1), false))
		ON CONFLICT (identifier) DO UPDATE
		SET owner = EXCLUDED.owner, spec = EXCLUDED.spec, updated_at = EXCLUDED.updated_at
		RETURNING identifier, owner, spec, created_at, updated_at, scheduled_for, certified`

	row := r.pool.QueryRow(ctx, query, identifier, owner, spec, updatedAt)
	return scanDataset(row)
}

func (r *DatasetRepository) GetDataset(ctx context.Context, identifier string) (*domain.Dataset, error) {
	query := `
		SELECT identifier, owner, spec, created_at, updated_at, scheduled_for, certified
		FROM datasets
		WHERE identifier = $1`
	row := r.pool.QueryRow(ctx, query, identifier)
	return scanDataset(row)
}

func (r *DatasetRepository) UpdateDatasetSchedule(ctx context.Context, identifier string, period *int, now time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current *time.Time
	err = tx.QueryRow(ctx, `SELECT scheduled_for FROM datasets WHERE identifier = $1 FOR UPDATE`, identifier).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrDatasetNotFound
		}
		return fmt.Errorf("lock dataset: %w", err)
	}

	next := scheduleNext(current, period, now)

	if _, err := tx.Exec(ctx, `UPDATE datasets SET scheduled_for = $2, updated_at = $3 WHERE identifier = $1`, identifier, next, now); err != nil {
		return fmt.Errorf("advance schedule: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *DatasetRepository) GetExpiredDatasets(ctx context.Context, now time.Time) ([]*domain.Dataset, error) {
	query := `
		SELECT identifier, owner, spec, created_at, updated_at, scheduled_for, certified
		FROM datasets
		WHERE scheduled_for IS NOT NULL AND scheduled_for <= $1
		ORDER BY scheduled_for ASC`
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list expired datasets: %w", err)
	}
	defer rows.Close()

	var out []*domain.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *DatasetRepository) CountDatasetsForOwner(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM datasets WHERE spec -> 'meta' ->> 'ownerid' = $1`, ownerID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count datasets for owner: %w", err)
	}
	return n, nil
}

func scanDataset(row rowScanner) (*domain.Dataset, error) {
	var d domain.Dataset
	err := row.Scan(&d.Identifier, &d.Owner, &d.Spec, &d.CreatedAt, &d.UpdatedAt, &d.ScheduledFor, &d.Certified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDatasetNotFound
		}
		return nil, fmt.Errorf("scan dataset: %w", err)
	}
	return &d, nil
}
