package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datopian/flowmanager/domain"
)

// RevisionRepository is the DatasetRevision half of FlowRegistry (spec.md §4.B).
type RevisionRepository struct {
	pool *pgxpool.Pool
}

func NewRevisionRepository(pool *pgxpool.Pool) *RevisionRepository {
	return &RevisionRepository{pool: pool}
}

func (r *RevisionRepository) CreateRevision(ctx context.Context, datasetID string, now time.Time, status domain.RevisionStatus, errs []string) (*domain.Revision, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var nextRevision int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(revision), 0) + 1 FROM revisions WHERE dataset_id = $1`,
		datasetID,
	).Scan(&nextRevision)
	if err != nil {
		return nil, fmt.Errorf("compute next revision: %w", err)
	}

	// revision_id must equal flow_id (spec.md §3, GLOSSARY): both are
	// FormatIdentifier(datasetID, revision), the same value the submission
	// service stamps onto every pipeline's flow_id.
	revisionID := fmt.Sprintf("%s/%d", datasetID, nextRevision)

	row := tx.QueryRow(ctx, `
		INSERT INTO revisions (revision_id, dataset_id, revision, status, errors, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING revision_id, dataset_id, revision, status, errors, stats, logs, pipelines, created_at, updated_at`,
		revisionID, datasetID, nextRevision, status, errs, now,
	)

	rev, err := scanRevision(row)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return rev, nil
}

func (r *RevisionRepository) GetRevision(ctx context.Context, datasetID string, which domain.RevisionSelector) (*domain.Revision, error) {
	var query string
	args := []any{datasetID}

	switch {
	case which.IsLatest():
		query = `
			SELECT revision_id, dataset_id, revision, status, errors, stats, logs, pipelines, created_at, updated_at
			FROM revisions WHERE dataset_id = $1 ORDER BY revision DESC LIMIT 1`
	case which.IsSuccessful():
		query = `
			SELECT revision_id, dataset_id, revision, status, errors, stats, logs, pipelines, created_at, updated_at
			FROM revisions WHERE dataset_id = $1 AND status = $2 ORDER BY revision DESC LIMIT 1`
		args = append(args, domain.StatusSuccess)
	default:
		n, _ := which.Int()
		query = `
			SELECT revision_id, dataset_id, revision, status, errors, stats, logs, pipelines, created_at, updated_at
			FROM revisions WHERE dataset_id = $1 AND revision = $2`
		args = append(args, n)
	}

	row := r.pool.QueryRow(ctx, query, args...)
	return scanRevision(row)
}

func (r *RevisionRepository) GetRevisionByID(ctx context.Context, revisionID string) (*domain.Revision, error) {
	query := `
		SELECT revision_id, dataset_id, revision, status, errors, stats, logs, pipelines, created_at, updated_at
		FROM revisions WHERE revision_id = $1`
	row := r.pool.QueryRow(ctx, query, revisionID)
	return scanRevision(row)
}

// UpdateRevision reads the row FOR UPDATE, merges patch onto it with mergo
// (override semantics: only non-zero patch fields replace stored values),
// writes it back, and returns the merged row — all inside one transaction,
// so a concurrent update of the same revision row cannot slip in between
// the read and the write (spec.md §5).
func (r *RevisionRepository) UpdateRevision(ctx context.Context, revisionID string, patch domain.RevisionPatch) (*domain.Revision, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		SELECT revision_id, dataset_id, revision, status, errors, stats, logs, pipelines, created_at, updated_at
		FROM revisions WHERE revision_id = $1 FOR UPDATE`, revisionID)
	current, err := scanRevision(row)
	if err != nil {
		return nil, err
	}

	merged, err := patch.Apply(*current)
	if err != nil {
		return nil, fmt.Errorf("merge revision patch: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE revisions
		SET status = $2, errors = $3, stats = $4, logs = $5, pipelines = $6, updated_at = $7
		WHERE revision_id = $1`,
		revisionID, merged.Status, merged.Errors, merged.Stats, merged.Logs, merged.Pipelines, merged.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("write revision patch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &merged, nil
}

func scanRevision(row rowScanner) (*domain.Revision, error) {
	var rev domain.Revision
	err := row.Scan(
		&rev.RevisionID, &rev.DatasetID, &rev.Revision, &rev.Status,
		&rev.Errors, &rev.Stats, &rev.Logs, &rev.Pipelines,
		&rev.CreatedAt, &rev.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRevisionNotFound
		}
		return nil, fmt.Errorf("scan revision: %w", err)
	}
	return &rev, nil
}
