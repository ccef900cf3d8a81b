package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datopian/flowmanager/domain"
)

// PipelineRepository is the Pipeline half of FlowRegistry (spec.md §4.B),
// including the check_flow_status aggregation.
type PipelineRepository struct {
	pool *pgxpool.Pool
}

func NewPipelineRepository(pool *pgxpool.Pool) *PipelineRepository {
	return &PipelineRepository{pool: pool}
}

func (r *PipelineRepository) SavePipeline(ctx context.Context, p *domain.Pipeline) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO pipelines (pipeline_id, flow_id, title, pipeline_details, status, errors, stats, logs, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (pipeline_id) DO UPDATE
		SET flow_id = EXCLUDED.flow_id, title = EXCLUDED.title, pipeline_details = EXCLUDED.pipeline_details,
		    status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
		p.PipelineID, p.FlowID, p.Title, p.PipelineDetails, p.Status, p.Errors, p.Stats, p.Logs, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save pipeline: %w", err)
	}
	return nil
}

func (r *PipelineRepository) GetPipeline(ctx context.Context, pipelineID string) (*domain.Pipeline, error) {
	query := `
		SELECT pipeline_id, flow_id, title, pipeline_details, status, errors, stats, logs, created_at, updated_at
		FROM pipelines WHERE pipeline_id = $1`
	row := r.pool.QueryRow(ctx, query, pipelineID)
	return scanPipeline(row)
}

func (r *PipelineRepository) GetFlowID(ctx context.Context, pipelineID string) (string, error) {
	var flowID string
	err := r.pool.QueryRow(ctx, `SELECT flow_id FROM pipelines WHERE pipeline_id = $1`, pipelineID).Scan(&flowID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrPipelineNotFound
		}
		return "", fmt.Errorf("lookup pipeline flow: %w", err)
	}
	return flowID, nil
}

func (r *PipelineRepository) ListPipelinesByFlow(ctx context.Context, flowID string) ([]*domain.Pipeline, error) {
	return r.listByFlow(ctx, `
		SELECT pipeline_id, flow_id, title, pipeline_details, status, errors, stats, logs, created_at, updated_at
		FROM pipelines WHERE flow_id = $1`, flowID)
}

func (r *PipelineRepository) ListPipelinesByFlowAndStatus(ctx context.Context, flowID string, status domain.RevisionStatus) ([]*domain.Pipeline, error) {
	return r.listByFlow(ctx, `
		SELECT pipeline_id, flow_id, title, pipeline_details, status, errors, stats, logs, created_at, updated_at
		FROM pipelines WHERE flow_id = $1 AND status = $2`, flowID, status)
}

func (r *PipelineRepository) listByFlow(ctx context.Context, query string, args ...any) ([]*domain.Pipeline, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	defer rows.Close()

	var out []*domain.Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePipeline reads the row FOR UPDATE, merges patch via mergo, writes
// it back, and reports whether a row existed to update.
func (r *PipelineRepository) UpdatePipeline(ctx context.Context, pipelineID string, patch domain.PipelinePatch) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		SELECT pipeline_id, flow_id, title, pipeline_details, status, errors, stats, logs, created_at, updated_at
		FROM pipelines WHERE pipeline_id = $1 FOR UPDATE`, pipelineID)
	current, err := scanPipeline(row)
	if err != nil {
		if errors.Is(err, domain.ErrPipelineNotFound) {
			return false, nil
		}
		return false, err
	}

	merged, err := patch.Apply(*current)
	if err != nil {
		return false, fmt.Errorf("merge pipeline patch: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE pipelines SET status = $2, errors = $3, stats = $4, logs = $5, updated_at = $6
		WHERE pipeline_id = $1`,
		pipelineID, merged.Status, merged.Errors, merged.Stats, merged.Logs, merged.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("write pipeline patch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return true, nil
}

func (r *PipelineRepository) DeletePipelines(ctx context.Context, flowID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM pipelines WHERE flow_id = $1`, flowID)
	if err != nil {
		return fmt.Errorf("delete pipelines: %w", err)
	}
	return nil
}

// CheckFlowStatus implements the presence-set aggregation of spec.md §4.B:
// a single GROUP BY query feeds the pure domain.AggregateFlowStatus table.
func (r *PipelineRepository) CheckFlowStatus(ctx context.Context, flowID string) (domain.RevisionStatus, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, count(*) FROM pipelines WHERE flow_id = $1 GROUP BY status`, flowID)
	if err != nil {
		return "", fmt.Errorf("check flow status: %w", err)
	}
	defer rows.Close()

	var counts domain.FlowStatusCounts
	for rows.Next() {
		var status domain.RevisionStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return "", fmt.Errorf("scan flow status count: %w", err)
		}
		switch status {
		case domain.StatusRunning:
			counts.Running = n
		case domain.StatusPending:
			counts.Pending = n
		case domain.StatusSuccess:
			counts.Success = n
		case domain.StatusFailed:
			counts.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate flow status counts: %w", err)
	}
	return domain.AggregateFlowStatus(counts), nil
}

func scanPipeline(row rowScanner) (*domain.Pipeline, error) {
	var p domain.Pipeline
	err := row.Scan(
		&p.PipelineID, &p.FlowID, &p.Title, &p.PipelineDetails, &p.Status,
		&p.Errors, &p.Stats, &p.Logs, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPipelineNotFound
		}
		return nil, fmt.Errorf("scan pipeline: %w", err)
	}
	return &p, nil
}
