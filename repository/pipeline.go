package repository

import (
	"context"

	"github.com/datopian/flowmanager/domain"
)

// PipelineRepository implements the Pipeline half of the FlowRegistry
// contract (spec.md §4.B), including the check_flow_status aggregation.
type PipelineRepository interface {
	SavePipeline(ctx context.Context, p *domain.Pipeline) error
	GetPipeline(ctx context.Context, pipelineID string) (*domain.Pipeline, error)

	// GetFlowID looks up the flow a pipeline belongs to, without fetching
	// the full row.
	GetFlowID(ctx context.Context, pipelineID string) (string, error)

	ListPipelinesByFlow(ctx context.Context, flowID string) ([]*domain.Pipeline, error)
	ListPipelinesByFlowAndStatus(ctx context.Context, flowID string, status domain.RevisionStatus) ([]*domain.Pipeline, error)

	// UpdatePipeline reports whether the row existed and was updated.
	UpdatePipeline(ctx context.Context, pipelineID string, patch domain.PipelinePatch) (bool, error)

	DeletePipelines(ctx context.Context, flowID string) error

	// CheckFlowStatus implements the presence-set aggregation rule of
	// spec.md §4.B exactly.
	CheckFlowStatus(ctx context.Context, flowID string) (domain.RevisionStatus, error)
}
