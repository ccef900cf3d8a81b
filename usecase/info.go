package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/datopian/flowmanager/domain"
	"github.com/datopian/flowmanager/repository"
)

// RevisionInfo mirrors spec.md §4.F's info() return shape.
type RevisionInfo struct {
	ID          string
	SpecContents domain.Spec
	Modified    time.Time
	State       domain.PipelineSnapshotStatus
	ErrorLog    []string
	Logs        []string
	Stats       map[string]any
	Pipelines   map[string]domain.PipelineSnapshot
	Certified   bool
}

// InfoReader implements spec.md §4.F: a read-only projection of a
// revision for external consumers.
type InfoReader struct {
	datasets  repository.DatasetRepository
	revisions repository.RevisionRepository
}

func NewInfoReader(datasets repository.DatasetRepository, revisions repository.RevisionRepository) *InfoReader {
	return &InfoReader{datasets: datasets, revisions: revisions}
}

func (r *InfoReader) Info(ctx context.Context, owner, datasetName string, which domain.RevisionSelector) (RevisionInfo, error) {
	datasetID := r.datasets.FormatIdentifier(owner, datasetName)

	dataset, err := r.datasets.GetDataset(ctx, datasetID)
	if err != nil {
		return RevisionInfo{}, fmt.Errorf("load dataset %s: %w", datasetID, err)
	}

	revision, err := r.revisions.GetRevision(ctx, datasetID, which)
	if err != nil {
		return RevisionInfo{}, fmt.Errorf("load revision for %s: %w", datasetID, err)
	}

	pipelines := revision.Pipelines
	if pipelines == nil {
		pipelines = map[string]domain.PipelineSnapshot{}
	}

	return RevisionInfo{
		ID:           revision.RevisionID,
		SpecContents: dataset.Spec,
		Modified:     dataset.UpdatedAt,
		State:        domain.ToSnapshotStatus(revision.Status),
		ErrorLog:     revision.Errors,
		Logs:         revision.Logs,
		Stats:        revision.Stats,
		Pipelines:    pipelines,
		Certified:    dataset.Certified,
	}, nil
}
