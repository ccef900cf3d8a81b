package repository

import (
	"context"
	"time"

	"github.com/datopian/flowmanager/domain"
)

// RevisionRepository implements the DatasetRevision half of the
// FlowRegistry contract (spec.md §4.B).
type RevisionRepository interface {
	// CreateRevision allocates revision := 1 + max(revision) for this
	// dataset, or 1 if none exists, and inserts the row. status must be
	// one of domain's four RevisionStatus values.
	CreateRevision(ctx context.Context, datasetID string, now time.Time, status domain.RevisionStatus, errs []string) (*domain.Revision, error)

	// GetRevision resolves "latest"/"successful"/exact-int selectors.
	// Returns domain.ErrRevisionNotFound if none match.
	GetRevision(ctx context.Context, datasetID string, which domain.RevisionSelector) (*domain.Revision, error)

	// GetRevisionByID looks a revision up directly by its revision_id
	// (== flow_id), used by the status reducer.
	GetRevisionByID(ctx context.Context, revisionID string) (*domain.Revision, error)

	// UpdateRevision applies patch to the row inside a single transaction
	// and returns the updated row.
	UpdateRevision(ctx context.Context, revisionID string, patch domain.RevisionPatch) (*domain.Revision, error)
}
