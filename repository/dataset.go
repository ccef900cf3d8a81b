package repository

import (
	"context"
	"time"

	"github.com/datopian/flowmanager/domain"
)

// DatasetRepository implements the Dataset half of the FlowRegistry
// contract (spec.md §4.B).
type DatasetRepository interface {
	// FormatIdentifier slash-joins its arguments deterministically, with
	// no escaping (spec.md §4.B format_identifier).
	FormatIdentifier(parts ...any) string

	// CreateOrUpdateDataset inserts a new Dataset (setting CreatedAt :=
	// updatedAt) or updates owner/spec/updatedAt in place, and returns the
	// resulting row.
	CreateOrUpdateDataset(ctx context.Context, identifier, owner string, spec domain.Spec, updatedAt time.Time) (*domain.Dataset, error)

	GetDataset(ctx context.Context, identifier string) (*domain.Dataset, error)

	// UpdateDatasetSchedule reads the current ScheduledFor, computes the
	// next slot via schedule.CalculateNext and writes it back.
	UpdateDatasetSchedule(ctx context.Context, identifier string, period *int, now time.Time) error

	// GetExpiredDatasets returns all datasets with ScheduledFor <= now.
	GetExpiredDatasets(ctx context.Context, now time.Time) ([]*domain.Dataset, error)

	// CountDatasetsForOwner supports the submission service's quota check.
	CountDatasetsForOwner(ctx context.Context, ownerID string) (int, error)
}
