package domain

import "time"

// PipelineSnapshot is one entry of a DatasetRevision's materialized
// "pipelines" projection (spec.md §3, §4.D step 4).
type PipelineSnapshot struct {
	Title    string                 `json:"title"`
	Status   PipelineSnapshotStatus `json:"status"`
	Stats    map[string]any         `json:"stats,omitempty"`
	ErrorLog []string               `json:"error_log,omitempty"`
}

// Revision is one submission of a dataset (spec.md §3, "DatasetRevision").
type Revision struct {
	RevisionID string                      `json:"revision_id"`
	DatasetID  string                      `json:"dataset_id"`
	Revision   int                         `json:"revision"`
	Status     RevisionStatus              `json:"status"`
	Errors     []string                    `json:"errors,omitempty"`
	Stats      map[string]any              `json:"stats,omitempty"`
	Logs       []string                    `json:"logs,omitempty"`
	Pipelines  map[string]PipelineSnapshot `json:"pipelines,omitempty"`
	CreatedAt  time.Time                   `json:"created_at"`
	UpdatedAt  time.Time                   `json:"updated_at"`
}

// RevisionPatch is a partial update applied by UpdateRevision (spec.md §4.B).
// Zero/nil fields are left untouched when merged onto the stored row with
// mergo.WithOverride: it only overwrites a destination field when the
// corresponding source field is non-zero.
type RevisionPatch struct {
	Status    RevisionStatus              `json:"status,omitempty"`
	Errors    []string                    `json:"errors,omitempty"`
	Stats     map[string]any              `json:"stats,omitempty"`
	Logs      []string                    `json:"logs,omitempty"`
	Pipelines map[string]PipelineSnapshot `json:"pipelines,omitempty"`
	UpdatedAt time.Time                   `json:"updated_at,omitempty"`
}

// Apply merges patch onto a copy of rev using mergo's override-if-nonzero
// semantics and returns the merged result (spec.md §4.B, UpdateRevision).
func (patch RevisionPatch) Apply(rev Revision) (Revision, error) {
	src := Revision{
		Status:    patch.Status,
		Errors:    patch.Errors,
		Stats:     patch.Stats,
		Logs:      patch.Logs,
		Pipelines: patch.Pipelines,
		UpdatedAt: patch.UpdatedAt,
	}
	if err := mergeRevision(&rev, src); err != nil {
		return Revision{}, err
	}
	return rev, nil
}
