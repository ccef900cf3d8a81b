package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/datopian/flowmanager/domain"
	"github.com/datopian/flowmanager/external"
	"github.com/datopian/flowmanager/flowlock"
	"github.com/datopian/flowmanager/internal/metrics"
	"github.com/datopian/flowmanager/repository"
)

// PipelineEvent is one raw callback from the runner, or a synthesized
// cascade event (spec.md §4.D).
type PipelineEvent struct {
	PipelineID string
	State      string // QUEUED | INPROGRESS | SUCCESS | FAILED, or other progress value
	Errors     []string
	Stats      map[string]any
	Logs       []string
}

// UpdateResult mirrors spec.md §4.D's {status, id, errors} return value.
// A zero-valued Status/FlowID means "pipeline not found".
type UpdateResult struct {
	Status domain.RevisionStatus
	FlowID string
	Errors []string
}

// StatusReducer applies pipeline-status callbacks, cascades dependency
// failures, recomputes the flow status, and fans out terminal-flow side
// effects (spec.md §4.D).
type StatusReducer struct {
	datasets  repository.DatasetRepository
	revisions repository.RevisionRepository
	pipelines repository.PipelineRepository

	locks  *flowlock.Table
	fanout *FailureFanout

	logger *slog.Logger
}

func NewStatusReducer(
	datasets repository.DatasetRepository,
	revisions repository.RevisionRepository,
	pipelines repository.PipelineRepository,
	locks *flowlock.Table,
	fanout *FailureFanout,
	logger *slog.Logger,
) *StatusReducer {
	return &StatusReducer{
		datasets:  datasets,
		revisions: revisions,
		pipelines: pipelines,
		locks:     locks,
		fanout:    fanout,
		logger:    logger.With("component", "reducer"),
	}
}

// Update is the public entry point. It resolves the event's flow, takes
// the per-flow lock (spec.md §5 "Required: per-flow mutual exclusion"),
// and applies the event; any cascade triggered by this event reuses the
// already-held lock via applyLocked rather than re-entering Update, since
// sync.Mutex is not reentrant.
func (r *StatusReducer) Update(ctx context.Context, event PipelineEvent) (UpdateResult, error) {
	start := time.Now()
	defer func() { metrics.ReducerDuration.Observe(time.Since(start).Seconds()) }()

	pipelineID := domain.StripPipelinePrefix(event.PipelineID)

	flowID, err := r.pipelines.GetFlowID(ctx, pipelineID)
	if err != nil {
		if errors.Is(err, domain.ErrPipelineNotFound) {
			return UpdateResult{Errors: []string{"pipeline not found"}}, nil
		}
		return UpdateResult{}, fmt.Errorf("resolve flow for pipeline %s: %w", pipelineID, err)
	}

	unlock := r.locks.Lock(flowID)
	defer unlock()

	return r.applyLocked(ctx, flowID, pipelineID, event)
}

// handleCallback adapts Update to the external.StatusCallback shape so
// the runner adapter can invoke it directly (spec.md §6, Runner contract).
func (r *StatusReducer) handleCallback(ctx context.Context, pipelineID string, state string, errs []string, stats map[string]any) {
	if _, err := r.Update(ctx, PipelineEvent{PipelineID: pipelineID, State: state, Errors: errs, Stats: stats}); err != nil {
		r.logger.ErrorContext(ctx, "status callback failed", "pipeline_id", pipelineID, "error", err)
	}
}

func derivePipelineStatus(state string) domain.RevisionStatus {
	switch state {
	case "QUEUED", "queue":
		return domain.StatusPending
	case "SUCCESS", "SUCCEEDED":
		return domain.StatusSuccess
	case "FAILED", "FAILURE":
		return domain.StatusFailed
	default:
		return domain.StatusRunning
	}
}

func (r *StatusReducer) applyLocked(ctx context.Context, flowID, pipelineID string, event PipelineEvent) (UpdateResult, error) {
	status := derivePipelineStatus(event.State)
	now := time.Now()

	existed, err := r.pipelines.UpdatePipeline(ctx, pipelineID, domain.PipelinePatch{
		Status:    status,
		Errors:    event.Errors,
		Stats:     event.Stats,
		Logs:      event.Logs,
		UpdatedAt: now,
	})
	if err != nil {
		return UpdateResult{}, fmt.Errorf("patch pipeline %s: %w", pipelineID, err)
	}
	if !existed {
		return UpdateResult{Errors: []string{"pipeline not found"}}, nil
	}

	if status == domain.StatusFailed {
		r.cascade(ctx, flowID, pipelineID)
	}

	flowStatus, err := r.pipelines.CheckFlowStatus(ctx, flowID)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("check flow status %s: %w", flowID, err)
	}

	pipeline, err := r.pipelines.GetPipeline(ctx, pipelineID)
	if errors.Is(err, domain.ErrPipelineNotFound) {
		// A cascade triggered by this same event already drove the flow
		// terminal and deleted its pipeline rows (spec.md §4.D steps 2, 6).
		// flowStatus above was just computed over an empty pipeline set and
		// is unreliable; the revision row the inner call wrote holds the
		// real outcome, so report that instead of re-running terminal
		// side effects a second time.
		rev, revErr := r.revisions.GetRevisionByID(ctx, flowID)
		if revErr != nil {
			return UpdateResult{}, fmt.Errorf("load revision %s: %w", flowID, revErr)
		}
		return UpdateResult{Status: rev.Status, FlowID: flowID, Errors: rev.Errors}, nil
	}
	if err != nil {
		return UpdateResult{}, fmt.Errorf("reload pipeline %s: %w", pipelineID, err)
	}

	revision, err := r.revisions.GetRevisionByID(ctx, flowID)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("load revision %s: %w", flowID, err)
	}

	snapshot := make(map[string]domain.PipelineSnapshot, len(revision.Pipelines)+1)
	for k, v := range revision.Pipelines {
		snapshot[k] = v
	}
	snapshot[pipelineID] = domain.PipelineSnapshot{
		Title:    pipeline.Title,
		Status:   domain.ToSnapshotStatus(status),
		Stats:    pipeline.Stats,
		ErrorLog: pipeline.Errors,
	}

	updatedRevision, err := r.revisions.UpdateRevision(ctx, flowID, domain.RevisionPatch{
		Status:    flowStatus,
		Errors:    event.Errors,
		Stats:     event.Stats,
		Logs:      event.Logs,
		Pipelines: snapshot,
		UpdatedAt: now,
	})
	if err != nil {
		return UpdateResult{}, fmt.Errorf("update revision %s: %w", flowID, err)
	}

	if flowStatus == domain.StatusSuccess || flowStatus == domain.StatusFailed {
		r.onTerminal(ctx, flowID, revision.DatasetID, flowStatus, updatedRevision.Errors)
	}

	return UpdateResult{Status: flowStatus, FlowID: flowID, Errors: event.Errors}, nil
}

// cascade implements spec.md §4.D step 2: every still-pending pipeline in
// the flow that depends on the failed pipeline is synthesized a FAILED
// event and recursively reduced under the lock this call already holds.
func (r *StatusReducer) cascade(ctx context.Context, flowID, failedPipelineID string) {
	pending, err := r.pipelines.ListPipelinesByFlowAndStatus(ctx, flowID, domain.StatusPending)
	if err != nil {
		r.logger.ErrorContext(ctx, "cascade: list pending pipelines failed", "flow_id", flowID, "error", err)
		return
	}

	// Preserved verbatim: the original concatenates the two literals
	// without a separator ("successfully" + "executed").
	msg := fmt.Sprintf(`Dependency unsuccessful. Cannot run until dependency "%s" is successfullyexecuted`, failedPipelineID)

	for _, p := range pending {
		for _, dep := range p.PipelineDetails.Dependencies() {
			if dep.Pipeline == failedPipelineID {
				metrics.CascadeFailuresTotal.Inc()
				if _, err := r.applyLocked(ctx, flowID, p.PipelineID, PipelineEvent{
					State:  "FAILED",
					Errors: []string{msg},
				}); err != nil {
					r.logger.ErrorContext(ctx, "cascade: apply failed", "flow_id", flowID, "pipeline_id", p.PipelineID, "error", err)
				}
				break
			}
		}
	}
}

// onTerminal implements spec.md §4.D steps 6-7: pipeline rows are
// deleted, a terminal event is emitted, a failure incident is raised if
// needed, and the descriptor/search-index fanout is queued. The row
// deletion and the dataset lookup run in this call; the event, incident
// and index work is only enqueued, since FailureFanout runs on its own
// goroutine.
func (r *StatusReducer) onTerminal(ctx context.Context, flowID, datasetIdentifier string, flowStatus domain.RevisionStatus, errs []string) {
	metrics.FlowsTerminatedTotal.WithLabelValues(string(flowStatus)).Inc()

	if err := r.pipelines.DeletePipelines(ctx, flowID); err != nil {
		r.logger.ErrorContext(ctx, "delete pipelines failed", "flow_id", flowID, "error", err)
	}

	dataset, err := r.datasets.GetDataset(ctx, datasetIdentifier)
	if err != nil {
		r.logger.ErrorContext(ctx, "load dataset for terminal event failed", "dataset_id", datasetIdentifier, "error", err)
		return
	}

	outcome := "OK"
	findability := "private"
	if flowStatus == domain.StatusSuccess {
		if dataset.Spec.Findability() == "published" {
			findability = "published"
		}
	} else {
		outcome = "FAIL"
	}

	ownerID, _ := dataset.Spec.OwnerID()
	r.fanout.EnqueueEvent(external.EventRecord{
		Source:      "flow",
		Event:       "finish",
		Outcome:     outcome,
		Findability: findability,
		Actor:       dataset.Spec.Owner(),
		Dataset:     dataset.Spec.DatasetName(),
		Owner:       dataset.Owner,
		OwnerID:     ownerID,
		FlowID:      flowID,
	})

	if flowStatus == domain.StatusFailed {
		r.fanout.EnqueueIncident(external.Incident{
			Title:  fmt.Sprintf("flow %s failed", flowID),
			Owner:  dataset.Owner,
			Errors: errs,
		})
	}

	indexNeeded := flowStatus == domain.StatusSuccess
	if !indexNeeded {
		_, err := r.revisions.GetRevision(ctx, datasetIdentifier, domain.Successful())
		indexNeeded = errors.Is(err, domain.ErrRevisionNotFound)
	}
	if indexNeeded {
		r.fanout.EnqueueDescriptorIndex(flowID, datasetIdentifier)
	}
}
