package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/datopian/flowmanager/domain"
	"github.com/datopian/flowmanager/external"
	"github.com/datopian/flowmanager/internal/metrics"
	"github.com/datopian/flowmanager/repository"
	"github.com/datopian/flowmanager/schedule"
)

// DefaultAllowedTypes is the planner whitelist of spec.md §4.C step 6,
// including "original" per SPEC_FULL.md's supplemented feature 2.
var DefaultAllowedTypes = []string{
	"derived/report",
	"derived/csv",
	"derived/json",
	"derived/zip",
	"derived/preview",
	"source/tabular",
	"source/non-tabular",
	"original",
}

// UploadResult mirrors spec.md §4.C's {success, dataset_id, flow_id, errors}.
type UploadResult struct {
	Success   bool
	DatasetID string
	FlowID    string
	Errors    []string
}

// SubmissionService implements spec.md §4.C: auth + quota check, plan,
// persist, dispatch.
type SubmissionService struct {
	datasets  repository.DatasetRepository
	revisions repository.RevisionRepository
	pipelines repository.PipelineRepository

	verifyer external.Verifyer
	planner  external.Planner
	runner   external.Runner
	fanout   *FailureFanout
	reducer  *StatusReducer

	allowedTypes []string
	verbosity    int

	runnerRefreshURL string
	httpClient       *http.Client

	logger *slog.Logger
}

func NewSubmissionService(
	datasets repository.DatasetRepository,
	revisions repository.RevisionRepository,
	pipelines repository.PipelineRepository,
	verifyer external.Verifyer,
	planner external.Planner,
	runner external.Runner,
	fanout *FailureFanout,
	reducer *StatusReducer,
	allowedTypes []string,
	verbosity int,
	runnerRefreshURL string,
	logger *slog.Logger,
) *SubmissionService {
	if len(allowedTypes) == 0 {
		allowedTypes = DefaultAllowedTypes
	}
	return &SubmissionService{
		datasets:         datasets,
		revisions:        revisions,
		pipelines:        pipelines,
		verifyer:         verifyer,
		planner:          planner,
		runner:           runner,
		fanout:           fanout,
		reducer:          reducer,
		allowedTypes:     allowedTypes,
		verbosity:        verbosity,
		runnerRefreshURL: runnerRefreshURL,
		httpClient:       &http.Client{Timeout: 5 * time.Second},
		logger:           logger.With("component", "submission"),
	}
}

// Upload implements spec.md §4.C's public entry point: validation order,
// then the internal submission path.
func (s *SubmissionService) Upload(ctx context.Context, token string, contents domain.Spec) (UploadResult, error) {
	start := time.Now()
	outcome := "success"
	defer func() {
		metrics.UploadDuration.Observe(time.Since(start).Seconds())
		metrics.UploadsTotal.WithLabelValues(outcome).Inc()
	}()

	if contents == nil {
		outcome = "validation_error"
		return UploadResult{Errors: []string{domain.ErrEmptyContents.Error()}}, nil
	}

	ownerID, ok := contents.OwnerID()
	if !ok {
		outcome = "validation_error"
		return UploadResult{Errors: []string{domain.ErrMissingOwner.Error()}}, nil
	}

	perms, err := s.verifyer.ExtractPermissions(ctx, token)
	if err != nil {
		return UploadResult{}, fmt.Errorf("extract permissions: %w", err)
	}
	if perms == nil || perms.UserID != ownerID {
		outcome = "unauthorized"
		return UploadResult{Errors: []string{domain.ErrUnauthorized.Error()}}, nil
	}

	datasetID := s.datasets.FormatIdentifier(ownerID, contents.DatasetName())
	_, err = s.datasets.GetDataset(ctx, datasetID)
	isNewDataset := errors.Is(err, domain.ErrDatasetNotFound)
	if err != nil && !isNewDataset {
		return UploadResult{}, fmt.Errorf("load dataset %s: %w", datasetID, err)
	}

	if isNewDataset {
		count, err := s.datasets.CountDatasetsForOwner(ctx, ownerID)
		if err != nil {
			return UploadResult{}, fmt.Errorf("count datasets for owner %s: %w", ownerID, err)
		}
		if count >= perms.MaxDatasetNum {
			outcome = "quota_exceeded"
			return UploadResult{Errors: []string{
				fmt.Sprintf("Max datasets for user exceeded plan limit (%d)", perms.MaxDatasetNum),
			}}, nil
		}
	}

	datasetResultID, flowID, errs := s.internalUpload(ctx, ownerID, contents)
	if len(errs) > 0 {
		outcome = "error"
		s.fanout.EnqueueIncident(external.Incident{
			Title:  "failed to start flow",
			Owner:  ownerID,
			Errors: errs,
		})
	}

	return UploadResult{
		Success:   len(errs) == 0,
		DatasetID: datasetResultID,
		FlowID:    flowID,
		Errors:    errs,
	}, nil
}

// ScheduledUpload re-submits an already-owned dataset on its schedule's
// behalf, bypassing the token/quota checks in Upload (spec.md §4.E: the
// scheduler loop owns these datasets already, there is no caller to
// authenticate).
func (s *SubmissionService) ScheduledUpload(ctx context.Context, owner string, contents domain.Spec) (datasetID, flowID string, errs []string) {
	datasetID, flowID, errs = s.internalUpload(ctx, owner, contents)
	if len(errs) > 0 {
		s.fanout.EnqueueIncident(external.Incident{
			Title:  "failed to start flow",
			Owner:  owner,
			Errors: errs,
		})
	}
	return datasetID, flowID, errs
}

// internalUpload implements spec.md §4.C steps 1-8. The scheduler loop
// reaches it through ScheduledUpload, bypassing auth (spec.md §4.E).
func (s *SubmissionService) internalUpload(ctx context.Context, owner string, contents domain.Spec) (datasetID, flowID string, errs []string) {
	now := time.Now()
	contents.SetUpdateTime(now)

	datasetID = s.datasets.FormatIdentifier(owner, contents.DatasetName())
	dataset, err := s.datasets.CreateOrUpdateDataset(ctx, datasetID, owner, contents, now)
	if err != nil {
		return datasetID, "", []string{fmt.Sprintf("Unexpected error: %s", err)}
	}
	contents.SetCreateTime(dataset.CreatedAt)

	rawSchedule, present := contents.Schedule()
	period, scheduleErrs := schedule.Parse(rawSchedule, present)
	if len(scheduleErrs) > 0 {
		return datasetID, "", scheduleErrs
	}

	if err := s.datasets.UpdateDatasetSchedule(ctx, datasetID, period, now); err != nil {
		return datasetID, "", []string{fmt.Sprintf("Unexpected error: %s", err)}
	}

	revision, err := s.revisions.CreateRevision(ctx, datasetID, now, domain.StatusPending, nil)
	if err != nil {
		return datasetID, "", []string{fmt.Sprintf("Unexpected error: %s", err)}
	}
	flowID = s.datasets.FormatIdentifier(owner, contents.DatasetName(), revision.Revision)

	planned, err := s.planner.Plan(ctx, revision.Revision, contents, s.allowedTypes)
	if err != nil {
		if errors.Is(err, domain.ErrValidationFailed) {
			return datasetID, flowID, []string{domain.ErrValidationFailed.Error()}
		}
		return datasetID, flowID, []string{fmt.Sprintf("Unexpected error: %s", err)}
	}

	serialized := make(map[string]map[string]any, len(planned))
	for _, p := range planned {
		pipeline := &domain.Pipeline{
			PipelineID:      p.PipelineID,
			FlowID:          flowID,
			Title:           p.Details.Title(),
			PipelineDetails: p.Details,
			Status:          domain.StatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.pipelines.SavePipeline(ctx, pipeline); err != nil {
			return datasetID, flowID, []string{fmt.Sprintf("Unexpected error: %s", err)}
		}
		serialized[p.PipelineID] = p.Details
	}

	pipelinesYAML, err := yaml.Marshal(serialized)
	if err != nil {
		return datasetID, flowID, []string{fmt.Sprintf("Unexpected error: %s", err)}
	}

	if err := s.runner.Start(ctx, flowID, pipelinesYAML, s.reducer.handleCallback, s.verbosity); err != nil {
		errs = append(errs, fmt.Sprintf("Unexpected error: %s", err))
	}

	if s.runnerRefreshURL != "" {
		if refreshErr := s.refreshRunner(ctx); refreshErr != nil {
			errs = append(errs, "Failed to refresh pipelines status")
		}
	}

	return datasetID, flowID, errs
}

// refreshRunner pings the configured pipeline runner's refresh endpoint,
// matching flowmanager's original `dpp_server` call (SPEC_FULL.md §4,
// supplemented feature 1). Best-effort: any non-200 is a soft error.
func (s *SubmissionService) refreshRunner(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.runnerRefreshURL+"api/refresh", nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("refresh returned status %d", resp.StatusCode)
	}
	return nil
}
