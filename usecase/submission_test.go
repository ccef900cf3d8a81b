package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/datopian/flowmanager/domain"
	"github.com/datopian/flowmanager/external"
	"github.com/datopian/flowmanager/flowlock"
	"github.com/datopian/flowmanager/usecase"
)

type fakeVerifyer struct {
	extractPermissions func(ctx context.Context, token string) (*external.Permissions, error)
}

func (f fakeVerifyer) ExtractPermissions(ctx context.Context, token string) (*external.Permissions, error) {
	return f.extractPermissions(ctx, token)
}

type fakePlanner struct {
	plan func(ctx context.Context, revision int, spec domain.Spec, allowedTypes []string) ([]external.PlannedPipeline, error)
}

func (f fakePlanner) Plan(ctx context.Context, revision int, spec domain.Spec, allowedTypes []string) ([]external.PlannedPipeline, error) {
	return f.plan(ctx, revision, spec, allowedTypes)
}

type fakeRunner struct {
	start func(ctx context.Context, flowID string, serialized []byte, cb external.StatusCallback, verbosity int) error
}

func (f fakeRunner) Start(ctx context.Context, flowID string, serialized []byte, cb external.StatusCallback, verbosity int) error {
	return f.start(ctx, flowID, serialized, cb, verbosity)
}

func newTestSubmission(t *testing.T, verifyer external.Verifyer, planner external.Planner, runner external.Runner) (*usecase.SubmissionService, *fakeDatasetRepo) {
	t.Helper()
	datasets := newFakeDatasetRepo()
	revisions := newFakeRevisionRepo()
	pipelines := newFakePipelineRepo()
	events := &fakeEventSink{}

	fanout := usecase.NewFailureFanout(events, &fakeIncidentReporter{}, fakeDescriptorStore{}, fakeSearchIndexer{}, revisions, discardLogger(), 16)
	reducer := usecase.NewStatusReducer(datasets, revisions, pipelines, flowlock.NewTable(), fanout, discardLogger())

	svc := usecase.NewSubmissionService(
		datasets, revisions, pipelines,
		verifyer, planner, runner,
		fanout, reducer,
		nil, 1, "", discardLogger(),
	)
	return svc, datasets
}

func alwaysAllow(owner string) external.Verifyer {
	return fakeVerifyer{extractPermissions: func(context.Context, string) (*external.Permissions, error) {
		return &external.Permissions{UserID: owner, MaxDatasetNum: 10}, nil
	}}
}

func noPipelinesPlanner() external.Planner {
	return fakePlanner{plan: func(context.Context, int, domain.Spec, []string) ([]external.PlannedPipeline, error) {
		return nil, nil
	}}
}

func noopRunner() external.Runner {
	return fakeRunner{start: func(context.Context, string, []byte, external.StatusCallback, int) error {
		return nil
	}}
}

func TestUpload_NilContents(t *testing.T) {
	svc, _ := newTestSubmission(t, alwaysAllow("owner"), noPipelinesPlanner(), noopRunner())

	result, err := svc.Upload(context.Background(), "token", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Errors) != 1 || result.Errors[0] != domain.ErrEmptyContents.Error() {
		t.Fatalf("want empty-contents error, got %+v", result)
	}
}

func TestUpload_MissingOwner(t *testing.T) {
	svc, _ := newTestSubmission(t, alwaysAllow("owner"), noPipelinesPlanner(), noopRunner())

	result, err := svc.Upload(context.Background(), "token", domain.Spec{"meta": map[string]any{"dataset": "ds"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Errors) != 1 || result.Errors[0] != domain.ErrMissingOwner.Error() {
		t.Fatalf("want missing-owner error, got %+v", result)
	}
}

func TestUpload_UnauthorizedOnUserMismatch(t *testing.T) {
	verifyer := fakeVerifyer{extractPermissions: func(context.Context, string) (*external.Permissions, error) {
		return &external.Permissions{UserID: "someone-else", MaxDatasetNum: 10}, nil
	}}
	svc, _ := newTestSubmission(t, verifyer, noPipelinesPlanner(), noopRunner())

	contents := domain.Spec{"meta": map[string]any{"ownerid": "owner", "dataset": "ds"}}
	result, err := svc.Upload(context.Background(), "token", contents)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Errors) != 1 || result.Errors[0] != domain.ErrUnauthorized.Error() {
		t.Fatalf("want unauthorized error, got %+v", result)
	}
}

func TestUpload_QuotaExceededOnlyForNewDataset(t *testing.T) {
	verifyer := fakeVerifyer{extractPermissions: func(context.Context, string) (*external.Permissions, error) {
		return &external.Permissions{UserID: "owner", MaxDatasetNum: 1}, nil
	}}
	svc, datasets := newTestSubmission(t, verifyer, noPipelinesPlanner(), noopRunner())
	_, _ = datasets.CreateOrUpdateDataset(context.Background(), "owner/other", "owner", domain.Spec{}, time.Now())

	contents := domain.Spec{"meta": map[string]any{"ownerid": "owner", "dataset": "new-ds"}}
	result, err := svc.Upload(context.Background(), "token", contents)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("want a single quota error, got %+v", result)
	}

	existing := domain.Spec{"meta": map[string]any{"ownerid": "owner", "dataset": "other"}}
	result, err = svc.Upload(context.Background(), "token", existing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("updating an existing dataset at the quota should succeed, got %+v", result)
	}
}

func TestUpload_SuccessPathStartsRunner(t *testing.T) {
	planner := fakePlanner{plan: func(context.Context, int, domain.Spec, []string) ([]external.PlannedPipeline, error) {
		return []external.PlannedPipeline{{PipelineID: "p1", Details: domain.PipelineDetails{"title": "p1"}}}, nil
	}}
	started := false
	runner := fakeRunner{start: func(context.Context, string, []byte, external.StatusCallback, int) error {
		started = true
		return nil
	}}
	svc, _ := newTestSubmission(t, alwaysAllow("owner"), planner, runner)

	contents := domain.Spec{"meta": map[string]any{"ownerid": "owner", "dataset": "ds"}}
	result, err := svc.Upload(context.Background(), "token", contents)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.DatasetID == "" || result.FlowID == "" {
		t.Fatalf("expected dataset/flow ids, got %+v", result)
	}
	if !started {
		t.Fatal("expected runner.Start to be called")
	}
}

func TestScheduledUpload_BypassesAuth(t *testing.T) {
	planner := fakePlanner{plan: func(context.Context, int, domain.Spec, []string) ([]external.PlannedPipeline, error) {
		return nil, nil
	}}
	svc, _ := newTestSubmission(t, alwaysAllow("owner"), planner, noopRunner())

	contents := domain.Spec{"meta": map[string]any{"ownerid": "owner", "dataset": "scheduled-ds"}}
	datasetID, flowID, errs := svc.ScheduledUpload(context.Background(), "owner", contents)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if datasetID == "" || flowID == "" {
		t.Fatalf("expected dataset/flow ids, got %q %q", datasetID, flowID)
	}
}
