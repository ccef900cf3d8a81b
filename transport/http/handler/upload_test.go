package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/datopian/flowmanager/domain"
	"github.com/datopian/flowmanager/external"
	"github.com/datopian/flowmanager/flowlock"
	"github.com/datopian/flowmanager/transport/http/handler"
	"github.com/datopian/flowmanager/usecase"
)

type capturingVerifyer struct {
	gotToken string
}

func (c *capturingVerifyer) ExtractPermissions(_ context.Context, token string) (*external.Permissions, error) {
	c.gotToken = token
	return nil, nil
}

func newUploadRouter(t *testing.T, verifyer external.Verifyer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	datasets := &stubDatasetRepo{err: domain.ErrDatasetNotFound}
	revisions := &stubRevisionRepo{err: domain.ErrRevisionNotFound}

	fanout := usecase.NewFailureFanout(noopEventSink{}, noopIncidentReporter{}, noopDescriptors{}, noopIndexer{}, revisions, discardLogger(), 4)
	reducer := usecase.NewStatusReducer(datasets, revisions, &panicPipelineRepo{}, flowlock.NewTable(), fanout, discardLogger())
	svc := usecase.NewSubmissionService(datasets, revisions, &panicPipelineRepo{}, verifyer, noopPlanner{}, noopRunnerHandler{}, fanout, reducer, nil, 1, "", discardLogger())

	up := handler.NewUploadHandler(svc, discardLogger())

	r := gin.New()
	r.POST("upload", up.Upload)
	return r
}

func TestUploadHandler_TokenFromHeader(t *testing.T) {
	verifyer := &capturingVerifyer{}
	r := newUploadRouter(t, verifyer)

	body := bytes.NewBufferString(`{"meta":{"ownerid":"owner","dataset":"ds"}}`)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("auth-token", "header-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if verifyer.gotToken != "header-token" {
		t.Fatalf("token = %q, want header-token", verifyer.gotToken)
	}
}

func TestUploadHandler_TokenFromQueryFallback(t *testing.T) {
	verifyer := &capturingVerifyer{}
	r := newUploadRouter(t, verifyer)

	body := bytes.NewBufferString(`{"meta":{"ownerid":"owner","dataset":"ds"}}`)
	req := httptest.NewRequest(http.MethodPost, "/upload?jwt=query-token", body)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if verifyer.gotToken != "query-token" {
		t.Fatalf("token = %q, want query-token", verifyer.gotToken)
	}
}

func TestUploadHandler_UnauthorizedResponseShape(t *testing.T) {
	verifyer := &capturingVerifyer{}
	r := newUploadRouter(t, verifyer)

	body := bytes.NewBufferString(`{"meta":{"ownerid":"owner","dataset":"ds"}}`)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (errors travel in the body, not the status)", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["success"] != false {
		t.Errorf("success = %v, want false", resp["success"])
	}
	if resp["dataset_id"] != nil {
		t.Errorf("dataset_id = %v, want nil", resp["dataset_id"])
	}
	errs, ok := resp["errors"].([]any)
	if !ok || len(errs) != 1 {
		t.Fatalf("errors = %v, want a single entry", resp["errors"])
	}
}

// ---- no-op collaborators shared by upload handler tests ----

type noopEventSink struct{}

func (noopEventSink) Send(context.Context, external.EventRecord) error { return nil }

type noopIncidentReporter struct{}

func (noopIncidentReporter) Report(context.Context, external.Incident) error { return nil }

type noopDescriptors struct{}

func (noopDescriptors) GetDescriptor(context.Context, string) (map[string]any, error) { return nil, nil }

type noopIndexer struct{}

func (noopIndexer) Index(context.Context, external.DatasetDocument) error { return nil }

type noopPlanner struct{}

func (noopPlanner) Plan(context.Context, int, domain.Spec, []string) ([]external.PlannedPipeline, error) {
	return nil, nil
}

type noopRunnerHandler struct{}

func (noopRunnerHandler) Start(context.Context, string, []byte, external.StatusCallback, int) error {
	return nil
}

type panicPipelineRepo struct{}

func (panicPipelineRepo) SavePipeline(context.Context, *domain.Pipeline) error { return nil }
func (panicPipelineRepo) GetPipeline(context.Context, string) (*domain.Pipeline, error) {
	return nil, domain.ErrPipelineNotFound
}
func (panicPipelineRepo) GetFlowID(context.Context, string) (string, error) {
	return "", domain.ErrPipelineNotFound
}
func (panicPipelineRepo) ListPipelinesByFlow(context.Context, string) ([]*domain.Pipeline, error) {
	return nil, nil
}
func (panicPipelineRepo) ListPipelinesByFlowAndStatus(context.Context, string, domain.RevisionStatus) ([]*domain.Pipeline, error) {
	return nil, nil
}
func (panicPipelineRepo) UpdatePipeline(context.Context, string, domain.PipelinePatch) (bool, error) {
	return false, nil
}
func (panicPipelineRepo) DeletePipelines(context.Context, string) error { return nil }
func (panicPipelineRepo) CheckFlowStatus(context.Context, string) (domain.RevisionStatus, error) {
	return domain.StatusSuccess, nil
}
