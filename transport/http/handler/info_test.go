package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/datopian/flowmanager/domain"
	"github.com/datopian/flowmanager/transport/http/handler"
	"github.com/datopian/flowmanager/usecase"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newRouter(t *testing.T, dataset *domain.Dataset, datasetErr error, revision *domain.Revision, revisionErr error) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	datasets := &stubDatasetRepo{dataset: dataset, err: datasetErr}
	revisions := &stubRevisionRepo{revision: revision, err: revisionErr}

	reader := usecase.NewInfoReader(datasets, revisions)
	info := handler.NewInfoHandler(reader, discardLogger())

	r := gin.New()
	r.GET(":owner/:dataset/:revision", info.Info)
	return r
}

func TestInfoHandler_DatasetNotFound(t *testing.T) {
	r := newRouter(t, nil, domain.ErrDatasetNotFound, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/owner/missing-ds/latest", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body: %s", w.Code, w.Body.String())
	}
}

func TestInfoHandler_RevisionNotFound(t *testing.T) {
	dataset := &domain.Dataset{Identifier: "owner/ds", Owner: "owner"}
	r := newRouter(t, dataset, nil, nil, domain.ErrRevisionNotFound)

	req := httptest.NewRequest(http.MethodGet, "/owner/ds/successful", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body: %s", w.Code, w.Body.String())
	}
}

func TestInfoHandler_InvalidSelector(t *testing.T) {
	r := newRouter(t, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/owner/ds/not-a-number", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body: %s", w.Code, w.Body.String())
	}
}

func TestInfoHandler_Success(t *testing.T) {
	dataset := &domain.Dataset{
		Identifier: "owner/ds",
		Owner:      "owner",
		Spec:       domain.Spec{"meta": map[string]any{"ownerid": "owner", "dataset": "ds"}},
		UpdatedAt:  time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC),
		Certified:  true,
	}
	revision := &domain.Revision{
		RevisionID: "owner/ds/3",
		DatasetID:  "owner/ds",
		Revision:   3,
		Status:     domain.StatusSuccess,
	}
	r := newRouter(t, dataset, nil, revision, nil)

	req := httptest.NewRequest(http.MethodGet, "/owner/ds/latest", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["id"] != "owner/ds/3" {
		t.Errorf("id = %v, want owner/ds/3", body["id"])
	}
	if body["certified"] != true {
		t.Errorf("certified = %v, want true", body["certified"])
	}
}

// ---- narrow repository stubs ----

type stubDatasetRepo struct {
	dataset *domain.Dataset
	err     error
}

func (s *stubDatasetRepo) FormatIdentifier(parts ...any) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "/"
		}
		out += p.(string)
	}
	return out
}

func (s *stubDatasetRepo) CreateOrUpdateDataset(ctx context.Context, identifier, owner string, spec domain.Spec, updatedAt time.Time) (*domain.Dataset, error) {
	panic("unused in info handler tests")
}

func (s *stubDatasetRepo) GetDataset(ctx context.Context, identifier string) (*domain.Dataset, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.dataset, nil
}

func (s *stubDatasetRepo) UpdateDatasetSchedule(ctx context.Context, identifier string, period *int, now time.Time) error {
	panic("unused in info handler tests")
}

func (s *stubDatasetRepo) GetExpiredDatasets(ctx context.Context, now time.Time) ([]*domain.Dataset, error) {
	panic("unused in info handler tests")
}

func (s *stubDatasetRepo) CountDatasetsForOwner(ctx context.Context, ownerID string) (int, error) {
	panic("unused in info handler tests")
}

type stubRevisionRepo struct {
	revision *domain.Revision
	err      error
}

func (s *stubRevisionRepo) CreateRevision(ctx context.Context, datasetID string, now time.Time, status domain.RevisionStatus, errs []string) (*domain.Revision, error) {
	panic("unused in info handler tests")
}

func (s *stubRevisionRepo) GetRevision(ctx context.Context, datasetID string, which domain.RevisionSelector) (*domain.Revision, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.revision, nil
}

func (s *stubRevisionRepo) GetRevisionByID(ctx context.Context, revisionID string) (*domain.Revision, error) {
	panic("unused in info handler tests")
}

func (s *stubRevisionRepo) UpdateRevision(ctx context.Context, revisionID string, patch domain.RevisionPatch) (*domain.Revision, error) {
	panic("unused in info handler tests")
}
