package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/clipforge/scenekit/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func withProjectParam(req *http.Request, id uuid.UUID) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func expectLoadOwnedProject(mock sqlmock.Sqlmock, id uuid.UUID) {
	now := time.Now()
	projRows := sqlmock.NewRows([]string{
		"id", "user_prompt", "pacing", "total_duration_seconds", "segment_duration",
		"full_script", "canon_summaries", "current_segment_index", "last_frame_path",
		"final_video_path", "status", "error_message", "created_at", "updated_at",
	}).AddRow(id, "a prompt", "normal", 30, 15, nil, "", 0, nil, nil, "active", nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM projects WHERE id = $1")).WithArgs(id).WillReturnRows(projRows)

	segRows := sqlmock.NewRows([]string{
		"project_id", "index", "segment_script", "video_prompt", "video_path",
		"video_description", "last_frame_path", "status", "created_at", "updated_at",
	})
	mock.ExpectQuery(regexp.QuoteMeta("FROM segments WHERE project_id = $1")).WithArgs(id).WillReturnRows(segRows)
}

func TestCreateJobRejectsUnknownType(t *testing.T) {
	h, mock := newTestHandler(t)
	projectID := uuid.New()
	expectLoadOwnedProject(mock, projectID)

	body := bytes.NewBufferString(`{"type":"bogus"}`)
	req := withProjectParam(httptest.NewRequest(http.MethodPost, "/api/projects/"+projectID.String()+"/jobs", body), projectID)
	w := httptest.NewRecorder()

	h.CreateJob(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateJobQueuesKnownType(t *testing.T) {
	h, mock := newTestHandler(t)
	projectID := uuid.New()
	expectLoadOwnedProject(mock, projectID)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO jobs")).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))

	body := bytes.NewBufferString(`{"type":"assemble","payload":{}}`)
	req := withProjectParam(httptest.NewRequest(http.MethodPost, "/api/projects/"+projectID.String()+"/jobs", body), projectID)
	w := httptest.NewRecorder()

	h.CreateJob(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out JobOut
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Type != string(models.JobTypeAssemble) {
		t.Fatalf("unexpected job type: %+v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListJobsClampsLimitAboveMax(t *testing.T) {
	h, mock := newTestHandler(t)
	projectID := uuid.New()
	expectLoadOwnedProject(mock, projectID)
	mock.ExpectQuery(regexp.QuoteMeta("FROM jobs")).WithArgs(projectID, maxJobListLimit).WillReturnRows(sqlmock.NewRows([]string{
		"id", "project_id", "type", "status", "progress", "message",
		"payload_json", "result_json", "error", "created_at", "updated_at",
	}))

	req := withProjectParam(httptest.NewRequest(http.MethodGet, "/api/projects/"+projectID.String()+"/jobs?limit=10000", nil), projectID)
	w := httptest.NewRecorder()

	h.ListJobs(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetJobMismatchedProjectReturns404(t *testing.T) {
	h, mock := newTestHandler(t)
	projectID := uuid.New()
	otherProjectID := uuid.New()
	jobID := uuid.New()
	expectLoadOwnedProject(mock, projectID)

	jobRows := sqlmock.NewRows([]string{
		"id", "project_id", "type", "status", "progress", "message",
		"payload_json", "result_json", "error", "created_at", "updated_at",
	}).AddRow(jobID, otherProjectID, "assemble", "queued", 0, "", []byte(`{}`), []byte(`{}`), nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE id = $1")).WithArgs(jobID).WillReturnRows(jobRows)

	req := withProjectParam(httptest.NewRequest(http.MethodGet, "/api/projects/"+projectID.String()+"/jobs/"+jobID.String(), nil), projectID)
	rctx := chi.RouteContext(req.Context())
	rctx.URLParams.Add("job_id", jobID.String())
	w := httptest.NewRecorder()

	h.GetJob(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}
