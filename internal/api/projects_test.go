package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/clipforge/scenekit/internal/config"
	"github.com/clipforge/scenekit/internal/db"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func testConfig() *config.Settings {
	return &config.Settings{
		AuthEnabled:                   false,
		AuthRequireForReads:           false,
		AuthRequireForWrites:          false,
		OverloadMaxInflightRequests:   64,
		OverloadAcquireTimeoutSeconds: 2,
		OverloadRetryAfterSeconds:     5,
		SessionCookieName:             "session",
		AuthOTPMaxVerifyAttempts:      5,
	}
}

func newTestHandler(t *testing.T) (*Handler, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	cfg := testConfig()
	return NewHandler(&db.DB{DB: sqlDB}, nil, nil, nil, nil, cfg, nil, "test-secret"), mock
}

func TestCreateProjectRejectsMissingPrompt(t *testing.T) {
	h, _ := newTestHandler(t)
	body := bytes.NewBufferString(`{"user_prompt":"","total_duration_seconds":30,"segment_duration":15}`)
	req := httptest.NewRequest(http.MethodPost, "/api/projects", body)
	w := httptest.NewRecorder()

	h.CreateProject(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateProjectRejectsBadPacing(t *testing.T) {
	h, _ := newTestHandler(t)
	body := bytes.NewBufferString(`{"user_prompt":"a cat video","total_duration_seconds":30,"segment_duration":15,"pacing":"warp speed"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/projects", body)
	w := httptest.NewRecorder()

	h.CreateProject(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateProjectSucceedsAnonymous(t *testing.T) {
	h, mock := newTestHandler(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO projects")).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	body := bytes.NewBufferString(`{"user_prompt":"a cat video","total_duration_seconds":30,"segment_duration":15}`)
	req := httptest.NewRequest(http.MethodPost, "/api/projects", body)
	w := httptest.NewRecorder()

	h.CreateProject(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out ProjectDetail
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.UserPrompt != "a cat video" {
		t.Fatalf("unexpected user_prompt: %+v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetProjectNotFoundReturns404(t *testing.T) {
	h, mock := newTestHandler(t)
	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("FROM projects WHERE id = $1")).WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest(http.MethodGet, "/api/projects/"+id.String(), nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()

	h.GetProject(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetProjectInvalidIDReturns400(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/projects/not-a-uuid", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "not-a-uuid")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()

	h.GetProject(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}
