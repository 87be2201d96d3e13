package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func withIndexParam(req *http.Request, index string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("index", index)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func withProjectAndIndex(req *http.Request, projectID uuid.UUID, index string) *http.Request {
	req = withProjectParam(req, projectID)
	rctx := chi.RouteContext(req.Context())
	rctx.URLParams.Add("index", index)
	return req
}

func TestSegmentIndexRejectsOutOfRange(t *testing.T) {
	req := withIndexParam(httptest.NewRequest(http.MethodGet, "/x", nil), "5")

	if _, err := segmentIndex(req, 2); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestSegmentIndexRejectsNonNumeric(t *testing.T) {
	req := withIndexParam(httptest.NewRequest(http.MethodGet, "/x", nil), "not-a-number")

	if _, err := segmentIndex(req, 2); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSegmentIndexAcceptsInRange(t *testing.T) {
	req := withIndexParam(httptest.NewRequest(http.MethodGet, "/x", nil), "1")

	i, err := segmentIndex(req, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if i != 1 {
		t.Fatalf("expected index 1, got %d", i)
	}
}

type fakePart struct {
	io.Reader
	name string
}

func (f *fakePart) FileName() string { return f.name }

func TestStreamToRejectsOversizedUpload(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "video.mp4")
	big := make([]byte, 3<<20)
	part := &multipartPart{&fakePart{Reader: bytes.NewReader(big), name: "video.mp4"}}

	err := part.streamTo(dest, 1<<20)
	if err != errUploadTooLarge {
		t.Fatalf("expected errUploadTooLarge, got %v", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatal("expected partial upload to be removed")
	}
}

func TestStreamToWritesWithinLimit(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "video.mp4")
	small := []byte("fake video bytes")
	part := &multipartPart{&fakePart{Reader: bytes.NewReader(small), name: "video.mp4"}}

	if err := part.streamTo(dest, 1<<20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	written, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if string(written) != string(small) {
		t.Fatalf("unexpected contents: %q", written)
	}
}

func TestGetSegmentReturnsSyntheticWhenNotPersisted(t *testing.T) {
	h, mock := newTestHandler(t)
	projectID := uuid.New()
	expectLoadOwnedProject(mock, projectID)

	req := withProjectAndIndex(httptest.NewRequest(http.MethodGet, "/x", nil), projectID, "0")
	w := httptest.NewRecorder()

	h.GetSegment(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out SegmentDetail
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Index != 0 {
		t.Fatalf("unexpected index: %+v", out)
	}
}

func TestGetSegmentIndexOutOfRangeReturns400(t *testing.T) {
	h, mock := newTestHandler(t)
	projectID := uuid.New()
	expectLoadOwnedProject(mock, projectID)

	req := withProjectAndIndex(httptest.NewRequest(http.MethodGet, "/x", nil), projectID, "999")
	w := httptest.NewRecorder()

	h.GetSegment(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}
