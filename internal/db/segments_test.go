package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func segmentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"project_id", "index", "segment_script", "video_prompt", "video_path",
		"video_description", "last_frame_path", "status", "created_at", "updated_at",
	})
}

// TestListSegmentsLastRowWinsPerIndex pins the merge_segments law in its
// current form: segments are keyed by index in a map, so when the same
// index appears twice in the result set (a row a writer overwrote mid-scan
// would never happen in Postgres, but a stale replica read could surface
// one), the later row wins and the map still has exactly one entry per
// index.
func TestListSegmentsLastRowWinsPerIndex(t *testing.T) {
	database, mock := newMockDB(t)
	projectID := uuid.New()
	now := time.Now()

	rows := segmentRows().
		AddRow(projectID, 1, "script v1", "prompt v1", nil, nil, nil, "pending", now, now).
		AddRow(projectID, 0, "script 0", "prompt 0", nil, nil, nil, "completed", now, now).
		AddRow(projectID, 1, "script v2", "prompt v2", nil, nil, nil, "completed", now, now)
	mock.ExpectQuery("FROM segments WHERE project_id").WithArgs(projectID).WillReturnRows(rows)

	segments, err := database.ListSegments(context.Background(), projectID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 distinct indices, got %d", len(segments))
	}
	if segments[1].SegmentScript != "script v2" {
		t.Fatalf("expected later row for index 1 to win, got %q", segments[1].SegmentScript)
	}
	if segments[0].SegmentScript != "script 0" {
		t.Fatalf("expected index 0 untouched, got %q", segments[0].SegmentScript)
	}
}

func TestListSegmentsEmptyWhenNoRows(t *testing.T) {
	database, mock := newMockDB(t)
	projectID := uuid.New()
	mock.ExpectQuery("FROM segments WHERE project_id").WithArgs(projectID).WillReturnRows(segmentRows())

	segments, err := database.ListSegments(context.Background(), projectID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 0 {
		t.Fatalf("expected no segments, got %d", len(segments))
	}
}
