package api

import (
	"testing"
	"time"

	"github.com/clipforge/scenekit/internal/models"
	"github.com/google/uuid"
)

// TestProjectToDetailOrdersSegmentsByIndexDespiteMapIteration pins the
// merge_segments law (later write wins per index, result sorted by index)
// as it is actually implemented: ListSegments returns a map keyed by index,
// and projectToDetail walks 0..TotalSegments rebuilding a sorted slice from
// it, filling any index missing from the map with a synthetic pending
// placeholder.
func TestProjectToDetailOrdersSegmentsByIndexDespiteMapIteration(t *testing.T) {
	projectID := uuid.New()
	now := time.Now()
	project := &models.Project{
		ID:                   projectID,
		TotalDurationSeconds: 40,
		SegmentDuration:      10,
		UpdatedAt:            now,
	}

	// Built out of index order, mirroring map iteration's lack of ordering
	// guarantees. Index 1 is missing entirely and must come back synthetic.
	segments := map[int]*models.Segment{
		3: {ProjectID: projectID, Index: 3, Status: models.SegmentStatusCompleted, UpdatedAt: now},
		0: {ProjectID: projectID, Index: 0, Status: models.SegmentStatusCompleted, UpdatedAt: now},
		2: {ProjectID: projectID, Index: 2, Status: models.SegmentStatusScriptReady, UpdatedAt: now},
	}

	detail := projectToDetail(project, segments, projectDetailOpts{})

	if len(detail.Segments) != 4 {
		t.Fatalf("expected 4 segments, got %d", len(detail.Segments))
	}
	for i, row := range detail.Segments {
		if row.Index != i {
			t.Fatalf("expected segment at position %d to have Index %d, got %d", i, i, row.Index)
		}
	}
	if detail.Segments[1].Status != string(models.SegmentStatusPending) {
		t.Fatalf("expected missing index 1 to be synthetic pending, got %q", detail.Segments[1].Status)
	}
	if detail.Segments[3].Status != string(models.SegmentStatusCompleted) {
		t.Fatalf("expected index 3 to keep its persisted status, got %q", detail.Segments[3].Status)
	}
}

// TestSegmentMapCollisionLastWriteWinsByIndex pins the "R wins" half of
// the law on a plain index-keyed segment map, without calling
// db.ListSegments: assigning two segments at the same index, the later
// assignment is what callers observe.
func TestSegmentMapCollisionLastWriteWinsByIndex(t *testing.T) {
	segments := map[int]*models.Segment{}
	segments[1] = &models.Segment{Index: 1, Status: models.SegmentStatusPending}
	segments[1] = &models.Segment{Index: 1, Status: models.SegmentStatusCompleted}

	if segments[1].Status != models.SegmentStatusCompleted {
		t.Fatalf("expected last write to win, got %q", segments[1].Status)
	}
}
