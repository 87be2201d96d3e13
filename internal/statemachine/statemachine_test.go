package statemachine

import (
	"testing"

	"github.com/clipforge/scenekit/internal/models"
)

func strp(s string) *string { return &s }

func baseProject() *models.Project {
	return &models.Project{
		TotalDurationSeconds: 30,
		SegmentDuration:      15,
		FullScript:           "SCRIPT",
	}
}

func TestDeriveNextActionEmptyScript(t *testing.T) {
	p := &models.Project{TotalDurationSeconds: 30, SegmentDuration: 15}
	if got := DeriveNextAction(p, nil); got != ActionGenerateFullScript {
		t.Fatalf("got %s", got)
	}
}

func TestDeriveNextActionMissingSegment(t *testing.T) {
	p := baseProject()
	if got := DeriveNextAction(p, map[int]*models.Segment{}); got != ActionGenerateSegment {
		t.Fatalf("got %s", got)
	}
}

func TestDeriveNextActionScriptReadyNeedsUpload(t *testing.T) {
	p := baseProject()
	segs := map[int]*models.Segment{0: {Status: models.SegmentStatusScriptReady}}
	if got := DeriveNextAction(p, segs); got != ActionUploadVideo {
		t.Fatalf("got %s", got)
	}
}

func TestDeriveNextActionScriptReadyWithVideoAnalyzes(t *testing.T) {
	p := baseProject()
	segs := map[int]*models.Segment{0: {Status: models.SegmentStatusScriptReady, VideoPath: strp("x.mp4")}}
	if got := DeriveNextAction(p, segs); got != ActionAnalyze {
		t.Fatalf("got %s", got)
	}
}

func TestDeriveNextActionAnalyzing(t *testing.T) {
	p := baseProject()
	segs := map[int]*models.Segment{0: {Status: models.SegmentStatusAnalyzing}}
	if got := DeriveNextAction(p, segs); got != ActionWaitAnalyze {
		t.Fatalf("got %s", got)
	}
}

func TestDeriveNextActionFailedRetries(t *testing.T) {
	p := baseProject()
	segs := map[int]*models.Segment{0: {Status: models.SegmentStatusFailed}}
	if got := DeriveNextAction(p, segs); got != ActionRetry {
		t.Fatalf("got %s", got)
	}
}

func TestDeriveNextActionCursorAtEndNeedsAssemble(t *testing.T) {
	p := baseProject()
	p.CurrentSegmentIndex = 2
	if got := DeriveNextAction(p, map[int]*models.Segment{}); got != ActionAssemble {
		t.Fatalf("got %s", got)
	}
}

func TestDeriveNextActionDoneWhenFinalVideoSet(t *testing.T) {
	p := baseProject()
	p.CurrentSegmentIndex = 2
	p.FinalVideoPath = strp("final/output.mp4")
	if got := DeriveNextAction(p, map[int]*models.Segment{}); got != ActionDone {
		t.Fatalf("got %s", got)
	}
}

func TestApplyInvalidationClearsFields(t *testing.T) {
	seg := &models.Segment{
		Status:           models.SegmentStatusCompleted,
		SegmentScript:    "x",
		VideoPrompt:      "y",
		VideoPath:        strp("a.mp4"),
		VideoDescription: strp("desc"),
		LastFramePath:    strp("frame.jpg"),
	}
	ApplyInvalidation(seg)
	if seg.Status != models.SegmentStatusPending || seg.SegmentScript != "" || seg.VideoPath != nil {
		t.Fatalf("segment not fully reset: %+v", seg)
	}
}

func TestLatestFrameBefore(t *testing.T) {
	segs := map[int]*models.Segment{
		0: {LastFramePath: strp("f0.jpg")},
		1: {LastFramePath: strp("f1.jpg")},
		2: {LastFramePath: strp("f2.jpg")},
	}
	got := LatestFrameBefore(segs, 2)
	if got == nil || *got != "f1.jpg" {
		t.Fatalf("got %v", got)
	}
}
