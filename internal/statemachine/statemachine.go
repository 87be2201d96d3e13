// Package statemachine derives the next actionable step for a project from
// its current persisted state and implements cascading invalidation.
package statemachine

import "github.com/clipforge/scenekit/internal/models"

// Action is the next step a client or the job engine should take.
type Action string

const (
	ActionGenerateFullScript Action = "generate_full_script"
	ActionGenerateSegment    Action = "generate_segment"
	ActionUploadVideo        Action = "upload_video"
	ActionAnalyze            Action = "analyze"
	ActionWaitAnalyze        Action = "wait_analyze"
	ActionRetry              Action = "retry"
	ActionAssemble           Action = "assemble"
	ActionDone               Action = "done"
	ActionUnknown            Action = "unknown"
)

// DeriveNextAction is a pure function over a project and its segments,
// evaluated in the rule order fixed by the pipeline's design.
func DeriveNextAction(project *models.Project, segments map[int]*models.Segment) Action {
	if project.FullScript == "" {
		return ActionGenerateFullScript
	}

	total := project.TotalSegments()
	cursor := project.CurrentSegmentIndex
	if cursor >= total {
		if project.FinalVideoPath != nil && *project.FinalVideoPath != "" {
			return ActionDone
		}
		return ActionAssemble
	}

	seg, ok := segments[cursor]
	if !ok || seg.Status == models.SegmentStatusPending {
		return ActionGenerateSegment
	}

	switch seg.Status {
	case models.SegmentStatusScriptReady:
		if seg.VideoPath == nil || *seg.VideoPath == "" {
			return ActionUploadVideo
		}
		return ActionAnalyze
	case models.SegmentStatusWaitingVideo:
		if seg.VideoPath != nil && *seg.VideoPath != "" {
			return ActionAnalyze
		}
		return ActionUploadVideo
	case models.SegmentStatusAnalyzing:
		return ActionWaitAnalyze
	case models.SegmentStatusCompleted:
		return ActionGenerateSegment
	case models.SegmentStatusFailed:
		return ActionRetry
	default:
		return ActionUnknown
	}
}

// InvalidateDownstream reports which segment indices (> i) must be demoted
// to pending; ApplyInvalidation clears the fields of each. It does not
// mutate anything itself.
func InvalidateDownstream(segments map[int]*models.Segment, i int) []int {
	var affected []int
	for idx := range segments {
		if idx > i {
			affected = append(affected, idx)
		}
	}
	return affected
}

// ApplyInvalidation resets a single segment to pending with all derived
// fields cleared, matching the cascading-invalidation rule.
func ApplyInvalidation(seg *models.Segment) {
	seg.Status = models.SegmentStatusPending
	seg.SegmentScript = ""
	seg.VideoPrompt = ""
	seg.VideoPath = nil
	seg.VideoDescription = nil
	seg.LastFramePath = nil
}

// LatestFrameBefore returns the last_frame_path of the highest-index segment
// with index < i that has one set, used to reseed project.last_frame_path.
func LatestFrameBefore(segments map[int]*models.Segment, i int) *string {
	best := -1
	var bestPath *string
	for idx, seg := range segments {
		if idx < i && seg.LastFramePath != nil && *seg.LastFramePath != "" && idx > best {
			best = idx
			bestPath = seg.LastFramePath
		}
	}
	return bestPath
}
