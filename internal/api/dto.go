package api

import (
	"fmt"
	"time"

	"github.com/clipforge/scenekit/internal/models"
	"github.com/clipforge/scenekit/internal/statemachine"
	"github.com/google/uuid"
)

// ProjectSummary is the slim shape GET /api/projects returns for each row.
type ProjectSummary struct {
	ID                   uuid.UUID `json:"id"`
	UserPrompt           string    `json:"user_prompt"`
	Pacing               string    `json:"pacing"`
	TotalDurationSeconds int       `json:"total_duration_seconds"`
	SegmentDuration      int       `json:"segment_duration"`
	Status               string    `json:"status"`
	NumSegments          int       `json:"num_segments"`
	NextAction           string    `json:"next_action"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// SegmentSummary is the per-segment row embedded in ProjectDetail.
type SegmentSummary struct {
	Index             int       `json:"index"`
	Status            string    `json:"status"`
	HasVideo          bool      `json:"has_video"`
	HasFrame          bool      `json:"has_frame"`
	HasDescription    bool      `json:"has_description"`
	UpdatedAt         time.Time `json:"updated_at"`
	VideoURL          *string   `json:"video_url,omitempty"`
	FrameURL          *string   `json:"frame_url,omitempty"`
}

// ProjectDetail is the full project shape returned by most mutating routes.
type ProjectDetail struct {
	ID                   uuid.UUID        `json:"id"`
	UserPrompt           string           `json:"user_prompt"`
	Pacing               string           `json:"pacing"`
	TotalDurationSeconds int              `json:"total_duration_seconds"`
	SegmentDuration      int              `json:"segment_duration"`
	FullScript           *string          `json:"full_script,omitempty"`
	CanonSummaries       string           `json:"canon_summaries"`
	CurrentSegmentIndex  int              `json:"current_segment_index"`
	LastFramePath        *string          `json:"last_frame_path,omitempty"`
	FinalVideoPath       *string          `json:"final_video_path,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
	NumSegments          int              `json:"num_segments"`
	NextAction           string           `json:"next_action"`
	Segments             []SegmentSummary `json:"segments"`
}

// SegmentDetail is the full per-segment shape GET/PUT segment routes return.
type SegmentDetail struct {
	Index            int       `json:"index"`
	Status           string    `json:"status"`
	SegmentScript    string    `json:"segment_script"`
	VideoPrompt      string    `json:"video_prompt"`
	VideoDescription *string   `json:"video_description,omitempty"`
	HasVideo         bool      `json:"has_video"`
	HasFrame         bool      `json:"has_frame"`
	VideoURL         *string   `json:"video_url,omitempty"`
	FrameURL         *string   `json:"frame_url,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
	Warnings         []string  `json:"warnings,omitempty"`
}

func segmentVideoURL(projectID uuid.UUID, index int) *string {
	s := fmt.Sprintf("/api/projects/%s/segments/%d/video", projectID, index)
	return &s
}

func segmentFrameURL(projectID uuid.UUID, index int) *string {
	s := fmt.Sprintf("/api/projects/%s/segments/%d/frame", projectID, index)
	return &s
}

func segmentToSummary(projectID uuid.UUID, seg *models.Segment) SegmentSummary {
	hasVideo := seg.VideoPath != nil && *seg.VideoPath != ""
	hasFrame := seg.LastFramePath != nil && *seg.LastFramePath != ""
	out := SegmentSummary{
		Index:          seg.Index,
		Status:         string(seg.Status),
		HasVideo:       hasVideo,
		HasFrame:       hasFrame,
		HasDescription: seg.VideoDescription != nil && *seg.VideoDescription != "",
		UpdatedAt:      seg.UpdatedAt,
	}
	if hasVideo {
		out.VideoURL = segmentVideoURL(projectID, seg.Index)
	}
	if hasFrame {
		out.FrameURL = segmentFrameURL(projectID, seg.Index)
	}
	return out
}

// syntheticSegmentSummary stands in for a segment index that has never been
// generated, using the project's own timestamps as placeholders.
func syntheticSegmentSummary(index int, project *models.Project) SegmentSummary {
	return SegmentSummary{
		Index:     index,
		Status:    string(models.SegmentStatusPending),
		UpdatedAt: project.UpdatedAt,
	}
}

func segmentToDetail(projectID uuid.UUID, seg *models.Segment, warnings []string) SegmentDetail {
	hasVideo := seg.VideoPath != nil && *seg.VideoPath != ""
	hasFrame := seg.LastFramePath != nil && *seg.LastFramePath != ""
	out := SegmentDetail{
		Index:            seg.Index,
		Status:           string(seg.Status),
		SegmentScript:    seg.SegmentScript,
		VideoPrompt:      seg.VideoPrompt,
		VideoDescription: seg.VideoDescription,
		HasVideo:         hasVideo,
		HasFrame:         hasFrame,
		UpdatedAt:        seg.UpdatedAt,
		Warnings:         warnings,
	}
	if hasVideo {
		out.VideoURL = segmentVideoURL(projectID, seg.Index)
	}
	if hasFrame {
		out.FrameURL = segmentFrameURL(projectID, seg.Index)
	}
	return out
}

// syntheticSegmentDetail is GET segment's response when no row exists yet.
func syntheticSegmentDetail(index int, project *models.Project) SegmentDetail {
	return SegmentDetail{
		Index:     index,
		Status:    string(models.SegmentStatusPending),
		UpdatedAt: project.UpdatedAt,
	}
}

// projectToSummary builds the slim list-view shape.
func projectToSummary(project *models.Project, segments map[int]*models.Segment) ProjectSummary {
	return ProjectSummary{
		ID:                   project.ID,
		UserPrompt:           project.UserPrompt,
		Pacing:               string(project.Pacing),
		TotalDurationSeconds: project.TotalDurationSeconds,
		SegmentDuration:      project.SegmentDuration,
		Status:               string(project.Status),
		NumSegments:          project.TotalSegments(),
		NextAction:           string(statemachine.DeriveNextAction(project, segments)),
		CreatedAt:            project.CreatedAt,
		UpdatedAt:            project.UpdatedAt,
	}
}

// projectDetailOpts controls the two optional-inclusion query params on
// GET /api/projects/{id}.
type projectDetailOpts struct {
	IncludeFullScript bool
	IncludeCanon      bool
}

func projectToDetail(project *models.Project, segments map[int]*models.Segment, opts projectDetailOpts) ProjectDetail {
	total := project.TotalSegments()
	rows := make([]SegmentSummary, total)
	for i := 0; i < total; i++ {
		if seg, ok := segments[i]; ok {
			rows[i] = segmentToSummary(project.ID, seg)
		} else {
			rows[i] = syntheticSegmentSummary(i, project)
		}
	}

	out := ProjectDetail{
		ID:                   project.ID,
		UserPrompt:           project.UserPrompt,
		Pacing:               string(project.Pacing),
		TotalDurationSeconds: project.TotalDurationSeconds,
		SegmentDuration:      project.SegmentDuration,
		CurrentSegmentIndex:  project.CurrentSegmentIndex,
		LastFramePath:        project.LastFramePath,
		FinalVideoPath:       project.FinalVideoPath,
		CreatedAt:            project.CreatedAt,
		UpdatedAt:            project.UpdatedAt,
		NumSegments:          total,
		NextAction:           string(statemachine.DeriveNextAction(project, segments)),
		Segments:             rows,
	}
	if opts.IncludeFullScript {
		out.FullScript = &project.FullScript
	}
	if opts.IncludeCanon {
		out.CanonSummaries = project.CanonSummaries
	}
	return out
}

// JobOut is the wire shape for a persisted Job row.
type JobOut struct {
	ID        uuid.UUID      `json:"id"`
	ProjectID uuid.UUID      `json:"project_id"`
	Type      string         `json:"type"`
	Status    string         `json:"status"`
	Progress  int            `json:"progress"`
	Message   string         `json:"message"`
	Result    models.JSONB   `json:"result"`
	Error     *string        `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func jobToOut(j *models.Job) JobOut {
	return JobOut{
		ID:        j.ID,
		ProjectID: j.ProjectID,
		Type:      string(j.Type),
		Status:    string(j.Status),
		Progress:  j.Progress,
		Message:   j.Message,
		Result:    j.Result,
		Error:     j.Error,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// AuthMeOut is the shape GET /api/auth/me and register/login all return.
type AuthMeOut struct {
	Authenticated bool     `json:"authenticated"`
	UserID        string   `json:"user_id,omitempty"`
	Username      string   `json:"username,omitempty"`
	Email         string   `json:"email,omitempty"`
	Invites       []string `json:"invites,omitempty"`
}

// AuthOkOut is the trivial ack body for logout.
type AuthOkOut struct {
	OK bool `json:"ok"`
}
