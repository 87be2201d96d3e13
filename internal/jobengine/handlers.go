package jobengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/clipforge/scenekit/internal/canon"
	"github.com/clipforge/scenekit/internal/llm"
	"github.com/clipforge/scenekit/internal/models"
	"github.com/clipforge/scenekit/internal/statemachine"
	"github.com/clipforge/scenekit/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// invalidateSegments demotes every listed segment to pending concurrently,
// the way the teacher's handleProcessClip fans out its independent
// image/audio sub-steps with errgroup.WithContext instead of a serial loop.
func (e *Engine) invalidateSegments(ctx context.Context, segments map[int]*models.Segment, indices []int) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, idx := range indices {
		seg := segments[idx]
		g.Go(func() error {
			statemachine.ApplyInvalidation(seg)
			if err := e.db.UpsertSegment(gctx, seg); err != nil {
				return fmt.Errorf("invalidate segment %d: %w", seg.Index, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// JobContext is the explicit replacement for the workflow engine's
// duck-typed state map: every handler reads project_id, locale and feedback
// off of it instead of indexing into an untyped dict.
type JobContext struct {
	ProjectID uuid.UUID
	Locale    string
	Feedback  string
	Index     int
	HasIndex  bool
}

func newJobContext(job *models.Job) JobContext {
	jc := JobContext{
		ProjectID: job.ProjectID,
		Locale:    payloadString(job.Payload, "locale"),
		Feedback:  strings.TrimSpace(payloadString(job.Payload, "feedback")),
	}
	if idx, ok := payloadInt(job.Payload, "index"); ok {
		jc.Index = idx
		jc.HasIndex = true
	}
	return jc
}

func (e *Engine) runFullScript(ctx context.Context, job *models.Job) (map[string]interface{}, error) {
	jc := newJobContext(job)

	project, err := e.db.GetProject(ctx, jc.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("jobengine: full_script: load project: %w", err)
	}

	segments, err := e.db.ListSegments(ctx, jc.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("jobengine: full_script: list segments: %w", err)
	}
	all := make([]int, 0, len(segments))
	for idx := range segments {
		all = append(all, idx)
	}
	if err := e.invalidateSegments(ctx, segments, all); err != nil {
		return nil, fmt.Errorf("jobengine: full_script: %w", err)
	}

	project.CanonSummaries = ""
	project.CurrentSegmentIndex = 0
	project.FinalVideoPath = nil

	e.setProgress(ctx, job.ID, 10, "jobmsg.full_script.calling_llm", nil)

	system, user := fullScriptPrompt(project, jc)
	reply, err := e.text.Chat(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("jobengine: full_script: text llm: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil, fmt.Errorf("jobengine: full_script: text llm returned empty result")
	}

	project.FullScript = reply
	if err := e.db.UpdateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("jobengine: full_script: persist project: %w", err)
	}

	if err := e.layout.EnsureProjectDirs(jc.ProjectID); err != nil {
		return nil, fmt.Errorf("jobengine: full_script: ensure dirs: %w", err)
	}
	if err := storage.AtomicWriteText(e.layout.FullScriptPath(jc.ProjectID), reply); err != nil {
		return nil, fmt.Errorf("jobengine: full_script: write file: %w", err)
	}

	return map[string]interface{}{"full_script": reply}, nil
}

func fullScriptPrompt(project *models.Project, jc JobContext) (system, user string) {
	system = "You are a screenwriter breaking a short video idea into a single cohesive screenplay. " +
		"Write prose only, no headings, no segment markers."
	var b strings.Builder
	fmt.Fprintf(&b, "Prompt: %s\n", project.UserPrompt)
	fmt.Fprintf(&b, "Pacing: %s\n", project.Pacing)
	fmt.Fprintf(&b, "Total duration: %ds, segment duration: %ds\n", project.TotalDurationSeconds, project.SegmentDuration)
	if jc.Feedback != "" {
		fmt.Fprintf(&b, "Feedback to incorporate: %s\n", jc.Feedback)
	}
	if jc.Locale != "" {
		fmt.Fprintf(&b, "Locale: %s\n", jc.Locale)
	}
	return system, b.String()
}

func (e *Engine) runSegmentGenerate(ctx context.Context, job *models.Job) (map[string]interface{}, error) {
	jc := newJobContext(job)
	if !jc.HasIndex {
		return nil, fmt.Errorf("jobengine: segment_generate: missing index")
	}
	i := jc.Index

	project, err := e.db.GetProject(ctx, jc.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("jobengine: segment_generate: load project: %w", err)
	}
	if strings.TrimSpace(project.FullScript) == "" {
		return nil, fmt.Errorf("jobengine: segment_generate: full_script is empty")
	}
	total := project.TotalSegments()
	if i < 0 || i >= total {
		return nil, fmt.Errorf("jobengine: segment_generate: index %d out of range [0,%d)", i, total)
	}

	segments, err := e.db.ListSegments(ctx, jc.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("jobengine: segment_generate: list segments: %w", err)
	}
	if err := e.invalidateSegments(ctx, segments, statemachine.InvalidateDownstream(segments, i)); err != nil {
		return nil, fmt.Errorf("jobengine: segment_generate: %w", err)
	}

	project.CanonSummaries = canon.BeforeIndex(project.CanonSummaries, i)
	project.LastFramePath = statemachine.LatestFrameBefore(segments, i)
	project.FinalVideoPath = nil

	e.setProgress(ctx, job.ID, 20, "jobmsg.segment.calling_llm", map[string]interface{}{"n": segNum(i)})

	startS, endS := project.TimeRange(i)
	system, user := segmentPrompt(project, jc, i, startS, endS)
	reply, err := e.text.Chat(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("jobengine: segment_generate: text llm: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		return nil, fmt.Errorf("jobengine: segment_generate: text llm returned empty result")
	}

	parsed := llm.ExtractJSON(reply)

	seg := segments[i]
	if seg == nil {
		seg = &models.Segment{ProjectID: jc.ProjectID, Index: i}
	}
	seg.SegmentScript = parsed.Script
	seg.VideoPrompt = parsed.VideoPrompt
	seg.VideoPath = nil
	seg.VideoDescription = nil
	seg.LastFramePath = nil
	seg.Status = models.SegmentStatusScriptReady
	if err := e.db.UpsertSegment(ctx, seg); err != nil {
		return nil, fmt.Errorf("jobengine: segment_generate: upsert segment: %w", err)
	}

	project.CurrentSegmentIndex = i
	if err := e.db.UpdateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("jobengine: segment_generate: persist project: %w", err)
	}

	if err := e.layout.EnsureProjectDirs(jc.ProjectID); err != nil {
		return nil, fmt.Errorf("jobengine: segment_generate: ensure dirs: %w", err)
	}
	if err := storage.AtomicWriteText(e.layout.SegmentTextPath(jc.ProjectID, i), parsed.Script); err != nil {
		return nil, fmt.Errorf("jobengine: segment_generate: write file: %w", err)
	}

	return map[string]interface{}{
		"index":        i,
		"script":       parsed.Script,
		"video_prompt": parsed.VideoPrompt,
	}, nil
}

func segmentPrompt(project *models.Project, jc JobContext, i, startS, endS int) (system, user string) {
	system = fmt.Sprintf(
		"You are writing segment %d of a screenplay, covering %ds-%ds of the video. "+
			"Reply ONLY as JSON: {\"script\": <segment narration>, \"video_prompt\": <generation prompt for this segment's clip>}.",
		i+1, startS, endS,
	)
	recent := canon.Recent(project.CanonSummaries, 3)
	var b strings.Builder
	fmt.Fprintf(&b, "Full script:\n%s\n\n", project.FullScript)
	if recent != "" {
		fmt.Fprintf(&b, "Recent segment summaries:\n%s\n\n", recent)
	}
	fmt.Fprintf(&b, "Current time marker: %ds\n", endS)
	if jc.Feedback != "" {
		fmt.Fprintf(&b, "Feedback to incorporate: %s\n", jc.Feedback)
	}
	return system, b.String()
}

func (e *Engine) runExtractFrame(ctx context.Context, job *models.Job) (map[string]interface{}, error) {
	jc := newJobContext(job)
	if !jc.HasIndex {
		return nil, fmt.Errorf("jobengine: extract_frame: missing index")
	}
	i := jc.Index

	seg, err := e.db.GetSegment(ctx, jc.ProjectID, i)
	if err != nil {
		return nil, fmt.Errorf("jobengine: extract_frame: load segment: %w", err)
	}
	if seg.VideoPath == nil || *seg.VideoPath == "" || !storage.Exists(*seg.VideoPath) {
		return nil, fmt.Errorf("jobengine: extract_frame: segment %d has no video on disk", i)
	}

	framePath := e.layout.FramePath(jc.ProjectID, i)
	_ = storage.RemoveIfExists(framePath)

	e.renderSem <- struct{}{}
	out, err := e.media.ExtractLastFrame(ctx, *seg.VideoPath, framePath)
	<-e.renderSem
	if err != nil {
		return nil, fmt.Errorf("jobengine: extract_frame: %w", err)
	}

	seg.LastFramePath = &out
	if err := e.db.UpsertSegment(ctx, seg); err != nil {
		return nil, fmt.Errorf("jobengine: extract_frame: persist segment: %w", err)
	}

	return map[string]interface{}{"index": i, "frame_path": out}, nil
}

func (e *Engine) runAnalyze(ctx context.Context, job *models.Job) (map[string]interface{}, error) {
	jc := newJobContext(job)
	if !jc.HasIndex {
		return nil, fmt.Errorf("jobengine: analyze: missing index")
	}
	i := jc.Index

	project, err := e.db.GetProject(ctx, jc.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("jobengine: analyze: load project: %w", err)
	}
	seg, err := e.db.GetSegment(ctx, jc.ProjectID, i)
	if err != nil {
		return nil, fmt.Errorf("jobengine: analyze: load segment: %w", err)
	}

	seg.Status = models.SegmentStatusAnalyzing
	if err := e.db.UpsertSegment(ctx, seg); err != nil {
		return nil, fmt.Errorf("jobengine: analyze: mark analyzing: %w", err)
	}

	fail := func(cause error) (map[string]interface{}, error) {
		seg.Status = models.SegmentStatusFailed
		if uerr := e.db.UpsertSegment(ctx, seg); uerr != nil {
			return nil, fmt.Errorf("jobengine: analyze: mark failed: %w (after: %v)", uerr, cause)
		}
		return nil, cause
	}

	if seg.VideoPath == nil || *seg.VideoPath == "" || !storage.Exists(*seg.VideoPath) {
		return fail(fmt.Errorf("jobengine: analyze: segment %d has no video on disk", i))
	}

	e.setProgress(ctx, job.ID, 30, "jobmsg.analyze.extracting_frame", map[string]interface{}{"n": segNum(i)})

	framePath := e.layout.FramePath(jc.ProjectID, i)
	_ = storage.RemoveIfExists(framePath)
	e.renderSem <- struct{}{}
	framePath, err = e.media.ExtractLastFrame(ctx, *seg.VideoPath, framePath)
	<-e.renderSem
	if err != nil {
		return fail(fmt.Errorf("jobengine: analyze: extract frame: %w", err))
	}
	seg.LastFramePath = &framePath

	startS, endS := project.TimeRange(i)
	system, user := analyzerPrompt(seg, jc, startS, endS)

	e.setProgress(ctx, job.ID, 60, "jobmsg.analyze.calling_llm", map[string]interface{}{"n": segNum(i)})

	e.llmSem <- struct{}{}
	description, err := e.image.ChatWithImage(ctx, system, user, framePath)
	<-e.llmSem
	if err != nil {
		return fail(fmt.Errorf("jobengine: analyze: multimodal llm: %w", err))
	}

	compact := canon.CompactDescription(description, 240)
	summary := canon.FormatSummary(i, startS, endS, compact)

	seg.VideoDescription = &description
	seg.Status = models.SegmentStatusCompleted
	if err := e.db.UpsertSegment(ctx, seg); err != nil {
		return nil, fmt.Errorf("jobengine: analyze: persist segment: %w", err)
	}

	project.CanonSummaries = canon.Append(project.CanonSummaries, summary)
	project.CurrentSegmentIndex = i + 1
	project.FinalVideoPath = nil
	if err := e.db.UpdateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("jobengine: analyze: persist project: %w", err)
	}

	return map[string]interface{}{
		"index":             i,
		"video_description": description,
		"canon_summary":     summary,
	}, nil
}

func analyzerPrompt(seg *models.Segment, jc JobContext, startS, endS int) (system, user string) {
	system = "You describe the last frame of a video segment for use as continuity memory. " +
		"Begin your reply with a line `[[CANON_SUMMARY]]: <one sentence>` summarizing the visual state, " +
		"then elaborate freely."
	user = fmt.Sprintf(
		"Segment script: %s\nTime range: %ds-%ds\nDescribe the frame's composition, subjects, and any on-screen state relevant to continuity.",
		seg.SegmentScript, startS, endS,
	)
	return system, user
}

func (e *Engine) runAssemble(ctx context.Context, job *models.Job) (map[string]interface{}, error) {
	jc := newJobContext(job)

	project, err := e.db.GetProject(ctx, jc.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("jobengine: assemble: load project: %w", err)
	}
	segments, err := e.db.ListSegments(ctx, jc.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("jobengine: assemble: list segments: %w", err)
	}

	total := project.TotalSegments()
	paths := make([]string, total)
	var missing []int
	for i := 0; i < total; i++ {
		seg, ok := segments[i]
		if !ok || seg.VideoPath == nil || *seg.VideoPath == "" || !storage.Exists(*seg.VideoPath) {
			missing = append(missing, i)
			continue
		}
		paths[i] = *seg.VideoPath
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("jobengine: assemble: segments missing video: %v", missing)
	}

	e.setProgress(ctx, job.ID, 50, "jobmsg.assemble.concatenating", nil)

	if err := e.layout.EnsureProjectDirs(jc.ProjectID); err != nil {
		return nil, fmt.Errorf("jobengine: assemble: ensure dirs: %w", err)
	}
	out := e.layout.FinalVideoPath(jc.ProjectID)

	e.renderSem <- struct{}{}
	finalPath, err := e.media.ConcatenateVideos(ctx, paths, out, e.concatMode)
	<-e.renderSem
	if err != nil {
		return nil, fmt.Errorf("jobengine: assemble: %w", err)
	}

	project.FinalVideoPath = &finalPath
	if err := e.db.UpdateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("jobengine: assemble: persist project: %w", err)
	}

	return map[string]interface{}{"final_video_path": finalPath}, nil
}
