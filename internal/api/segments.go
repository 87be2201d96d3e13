package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/clipforge/scenekit/internal/models"
	"github.com/clipforge/scenekit/internal/statemachine"
	"github.com/clipforge/scenekit/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func segmentIndex(r *http.Request, total int) (int, error) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return 0, newAppError(http.StatusBadRequest, "invalid segment index")
	}
	if i < 0 || i >= total {
		return 0, newAppError(http.StatusBadRequest, fmt.Sprintf("index out of range (0..%d)", total-1))
	}
	return i, nil
}

type generateSegmentIn struct {
	Feedback string `json:"feedback"`
}

// GenerateSegment handles POST /api/projects/{id}/segments/{index}/generate.
func (h *Handler) GenerateSegment(w http.ResponseWriter, r *http.Request) {
	u, err := h.requireUser(r)
	if err != nil {
		respondError(w, err)
		return
	}
	project, _, err := h.loadOwnedProject(r, u)
	if err != nil {
		respondError(w, err)
		return
	}
	index, err := segmentIndex(r, project.TotalSegments())
	if err != nil {
		respondError(w, err)
		return
	}

	var in generateSegmentIn
	_ = json.NewDecoder(r.Body).Decode(&in)

	job := &models.Job{
		ID:        uuid.New(),
		ProjectID: project.ID,
		Type:      models.JobTypeSegmentGenerate,
		Payload:   models.JSONB{"index": index, "feedback": in.Feedback},
	}
	if _, err := h.engine.RunSync(r.Context(), job); err != nil {
		respondError(w, newAppError(http.StatusBadRequest, err.Error()))
		return
	}

	project, segments, err := h.loadOwnedProject(r, u)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, projectToDetail(project, segments, projectDetailOpts{}))
}

type updateSegmentIn struct {
	SegmentScript        *string `json:"segment_script"`
	VideoPrompt          *string `json:"video_prompt"`
	InvalidateDownstream bool    `json:"invalidate_downstream"`
}

// UpdateSegment handles PUT /api/projects/{id}/segments/{index}.
func (h *Handler) UpdateSegment(w http.ResponseWriter, r *http.Request) {
	u, err := h.requireUser(r)
	if err != nil {
		respondError(w, err)
		return
	}
	project, segments, err := h.loadOwnedProject(r, u)
	if err != nil {
		respondError(w, err)
		return
	}
	index, err := segmentIndex(r, project.TotalSegments())
	if err != nil {
		respondError(w, err)
		return
	}

	var in updateSegmentIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, newAppError(http.StatusBadRequest, "invalid request body"))
		return
	}

	seg, ok := segments[index]
	if !ok {
		seg = &models.Segment{ProjectID: project.ID, Index: index, Status: models.SegmentStatusScriptReady}
	}
	if in.SegmentScript != nil {
		seg.SegmentScript = *in.SegmentScript
	}
	if in.VideoPrompt != nil {
		seg.VideoPrompt = *in.VideoPrompt
	}
	if seg.Status == "" {
		seg.Status = models.SegmentStatusScriptReady
	}
	if err := h.db.UpsertSegment(r.Context(), seg); err != nil {
		respondError(w, fmt.Errorf("persist segment: %w", err))
		return
	}
	segments[index] = seg

	project.FinalVideoPath = nil
	if in.InvalidateDownstream {
		for _, idx := range statemachine.InvalidateDownstream(segments, index) {
			downstream := segments[idx]
			statemachine.ApplyInvalidation(downstream)
			if err := h.db.UpsertSegment(r.Context(), downstream); err != nil {
				respondError(w, fmt.Errorf("invalidate segment %d: %w", idx, err))
				return
			}
		}
	}
	if err := h.db.UpdateProject(r.Context(), project); err != nil {
		respondError(w, fmt.Errorf("persist project: %w", err))
		return
	}

	segments, err = h.db.ListSegments(r.Context(), project.ID)
	if err != nil {
		respondError(w, fmt.Errorf("list segments: %w", err))
		return
	}
	respondJSON(w, http.StatusOK, projectToDetail(project, segments, projectDetailOpts{}))
}

// GetSegment handles GET /api/projects/{id}/segments/{index}.
func (h *Handler) GetSegment(w http.ResponseWriter, r *http.Request) {
	u, err := h.requireReadUser(r)
	if err != nil {
		respondError(w, err)
		return
	}
	project, segments, err := h.loadOwnedProject(r, u)
	if err != nil {
		respondError(w, err)
		return
	}
	index, err := segmentIndex(r, project.TotalSegments())
	if err != nil {
		respondError(w, err)
		return
	}

	if seg, ok := segments[index]; ok {
		respondJSON(w, http.StatusOK, segmentToDetail(project.ID, seg, nil))
		return
	}
	respondJSON(w, http.StatusOK, syntheticSegmentDetail(index, project))
}

const maxUploadChunk = 1 << 20 // 1 MiB, per the streaming upload contract

// UploadVideo handles POST /api/projects/{id}/segments/{index}/video.
func (h *Handler) UploadVideo(w http.ResponseWriter, r *http.Request) {
	u, err := h.requireUser(r)
	if err != nil {
		respondError(w, err)
		return
	}
	project, segments, err := h.loadOwnedProject(r, u)
	if err != nil {
		respondError(w, err)
		return
	}
	index, err := segmentIndex(r, project.TotalSegments())
	if err != nil {
		respondError(w, err)
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		respondError(w, newAppError(http.StatusBadRequest, "expected multipart/form-data body"))
		return
	}

	var part *multipartPart
	for {
		p, perr := mr.NextPart()
		if perr == io.EOF {
			break
		}
		if perr != nil {
			respondError(w, newAppError(http.StatusBadRequest, "malformed multipart body"))
			return
		}
		if p.FileName() != "" {
			part = &multipartPart{p}
			break
		}
	}
	if part == nil {
		respondError(w, newAppError(http.StatusBadRequest, "no file part found"))
		return
	}

	ext := filepath.Ext(part.FileName())
	if !storage.IsAllowedVideoExt(ext) {
		respondError(w, newAppError(http.StatusBadRequest, "UNSUPPORTED_VIDEO_TYPE"))
		return
	}

	if err := h.layout.EnsureProjectDirs(project.ID); err != nil {
		respondError(w, fmt.Errorf("ensure project dirs: %w", err))
		return
	}
	destPath := h.layout.InputVideoPath(project.ID, index, part.FileName())

	maxBytes := int64(h.cfg.MaxUploadMB) * (1 << 20)
	if err := part.streamTo(destPath, maxBytes); err != nil {
		if err == errUploadTooLarge {
			respondError(w, newAppError(http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE"))
			return
		}
		respondError(w, fmt.Errorf("write upload: %w", err))
		return
	}

	seg, ok := segments[index]
	if !ok {
		seg = &models.Segment{ProjectID: project.ID, Index: index, Status: models.SegmentStatusScriptReady}
	}
	seg.VideoPath = &destPath
	seg.VideoDescription = nil
	seg.LastFramePath = nil
	if err := h.db.UpsertSegment(r.Context(), seg); err != nil {
		respondError(w, fmt.Errorf("persist segment: %w", err))
		return
	}

	project.FinalVideoPath = nil
	if err := h.db.UpdateProject(r.Context(), project); err != nil {
		respondError(w, fmt.Errorf("persist project: %w", err))
		return
	}

	var warnings []string
	framePath := h.layout.FramePath(project.ID, index)
	_ = storage.RemoveIfExists(framePath)
	if out, ferr := h.media.ExtractLastFrame(r.Context(), destPath, framePath); ferr == nil {
		seg.LastFramePath = &out
		_ = h.db.UpsertSegment(r.Context(), seg)
	} else {
		warnings = append(warnings, "Failed to extract last frame")
	}

	respondJSON(w, http.StatusOK, segmentToDetail(project.ID, seg, warnings))
}

// StreamVideo handles GET /api/projects/{id}/segments/{index}/video.
func (h *Handler) StreamVideo(w http.ResponseWriter, r *http.Request) {
	u, err := h.requireReadUser(r)
	if err != nil {
		respondError(w, err)
		return
	}
	project, segments, err := h.loadOwnedProject(r, u)
	if err != nil {
		respondError(w, err)
		return
	}
	index, err := segmentIndex(r, project.TotalSegments())
	if err != nil {
		respondError(w, err)
		return
	}
	seg, ok := segments[index]
	if !ok || seg.VideoPath == nil || *seg.VideoPath == "" {
		respondError(w, newAppError(http.StatusNotFound, "segment has no uploaded video"))
		return
	}
	http.ServeFile(w, r, *seg.VideoPath)
}

// ExtractFrame handles POST /api/projects/{id}/segments/{index}/extract_frame.
// Best-effort like upload's inline extraction: a failure is reported as a
// warning with 200, not a hard error, since the analyze route is the one
// that hard-fails on a missing frame.
func (h *Handler) ExtractFrame(w http.ResponseWriter, r *http.Request) {
	u, err := h.requireUser(r)
	if err != nil {
		respondError(w, err)
		return
	}
	project, segments, err := h.loadOwnedProject(r, u)
	if err != nil {
		respondError(w, err)
		return
	}
	index, err := segmentIndex(r, project.TotalSegments())
	if err != nil {
		respondError(w, err)
		return
	}
	seg, ok := segments[index]
	if !ok || seg.VideoPath == nil || *seg.VideoPath == "" {
		respondError(w, newAppError(http.StatusBadRequest, "segment has no uploaded video"))
		return
	}

	var warnings []string
	framePath := h.layout.FramePath(project.ID, index)
	_ = storage.RemoveIfExists(framePath)
	out, ferr := h.media.ExtractLastFrame(r.Context(), *seg.VideoPath, framePath)
	if ferr != nil {
		warnings = append(warnings, "Failed to extract last frame")
	} else {
		seg.LastFramePath = &out
		if err := h.db.UpsertSegment(r.Context(), seg); err != nil {
			respondError(w, fmt.Errorf("persist segment: %w", err))
			return
		}
	}

	respondJSON(w, http.StatusOK, segmentToDetail(project.ID, seg, warnings))
}

// AnalyzeSegment handles POST /api/projects/{id}/segments/{index}/analyze.
// Unlike upload/extract_frame, this hard-fails: a frame-extraction or
// multimodal-LLM error marks the segment failed and surfaces as a 500, per
// runAnalyze's fail() path. Returns ProjectDetail, not SegmentDetail.
func (h *Handler) AnalyzeSegment(w http.ResponseWriter, r *http.Request) {
	u, err := h.requireUser(r)
	if err != nil {
		respondError(w, err)
		return
	}
	project, _, err := h.loadOwnedProject(r, u)
	if err != nil {
		respondError(w, err)
		return
	}
	index, err := segmentIndex(r, project.TotalSegments())
	if err != nil {
		respondError(w, err)
		return
	}

	job := &models.Job{
		ID:        uuid.New(),
		ProjectID: project.ID,
		Type:      models.JobTypeAnalyze,
		Payload:   models.JSONB{"index": index},
	}
	if _, err := h.engine.RunSync(r.Context(), job); err != nil {
		respondError(w, fmt.Errorf("analyze: %w", err))
		return
	}

	project, segments, err := h.loadOwnedProject(r, u)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, projectToDetail(project, segments, projectDetailOpts{}))
}

// StreamFrame handles GET /api/projects/{id}/segments/{index}/frame.
func (h *Handler) StreamFrame(w http.ResponseWriter, r *http.Request) {
	seg, err := h.loadFrameSegment(r)
	if err != nil {
		respondError(w, err)
		return
	}
	http.ServeFile(w, r, *seg.LastFramePath)
}

// DownloadFrame handles GET /api/projects/{id}/segments/{index}/frame/download.
func (h *Handler) DownloadFrame(w http.ResponseWriter, r *http.Request) {
	seg, err := h.loadFrameSegment(r)
	if err != nil {
		respondError(w, err)
		return
	}
	ext := filepath.Ext(*seg.LastFramePath)
	filename := fmt.Sprintf("frame_%03d%s", seg.Index+1, ext)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, *seg.LastFramePath)
}

func (h *Handler) loadFrameSegment(r *http.Request) (*models.Segment, error) {
	u, err := h.requireReadUser(r)
	if err != nil {
		return nil, err
	}
	project, segments, err := h.loadOwnedProject(r, u)
	if err != nil {
		return nil, err
	}
	index, err := segmentIndex(r, project.TotalSegments())
	if err != nil {
		return nil, err
	}
	seg, ok := segments[index]
	if !ok || seg.LastFramePath == nil || *seg.LastFramePath == "" || !storage.Exists(*seg.LastFramePath) {
		return nil, newAppError(http.StatusNotFound, "segment has no extracted frame")
	}
	return seg, nil
}

type multipartPartReader interface {
	Read(p []byte) (int, error)
	FileName() string
}

// multipartPart wraps *multipart.Part so streamTo can be tested against any
// io.Reader satisfying the same shape.
type multipartPart struct {
	multipartPartReader
}

var errUploadTooLarge = fmt.Errorf("upload exceeds configured maximum size")

// streamTo copies the part to dest in maxUploadChunk-sized reads, aborting
// with errUploadTooLarge the moment the running total exceeds maxBytes —
// never trusting Content-Length, since chunked transfer encodings omit it.
func (p *multipartPart) streamTo(dest string, maxBytes int64) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	defer out.Close()

	buf := make([]byte, maxUploadChunk)
	var total int64
	for {
		n, rerr := p.Read(buf)
		if n > 0 {
			total += int64(n)
			if total > maxBytes {
				os.Remove(dest)
				return errUploadTooLarge
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write chunk: %w", werr)
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("read chunk: %w", rerr)
		}
	}
}
