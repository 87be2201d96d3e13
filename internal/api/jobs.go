package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/clipforge/scenekit/internal/db"
	"github.com/clipforge/scenekit/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type createJobIn struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

var creatableJobTypes = map[string]models.JobType{
	"full_script":      models.JobTypeFullScript,
	"segment_generate": models.JobTypeSegmentGenerate,
	"extract_frame":    models.JobTypeExtractFrame,
	"analyze":          models.JobTypeAnalyze,
	"assemble":         models.JobTypeAssemble,
}

// CreateJob handles POST /api/projects/{id}/jobs — the asynchronous twin of
// the synchronous generate/analyze/assemble routes. The job is only queued
// here; Engine.Start's worker loop (woken via WakeQueue) does the actual work.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
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

	var in createJobIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, newAppError(http.StatusBadRequest, "invalid request body"))
		return
	}
	jobType, ok := creatableJobTypes[in.Type]
	if !ok {
		respondError(w, newAppError(http.StatusBadRequest, "unknown job type"))
		return
	}

	payload := models.JSONB{}
	for k, v := range in.Payload {
		payload[k] = v
	}

	job := &models.Job{
		ID:        uuid.New(),
		ProjectID: project.ID,
		Type:      jobType,
		Status:    models.JobStatusQueued,
		Payload:   payload,
	}
	if err := h.db.CreateJob(r.Context(), job); err != nil {
		respondError(w, fmt.Errorf("create job: %w", err))
		return
	}
	if h.wake != nil {
		_ = h.wake.Wake(r.Context())
	}

	respondJSON(w, http.StatusOK, jobToOut(job))
}

const (
	defaultJobListLimit = 20
	maxJobListLimit     = 200
)

// ListJobs handles GET /api/projects/{id}/jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	u, err := h.requireReadUser(r)
	if err != nil {
		respondError(w, err)
		return
	}
	project, _, err := h.loadOwnedProject(r, u)
	if err != nil {
		respondError(w, err)
		return
	}

	limit := defaultJobListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit <= 0 {
		limit = defaultJobListLimit
	}
	if limit > maxJobListLimit {
		limit = maxJobListLimit
	}

	jobs, err := h.db.ListJobs(r.Context(), project.ID, limit)
	if err != nil {
		respondError(w, fmt.Errorf("list jobs: %w", err))
		return
	}
	out := make([]JobOut, 0, len(jobs))
	for i := range jobs {
		out = append(out, jobToOut(&jobs[i]))
	}
	respondJSON(w, http.StatusOK, out)
}

// GetJob handles GET /api/projects/{id}/jobs/{job_id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	u, err := h.requireReadUser(r)
	if err != nil {
		respondError(w, err)
		return
	}
	project, _, err := h.loadOwnedProject(r, u)
	if err != nil {
		respondError(w, err)
		return
	}

	jobID, err := uuid.Parse(chi.URLParam(r, "job_id"))
	if err != nil {
		respondError(w, newAppError(http.StatusBadRequest, "invalid job id"))
		return
	}
	job, err := h.db.GetJob(r.Context(), jobID)
	if err == db.ErrNotFound || (err == nil && job.ProjectID != project.ID) {
		respondError(w, newAppError(http.StatusNotFound, "job not found"))
		return
	}
	if err != nil {
		respondError(w, fmt.Errorf("load job: %w", err))
		return
	}
	respondJSON(w, http.StatusOK, jobToOut(job))
}
