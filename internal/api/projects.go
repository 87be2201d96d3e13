package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/clipforge/scenekit/internal/db"
	"github.com/clipforge/scenekit/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type createProjectIn struct {
	UserPrompt           string `json:"user_prompt"`
	TotalDurationSeconds int    `json:"total_duration_seconds"`
	SegmentDuration      int    `json:"segment_duration"`
	Pacing               string `json:"pacing"`
}

// CreateProject handles POST /api/projects.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	u, err := h.requireUser(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var in createProjectIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, newAppError(http.StatusBadRequest, "invalid request body"))
		return
	}
	if in.UserPrompt == "" {
		respondError(w, newAppError(http.StatusBadRequest, "user_prompt is required"))
		return
	}
	if in.TotalDurationSeconds < 1 {
		respondError(w, newAppError(http.StatusBadRequest, "total_duration_seconds must be >= 1"))
		return
	}
	if in.SegmentDuration < 1 {
		respondError(w, newAppError(http.StatusBadRequest, "segment_duration must be >= 1"))
		return
	}
	pacing := models.Pacing(in.Pacing)
	switch pacing {
	case models.PacingNormal, models.PacingSlow, models.PacingUrgent:
	case "":
		pacing = models.PacingNormal
	default:
		respondError(w, newAppError(http.StatusBadRequest, "pacing must be one of normal, slow, urgent"))
		return
	}

	project := &models.Project{
		ID:                   uuid.New(),
		UserPrompt:           in.UserPrompt,
		Pacing:               pacing,
		TotalDurationSeconds: in.TotalDurationSeconds,
		SegmentDuration:      in.SegmentDuration,
		Status:               models.ProjectStatusActive,
	}
	if err := h.db.CreateProject(r.Context(), project); err != nil {
		respondError(w, fmt.Errorf("create project: %w", err))
		return
	}
	if !u.anonymous() {
		if err := h.db.CreateProjectOwner(r.Context(), project.ID, u.PrincipalID); err != nil {
			respondError(w, fmt.Errorf("create project owner: %w", err))
			return
		}
	}

	respondJSON(w, http.StatusOK, projectToDetail(project, map[int]*models.Segment{}, projectDetailOpts{}))
}

// ListProjects handles GET /api/projects.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	u, err := h.requireReadUser(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var projects []models.Project
	if u.anonymous() {
		projects, err = h.db.ListAllProjects(r.Context())
	} else {
		projects, err = h.db.ListProjectsForPrincipal(r.Context(), u.PrincipalID)
	}
	if err != nil {
		respondError(w, fmt.Errorf("list projects: %w", err))
		return
	}

	out := make([]ProjectSummary, 0, len(projects))
	for i := range projects {
		segments, err := h.db.ListSegments(r.Context(), projects[i].ID)
		if err != nil {
			respondError(w, fmt.Errorf("list segments: %w", err))
			return
		}
		out = append(out, projectToSummary(&projects[i], segments))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) loadOwnedProject(r *http.Request, u authUser) (*models.Project, map[int]*models.Segment, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return nil, nil, newAppError(http.StatusBadRequest, "invalid project id")
	}
	if err := h.requireProjectOwnership(r.Context(), id, u); err != nil {
		return nil, nil, err
	}
	project, err := h.db.GetProject(r.Context(), id)
	if err == db.ErrNotFound {
		return nil, nil, errProjectNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load project: %w", err)
	}
	segments, err := h.db.ListSegments(r.Context(), id)
	if err != nil {
		return nil, nil, fmt.Errorf("list segments: %w", err)
	}
	return project, segments, nil
}

// GetProject handles GET /api/projects/{id}.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
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

	opts := projectDetailOpts{
		IncludeFullScript: r.URL.Query().Get("include_full_script") == "true",
		IncludeCanon:      r.URL.Query().Get("include_canon") == "true",
	}
	respondJSON(w, http.StatusOK, projectToDetail(project, segments, opts))
}

// AssembleProject handles POST /api/projects/{id}/assemble.
func (h *Handler) AssembleProject(w http.ResponseWriter, r *http.Request) {
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

	total := project.TotalSegments()
	var missing []int
	for i := 0; i < total; i++ {
		seg, ok := segments[i]
		if !ok || seg.VideoPath == nil || *seg.VideoPath == "" {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		sort.Ints(missing)
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"detail":           "segments are missing video",
			"missing_segments": missing,
		})
		return
	}

	job := &models.Job{ID: uuid.New(), ProjectID: project.ID, Type: models.JobTypeAssemble, Payload: models.JSONB{}}
	if _, err := h.engine.RunSync(r.Context(), job); err != nil {
		respondError(w, fmt.Errorf("assemble: %w", err))
		return
	}

	project, segments, err = h.loadOwnedProject(r, u)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, projectToDetail(project, segments, projectDetailOpts{}))
}

// GetProjectFinal handles GET /api/projects/{id}/final.
func (h *Handler) GetProjectFinal(w http.ResponseWriter, r *http.Request) {
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
	if project.FinalVideoPath == nil || *project.FinalVideoPath == "" {
		respondError(w, newAppError(http.StatusNotFound, "final video has not been assembled"))
		return
	}
	http.ServeFile(w, r, *project.FinalVideoPath)
}
