package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/clipforge/scenekit/internal/models"
	"github.com/clipforge/scenekit/internal/statemachine"
	"github.com/google/uuid"
)

type generateFullScriptIn struct {
	Feedback string `json:"feedback"`
}

// GenerateFullScript handles POST /api/projects/{id}/full_script/generate,
// the synchronous twin of the full_script job handler — both paths go
// through Engine.RunSync so a request never diverges from the async
// prompt-building/persistence logic.
func (h *Handler) GenerateFullScript(w http.ResponseWriter, r *http.Request) {
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

	var in generateFullScriptIn
	_ = json.NewDecoder(r.Body).Decode(&in)

	job := &models.Job{
		ID:        uuid.New(),
		ProjectID: project.ID,
		Type:      models.JobTypeFullScript,
		Payload:   models.JSONB{"feedback": in.Feedback},
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

type updateFullScriptIn struct {
	FullScript           string `json:"full_script"`
	InvalidateDownstream bool   `json:"invalidate_downstream"`
}

// UpdateFullScript handles PUT /api/projects/{id}/full_script: a direct
// edit of the screenplay, as opposed to generate's LLM call.
func (h *Handler) UpdateFullScript(w http.ResponseWriter, r *http.Request) {
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

	var in updateFullScriptIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, newAppError(http.StatusBadRequest, "invalid request body"))
		return
	}
	if strings.TrimSpace(in.FullScript) == "" {
		respondError(w, newAppError(http.StatusBadRequest, "full_script is empty; generate it first"))
		return
	}

	project.FullScript = in.FullScript
	project.FinalVideoPath = nil

	if in.InvalidateDownstream {
		all := make([]int, 0, len(segments))
		for idx := range segments {
			all = append(all, idx)
		}
		for _, idx := range all {
			seg := segments[idx]
			statemachine.ApplyInvalidation(seg)
			if err := h.db.UpsertSegment(r.Context(), seg); err != nil {
				respondError(w, fmt.Errorf("invalidate segment %d: %w", idx, err))
				return
			}
		}
		project.CanonSummaries = ""
		project.CurrentSegmentIndex = 0
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
