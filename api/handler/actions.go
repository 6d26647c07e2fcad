package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gantry/api/model"
)

// Advance is the manual stage-transition trigger: an operator approves
// moving past a completed stage whose auto-advance flag was not armed.
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.engine.TriggerNextStage(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, map[string]string{"status": "advanced"})
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "release not found")
	case errors.Is(err, model.ErrPhaseFinal):
		writeError(w, http.StatusConflict, "release already in final phase")
	case errors.Is(err, model.ErrStageIncomplete):
		writeError(w, http.StatusConflict, "current stage not completed")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) RetryTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")

	err := h.engine.RetryTask(r.Context(), taskID)
	switch {
	case err == nil:
		writeJSON(w, map[string]string{"status": "retrying"})
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, model.ErrNotRetryable):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) AbandonCycle(w http.ResponseWriter, r *http.Request) {
	cycleID := chi.URLParam(r, "cycleId")

	err := h.engine.AbandonCycle(r.Context(), cycleID)
	switch {
	case err == nil:
		writeJSON(w, map[string]string{"status": "abandoned"})
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "cycle not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type autoAdvanceRequest struct {
	Stage model.Stage `json:"stage"`
	Armed bool        `json:"armed"`
}

func (h *Handler) SetAutoAdvance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req autoAdvanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch req.Stage {
	case model.StageKickoff, model.StageRegression, model.StagePostRegression:
	default:
		writeError(w, http.StatusBadRequest, "unknown stage")
		return
	}

	err := h.engine.ArmAutoAdvance(r.Context(), id, req.Stage, req.Armed)
	switch {
	case err == nil:
		writeJSON(w, map[string]string{"status": "ok"})
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "release not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
