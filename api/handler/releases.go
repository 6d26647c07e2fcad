package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"gantry/api/journal"
	"gantry/api/model"
)

func (h *Handler) CreateRelease(w http.ResponseWriter, r *http.Request) {
	var plan model.ReleasePlan
	if err := decodeJSON(r, &plan); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rel, err := h.engine.CreateRelease(r.Context(), &plan)
	if err != nil {
		code := http.StatusBadRequest
		if strings.Contains(err.Error(), "already exists") {
			code = http.StatusConflict
		}
		writeError(w, code, err.Error())
		return
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, rel)
}

func (h *Handler) ListReleases(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	releases, err := h.db.ListReleases(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if releases == nil {
		releases = []model.Release{}
	}
	writeJSON(w, releases)
}

// releaseSnapshot is the full query-surface view of one release.
type releaseSnapshot struct {
	Release *model.Release          `json:"release"`
	Stages  []model.StageStatus     `json:"stages"`
	Tasks   []model.Task            `json:"tasks"`
	Cycles  []model.RegressionCycle `json:"cycles"`
	Builds  []model.BuildArtifact   `json:"builds"`
}

func (h *Handler) GetRelease(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	rel, err := h.db.GetRelease(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusNotFound, "release not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	snap := releaseSnapshot{Release: rel}
	if snap.Stages, err = h.db.StageStatuses(ctx, id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if snap.Tasks, err = h.db.ListTasks(ctx, id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if snap.Cycles, err = h.db.ListCycles(ctx, id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if snap.Builds, err = h.db.ListArtifacts(ctx, id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if snap.Tasks == nil {
		snap.Tasks = []model.Task{}
	}
	if snap.Cycles == nil {
		snap.Cycles = []model.RegressionCycle{}
	}
	if snap.Builds == nil {
		snap.Builds = []model.BuildArtifact{}
	}
	writeJSON(w, snap)
}

// RecentJournal returns the newest events across every release, the
// feed a dashboard polls.
func (h *Handler) RecentJournal(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.journal.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []journal.Event{}
	}
	writeJSON(w, events)
}

func (h *Handler) ReleaseJournal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.journal.ListByRelease(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []journal.Event{}
	}
	writeJSON(w, events)
}
