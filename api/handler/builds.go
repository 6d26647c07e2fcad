package handler

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gantry/api/model"
)

type uploadBuildRequest struct {
	Platform model.Platform    `json:"platform"`
	Stage    model.Stage       `json:"stage"`
	Locator  string            `json:"locator"`
	Source   model.BuildSource `json:"source"`
}

// UploadBuild is the build-upload notification ingress. The binary
// itself was already stored by the upload middleware; this call hands
// the engine the locator.
func (h *Handler) UploadBuild(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req uploadBuildRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !model.ValidPlatform(req.Platform) {
		writeError(w, http.StatusBadRequest, "unknown platform")
		return
	}
	switch req.Stage {
	case model.StageKickoff, model.StageRegression, model.StagePostRegression:
	default:
		writeError(w, http.StatusBadRequest, "unknown stage")
		return
	}
	if req.Source == "" {
		req.Source = model.SourceManual
	}
	if req.Source != model.SourceManual && req.Source != model.SourceCICD {
		writeError(w, http.StatusBadRequest, "unknown source")
		return
	}

	// With storage configured the locator must name a real object.
	if h.s3 != nil && req.Locator != "" {
		if _, err := h.s3.StatArtifact(r.Context(), req.Locator); err != nil {
			writeError(w, http.StatusBadRequest, "locator not found in storage: "+err.Error())
			return
		}
	}

	artifact, err := h.engine.HandleBuildUploaded(r.Context(), id, req.Platform, req.Stage, req.Locator, req.Source)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "release not found")
		return
	default:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, artifact)
}

type buildView struct {
	model.BuildArtifact
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// ListBuilds renders every artifact for a release, staged and
// consumed, with presigned download links when storage is configured.
func (h *Handler) ListBuilds(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	artifacts, err := h.db.ListArtifacts(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]buildView, 0, len(artifacts))
	for _, a := range artifacts {
		v := buildView{BuildArtifact: a}
		if h.s3 != nil && a.Locator != "" {
			u, err := h.s3.PresignDownload(r.Context(), a.Locator, 15*time.Minute)
			if err != nil {
				log.Printf("builds: presign %s: %v", a.Locator, err)
			} else {
				v.DownloadURL = u
			}
		}
		views = append(views, v)
	}
	writeJSON(w, views)
}
