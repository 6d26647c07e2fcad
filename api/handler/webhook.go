package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gantry/api/model"
)

// Webhook is the CI/CD callback ingress. Providers deliver a
// normalized payload naming the task, the platform, and the outcome;
// the provider-specific translation happens upstream in the pipeline
// configuration. The body is authenticated with an HMAC signature.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if provider != "github" && provider != "jenkins" {
		writeError(w, http.StatusBadRequest, "unsupported provider")
		return
	}

	secret := h.cfg.WebhookSecret
	if secret == "" {
		writeError(w, http.StatusInternalServerError, "webhook secret not configured")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var sigHeader string
	switch provider {
	case "github":
		sigHeader = r.Header.Get("X-Hub-Signature-256")
	case "jenkins":
		sigHeader = r.Header.Get("X-Gantry-Signature")
	}

	if !verifySignature(body, secret, provider, sigHeader) {
		writeError(w, http.StatusForbidden, "invalid signature")
		return
	}

	var payload struct {
		TaskID   string         `json:"taskId"`
		Platform model.Platform `json:"platform"`
		Status   string         `json:"status"` // success | failure
		Reason   string         `json:"reason"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if payload.TaskID == "" || !model.ValidPlatform(payload.Platform) {
		writeError(w, http.StatusBadRequest, "taskId and platform are required")
		return
	}

	outcome := model.OutcomeSucceeded
	switch payload.Status {
	case "success":
	case "failure":
		outcome = model.OutcomeFailed
	default:
		writeError(w, http.StatusBadRequest, "status must be success or failure")
		return
	}

	log.Printf("webhook: %s callback for task %s (%s %s)", provider, payload.TaskID, payload.Platform, payload.Status)

	if err := h.engine.HandleCallback(r.Context(), payload.TaskID, payload.Platform, outcome, payload.Reason); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, map[string]string{"status": "accepted"})
}

func verifySignature(body []byte, secret, provider, sigHeader string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	switch provider {
	case "github":
		// GitHub sends: sha256=<hex>
		return hmac.Equal([]byte(sigHeader), []byte("sha256="+expected))
	case "jenkins":
		// Jenkins job sends the bare hex digest.
		return hmac.Equal([]byte(sigHeader), []byte(expected))
	}
	return false
}
