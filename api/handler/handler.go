package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"gantry/api/config"
	"gantry/api/engine"
	"gantry/api/hub"
	"gantry/api/journal"
	"gantry/api/storage"
	"gantry/api/store"
)

var validIDRe = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

type Handler struct {
	db      *store.DB
	engine  *engine.Engine
	journal journal.Store
	ws      *hub.Hub
	cfg     *config.Config
	s3      *storage.Client
}

func New(db *store.DB, eng *engine.Engine, js journal.Store, ws *hub.Hub, cfg *config.Config, s3 *storage.Client) *Handler {
	return &Handler{
		db:      db,
		engine:  eng,
		journal: js,
		ws:      ws,
		cfg:     cfg,
		s3:      s3,
	}
}

// ValidateID is middleware that rejects requests with malformed ids.
func ValidateID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, param := range []string{"id", "taskId", "cycleId"} {
			if v := chi.URLParam(r, param); v != "" && !validIDRe.MatchString(v) {
				http.Error(w, fmt.Sprintf("invalid %s", param), http.StatusBadRequest)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
