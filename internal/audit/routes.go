package audit

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxPageSize caps the limit query parameter.
const maxPageSize = 500

// RegisterRoutes mounts the read-side audit endpoints under /api/audit.
func RegisterRoutes(r chi.Router, store *Store, logger *zap.SugaredLogger) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	r.Route("/api/audit", func(r chi.Router) {
		r.Get("/", handleQuery(store, logger))
		r.Get("/{id}", handleGetByID(store, logger))
	})
}

func handleQuery(store *Store, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := QueryFilter{
			Route: q.Get("route"),
			Limit: 100,
		}

		if v := q.Get("since"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				filter.Since = &t
			}
		}
		if v := q.Get("until"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				filter.Until = &t
			}
		}
		if v := q.Get("min_redactions"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.MinRedactions = n
			}
		}
		if v := q.Get("max_confidence"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				filter.MaxConfidence = &f
			}
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				filter.Limit = min(n, maxPageSize)
			}
		}
		if v := q.Get("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				filter.Offset = n
			}
		}

		records, err := store.Query(r.Context(), filter)
		if err != nil {
			logger.Errorw("querying audit records", "error", err)
			writeError(w, http.StatusInternalServerError, "Unable to load audit records")
			return
		}
		total, err := store.Count(r.Context(), filter)
		if err != nil {
			logger.Errorw("counting audit records", "error", err)
			writeError(w, http.StatusInternalServerError, "Unable to load audit records")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"records": records,
			"total":   total,
		})
	}
}

func handleGetByID(store *Store, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		rec, err := store.GetByID(r.Context(), id)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "Audit record not found")
			return
		}
		if err != nil {
			logger.Errorw("loading audit record", "id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "Unable to load audit record")
			return
		}

		writeJSON(w, http.StatusOK, rec)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
