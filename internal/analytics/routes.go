package analytics

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultRecentLimit = 100
	maxRecentLimit     = 500
)

// incoming is the POST body. Fields are loosely typed so that a wrong type
// is reported as a malformed event rather than a JSON error.
type incoming struct {
	ID      any `json:"id"`
	Name    any `json:"name"`
	TS      any `json:"ts"`
	Payload any `json:"payload"`
}

// RegisterRoutes mounts POST /api/analytics and GET /api/analytics/recent.
func RegisterRoutes(r chi.Router, d *Dispatcher) {
	r.Route("/api/analytics", func(r chi.Router) {
		r.Post("/", handleRecord(d))
		r.Get("/recent", handleRecent(d))
	})
}

func handleRecord(d *Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON payload")
			return
		}
		var body incoming
		if len(raw) == 0 || raw[0] != '{' || json.Unmarshal(raw, &body) != nil {
			writeError(w, http.StatusBadRequest, "Malformed analytics event")
			return
		}

		name, _ := body.Name.(string)
		if Validate(Name(name)) != nil {
			writeError(w, http.StatusUnprocessableEntity, "Unknown analytics event")
			return
		}

		e := Event{
			ID:      uuid.New().String(),
			Name:    Name(name),
			TS:      time.Now().UnixMilli(),
			Payload: sanitizePayload(body.Payload),
		}
		if id, ok := body.ID.(string); ok && id != "" {
			e.ID = id
		}
		if ts, ok := body.TS.(float64); ok {
			e.TS = int64(ts)
		}

		d.Record(r.Context(), e)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "event": e})
	}
}

// sanitizePayload keeps object payloads and drops anything else.
func sanitizePayload(v any) map[string]any {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return m
}

func handleRecent(d *Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultRecentLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = min(n, maxRecentLimit)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"events": d.Buffer().Recent(limit),
			"total":  d.Buffer().Len(),
		})
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
