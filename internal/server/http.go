package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/alfredjeanlab/logbridge/internal/model"
)

// defaultRecentLimit caps GET /v1/logs/recent when no limit is given.
const defaultRecentLimit = 100

// NewHTTPHandler returns the handler for the primary port: the live stream,
// the guide proxy and the query API.
func (s *Server) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stream", s.handleStream)
	mux.HandleFunc("POST /api/guide", s.handleGuide)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/agents", s.handleAgents)
	mux.HandleFunc("GET /v1/logs/recent", s.handleRecent)
	return mux
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	subscribers := 0
	if s.hub != nil {
		subscribers = s.hub.Len()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "subscribers": subscribers})
}

// handleAgents handles GET /v1/agents.
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	var stale time.Duration
	if v := r.URL.Query().Get("stale_threshold_secs"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 0 {
			writeError(w, http.StatusBadRequest, "invalid stale_threshold_secs")
			return
		}
		stale = time.Duration(secs) * time.Second
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": s.Presence.Roster(stale)})
}

// handleRecent handles GET /v1/logs/recent. By default it reads the
// in-memory history; ?source=db reads the postgres mirror instead.
func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	var records []model.Record
	switch source := r.URL.Query().Get("source"); source {
	case "", "memory":
		records = s.history.Recent(limit)
	case "db":
		if s.mirror == nil {
			writeError(w, http.StatusBadRequest, "database mirror not configured")
			return
		}
		var err error
		records, err = s.mirror.Recent(r.Context(), limit)
		if err != nil {
			s.logger.Error("recent records query failed", "err", err)
			writeError(w, http.StatusInternalServerError, "failed to read records")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown source "+strconv.Quote(source))
		return
	}

	if records == nil {
		records = []model.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
