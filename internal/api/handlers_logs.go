package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/DannyMichaels/code-dojo-app/internal/logging"
)

// handleLogsRecent returns recent log entries
// GET /api/v1/logs?limit=&level=&source=&since=
func (s *Server) handleLogsRecent(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		s.respondError(w, http.StatusServiceUnavailable, "Log buffer not available")
		return
	}

	filter := logging.Filter{
		Limit:  queryInt(r, "limit", 100),
		Level:  r.URL.Query().Get("level"),
		Source: r.URL.Query().Get("source"),
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid 'since' parameter: %v", err))
			return
		}
		filter.Since = t
	}

	logs := s.logs.Recent(filter)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}
