package api

import (
	"net/http"

	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

// CreateSessionRequest opens a session. An empty type uses the suggested one.
type CreateSessionRequest struct {
	Type models.SessionType `json:"type"`
}

// handleListSessions handles GET /api/v1/skills/{id}/sessions
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.svc.ListSessions(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions, "count": len(sessions)})
}

// handleCreateSession handles POST /api/v1/skills/{id}/sessions
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.ContentLength != 0 {
		if err := s.parseJSON(r, &req); err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	session, err := s.svc.CreateSession(r.Context(), r.PathValue("id"), req.Type)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, session)
}

// handleGetSession handles GET /api/v1/sessions/{id}
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.svc.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, session)
}

// handleAbandonSession handles DELETE /api/v1/sessions/{id}
func (s *Server) handleAbandonSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.svc.AbandonSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, session)
}
