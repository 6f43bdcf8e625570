package api

import (
	"net/http"

	"github.com/DannyMichaels/code-dojo-app/internal/repetition"
)

// EnrollRequest starts tracking a skill.
type EnrollRequest struct {
	SkillName string `json:"skill_name"`
}

// handleEnroll handles POST /api/v1/skills
func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := s.parseJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	enrollment, err := s.svc.Enroll(r.Context(), s.userID(r), req.SkillName)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, enrollment)
}

// handleListSkills handles GET /api/v1/skills
func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	skills, err := s.svc.ListSkills(r.Context(), s.userID(r))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"skills": skills, "count": len(skills)})
}

// handleGetSkill handles GET /api/v1/skills/{id}
func (s *Server) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	skill, err := s.svc.GetSkill(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, skill)
}

// handleRemoveSkill handles DELETE /api/v1/skills/{id}
func (s *Server) handleRemoveSkill(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RemoveSkill(r.Context(), r.PathValue("id")); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBeltInfo handles GET /api/v1/skills/{id}/belt-info
func (s *Server) handleBeltInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.BeltInfo(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

// handlePromote handles POST /api/v1/skills/{id}/promote
func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	entry, err := s.svc.Promote(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, entry)
}

// handleSkillProgress handles GET /api/v1/skills/{id}/progress
func (s *Server) handleSkillProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.svc.SkillProgress(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, progress)
}

// handleFocus handles GET /api/v1/skills/{id}/focus?limit=n
func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.Focus(r.Context(), r.PathValue("id"), queryInt(r, "limit", repetition.DefaultSuggestLimit))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"items": items, "count": len(items)})
}

// handleRemoveReinforcement handles DELETE /api/v1/skills/{id}/reinforcement/{concept}
func (s *Server) handleRemoveReinforcement(w http.ResponseWriter, r *http.Request) {
	skill, err := s.svc.RemoveReinforcement(r.Context(), r.PathValue("id"), r.PathValue("concept"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, skill)
}

// handleBeltHistory handles GET /api/v1/skills/{id}/belt-history
func (s *Server) handleBeltHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.svc.BeltTimeline(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"history": history, "count": len(history)})
}

// handleDashboard handles GET /api/v1/progress
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := s.svc.Dashboard(r.Context(), s.userID(r))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, dashboard)
}

// handleBeltStats handles GET /api/v1/belt-stats/{skill}
func (s *Server) handleBeltStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.BeltStats(r.Context(), r.PathValue("skill"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

// handleBeltRequirements handles GET /api/v1/belt-requirements
func (s *Server) handleBeltRequirements(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.svc.Checker().RequirementTable())
}
