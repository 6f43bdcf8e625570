package dojo

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DannyMichaels/code-dojo-app/internal/repetition"
	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

// SessionSummary is a session without its transcript.
type SessionSummary struct {
	ID           string                      `json:"id"`
	SkillID      string                      `json:"skill_id"`
	Type         models.SessionType          `json:"type"`
	Status       models.SessionStatus        `json:"status"`
	MessageCount int                         `json:"message_count"`
	Problem      *models.Problem             `json:"problem,omitempty"`
	Evaluation   *models.Evaluation          `json:"evaluation,omitempty"`
	Observations []models.SessionObservation `json:"observations,omitempty"`
	CreatedAt    time.Time                   `json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}

// Summarize strips the transcript from s.
func Summarize(s *models.Session) SessionSummary {
	return SessionSummary{
		ID:           s.ID,
		SkillID:      s.SkillID,
		Type:         s.Type,
		Status:       s.Status,
		MessageCount: len(s.Messages),
		Problem:      s.Problem,
		Evaluation:   s.Evaluation,
		Observations: s.Observations,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// CreateSession opens a session for skillID. An empty type is replaced by
// the suggested one. Assessments can only be opened once unlocked.
func (s *Service) CreateSession(ctx context.Context, skillID string, sessionType models.SessionType) (*models.Session, error) {
	skill, err := s.GetSkill(ctx, skillID)
	if err != nil {
		return nil, err
	}

	if sessionType == "" {
		sessionType = repetition.SuggestSessionType(skill)
	}
	if !sessionType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionType, sessionType)
	}
	if sessionType == models.SessionTypeAssessment && !skill.AssessmentAvailable {
		return nil, ErrAssessmentUnavailable
	}

	session := models.NewSession(s.newID(), skill.ID, skill.UserID, sessionType, s.now())
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("skill_id", skill.ID),
		zap.String("type", string(sessionType)))
	return session, nil
}

// GetSession loads a session with its transcript.
func (s *Service) GetSession(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, s.wrapLoad("session", id, err)
	}
	return session, nil
}

// ListSessions returns summaries of a skill's sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, skillID string) ([]SessionSummary, error) {
	if _, err := s.GetSkill(ctx, skillID); err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessions(ctx, skillID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	out := make([]SessionSummary, len(sessions))
	for i, session := range sessions {
		out[i] = Summarize(session)
	}
	return out, nil
}

// AbandonSession moves an active session to abandoned. Abandoned sessions
// stop counting toward belt requirements. It fails with
// orchestrator.ErrTurnInProgress while a turn is running on the session.
func (s *Service) AbandonSession(ctx context.Context, id string) (*models.Session, error) {
	unlock, err := s.lockSession(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := session.Abandon(s.now()); err != nil {
		return nil, err
	}
	if err := s.store.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	s.logger.Info("session abandoned", zap.String("session_id", id))
	return session, nil
}
