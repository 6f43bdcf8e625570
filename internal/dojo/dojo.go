// Package dojo is the application facade. It ties persistence, belt rules,
// focus selection and the turn orchestrator together behind the operations
// the HTTP layer and CLI call.
package dojo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DannyMichaels/code-dojo-app/internal/belt"
	"github.com/DannyMichaels/code-dojo-app/internal/mastery"
	"github.com/DannyMichaels/code-dojo-app/internal/messagebus"
	"github.com/DannyMichaels/code-dojo-app/internal/metrics"
	"github.com/DannyMichaels/code-dojo-app/internal/orchestrator"
	"github.com/DannyMichaels/code-dojo-app/internal/repetition"
	"github.com/DannyMichaels/code-dojo-app/internal/sessionlock"
	"github.com/DannyMichaels/code-dojo-app/internal/storage"
	"github.com/DannyMichaels/code-dojo-app/pkg/messages"
	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

const eventSource = "dojo"

const skillLockWait = 10 * time.Second

// Service implements the learner-facing operations.
type Service struct {
	store       storage.Store
	checker     *belt.Checker
	prioritizer *repetition.Prioritizer
	orch        *orchestrator.Orchestrator
	locker      sessionlock.Locker

	publisher messagebus.EventPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// Option configures a Service.
type Option func(*Service)

// WithOrchestrator enables SendMessage.
func WithOrchestrator(o *orchestrator.Orchestrator) Option {
	return func(s *Service) { s.orch = o }
}

// WithLocker sets the locks shared with turn processing. It defaults to the
// orchestrator's locker.
func WithLocker(l sessionlock.Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithPublisher sends domain events to p.
func WithPublisher(p messagebus.EventPublisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides record ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New creates a Service. A nil checker uses the default scoring model and
// requirement table.
func New(store storage.Store, checker *belt.Checker, opts ...Option) *Service {
	if checker == nil {
		checker = belt.NewChecker(mastery.DefaultParams())
	}
	s := &Service{
		store:       store,
		checker:     checker,
		prioritizer: repetition.New(checker.Params),
		publisher:   messagebus.Noop{},
		metrics:     metrics.NewMetrics(),
		logger:      zap.NewNop(),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil && s.orch != nil {
		s.locker = s.orch.Locker()
	}
	s.logger = s.logger.Named("dojo")
	return s
}

// Checker returns the belt rules in use.
func (s *Service) Checker() *belt.Checker {
	return s.checker
}

// Enrollment is the result of enrolling in a skill.
type Enrollment struct {
	Skill   *models.SkillProgress `json:"skill"`
	Session *models.Session       `json:"session"`
}

// Enroll starts userID on skillName at the lowest belt, records the
// enrollment in belt history and opens an onboarding session.
func (s *Service) Enroll(ctx context.Context, userID, skillName string) (*Enrollment, error) {
	userID, skillName = strings.TrimSpace(userID), strings.TrimSpace(skillName)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if skillName == "" {
		return nil, fmt.Errorf("%w: skill name is required", ErrInvalidInput)
	}

	now := s.now()
	skill := models.NewSkillProgress(s.newID(), userID, skillName, now)
	if err := s.store.CreateSkill(ctx, skill); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: already enrolled in %s", ErrAlreadyEnrolled, skillName)
		}
		return nil, fmt.Errorf("failed to create skill: %w", err)
	}
	if err := s.store.AppendBeltHistory(ctx, belt.EnrollmentEntry(skill, now)); err != nil {
		return nil, fmt.Errorf("failed to record enrollment: %w", err)
	}

	session := models.NewSession(s.newID(), skill.ID, userID, models.SessionTypeOnboarding, now)
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create onboarding session: %w", err)
	}

	s.logger.Info("learner enrolled",
		zap.String("user_id", userID),
		zap.String("skill_id", skill.ID),
		zap.String("skill", skillName))
	s.publish(ctx, messages.SkillEnrolled(userID, skill.ID, eventSource, skillName))
	return &Enrollment{Skill: skill, Session: session}, nil
}

// GetSkill loads one skill.
func (s *Service) GetSkill(ctx context.Context, id string) (*models.SkillProgress, error) {
	skill, err := s.store.GetSkill(ctx, id)
	if err != nil {
		return nil, s.wrapLoad("skill", id, err)
	}
	return skill, nil
}

// ListSkills returns every skill of a learner.
func (s *Service) ListSkills(ctx context.Context, userID string) ([]*models.SkillProgress, error) {
	return s.store.ListSkills(ctx, userID)
}

// RemoveSkill deletes a skill with its sessions and belt history.
func (s *Service) RemoveSkill(ctx context.Context, skillID string) error {
	if err := s.store.DeleteSkill(ctx, skillID); err != nil {
		return s.wrapLoad("skill", skillID, err)
	}
	s.logger.Info("skill removed", zap.String("skill_id", skillID))
	return nil
}

// RemoveReinforcement drops a concept from the skill's queue. Removing a
// concept that is not queued is not an error.
func (s *Service) RemoveReinforcement(ctx context.Context, skillID, concept string) (*models.SkillProgress, error) {
	unlock, err := s.lockSkill(ctx, skillID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	skill, err := s.GetSkill(ctx, skillID)
	if err != nil {
		return nil, err
	}
	if !skill.RemoveReinforcement(concept) {
		return skill, nil
	}
	skill.UpdatedAt = s.now()
	if err := s.store.SaveSkill(ctx, skill); err != nil {
		return nil, fmt.Errorf("failed to save skill: %w", err)
	}
	return skill, nil
}

// Focus returns the top n concepts the next session should work on.
func (s *Service) Focus(ctx context.Context, skillID string, n int) ([]repetition.Item, error) {
	skill, err := s.GetSkill(ctx, skillID)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = repetition.DefaultSuggestLimit
	}
	return s.prioritizer.Top(skill, s.now(), n), nil
}

// SendMessage runs one learner turn.
func (s *Service) SendMessage(ctx context.Context, sessionID, content string) (<-chan orchestrator.Event, error) {
	if s.orch == nil {
		return nil, errors.New("turn processing is not configured")
	}
	return s.orch.ProcessTurn(ctx, orchestrator.TurnRequest{SessionID: sessionID, Content: content})
}

// lockSession takes the turn lock of a session, failing fast when a turn
// holds it.
func (s *Service) lockSession(ctx context.Context, sessionID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	token, ok, err := s.locker.Acquire(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock session: %w", err)
	}
	if !ok {
		return nil, orchestrator.ErrTurnInProgress
	}
	return func() { s.release(ctx, sessionID, token) }, nil
}

// lockSkill waits for the skill's write lock, which turns also take when
// they save their effects.
func (s *Service) lockSkill(ctx context.Context, skillID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	key := sessionlock.SkillKey(skillID)
	token, err := sessionlock.AcquireWait(ctx, s.locker, key, skillLockWait)
	if err != nil {
		return nil, fmt.Errorf("failed to lock skill: %w", err)
	}
	return func() { s.release(ctx, key, token) }, nil
}

func (s *Service) release(ctx context.Context, key, token string) {
	if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
		s.logger.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
	}
}

func (s *Service) wrapLoad(kind, id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, err)
	}
	return fmt.Errorf("failed to load %s: %w", kind, err)
}

func (s *Service) publish(ctx context.Context, event *messages.EventMessage) {
	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", zap.String("type", event.Type), zap.Error(err))
		return
	}
	s.metrics.EventsPublished.WithLabelValues(event.Type).Inc()
}
