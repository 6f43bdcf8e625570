// Package orchestrator runs one learner turn: it serializes turns per session,
// streams reasoning rounds, applies tool effects between rounds and persists a
// single assistant message when the turn ends.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/DannyMichaels/code-dojo-app/internal/messagebus"
	"github.com/DannyMichaels/code-dojo-app/internal/metrics"
	"github.com/DannyMichaels/code-dojo-app/internal/prompt"
	"github.com/DannyMichaels/code-dojo-app/internal/provider"
	"github.com/DannyMichaels/code-dojo-app/internal/sessionlock"
	"github.com/DannyMichaels/code-dojo-app/internal/storage"
	"github.com/DannyMichaels/code-dojo-app/internal/telemetry"
	"github.com/DannyMichaels/code-dojo-app/internal/tools"
	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

const (
	// DefaultMaxRounds bounds reasoning rounds per turn.
	DefaultMaxRounds = 5
	// DefaultHistoryLimit bounds how many earlier messages are replayed.
	DefaultHistoryLimit = 50

	eventSource = "orchestrator"
	eventBuffer = 16

	// skillLockWait bounds how long saving a turn waits for another turn on
	// the same skill to finish its write.
	skillLockWait = 10 * time.Second
)

// Config tunes the reasoning requests.
type Config struct {
	Model           string
	MaxRounds       int
	MaxOutputTokens int
	Temperature     float64
	HistoryLimit    int
}

// TurnRequest is one inbound learner message.
type TurnRequest struct {
	SessionID string
	Content   string
}

// CommunityFunc returns anonymized stats about other learners of a skill.
type CommunityFunc func(ctx context.Context, skillName string) (*prompt.Community, error)

// Orchestrator processes turns. It is safe for concurrent use.
type Orchestrator struct {
	store    storage.Store
	locker   sessionlock.Locker
	reasoner provider.Reasoner
	executor *tools.Executor
	builder  *prompt.Builder
	tools    []provider.Tool
	cfg      Config

	publisher   messagebus.EventPublisher
	community   CommunityFunc
	metrics     *metrics.Metrics
	instruments *telemetry.Instruments
	tracer      trace.Tracer
	logger      *zap.Logger
	now         func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPublisher sends domain events to p.
func WithPublisher(p messagebus.EventPublisher) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.publisher = p
		}
	}
}

// WithCommunity supplies community stats for the prompt.
func WithCommunity(fn CommunityFunc) Option {
	return func(o *Orchestrator) { o.community = fn }
}

// WithMetrics overrides the Prometheus metric set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithInstruments records OpenTelemetry counters alongside Prometheus.
func WithInstruments(i *telemetry.Instruments) Option {
	return func(o *Orchestrator) { o.instruments = i }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithBuilder overrides the prompt builder.
func WithBuilder(b *prompt.Builder) Option {
	return func(o *Orchestrator) {
		if b != nil {
			o.builder = b
		}
	}
}

// New creates an orchestrator.
func New(store storage.Store, locker sessionlock.Locker, reasoner provider.Reasoner, executor *tools.Executor, cfg Config, opts ...Option) (*Orchestrator, error) {
	if store == nil || locker == nil || reasoner == nil || executor == nil {
		return nil, errors.New("orchestrator requires a store, locker, reasoner and tool executor")
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}

	defs, err := executor.ProviderTools()
	if err != nil {
		return nil, fmt.Errorf("failed to render tool definitions: %w", err)
	}

	o := &Orchestrator{
		store:     store,
		locker:    locker,
		reasoner:  reasoner,
		executor:  executor,
		builder:   prompt.NewBuilder(executor.Params()),
		tools:     defs,
		cfg:       cfg,
		publisher: messagebus.Noop{},
		metrics:   metrics.NewMetrics(),
		tracer:    telemetry.Tracer(),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("orchestrator")
	return o, nil
}

// turn is the state owned by one in-flight turn.
type turn struct {
	state       *tools.State
	sessions    []*models.Session
	otherSkills []prompt.OtherSkill
	community   *prompt.Community
	scratch     []provider.ChatMessage
	lockToken   string
	started     time.Time
}

// Locker returns the locks turns take, so other writers can share them.
func (o *Orchestrator) Locker() sessionlock.Locker {
	return o.locker
}

// ProcessTurn validates the request, takes the session lock, persists the
// user's message and starts the reasoning loop. Errors returned here mean
// nothing was streamed; the returned channel always ends with a done or an
// error event and is then closed.
func (o *Orchestrator) ProcessTurn(ctx context.Context, req TurnRequest) (<-chan Event, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(req.Content) > MaxContentLength {
		return nil, fmt.Errorf("%w: limit is %d characters", ErrContentTooLong, MaxContentLength)
	}

	session, err := o.loadSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive() {
		return nil, fmt.Errorf("%w: session is %s", ErrSessionNotActive, session.Status)
	}

	token, acquired, err := o.locker.Acquire(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	if !acquired {
		o.metrics.TurnConflicts.Inc()
		return nil, ErrTurnInProgress
	}
	o.metrics.ActiveTurns.Inc()

	t, err := o.begin(ctx, req)
	if err != nil {
		o.release(ctx, req.SessionID, token)
		return nil, err
	}
	t.lockToken = token

	out := make(chan Event, eventBuffer)
	go o.run(ctx, t, out)
	return out, nil
}

func (o *Orchestrator) loadSession(ctx context.Context, id string) (*models.Session, error) {
	session, err := o.store.GetSession(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return session, nil
}

// begin loads the turn state under the lock and persists the user message.
func (o *Orchestrator) begin(ctx context.Context, req TurnRequest) (*turn, error) {
	// Re-read under the lock; a turn that just finished may have completed it.
	session, err := o.loadSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive() {
		return nil, fmt.Errorf("%w: session is %s", ErrSessionNotActive, session.Status)
	}

	skill, err := o.store.GetSkill(ctx, session.SkillID)
	if err != nil {
		return nil, fmt.Errorf("failed to load skill: %w", err)
	}
	count, err := o.store.CountSessions(ctx, skill.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	history, err := o.store.ListBeltHistory(ctx, skill.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load belt history: %w", err)
	}

	now := o.now()
	session.AppendMessage(models.RoleUser, req.Content, now)
	if err := o.store.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	t := &turn{
		state: &tools.State{
			Skill:        skill,
			Session:      session,
			SessionCount: count,
			PriorHistory: history,
			Now:          now,
		},
		started: time.Now(),
	}
	o.loadPromptInputs(ctx, t)
	return t, nil
}

// loadPromptInputs fetches context that only enriches the prompt. Failures
// are logged and the turn continues without it.
func (o *Orchestrator) loadPromptInputs(ctx context.Context, t *turn) {
	skill := t.state.Skill
	log := o.logger.With(zap.String("session_id", t.state.Session.ID))

	if sessions, err := o.store.ListSessions(ctx, skill.ID); err != nil {
		log.Warn("failed to load past sessions", zap.Error(err))
	} else {
		t.sessions = sessions
	}

	if skills, err := o.store.ListSkills(ctx, skill.UserID); err != nil {
		log.Warn("failed to load other skills", zap.Error(err))
	} else {
		for _, s := range skills {
			if s.ID != skill.ID {
				t.otherSkills = append(t.otherSkills, prompt.OtherSkill{Name: s.SkillName, Belt: s.CurrentBelt})
			}
		}
	}

	if o.community != nil {
		if c, err := o.community(ctx, skill.SkillName); err != nil {
			log.Warn("failed to load community stats", zap.Error(err))
		} else {
			t.community = c
		}
	}
}

func (o *Orchestrator) release(ctx context.Context, sessionID, token string) {
	o.metrics.ActiveTurns.Dec()
	if err := o.locker.Release(context.WithoutCancel(ctx), sessionID, token); err != nil {
		o.logger.Error("failed to release session lock", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// pastProblems lists earlier problems with the live session in place of its
// stored copy, so a problem presented this turn shows up next round.
func (t *turn) pastProblems() []prompt.PastProblem {
	live := t.state.Session
	sessions := make([]*models.Session, 0, len(t.sessions)+1)
	found := false
	for _, s := range t.sessions {
		if s.ID == live.ID {
			s = live
			found = true
		}
		sessions = append(sessions, s)
	}
	if !found {
		sessions = append([]*models.Session{live}, sessions...)
	}
	return prompt.RecentProblems(sessions, prompt.DefaultPastProblemLimit)
}
