package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/DannyMichaels/code-dojo-app/internal/sessionlock"
	"github.com/DannyMichaels/code-dojo-app/internal/tools"
	"github.com/DannyMichaels/code-dojo-app/pkg/messages"
)

// persist writes the turn's effects: the skill (with its belt history) and
// then the session. Each write is a single-record upsert. Afterwards
// t.state.History holds only the entries that were stored.
func (o *Orchestrator) persist(ctx context.Context, t *turn, saveSession bool, log *zap.Logger) error {
	var errs []error
	if t.state.SkillDirty {
		if err := o.saveSkill(ctx, t, log); err != nil {
			errs = append(errs, err)
		}
	} else {
		t.state.History = nil
	}
	if saveSession {
		if err := o.saveSession(ctx, t); err != nil {
			t.state.Completed = false
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// saveSkill replays the turn's skill changes onto the stored record while
// holding the skill lock, so turns on other sessions of the same skill do
// not overwrite each other. Belt history is appended before the skill moves.
func (o *Orchestrator) saveSkill(ctx context.Context, t *turn, log *zap.Logger) error {
	id := t.state.Skill.ID
	t.state.History = nil

	key := sessionlock.SkillKey(id)
	token, err := sessionlock.AcquireWait(ctx, o.locker, key, skillLockWait)
	if err != nil {
		return fmt.Errorf("skill %s: %w", id, err)
	}
	defer func() {
		if err := o.locker.Release(ctx, key, token); err != nil {
			log.Warn("failed to release skill lock", zap.Error(err))
		}
	}()

	fresh, err := o.store.GetSkill(ctx, id)
	if err != nil {
		return fmt.Errorf("skill %s: %w", id, err)
	}
	entries, rejected := tools.Replay(fresh, t.state.Changes)
	for _, err := range rejected {
		log.Warn("dropped skill change", zap.Error(err))
	}

	var errs []error
	for _, entry := range entries {
		if err := o.store.AppendBeltHistory(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("belt history %s: %w", entry.ID, err))
		}
	}
	fresh.UpdatedAt = o.now()
	if err := o.store.SaveSkill(ctx, fresh); err != nil {
		return errors.Join(append(errs, fmt.Errorf("skill %s: %w", id, err))...)
	}
	t.state.Skill = fresh
	t.state.History = entries
	return errors.Join(errs...)
}

// saveSession writes the session unless it left the active state while the
// turn ran; a terminal session is never written back.
func (o *Orchestrator) saveSession(ctx context.Context, t *turn) error {
	session := t.state.Session
	stored, err := o.store.GetSession(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("session %s: %w", session.ID, err)
	}
	if !stored.IsActive() {
		return fmt.Errorf("%w: session was %s during the turn", ErrSessionNotActive, stored.Status)
	}
	if err := o.store.SaveSession(ctx, session); err != nil {
		return fmt.Errorf("session %s: %w", session.ID, err)
	}
	return nil
}

// announce publishes belt changes and session completion produced by the turn.
func (o *Orchestrator) announce(ctx context.Context, t *turn, log *zap.Logger) {
	skill, session := t.state.Skill, t.state.Session
	for _, entry := range t.state.History {
		from := ""
		if entry.FromBelt != nil {
			from = string(*entry.FromBelt)
		}
		o.metrics.BeltPromotions.WithLabelValues(skill.SkillName, string(entry.ToBelt)).Inc()
		if o.instruments != nil {
			o.instruments.Promotions.Add(ctx, 1, metric.WithAttributes(attribute.String("to_belt", string(entry.ToBelt))))
		}
		log.Info("belt changed", zap.String("from", from), zap.String("to", string(entry.ToBelt)))
		o.publish(ctx, log, messages.BeltPromoted(skill.UserID, skill.ID, session.ID, eventSource, from, string(entry.ToBelt)))
	}
	if t.state.Completed {
		o.metrics.SessionsCompleted.WithLabelValues(string(session.Type)).Inc()
		o.publish(ctx, log, messages.SessionCompleted(session.UserID, session.SkillID, session.ID, eventSource, string(session.Type)))
	}
}

func (o *Orchestrator) publish(ctx context.Context, log *zap.Logger, event *messages.EventMessage) {
	if err := o.publisher.PublishEvent(ctx, event); err != nil {
		log.Warn("failed to publish event", zap.String("event_type", event.Type), zap.Error(err))
		return
	}
	o.metrics.EventsPublished.WithLabelValues(event.Type).Inc()
}

func metricAttrs(r tools.Result) metric.AddOption {
	result := "ok"
	if !r.OK() {
		result = "error"
	}
	return metric.WithAttributes(attribute.String("tool", r.Tool), attribute.String("result", result))
}
