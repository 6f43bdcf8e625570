package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DannyMichaels/code-dojo-app/internal/prompt"
	"github.com/DannyMichaels/code-dojo-app/internal/provider"
	"github.com/DannyMichaels/code-dojo-app/internal/tools"
	"github.com/DannyMichaels/code-dojo-app/pkg/messages"
	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

type roundResult struct {
	text    string
	calls   []provider.ToolCall
	results []tools.Result
	usage   *provider.Usage
}

type loopResult struct {
	text   string
	reason Reason
	rounds int
	usage  provider.Usage
}

// run drives the turn to its end. The lock is released before out closes.
func (o *Orchestrator) run(ctx context.Context, t *turn, out chan<- Event) {
	defer close(out)
	session := t.state.Session
	defer o.release(ctx, session.ID, t.lockToken)

	ctx, span := o.tracer.Start(ctx, "orchestrator.turn", trace.WithAttributes(
		attribute.String("dojo.session_id", session.ID),
		attribute.String("dojo.session_type", string(session.Type)),
	))
	defer span.End()

	emit := func(ev Event) {
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}
	log := o.logger.With(zap.String("session_id", session.ID), zap.String("skill_id", session.SkillID))

	res, err := o.loop(ctx, t, emit)
	persistCtx := context.WithoutCancel(ctx)
	if err != nil {
		// Tool effects already announced are kept; the partial text is not.
		if perr := o.persist(persistCtx, t, t.state.SessionDirty, log); perr != nil {
			log.Error("failed to persist tool effects", zap.Error(perr))
		}
		o.announce(persistCtx, t, log)
		o.metrics.RecordTurn(string(session.Type), "error", res.rounds, time.Since(t.started).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("turn failed", zap.Int("rounds", res.rounds), zap.Error(err))
		emit(Event{Type: EventError, Round: res.rounds, Error: err.Error()})
		return
	}

	session.AppendMessage(models.RoleAssistant, res.text, o.now())
	if err := o.persist(persistCtx, t, true, log); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("failed to persist turn", zap.Error(err))
		msg := "failed to save turn"
		if errors.Is(err, ErrSessionNotActive) {
			msg = err.Error()
		}
		o.announce(persistCtx, t, log)
		emit(Event{Type: EventError, Round: res.rounds, Error: msg})
		return
	}

	o.announce(persistCtx, t, log)
	o.publish(persistCtx, log, messages.TurnCompleted(session.UserID, session.SkillID, session.ID, eventSource, string(res.reason), res.rounds))

	o.metrics.RecordTurn(string(session.Type), string(res.reason), res.rounds, time.Since(t.started).Seconds())
	if o.instruments != nil {
		o.instruments.TurnRounds.Record(ctx, int64(res.rounds))
	}
	span.SetAttributes(attribute.String("dojo.reason", string(res.reason)), attribute.Int("dojo.rounds", res.rounds))
	log.Info("turn completed",
		zap.String("reason", string(res.reason)),
		zap.Int("rounds", res.rounds),
		zap.Int("chars", len(res.text)),
		zap.Duration("duration", time.Since(t.started)))

	usage := res.usage
	emit(Event{
		Type:          EventDone,
		Reason:        res.reason,
		Rounds:        res.rounds,
		SessionStatus: string(session.Status),
		Usage:         &usage,
	})
}

// loop runs rounds until one makes no tool calls, the session completes, or
// the round cap is reached.
func (o *Orchestrator) loop(ctx context.Context, t *turn, emit func(Event)) (loopResult, error) {
	var (
		res  loopResult
		text strings.Builder
	)
	for n := 1; n <= o.cfg.MaxRounds; n++ {
		res.rounds = n
		round, err := o.round(ctx, t, n, emit)
		res.usage.Add(round.usage)
		if err != nil {
			return res, err
		}
		text.WriteString(round.text)

		if len(round.calls) == 0 {
			res.text, res.reason = text.String(), ReasonFinal
			return res, nil
		}
		if t.state.Completed {
			res.text, res.reason = text.String(), ReasonSessionCompleted
			return res, nil
		}
		t.fold(round)
	}

	emit(Event{Type: EventWarning, Round: res.rounds, Content: fmt.Sprintf("stopped after %d reasoning rounds", o.cfg.MaxRounds)})
	o.logger.Warn("round limit reached", zap.String("session_id", t.state.Session.ID), zap.Int("max_rounds", o.cfg.MaxRounds))
	res.text, res.reason = text.String(), ReasonMaxRounds
	return res, nil
}

// round streams one reasoning call. The stream is pumped by its own
// goroutine; tool calls run here, in arrival order, against the turn state.
func (o *Orchestrator) round(ctx context.Context, t *turn, n int, emit func(Event)) (roundResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.round", trace.WithAttributes(attribute.Int("dojo.round", n)))
	defer span.End()

	t.state.Now = o.now()
	req := o.request(t)
	started := time.Now()

	stream := make(chan provider.ReasoningEvent)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(stream)
		return o.reasoner.StreamReasoning(gctx, req, func(ev provider.ReasoningEvent) error {
			select {
			case stream <- ev:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	var (
		res  roundResult
		text strings.Builder
	)
	for ev := range stream {
		switch ev.Kind {
		case provider.EventText:
			if ev.Text == "" {
				continue
			}
			text.WriteString(ev.Text)
			emit(Event{Type: EventText, Round: n, Content: ev.Text})
		case provider.EventToolCall:
			if ev.ToolCall == nil {
				continue
			}
			call := *ev.ToolCall
			result := o.executor.Execute(ctx, call, t.state)
			res.calls = append(res.calls, call)
			res.results = append(res.results, result)
			o.recordTool(ctx, result)

			toolEvent := Event{Type: EventToolUse, Round: n, Tool: result.Tool, Input: result.Input, Output: result.Output}
			if result.Err != nil {
				toolEvent.ToolError = result.Err.Error()
			}
			emit(toolEvent)
		case provider.EventDone:
			res.usage = ev.Usage
		}
	}

	err := g.Wait()
	promptTokens, completionTokens := 0, 0
	if res.usage != nil {
		promptTokens, completionTokens = res.usage.PromptTokens, res.usage.CompletionTokens
	}
	o.metrics.RecordReasoningRound(err == nil, time.Since(started).Seconds(), promptTokens, completionTokens)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return res, fmt.Errorf("turn cancelled: %w", err)
		}
		return res, fmt.Errorf("reasoning service failed: %w", err)
	}
	res.text = text.String()
	return res, nil
}

func (o *Orchestrator) recordTool(ctx context.Context, r tools.Result) {
	o.metrics.RecordToolCall(r.Tool, r.OK())
	if o.instruments != nil {
		o.instruments.ToolCalls.Add(ctx, 1, metricAttrs(r))
	}
}

// request assembles the next reasoning call from the current state.
func (o *Orchestrator) request(t *turn) *provider.ChatCompletionRequest {
	built := o.builder.Build(prompt.Input{
		Skill:        t.state.Skill,
		Session:      t.state.Session,
		PastProblems: t.pastProblems(),
		OtherSkills:  t.otherSkills,
		Community:    t.community,
		Now:          t.state.Now,
	})

	history := t.state.Session.Messages
	if len(history) > o.cfg.HistoryLimit {
		history = history[len(history)-o.cfg.HistoryLimit:]
	}

	msgs := make([]provider.ChatMessage, 0, len(history)+len(t.scratch)+1)
	msgs = append(msgs, provider.ChatMessage{Role: provider.RoleSystem, Content: built.System()})
	for _, m := range history {
		role := provider.RoleUser
		if m.Role == models.RoleAssistant {
			role = provider.RoleAssistant
		}
		msgs = append(msgs, provider.ChatMessage{Role: role, Content: m.Content})
	}
	msgs = append(msgs, t.scratch...)

	return &provider.ChatCompletionRequest{
		Model:       o.cfg.Model,
		Messages:    msgs,
		Tools:       o.tools,
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxOutputTokens,
	}
}

// fold appends a round's tool calls and their results to the turn's
// scratch conversation.
func (t *turn) fold(r roundResult) {
	t.scratch = append(t.scratch, provider.ChatMessage{
		Role:      provider.RoleAssistant,
		Content:   r.text,
		ToolCalls: r.calls,
	})
	for _, res := range r.results {
		t.scratch = append(t.scratch, provider.ChatMessage{
			Role:       provider.RoleTool,
			ToolCallID: res.CallID,
			Content:    res.Content(),
		})
	}
}
