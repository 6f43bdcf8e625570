package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DannyMichaels/code-dojo-app/internal/belt"
	"github.com/DannyMichaels/code-dojo-app/internal/mastery"
	"github.com/DannyMichaels/code-dojo-app/internal/provider"
	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

var (
	// ErrUnknownTool is returned for a call to a tool that is not declared.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidInput wraps argument decoding and schema violations.
	ErrInvalidInput = errors.New("invalid tool input")
)

// State is the mutable turn state tool effects apply to.
type State struct {
	Skill   *models.SkillProgress
	Session *models.Session
	// SessionCount is the number of non-abandoned sessions for the skill,
	// including the current one.
	SessionCount int
	Now          time.Time

	// PriorHistory is the skill's stored belt history when the turn began.
	PriorHistory []*models.BeltHistoryEntry

	Completed    bool
	SkillDirty   bool
	SessionDirty bool
	// Changes lists the skill effects applied so far, in order.
	Changes []SkillChange
	// History holds belt history entries produced by this turn, not yet persisted.
	History []*models.BeltHistoryEntry
}

// Result is the outcome of one tool call, fed back to the model.
type Result struct {
	CallID string         `json:"-"`
	Tool   string         `json:"tool"`
	Input  map[string]any `json:"-"`
	Output map[string]any `json:"output,omitempty"`
	Err    error          `json:"-"`
}

// OK reports whether the effect was applied.
func (r Result) OK() bool {
	return r.Err == nil
}

// Content is the tool-result message body sent back to the model.
func (r Result) Content() string {
	body := map[string]any{"status": "ok"}
	if r.Err != nil {
		body = map[string]any{"status": "error", "error": r.Err.Error()}
	}
	for k, v := range r.Output {
		body[k] = v
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return `{"status":"error","error":"unencodable result"}`
	}
	return string(raw)
}

type handler func(ctx context.Context, raw []byte, st *State) (map[string]any, error)

// Executor validates tool calls and applies their effects.
type Executor struct {
	defs     []*Definition
	byName   map[string]*Definition
	handlers map[string]handler
	checker  *belt.Checker
	params   mastery.Params
	logger   *zap.Logger
}

// NewExecutor builds an executor over every declared tool.
func NewExecutor(checker *belt.Checker, logger *zap.Logger) (*Executor, error) {
	if checker == nil {
		checker = belt.NewChecker(mastery.DefaultParams())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	defs, err := Definitions()
	if err != nil {
		return nil, err
	}

	e := &Executor{
		defs:    defs,
		byName:  make(map[string]*Definition, len(defs)),
		checker: checker,
		params:  checker.Params,
		logger:  logger.Named("tools"),
	}
	for _, d := range defs {
		e.byName[d.Name] = d
	}
	e.handlers = map[string]handler{
		RecordObservation:      decoded(e.recordObservation),
		UpdateMastery:          decoded(e.updateMastery),
		QueueReinforcement:     decoded(e.queueReinforcement),
		SetBelt:                decoded(e.setBelt),
		SetAssessmentAvailable: decoded(e.setAssessmentAvailable),
		SetTrainingContext:     decoded(e.setTrainingContext),
		PresentProblem:         decoded(e.presentProblem),
		CompleteSession:        decoded(e.completeSession),
	}
	return e, nil
}

// Params returns the mastery parameters effects are scored with.
func (e *Executor) Params() mastery.Params {
	return e.params
}

// ProviderTools renders every definition for a chat completion request.
func (e *Executor) ProviderTools() ([]provider.Tool, error) {
	out := make([]provider.Tool, 0, len(e.defs))
	for _, d := range e.defs {
		t, err := d.ProviderTool()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Execute validates call and applies it to st. Failures are returned inside
// the Result and leave st unchanged for that call.
func (e *Executor) Execute(ctx context.Context, call provider.ToolCall, st *State) Result {
	res := Result{CallID: call.ID, Tool: call.Function.Name}

	def, ok := e.byName[call.Function.Name]
	if !ok {
		res.Err = fmt.Errorf("%w: %q", ErrUnknownTool, call.Function.Name)
		return e.logFailure(res)
	}

	raw := []byte(strings.TrimSpace(call.Function.Arguments))
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		res.Err = fmt.Errorf("%w: %v", ErrInvalidInput, err)
		return e.logFailure(res)
	}
	res.Input = args
	if err := def.Validate(args); err != nil {
		res.Err = fmt.Errorf("%w: %v", ErrInvalidInput, err)
		return e.logFailure(res)
	}

	out, err := e.handlers[def.Name](ctx, raw, st)
	if err != nil {
		res.Err = err
		return e.logFailure(res)
	}
	res.Output = out
	e.logger.Debug("tool applied",
		zap.String("tool", res.Tool),
		zap.String("session_id", sessionID(st)))
	return res
}

func (e *Executor) logFailure(res Result) Result {
	e.logger.Warn("tool effect skipped",
		zap.String("tool", res.Tool),
		zap.String("call_id", res.CallID),
		zap.Error(res.Err))
	return res
}

func decoded[T any](fn func(ctx context.Context, in T, st *State) (map[string]any, error)) handler {
	return func(ctx context.Context, raw []byte, st *State) (map[string]any, error) {
		var in T
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return fn(ctx, in, st)
	}
}

func sessionID(st *State) string {
	if st == nil || st.Session == nil {
		return ""
	}
	return st.Session.ID
}
