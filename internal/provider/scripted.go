package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrScriptExhausted is returned when a ScriptedReasoner is asked for more
// rounds than it was given.
var ErrScriptExhausted = errors.New("scripted reasoner has no more rounds")

// ScriptedRound is the canned output of one StreamReasoning call.
type ScriptedRound struct {
	Events []ReasoningEvent
	// Err is returned after Events have been delivered.
	Err error
	// Gate, when set, blocks the round until it is closed or ctx ends.
	Gate <-chan struct{}
}

// ScriptedReasoner replays canned rounds in order.
type ScriptedReasoner struct {
	mu       sync.Mutex
	rounds   []ScriptedRound
	requests []ChatCompletionRequest
}

// NewScriptedReasoner returns a reasoner that plays rounds in order.
func NewScriptedReasoner(rounds ...ScriptedRound) *ScriptedReasoner {
	return &ScriptedReasoner{rounds: rounds}
}

// StreamReasoning delivers the next scripted round. A done event is appended
// when the round does not end with one.
func (s *ScriptedReasoner) StreamReasoning(ctx context.Context, req *ChatCompletionRequest, onEvent func(ReasoningEvent) error) error {
	s.mu.Lock()
	s.requests = append(s.requests, cloneRequest(req))
	if len(s.rounds) == 0 {
		s.mu.Unlock()
		return ErrScriptExhausted
	}
	round := s.rounds[0]
	s.rounds = s.rounds[1:]
	s.mu.Unlock()

	if round.Gate != nil {
		select {
		case <-round.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	sawDone := false
	for _, ev := range round.Events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ev.Kind == EventDone {
			sawDone = true
		}
		if err := onEvent(ev); err != nil {
			return err
		}
	}
	if round.Err != nil {
		return round.Err
	}
	if !sawDone {
		return onEvent(ReasoningEvent{Kind: EventDone, FinishReason: "stop"})
	}
	return nil
}

// Requests returns copies of every request received so far.
func (s *ScriptedReasoner) Requests() []ChatCompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatCompletionRequest(nil), s.requests...)
}

// Remaining reports how many rounds have not been played.
func (s *ScriptedReasoner) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rounds)
}

// Text builds a text event.
func Text(s string) ReasoningEvent {
	return ReasoningEvent{Kind: EventText, Text: s}
}

// Call builds a tool-call event with JSON-encoded arguments.
func Call(id, name string, args any) ReasoningEvent {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(fmt.Sprintf("scripted call %s: %v", name, err))
	}
	return ReasoningEvent{Kind: EventToolCall, ToolCall: &ToolCall{
		ID:       id,
		Type:     "function",
		Function: ToolCallFunction{Name: name, Arguments: string(raw)},
	}}
}

// Done builds a done event with the given usage.
func Done(prompt, completion int) ReasoningEvent {
	return ReasoningEvent{Kind: EventDone, FinishReason: "stop", Usage: &Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}}
}

func cloneRequest(req *ChatCompletionRequest) ChatCompletionRequest {
	out := *req
	out.Messages = make([]ChatMessage, len(req.Messages))
	for i, m := range req.Messages {
		m.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
		out.Messages[i] = m
	}
	out.Tools = append([]Tool(nil), req.Tools...)
	return out
}

var _ Reasoner = (*ScriptedReasoner)(nil)
