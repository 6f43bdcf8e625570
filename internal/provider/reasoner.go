package provider

import (
	"context"
	"sort"
)

// EventKind distinguishes reasoning stream events.
type EventKind string

const (
	EventText     EventKind = "text"
	EventToolCall EventKind = "tool_call"
	EventDone     EventKind = "done"
)

// ReasoningEvent is one decoded item from a reasoning stream. A stream yields
// any mix of text and tool-call events followed by exactly one done event.
type ReasoningEvent struct {
	Kind         EventKind `json:"kind"`
	Text         string    `json:"text,omitempty"`
	ToolCall     *ToolCall `json:"tool_call,omitempty"`
	Usage        *Usage    `json:"usage,omitempty"`
	FinishReason string    `json:"finish_reason,omitempty"`
}

// Reasoner streams one round of reasoning. onEvent is called synchronously
// for every event; returning an error from it aborts the stream.
type Reasoner interface {
	StreamReasoning(ctx context.Context, req *ChatCompletionRequest, onEvent func(ReasoningEvent) error) error
}

// StreamReasoning decodes the chunk stream into text fragments and complete
// tool calls. A tool call is emitted as soon as the stream moves on to the
// next call index or finishes.
func (p *OpenAIProvider) StreamReasoning(ctx context.Context, req *ChatCompletionRequest, onEvent func(ReasoningEvent) error) error {
	acc := newToolCallAccumulator()
	var usage *Usage
	finish := ""

	err := p.CreateChatCompletionStream(ctx, req, func(chunk *StreamChunk) error {
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				if err := onEvent(ReasoningEvent{Kind: EventText, Text: choice.Delta.Content}); err != nil {
					return err
				}
			}
			for _, delta := range choice.Delta.ToolCalls {
				for _, call := range acc.add(delta) {
					if err := onEvent(ReasoningEvent{Kind: EventToolCall, ToolCall: call}); err != nil {
						return err
					}
				}
			}
			if choice.FinishReason != "" {
				finish = choice.FinishReason
				for _, call := range acc.flush() {
					if err := onEvent(ReasoningEvent{Kind: EventToolCall, ToolCall: call}); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, call := range acc.flush() {
		if err := onEvent(ReasoningEvent{Kind: EventToolCall, ToolCall: call}); err != nil {
			return err
		}
	}
	return onEvent(ReasoningEvent{Kind: EventDone, Usage: usage, FinishReason: finish})
}

// toolCallAccumulator stitches streamed tool-call fragments back together.
type toolCallAccumulator struct {
	pending map[int]*ToolCall
	current int
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{pending: make(map[int]*ToolCall), current: -1}
}

// add merges delta and returns calls that can no longer grow.
func (a *toolCallAccumulator) add(delta ToolCallDelta) []*ToolCall {
	var ready []*ToolCall
	if delta.Index > a.current {
		ready = a.flushBelow(delta.Index)
		a.current = delta.Index
	}

	call, ok := a.pending[delta.Index]
	if !ok {
		call = &ToolCall{Type: "function"}
		a.pending[delta.Index] = call
	}
	if delta.ID != "" {
		call.ID = delta.ID
	}
	if delta.Type != "" {
		call.Type = delta.Type
	}
	if delta.Function.Name != "" {
		call.Function.Name += delta.Function.Name
	}
	call.Function.Arguments += delta.Function.Arguments
	return ready
}

func (a *toolCallAccumulator) flush() []*ToolCall {
	return a.flushBelow(int(^uint(0) >> 1))
}

func (a *toolCallAccumulator) flushBelow(limit int) []*ToolCall {
	var indexes []int
	for idx := range a.pending {
		if idx < limit {
			indexes = append(indexes, idx)
		}
	}
	sort.Ints(indexes)

	calls := make([]*ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		call := a.pending[idx]
		delete(a.pending, idx)
		if call.Function.Arguments == "" {
			call.Function.Arguments = "{}"
		}
		calls = append(calls, call)
	}
	return calls
}

var _ Reasoner = (*OpenAIProvider)(nil)
