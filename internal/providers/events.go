// Package providers normalizes vendor LLM streams into a single event type
// the agent loop consumes. Concrete providers (gemini, openai,
// openai-compatible, echo) translate requests and server-sent events; the
// loop never sees vendor wire formats.
package providers

import (
	"context"
	"encoding/json"
)

// FinishReason terminates a stream: exactly one Completed event per stream.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
	FinishUnknown   FinishReason = "unknown"
)

// EventType discriminates Event.
type EventType int

const (
	EventTextDelta EventType = iota
	EventReasoningDelta
	EventToolCallBegin
	EventToolCallArgsDelta
	EventToolCallEnd
	EventCompleted
	EventFailed
)

// Event is one normalized stream element. Ordering guarantees: content
// before tool calls; ToolCallBegin before its args deltas before its
// ToolCallEnd; exactly one terminal Completed or Failed.
type Event struct {
	Type EventType

	Text string // TextDelta, ReasoningDelta

	CallID           string // ToolCallBegin, ToolCallArgsDelta, ToolCallEnd
	Name             string // ToolCallBegin
	ThoughtSignature string // ToolCallBegin (vendor-opaque, echoed back)
	ArgsFragment     string // ToolCallArgsDelta

	Finish  FinishReason // Completed
	Message string       // Failed
}

// Message is one conversation element in provider form.
type Message struct {
	Role       string // "system", "user", "assistant", "tool"
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string // role "tool"
	ToolName   string // role "tool"
}

// ToolCall is an assistant-requested tool invocation as echoed back to
// providers in follow-up turns.
type ToolCall struct {
	ID               string
	Name             string
	Args             json.RawMessage
	ThoughtSignature string
}

// ToolDef describes one tool in the request payload.
type ToolDef struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// EventStream is the only contract the agent loop depends on. query is the
// latest user message; an empty query with a full history is a
// tool-completion continuation. The callback is invoked for each event as
// it arrives.
type EventStream interface {
	StreamEvents(ctx context.Context, query string, system string, history []Message, tools []ToolDef, fn func(Event) error) error
}

func textDelta(s string) Event { return Event{Type: EventTextDelta, Text: s} }

func reasoningDelta(s string) Event { return Event{Type: EventReasoningDelta, Text: s} }

func completed(f FinishReason) Event { return Event{Type: EventCompleted, Finish: f} }
