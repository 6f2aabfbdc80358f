package agent

import (
	"encoding/json"

	"github.com/nextlevelbuilder/aish/internal/providers"
	"github.com/nextlevelbuilder/aish/internal/transcript"
)

// TranscriptSink records agent events into transcript.jsonl. Text deltas are
// coalesced and flushed as one event at end-of-conversation so the
// transcript stays one line per meaningful step.
type TranscriptSink struct {
	w    *transcript.Writer
	text []byte
}

func NewTranscriptSink(w *transcript.Writer) *TranscriptSink {
	return &TranscriptSink{w: w}
}

func (s *TranscriptSink) OnEvent(ev *AgentEvent) error {
	switch {
	case ev.LLM != nil:
		switch ev.LLM.Type {
		case providers.EventTextDelta:
			s.text = append(s.text, ev.LLM.Text...)
		case providers.EventToolCallBegin:
			return s.w.Emit("llm.tool_call", map[string]any{
				"call_id": ev.LLM.CallID,
				"name":    ev.LLM.Name,
			})
		case providers.EventCompleted:
			return s.w.Emit("llm.completed", map[string]any{
				"finish": string(ev.LLM.Finish),
			})
		case providers.EventFailed:
			return s.w.Emit("llm.failed", map[string]any{
				"message": ev.LLM.Message,
			})
		}
	case ev.ToolResult != nil:
		return s.w.Emit("tool.result", map[string]any{
			"call_id": ev.ToolResult.CallID,
			"name":    ev.ToolResult.Name,
			"args":    json.RawMessage(ev.ToolResult.Args),
			"result":  json.RawMessage(ev.ToolResult.Result),
		})
	case ev.ToolError != nil:
		return s.w.Emit("tool.error", map[string]any{
			"call_id": ev.ToolError.CallID,
			"name":    ev.ToolError.Name,
			"args":    json.RawMessage(ev.ToolError.Args),
			"error":   ev.ToolError.Message,
		})
	}
	return nil
}

func (s *TranscriptSink) OnEnd() error {
	if len(s.text) == 0 {
		return nil
	}
	text := string(s.text)
	s.text = nil
	return s.w.Emit("assistant.text", map[string]any{"text": text})
}
