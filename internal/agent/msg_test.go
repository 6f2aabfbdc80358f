package agent

import (
	"encoding/json"
	"testing"
)

func TestMsgsToProviderSimple(t *testing.T) {
	system, query, history := MsgsToProvider([]Msg{User("Hello")})
	if system != "" {
		t.Errorf("system = %q", system)
	}
	if query != "Hello" {
		t.Errorf("query = %q", query)
	}
	if len(history) != 0 {
		t.Errorf("history = %+v", history)
	}
}

func TestMsgsToProviderWithHistory(t *testing.T) {
	_, query, history := MsgsToProvider([]Msg{
		User("Hi"),
		Assistant("Hello!"),
		User("Bye"),
	})
	if query != "Bye" {
		t.Errorf("query = %q", query)
	}
	if len(history) != 2 {
		t.Fatalf("history len = %d", len(history))
	}
	if history[0].Role != "user" || history[1].Role != "assistant" {
		t.Errorf("roles = %s %s", history[0].Role, history[1].Role)
	}
}

func TestMsgsToProviderCollapsesToolCalls(t *testing.T) {
	msgs := []Msg{
		User("run it"),
		Assistant("ok"),
		ToolCallMsg("c1", "run_shell", json.RawMessage(`{"command":"ls"}`), "sig123"),
		ToolResultMsg("c1", "run_shell", json.RawMessage(`{"ok":true}`)),
	}
	system, query, history := MsgsToProvider(msgs)
	if system != "" || query != "" {
		t.Errorf("system/query = %q/%q, want empty (continuation)", system, query)
	}
	if len(history) != 3 {
		t.Fatalf("history len = %d: %+v", len(history), history)
	}
	if history[1].Role != "assistant" || len(history[1].ToolCalls) != 1 {
		t.Fatalf("assistant turn = %+v", history[1])
	}
	tc := history[1].ToolCalls[0]
	if tc.ID != "c1" || tc.ThoughtSignature != "sig123" {
		t.Errorf("tool call = %+v", tc)
	}
	if history[2].Role != "tool" || history[2].ToolCallID != "c1" {
		t.Errorf("tool result = %+v", history[2])
	}
}

func TestMsgsToProviderToolCallWithoutAssistantText(t *testing.T) {
	msgs := []Msg{
		User("go"),
		ToolCallMsg("c1", "grep", json.RawMessage(`{}`), ""),
	}
	_, _, history := MsgsToProvider(msgs)
	if len(history) != 2 {
		t.Fatalf("history = %+v", history)
	}
	if history[1].Role != "assistant" || history[1].Content != "" {
		t.Errorf("synthesized assistant turn = %+v", history[1])
	}
}

func TestMsgsToProviderSystemFirstWins(t *testing.T) {
	system, _, _ := MsgsToProvider([]Msg{System("first"), System("second"), User("q")})
	if system != "first" {
		t.Errorf("system = %q", system)
	}
}
