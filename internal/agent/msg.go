// Package agent drives one LLM conversation: it projects the message list
// into provider form, consumes the normalized event stream, executes tool
// calls under the allowlist + approval policy, and loops until the model
// stops or a limit is reached.
package agent

import (
	"encoding/json"

	"github.com/nextlevelbuilder/aish/internal/providers"
)

// MsgKind discriminates Msg.
type MsgKind int

const (
	MsgSystem MsgKind = iota
	MsgUser
	MsgAssistant
	MsgToolCall
	MsgToolResult
)

// Msg is one in-memory conversation element.
type Msg struct {
	Kind    MsgKind         `json:"kind"`
	Content string          `json:"content,omitempty"`

	CallID           string          `json:"call_id,omitempty"`
	Name             string          `json:"name,omitempty"`
	Args             json.RawMessage `json:"args,omitempty"`
	ThoughtSignature string          `json:"thought_signature,omitempty"`
	Result           json.RawMessage `json:"result,omitempty"`
}

func System(content string) Msg    { return Msg{Kind: MsgSystem, Content: content} }
func User(content string) Msg      { return Msg{Kind: MsgUser, Content: content} }
func Assistant(content string) Msg { return Msg{Kind: MsgAssistant, Content: content} }

func ToolCallMsg(callID, name string, args json.RawMessage, thoughtSignature string) Msg {
	return Msg{Kind: MsgToolCall, CallID: callID, Name: name, Args: args, ThoughtSignature: thoughtSignature}
}

func ToolResultMsg(callID, name string, result json.RawMessage) Msg {
	return Msg{Kind: MsgToolResult, CallID: callID, Name: name, Result: result}
}

// MsgsToProvider projects the message list into (system, query, history) for
// a provider call. Successive assistant text and its tool calls collapse
// into one assistant turn carrying the tool_calls array; each tool result
// becomes a separate tool-role message. The trailing User becomes the query;
// when the list does not end with a User the whole list is history and the
// query is empty (tool-completion continuation).
func MsgsToProvider(msgs []Msg) (system, query string, history []providers.Message) {
	var pendingAssistant *string
	var pendingCalls []providers.ToolCall

	flush := func() {
		if pendingAssistant == nil && len(pendingCalls) == 0 {
			return
		}
		content := ""
		if pendingAssistant != nil {
			content = *pendingAssistant
		}
		history = append(history, providers.Message{
			Role:      "assistant",
			Content:   content,
			ToolCalls: pendingCalls,
		})
		pendingAssistant = nil
		pendingCalls = nil
	}

	var lastUser string
	for _, m := range msgs {
		switch m.Kind {
		case MsgSystem:
			if system == "" {
				system = m.Content
			}
		case MsgUser:
			flush()
			lastUser = m.Content
			history = append(history, providers.Message{Role: "user", Content: m.Content})
		case MsgAssistant:
			flush()
			content := m.Content
			pendingAssistant = &content
		case MsgToolCall:
			if pendingAssistant == nil {
				empty := ""
				pendingAssistant = &empty
			}
			pendingCalls = append(pendingCalls, providers.ToolCall{
				ID:               m.CallID,
				Name:             m.Name,
				Args:             m.Args,
				ThoughtSignature: m.ThoughtSignature,
			})
		case MsgToolResult:
			flush()
			history = append(history, providers.Message{
				Role:       "tool",
				Content:    string(m.Result),
				ToolCallID: m.CallID,
				ToolName:   m.Name,
			})
		}
	}
	flush()

	if len(msgs) > 0 && msgs[len(msgs)-1].Kind == MsgUser {
		query = lastUser
		history = history[:len(history)-1]
	}
	return system, query, history
}
