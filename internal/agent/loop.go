package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/aish/internal/errs"
	"github.com/nextlevelbuilder/aish/internal/providers"
	"github.com/nextlevelbuilder/aish/internal/tools"
	"github.com/nextlevelbuilder/aish/internal/tracing"
)

// RunState is the loop's execution state after one turn.
type RunState int

const (
	StateStreamingModel RunState = iota
	StateExecutingTools
	StateDone
	StateError
)

// Approval is the user's verdict on a non-allowlisted shell command.
type Approval int

const (
	Approved Approval = iota
	Denied
)

// ToolApproval is the port the loop asks before executing a shell command
// the allowlist did not admit.
type ToolApproval interface {
	ApproveUnsafeShell(command string) (Approval, error)
}

// AgentEvent is what sinks observe: every LLM stream event plus tool
// completion events.
type AgentEvent struct {
	LLM *providers.Event // nil for tool events

	ToolResult *ToolResultEvent
	ToolError  *ToolErrorEvent
}

type ToolResultEvent struct {
	CallID string
	Name   string
	Args   json.RawMessage
	Result json.RawMessage
}

type ToolErrorEvent struct {
	CallID  string
	Name    string
	Args    json.RawMessage
	Message string
}

// EventSink consumes agent events as they happen. OnEnd fires once when a
// conversation reaches Done.
type EventSink interface {
	OnEvent(ev *AgentEvent) error
	OnEnd() error
}

// Loop wires one conversation: stream, registry, context, sinks, approval.
type Loop struct {
	stream        providers.EventStream
	registry      *tools.Registry
	toolCtx       tools.Context
	sinks         []EventSink
	approver      ToolApproval
	shellToolName string // tool gated by allowlist + approval, "" disables the gate
}

func NewLoop(stream providers.EventStream, registry *tools.Registry, toolCtx tools.Context, sinks []EventSink, approver ToolApproval, shellToolName string) *Loop {
	return &Loop{
		stream:        stream,
		registry:      registry,
		toolCtx:       toolCtx,
		sinks:         sinks,
		approver:      approver,
		shellToolName: shellToolName,
	}
}

func (l *Loop) emit(ev *AgentEvent) error {
	for _, s := range l.sinks {
		if err := s.OnEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) emitEnd() error {
	for _, s := range l.sinks {
		if err := s.OnEnd(); err != nil {
			return err
		}
	}
	return nil
}

// pendingCall is a fully accumulated tool call awaiting execution.
type pendingCall struct {
	callID           string
	name             string
	args             json.RawMessage
	thoughtSignature string
}

// accumulator collects incremental tool-call fragments per call id.
type accumulator struct {
	callID           string
	name             string
	thoughtSignature string
	args             strings.Builder
}

func (a *accumulator) begin(ev *providers.Event) {
	a.callID = ev.CallID
	a.name = ev.Name
	a.thoughtSignature = ev.ThoughtSignature
	a.args.Reset()
}

func (a *accumulator) end(callID string) (pendingCall, error) {
	raw := strings.TrimSpace(a.args.String())
	if raw == "" {
		raw = "{}"
	}
	if !json.Valid([]byte(raw)) {
		return pendingCall{}, errs.Newf(errs.KindJson, "invalid tool args JSON for call %s", callID)
	}
	call := pendingCall{
		callID:           callID,
		name:             a.name,
		args:             json.RawMessage(raw),
		thoughtSignature: a.thoughtSignature,
	}
	a.name = ""
	a.thoughtSignature = ""
	a.args.Reset()
	return call, nil
}

// turnResult is what one RunOnce produces.
type turnResult struct {
	msgs        []Msg
	state       RunState
	text        string
	toolResults int
	limitHit    bool
}

// RunOnce performs one turn: stream the model, broadcast events, execute
// accumulated tool calls. toolBudget caps how many tool results this turn
// may still produce (0 or negative means unlimited); when the budget runs
// out mid-batch the remaining calls are not executed and limitHit is set.
func (l *Loop) RunOnce(ctx context.Context, msgs []Msg, toolBudget int) (turnResult, error) {
	system, query, history := MsgsToProvider(msgs)
	defs := l.registry.Definitions()

	ctx, span := tracing.Start(ctx, "agent.turn")
	defer span.End()

	var assistantText strings.Builder
	var pending []pendingCall
	var acc accumulator
	state := StateStreamingModel
	var streamFailure string

	err := l.stream.StreamEvents(ctx, query, system, history, defs, func(ev providers.Event) error {
		if err := l.emit(&AgentEvent{LLM: &ev}); err != nil {
			return err
		}
		switch ev.Type {
		case providers.EventTextDelta:
			assistantText.WriteString(ev.Text)
		case providers.EventToolCallBegin:
			acc.begin(&ev)
		case providers.EventToolCallArgsDelta:
			acc.args.WriteString(ev.ArgsFragment)
		case providers.EventToolCallEnd:
			call, err := acc.end(ev.CallID)
			if err != nil {
				return err
			}
			pending = append(pending, call)
			state = StateExecutingTools
		case providers.EventCompleted:
			if state != StateExecutingTools {
				state = StateDone
			}
		case providers.EventFailed:
			streamFailure = ev.Message
		}
		return nil
	})
	if streamFailure != "" {
		return turnResult{msgs: msgs, state: StateError}, errs.New(errs.KindHttp, streamFailure)
	}
	if err != nil {
		return turnResult{msgs: msgs, state: StateError}, err
	}

	res := turnResult{msgs: append([]Msg(nil), msgs...), state: state, text: assistantText.String()}
	if res.text != "" || len(pending) > 0 {
		res.msgs = append(res.msgs, Assistant(res.text))
	}

	for _, call := range pending {
		if toolBudget > 0 && res.toolResults >= toolBudget {
			res.limitHit = true
			break
		}
		res.msgs = append(res.msgs, ToolCallMsg(call.callID, call.name, call.args, call.thoughtSignature))

		result, execErr := l.executeCall(ctx, call)
		var aborted *approvalError
		if errors.As(execErr, &aborted) {
			res.state = StateError
			return res, aborted.err
		}
		res.toolResults++
		if execErr != nil {
			msg := execErr.Error()
			if err := l.emit(&AgentEvent{ToolError: &ToolErrorEvent{
				CallID: call.callID, Name: call.name, Args: call.args, Message: msg,
			}}); err != nil {
				res.state = StateError
				return res, err
			}
			errJSON, _ := json.Marshal(map[string]string{"error": msg})
			res.msgs = append(res.msgs, ToolResultMsg(call.callID, call.name, errJSON))
			continue
		}
		if err := l.emit(&AgentEvent{ToolResult: &ToolResultEvent{
			CallID: call.callID, Name: call.name, Args: call.args, Result: result,
		}}); err != nil {
			res.state = StateError
			return res, err
		}
		res.msgs = append(res.msgs, ToolResultMsg(call.callID, call.name, result))
	}

	if res.state == StateDone {
		if err := l.emitEnd(); err != nil {
			res.state = StateError
			return res, err
		}
	}
	return res, nil
}

// executeCall runs one tool call through the allowlist gate. For the shell
// tool, a command the allowlist rejects needs user approval; denial becomes
// a ToolResult error instead of an execution; a failed approval prompt
// (Ctrl+C included) ends the turn.
func (l *Loop) executeCall(ctx context.Context, call pendingCall) (json.RawMessage, error) {
	effectiveCtx := l.toolCtx

	if l.shellToolName != "" && call.name == l.shellToolName {
		var shellArgs struct {
			Command string `json:"command"`
		}
		_ = json.Unmarshal(call.args, &shellArgs)
		if !tools.IsCommandAllowed(shellArgs.Command, l.toolCtx.AllowRules) {
			verdict, err := l.approver.ApproveUnsafeShell(shellArgs.Command)
			if err != nil {
				return nil, &approvalError{err: err}
			}
			if verdict == Denied {
				slog.Info("shell command denied by user", "command", shellArgs.Command)
				return nil, fmt.Errorf("denied by user")
			}
			effectiveCtx = l.toolCtx.WithAllowUnsafe(true)
		}
	}

	_, span := tracing.Start(ctx, "tool."+call.name)
	defer span.End()
	result, err := l.registry.Call(call.name, call.args, &effectiveCtx)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// approvalError marks an error from the approval prompt itself.
type approvalError struct{ err error }

func (e *approvalError) Error() string { return e.err.Error() }

// Outcome is the final state of a driven conversation.
type Outcome struct {
	Msgs          []Msg
	AssistantText string
	ReachedLimit  bool
}

// RunUntilDone repeats turns until the model stops. Hard stops: maxTurns
// turns, or maxToolCalls cumulative tool results across turns — both return
// ReachedLimit with the conversation so far.
func (l *Loop) RunUntilDone(ctx context.Context, initial []Msg, maxTurns, maxToolCalls int) (Outcome, error) {
	msgs := append([]Msg(nil), initial...)
	lastText := ""
	totalToolCalls := 0

	for turn := 0; turn < maxTurns; turn++ {
		budget := 0
		if maxToolCalls > 0 {
			budget = maxToolCalls - totalToolCalls
		}
		res, err := l.RunOnce(ctx, msgs, budget)
		if err != nil {
			return Outcome{Msgs: msgs, AssistantText: lastText}, err
		}
		msgs = res.msgs
		if res.text != "" {
			lastText = res.text
		}
		totalToolCalls += res.toolResults

		if res.limitHit || (maxToolCalls > 0 && totalToolCalls >= maxToolCalls && res.state == StateExecutingTools) {
			slog.Warn("tool call limit reached", "limit", maxToolCalls)
			return Outcome{Msgs: msgs, AssistantText: lastText, ReachedLimit: true}, nil
		}
		switch res.state {
		case StateDone, StateStreamingModel, StateError:
			return Outcome{Msgs: msgs, AssistantText: lastText}, nil
		}
	}
	slog.Warn("turn limit reached")
	return Outcome{Msgs: msgs, AssistantText: lastText, ReachedLimit: true}, nil
}
