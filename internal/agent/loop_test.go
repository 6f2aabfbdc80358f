package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nextlevelbuilder/aish/internal/providers"
	"github.com/nextlevelbuilder/aish/internal/tools"
)

// stubStream replays a fixed event sequence per turn.
type stubStream struct {
	events []providers.Event
	calls  int
}

func (s *stubStream) StreamEvents(_ context.Context, _ string, _ string, _ []providers.Message, _ []providers.ToolDef, fn func(providers.Event) error) error {
	s.calls++
	for _, ev := range s.events {
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}

func textOnlyStream(text string) *stubStream {
	return &stubStream{events: []providers.Event{
		{Type: providers.EventTextDelta, Text: text},
		{Type: providers.EventCompleted, Finish: providers.FinishStop},
	}}
}

func shellCallEvents(callID, command string) []providers.Event {
	return []providers.Event{
		{Type: providers.EventToolCallBegin, CallID: callID, Name: tools.ShellToolName},
		{Type: providers.EventToolCallArgsDelta, CallID: callID, ArgsFragment: `{"command":"` + command + `"}`},
		{Type: providers.EventToolCallEnd, CallID: callID},
		{Type: providers.EventCompleted, Finish: providers.FinishToolCalls},
	}
}

type stubApproval struct {
	verdict Approval
	asked   int
}

func (s *stubApproval) ApproveUnsafeShell(string) (Approval, error) {
	s.asked++
	return s.verdict, nil
}

type recordingSink struct {
	events []AgentEvent
	ended  int
}

func (s *recordingSink) OnEvent(ev *AgentEvent) error {
	s.events = append(s.events, *ev)
	return nil
}

func (s *recordingSink) OnEnd() error {
	s.ended++
	return nil
}

func newTestLoop(stream providers.EventStream, approver ToolApproval, sink EventSink) *Loop {
	registry := tools.NewRegistry()
	registry.Register(tools.NewShellTool())
	var sinks []EventSink
	if sink != nil {
		sinks = append(sinks, sink)
	}
	return NewLoop(stream, registry, tools.Context{}, sinks, approver, tools.ShellToolName)
}

func TestRunOnceTextOnly(t *testing.T) {
	sink := &recordingSink{}
	loop := newTestLoop(textOnlyStream("world"), &stubApproval{}, sink)
	res, err := loop.RunOnce(context.Background(), []Msg{User("Hi")}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.state != StateDone {
		t.Errorf("state = %v", res.state)
	}
	if res.text != "world" {
		t.Errorf("text = %q", res.text)
	}
	if len(res.msgs) != 2 || res.msgs[1].Kind != MsgAssistant || res.msgs[1].Content != "world" {
		t.Errorf("msgs = %+v", res.msgs)
	}
	if sink.ended != 1 {
		t.Errorf("OnEnd fired %d times", sink.ended)
	}
}

// Spec scenario: shell tool approved. The approver admits the command, the
// tool runs, and the result carries the real stdout.
func TestShellToolApproved(t *testing.T) {
	stream := &stubStream{events: shellCallEvents("c1", "echo approved")}
	approver := &stubApproval{verdict: Approved}
	loop := newTestLoop(stream, approver, nil)

	res, err := loop.RunOnce(context.Background(), []Msg{User("run it")}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.state != StateExecutingTools {
		t.Errorf("state = %v", res.state)
	}
	if approver.asked != 1 {
		t.Errorf("approver asked %d times", approver.asked)
	}
	// user, assistant(empty), tool_call, tool_result
	if len(res.msgs) != 4 {
		t.Fatalf("msgs = %+v", res.msgs)
	}
	var result map[string]any
	if err := json.Unmarshal(res.msgs[3].Result, &result); err != nil {
		t.Fatal(err)
	}
	if result["stdout"] != "approved\n" || result["exit_code"].(float64) != 0 {
		t.Errorf("tool result = %v", result)
	}
}

// Spec scenario: shell tool denied. No process runs; the result is an error
// the model can see, and the loop keeps going.
func TestShellToolDenied(t *testing.T) {
	stream := &stubStream{events: shellCallEvents("c1", "rm -rf /")}
	loop := newTestLoop(stream, &stubApproval{verdict: Denied}, nil)

	res, err := loop.RunOnce(context.Background(), []Msg{User("run it")}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.msgs) != 4 {
		t.Fatalf("msgs = %+v", res.msgs)
	}
	var result map[string]any
	if err := json.Unmarshal(res.msgs[3].Result, &result); err != nil {
		t.Fatal(err)
	}
	if result["error"] != "denied by user" {
		t.Errorf("tool result = %v", result)
	}
}

func TestDeniedThenTextCompletes(t *testing.T) {
	// First turn asks for a denied shell call, second turn is text only.
	turn := 0
	stream := &switchStream{streams: []providers.EventStream{
		&stubStream{events: shellCallEvents("c1", "rm -rf /")},
		textOnlyStream("understood"),
	}, turn: &turn}
	loop := newTestLoop(stream, &stubApproval{verdict: Denied}, nil)

	outcome, err := loop.RunUntilDone(context.Background(), []Msg{User("go")}, 8, 0)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.ReachedLimit {
		t.Error("unexpected limit")
	}
	if outcome.AssistantText != "understood" {
		t.Errorf("final text = %q", outcome.AssistantText)
	}
}

type switchStream struct {
	streams []providers.EventStream
	turn    *int
}

func (s *switchStream) StreamEvents(ctx context.Context, query, system string, history []providers.Message, defs []providers.ToolDef, fn func(providers.Event) error) error {
	idx := *s.turn
	if idx >= len(s.streams) {
		idx = len(s.streams) - 1
	}
	*s.turn++
	return s.streams[idx].StreamEvents(ctx, query, system, history, defs, fn)
}

// Spec scenario: reached-limit cap. Five tool calls per turn, never Stop,
// max_tool_calls=3: exactly 3 ToolResult messages and ReachedLimit.
func TestRunUntilDoneToolCallCap(t *testing.T) {
	var events []providers.Event
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		events = append(events,
			providers.Event{Type: providers.EventToolCallBegin, CallID: id, Name: tools.ShellToolName},
			providers.Event{Type: providers.EventToolCallArgsDelta, CallID: id, ArgsFragment: `{"command":"echo x"}`},
			providers.Event{Type: providers.EventToolCallEnd, CallID: id},
		)
	}
	events = append(events, providers.Event{Type: providers.EventCompleted, Finish: providers.FinishToolCalls})
	loop := newTestLoop(&stubStream{events: events}, &stubApproval{verdict: Approved}, nil)

	outcome, err := loop.RunUntilDone(context.Background(), []Msg{User("go")}, 10, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.ReachedLimit {
		t.Error("want ReachedLimit")
	}
	results := 0
	for _, m := range outcome.Msgs {
		if m.Kind == MsgToolResult {
			results++
		}
	}
	if results != 3 {
		t.Errorf("tool results = %d, want exactly 3", results)
	}
}

func TestRunUntilDoneTurnCap(t *testing.T) {
	stream := &stubStream{events: shellCallEvents("c1", "echo x")}
	loop := newTestLoop(stream, &stubApproval{verdict: Approved}, nil)
	outcome, err := loop.RunUntilDone(context.Background(), []Msg{User("go")}, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.ReachedLimit {
		t.Error("want ReachedLimit after max_turns")
	}
	if stream.calls != 2 {
		t.Errorf("stream called %d times, want 2", stream.calls)
	}
}

func TestStreamFailureIsError(t *testing.T) {
	stream := &stubStream{events: []providers.Event{
		{Type: providers.EventTextDelta, Text: "partial"},
		{Type: providers.EventFailed, Message: "upstream 500"},
	}}
	loop := newTestLoop(stream, &stubApproval{}, nil)
	_, err := loop.RunOnce(context.Background(), []Msg{User("q")}, 0)
	if err == nil {
		t.Fatal("want error on Failed event")
	}
}

func TestEmptyArgsBecomeEmptyObject(t *testing.T) {
	stream := &stubStream{events: []providers.Event{
		{Type: providers.EventToolCallBegin, CallID: "c1", Name: tools.ShellToolName},
		{Type: providers.EventToolCallEnd, CallID: "c1"},
		{Type: providers.EventCompleted, Finish: providers.FinishToolCalls},
	}}
	loop := newTestLoop(stream, &stubApproval{verdict: Denied}, nil)
	res, err := loop.RunOnce(context.Background(), []Msg{User("q")}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if string(res.msgs[2].Args) != "{}" {
		t.Errorf("args = %s", res.msgs[2].Args)
	}
}

func TestUnknownToolBecomesResultError(t *testing.T) {
	stream := &stubStream{events: []providers.Event{
		{Type: providers.EventToolCallBegin, CallID: "c1", Name: "no_such_tool"},
		{Type: providers.EventToolCallArgsDelta, CallID: "c1", ArgsFragment: `{}`},
		{Type: providers.EventToolCallEnd, CallID: "c1"},
		{Type: providers.EventCompleted, Finish: providers.FinishToolCalls},
	}}
	loop := newTestLoop(stream, &stubApproval{}, nil)
	res, err := loop.RunOnce(context.Background(), []Msg{User("q")}, 0)
	if err != nil {
		t.Fatalf("tool errors must not abort the loop: %v", err)
	}
	var result map[string]any
	json.Unmarshal(res.msgs[3].Result, &result)
	if _, ok := result["error"]; !ok {
		t.Errorf("result = %v", result)
	}
}
