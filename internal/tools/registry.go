// Package tools holds the tool registry, the execution context, and the
// built-in tools the agent loop can call. Tool errors are a closed set; the
// agent loop turns them into ToolResult errors instead of aborting.
package tools

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/nextlevelbuilder/aish/internal/providers"
)

// ErrKind is the closed set of tool failure classes.
type ErrKind int

const (
	ErrNotFound ErrKind = iota
	ErrInvalidArgs
	ErrExecutionFailed
	ErrPermissionDenied
)

// Error is a tool execution failure.
type Error struct {
	Kind ErrKind
	Msg  string
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrNotFound:
		return "tool not found: " + e.Msg
	case ErrInvalidArgs:
		return "invalid arguments: " + e.Msg
	case ErrPermissionDenied:
		return "permission denied: " + e.Msg
	default:
		return "execution failed: " + e.Msg
	}
}

func NotFound(name string) error { return &Error{Kind: ErrNotFound, Msg: name} }

func InvalidArgs(msg string) error { return &Error{Kind: ErrInvalidArgs, Msg: msg} }

func InvalidArgsErr(err error) error { return &Error{Kind: ErrInvalidArgs, Msg: err.Error()} }

func ExecutionFailed(msg string) error { return &Error{Kind: ErrExecutionFailed, Msg: msg} }

func ExecutionFailedErr(err error) error { return &Error{Kind: ErrExecutionFailed, Msg: err.Error()} }

func PermissionDenied(msg string) error { return &Error{Kind: ErrPermissionDenied, Msg: msg} }

// Tool is one callable capability. ParametersSchema may return nil; the
// registry substitutes an empty object schema for the provider payload.
type Tool interface {
	Name() string
	Description() string
	ParametersSchema() json.RawMessage
	Call(args json.RawMessage, ctx *Context) (json.RawMessage, error)
}

// Registry maps tool names to implementations.
type Registry struct {
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions builds the tool array for the provider request, in stable
// name order.
func (r *Registry) Definitions() []providers.ToolDef {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]providers.ToolDef, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		params := t.ParametersSchema()
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		defs = append(defs, providers.ToolDef{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  params,
		})
	}
	return defs
}

// Call resolves name and executes. args may be nil (treated as {}).
func (r *Registry) Call(name string, args json.RawMessage, ctx *Context) (json.RawMessage, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, NotFound(name)
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	return t.Call(args, ctx)
}

// jsonResult marshals v, panicking only on programmer error (unmarshalable
// built-in result types).
func jsonResult(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal tool result: %v", err))
	}
	return data
}
