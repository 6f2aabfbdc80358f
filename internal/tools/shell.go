package tools

import (
	"encoding/json"
	"os/exec"
	"strings"
)

// ShellToolName is the designated shell tool the agent loop gates through
// the allowlist + approval flow.
const ShellToolName = "run_shell"

// ShellTool executes a command line via sh -c. Without the unsafe override
// it refuses anything the allowlist does not admit; only this tool returns
// PermissionDenied.
type ShellTool struct{}

func NewShellTool() *ShellTool { return &ShellTool{} }

func (t *ShellTool) Name() string { return ShellToolName }

func (t *ShellTool) Description() string {
	return "Execute a shell command on the user's machine. Pass a single string 'command' to run via sh -c."
}

func (t *ShellTool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": { "type": "string", "description": "Shell command to execute (run with sh -c)" }
		},
		"required": ["command"]
	}`)
}

type shellArgs struct {
	Command string `json:"command"`
}

func (t *ShellTool) Call(args json.RawMessage, ctx *Context) (json.RawMessage, error) {
	var in shellArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, InvalidArgsErr(err)
	}
	if strings.TrimSpace(in.Command) == "" {
		return nil, InvalidArgs("command must not be empty")
	}

	if !ctx.AllowUnsafe && !IsCommandAllowed(in.Command, ctx.AllowRules) {
		return nil, PermissionDenied("command not in allowlist: " + in.Command)
	}

	cmd := exec.Command("sh", "-c", in.Command)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		} else {
			return nil, ExecutionFailedErr(err)
		}
	}

	return jsonResult(map[string]any{
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": exitCode,
	}), nil
}
