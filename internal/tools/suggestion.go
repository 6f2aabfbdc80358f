package tools

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"mvdan.cc/sh/v3/syntax"

	"github.com/nextlevelbuilder/aish/internal/session"
)

// QueueSuggestionToolName queues a command for injection at the next shell
// prompt instead of executing it.
const QueueSuggestionToolName = "queue_shell_suggestion"

const suggestionMaxLen = 4096

// QueueSuggestionTool turns a structured command into a shell-quoted one-line
// suggestion, evaluates it against the allowlist, and writes the
// pending-input mailbox for the supervisor to inject.
type QueueSuggestionTool struct{}

func NewQueueSuggestionTool() *QueueSuggestionTool { return &QueueSuggestionTool{} }

func (t *QueueSuggestionTool) Name() string { return QueueSuggestionToolName }

func (t *QueueSuggestionTool) Description() string {
	return "Queue a shell command suggestion to be injected into the next shell prompt (without executing it)."
}

func (t *QueueSuggestionTool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {
				"type": "object",
				"properties": {
					"program": { "type": "string" },
					"args": { "type": "array", "items": { "type": "string" } },
					"cwd": { "type": "string", "description": "Optional working directory. Omit this field to use the default." }
				},
				"required": ["program", "args"]
			},
			"display_hint": { "type": "string" }
		},
		"required": ["command"]
	}`)
}

type structuredCommand struct {
	Program string   `json:"program"`
	Args    []string `json:"args"`
	Cwd     string   `json:"cwd"`
}

type queueSuggestionArgs struct {
	Command     structuredCommand `json:"command"`
	DisplayHint string            `json:"display_hint"`
}

// plainProgram reports whether program can be injected unquoted.
func plainProgram(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '.' || r == '/' || r == '-':
		default:
			return false
		}
	}
	return s != ""
}

// shellQuote single-quotes one argument, escaping embedded single quotes as
// 'foo'"'"'bar'. Control characters other than tab are rejected.
func shellQuote(arg string) (string, error) {
	for _, r := range arg {
		if r < 0x20 && r != '\t' {
			return "", InvalidArgs("command contains control characters")
		}
	}
	if arg == "" {
		return "''", nil
	}
	if !strings.Contains(arg, "'") {
		return "'" + arg + "'", nil
	}
	parts := strings.Split(arg, "'")
	return "'" + strings.Join(parts, `'"'"'`) + "'", nil
}

// sanitizeOneLine rejects newlines and ESC outright (a suggestion must be a
// single printable line) and truncates at the mailbox limit.
func sanitizeOneLine(s string, maxLen int) (string, error) {
	var b strings.Builder
	count := 0
	for _, ch := range s {
		if ch == '\n' || ch == '\r' || ch == 0x1b {
			return "", InvalidArgs("command must be single-line printable (no newline/ESC)")
		}
		if ch < 0x20 && ch != '\t' {
			return "", InvalidArgs("command contains control characters")
		}
		b.WriteRune(ch)
		count++
		if count >= maxLen {
			b.WriteRune('…')
			break
		}
	}
	return b.String(), nil
}

func (t *QueueSuggestionTool) Call(args json.RawMessage, ctx *Context) (json.RawMessage, error) {
	var in queueSuggestionArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, InvalidArgsErr(err)
	}
	program := in.Command.Program
	if strings.TrimSpace(program) == "" {
		return nil, InvalidArgs("command.program must not be empty")
	}

	// Build the shell-quoted one-line form for injection.
	line := program
	if !plainProgram(program) {
		quoted, err := shellQuote(program)
		if err != nil {
			return nil, err
		}
		line = quoted
	}
	for _, arg := range in.Command.Args {
		quoted, err := shellQuote(arg)
		if err != nil {
			return nil, err
		}
		line += " " + quoted
	}
	line, err := sanitizeOneLine(line, suggestionMaxLen)
	if err != nil {
		return nil, err
	}
	// The quoted line must still parse as a single shell word sequence.
	if _, err := syntax.NewParser().Parse(strings.NewReader(line), ""); err != nil {
		return nil, InvalidArgs("suggestion does not parse as shell: " + err.Error())
	}

	// Policy evaluation uses the unquoted command line.
	plain := strings.TrimSpace(program + " " + strings.Join(in.Command.Args, " "))
	var policy session.PolicyStatus
	if IsCommandAllowed(plain, ctx.AllowRules) {
		policy = session.Allowed()
	} else {
		policy = session.Blocked("not in command_rules allowlist")
	}

	pending := session.PendingInput{
		Text:            line,
		Policy:          policy,
		CreatedAtUnixMS: time.Now().UnixMilli(),
		Source:          "tool:" + QueueSuggestionToolName,
	}

	dir := ctx.SessionDir
	if dir == nil {
		if env := os.Getenv("AISH_SESSION"); env != "" {
			opened, err := session.Open(env)
			if err == nil {
				dir = opened
			}
		}
	}
	queued := false
	if dir != nil {
		if err := session.WritePendingInput(dir, pending); err != nil {
			return nil, ExecutionFailedErr(err)
		}
		queued = true
	}

	out := map[string]any{
		"queued": queued,
		"policy": policy.Kind,
		"text":   pending.Text,
	}
	if !queued {
		out["reason"] = "no session dir"
	}
	return jsonResult(out), nil
}
