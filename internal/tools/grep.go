package tools

import (
	"encoding/json"
	"os/exec"
	"strings"
)

const grepMaxOutput = 64 * 1024

// GrepTool shells out to ripgrep when available, plain grep otherwise.
type GrepTool struct{}

func NewGrepTool() *GrepTool { return &GrepTool{} }

func (t *GrepTool) Name() string { return "grep" }

func (t *GrepTool) Description() string {
	return "Search for a pattern in files using grep (or ripgrep if available). Pass 'pattern' (required), and optionally 'path' (file or directory, default '.'), 'case_insensitive' (boolean)."
}

func (t *GrepTool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": { "type": "string", "description": "Search pattern (regex)" },
			"path": { "type": "string", "description": "File or directory to search (default: .)" },
			"case_insensitive": { "type": "boolean", "description": "Case-insensitive match (default: false)" }
		},
		"required": ["pattern"]
	}`)
}

func (t *GrepTool) Call(args json.RawMessage, _ *Context) (json.RawMessage, error) {
	var in struct {
		Pattern         string `json:"pattern"`
		Path            string `json:"path"`
		CaseInsensitive bool   `json:"case_insensitive"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, InvalidArgsErr(err)
	}
	if strings.TrimSpace(in.Pattern) == "" {
		return nil, InvalidArgs("pattern must not be empty")
	}
	path := in.Path
	if path == "" {
		path = "."
	}

	var cmd *exec.Cmd
	if _, err := exec.LookPath("rg"); err == nil {
		rgArgs := []string{"--line-number", "--no-heading", "--color", "never"}
		if in.CaseInsensitive {
			rgArgs = append(rgArgs, "-i")
		}
		rgArgs = append(rgArgs, in.Pattern, path)
		cmd = exec.Command("rg", rgArgs...)
	} else {
		grepArgs := []string{"-rn"}
		if in.CaseInsensitive {
			grepArgs = append(grepArgs, "-i")
		}
		grepArgs = append(grepArgs, "-e", in.Pattern, path)
		cmd = exec.Command("grep", grepArgs...)
	}

	var stdout strings.Builder
	cmd.Stdout = &stdout
	err := cmd.Run()
	// Exit code 1 means "no matches" for both tools; anything else is real.
	if err != nil {
		if ee, ok := err.(*exec.ExitError); !ok || ee.ExitCode() != 1 {
			return nil, ExecutionFailedErr(err)
		}
	}

	matches := stdout.String()
	truncated := false
	if len(matches) > grepMaxOutput {
		matches = matches[:grepMaxOutput]
		truncated = true
	}
	return jsonResult(map[string]any{
		"matches":   matches,
		"truncated": truncated,
	}), nil
}
