package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// WriteFileTool overwrites a file with the given content.
type WriteFileTool struct{}

func NewWriteFileTool() *WriteFileTool { return &WriteFileTool{} }

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Overwrite a file with the given content. Use when you need to create or fully replace a file. Pass 'path' and 'content'."
}

func (t *WriteFileTool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": { "type": "string", "description": "Path to the file to write" },
			"content": { "type": "string", "description": "Content to write (overwrites entire file)" }
		},
		"required": ["path", "content"]
	}`)
}

func (t *WriteFileTool) Call(args json.RawMessage, _ *Context) (json.RawMessage, error) {
	var in struct {
		Path    string  `json:"path"`
		Content *string `json:"content"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, InvalidArgsErr(err)
	}
	if strings.TrimSpace(in.Path) == "" {
		return nil, InvalidArgs("path must not be empty")
	}
	if in.Content == nil {
		return nil, InvalidArgs("missing 'content'")
	}
	if err := os.WriteFile(in.Path, []byte(*in.Content), 0o644); err != nil {
		return nil, ExecutionFailed(fmt.Sprintf("%s: %v", in.Path, err))
	}
	return jsonResult(map[string]any{
		"path":    in.Path,
		"written": len(*in.Content),
	}), nil
}

// ReplaceFileTool replaces one exactly-matching block of text in a file.
type ReplaceFileTool struct{}

func NewReplaceFileTool() *ReplaceFileTool { return &ReplaceFileTool{} }

func (t *ReplaceFileTool) Name() string { return "replace_file" }

func (t *ReplaceFileTool) Description() string {
	return "Replace a specific block of text in a file. The old_block must match exactly one location in the file; include enough context in old_block to make it unique. Pass path, old_block (exact text to find), and new_block (replacement)."
}

func (t *ReplaceFileTool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": { "type": "string", "description": "Path to the file to modify" },
			"old_block": { "type": "string", "description": "The exact block of text to be replaced (must appear exactly once in the file)" },
			"new_block": { "type": "string", "description": "The new block of text to replace it with" }
		},
		"required": ["path", "old_block", "new_block"]
	}`)
}

func (t *ReplaceFileTool) Call(args json.RawMessage, _ *Context) (json.RawMessage, error) {
	var in struct {
		Path     string  `json:"path"`
		OldBlock string  `json:"old_block"`
		NewBlock *string `json:"new_block"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, InvalidArgsErr(err)
	}
	if strings.TrimSpace(in.Path) == "" {
		return nil, InvalidArgs("path must not be empty")
	}
	if in.OldBlock == "" {
		return nil, InvalidArgs("old_block must not be empty (provide enough context to match exactly one place)")
	}
	if in.NewBlock == nil {
		return nil, InvalidArgs("missing 'new_block'")
	}

	data, err := os.ReadFile(in.Path)
	if err != nil {
		return nil, ExecutionFailed(fmt.Sprintf("%s: %v", in.Path, err))
	}
	content := string(data)
	count := strings.Count(content, in.OldBlock)
	switch {
	case count == 0:
		return nil, ExecutionFailed(fmt.Sprintf("old_block not found in %s", in.Path))
	case count > 1:
		return nil, ExecutionFailed(fmt.Sprintf(
			"old_block found %d times in %s. Please provide more context in old_block so it matches exactly one location.",
			count, in.Path))
	}
	replaced := strings.Replace(content, in.OldBlock, *in.NewBlock, 1)
	if err := os.WriteFile(in.Path, []byte(replaced), 0o644); err != nil {
		return nil, ExecutionFailed(fmt.Sprintf("%s: %v", in.Path, err))
	}
	return jsonResult(map[string]any{
		"path":     in.Path,
		"replaced": true,
	}), nil
}
