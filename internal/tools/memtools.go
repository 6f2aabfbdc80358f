package tools

import (
	"encoding/json"
	"strings"

	"github.com/nextlevelbuilder/aish/internal/memory"
)

// memoryDirFor picks the store directory: "project" requires a project
// memory dir, anything else (including empty) uses the global one.
func memoryDirFor(ctx *Context, scope string) (string, error) {
	switch scope {
	case "project":
		if ctx.MemoryProjectDir == "" {
			return "", ExecutionFailed("no project memory dir (.aish/memory not found)")
		}
		return ctx.MemoryProjectDir, nil
	default:
		if ctx.MemoryGlobalDir == "" {
			return "", ExecutionFailed("no global memory dir configured")
		}
		return ctx.MemoryGlobalDir, nil
	}
}

// SaveMemoryTool persists a note for future sessions.
type SaveMemoryTool struct{}

func NewSaveMemoryTool() *SaveMemoryTool { return &SaveMemoryTool{} }

func (t *SaveMemoryTool) Name() string { return "save_memory" }

func (t *SaveMemoryTool) Description() string {
	return "Save a memory for future sessions. Pass 'content' (required), optional 'topic', and optional 'scope' ('global' default, or 'project')."
}

func (t *SaveMemoryTool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"content": { "type": "string", "description": "The memory content to save" },
			"topic": { "type": "string", "description": "Optional topic label" },
			"scope": { "type": "string", "enum": ["global", "project"], "description": "Where to store (default global)" }
		},
		"required": ["content"]
	}`)
}

func (t *SaveMemoryTool) Call(args json.RawMessage, ctx *Context) (json.RawMessage, error) {
	var in struct {
		Content string `json:"content"`
		Topic   string `json:"topic"`
		Scope   string `json:"scope"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, InvalidArgsErr(err)
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, InvalidArgs("content must not be empty")
	}
	dir, err := memoryDirFor(ctx, in.Scope)
	if err != nil {
		return nil, err
	}
	store, err := memory.Open(dir)
	if err != nil {
		return nil, ExecutionFailedErr(err)
	}
	defer store.Close()
	id, err := store.Save(in.Topic, in.Content)
	if err != nil {
		return nil, ExecutionFailedErr(err)
	}
	return jsonResult(map[string]any{"saved": true, "id": id}), nil
}

// SearchMemoryTool retrieves saved memories.
type SearchMemoryTool struct{}

func NewSearchMemoryTool() *SearchMemoryTool { return &SearchMemoryTool{} }

func (t *SearchMemoryTool) Name() string { return "search_memory" }

func (t *SearchMemoryTool) Description() string {
	return "Search saved memories. Pass 'query' (empty returns newest), optional 'limit' and 'scope' ('global' default, or 'project')."
}

func (t *SearchMemoryTool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": { "type": "string", "description": "Substring to look for in topic or content" },
			"limit": { "type": "integer", "description": "Max results (default 10)" },
			"scope": { "type": "string", "enum": ["global", "project"], "description": "Where to search (default global)" }
		}
	}`)
}

func (t *SearchMemoryTool) Call(args json.RawMessage, ctx *Context) (json.RawMessage, error) {
	var in struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
		Scope string `json:"scope"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, InvalidArgsErr(err)
	}
	dir, err := memoryDirFor(ctx, in.Scope)
	if err != nil {
		return nil, err
	}
	store, err := memory.Open(dir)
	if err != nil {
		return nil, ExecutionFailedErr(err)
	}
	defer store.Close()
	entries, err := store.Search(in.Query, in.Limit)
	if err != nil {
		return nil, ExecutionFailedErr(err)
	}
	if entries == nil {
		entries = []memory.Entry{}
	}
	return jsonResult(map[string]any{"memories": entries}), nil
}
