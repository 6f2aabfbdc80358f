package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/nextlevelbuilder/aish/internal/session"
)

// HistoryGetTool pages through the reviewed session history via the
// manifest, newest last, with id-range and role filters.
type HistoryGetTool struct{}

func NewHistoryGetTool() *HistoryGetTool { return &HistoryGetTool{} }

func (t *HistoryGetTool) Name() string { return "history_get" }

func (t *HistoryGetTool) Description() string {
	return "Retrieve past messages from the session history. Returns id, role, and content per message; use before_id/after_id to page."
}

func (t *HistoryGetTool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"limit": { "type": "integer", "description": "Number of messages to return (default 20, max 200)" },
			"before_id": { "type": "string", "description": "Return only messages with id < before_id" },
			"after_id": { "type": "string", "description": "Return only messages with id > after_id" },
			"role": { "type": "string", "enum": ["user", "assistant", "any"], "description": "Role filter (default any)" },
			"include_compaction": { "type": "boolean", "description": "Prepend latest compaction summary if available (default true)" }
		}
	}`)
}

type historyGetArgs struct {
	Limit             int    `json:"limit"`
	BeforeID          string `json:"before_id"`
	AfterID           string `json:"after_id"`
	Role              string `json:"role"`
	IncludeCompaction *bool  `json:"include_compaction"`
}

// readReviewed resolves and reads a manifest message's reviewed content.
func readReviewed(dir *session.Dir, msg *session.MessageRecord) (string, bool) {
	if msg.Decision == session.DecisionDeny || !session.IsSafeReviewedPath(msg.ReviewedPath) {
		return "", false
	}
	safe, ok := session.ResolveUnderSessionDir(dir, dir.Join(msg.ReviewedPath))
	if !ok {
		return "", false
	}
	data, err := os.ReadFile(safe)
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (t *HistoryGetTool) Call(args json.RawMessage, ctx *Context) (json.RawMessage, error) {
	if ctx.SessionDir == nil {
		return nil, ExecutionFailed("no session dir")
	}
	var in historyGetArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, InvalidArgsErr(err)
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	roleFilter := in.Role
	if roleFilter == "" {
		roleFilter = "any"
	}
	includeCompaction := in.IncludeCompaction == nil || *in.IncludeCompaction

	records, err := session.LoadAll(ctx.SessionDir)
	if err != nil {
		return nil, ExecutionFailedErr(err)
	}

	var selected []*session.MessageRecord
	for _, rec := range records {
		msg := rec.Message
		if msg == nil {
			continue
		}
		if in.BeforeID != "" && msg.ID >= in.BeforeID {
			continue
		}
		if in.AfterID != "" && msg.ID <= in.AfterID {
			continue
		}
		if roleFilter != "any" && string(msg.Role) != roleFilter {
			continue
		}
		selected = append(selected, msg)
	}
	if len(selected) > limit {
		selected = selected[len(selected)-limit:]
	}

	var out []map[string]any
	if includeCompaction && len(selected) > 0 {
		if comp := session.LatestCompactionBefore(records, selected[0].ID); comp != nil {
			if session.IsSafeSummaryBasename(comp.SummaryPath) {
				if safe, ok := session.ResolveUnderSessionDir(ctx.SessionDir, ctx.SessionDir.Join(comp.SummaryPath)); ok {
					if data, err := os.ReadFile(safe); err == nil {
						out = append(out, map[string]any{
							"id":      fmt.Sprintf("compaction:%s:%s", comp.FromID, comp.ToID),
							"role":    "assistant",
							"content": string(data),
						})
					}
				}
			}
		}
	}
	for _, msg := range selected {
		content, ok := readReviewed(ctx.SessionDir, msg)
		if !ok {
			continue
		}
		out = append(out, map[string]any{
			"id":      msg.ID,
			"role":    string(msg.Role),
			"content": content,
		})
	}
	return jsonResult(map[string]any{"messages": out}), nil
}

// HistorySearchTool scans reviewed content for a substring.
type HistorySearchTool struct{}

func NewHistorySearchTool() *HistorySearchTool { return &HistorySearchTool{} }

func (t *HistorySearchTool) Name() string { return "history_search" }

func (t *HistorySearchTool) Description() string {
	return "Search the session history for a substring. Returns matching messages with id, role, and a snippet."
}

func (t *HistorySearchTool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": { "type": "string", "description": "Substring to search for" },
			"limit": { "type": "integer", "description": "Max hits to return (default 10, max 50)" },
			"role": { "type": "string", "enum": ["user", "assistant", "any"], "description": "Role filter (default any)" },
			"case_sensitive": { "type": "boolean", "description": "Case sensitive search (default false)" }
		},
		"required": ["query"]
	}`)
}

const searchSnippetLen = 200

func (t *HistorySearchTool) Call(args json.RawMessage, ctx *Context) (json.RawMessage, error) {
	if ctx.SessionDir == nil {
		return nil, ExecutionFailed("no session dir")
	}
	var in struct {
		Query         string `json:"query"`
		Limit         int    `json:"limit"`
		Role          string `json:"role"`
		CaseSensitive bool   `json:"case_sensitive"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, InvalidArgsErr(err)
	}
	if in.Query == "" {
		return nil, InvalidArgs("missing 'query'")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}
	roleFilter := in.Role
	if roleFilter == "" {
		roleFilter = "any"
	}

	records, err := session.LoadAll(ctx.SessionDir)
	if err != nil {
		return nil, ExecutionFailedErr(err)
	}

	needle := in.Query
	if !in.CaseSensitive {
		needle = strings.ToLower(needle)
	}

	var hits []map[string]any
	for _, rec := range records {
		msg := rec.Message
		if msg == nil {
			continue
		}
		if roleFilter != "any" && string(msg.Role) != roleFilter {
			continue
		}
		content, ok := readReviewed(ctx.SessionDir, msg)
		if !ok {
			continue
		}
		haystack := content
		if !in.CaseSensitive {
			haystack = strings.ToLower(content)
		}
		idx := strings.Index(haystack, needle)
		if idx < 0 {
			continue
		}
		end := idx + searchSnippetLen
		if end > len(content) {
			end = len(content)
		}
		hits = append(hits, map[string]any{
			"id":      msg.ID,
			"role":    string(msg.Role),
			"snippet": content[idx:end],
		})
		if len(hits) >= limit {
			break
		}
	}
	return jsonResult(map[string]any{"hits": hits}), nil
}
