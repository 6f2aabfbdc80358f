package providers

import (
	"bufio"
	"context"
	"encoding/json"
	"sort"
	"strings"
)

const openaiDefaultBase = "https://api.openai.com/v1"
const openaiDefaultModel = "gpt-4o-mini"

// OpenAI speaks the Chat Completions protocol, which also covers every
// OpenAI-compatible endpoint (set base_url in the profile). Streaming
// tool-call fragments arrive indexed; they are bucketed per index and closed
// in index order at end of stream.
type OpenAI struct {
	name        string
	baseURL     string
	model       string
	temperature float64
	http        httpClient
}

func NewOpenAI(name string, prof Profile) *OpenAI {
	base := prof.BaseURL
	if base == "" {
		base = openaiDefaultBase
	}
	model := prof.Model
	if model == "" {
		model = openaiDefaultModel
	}
	keyEnv := prof.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "OPENAI_API_KEY"
	}
	temp := prof.Temperature
	if temp == 0 {
		temp = 0.7
	}
	return &OpenAI{
		name:        name,
		baseURL:     strings.TrimRight(base, "/"),
		model:       model,
		temperature: temp,
		http:        newHTTPClient(keyEnv, prof.RateLimitRPM),
	}
}

// NewOpenAICompat is the compat alias: identical wire protocol, custom
// base_url, no implicit API key requirement.
func NewOpenAICompat(name string, prof Profile) *OpenAI {
	p := NewOpenAI(name, prof)
	if prof.APIKeyEnv == "" {
		p.http.apiKeyEnv = ""
	}
	return p
}

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type oaiToolCall struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"`
	Function oaiFunction `json:"function"`
}

type oaiFunction struct {
	Name             string `json:"name"`
	Arguments        string `json:"arguments"`
	ThoughtSignature string `json:"thought_signature,omitempty"`
}

func (p *OpenAI) buildMessages(query, system string, history []Message) []oaiMessage {
	var msgs []oaiMessage
	if system != "" {
		msgs = append(msgs, oaiMessage{Role: "system", Content: system})
	}
	for _, m := range history {
		switch m.Role {
		case "tool":
			msgs = append(msgs, oaiMessage{Role: "tool", Content: m.Content, ToolCallID: m.ToolCallID})
		case "assistant":
			out := oaiMessage{Role: "assistant", Content: m.Content}
			for _, tc := range m.ToolCalls {
				out.ToolCalls = append(out.ToolCalls, oaiToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: oaiFunction{
						Name:             tc.Name,
						Arguments:        string(tc.Args),
						ThoughtSignature: tc.ThoughtSignature,
					},
				})
			}
			msgs = append(msgs, out)
		default:
			msgs = append(msgs, oaiMessage{Role: m.Role, Content: m.Content})
		}
	}
	if query != "" {
		msgs = append(msgs, oaiMessage{Role: "user", Content: query})
	}
	return msgs
}

func (p *OpenAI) buildBody(query, system string, history []Message, tools []ToolDef) ([]byte, error) {
	payload := map[string]any{
		"model":       p.model,
		"messages":    p.buildMessages(query, system, history),
		"temperature": p.temperature,
		"stream":      true,
	}
	if len(tools) > 0 {
		defs := make([]map[string]any, 0, len(tools))
		for _, t := range tools {
			params := t.Parameters
			if len(params) == 0 {
				params = json.RawMessage(`{"type":"object","properties":{}}`)
			}
			defs = append(defs, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  params,
				},
			})
		}
		payload["tools"] = defs
		payload["tool_choice"] = "auto"
	}
	return json.Marshal(payload)
}

type oaiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			ToolCalls        []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name             string `json:"name"`
					Arguments        string `json:"arguments"`
					ThoughtSignature string `json:"thought_signature"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type oaiBucket struct {
	callID string
	args   strings.Builder
}

func (p *OpenAI) StreamEvents(ctx context.Context, query, system string, history []Message, tools []ToolDef, fn func(Event) error) error {
	body, err := p.buildBody(query, system, history, tools)
	if err != nil {
		return failEvent(fn, "%s: build request: %v", p.name, err)
	}
	headers := map[string]string{}
	if key := p.http.apiKey(); key != "" {
		headers["Authorization"] = "Bearer " + key
	}
	resp, err := p.http.post(ctx, p.baseURL+"/chat/completions", headers, body)
	if err != nil {
		return failEvent(fn, "%s: %v", p.name, err)
	}
	defer resp.Close()

	buckets := map[int]*oaiBucket{}
	hadToolCalls := false

	scanner := bufio.NewScanner(resp)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		data, ok := sseData(scanner.Text())
		if !ok || data == "" {
			continue
		}
		if data == "[DONE]" {
			break
		}
		var chunk oaiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.ReasoningContent != "" {
			if err := fn(reasoningDelta(delta.ReasoningContent)); err != nil {
				return err
			}
		}
		if delta.Content != "" {
			if err := fn(textDelta(delta.Content)); err != nil {
				return err
			}
		}
		for _, tc := range delta.ToolCalls {
			bucket, exists := buckets[tc.Index]
			if !exists {
				bucket = &oaiBucket{callID: tc.ID}
				buckets[tc.Index] = bucket
				hadToolCalls = true
				if err := fn(Event{
					Type:             EventToolCallBegin,
					CallID:           tc.ID,
					Name:             strings.TrimSpace(tc.Function.Name),
					ThoughtSignature: tc.Function.ThoughtSignature,
				}); err != nil {
					return err
				}
			}
			if tc.Function.Arguments != "" {
				bucket.args.WriteString(tc.Function.Arguments)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return failEvent(fn, "%s: read stream: %v", p.name, err)
	}

	// Close collected calls in index order: args delta, then end.
	indices := make([]int, 0, len(buckets))
	for i := range buckets {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	for _, i := range indices {
		bucket := buckets[i]
		if args := bucket.args.String(); args != "" {
			if err := fn(Event{Type: EventToolCallArgsDelta, CallID: bucket.callID, ArgsFragment: args}); err != nil {
				return err
			}
		}
		if err := fn(Event{Type: EventToolCallEnd, CallID: bucket.callID}); err != nil {
			return err
		}
	}

	finish := FinishStop
	if hadToolCalls {
		finish = FinishToolCalls
	}
	return fn(completed(finish))
}
