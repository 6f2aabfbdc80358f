package providers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const geminiDefaultBase = "https://generativelanguage.googleapis.com/v1beta"
const geminiDefaultModel = "gemini-2.0-flash"

// Gemini streams generateContent responses (alt=sse). Tool calls arrive as
// whole functionCall parts, so each one yields its Begin/ArgsDelta/End
// triple immediately; thought signatures ride along and must be echoed back
// in follow-up turns.
type Gemini struct {
	baseURL     string
	model       string
	temperature float64
	http        httpClient
}

func NewGemini(prof Profile) *Gemini {
	base := prof.BaseURL
	if base == "" {
		base = geminiDefaultBase
	}
	model := prof.Model
	if model == "" {
		model = geminiDefaultModel
	}
	keyEnv := prof.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "GEMINI_API_KEY"
	}
	temp := prof.Temperature
	if temp == 0 {
		temp = 0.7
	}
	return &Gemini{
		baseURL:     strings.TrimRight(base, "/"),
		model:       model,
		temperature: temp,
		http:        newHTTPClient(keyEnv, prof.RateLimitRPM),
	}
}

type geminiPart struct {
	Text             string              `json:"text,omitempty"`
	Thought          bool                `json:"thought,omitempty"`
	ThoughtSignature string              `json:"thoughtSignature,omitempty"`
	FunctionCall     *geminiFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResp `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type geminiFunctionResp struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

func (p *Gemini) buildContents(query string, history []Message) []geminiContent {
	var contents []geminiContent
	for _, m := range history {
		switch m.Role {
		case "user":
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		case "assistant":
			var parts []geminiPart
			if m.Content != "" {
				parts = append(parts, geminiPart{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, geminiPart{
					ThoughtSignature: tc.ThoughtSignature,
					FunctionCall:     &geminiFunctionCall{Name: tc.Name, Args: tc.Args},
				})
			}
			if len(parts) > 0 {
				contents = append(contents, geminiContent{Role: "model", Parts: parts})
			}
		case "tool":
			resp := m.Content
			if !json.Valid([]byte(resp)) {
				quoted, _ := json.Marshal(resp)
				resp = fmt.Sprintf(`{"output":%s}`, quoted)
			}
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{
				FunctionResponse: &geminiFunctionResp{Name: m.ToolName, Response: json.RawMessage(resp)},
			}}})
		}
	}
	if query != "" {
		contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: query}}})
	}
	return contents
}

func (p *Gemini) buildBody(query, system string, history []Message, tools []ToolDef) ([]byte, error) {
	payload := map[string]any{
		"contents":         p.buildContents(query, history),
		"generationConfig": map[string]any{"temperature": p.temperature},
	}
	if system != "" {
		payload["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": system}},
		}
	}
	if len(tools) > 0 {
		decls := make([]map[string]any, 0, len(tools))
		for _, t := range tools {
			params := t.Parameters
			if len(params) == 0 {
				params = json.RawMessage(`{"type":"object","properties":{}}`)
			}
			decls = append(decls, map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  params,
			})
		}
		payload["tools"] = []map[string]any{{"functionDeclarations": decls}}
	}
	return json.Marshal(payload)
}

type geminiStreamChunk struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *Gemini) StreamEvents(ctx context.Context, query, system string, history []Message, tools []ToolDef, fn func(Event) error) error {
	body, err := p.buildBody(query, system, history, tools)
	if err != nil {
		return failEvent(fn, "gemini: build request: %v", err)
	}
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", p.baseURL, p.model)
	headers := map[string]string{}
	if key := p.http.apiKey(); key != "" {
		headers["x-goog-api-key"] = key
	}
	resp, err := p.http.post(ctx, url, headers, body)
	if err != nil {
		return failEvent(fn, "gemini: %v", err)
	}
	defer resp.Close()

	hadToolCalls := false
	callSeq := 0
	finish := FinishStop

	scanner := bufio.NewScanner(resp)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		data, ok := sseData(scanner.Text())
		if !ok || data == "" {
			continue
		}
		var chunk geminiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			return failEvent(fn, "gemini: %s", chunk.Error.Message)
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		cand := chunk.Candidates[0]
		for _, part := range cand.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				hadToolCalls = true
				callSeq++
				callID := fmt.Sprintf("call_%d", callSeq)
				if err := fn(Event{
					Type:             EventToolCallBegin,
					CallID:           callID,
					Name:             part.FunctionCall.Name,
					ThoughtSignature: part.ThoughtSignature,
				}); err != nil {
					return err
				}
				if args := string(part.FunctionCall.Args); args != "" {
					if err := fn(Event{Type: EventToolCallArgsDelta, CallID: callID, ArgsFragment: args}); err != nil {
						return err
					}
				}
				if err := fn(Event{Type: EventToolCallEnd, CallID: callID}); err != nil {
					return err
				}
			case part.Text != "" && part.Thought:
				if err := fn(reasoningDelta(part.Text)); err != nil {
					return err
				}
			case part.Text != "":
				if err := fn(textDelta(part.Text)); err != nil {
					return err
				}
			}
		}
		if cand.FinishReason == "MAX_TOKENS" {
			finish = FinishLength
		}
	}
	if err := scanner.Err(); err != nil {
		return failEvent(fn, "gemini: read stream: %v", err)
	}

	if hadToolCalls {
		finish = FinishToolCalls
	}
	return fn(completed(finish))
}
