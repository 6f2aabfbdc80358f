package providers

import (
	"context"
	"strings"
)

// Echo never calls a network. It streams the query back word by word and
// completes with Stop — the offline provider for tests and plumbing checks.
type Echo struct{}

func NewEcho() *Echo { return &Echo{} }

func (p *Echo) StreamEvents(_ context.Context, query, _ string, history []Message, _ []ToolDef, fn func(Event) error) error {
	text := query
	if text == "" {
		// Continuation turn: echo the last message content instead.
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Content != "" {
				text = history[i].Content
				break
			}
		}
	}
	if text != "" {
		words := strings.SplitAfter(text, " ")
		for _, w := range words {
			if w == "" {
				continue
			}
			if err := fn(textDelta(w)); err != nil {
				return err
			}
		}
	}
	return fn(completed(FinishStop))
}
