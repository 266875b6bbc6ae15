// Package llm provides the chat-completion client used by the agent loop.
package llm

import "context"

// Message is a chat message sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tune a single completion request. Zero values fall back to
// the client defaults.
type Options struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// Client produces chat completions.
type Client interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
}
