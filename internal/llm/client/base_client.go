package client

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// ChatOptions tunes a single completion call. Zero values fall back to the
// client defaults.
type ChatOptions struct {
	Temperature float32
	MaxTokens   int
	Stop        []string
}

// StreamHandler receives each streamed delta. Returning an error aborts the
// stream.
type StreamHandler func(delta string) error

// Completer is the completion capability consumed by the orchestrator.
type Completer interface {
	ChatCompletion(ctx context.Context, messages []openai.ChatCompletionMessage, opts *ChatOptions) (string, error)
	StreamChatCompletion(ctx context.Context, messages []openai.ChatCompletionMessage, opts *ChatOptions, onDelta StreamHandler) (string, error)
}
