// Package client wraps the DeepSeek chat API (OpenAI-compatible) for
// completion, streaming completion, and intent classification.
package client

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/well-bot-agent/internal/logger"
)

const (
	DefaultModel   = "deepseek-chat"
	DefaultBaseURL = "https://api.deepseek.com/v1"

	// DefaultMaxPromptTokens bounds what we send; history is clipped to fit.
	DefaultMaxPromptTokens = 4096

	defaultTemperature = 0.3
	defaultMaxTokens   = 250
)

const classifierSystemPrompt = `You are an intent classifier for a wellness assistant. Analyze the user's input and determine their intent.

Available intents:
- small_talk: General conversation, questions, greetings, casual chat
- journal.start: Starting a journaling session
- gratitude.add: Adding a gratitude entry
- todo.add: Adding a to-do item
- todo.list: Showing to-do list
- todo.complete: Completing a to-do item
- todo.delete: Deleting a to-do item
- quote.get: Getting a spiritual quote
- meditation.play: Starting meditation
- session.end: Ending the session

Respond with JSON only in this exact format:
{"intent": "intent_name", "confidence": 0.0-1.0, "args": {"key": "value"}}`

type DeepSeekClient struct {
	Client *openai.Client
	Model  string

	// Defaults applied when a call passes nil options.
	Temperature     float32
	MaxTokens       int
	MaxPromptTokens int

	log *logger.Logger
}

// NewDeepSeekClient builds a client against the DeepSeek endpoint. Empty
// baseURL/model select the defaults.
func NewDeepSeekClient(apiKey, baseURL, model string, log *logger.Logger) *DeepSeekClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL

	return &DeepSeekClient{
		Client:          openai.NewClientWithConfig(cfg),
		Model:           model,
		Temperature:     defaultTemperature,
		MaxTokens:       defaultMaxTokens,
		MaxPromptTokens: DefaultMaxPromptTokens,
		log:             log,
	}
}

func (d *DeepSeekClient) options(opts *ChatOptions) ChatOptions {
	out := ChatOptions{Temperature: d.Temperature, MaxTokens: d.MaxTokens}
	if opts == nil {
		return out
	}
	if opts.Temperature != 0 {
		out.Temperature = opts.Temperature
	}
	if opts.MaxTokens != 0 {
		out.MaxTokens = opts.MaxTokens
	}
	out.Stop = opts.Stop
	return out
}

// ChatCompletion sends a non-streaming completion. Messages are clipped to
// the prompt token budget, keeping the system message and the newest turns.
func (d *DeepSeekClient) ChatCompletion(ctx context.Context, messages []openai.ChatCompletionMessage, opts *ChatOptions) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("messages is empty")
	}
	o := d.options(opts)
	start := time.Now()

	clipped := clipMessages(d.Model, messages, d.MaxPromptTokens, o.MaxTokens)

	resp, err := d.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       d.Model,
		Messages:    clipped,
		Temperature: o.Temperature,
		MaxTokens:   o.MaxTokens,
		Stop:        o.Stop,
	})
	if err != nil {
		d.log.Error("chat completion failed: err=%v duration_ms=%d", err, time.Since(start).Milliseconds())
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", errors.New("empty message content")
	}

	d.log.Info("chat completion finished: response_length=%d duration_ms=%d",
		len(content), time.Since(start).Milliseconds())
	return content, nil
}

// StreamChatCompletion streams deltas through onDelta and returns the
// accumulated text. A cancelled stream still returns what was received.
func (d *DeepSeekClient) StreamChatCompletion(ctx context.Context, messages []openai.ChatCompletionMessage, opts *ChatOptions, onDelta StreamHandler) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("messages is empty")
	}
	o := d.options(opts)

	clipped := clipMessages(d.Model, messages, d.MaxPromptTokens, o.MaxTokens)

	stream, err := d.Client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       d.Model,
		Messages:    clipped,
		Temperature: o.Temperature,
		MaxTokens:   o.MaxTokens,
		Stop:        o.Stop,
		Stream:      true,
	})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var b strings.Builder
	for {
		resp, recvErr := stream.Recv()
		if recvErr != nil {
			if b.Len() > 0 && (errors.Is(recvErr, context.Canceled) || strings.Contains(recvErr.Error(), "EOF")) {
				return b.String(), nil
			}
			return b.String(), recvErr
		}
		for _, ch := range resp.Choices {
			frag := ch.Delta.Content
			if frag == "" {
				continue
			}
			b.WriteString(frag)
			if onDelta != nil {
				if cbErr := onDelta(frag); cbErr != nil {
					return b.String(), cbErr
				}
			}
		}
	}
}

// ClassifyIntent asks the model to label text with one of the fixed intents
// and returns the raw JSON content. Low temperature for stable labels; the
// caller owns parsing and fail-open behavior.
func (d *DeepSeekClient) ClassifyIntent(ctx context.Context, text string) (string, error) {
	start := time.Now()

	resp, err := d.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifierSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0.1,
		MaxTokens:   100,
	})
	if err != nil {
		d.log.Error("intent classification call failed: err=%v duration_ms=%d text=%s",
			err, time.Since(start).Milliseconds(), logger.Mask(text))
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	d.log.Debug("intent classification returned: duration_ms=%d text=%s",
		time.Since(start).Milliseconds(), logger.Mask(text))
	return content, nil
}
