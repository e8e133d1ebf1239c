package client

import (
	"strings"
	"unicode/utf8"

	tiktoken "github.com/pkoukk/tiktoken-go"
	openai "github.com/sashabaranov/go-openai"
)

// Rough per-message overhead for role/metadata tokens.
const messageTokenOverhead = 4

func encodingFor(model string) *tiktoken.Tiktoken {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, _ = tiktoken.GetEncoding("cl100k_base")
	}
	return enc
}

// countTokens estimates the token count of s. Without a usable encoding it
// falls back to a bytes/4 heuristic rather than failing.
func countTokens(model, s string) int {
	enc := encodingFor(model)
	if enc == nil {
		return len(s)/4 + 1
	}
	return len(enc.Encode(s, nil, nil))
}

func countMessageTokens(model string, msg openai.ChatCompletionMessage) int {
	return countTokens(model, msg.Content) + messageTokenOverhead
}

// clipMessages trims messages to fit maxPromptTokens minus a reserve for the
// model's reply. The first system message (if any) is always kept; remaining
// messages are selected newest-first so recent turns survive.
func clipMessages(model string, msgs []openai.ChatCompletionMessage, maxPromptTokens, reserve int) []openai.ChatCompletionMessage {
	if maxPromptTokens <= 0 {
		return msgs
	}
	if reserve < 0 {
		reserve = 0
	}
	budget := maxPromptTokens - reserve
	if budget <= 0 {
		budget = maxPromptTokens
	}

	var system *openai.ChatCompletionMessage
	rest := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for i := range msgs {
		if msgs[i].Role == openai.ChatMessageRoleSystem && system == nil {
			cp := msgs[i]
			system = &cp
			continue
		}
		rest = append(rest, msgs[i])
	}

	total := 0
	if system != nil {
		n := countMessageTokens(model, *system)
		if n > budget {
			// Oversized system prompt: hard-truncate it and send nothing else.
			sys := *system
			sys.Content = truncateByTokens(model, sys.Content, budget-8)
			return []openai.ChatCompletionMessage{sys}
		}
		total += n
	}

	// Walk from the newest message backwards, collecting what fits.
	kept := make([]openai.ChatCompletionMessage, 0, len(rest))
	for i := len(rest) - 1; i >= 0; i-- {
		n := countMessageTokens(model, rest[i])
		if total+n > budget {
			break
		}
		kept = append(kept, rest[i])
		total += n
	}

	// kept is newest-first; rebuild in chronological order.
	out := make([]openai.ChatCompletionMessage, 0, len(kept)+1)
	if system != nil {
		out = append(out, *system)
	}
	for i := len(kept) - 1; i >= 0; i-- {
		out = append(out, kept[i])
	}
	return out
}

// truncateByTokens cuts s to at most maxTokens tokens, falling back to a rune
// cut when the tokenizer is unavailable or decodes to invalid UTF-8.
func truncateByTokens(model, s string, maxTokens int) string {
	if maxTokens <= 0 || len(s) == 0 {
		return ""
	}
	enc := encodingFor(model)
	if enc == nil {
		return cutRunes(s, maxTokens*3/2)
	}
	ids := enc.Encode(s, nil, nil)
	if len(ids) <= maxTokens {
		return s
	}
	out := enc.Decode(ids[:maxTokens])
	if !utf8.ValidString(out) {
		return cutRunes(s, maxTokens*3/2)
	}
	return strings.TrimRight(out, " ") + "…"
}

func cutRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
