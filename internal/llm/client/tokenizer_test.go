package client

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	openai "github.com/sashabaranov/go-openai"
)

func msg(role, content string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: role, Content: content}
}

func TestClipMessagesKeepsEverythingUnderBudget(t *testing.T) {
	msgs := []openai.ChatCompletionMessage{
		msg(openai.ChatMessageRoleSystem, "You are helpful."),
		msg(openai.ChatMessageRoleUser, "hi"),
		msg(openai.ChatMessageRoleAssistant, "hello"),
	}

	out := clipMessages(DefaultModel, msgs, 4096, 250)
	assert.Equal(t, msgs, out)
}

func TestClipMessagesKeepsSystemAndNewest(t *testing.T) {
	msgs := []openai.ChatCompletionMessage{
		msg(openai.ChatMessageRoleSystem, "You are helpful."),
	}
	for i := 0; i < 40; i++ {
		msgs = append(msgs, msg(openai.ChatMessageRoleUser, strings.Repeat("words and more words ", 20)))
	}
	last := msg(openai.ChatMessageRoleUser, "the newest message")
	msgs = append(msgs, last)

	out := clipMessages(DefaultModel, msgs, 400, 100)

	require.NotEmpty(t, out)
	assert.Equal(t, openai.ChatMessageRoleSystem, out[0].Role)
	assert.Equal(t, last, out[len(out)-1], "the newest message always survives clipping")
	assert.Less(t, len(out), len(msgs))
}

func TestClipMessagesPreservesChronology(t *testing.T) {
	msgs := []openai.ChatCompletionMessage{
		msg(openai.ChatMessageRoleUser, "first"),
		msg(openai.ChatMessageRoleAssistant, "second"),
		msg(openai.ChatMessageRoleUser, "third"),
	}

	out := clipMessages(DefaultModel, msgs, 4096, 0)
	require.Len(t, out, 3)
	assert.Equal(t, "first", out[0].Content)
	assert.Equal(t, "third", out[2].Content)
}

func TestClipMessagesZeroBudgetIsPassthrough(t *testing.T) {
	msgs := []openai.ChatCompletionMessage{msg(openai.ChatMessageRoleUser, "hi")}
	assert.Equal(t, msgs, clipMessages(DefaultModel, msgs, 0, 0))
}

func TestClipMessagesOversizedSystemTruncated(t *testing.T) {
	msgs := []openai.ChatCompletionMessage{
		msg(openai.ChatMessageRoleSystem, strings.Repeat("policy text ", 200)),
		msg(openai.ChatMessageRoleUser, "hi"),
	}

	out := clipMessages(DefaultModel, msgs, 50, 0)

	require.Len(t, out, 1)
	assert.Equal(t, openai.ChatMessageRoleSystem, out[0].Role)
	assert.Less(t, len(out[0].Content), len(msgs[0].Content))
}

func TestCountTokensNonZero(t *testing.T) {
	assert.Greater(t, countTokens(DefaultModel, "hello world, how are you"), 0)
}

func TestTruncateByTokens(t *testing.T) {
	s := strings.Repeat("some repeated text ", 50)
	out := truncateByTokens(DefaultModel, s, 10)
	assert.Less(t, len(out), len(s))

	assert.Equal(t, "", truncateByTokens(DefaultModel, s, 0))
	assert.Equal(t, "short", truncateByTokens(DefaultModel, "short", 100))
}

func TestCutRunes(t *testing.T) {
	assert.Equal(t, "abc…", cutRunes("abcdef", 3))
	assert.Equal(t, "abc", cutRunes("abc", 5))
	assert.Equal(t, "", cutRunes("abc", 0))
}
