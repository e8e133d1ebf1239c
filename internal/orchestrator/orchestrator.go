// Package orchestrator sequences one chat turn: safety gate first, then
// intent detection, then either an LLM small-talk completion or a tool card.
// Turn never lets an error or panic cross its boundary; every path returns a
// well-formed card.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/well-bot-agent/internal/envelope"
	"github.com/well-bot-agent/internal/guard"
	"github.com/well-bot-agent/internal/intent"
	"github.com/well-bot-agent/internal/llm/client"
	"github.com/well-bot-agent/internal/logger"
	"github.com/well-bot-agent/internal/store"
)

const (
	toolName = "llm.chat_turn"

	// Safety must answer within this budget or the turn proceeds without it.
	safetyTimeout = 50 * time.Millisecond

	// Advisory end-to-end budget. Overruns are logged, not cancelled.
	turnBudget = 5 * time.Second

	systemPrompt = "You are a warm, supportive wellness assistant. Keep responses concise and helpful."
)

// SafetyChecker is the crisis gate capability.
type SafetyChecker interface {
	Check(text, userID, sessionID string) envelope.Card
}

// IntentDetector maps text to an intent result and never fails outward.
type IntentDetector interface {
	Detect(ctx context.Context, text string) intent.Result
}

// CompletionClient is the slice of the LLM client the turn pipeline needs.
type CompletionClient interface {
	ChatCompletion(ctx context.Context, messages []openai.ChatCompletionMessage, opts *client.ChatOptions) (string, error)
}

// ToolRunner executes tool intents and always returns a card.
type ToolRunner interface {
	Call(ctx context.Context, name string, req envelope.Envelope) envelope.Card
}

// HistoryStore supplies small-talk context. May be absent.
type HistoryStore interface {
	LoadHistory(ctx context.Context, conversationID string) ([]store.Message, error)
	AppendExchange(ctx context.Context, conversationID, userMsg, assistantMsg string) error
}

// TurnRequest is the validated chat-turn input.
type TurnRequest struct {
	Text           string
	UserID         string
	ConversationID string
	SessionID      string
	TraceID        string
}

type Orchestrator struct {
	safety   SafetyChecker
	detector IntentDetector
	llm      CompletionClient
	tools    ToolRunner
	history  HistoryStore // nil disables conversation context
	log      *logger.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func New(safety SafetyChecker, detector IntentDetector, llm CompletionClient, tools ToolRunner, history HistoryStore, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		safety:   safety,
		detector: detector,
		llm:      llm,
		tools:    tools,
		history:  history,
		log:      log,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Cancel aborts an in-flight turn by trace id.
func (o *Orchestrator) Cancel(traceID string) {
	o.mu.Lock()
	if c, ok := o.cancels[traceID]; ok {
		c()
		delete(o.cancels, traceID)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) register(traceID string, cancel context.CancelFunc) {
	o.mu.Lock()
	o.cancels[traceID] = cancel
	o.mu.Unlock()
}

// Turn runs the safety → intent → response pipeline and returns the card for
// this exchange.
func (o *Orchestrator) Turn(ctx context.Context, req TurnRequest) (card envelope.Card) {
	start := time.Now()

	traceID := req.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(ctx)
	o.register(traceID, cancel)
	defer o.Cancel(traceID)

	defer func() {
		if r := recover(); r != nil {
			o.log.Error("chat turn panicked: trace_id=%s panic=%v", traceID, r)
			card = envelope.ErrorCard(
				"Processing Error",
				"Something went wrong processing your request. Please try again.",
				"TURN_PROCESSING_FAILED",
				toolName,
				envelope.Diagnostics{},
			)
		}
		elapsed := time.Since(start)
		card.Diagnostics.Tool = toolName
		card.Diagnostics.DurationMs = int(elapsed.Milliseconds())
		if elapsed > turnBudget {
			o.log.Warn("chat turn exceeded budget: trace_id=%s duration_ms=%d", traceID, elapsed.Milliseconds())
		}
	}()

	o.log.Info("processing chat turn: trace_id=%s user_id=%s text_length=%d text=%s",
		traceID, req.UserID, len(req.Text), logger.Mask(req.Text))

	if safetyCard := o.runSafetyCheck(ctx, req); safetyCard != nil {
		o.log.Info("turn completed - safety triggered: trace_id=%s", traceID)
		return *safetyCard
	}

	res := o.detector.Detect(ctx, req.Text)
	// Confidence is logged for observability only; routing trusts the label.
	o.log.Info("intent detected: trace_id=%s intent=%s confidence=%.2f args=%d",
		traceID, res.Intent, res.Confidence, len(res.Args))

	if res.Intent == intent.FallbackIntent {
		return o.smallTalk(ctx, traceID, req)
	}

	env := envelope.NewEnvelope(traceID, req.UserID, req.ConversationID, req.SessionID, argsToAny(res.Args))
	card = o.tools.Call(ctx, res.Intent, env)
	o.log.Info("turn completed - tool intent: trace_id=%s intent=%s", traceID, res.Intent)
	return card
}

// runSafetyCheck gives the gate a hard 50 ms budget. Timeouts and errors fail
// open: the pipeline continues as if nothing was flagged.
func (o *Orchestrator) runSafetyCheck(ctx context.Context, req TurnRequest) *envelope.Card {
	card, ok := guard.Attempt(ctx, safetyTimeout, nil, func(context.Context) (*envelope.Card, error) {
		c := o.safety.Check(req.Text, req.UserID, req.SessionID)
		return &c, nil
	})
	if !ok {
		o.log.Warn("safety check timed out or failed, continuing turn: user_id=%s", req.UserID)
		return nil
	}
	if card != nil && card.Meta["action"] == "show_support_card" {
		return card
	}
	return nil
}

func (o *Orchestrator) smallTalk(ctx context.Context, traceID string, req TurnRequest) envelope.Card {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
	}
	for _, m := range o.loadHistory(ctx, req.ConversationID) {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Text,
	})

	text, err := o.llm.ChatCompletion(ctx, messages, nil)
	if err != nil {
		o.log.Error("completion failed: trace_id=%s err=%v", traceID, err)
		return envelope.ErrorCard(
			"Chat Error",
			"I'm having trouble responding right now. Please try again.",
			"LLM_COMPLETION_FAILED",
			toolName,
			envelope.Diagnostics{},
		)
	}

	o.appendHistory(ctx, req.ConversationID, req.Text, text)
	o.log.Info("turn completed - small talk: trace_id=%s response_length=%d", traceID, len(text))

	return envelope.OkCard("Chat Response", text, map[string]any{"kind": "info"}, envelope.Diagnostics{})
}

func (o *Orchestrator) loadHistory(ctx context.Context, conversationID string) []store.Message {
	if o.history == nil || conversationID == "" {
		return nil
	}
	history, err := o.history.LoadHistory(ctx, conversationID)
	if err != nil {
		o.log.Warn("history load failed, continuing without context: conversation_id=%s err=%v",
			conversationID, err)
		return nil
	}
	return history
}

func (o *Orchestrator) appendHistory(ctx context.Context, conversationID, userMsg, assistantMsg string) {
	if o.history == nil || conversationID == "" {
		return
	}
	if err := o.history.AppendExchange(ctx, conversationID, userMsg, assistantMsg); err != nil {
		o.log.Warn("history append failed: conversation_id=%s err=%v", conversationID, err)
	}
}

func argsToAny(args map[string]string) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
