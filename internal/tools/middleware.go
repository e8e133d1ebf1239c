package tools

import (
	"context"
	"time"

	"github.com/well-bot-agent/internal/envelope"
	"github.com/well-bot-agent/internal/logger"
)

// Handler executes one tool call against a request envelope.
type Handler func(ctx context.Context, req envelope.Envelope) (envelope.Card, error)

// Middleware is one interceptor in the tool pipeline.
type Middleware interface {
	Wrap(next Handler) Handler
}

// Chain applies middlewares in declaration order: the first entry sees the
// request first and the response last.
type Chain struct {
	stack []Middleware
}

func NewChain(stack ...Middleware) Chain {
	return Chain{stack: stack}
}

func (c Chain) Then(h Handler) Handler {
	for i := len(c.stack) - 1; i >= 0; i-- {
		h = c.stack[i].Wrap(h)
	}
	return h
}

// Timing stamps diagnostics.duration_ms with the handler's wall-clock time.
type Timing struct{}

func (Timing) Wrap(next Handler) Handler {
	return func(ctx context.Context, req envelope.Envelope) (envelope.Card, error) {
		start := time.Now()
		card, err := next(ctx, req)
		card.Diagnostics.DurationMs = int(time.Since(start).Milliseconds())
		return card, err
	}
}

// ErrorMapping converts handler errors into a generic error card so callers
// always receive a well-formed response.
type ErrorMapping struct {
	Log *logger.Logger
}

func (m ErrorMapping) Wrap(next Handler) Handler {
	return func(ctx context.Context, req envelope.Envelope) (envelope.Card, error) {
		card, err := next(ctx, req)
		if err != nil {
			m.Log.Error("tool handler failed: trace_id=%s err=%v", req.TraceID, err)
			return envelope.ErrorCard(
				"Action Failed",
				"An unexpected error occurred. Please try again.",
				"UNEXPECTED",
				card.Diagnostics.Tool,
				card.Diagnostics,
			), nil
		}
		return card, nil
	}
}
