package tools

import (
	"context"

	"github.com/well-bot-agent/internal/envelope"
	"github.com/well-bot-agent/internal/logger"
)

// stubCard fixes the response for one tool intent. Bodies carry a "(stub)"
// marker: these are pre-implementation placeholders, to be replaced by real
// tool execution.
type stubCard struct {
	title string
	body  string
	kind  string
}

var stubCards = map[string]stubCard{
	"journal.start":   {"Journal Session", "Opening your journal overlay... (stub)", "journal"},
	"gratitude.add":   {"Gratitude Added", "I've noted your gratitude entry. (stub)", "gratitude"},
	"todo.add":        {"To-Do Added", "Added to your to-do list. (stub)", "todo"},
	"todo.list":       {"Your To-Dos", "Here are your open tasks... (stub)", "todo"},
	"todo.complete":   {"To-Do Completed", "Marked as completed. (stub)", "todo"},
	"todo.delete":     {"To-Do Deleted", "Removed from your list. (stub)", "todo"},
	"quote.get":       {"Spiritual Quote", "Here's a quote for reflection... (stub)", "quote"},
	"meditation.play": {"Meditation Starting", "Preparing your meditation... (stub)", "meditation"},
	"session.end":     {"Session Ending", "Take care, talk soon! (stub)", "info"},
}

var genericStub = stubCard{"Action Completed", "Your request has been processed. (stub)", "info"}

func (s stubCard) toCard() envelope.Card {
	return envelope.OkCard(s.title, s.body, map[string]any{"kind": s.kind}, envelope.Diagnostics{})
}

func genericStubHandler(ctx context.Context, req envelope.Envelope) (envelope.Card, error) {
	return genericStub.toCard(), nil
}

// StubRegistry builds a registry with the fixed stub handler per tool intent.
func StubRegistry(log *logger.Logger) *Registry {
	r := NewRegistry(log)
	for name, card := range stubCards {
		sc := card
		// Register never fails here: names are unique literals.
		_ = r.Register(name, func(ctx context.Context, req envelope.Envelope) (envelope.Card, error) {
			return sc.toCard(), nil
		})
	}
	return r
}
