// Package tools maintains the registry of tool handlers invoked for non
// small-talk intents, each wrapped in the timing/error middleware chain.
package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/well-bot-agent/internal/envelope"
	"github.com/well-bot-agent/internal/logger"
)

type entry struct {
	name    string
	handler Handler
}

// Registry maps intent names to wrapped handlers. Registration happens at
// startup; lookups are concurrent-safe afterwards.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]*entry
	chain    Chain
	fallback Handler
	log      *logger.Logger
}

func NewRegistry(log *logger.Logger) *Registry {
	r := &Registry{
		tools: make(map[string]*entry),
		chain: NewChain(Timing{}, ErrorMapping{Log: log}),
		log:   log,
	}
	r.fallback = r.chain.Then(genericStubHandler)
	return r
}

// Register binds a handler to a tool name, wrapping it in the middleware
// chain. Duplicate names are a configuration mistake.
func (r *Registry) Register(name string, h Handler) error {
	if name == "" || h == nil {
		return fmt.Errorf("tool name and handler must not be empty")
	}

	wrapped := r.chain.Then(withToolName(name, h))

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = &entry{name: name, handler: wrapped}
	return nil
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}

// Call executes the named tool. Unknown names get the generic stub so the
// caller always receives a card.
func (r *Registry) Call(ctx context.Context, name string, req envelope.Envelope) envelope.Card {
	r.mu.RLock()
	te, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		r.log.Warn("unknown tool intent, using generic stub: intent=%s trace_id=%s", name, req.TraceID)
		card, _ := r.fallback(ctx, req)
		return card
	}

	card, _ := te.handler(ctx, req)
	return card
}

// withToolName guarantees diagnostics.tool is set before middleware runs.
func withToolName(name string, next Handler) Handler {
	return func(ctx context.Context, req envelope.Envelope) (envelope.Card, error) {
		card, err := next(ctx, req)
		card.Diagnostics.Tool = name
		return card, err
	}
}
