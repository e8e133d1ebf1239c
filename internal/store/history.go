// Package store keeps per-conversation message history in Redis so small-talk
// completions get recent context. The orchestrator treats every store error
// as non-fatal.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	historyTTL    = 24 * time.Hour
	maxMessages   = 10
	historyPrefix = "conversation:"
)

// Message is one stored turn half.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type HistoryStore struct {
	rdb *redis.Client
}

func NewHistoryStore(rdb *redis.Client) *HistoryStore {
	return &HistoryStore{rdb: rdb}
}

func historyKey(conversationID string) string {
	return historyPrefix + conversationID
}

// LoadHistory returns the stored messages for a conversation, oldest first.
// A missing key is an empty history, not an error.
func (s *HistoryStore) LoadHistory(ctx context.Context, conversationID string) ([]Message, error) {
	data, err := s.rdb.Get(ctx, historyKey(conversationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	var history []Message
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	return history, nil
}

// SaveHistory overwrites the conversation history, keeping only the newest
// entries, and refreshes the TTL.
func (s *HistoryStore) SaveHistory(ctx context.Context, conversationID string, history []Message) error {
	history = capHistory(history)

	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := s.rdb.Set(ctx, historyKey(conversationID), data, historyTTL).Err(); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// AppendExchange records one user/assistant pair.
func (s *HistoryStore) AppendExchange(ctx context.Context, conversationID, userMsg, assistantMsg string) error {
	history, err := s.LoadHistory(ctx, conversationID)
	if err != nil {
		return err
	}
	history = append(history,
		Message{Role: "user", Content: userMsg},
		Message{Role: "assistant", Content: assistantMsg},
	)
	return s.SaveHistory(ctx, conversationID, history)
}

func capHistory(history []Message) []Message {
	if len(history) > maxMessages {
		return history[len(history)-maxMessages:]
	}
	return history
}
