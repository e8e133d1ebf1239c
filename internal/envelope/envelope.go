// Package envelope defines the request/response contract shared by every
// component: the Envelope request wrapper and the Card response union.
package envelope

import "time"

type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

type CardType string

const (
	TypeCard           CardType = "card"
	TypeOverlayControl CardType = "overlay_control"
	TypeErrorCard      CardType = "error_card"
)

// Envelope wraps one inbound call. Immutable once constructed.
type Envelope struct {
	TraceID        string         `json:"trace_id"`
	UserID         string         `json:"user_id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	SessionID      string         `json:"session_id,omitempty"`
	Args           map[string]any `json:"args"`
	TsUTC          string         `json:"ts_utc"`
}

// NewEnvelope stamps the envelope with the current UTC time.
func NewEnvelope(traceID, userID, conversationID, sessionID string, args map[string]any) Envelope {
	if args == nil {
		args = map[string]any{}
	}
	return Envelope{
		TraceID:        traceID,
		UserID:         userID,
		ConversationID: conversationID,
		SessionID:      sessionID,
		Args:           args,
		TsUTC:          time.Now().UTC().Format(time.RFC3339),
	}
}

type Diagnostics struct {
	Tool            string `json:"tool"`
	DurationMs      int    `json:"duration_ms"`
	MemoryUsed      *bool  `json:"memory_used,omitempty"`
	MemoryLatencyMs *int   `json:"memory_latency_ms,omitempty"`
}

type PersistedIDs struct {
	PrimaryID string   `json:"primary_id,omitempty"`
	Extra     []string `json:"extra,omitempty"`
}

// Card is the uniform response shape. Invariant, enforced by the constructors
// below: ErrorCode is non-empty iff Status is "error" iff Type is "error_card".
type Card struct {
	Status       Status         `json:"status"`
	Type         CardType       `json:"type"`
	Title        string         `json:"title"`
	Body         string         `json:"body"`
	Meta         map[string]any `json:"meta"`
	PersistedIDs PersistedIDs   `json:"persisted_ids"`
	Diagnostics  Diagnostics    `json:"diagnostics"`
	ErrorCode    string         `json:"error_code,omitempty"`
}

// OkCard builds a successful card response.
func OkCard(title, body string, meta map[string]any, diag Diagnostics) Card {
	if meta == nil {
		meta = map[string]any{}
	}
	return Card{
		Status:      StatusOK,
		Type:        TypeCard,
		Title:       title,
		Body:        body,
		Meta:        meta,
		Diagnostics: diag,
	}
}

// ErrorCard builds an error card. The meta carries the tool and error code so
// clients can render without inspecting diagnostics.
func ErrorCard(title, body, errorCode, tool string, diag Diagnostics) Card {
	if diag.Tool == "" {
		diag.Tool = tool
	}
	return Card{
		Status:      StatusError,
		Type:        TypeErrorCard,
		Title:       title,
		Body:        body,
		Meta:        map[string]any{"tool": tool, "error_code": errorCode},
		Diagnostics: diag,
		ErrorCode:   errorCode,
	}
}

// OverlayControl builds an overlay-control response (status ok).
func OverlayControl(title, body string, meta map[string]any, diag Diagnostics) Card {
	if meta == nil {
		meta = map[string]any{}
	}
	return Card{
		Status:      StatusOK,
		Type:        TypeOverlayControl,
		Title:       title,
		Body:        body,
		Meta:        meta,
		Diagnostics: diag,
	}
}
