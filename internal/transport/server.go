// Package transport exposes the HTTP and WebSocket surface: the chat-turn
// endpoint, the streaming transcription socket, speech synthesis, and health
// probes.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/well-bot-agent/internal/envelope"
	"github.com/well-bot-agent/internal/logger"
	"github.com/well-bot-agent/internal/orchestrator"
	"github.com/well-bot-agent/internal/stt"
)

// Upgrader accepts any origin; the daemon fronts trusted clients only.
var Upgrader = ws.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TurnRunner executes one chat turn and always yields a card. Cancel aborts
// an in-flight turn by trace id; unknown ids are a no-op.
type TurnRunner interface {
	Turn(ctx context.Context, req orchestrator.TurnRequest) envelope.Card
	Cancel(traceID string)
}

// Synthesizer converts text to audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// UpstreamDialer opens the provider transcription socket for one session.
type UpstreamDialer interface {
	Dial(ctx context.Context) (*ws.Conn, error)
}

type Server struct {
	addr       string
	turns      TurnRunner
	synth      Synthesizer
	dialer     UpstreamDialer
	relayGrace time.Duration
	authKey    string
	log        *logger.Logger

	httpSrv *http.Server
}

func NewServer(addr string, turns TurnRunner, synth Synthesizer, dialer UpstreamDialer, relayGrace time.Duration, authKey string, log *logger.Logger) *Server {
	return &Server{
		addr:       addr,
		turns:      turns,
		synth:      synth,
		dialer:     dialer,
		relayGrace: relayGrace,
		authKey:    authKey,
		log:        log,
	}
}

// Handler builds the route table with its middleware chains.
func (s *Server) Handler() http.Handler {
	base := NewChain(RequestLog{Log: s.log}, Recover{Log: s.log})
	authed := NewChain(RequestLog{Log: s.log}, Recover{Log: s.log}, Auth{Key: s.authKey, Log: s.log})

	mux := http.NewServeMux()
	mux.Handle("POST /llm/chat:turn", authed.Then(http.HandlerFunc(s.handleChatTurn)))
	mux.Handle("POST /llm/chat:cancel", authed.Then(http.HandlerFunc(s.handleChatCancel)))
	mux.Handle("GET /speech/stt", base.Then(http.HandlerFunc(s.handleSTT)))
	mux.Handle("POST /speech/tts", authed.Then(http.HandlerFunc(s.handleTTS)))
	mux.Handle("GET /healthz", base.Then(http.HandlerFunc(s.handleHealthz)))
	mux.Handle("GET /readyz", base.Then(http.HandlerFunc(s.handleReadyz)))
	mux.Handle("GET /{$}", base.Then(http.HandlerFunc(s.handleRoot)))
	return mux
}

func (s *Server) ListenAndServe() error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("server listening: addr=%s", s.addr)
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

type chatTurnRequest struct {
	Text           string `json:"text"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	SessionID      string `json:"session_id"`
	TraceID        string `json:"trace_id"`
}

// handleChatTurn validates the request and runs the turn pipeline. Validation
// failures come back as an error card with 422 so clients render one shape
// everywhere.
func (s *Server) handleChatTurn(w http.ResponseWriter, r *http.Request) {
	var req chatTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeCard(w, http.StatusUnprocessableEntity, validationCard("request body must be valid JSON"))
		return
	}
	if req.Text == "" || req.UserID == "" {
		s.writeCard(w, http.StatusUnprocessableEntity, validationCard("text and user_id are required"))
		return
	}

	card := s.turns.Turn(r.Context(), orchestrator.TurnRequest{
		Text:           req.Text,
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		SessionID:      req.SessionID,
		TraceID:        req.TraceID,
	})
	s.writeCard(w, http.StatusOK, card)
}

func validationCard(detail string) envelope.Card {
	return envelope.ErrorCard(
		"Invalid Request",
		detail,
		"VALIDATION_ERROR",
		"llm.chat_turn",
		envelope.Diagnostics{Tool: "llm.chat_turn"},
	)
}

type chatCancelRequest struct {
	TraceID string `json:"trace_id"`
}

func (s *Server) handleChatCancel(w http.ResponseWriter, r *http.Request) {
	var req chatCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TraceID == "" {
		s.writeJSONError(w, http.StatusUnprocessableEntity, "trace_id is required")
		return
	}
	s.turns.Cancel(req.TraceID)
	s.log.Info("turn cancellation requested: trace_id=%s", req.TraceID)
	s.writeStatus(w, map[string]string{"status": "cancelled", "trace_id": req.TraceID})
}

func (s *Server) writeCard(w http.ResponseWriter, status int, card envelope.Card) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(card); err != nil {
		s.log.Error("card encode failed: err=%v", err)
	}
}

// handleSTT upgrades the client connection, dials the provider, and hands
// both sockets to the relay for the rest of the session.
func (s *Server) handleSTT(w http.ResponseWriter, r *http.Request) {
	clientConn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed: remote=%s err=%v", r.RemoteAddr, err)
		return
	}

	dialCtx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	upstreamConn, err := s.dialer.Dial(dialCtx)
	cancel()
	if err != nil {
		s.log.Error("upstream dial failed: remote=%s err=%v", r.RemoteAddr, err)
		_ = clientConn.WriteJSON(map[string]string{
			"type":  "error",
			"error": "transcription service unavailable",
		})
		_ = clientConn.Close()
		return
	}

	s.log.Info("transcription session started: remote=%s", r.RemoteAddr)
	relay := stt.NewRelay(clientConn, upstreamConn, s.relayGrace, s.log)
	if err := relay.Run(); err != nil {
		s.log.Error("relay ended with error: remote=%s err=%v", r.RemoteAddr, err)
	}
}

type ttsRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		s.writeJSONError(w, http.StatusUnprocessableEntity, "text is required")
		return
	}

	audio, err := s.synth.Synthesize(r.Context(), req.Text)
	if err != nil {
		// Provider details stay in the logs.
		s.writeJSONError(w, http.StatusInternalServerError, "speech synthesis failed")
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		s.log.Error("audio write failed: err=%v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, map[string]string{"status": "healthy"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, map[string]string{"status": "ready"})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, map[string]string{"service": "well-bot-agent", "status": "running"})
}

func (s *Server) writeStatus(w http.ResponseWriter, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
