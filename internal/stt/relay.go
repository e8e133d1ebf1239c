package stt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/well-bot-agent/internal/logger"
)

// State tracks the relay lifecycle for logging and tests.
type State int32

const (
	StateConnecting State = iota
	StateStreaming
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// DefaultGraceDelay gives the provider time to flush final results after a
// close signal before the upstream socket is torn down.
const DefaultGraceDelay = 500 * time.Millisecond

// TranscriptMessage is the client-bound wire shape for one event.
type TranscriptMessage struct {
	Type       string   `json:"type"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
	Channel    *int     `json:"channel,omitempty"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Sender serializes writes to one WebSocket connection.
type Sender struct {
	conn *ws.Conn
	mu   sync.Mutex
}

func NewSender(conn *ws.Conn) *Sender {
	return &Sender{conn: conn}
}

func (s *Sender) SendJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Relay bridges one client connection to one upstream transcription socket
// for the lifetime of a session. Both directions run concurrently; the relay
// completes when both finish, and both sockets are closed on every
// termination path.
type Relay struct {
	id       string
	client   *ws.Conn
	upstream *ws.Conn
	sender   *Sender
	grace    time.Duration
	log      *logger.Logger

	state     atomic.Int32
	closeOnce sync.Once
}

func NewRelay(client, upstream *ws.Conn, grace time.Duration, log *logger.Logger) *Relay {
	if grace <= 0 {
		grace = DefaultGraceDelay
	}
	r := &Relay{
		id:       uuid.NewString(),
		client:   client,
		upstream: upstream,
		sender:   NewSender(client),
		grace:    grace,
		log:      log,
	}
	r.state.Store(int32(StateConnecting))
	return r
}

func (r *Relay) State() State { return State(r.state.Load()) }

func (r *Relay) setState(s State) {
	r.state.Store(int32(s))
	r.log.Debug("relay state: session=%s state=%s", r.id, s)
}

// Run drives both directions to completion, then releases both sockets.
func (r *Relay) Run() error {
	r.setState(StateStreaming)
	r.log.Info("relay streaming: session=%s", r.id)

	var g errgroup.Group
	g.Go(func() error { return r.guardTask("client_to_upstream", r.clientToUpstream) })
	g.Go(func() error { return r.guardTask("upstream_to_client", r.upstreamToClient) })
	err := g.Wait()

	r.setState(StateClosed)
	_ = r.upstream.Close()
	_ = r.client.Close()
	r.log.Info("relay finished: session=%s", r.id)
	return err
}

// guardTask keeps task faults inside the session: errors and panics are
// logged, reported to the client while it is still writable, and never
// escalated.
func (r *Relay) guardTask(name string, task func() error) error {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("relay task panicked: session=%s task=%s panic=%v", r.id, name, p)
			r.sendError(fmt.Sprintf("%v", p))
			r.closeUpstream()
		}
	}()
	if err := task(); err != nil {
		r.log.Error("relay task failed: session=%s task=%s err=%v", r.id, name, err)
		r.sendError(err.Error())
		r.closeUpstream()
	}
	return nil
}

// clientToUpstream forwards binary audio frames verbatim and interprets text
// frames as control messages. Client disconnects and stop tokens both run the
// close-upstream sequence.
func (r *Relay) clientToUpstream() error {
	for {
		msgType, data, err := r.client.ReadMessage()
		if err != nil {
			// Abrupt disconnect is a normal terminal state.
			r.log.Info("client disconnected, closing upstream: session=%s", r.id)
			r.closeUpstream()
			return nil
		}

		switch msgType {
		case ws.BinaryMessage:
			if err := r.upstream.WriteMessage(ws.BinaryMessage, data); err != nil {
				return fmt.Errorf("forward audio chunk: %w", err)
			}
		case ws.TextMessage:
			text := string(data)
			if isStopToken(text) {
				r.log.Info("client requested stop, closing upstream: session=%s", r.id)
				r.closeUpstream()
				return nil
			}
			r.log.Debug("ignoring client text frame: session=%s length=%d", r.id, len(text))
		}
	}
}

// upstreamToClient forwards normalized transcript events in arrival order.
// A final event does not end the session; streaming continues until the
// upstream socket closes after the shutdown handshake.
func (r *Relay) upstreamToClient() error {
	for {
		_, data, err := r.upstream.ReadMessage()
		if err != nil {
			if !wsClosedNormally(err) && r.State() != StateClosing {
				r.log.Warn("upstream read ended: session=%s err=%v", r.id, err)
			}
			return nil
		}

		event, ok := ParseTranscriptMessage(data)
		if !ok {
			r.log.Debug("skipping unparseable upstream message: session=%s length=%d", r.id, len(data))
			continue
		}

		msg := TranscriptMessage{
			Type:       "partial",
			Text:       event.Text,
			Confidence: event.Confidence,
			Channel:    event.Channel,
		}
		if event.IsFinal {
			msg.Type = "final"
		}

		if err := r.sender.SendJSON(msg); err != nil {
			// Client is gone; the other task will notice on its next read.
			return nil
		}
	}
}

// closeUpstream sends the end-of-stream signal, waits the grace delay so the
// provider can flush final results, then closes the upstream socket to
// unblock the reader task. Runs at most once.
func (r *Relay) closeUpstream() {
	r.closeOnce.Do(func() {
		r.setState(StateClosing)
		if err := r.upstream.WriteMessage(ws.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
			r.log.Debug("close-stream signal failed: session=%s err=%v", r.id, err)
		}
		time.Sleep(r.grace)
		_ = r.upstream.Close()
	})
}

func (r *Relay) sendError(msg string) {
	if err := r.sender.SendJSON(errorMessage{Type: "error", Error: msg}); err != nil {
		r.log.Debug("terminal error frame not delivered: session=%s", r.id)
	}
}

// isStopToken recognizes the "stop" control word or a CloseStream JSON
// payload.
func isStopToken(text string) bool {
	if strings.EqualFold(strings.TrimSpace(text), "stop") {
		return true
	}
	var control struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(text), &control); err != nil {
		return false
	}
	return control.Type == "CloseStream"
}

func wsClosedNormally(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure,
		ws.CloseNoStatusReceived,
	)
}
