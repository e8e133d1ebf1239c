package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/well-bot-agent/internal/envelope"
	"github.com/well-bot-agent/internal/logger"
	"github.com/well-bot-agent/internal/orchestrator"
)

type fakeTurns struct {
	card      envelope.Card
	got       orchestrator.TurnRequest
	cancelled []string
}

func (f *fakeTurns) Turn(ctx context.Context, req orchestrator.TurnRequest) envelope.Card {
	f.got = req
	return f.card
}

func (f *fakeTurns) Cancel(traceID string) {
	f.cancelled = append(f.cancelled, traceID)
}

type fakeSynth struct {
	audio []byte
	err   error
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return f.audio, f.err
}

type fakeDialer struct {
	err error
}

func (f *fakeDialer) Dial(ctx context.Context) (*ws.Conn, error) {
	return nil, f.err
}

func newTestServer(turns TurnRunner, synth Synthesizer, dialer UpstreamDialer, authKey string) *httptest.Server {
	s := NewServer("127.0.0.1:0", turns, synth, dialer, 20*time.Millisecond, authKey, logger.NewNop())
	return httptest.NewServer(s.Handler())
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeCard(t *testing.T, resp *http.Response) envelope.Card {
	t.Helper()
	defer resp.Body.Close()
	var card envelope.Card
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&card))
	return card
}

func TestChatTurnSuccess(t *testing.T) {
	turns := &fakeTurns{card: envelope.OkCard("Chat Response", "hi there",
		map[string]any{"kind": "info"}, envelope.Diagnostics{Tool: "llm.chat_turn"})}
	srv := newTestServer(turns, &fakeSynth{}, &fakeDialer{}, "")
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/llm/chat:turn", map[string]string{
		"text": "hello", "user_id": "u1", "conversation_id": "c1", "trace_id": "t1",
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	card := decodeCard(t, resp)
	assert.Equal(t, envelope.StatusOK, card.Status)
	assert.Equal(t, "hi there", card.Body)

	assert.Equal(t, "hello", turns.got.Text)
	assert.Equal(t, "u1", turns.got.UserID)
	assert.Equal(t, "c1", turns.got.ConversationID)
	assert.Equal(t, "t1", turns.got.TraceID)
}

func TestChatTurnRejectsBadJSON(t *testing.T) {
	srv := newTestServer(&fakeTurns{}, &fakeSynth{}, &fakeDialer{}, "")
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/llm/chat:turn", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	card := decodeCard(t, resp)
	assert.Equal(t, envelope.StatusError, card.Status)
	assert.Equal(t, "VALIDATION_ERROR", card.ErrorCode)
}

func TestChatTurnRejectsMissingFields(t *testing.T) {
	srv := newTestServer(&fakeTurns{}, &fakeSynth{}, &fakeDialer{}, "")
	defer srv.Close()

	cases := []map[string]string{
		{"user_id": "u1"},
		{"text": "hello"},
		{},
	}
	for _, body := range cases {
		resp := postJSON(t, srv.URL+"/llm/chat:turn", body)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		card := decodeCard(t, resp)
		assert.Equal(t, "VALIDATION_ERROR", card.ErrorCode)
	}
}

func TestChatTurnAuth(t *testing.T) {
	turns := &fakeTurns{card: envelope.OkCard("Chat Response", "ok", nil, envelope.Diagnostics{})}
	srv := newTestServer(turns, &fakeSynth{}, &fakeDialer{}, "secret-key")
	defer srv.Close()

	body := []byte(`{"text":"hello","user_id":"u1"}`)

	resp, err := http.Post(srv.URL+"/llm/chat:turn", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/llm/chat:turn", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret-key")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTTSSuccess(t *testing.T) {
	srv := newTestServer(&fakeTurns{}, &fakeSynth{audio: []byte("mp3!")}, &fakeDialer{}, "")
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/speech/tts", map[string]string{"text": "say this"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
}

func TestTTSFailureHidesProviderDetail(t *testing.T) {
	srv := newTestServer(&fakeTurns{}, &fakeSynth{err: errors.New("provider says: bad key xyz")}, &fakeDialer{}, "")
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/speech/tts", map[string]string{"text": "say this"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "speech synthesis failed", body["error"])
	assert.NotContains(t, body["error"], "bad key")
}

func TestTTSRequiresText(t *testing.T) {
	srv := newTestServer(&fakeTurns{}, &fakeSynth{}, &fakeDialer{}, "")
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/speech/tts", map[string]string{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestChatCancelRoutesToRunner(t *testing.T) {
	turns := &fakeTurns{}
	srv := newTestServer(turns, &fakeSynth{}, &fakeDialer{}, "")
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/llm/chat:cancel", map[string]string{"trace_id": "t-42"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "cancelled", body["status"])
	assert.Equal(t, []string{"t-42"}, turns.cancelled)
}

func TestChatCancelRequiresTraceID(t *testing.T) {
	turns := &fakeTurns{}
	srv := newTestServer(turns, &fakeSynth{}, &fakeDialer{}, "")
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/llm/chat:cancel", map[string]string{})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Empty(t, turns.cancelled)
}

func TestSTTUpstreamDialFailure(t *testing.T) {
	srv := newTestServer(&fakeTurns{}, &fakeSynth{}, &fakeDialer{err: errors.New("no route")}, "")
	defer srv.Close()

	conn, _, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/speech/stt", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]string
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "transcription service unavailable", msg["error"])
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(&fakeTurns{}, &fakeSynth{}, &fakeDialer{}, "")
	defer srv.Close()

	for path, want := range map[string]string{
		"/healthz": "healthy",
		"/readyz":  "ready",
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()
		assert.Equal(t, want, body["status"], path)
	}

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, "well-bot-agent", body["service"])
}

// The logged writer must stay hijackable or WebSocket upgrades on logged
// routes fail the handshake.
func TestRequestLogKeepsWriterHijackable(t *testing.T) {
	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	chain := NewChain(RequestLog{Log: logger.NewNop()}, Recover{Log: logger.NewNop()})
	srv := httptest.NewServer(chain.Then(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.WriteMessage(mt, data)
	})))
	defer srv.Close()

	conn, _, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte("ping")))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "ping", string(data))
}

func TestRecoverMiddleware(t *testing.T) {
	log := logger.NewNop()
	chain := NewChain(Recover{Log: log})
	h := chain.Then(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
