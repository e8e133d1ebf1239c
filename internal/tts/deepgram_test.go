package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/well-bot-agent/internal/logger"
)

func TestSynthesizeSuccess(t *testing.T) {
	audio := []byte("fake-mp3-bytes")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Token test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "audio/mp3", r.Header.Get("Accept"))
		assert.Equal(t, "aura-asteria-en", r.URL.Query().Get("model"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello world", body["text"])

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(audio)
	}))
	defer srv.Close()

	cfg := DefaultConfig("test-key")
	cfg.BaseURL = srv.URL
	c := NewClient(cfg, logger.NewNop())

	got, err := c.Synthesize(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, audio, got)
}

func TestSynthesizeProviderErrorIsOpaque(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"err_code":"INVALID_AUTH","err_msg":"secret internal detail"}`))
	}))
	defer srv.Close()

	cfg := DefaultConfig("test-key")
	cfg.BaseURL = srv.URL
	c := NewClient(cfg, logger.NewNop())

	_, err := c.Synthesize(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.NotContains(t, err.Error(), "secret internal detail")
}

func TestNewClientFillsDefaults(t *testing.T) {
	c := NewClient(Config{APIKey: "k"}, logger.NewNop())
	assert.Equal(t, "aura-asteria-en", c.cfg.Voice)
	assert.Equal(t, "mp3", c.cfg.Format)
	assert.NotEmpty(t, c.cfg.BaseURL)
}
