// Package stt bridges a client audio WebSocket to Deepgram's streaming
// transcription socket and normalizes its events for the wire.
package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	ws "github.com/gorilla/websocket"

	"github.com/well-bot-agent/internal/logger"
)

const listenURL = "wss://api.deepgram.com/v1/listen"

// Config carries the upstream connection parameters. Audio format fields
// describe the raw PCM16 frames clients send (no RIFF header).
type Config struct {
	APIKey         string
	BaseURL        string // defaults to the Deepgram listen endpoint
	Model          string
	Language       string
	Punctuate      bool
	InterimResults bool
	SmartFormat    bool
	Encoding       string
	SampleRate     int
	Channels       int
}

// DefaultConfig matches the client-side capture format: PCM16 mono 44.1 kHz.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:         apiKey,
		BaseURL:        listenURL,
		Model:          "nova-2",
		Language:       "en",
		Punctuate:      true,
		InterimResults: true,
		SmartFormat:    true,
		Encoding:       "linear16",
		SampleRate:     44100,
		Channels:       1,
	}
}

type Client struct {
	cfg Config
	log *logger.Logger
}

func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = listenURL
	}
	return &Client{cfg: cfg, log: log}
}

// BuildURL renders the listen endpoint with query parameters.
func (c *Client) BuildURL() string {
	params := url.Values{}
	params.Set("model", c.cfg.Model)
	params.Set("language", c.cfg.Language)
	params.Set("punctuate", strconv.FormatBool(c.cfg.Punctuate))
	params.Set("interim_results", strconv.FormatBool(c.cfg.InterimResults))
	params.Set("smart_format", strconv.FormatBool(c.cfg.SmartFormat))
	if c.cfg.Encoding != "" {
		params.Set("encoding", c.cfg.Encoding)
		params.Set("sample_rate", strconv.Itoa(c.cfg.SampleRate))
		params.Set("channels", strconv.Itoa(c.cfg.Channels))
	}
	return c.cfg.BaseURL + "?" + params.Encode()
}

// Dial opens the upstream transcription socket.
func (c *Client) Dial(ctx context.Context) (*ws.Conn, error) {
	header := http.Header{}
	if c.cfg.APIKey != "" {
		header.Set("Authorization", "Token "+c.cfg.APIKey)
	}
	wsURL := c.BuildURL()
	c.log.Debug("dialing upstream transcription socket: url=%s", c.cfg.BaseURL)

	conn, _, err := ws.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// TranscriptEvent is the normalized unit of streaming output.
type TranscriptEvent struct {
	IsFinal    bool
	Text       string
	Channel    *int
	Confidence *float64
}

// ParseTranscriptMessage normalizes a provider message. Messages without a
// channel/alternatives payload (metadata, speech-started, malformed JSON)
// yield false.
func ParseTranscriptMessage(data []byte) (*TranscriptEvent, bool) {
	var payload struct {
		IsFinal bool `json:"is_final"`
		Channel struct {
			Index        *int `json:"index"`
			Alternatives []struct {
				Transcript string   `json:"transcript"`
				Confidence *float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channel"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, false
	}
	if len(payload.Channel.Alternatives) == 0 {
		return nil, false
	}

	alt := payload.Channel.Alternatives[0]
	return &TranscriptEvent{
		IsFinal:    payload.IsFinal,
		Text:       alt.Transcript,
		Channel:    payload.Channel.Index,
		Confidence: alt.Confidence,
	}, true
}
