// Package tts wraps Deepgram's speech synthesis endpoint.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/well-bot-agent/internal/logger"
)

const speakURL = "https://api.deepgram.com/v1/speak"

type Config struct {
	APIKey  string
	BaseURL string // defaults to the Deepgram speak endpoint
	Voice   string
	Format  string
}

func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:  apiKey,
		BaseURL: speakURL,
		Voice:   "aura-asteria-en",
		Format:  "mp3",
	}
}

type Client struct {
	cfg   Config
	httpc *http.Client
	log   *logger.Logger
}

func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = speakURL
	}
	if cfg.Voice == "" {
		cfg.Voice = "aura-asteria-en"
	}
	if cfg.Format == "" {
		cfg.Format = "mp3"
	}
	return &Client{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 30 * time.Second},
		log:   log,
	}
}

// Synthesize converts text to audio bytes. Provider error bodies are logged,
// never returned to the caller.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	start := time.Now()

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("encode synthesis request: %w", err)
	}

	endpoint := c.cfg.BaseURL + "?model=" + url.QueryEscape(c.cfg.Voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/"+c.cfg.Format)

	c.log.Info("synthesizing speech: text_length=%d voice=%s format=%s", len(text), c.cfg.Voice, c.cfg.Format)

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.log.Error("synthesis request failed: err=%v", err)
		return nil, fmt.Errorf("synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.log.Error("synthesis failed: status=%d detail=%s", resp.StatusCode, string(detail))
		return nil, fmt.Errorf("synthesis failed with status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read synthesis response: %w", err)
	}

	c.log.Info("synthesis successful: audio_size=%d duration_ms=%d", len(audio), time.Since(start).Milliseconds())
	return audio, nil
}
