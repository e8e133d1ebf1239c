package stt

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildURL(t *testing.T) {
	c := NewClient(DefaultConfig("key"), nopLogger())

	u, err := url.Parse(c.BuildURL())
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "nova-2", q.Get("model"))
	assert.Equal(t, "en", q.Get("language"))
	assert.Equal(t, "true", q.Get("punctuate"))
	assert.Equal(t, "true", q.Get("interim_results"))
	assert.Equal(t, "true", q.Get("smart_format"))
	assert.Equal(t, "linear16", q.Get("encoding"))
	assert.Equal(t, "44100", q.Get("sample_rate"))
	assert.Equal(t, "1", q.Get("channels"))
}

func TestBuildURLOmitsAudioParamsWithoutEncoding(t *testing.T) {
	cfg := DefaultConfig("key")
	cfg.Encoding = ""
	c := NewClient(cfg, nopLogger())

	u, err := url.Parse(c.BuildURL())
	require.NoError(t, err)

	q := u.Query()
	assert.Empty(t, q.Get("encoding"))
	assert.Empty(t, q.Get("sample_rate"))
	assert.Empty(t, q.Get("channels"))
}

func TestParseTranscriptMessage(t *testing.T) {
	data := []byte(`{
		"is_final": true,
		"channel": {
			"index": 0,
			"alternatives": [{"transcript": "hello there", "confidence": 0.97}]
		}
	}`)

	event, ok := ParseTranscriptMessage(data)
	require.True(t, ok)
	assert.True(t, event.IsFinal)
	assert.Equal(t, "hello there", event.Text)
	require.NotNil(t, event.Confidence)
	assert.Equal(t, 0.97, *event.Confidence)
	require.NotNil(t, event.Channel)
	assert.Equal(t, 0, *event.Channel)
}

func TestParseTranscriptMessageInterim(t *testing.T) {
	data := []byte(`{"is_final": false, "channel": {"alternatives": [{"transcript": "hel"}]}}`)

	event, ok := ParseTranscriptMessage(data)
	require.True(t, ok)
	assert.False(t, event.IsFinal)
	assert.Equal(t, "hel", event.Text)
	assert.Nil(t, event.Confidence)
	assert.Nil(t, event.Channel)
}

func TestParseTranscriptMessageRejectsNonTranscripts(t *testing.T) {
	cases := map[string][]byte{
		"metadata":       []byte(`{"type": "Metadata", "duration": 1.2}`),
		"empty channel":  []byte(`{"is_final": true, "channel": {"alternatives": []}}`),
		"malformed json": []byte(`{not json`),
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := ParseTranscriptMessage(data)
			assert.False(t, ok)
		})
	}
}
