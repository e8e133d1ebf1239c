// Package property holds the daemon configuration: defaults, an optional JSON
// file, and environment overrides, applied in that order.
package property

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

const (
	DefaultServerAddr     = "127.0.0.1:8787"
	DefaultLogFile        = ""
	DefaultLogLevel       = "info"
	DefaultDeepSeekURL    = "https://api.deepseek.com/v1"
	DefaultDeepSeekModel  = "deepseek-chat"
	DefaultLLMTemperature = 0.3
	DefaultLLMMaxTokens   = 250
	DefaultSTTModel       = "nova-2"
	DefaultSTTLanguage    = "en"
	DefaultSTTSampleRate  = 44100
	DefaultTTSVoice       = "aura-asteria-en"
	DefaultTTSFormat      = "mp3"
	DefaultRelayGraceMs   = 500
)

type Config struct {
	ServerAddr string `json:"server_addr"`
	LogFile    string `json:"log_file"`
	LogLevel   string `json:"log_level"`

	DeepSeekAPIKey  string  `json:"deepseek_api_key"`
	DeepSeekBaseURL string  `json:"deepseek_base_url"`
	DeepSeekModel   string  `json:"deepseek_model"`
	LLMTemperature  float64 `json:"llm_temperature"`
	LLMMaxTokens    int     `json:"llm_max_tokens"`

	DeepgramAPIKey string `json:"deepgram_api_key"`
	STTModel       string `json:"stt_model"`
	STTLanguage    string `json:"stt_language"`
	STTSampleRate  int    `json:"stt_sample_rate"`
	TTSVoice       string `json:"tts_voice"`
	TTSFormat      string `json:"tts_format"`
	RelayGraceMs   int    `json:"relay_grace_ms"`

	RedisURL string `json:"redis_url"`
	AuthKey  string `json:"auth_key"`
}

var currentConfig *Config

func defaultConfig() *Config {
	return &Config{
		ServerAddr:      DefaultServerAddr,
		LogFile:         DefaultLogFile,
		LogLevel:        DefaultLogLevel,
		DeepSeekBaseURL: DefaultDeepSeekURL,
		DeepSeekModel:   DefaultDeepSeekModel,
		LLMTemperature:  DefaultLLMTemperature,
		LLMMaxTokens:    DefaultLLMMaxTokens,
		STTModel:        DefaultSTTModel,
		STTLanguage:     DefaultSTTLanguage,
		STTSampleRate:   DefaultSTTSampleRate,
		TTSVoice:        DefaultTTSVoice,
		TTSFormat:       DefaultTTSFormat,
		RelayGraceMs:    DefaultRelayGraceMs,
	}
}

func LoadDefaultConfig() {
	cfg := defaultConfig()
	applyEnv(cfg)
	currentConfig = cfg
}

func GetConfig() *Config {
	if currentConfig == nil {
		LoadDefaultConfig()
	}
	return currentConfig
}

// LoadConfig reads a JSON config file. Missing fields keep their defaults and
// environment variables win over both.
func LoadConfig(filePath string) error {
	jsonFile, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer jsonFile.Close()

	cfg := defaultConfig()
	decoder := json.NewDecoder(jsonFile)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}
	fillDefaults(cfg)
	applyEnv(cfg)
	currentConfig = cfg
	return nil
}

func fillDefaults(cfg *Config) {
	if cfg.ServerAddr == "" {
		cfg.ServerAddr = DefaultServerAddr
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.DeepSeekBaseURL == "" {
		cfg.DeepSeekBaseURL = DefaultDeepSeekURL
	}
	if cfg.DeepSeekModel == "" {
		cfg.DeepSeekModel = DefaultDeepSeekModel
	}
	if cfg.LLMTemperature <= 0 {
		cfg.LLMTemperature = DefaultLLMTemperature
	}
	if cfg.LLMMaxTokens <= 0 {
		cfg.LLMMaxTokens = DefaultLLMMaxTokens
	}
	if cfg.STTModel == "" {
		cfg.STTModel = DefaultSTTModel
	}
	if cfg.STTLanguage == "" {
		cfg.STTLanguage = DefaultSTTLanguage
	}
	if cfg.STTSampleRate <= 0 {
		cfg.STTSampleRate = DefaultSTTSampleRate
	}
	if cfg.TTSVoice == "" {
		cfg.TTSVoice = DefaultTTSVoice
	}
	if cfg.TTSFormat == "" {
		cfg.TTSFormat = DefaultTTSFormat
	}
	if cfg.RelayGraceMs <= 0 {
		cfg.RelayGraceMs = DefaultRelayGraceMs
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.ServerAddr, "SERVER_ADDR")
	setString(&cfg.LogFile, "WB_LOG_FILE")
	setString(&cfg.LogLevel, "WB_LOG_LEVEL")
	setString(&cfg.DeepSeekAPIKey, "DEEPSEEK_API_KEY")
	setString(&cfg.DeepSeekBaseURL, "DEEPSEEK_BASE_URL")
	setString(&cfg.DeepSeekModel, "DEEPSEEK_MODEL")
	setFloat(&cfg.LLMTemperature, "WB_LLM_TEMPERATURE")
	setInt(&cfg.LLMMaxTokens, "WB_LLM_MAX_TOKENS")
	setString(&cfg.DeepgramAPIKey, "DEEPGRAM_API_KEY")
	setString(&cfg.STTModel, "DEEPGRAM_STT_MODEL")
	setString(&cfg.STTLanguage, "DEEPGRAM_LANGUAGE")
	setInt(&cfg.STTSampleRate, "DEEPGRAM_SAMPLE_RATE")
	setString(&cfg.TTSVoice, "DEEPGRAM_TTS_VOICE")
	setString(&cfg.TTSFormat, "DEEPGRAM_TTS_FORMAT")
	setInt(&cfg.RelayGraceMs, "WB_RELAY_GRACE_MS")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.AuthKey, "WB_AUTH_KEY")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
