package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/well-bot-agent/internal/intent"
	"github.com/well-bot-agent/internal/llm/client"
	"github.com/well-bot-agent/internal/logger"
	"github.com/well-bot-agent/internal/orchestrator"
	"github.com/well-bot-agent/internal/property"
	"github.com/well-bot-agent/internal/safety"
	"github.com/well-bot-agent/internal/store"
	"github.com/well-bot-agent/internal/stt"
	"github.com/well-bot-agent/internal/tools"
	"github.com/well-bot-agent/internal/transport"
	"github.com/well-bot-agent/internal/tts"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to JSON config file")
	envPath := pflag.StringP("env", "e", "", "path to .env file")
	addr := pflag.StringP("addr", "a", "", "listen address override")
	logFile := pflag.StringP("log", "l", "", "log file path override")
	pflag.Parse()

	if *envPath != "" {
		if err := godotenv.Load(*envPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load env file %s: %v\n", *envPath, err)
			os.Exit(1)
		}
	} else {
		_ = godotenv.Load()
	}

	if *configPath != "" {
		if err := property.LoadConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
	} else {
		property.LoadDefaultConfig()
	}
	cfg := property.GetConfig()
	if *addr != "" {
		cfg.ServerAddr = *addr
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}

	log, err := logger.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.DeepSeekAPIKey == "" {
		log.Error("DEEPSEEK_API_KEY is required")
		os.Exit(1)
	}
	if cfg.DeepgramAPIKey == "" {
		log.Warn("DEEPGRAM_API_KEY is not set, speech endpoints will fail upstream")
	}

	llm := client.NewDeepSeekClient(cfg.DeepSeekAPIKey, cfg.DeepSeekBaseURL, cfg.DeepSeekModel, log)
	llm.Temperature = float32(cfg.LLMTemperature)
	llm.MaxTokens = cfg.LLMMaxTokens

	detector := intent.NewDetector(llm, log)
	gate := safety.NewGate(log)
	registry := tools.StubRegistry(log)

	var history orchestrator.HistoryStore
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Error("invalid redis url: err=%v", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn("redis unreachable, conversation history disabled: err=%v", err)
		} else {
			history = store.NewHistoryStore(rdb)
			log.Info("conversation history enabled")
		}
	}

	orch := orchestrator.New(gate, detector, llm, registry, history, log)

	sttCfg := stt.DefaultConfig(cfg.DeepgramAPIKey)
	sttCfg.Model = cfg.STTModel
	sttCfg.Language = cfg.STTLanguage
	sttCfg.SampleRate = cfg.STTSampleRate
	sttClient := stt.NewClient(sttCfg, log)

	ttsCfg := tts.DefaultConfig(cfg.DeepgramAPIKey)
	ttsCfg.Voice = cfg.TTSVoice
	ttsCfg.Format = cfg.TTSFormat
	ttsClient := tts.NewClient(ttsCfg, log)

	grace := time.Duration(cfg.RelayGraceMs) * time.Millisecond
	srv := transport.NewServer(cfg.ServerAddr, orch, ttsClient, sttClient, grace, cfg.AuthKey, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		log.Error("server stopped: err=%v", err)
		os.Exit(1)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed: err=%v", err)
	}
	log.Info("server stopped")
}
