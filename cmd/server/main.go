package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/voice-intake/internal/ai"
	"github.com/suPer8Hu/voice-intake/internal/audit"
	"github.com/suPer8Hu/voice-intake/internal/config"
	"github.com/suPer8Hu/voice-intake/internal/db"
	"github.com/suPer8Hu/voice-intake/internal/httpapi"
	"github.com/suPer8Hu/voice-intake/internal/httpapi/handlers"
	"github.com/suPer8Hu/voice-intake/internal/intake"
	"github.com/suPer8Hu/voice-intake/internal/logging"
	"github.com/suPer8Hu/voice-intake/internal/realtime"
	"github.com/suPer8Hu/voice-intake/internal/speech"
	"github.com/suPer8Hu/voice-intake/internal/store/rabbitmq"
	"github.com/suPer8Hu/voice-intake/internal/store/redisstore"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	// Provider registry, selected by AI_PROVIDER
	reg := ai.NewRegistry()
	reg.Register("openai", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.LLMModel
		}
		return ai.NewOpenAIProvider(cfg.LLMURL, cfg.LLMAPIKey, m), nil
	})
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})
	provider, err := reg.Get(ctx, cfg.AIProvider, "")
	if err != nil {
		log.Fatal().Err(err).Strs("available", reg.Names()).Msg("ai provider")
	}

	var events intake.EventPublisher
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Warn().Err(err).Msg("RabbitMQ unavailable, audit events disabled")
	} else {
		defer pub.Close()
		events = pub
	}

	var auditRepo *audit.Repo
	if gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN); err != nil {
		log.Warn().Err(err).Msg("Audit database unavailable, clinician endpoints disabled")
	} else if err := db.Migrate(gdb); err != nil {
		log.Warn().Err(err).Msg("Audit migration failed, clinician endpoints disabled")
	} else {
		auditRepo = audit.NewRepo(gdb)
	}

	svc := intake.NewService(store, provider, ai.NewExtractor(provider), intake.Config{
		ContextWindow:   cfg.ChatContextWindowSize,
		SessionTTL:      cfg.SessionTTL,
		ArchiveTTL:      cfg.ArchiveTTL,
		ExtractTimeout:  cfg.LLMTimeout,
		GenerateTimeout: cfg.LLMTimeout,
		Events:          events,
	})

	stt := speech.NewWhisperClient(cfg.STTURL)
	tts := speech.NewTTSClient(cfg.TTSURL, cfg.TTSVoice)
	loop := realtime.NewLoop(stt, svc, tts, realtime.Options{
		Voice:      cfg.TTSVoice,
		STTTimeout: cfg.STTTimeout,
		TTSTimeout: cfg.TTSTimeout,
	})

	h := handlers.NewHandler(handlers.Deps{
		Intake: svc,
		STT:    stt,
		TTS:    tts,
		Voice:  cfg.TTSVoice,
		Loop:   loop,
		Audit:  auditRepo,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, cfg.JWTSecret),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Str("ai_provider", cfg.AIProvider).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Info().Msg("Shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped")
		os.Exit(1)
	}
}

// openStore returns the Redis session store, or the in-process store when REDIS_ADDR is
// "memory" (single-node development only).
func openStore(ctx context.Context, cfg config.Config) (intake.Store, func()) {
	if strings.EqualFold(cfg.RedisAddr, "memory") {
		log.Warn().Msg("Using in-memory session store")
		return intake.NewMemoryStore(), func() {}
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rds.Ping(pingCtx); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis ping")
	}
	return rds, func() { _ = rds.Close() }
}
