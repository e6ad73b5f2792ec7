package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/satriahrh/kaiwa/adapters"
	"github.com/satriahrh/kaiwa/adapters/azure"
	"github.com/satriahrh/kaiwa/adapters/llm"
	"github.com/satriahrh/kaiwa/adapters/speech"
	"github.com/satriahrh/kaiwa/adapters/stt"
	"github.com/satriahrh/kaiwa/adapters/tts"
	"github.com/satriahrh/kaiwa/domain/repositories"
	"github.com/satriahrh/kaiwa/internal/api"
	"github.com/satriahrh/kaiwa/internal/auth"
	"github.com/satriahrh/kaiwa/internal/config"
	"github.com/satriahrh/kaiwa/internal/metrics"
	"github.com/satriahrh/kaiwa/internal/persona"
	"github.com/satriahrh/kaiwa/internal/pipeline"
	"github.com/satriahrh/kaiwa/internal/websocket"
	"github.com/satriahrh/kaiwa/usecase"
)

func main() {
	envFile := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := loadPersonas(cfg)
	if err != nil {
		logger.Fatal("Failed to load personas", zap.Error(err))
	}

	// Initialize adapters
	svc, err := newServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize adapters", zap.Error(err))
	}

	pipelines := pipeline.NewManager(logger, cfg.Pipeline.Retention)
	pipelines.AddObserver(metrics.PipelineObserver{})
	usecase.StartEventListener(ctx, pipelines, logger)

	orch, err := usecase.NewOrchestrator(usecase.Config{
		LLM:           svc.llm,
		STT:           svc.stt,
		TTS:           svc.tts,
		Assessor:      svc.assessor,
		Personas:      catalog,
		VoiceProvider: cfg.Speech.TTSProvider,
		Pipelines:     pipelines,
		Tuning: usecase.Tuning{
			TutorTemperature:     cfg.Tuning.TutorTemperature,
			KickStartTemperature: cfg.Tuning.KickStartTemperature,
			PracticeTemperature:  cfg.Tuning.PracticeTemperature,
			RevealInterval:       cfg.Tuning.RevealInterval,
			PipelineTimeout:      cfg.Pipeline.Timeout,
		},
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Failed to create orchestrator", zap.Error(err))
	}

	secret := cfg.SessionSecret
	if secret == "" {
		secret = uuid.NewString()
		logger.Warn("SESSION_SECRET not set, tokens will not survive a restart")
	}
	tokens, err := auth.NewTokenIssuer(secret, cfg.SessionTTL)
	if err != nil {
		logger.Fatal("Failed to create token issuer", zap.Error(err))
	}

	sessions := usecase.NewSessionManager(adapters.NewMemorySessionRepository(), orch, cfg.SessionTTL, cfg.SessionIdleTimeout, logger)

	// Initialize WebSocket hub
	hub := websocket.NewHub(sessions, logger)
	go hub.Run(ctx)

	prometheus.MustRegister(metrics.NewCollector(liveStats{sessions: sessions, hub: hub}))

	cleanup := websocket.NewSessionCleanupService(sessions, time.Minute, logger)
	cleanup.Start()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(metrics.InstrumentEcho())

	api.InitRoutes(e, api.Dependencies{
		Hub:       hub,
		Sessions:  sessions,
		Tokens:    tokens,
		Personas:  catalog,
		Pipelines: pipelines,
		Logger:    logger,
	})

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("llm", cfg.LLM.Provider),
		zap.String("stt", cfg.Speech.STTProvider),
		zap.String("tts", cfg.Speech.TTSProvider),
		zap.String("assessor", cfg.Speech.AssessorProvider))

	<-ctx.Done()
	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cleanup.Stop()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	sessions.Shutdown(shutdownCtx)

	logger.Info("Server exited")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if cfg.LogFormat == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func loadPersonas(cfg *config.Config) (*persona.Catalog, error) {
	if cfg.PersonaFile != "" {
		return persona.Load(cfg.PersonaFile)
	}
	return persona.Default()
}

type services struct {
	llm      repositories.LargeLanguageModel
	stt      repositories.SpeechToText
	tts      repositories.TextToSpeech
	assessor repositories.PronunciationAssessor
}

func newServices(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*services, error) {
	svc := &services{}

	var azureClient *azure.Client
	if cfg.UsesAzure() {
		client, err := azure.NewClient(azure.Config{
			Key:      cfg.Speech.Key,
			Region:   cfg.Speech.Region,
			Endpoint: cfg.Speech.Endpoint,
		}, logger)
		if err != nil {
			return nil, err
		}
		azureClient = client
	}

	switch cfg.LLM.Provider {
	case "openai":
		client, err := llm.NewOpenAILLM(llm.OpenAIConfig{
			APIKey:  cfg.LLM.OpenAIAPIKey,
			Model:   cfg.LLM.Model,
			BaseURL: cfg.LLM.OpenAIBaseURL,
		}, logger)
		if err != nil {
			return nil, err
		}
		svc.llm = client
	case "gemini":
		client, err := llm.NewGeminiLLM(ctx, llm.GeminiConfig{
			APIKey: cfg.LLM.GeminiAPIKey,
			Model:  cfg.LLM.GeminiModel,
		}, logger)
		if err != nil {
			return nil, err
		}
		svc.llm = client
	default:
		svc.llm = llm.NewDemoTutor(logger)
	}

	switch cfg.Speech.STTProvider {
	case "azure":
		svc.stt = azure.NewRecognizer(azureClient)
	case "google":
		client, err := stt.NewGoogleSpeechToText(ctx, logger)
		if err != nil {
			return nil, err
		}
		svc.stt = client
	default:
		svc.stt = speech.NewMockSpeechToText(logger)
	}

	switch cfg.Speech.TTSProvider {
	case "azure":
		svc.tts = azure.NewSynthesizer(azureClient)
	case "elevenlabs":
		client, err := tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey:       cfg.Eleven.APIKey,
			APIBaseURL:   cfg.Eleven.APIBaseURL,
			VoiceID:      cfg.Eleven.VoiceID,
			ModelID:      cfg.Eleven.ModelID,
			OutputFormat: cfg.Eleven.OutputFormat,
			Stability:    cfg.Eleven.Stability,
			Clarity:      cfg.Eleven.Clarity,
		}, logger)
		if err != nil {
			return nil, err
		}
		svc.tts = client
	default:
		svc.tts = speech.NewMockTextToSpeech(logger)
	}

	switch cfg.Speech.AssessorProvider {
	case "azure":
		svc.assessor = azure.NewRecognizer(azureClient)
	default:
		svc.assessor = speech.NewMockPronunciationAssessor(logger)
	}

	return svc, nil
}

type liveStats struct {
	sessions *usecase.SessionManager
	hub      *websocket.Hub
}

func (s liveStats) ActiveSessions() int   { return s.sessions.ActiveSessions() }
func (s liveStats) ConnectedClients() int { return s.hub.ConnectedClients() }
