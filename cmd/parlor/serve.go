package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"parlor/adapters/archive"
	"parlor/adapters/broker"
	httpadapter "parlor/adapters/http"
	"parlor/adapters/llm"
	"parlor/adapters/tts"
	"parlor/adapters/websocket"
	"parlor/adapters/wiki"
	"parlor/config"
	"parlor/domain"
	"parlor/usecase"
	"parlor/utils/log"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat HTTP/WebSocket server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	llmClient := buildCompletionClient(ctx, cfg)

	var summarizer domain.Summarizer
	if cfg.Wiki.Enabled {
		summarizer = wiki.NewClient(cfg.Wiki.BaseURL, cfg.WikiTimeout())
	}

	var (
		brokerPort domain.MessageBroker
		msgBroker  *broker.ChannelBroker
		store      domain.TranscriptStore
		archiver   *usecase.Archiver
	)
	if cfg.Archive.Enabled {
		sqlStore, err := archive.NewSQLiteStore(cfg.Archive.DatabasePath)
		if err != nil {
			return err
		}
		defer sqlStore.Close()
		store = sqlStore

		msgBroker = broker.NewChannelBroker()
		brokerPort = msgBroker
		archiver = usecase.NewArchiver(msgBroker, sqlStore)
		// The archiver outlives the request context so shutdown writes
		// still land; it stops when the broker closes.
		go archiver.Run(context.Background())
	}

	var speaker domain.Speaker
	if cfg.Speech.Enabled {
		googleTTS, err := tts.NewGoogleTTS(ctx, cfg.Speech.LanguageCode, cfg.Speech.Voice)
		if err != nil {
			log.With().Warn("speech synthesis unavailable", zap.Error(err))
		} else {
			defer googleTTS.Close()
			speaker = googleTTS
		}
	}

	promptOverrides := modePrompts(cfg.Chat.Prompts)
	newEngine := func() *usecase.Engine {
		return usecase.NewEngine(usecase.EngineConfig{
			HistoryCapacity: cfg.Chat.HistoryCapacity,
			WikiSentences:   cfg.Wiki.Sentences,
			Prompts:         promptOverrides,
		}, llmClient, summarizer)
	}

	svc := usecase.NewChatService(newEngine, brokerPort, speaker)

	wsServer := websocket.NewServer(svc)
	wsServer.RunWebsocketHub()

	handler := httpadapter.NewHandler(svc, store, httpadapter.Config{
		APIKey:        cfg.Auth.APIKey,
		APISecret:     cfg.Auth.APISecret,
		JWTSecret:     cfg.Auth.JWTSecret,
		TokenTTL:      cfg.TokenTTL(),
		MaxConcurrent: cfg.Server.MaxConcurrent,
		Provider:      cfg.LLM.Provider,
	})

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.Secure())
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.Server.RateLimit))))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			"X-API-Key",
			"X-API-Secret",
			"Content-Length",
		},
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	wsGroup := e.Group("/ws")
	wsGroup.Use(handler.JWTMiddleware)
	wsGroup.GET("", wsServer.Handler)

	api := e.Group("/api/v1")

	api.GET("/health", handler.HealthCheck)
	api.POST("/auth/token", handler.GenerateJWT)

	chat := api.Group("/chat")
	chat.Use(handler.JWTMiddleware)
	chat.Use(handler.RateLimitMiddleware)
	chat.POST("", handler.Chat)
	chat.POST("/reset", handler.ResetChat)
	chat.GET("/history", handler.ChatHistory)

	prompts := api.Group("/prompts")
	prompts.Use(handler.JWTMiddleware)
	prompts.PUT("/:mode", handler.SetPrompt)

	sessions := api.Group("/sessions")
	sessions.Use(handler.JWTMiddleware)
	sessions.GET("", handler.ListSessions)
	sessions.GET("/:id", handler.GetSession)

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(cfg.Server.Addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.With().Info("server started",
		zap.String("addr", cfg.Server.Addr),
		zap.String("provider", cfg.LLM.Provider))

	select {
	case sig := <-sigCh:
		log.With().Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	wsServer.GetHub().Shutdown(shutdownCtx)
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.With().Warn("server shutdown was not clean", zap.Error(err))
	}

	if msgBroker != nil {
		msgBroker.Close()
		select {
		case <-archiver.Done():
		case <-shutdownCtx.Done():
			log.With().Warn("archiver did not drain in time")
		}
	}

	return nil
}

// buildCompletionClient assembles the configured provider, degrading to the
// disabled client (local fallback replies) when the provider cannot run.
func buildCompletionClient(ctx context.Context, cfg *config.Config) domain.CompletionClient {
	llmCfg := llm.Config{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLMTimeout(),
	}

	switch cfg.LLM.Provider {
	case "openai":
		if cfg.LLM.APIKey == "" {
			log.With().Warn("OPENAI_API_KEY not set, replies fall back to the local echo")
			return llm.NewDisabled()
		}
		return llm.NewOpenAIClient(llmCfg)

	case "gemini":
		client, err := llm.NewGeminiClient(ctx, llmCfg)
		if err != nil {
			log.With().Warn("gemini client unavailable, replies fall back to the local echo", zap.Error(err))
			return llm.NewDisabled()
		}
		return client

	default: // "none"
		return llm.NewDisabled()
	}
}

// modePrompts normalizes config prompt overrides onto resolved modes.
func modePrompts(raw map[string]string) map[domain.Mode]string {
	if len(raw) == 0 {
		return nil
	}
	prompts := make(map[domain.Mode]string, len(raw))
	for label, prompt := range raw {
		prompts[domain.ResolveMode(label)] = prompt
	}
	return prompts
}
