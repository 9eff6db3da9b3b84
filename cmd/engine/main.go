package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"content_engine/internal/ai"
	"content_engine/internal/channels"
	"content_engine/internal/config"
	"content_engine/internal/diversity"
	"content_engine/internal/engine"
	"content_engine/internal/frames"
	"content_engine/internal/images"
	"content_engine/internal/metrics"
	"content_engine/internal/scheduler"
	"content_engine/internal/server"
	"content_engine/internal/storage"
	"content_engine/internal/storage/airtable"
	"content_engine/internal/storage/sheets"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	// Text providers: Gemini first, OpenAI as fallback
	var providers []ai.TextProvider
	if cfg.AI.GeminiAPIKey != "" {
		providers = append(providers, ai.NewGeminiClient(ai.GeminiConfig{
			APIKey:  cfg.AI.GeminiAPIKey,
			Model:   cfg.AI.GeminiModel,
			Timeout: cfg.AI.Timeout,
		}, logger))
	}
	if cfg.AI.OpenAIAPIKey != "" {
		providers = append(providers, ai.NewOpenAIClient(ai.OpenAIConfig{
			APIKey:  cfg.AI.OpenAIAPIKey,
			Model:   cfg.AI.OpenAIModel,
			Timeout: cfg.AI.Timeout,
		}, logger))
	}
	if len(providers) == 0 {
		logger.Error("no text provider configured, set a gemini or openai api key")
		os.Exit(1)
	}
	provider := ai.NewFallbackProvider(logger, providers...)

	tracker := diversity.NewTracker(0, 0)
	generator := ai.NewGenerator(provider, tracker, ai.PromptSet{}, ai.GeneratorConfig{
		MaxAttempts:          cfg.AI.MaxAttempts,
		BaseTemperature:      cfg.AI.BaseTemp,
		TemperatureStep:      cfg.AI.TempStep,
		MaxTitleLength:       cfg.AI.MaxTitleLen,
		MaxDescriptionLength: cfg.AI.MaxDescription,
		MaxTags:              cfg.AI.MaxTags,
	}, logger)

	var imageGen engine.ImageGenerator
	if cfg.Images.Enabled && cfg.Images.PiapiAPIKey != "" {
		imageGen = images.NewClient(images.Config{
			APIKey:       cfg.Images.PiapiAPIKey,
			BaseURL:      cfg.Images.BaseURL,
			Timeout:      cfg.AI.Timeout,
			PollInterval: cfg.Images.PollInterval,
			MaxPolls:     cfg.Images.MaxPolls,
		}, logger)
	} else {
		logger.Info("image generation disabled")
	}

	registry, err := channels.NewRegistry(cfg.Channels.ConfigFile, channels.Defaults{
		SpreadsheetID:      cfg.Storage.GoogleSheetsID,
		AirtableTable:      cfg.Storage.AirtableTable,
		DefaultName:        cfg.Channels.DefaultName,
		DefaultDescription: cfg.Channels.DefaultDescription,
		DefaultCreatedBy:   cfg.Channels.DefaultCreatedBy,
	}, logger)
	if err != nil {
		logger.Error("failed to load channel registry", "error", err)
		os.Exit(1)
	}

	var sheetsSink storage.Sink
	if cfg.Storage.GoogleCredentialsFile != "" {
		sheetsSink = sheets.NewSink(cfg.Storage.GoogleCredentialsFile, logger)
	}
	var airtableSink storage.Sink
	if cfg.Storage.AirtableAPIKey != "" {
		airtableSink = airtable.NewSink(cfg.Storage.AirtableBaseURL, cfg.Storage.AirtableAPIKey, logger)
	}
	router := storage.NewRouter(registry, sheetsSink, airtableSink, logger)

	met := metrics.New()
	frameResolver := frames.NewExtractor("data/frames", logger)

	eng := engine.New(generator, imageGen, router, registry, frameResolver, engine.Config{
		AutoGenerateImages: cfg.Workflow.AutoGenerateImages,
		MaxPackageAge:      cfg.Workflow.MaxPackageAge,
	}, met, logger)

	handler := server.NewHandler(eng, registry, cfg.Workflow.MaxPackageAge, logger)
	mux := handler.Routes()
	mux.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetTrackedPackages(eng.TrackedCount()) }).ServeHTTP(w, r)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.NewScheduler(eng, cfg.Workflow.CleanupInterval, cfg.Workflow.MaxPackageAge, logger)
	go func() {
		if err := sched.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("cleanup scheduler error", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("starting content engine",
			"addr", addr,
			"auto_generate_images", cfg.Workflow.AutoGenerateImages,
			"providers", len(providers),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
