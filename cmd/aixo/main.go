package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielwesterlund/aixo/internal/config"
	"github.com/danielwesterlund/aixo/internal/ratelimit"
	"github.com/danielwesterlund/aixo/internal/server"
	"github.com/danielwesterlund/aixo/internal/util"
	"github.com/danielwesterlund/aixo/pkg/ai"
	"github.com/danielwesterlund/aixo/pkg/media"
	"github.com/danielwesterlund/aixo/pkg/usage"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel)

	var recorder usage.Recorder
	if cfg.DatabaseURL != "" {
		store, err := usage.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			util.Fatal("failed to init usage store", "err", err)
		}
		recorder = store
	} else {
		slog.Warn("no database configured, usage records are kept in memory only")
		recorder = usage.NewMemoryStore()
	}

	var mirror ai.MediaMirror
	if cfg.MinioEndpoint != "" {
		objectStore, err := media.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			util.Fatal("failed to init media store", "err", err)
		}
		mirror = media.NewMirror(objectStore, logger)
	}

	defaults := ai.Defaults{
		Provider:    cfg.DefaultProvider,
		Model:       cfg.DefaultModel,
		Temperature: cfg.DefaultTemperature,
		MaxTokens:   cfg.MaxTokens,
		ImageModel:  cfg.DefaultImageModel,
		TTSModel:    cfg.DefaultTTSModel,
		Voice:       cfg.DefaultVoice,
		Language:    cfg.DefaultLanguage,
	}
	service, err := ai.New(ai.Config{
		Defaults: defaults,
		Usage:    recorder,
		Mirror:   mirror,
		Logger:   logger,
		Debug:    cfg.Debug,
	},
		ai.NewOpenAIProvider(ai.OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.DefaultModel,
			ImageModel: cfg.DefaultImageModel,
			TTSModel:   cfg.DefaultTTSModel,
			Voice:      cfg.DefaultVoice,
		}),
		ai.NewHuggingFaceProvider(ai.HuggingFaceConfig{
			APIKey: cfg.HuggingFaceAPIKey,
			Model:  cfg.HuggingFaceModel,
		}),
		ai.NewLocalProvider(),
	)
	if err != nil {
		util.Fatal("failed to init ai service", "err", err)
	}

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.GenerateRateLimitPerMinute > 0 {
		limiter, err = ratelimit.NewFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "aixo:generate", cfg.GenerateRateLimitPerMinute, time.Minute)
		if err != nil {
			util.Fatal("failed to init rate limiter", "err", err)
		}
	}

	httpServer := server.New(server.Config{
		Service:        service,
		Usage:          recorder,
		Limiter:        limiter,
		Defaults:       defaults,
		Debug:          cfg.Debug,
		TrustForwarded: cfg.TrustForwardedHeaders,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("aixo server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
