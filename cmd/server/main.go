package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"audioscribe/internal/app"
	"audioscribe/internal/config"
	"audioscribe/internal/ingest"
	"audioscribe/internal/server"
	"audioscribe/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		slog.Error("invalid session TTL", "error", err)
		os.Exit(1)
	}
	segmenterTimeout, err := config.ParseSegmenterTimeout(cfg.SegmenterTimeout)
	if err != nil {
		slog.Error("invalid segmenter timeout", "error", err)
		os.Exit(1)
	}
	audioURLTTL, err := config.ParseAudioURLTTL(cfg.AudioURLTTL)
	if err != nil {
		slog.Error("invalid audio URL TTL", "error", err)
		os.Exit(1)
	}

	util.InitLogger(cfg.LogLevel)

	application, err := app.New(app.Config{
		DatabaseURL:      cfg.DatabaseURL,
		JWTSecret:        cfg.JWTSecret,
		SessionTTL:       sessionTTL,
		SegmenterURL:     cfg.SegmenterURL,
		SegmenterTimeout: segmenterTimeout,
		MinioEndpoint:    cfg.MinioEndpoint,
		MinioAccessKey:   cfg.MinioAccessKey,
		MinioSecretKey:   cfg.MinioSecretKey,
		MinioBucket:      cfg.MinioBucket,
		MinioUseSSL:      cfg.MinioUseSSL,
		AudioURLTTL:      audioURLTTL,

		RequireTranslationForCompletion: cfg.RequireTranslationForCompletion,

		Ingest: ingest.Config{
			MaxFiles:          cfg.MaxBatchFiles,
			BatchSize:         cfg.BatchSize,
			MaxFileBytes:      cfg.MaxFileBytes,
			AllowedExtensions: cfg.AllowedExtensions,
		},
	})
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	httpServer, err := server.New(server.Config{
		App:                        application,
		RedisAddr:                  cfg.RedisAddr,
		RedisPassword:              cfg.RedisPassword,
		LoginRateLimitPerMinute:    cfg.LoginRateLimitPerMinute,
		PasswordRateLimitPerMinute: cfg.PasswordRateLimitPerMinute,
		MaxUploadBytes:             cfg.MaxUploadBytes,
	})
	if err != nil {
		slog.Error("failed to initialize server", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}
