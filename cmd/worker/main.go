// Package main provides the entry point for the clip compilation worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vohoanvu/JRE-clipper-sub000/internal/bootstrap"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/config"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/queue"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting clip compiler",
		slog.Int("port", cfg.Port),
		slog.String("worker_mode", cfg.WorkerMode),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("temp_dir", cfg.TempDir),
		slog.Int("max_parallel_videos", cfg.MaxParallelVideos),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
		slog.Bool("redis_enabled", cfg.RedisEnabled()),
	)
	logger.Debug("configuration", slog.String("config", cfg.String()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("failed to close dependencies", slog.String("error", err.Error()))
		}
	}()

	handlers := server.NewHandlers(deps.Service, logger, server.WithArtifactDir(deps.ArtifactDir))
	router := server.NewRouter(handlers, logger, server.Config{AllowedOrigins: cfg.CORSAllowedOrigins})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      300 * time.Second, // Allow for large artifact downloads
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	consumerDone := make(chan struct{})
	if cfg.WorkerMode == config.ModeRedis {
		consumer := queue.NewRedisConsumer(deps.Redis, cfg.RedisQueueKey, logger)
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(ctx, deps.Service.Handle); err != nil {
				errCh <- fmt.Errorf("consumer failed: %w", err)
			}
		}()
	} else {
		close(consumerDone)
	}

	// Wait for shutdown signal or error
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case runErr = <-errCh:
		stop()
	}

	// Graceful shutdown with timeout, shared by the server and background jobs
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("shutdown failed: %w", err))
	}

	<-consumerDone
	if err := handlers.Shutdown(shutdownCtx); err != nil {
		logger.Warn("background jobs interrupted", slog.String("error", err.Error()))
	}

	logger.Info("server stopped gracefully")
	return runErr
}
