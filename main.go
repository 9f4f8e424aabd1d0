package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"freesync/internal/config"
	"freesync/internal/logging"
	"freesync/internal/server"
	"freesync/internal/storage"
	"freesync/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load(config.New(), os.Getenv("FREESYNC_CONFIG"))
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	// Initialize logger
	logger, err := logging.NewFileLogger(cfg.Log.Level, cfg.Log.File, cfg.Log.Echo)
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()

	root, err := os.Getwd()
	if err != nil {
		logger.Fatal("failed to resolve working directory", zap.Error(err))
	}

	opts := []store.Option{store.WithCacheSize(cfg.Store.CacheSize)}
	if cfg.Store.Journal {
		journal, err := storage.OpenJournal(store.JournalPath(root))
		if err != nil {
			logger.Fatal("failed to open journal", zap.Error(err))
		}
		defer journal.Close()
		opts = append(opts, store.WithJournal(journal))
	}

	st, err := store.New(root, opts...)
	if err != nil {
		logger.Fatal("failed to initialize store", zap.Error(err))
	}

	srv := server.New(st, logger, server.Options{
		Addr:    cfg.Address(),
		Workers: cfg.Server.Workers,
	})
	if err := srv.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	select {
	case err := <-served:
		if !errors.Is(err, server.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forced shutdown", zap.Error(err))
		}
	}
}
