package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/benvon/voice-todo/internal/app"
	"github.com/benvon/voice-todo/internal/config"
	"github.com/benvon/voice-todo/internal/logger"
	"github.com/benvon/voice-todo/internal/workers"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.New(logger.Options{Debug: debugMode, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	if cfg.RabbitMQURL == "" {
		zapLogger.Fatal("rabbitmq_url_required",
			zap.String("hint", "without RABBITMQ_URL the server scans reminders in-process"))
	}
	if cfg.StoreBackend == config.BackendMemory {
		zapLogger.Fatal("memory_store_not_shared",
			zap.String("hint", "the worker needs the same postgres or firestore store as the server"))
	}

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Duration("scan_interval", cfg.ScanInterval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := app.SetupTracing(ctx, cfg, "voice-todo-worker", zapLogger)
	defer shutdownTracing(context.Background())

	store, err := app.OpenStore(ctx, cfg, false, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_open_store", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			zapLogger.Warn("failed_to_close_store", zap.Error(err))
		}
	}()

	broker, err := app.ConnectBroker(ctx, cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	}
	defer func() {
		if err := broker.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()

	supervisor := workers.NewScanSupervisor(store, cfg.ScanInterval, workers.PublishArchived(broker, zapLogger), zapLogger)
	if err := supervisor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		zapLogger.Error("scan_supervisor_failed", zap.Error(err))
	}

	zapLogger.Info("worker_stopped")
}
