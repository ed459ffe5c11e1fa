package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/benvon/voice-todo/internal/app"
	"github.com/benvon/voice-todo/internal/config"
	"github.com/benvon/voice-todo/internal/handlers"
	"github.com/benvon/voice-todo/internal/logger"
	"github.com/benvon/voice-todo/internal/middleware"
	"github.com/benvon/voice-todo/internal/queue"
	"github.com/benvon/voice-todo/internal/services/auth"
	"github.com/benvon/voice-todo/internal/services/history"
	"github.com/benvon/voice-todo/internal/workers"
)

const serviceName = "voice-todo-api"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(logger.Options{Debug: debugMode, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("ai_provider", cfg.AIProvider),
		zap.String("ai_model", cfg.AIModel),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := app.SetupTracing(ctx, cfg, serviceName, zapLogger)
	defer shutdownTracing(context.Background())

	store, err := app.OpenStore(ctx, cfg, true, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_open_store", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			zapLogger.Warn("failed_to_close_store", zap.Error(err))
		}
	}()

	redisClient, err := app.ConnectRedis(ctx, cfg.RedisURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	health := map[string]handlers.HealthCheck{"store": store.Ping}
	if redisClient != nil {
		health["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	// Archived events reach the browser through the bus, either relayed from
	// the worker over RabbitMQ or published by an in-process scanner.
	bus := queue.NewBus()
	if cfg.RabbitMQURL != "" {
		broker, err := app.ConnectBroker(ctx, cfg.RabbitMQURL, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
		}
		relay := newEventRelay(cfg.RabbitMQURL, broker, bus, zapLogger)
		health["rabbitmq"] = relay.HealthCheck
		go relay.Run(ctx)
	} else {
		zapLogger.Info("rabbitmq_not_configured_scanning_in_process")
		supervisor := workers.NewScanSupervisor(store, cfg.ScanInterval, workers.PublishArchived(bus, zapLogger), zapLogger)
		go func() { _ = supervisor.Run(ctx) }()
		// new reminders get a scanner without waiting for discovery
		store = supervisor.Watch(store)
	}

	var runner handlers.CommandRunner
	if a, err := app.NewAssistant(cfg, store, redisClient, zapLogger, debugMode); err != nil {
		zapLogger.Warn("assistant_disabled", zap.Error(err))
	} else {
		runner = a
	}

	limiterStore, err := middleware.NewLimiterStore(redisClient)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}
	commandRate, err := middleware.RateLimit(limiterStore, cfg.Assistant.RateLimit, zapLogger)
	if err != nil {
		zapLogger.Fatal("invalid_assistant_rate_limit", zap.Error(err))
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		ServiceName:    serviceName,
		Store:          store,
		History:        history.NewService(store),
		Assistant:      runner,
		CommandTimeout: app.CommandBudget(cfg),
		Events:         bus,
		Health:         health,
		Authn:          authenticator(cfg, zapLogger),
		CommandRate:    commandRate,
		FrontendURL:    cfg.FrontendURL,
		EnableHSTS:     !cfg.ServerDebugMode,
		Tracing:        cfg.OTELEnabled,
		Logger:         zapLogger,
	})

	// No WriteTimeout: the event stream is long-lived. Other routes are
	// bounded by the timeout middleware.
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	srv.RegisterOnShutdown(func() { _ = bus.Close() })

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Error("server_failed_to_start", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zapLogger.Info("server_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}
	zapLogger.Info("server_exited")
}

func authenticator(cfg *config.Config, zapLogger *zap.Logger) func(http.Handler) http.Handler {
	if cfg.JWKSURL == "" {
		zapLogger.Warn("jwks_url_not_configured_using_dev_auth",
			zap.String("header", middleware.DevUserHeader))
		return middleware.DevAuth()
	}
	verifier := auth.NewVerifier(auth.NewJWKSCache(cfg.JWKSURL, auth.DefaultJWKSTTL), cfg.JWTIssuer)
	return middleware.Auth(verifier, zapLogger)
}
