// Package app assembles the components shared by the server, the worker and
// the CLI from a loaded configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/benvon/voice-todo/internal/backoff"
	"github.com/benvon/voice-todo/internal/config"
	"github.com/benvon/voice-todo/internal/database"
	"github.com/benvon/voice-todo/internal/database/fsstore"
	"github.com/benvon/voice-todo/internal/queue"
	"github.com/benvon/voice-todo/internal/services/ai"
	"github.com/benvon/voice-todo/internal/services/assistant"
	"github.com/benvon/voice-todo/internal/services/dispatcher"
	"github.com/benvon/voice-todo/internal/services/interpreter"
	"github.com/benvon/voice-todo/internal/telemetry"
)

const (
	// dispatchHeadroom covers the store writes after interpretation.
	dispatchHeadroom = 15 * time.Second
	// lockHeadroom keeps a Redis slot held past the HTTP deadline.
	lockHeadroom = 30 * time.Second
)

// connectPolicy retries broker and cache connections while they start up.
var connectPolicy = backoff.Policy{MaxRetries: 9, InitialDelay: 2 * time.Second, MaxDelay: 30 * time.Second}

type listeningStore struct {
	database.Store
	stop context.CancelFunc
}

func (s listeningStore) Close() error {
	s.stop()
	return s.Store.Close()
}

// OpenStore opens the configured backend. For Postgres it applies the schema
// when migrate is set and runs the LISTEN loop until the store is closed.
func OpenStore(ctx context.Context, cfg *config.Config, migrate bool, logger *zap.Logger) (database.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Warn("using_memory_store", zap.String("note", "data is lost on exit and not shared between processes"))
		return database.NewMemoryStore(), nil

	case config.BackendFirestore:
		store, err := fsstore.Open(ctx, cfg.FirestoreProjectID, cfg.FirestoreAppID, cfg.FirestoreCredsFile, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("connected_to_firestore", zap.String("project_id", cfg.FirestoreProjectID), zap.String("app_id", cfg.FirestoreAppID))
		return store, nil

	case config.BackendPostgres:
		db, err := database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := db.Migrate(ctx); err != nil {
				_ = db.Close()
				return nil, err
			}
			logger.Info("database_schema_applied")
		}
		listener, err := database.NewReminderListener(db.URL(), logger)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to open reminder listener: %w", err)
		}
		runCtx, stop := context.WithCancel(context.Background())
		go listener.Run(runCtx)
		logger.Info("connected_to_database")
		return listeningStore{Store: database.NewPostgresStore(db, listener), stop: stop}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// ConnectRedis returns nil without error when url is empty.
func ConnectRedis(ctx context.Context, url string, logger *zap.Logger) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	_, err = backoff.Execute(ctx, connectPolicy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, client.Ping(ctx).Err()
	}, backoff.WithNotify(retryLogger(logger, "redis")))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected_to_redis")
	return client, nil
}

// ConnectBroker retries the RabbitMQ dial while the broker starts up.
func ConnectBroker(ctx context.Context, url string, logger *zap.Logger) (*queue.RabbitMQBroker, error) {
	broker, err := backoff.Execute(ctx, connectPolicy, func(context.Context) (*queue.RabbitMQBroker, error) {
		return queue.NewRabbitMQBroker(url, logger)
	}, backoff.WithNotify(retryLogger(logger, "rabbitmq")))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	logger.Info("connected_to_rabbitmq")
	return broker, nil
}

func retryLogger(logger *zap.Logger, target string) backoff.NotifyFunc {
	return func(err error, attempt int, wait time.Duration) {
		logger.Warn("connect_failed_retrying",
			zap.String("target", target),
			zap.Int("attempt", attempt),
			zap.Duration("retry_delay", wait),
			zap.Error(err),
		)
	}
}

// NewGenerator builds the configured language-service provider.
func NewGenerator(cfg *config.Config, logger *zap.Logger, debug bool) (ai.Generator, error) {
	return ai.NewProviderRegistry().GetProvider(cfg.AIProvider, map[string]string{
		"api_key":  cfg.OpenAIKey,
		"base_url": cfg.AIBaseURL,
		"model":    cfg.AIModel,
		"debug":    fmt.Sprint(debug),
	}, logger)
}

// InterpreterPolicy is the retry policy for language-service calls.
func InterpreterPolicy(cfg *config.Config) backoff.Policy {
	return backoff.Policy{
		MaxRetries:   cfg.Interpreter.MaxRetries,
		InitialDelay: cfg.Interpreter.InitialDelay,
		MaxDelay:     cfg.Interpreter.MaxDelay,
		Jitter:       cfg.Interpreter.Jitter,
	}
}

// CommandBudget bounds one voice command: every interpretation attempt at
// the per-call timeout, the waits between them, then the dispatch.
func CommandBudget(cfg *config.Config) time.Duration {
	p := InterpreterPolicy(cfg)
	return time.Duration(p.MaxRetries+1)*ai.DefaultTimeout + p.MaxWait() + dispatchHeadroom
}

// InFlightTTL bounds a Redis single-flight lock. It outlives CommandBudget so
// the slot cannot expire while a command is still running.
func InFlightTTL(cfg *config.Config) time.Duration {
	return CommandBudget(cfg) + lockHeadroom
}

// NewInterpreter wires the generator into an interpreter with the configured
// retry policy and timezone.
func NewInterpreter(cfg *config.Config, generator ai.Generator, logger *zap.Logger) (*interpreter.Interpreter, error) {
	return interpreter.New(generator,
		interpreter.WithPolicy(InterpreterPolicy(cfg)),
		interpreter.WithLocation(cfg.Assistant.Location()),
		interpreter.WithLogger(logger),
	)
}

// NewAssistant builds the interpret and dispatch pipeline over store. With a
// Redis client the single-flight slot is shared between replicas.
func NewAssistant(cfg *config.Config, store dispatcher.Store, redisClient *redis.Client, logger *zap.Logger, debug bool) (*assistant.Assistant, error) {
	generator, err := NewGenerator(cfg, logger, debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI provider: %w", err)
	}
	in, err := NewInterpreter(cfg, generator, logger)
	if err != nil {
		return nil, err
	}

	var guard assistant.InFlightGuard = assistant.NewLocalInFlightGuard()
	if redisClient != nil {
		guard = assistant.NewRedisInFlightGuard(redisClient, InFlightTTL(cfg))
	}
	return assistant.New(in, dispatcher.New(store, logger, cfg.Assistant.Location()), guard, logger), nil
}

// SetupTracing installs an OTLP tracer provider when enabled. The returned
// func flushes it and is safe to call when tracing is off.
func SetupTracing(ctx context.Context, cfg *config.Config, service string, logger *zap.Logger) func(context.Context) {
	noop := func(context.Context) {}
	if !cfg.OTELEnabled {
		return noop
	}
	if cfg.OTELEndpoint == "" {
		logger.Warn("otel_enabled_but_endpoint_not_configured")
		return noop
	}
	tp, err := telemetry.InitTracer(ctx, telemetry.Config{ServiceName: service, Endpoint: cfg.OTELEndpoint, Insecure: true})
	if err != nil {
		logger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		return noop
	}
	logger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
	return func(ctx context.Context) {
		shutdown(ctx, tp, logger)
	}
}

func shutdown(ctx context.Context, tp *sdktrace.TracerProvider, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := telemetry.Shutdown(ctx, tp); err != nil {
		logger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
	}
}
