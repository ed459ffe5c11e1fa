package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends selectable through STORE_BACKEND.
const (
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

// Config holds application configuration
type Config struct {
	StoreBackend       string
	DatabaseURL        string
	FirestoreProjectID string
	FirestoreAppID     string
	FirestoreCredsFile string
	ServerPort         string
	FrontendURL        string
	OpenAIKey          string
	AIProvider         string
	AIModel            string
	AIBaseURL          string
	RedisURL           string
	RabbitMQURL        string
	WorkerDebugMode    bool
	ServerDebugMode    bool
	OTELEnabled        bool
	OTELEndpoint       string
	LogFile            string
	JWKSURL            string
	JWTIssuer          string
	Assistant          AssistantConfig
	Interpreter        InterpreterConfig
	ScanInterval       time.Duration
}

// AssistantConfig configures the voice assistant surface.
type AssistantConfig struct {
	Locale    string
	Timezone  string
	RateLimit string
}

// Location resolves the configured timezone, falling back to the process local zone.
func (a AssistantConfig) Location() *time.Location {
	if a.Timezone == "" || strings.EqualFold(a.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// InterpreterConfig holds the retry policy for language-service calls.
type InterpreterConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Jitter       float64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom loads configuration using getenv as the variable source.
func LoadFrom(getenv func(string) string) (*Config, error) {
	e := env(getenv)

	cfg := &Config{
		StoreBackend:       strings.ToLower(e.get("STORE_BACKEND", BackendPostgres)),
		DatabaseURL:        e.get("DATABASE_URL", ""),
		FirestoreProjectID: e.get("FIRESTORE_PROJECT_ID", ""),
		FirestoreAppID:     e.get("FIRESTORE_APP_ID", "default-app-id"),
		FirestoreCredsFile: e.get("FIRESTORE_CREDENTIALS_FILE", ""),
		ServerPort:         e.get("SERVER_PORT", "8080"),
		FrontendURL:        e.get("FRONTEND_URL", "http://localhost:3000"),
		OpenAIKey:          e.get("OPENAI_API_KEY", ""),
		AIProvider:         e.get("AI_PROVIDER", "openai"),
		AIModel:            e.get("AI_MODEL", ""),
		AIBaseURL:          e.get("AI_BASE_URL", ""),
		RedisURL:           e.get("REDIS_URL", ""),
		RabbitMQURL:        e.get("RABBITMQ_URL", ""),
		WorkerDebugMode:    e.getBool("WORKER_DEBUG_MODE", false),
		ServerDebugMode:    e.getBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:        e.getBool("OTEL_ENABLED", false),
		OTELEndpoint:       e.get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		LogFile:            e.get("LOG_FILE", ""),
		JWKSURL:            e.get("JWKS_URL", ""),
		JWTIssuer:          e.get("JWT_ISSUER", ""),
		Assistant: AssistantConfig{
			Locale:    e.get("ASSISTANT_LOCALE", "es-ES"),
			Timezone:  e.get("ASSISTANT_TIMEZONE", "Local"),
			RateLimit: e.get("ASSISTANT_RATE_LIMIT", "20-M"),
		},
		Interpreter: InterpreterConfig{
			MaxRetries:   e.getInt("INTERPRETER_MAX_RETRIES", 3),
			InitialDelay: e.getDuration("INTERPRETER_INITIAL_DELAY", time.Second),
			MaxDelay:     e.getDuration("INTERPRETER_MAX_DELAY", 30*time.Second),
			Jitter:       e.getFloat("INTERPRETER_JITTER", 0),
		},
		ScanInterval: e.getDuration("SCAN_INTERVAL", time.Minute),
	}

	switch cfg.StoreBackend {
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres store backend")
		}
	case BackendFirestore:
		if cfg.FirestoreProjectID == "" {
			return nil, fmt.Errorf("FIRESTORE_PROJECT_ID is required for the firestore store backend")
		}
	case BackendMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q (want postgres, firestore or memory)", cfg.StoreBackend)
	}

	if cfg.Interpreter.MaxRetries < 0 {
		return nil, fmt.Errorf("INTERPRETER_MAX_RETRIES must not be negative")
	}
	if cfg.Interpreter.Jitter < 0 || cfg.Interpreter.Jitter >= 1 {
		return nil, fmt.Errorf("INTERPRETER_JITTER must be in [0, 1)")
	}
	if cfg.ScanInterval <= 0 {
		return nil, fmt.Errorf("SCAN_INTERVAL must be positive")
	}

	return cfg, nil
}

type env func(string) string

func (e env) get(key, defaultValue string) string {
	if value := e(key); value != "" {
		return value
	}
	return defaultValue
}

func (e env) getBool(key string, defaultValue bool) bool {
	if value := e(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func (e env) getInt(key string, defaultValue int) int {
	if value := e(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (e env) getFloat(key string, defaultValue float64) float64 {
	if value := e(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func (e env) getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := e(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
