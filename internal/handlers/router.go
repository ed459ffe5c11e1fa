package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/benvon/voice-todo/internal/database"
	"github.com/benvon/voice-todo/internal/middleware"
)

// RouterConfig lists everything the HTTP surface needs.
type RouterConfig struct {
	ServiceName string
	Store       database.Store
	History     HistoryLoader
	Assistant   CommandRunner
	Events      Subscriber
	Health      map[string]HealthCheck
	// Authn wraps every /api/v1 route, normally middleware.Auth.
	Authn       func(http.Handler) http.Handler
	CommandRate func(http.Handler) http.Handler

	// CommandTimeout bounds /assistant routes, which outlast ordinary
	// requests while the language service is retried. Zero means
	// middleware.DefaultRequestTimeout.
	CommandTimeout time.Duration

	FrontendURL string
	EnableHSTS  bool
	Tracing     bool
	Logger      *zap.Logger
}

// NewRouter builds the routes and middleware chain. Router middleware runs
// in registration order, so tracing is outermost.
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	if cfg.Tracing {
		r.Use(otelmux.Middleware(cfg.ServiceName))
	}
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.ErrorHandler(cfg.Logger))
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)

	r.HandleFunc("/healthz", NewHealthChecker(cfg.Health).HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(cfg.Authn)

	// The event stream stays open, so it sits outside the timeout.
	if cfg.Events != nil {
		NewEventsHandler(cfg.Events, cfg.Logger).RegisterRoutes(api.PathPrefix("/events").Subrouter())
	}

	// Commands get their own deadline, so they sit outside the default one.
	if cfg.Assistant != nil {
		assistantRouter := api.PathPrefix("/assistant").Subrouter()
		assistantRouter.Use(middleware.Timeout(cfg.CommandTimeout))
		if cfg.CommandRate != nil {
			assistantRouter.Use(cfg.CommandRate)
		}
		NewAssistantHandler(cfg.Assistant).RegisterRoutes(assistantRouter)
	}

	bounded := api.PathPrefix("").Subrouter()
	bounded.Use(middleware.Timeout(middleware.DefaultRequestTimeout))

	NewTaskHandler(cfg.Store).RegisterRoutes(bounded.PathPrefix("/tasks").Subrouter())
	NewListHandler(cfg.Store).RegisterRoutes(bounded.PathPrefix("/lists").Subrouter())
	NewReminderHandler(cfg.Store).RegisterRoutes(bounded.PathPrefix("/reminders").Subrouter())
	NewHistoryHandler(cfg.History).RegisterRoutes(bounded.PathPrefix("/history").Subrouter())

	// CORS wraps the router so preflights are answered before route matching.
	return middleware.CORS(cfg.FrontendURL, cfg.Logger)(r)
}
