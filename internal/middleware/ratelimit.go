package middleware

import (
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/benvon/voice-todo/internal/request"
)

const (
	// DefaultAssistantRate allows twenty commands per minute per user.
	DefaultAssistantRate = "20-M"

	limiterPrefix = "voice_todo_limiter"
)

// NewLimiterStore returns a Redis-backed store, or an in-process one when
// client is nil.
func NewLimiterStore(client *redis.Client) (limiter.Store, error) {
	if client == nil {
		return memorystore.NewStoreWithOptions(limiter.StoreOptions{Prefix: limiterPrefix}), nil
	}
	store, err := redisstore.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: limiterPrefix})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis limiter store: %w", err)
	}
	return store, nil
}

// RateLimit limits requests per authenticated user, falling back to the
// client IP. rate uses the limiter format, e.g. "20-M".
func RateLimit(store limiter.Store, rate string, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	if rate == "" {
		rate = DefaultAssistantRate
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", rate, err)
	}

	mw := stdlibmw.NewMiddleware(
		limiter.New(store, parsed),
		stdlibmw.WithKeyGetter(rateLimitKey),
		stdlibmw.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, r, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded, try again shortly")
		}),
		stdlibmw.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("rate_limit_store_error", zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, "Internal Server Error", "Rate limiter unavailable")
		}),
	)
	return mw.Handler, nil
}

func rateLimitKey(r *http.Request) string {
	if u := request.UserFromContext(r); u != nil {
		return "user:" + u.ID.String()
	}
	return "ip:" + request.ClientIP(r)
}
