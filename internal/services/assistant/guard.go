package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrCommandInFlight is returned when the user already has a command being processed.
var ErrCommandInFlight = errors.New("command already in flight")

// InFlightGuard admits one command per user at a time. Acquire returns
// ErrCommandInFlight when the user holds the slot; release frees it.
type InFlightGuard interface {
	Acquire(ctx context.Context, userID uuid.UUID) (release func(), err error)
}

// LocalInFlightGuard tracks in-flight commands inside one process.
type LocalInFlightGuard struct {
	mu     sync.Mutex
	active map[uuid.UUID]struct{}
}

var _ InFlightGuard = (*LocalInFlightGuard)(nil)

// NewLocalInFlightGuard creates an empty guard
func NewLocalInFlightGuard() *LocalInFlightGuard {
	return &LocalInFlightGuard{active: make(map[uuid.UUID]struct{})}
}

// Acquire implements InFlightGuard
func (g *LocalInFlightGuard) Acquire(_ context.Context, userID uuid.UUID) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[userID]; busy {
		return nil, ErrCommandInFlight
	}
	g.active[userID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.active, userID)
			g.mu.Unlock()
		})
	}, nil
}

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisInFlightGuard shares the in-flight slot across server replicas.
type RedisInFlightGuard struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

var _ InFlightGuard = (*RedisInFlightGuard)(nil)

// NewRedisInFlightGuard creates a guard whose locks expire after ttl, which
// must exceed the longest interpretation including retries.
func NewRedisInFlightGuard(client *redis.Client, ttl time.Duration) *RedisInFlightGuard {
	return &RedisInFlightGuard{client: client, ttl: ttl, prefix: "assistant:inflight:"}
}

// Acquire implements InFlightGuard with SET NX PX
func (g *RedisInFlightGuard) Acquire(ctx context.Context, userID uuid.UUID) (func(), error) {
	key := g.prefix + userID.String()
	token := uuid.NewString()

	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire in-flight lock: %w", err)
	}
	if !ok {
		return nil, ErrCommandInFlight
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, g.client, []string{key}, token).Err()
		})
	}, nil
}
