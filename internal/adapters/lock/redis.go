// Package lock implements the per-level run guard on Redis so that several
// service instances never run the same level at once.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/okian/voeux/internal/domain/inflight"
	"github.com/okian/voeux/internal/domain/model"
	"github.com/okian/voeux/pkg/logger"
	"github.com/okian/voeux/pkg/metrics"
)

const (
	defaultKeyPrefix = "voeux:lock:run:"
	defaultTTL       = 10 * time.Minute
	backendName      = "redis"
)

// ErrLockConnection is returned when Redis cannot be reached.
var ErrLockConnection = errors.New("lock: redis connection failed")

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Client is the subset of the go-redis API the guard needs.
type Client interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// Option applies a configuration option to the RedisGuard.
type Option func(*RedisGuard)

// WithTTL bounds how long a crashed holder can block a level.
func WithTTL(ttl time.Duration) Option {
	return func(g *RedisGuard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithKeyPrefix namespaces the lock keys.
func WithKeyPrefix(prefix string) Option {
	return func(g *RedisGuard) {
		if prefix != "" {
			g.prefix = prefix
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(g *RedisGuard) {
		if l != nil {
			g.log = l
		}
	}
}

// RedisGuard is an inflight.Guard shared by every instance using the same
// Redis database.
type RedisGuard struct {
	client Client
	ttl    time.Duration
	prefix string
	log    logger.Logger

	mu     sync.Mutex
	tokens map[model.Level]string
	size   atomic.Int64
}

var _ inflight.Guard = (*RedisGuard)(nil)

// NewRedisGuard creates a guard on an existing client.
func NewRedisGuard(client Client, opts ...Option) *RedisGuard {
	g := &RedisGuard{
		client: client,
		ttl:    defaultTTL,
		prefix: defaultKeyPrefix,
		log:    logger.Nop(),
		tokens: make(map[model.Level]string),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrLockConnection, err)
	}
	return client, nil
}

// Key returns the Redis key guarding a level.
func (g *RedisGuard) Key(level model.Level) string {
	return g.prefix + string(level)
}

func (g *RedisGuard) TryAcquire(ctx context.Context, level model.Level) (bool, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency(backendName, "acquire", float64(time.Since(start).Milliseconds()))
	}()

	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, g.Key(level), token, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", level, err)
	}
	if !ok {
		return false, nil
	}

	g.mu.Lock()
	g.tokens[level] = token
	g.mu.Unlock()
	g.size.Add(1)
	return true, nil
}

func (g *RedisGuard) Release(ctx context.Context, level model.Level) error {
	g.mu.Lock()
	token, held := g.tokens[level]
	delete(g.tokens, level)
	g.mu.Unlock()
	if !held {
		return nil
	}
	g.size.Add(-1)

	start := time.Now()
	deleted, err := releaseScript.Run(ctx, g.client, []string{g.Key(level)}, token).Int()
	metrics.RecordStoreLatency(backendName, "release", float64(time.Since(start).Milliseconds()))
	if err != nil {
		return fmt.Errorf("release %s: %w", level, err)
	}
	if deleted == 0 {
		g.log.Warn(ctx, "run lock expired before release", logger.String("level", string(level)), logger.Duration("ttl", g.ttl))
	}
	return nil
}

func (g *RedisGuard) Size() int64 {
	return g.size.Load()
}
