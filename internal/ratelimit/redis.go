package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultPrefix       = "humanqa:rl:"
	defaultRedisTimeout = 250 * time.Millisecond
)

var windowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisLimiterConfig configures a RedisLimiter.
type RedisLimiterConfig struct {
	Client  *redis.Client
	Window  time.Duration
	Prefix  string
	Timeout time.Duration
	Clock   func() time.Time
	Logger  *zap.Logger
}

// RedisLimiter shares fixed-window counters across instances through Redis. When
// Redis is unreachable or answers unexpectedly, it counts in process memory instead.
type RedisLimiter struct {
	client   *redis.Client
	window   time.Duration
	prefix   string
	timeout  time.Duration
	clock    func() time.Time
	fallback *InMemoryLimiter
	logger   *zap.Logger
}

// NewRedis constructs a RedisLimiter with an in-memory fallback.
func NewRedis(cfg RedisLimiterConfig) *RedisLimiter {
	window := cfg.Window
	if window <= 0 {
		window = defaultWindow
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLimiter{
		client:   cfg.Client,
		window:   window,
		prefix:   prefix,
		timeout:  timeout,
		clock:    clock,
		fallback: NewInMemory(window, clock),
		logger:   logger,
	}
}

// Allow counts one attempt for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int) Decision {
	if limit <= 0 {
		limit = 1
	}
	if l.client == nil {
		return l.fallback.Allow(ctx, key, limit)
	}

	scriptCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	result, err := windowScript.Run(scriptCtx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Result()
	if err != nil {
		l.logger.Warn("rate limiter falling back to memory", zap.String("reason", "redis_failed"), zap.Error(err))
		return l.fallback.Allow(ctx, key, limit)
	}
	values, ok := result.([]interface{})
	if !ok || len(values) < 2 {
		l.logger.Warn("rate limiter falling back to memory", zap.String("reason", "unexpected_script_result"))
		return l.fallback.Allow(ctx, key, limit)
	}
	count, _ := values[0].(int64)
	ttlMillis, _ := values[1].(int64)
	if ttlMillis < 0 {
		ttlMillis = l.window.Milliseconds()
	}
	return decide(int(count), limit, l.clock().UTC().Add(time.Duration(ttlMillis)*time.Millisecond))
}
