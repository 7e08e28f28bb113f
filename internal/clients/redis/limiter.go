package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/stageroom/stageroom-backend/internal/logger"
)

// Limiter backs the render quota counters and the per-session request rate
// limit with atomic redis counters.
type Limiter interface {
	// Allow counts one request against the fixed window for key and reports
	// whether it stays within limit.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// QuotaUsed returns the counter value for the given quota key.
	QuotaUsed(ctx context.Context, key string) (int64, error)
	// QuotaIncr bumps the quota counter atomically and sets the period expiry
	// on first use.
	QuotaIncr(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error)
	Close() error
}

type redisLimiter struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewLimiter(log *logger.Logger) (Limiter, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisLimiter{
		log: log.With("client", "RedisLimiter"),
		rdb: rdb,
	}, nil
}

func (l *redisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("rate incr: %w", err)
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, key, window).Err(); err != nil {
			l.log.Warn("failed to set rate window expiry", "key", key, "error", err)
		}
	}
	return n <= int64(limit), nil
}

func (l *redisLimiter) QuotaUsed(ctx context.Context, key string) (int64, error) {
	n, err := l.rdb.Get(ctx, key).Int64()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota get: %w", err)
	}
	return n, nil
}

func (l *redisLimiter) QuotaIncr(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error) {
	n, err := l.rdb.IncrBy(ctx, key, amount).Result()
	if err != nil {
		return 0, fmt.Errorf("quota incr: %w", err)
	}
	if n == amount {
		if err := l.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			l.log.Warn("failed to set quota period expiry", "key", key, "error", err)
		}
	}
	return n, nil
}

func (l *redisLimiter) Close() error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return l.rdb.Close()
}
