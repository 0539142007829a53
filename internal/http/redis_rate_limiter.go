package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisRateLimitPrefix = "deploy-center:ratelimit:"
	redisRateLimitTimeout = 250 * time.Millisecond
)

type redisRateLimiter struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisRateLimiter shares rate windows between API replicas through Redis.
func NewRedisRateLimiter(ctx context.Context, addr, password string, db int, logger *slog.Logger) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return &redisRateLimiter{client: client, logger: logger.With("component", "rate_limiter")}, nil
}

// Allow counts the hit and fails open when Redis does not answer in time.
func (rl *redisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return allowAll()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), redisRateLimitTimeout)
	defer cancel()

	k := redisRateLimitPrefix + key
	var (
		hits *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		hits = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, window)
		ttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		rl.logger.Error("rate limit check failed, allowing request", "key", key, "error", err)
		return allowAll()
	}
	left := ttl.Val()
	if left <= 0 {
		left = window
	}
	return decide(int(hits.Val()), limit, time.Now().Add(left))
}

func (rl *redisRateLimiter) Close() {
	_ = rl.client.Close()
}
