package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter caps chat turns per caller with a fixed redis window. A redis
// error fails open: chatting must not depend on redis being up.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window}
}

// Allow increments the caller's counter for the current window and reports
// whether the turn may proceed.
func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	now := time.Now()
	windowKey := fmt.Sprintf("ratelimit:chat:%s:%d", key, now.Unix()/int64(rl.window.Seconds()))

	count, err := rl.client.Incr(ctx, windowKey).Result()
	if err != nil {
		logger.Warnf("[ratelimit] redis incr failed, allowing turn: %s", err)
		return true
	}
	if count == 1 {
		rl.client.Expire(ctx, windowKey, rl.window)
	}
	return count <= int64(rl.limit)
}
