package platform

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	Redis *redis.Client
)

// InitRedis connects to redis when REDIS_ADDR is set. Redis is optional; it
// only backs the chat rate limiter, so the server runs without it.
func InitRedis() {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		Logger.Warnf("[init] redis unreachable at %s, rate limiting disabled: %s", addr, err)
		return
	}
	Redis = client
}
