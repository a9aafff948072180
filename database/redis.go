package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis returns a client for url, or nil when Redis is not configured
// or unreachable. Callers treat nil as "run without Redis".
func ConnectRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		slog.Warn("Redis not configured, running without settlement duplicate guard")
		return nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		slog.Warn("Invalid REDIS_URL, running without Redis", "error", err)
		return nil
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("Redis not available, running without Redis", "error", err)
		_ = client.Close()
		return nil
	}

	slog.Info("Redis connected", "addr", opts.Addr)
	return client
}
