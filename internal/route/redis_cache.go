package route

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-pooling/internal/models"
)

// RedisCache shares route results between processes.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, prefix: prefix + ":route:", ttl: ttl, logger: logger}
}

func (r *RedisCache) Get(ctx context.Context, key string) (models.RouteResult, bool) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.RouteResult{}, false
	}
	if err != nil {
		r.logger.Warn("route cache get failed", "error", err)
		return models.RouteResult{}, false
	}
	var v models.RouteResult
	if err := json.Unmarshal(raw, &v); err != nil {
		return models.RouteResult{}, false
	}
	return v, true
}

func (r *RedisCache) Set(ctx context.Context, key string, v models.RouteResult) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, r.prefix+key, b, r.ttl).Err(); err != nil {
		r.logger.Warn("route cache set failed", "error", err)
	}
}
