package redis

import (
	"context"

	"github.com/leafsii/relkv/pkg/kv"
)

func init() {
	kv.RegisterBackend(kv.BackendRedis, func(ctx context.Context, cfg kv.Config) (kv.Store, error) {
		return New(ctx, cfg)
	})
}

// NewStore creates a new Redis-backed store from a URL with default settings
func NewStore(ctx context.Context, redisURL string) (kv.Store, error) {
	return New(ctx, kv.Config{Backend: kv.BackendRedis, RedisURL: redisURL})
}
