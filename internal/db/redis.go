package db

import (
	"context"
	"time"

	"ecomap/internal/config"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 3 * time.Second

var pingRedisFn = func(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// ConnectRedis returns nil when no address is configured; the stream hub then
// fans out to local renderers only.
func ConnectRedis(cfg config.Config) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := pingRedisFn(ctx, client); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis %s", cfg.RedisAddr)
	}
	return client, nil
}
