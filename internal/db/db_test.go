package db

import (
	"context"
	"testing"

	"ecomap/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestConnectRedisEmpty(t *testing.T) {
	client, err := ConnectRedis(config.Config{RedisAddr: ""})
	if err != nil || client != nil {
		t.Fatalf("expected nil client and no error when addr empty")
	}
}

func TestConnectRedisConfigured(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := ConnectRedis(config.Config{RedisAddr: mr.Addr()})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if client == nil {
		t.Fatalf("expected redis client")
	}
	_ = client.Close()
}

func TestConnectRedisPingError(t *testing.T) {
	oldPing := pingRedisFn
	defer func() { pingRedisFn = oldPing }()
	pingRedisFn = func(context.Context, *redis.Client) error { return context.DeadlineExceeded }

	client, err := ConnectRedis(config.Config{RedisAddr: "localhost:1"})
	if err == nil {
		t.Fatalf("expected ping error")
	}
	if client != nil {
		t.Fatalf("expected nil client on ping failure")
	}
}
