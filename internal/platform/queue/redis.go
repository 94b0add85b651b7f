package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"noteflow/internal/platform/config"
	"noteflow/internal/platform/logger"
)

var RDB *redis.Client

// ConnectRedis opens the shared client and verifies it with PING.
func ConnectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not connect to Redis at %s: %w", cfg.RedisAddr, err)
	}
	logger.Component("queue").WithField("addr", cfg.RedisAddr).Info("Successfully connected to Redis")
	RDB = rdb
	return rdb, nil
}

func CloseRedis() {
	if RDB != nil {
		RDB.Close()
		logger.Component("queue").Info("Redis connection closed.")
	}
}
