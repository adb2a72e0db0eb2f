package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ledgerly/backend/internal/domain/shared"
	"github.com/ledgerly/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient connects to Redis and verifies the connection with PING
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

// NewIdempotencyStore builds the store named by cfg.Driver. The redis driver
// requires client; with a nil client it falls back to memory and logs a warning.
func NewIdempotencyStore(cfg config.IdempotencyConfig, client redis.UniversalClient, logger *zap.Logger) (shared.IdempotencyStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		logger.Info("Using in-memory idempotency store")
		return NewInMemoryIdempotencyStore(0), nil
	case "redis":
		if client == nil {
			logger.Warn("Redis unavailable, falling back to in-memory idempotency store. " +
				"Replayed payments may be recorded twice across instances.")
			return NewInMemoryIdempotencyStore(0), nil
		}
		logger.Info("Using Redis idempotency store")
		return NewRedisIdempotencyStore(client, ""), nil
	default:
		return nil, fmt.Errorf("unknown idempotency driver %q", cfg.Driver)
	}
}
