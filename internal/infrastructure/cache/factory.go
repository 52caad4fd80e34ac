package cache

import (
	"go.uber.org/zap"

	"github.com/milkvine/backoffice/internal/application/settlement"
	"github.com/milkvine/backoffice/internal/infrastructure/config"
)

// NewIdempotencyStore picks a store implementation from configuration:
// Redis when enabled (shared across instances), in-memory otherwise.
// When the Redis connection fails the in-memory store is used so a cache
// outage does not take settlement down with it.
func NewIdempotencyStore(cfg config.RedisConfig, logger *zap.Logger) settlement.IdempotencyStore {
	if !cfg.Enabled {
		return NewInMemoryIdempotencyStore()
	}

	store, err := NewRedisIdempotencyStore(cfg)
	if err != nil {
		logger.Warn("redis unavailable, falling back to in-memory idempotency store",
			zap.String("addr", cfg.Addr()),
			zap.Error(err),
		)
		return NewInMemoryIdempotencyStore()
	}
	return store
}

var (
	_ settlement.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
	_ settlement.IdempotencyStore = (*RedisIdempotencyStore)(nil)
)
