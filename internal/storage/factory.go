// Package storage selects the persistent tier of the result cache.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/bobmcallan/screener/internal/common"
	"github.com/bobmcallan/screener/internal/interfaces"
	"github.com/bobmcallan/screener/internal/storage/redisstore"
	"github.com/bobmcallan/screener/internal/storage/surrealdb"
)

// Backend type constants.
const (
	BackendRedis     = "redis"
	BackendSurrealDB = "surrealdb"
	BackendMemory    = "memory"
)

// NewCacheBackend creates the persistent cache tier named by the configuration.
// Supported backends: "redis" (default), "surrealdb", "memory".
// The memory backend returns a nil backend and the cache runs in-process only.
//
// Neither persistent backend fails here when its server is unreachable: both
// connect lazily and the cache's health probe brings them into use later.
func NewCacheBackend(ctx context.Context, config *common.Config, logger *common.Logger) (interfaces.CacheBackend, error) {
	backend := strings.ToLower(strings.TrimSpace(config.Cache.Backend))
	if backend == "" {
		backend = BackendRedis
	}

	switch backend {
	case BackendRedis:
		logger.Info().Str("addr", config.Redis.Addr).Msg("Using Redis cache backend")
		return redisstore.NewStore(config.Redis, logger), nil

	case BackendSurrealDB:
		logger.Info().Str("address", config.Storage.Address).Msg("Using SurrealDB cache backend")
		return surrealdb.Open(ctx, config.Storage, logger), nil

	case BackendMemory:
		logger.Info().Msg("Using in-process cache only")
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown cache backend: %s (supported: redis, surrealdb, memory)", backend)
	}
}
