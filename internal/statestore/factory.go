package statestore

import (
	"context"
	"fmt"

	"github.com/matchlog/matchlog/internal/config"
	"github.com/matchlog/matchlog/internal/logging"
	"github.com/matchlog/matchlog/internal/utils"
)

// NewStore creates a parse state store from configuration.
func NewStore(ctx context.Context, cfg config.StateStoreConfig, logger *logging.Logger) (Store, error) {
	switch utils.StateStoreType(cfg.Type) {
	case "", utils.StateStoreRedis:
		return NewRedisStore(ctx, cfg.URL, cfg.Password, cfg.DB, cfg.KeyPrefix, logger)
	case utils.StateStoreEtcd:
		return NewEtcdStore(cfg.Endpoints, cfg.KeyPrefix, logger)
	case utils.StateStoreMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown state store type: %s", cfg.Type)
	}
}
