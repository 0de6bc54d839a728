package objstore

import (
	"fmt"

	"github.com/matchlog/matchlog/internal/config"
	"github.com/matchlog/matchlog/internal/logging"
)

// NewStore creates an object store from configuration.
func NewStore(cfg config.ObjectStoreConfig, logger *logging.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "fs":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("object_store.data_dir is required for the fs backend")
		}
		return NewFilesystemStore(cfg.DataDir, logger)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown object store backend: %s", cfg.Backend)
	}
}
