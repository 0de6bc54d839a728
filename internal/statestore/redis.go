package statestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/matchlog/matchlog/internal/combatlog"
	"github.com/matchlog/matchlog/internal/logging"
)

// RedisStore reads parse state from a redis key per partition.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *logging.Logger
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, url, password string, db int, keyPrefix string, logger *logging.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	if db != 0 {
		opts.DB = db
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.With("component", "statestore"),
	}, nil
}

func (s *RedisStore) Get(ctx context.Context, partitionID string) (*combatlog.ParseState, error) {
	data, err := s.client.Get(ctx, s.keyPrefix+partitionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("failed to fetch parse state for %s: %w", partitionID, err)
	}
	return decodeState(partitionID, data)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
