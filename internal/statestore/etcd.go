package statestore

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/matchlog/matchlog/internal/combatlog"
	"github.com/matchlog/matchlog/internal/logging"
)

// EtcdStore reads parse state from an etcd key per partition.
type EtcdStore struct {
	client    *clientv3.Client
	keyPrefix string
	logger    *logging.Logger
}

// NewEtcdStore connects to the etcd cluster.
func NewEtcdStore(endpoints []string, keyPrefix string, logger *logging.Logger) (*EtcdStore, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	return &EtcdStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.With("component", "statestore"),
	}, nil
}

func (s *EtcdStore) Get(ctx context.Context, partitionID string) (*combatlog.ParseState, error) {
	resp, err := s.client.Get(ctx, s.keyPrefix+partitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch parse state for %s: %w", partitionID, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, ErrStateNotFound
	}
	return decodeState(partitionID, resp.Kvs[0].Value)
}

func (s *EtcdStore) Close() error {
	return s.client.Close()
}
