// Package statestore reads durable per-partition parse state. The state is
// written by the upload frontend when a client starts a log session; this
// pipeline only ever reads it, keyed by partition identifier.
package statestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/matchlog/matchlog/internal/combatlog"
)

// ErrStateNotFound reports that no parse state exists for a partition.
var ErrStateNotFound = errors.New("parse state not found")

// Store fetches parse state for a partition.
type Store interface {
	// Get returns the parse state for the partition, or ErrStateNotFound.
	Get(ctx context.Context, partitionID string) (*combatlog.ParseState, error)

	// Close releases backend resources.
	Close() error
}

// IsNotFound reports whether err means the partition has no stored state.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStateNotFound)
}

func decodeState(partitionID string, data []byte) (*combatlog.ParseState, error) {
	state, err := combatlog.DecodeParseState(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode parse state for %s: %w", partitionID, err)
	}
	if state.PartitionID == "" {
		state.PartitionID = partitionID
	}
	return state, nil
}
