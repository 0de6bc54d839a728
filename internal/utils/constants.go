package utils

import "time"

// =============================================================================
// Ingest Constants
// =============================================================================

const (
	// ParseStateCacheSize is the capacity of the per-partition parse state LRU cache
	ParseStateCacheSize = 32

	// StateFetchTimeout is the timeout for fetching parse state from the durable store
	StateFetchTimeout = 5 * time.Second
)

// =============================================================================
// Retry and Backoff Constants
// =============================================================================

const (
	// DefaultMaxRetries is the default number of retry attempts for storage uploads
	DefaultMaxRetries = 5

	// DefaultRetryBackoff is the base backoff duration between retries
	DefaultRetryBackoff = 100 * time.Millisecond

	// MaxRetryBackoff is the maximum backoff duration
	MaxRetryBackoff = 5 * time.Second

	// RetryJitter is the maximum random jitter added to each backoff step
	RetryJitter = time.Second
)

// =============================================================================
// Storage Constants
// =============================================================================

const (
	// MaxDeleteBatch is the per-call object count limit of the deletion API
	MaxDeleteBatch = 1000
)

// =============================================================================
// Queue Type Constants
// =============================================================================

// QueueType represents the type of message queue
type QueueType string

const (
	// QueueTypeNATS represents a NATS queue (default)
	QueueTypeNATS QueueType = "nats"

	// QueueTypeRedis represents a Redis Streams queue
	QueueTypeRedis QueueType = "redis"

	// QueueTypeKafka represents an Apache Kafka queue
	QueueTypeKafka QueueType = "kafka"

	// QueueTypeMemory represents an in-memory queue (for testing)
	QueueTypeMemory QueueType = "memory"
)

// StateStoreType represents the backend holding per-partition parse state
type StateStoreType string

const (
	// StateStoreRedis reads parse state blobs from Redis
	StateStoreRedis StateStoreType = "redis"

	// StateStoreEtcd reads parse state blobs from etcd
	StateStoreEtcd StateStoreType = "etcd"

	// StateStoreMemory holds parse state in memory (for testing)
	StateStoreMemory StateStoreType = "memory"
)
