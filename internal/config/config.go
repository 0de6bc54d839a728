package config

import (
	"fmt"
)

// Config represents the complete application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Queue       QueueConfig       `mapstructure:"queue"`
	StateStore  StateStoreConfig  `mapstructure:"state_store"`
	ObjectStore ObjectStoreConfig `mapstructure:"object_store"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
	Compiler    CompilerConfig    `mapstructure:"compiler"`
}

// ServerConfig represents per-process identity configuration
type ServerConfig struct {
	NodeID string `mapstructure:"node_id"` // Unique identifier for this service instance
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json (default) or console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// QueueConfig represents message queue configuration
type QueueConfig struct {
	Type     string `mapstructure:"type"`     // Queue type: nats (default), redis, kafka, memory
	URL      string `mapstructure:"url"`      // Queue server URL (e.g., nats://localhost:4222)
	Username string `mapstructure:"username"` // Optional authentication
	Password string `mapstructure:"password"` // Optional authentication

	// Redis-specific options
	RedisDB       int    `mapstructure:"redis_db"`       // Redis database number (default: 0)
	RedisStream   string `mapstructure:"redis_stream"`   // Redis stream prefix (default: "matchlog")
	RedisGroup    string `mapstructure:"redis_group"`    // Redis consumer group (default: "matchlog-group")
	RedisConsumer string `mapstructure:"redis_consumer"` // Redis consumer name (default: hostname)

	// Kafka-specific options
	KafkaBrokers []string `mapstructure:"kafka_brokers"`  // Kafka broker addresses
	KafkaGroupID string   `mapstructure:"kafka_group_id"` // Kafka consumer group (default: "matchlog-group")
}

// StateStoreConfig represents the durable parse state store configuration.
// The store itself is external; this core only reads from it.
type StateStoreConfig struct {
	Type      string   `mapstructure:"type"`      // redis (default), etcd, memory
	URL       string   `mapstructure:"url"`       // Redis URL
	Password  string   `mapstructure:"password"`  // Optional authentication
	DB        int      `mapstructure:"db"`        // Redis database number
	Endpoints []string `mapstructure:"endpoints"` // etcd endpoints
	KeyPrefix string   `mapstructure:"key_prefix"`
}

// ObjectStoreConfig represents cold storage configuration
type ObjectStoreConfig struct {
	Backend string `mapstructure:"backend"`  // fs (default) or memory
	DataDir string `mapstructure:"data_dir"` // Root directory for the fs backend
	Bucket  string `mapstructure:"bucket"`   // Bucket name objects are written under
}

// DatabaseConfig represents the relational store for dynamic reports
type DatabaseConfig struct {
	Path string `mapstructure:"path"` // DuckDB database file path (":memory:" for tests)
}

// IngestConfig represents ingest sink configuration
type IngestConfig struct {
	Subject        string `mapstructure:"subject"`          // Queue subject carrying ingest envelopes
	StateCacheSize int    `mapstructure:"state_cache_size"` // Parse state LRU capacity
}

// CompilerConfig represents report compilation configuration
type CompilerConfig struct {
	Subject           string `mapstructure:"subject"`            // Queue subject carrying object-created triggers
	DownstreamSubject string `mapstructure:"downstream_subject"` // Subject notified when reports are ready
	WorkDir           string `mapstructure:"work_dir"`           // Scratch directory for report generation
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ObjectStore.Bucket == "" {
		return fmt.Errorf("object_store.bucket is required")
	}
	if c.Ingest.StateCacheSize <= 0 {
		return fmt.Errorf("ingest.state_cache_size must be positive")
	}
	if c.Ingest.Subject == "" {
		return fmt.Errorf("ingest.subject is required")
	}
	if c.Compiler.Subject == "" {
		return fmt.Errorf("compiler.subject is required")
	}
	return nil
}
