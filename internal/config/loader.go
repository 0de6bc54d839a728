package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/matchlog/matchlog/internal/utils"
)

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default config locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/matchlog")
	}

	setDefaults(v)

	// Enable environment variable overrides
	v.SetEnvPrefix("MATCHLOG")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; use defaults
			return parseConfig(v)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return parseConfig(v)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.node_id", "matchlog-default-node")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")

	v.SetDefault("queue.type", "nats")
	v.SetDefault("queue.url", "nats://localhost:4222")
	v.SetDefault("queue.redis_stream", "matchlog")
	v.SetDefault("queue.redis_group", "matchlog-group")

	v.SetDefault("state_store.type", "redis")
	v.SetDefault("state_store.url", "redis://localhost:6379")
	v.SetDefault("state_store.endpoints", []string{"http://localhost:2379"})
	v.SetDefault("state_store.key_prefix", "combatlog:state:")

	v.SetDefault("object_store.backend", "fs")
	v.SetDefault("object_store.data_dir", "./data")
	v.SetDefault("object_store.bucket", "combatlog")

	v.SetDefault("database.path", "./data/reports.duckdb")

	v.SetDefault("ingest.subject", "combatlog.ingest")
	v.SetDefault("ingest.state_cache_size", utils.ParseStateCacheSize)

	v.SetDefault("compiler.subject", "combatlog.objects.created")
	v.SetDefault("compiler.downstream_subject", "combatlog.reports.ready")
	v.SetDefault("compiler.work_dir", "./work")
}

// parseConfig unmarshals viper values into the Config struct
func parseConfig(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
