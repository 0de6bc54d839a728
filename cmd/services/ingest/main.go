package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matchlog/matchlog/internal/config"
	"github.com/matchlog/matchlog/internal/ingest"
	"github.com/matchlog/matchlog/internal/logging"
	"github.com/matchlog/matchlog/internal/objstore"
	"github.com/matchlog/matchlog/internal/queue"
	"github.com/matchlog/matchlog/internal/statestore"
)

var (
	Version   = "dev"     // Injected via ldflags during build
	GitCommit = "unknown" // Injected via ldflags during build
	BuildTime = "unknown" // Injected via ldflags during build
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Ingest service starting...",
		"version", Version, "commit", GitCommit, "build time", BuildTime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Connect the parse state store
	states, err := statestore.NewStore(ctx, cfg.StateStore, logger)
	if err != nil {
		logger.Fatal("Failed to connect state store", "error", err)
	}
	defer func() { _ = states.Close() }()

	// 4. Open cold storage
	store, err := objstore.NewStore(cfg.ObjectStore, logger)
	if err != nil {
		logger.Fatal("Failed to open object store", "error", err)
	}
	defer func() { _ = store.Close() }()

	// 5. Connect the queue; the same connection consumes envelopes and
	// publishes compilation triggers
	q, err := queue.NewQueue(cfg.Queue)
	if err != nil {
		logger.Fatal("Failed to connect queue", "error", err)
	}
	defer func() { _ = q.Close() }()

	// 6. Build the sink and start consuming
	sink := ingest.NewSink(
		store,
		states,
		q,
		cfg.ObjectStore.Bucket,
		cfg.Compiler.Subject,
		cfg.Ingest.StateCacheSize,
		logger,
	)

	if err := q.Subscribe(cfg.Ingest.Subject, func(data []byte) error {
		return sink.HandleEnvelope(ctx, data)
	}); err != nil {
		logger.Fatal("Failed to subscribe", "subject", cfg.Ingest.Subject, "error", err)
	}

	logger.Info("Ingest service started successfully",
		"node_id", cfg.Server.NodeID,
		"subject", cfg.Ingest.Subject,
		"trigger_subject", cfg.Compiler.Subject,
		"bucket", cfg.ObjectStore.Bucket,
		"queue_type", cfg.Queue.Type,
	)

	waitForShutdown(logger, cancel)
	_ = q.Unsubscribe(cfg.Ingest.Subject)

	logger.Info("Ingest service stopped")
}

// waitForShutdown waits for interrupt signal and triggers graceful shutdown
func waitForShutdown(logger *logging.Logger, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig.String())
	cancel()

	// Give in-flight envelopes time to settle
	time.Sleep(2 * time.Second)
}
