package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matchlog/matchlog/internal/compiler"
	"github.com/matchlog/matchlog/internal/config"
	"github.com/matchlog/matchlog/internal/database"
	"github.com/matchlog/matchlog/internal/logging"
	"github.com/matchlog/matchlog/internal/objstore"
	"github.com/matchlog/matchlog/internal/queue"
)

var (
	Version   = "dev"     // Injected via ldflags during build
	GitCommit = "unknown" // Injected via ldflags during build
	BuildTime = "unknown" // Injected via ldflags during build
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	bucket := flag.String("bucket", "", "Compile one object and exit: bucket name")
	object := flag.String("object", "", "Compile one object and exit: flush object key")
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

	logger.Info("Compiler service starting...",
		"version", Version, "commit", GitCommit, "build time", BuildTime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Open cold storage
	store, err := objstore.NewStore(cfg.ObjectStore, logger)
	if err != nil {
		logger.Fatal("Failed to open object store", "error", err)
	}
	defer func() { _ = store.Close() }()

	// 4. Open the report database
	db, err := database.Open(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal("Failed to open report database", "error", err)
	}
	defer func() { _ = db.Close() }()

	if err := os.MkdirAll(cfg.Compiler.WorkDir, 0o755); err != nil {
		logger.Fatal("Failed to create work dir", "path", cfg.Compiler.WorkDir, "error", err)
	}

	// Direct mode: compile a single flush object without touching the queue.
	if *object != "" {
		b := *bucket
		if b == "" {
			b = cfg.ObjectStore.Bucket
		}
		svc := compiler.NewService(store, db, nil, "", cfg.Compiler.WorkDir, logger)
		if err := svc.Compile(ctx, b, *object); err != nil {
			logger.Fatal("Compilation failed", "bucket", b, "key", *object, "error", err)
		}
		logger.Info("Compilation finished", "bucket", b, "key", *object)
		return
	}

	// 5. Connect the queue for triggers in and report notices out
	q, err := queue.NewQueue(cfg.Queue)
	if err != nil {
		logger.Fatal("Failed to connect queue", "error", err)
	}
	defer func() { _ = q.Close() }()

	svc := compiler.NewService(store, db, q, cfg.Compiler.DownstreamSubject, cfg.Compiler.WorkDir, logger)

	if err := q.Subscribe(cfg.Compiler.Subject, func(data []byte) error {
		return svc.HandleTrigger(ctx, data)
	}); err != nil {
		logger.Fatal("Failed to subscribe", "subject", cfg.Compiler.Subject, "error", err)
	}

	logger.Info("Compiler service started successfully",
		"node_id", cfg.Server.NodeID,
		"subject", cfg.Compiler.Subject,
		"downstream_subject", cfg.Compiler.DownstreamSubject,
		"database", cfg.Database.Path,
		"queue_type", cfg.Queue.Type,
	)

	waitForShutdown(logger, cancel)
	_ = q.Unsubscribe(cfg.Compiler.Subject)

	logger.Info("Compiler service stopped")
}

// waitForShutdown waits for interrupt signal and triggers graceful shutdown
func waitForShutdown(logger *logging.Logger, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig.String())
	cancel()

	// Give the in-flight compilation time to settle
	time.Sleep(2 * time.Second)
}
