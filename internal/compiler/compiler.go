// Package compiler turns a flushed partition into its reports. A trigger
// names the Flush object; the compiler merges the partition's Parsed stream,
// replays it through the game's report container, uploads the static
// artifacts, commits the dynamic rows in one transaction and finally
// announces the finished reports downstream.
package compiler

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	json "github.com/goccy/go-json"

	"github.com/matchlog/matchlog/internal/combatlog"
	"github.com/matchlog/matchlog/internal/database"
	"github.com/matchlog/matchlog/internal/ingest"
	"github.com/matchlog/matchlog/internal/logging"
	"github.com/matchlog/matchlog/internal/merge"
	"github.com/matchlog/matchlog/internal/objstore"
	"github.com/matchlog/matchlog/internal/queue"
	"github.com/matchlog/matchlog/internal/reports"
	hsreports "github.com/matchlog/matchlog/internal/reports/hs"
	wowreports "github.com/matchlog/matchlog/internal/reports/wow"
	"github.com/matchlog/matchlog/internal/utils"
)

var (
	keyRe       = regexp.MustCompile(`form=(?P<form>.*)/partition=(?P<partition>.*)/`)
	partitionRe = regexp.MustCompile(`(?P<game>.*)_(?P<id>.*)`)
)

// BadRequestError marks a trigger that can never succeed, so redelivering it
// is pointless.
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string { return e.Message }

func badRequestf(format string, args ...interface{}) error {
	return &BadRequestError{Message: fmt.Sprintf(format, args...)}
}

// IsBadRequest reports whether err is a BadRequestError.
func IsBadRequest(err error) bool {
	var bad *BadRequestError
	return errors.As(err, &bad)
}

// ReportsReady is the downstream notification for one compiled partition.
type ReportsReady struct {
	Bucket      string   `json:"bucket"`
	PartitionID string   `json:"partitionId"`
	Reports     []string `json:"reports"`
}

// Service compiles flushed partitions.
type Service struct {
	store             objstore.Store
	merger            *merge.Merger
	db                *database.DB
	publisher         queue.Publisher
	downstreamSubject string
	workDir           string
	maxRetries        int
	logger            *logging.Logger
}

// NewService creates the compiler. publisher may be nil when running in
// direct mode from the command line.
func NewService(store objstore.Store, db *database.DB, publisher queue.Publisher, downstreamSubject, workDir string, logger *logging.Logger) *Service {
	return &Service{
		store:             store,
		merger:            merge.NewMerger(store, logger),
		db:                db,
		publisher:         publisher,
		downstreamSubject: downstreamSubject,
		workDir:           workDir,
		maxRetries:        utils.DefaultMaxRetries,
		logger:            logger.With("component", "compiler"),
	}
}

// HandleTrigger processes one object-created notification. Malformed or
// non-Flush triggers are dropped rather than redelivered.
func (s *Service) HandleTrigger(ctx context.Context, data []byte) error {
	var trigger ingest.ObjectCreated
	if err := json.Unmarshal(data, &trigger); err != nil {
		s.logger.Error("Dropping undecodable trigger", "error", err)
		return nil
	}

	if err := s.Compile(ctx, trigger.Bucket, trigger.Key); err != nil {
		if IsBadRequest(err) {
			s.logger.Error("Dropping uncompilable trigger", "key", trigger.Key, "error", err)
			return nil
		}
		return err
	}
	return nil
}

// Compile runs the full pipeline for the partition named by the Flush
// object key.
func (s *Service) Compile(ctx context.Context, bucket, key string) error {
	form, partitionID, err := parseKey(key)
	if err != nil {
		return err
	}
	if form != combatlog.FormFlush {
		return badRequestf("key %s names a %s object, only Flush objects trigger compilation", key, form)
	}

	game, _, err := combatlog.SplitPartition(partitionID)
	if err != nil {
		return badRequestf("key %s: %v", key, err)
	}

	workDir, err := os.MkdirTemp(s.workDir, "compile-*")
	if err != nil {
		return fmt.Errorf("failed to create compile work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	started := time.Now()
	s.logger.Info("Compiling partition", "partition", partitionID, "game", string(game))

	// Merging with consolidation also collapses the Parsed shards, so a
	// recompilation reads one object instead of many.
	merged, err := s.merger.Merge(ctx, bucket, combatlog.FormParsed, partitionID, workDir, true)
	if err != nil {
		return fmt.Errorf("failed to merge partition %s: %w", partitionID, err)
	}
	defer merged.Close()

	container, err := s.containerFor(game, partitionID, workDir)
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(merged)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := container.HandleLine(line); err != nil {
			return fmt.Errorf("failed to replay partition %s: %w", partitionID, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read merged partition %s: %w", partitionID, err)
	}

	if err := container.Finalize(); err != nil {
		return fmt.Errorf("failed to finalize reports for %s: %w", partitionID, err)
	}

	finished := container.Reports()
	uploaded, err := s.persistReports(ctx, bucket, partitionID, finished)
	if err != nil {
		return err
	}

	// Housekeeping the other forms is best effort; the reports are already
	// durable at this point.
	s.tidyForm(ctx, bucket, combatlog.FormRaw, partitionID, workDir, true)
	s.tidyForm(ctx, bucket, combatlog.FormFlush, partitionID, workDir, false)

	if err := s.announce(ctx, bucket, partitionID, uploaded); err != nil {
		return err
	}

	s.logger.Info("Compiled partition",
		"partition", partitionID, "reports", len(finished), "elapsed", time.Since(started).String())
	return nil
}

func parseKey(key string) (combatlog.Form, string, error) {
	m := keyRe.FindStringSubmatch(key)
	if m == nil {
		return "", "", badRequestf("key %s does not name a partition object", key)
	}
	form, partitionID := combatlog.Form(m[1]), m[2]

	if partitionRe.FindStringSubmatch(partitionID) == nil {
		return "", "", badRequestf("key %s carries a malformed partition", key)
	}
	return form, partitionID, nil
}

func (s *Service) containerFor(game combatlog.Game, partitionID, workDir string) (reports.LineSink, error) {
	switch game {
	case combatlog.GameWow:
		return wowreports.NewContainer(partitionID, workDir, s.logger), nil
	case combatlog.GameHs:
		return hsreports.NewContainer(partitionID, workDir, s.logger), nil
	default:
		return nil, badRequestf("no report set for game %s", game)
	}
}

// persistReports uploads the static artifacts first and then commits every
// dynamic report in a single transaction. Both sides are idempotent, so a
// crash between them is healed by the trigger's redelivery.
func (s *Service) persistReports(ctx context.Context, bucket, partitionID string, finished []reports.Report) ([]string, error) {
	var uploaded []string
	var dynamics []reports.DynamicReport

	for _, rep := range finished {
		switch r := rep.(type) {
		case *reports.StaticReport:
			key := reportKey(partitionID, r)
			if err := s.uploadStatic(ctx, bucket, key, r); err != nil {
				return nil, err
			}
			uploaded = append(uploaded, key)
		case reports.DynamicReport:
			dynamics = append(dynamics, r)
		}
	}

	if len(dynamics) > 0 && s.db != nil {
		if err := s.db.CommitReports(ctx, dynamics); err != nil {
			return nil, err
		}
	}
	return uploaded, nil
}

func reportKey(partitionID string, r *reports.StaticReport) string {
	return fmt.Sprintf("form=Report/partition=%s/canonical=%s/%s", partitionID, r.Canonical(), r.Name())
}

func (s *Service) uploadStatic(ctx context.Context, bucket, key string, r *reports.StaticReport) error {
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(utils.RetryBackoff(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		f, err := r.Open()
		if err != nil {
			return fmt.Errorf("failed to open report %s: %w", key, err)
		}
		lastErr = s.store.Put(ctx, bucket, key, f)
		f.Close()
		if lastErr == nil {
			return nil
		}
		s.logger.Warn("Retrying report upload", "key", key, "attempt", attempt+1, "error", lastErr)
	}
	return fmt.Errorf("failed to upload %s after %d attempts: %w", key, s.maxRetries, lastErr)
}

// tidyForm consolidates a partition's shards of one form. Failures only log.
func (s *Service) tidyForm(ctx context.Context, bucket string, form combatlog.Form, partitionID, workDir string, consolidate bool) {
	merged, err := s.merger.Merge(ctx, bucket, form, partitionID, workDir, consolidate)
	if err != nil {
		s.logger.Warn("Failed to tidy partition form",
			"partition", partitionID, "form", string(form), "error", err)
		return
	}
	merged.Close()
	os.Remove(merged.Name())
}

func (s *Service) announce(ctx context.Context, bucket, partitionID string, uploaded []string) error {
	if s.publisher == nil || s.downstreamSubject == "" {
		return nil
	}

	payload, err := json.Marshal(&ReportsReady{
		Bucket:      bucket,
		PartitionID: partitionID,
		Reports:     uploaded,
	})
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, s.downstreamSubject, payload); err != nil {
		return fmt.Errorf("failed to announce reports for %s: %w", partitionID, err)
	}
	return nil
}
