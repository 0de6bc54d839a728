// Package merge stitches a partition's cold-storage shards back into one
// stream. Shards are concatenated oldest first by object modification time;
// a consolidated object produced by an earlier merge sorts into place the
// same way and simply replaces the shards it swallowed.
package merge

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/matchlog/matchlog/internal/combatlog"
	"github.com/matchlog/matchlog/internal/logging"
	"github.com/matchlog/matchlog/internal/objstore"
	"github.com/matchlog/matchlog/internal/utils"
)

// Merger merges shards out of one bucket.
type Merger struct {
	store  objstore.Store
	logger *logging.Logger
}

// NewMerger creates a merger over the store.
func NewMerger(store objstore.Store, logger *logging.Logger) *Merger {
	return &Merger{
		store:  store,
		logger: logger.With("component", "merge"),
	}
}

func shardPrefix(form combatlog.Form, partitionID string) string {
	return fmt.Sprintf("form=%s/partition=%s/", form, partitionID)
}

// Merge concatenates the partition's shards of the given form, decompressed,
// into a temp file in workDir and returns it positioned at the start. The
// caller owns the file. With consolidate, the merged stream is also written
// back as a single object and the source shards are deleted; a failed delete
// only logs, leaving redundant but harmless shards behind.
func (m *Merger) Merge(ctx context.Context, bucket string, form combatlog.Form, partitionID, workDir string, consolidate bool) (*os.File, error) {
	prefix := shardPrefix(form, partitionID)
	objects, err := m.store.List(ctx, bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list shards %s: %w", prefix, err)
	}

	// An object with no modification time sorts as newest rather than
	// oldest, matching how a shard still being settled should be treated.
	now := time.Now().UTC()
	sort.SliceStable(objects, func(i, j int) bool {
		ti, tj := objects[i].LastModified, objects[j].LastModified
		if ti.IsZero() {
			ti = now
		}
		if tj.IsZero() {
			tj = now
		}
		return ti.Before(tj)
	})

	out, err := os.CreateTemp(workDir, "merged-*.ndjson")
	if err != nil {
		return nil, fmt.Errorf("failed to create merge output: %w", err)
	}
	cleanup := func() {
		out.Close()
		os.Remove(out.Name())
	}

	for _, obj := range objects {
		if err := m.appendShard(ctx, bucket, obj.Key, out); err != nil {
			cleanup()
			return nil, err
		}
	}

	if consolidate && len(objects) > 1 {
		if err := m.consolidate(ctx, bucket, form, partitionID, out, objects); err != nil {
			cleanup()
			return nil, err
		}
	}

	if _, err := out.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to rewind merge output: %w", err)
	}
	return out, nil
}

func (m *Merger) appendShard(ctx context.Context, bucket, key string, out *os.File) error {
	rc, err := m.store.Get(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("failed to fetch shard %s: %w", key, err)
	}
	defer rc.Close()

	gz, err := gzip.NewReader(rc)
	if err != nil {
		return fmt.Errorf("failed to open shard %s: %w", key, err)
	}
	defer gz.Close()

	if _, err := io.Copy(out, gz); err != nil {
		return fmt.Errorf("failed to copy shard %s: %w", key, err)
	}
	return nil
}

// consolidate writes the merged stream back as one object and prunes the
// shards it replaces.
func (m *Merger) consolidate(ctx context.Context, bucket string, form combatlog.Form, partitionID string, merged *os.File, sources []objstore.ObjectInfo) error {
	if _, err := merged.Seek(0, io.SeekStart); err != nil {
		return err
	}

	pr, pw := io.Pipe()
	go func() {
		gz := gzip.NewWriter(pw)
		if _, err := io.Copy(gz, merged); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(gz.Close())
	}()

	key := fmt.Sprintf("%scompleted_merged_%d.gz", shardPrefix(form, partitionID), time.Now().UnixMilli())
	if err := m.store.Put(ctx, bucket, key, pr); err != nil {
		return fmt.Errorf("failed to write consolidated object %s: %w", key, err)
	}

	keys := make([]string, 0, len(sources))
	for _, obj := range sources {
		keys = append(keys, obj.Key)
	}
	for start := 0; start < len(keys); start += utils.MaxDeleteBatch {
		end := start + utils.MaxDeleteBatch
		if end > len(keys) {
			end = len(keys)
		}
		if err := m.store.DeleteBatch(ctx, bucket, keys[start:end]); err != nil {
			m.logger.Warn("Failed to prune merged shards", "partition", partitionID, "error", err)
			break
		}
	}

	m.logger.Info("Consolidated shards",
		"partition", partitionID, "form", string(form), "shards", len(sources), "key", key)
	return nil
}
