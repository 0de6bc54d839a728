package merge

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/matchlog/matchlog/internal/combatlog"
	"github.com/matchlog/matchlog/internal/logging"
	"github.com/matchlog/matchlog/internal/objstore"
)

func gzipBytes(t *testing.T, content string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(content)); err != nil {
		t.Fatalf("gzip write error = %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close error = %v", err)
	}
	return buf.Bytes()
}

func putShardAt(t *testing.T, store *objstore.MemoryStore, key, content string, at time.Time) {
	t.Helper()

	store.SetClock(func() time.Time { return at })
	if err := store.Put(context.Background(), "logs", key, bytes.NewReader(gzipBytes(t, content))); err != nil {
		t.Fatalf("Put(%q) error = %v", key, err)
	}
}

func readMerged(t *testing.T, m *Merger, consolidate bool) string {
	t.Helper()

	f, err := m.Merge(context.Background(), "logs", combatlog.FormParsed, "wow_abc", t.TempDir(), consolidate)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return string(data)
}

func TestMergeOrdersByModificationTime(t *testing.T) {
	store := objstore.NewMemoryStore()
	m := NewMerger(store, logging.NewDefault())

	base := time.Unix(1700000000, 0).UTC()
	prefix := "form=Parsed/partition=wow_abc/"

	// Written out of order: key names do not matter, modification time does.
	putShardAt(t, store, prefix+"combatlog_3_c.gz", "three\n", base.Add(3*time.Second))
	putShardAt(t, store, prefix+"combatlog_1_a.gz", "one\n", base.Add(1*time.Second))
	putShardAt(t, store, prefix+"combatlog_2_b.gz", "two\n", base.Add(2*time.Second))

	got := readMerged(t, m, false)
	if got != "one\ntwo\nthree\n" {
		t.Errorf("merged content = %q, want chronological order", got)
	}
}

func TestMergeEmptyPartition(t *testing.T) {
	store := objstore.NewMemoryStore()
	m := NewMerger(store, logging.NewDefault())

	if got := readMerged(t, m, false); got != "" {
		t.Errorf("merged content = %q, want empty", got)
	}
}

func TestMergeConsolidates(t *testing.T) {
	store := objstore.NewMemoryStore()
	m := NewMerger(store, logging.NewDefault())

	base := time.Unix(1700000000, 0).UTC()
	prefix := "form=Parsed/partition=wow_abc/"
	putShardAt(t, store, prefix+"combatlog_1_a.gz", "one\n", base.Add(1*time.Second))
	putShardAt(t, store, prefix+"combatlog_2_b.gz", "two\n", base.Add(2*time.Second))
	store.SetClock(func() time.Time { return base.Add(10 * time.Second) })

	if got := readMerged(t, m, true); got != "one\ntwo\n" {
		t.Fatalf("merged content = %q", got)
	}

	objects, err := store.List(context.Background(), "logs", prefix)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(objects) != 1 {
		t.Fatalf("objects after consolidation = %d, want 1", len(objects))
	}
	if !strings.Contains(objects[0].Key, "completed_merged_") {
		t.Errorf("surviving key = %q, want consolidated object", objects[0].Key)
	}

	// Re-merging after consolidation must yield the same stream.
	if got := readMerged(t, m, false); got != "one\ntwo\n" {
		t.Errorf("re-merged content = %q", got)
	}
}

func TestMergeSingleShardSkipsConsolidation(t *testing.T) {
	store := objstore.NewMemoryStore()
	m := NewMerger(store, logging.NewDefault())

	prefix := "form=Parsed/partition=wow_abc/"
	putShardAt(t, store, prefix+"combatlog_1_a.gz", "one\n", time.Unix(1700000001, 0).UTC())

	if got := readMerged(t, m, true); got != "one\n" {
		t.Fatalf("merged content = %q", got)
	}

	objects, err := store.List(context.Background(), "logs", prefix)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(objects) != 1 || strings.Contains(objects[0].Key, "completed_merged_") {
		t.Errorf("single shard was rewritten: %+v", objects)
	}
}
