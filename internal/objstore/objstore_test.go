package objstore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/matchlog/matchlog/internal/logging"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()

	fsStore, err := NewFilesystemStore(t.TempDir(), logging.NewDefault())
	if err != nil {
		t.Fatalf("NewFilesystemStore() error = %v", err)
	}

	return map[string]Store{
		"fs":     fsStore,
		"memory": NewMemoryStore(),
	}
}

func TestStorePutGet(t *testing.T) {
	ctx := context.Background()

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			key := "form=Raw/partition=wow_123/combatlog_1700000000000_abc.gz"
			if err := store.Put(ctx, "logs", key, strings.NewReader("payload")); err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			rc, err := store.Get(ctx, "logs", key)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			defer rc.Close()

			data, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if string(data) != "payload" {
				t.Errorf("Get() = %q, want %q", data, "payload")
			}
		})
	}
}

func TestStorePutReplaces(t *testing.T) {
	ctx := context.Background()

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Put(ctx, "logs", "k", strings.NewReader("one")); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			if err := store.Put(ctx, "logs", "k", strings.NewReader("two")); err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			rc, err := store.Get(ctx, "logs", "k")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			defer rc.Close()

			data, _ := io.ReadAll(rc)
			if string(data) != "two" {
				t.Errorf("Get() after replace = %q, want %q", data, "two")
			}
		})
	}
}

func TestStoreGetNotFound(t *testing.T) {
	ctx := context.Background()

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, "logs", "missing")
			if !IsNotFound(err) {
				t.Errorf("Get() error = %v, want not-found", err)
			}
		})
	}
}

func TestStoreListByPrefix(t *testing.T) {
	ctx := context.Background()

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			keys := []string{
				"form=Parsed/partition=wow_1/a.gz",
				"form=Parsed/partition=wow_1/b.gz",
				"form=Raw/partition=wow_1/c.gz",
			}
			for _, k := range keys {
				if err := store.Put(ctx, "logs", k, strings.NewReader("x")); err != nil {
					t.Fatalf("Put(%q) error = %v", k, err)
				}
			}

			objects, err := store.List(ctx, "logs", "form=Parsed/partition=wow_1/")
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(objects) != 2 {
				t.Fatalf("List() returned %d objects, want 2", len(objects))
			}
			for _, obj := range objects {
				if !strings.HasPrefix(obj.Key, "form=Parsed/") {
					t.Errorf("List() returned key %q outside prefix", obj.Key)
				}
				if obj.LastModified.IsZero() {
					t.Errorf("List() returned zero LastModified for %q", obj.Key)
				}
			}
		})
	}
}

func TestStoreListEmptyPrefix(t *testing.T) {
	ctx := context.Background()

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			objects, err := store.List(ctx, "logs", "form=Flush/")
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(objects) != 0 {
				t.Errorf("List() on empty store returned %d objects", len(objects))
			}
		})
	}
}

func TestStoreDeleteBatch(t *testing.T) {
	ctx := context.Background()

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"a", "b", "c"} {
				if err := store.Put(ctx, "logs", k, strings.NewReader("x")); err != nil {
					t.Fatalf("Put(%q) error = %v", k, err)
				}
			}

			// Deleting a missing key alongside real ones must not fail.
			if err := store.DeleteBatch(ctx, "logs", []string{"a", "b", "missing"}); err != nil {
				t.Fatalf("DeleteBatch() error = %v", err)
			}

			if _, err := store.Get(ctx, "logs", "a"); !IsNotFound(err) {
				t.Errorf("Get(a) after delete error = %v, want not-found", err)
			}
			if _, err := store.Get(ctx, "logs", "c"); err != nil {
				t.Errorf("Get(c) error = %v, want survivor", err)
			}
		})
	}
}
