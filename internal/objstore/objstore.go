// Package objstore abstracts the cold-storage bucket the pipeline writes
// shards, merged artifacts and reports into. Keys are opaque slash-delimited
// strings; listing is by key prefix.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store is the object storage interface. Put replaces any existing object
// under the same key atomically.
type Store interface {
	// Put stores the object under bucket/key, replacing any previous value.
	Put(ctx context.Context, bucket, key string, body io.Reader) error

	// Get opens the object for reading. The caller closes the reader.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// List returns every object whose key starts with prefix, in
	// unspecified order.
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)

	// DeleteBatch removes the given keys. Missing keys are not an error.
	DeleteBatch(ctx context.Context, bucket string, keys []string) error

	// Close releases backend resources.
	Close() error
}

// ErrNotFound reports a Get for a key with no object.
type ErrNotFound struct {
	Bucket string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("object %s/%s not found", e.Bucket, e.Key)
}

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}
