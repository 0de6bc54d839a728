package objstore

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/matchlog/matchlog/internal/logging"
)

// FilesystemStore keeps objects as files under root/bucket/key. Writes go to
// a temp file in the same directory and are renamed into place so readers
// never observe a partial object.
type FilesystemStore struct {
	root   string
	logger *logging.Logger
}

// NewFilesystemStore creates the store rooted at the given directory,
// creating it if needed.
func NewFilesystemStore(root string, logger *logging.Logger) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create object store root: %w", err)
	}
	return &FilesystemStore{
		root:   root,
		logger: logger.With("component", "objstore"),
	}, nil
}

func (s *FilesystemStore) path(bucket, key string) string {
	return filepath.Join(s.root, bucket, filepath.FromSlash(key))
}

func (s *FilesystemStore) Put(ctx context.Context, bucket, key string, body io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dst := s.path(bucket, key)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return fmt.Errorf("failed to create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write object %s/%s: %w", bucket, key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp object: %w", err)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to commit object %s/%s: %w", bucket, key, err)
	}

	s.logger.Debug("Stored object", "bucket", bucket, "key", key)
	return nil
}

func (s *FilesystemStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path(bucket, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ErrNotFound{Bucket: bucket, Key: key}
		}
		return nil, fmt.Errorf("failed to open object %s/%s: %w", bucket, key, err)
	}
	return f, nil
}

func (s *FilesystemStore) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base := filepath.Join(s.root, bucket)
	var objects []ObjectInfo

	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects %s/%s: %w", bucket, prefix, err)
	}
	return objects, nil
}

func (s *FilesystemStore) DeleteBatch(ctx context.Context, bucket string, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, key := range keys {
		if err := os.Remove(s.path(bucket, key)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete object %s/%s: %w", bucket, key, err)
		}
	}
	return nil
}

func (s *FilesystemStore) Close() error { return nil }
