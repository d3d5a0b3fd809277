package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ContentTypeParquet is set on every exported partition object.
const ContentTypeParquet = "application/vnd.apache.parquet"

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
	// Metadata is stored as user metadata where the backend supports it and ignored
	// elsewhere.
	Metadata map[string]string
}

// ObjectStore holds exported partition files. Keys are slash separated and relative
// to the store's own prefix.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// BatchDeleter is implemented by stores that remove many keys in one round trip.
type BatchDeleter interface {
	DeleteMany(ctx context.Context, keys []string) error
}

// DeleteAll removes keys with one batch call when the store supports it and one
// Delete per key otherwise. Every key is attempted; failures are joined.
func DeleteAll(ctx context.Context, store ObjectStore, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if batch, ok := store.(BatchDeleter); ok {
		return batch.DeleteMany(ctx, keys)
	}
	var errs []error
	for _, key := range keys {
		if err := store.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
