package duckdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/regionscan/regionscan/internal/storage"
)

// download copies one object to localPath and returns the bytes written. A partial
// file is removed on failure.
func download(ctx context.Context, store storage.ObjectStore, key, localPath string) (int64, error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("get object %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	file, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("create local file %q: %w", localPath, err)
	}
	written, copyErr := io.Copy(file, reader)
	if err := errors.Join(copyErr, file.Close()); err != nil {
		_ = os.Remove(localPath)
		return 0, fmt.Errorf("download object %q: %w", key, err)
	}
	return written, nil
}
