package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/regionscan/regionscan/internal/engine"
	"github.com/regionscan/regionscan/internal/observability"
	"github.com/regionscan/regionscan/internal/source"
	"github.com/regionscan/regionscan/internal/storage"
)

// Object is one uploaded partition file.
type Object struct {
	Partition source.Partition
	Key       string
	Rows      int64
	Size      int64
}

type Result struct {
	ExportID   string
	Table      string
	Dir        string
	Objects    []Object
	Partitions []engine.PartitionResult
	Duration   time.Duration
}

// Exporter writes every partition of a scan as its own parquet object.
type Exporter struct {
	Store  storage.ObjectStore
	Runner *engine.Runner
	Prefix string
	// AllOrNothing removes the objects of successful partitions when any partition
	// fails, so a failed export leaves nothing behind.
	AllOrNothing bool
	// SpoolDir holds each partition's parquet file until it is uploaded. Empty uses
	// os.TempDir.
	SpoolDir string
	Logger   *slog.Logger
}

// Export uploads one object per partition under <prefix>/<table>/export=<id>. A
// partition failure is reported in the result and, joined, as the returned error.
func (e *Exporter) Export(ctx context.Context, table string, scans []*source.PartitionScan) (Result, error) {
	if e.Store == nil {
		return Result{}, fmt.Errorf("object store is required")
	}
	if e.Runner == nil {
		return Result{}, fmt.Errorf("runner is required")
	}
	start := time.Now()
	exportID := uuid.NewString()
	if observability.ScanIDFromContext(ctx) == "" {
		ctx = observability.ContextWithScanID(ctx, exportID)
	}
	dir, err := storage.ExportDir(e.Prefix, table, exportID)
	if err != nil {
		return Result{}, err
	}

	objects := make([]Object, len(scans))
	position := make(map[string]int, len(scans))
	for i, scan := range scans {
		position[scan.Partition().ID()] = i
	}
	results, err := e.Runner.Each(ctx, scans, func(ctx context.Context, scan *source.PartitionScan, rows *source.Rows) error {
		object, err := e.exportPartition(ctx, table, exportID, scan, rows)
		if err != nil {
			return err
		}
		objects[position[scan.Partition().ID()]] = object
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	result := Result{ExportID: exportID, Table: table, Dir: dir, Partitions: results}
	for i, partition := range results {
		if partition.Err == nil {
			result.Objects = append(result.Objects, objects[i])
		}
	}

	failed := engine.Failed(results)
	if failed != nil && e.AllOrNothing {
		keys := make([]string, 0, len(result.Objects))
		for _, object := range result.Objects {
			keys = append(keys, object.Key)
		}
		result.Objects = nil
		failed = errors.Join(failed, storage.DeleteAll(ctx, e.Store, keys))
	}
	result.Duration = time.Since(start)

	e.logger().InfoContext(ctx, "export finished",
		slog.String("export_id", exportID),
		slog.String("table", table),
		slog.Int("objects", len(result.Objects)),
		slog.Bool("failed", failed != nil),
		slog.String("duration", result.Duration.String()),
	)
	if failed != nil {
		return result, fmt.Errorf("export %s: %w", table, failed)
	}
	return result, nil
}

func (e *Exporter) exportPartition(ctx context.Context, table, exportID string, scan *source.PartitionScan, rows *source.Rows) (Object, error) {
	partition := scan.Partition()
	key, err := storage.PartitionObjectPath(e.Prefix, table, exportID, partition.Index)
	if err != nil {
		return Object{}, err
	}

	spool, err := os.CreateTemp(e.SpoolDir, "regionscan-export-*.parquet")
	if err != nil {
		return Object{}, fmt.Errorf("create spool file: %w", err)
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	encoder, err := NewEncoder(spool, table, scan.Fields())
	if err != nil {
		return Object{}, err
	}
	for rows.Next() {
		if err := encoder.Write(rows.Row()); err != nil {
			return Object{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return Object{}, err
	}
	if err := encoder.Close(); err != nil {
		return Object{}, err
	}
	size, err := spool.Seek(0, io.SeekCurrent)
	if err != nil {
		return Object{}, fmt.Errorf("spool size: %w", err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return Object{}, fmt.Errorf("rewind spool: %w", err)
	}

	opts := storage.PutOptions{
		ContentType: storage.ContentTypeParquet,
		Metadata: map[string]string{
			"table":     table,
			"export-id": exportID,
			"partition": strconv.Itoa(partition.Index),
			"rows":      strconv.FormatInt(encoder.Rows(), 10),
		},
	}
	info, err := e.Store.Put(ctx, key, spool, size, opts)
	if err != nil {
		return Object{}, err
	}
	return Object{Partition: partition, Key: info.Key, Rows: encoder.Rows(), Size: size}, nil
}

func (e *Exporter) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}
