package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/regionscan/regionscan/internal/observability"
	"github.com/regionscan/regionscan/internal/source"
)

// RowFunc receives every row of a partition on that partition's worker goroutine.
// Returning an error stops the partition and releases its connection.
type RowFunc func(partition source.Partition, row source.Row) error

// PartitionFunc consumes one opened partition. The runner closes rows afterwards.
type PartitionFunc func(ctx context.Context, scan *source.PartitionScan, rows *source.Rows) error

// PartitionResult is the outcome of one partition. Err is a *source.ScanError when
// the partition failed; sibling partitions are unaffected.
type PartitionResult struct {
	Partition source.Partition
	Rows      int64
	Duration  time.Duration
	Err       error
}

// Runner executes partition scans in parallel, one worker per partition, bounded by
// Concurrency.
type Runner struct {
	Concurrency int
	Logger      *slog.Logger
}

func NewRunner(concurrency int, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{Concurrency: concurrency, Logger: logger}
}

// Run scans every partition and returns one result per scan, in input order. The
// returned error covers only the runner itself; partition failures are in the results.
func (r *Runner) Run(ctx context.Context, scans []*source.PartitionScan, fn RowFunc) ([]PartitionResult, error) {
	return r.Each(ctx, scans, func(_ context.Context, scan *source.PartitionScan, rows *source.Rows) error {
		for rows.Next() {
			if fn == nil {
				continue
			}
			if err := fn(scan.Partition(), rows.Row()); err != nil {
				return err
			}
		}
		return nil
	})
}

// Each opens every partition on the worker pool and hands it to fn.
func (r *Runner) Each(ctx context.Context, scans []*source.PartitionScan, fn PartitionFunc) ([]PartitionResult, error) {
	results := make([]PartitionResult, len(scans))
	if len(scans) == 0 {
		return results, nil
	}
	if observability.ScanIDFromContext(ctx) == "" {
		ctx = observability.ContextWithScanID(ctx, uuid.NewString())
	}
	logger := r.logger()

	size := r.Concurrency
	if size <= 0 || size > len(scans) {
		size = len(scans)
	}
	pool, err := ants.NewPool(size, ants.WithPanicHandler(func(v any) {
		logger.ErrorContext(ctx, "partition worker panic",
			slog.Any("panic", v),
		)
	}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	start := time.Now()
	var wg sync.WaitGroup
	for i, scan := range scans {
		results[i].Partition = scan.Partition()
		wg.Add(1)
		submitErr := pool.Submit(func() {
			done := false
			defer func() {
				if !done {
					results[i].Err = &source.ScanError{
						Partition: scan.Partition().ID(),
						Table:     scan.Handle().Table,
						Err:       errors.New("partition worker panicked"),
					}
				}
				wg.Done()
			}()
			results[i] = runPartition(ctx, scan, fn)
			done = true
		})
		if submitErr != nil {
			wg.Done()
			results[i].Err = fmt.Errorf("submit partition %s: %w", scan.Partition().ID(), submitErr)
		}
	}
	wg.Wait()

	failed := 0
	var rows int64
	for _, result := range results {
		rows += result.Rows
		if result.Err != nil {
			failed++
		}
	}
	logger.InfoContext(ctx, "scan finished",
		slog.Int("partitions", len(scans)),
		slog.Int("failed_partitions", failed),
		slog.Int64("rows", rows),
		slog.String("duration", time.Since(start).String()),
	)
	return results, nil
}

func runPartition(ctx context.Context, scan *source.PartitionScan, fn PartitionFunc) PartitionResult {
	started := time.Now()
	result := PartitionResult{Partition: scan.Partition()}
	rows, err := scan.Open(ctx)
	if err != nil {
		result.Err = err
		result.Duration = time.Since(started)
		return result
	}
	defer func() { _ = rows.Close() }()

	if err := fn(ctx, scan, rows); err != nil {
		var scanErr *source.ScanError
		if !errors.As(err, &scanErr) {
			err = &source.ScanError{Partition: scan.Partition().ID(), Table: scan.Handle().Table, Err: err}
		}
		result.Err = err
	}
	closeErr := rows.Close()
	if result.Err == nil {
		result.Err = rows.Err()
	}
	if result.Err == nil {
		result.Err = closeErr
	}
	result.Rows = rows.Count()
	result.Duration = time.Since(started)
	return result
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r.Logger
}

// Failed joins the errors of every failed partition, or returns nil.
func Failed(results []PartitionResult) error {
	var errs []error
	for _, result := range results {
		if result.Err != nil {
			errs = append(errs, result.Err)
		}
	}
	return errors.Join(errs...)
}
