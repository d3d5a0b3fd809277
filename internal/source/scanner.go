package source

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/regionscan/regionscan/internal/observability"
)

// PartitionScan is the plan for one partition. It holds no connection; every Open
// starts the partition from the beginning.
type PartitionScan struct {
	handle    TableHandle
	partition Partition
	stmt      Statement
	fields    []Field
	store     Store
	logger    *slog.Logger
}

func (s *PartitionScan) Handle() TableHandle {
	return s.handle
}

func (s *PartitionScan) Partition() Partition {
	return s.partition
}

func (s *PartitionScan) Statement() Statement {
	return s.stmt
}

// Fields describes the row tuple, in handle column order.
func (s *PartitionScan) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

func (s *PartitionScan) Open(ctx context.Context) (*Rows, error) {
	cursor, err := s.store.OpenPartition(ctx, s.handle, s.partition, s.stmt)
	if err != nil {
		observability.ObservePartitionScanFailedToOpen()
		return nil, s.fail(err)
	}
	observability.PartitionScanOpened()
	s.logger.DebugContext(ctx, "partition scan opened",
		slog.String("partition", s.partition.ID()),
	)
	return &Rows{
		ctx:     ctx,
		scan:    s,
		cursor:  cursor,
		values:  make([]any, len(s.handle.Columns)),
		started: time.Now(),
	}, nil
}

// All yields the partition's rows. Breaking out of the loop releases the connection;
// a failure is yielded once as a *ScanError and ends the sequence.
func (s *PartitionScan) All(ctx context.Context) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		rows, err := s.Open(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			if !yield(rows.Row(), nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

func (s *PartitionScan) fail(err error) error {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return err
	}
	return &ScanError{Partition: s.partition.ID(), Table: s.handle.Table, Err: err}
}

// Rows streams one partition. It is confined to a single goroutine.
type Rows struct {
	ctx     context.Context
	scan    *PartitionScan
	cursor  Cursor
	values  []any
	row     Row
	count   int64
	err     error
	closed  bool
	started time.Time
}

func (r *Rows) Next() bool {
	if r.closed {
		return false
	}
	if err := r.ctx.Err(); err != nil {
		r.err = r.scan.fail(err)
		r.finish()
		return false
	}
	if !r.cursor.Next() {
		if err := r.cursor.Err(); err != nil {
			r.err = r.scan.fail(err)
		}
		r.finish()
		return false
	}

	targets := make([]any, len(r.values))
	for i := range r.values {
		r.values[i] = nil
		targets[i] = &r.values[i]
	}
	if err := r.cursor.Scan(targets...); err != nil {
		r.err = r.scan.fail(fmt.Errorf("scan row: %w", err))
		r.finish()
		return false
	}
	r.row = normalizeRow(r.scan.fields, r.values)
	r.count++
	return true
}

// Row returns the current row. The slice is not reused by later calls to Next.
func (r *Rows) Row() Row {
	return r.row
}

func (r *Rows) Err() error {
	return r.err
}

// Count is the number of rows produced so far.
func (r *Rows) Count() int64 {
	return r.count
}

// Close releases the partition's connection. It is safe to call more than once.
func (r *Rows) Close() error {
	if r.closed {
		return nil
	}
	if err := r.release(); err != nil {
		return r.scan.fail(fmt.Errorf("close cursor: %w", err))
	}
	return nil
}

func (r *Rows) finish() {
	if err := r.release(); err != nil && r.err == nil {
		r.err = r.scan.fail(fmt.Errorf("close cursor: %w", err))
	}
}

func (r *Rows) release() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.row = nil
	err := r.cursor.Close()
	elapsed := time.Since(r.started)
	observability.ObservePartitionScanClosed(r.count, elapsed, r.err)
	r.scan.logger.DebugContext(r.ctx, "partition scan released",
		slog.String("partition", r.scan.partition.ID()),
		slog.Int64("rows", r.count),
		slog.String("duration", elapsed.String()),
	)
	return err
}

func normalizeRow(fields []Field, values []any) Row {
	row := make(Row, len(values))
	for i, value := range values {
		if raw, ok := value.([]byte); ok {
			if i < len(fields) && fields[i].Type == BinaryType {
				row[i] = append([]byte(nil), raw...)
			} else {
				row[i] = string(raw)
			}
			continue
		}
		row[i] = value
	}
	return row
}
