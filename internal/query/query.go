package query

import (
	"context"
	"time"

	"github.com/regionscan/regionscan/internal/source"
)

// TableSource exposes a live partitioned scan to SQL under Name.
type TableSource struct {
	Name  string
	Scans []*source.PartitionScan
}

// ExportSource exposes a previously exported table (an export directory in the
// object store) to SQL under Name.
type ExportSource struct {
	Name string
	Dir  string
}

type Request struct {
	SQL      string
	RowLimit int
	Tables   []TableSource
	Exports  []ExportSource
}

type Result struct {
	Columns           []string
	Rows              [][]any
	ScannedPartitions int
	ScannedRows       int64
	ScannedFiles      int
	ScannedBytes      int64
	Duration          time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
