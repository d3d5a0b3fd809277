package engine

import (
	"context"

	"github.com/regionscan/regionscan/internal/source"
)

// CountRows scans every partition and sums the rows they produce.
func (r *Runner) CountRows(ctx context.Context, scans []*source.PartitionScan) (int64, []PartitionResult, error) {
	results, err := r.Run(ctx, scans, nil)
	if err != nil {
		return 0, nil, err
	}
	var total int64
	for _, result := range results {
		total += result.Rows
	}
	return total, results, nil
}

// Collect gathers every row in memory, grouped by partition in scan order. Rows of a
// failed partition are dropped.
func (r *Runner) Collect(ctx context.Context, scans []*source.PartitionScan) ([]source.Row, []PartitionResult, error) {
	buffers := make([][]source.Row, len(scans))
	index := make(map[string]int, len(scans))
	for i, scan := range scans {
		index[scan.Partition().ID()] = i
	}

	results, err := r.Run(ctx, scans, func(partition source.Partition, row source.Row) error {
		i := index[partition.ID()]
		buffers[i] = append(buffers[i], row)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var rows []source.Row
	for i, result := range results {
		if result.Err != nil {
			continue
		}
		rows = append(rows, buffers[i]...)
	}
	return rows, results, nil
}
