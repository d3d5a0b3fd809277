package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/regionscan/regionscan/internal/engine"
	"github.com/regionscan/regionscan/internal/export"
	"github.com/regionscan/regionscan/internal/query"
	"github.com/regionscan/regionscan/internal/source"
	"github.com/regionscan/regionscan/internal/storage"
)

// Engine answers SQL over scanned sources. Each partition of a live scan is staged as
// a local parquet file; exported tables are fetched from the object store. Every
// source becomes a view named after it in a throwaway in-memory duckdb.
type Engine struct {
	Runner *engine.Runner
	Store  storage.ObjectStore
}

var _ query.Engine = (*Engine)(nil)

func NewEngine(runner *engine.Runner, store storage.ObjectStore) *Engine {
	return &Engine{Runner: runner, Store: store}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if len(request.Tables) == 0 && len(request.Exports) == 0 {
		return query.Result{}, fmt.Errorf("at least one table is required")
	}
	if len(request.Tables) > 0 && e.Runner == nil {
		return query.Result{}, fmt.Errorf("runner is required for live tables")
	}
	if len(request.Exports) > 0 && e.Store == nil {
		return query.Result{}, fmt.Errorf("object store is required for exported tables")
	}

	start := time.Now()
	workDir, err := os.MkdirTemp("", "regionscan-query-")
	if err != nil {
		return query.Result{}, fmt.Errorf("create query temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	result := query.Result{}
	groupedPaths := map[string][]string{}

	for _, table := range request.Tables {
		paths, rows, err := e.stageScans(ctx, workDir, table)
		if err != nil {
			return query.Result{}, err
		}
		groupedPaths[table.Name] = append(groupedPaths[table.Name], paths...)
		result.ScannedPartitions += len(table.Scans)
		result.ScannedRows += rows
	}
	for _, exported := range request.Exports {
		paths, size, err := e.stageExport(ctx, workDir, exported)
		if err != nil {
			return query.Result{}, err
		}
		groupedPaths[exported.Name] = append(groupedPaths[exported.Name], paths...)
		result.ScannedFiles += len(paths)
		result.ScannedBytes += size
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	for tableName, localPaths := range groupedPaths {
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(tableName), quoteStringArray(localPaths))
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			return query.Result{}, fmt.Errorf("create view for table %q: %w", tableName, err)
		}
	}

	if request.RowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, request.RowLimit)
	}
	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}
	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	result.Columns = columns
	result.Rows = resultRows
	result.Duration = time.Since(start)
	return result, nil
}

// stageScans writes every partition of a live table to its own local parquet file.
// Any failed partition fails the query.
func (e *Engine) stageScans(ctx context.Context, workDir string, table query.TableSource) ([]string, int64, error) {
	if len(table.Scans) == 0 {
		return nil, 0, fmt.Errorf("table %q has no partitions", table.Name)
	}
	var (
		mu    sync.Mutex
		paths []string
	)
	results, err := e.Runner.Each(ctx, table.Scans, func(_ context.Context, scan *source.PartitionScan, rows *source.Rows) error {
		localPath := filepath.Join(workDir, fmt.Sprintf("%s_%05d.parquet", sanitizeFileComponent(table.Name), scan.Partition().Index))
		if err := writePartition(localPath, table.Name, scan.Fields(), rows); err != nil {
			return err
		}
		mu.Lock()
		paths = append(paths, localPath)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	if err := engine.Failed(results); err != nil {
		return nil, 0, fmt.Errorf("scan table %q: %w", table.Name, err)
	}
	var total int64
	for _, result := range results {
		total += result.Rows
	}
	return paths, total, nil
}

func (e *Engine) stageExport(ctx context.Context, workDir string, exported query.ExportSource) ([]string, int64, error) {
	objects, err := e.Store.List(ctx, exported.Dir)
	if err != nil {
		return nil, 0, fmt.Errorf("list export %q: %w", exported.Dir, err)
	}
	if len(objects) == 0 {
		return nil, 0, fmt.Errorf("export %q has no objects", exported.Dir)
	}

	var (
		paths []string
		size  int64
	)
	for index, object := range objects {
		localPath := filepath.Join(workDir, fmt.Sprintf("%s_export_%05d.parquet", sanitizeFileComponent(exported.Name), index))
		written, err := download(ctx, e.Store, object.Key, localPath)
		if err != nil {
			return nil, 0, err
		}
		paths = append(paths, localPath)
		size += written
	}
	return paths, size, nil
}

func writePartition(path, name string, fields []source.Field, rows *source.Rows) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create partition file: %w", err)
	}
	defer func() { _ = file.Close() }()

	encoder, err := export.NewEncoder(file, name, fields)
	if err != nil {
		return err
	}
	for rows.Next() {
		if err := encoder.Write(rows.Row()); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if err := encoder.Close(); err != nil {
		return err
	}
	return file.Close()
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
