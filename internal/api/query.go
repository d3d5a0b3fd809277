package api

import (
	"errors"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/regionscan/regionscan/internal/auth"
	"github.com/regionscan/regionscan/internal/config"
	"github.com/regionscan/regionscan/internal/query"
	"github.com/regionscan/regionscan/internal/source"
)

type queryRequest struct {
	SQL      string `json:"sql"`
	RowLimit int    `json:"row_limit"`
	// Tables are scanned live, partition by partition, and exposed under their names.
	Tables []string `json:"tables"`
	// Exports map a view name to an export directory in the object store.
	Exports map[string]string `json:"exports"`
}

type queryResponse struct {
	Columns []string       `json:"columns"`
	Rows    [][]any        `json:"rows"`
	Stats   map[string]any `json:"stats"`
}

func handleQuery(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.QueryEngine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request queryRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	if !isAllowedSQL(request.SQL) {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", "only read-only SELECT/WITH queries are allowed", false, nil)
		return
	}
	if len(request.Tables) == 0 && len(request.Exports) == 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "SOURCES_REQUIRED", "at least one table or export is required", false, nil)
		return
	}
	if len(request.Tables) > 0 && deps.Tables == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TABLES_NOT_CONFIGURED", "store dependency is not configured", false, nil)
		return
	}

	rowLimit := request.RowLimit
	if rowLimit <= 0 || rowLimit > cfg.HTTP.MaxRowLimit {
		rowLimit = cfg.HTTP.MaxRowLimit
	}
	engineRequest := query.Request{SQL: request.SQL, RowLimit: rowLimit}
	for _, name := range request.Tables {
		table, err := deps.Tables.Table(r.Context(), name)
		if err != nil {
			writeSourceError(r.Context(), w, err)
			return
		}
		scans, err := table.Scan(r.Context(), nil, nil)
		if err != nil {
			writeSourceError(r.Context(), w, err)
			return
		}
		engineRequest.Tables = append(engineRequest.Tables, query.TableSource{Name: table.Name(), Scans: scans})
	}
	for _, name := range slices.Sorted(maps.Keys(request.Exports)) {
		engineRequest.Exports = append(engineRequest.Exports, query.ExportSource{Name: name, Dir: request.Exports[name]})
	}

	ctx, cancel := withQueryTimeout(cfg, r)
	defer cancel()
	result, err := deps.QueryEngine.Execute(ctx, engineRequest)
	if err != nil {
		var scanErr *source.ScanError
		if errors.As(err, &scanErr) || ctx.Err() != nil {
			writeSourceError(r.Context(), w, err)
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", "query execution failed", false, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Columns: result.Columns,
		Rows:    result.Rows,
		Stats: map[string]any{
			"duration_ms":        result.Duration.Milliseconds(),
			"row_limit":          rowLimit,
			"scanned_partitions": result.ScannedPartitions,
			"scanned_rows":       result.ScannedRows,
			"scanned_files":      result.ScannedFiles,
			"scanned_bytes":      result.ScannedBytes,
		},
	})
}

func isAllowedSQL(sqlText string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sqlText))
	return strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with")
}
