package api

import (
	"net/http"
	"strings"

	"github.com/regionscan/regionscan/internal/auth"
	"github.com/regionscan/regionscan/internal/config"
	"github.com/regionscan/regionscan/internal/engine"
	"github.com/regionscan/regionscan/internal/source"
)

type columnResponse struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Nullable  bool   `json:"nullable"`
	StoreType string `json:"store_type"`
}

type partitionResponse struct {
	ID        string `json:"id"`
	Index     int    `json:"index"`
	KeyColumn string `json:"key_column,omitempty"`
	Lower     any    `json:"lower"`
	Upper     any    `json:"upper"`
}

// scanRequest selects columns and pushed-down conditions, in the same textual form
// the CLI --where flag accepts.
type scanRequest struct {
	Columns []string `json:"columns"`
	Where   []string `json:"where"`
}

type partitionResultResponse struct {
	Partition  string `json:"partition"`
	Rows       int64  `json:"rows"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Tables == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TABLES_NOT_CONFIGURED", "store dependency is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	table, err := deps.Tables.Table(r.Context(), r.PathValue("table"))
	if err != nil {
		writeSourceError(r.Context(), w, err)
		return
	}
	columns, err := table.Columns(r.Context())
	if err != nil {
		writeSourceError(r.Context(), w, err)
		return
	}
	fields, err := table.Schema(r.Context())
	if err != nil {
		writeSourceError(r.Context(), w, err)
		return
	}

	items := make([]columnResponse, 0, len(fields))
	for i, field := range fields {
		items = append(items, columnResponse{
			Name:      field.Name,
			Type:      string(field.Type),
			Nullable:  field.Nullable,
			StoreType: columns[i].TypeName,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"table":   table.Name(),
		"columns": items,
	})
}

func handlePartitions(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Tables == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TABLES_NOT_CONFIGURED", "store dependency is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	table, err := deps.Tables.Table(r.Context(), r.PathValue("table"))
	if err != nil {
		writeSourceError(r.Context(), w, err)
		return
	}
	partitions, err := deps.Tables.Store().ListPartitions(r.Context(), table.Name())
	if err != nil {
		writeSourceError(r.Context(), w, err)
		return
	}

	items := make([]partitionResponse, 0, len(partitions))
	for _, partition := range partitions {
		items = append(items, partitionResponse{
			ID:        partition.ID(),
			Index:     partition.Index,
			KeyColumn: partition.KeyColumn,
			Lower:     partition.Lower,
			Upper:     partition.Upper,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"table":      table.Name(),
		"partitions": items,
	})
}

func handleScan(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Tables == nil || deps.Runner == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCAN_NOT_CONFIGURED", "scan dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request scanRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid scan request body", false, map[string]any{"details": err.Error()})
		return
	}
	scans, ok := planScan(deps, w, r, request)
	if !ok {
		return
	}

	ctx, cancel := withQueryTimeout(cfg, r)
	defer cancel()
	total, results, err := deps.Runner.CountRows(ctx, scans)
	if err != nil {
		writeSourceError(r.Context(), w, err)
		return
	}
	if err := engine.Failed(results); err != nil {
		writeSourceError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"table":      r.PathValue("table"),
		"rows":       total,
		"partitions": partitionResults(results),
	})
}

// planScan resolves the table and builds its partition scans, writing the error
// response itself when that fails.
func planScan(deps Dependencies, w http.ResponseWriter, r *http.Request, request scanRequest) ([]*source.PartitionScan, bool) {
	predicate, err := source.ParseWhere(request.Where)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_CONDITION", err.Error(), false, nil)
		return nil, false
	}
	table, err := deps.Tables.Table(r.Context(), r.PathValue("table"))
	if err != nil {
		writeSourceError(r.Context(), w, err)
		return nil, false
	}
	columns := make([]string, 0, len(request.Columns))
	for _, column := range request.Columns {
		if column = strings.TrimSpace(column); column != "" {
			columns = append(columns, column)
		}
	}
	scans, err := table.Scan(r.Context(), columns, predicate)
	if err != nil {
		writeSourceError(r.Context(), w, err)
		return nil, false
	}
	return scans, true
}

func partitionResults(results []engine.PartitionResult) []partitionResultResponse {
	items := make([]partitionResultResponse, 0, len(results))
	for _, result := range results {
		item := partitionResultResponse{
			Partition:  result.Partition.ID(),
			Rows:       result.Rows,
			DurationMs: result.Duration.Milliseconds(),
		}
		if result.Err != nil {
			item.Error = result.Err.Error()
		}
		items = append(items, item)
	}
	return items
}
