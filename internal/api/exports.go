package api

import (
	"net/http"
	"time"

	"github.com/regionscan/regionscan/internal/auth"
	"github.com/regionscan/regionscan/internal/config"
	"github.com/regionscan/regionscan/internal/storage"
)

type exportObjectResponse struct {
	Partition string `json:"partition"`
	Key       string `json:"key"`
	Rows      int64  `json:"rows"`
	SizeBytes int64  `json:"size_bytes"`
}

func handleExport(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Tables == nil || deps.Exporter == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "export dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleExporter); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request scanRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid export request body", false, map[string]any{"details": err.Error()})
		return
	}
	scans, ok := planScan(deps, w, r, request)
	if !ok {
		return
	}

	ctx, cancel := withQueryTimeout(cfg, r)
	defer cancel()
	result, err := deps.Exporter.Export(ctx, r.PathValue("table"), scans)
	if err != nil {
		writeSourceError(r.Context(), w, err)
		return
	}

	objects := make([]exportObjectResponse, 0, len(result.Objects))
	for _, object := range result.Objects {
		objects = append(objects, exportObjectResponse{
			Partition: object.Partition.ID(),
			Key:       object.Key,
			Rows:      object.Rows,
			SizeBytes: object.Size,
		})
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"export_id":   result.ExportID,
		"table":       result.Table,
		"dir":         result.Dir,
		"objects":     objects,
		"partitions":  partitionResults(result.Partitions),
		"duration_ms": result.Duration.Milliseconds(),
	})
}

type exportSummaryResponse struct {
	ExportID     string    `json:"export_id"`
	Dir          string    `json:"dir"`
	Objects      int       `json:"objects"`
	SizeBytes    int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
}

func handleListExports(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Maintenance == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORTS_NOT_CONFIGURED", "export listing is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	table := r.PathValue("table")
	if err := storage.ValidateTable(table); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_IDENTIFIER", err.Error(), false, nil)
		return
	}
	exports, err := deps.Maintenance.ListExports(r.Context(), table)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "OBJECT_STORE_ERROR", "failed to list exports", true, map[string]any{"details": err.Error()})
		return
	}
	out := make([]exportSummaryResponse, 0, len(exports))
	for _, export := range exports {
		out = append(out, exportSummaryResponse{
			ExportID:     export.ExportID,
			Dir:          export.Dir,
			Objects:      len(export.Objects),
			SizeBytes:    export.SizeBytes,
			LastModified: export.LastModified,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"table": table, "exports": out})
}
