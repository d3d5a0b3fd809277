package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/regionscan/regionscan/internal/auth"
	"github.com/regionscan/regionscan/internal/config"
	"github.com/regionscan/regionscan/internal/engine"
	"github.com/regionscan/regionscan/internal/export"
	"github.com/regionscan/regionscan/internal/maintenance"
	"github.com/regionscan/regionscan/internal/observability"
	"github.com/regionscan/regionscan/internal/query"
	"github.com/regionscan/regionscan/internal/source"
)

type ReadinessCheck func(ctx context.Context) error

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Tables            *TableCatalog
	Runner            *engine.Runner
	QueryEngine       query.Engine
	Exporter          *export.Exporter
	Maintenance       *maintenance.Service
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("GET /v1/tables/{table}/schema", func(w http.ResponseWriter, r *http.Request) {
		handleSchema(deps, w, r)
	})
	protected.HandleFunc("GET /v1/tables/{table}/partitions", func(w http.ResponseWriter, r *http.Request) {
		handlePartitions(deps, w, r)
	})
	protected.HandleFunc("POST /v1/tables/{table}/scan", func(w http.ResponseWriter, r *http.Request) {
		handleScan(cfg, deps, w, r)
	})
	protected.HandleFunc("POST /v1/tables/{table}/exports", func(w http.ResponseWriter, r *http.Request) {
		handleExport(cfg, deps, w, r)
	})
	protected.HandleFunc("GET /v1/tables/{table}/exports", func(w http.ResponseWriter, r *http.Request) {
		handleListExports(deps, w, r)
	})
	protected.HandleFunc("POST /v1/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(cfg, deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("GET /v1/tables/{table}/schema", protectedHandler)
	mux.Handle("GET /v1/tables/{table}/partitions", protectedHandler)
	mux.Handle("POST /v1/tables/{table}/scan", protectedHandler)
	mux.Handle("POST /v1/tables/{table}/exports", protectedHandler)
	mux.Handle("GET /v1/tables/{table}/exports", protectedHandler)
	mux.Handle("POST /v1/query", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.ScanIDMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// CheckStore reports the store unready while ping fails.
func CheckStore(ping func(ctx context.Context) error) ReadinessCheck {
	return func(ctx context.Context) error {
		if ping == nil {
			return errors.New("store is not configured")
		}
		if err := ping(ctx); err != nil {
			return fmt.Errorf("store unreachable: %w", err)
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func withQueryTimeout(cfg config.Config, r *http.Request) (context.Context, context.CancelFunc) {
	if cfg.HTTP.QueryTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), cfg.HTTP.QueryTimeout)
}

// writeSourceError maps table adapter and partition failures onto HTTP statuses.
func writeSourceError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		unsupported *source.UnsupportedTypeError
		invalid     *source.InvalidIdentifierError
		scanErr     *source.ScanError
	)
	details := map[string]any{"details": err.Error()}
	switch {
	case errors.Is(err, source.ErrTableNotFound):
		writeError(ctx, w, http.StatusNotFound, "TABLE_NOT_FOUND", "table was not found", false, details)
	case errors.Is(err, source.ErrUnknownColumn):
		writeError(ctx, w, http.StatusBadRequest, "UNKNOWN_COLUMN", "requested column does not exist", false, details)
	case errors.As(err, &unsupported):
		writeError(ctx, w, http.StatusUnprocessableEntity, "UNSUPPORTED_TYPE", "table has a column of unsupported type", false, map[string]any{
			"column":    unsupported.Column,
			"type_name": unsupported.TypeName,
		})
	case errors.As(err, &invalid):
		writeError(ctx, w, http.StatusBadRequest, "INVALID_IDENTIFIER", invalid.Error(), false, nil)
	case errors.As(err, &scanErr):
		writeError(ctx, w, http.StatusBadGateway, "PARTITION_SCAN_FAILED", "a partition scan failed", true, map[string]any{
			"partition": scanErr.Partition,
			"details":   err.Error(),
		})
	case errors.Is(err, context.DeadlineExceeded):
		writeError(ctx, w, http.StatusGatewayTimeout, "SCAN_TIMEOUT", "request exceeded the query timeout", true, nil)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "STORE_ERROR", "store request failed", true, details)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"scan_id":    observability.ScanIDFromContext(ctx),
	})
}
