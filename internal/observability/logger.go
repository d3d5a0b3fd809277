package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/regionscan/regionscan/internal/config"
)

type scanIDKey struct{}

// NewLogger builds the process logger. Records logged with a context carrying a scan
// id get a scan_id attribute.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}
	var base slog.Handler = slog.NewTextHandler(writer, opts)
	if cfg.Observability.LogJSON {
		base = slog.NewJSONHandler(writer, opts)
	}
	return slog.New(scanHandler{base}).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

type scanHandler struct {
	slog.Handler
}

func (h scanHandler) Handle(ctx context.Context, record slog.Record) error {
	if id := ScanIDFromContext(ctx); id != "" {
		record.AddAttrs(slog.String("scan_id", id))
	}
	return h.Handler.Handle(ctx, record)
}

func (h scanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return scanHandler{h.Handler.WithAttrs(attrs)}
}

func (h scanHandler) WithGroup(name string) slog.Handler {
	return scanHandler{h.Handler.WithGroup(name)}
}

func ContextWithScanID(ctx context.Context, scanID string) context.Context {
	return context.WithValue(ctx, scanIDKey{}, scanID)
}

func ScanIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(scanIDKey{}).(string)
	return id
}
