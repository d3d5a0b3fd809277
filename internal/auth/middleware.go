package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/regionscan/regionscan/internal/observability"
)

type identityContextKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok
}

type authenticator struct {
	logger    *slog.Logger
	validator APIKeyValidator
}

// Middleware rejects requests without a valid key with 401 and a bearer challenge.
// Accepted requests carry their Identity in the context.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := authenticator{logger: logger, validator: validator}
	return a.wrap
}

func (a authenticator) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key, scheme := credentials(r)
		if key == "" {
			a.reject(w, r, "missing API key")
			return
		}
		identity, ok := a.validator.Validate(ctx, key)
		if !ok {
			a.logger.WarnContext(ctx, "authentication failed",
				slog.String("scheme", scheme),
				slog.String("path", r.URL.Path),
			)
			a.reject(w, r, "invalid API key")
			return
		}
		a.logger.DebugContext(ctx, "authenticated",
			slog.String("principal", identity.Principal),
		)
		next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
	})
}

func (a authenticator) reject(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="regionscan"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": "UNAUTHORIZED",
		"message":    message,
		"retryable":  false,
		"scan_id":    observability.ScanIDFromContext(r.Context()),
	})
}

// credentials returns the presented key and the header it came from. X-API-Key wins
// over Authorization.
func credentials(r *http.Request) (key, scheme string) {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, "api-key"
	}
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if token, ok := strings.CutPrefix(authorization, "Bearer "); ok {
		return strings.TrimSpace(token), "bearer"
	}
	return "", ""
}
