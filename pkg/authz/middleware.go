package authz

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/IBM/arcade/pkg/store"
)

type principalCtxKey struct{}

// WithPrincipal returns a new context carrying p.
func WithPrincipal(ctx context.Context, p *store.Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFromContext returns the principal resolved by PrincipalMiddleware,
// or nil.
func PrincipalFromContext(ctx context.Context) *store.Principal {
	p, _ := ctx.Value(principalCtxKey{}).(*store.Principal)
	return p
}

// PrincipalMiddleware resolves the request identity to a stored principal.
// Requests without an identity, or naming an unknown principal, get 401.
// It must run after IdentityMiddleware.
func PrincipalMiddleware(s store.EntityStore, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok || id.User == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			p, err := PrincipalByName(r.Context(), s, id.User)
			if err != nil {
				logger.Error("failed to resolve principal", "user", id.User, "error", err)
				writeError(w, http.StatusInternalServerError, "internal_error", "principal lookup failed")
				return
			}
			if p == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "unknown principal")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireAdmin returns middleware that admits only admin principals.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := PrincipalFromContext(r.Context())
		if p == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		if !p.Admin {
			writeError(w, http.StatusForbidden, "forbidden", "admin privileges required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
