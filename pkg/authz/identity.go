package authz

import (
	"context"
	"net/http"
	"strings"
)

type identityCtxKey struct{}

// DefaultUserHeader is the header a trusted proxy sets to the caller's name.
const DefaultUserHeader = "X-Remote-User"

// Identity is the authenticated caller of a request, before it is resolved
// to a stored principal.
type Identity struct {
	User string
	// Bearer is true when User came from a verified token rather than a
	// proxy header.
	Bearer bool
}

// WithIdentity returns a new context with the given Identity attached.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the Identity from the context.
// Returns the zero value and false if no identity is set.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}

// IdentityMiddleware returns HTTP middleware that attaches the caller's
// identity. A bearer token wins over the user header; an invalid token is
// rejected with 401. Requests carrying neither pass through without an
// identity. tokens may be nil to ignore bearer tokens.
func IdentityMiddleware(userHeader string, tokens *TokenVerifier) func(http.Handler) http.Handler {
	if userHeader == "" {
		userHeader = DefaultUserHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id Identity
			if token := extractBearerToken(r); token != "" && tokens != nil {
				sub, err := tokens.Subject(token)
				if err != nil {
					writeError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
					return
				}
				id = Identity{User: sub, Bearer: true}
			} else if user := strings.TrimSpace(r.Header.Get(userHeader)); user != "" {
				id = Identity{User: user}
			} else {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
