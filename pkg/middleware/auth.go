// Package middleware provides the HTTP middleware chain: session resolution,
// request logging, metrics, and panic recovery.
package middleware

import (
	"context"
	"net/http"

	"github.com/atrium-works/atrium/pkg/contextkeys"
	"github.com/atrium-works/atrium/pkg/identity"
)

// SessionCookieName is the cookie carrying the opaque session token.
const SessionCookieName = "session"

// SessionResolver turns a session token into its user. Implemented by the
// authn service.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*identity.User, error)
}

// SessionAuth resolves the session cookie and stores the user in the request
// context. Resolution is best-effort: requests without a valid session pass
// through with no user, and each handler decides whether that is acceptable.
func SessionAuth(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := resolver.ResolveSession(r.Context(), cookie.Value)
			if err != nil || user == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := contextkeys.WithUser(r.Context(), user)
			ctx = contextkeys.WithSessionID(ctx, cookie.Value)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
