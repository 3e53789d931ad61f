// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import (
	"context"

	"github.com/atrium-works/atrium/pkg/identity"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// UserKey contains the *identity.User resolved from the session cookie.
	// Set by: middleware.SessionAuth (pkg/middleware/auth.go)
	// Required by: all protected API endpoints
	UserKey Key = "current_user"

	// SessionIDKey contains the session token string the user was resolved from.
	// Set by: middleware.SessionAuth
	// Used by: logout handler
	SessionIDKey Key = "session_id"

	// RequestIDKey contains the request ID string (UUID).
	// Set by: middleware.RequestLogger
	// Used by: logger
	RequestIDKey Key = "request_id"
)

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, u *identity.User) context.Context {
	return context.WithValue(ctx, UserKey, u)
}

// UserFrom extracts the authenticated user from the context, or nil.
func UserFrom(ctx context.Context) *identity.User {
	u, _ := ctx.Value(UserKey).(*identity.User)
	return u
}

// WithSessionID returns a context carrying the resolved session token.
func WithSessionID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sid)
}

// SessionIDFrom extracts the session token from the context, or "".
func SessionIDFrom(ctx context.Context) string {
	sid, _ := ctx.Value(SessionIDKey).(string)
	return sid
}

// WithRequestID returns a context carrying the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestIDFrom extracts the request ID from the context, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
