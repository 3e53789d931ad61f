// Package identity defines the authenticated actor model shared by every
// service: users, their type, and the credential records (sessions and
// magic links) that prove who they are.
package identity

import (
	"time"
)

// UserType distinguishes platform administrators from tenant users.
type UserType string

const (
	UserTypeAdmin UserType = "ADMIN"
	UserTypeUser  UserType = "USER"
)

// User is the persisted account record and the actor passed to every guard.
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	IsVerified bool      `json:"is_verified"`
	UserType   UserType  `json:"user_type"`
	TenantID   *string   `json:"tenant_id,omitempty"`
	TeamID     *string   `json:"team_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user is a platform administrator.
func (u *User) IsAdmin() bool {
	return u.UserType == UserTypeAdmin
}

// InTenant reports whether the user belongs to the given tenant.
func (u *User) InTenant(tenantID string) bool {
	return u.TenantID != nil && *u.TenantID == tenantID
}

// InTeam reports whether the user belongs to the given team.
func (u *User) InTeam(teamID string) bool {
	return u.TeamID != nil && *u.TeamID == teamID
}

// Session is the long-lived credential referenced by the session cookie.
// The ID is the externally visible opaque token.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// MagicLink is a single-use, time-boxed login token. The ID doubles as the
// token embedded in the redemption URL.
type MagicLink struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	IsUsed    bool      `json:"is_used"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the link is past its expiry.
func (m *MagicLink) Expired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}
