package tenants

import (
	"time"

	"github.com/atrium-works/atrium/pkg/identity"
)

// Tenant is the top-level organizational boundary. It owns teams and
// directly-attached users.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserSummary is the trimmed user shape embedded in nested projections.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// TenantUser is the user shape listed directly under a tenant.
type TenantUser struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Email      string            `json:"email"`
	IsVerified bool              `json:"is_verified"`
	UserType   identity.UserType `json:"user_type"`
	CreatedAt  time.Time         `json:"created_at"`
}

// PermissionView is a permission embedded in the deep tenant projection.
type PermissionView struct {
	ID          string `json:"id"`
	Module      string `json:"module"`
	Action      string `json:"action"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RoleView is a role with its permissions, embedded in group projections.
type RoleView struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Permissions []PermissionView `json:"permissions"`
}

// GroupView is a group with its members and roles.
type GroupView struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Members []UserSummary `json:"members"`
	Roles   []RoleView    `json:"roles"`
}

// TeamView is a team with its users and fully expanded groups.
type TeamView struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Users  []UserSummary `json:"users"`
	Groups []GroupView   `json:"groups"`
}

// TenantDetail is the full nested projection returned for administrative
// inspection of a single tenant: teams, their groups, and each group's
// members, roles, and permissions.
type TenantDetail struct {
	Tenant
	Users []TenantUser `json:"users"`
	Teams []TeamView   `json:"teams"`
}
