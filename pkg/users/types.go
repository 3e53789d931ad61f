package users

import (
	"github.com/atrium-works/atrium/pkg/identity"
	"github.com/atrium-works/atrium/pkg/permissions"
)

// TenantRef is the tenant slice embedded in user projections.
type TenantRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TeamRef is the team slice embedded in user projections.
type TeamRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	TenantID string `json:"tenant_id"`
}

// Profile is a user expanded with their tenant and team.
type Profile struct {
	identity.User
	Tenant *TenantRef `json:"tenant,omitempty"`
	Team   *TeamRef   `json:"team,omitempty"`
}

// RoleDetail is a role expanded with its permissions, as seen through a
// group membership.
type RoleDetail struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Permissions []permissions.Permission `json:"permissions"`
}

// GroupMembership is a group the user belongs to, expanded with the roles
// attached to it.
type GroupMembership struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	TeamID string       `json:"team_id"`
	Roles  []RoleDetail `json:"roles"`
}

// DirectoryEntry is the admin directory projection: a user with tenant,
// team, and the full group/role/permission expansion.
type DirectoryEntry struct {
	identity.User
	Tenant *TenantRef        `json:"tenant,omitempty"`
	Team   *TeamRef          `json:"team,omitempty"`
	Groups []GroupMembership `json:"groups"`
}
