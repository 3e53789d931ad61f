package roles

import (
	"time"

	"github.com/atrium-works/atrium/pkg/permissions"
)

// Role is a named bundle of permissions, attachable to one or more groups.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RoleWithPermissions is a role expanded with its permission set.
type RoleWithPermissions struct {
	Role
	Permissions []permissions.Permission `json:"permissions"`
}

// GroupRef identifies a group a role is attached to.
type GroupRef struct {
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
	TeamID    string `json:"team_id"`
}

// GroupRole is the attachment of a role to a group.
type GroupRole struct {
	GroupID string `json:"group_id"`
	RoleID  string `json:"role_id"`
}

// PermissionChange reports the outcome of a bulk permission mutation.
type PermissionChange struct {
	Message       string   `json:"message"`
	PermissionIDs []string `json:"permission_ids"`
}
