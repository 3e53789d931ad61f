// Package roles owns role lifecycle, group attachment, and the role-level
// permission set. Role creation plus group attachment is the one multi-step
// mutation in the system that must be atomic.
package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/atrium-works/atrium/pkg/apperrors"
	"github.com/atrium-works/atrium/pkg/guard"
	"github.com/atrium-works/atrium/pkg/identity"
	"github.com/atrium-works/atrium/pkg/observability"
	"github.com/atrium-works/atrium/pkg/store"
)

// AccessInvalidator drops cached effective permissions when a role's reach
// changes. Optional; a nil invalidator is a no-op.
type AccessInvalidator interface {
	InvalidateGroupMembers(ctx context.Context, groupID string) error
	InvalidateRoleHolders(ctx context.Context, roleID string) error
}

// Service implements role operations with guard checks inline.
type Service struct {
	store       *Store
	teams       guard.TeamDirectory
	invalidator AccessInvalidator
	log         *observability.Logger
}

// NewService creates the role service. The invalidator may be nil.
func NewService(st *Store, teams guard.TeamDirectory, invalidator AccessInvalidator, log *observability.Logger) *Service {
	return &Service{store: st, teams: teams, invalidator: invalidator, log: log}
}

func (s *Service) invalidateGroup(ctx context.Context, groupID string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateGroupMembers(ctx, groupID); err != nil {
		s.log.WithError(err).Warn("failed to invalidate group permissions")
	}
}

func (s *Service) invalidateRole(ctx context.Context, roleID string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateRoleHolders(ctx, roleID); err != nil {
		s.log.WithError(err).Warn("failed to invalidate role permissions")
	}
}

// authorizeRoleAccess applies the role-level relaxation: admins pass, and a
// regular user passes if they belong to any team owning any group the role is
// attached to.
func (s *Service) authorizeRoleAccess(ctx context.Context, roleID string, actor *identity.User, denyMsg string) error {
	if actor.IsAdmin() {
		return nil
	}

	ok, err := s.store.IsUserInRoleTeams(ctx, roleID, actor.ID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Unauthorized(denyMsg)
	}
	return nil
}

// CreateRoleForGroup creates a role with its permissions and attaches it to
// the group atomically. The role name must not collide with any role already
// attached to that group, and every referenced permission must exist.
func (s *Service) CreateRoleForGroup(ctx context.Context, name, description string, permissionIDs []string, groupID string, actor *identity.User) (*RoleWithPermissions, error) {
	teamID, exists, err := s.store.GetGroupTeam(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NotFound("group", "Group not found")
	}

	if err := guard.CanManageTeamGroups(ctx, s.teams, actor, teamID); err != nil {
		return nil, err
	}

	nameTaken, err := s.store.RoleNameExistsInGroup(ctx, groupID, name, "")
	if err != nil {
		return nil, err
	}
	if nameTaken {
		return nil, apperrors.Conflict("role", "Role/Role name already exists for this group")
	}

	if len(permissionIDs) > 0 {
		count, err := s.store.CountPermissions(ctx, permissionIDs)
		if err != nil {
			return nil, err
		}
		if count != len(permissionIDs) {
			return nil, apperrors.Validation("role", "Some permissions not found")
		}
	}

	role, err := s.store.CreateRoleForGroup(ctx, name, description, permissionIDs, groupID)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperrors.Conflict("role", "Role/Role name already exists for this group")
		}
		return nil, err
	}

	s.invalidateGroup(ctx, groupID)
	s.log.WithFields(map[string]interface{}{
		"role_id":  role.ID,
		"group_id": groupID,
	}).Infof("role %q created", role.Name)

	perms, err := s.store.ListRolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	return &RoleWithPermissions{Role: *role, Permissions: perms}, nil
}

// AssignRoleToGroup attaches an existing role to a group.
func (s *Service) AssignRoleToGroup(ctx context.Context, roleID, groupID string, actor *identity.User) (*GroupRole, error) {
	teamID, exists, err := s.store.GetGroupTeam(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NotFound("group", "Group not found")
	}

	if err := guard.CanManageTeamGroups(ctx, s.teams, actor, teamID); err != nil {
		return nil, err
	}

	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, apperrors.NotFound("role", "Role not found")
	}

	assigned, err := s.store.GroupRoleExists(ctx, groupID, roleID)
	if err != nil {
		return nil, err
	}
	if assigned {
		return nil, apperrors.Conflict("role", "Role is already assigned to this group")
	}

	if err := s.store.AttachRoleToGroup(ctx, groupID, roleID); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperrors.Conflict("role", "Role is already assigned to this group")
		}
		return nil, err
	}

	s.invalidateGroup(ctx, groupID)
	return &GroupRole{GroupID: groupID, RoleID: roleID}, nil
}

// RemoveRoleFromGroup detaches a role from a group.
func (s *Service) RemoveRoleFromGroup(ctx context.Context, roleID, groupID string, actor *identity.User) error {
	teamID, exists, err := s.store.GetGroupTeam(ctx, groupID)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.NotFound("group", "Group not found")
	}

	if err := guard.CanManageTeamGroups(ctx, s.teams, actor, teamID); err != nil {
		return err
	}

	assigned, err := s.store.GroupRoleExists(ctx, groupID, roleID)
	if err != nil {
		return err
	}
	if !assigned {
		return apperrors.Validation("role", "Role is not assigned to this group")
	}

	if _, err := s.store.DetachRoleFromGroup(ctx, groupID, roleID); err != nil {
		return err
	}
	// Invalidate after the detach so a concurrent resolution cannot
	// repopulate the cache with the revoked grant.
	s.invalidateGroup(ctx, groupID)
	return nil
}

// GetRolesByGroup returns the group's roles with their permissions.
//
// The guard runs against the actor's own team, not the team owning the
// requested group; a user whose own team passes the check can read roles of
// groups outside it. Kept to match the established behavior.
func (s *Service) GetRolesByGroup(ctx context.Context, groupID string, actor *identity.User) ([]RoleWithPermissions, error) {
	var actorTeam string
	if actor.TeamID != nil {
		actorTeam = *actor.TeamID
	}
	if err := guard.CanManageTeamGroups(ctx, s.teams, actor, actorTeam); err != nil {
		return nil, err
	}

	exists, err := s.store.GroupExists(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NotFound("group", "Group not found")
	}

	return s.store.ListRolesByGroup(ctx, groupID)
}

// GetRoleByID returns one role with its permissions and group attachments.
func (s *Service) GetRoleByID(ctx context.Context, roleID string, actor *identity.User) (*RoleWithPermissions, []GroupRef, error) {
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, nil, err
	}
	if role == nil {
		return nil, nil, apperrors.NotFound("role", "Role not found")
	}

	if err := s.authorizeRoleAccess(ctx, roleID, actor, "Unauthorized: Cannot view this role"); err != nil {
		return nil, nil, err
	}

	perms, err := s.store.ListRolePermissions(ctx, roleID)
	if err != nil {
		return nil, nil, err
	}
	groups, err := s.store.ListRoleGroups(ctx, roleID)
	if err != nil {
		return nil, nil, err
	}
	return &RoleWithPermissions{Role: *role, Permissions: perms}, groups, nil
}

// UpdateRole renames a role or rewrites its description. A rename must not
// collide with another role in any group this role is attached to.
func (s *Service) UpdateRole(ctx context.Context, roleID, name, description string, actor *identity.User) (*RoleWithPermissions, error) {
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, apperrors.NotFound("role", "Role not found")
	}

	if err := s.authorizeRoleAccess(ctx, roleID, actor, "Unauthorized: Cannot update this role"); err != nil {
		return nil, err
	}

	if name != "" && name != role.Name {
		groups, err := s.store.ListRoleGroups(ctx, roleID)
		if err != nil {
			return nil, err
		}
		for _, g := range groups {
			collides, err := s.store.RoleNameExistsInGroup(ctx, g.GroupID, name, roleID)
			if err != nil {
				return nil, err
			}
			if collides {
				return nil, apperrors.Conflict("role", fmt.Sprintf("Role name already exists in group: %s", g.GroupName))
			}
		}
	}

	if name == "" {
		name = role.Name
	}
	if description == "" {
		description = role.Description
	}

	updated, err := s.store.UpdateRole(ctx, roleID, name, description)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperrors.NotFound("role", "Role not found")
	}

	perms, err := s.store.ListRolePermissions(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return &RoleWithPermissions{Role: *updated, Permissions: perms}, nil
}

// DeleteRole removes a role. It must first be detached from every group; the
// failure lists the groups still holding it.
func (s *Service) DeleteRole(ctx context.Context, roleID string, actor *identity.User) error {
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role == nil {
		return apperrors.NotFound("role", "Role not found")
	}

	if err := s.authorizeRoleAccess(ctx, roleID, actor, "Unauthorized: Cannot delete this role"); err != nil {
		return err
	}

	groups, err := s.store.ListRoleGroups(ctx, roleID)
	if err != nil {
		return err
	}
	if len(groups) > 0 {
		names := make([]string, len(groups))
		for i, g := range groups {
			names[i] = g.GroupName
		}
		return apperrors.Conflict("role", fmt.Sprintf(
			"Cannot delete role. It is currently assigned to the following groups: %s. Please remove the role from these groups first.",
			strings.Join(names, ", ")))
	}

	if _, err := s.store.DeleteRole(ctx, roleID); err != nil {
		return err
	}

	s.log.WithField("role_id", roleID).Info("role deleted")
	return nil
}

// AddPermissionsToRole links permissions to a role. Every referenced
// permission must exist, and at least one must not already be linked.
func (s *Service) AddPermissionsToRole(ctx context.Context, roleID string, permissionIDs []string, actor *identity.User) (*PermissionChange, error) {
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, apperrors.NotFound("role", "Role not found")
	}

	if err := s.authorizeRoleAccess(ctx, roleID, actor, "Unauthorized: Cannot manage this role"); err != nil {
		return nil, err
	}

	count, err := s.store.CountPermissions(ctx, permissionIDs)
	if err != nil {
		return nil, err
	}
	if count != len(permissionIDs) {
		return nil, apperrors.Validation("role", "One or more permissions not found")
	}

	existing, err := s.store.ListRolePermissionIDs(ctx, roleID)
	if err != nil {
		return nil, err
	}
	existingSet := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		existingSet[id] = struct{}{}
	}

	newIDs := []string{}
	for _, id := range permissionIDs {
		if _, ok := existingSet[id]; !ok {
			newIDs = append(newIDs, id)
		}
	}
	if len(newIDs) == 0 {
		return nil, apperrors.Validation("role", "All specified permissions are already assigned to this role")
	}

	if err := s.store.AddRolePermissions(ctx, roleID, newIDs); err != nil {
		return nil, err
	}

	s.invalidateRole(ctx, roleID)
	return &PermissionChange{
		Message:       fmt.Sprintf("Added %d permissions to role", len(newIDs)),
		PermissionIDs: newIDs,
	}, nil
}

// RemovePermissionsFromRole unlinks permissions from a role. At least one of
// the requested permissions must currently be linked.
func (s *Service) RemovePermissionsFromRole(ctx context.Context, roleID string, permissionIDs []string, actor *identity.User) (*PermissionChange, error) {
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, apperrors.NotFound("role", "Role not found")
	}

	if err := s.authorizeRoleAccess(ctx, roleID, actor, "Unauthorized: Cannot manage this role"); err != nil {
		return nil, err
	}

	removed, err := s.store.RemoveRolePermissions(ctx, roleID, permissionIDs)
	if err != nil {
		return nil, err
	}
	if len(removed) == 0 {
		return nil, apperrors.Validation("role", "None of the specified permissions are assigned to this role")
	}

	s.invalidateRole(ctx, roleID)
	return &PermissionChange{
		Message:       fmt.Sprintf("Removed %d permissions from role", len(removed)),
		PermissionIDs: removed,
	}, nil
}
