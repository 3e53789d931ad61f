// Package groups owns group lifecycle and membership within a team. Group
// management rights always go through the team-residency double-check.
package groups

import (
	"context"

	"github.com/atrium-works/atrium/pkg/apperrors"
	"github.com/atrium-works/atrium/pkg/guard"
	"github.com/atrium-works/atrium/pkg/identity"
	"github.com/atrium-works/atrium/pkg/observability"
	"github.com/atrium-works/atrium/pkg/store"
)

// AccessInvalidator drops cached effective permissions when membership
// changes. Optional; a nil invalidator is a no-op.
type AccessInvalidator interface {
	InvalidateUser(ctx context.Context, userID string) error
	InvalidateGroupMembers(ctx context.Context, groupID string) error
}

// Service implements group operations with guard checks inline.
type Service struct {
	store       *Store
	teams       guard.TeamDirectory
	invalidator AccessInvalidator
	log         *observability.Logger
}

// NewService creates the group service. The invalidator may be nil.
func NewService(st *Store, teams guard.TeamDirectory, invalidator AccessInvalidator, log *observability.Logger) *Service {
	return &Service{store: st, teams: teams, invalidator: invalidator, log: log}
}

func (s *Service) invalidateUser(ctx context.Context, userID string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateUser(ctx, userID); err != nil {
		s.log.WithError(err).Warn("failed to invalidate user permissions")
	}
}

func (s *Service) invalidateGroup(ctx context.Context, groupID string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateGroupMembers(ctx, groupID); err != nil {
		s.log.WithError(err).Warn("failed to invalidate group permissions")
	}
}

// CreateGroup creates a group in a team and enrolls the creator as its first
// member. The name must be unique within the team.
func (s *Service) CreateGroup(ctx context.Context, name, teamID string, actor *identity.User) (*Group, error) {
	if err := guard.Verified(actor); err != nil {
		return nil, err
	}
	if err := guard.CanManageTeamGroups(ctx, s.teams, actor, teamID); err != nil {
		return nil, err
	}

	taken, err := s.store.NameTakenInTeam(ctx, teamID, name, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.Conflict("group", "Group name already exists in this team")
	}

	group, err := s.store.CreateGroup(ctx, teamID, name)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperrors.Conflict("group", "Group name already exists in this team")
		}
		return nil, err
	}

	if err := s.store.AddMember(ctx, group.ID, actor.ID); err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]interface{}{
		"group_id": group.ID,
		"team_id":  teamID,
	}).Infof("group %q created", group.Name)
	return group, nil
}

// UpdateGroup renames a group, re-checking per-team uniqueness.
func (s *Service) UpdateGroup(ctx context.Context, groupID, name string, actor *identity.User) (*Group, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, apperrors.NotFound("group", "Group not found")
	}

	if err := guard.CanManageTeamGroups(ctx, s.teams, actor, group.TeamID); err != nil {
		return nil, err
	}

	if name == "" || name == group.Name {
		return group, nil
	}

	taken, err := s.store.NameTakenInTeam(ctx, group.TeamID, name, groupID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.Conflict("group", "Group name already exists in this team")
	}

	updated, err := s.store.UpdateGroupName(ctx, groupID, name)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperrors.Conflict("group", "Group name already exists in this team")
		}
		return nil, err
	}
	if updated == nil {
		return nil, apperrors.NotFound("group", "Group not found")
	}
	return updated, nil
}

// GetGroupsByTeam lists the team's groups newest first, with nested member
// and role projections.
func (s *Service) GetGroupsByTeam(ctx context.Context, teamID string, actor *identity.User) ([]GroupWithMembers, error) {
	if err := guard.AdminOrTeamMember(actor, teamID); err != nil {
		return nil, err
	}
	return s.store.ListGroupsByTeam(ctx, teamID)
}

// AddUserToGroup enrolls a user. The user must belong to the same tenant as
// the team owning the group and must not already be a member.
func (s *Service) AddUserToGroup(ctx context.Context, userID, groupID string, actor *identity.User) (*Membership, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, apperrors.NotFound("group", "Group not found")
	}

	if err := guard.CanManageTeamGroups(ctx, s.teams, actor, group.TeamID); err != nil {
		return nil, err
	}

	userTenant, exists, err := s.store.GetUserTenant(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NotFound("user", "User not found")
	}

	groupTenant, err := s.store.GetGroupTenant(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if userTenant == nil || *userTenant != groupTenant {
		return nil, apperrors.Validation("group", "User does not belong to the same tenant/organisation as the team")
	}

	member, err := s.store.IsMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if member {
		return nil, apperrors.Conflict("group", "User is already a member of this group")
	}

	if err := s.store.AddMember(ctx, groupID, userID); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperrors.Conflict("group", "User is already a member of this group")
		}
		return nil, err
	}

	s.invalidateUser(ctx, userID)
	return &Membership{UserID: userID, GroupID: groupID}, nil
}

// RemoveUserFromGroup withdraws a user's membership.
func (s *Service) RemoveUserFromGroup(ctx context.Context, userID, groupID string, actor *identity.User) error {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group == nil {
		return apperrors.NotFound("group", "Group not found")
	}

	if err := guard.CanManageTeamGroups(ctx, s.teams, actor, group.TeamID); err != nil {
		return err
	}

	member, err := s.store.IsMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !member {
		return apperrors.Validation("group", "User is not a member of this group")
	}

	if _, err := s.store.RemoveMember(ctx, groupID, userID); err != nil {
		return err
	}

	s.invalidateUser(ctx, userID)
	return nil
}

// GetGroupMembers returns the group together with its members, newest first.
func (s *Service) GetGroupMembers(ctx context.Context, groupID string, actor *identity.User) (*Group, []UserSummary, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	if group == nil {
		return nil, nil, apperrors.NotFound("group", "Group not found")
	}

	if err := guard.AdminOrTeamMember(actor, group.TeamID); err != nil {
		return nil, nil, err
	}

	members, err := s.store.ListMembers(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	return group, members, nil
}

// GetGroupRoles returns the roles attached to a group, newest first.
func (s *Service) GetGroupRoles(ctx context.Context, groupID string, actor *identity.User) ([]RoleSummary, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, apperrors.NotFound("group", "Group not found")
	}

	if err := guard.AdminOrTeamMember(actor, group.TeamID); err != nil {
		return nil, err
	}

	return s.store.ListRoles(ctx, groupID)
}

// DeleteGroup removes a group; memberships and role links cascade.
func (s *Service) DeleteGroup(ctx context.Context, groupID string, actor *identity.User) error {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group == nil {
		return apperrors.NotFound("group", "Group not found")
	}

	if err := guard.CanManageTeamGroups(ctx, s.teams, actor, group.TeamID); err != nil {
		return err
	}

	// Capture cache invalidation targets before the membership rows cascade.
	s.invalidateGroup(ctx, groupID)

	if _, err := s.store.DeleteGroup(ctx, groupID); err != nil {
		return err
	}

	s.log.WithField("group_id", groupID).Info("group deleted")
	return nil
}

// GetUserGroups lists the groups the actor belongs to, newest first.
func (s *Service) GetUserGroups(ctx context.Context, actor *identity.User) ([]Group, error) {
	if err := guard.Verified(actor); err != nil {
		return nil, err
	}
	return s.store.ListGroupsForUser(ctx, actor.ID)
}
