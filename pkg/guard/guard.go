// Package guard is the single source of truth for access decisions. Every
// service method routes its authorization checks through these named
// predicates instead of ad hoc boolean conditions.
package guard

import (
	"context"

	"github.com/atrium-works/atrium/pkg/apperrors"
	"github.com/atrium-works/atrium/pkg/identity"
)

// TeamDirectory answers the team-residency questions CanManageTeamGroups
// needs. Implemented by the teams store.
type TeamDirectory interface {
	TeamExists(ctx context.Context, teamID string) (bool, error)
	IsTeamMember(ctx context.Context, teamID, userID string) (bool, error)
}

// Admin passes iff the actor is a platform administrator.
func Admin(user *identity.User) error {
	if user.IsAdmin() {
		return nil
	}
	return apperrors.Unauthorized("Unauthorized: Must be admin")
}

// AdminTo passes iff the actor is a platform administrator; action names the
// refused operation in the rejection message.
func AdminTo(user *identity.User, action string) error {
	if user.IsAdmin() {
		return nil
	}
	return apperrors.Unauthorized("Unauthorized: Only admins can " + action)
}

// SelfOrAdmin passes iff the actor is the subject user or an administrator.
func SelfOrAdmin(user *identity.User, subjectID string) error {
	if user.ID == subjectID || user.IsAdmin() {
		return nil
	}
	return apperrors.Unauthorized("Unauthorized: Can only update your own profile or be an admin")
}

// AdminAndTenant passes iff the actor is admin, or a USER belonging to the
// given tenant.
func AdminAndTenant(user *identity.User, tenantID string) error {
	if user.IsAdmin() {
		return nil
	}
	if user.UserType == identity.UserTypeUser && user.InTenant(tenantID) {
		return nil
	}
	return apperrors.Unauthorized("Unauthorized: Must be admin or belong to the same tenant")
}

// AdminOrTeamMember passes iff the actor is admin, or a USER belonging to the
// given team.
func AdminOrTeamMember(user *identity.User, teamID string) error {
	if user.IsAdmin() {
		return nil
	}
	if user.UserType == identity.UserTypeUser && user.InTeam(teamID) {
		return nil
	}
	return apperrors.Unauthorized("Unauthorized: Must be admin or team member")
}

// Verified passes iff the actor's account has been verified.
func Verified(user *identity.User) error {
	if user.IsVerified {
		return nil
	}
	return apperrors.Unauthorized("User is not verified")
}

// CanManageTeamGroups composes AdminOrTeamMember with a second residency
// check against the store: the team must exist, and a USER actor must
// literally be a member of that exact team. The double-check is intentional
// so a non-admin cannot manage groups of a team they merely claim.
func CanManageTeamGroups(ctx context.Context, dir TeamDirectory, user *identity.User, teamID string) error {
	if err := AdminOrTeamMember(user, teamID); err != nil {
		return err
	}

	exists, err := dir.TeamExists(ctx, teamID)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.NotFound("team", "Team not found")
	}

	if user.IsAdmin() {
		return nil
	}

	member, err := dir.IsTeamMember(ctx, teamID, user.ID)
	if err != nil {
		return err
	}
	if !member {
		return apperrors.Unauthorized("Unauthorized: Must be admin or team member to manage groups")
	}
	return nil
}
