// Package teams owns the team lifecycle within a tenant: creation with
// creator self-enrollment, rename, listing, deep inspection, and the guarded
// delete that refuses while users or groups remain attached.
package teams

import (
	"context"

	"github.com/atrium-works/atrium/pkg/apperrors"
	"github.com/atrium-works/atrium/pkg/guard"
	"github.com/atrium-works/atrium/pkg/identity"
	"github.com/atrium-works/atrium/pkg/observability"
	"github.com/atrium-works/atrium/pkg/store"
)

// Service implements team operations with guard checks inline.
type Service struct {
	store *Store
	log   *observability.Logger
}

// NewService creates the team service.
func NewService(st *Store, log *observability.Logger) *Service {
	return &Service{store: st, log: log}
}

// Directory exposes the store as the guard layer's team directory.
func (s *Service) Directory() guard.TeamDirectory {
	return s.store
}

// CreateTeam creates a team in a tenant and attaches the creator to it.
// The name must be unique within the tenant.
func (s *Service) CreateTeam(ctx context.Context, name, tenantID string, actor *identity.User) (*Team, error) {
	if err := guard.Verified(actor); err != nil {
		return nil, err
	}
	if err := guard.AdminAndTenant(actor, tenantID); err != nil {
		return nil, err
	}

	exists, err := s.store.TenantExists(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NotFound("tenant", "Tenant not found")
	}

	taken, err := s.store.NameTakenInTenant(ctx, tenantID, name, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.Conflict("team", "Team name already exists in this tenant/organisation")
	}

	team, err := s.store.CreateTeam(ctx, tenantID, name)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperrors.Conflict("team", "Team name already exists in this tenant/organisation")
		}
		return nil, err
	}

	// The creator joins the team they just created.
	if err := s.store.AttachUser(ctx, team.ID, actor.ID); err != nil {
		return nil, err
	}

	s.log.WithFields(map[string]interface{}{
		"team_id":   team.ID,
		"tenant_id": tenantID,
	}).Infof("team %q created", team.Name)
	return team, nil
}

// GetTeamsForTenant lists the teams of a tenant.
func (s *Service) GetTeamsForTenant(ctx context.Context, tenantID string, actor *identity.User) ([]Team, error) {
	if err := guard.Verified(actor); err != nil {
		return nil, err
	}
	if err := guard.AdminAndTenant(actor, tenantID); err != nil {
		return nil, err
	}

	return s.store.ListTeamsByTenant(ctx, tenantID)
}

// GetTeamByID returns the deep projection of one team.
func (s *Service) GetTeamByID(ctx context.Context, teamID string, actor *identity.User) (*TeamDetail, error) {
	if err := guard.Verified(actor); err != nil {
		return nil, err
	}
	if err := guard.AdminOrTeamMember(actor, teamID); err != nil {
		return nil, err
	}

	detail, err := s.store.GetTeamDetail(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, apperrors.NotFound("team", "Team not found")
	}
	return detail, nil
}

// UpdateTeam renames a team, re-checking per-tenant uniqueness.
func (s *Service) UpdateTeam(ctx context.Context, teamID, name string, actor *identity.User) (*Team, error) {
	if err := guard.Verified(actor); err != nil {
		return nil, err
	}

	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team == nil {
		return nil, apperrors.NotFound("team", "Team not found")
	}

	if err := guard.AdminAndTenant(actor, team.TenantID); err != nil {
		return nil, err
	}

	if name == "" || name == team.Name {
		return team, nil
	}

	taken, err := s.store.NameTakenInTenant(ctx, team.TenantID, name, teamID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.Conflict("team", "Team name already exists in this tenant/organisation")
	}

	updated, err := s.store.UpdateTeamName(ctx, teamID, name)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperrors.Conflict("team", "Team name already exists in this tenant/organisation")
		}
		return nil, err
	}
	if updated == nil {
		return nil, apperrors.NotFound("team", "Team not found")
	}
	return updated, nil
}

// DeleteTeam removes a team. Admin only, and the team must have no attached
// users and no groups; this is a hard precondition, not a cascade.
func (s *Service) DeleteTeam(ctx context.Context, teamID string, actor *identity.User) error {
	if err := guard.Verified(actor); err != nil {
		return err
	}
	if err := guard.Admin(actor); err != nil {
		return err
	}

	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if team == nil {
		return apperrors.NotFound("team", "Team not found")
	}

	users, err := s.store.CountUsers(ctx, teamID)
	if err != nil {
		return err
	}
	if users > 0 {
		return apperrors.Conflict("team", "Cannot delete team: it still has users assigned. Remove them first.")
	}

	groups, err := s.store.CountGroups(ctx, teamID)
	if err != nil {
		return err
	}
	if groups > 0 {
		return apperrors.Conflict("team", "Cannot delete team: it still has groups. Delete them first.")
	}

	if _, err := s.store.DeleteTeam(ctx, teamID); err != nil {
		return err
	}

	s.log.WithField("team_id", teamID).Info("team deleted")
	return nil
}
