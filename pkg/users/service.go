// Package users exposes profile reads, the tenant-scoped admin directory,
// and the administrative user mutations.
package users

import (
	"context"

	"github.com/atrium-works/atrium/pkg/apperrors"
	"github.com/atrium-works/atrium/pkg/guard"
	"github.com/atrium-works/atrium/pkg/identity"
	"github.com/atrium-works/atrium/pkg/observability"
	"github.com/atrium-works/atrium/pkg/store"
)

// AccessInvalidator drops a user's cached effective permissions when their
// account moves or disappears. Optional; a nil invalidator is a no-op.
type AccessInvalidator interface {
	InvalidateUser(ctx context.Context, userID string) error
}

// Service implements user operations with guard checks inline.
type Service struct {
	store       *Store
	invalidator AccessInvalidator
	log         *observability.Logger
}

// NewService creates the user service. The invalidator may be nil.
func NewService(st *Store, invalidator AccessInvalidator, log *observability.Logger) *Service {
	return &Service{store: st, invalidator: invalidator, log: log}
}

func (s *Service) invalidateUser(ctx context.Context, userID string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateUser(ctx, userID); err != nil {
		s.log.WithError(err).Warn("failed to invalidate user permissions")
	}
}

// GetUserByEmail looks a user up by email. Returns nil when no account
// exists; callers decide whether that is an error.
func (s *Service) GetUserByEmail(ctx context.Context, email string) (*identity.User, error) {
	return s.store.FindUserByEmail(ctx, email)
}

// GetUserProfile returns the actor's own record with tenant and team.
func (s *Service) GetUserProfile(ctx context.Context, actor *identity.User) (*Profile, error) {
	profile, err := s.store.GetProfile(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, apperrors.NotFound("user", "User not found")
	}
	return profile, nil
}

// GetAllUsers returns the tenant's full user directory, newest first.
// Admin only.
func (s *Service) GetAllUsers(ctx context.Context, tenantID string, actor *identity.User) ([]DirectoryEntry, error) {
	if err := guard.AdminTo(actor, "view all users"); err != nil {
		return nil, err
	}
	return s.store.ListDirectory(ctx, tenantID)
}

// UpdateUserProfile rewrites a user's name and/or email. Users edit only
// themselves; admins edit anyone. Empty fields keep their current value.
func (s *Service) UpdateUserProfile(ctx context.Context, userID, name, email string, actor *identity.User) (*identity.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.NotFound("user", "User not found")
	}

	if err := guard.SelfOrAdmin(actor, userID); err != nil {
		return nil, err
	}

	if email != "" && email != user.Email {
		taken, err := s.store.EmailTakenByOther(ctx, email, userID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperrors.Conflict("user", "Email already exists")
		}
	}

	if name == "" {
		name = user.Name
	}
	if email == "" {
		email = user.Email
	}

	updated, err := s.store.UpdateProfile(ctx, userID, name, email)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperrors.Conflict("user", "Email already exists")
		}
		return nil, err
	}
	if updated == nil {
		return nil, apperrors.NotFound("user", "User not found")
	}
	return updated, nil
}

// UpdateUserTenant moves a user to another tenant and clears their team
// assignment. Admin only.
func (s *Service) UpdateUserTenant(ctx context.Context, userID, tenantID string, actor *identity.User) (*identity.User, error) {
	if err := guard.AdminTo(actor, "move users between tenants"); err != nil {
		return nil, err
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.NotFound("user", "User not found")
	}

	exists, err := s.store.TenantExists(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NotFound("tenant", "Tenant not found")
	}

	updated, err := s.store.SetTenant(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperrors.NotFound("user", "User not found")
	}

	s.invalidateUser(ctx, userID)
	s.log.WithFields(map[string]interface{}{
		"user_id":   userID,
		"tenant_id": tenantID,
	}).Info("user moved to tenant")
	return updated, nil
}

// DeleteUser removes a user. Admin only, and admins cannot delete their own
// account.
func (s *Service) DeleteUser(ctx context.Context, userID string, actor *identity.User) error {
	if err := guard.AdminTo(actor, "delete users"); err != nil {
		return err
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return apperrors.NotFound("user", "User not found")
	}

	if actor.ID == userID {
		return apperrors.Validation("user", "Cannot delete your own account, you are an admin")
	}

	s.invalidateUser(ctx, userID)
	deleted, err := s.store.DeleteUser(ctx, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return apperrors.NotFound("user", "User not found")
	}

	s.log.WithField("user_id", userID).Info("user deleted")
	return nil
}
