// Package tenants owns the tenant lifecycle and user-to-tenant assignment.
package tenants

import (
	"context"

	"github.com/atrium-works/atrium/pkg/apperrors"
	"github.com/atrium-works/atrium/pkg/guard"
	"github.com/atrium-works/atrium/pkg/identity"
	"github.com/atrium-works/atrium/pkg/observability"
	"github.com/atrium-works/atrium/pkg/store"
)

// Service implements tenant operations with guard checks inline.
type Service struct {
	store *Store
	log   *observability.Logger
}

// NewService creates the tenant service.
func NewService(st *Store, log *observability.Logger) *Service {
	return &Service{store: st, log: log}
}

// CreateTenant creates a tenant with a globally unique name. Admin only.
func (s *Service) CreateTenant(ctx context.Context, name string, actor *identity.User) (*Tenant, error) {
	if err := guard.Admin(actor); err != nil {
		return nil, err
	}

	existing, err := s.store.FindTenantByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.Conflict("tenant", "Tenant with this name already exists")
	}

	tenant, err := s.store.CreateTenant(ctx, name)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperrors.Conflict("tenant", "Tenant with this name already exists")
		}
		return nil, err
	}

	s.log.WithField("tenant_id", tenant.ID).Infof("tenant %q created", tenant.Name)
	return tenant, nil
}

// GetTenants lists tenants visible to the actor: every tenant for admins, the
// actor's own tenant (or nothing) for regular users.
func (s *Service) GetTenants(ctx context.Context, actor *identity.User) ([]Tenant, error) {
	if err := guard.Verified(actor); err != nil {
		return nil, err
	}

	if actor.IsAdmin() {
		return s.store.ListTenants(ctx)
	}
	// A user without a tenant has an empty visible set, not an
	// authorization failure.
	if actor.TenantID == nil {
		return []Tenant{}, nil
	}
	if err := guard.AdminAndTenant(actor, *actor.TenantID); err != nil {
		return nil, err
	}
	return s.store.ListTenantsByID(ctx, *actor.TenantID)
}

// GetTenantByID returns the full nested projection of one tenant for
// administrative inspection.
func (s *Service) GetTenantByID(ctx context.Context, tenantID string, actor *identity.User) (*TenantDetail, error) {
	if err := guard.Verified(actor); err != nil {
		return nil, err
	}
	if err := guard.AdminAndTenant(actor, tenantID); err != nil {
		return nil, err
	}

	detail, err := s.store.GetTenantDetail(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, apperrors.NotFound("tenant", "Tenant not found")
	}
	return detail, nil
}

// UpdateTenant renames a tenant. Admin only; the new name must remain
// globally unique.
func (s *Service) UpdateTenant(ctx context.Context, tenantID, name string, actor *identity.User) (*Tenant, error) {
	if err := guard.Verified(actor); err != nil {
		return nil, err
	}
	if err := guard.Admin(actor); err != nil {
		return nil, err
	}

	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, apperrors.NotFound("tenant", "Tenant not found")
	}

	if name == "" || name == tenant.Name {
		return tenant, nil
	}

	taken, err := s.store.NameTakenByOther(ctx, name, tenantID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.Conflict("tenant", "Tenant name already exists")
	}

	updated, err := s.store.UpdateTenantName(ctx, tenantID, name)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperrors.Conflict("tenant", "Tenant name already exists")
		}
		return nil, err
	}
	if updated == nil {
		return nil, apperrors.NotFound("tenant", "Tenant not found")
	}
	return updated, nil
}

// DeleteTenant removes a tenant unconditionally; the store cascades teams and
// groups and detaches users. Admin only.
func (s *Service) DeleteTenant(ctx context.Context, tenantID string, actor *identity.User) (*Tenant, error) {
	if err := guard.Verified(actor); err != nil {
		return nil, err
	}
	if err := guard.Admin(actor); err != nil {
		return nil, err
	}

	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, apperrors.NotFound("tenant", "Tenant not found")
	}

	if _, err := s.store.DeleteTenant(ctx, tenantID); err != nil {
		return nil, err
	}

	s.log.WithField("tenant_id", tenantID).Info("tenant deleted")
	return tenant, nil
}

// AssignUserToTenant points a user at a tenant.
func (s *Service) AssignUserToTenant(ctx context.Context, userID, tenantID string, actor *identity.User) (*identity.User, error) {
	if err := guard.Verified(actor); err != nil {
		return nil, err
	}
	if err := guard.AdminAndTenant(actor, tenantID); err != nil {
		return nil, err
	}

	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, apperrors.NotFound("tenant", "Tenant not found")
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.NotFound("user", "User not found")
	}

	if err := s.store.SetUserTenant(ctx, userID, tenantID); err != nil {
		return nil, err
	}

	user.TenantID = &tenant.ID
	return user, nil
}

// RemoveUserFromTenant clears a user's tenant reference. The user must
// currently belong to the given tenant.
func (s *Service) RemoveUserFromTenant(ctx context.Context, userID, tenantID string, actor *identity.User) (*identity.User, error) {
	if err := guard.Verified(actor); err != nil {
		return nil, err
	}
	if err := guard.AdminAndTenant(actor, tenantID); err != nil {
		return nil, err
	}

	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, apperrors.NotFound("tenant", "Tenant not found")
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.InTenant(tenantID) {
		return nil, apperrors.NotFound("user", "User not found or not in tenant")
	}

	if err := s.store.SetUserTenant(ctx, userID, ""); err != nil {
		return nil, err
	}

	user.TenantID = nil
	user.TeamID = nil
	return user, nil
}
