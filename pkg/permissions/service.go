// Package permissions owns the (module, action) capability catalog. All
// mutations are admin only.
package permissions

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

// Service implements permission operations with guard checks inline.
type Service struct {
	store *Store
	log   *observability.Logger
}

// NewService creates the permission service.
func NewService(st *Store, log *observability.Logger) *Service {
	return &Service{store: st, log: log}
}

// CreatePermission creates a permission for a (module, action) pair. Admin
// only; the pair must be globally unique.
func (s *Service) CreatePermission(ctx context.Context, module Module, action Action, name, description string, actor *identity.User) (*Permission, error) {
	if err := guard.Admin(actor); err != nil {
		return nil, err
	}

	if !module.Valid() {
		return nil, apperrors.Validation("permission", fmt.Sprintf("Invalid module: %s", module))
	}
	if !action.Valid() {
		return nil, apperrors.Validation("permission", fmt.Sprintf("Invalid action: %s", action))
	}

	existing, err := s.store.FindByModuleAction(ctx, module, action)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.Conflict("permission", "Permission already exists for this module and action")
	}

	perm, err := s.store.CreatePermission(ctx, module, action, name, description)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperrors.Conflict("permission", "Permission already exists for this module and action")
		}
		return nil, err
	}

	s.log.WithField("permission_id", perm.ID).Infof("permission %s:%s created", module, action)
	return perm, nil
}

// SeedAdminPermissions creates the full module x action cross product,
// skipping pairs that already exist. Individual failures are logged, not
// fatal to the batch. Returns the permissions created by this call.
func (s *Service) SeedAdminPermissions(ctx context.Context, actor *identity.User) ([]Permission, error) {
	if err := guard.Admin(actor); err != nil {
		return nil, err
	}

	created := []Permission{}
	for _, module := range AllModules() {
		for _, action := range AllActions() {
			name := fmt.Sprintf("%s:%s", module, action)
			perm, err := s.CreatePermission(ctx, module, action, name, name, actor)
			if err != nil {
				s.log.WithError(err).Warnf("failed to seed permission for module: %s, action: %s", module, action)
				continue
			}
			created = append(created, *perm)
		}
	}
	return created, nil
}

// GetPermissions lists all permissions ordered by module then action.
func (s *Service) GetPermissions(ctx context.Context, actor *identity.User) ([]Permission, error) {
	if err := guard.Admin(actor); err != nil {
		return nil, err
	}
	return s.store.ListPermissions(ctx)
}

// GetPermissionByID returns one permission.
func (s *Service) GetPermissionByID(ctx context.Context, permissionID string, actor *identity.User) (*Permission, error) {
	if err := guard.Admin(actor); err != nil {
		return nil, err
	}

	perm, err := s.store.GetPermission(ctx, permissionID)
	if err != nil {
		return nil, err
	}
	if perm == nil {
		return nil, apperrors.NotFound("permission", "Permission not found")
	}
	return perm, nil
}

// UpdatePermission rewrites a permission, re-checking pair uniqueness when
// the (module, action) pair changes. Admin only.
func (s *Service) UpdatePermission(ctx context.Context, permissionID string, module Module, action Action, name, description string, actor *identity.User) (*Permission, error) {
	if err := guard.Admin(actor); err != nil {
		return nil, err
	}

	perm, err := s.store.GetPermission(ctx, permissionID)
	if err != nil {
		return nil, err
	}
	if perm == nil {
		return nil, apperrors.NotFound("permission", "Permission not found")
	}

	if module == "" {
		module = perm.Module
	}
	if action == "" {
		action = perm.Action
	}
	if !module.Valid() {
		return nil, apperrors.Validation("permission", fmt.Sprintf("Invalid module: %s", module))
	}
	if !action.Valid() {
		return nil, apperrors.Validation("permission", fmt.Sprintf("Invalid action: %s", action))
	}
	if name == "" {
		name = perm.Name
	}
	if description == "" {
		description = perm.Description
	}

	if module != perm.Module || action != perm.Action {
		taken, err := s.store.PairTakenByOther(ctx, module, action, permissionID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperrors.Conflict("permission", "Permission already exists for this module and action")
		}
	}

	updated, err := s.store.UpdatePermission(ctx, permissionID, module, action, name, description)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperrors.Conflict("permission", "Permission already exists for this module and action")
		}
		return nil, err
	}
	if updated == nil {
		return nil, apperrors.NotFound("permission", "Permission not found")
	}
	return updated, nil
}

// DeletePermission removes a permission. Admin only; fails while any role
// still references it, listing the referencing role names.
func (s *Service) DeletePermission(ctx context.Context, permissionID string, actor *identity.User) error {
	if err := guard.Admin(actor); err != nil {
		return err
	}

	perm, err := s.store.GetPermission(ctx, permissionID)
	if err != nil {
		return err
	}
	if perm == nil {
		return apperrors.NotFound("permission", "Permission not found")
	}

	roleNames, err := s.store.ListReferencingRoleNames(ctx, permissionID)
	if err != nil {
		return err
	}
	if len(roleNames) > 0 {
		return apperrors.Conflict("permission", fmt.Sprintf(
			"Cannot delete permission. It is currently used by the following roles: %s. Please remove the permission from these roles first.",
			strings.Join(roleNames, ", ")))
	}

	if _, err := s.store.DeletePermission(ctx, permissionID); err != nil {
		return err
	}

	s.log.WithField("permission_id", permissionID).Info("permission deleted")
	return nil
}
