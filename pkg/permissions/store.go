package permissions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store handles permission persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new permission store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const permissionColumns = `id, module, action, name, description, created_at, updated_at`

// CreatePermission inserts a new permission.
func (s *Store) CreatePermission(ctx context.Context, module Module, action Action, name, description string) (*Permission, error) {
	query := `
		INSERT INTO permissions (id, module, action, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`

	perm := &Permission{
		ID:          uuid.NewString(),
		Module:      module,
		Action:      action,
		Name:        name,
		Description: description,
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query, perm.ID, module, action, name, description, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create permission: %w", err)
	}

	perm.CreatedAt = now
	perm.UpdatedAt = now
	return perm, nil
}

func scanPermission(row interface{ Scan(...interface{}) error }) (*Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.Module, &p.Action, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPermission retrieves a permission by ID, or nil if none exists.
func (s *Store) GetPermission(ctx context.Context, permissionID string) (*Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM permissions WHERE id = $1`

	perm, err := scanPermission(s.db.QueryRowContext(ctx, query, permissionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return perm, nil
}

// FindByModuleAction returns the permission for the (module, action) pair,
// or nil.
func (s *Store) FindByModuleAction(ctx context.Context, module Module, action Action) (*Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM permissions WHERE module = $1 AND action = $2`

	perm, err := scanPermission(s.db.QueryRowContext(ctx, query, module, action))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find permission: %w", err)
	}
	return perm, nil
}

// PairTakenByOther reports whether another permission already uses the
// (module, action) pair.
func (s *Store) PairTakenByOther(ctx context.Context, module Module, action Action, excludeID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM permissions WHERE module = $1 AND action = $2 AND id <> $3)`

	var taken bool
	if err := s.db.QueryRowContext(ctx, query, module, action, excludeID).Scan(&taken); err != nil {
		return false, fmt.Errorf("failed to check permission pair: %w", err)
	}
	return taken, nil
}

// ListPermissions returns all permissions ordered by module then action.
func (s *Store) ListPermissions(ctx context.Context) ([]Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM permissions ORDER BY module ASC, action ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	perms := []Permission{}
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Module, &p.Action, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// UpdatePermission updates the mutable fields. Returns nil if the permission
// does not exist.
func (s *Store) UpdatePermission(ctx context.Context, permissionID string, module Module, action Action, name, description string) (*Permission, error) {
	query := `
		UPDATE permissions
		SET module = $2, action = $3, name = $4, description = $5, updated_at = $6
		WHERE id = $1
		RETURNING ` + permissionColumns

	perm, err := scanPermission(s.db.QueryRowContext(ctx, query,
		permissionID, module, action, name, description, time.Now().UTC()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update permission: %w", err)
	}
	return perm, nil
}

// DeletePermission removes a permission.
func (s *Store) DeletePermission(ctx context.Context, permissionID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM permissions WHERE id = $1`, permissionID)
	if err != nil {
		return false, fmt.Errorf("failed to delete permission: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete permission: %w", err)
	}
	return affected > 0, nil
}

// ListReferencingRoleNames returns the names of roles still holding the
// permission.
func (s *Store) ListReferencingRoleNames(ctx context.Context, permissionID string) ([]string, error) {
	query := `
		SELECT r.name
		FROM role_permissions rp
		JOIN roles r ON r.id = rp.role_id
		WHERE rp.permission_id = $1
		ORDER BY r.name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, permissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list referencing roles: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan role name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
