package roles

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/atrium-works/atrium/pkg/permissions"
	"github.com/atrium-works/atrium/pkg/store"
)

// Store handles role persistence: roles, their permission links, and their
// group attachments.
type Store struct {
	db *sql.DB
}

// NewStore creates a new role store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const roleColumns = `id, name, description, created_at, updated_at`

// GetGroupTeam returns the team owning a group. The second return reports
// whether the group exists.
func (s *Store) GetGroupTeam(ctx context.Context, groupID string) (string, bool, error) {
	var teamID string
	err := s.db.QueryRowContext(ctx,
		`SELECT team_id FROM groups WHERE id = $1`, groupID).Scan(&teamID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get group team: %w", err)
	}
	return teamID, true, nil
}

// GroupExists reports whether the group exists.
func (s *Store) GroupExists(ctx context.Context, groupID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM groups WHERE id = $1)`, groupID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check group: %w", err)
	}
	return exists, nil
}

// RoleNameExistsInGroup reports whether a role with the name is already
// attached to the group, excluding one role ID (pass "" when creating).
func (s *Store) RoleNameExistsInGroup(ctx context.Context, groupID, name, excludeRoleID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM group_roles gr
			JOIN roles r ON r.id = gr.role_id
			WHERE gr.group_id = $1 AND r.name = $2 AND r.id <> $3
		)
	`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, groupID, name, excludeRoleID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check role name in group: %w", err)
	}
	return exists, nil
}

// CountPermissions returns how many of the given permission IDs exist.
func (s *Store) CountPermissions(ctx context.Context, permissionIDs []string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM permissions WHERE id = ANY($1)`,
		pq.Array(permissionIDs)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count permissions: %w", err)
	}
	return count, nil
}

// CreateRoleForGroup creates the role, links its permissions, and attaches it
// to the group in one transaction. Partial creation is not observable: all
// three steps commit together or none do.
func (s *Store) CreateRoleForGroup(ctx context.Context, name, description string, permissionIDs []string, groupID string) (*Role, error) {
	role := &Role{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
	}
	now := time.Now().UTC()

	err := store.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO roles (id, name, description, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
		`, role.ID, name, description, now)
		if err != nil {
			return fmt.Errorf("failed to create role: %w", err)
		}

		for _, permissionID := range permissionIDs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO role_permissions (id, role_id, permission_id, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $4)
			`, uuid.NewString(), role.ID, permissionID, now)
			if err != nil {
				return fmt.Errorf("failed to link role permission: %w", err)
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO group_roles (id, group_id, role_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
		`, uuid.NewString(), groupID, role.ID, now)
		if err != nil {
			return fmt.Errorf("failed to attach role to group: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return role, nil
}

// GetRole retrieves a role by ID, or nil if none exists.
func (s *Store) GetRole(ctx context.Context, roleID string) (*Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE id = $1`

	var r Role
	err := s.db.QueryRowContext(ctx, query, roleID).
		Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &r, nil
}

// ListRolePermissions returns the permissions linked to a role.
func (s *Store) ListRolePermissions(ctx context.Context, roleID string) ([]permissions.Permission, error) {
	query := `
		SELECT p.id, p.module, p.action, p.name, p.description, p.created_at, p.updated_at
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.module ASC, p.action ASC
	`

	rows, err := s.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role permissions: %w", err)
	}
	defer rows.Close()

	perms := []permissions.Permission{}
	for rows.Next() {
		var p permissions.Permission
		if err := rows.Scan(&p.ID, &p.Module, &p.Action, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// ListRoleGroups returns the groups a role is attached to.
func (s *Store) ListRoleGroups(ctx context.Context, roleID string) ([]GroupRef, error) {
	query := `
		SELECT g.id, g.name, g.team_id
		FROM group_roles gr
		JOIN groups g ON g.id = gr.group_id
		WHERE gr.role_id = $1
		ORDER BY g.name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role groups: %w", err)
	}
	defer rows.Close()

	groups := []GroupRef{}
	for rows.Next() {
		var g GroupRef
		if err := rows.Scan(&g.GroupID, &g.GroupName, &g.TeamID); err != nil {
			return nil, fmt.Errorf("failed to scan role group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// IsUserInRoleTeams reports whether the user belongs to any team that owns
// any group the role is attached to.
func (s *Store) IsUserInRoleTeams(ctx context.Context, roleID, userID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM group_roles gr
			JOIN groups g ON g.id = gr.group_id
			JOIN users u ON u.team_id = g.team_id
			WHERE gr.role_id = $1 AND u.id = $2
		)
	`

	var ok bool
	if err := s.db.QueryRowContext(ctx, query, roleID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check role team access: %w", err)
	}
	return ok, nil
}

// GroupRoleExists reports whether the role is attached to the group.
func (s *Store) GroupRoleExists(ctx context.Context, groupID, roleID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM group_roles WHERE group_id = $1 AND role_id = $2)`,
		groupID, roleID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check group role: %w", err)
	}
	return exists, nil
}

// AttachRoleToGroup inserts a group-role link.
func (s *Store) AttachRoleToGroup(ctx context.Context, groupID, roleID string) error {
	query := `
		INSERT INTO group_roles (id, group_id, role_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`

	_, err := s.db.ExecContext(ctx, query, uuid.NewString(), groupID, roleID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to attach role to group: %w", err)
	}
	return nil
}

// DetachRoleFromGroup removes a group-role link. Returns whether one existed.
func (s *Store) DetachRoleFromGroup(ctx context.Context, groupID, roleID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM group_roles WHERE group_id = $1 AND role_id = $2`, groupID, roleID)
	if err != nil {
		return false, fmt.Errorf("failed to detach role from group: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to detach role from group: %w", err)
	}
	return affected > 0, nil
}

// ListRolesByGroup returns the group's roles newest-attachment first, each
// expanded with its permissions.
func (s *Store) ListRolesByGroup(ctx context.Context, groupID string) ([]RoleWithPermissions, error) {
	query := `
		SELECT r.id, r.name, r.description, r.created_at, r.updated_at
		FROM group_roles gr
		JOIN roles r ON r.id = gr.role_id
		WHERE gr.group_id = $1
		ORDER BY gr.created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group roles: %w", err)
	}
	defer rows.Close()

	result := []RoleWithPermissions{}
	index := map[string]int{}
	var roleIDs []string
	for rows.Next() {
		var r RoleWithPermissions
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group role: %w", err)
		}
		r.Permissions = []permissions.Permission{}
		index[r.ID] = len(result)
		roleIDs = append(roleIDs, r.ID)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group roles: %w", err)
	}
	if len(roleIDs) == 0 {
		return result, nil
	}

	permRows, err := s.db.QueryContext(ctx, `
		SELECT rp.role_id, p.id, p.module, p.action, p.name, p.description, p.created_at, p.updated_at
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = ANY($1)
	`, pq.Array(roleIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list role permissions: %w", err)
	}
	defer permRows.Close()

	for permRows.Next() {
		var roleID string
		var p permissions.Permission
		if err := permRows.Scan(&roleID, &p.ID, &p.Module, &p.Action, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role permission: %w", err)
		}
		if i, ok := index[roleID]; ok {
			result[i].Permissions = append(result[i].Permissions, p)
		}
	}
	return result, permRows.Err()
}

// UpdateRole rewrites a role's name and description. Returns nil if the role
// does not exist.
func (s *Store) UpdateRole(ctx context.Context, roleID, name, description string) (*Role, error) {
	query := `
		UPDATE roles
		SET name = $2, description = $3, updated_at = $4
		WHERE id = $1
		RETURNING ` + roleColumns

	var r Role
	err := s.db.QueryRowContext(ctx, query, roleID, name, description, time.Now().UTC()).
		Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	return &r, nil
}

// DeleteRole removes a role. Permission links cascade; the caller must have
// verified no group attachments remain.
func (s *Store) DeleteRole(ctx context.Context, roleID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return false, fmt.Errorf("failed to delete role: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete role: %w", err)
	}
	return affected > 0, nil
}

// ListRolePermissionIDs returns the IDs of the permissions linked to a role.
func (s *Store) ListRolePermissionIDs(ctx context.Context, roleID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT permission_id FROM role_permissions WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role permission ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan permission id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddRolePermissions links the given permissions to the role.
func (s *Store) AddRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	now := time.Now().UTC()
	return store.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, permissionID := range permissionIDs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO role_permissions (id, role_id, permission_id, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $4)
			`, uuid.NewString(), roleID, permissionID, now)
			if err != nil {
				return fmt.Errorf("failed to add role permission: %w", err)
			}
		}
		return nil
	})
}

// RemoveRolePermissions unlinks the given permissions from the role.
// Returns the IDs that were actually removed.
func (s *Store) RemoveRolePermissions(ctx context.Context, roleID string, permissionIDs []string) ([]string, error) {
	query := `
		DELETE FROM role_permissions
		WHERE role_id = $1 AND permission_id = ANY($2)
		RETURNING permission_id
	`

	rows, err := s.db.QueryContext(ctx, query, roleID, pq.Array(permissionIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to remove role permissions: %w", err)
	}
	defer rows.Close()

	removed := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan removed permission id: %w", err)
		}
		removed = append(removed, id)
	}
	return removed, rows.Err()
}
