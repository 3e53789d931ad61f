package access

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atrium-works/atrium/pkg/permissions"
)

// Store answers permission-resolution queries: the effective permission set
// of a user, and the reverse lookups the invalidation hooks need.
type Store struct {
	db *sql.DB
}

// NewStore creates a new access store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListEffectivePermissions walks the membership chain in one query: the
// user's groups, the roles attached to those groups, and the permissions
// linked to those roles, deduplicated.
func (s *Store) ListEffectivePermissions(ctx context.Context, userID string) ([]permissions.Permission, error) {
	query := `
		SELECT DISTINCT p.id, p.module, p.action, p.name, p.description, p.created_at, p.updated_at
		FROM user_groups ug
		JOIN group_roles gr ON gr.group_id = ug.group_id
		JOIN role_permissions rp ON rp.role_id = gr.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ug.user_id = $1
		ORDER BY p.module ASC, p.action ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permissions: %w", err)
	}
	defer rows.Close()

	perms := []permissions.Permission{}
	for rows.Next() {
		var p permissions.Permission
		if err := rows.Scan(&p.ID, &p.Module, &p.Action, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// ListGroupMemberIDs returns the IDs of the group's members.
func (s *Store) ListGroupMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM user_groups WHERE group_id = $1`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

// ListRoleHolderIDs returns the IDs of every user who holds the role through
// any group.
func (s *Store) ListRoleHolderIDs(ctx context.Context, roleID string) ([]string, error) {
	query := `
		SELECT DISTINCT ug.user_id
		FROM group_roles gr
		JOIN user_groups ug ON ug.group_id = gr.group_id
		WHERE gr.role_id = $1
	`

	rows, err := s.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role holders: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
