package groups

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store handles group persistence: the groups themselves and the
// user-to-group membership relation.
type Store struct {
	db *sql.DB
}

// NewStore creates a new group store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const groupColumns = `id, team_id, name, created_at, updated_at`

// CreateGroup inserts a new group under a team.
func (s *Store) CreateGroup(ctx context.Context, teamID, name string) (*Group, error) {
	query := `
		INSERT INTO groups (id, team_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`

	group := &Group{
		ID:     uuid.NewString(),
		TeamID: teamID,
		Name:   name,
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query, group.ID, teamID, name, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	group.CreatedAt = now
	group.UpdatedAt = now
	return group, nil
}

// GetGroup retrieves a group by ID, or nil if none exists.
func (s *Store) GetGroup(ctx context.Context, groupID string) (*Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1`

	var g Group
	err := s.db.QueryRowContext(ctx, query, groupID).
		Scan(&g.ID, &g.TeamID, &g.Name, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &g, nil
}

// GetGroupTenant returns the tenant owning the group's team, or "" if the
// group does not exist.
func (s *Store) GetGroupTenant(ctx context.Context, groupID string) (string, error) {
	query := `
		SELECT t.tenant_id
		FROM groups g
		JOIN teams t ON t.id = g.team_id
		WHERE g.id = $1
	`

	var tenantID string
	err := s.db.QueryRowContext(ctx, query, groupID).Scan(&tenantID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get group tenant: %w", err)
	}
	return tenantID, nil
}

// NameTakenInTeam reports whether a group with the name already exists in the
// team, excluding one group ID (pass "" when creating).
func (s *Store) NameTakenInTeam(ctx context.Context, teamID, name, excludeID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM groups WHERE team_id = $1 AND name = $2 AND id <> $3)`

	var taken bool
	if err := s.db.QueryRowContext(ctx, query, teamID, name, excludeID).Scan(&taken); err != nil {
		return false, fmt.Errorf("failed to check group name: %w", err)
	}
	return taken, nil
}

// UpdateGroupName renames a group. Returns nil if the group does not exist.
func (s *Store) UpdateGroupName(ctx context.Context, groupID, name string) (*Group, error) {
	query := `
		UPDATE groups
		SET name = $2, updated_at = $3
		WHERE id = $1
		RETURNING ` + groupColumns

	var g Group
	err := s.db.QueryRowContext(ctx, query, groupID, name, time.Now().UTC()).
		Scan(&g.ID, &g.TeamID, &g.Name, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update group: %w", err)
	}
	return &g, nil
}

// DeleteGroup removes a group. Memberships and role links cascade at the
// store level.
func (s *Store) DeleteGroup(ctx context.Context, groupID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, groupID)
	if err != nil {
		return false, fmt.Errorf("failed to delete group: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete group: %w", err)
	}
	return affected > 0, nil
}

// ListGroupsByTeam returns the team's groups newest first, each expanded with
// members and roles.
func (s *Store) ListGroupsByTeam(ctx context.Context, teamID string) ([]GroupWithMembers, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE team_id = $1 ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	groups := []GroupWithMembers{}
	index := map[string]int{}
	var groupIDs []string

	for rows.Next() {
		var g GroupWithMembers
		if err := rows.Scan(&g.ID, &g.TeamID, &g.Name, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		g.Members = []UserSummary{}
		g.Roles = []RoleSummary{}
		index[g.ID] = len(groups)
		groupIDs = append(groupIDs, g.ID)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}
	if len(groupIDs) == 0 {
		return groups, nil
	}

	memberRows, err := s.db.QueryContext(ctx, `
		SELECT ug.group_id, u.id, u.name, u.email
		FROM user_groups ug
		JOIN users u ON u.id = ug.user_id
		WHERE ug.group_id = ANY($1)
	`, pq.Array(groupIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	defer memberRows.Close()

	for memberRows.Next() {
		var groupID string
		var u UserSummary
		if err := memberRows.Scan(&groupID, &u.ID, &u.Name, &u.Email); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		if i, ok := index[groupID]; ok {
			groups[i].Members = append(groups[i].Members, u)
		}
	}
	if err := memberRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group members: %w", err)
	}

	roleRows, err := s.db.QueryContext(ctx, `
		SELECT gr.group_id, r.id, r.name, r.description
		FROM group_roles gr
		JOIN roles r ON r.id = gr.role_id
		WHERE gr.group_id = ANY($1)
	`, pq.Array(groupIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list group roles: %w", err)
	}
	defer roleRows.Close()

	for roleRows.Next() {
		var groupID string
		var r RoleSummary
		if err := roleRows.Scan(&groupID, &r.ID, &r.Name, &r.Description); err != nil {
			return nil, fmt.Errorf("failed to scan group role: %w", err)
		}
		if i, ok := index[groupID]; ok {
			groups[i].Roles = append(groups[i].Roles, r)
		}
	}
	return groups, roleRows.Err()
}

// GetUserTenant returns the tenant of a user. The second return reports
// whether the user exists.
func (s *Store) GetUserTenant(ctx context.Context, userID string) (*string, bool, error) {
	var tenantID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT tenant_id FROM users WHERE id = $1`, userID).Scan(&tenantID)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get user tenant: %w", err)
	}
	if !tenantID.Valid {
		return nil, true, nil
	}
	v := tenantID.String
	return &v, true, nil
}

// IsMember reports whether the user is a member of the group.
func (s *Store) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	var member bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_groups WHERE group_id = $1 AND user_id = $2)`,
		groupID, userID).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("failed to check group membership: %w", err)
	}
	return member, nil
}

// AddMember inserts a membership row.
func (s *Store) AddMember(ctx context.Context, groupID, userID string) error {
	query := `
		INSERT INTO user_groups (id, user_id, group_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`

	_, err := s.db.ExecContext(ctx, query, uuid.NewString(), userID, groupID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

// RemoveMember deletes a membership row. Returns whether one existed.
func (s *Store) RemoveMember(ctx context.Context, groupID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM user_groups WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove group member: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to remove group member: %w", err)
	}
	return affected > 0, nil
}

// ListMembers returns the group's members newest first.
func (s *Store) ListMembers(ctx context.Context, groupID string) ([]UserSummary, error) {
	query := `
		SELECT u.id, u.name, u.email
		FROM user_groups ug
		JOIN users u ON u.id = ug.user_id
		WHERE ug.group_id = $1
		ORDER BY u.created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	defer rows.Close()

	members := []UserSummary{}
	for rows.Next() {
		var u UserSummary
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		members = append(members, u)
	}
	return members, rows.Err()
}

// ListRoles returns the group's roles newest first.
func (s *Store) ListRoles(ctx context.Context, groupID string) ([]RoleSummary, error) {
	query := `
		SELECT r.id, r.name, r.description
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

	roles := []RoleSummary{}
	for rows.Next() {
		var r RoleSummary
		if err := rows.Scan(&r.ID, &r.Name, &r.Description); err != nil {
			return nil, fmt.Errorf("failed to scan group role: %w", err)
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// ListGroupsForUser returns the groups a user belongs to, newest first.
func (s *Store) ListGroupsForUser(ctx context.Context, userID string) ([]Group, error) {
	query := `
		SELECT g.id, g.team_id, g.name, g.created_at, g.updated_at
		FROM user_groups ug
		JOIN groups g ON g.id = ug.group_id
		WHERE ug.user_id = $1
		ORDER BY g.created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user groups: %w", err)
	}
	defer rows.Close()

	groups := []Group{}
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.TeamID, &g.Name, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
