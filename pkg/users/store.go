package users

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/atrium-works/atrium/pkg/identity"
	"github.com/atrium-works/atrium/pkg/permissions"
)

// Store handles user persistence and the directory projections built on it.
type Store struct {
	db *sql.DB
}

// NewStore creates a new user store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const userColumns = `id, email, name, is_verified, user_type, tenant_id, team_id, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*identity.User, error) {
	var u identity.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.IsVerified, &u.UserType,
		&u.TenantID, &u.TeamID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser retrieves a user by ID, or nil if none exists.
func (s *Store) GetUser(ctx context.Context, userID string) (*identity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// FindUserByEmail retrieves a user by email, or nil if none exists.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*identity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// EmailTakenByOther reports whether another user already owns the email.
func (s *Store) EmailTakenByOther(ctx context.Context, email, excludeUserID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND id <> $2)`,
		email, excludeUserID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

// TenantExists reports whether the tenant exists.
func (s *Store) TenantExists(ctx context.Context, tenantID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1)`, tenantID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check tenant: %w", err)
	}
	return exists, nil
}

// GetProfile returns a user with their tenant and team expanded. Returns nil
// if the user does not exist.
func (s *Store) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	profile := &Profile{User: *user}
	if user.TenantID != nil {
		tenant, err := s.getTenantRef(ctx, *user.TenantID)
		if err != nil {
			return nil, err
		}
		profile.Tenant = tenant
	}
	if user.TeamID != nil {
		team, err := s.getTeamRef(ctx, *user.TeamID)
		if err != nil {
			return nil, err
		}
		profile.Team = team
	}
	return profile, nil
}

func (s *Store) getTenantRef(ctx context.Context, tenantID string) (*TenantRef, error) {
	var t TenantRef
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM tenants WHERE id = $1`, tenantID).Scan(&t.ID, &t.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &t, nil
}

func (s *Store) getTeamRef(ctx context.Context, teamID string) (*TeamRef, error) {
	var t TeamRef
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, tenant_id FROM teams WHERE id = $1`, teamID).Scan(&t.ID, &t.Name, &t.TenantID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return &t, nil
}

// UpdateProfile rewrites a user's name and email. Returns nil if the user
// does not exist.
func (s *Store) UpdateProfile(ctx context.Context, userID, name, email string) (*identity.User, error) {
	query := `
		UPDATE users
		SET name = $2, email = $3, updated_at = $4
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := scanUser(s.db.QueryRowContext(ctx, query, userID, name, email, time.Now().UTC()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// SetTenant moves a user to a tenant and clears their team. Returns nil if
// the user does not exist.
func (s *Store) SetTenant(ctx context.Context, userID, tenantID string) (*identity.User, error) {
	query := `
		UPDATE users
		SET tenant_id = $2, team_id = NULL, updated_at = $3
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := scanUser(s.db.QueryRowContext(ctx, query, userID, tenantID, time.Now().UTC()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set user tenant: %w", err)
	}
	return user, nil
}

// DeleteUser removes a user. Memberships, sessions, and magic links cascade.
func (s *Store) DeleteUser(ctx context.Context, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	return affected > 0, nil
}

// ListDirectory returns every user in the tenant newest first, each expanded
// with tenant, team, groups, roles, and permissions. This walks four link
// levels; it is a reporting query, not a hot path.
func (s *Store) ListDirectory(ctx context.Context, tenantID string) ([]DirectoryEntry, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = $1 ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	entries := []DirectoryEntry{}
	userPos := map[string]int{}
	var userIDs []string
	teamIDs := map[string]struct{}{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		userPos[user.ID] = len(entries)
		userIDs = append(userIDs, user.ID)
		if user.TeamID != nil {
			teamIDs[*user.TeamID] = struct{}{}
		}
		entries = append(entries, DirectoryEntry{User: *user, Groups: []GroupMembership{}})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	if len(entries) == 0 {
		return entries, nil
	}

	tenant, err := s.getTenantRef(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	teams, err := s.loadTeamRefs(ctx, teamIDs)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Tenant = tenant
		if entries[i].TeamID != nil {
			if team, ok := teams[*entries[i].TeamID]; ok {
				entries[i].Team = &team
			}
		}
	}

	if err := s.loadGroupMemberships(ctx, userIDs, userPos, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) loadTeamRefs(ctx context.Context, teamIDs map[string]struct{}) (map[string]TeamRef, error) {
	teams := map[string]TeamRef{}
	if len(teamIDs) == 0 {
		return teams, nil
	}

	ids := make([]string, 0, len(teamIDs))
	for id := range teamIDs {
		ids = append(ids, id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, tenant_id FROM teams WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load teams: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t TeamRef
		if err := rows.Scan(&t.ID, &t.Name, &t.TenantID); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams[t.ID] = t
	}
	return teams, rows.Err()
}

// loadGroupMemberships fills each entry's groups, the groups' roles, and the
// roles' permissions with three batch queries.
func (s *Store) loadGroupMemberships(ctx context.Context, userIDs []string, userPos map[string]int, entries []DirectoryEntry) error {
	groupRows, err := s.db.QueryContext(ctx, `
		SELECT ug.user_id, g.id, g.name, g.team_id
		FROM user_groups ug
		JOIN groups g ON g.id = ug.group_id
		WHERE ug.user_id = ANY($1)
	`, pq.Array(userIDs))
	if err != nil {
		return fmt.Errorf("failed to load user groups: %w", err)
	}
	defer groupRows.Close()

	type groupPos struct {
		user  int
		group int
	}
	positions := []groupPos{}
	groupIDs := map[string]struct{}{}
	for groupRows.Next() {
		var userID string
		var g GroupMembership
		if err := groupRows.Scan(&userID, &g.ID, &g.Name, &g.TeamID); err != nil {
			return fmt.Errorf("failed to scan user group: %w", err)
		}
		g.Roles = []RoleDetail{}
		i := userPos[userID]
		positions = append(positions, groupPos{user: i, group: len(entries[i].Groups)})
		groupIDs[g.ID] = struct{}{}
		entries[i].Groups = append(entries[i].Groups, g)
	}
	if err := groupRows.Err(); err != nil {
		return fmt.Errorf("failed to iterate user groups: %w", err)
	}
	if len(groupIDs) == 0 {
		return nil
	}

	ids := make([]string, 0, len(groupIDs))
	for id := range groupIDs {
		ids = append(ids, id)
	}

	roleRows, err := s.db.QueryContext(ctx, `
		SELECT gr.group_id, r.id, r.name, r.description
		FROM group_roles gr
		JOIN roles r ON r.id = gr.role_id
		WHERE gr.group_id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load group roles: %w", err)
	}
	defer roleRows.Close()

	type rolePos struct {
		pos  groupPos
		role int
	}
	rolePositions := map[string][]rolePos{}
	roleIDs := map[string]struct{}{}
	for roleRows.Next() {
		var groupID string
		var r RoleDetail
		if err := roleRows.Scan(&groupID, &r.ID, &r.Name, &r.Description); err != nil {
			return fmt.Errorf("failed to scan group role: %w", err)
		}
		r.Permissions = []permissions.Permission{}
		roleIDs[r.ID] = struct{}{}
		for _, p := range positions {
			g := &entries[p.user].Groups[p.group]
			if g.ID != groupID {
				continue
			}
			rolePositions[r.ID] = append(rolePositions[r.ID], rolePos{pos: p, role: len(g.Roles)})
			g.Roles = append(g.Roles, r)
		}
	}
	if err := roleRows.Err(); err != nil {
		return fmt.Errorf("failed to iterate group roles: %w", err)
	}
	if len(roleIDs) == 0 {
		return nil
	}

	rids := make([]string, 0, len(roleIDs))
	for id := range roleIDs {
		rids = append(rids, id)
	}

	permRows, err := s.db.QueryContext(ctx, `
		SELECT rp.role_id, p.id, p.module, p.action, p.name, p.description, p.created_at, p.updated_at
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = ANY($1)
	`, pq.Array(rids))
	if err != nil {
		return fmt.Errorf("failed to load role permissions: %w", err)
	}
	defer permRows.Close()

	for permRows.Next() {
		var roleID string
		var p permissions.Permission
		if err := permRows.Scan(&roleID, &p.ID, &p.Module, &p.Action, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan role permission: %w", err)
		}
		for _, rp := range rolePositions[roleID] {
			role := &entries[rp.pos.user].Groups[rp.pos.group].Roles[rp.role]
			role.Permissions = append(role.Permissions, p)
		}
	}
	return permRows.Err()
}
