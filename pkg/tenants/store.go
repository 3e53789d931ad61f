package tenants

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/atrium-works/atrium/pkg/identity"
)

// Store handles tenant persistence and the cross-entity reads the tenant
// service needs (user assignment, the deep inspection projection).
type Store struct {
	db *sql.DB
}

// NewStore creates a new tenant store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateTenant inserts a new tenant.
func (s *Store) CreateTenant(ctx context.Context, name string) (*Tenant, error) {
	query := `
		INSERT INTO tenants (id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
	`

	tenant := &Tenant{
		ID:   uuid.NewString(),
		Name: name,
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query, tenant.ID, name, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	return tenant, nil
}

// GetTenant retrieves a tenant by ID, or nil if none exists.
func (s *Store) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	query := `SELECT id, name, created_at, updated_at FROM tenants WHERE id = $1`

	var t Tenant
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &t, nil
}

// FindTenantByName returns the tenant with the given name, or nil.
func (s *Store) FindTenantByName(ctx context.Context, name string) (*Tenant, error) {
	query := `SELECT id, name, created_at, updated_at FROM tenants WHERE name = $1`

	var t Tenant
	err := s.db.QueryRowContext(ctx, query, name).Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find tenant by name: %w", err)
	}
	return &t, nil
}

// NameTakenByOther reports whether another tenant already uses the name.
func (s *Store) NameTakenByOther(ctx context.Context, name, excludeID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM tenants WHERE name = $1 AND id <> $2)`

	var taken bool
	if err := s.db.QueryRowContext(ctx, query, name, excludeID).Scan(&taken); err != nil {
		return false, fmt.Errorf("failed to check tenant name: %w", err)
	}
	return taken, nil
}

// ListTenants returns all tenants.
func (s *Store) ListTenants(ctx context.Context) ([]Tenant, error) {
	query := `SELECT id, name, created_at, updated_at FROM tenants ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	return scanTenants(rows)
}

// ListTenantsByID returns the singleton list for one tenant, or empty.
func (s *Store) ListTenantsByID(ctx context.Context, tenantID string) ([]Tenant, error) {
	query := `SELECT id, name, created_at, updated_at FROM tenants WHERE id = $1`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	return scanTenants(rows)
}

func scanTenants(rows *sql.Rows) ([]Tenant, error) {
	tenants := []Tenant{}
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tenants: %w", err)
	}
	return tenants, nil
}

// UpdateTenantName renames a tenant.
func (s *Store) UpdateTenantName(ctx context.Context, tenantID, name string) (*Tenant, error) {
	query := `
		UPDATE tenants
		SET name = $2, updated_at = $3
		WHERE id = $1
		RETURNING id, name, created_at, updated_at
	`

	var t Tenant
	err := s.db.QueryRowContext(ctx, query, tenantID, name, time.Now().UTC()).
		Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update tenant: %w", err)
	}
	return &t, nil
}

// DeleteTenant removes a tenant. Teams and their groups cascade at the store
// level; users are detached. Returns whether a row was deleted.
func (s *Store) DeleteTenant(ctx context.Context, tenantID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, tenantID)
	if err != nil {
		return false, fmt.Errorf("failed to delete tenant: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete tenant: %w", err)
	}
	return affected > 0, nil
}

// GetUser retrieves a user by ID, or nil if none exists.
func (s *Store) GetUser(ctx context.Context, userID string) (*identity.User, error) {
	query := `
		SELECT id, email, name, is_verified, user_type, tenant_id, team_id, created_at, updated_at
		FROM users WHERE id = $1
	`

	var u identity.User
	var tenantID, teamID sql.NullString
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&u.ID, &u.Email, &u.Name, &u.IsVerified, &u.UserType,
		&tenantID, &teamID, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if tenantID.Valid {
		v := tenantID.String
		u.TenantID = &v
	}
	if teamID.Valid {
		v := teamID.String
		u.TeamID = &v
	}
	return &u, nil
}

// SetUserTenant points a user at a tenant. An empty tenantID detaches the
// user (and clears their team, since teams are tenant-scoped).
func (s *Store) SetUserTenant(ctx context.Context, userID, tenantID string) error {
	var err error
	if tenantID == "" {
		_, err = s.db.ExecContext(ctx,
			`UPDATE users SET tenant_id = NULL, team_id = NULL, updated_at = $2 WHERE id = $1`,
			userID, time.Now().UTC())
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE users SET tenant_id = $2, updated_at = $3 WHERE id = $1`,
			userID, tenantID, time.Now().UTC())
	}
	if err != nil {
		return fmt.Errorf("failed to set user tenant: %w", err)
	}
	return nil
}

// GetTenantDetail assembles the full nested projection for one tenant:
// direct users, teams, team users, groups, group members, and group roles
// with their permissions.
func (s *Store) GetTenantDetail(ctx context.Context, tenantID string) (*TenantDetail, error) {
	tenant, err := s.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, nil
	}

	detail := &TenantDetail{Tenant: *tenant, Users: []TenantUser{}, Teams: []TeamView{}}

	if err := s.loadTenantUsers(ctx, detail); err != nil {
		return nil, err
	}
	if err := s.loadTeams(ctx, detail); err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *Store) loadTenantUsers(ctx context.Context, detail *TenantDetail) error {
	query := `
		SELECT id, name, email, is_verified, user_type, created_at
		FROM users WHERE tenant_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, detail.ID)
	if err != nil {
		return fmt.Errorf("failed to list tenant users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u TenantUser
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.IsVerified, &u.UserType, &u.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan tenant user: %w", err)
		}
		detail.Users = append(detail.Users, u)
	}
	return rows.Err()
}

func (s *Store) loadTeams(ctx context.Context, detail *TenantDetail) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name FROM teams WHERE tenant_id = $1 ORDER BY created_at DESC`, detail.ID)
	if err != nil {
		return fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	teamIndex := map[string]int{}
	var teamIDs []string
	for rows.Next() {
		var tv TeamView
		if err := rows.Scan(&tv.ID, &tv.Name); err != nil {
			return fmt.Errorf("failed to scan team: %w", err)
		}
		tv.Users = []UserSummary{}
		tv.Groups = []GroupView{}
		teamIndex[tv.ID] = len(detail.Teams)
		teamIDs = append(teamIDs, tv.ID)
		detail.Teams = append(detail.Teams, tv)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate teams: %w", err)
	}
	if len(teamIDs) == 0 {
		return nil
	}

	if err := s.loadTeamUsers(ctx, detail, teamIndex, teamIDs); err != nil {
		return err
	}
	return s.loadGroups(ctx, detail, teamIndex, teamIDs)
}

func (s *Store) loadTeamUsers(ctx context.Context, detail *TenantDetail, teamIndex map[string]int, teamIDs []string) error {
	query := `
		SELECT team_id, id, name, email
		FROM users WHERE team_id = ANY($1)
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(teamIDs))
	if err != nil {
		return fmt.Errorf("failed to list team users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var teamID string
		var u UserSummary
		if err := rows.Scan(&teamID, &u.ID, &u.Name, &u.Email); err != nil {
			return fmt.Errorf("failed to scan team user: %w", err)
		}
		if i, ok := teamIndex[teamID]; ok {
			detail.Teams[i].Users = append(detail.Teams[i].Users, u)
		}
	}
	return rows.Err()
}

func (s *Store) loadGroups(ctx context.Context, detail *TenantDetail, teamIndex map[string]int, teamIDs []string) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, team_id, name FROM groups WHERE team_id = ANY($1) ORDER BY created_at DESC`,
		pq.Array(teamIDs))
	if err != nil {
		return fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	// group ID -> (team index, group index)
	type groupPos struct{ team, group int }
	groupIndex := map[string]groupPos{}
	var groupIDs []string

	for rows.Next() {
		var gv GroupView
		var teamID string
		if err := rows.Scan(&gv.ID, &teamID, &gv.Name); err != nil {
			return fmt.Errorf("failed to scan group: %w", err)
		}
		gv.Members = []UserSummary{}
		gv.Roles = []RoleView{}
		ti, ok := teamIndex[teamID]
		if !ok {
			continue
		}
		groupIndex[gv.ID] = groupPos{team: ti, group: len(detail.Teams[ti].Groups)}
		groupIDs = append(groupIDs, gv.ID)
		detail.Teams[ti].Groups = append(detail.Teams[ti].Groups, gv)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate groups: %w", err)
	}
	if len(groupIDs) == 0 {
		return nil
	}

	memberRows, err := s.db.QueryContext(ctx, `
		SELECT ug.group_id, u.id, u.name, u.email
		FROM user_groups ug
		JOIN users u ON u.id = ug.user_id
		WHERE ug.group_id = ANY($1)
	`, pq.Array(groupIDs))
	if err != nil {
		return fmt.Errorf("failed to list group members: %w", err)
	}
	defer memberRows.Close()

	for memberRows.Next() {
		var groupID string
		var u UserSummary
		if err := memberRows.Scan(&groupID, &u.ID, &u.Name, &u.Email); err != nil {
			return fmt.Errorf("failed to scan group member: %w", err)
		}
		if pos, ok := groupIndex[groupID]; ok {
			g := &detail.Teams[pos.team].Groups[pos.group]
			g.Members = append(g.Members, u)
		}
	}
	if err := memberRows.Err(); err != nil {
		return fmt.Errorf("failed to iterate group members: %w", err)
	}

	roleRows, err := s.db.QueryContext(ctx, `
		SELECT gr.group_id, r.id, r.name, r.description
		FROM group_roles gr
		JOIN roles r ON r.id = gr.role_id
		WHERE gr.group_id = ANY($1)
	`, pq.Array(groupIDs))
	if err != nil {
		return fmt.Errorf("failed to list group roles: %w", err)
	}
	defer roleRows.Close()

	type rolePos struct {
		group groupPos
		role  int
	}
	roleIndex := map[string][]rolePos{}
	var roleIDs []string

	for roleRows.Next() {
		var groupID string
		var rv RoleView
		if err := roleRows.Scan(&groupID, &rv.ID, &rv.Name, &rv.Description); err != nil {
			return fmt.Errorf("failed to scan group role: %w", err)
		}
		rv.Permissions = []PermissionView{}
		pos, ok := groupIndex[groupID]
		if !ok {
			continue
		}
		g := &detail.Teams[pos.team].Groups[pos.group]
		if _, seen := roleIndex[rv.ID]; !seen {
			roleIDs = append(roleIDs, rv.ID)
		}
		roleIndex[rv.ID] = append(roleIndex[rv.ID], rolePos{group: pos, role: len(g.Roles)})
		g.Roles = append(g.Roles, rv)
	}
	if err := roleRows.Err(); err != nil {
		return fmt.Errorf("failed to iterate group roles: %w", err)
	}
	if len(roleIDs) == 0 {
		return nil
	}

	permRows, err := s.db.QueryContext(ctx, `
		SELECT rp.role_id, p.id, p.module, p.action, p.name, p.description
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = ANY($1)
	`, pq.Array(roleIDs))
	if err != nil {
		return fmt.Errorf("failed to list role permissions: %w", err)
	}
	defer permRows.Close()

	for permRows.Next() {
		var roleID string
		var pv PermissionView
		if err := permRows.Scan(&roleID, &pv.ID, &pv.Module, &pv.Action, &pv.Name, &pv.Description); err != nil {
			return fmt.Errorf("failed to scan role permission: %w", err)
		}
		for _, pos := range roleIndex[roleID] {
			g := &detail.Teams[pos.group.team].Groups[pos.group.group]
			g.Roles[pos.role].Permissions = append(g.Roles[pos.role].Permissions, pv)
		}
	}
	return permRows.Err()
}
