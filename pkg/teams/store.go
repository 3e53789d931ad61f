package teams

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store handles team persistence. It also serves as the team directory the
// guard layer consults for residency double-checks.
type Store struct {
	db *sql.DB
}

// NewStore creates a new team store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const teamColumns = `id, tenant_id, name, created_at, updated_at`

// CreateTeam inserts a new team under a tenant.
func (s *Store) CreateTeam(ctx context.Context, tenantID, name string) (*Team, error) {
	query := `
		INSERT INTO teams (id, tenant_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`

	team := &Team{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Name:     name,
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query, team.ID, tenantID, name, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create team: %w", err)
	}

	team.CreatedAt = now
	team.UpdatedAt = now
	return team, nil
}

// GetTeam retrieves a team by ID, or nil if none exists.
func (s *Store) GetTeam(ctx context.Context, teamID string) (*Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1`

	var t Team
	err := s.db.QueryRowContext(ctx, query, teamID).
		Scan(&t.ID, &t.TenantID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return &t, nil
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

// NameTakenInTenant reports whether a team with the name already exists in
// the tenant, excluding one team ID (pass "" when creating).
func (s *Store) NameTakenInTenant(ctx context.Context, tenantID, name, excludeID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM teams WHERE tenant_id = $1 AND name = $2 AND id <> $3)`

	var taken bool
	if err := s.db.QueryRowContext(ctx, query, tenantID, name, excludeID).Scan(&taken); err != nil {
		return false, fmt.Errorf("failed to check team name: %w", err)
	}
	return taken, nil
}

// ListTeamsByTenant returns all teams in a tenant, newest first.
func (s *Store) ListTeamsByTenant(ctx context.Context, tenantID string) ([]Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE tenant_id = $1 ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	teams := []Team{}
	for rows.Next() {
		var t Team
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Name, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate teams: %w", err)
	}
	return teams, nil
}

// UpdateTeamName renames a team. Returns nil if the team does not exist.
func (s *Store) UpdateTeamName(ctx context.Context, teamID, name string) (*Team, error) {
	query := `
		UPDATE teams
		SET name = $2, updated_at = $3
		WHERE id = $1
		RETURNING ` + teamColumns

	var t Team
	err := s.db.QueryRowContext(ctx, query, teamID, name, time.Now().UTC()).
		Scan(&t.ID, &t.TenantID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update team: %w", err)
	}
	return &t, nil
}

// DeleteTeam removes a team. Callers must have verified the delete
// preconditions; this is the raw removal.
func (s *Store) DeleteTeam(ctx context.Context, teamID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, teamID)
	if err != nil {
		return false, fmt.Errorf("failed to delete team: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete team: %w", err)
	}
	return affected > 0, nil
}

// CountUsers returns the number of users attached to the team.
func (s *Store) CountUsers(ctx context.Context, teamID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE team_id = $1`, teamID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count team users: %w", err)
	}
	return count, nil
}

// CountGroups returns the number of groups owned by the team.
func (s *Store) CountGroups(ctx context.Context, teamID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM groups WHERE team_id = $1`, teamID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count team groups: %w", err)
	}
	return count, nil
}

// AttachUser points a user at the team.
func (s *Store) AttachUser(ctx context.Context, teamID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET team_id = $2, updated_at = $3 WHERE id = $1`,
		userID, teamID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to attach user to team: %w", err)
	}
	return nil
}

// TeamExists implements guard.TeamDirectory.
func (s *Store) TeamExists(ctx context.Context, teamID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM teams WHERE id = $1)`, teamID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check team: %w", err)
	}
	return exists, nil
}

// IsTeamMember implements guard.TeamDirectory.
func (s *Store) IsTeamMember(ctx context.Context, teamID, userID string) (bool, error) {
	var member bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND team_id = $2)`,
		userID, teamID).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("failed to check team membership: %w", err)
	}
	return member, nil
}

// GetTeamDetail assembles the deep projection of one team: users, groups,
// group members, and group roles.
func (s *Store) GetTeamDetail(ctx context.Context, teamID string) (*TeamDetail, error) {
	team, err := s.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team == nil {
		return nil, nil
	}

	detail := &TeamDetail{Team: *team, Users: []UserSummary{}, Groups: []GroupDetail{}}

	userRows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email FROM users WHERE team_id = $1 ORDER BY created_at DESC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team users: %w", err)
	}
	defer userRows.Close()

	for userRows.Next() {
		var u UserSummary
		if err := userRows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, fmt.Errorf("failed to scan team user: %w", err)
		}
		detail.Users = append(detail.Users, u)
	}
	if err := userRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate team users: %w", err)
	}

	groupRows, err := s.db.QueryContext(ctx,
		`SELECT id, name FROM groups WHERE team_id = $1 ORDER BY created_at DESC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team groups: %w", err)
	}
	defer groupRows.Close()

	groupIndex := map[string]int{}
	var groupIDs []string
	for groupRows.Next() {
		var g GroupDetail
		if err := groupRows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("failed to scan team group: %w", err)
		}
		g.Members = []UserSummary{}
		g.Roles = []RoleSummary{}
		groupIndex[g.ID] = len(detail.Groups)
		groupIDs = append(groupIDs, g.ID)
		detail.Groups = append(detail.Groups, g)
	}
	if err := groupRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate team groups: %w", err)
	}
	if len(groupIDs) == 0 {
		return detail, nil
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
		if i, ok := groupIndex[groupID]; ok {
			detail.Groups[i].Members = append(detail.Groups[i].Members, u)
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
		if i, ok := groupIndex[groupID]; ok {
			detail.Groups[i].Roles = append(detail.Groups[i].Roles, r)
		}
	}
	return detail, roleRows.Err()
}
