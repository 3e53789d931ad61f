package groups

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atrium-works/atrium/pkg/apperrors"
	"github.com/atrium-works/atrium/pkg/identity"
	"github.com/atrium-works/atrium/pkg/observability"
)

// fakeTeams is an in-memory team directory for guard checks.
type fakeTeams struct {
	teams   map[string]bool
	members map[string]bool // "teamID/userID"
}

func (f *fakeTeams) TeamExists(_ context.Context, teamID string) (bool, error) {
	return f.teams[teamID], nil
}

func (f *fakeTeams) IsTeamMember(_ context.Context, teamID, userID string) (bool, error) {
	return f.members[teamID+"/"+userID], nil
}

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	teams := &fakeTeams{
		teams:   map[string]bool{"team-1": true},
		members: map[string]bool{"team-1/user-1": true},
	}
	svc := NewService(NewStore(db), teams, nil, observability.NewLogger("error", io.Discard))
	return svc, mock
}

func teamMember() *identity.User {
	tenantID := "tenant-1"
	teamID := "team-1"
	return &identity.User{
		ID:         "user-1",
		UserType:   identity.UserTypeUser,
		IsVerified: true,
		TenantID:   &tenantID,
		TeamID:     &teamID,
	}
}

func adminUser() *identity.User {
	return &identity.User{ID: "admin-1", UserType: identity.UserTypeAdmin, IsVerified: true}
}

func groupRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "team_id", "name", "created_at", "updated_at"})
}

func TestCreateGroup_EnrollsCreator(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM groups WHERE team_id").
		WithArgs("team-1", "Maintainers", "").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO groups").
		WithArgs(sqlmock.AnyArg(), "team-1", "Maintainers", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// The creator becomes the first member.
	mock.ExpectExec("INSERT INTO user_groups").
		WithArgs(sqlmock.AnyArg(), "user-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	group, err := svc.CreateGroup(context.Background(), "Maintainers", "team-1", teamMember())
	require.NoError(t, err)
	assert.Equal(t, "Maintainers", group.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateGroup_NotTeamMember(t *testing.T) {
	svc, _ := newTestService(t)
	actor := teamMember()
	actor.ID = "user-9" // not in the directory's member set

	_, err := svc.CreateGroup(context.Background(), "Maintainers", "team-1", actor)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
	assert.Contains(t, err.Error(), "manage groups")
}

func TestCreateGroup_DuplicateName(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM groups WHERE team_id").
		WithArgs("team-1", "Maintainers", "").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := svc.CreateGroup(context.Background(), "Maintainers", "team-1", teamMember())
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}

func TestAddUserToGroup(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM groups WHERE id").
		WithArgs("group-1").
		WillReturnRows(groupRows().AddRow("group-1", "team-1", "Maintainers", now, now))
	mock.ExpectQuery("SELECT tenant_id FROM users").
		WithArgs("user-2").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id"}).AddRow("tenant-1"))
	mock.ExpectQuery("SELECT t.tenant_id").
		WithArgs("group-1").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id"}).AddRow("tenant-1"))
	mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM user_groups").
		WithArgs("group-1", "user-2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO user_groups").
		WithArgs(sqlmock.AnyArg(), "user-2", "group-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	membership, err := svc.AddUserToGroup(context.Background(), "user-2", "group-1", teamMember())
	require.NoError(t, err)
	assert.Equal(t, "user-2", membership.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddUserToGroup_WrongTenant(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM groups WHERE id").
		WithArgs("group-1").
		WillReturnRows(groupRows().AddRow("group-1", "team-1", "Maintainers", now, now))
	mock.ExpectQuery("SELECT tenant_id FROM users").
		WithArgs("user-2").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id"}).AddRow("tenant-9"))
	mock.ExpectQuery("SELECT t.tenant_id").
		WithArgs("group-1").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id"}).AddRow("tenant-1"))

	_, err := svc.AddUserToGroup(context.Background(), "user-2", "group-1", teamMember())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "same tenant/organisation")
}

func TestAddUserToGroup_AlreadyMember(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM groups WHERE id").
		WithArgs("group-1").
		WillReturnRows(groupRows().AddRow("group-1", "team-1", "Maintainers", now, now))
	mock.ExpectQuery("SELECT tenant_id FROM users").
		WithArgs("user-2").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id"}).AddRow("tenant-1"))
	mock.ExpectQuery("SELECT t.tenant_id").
		WithArgs("group-1").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id"}).AddRow("tenant-1"))
	mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM user_groups").
		WithArgs("group-1", "user-2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := svc.AddUserToGroup(context.Background(), "user-2", "group-1", teamMember())
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Contains(t, err.Error(), "already a member")
}

func TestRemoveUserFromGroup_NotMember(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM groups WHERE id").
		WithArgs("group-1").
		WillReturnRows(groupRows().AddRow("group-1", "team-1", "Maintainers", now, now))
	mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM user_groups").
		WithArgs("group-1", "user-2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := svc.RemoveUserFromGroup(context.Background(), "user-2", "group-1", teamMember())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a member")
}

func TestGetGroupsByTeam(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM groups WHERE team_id").
		WithArgs("team-1").
		WillReturnRows(groupRows().
			AddRow("group-2", "team-1", "Ops", now, now).
			AddRow("group-1", "team-1", "Maintainers", now.Add(-time.Hour), now))
	mock.ExpectQuery("SELECT (.+) FROM user_groups ug").
		WillReturnRows(sqlmock.NewRows([]string{"group_id", "id", "name", "email"}).
			AddRow("group-1", "user-1", "Ada", "ada@example.com"))
	mock.ExpectQuery("SELECT (.+) FROM group_roles gr").
		WillReturnRows(sqlmock.NewRows([]string{"group_id", "id", "name", "description"}).
			AddRow("group-2", "role-1", "Viewer", "read only"))

	groups, err := svc.GetGroupsByTeam(context.Background(), "team-1", teamMember())
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Ops", groups[0].Name, "newest group first")
	assert.Len(t, groups[0].Roles, 1)
	assert.Len(t, groups[1].Members, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetGroupMembers(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM groups WHERE id").
		WithArgs("group-1").
		WillReturnRows(groupRows().AddRow("group-1", "team-1", "Maintainers", now, now))
	mock.ExpectQuery("SELECT u.id, u.name, u.email").
		WithArgs("group-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email"}).
			AddRow("user-1", "Ada", "ada@example.com"))

	group, members, err := svc.GetGroupMembers(context.Background(), "group-1", adminUser())
	require.NoError(t, err)
	assert.Equal(t, "Maintainers", group.Name)
	require.Len(t, members, 1)
	assert.Equal(t, "Ada", members[0].Name)
}

func TestDeleteGroup_NotFound(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT (.+) FROM groups WHERE id").
		WithArgs("group-9").
		WillReturnRows(groupRows())

	err := svc.DeleteGroup(context.Background(), "group-9", adminUser())
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGetUserGroups(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM user_groups ug").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "team_id", "name", "created_at", "updated_at"}).
			AddRow("group-1", "team-1", "Maintainers", now, now))

	groups, err := svc.GetUserGroups(context.Background(), teamMember())
	require.NoError(t, err)
	assert.Len(t, groups, 1)
}

func TestGetUserGroups_Unverified(t *testing.T) {
	svc, _ := newTestService(t)
	actor := teamMember()
	actor.IsVerified = false

	_, err := svc.GetUserGroups(context.Background(), actor)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
}
