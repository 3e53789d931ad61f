package roles

import (
	"context"
	"errors"
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

type fakeTeams struct {
	teams   map[string]bool
	members map[string]bool
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
	return NewService(NewStore(db), teams, nil, observability.NewLogger("error", io.Discard)), mock
}

func adminUser() *identity.User {
	return &identity.User{ID: "admin-1", UserType: identity.UserTypeAdmin, IsVerified: true}
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

func roleRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "description", "created_at", "updated_at"})
}

func permissionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "module", "action", "name", "description", "created_at", "updated_at"})
}

func TestCreateRoleForGroup(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT team_id FROM groups").
		WithArgs("group-1").
		WillReturnRows(sqlmock.NewRows([]string{"team_id"}).AddRow("team-1"))
	mock.ExpectQuery("SELECT EXISTS \\(\\s*SELECT 1\\s*FROM group_roles").
		WithArgs("group-1", "Viewer", "").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM permissions").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO roles").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO role_permissions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO role_permissions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO group_roles").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectQuery("SELECT (.+) FROM role_permissions rp").
		WillReturnRows(permissionRows().
			AddRow("perm-1", "USERS", "READ", "USERS:READ", "", now, now).
			AddRow("perm-2", "USERS", "UPDATE", "USERS:UPDATE", "", now, now))

	role, err := svc.CreateRoleForGroup(context.Background(), "Viewer", "read only",
		[]string{"perm-1", "perm-2"}, "group-1", teamMember())
	require.NoError(t, err)
	assert.Equal(t, "Viewer", role.Name)
	assert.Len(t, role.Permissions, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRoleForGroup_MissingPermissions(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT team_id FROM groups").
		WithArgs("group-1").
		WillReturnRows(sqlmock.NewRows([]string{"team_id"}).AddRow("team-1"))
	mock.ExpectQuery("SELECT EXISTS \\(\\s*SELECT 1\\s*FROM group_roles").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM permissions").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	// No transaction is opened: nothing is created when validation fails.
	_, err := svc.CreateRoleForGroup(context.Background(), "Viewer", "read only",
		[]string{"perm-1", "perm-missing"}, "group-1", teamMember())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Some permissions not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRoleForGroup_AtomicRollback(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT team_id FROM groups").
		WithArgs("group-1").
		WillReturnRows(sqlmock.NewRows([]string{"team_id"}).AddRow("team-1"))
	mock.ExpectQuery("SELECT EXISTS \\(\\s*SELECT 1\\s*FROM group_roles").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM permissions").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO roles").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO role_permissions").
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	_, err := svc.CreateRoleForGroup(context.Background(), "Viewer", "read only",
		[]string{"perm-1"}, "group-1", teamMember())
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet(), "role insert must roll back with the failed link")
}

func TestCreateRoleForGroup_NameCollision(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT team_id FROM groups").
		WithArgs("group-1").
		WillReturnRows(sqlmock.NewRows([]string{"team_id"}).AddRow("team-1"))
	mock.ExpectQuery("SELECT EXISTS \\(\\s*SELECT 1\\s*FROM group_roles").
		WithArgs("group-1", "Viewer", "").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := svc.CreateRoleForGroup(context.Background(), "Viewer", "", nil, "group-1", teamMember())
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Contains(t, err.Error(), "already exists for this group")
}

func TestAssignRoleToGroup_AlreadyAssigned(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT team_id FROM groups").
		WithArgs("group-1").
		WillReturnRows(sqlmock.NewRows([]string{"team_id"}).AddRow("team-1"))
	mock.ExpectQuery("SELECT (.+) FROM roles WHERE id").
		WithArgs("role-1").
		WillReturnRows(roleRows().AddRow("role-1", "Viewer", "", now, now))
	mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM group_roles").
		WithArgs("group-1", "role-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := svc.AssignRoleToGroup(context.Background(), "role-1", "group-1", adminUser())
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}

func TestRemoveRoleFromGroup_NotAssigned(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT team_id FROM groups").
		WithArgs("group-1").
		WillReturnRows(sqlmock.NewRows([]string{"team_id"}).AddRow("team-1"))
	mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM group_roles").
		WithArgs("group-1", "role-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := svc.RemoveRoleFromGroup(context.Background(), "role-1", "group-1", adminUser())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not assigned to this group")
}

func TestGetRoleByID_RelaxedAuthorization(t *testing.T) {
	now := time.Now()

	t.Run("member of an owning team can view", func(t *testing.T) {
		svc, mock := newTestService(t)

		mock.ExpectQuery("SELECT (.+) FROM roles WHERE id").
			WithArgs("role-1").
			WillReturnRows(roleRows().AddRow("role-1", "Viewer", "", now, now))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("role-1", "user-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery("SELECT (.+) FROM role_permissions rp").
			WillReturnRows(permissionRows())
		mock.ExpectQuery("SELECT (.+) FROM group_roles gr").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "team_id"}).
				AddRow("group-1", "Maintainers", "team-1"))

		role, groups, err := svc.GetRoleByID(context.Background(), "role-1", teamMember())
		require.NoError(t, err)
		assert.Equal(t, "Viewer", role.Name)
		assert.Len(t, groups, 1)
	})

	t.Run("outsider is denied", func(t *testing.T) {
		svc, mock := newTestService(t)

		mock.ExpectQuery("SELECT (.+) FROM roles WHERE id").
			WithArgs("role-1").
			WillReturnRows(roleRows().AddRow("role-1", "Viewer", "", now, now))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("role-1", "user-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, _, err := svc.GetRoleByID(context.Background(), "role-1", teamMember())
		require.Error(t, err)
		assert.True(t, apperrors.IsUnauthorized(err))
		assert.Contains(t, err.Error(), "Cannot view this role")
	})
}

func TestDeleteRole_StillAttached(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM roles WHERE id").
		WithArgs("role-1").
		WillReturnRows(roleRows().AddRow("role-1", "Viewer", "", now, now))
	mock.ExpectQuery("SELECT (.+) FROM group_roles gr").
		WithArgs("role-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "team_id"}).
			AddRow("group-1", "Maintainers", "team-1").
			AddRow("group-2", "Ops", "team-1"))

	err := svc.DeleteRole(context.Background(), "role-1", adminUser())
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Contains(t, err.Error(), "Maintainers, Ops")
}

func TestUpdateRole_RenameCollision(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM roles WHERE id").
		WithArgs("role-1").
		WillReturnRows(roleRows().AddRow("role-1", "Viewer", "", now, now))
	mock.ExpectQuery("SELECT (.+) FROM group_roles gr").
		WithArgs("role-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "team_id"}).
			AddRow("group-1", "Maintainers", "team-1"))
	mock.ExpectQuery("SELECT EXISTS \\(\\s*SELECT 1\\s*FROM group_roles").
		WithArgs("group-1", "Editor", "role-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := svc.UpdateRole(context.Background(), "role-1", "Editor", "", adminUser())
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Contains(t, err.Error(), "Role name already exists in group: Maintainers")
}

func TestAddPermissionsToRole_NoOp(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM roles WHERE id").
		WithArgs("role-1").
		WillReturnRows(roleRows().AddRow("role-1", "Viewer", "", now, now))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM permissions").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT permission_id FROM role_permissions").
		WithArgs("role-1").
		WillReturnRows(sqlmock.NewRows([]string{"permission_id"}).
			AddRow("perm-1").AddRow("perm-2"))

	_, err := svc.AddPermissionsToRole(context.Background(), "role-1",
		[]string{"perm-1", "perm-2"}, adminUser())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already assigned to this role")
}

func TestRemovePermissionsFromRole_NoOp(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM roles WHERE id").
		WithArgs("role-1").
		WillReturnRows(roleRows().AddRow("role-1", "Viewer", "", now, now))
	mock.ExpectQuery("DELETE FROM role_permissions").
		WillReturnRows(sqlmock.NewRows([]string{"permission_id"}))

	_, err := svc.RemovePermissionsFromRole(context.Background(), "role-1",
		[]string{"perm-9"}, adminUser())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "None of the specified permissions")
}

func TestRemovePermissionsFromRole(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM roles WHERE id").
		WithArgs("role-1").
		WillReturnRows(roleRows().AddRow("role-1", "Viewer", "", now, now))
	mock.ExpectQuery("DELETE FROM role_permissions").
		WillReturnRows(sqlmock.NewRows([]string{"permission_id"}).AddRow("perm-1"))

	change, err := svc.RemovePermissionsFromRole(context.Background(), "role-1",
		[]string{"perm-1", "perm-9"}, adminUser())
	require.NoError(t, err)
	assert.Equal(t, []string{"perm-1"}, change.PermissionIDs)
	assert.Contains(t, change.Message, "Removed 1 permissions")
}

func TestGetRolesByGroup_GuardsActorOwnTeam(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM groups").
		WithArgs("group-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT (.+) FROM group_roles gr").
		WithArgs("group-1").
		WillReturnRows(roleRows().AddRow("role-1", "Viewer", "", now, now))
	mock.ExpectQuery("SELECT rp.role_id, (.+) FROM role_permissions rp").
		WillReturnRows(sqlmock.NewRows([]string{"role_id", "id", "module", "action", "name", "description", "created_at", "updated_at"}).
			AddRow("role-1", "perm-1", "USERS", "READ", "USERS:READ", "", now, now))

	roles, err := svc.GetRolesByGroup(context.Background(), "group-1", teamMember())
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Len(t, roles[0].Permissions, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type recordingInvalidator struct {
	groupCalls []string
	roleCalls  []string
	onGroup    func()
}

func (r *recordingInvalidator) InvalidateGroupMembers(_ context.Context, groupID string) error {
	if r.onGroup != nil {
		r.onGroup()
	}
	r.groupCalls = append(r.groupCalls, groupID)
	return nil
}

func (r *recordingInvalidator) InvalidateRoleHolders(_ context.Context, roleID string) error {
	r.roleCalls = append(r.roleCalls, roleID)
	return nil
}

func TestRemoveRoleFromGroup_InvalidatesAfterDetach(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	inv := &recordingInvalidator{}
	inv.onGroup = func() {
		// The detach must already have run when the cache is dropped,
		// otherwise a concurrent read could repopulate the stale grant.
		assert.NoError(t, mock.ExpectationsWereMet())
	}
	teams := &fakeTeams{teams: map[string]bool{"team-1": true}}
	svc := NewService(NewStore(db), teams, inv, observability.NewLogger("error", io.Discard))

	mock.ExpectQuery("SELECT team_id FROM groups").
		WithArgs("group-1").
		WillReturnRows(sqlmock.NewRows([]string{"team_id"}).AddRow("team-1"))
	mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM group_roles").
		WithArgs("group-1", "role-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("DELETE FROM group_roles").
		WithArgs("group-1", "role-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = svc.RemoveRoleFromGroup(context.Background(), "role-1", "group-1", adminUser())
	require.NoError(t, err)
	assert.Equal(t, []string{"group-1"}, inv.groupCalls)
	assert.Empty(t, inv.roleCalls)
}
