package permissions

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

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewService(NewStore(db), observability.NewLogger("error", io.Discard)), mock
}

func adminUser() *identity.User {
	return &identity.User{ID: "admin-1", UserType: identity.UserTypeAdmin, IsVerified: true}
}

func regularUser() *identity.User {
	return &identity.User{ID: "user-1", UserType: identity.UserTypeUser, IsVerified: true}
}

func permissionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "module", "action", "name", "description", "created_at", "updated_at"})
}

func TestCreatePermission(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT (.+) FROM permissions WHERE module").
		WithArgs("USERS", "READ").
		WillReturnRows(permissionRows())
	mock.ExpectExec("INSERT INTO permissions").
		WithArgs(sqlmock.AnyArg(), "USERS", "READ", "USERS:READ", "USERS:READ", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	perm, err := svc.CreatePermission(context.Background(), ModuleUsers, ActionRead, "USERS:READ", "USERS:READ", adminUser())
	require.NoError(t, err)
	assert.Equal(t, ModuleUsers, perm.Module)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePermission_DuplicatePair(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM permissions WHERE module").
		WithArgs("USERS", "READ").
		WillReturnRows(permissionRows().
			AddRow("perm-1", "USERS", "READ", "USERS:READ", "USERS:READ", now, now))

	_, err := svc.CreatePermission(context.Background(), ModuleUsers, ActionRead, "USERS:READ", "USERS:READ", adminUser())
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Contains(t, err.Error(), "already exists for this module and action")
}

func TestCreatePermission_NonAdmin(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreatePermission(context.Background(), ModuleUsers, ActionRead, "n", "d", regularUser())
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestCreatePermission_InvalidEnum(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreatePermission(context.Background(), Module("BOGUS"), ActionRead, "n", "d", adminUser())
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidationFailed, apperrors.KindOf(err))
}

func TestSeedAdminPermissions_SkipsDuplicates(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	// The first pair already exists and is skipped; the remaining 15 are created.
	mock.ExpectQuery("SELECT (.+) FROM permissions WHERE module").
		WithArgs("USERS", "CREATE").
		WillReturnRows(permissionRows().
			AddRow("perm-1", "USERS", "CREATE", "USERS:CREATE", "USERS:CREATE", now, now))
	for i := 0; i < 15; i++ {
		mock.ExpectQuery("SELECT (.+) FROM permissions WHERE module").
			WillReturnRows(permissionRows())
		mock.ExpectExec("INSERT INTO permissions").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	created, err := svc.SeedAdminPermissions(context.Background(), adminUser())
	require.NoError(t, err)
	assert.Len(t, created, 15)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePermission_ReferencedByRoles(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM permissions WHERE id").
		WithArgs("perm-1").
		WillReturnRows(permissionRows().
			AddRow("perm-1", "USERS", "READ", "USERS:READ", "USERS:READ", now, now))
	mock.ExpectQuery("SELECT r.name").
		WithArgs("perm-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Editor").AddRow("Viewer"))

	err := svc.DeletePermission(context.Background(), "perm-1", adminUser())
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Contains(t, err.Error(), "Editor, Viewer")
}

func TestDeletePermission(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM permissions WHERE id").
		WithArgs("perm-1").
		WillReturnRows(permissionRows().
			AddRow("perm-1", "USERS", "READ", "USERS:READ", "USERS:READ", now, now))
	mock.ExpectQuery("SELECT r.name").
		WithArgs("perm-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectExec("DELETE FROM permissions").
		WithArgs("perm-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.DeletePermission(context.Background(), "perm-1", adminUser())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePermission_PairCollision(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM permissions WHERE id").
		WithArgs("perm-1").
		WillReturnRows(permissionRows().
			AddRow("perm-1", "USERS", "READ", "USERS:READ", "USERS:READ", now, now))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("USERS", "UPDATE", "perm-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := svc.UpdatePermission(context.Background(), "perm-1", ModuleUsers, ActionUpdate, "", "", adminUser())
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}

func TestGetPermissions(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM permissions ORDER BY module").
		WillReturnRows(permissionRows().
			AddRow("perm-1", "FINANCIALS", "CREATE", "FINANCIALS:CREATE", "", now, now).
			AddRow("perm-2", "USERS", "READ", "USERS:READ", "", now, now))

	perms, err := svc.GetPermissions(context.Background(), adminUser())
	require.NoError(t, err)
	assert.Len(t, perms, 2)
}

func TestEnums(t *testing.T) {
	assert.Len(t, AllModules(), 4)
	assert.Len(t, AllActions(), 4)
	assert.True(t, ModuleVault.Valid())
	assert.False(t, Module("KITCHEN").Valid())
	assert.True(t, ActionDelete.Valid())
	assert.False(t, Action("TOUCH").Valid())
}
