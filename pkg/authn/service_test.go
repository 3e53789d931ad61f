package authn

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atrium-works/atrium/pkg/observability"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()

	st, mock := newTestStore(t)
	svc := NewService(st, observability.NewLogger("error", io.Discard), Options{
		ClientBaseURL: "http://localhost:5173",
	})
	return svc, mock
}

func TestService_RegisterUser_DuplicateSignal(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("ada@example.com").
		WillReturnRows(userRows().AddRow(
			"user-1", "ada@example.com", "Ada", true, "USER", nil, nil, now, now,
		))

	user, err := svc.RegisterUser(context.Background(), "ada@example.com", "Ada")
	require.NoError(t, err)
	assert.Nil(t, user, "duplicate email must signal with nil, not an error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_RegisterUser(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("ada@example.com").
		WillReturnRows(userRows())
	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(0, 1))

	user, err := svc.RegisterUser(context.Background(), "ada@example.com", "Ada")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.False(t, user.IsVerified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_CreateUserMagicLink(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectExec("INSERT INTO magic_links").
		WillReturnResult(sqlmock.NewResult(0, 1))

	url, err := svc.CreateUserMagicLink(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Contains(t, url, "http://localhost:5173/auth/verify?token=")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_ValidateMagicLink_FailsClosed(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("UPDATE magic_links").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	result, err := svc.ValidateMagicLink(context.Background(), "unknown-token")
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Nil(t, result.User)
}

func TestService_ValidateMagicLink(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	mock.ExpectQuery("UPDATE magic_links").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("user-1"))
	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
		WithArgs("user-1").
		WillReturnRows(userRows().AddRow(
			"user-1", "ada@example.com", "Ada", true, "USER", nil, nil, now, now,
		))

	result, err := svc.ValidateMagicLink(context.Background(), "token-1")
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	require.NotNil(t, result.User)
	assert.Equal(t, "user-1", result.User.ID)
}

func TestService_ResolveSession_CachesUser(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "expires_at", "created_at",
		"id", "email", "name", "is_verified", "user_type", "tenant_id", "team_id", "created_at", "updated_at",
	}).AddRow(
		"session-1", "user-1", now.Add(time.Hour), now,
		"user-1", "ada@example.com", "Ada", true, "USER", nil, nil, now, now,
	)

	// Only one store round-trip is expected; the second resolve hits the cache.
	mock.ExpectQuery("SELECT (.+) FROM sessions s").
		WithArgs("session-1").
		WillReturnRows(rows)

	user, err := svc.ResolveSession(context.Background(), "session-1")
	require.NoError(t, err)
	require.NotNil(t, user)

	cached, err := svc.ResolveSession(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Equal(t, user, cached)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_ResolveSession_ExpiredIsLazilyDeleted(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "expires_at", "created_at",
		"id", "email", "name", "is_verified", "user_type", "tenant_id", "team_id", "created_at", "updated_at",
	}).AddRow(
		"session-1", "user-1", now.Add(-time.Hour), now.Add(-time.Hour),
		"user-1", "ada@example.com", "Ada", true, "USER", nil, nil, now, now,
	)

	mock.ExpectQuery("SELECT (.+) FROM sessions s").
		WithArgs("session-1").
		WillReturnRows(rows)
	mock.ExpectExec("DELETE FROM sessions WHERE id").
		WithArgs("session-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	user, err := svc.ResolveSession(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_ResolveSession_EmptyToken(t *testing.T) {
	svc, _ := newTestService(t)

	user, err := svc.ResolveSession(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestService_RemoveSession_PurgesCache(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "expires_at", "created_at",
		"id", "email", "name", "is_verified", "user_type", "tenant_id", "team_id", "created_at", "updated_at",
	}).AddRow(
		"session-1", "user-1", now.Add(time.Hour), now,
		"user-1", "ada@example.com", "Ada", true, "USER", nil, nil, now, now,
	)

	mock.ExpectQuery("SELECT (.+) FROM sessions s").
		WithArgs("session-1").
		WillReturnRows(rows)
	mock.ExpectExec("DELETE FROM sessions WHERE id").
		WithArgs("session-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// The cache entry is gone, so the next resolve goes back to the store.
	mock.ExpectQuery("SELECT (.+) FROM sessions s").
		WithArgs("session-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.ResolveSession(context.Background(), "session-1")
	require.NoError(t, err)

	require.NoError(t, svc.RemoveSession(context.Background(), "session-1"))

	user, err := svc.ResolveSession(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_VerifyUserByAdmin(t *testing.T) {
	svc, mock := newTestService(t)
	now := time.Now()

	t.Run("flag not set is a failed no-op", func(t *testing.T) {
		user, err := svc.VerifyUserByAdmin(context.Background(), "ada@example.com", false)
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("verifies existing user", func(t *testing.T) {
		mock.ExpectQuery("UPDATE users").
			WithArgs("ada@example.com", sqlmock.AnyArg()).
			WillReturnRows(userRows().AddRow(
				"user-1", "ada@example.com", "Ada", true, "USER", nil, nil, now, now,
			))

		user, err := svc.VerifyUserByAdmin(context.Background(), "ada@example.com", true)
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.True(t, user.IsVerified)
	})
}
