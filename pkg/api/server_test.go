package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atrium-works/atrium/pkg/authn"
	"github.com/atrium-works/atrium/pkg/groups"
	"github.com/atrium-works/atrium/pkg/middleware"
	"github.com/atrium-works/atrium/pkg/observability"
	"github.com/atrium-works/atrium/pkg/permissions"
	"github.com/atrium-works/atrium/pkg/roles"
	"github.com/atrium-works/atrium/pkg/tenants"
	"github.com/atrium-works/atrium/pkg/teams"
	"github.com/atrium-works/atrium/pkg/users"
)

// newTestServer wires every service onto one mocked database so route tests
// exercise the full middleware and handler chain.
func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := observability.NewLogger("error", io.Discard)
	auth := authn.NewService(authn.NewStore(db), log, authn.Options{
		ClientBaseURL: "http://client.test",
	})
	teamSvc := teams.NewService(teams.NewStore(db), log)

	services := Services{
		Auth:        auth,
		Users:       users.NewService(users.NewStore(db), nil, log),
		Tenants:     tenants.NewService(tenants.NewStore(db), log),
		Teams:       teamSvc,
		Groups:      groups.NewService(groups.NewStore(db), teamSvc.Directory(), nil, log),
		Roles:       roles.NewService(roles.NewStore(db), teamSvc.Directory(), nil, log),
		Permissions: permissions.NewService(permissions.NewStore(db), log),
	}
	return NewServer(services, log, nil), mock
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "name", "is_verified", "user_type",
		"tenant_id", "team_id", "created_at", "updated_at"})
}

// expectSession arranges session resolution for the given token.
func expectSession(mock sqlmock.Sqlmock, token, userID, userType string) {
	now := time.Now()
	mock.ExpectQuery("SELECT s.id, s.user_id, s.expires_at").
		WithArgs(token).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "expires_at", "s_created_at",
			"u_id", "email", "name", "is_verified", "user_type", "tenant_id", "team_id",
			"created_at", "updated_at"}).
			AddRow(token, userID, now.Add(time.Hour), now,
				userID, "actor@acme.test", "Actor", true, userType, nil, nil, now, now))
}

func sessionCookie(token string) *http.Cookie {
	return &http.Cookie{Name: middleware.SessionCookieName, Value: token}
}

func TestRoutesRequireSession(t *testing.T) {
	server, _ := newTestServer(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/tenant"},
		{http.MethodGet, "/api/v1/user/me"},
		{http.MethodGet, "/api/v1/permission"},
		{http.MethodPost, "/api/v1/auth/verify-user"},
	}
	for _, p := range paths {
		req := httptest.NewRequest(p.method, p.path, nil)
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)

		assert.Equalf(t, http.StatusUnauthorized, rec.Code, "%s %s", p.method, p.path)
	}
}

func TestRegister(t *testing.T) {
	server, mock := newTestServer(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("alice@acme.test").
		WillReturnRows(userRows())
	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO magic_links").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register",
		strings.NewReader(`{"name":"Alice","email":"alice@acme.test"}`))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Message string `json:"message"`
		Data    struct {
			AuthURL string `json:"authUrl"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Register successfull", body.Message)
	assert.Contains(t, body.Data.AuthURL, "http://client.test/auth/verify?token=")
}

func TestRegisterDuplicate(t *testing.T) {
	server, mock := newTestServer(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("alice@acme.test").
		WillReturnRows(userRows().
			AddRow("user-1", "alice@acme.test", "Alice", true, "USER", nil, nil, now, now))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register",
		strings.NewReader(`{"name":"Alice","email":"alice@acme.test"}`))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "User already exists")
}

func TestLoginSetsSessionCookie(t *testing.T) {
	server, mock := newTestServer(t)
	now := time.Now()

	mock.ExpectQuery("UPDATE magic_links").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("user-1"))
	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
		WithArgs("user-1").
		WillReturnRows(userRows().
			AddRow("user-1", "alice@acme.test", "Alice", true, "USER", nil, nil, now, now))
	mock.ExpectExec("INSERT INTO sessions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/auth/login?token=7d444840-9dc0-11d1-b245-5ffdce74fad2", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "User loged in successfully")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.SessionCookieName, cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Expires.After(now))
}

func TestLoginRejectsUsedToken(t *testing.T) {
	server, mock := newTestServer(t)

	mock.ExpectQuery("UPDATE magic_links").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/auth/login?token=662a8114-9dc1-11d1-b245-5ffdce74fad2", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unauthorized: contact admin")
}

func TestLoginRejectsMalformedToken(t *testing.T) {
	server, mock := newTestServer(t)

	// No expectations: a token that is not a UUID must fail closed before
	// any magic-link lookup.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login?token=not-a-uuid", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unauthorized: contact admin")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMalformedPathIDReturns404(t *testing.T) {
	server, mock := newTestServer(t)

	paths := []string{
		"/api/v1/tenant/not-a-uuid",
		"/api/v1/team/not-a-uuid/details",
		"/api/v1/role/group/not-a-uuid",
	}
	for i, path := range paths {
		token := fmt.Sprintf("tok-admin-%d", i)
		expectSession(mock, token, "admin-1", "ADMIN")

		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.AddCookie(sessionCookie(token))
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)

		assert.Equalf(t, http.StatusNotFound, rec.Code, "%s: %s", path, rec.Body.String())
	}
	// Only the session lookups ran; the malformed IDs never reached a store.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogoutClearsCookie(t *testing.T) {
	server, mock := newTestServer(t)

	expectSession(mock, "tok-1", "user-1", "USER")
	mock.ExpectExec("DELETE FROM sessions").
		WithArgs("tok-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.AddCookie(sessionCookie("tok-1"))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Logout successfully")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestVerifyUserRequiresAdmin(t *testing.T) {
	server, mock := newTestServer(t)

	expectSession(mock, "tok-user", "user-1", "USER")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/verify-user",
		strings.NewReader(`{"email":"bob@acme.test"}`))
	req.AddCookie(sessionCookie("tok-user"))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unauthorized.")
}

func TestCreateTenant(t *testing.T) {
	server, mock := newTestServer(t)

	expectSession(mock, "tok-admin", "admin-1", "ADMIN")
	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE name").
		WithArgs("Acme").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at", "updated_at"}))
	mock.ExpectExec("INSERT INTO tenants").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenant",
		strings.NewReader(`{"name":"Acme"}`))
	req.AddCookie(sessionCookie("tok-admin"))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Tenant created successfully")
}

func TestCreateTenantConflictMapsTo400(t *testing.T) {
	server, mock := newTestServer(t)
	now := time.Now()

	expectSession(mock, "tok-admin", "admin-1", "ADMIN")
	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE name").
		WithArgs("Acme").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at", "updated_at"}).
			AddRow("tenant-1", "Acme", now, now))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenant",
		strings.NewReader(`{"name":"Acme"}`))
	req.AddCookie(sessionCookie("tok-admin"))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Tenant with this name already exists")
}

func TestGetTenantNotFoundMapsTo404(t *testing.T) {
	server, mock := newTestServer(t)

	missingID := "9b2d64e6-9dc2-11d1-b245-5ffdce74fad2"
	expectSession(mock, "tok-admin", "admin-1", "ADMIN")
	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE id").
		WithArgs(missingID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at", "updated_at"}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenant/"+missingID, nil)
	req.AddCookie(sessionCookie("tok-admin"))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Tenant not found")
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
