package authn

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atrium-works/atrium/pkg/identity"
)

// Store handles authentication data persistence: users (account records),
// magic links, and sessions.
type Store struct {
	db *sql.DB
}

// NewStore creates a new authentication store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const userColumns = `id, email, name, is_verified, user_type, tenant_id, team_id, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*identity.User, error) {
	var u identity.User
	var tenantID, teamID sql.NullString
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.IsVerified,
		&u.UserType,
		&tenantID,
		&teamID,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
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

// CreateUser inserts a new unverified USER-type account.
func (s *Store) CreateUser(ctx context.Context, email, name string) (*identity.User, error) {
	query := `
		INSERT INTO users (id, email, name, is_verified, user_type, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, $4, $5, $5)
	`

	user := &identity.User{
		ID:       uuid.NewString(),
		Email:    email,
		Name:     name,
		UserType: identity.UserTypeUser,
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query, user.ID, email, name, user.UserType, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now
	return user, nil
}

// FindUserByEmail returns the user with the given email, or nil if none exists.
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

// CreateMagicLink inserts a new unused magic link for the user.
func (s *Store) CreateMagicLink(ctx context.Context, userID string, expiresAt time.Time) (*identity.MagicLink, error) {
	query := `
		INSERT INTO magic_links (id, user_id, expires_at, is_used, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, $4, $4)
	`

	link := &identity.MagicLink{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: expiresAt,
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query, link.ID, userID, expiresAt, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create magic link: %w", err)
	}

	link.CreatedAt = now
	return link, nil
}

// RedeemMagicLink marks the link used and returns the owning user.
// The update is conditioned on is_used = FALSE so that concurrent redemption
// attempts for the same token succeed at most once. Missing, already-used,
// and expired tokens all return (nil, nil).
func (s *Store) RedeemMagicLink(ctx context.Context, token string, now time.Time) (*identity.User, error) {
	query := `
		UPDATE magic_links
		SET is_used = TRUE, updated_at = $3
		WHERE id = $1 AND is_used = FALSE AND expires_at > $2
		RETURNING user_id
	`

	var userID string
	err := s.db.QueryRowContext(ctx, query, token, now.UTC(), now.UTC()).Scan(&userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to redeem magic link: %w", err)
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("failed to redeem magic link: user %s not found", userID)
	}
	return user, nil
}

// CreateSession inserts a new session for the user.
func (s *Store) CreateSession(ctx context.Context, userID string, expiresAt time.Time) (*identity.Session, error) {
	query := `
		INSERT INTO sessions (id, user_id, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`

	session := &identity.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: expiresAt,
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query, session.ID, userID, expiresAt, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	session.CreatedAt = now
	return session, nil
}

// DeleteSession removes a session if present. Returns whether a row was deleted.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return affected > 0, nil
}

// GetSessionWithUser retrieves a session joined with its user, or (nil, nil, nil)
// if the session does not exist.
func (s *Store) GetSessionWithUser(ctx context.Context, sessionID string) (*identity.Session, *identity.User, error) {
	query := `
		SELECT s.id, s.user_id, s.expires_at, s.created_at,
		       u.id, u.email, u.name, u.is_verified, u.user_type, u.tenant_id, u.team_id, u.created_at, u.updated_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = $1
	`

	var session identity.Session
	var user identity.User
	var tenantID, teamID sql.NullString

	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID,
		&session.UserID,
		&session.ExpiresAt,
		&session.CreatedAt,
		&user.ID,
		&user.Email,
		&user.Name,
		&user.IsVerified,
		&user.UserType,
		&tenantID,
		&teamID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get session: %w", err)
	}

	if tenantID.Valid {
		v := tenantID.String
		user.TenantID = &v
	}
	if teamID.Valid {
		v := teamID.String
		user.TeamID = &v
	}
	return &session, &user, nil
}

// MarkUserVerified flips is_verified for the user with the given email.
// Returns nil if no such user exists.
func (s *Store) MarkUserVerified(ctx context.Context, email string) (*identity.User, error) {
	query := `
		UPDATE users
		SET is_verified = TRUE, updated_at = $2
		WHERE email = $1
		RETURNING ` + userColumns

	user, err := scanUser(s.db.QueryRowContext(ctx, query, email, time.Now().UTC()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to verify user: %w", err)
	}
	return user, nil
}

// DeleteExpiredSessions removes all sessions past their expiry.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}

// DeleteExpiredMagicLinks removes used links and links past their expiry.
func (s *Store) DeleteExpiredMagicLinks(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM magic_links WHERE is_used = TRUE OR expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired magic links: %w", err)
	}
	return result.RowsAffected()
}
