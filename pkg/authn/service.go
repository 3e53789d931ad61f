// Package authn implements registration, magic-link login, and session
// lifecycle. Magic links are single-use and time-boxed; sessions are
// long-lived credentials referenced by the session cookie.
package authn

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/atrium-works/atrium/pkg/apperrors"
	"github.com/atrium-works/atrium/pkg/identity"
	"github.com/atrium-works/atrium/pkg/observability"
	"github.com/atrium-works/atrium/pkg/store"
)

const (
	// MagicLinkTTL bounds how long an issued link can be redeemed.
	MagicLinkTTL = 15 * time.Minute
	// SessionTTL is a fixed 90 days, matching the cookie expiry.
	SessionTTL = 90 * 24 * time.Hour

	defaultResolverCacheSize = 4096
	defaultResolverCacheTTL  = time.Minute
)

// MagicLinkResult is the fail-closed outcome of a redemption attempt.
type MagicLinkResult struct {
	IsValid bool           `json:"is_valid"`
	User    *identity.User `json:"user,omitempty"`
}

// Options configures a Service.
type Options struct {
	// ClientBaseURL is the frontend origin embedded in magic-link URLs.
	ClientBaseURL string
	MagicLinkTTL  time.Duration
	SessionTTL    time.Duration

	// ResolverCacheSize and ResolverCacheTTL bound the in-process
	// session-to-user cache in front of the session store.
	ResolverCacheSize int
	ResolverCacheTTL  time.Duration

	Metrics *observability.Metrics
}

// Service owns the credential lifecycle: Unregistered -> Registered(unverified)
// -> Verified, plus session issuance and revocation.
type Service struct {
	store   *Store
	log     *observability.Logger
	metrics *observability.Metrics

	clientBaseURL string
	magicLinkTTL  time.Duration
	sessionTTL    time.Duration

	// sessions is a short-TTL front cache for ResolveSession, keyed by
	// session ID. Entries are purged on RemoveSession.
	sessions *expirable.LRU[string, *identity.User]

	now func() time.Time
}

// NewService creates the authentication service.
func NewService(st *Store, log *observability.Logger, opts Options) *Service {
	if opts.MagicLinkTTL <= 0 {
		opts.MagicLinkTTL = MagicLinkTTL
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = SessionTTL
	}
	if opts.ResolverCacheSize <= 0 {
		opts.ResolverCacheSize = defaultResolverCacheSize
	}
	if opts.ResolverCacheTTL <= 0 {
		opts.ResolverCacheTTL = defaultResolverCacheTTL
	}

	return &Service{
		store:         st,
		log:           log,
		metrics:       opts.Metrics,
		clientBaseURL: opts.ClientBaseURL,
		magicLinkTTL:  opts.MagicLinkTTL,
		sessionTTL:    opts.SessionTTL,
		sessions:      expirable.NewLRU[string, *identity.User](opts.ResolverCacheSize, nil, opts.ResolverCacheTTL),
		now:           time.Now,
	}
}

// RegisterUser creates an unverified user. A nil user with a nil error is the
// duplicate-email signal; callers translate it to a 400, not a thrown error.
func (s *Service) RegisterUser(ctx context.Context, email, name string) (*identity.User, error) {
	existing, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, nil
	}

	user, err := s.store.CreateUser(ctx, email, name)
	if err != nil {
		// The email unique index is the race-safety backstop for the
		// check above; a concurrent insert surfaces here.
		if store.IsUniqueViolation(err) {
			return nil, nil
		}
		return nil, err
	}

	s.log.WithField("user_id", user.ID).Info("user registered")
	return user, nil
}

// CreateUserMagicLink issues a time-boxed single-use link and returns the
// redemption URL. Delivery of the URL is the caller's concern.
func (s *Service) CreateUserMagicLink(ctx context.Context, userID string) (string, error) {
	expiresAt := s.now().UTC().Add(s.magicLinkTTL)

	link, err := s.store.CreateMagicLink(ctx, userID, expiresAt)
	if err != nil {
		return "", err
	}

	authURL := fmt.Sprintf("%s/auth/verify?token=%s", s.clientBaseURL, link.ID)

	if s.metrics != nil {
		s.metrics.MagicLinksIssuedTotal.Inc()
	}
	s.log.WithFields(map[string]interface{}{
		"user_id":    userID,
		"expires_at": expiresAt,
	}).Infof("magic link issued: %s", authURL)

	return authURL, nil
}

// ValidateMagicLink redeems a token. It fails closed: missing, expired, and
// already-used tokens all yield {IsValid: false} with no error. Redemption is
// at-most-once even under concurrent attempts for the same token.
func (s *Service) ValidateMagicLink(ctx context.Context, token string) (*MagicLinkResult, error) {
	user, err := s.store.RedeemMagicLink(ctx, token, s.now())
	if err != nil {
		return nil, err
	}
	if user == nil {
		if s.metrics != nil {
			s.metrics.MagicLinksRedeemedTotal.WithLabelValues("rejected").Inc()
		}
		return &MagicLinkResult{IsValid: false}, nil
	}

	if s.metrics != nil {
		s.metrics.MagicLinksRedeemedTotal.WithLabelValues("redeemed").Inc()
	}
	return &MagicLinkResult{IsValid: true, User: user}, nil
}

// CreateSession issues a session expiring SessionTTL from now.
func (s *Service) CreateSession(ctx context.Context, userID string) (*identity.Session, error) {
	expiresAt := s.now().UTC().Add(s.sessionTTL)

	session, err := s.store.CreateSession(ctx, userID, expiresAt)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SessionsIssuedTotal.Inc()
	}
	s.log.WithField("user_id", userID).Info("session created")
	return session, nil
}

// RemoveSession deletes the session if present. Idempotent: removing an
// unknown session is not an error.
func (s *Service) RemoveSession(ctx context.Context, sessionID string) error {
	s.sessions.Remove(sessionID)

	_, err := s.store.DeleteSession(ctx, sessionID)
	return err
}

// VerifyUserByAdmin transitions a user from unverified to verified. The
// isVerifiedByAdmin flag must already reflect an upstream admin check; a
// false flag is a failed no-op, not an error.
func (s *Service) VerifyUserByAdmin(ctx context.Context, email string, isVerifiedByAdmin bool) (*identity.User, error) {
	if !isVerifiedByAdmin {
		return nil, nil
	}

	user, err := s.store.MarkUserVerified(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	s.log.WithField("user_id", user.ID).Info("user verified by admin")
	return user, nil
}

// ResolveSession maps a session ID to its user, or nil for a missing or
// expired session. Expired sessions are deleted lazily on lookup.
func (s *Service) ResolveSession(ctx context.Context, sessionID string) (*identity.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	if user, ok := s.sessions.Get(sessionID); ok {
		return user, nil
	}

	session, user, err := s.store.GetSessionWithUser(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	if session.Expired(s.now()) {
		if _, err := s.store.DeleteSession(ctx, sessionID); err != nil {
			s.log.WithError(err).Warn("failed to delete expired session")
		}
		return nil, nil
	}

	s.sessions.Add(sessionID, user)
	return user, nil
}

// RequireSession is ResolveSession for callers that treat a missing identity
// as a hard failure.
func (s *Service) RequireSession(ctx context.Context, sessionID string) (*identity.User, error) {
	user, err := s.ResolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.Unauthorized("")
	}
	return user, nil
}
