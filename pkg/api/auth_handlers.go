package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/atrium-works/atrium/pkg/authn"
	"github.com/atrium-works/atrium/pkg/contextkeys"
	"github.com/atrium-works/atrium/pkg/httputil"
	"github.com/atrium-works/atrium/pkg/middleware"
	"github.com/atrium-works/atrium/pkg/observability"
	"github.com/atrium-works/atrium/pkg/users"
)

// AuthHandlers handles registration, magic-link login, logout, and admin
// verification.
type AuthHandlers struct {
	auth  *authn.Service
	users *users.Service
	log   *observability.Logger

	cookieSecure bool
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(auth *authn.Service, users *users.Service, log *observability.Logger) *AuthHandlers {
	return &AuthHandlers{auth: auth, users: users, log: log}
}

// RegisterRoutes registers authentication routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/register", h.register).Methods("POST")
	router.HandleFunc("/auth/login/init", h.loginInit).Methods("POST")
	router.HandleFunc("/auth/login", h.login).Methods("POST")
	router.HandleFunc("/auth/logout", h.logout).Methods("POST")
	router.HandleFunc("/auth/verify-user", h.verifyUser).Methods("POST")
}

// register handles POST /auth/register
func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" || req.Name == "" {
		httputil.WriteBadRequest(w, "name and email are required")
		return
	}

	user, err := h.auth.RegisterUser(r.Context(), req.Email, req.Name)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if user == nil {
		httputil.WriteBadRequest(w, "User already exists")
		return
	}

	authURL, err := h.auth.CreateUserMagicLink(r.Context(), user.ID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "Register successfull", map[string]interface{}{
		"user":    user,
		"authUrl": authURL,
	})
}

// loginInit handles POST /auth/login/init
func (h *AuthHandlers) loginInit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.users.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if user == nil {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "User not found")
		return
	}
	if !user.IsVerified {
		httputil.WriteUnauthorized(w, "User not verified, contact admin")
		return
	}

	authURL, err := h.auth.CreateUserMagicLink(r.Context(), user.ID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "Login initialted successfully", map[string]interface{}{
		"user":    user,
		"authUrl": authURL,
	})
}

// login handles POST /auth/login?token=...
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if _, err := uuid.Parse(token); err != nil {
		// Tokens are magic-link IDs; anything else fails closed.
		httputil.WriteUnauthorized(w, "Unauthorized: contact admin")
		return
	}

	result, err := h.auth.ValidateMagicLink(r.Context(), token)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if !result.IsValid || result.User == nil {
		httputil.WriteUnauthorized(w, "Unauthorized: contact admin")
		return
	}

	session, err := h.auth.CreateSession(r.Context(), result.User.ID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.WriteMessage(w, http.StatusOK, "User loged in successfully", result.User)
}

// logout handles POST /auth/logout
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	sid := contextkeys.SessionIDFrom(r.Context())
	if sid == "" {
		if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil {
			sid = cookie.Value
		}
	}
	if sid != "" {
		if err := h.auth.RemoveSession(r.Context(), sid); err != nil {
			h.log.WithError(err).Warn("failed to remove session on logout")
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	httputil.WriteMessage(w, http.StatusOK, "Logout successfully", nil)
}

// verifyUser handles POST /auth/verify-user
func (h *AuthHandlers) verifyUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	if !actor.IsAdmin() {
		httputil.WriteUnauthorized(w, "Unauthorized.")
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.auth.VerifyUserByAdmin(r.Context(), req.Email, actor.IsAdmin())
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if user == nil {
		httputil.WriteBadRequest(w, "User not verified")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"isVerified": true,
		"user":       user,
	})
}
