// Package api exposes the HTTP surface: one handler group per entity,
// registered under /api/v1, with session resolution handled by middleware.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/atrium-works/atrium/pkg/authn"
	"github.com/atrium-works/atrium/pkg/groups"
	"github.com/atrium-works/atrium/pkg/httputil"
	"github.com/atrium-works/atrium/pkg/middleware"
	"github.com/atrium-works/atrium/pkg/observability"
	"github.com/atrium-works/atrium/pkg/permissions"
	"github.com/atrium-works/atrium/pkg/roles"
	"github.com/atrium-works/atrium/pkg/tenants"
	"github.com/atrium-works/atrium/pkg/teams"
	"github.com/atrium-works/atrium/pkg/users"
)

// APIPrefix is the path prefix all routes are registered under.
const APIPrefix = "/api/v1"

// Services bundles the service layer the server routes to.
type Services struct {
	Auth        *authn.Service
	Users       *users.Service
	Tenants     *tenants.Service
	Teams       *teams.Service
	Groups      *groups.Service
	Roles       *roles.Service
	Permissions *permissions.Service

	// CookieSecure marks the session cookie Secure; set behind TLS.
	CookieSecure bool
}

// Server represents our API server
type Server struct {
	router   *mux.Router
	services Services
	log      *observability.Logger
	metrics  *observability.Metrics
}

// NewServer creates a new API server. Metrics may be nil.
func NewServer(services Services, log *observability.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		services: services,
		log:      log,
		metrics:  metrics,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures the middleware chain and all API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")

	api := s.router.PathPrefix(APIPrefix).Subrouter()
	api.Use(middleware.Recoverer(s.log))
	api.Use(middleware.RequestLogger(s.log))
	if s.metrics != nil {
		api.Use(middleware.Metrics(s.metrics))
	}
	api.Use(middleware.SessionAuth(s.services.Auth))

	authHandlers := NewAuthHandlers(s.services.Auth, s.services.Users, s.log)
	authHandlers.cookieSecure = s.services.CookieSecure
	authHandlers.RegisterRoutes(api)
	NewTenantHandlers(s.services.Tenants).RegisterRoutes(api)
	NewTeamHandlers(s.services.Teams).RegisterRoutes(api)
	NewGroupHandlers(s.services.Groups).RegisterRoutes(api)
	NewRoleHandlers(s.services.Roles).RegisterRoutes(api)
	NewPermissionHandlers(s.services.Permissions).RegisterRoutes(api)
	NewUserHandlers(s.services.Users).RegisterRoutes(api)
}

// Router exposes the configured router, mainly for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
