package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/atrium-works/atrium/pkg/httputil"
	"github.com/atrium-works/atrium/pkg/users"
)

// UserHandlers handles user-related HTTP requests
type UserHandlers struct {
	users *users.Service
}

// NewUserHandlers creates a new user handlers instance
func NewUserHandlers(svc *users.Service) *UserHandlers {
	return &UserHandlers{users: svc}
}

// RegisterRoutes registers user routes
func (h *UserHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/user/me", h.me).Methods("GET")
	router.HandleFunc("/user/all/{tenantId}", h.allUsers).Methods("GET")
	router.HandleFunc("/user/{userId}", h.updateProfile).Methods("PUT")
	router.HandleFunc("/user/{userId}/tenant", h.updateTenant).Methods("PUT")
	router.HandleFunc("/user/{userId}", h.deleteUser).Methods("DELETE")
}

func (h *UserHandlers) me(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}

	profile, err := h.users.GetUserProfile(r.Context(), actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"user": profile})
}

func (h *UserHandlers) allUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	tenantID, ok := httputil.PathUUID(w, r, "tenantId")
	if !ok {
		return
	}

	list, err := h.users.GetAllUsers(r.Context(), tenantID, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteData(w, list)
}

func (h *UserHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	userID, ok := httputil.PathUUID(w, r, "userId")
	if !ok {
		return
	}

	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.users.UpdateUserProfile(r.Context(), userID, req.Name, req.Email, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "User updated successfully", user)
}

func (h *UserHandlers) updateTenant(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	userID, ok := httputil.PathUUID(w, r, "userId")
	if !ok {
		return
	}

	var req struct {
		TenantID string `json:"tenantId"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.users.UpdateUserTenant(r.Context(), userID, req.TenantID, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "User moved to tenant successfully", user)
}

func (h *UserHandlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	userID, ok := httputil.PathUUID(w, r, "userId")
	if !ok {
		return
	}

	if err := h.users.DeleteUser(r.Context(), userID, actor); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "User deleted successfully", nil)
}
