package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/atrium-works/atrium/pkg/httputil"
	"github.com/atrium-works/atrium/pkg/permissions"
)

// PermissionHandlers handles permission-related HTTP requests
type PermissionHandlers struct {
	permissions *permissions.Service
}

// NewPermissionHandlers creates a new permission handlers instance
func NewPermissionHandlers(svc *permissions.Service) *PermissionHandlers {
	return &PermissionHandlers{permissions: svc}
}

// RegisterRoutes registers permission routes
func (h *PermissionHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/permission/create", h.createPermission).Methods("POST")
	router.HandleFunc("/permission/seed", h.seedPermissions).Methods("POST")
	router.HandleFunc("/permission", h.listPermissions).Methods("GET")
	router.HandleFunc("/permission/{permissionId}", h.getPermission).Methods("GET")
	router.HandleFunc("/permission/{permissionId}", h.updatePermission).Methods("PUT")
	router.HandleFunc("/permission/{permissionId}", h.deletePermission).Methods("DELETE")
}

func (h *PermissionHandlers) createPermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Module      string `json:"module"`
		Action      string `json:"action"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	permission, err := h.permissions.CreatePermission(r.Context(),
		permissions.Module(req.Module), permissions.Action(req.Action), req.Name, req.Description, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusCreated, "Permission created successfully", permission)
}

func (h *PermissionHandlers) seedPermissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}

	seeded, err := h.permissions.SeedAdminPermissions(r.Context(), actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusCreated, "Permissions seeded successfully", seeded)
}

func (h *PermissionHandlers) listPermissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}

	list, err := h.permissions.GetPermissions(r.Context(), actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Permissions fetched successfully", list)
}

func (h *PermissionHandlers) getPermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	permissionID, ok := httputil.PathUUID(w, r, "permissionId")
	if !ok {
		return
	}

	permission, err := h.permissions.GetPermissionByID(r.Context(), permissionID, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteData(w, permission)
}

func (h *PermissionHandlers) updatePermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	permissionID, ok := httputil.PathUUID(w, r, "permissionId")
	if !ok {
		return
	}

	var req struct {
		Module      string `json:"module"`
		Action      string `json:"action"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	permission, err := h.permissions.UpdatePermission(r.Context(), permissionID,
		permissions.Module(req.Module), permissions.Action(req.Action), req.Name, req.Description, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Permission updated successfully", permission)
}

func (h *PermissionHandlers) deletePermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	permissionID, ok := httputil.PathUUID(w, r, "permissionId")
	if !ok {
		return
	}

	if err := h.permissions.DeletePermission(r.Context(), permissionID, actor); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Permission deleted successfully", nil)
}
