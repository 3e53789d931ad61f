package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/atrium-works/atrium/pkg/httputil"
	"github.com/atrium-works/atrium/pkg/roles"
)

// RoleHandlers handles role-related HTTP requests
type RoleHandlers struct {
	roles *roles.Service
}

// NewRoleHandlers creates a new role handlers instance
func NewRoleHandlers(svc *roles.Service) *RoleHandlers {
	return &RoleHandlers{roles: svc}
}

// RegisterRoutes registers role routes
func (h *RoleHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/role/group/{groupId}", h.createRole).Methods("POST")
	router.HandleFunc("/role/group/{groupId}", h.rolesByGroup).Methods("GET")
	router.HandleFunc("/role/{roleId}", h.getRole).Methods("GET")
	router.HandleFunc("/role/{roleId}", h.updateRole).Methods("PUT")
	router.HandleFunc("/role/{roleId}", h.deleteRole).Methods("DELETE")
	router.HandleFunc("/role/{roleId}/group/{groupId}", h.assignRole).Methods("POST")
	router.HandleFunc("/role/{roleId}/group/{groupId}", h.removeRole).Methods("DELETE")
	router.HandleFunc("/role/{roleId}/permissions", h.addPermissions).Methods("POST")
	router.HandleFunc("/role/{roleId}/permissions", h.removePermissions).Methods("DELETE")
}

func (h *RoleHandlers) createRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, ok := httputil.PathUUID(w, r, "groupId")
	if !ok {
		return
	}

	var req struct {
		Name          string   `json:"name"`
		Description   string   `json:"description"`
		PermissionIDs []string `json:"permissionIds"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := h.roles.CreateRoleForGroup(r.Context(), req.Name, req.Description, req.PermissionIDs, groupID, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusCreated, "Role created and assigned to group successfully", role)
}

func (h *RoleHandlers) rolesByGroup(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, ok := httputil.PathUUID(w, r, "groupId")
	if !ok {
		return
	}

	list, err := h.roles.GetRolesByGroup(r.Context(), groupID, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Roles fetched successfully", list)
}

func (h *RoleHandlers) getRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.PathUUID(w, r, "roleId")
	if !ok {
		return
	}

	role, groups, err := h.roles.GetRoleByID(r.Context(), roleID, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteData(w, map[string]interface{}{
		"role":   role,
		"groups": groups,
	})
}

func (h *RoleHandlers) updateRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.PathUUID(w, r, "roleId")
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := h.roles.UpdateRole(r.Context(), roleID, req.Name, req.Description, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Role updated successfully", role)
}

func (h *RoleHandlers) deleteRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.PathUUID(w, r, "roleId")
	if !ok {
		return
	}

	if err := h.roles.DeleteRole(r.Context(), roleID, actor); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Role deleted successfully", nil)
}

func (h *RoleHandlers) assignRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.PathUUID(w, r, "roleId")
	if !ok {
		return
	}
	groupID, ok := httputil.PathUUID(w, r, "groupId")
	if !ok {
		return
	}

	groupRole, err := h.roles.AssignRoleToGroup(r.Context(), roleID, groupID, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusCreated, "Role assigned to group successfully", groupRole)
}

func (h *RoleHandlers) removeRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.PathUUID(w, r, "roleId")
	if !ok {
		return
	}
	groupID, ok := httputil.PathUUID(w, r, "groupId")
	if !ok {
		return
	}

	if err := h.roles.RemoveRoleFromGroup(r.Context(), roleID, groupID, actor); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Role removed from group successfully", true)
}

func (h *RoleHandlers) addPermissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.PathUUID(w, r, "roleId")
	if !ok {
		return
	}

	var req struct {
		PermissionIDs []string `json:"permissionIds"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := h.roles.AddPermissionsToRole(r.Context(), roleID, req.PermissionIDs, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, result.Message, result)
}

func (h *RoleHandlers) removePermissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	roleID, ok := httputil.PathUUID(w, r, "roleId")
	if !ok {
		return
	}

	var req struct {
		PermissionIDs []string `json:"permissionIds"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := h.roles.RemovePermissionsFromRole(r.Context(), roleID, req.PermissionIDs, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, result.Message, result)
}
