package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/atrium-works/atrium/pkg/httputil"
	"github.com/atrium-works/atrium/pkg/tenants"
)

// TenantHandlers handles tenant-related HTTP requests
type TenantHandlers struct {
	tenants *tenants.Service
}

// NewTenantHandlers creates a new tenant handlers instance
func NewTenantHandlers(svc *tenants.Service) *TenantHandlers {
	return &TenantHandlers{tenants: svc}
}

// RegisterRoutes registers tenant routes
func (h *TenantHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/tenant", h.createTenant).Methods("POST")
	router.HandleFunc("/tenant", h.listTenants).Methods("GET")
	router.HandleFunc("/tenant/{tenantId}", h.getTenant).Methods("GET")
	router.HandleFunc("/tenant/{tenantId}", h.updateTenant).Methods("PUT")
	router.HandleFunc("/tenant/{tenantId}/{userId}/assign", h.assignUser).Methods("POST")
	router.HandleFunc("/tenant/{tenantId}/{userId}/remove", h.removeUser).Methods("POST")
	router.HandleFunc("/tenant/{tenantId}/delete", h.deleteTenant).Methods("POST")
}

func (h *TenantHandlers) createTenant(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	tenant, err := h.tenants.CreateTenant(r.Context(), req.Name, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusCreated, "Tenant created successfully", tenant)
}

func (h *TenantHandlers) listTenants(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}

	list, err := h.tenants.GetTenants(r.Context(), actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Tenants fetched successfully", list)
}

func (h *TenantHandlers) getTenant(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	tenantID, ok := httputil.PathUUID(w, r, "tenantId")
	if !ok {
		return
	}

	tenant, err := h.tenants.GetTenantByID(r.Context(), tenantID, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteData(w, tenant)
}

func (h *TenantHandlers) updateTenant(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	tenantID, ok := httputil.PathUUID(w, r, "tenantId")
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	tenant, err := h.tenants.UpdateTenant(r.Context(), tenantID, req.Name, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Tenant updated successfully", tenant)
}

func (h *TenantHandlers) assignUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	tenantID, ok := httputil.PathUUID(w, r, "tenantId")
	if !ok {
		return
	}
	userID, ok := httputil.PathUUID(w, r, "userId")
	if !ok {
		return
	}

	user, err := h.tenants.AssignUserToTenant(r.Context(), userID, tenantID, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "User assigned to tenant successfully", user)
}

func (h *TenantHandlers) removeUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	tenantID, ok := httputil.PathUUID(w, r, "tenantId")
	if !ok {
		return
	}
	userID, ok := httputil.PathUUID(w, r, "userId")
	if !ok {
		return
	}

	user, err := h.tenants.RemoveUserFromTenant(r.Context(), userID, tenantID, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "User removed from tenant successfully", user)
}

func (h *TenantHandlers) deleteTenant(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	tenantID, ok := httputil.PathUUID(w, r, "tenantId")
	if !ok {
		return
	}

	tenant, err := h.tenants.DeleteTenant(r.Context(), tenantID, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Tenant deleted successfully", tenant)
}
