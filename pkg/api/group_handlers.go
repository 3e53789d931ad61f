package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/atrium-works/atrium/pkg/groups"
	"github.com/atrium-works/atrium/pkg/httputil"
)

// GroupHandlers handles group-related HTTP requests
type GroupHandlers struct {
	groups *groups.Service
}

// NewGroupHandlers creates a new group handlers instance
func NewGroupHandlers(svc *groups.Service) *GroupHandlers {
	return &GroupHandlers{groups: svc}
}

// RegisterRoutes registers group routes
func (h *GroupHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/group", h.createGroup).Methods("POST")
	router.HandleFunc("/group/user", h.userGroups).Methods("GET")
	router.HandleFunc("/group/team/{teamId}", h.teamGroups).Methods("GET")
	router.HandleFunc("/group/{groupId}", h.updateGroup).Methods("PUT")
	router.HandleFunc("/group/{groupId}", h.deleteGroup).Methods("DELETE")
	router.HandleFunc("/group/{groupId}/user", h.addMember).Methods("POST")
	router.HandleFunc("/group/{groupId}/user/{userId}", h.removeMember).Methods("DELETE")
	router.HandleFunc("/group/{groupId}/members", h.groupMembers).Methods("GET")
	router.HandleFunc("/group/{groupId}/roles", h.groupRoles).Methods("GET")
}

func (h *GroupHandlers) createGroup(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Name   string `json:"name"`
		TeamID string `json:"teamId"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	group, err := h.groups.CreateGroup(r.Context(), req.Name, req.TeamID, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusCreated, "Group created successfully", group)
}

func (h *GroupHandlers) userGroups(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}

	list, err := h.groups.GetUserGroups(r.Context(), actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "User groups fetched successfully", list)
}

func (h *GroupHandlers) teamGroups(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	teamID, ok := httputil.PathUUID(w, r, "teamId")
	if !ok {
		return
	}

	list, err := h.groups.GetGroupsByTeam(r.Context(), teamID, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteData(w, list)
}

func (h *GroupHandlers) updateGroup(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, ok := httputil.PathUUID(w, r, "groupId")
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	group, err := h.groups.UpdateGroup(r.Context(), groupID, req.Name, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Group updated successfully", group)
}

func (h *GroupHandlers) addMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, ok := httputil.PathUUID(w, r, "groupId")
	if !ok {
		return
	}

	var req struct {
		UserID string `json:"userId"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	membership, err := h.groups.AddUserToGroup(r.Context(), req.UserID, groupID, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusCreated, "User added to group successfully", membership)
}

func (h *GroupHandlers) removeMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, ok := httputil.PathUUID(w, r, "groupId")
	if !ok {
		return
	}
	userID, ok := httputil.PathUUID(w, r, "userId")
	if !ok {
		return
	}

	if err := h.groups.RemoveUserFromGroup(r.Context(), userID, groupID, actor); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "User removed from group successfully", nil)
}

func (h *GroupHandlers) groupMembers(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, ok := httputil.PathUUID(w, r, "groupId")
	if !ok {
		return
	}

	group, members, err := h.groups.GetGroupMembers(r.Context(), groupID, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteData(w, map[string]interface{}{
		"group":   group,
		"members": members,
	})
}

func (h *GroupHandlers) groupRoles(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, ok := httputil.PathUUID(w, r, "groupId")
	if !ok {
		return
	}

	list, err := h.groups.GetGroupRoles(r.Context(), groupID, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Group roles fetched successfully", list)
}

func (h *GroupHandlers) deleteGroup(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	groupID, ok := httputil.PathUUID(w, r, "groupId")
	if !ok {
		return
	}

	if err := h.groups.DeleteGroup(r.Context(), groupID, actor); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Group deleted successfully", nil)
}
