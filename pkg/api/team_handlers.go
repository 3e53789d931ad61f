package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/atrium-works/atrium/pkg/httputil"
	"github.com/atrium-works/atrium/pkg/teams"
)

// TeamHandlers handles team-related HTTP requests
type TeamHandlers struct {
	teams *teams.Service
}

// NewTeamHandlers creates a new team handlers instance
func NewTeamHandlers(svc *teams.Service) *TeamHandlers {
	return &TeamHandlers{teams: svc}
}

// RegisterRoutes registers team routes
func (h *TeamHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/team", h.createTeam).Methods("POST")
	router.HandleFunc("/team/{tenantId}", h.listTeams).Methods("GET")
	router.HandleFunc("/team/{teamId}/details", h.getTeam).Methods("GET")
	router.HandleFunc("/team/{teamId}", h.updateTeam).Methods("PUT")
	router.HandleFunc("/team/{teamId}", h.deleteTeam).Methods("DELETE")
}

func (h *TeamHandlers) createTeam(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Name     string `json:"name"`
		TenantID string `json:"tenantId"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	team, err := h.teams.CreateTeam(r.Context(), req.Name, req.TenantID, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusCreated, "Team created successfully", team)
}

func (h *TeamHandlers) listTeams(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	tenantID, ok := httputil.PathUUID(w, r, "tenantId")
	if !ok {
		return
	}

	list, err := h.teams.GetTeamsForTenant(r.Context(), tenantID, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteData(w, list)
}

func (h *TeamHandlers) getTeam(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	teamID, ok := httputil.PathUUID(w, r, "teamId")
	if !ok {
		return
	}

	team, err := h.teams.GetTeamByID(r.Context(), teamID, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteData(w, team)
}

func (h *TeamHandlers) updateTeam(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	teamID, ok := httputil.PathUUID(w, r, "teamId")
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	team, err := h.teams.UpdateTeam(r.Context(), teamID, req.Name, actor)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Team updated successfully", team)
}

func (h *TeamHandlers) deleteTeam(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	teamID, ok := httputil.PathUUID(w, r, "teamId")
	if !ok {
		return
	}

	if err := h.teams.DeleteTeam(r.Context(), teamID, actor); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Team deleted successfully", nil)
}
