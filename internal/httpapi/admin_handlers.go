package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"estatecrm.org/internal/auth"
)

type updateUserRequest struct {
	IsActive *bool    `json:"isActive"`
	Roles    []string `json:"roles"`
}

func publicUsers(users []*auth.User) []auth.PublicUser {
	out := make([]auth.PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.auth.ListUsers(r.Context(), auth.UserFilter{
		OrganizationID: r.URL.Query().Get("organizationId"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "users": publicUsers(users)})
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	upd := auth.UserUpdate{IsActive: req.IsActive}
	if req.Roles != nil {
		roles, err := auth.ParseRoles(req.Roles)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		upd.Roles = roles
		if upd.Roles == nil {
			upd.Roles = []auth.Role{}
		}
	}
	user, err := a.auth.AdminUpdateUser(r.Context(), identity(r), chi.URLParam(r, "id"), upd)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user.Public()})
}

func (a *API) handleOrgMembers(w http.ResponseWriter, r *http.Request) {
	a.writeMembers(w, r, chi.URLParam(r, "orgID"))
}

func (a *API) handleOwnOrgMembers(w http.ResponseWriter, r *http.Request) {
	a.writeMembers(w, r, identity(r).OrganizationID)
}

func (a *API) writeMembers(w http.ResponseWriter, r *http.Request, orgID string) {
	users, err := a.auth.ListUsers(r.Context(), auth.UserFilter{OrganizationID: orgID})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"organizationId": orgID,
		"members":        publicUsers(users),
	})
}
