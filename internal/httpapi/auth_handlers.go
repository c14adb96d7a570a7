package httpapi

import (
	"net/http"
	"strings"
	"time"

	"estatecrm.org/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email          string   `json:"email"`
	Password       string   `json:"password"`
	FirstName      string   `json:"firstName"`
	LastName       string   `json:"lastName"`
	Phone          *string  `json:"phone"`
	Roles          []string `json:"roles"`
	OrganizationID string   `json:"organizationId"`
}

type impersonateRequest struct {
	TargetUserID string `json:"targetUserId"`
}

type sessionResponse struct {
	Success   bool            `json:"success"`
	User      auth.PublicUser `json:"user"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}
	sess, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Success:   true,
		User:      sess.User.Public(),
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
	})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := a.auth.Register(r.Context(), auth.RegisterInput{
		Email:          req.Email,
		Password:       req.Password,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Phone:          req.Phone,
		Roles:          req.Roles,
		OrganizationID: req.OrganizationID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{
		Success:   true,
		User:      sess.User.Public(),
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if id == nil {
		writeServiceError(w, r, auth.ErrUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"user":        id,
		"permissions": auth.EffectivePermissions(id.Roles),
	})
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if id == nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"authenticated": true,
		"user":          id,
	})
}

func (a *API) handleImpersonate(w http.ResponseWriter, r *http.Request) {
	var req impersonateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.TargetUserID) == "" {
		writeError(w, r, http.StatusBadRequest, "targetUserId is required")
		return
	}
	sess, err := a.auth.Impersonate(r.Context(), identity(r), req.TargetUserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Success:   true,
		User:      sess.User.Public(),
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
	})
}

// handleLogout is stateless: the client discards its token.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out successfully",
	})
}
