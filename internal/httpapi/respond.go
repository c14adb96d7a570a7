package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"estatecrm.org/internal/auth"
	"estatecrm.org/internal/leads"
	"estatecrm.org/internal/obs"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	Required  []string `json:"required,omitempty"`
	Current   []string `json:"current,omitempty"`
	RequestID string   `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorResponse{
		Message:   msg,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

func writeDenied(w http.ResponseWriter, r *http.Request, denied *auth.DeniedError) {
	msg := denied.Reason
	if msg == "" {
		msg = "Insufficient permissions"
	}
	writeJSON(w, http.StatusForbidden, errorResponse{
		Message:   msg,
		Required:  denied.Required,
		Current:   denied.Current,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// writeServiceError maps domain errors to status codes: 401 for unknown
// callers, 403 for denials, 400 for bad input, 404/409 for lead state and an
// opaque 500 for everything else.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var denied *auth.DeniedError
	switch {
	case errors.As(err, &denied):
		writeDenied(w, r, denied)
	case errors.Is(err, auth.ErrTokenMissing):
		writeError(w, r, http.StatusUnauthorized, "Access token required")
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, "Authentication required")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusForbidden, "Invalid or expired token")
	case errors.Is(err, auth.ErrStaleIdentity):
		writeError(w, r, http.StatusForbidden, "User not found or inactive")
	case errors.Is(err, auth.ErrInsufficientPermissions):
		writeError(w, r, http.StatusForbidden, "Insufficient permissions")
	case errors.Is(err, leads.ErrClaimNotPermitted):
		writeError(w, r, http.StatusForbidden, "Only agents can claim buyer requests")
	case errors.Is(err, leads.ErrReleaseNotPermitted):
		writeError(w, r, http.StatusForbidden, "Not permitted to release this claim")
	case errors.Is(err, auth.ErrUserExists):
		writeError(w, r, http.StatusBadRequest, "User already exists")
	case errors.Is(err, auth.ErrTargetNotFound):
		writeError(w, r, http.StatusBadRequest, "Target user not found")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "User not found")
	case errors.Is(err, leads.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "Not found")
	case errors.Is(err, leads.ErrAlreadyClaimed):
		writeError(w, r, http.StatusConflict, "Buyer request is already claimed")
	case errors.Is(err, leads.ErrRequestClosed):
		writeError(w, r, http.StatusConflict, "Buyer request is closed")
	case errors.Is(err, leads.ErrClaimNotActive):
		writeError(w, r, http.StatusConflict, "Claim is not active")
	default:
		obs.Logger().WithFields(logrus.Fields{
			"request_id": RequestIDFromContext(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"error":      err.Error(),
		}).Error("request failed")
		writeError(w, r, http.StatusInternalServerError, "Internal server error")
	}
}

var errEmptyBody = errors.New("request body is required")

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
