package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"estatecrm.org/internal/auth"
	"estatecrm.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", auth.ErrTokenMissing
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", auth.ErrTokenMissing
	}
	return token, nil
}

// Authenticate requires a valid bearer token for a live, active user and
// attaches the resulting identity to the request context.
func (a *API) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			obs.AuthDecision("authenticate", "missing")
			writeServiceError(w, r, err)
			return
		}
		id, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			obs.AuthDecision("authenticate", authOutcome(err))
			writeServiceError(w, r, err)
			return
		}
		obs.AuthDecision("authenticate", "ok")
		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
	})
}

// OptionalAuthenticate attaches an identity when the token checks out and
// otherwise continues anonymously.
func (a *API) OptionalAuthenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		id, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			obs.AuthDecision("optional_authenticate", authOutcome(err))
			next.ServeHTTP(w, r)
			return
		}
		obs.AuthDecision("optional_authenticate", "ok")
		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
	})
}

func authOutcome(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		return "invalid"
	case errors.Is(err, auth.ErrStaleIdentity):
		return "stale"
	default:
		return "error"
	}
}

func identity(r *http.Request) *auth.Identity {
	id, _ := auth.IdentityFromContext(r.Context())
	return id
}

// guard adapts a pure check into middleware that stops the chain on denial.
func guard(stage string, check func(r *http.Request) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := check(r); err != nil {
				obs.AuthDecision(stage, "denied")
				writeServiceError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth rejects requests without an attached identity.
func RequireAuth() func(http.Handler) http.Handler {
	return guard("require_auth", func(r *http.Request) error {
		return auth.RequireAuth(identity(r))
	})
}

// RequireRole passes when the caller holds any of allowed.
func RequireRole(allowed ...auth.Role) func(http.Handler) http.Handler {
	return guard("require_role", func(r *http.Request) error {
		return auth.RequireRole(identity(r), allowed...)
	})
}

// RequirePermission passes when one of the caller's roles grants perm.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return guard("require_permission", func(r *http.Request) error {
		return auth.RequirePermission(identity(r), perm)
	})
}

// RequireOrganization passes for callers that belong to an organization.
func RequireOrganization() func(http.Handler) http.Handler {
	return guard("require_organization", func(r *http.Request) error {
		return auth.RequireOrganization(identity(r))
	})
}

// CanAccessOrganization compares the caller's organization with the URL
// parameter named param.
func CanAccessOrganization(param string) func(http.Handler) http.Handler {
	return guard("organization_access", func(r *http.Request) error {
		return auth.CanAccessOrganization(identity(r), chi.URLParam(r, param))
	})
}
