// Package httpapi is the JSON HTTP surface of the CRM authorization core.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"estatecrm.org/internal/auth"
	"estatecrm.org/internal/health"
	"estatecrm.org/internal/leads"
	"estatecrm.org/internal/obs"
	"estatecrm.org/internal/throttle"
)

// Options wires the API to its services.
type Options struct {
	Auth           *auth.Service
	Leads          *leads.Service
	Health         *health.Checker
	Limiter        throttle.Limiter
	AllowedOrigins []string
	MaxBodyBytes   int64
	Version        string
}

// API is the HTTP layer.
type API struct {
	auth    *auth.Service
	leads   *leads.Service
	health  *health.Checker
	limiter throttle.Limiter
	origins []string
	maxBody int64
	version string
}

// New validates opts and builds the API.
func New(opts Options) (*API, error) {
	if opts.Auth == nil {
		return nil, errors.New("httpapi: auth service is required")
	}
	if opts.Leads == nil {
		return nil, errors.New("httpapi: leads service is required")
	}
	obs.Init()
	a := &API{
		auth:    opts.Auth,
		leads:   opts.Leads,
		health:  opts.Health,
		limiter: opts.Limiter,
		origins: opts.AllowedOrigins,
		maxBody: opts.MaxBodyBytes,
		version: opts.Version,
	}
	if a.health == nil {
		a.health = health.NewChecker(opts.Version)
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}
	return a, nil
}

// Handler returns the fully wrapped router.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.Router())
}

var agentRoles = []auth.Role{auth.RoleCorporateAgent, auth.RoleIndependentAgent}

// Router assembles routes and middleware.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog)
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(cors.Handler(a.corsOptions()))
	if a.limiter != nil {
		r.Use(RateLimit(a.limiter))
	}
	r.Use(MaxBodyBytes(a.maxBody))
	r.Use(AuditMeta)

	r.Get("/healthz", a.handleHealthz)
	r.Get("/readyz", a.handleReadyz)
	r.Handle("/metrics", obs.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", a.handleLogin)
		r.Post("/register", a.handleRegister)
		r.With(a.OptionalAuthenticate).Get("/session", a.handleSession)
		r.Group(func(r chi.Router) {
			r.Use(a.Authenticate)
			r.Get("/me", a.handleMe)
			r.With(RequireAuth()).Post("/logout", a.handleLogout)
			r.With(RequireRole(auth.RolePlatformAdmin)).Post("/impersonate", a.handleImpersonate)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(a.Authenticate)

		r.With(RequirePermission(auth.PermSearchBuyerPool)).Get("/buyer-requests", a.handlePool)
		r.Get("/buyer-requests/{id}", a.handleViewRequest)
		r.With(RequireRole(agentRoles...)).Get("/buyer-requests/{id}/claim-eligibility", a.handleEligibility)
		r.With(RequireRole(agentRoles...)).Post("/buyer-requests/{id}/claims", a.handleClaim)
		r.Post("/claims/{id}/release", a.handleRelease)
		r.With(RequireRole(agentRoles...)).Get("/claims/mine", a.handleMyClaims)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireRole(auth.RolePlatformAdmin), RequirePermission(auth.PermManageUsers))
			r.Get("/users", a.handleListUsers)
			r.Patch("/users/{id}", a.handleUpdateUser)
		})

		r.With(RequireOrganization()).Get("/organization/members", a.handleOwnOrgMembers)
		r.With(CanAccessOrganization("orgID")).Get("/organizations/{orgID}/members", a.handleOrgMembers)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

func (a *API) corsOptions() cors.Options {
	return cors.Options{
		AllowedOrigins:   a.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           600,
	}
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "estatecrm-api",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	report := a.health.Check(r.Context())
	code := http.StatusOK
	if !report.Ready() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}
